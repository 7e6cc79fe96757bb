package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voidworks/venting-vault/backend/internal/model/chat"
	"github.com/voidworks/venting-vault/backend/internal/model/companion"
	"github.com/voidworks/venting-vault/backend/internal/store"
)

// wakeUpGap is the absence after which the companion greets the user
// with a contextual welcome-back line.
const wakeUpGap = 24 * time.Hour

// greetingContextLimit bounds how much history feeds the greeting.
const greetingContextLimit = 8

// Greeter produces the one-off welcome-back line. The ai service
// implements it.
type Greeter interface {
	GenerateGreeting(ctx context.Context, contextLines string, gapHours int) (string, error)
}

// Service restores the durable log on cold start, seeds the first-run
// welcome, and runs the wake-up greeting at most once per process.
type Service struct {
	store   store.Store
	greeter Greeter
	comp    companion.Companion

	wakeUpOnce sync.Once
	now        func() time.Time
}

// NewService creates the memory service. greeter may be nil; the
// wake-up greeting is then skipped.
func NewService(st store.Store, greeter Greeter, comp companion.Companion) *Service {
	return &Service{
		store:   st,
		greeter: greeter,
		comp:    comp,
		now:     time.Now,
	}
}

// Initialize loads the persisted log and returns the conversation the
// orchestrator should start from. A read failure degrades to an empty
// history; nothing here is fatal.
func (s *Service) Initialize(ctx context.Context) []chat.Message {
	messages, err := s.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[memory] failed to load vault log, starting empty: %v", err)
		}
		messages = nil
	}

	if len(messages) == 0 {
		seed := s.newAssistantMessage(s.comp.WelcomeLine, chat.KindText)
		messages = []chat.Message{seed}
		s.persist(ctx, messages)
		return messages
	}

	gap := s.now().UTC().Sub(messages[len(messages)-1].Timestamp)
	if gap >= wakeUpGap {
		// At most one wake-up per process lifetime, however many times
		// the app foregrounds and re-initializes.
		s.wakeUpOnce.Do(func() {
			if greeting, ok := s.generateWakeUp(ctx, messages, gap); ok {
				messages = append(messages, greeting)
				s.persist(ctx, messages)
			}
		})
	}

	return messages
}

// generateWakeUp asks the greeter for a contextual welcome-back line.
// Any failure skips the greeting silently; the restored log is enough.
func (s *Service) generateWakeUp(ctx context.Context, messages []chat.Message, gap time.Duration) (chat.Message, bool) {
	if s.greeter == nil {
		return chat.Message{}, false
	}

	contextLines := s.formatGreetingContext(messages)
	greeting, err := s.greeter.GenerateGreeting(ctx, contextLines, int(gap.Hours()))
	if err != nil {
		log.Printf("[memory] wake-up greeting skipped: %v", err)
		return chat.Message{}, false
	}
	greeting = strings.TrimSpace(greeting)
	if greeting == "" {
		return chat.Message{}, false
	}

	log.Printf("[memory] wake-up greeting appended after %.0fh absence", gap.Hours())
	return s.newAssistantMessage(greeting, chat.KindText), true
}

// formatGreetingContext renders the last few substantive messages as
// role-labeled lines. System and crisis entries are left out; they are
// copy, not conversation.
func (s *Service) formatGreetingContext(messages []chat.Message) string {
	filtered := make([]chat.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Sender == chat.SenderSystem || msg.IsCrisis() {
			continue
		}
		filtered = append(filtered, msg)
	}
	if len(filtered) > greetingContextLimit {
		filtered = filtered[len(filtered)-greetingContextLimit:]
	}

	lines := make([]string, 0, len(filtered))
	for _, msg := range filtered {
		label := "User"
		if msg.Sender == chat.SenderAssistant {
			label = s.comp.Name
		}
		lines = append(lines, fmt.Sprintf("%s: %s", label, msg.Text))
	}
	return strings.Join(lines, "\n")
}

func (s *Service) persist(ctx context.Context, messages []chat.Message) {
	if err := s.store.Save(ctx, messages); err != nil {
		log.Printf("[memory] failed to persist vault log: %v", err)
	}
}

func (s *Service) newAssistantMessage(text string, kind chat.Kind) chat.Message {
	return chat.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    chat.SenderAssistant,
		Kind:      kind,
		Timestamp: s.now().UTC(),
	}
}

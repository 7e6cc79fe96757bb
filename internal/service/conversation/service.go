package conversation

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voidworks/venting-vault/backend/internal/model/chat"
	"github.com/voidworks/venting-vault/backend/internal/model/companion"
	"github.com/voidworks/venting-vault/backend/internal/service/moderation"
	"github.com/voidworks/venting-vault/backend/internal/store"
)

var ErrEmptyMessage = errors.New("message text is empty")

// Generator produces companion replies. The ai service implements it;
// tests substitute stubs.
type Generator interface {
	GenerateReply(ctx context.Context, history []chat.Message, userText string) (string, error)
	GenerateVoiceReply(ctx context.Context, artifact chat.VoiceArtifact) (string, error)
}

// Moderator reviews a completed turn's combined text.
type Moderator interface {
	Classify(ctx context.Context, combined string) moderation.Verdict
}

// Service owns turn sequencing for the single vault conversation: it
// appends the user message, obtains a reply, enforces the crisis
// supersession rule, and schedules the safety review for the turn.
type Service struct {
	mu   sync.RWMutex
	log  []chat.Message
	comp companion.Companion

	generator Generator
	moderator Moderator
	store     store.Store

	reviewMu sync.Mutex
	reviews  map[string]context.CancelFunc
	reviewWG sync.WaitGroup
}

// NewService creates the orchestrator around an already-initialized
// log (the memory service's Initialize output). generator and moderator
// may be nil when the AI backend is not configured; turns then degrade
// to fallback copy and reviews are skipped.
func NewService(comp companion.Companion, generator Generator, moderator Moderator, st store.Store, initial []chat.Message) *Service {
	logCopy := make([]chat.Message, len(initial))
	copy(logCopy, initial)

	return &Service{
		log:       logCopy,
		comp:      comp,
		generator: generator,
		moderator: moderator,
		store:     st,
		reviews:   make(map[string]context.CancelFunc),
	}
}

// Messages returns a snapshot of the ordered log.
func (s *Service) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make([]chat.Message, len(s.log))
	copy(snapshot, s.log)
	return snapshot
}

// SubmitText runs one text turn and returns the log snapshot once the
// reply (or its fallback) is appended. The safety review continues in
// the background after return.
func (s *Service) SubmitText(ctx context.Context, text string) ([]chat.Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyMessage
	}

	userMsg := s.newMessage(trimmed, chat.SenderUser, chat.KindText)
	history := s.appendAndPersist(ctx, userMsg)

	reply, err := s.generateText(ctx, history, trimmed)
	return s.completeTurn(ctx, userMsg, reply, err, false), nil
}

// SubmitVoice runs one voice turn. The log stores only the placeholder
// text plus the artifact ref and duration; the raw audio goes to the
// generation backend and is not persisted.
func (s *Service) SubmitVoice(ctx context.Context, artifact chat.VoiceArtifact) ([]chat.Message, error) {
	userMsg := s.newMessage("Voice Message", chat.SenderUser, chat.KindVoice)
	userMsg.VoiceRef = artifact.Ref
	userMsg.DurationSeconds = artifact.DurationSeconds
	s.appendAndPersist(ctx, userMsg)

	reply, err := s.generateVoice(ctx, artifact)
	return s.completeTurn(ctx, userMsg, reply, err, true), nil
}

// InsertPrompt appends one of the companion's reflective prompts as an
// assistant message and returns it.
func (s *Service) InsertPrompt(ctx context.Context) (chat.Message, error) {
	prompts := s.comp.ReflectivePrompts
	if len(prompts) == 0 {
		return chat.Message{}, errors.New("no reflective prompts configured")
	}

	msg := s.newMessage(prompts[rand.Intn(len(prompts))], chat.SenderAssistant, chat.KindText)
	s.appendAndPersist(ctx, msg)
	return msg, nil
}

// CancelReview aborts the in-flight safety review for a turn, if any.
// A verdict that arrives after cancellation is discarded.
func (s *Service) CancelReview(turnID string) {
	s.reviewMu.Lock()
	cancel, ok := s.reviews[turnID]
	s.reviewMu.Unlock()
	if ok {
		cancel()
	}
}

// DrainReviews blocks until all scheduled reviews have finished. Used
// on shutdown so verdicts are not lost mid-flight.
func (s *Service) DrainReviews() {
	s.reviewWG.Wait()
}

func (s *Service) generateText(ctx context.Context, history []chat.Message, text string) (string, error) {
	if s.generator == nil {
		return "", errors.New("generation backend unavailable")
	}
	return s.generator.GenerateReply(ctx, history, text)
}

func (s *Service) generateVoice(ctx context.Context, artifact chat.VoiceArtifact) (string, error) {
	if s.generator == nil {
		return "", errors.New("generation backend unavailable")
	}
	return s.generator.GenerateVoiceReply(ctx, artifact)
}

// completeTurn appends the assistant reply or the fallback, honoring
// the supersession rule, and schedules the review on success.
func (s *Service) completeTurn(ctx context.Context, userMsg chat.Message, reply string, genErr error, voice bool) []chat.Message {
	reply = strings.TrimSpace(reply)
	if genErr != nil || reply == "" {
		if genErr != nil {
			log.Printf("[conversation] generation failed for turn=%s: %v", userMsg.ID, genErr)
		}
		fallback := s.comp.TextFallbackLine
		if voice {
			fallback = s.comp.VoiceFallbackLine
		}
		s.appendAndPersist(ctx, s.newMessage(fallback, chat.SenderSystem, chat.KindText))
		return s.Messages()
	}

	assistantMsg := s.newMessage(reply, chat.SenderAssistant, chat.KindText)

	s.mu.Lock()
	// A crisis notice already surfaced for this turn wins over a late
	// reply; the stale reply is dropped, not queued.
	if n := len(s.log); n > 0 && s.log[n-1].IsCrisis() {
		s.mu.Unlock()
		log.Printf("[conversation] reply superseded by crisis notice, turn=%s", userMsg.ID)
		return s.Messages()
	}
	s.log = append(s.log, assistantMsg)
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.scheduleReview(userMsg.ID, userMsg.Text+" "+reply)
	return s.Messages()
}

// scheduleReview runs the safety review for one turn as a supervised
// task: cancellable by turn id and drained on shutdown.
func (s *Service) scheduleReview(turnID, combined string) {
	if s.moderator == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.reviewMu.Lock()
	s.reviews[turnID] = cancel
	s.reviewMu.Unlock()

	s.reviewWG.Add(1)
	go func() {
		defer s.reviewWG.Done()
		defer func() {
			s.reviewMu.Lock()
			delete(s.reviews, turnID)
			s.reviewMu.Unlock()
			cancel()
		}()

		verdict := s.moderator.Classify(ctx, combined)
		if ctx.Err() != nil {
			log.Printf("[conversation] review cancelled, turn=%s", turnID)
			return
		}
		if verdict.Safe {
			return
		}
		s.appendCrisis(verdict)
	}()
}

// appendCrisis appends the single crisis notice for an unsafe verdict.
func (s *Service) appendCrisis(verdict moderation.Verdict) {
	text := s.comp.CrisisLine
	if verdict.Category == moderation.CategoryViolence {
		text = s.comp.CrisisViolenceLine
	}

	msg := s.newMessage(text, chat.SenderSystem, chat.KindCrisis)
	msg.Escalation = s.comp.Lifeline
	s.appendAndPersist(context.Background(), msg)
}

// appendAndPersist appends under the lock and writes through, returning
// the log as it stood before the append (the generation context window
// never contains the input being answered).
func (s *Service) appendAndPersist(ctx context.Context, msg chat.Message) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := make([]chat.Message, len(s.log))
	copy(before, s.log)

	s.log = append(s.log, msg)
	s.persistLocked(ctx)
	return before
}

// persistLocked writes the full log through to the store. Persistence
// failures are logged and swallowed; the conversation continues in
// memory. Callers must hold s.mu.
func (s *Service) persistLocked(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, s.log); err != nil {
		log.Printf("[conversation] failed to persist log: %v", err)
	}
}

func (s *Service) newMessage(text string, sender chat.Sender, kind chat.Kind) chat.Message {
	return chat.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/voidworks/venting-vault/backend/internal/model/chat"
	"github.com/voidworks/venting-vault/backend/internal/model/companion"
	"github.com/voidworks/venting-vault/backend/internal/service/moderation"
	"github.com/voidworks/venting-vault/backend/internal/store"
)

type stubGenerator struct {
	reply      string
	err        error
	textCalls  int
	voiceCalls int
}

func (g *stubGenerator) GenerateReply(_ context.Context, _ []chat.Message, _ string) (string, error) {
	g.textCalls++
	return g.reply, g.err
}

func (g *stubGenerator) GenerateVoiceReply(_ context.Context, _ chat.VoiceArtifact) (string, error) {
	g.voiceCalls++
	return g.reply, g.err
}

type stubModerator struct {
	verdict moderation.Verdict
	release chan struct{}
}

func (m *stubModerator) Classify(ctx context.Context, _ string) moderation.Verdict {
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
		}
	}
	return m.verdict
}

func safeModerator() *stubModerator {
	return &stubModerator{verdict: moderation.Verdict{Safe: true, Category: moderation.CategorySafe}}
}

func newTestService(gen Generator, mod Moderator) *Service {
	return NewService(companion.Default(), gen, mod, store.NewMemoryStore(), nil)
}

func TestSubmitTextAppendsUserThenAssistant(t *testing.T) {
	gen := &stubGenerator{reply: "I hear you. That sounds heavy."}
	svc := newTestService(gen, safeModerator())

	msgs, err := svc.SubmitText(context.Background(), "  I feel exhausted  ")
	if err != nil {
		t.Fatalf("SubmitText err: %v", err)
	}
	svc.DrainReviews()

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Sender != chat.SenderUser || msgs[0].Text != "I feel exhausted" {
		t.Fatalf("unexpected user message: %+v", msgs[0])
	}
	if msgs[1].Sender != chat.SenderAssistant || msgs[1].Text != gen.reply {
		t.Fatalf("unexpected assistant message: %+v", msgs[1])
	}
	if gen.textCalls != 1 {
		t.Fatalf("expected exactly one generation call, got %d", gen.textCalls)
	}
}

func TestSubmitTextRejectsEmptyInput(t *testing.T) {
	gen := &stubGenerator{reply: "unused"}
	svc := newTestService(gen, safeModerator())

	if _, err := svc.SubmitText(context.Background(), "   \n\t"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if len(svc.Messages()) != 0 {
		t.Fatal("log must stay unchanged on rejected input")
	}
	if gen.textCalls != 0 {
		t.Fatal("no generation call expected for rejected input")
	}
}

func TestSubmitTextGenerationFailureAppendsFallback(t *testing.T) {
	gen := &stubGenerator{err: errors.New("upstream down")}
	svc := newTestService(gen, safeModerator())

	msgs, err := svc.SubmitText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SubmitText err: %v", err)
	}

	if len(msgs) != 2 {
		t.Fatalf("expected user + fallback, got %d messages", len(msgs))
	}
	fallback := msgs[1]
	if fallback.Sender != chat.SenderSystem {
		t.Fatalf("fallback must be a system message, got %s", fallback.Sender)
	}
	if fallback.Text != companion.Default().TextFallbackLine {
		t.Fatalf("unexpected fallback text: %q", fallback.Text)
	}
	for _, m := range msgs {
		if m.Sender == chat.SenderAssistant {
			t.Fatal("no assistant message expected on generation failure")
		}
	}
}

func TestUnsafeVerdictAppendsOneCrisisMessage(t *testing.T) {
	gen := &stubGenerator{reply: "I hear how heavy this is."}
	mod := &stubModerator{verdict: moderation.Verdict{Safe: false, Category: moderation.CategorySelfHarm}}
	svc := newTestService(gen, mod)

	if _, err := svc.SubmitText(context.Background(), "i want to die"); err != nil {
		t.Fatalf("SubmitText err: %v", err)
	}
	svc.DrainReviews()

	msgs := svc.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected user+assistant+crisis, got %d messages", len(msgs))
	}
	crisis := msgs[2]
	if !crisis.IsCrisis() {
		t.Fatalf("expected crisis message, got %+v", crisis)
	}
	if crisis.Sender != chat.SenderSystem {
		t.Fatalf("crisis notice must be system-authored, got %s", crisis.Sender)
	}
	if crisis.Text != companion.Default().CrisisLine {
		t.Fatalf("unexpected crisis text: %q", crisis.Text)
	}
	if crisis.Escalation != companion.Default().Lifeline {
		t.Fatalf("crisis must carry the lifeline, got %q", crisis.Escalation)
	}
}

func TestViolenceVerdictPicksViolenceCopy(t *testing.T) {
	gen := &stubGenerator{reply: "Please stay calm."}
	mod := &stubModerator{verdict: moderation.Verdict{Safe: false, Category: moderation.CategoryViolence}}
	svc := newTestService(gen, mod)

	if _, err := svc.SubmitText(context.Background(), "threat"); err != nil {
		t.Fatalf("SubmitText err: %v", err)
	}
	svc.DrainReviews()

	msgs := svc.Messages()
	if got := msgs[len(msgs)-1].Text; got != companion.Default().CrisisViolenceLine {
		t.Fatalf("unexpected crisis text for violence: %q", got)
	}
}

func TestCrisisSupersedesLateReply(t *testing.T) {
	svc := newTestService(&stubGenerator{}, safeModerator())

	userMsg := svc.newMessage("i want to die", chat.SenderUser, chat.KindText)
	svc.appendAndPersist(context.Background(), userMsg)
	svc.appendCrisis(moderation.Verdict{Safe: false, Category: moderation.CategorySelfHarm})

	msgs := svc.completeTurn(context.Background(), userMsg, "a stale reply", nil, false)

	if len(msgs) != 2 {
		t.Fatalf("stale reply must be dropped, got %d messages", len(msgs))
	}
	if !msgs[1].IsCrisis() {
		t.Fatalf("crisis must remain the last message, got %+v", msgs[1])
	}
}

func TestCancelReviewDiscardsVerdict(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	mod := &stubModerator{
		verdict: moderation.Verdict{Safe: false, Category: moderation.CategorySelfHarm},
		release: make(chan struct{}),
	}
	svc := newTestService(gen, mod)

	if _, err := svc.SubmitText(context.Background(), "hello"); err != nil {
		t.Fatalf("SubmitText err: %v", err)
	}

	msgs := svc.Messages()
	turnID := msgs[0].ID
	svc.CancelReview(turnID)
	svc.DrainReviews()

	for _, m := range svc.Messages() {
		if m.IsCrisis() {
			t.Fatal("cancelled review must not append a crisis message")
		}
	}
}

func TestSubmitVoiceStoresPlaceholderAndArtifactFields(t *testing.T) {
	gen := &stubGenerator{reply: "I heard you."}
	svc := newTestService(gen, safeModerator())

	artifact := chat.VoiceArtifact{
		Ref:             "/tmp/vault-rec-1.m4a",
		MIME:            "audio/mp4",
		Data:            []byte{0x00, 0x01},
		DurationSeconds: 5,
	}
	msgs, err := svc.SubmitVoice(context.Background(), artifact)
	if err != nil {
		t.Fatalf("SubmitVoice err: %v", err)
	}
	svc.DrainReviews()

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	voice := msgs[0]
	if voice.Text != "Voice Message" || voice.Kind != chat.KindVoice {
		t.Fatalf("unexpected voice message: %+v", voice)
	}
	if voice.VoiceRef != artifact.Ref || voice.DurationSeconds != 5 {
		t.Fatalf("artifact fields lost: %+v", voice)
	}
	if gen.voiceCalls != 1 {
		t.Fatalf("expected exactly one voice generation call, got %d", gen.voiceCalls)
	}
}

func TestSubmitVoiceFailureUsesVoiceFallback(t *testing.T) {
	gen := &stubGenerator{err: errors.New("upstream down")}
	svc := newTestService(gen, safeModerator())

	msgs, err := svc.SubmitVoice(context.Background(), chat.VoiceArtifact{Ref: "r", DurationSeconds: 3})
	if err != nil {
		t.Fatalf("SubmitVoice err: %v", err)
	}
	if got := msgs[len(msgs)-1].Text; got != companion.Default().VoiceFallbackLine {
		t.Fatalf("unexpected voice fallback: %q", got)
	}
}

func TestInsertPromptAppendsReflectivePrompt(t *testing.T) {
	svc := newTestService(&stubGenerator{}, safeModerator())

	msg, err := svc.InsertPrompt(context.Background())
	if err != nil {
		t.Fatalf("InsertPrompt err: %v", err)
	}
	if msg.Sender != chat.SenderAssistant {
		t.Fatalf("prompt must come from the companion, got %s", msg.Sender)
	}

	found := false
	for _, p := range companion.Default().ReflectivePrompts {
		if p == msg.Text {
			found = true
		}
	}
	if !found {
		t.Fatalf("prompt text not from the configured list: %q", msg.Text)
	}
	if len(svc.Messages()) != 1 {
		t.Fatal("prompt must be appended to the log")
	}
}

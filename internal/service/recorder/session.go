package recorder

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/voidworks/venting-vault/backend/internal/model/chat"
)

// State is the capture session's position in its lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateCapturing  State = "capturing"
	StateLocked     State = "locked"
	StateCancelled  State = "cancelled"
	StateFinalizing State = "finalizing"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrCaptureActive     = errors.New("a recording is already active")
	ErrNoActiveCapture   = errors.New("no active recording")
	ErrRecordingTooShort = errors.New("recording too short to send")
)

// Microphone is the exclusive capture resource. The voice websocket
// session implements it over buffered client chunks.
type Microphone interface {
	RequestPermission(ctx context.Context) (bool, error)
	Start(ctx context.Context) error
	// Stop ends capture and returns the materialized artifact. The
	// session fills in the duration from its own clock.
	Stop(ctx context.Context) (chat.VoiceArtifact, error)
}

// Sink receives the finalized artifact. The conversation orchestrator
// implements it.
type Sink interface {
	SubmitVoice(ctx context.Context, artifact chat.VoiceArtifact) ([]chat.Message, error)
}

// Session is the singleton voice capture state machine. Every path out
// of Capturing/Locked releases the microphone and lands back in Idle.
type Session struct {
	mu        sync.Mutex
	state     State
	mic       Microphone
	sink      Sink
	startedAt time.Time
	now       func() time.Time
}

// NewSession creates an idle capture session.
func NewSession(mic Microphone, sink Sink) *Session {
	return &Session{
		state: StateIdle,
		mic:   mic,
		sink:  sink,
		now:   time.Now,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start acquires the microphone and begins capturing. A denied
// permission leaves the session Idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrCaptureActive
	}

	granted, err := s.mic.RequestPermission(ctx)
	if err != nil || !granted {
		if err != nil {
			log.Printf("[recorder] permission request failed: %v", err)
		}
		return ErrPermissionDenied
	}

	if err := s.mic.Start(ctx); err != nil {
		return err
	}

	s.state = StateCapturing
	s.startedAt = s.now()
	return nil
}

// Lock keeps capture running without continued user contact.
func (s *Session) Lock() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCapturing {
		return ErrNoActiveCapture
	}
	s.state = StateLocked
	return nil
}

// Cancel stops capture and discards the artifact. The stop error is
// logged, not propagated; the microphone is considered released either
// way and the session returns to Idle.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCapturing && s.state != StateLocked {
		return ErrNoActiveCapture
	}

	s.state = StateCancelled
	if _, err := s.mic.Stop(ctx); err != nil {
		log.Printf("[recorder] stop failed during cancel: %v", err)
	}
	s.state = StateIdle
	return nil
}

// Send finalizes the capture and hands the artifact to the sink. A
// zero-length recording is rejected without any state transition.
func (s *Session) Send(ctx context.Context) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCapturing && s.state != StateLocked {
		return nil, ErrNoActiveCapture
	}

	elapsed := int(s.now().Sub(s.startedAt).Seconds())
	if elapsed == 0 {
		return nil, ErrRecordingTooShort
	}

	s.state = StateFinalizing
	artifact, err := s.mic.Stop(ctx)
	s.state = StateIdle
	if err != nil {
		return nil, err
	}

	artifact.DurationSeconds = elapsed
	return s.sink.SubmitVoice(ctx, artifact)
}

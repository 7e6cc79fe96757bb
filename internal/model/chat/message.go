package chat

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderSystem    Sender = "system"
)

// Kind distinguishes how a message is rendered and which lifecycle
// rules apply to it.
type Kind string

const (
	KindText   Kind = "text"
	KindVoice  Kind = "voice"
	KindCrisis Kind = "crisis"
)

// Message is one immutable entry of the vault log. Only the log's
// membership ever changes; a message is never edited after append.
type Message struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	Sender          Sender    `json:"sender"`
	Kind            Kind      `json:"kind"`
	Timestamp       time.Time `json:"timestamp"`
	VoiceRef        string    `json:"voiceRef,omitempty"`
	DurationSeconds int       `json:"durationSeconds,omitempty"`
	// Escalation carries the external contact a crisis message must be
	// able to invoke, e.g. "tel:988". Empty for non-crisis messages.
	Escalation string `json:"escalation,omitempty"`
}

// IsCrisis reports whether the message supersedes assistant replies for
// its turn.
func (m Message) IsCrisis() bool {
	return m.Kind == KindCrisis
}

// VoiceArtifact is the transient result of a finalized recording. Only
// Ref and DurationSeconds survive on the persisted message; Data lives
// for the current process only.
type VoiceArtifact struct {
	Ref             string
	MIME            string
	Data            []byte
	DurationSeconds int
}

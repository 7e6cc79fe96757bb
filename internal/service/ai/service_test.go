package ai

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/voidworks/venting-vault/backend/internal/model/chat"
)

func TestBuildHistoryMessagesWindowAndFilter(t *testing.T) {
	var messages []chat.Message
	for i := 0; i < 12; i++ {
		messages = append(messages, chat.Message{
			Text:   fmt.Sprintf("user %d", i),
			Sender: chat.SenderUser,
			Kind:   chat.KindText,
		})
	}
	messages = append(messages,
		chat.Message{Text: "fallback copy", Sender: chat.SenderSystem, Kind: chat.KindText},
		chat.Message{Text: "crisis copy", Sender: chat.SenderAssistant, Kind: chat.KindCrisis},
		chat.Message{Text: "a reply", Sender: chat.SenderAssistant, Kind: chat.KindText},
	)

	history := buildHistoryMessages(messages)

	// The query takes the window's last slot, so history carries one
	// message fewer than the full window.
	if len(history) != historyLimit-1 {
		t.Fatalf("expected window of %d, got %d", historyLimit-1, len(history))
	}
	for _, msg := range history {
		if msg.Content == "fallback copy" || msg.Content == "crisis copy" {
			t.Fatalf("filtered message leaked into history: %q", msg.Content)
		}
	}
	last := history[len(history)-1]
	if last.Role != schema.Assistant || last.Content != "a reply" {
		t.Fatalf("unexpected last history message: %+v", last)
	}
}

func TestBuildHistoryMessagesEmptyLog(t *testing.T) {
	if got := buildHistoryMessages(nil); got != nil {
		t.Fatalf("expected nil history, got %+v", got)
	}
}

func TestVoicePartsBuildsDataURI(t *testing.T) {
	artifact := chat.VoiceArtifact{
		MIME: "audio/mp4",
		Data: []byte{0x00, 0x01, 0x02},
	}

	parts := voiceParts(artifact)

	if len(parts) != 2 {
		t.Fatalf("expected text+media pair, got %d parts", len(parts))
	}
	if parts[0].Type != schema.ChatMessagePartTypeText || parts[0].Text == "" {
		t.Fatalf("unexpected text part: %+v", parts[0])
	}
	if parts[1].Type != schema.ChatMessagePartTypeImageURL || parts[1].ImageURL == nil {
		t.Fatalf("unexpected media part: %+v", parts[1])
	}
	if !strings.HasPrefix(parts[1].ImageURL.URL, "data:audio/mp4;base64,") {
		t.Fatalf("unexpected data URI: %q", parts[1].ImageURL.URL)
	}
}

func TestBuildWakeUpPromptSingleDay(t *testing.T) {
	prompt := buildWakeUpPrompt("User: rough week", 26)

	if !strings.Contains(prompt, "1 day (26 hours)") {
		t.Fatalf("unexpected gap phrasing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "User: rough week") {
		t.Fatalf("context lines missing:\n%s", prompt)
	}
}

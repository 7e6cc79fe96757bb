package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/voidworks/venting-vault/backend/internal/model/chat"
	"github.com/voidworks/venting-vault/backend/internal/model/companion"
)

// historyLimit bounds the context window sent with each turn. The
// query message occupies the window's last slot.
const historyLimit = 10

// voiceLeadIn is the text half of a multimodal voice turn.
const voiceLeadIn = "Please listen to this audio and respond."

// Service is the generation backend: it turns vault history plus one
// user input into a companion reply.
type Service struct {
	chatModel model.ChatModel
	comp      companion.Companion
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the reply chain around the supplied chat model.
func NewService(ctx context.Context, chatModel model.ChatModel, comp companion.Companion) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		comp:      comp,
		chain:     runnable,
	}, nil
}

// GenerateReply produces the companion's answer to a text turn. The
// history window is bounded here so callers can pass the full log.
func (s *Service) GenerateReply(ctx context.Context, history []chat.Message, userText string) (string, error) {
	input := map[string]any{
		"system":  BuildSystemDirective(s.comp),
		"history": buildHistoryMessages(history),
		"query":   userText,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run reply chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", fmt.Errorf("reply chain returned empty content")
	}

	log.Printf("[ai] generated reply, length=%d", len(response.Content))
	return response.Content, nil
}

// GenerateVoiceReply sends a finalized recording as a multimodal turn.
// The audio rides inside an image_url-shaped part as a base64 data URI;
// voiceParts is the single place that builds the pair.
func (s *Service) GenerateVoiceReply(ctx context.Context, artifact chat.VoiceArtifact) (string, error) {
	messages := []*schema.Message{
		{
			Role:    schema.System,
			Content: BuildSystemDirective(s.comp),
		},
		{
			Role:         schema.User,
			MultiContent: voiceParts(artifact),
		},
	}

	response, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to generate voice reply: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", fmt.Errorf("voice reply returned empty content")
	}

	log.Printf("[ai] generated voice reply, length=%d", len(response.Content))
	return response.Content, nil
}

// GenerateGreeting asks for a short contextual welcome-back line after
// an absence. contextLines holds the recent conversation as
// role-labeled lines.
func (s *Service) GenerateGreeting(ctx context.Context, contextLines string, gapHours int) (string, error) {
	wakeUpPrompt := buildWakeUpPrompt(contextLines, gapHours)

	messages := []*schema.Message{
		{Role: schema.System, Content: BuildSystemDirective(s.comp)},
		{Role: schema.User, Content: wakeUpPrompt},
	}

	response, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to generate greeting: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", fmt.Errorf("greeting returned empty content")
	}
	return strings.TrimSpace(response.Content), nil
}

// buildHistoryMessages keeps the last historyLimit-1 user/assistant
// messages, leaving room for the query inside the window; system and
// crisis entries never enter the model context.
func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	filtered := make([]chat.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Sender {
		case chat.SenderUser, chat.SenderAssistant:
			if msg.Kind == chat.KindCrisis {
				continue
			}
			filtered = append(filtered, msg)
		}
	}

	startIdx := 0
	if len(filtered) > historyLimit-1 {
		startIdx = len(filtered) - (historyLimit - 1)
	}

	history := make([]*schema.Message, 0, len(filtered)-startIdx)
	for _, msg := range filtered[startIdx:] {
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.SenderAssistant:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}

	return history
}

func voiceParts(artifact chat.VoiceArtifact) []schema.ChatMessagePart {
	mime := artifact.MIME
	if mime == "" {
		mime = "audio/mp4"
	}
	uri := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(artifact.Data))

	return []schema.ChatMessagePart{
		{
			Type: schema.ChatMessagePartTypeText,
			Text: voiceLeadIn,
		},
		{
			Type: schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{
				URL: uri,
			},
		},
	}
}

package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Category labels a safety verdict.
type Category string

const (
	CategorySafe     Category = "SAFE"
	CategorySelfHarm Category = "SELF_HARM"
	CategoryViolence Category = "VIOLENCE"
	CategoryOther    Category = "OTHER"
)

// Verdict is the outcome of reviewing one completed turn.
type Verdict struct {
	Safe     bool     `json:"safe"`
	Category Category `json:"category"`
	Reason   string   `json:"reason"`
}

// safeVerdict is what every failure path collapses to. Review is an
// overlay on the conversation; it must never block or break it.
func safeVerdict() Verdict {
	return Verdict{Safe: true, Category: CategorySafe}
}

const guardianSystemPrompt = `You are a dedicated Safety Guardian.
Your ONLY job is to detect immediate self-harm, suicide, or severe violence risks in the user's message.

Analyze the user's message.
Return ONLY a valid JSON object.

Format:
{
  "safe": boolean,
  "category": "SAFE" | "SELF_HARM" | "VIOLENCE" | "OTHER",
  "reason": "short explanation"
}

Definitions:
- SELF_HARM: "kill myself", "want to die", cutting, overdose, suicide planning.
- VIOLENCE: Explicit threats to kill or harm others.
- SAFE: Venting, sadness, frustration, "I want to kill this workout", "I'm dying of embarrassment".`

// verdictSchema validates the model's JSON before it is trusted. A
// verdict that fails validation is treated like any other malformed
// output and dropped.
const verdictSchema = `{
	"type": "object",
	"required": ["safe", "category"],
	"properties": {
		"safe": {"type": "boolean"},
		"category": {"enum": ["SAFE", "SELF_HARM", "VIOLENCE", "OTHER"]},
		"reason": {"type": "string"}
	}
}`

// Service reviews completed turns with a dedicated review model.
type Service struct {
	reviewModel model.ChatModel
	schema      *jsonschema.Schema
}

// NewService creates the review stage. A nil reviewModel produces a
// disabled service whose verdicts are always safe.
func NewService(reviewModel model.ChatModel) (*Service, error) {
	compiled, err := jsonschema.CompileString("verdict.json", verdictSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile verdict schema: %w", err)
	}
	return &Service{reviewModel: reviewModel, schema: compiled}, nil
}

// Enabled reports whether a review model is wired in.
func (s *Service) Enabled() bool {
	return s != nil && s.reviewModel != nil
}

// Classify reviews the combined text of one turn. Every failure mode,
// backend error, empty output, malformed JSON, schema violation, yields
// a safe verdict with the anomaly logged. The log line is the audit
// trail for tuning; the caller only acts on unsafe verdicts.
func (s *Service) Classify(ctx context.Context, combined string) Verdict {
	if !s.Enabled() {
		return safeVerdict()
	}

	messages := []*schema.Message{
		{Role: schema.System, Content: guardianSystemPrompt},
		{Role: schema.User, Content: combined},
	}

	response, err := s.reviewModel.Generate(ctx, messages)
	if err != nil {
		log.Printf("[moderation] review generate failed, defaulting safe: %v", err)
		return safeVerdict()
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		log.Printf("[moderation] review returned empty content, defaulting safe")
		return safeVerdict()
	}

	verdict, err := parseVerdict(s.schema, response.Content)
	if err != nil {
		log.Printf("[moderation] verdict parse failed, defaulting safe: %v", err)
		return safeVerdict()
	}

	if !verdict.Safe {
		log.Printf("[moderation] unsafe verdict category=%s reason=%q", verdict.Category, verdict.Reason)
	}
	return verdict
}

// parseVerdict strips markdown fences, extracts the outermost JSON
// object, validates it against the verdict schema, then decodes it.
func parseVerdict(compiled *jsonschema.Schema, content string) (Verdict, error) {
	cleaned := strings.ReplaceAll(content, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end <= start {
		return Verdict{}, fmt.Errorf("missing json object")
	}
	raw := cleaned[start : end+1]

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Verdict{}, err
	}
	if err := compiled.Validate(doc); err != nil {
		return Verdict{}, fmt.Errorf("verdict schema violation: %w", err)
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return Verdict{}, err
	}
	return verdict, nil
}

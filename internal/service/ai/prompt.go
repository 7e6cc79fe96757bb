package ai

import (
	"fmt"
	"strings"

	"github.com/voidworks/venting-vault/backend/internal/model/companion"
)

// wakeUpTemplate asks for a one-line greeting after a long absence. The
// placeholders are days, day-word, hours, and the recent context lines.
const wakeUpTemplate = `The user has returned after %d %s (%d hours).

Their last conversation was:
%s

Write a short, warm, one-sentence welcome back message. Reference something specific from their last conversation. Be empathetic and check in on how that situation is going. Keep it under 15 words. Do not use quotes or markdown.`

// BuildSystemDirective returns the companion's persona directive. An
// unset directive falls back to a bare listening stance so generation
// still works with a partially configured companion.
func BuildSystemDirective(comp companion.Companion) string {
	directive := strings.TrimSpace(comp.SystemDirective)
	if directive == "" {
		directive = fmt.Sprintf("You are %s, a calm and supportive companion. Listen and respond briefly.", comp.Name)
	}
	return directive
}

func buildWakeUpPrompt(contextLines string, gapHours int) string {
	daysAgo := gapHours / 24
	dayWord := "days"
	if daysAgo == 1 {
		dayWord = "day"
	}
	if contextLines == "" {
		contextLines = "(no recent conversation)"
	}
	return fmt.Sprintf(wakeUpTemplate, daysAgo, dayWord, gapHours, contextLines)
}

package companion

// Companion captures the fixed identity and copy the conversation core
// speaks with. Passing it explicitly keeps services free of ambient
// "current identity" references.
type Companion struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	SystemDirective string `json:"-"`
	WelcomeLine     string `json:"welcomeLine"`
	// Fallback copy shown when the generation backend fails; the voice
	// variant is used for turns that originated from a recording.
	TextFallbackLine  string `json:"-"`
	VoiceFallbackLine string `json:"-"`
	// Crisis copy by moderation category.
	CrisisLine         string `json:"-"`
	CrisisViolenceLine string `json:"-"`
	// Lifeline is the external escalation contact a crisis message must
	// be able to invoke.
	Lifeline string `json:"lifeline"`
	// ReflectivePrompts seed the "shadow prompt" feature.
	ReflectivePrompts []string `json:"-"`
}

// Default returns the Sentinel companion the vault ships with.
func Default() Companion {
	return Companion{
		ID:   "sentinel",
		Name: "Sentinel",
		SystemDirective: `You are Sentinel. You are a stoic, compassionate, and protective companion.
Your goal is to listen and validate the user's feelings.
Keep your responses concise (under 3 sentences), warm, and grounding.
Do not offer clinical advice. Do not try to "fix" the problem immediately. Just be there.`,
		WelcomeLine:        "The Vault is open. I am listening. What is weighing on you?",
		TextFallbackLine:   "The connection is weak...",
		VoiceFallbackLine:  "I cannot hear you clearly...",
		CrisisLine:         "I detect significant distress. You do not have to carry this alone. Please connect with a human lifeline.",
		CrisisViolenceLine: "I detect unsafe content. Please prioritize safety.",
		Lifeline:           "tel:988",
		ReflectivePrompts: []string{
			"What is the heaviest thing you carried today?",
			"Who are you protecting by staying silent?",
			"If you could scream one sentence without consequence, what would it be?",
			"What part of yourself feels like it is dying?",
			"What are you grieving that isn't a person?",
		},
	}
}

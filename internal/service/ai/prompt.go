package ai

import (
	"fmt"
	"strings"
)

// PromptBuilder assembles the system prompt for the doctor assistant.
type PromptBuilder struct {
	categoryHints map[string]string
}

// NewPromptBuilder returns a builder with the default category hints.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		categoryHints: map[string]string{
			"general":      "The patient has a general health question.",
			"prescription": "The patient is asking about a prescription, refill or medication.",
			"appointment":  "The patient is asking about booking, moving or cancelling an appointment.",
			"report":       "The patient is asking about test results or medical reports.",
		},
	}
}

// SystemPrompt returns the prompt for a chat category.
func (b *PromptBuilder) SystemPrompt(category string) string {
	hint, ok := b.categoryHints[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		hint = b.categoryHints["general"]
	}

	rules := []string{
		"Acknowledge the message in at most two short sentences.",
		"Never diagnose, prescribe or change a dosage.",
		"Tell the patient a doctor will review the conversation.",
		"If the message describes an emergency, tell the patient to call local emergency services now.",
	}

	return fmt.Sprintf(`You are the intake assistant of a clinic's patient portal chat.
%s

Rules:
- %s`, hint, strings.Join(rules, "\n- "))
}

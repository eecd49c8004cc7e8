// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_dialogue

// Policies is the receptionist's scripted utterance and keyword table.
// Keyword matching against transcripts is case-insensitive substring
// containment throughout.
type Policies struct {
	Greeting string

	Questions map[SlotName]string

	ConfirmTemplate string
	Fallback        string
	HandoffLine     string

	BusinessHoursMessage string
	VoicemailPrompt      string

	SchedulingIntentKeywords  []string
	InformationIntentKeywords []string
	AffirmativeKeywords       []string
	NegativeKeywords          []string
	ClosingKeywords           []string

	EscalationKeywords []string
	// EscalationThreshold is the number of consecutive turns without
	// forward progress before the call is handed to a human.
	EscalationThreshold int
}

// DefaultPolicies returns the stock receptionist script.
func DefaultPolicies() Policies {
	return Policies{
		Greeting: "Hello! Thank you for calling. How can I help you today?",

		Questions: map[SlotName]string{
			SlotName_Name:          "Could you please tell me your name?",
			SlotName_Phone:         "What's the best phone number to reach you at?",
			SlotName_Reason:        "What's the reason for your call today?",
			SlotName_PreferredTime: "What time would work best for you?",
		},

		ConfirmTemplate: "Let me confirm: %s at %s, scheduling for %s. Is that correct?",
		Fallback:        "I apologize, but I didn't quite understand. Could you please repeat that?",
		HandoffLine:     "Let me transfer you to a human representative who can better assist you.",

		BusinessHoursMessage: "Thank you for calling. Our business hours are Monday through Friday, 9 AM to 5 PM. Please leave a message and we'll get back to you.",
		VoicemailPrompt:      "Please leave your name, phone number, and a brief message after the tone.",

		SchedulingIntentKeywords:  []string{"appointment", "schedule"},
		InformationIntentKeywords: []string{"information", "hours"},
		AffirmativeKeywords:       []string{"yes", "correct", "right"},
		NegativeKeywords:          []string{"no", "wrong"},
		ClosingKeywords:           []string{"no", "nothing", "that's all"},

		EscalationKeywords:  []string{"frustrated", "angry", "manager", "supervisor", "human", "representative"},
		EscalationThreshold: 3,
	}
}

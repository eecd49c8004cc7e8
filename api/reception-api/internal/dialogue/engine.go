// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_dialogue

import (
	"context"
	"fmt"
	"strings"
)

// RulesEngine is the deterministic turn-taking state machine:
//
//	greet → identify_intent → collect_slots → confirm → schedule → wrap_up
//
// with wrap_up looping back to identify_intent or terminating the dialogue.
// Step is pure given (state, slots, attemptCount, transcript); malformed
// input never raises — lack of progress is the only failure signal, handled
// by the escalation rule.
type RulesEngine struct {
	policies Policies
}

func NewRulesEngine(policies Policies) *RulesEngine {
	return &RulesEngine{policies: policies}
}

// Step computes one dialogue turn. The escalation rule is cross-cutting and
// checked before the normal transition: an attempt count at or above the
// threshold, or an escalation keyword in the transcript, short-circuits to
// an escalate outcome (either condition suffices).
func (e *RulesEngine) Step(_ context.Context, input StepInput) (*StepResult, error) {
	transcript := strings.TrimSpace(input.Transcript)
	lower := strings.ToLower(transcript)
	slots := input.Slots.Clone()

	if input.AttemptCount >= e.policies.EscalationThreshold || containsAny(lower, e.policies.EscalationKeywords) {
		return &StepResult{
			State:        input.State,
			Utterance:    e.policies.HandoffLine,
			Slots:        slots,
			AttemptCount: input.AttemptCount,
			Escalate:     true,
		}, nil
	}

	switch input.State {
	case StateGreet:
		return &StepResult{
			State:     StateIdentifyIntent,
			Utterance: e.policies.Greeting,
			Slots:     slots,
		}, nil

	case StateIdentifyIntent:
		return e.identifyIntent(lower, slots), nil

	case StateCollectSlots:
		return e.collectSlots(transcript, slots, input.AttemptCount), nil

	case StateConfirm:
		return e.confirm(lower, slots, input.AttemptCount), nil

	case StateSchedule:
		return &StepResult{
			State:     StateWrapUp,
			Utterance: "Excellent! Your appointment has been scheduled. You'll receive a confirmation shortly. Is there anything else I can help you with?",
			Slots:     slots,
		}, nil

	case StateWrapUp:
		if containsAny(lower, e.policies.ClosingKeywords) {
			return &StepResult{
				State:     StateGreet,
				Utterance: "Thank you for calling. Have a wonderful day!",
				Slots:     slots,
				Done:      true,
			}, nil
		}
		return &StepResult{
			State:     StateIdentifyIntent,
			Utterance: "How else can I assist you today?",
			Slots:     slots,
		}, nil

	default:
		// Unknown state: recover to the logical reset point.
		return &StepResult{
			State:     StateGreet,
			Utterance: "I apologize, but something went wrong. Let me start over. How can I help you today?",
			Slots:     slots,
		}, nil
	}
}

func (e *RulesEngine) identifyIntent(lower string, slots Slots) *StepResult {
	if containsAny(lower, e.policies.SchedulingIntentKeywords) {
		slots.Set(SlotName_Intent, IntentScheduleAppointment)
		return &StepResult{
			State:     StateCollectSlots,
			Utterance: "I'd be happy to help you schedule an appointment. " + e.policies.Questions[SlotName_Name],
			Slots:     slots,
		}
	}

	if containsAny(lower, e.policies.InformationIntentKeywords) {
		return &StepResult{
			State:     StateWrapUp,
			Utterance: "Our business hours are Monday through Friday, 9 AM to 5 PM. Is there anything else I can help you with?",
			Slots:     slots,
		}
	}

	slots.Set(SlotName_Intent, IntentGeneralInquiry)
	return &StepResult{
		State:     StateCollectSlots,
		Utterance: "I understand you need assistance. " + e.policies.Questions[SlotName_Name],
		Slots:     slots,
	}
}

// collectSlots fills exactly one empty slot, in fixed order, per turn with a
// present transcript. An empty transcript fills nothing and counts as a turn
// without progress.
func (e *RulesEngine) collectSlots(transcript string, slots Slots, attemptCount int) *StepResult {
	if transcript == "" {
		return &StepResult{
			State:        StateCollectSlots,
			Utterance:    "Could you please provide that information again?",
			Slots:        slots,
			AttemptCount: attemptCount + 1,
		}
	}

	if slots[SlotName_Name] == "" {
		slots.Set(SlotName_Name, transcript)
		return &StepResult{
			State:     StateCollectSlots,
			Utterance: "Thank you. And " + lowerFirst(e.policies.Questions[SlotName_Phone]),
			Slots:     slots,
		}
	}

	if slots[SlotName_Phone] == "" {
		slots.Set(SlotName_Phone, transcript)
		return &StepResult{
			State:     StateCollectSlots,
			Utterance: "Great! What time would work best for your appointment?",
			Slots:     slots,
		}
	}

	if slots[SlotName_PreferredTime] == "" {
		slots.Set(SlotName_PreferredTime, transcript)
		return &StepResult{
			State: StateConfirm,
			Utterance: fmt.Sprintf(e.policies.ConfirmTemplate,
				slots[SlotName_Name], slots[SlotName_Phone], slots[SlotName_PreferredTime]),
			Slots: slots,
		}
	}

	return &StepResult{
		State:        StateCollectSlots,
		Utterance:    "Could you please provide that information again?",
		Slots:        slots,
		AttemptCount: attemptCount + 1,
	}
}

func (e *RulesEngine) confirm(lower string, slots Slots, attemptCount int) *StepResult {
	if containsAny(lower, e.policies.AffirmativeKeywords) {
		return &StepResult{
			State:     StateSchedule,
			Utterance: "Perfect! I'm scheduling that appointment for you now.",
			Slots:     slots,
		}
	}

	if containsAny(lower, e.policies.NegativeKeywords) {
		return &StepResult{
			State:     StateCollectSlots,
			Utterance: "No problem. Let's start over. " + e.policies.Questions[SlotName_Name],
			Slots:     Slots{},
		}
	}

	return &StepResult{
		State:        StateConfirm,
		Utterance:    "I didn't catch that. Is the information I read back correct?",
		Slots:        slots,
		AttemptCount: attemptCount + 1,
	}
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

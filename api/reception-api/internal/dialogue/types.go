// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_dialogue

import (
	"context"
	"fmt"
)

// State enumerates the turn-taking dialogue states.
type State string

const (
	StateGreet          State = "greet"
	StateIdentifyIntent State = "identify_intent"
	StateCollectSlots   State = "collect_slots"
	StateConfirm        State = "confirm"
	StateSchedule       State = "schedule"
	StateWrapUp         State = "wrap_up"
)

// SlotName is the closed set of information the receptionist collects.
type SlotName string

const (
	SlotName_Intent        SlotName = "intent"
	SlotName_Name          SlotName = "name"
	SlotName_Phone         SlotName = "phone"
	SlotName_Reason        SlotName = "reason"
	SlotName_PreferredTime SlotName = "preferred_time"
)

// Intent values stored under SlotName_Intent.
const (
	IntentScheduleAppointment = "schedule_appointment"
	IntentGeneralInquiry      = "general_inquiry"
)

var knownSlots = map[SlotName]bool{
	SlotName_Intent:        true,
	SlotName_Name:          true,
	SlotName_Phone:         true,
	SlotName_Reason:        true,
	SlotName_PreferredTime: true,
}

// Slots maps collected slot names to values. Writes are validated against
// the closed slot-name set.
type Slots map[SlotName]string

// Set stores value under name, rejecting names outside the closed set.
func (s Slots) Set(name SlotName, value string) error {
	if !knownSlots[name] {
		return fmt.Errorf("unknown slot name %q", name)
	}
	s[name] = value
	return nil
}

// Clone returns an independent copy so that a step never mutates its input.
func (s Slots) Clone() Slots {
	out := make(Slots, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// StepInput is everything a decision turn may depend on. Given identical
// inputs, a deterministic engine returns identical results.
type StepInput struct {
	State        State
	Slots        Slots
	AttemptCount int
	Transcript   string
}

// StepResult is the outcome of one dialogue turn.
type StepResult struct {
	State        State
	Utterance    string
	Slots        Slots
	AttemptCount int
	// Done means the caller has no further needs and the dialogue ends.
	Done bool
	// Escalate short-circuits the dialogue toward a human transfer.
	Escalate bool
}

// Engine decides the next turn. The rules engine is pure and synchronous;
// the OpenAI engine reaches out over the network, hence ctx and error.
type Engine interface {
	Step(ctx context.Context, input StepInput) (*StepResult, error)
}

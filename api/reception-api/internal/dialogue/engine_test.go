package internal_dialogue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *RulesEngine {
	return NewRulesEngine(DefaultPolicies())
}

func mustStep(t *testing.T, e *RulesEngine, input StepInput) *StepResult {
	t.Helper()
	result, err := e.Step(context.Background(), input)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

// ============================================================================
// Determinism
// ============================================================================

func TestStep_Deterministic(t *testing.T) {
	e := newTestEngine()
	input := StepInput{
		State:      StateIdentifyIntent,
		Slots:      Slots{},
		Transcript: "I'd like to schedule an appointment",
	}

	first := mustStep(t, e, input)
	for i := 0; i < 10; i++ {
		again := mustStep(t, e, input)
		assert.Equal(t, first, again, "identical inputs must produce identical outputs")
	}
}

func TestStep_DoesNotMutateInputSlots(t *testing.T) {
	e := newTestEngine()
	slots := Slots{}
	mustStep(t, e, StepInput{State: StateIdentifyIntent, Slots: slots, Transcript: "schedule"})
	assert.Empty(t, slots, "input slots must not be mutated")
}

// ============================================================================
// Greet and intent identification
// ============================================================================

func TestStep_GreetAdvancesUnconditionally(t *testing.T) {
	e := newTestEngine()

	for _, transcript := range []string{"", "hello", "anything at all"} {
		result := mustStep(t, e, StepInput{State: StateGreet, Slots: Slots{}, Transcript: transcript})
		assert.Equal(t, StateIdentifyIntent, result.State)
		assert.Equal(t, "Hello! Thank you for calling. How can I help you today?", result.Utterance)
		assert.Zero(t, result.AttemptCount)
	}
}

func TestStep_IdentifyIntent_Scheduling(t *testing.T) {
	e := newTestEngine()

	for _, transcript := range []string{
		"I'd like to schedule an appointment",
		"APPOINTMENT please",
		"can we schedule something",
	} {
		result := mustStep(t, e, StepInput{State: StateIdentifyIntent, Slots: Slots{}, Transcript: transcript})
		assert.Equal(t, StateCollectSlots, result.State, transcript)
		assert.Equal(t, IntentScheduleAppointment, result.Slots[SlotName_Intent])
		assert.Contains(t, result.Utterance, "tell me your name")
	}
}

func TestStep_IdentifyIntent_Information(t *testing.T) {
	e := newTestEngine()
	result := mustStep(t, e, StepInput{State: StateIdentifyIntent, Slots: Slots{}, Transcript: "what are your hours?"})
	assert.Equal(t, StateWrapUp, result.State)
	assert.Contains(t, result.Utterance, "Monday through Friday")
}

func TestStep_IdentifyIntent_FallsBackToGeneralInquiry(t *testing.T) {
	e := newTestEngine()
	result := mustStep(t, e, StepInput{State: StateIdentifyIntent, Slots: Slots{}, Transcript: "umm I have a thing"})
	assert.Equal(t, StateCollectSlots, result.State)
	assert.Equal(t, IntentGeneralInquiry, result.Slots[SlotName_Intent])
}

// ============================================================================
// Slot filling
// ============================================================================

func TestStep_SlotFillingOrder(t *testing.T) {
	e := newTestEngine()

	// First turn fills name.
	result := mustStep(t, e, StepInput{State: StateCollectSlots, Slots: Slots{}, Transcript: "John Smith"})
	assert.Equal(t, StateCollectSlots, result.State)
	assert.Equal(t, "John Smith", result.Slots[SlotName_Name])
	assert.Empty(t, result.Slots[SlotName_Phone])

	// Second turn fills phone, not name again.
	result = mustStep(t, e, StepInput{State: result.State, Slots: result.Slots, Transcript: "555-123-4567"})
	assert.Equal(t, StateCollectSlots, result.State)
	assert.Equal(t, "John Smith", result.Slots[SlotName_Name])
	assert.Equal(t, "555-123-4567", result.Slots[SlotName_Phone])

	// Third turn fills preferred time and advances to confirm.
	result = mustStep(t, e, StepInput{State: result.State, Slots: result.Slots, Transcript: "tomorrow at 2pm"})
	assert.Equal(t, StateConfirm, result.State)
	assert.Equal(t, "tomorrow at 2pm", result.Slots[SlotName_PreferredTime])
	assert.Contains(t, result.Utterance, "John Smith")
	assert.Contains(t, result.Utterance, "555-123-4567")
	assert.Contains(t, result.Utterance, "tomorrow at 2pm")
}

func TestStep_EmptyTranscriptDoesNotFillSlot(t *testing.T) {
	e := newTestEngine()

	result := mustStep(t, e, StepInput{State: StateCollectSlots, Slots: Slots{}, Transcript: "   "})
	assert.Equal(t, StateCollectSlots, result.State)
	assert.Empty(t, result.Slots[SlotName_Name])
	assert.Equal(t, 1, result.AttemptCount)
}

func TestStep_TranscriptIsTrimmedIntoSlot(t *testing.T) {
	e := newTestEngine()
	result := mustStep(t, e, StepInput{State: StateCollectSlots, Slots: Slots{}, Transcript: "  Jane Doe  "})
	assert.Equal(t, "Jane Doe", result.Slots[SlotName_Name])
}

// ============================================================================
// Confirmation
// ============================================================================

func filledSlots() Slots {
	return Slots{
		SlotName_Intent:        IntentScheduleAppointment,
		SlotName_Name:          "John Smith",
		SlotName_Phone:         "555-123-4567",
		SlotName_PreferredTime: "tomorrow at 2pm",
	}
}

func TestStep_ConfirmAffirmative(t *testing.T) {
	e := newTestEngine()
	result := mustStep(t, e, StepInput{State: StateConfirm, Slots: filledSlots(), Transcript: "yes that's right"})
	assert.Equal(t, StateSchedule, result.State)
	assert.Zero(t, result.AttemptCount)
}

func TestStep_ConfirmNegativeClearsSlots(t *testing.T) {
	e := newTestEngine()
	result := mustStep(t, e, StepInput{State: StateConfirm, Slots: filledSlots(), Transcript: "no that's wrong"})
	assert.Equal(t, StateCollectSlots, result.State)
	assert.Empty(t, result.Slots)
}

func TestStep_ConfirmUnrecognizedReprompts(t *testing.T) {
	e := newTestEngine()
	result := mustStep(t, e, StepInput{State: StateConfirm, Slots: filledSlots(), Transcript: "banana"})
	assert.Equal(t, StateConfirm, result.State)
	assert.Equal(t, 1, result.AttemptCount)
	assert.Contains(t, result.Utterance, "didn't catch that")
}

// ============================================================================
// Escalation
// ============================================================================

func TestStep_EscalatesAtThreshold(t *testing.T) {
	e := newTestEngine()
	threshold := DefaultPolicies().EscalationThreshold

	// One below threshold: a no-progress turn reaches the threshold.
	result := mustStep(t, e, StepInput{
		State:        StateCollectSlots,
		Slots:        Slots{},
		AttemptCount: threshold - 1,
		Transcript:   "",
	})
	assert.False(t, result.Escalate)
	assert.Equal(t, threshold, result.AttemptCount)

	// The following turn escalates regardless of transcript content.
	for _, transcript := range []string{"", "John Smith", "yes"} {
		next := mustStep(t, e, StepInput{
			State:        result.State,
			Slots:        result.Slots,
			AttemptCount: result.AttemptCount,
			Transcript:   transcript,
		})
		assert.True(t, next.Escalate, "transcript %q", transcript)
		assert.Equal(t, DefaultPolicies().HandoffLine, next.Utterance)
	}
}

func TestStep_EscalatesOnKeyword(t *testing.T) {
	e := newTestEngine()

	for _, transcript := range []string{
		"I want to speak to a manager",
		"give me a HUMAN",
		"I am so frustrated with this",
	} {
		result := mustStep(t, e, StepInput{State: StateCollectSlots, Slots: Slots{}, Transcript: transcript})
		assert.True(t, result.Escalate, transcript)
	}
}

func TestStep_EitherEscalationConditionSuffices(t *testing.T) {
	e := newTestEngine()

	// Keyword alone, attempt count zero.
	byKeyword := mustStep(t, e, StepInput{State: StateConfirm, Slots: filledSlots(), Transcript: "supervisor now"})
	assert.True(t, byKeyword.Escalate)

	// Threshold alone, benign transcript.
	byThreshold := mustStep(t, e, StepInput{State: StateConfirm, Slots: filledSlots(), AttemptCount: 3, Transcript: "yes"})
	assert.True(t, byThreshold.Escalate)
}

// ============================================================================
// Schedule and wrap up
// ============================================================================

func TestStep_ScheduleAdvancesToWrapUp(t *testing.T) {
	e := newTestEngine()
	result := mustStep(t, e, StepInput{State: StateSchedule, Slots: filledSlots(), Transcript: ""})
	assert.Equal(t, StateWrapUp, result.State)
	assert.Contains(t, result.Utterance, "has been scheduled")
}

func TestStep_WrapUpClosing(t *testing.T) {
	e := newTestEngine()
	result := mustStep(t, e, StepInput{State: StateWrapUp, Slots: Slots{}, Transcript: "no that's all"})
	assert.True(t, result.Done)
	assert.Equal(t, StateGreet, result.State)
}

func TestStep_WrapUpLoopsBackToIntent(t *testing.T) {
	e := newTestEngine()
	result := mustStep(t, e, StepInput{State: StateWrapUp, Slots: Slots{}, Transcript: "actually one more thing"})
	assert.False(t, result.Done)
	assert.Equal(t, StateIdentifyIntent, result.State)
}

func TestStep_UnknownStateRecoversToGreet(t *testing.T) {
	e := newTestEngine()
	result := mustStep(t, e, StepInput{State: State("bogus"), Slots: Slots{}, Transcript: "hello"})
	assert.Equal(t, StateGreet, result.State)
}

// ============================================================================
// End-to-end scripted conversation
// ============================================================================

func TestStep_FullSchedulingConversation(t *testing.T) {
	e := newTestEngine()

	state := StateGreet
	slots := Slots{}
	attempts := 0

	advance := func(transcript string) *StepResult {
		result := mustStep(t, e, StepInput{State: state, Slots: slots, AttemptCount: attempts, Transcript: transcript})
		state = result.State
		slots = result.Slots
		attempts = result.AttemptCount
		return result
	}

	r := advance("hi")
	assert.Equal(t, StateIdentifyIntent, state)

	r = advance("I'd like to schedule an appointment")
	assert.Equal(t, StateCollectSlots, state)
	assert.Equal(t, IntentScheduleAppointment, slots[SlotName_Intent])

	advance("John Smith")
	advance("555-123-4567")
	r = advance("tomorrow at 2pm")
	assert.Equal(t, StateConfirm, state)

	r = advance("yes")
	assert.Equal(t, StateSchedule, state)

	r = advance("")
	assert.Equal(t, StateWrapUp, state)

	r = advance("no that's all")
	assert.True(t, r.Done)
	assert.Equal(t, "Thank you for calling. Have a wonderful day!", r.Utterance)
}

// ============================================================================
// Slots
// ============================================================================

func TestSlots_SetRejectsUnknownName(t *testing.T) {
	s := Slots{}
	assert.Error(t, s.Set(SlotName("favorite_color"), "blue"))
	assert.NoError(t, s.Set(SlotName_Name, "John"))
}

func TestSlots_CloneIsIndependent(t *testing.T) {
	s := Slots{SlotName_Name: "John"}
	c := s.Clone()
	c[SlotName_Name] = "Jane"
	assert.Equal(t, "John", s[SlotName_Name])
}

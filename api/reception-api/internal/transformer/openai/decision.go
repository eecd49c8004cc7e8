// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_transformer_openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	internal_dialogue "github.com/rapidaai/reception/api/reception-api/internal/dialogue"
	"github.com/rapidaai/reception/pkg/commons"
)

const systemPromptTemplate = `You are an AI receptionist running a turn-taking dialogue.
Current state: %s. Collected slots: %s. Consecutive turns without progress: %d.
Valid states: greet, identify_intent, collect_slots, confirm, schedule, wrap_up.
Respond with a single JSON object: {"next_state": string, "utterance": string,
"slots": {string: string}, "done": bool, "escalate": bool}. Collect the caller's
name, phone and preferred appointment time in that order. Escalate when the
caller is frustrated or asks for a human.`

type decisionEngine struct {
	client   openai.Client
	logger   commons.Logger
	model    string
	policies internal_dialogue.Policies
}

// NewDecisionEngine creates the LLM-backed dialogue engine. It honours the
// same state and slot vocabulary as the rules engine but delegates the
// transition choice to a chat model.
func NewDecisionEngine(logger commons.Logger, apiKey string, policies internal_dialogue.Policies) (internal_dialogue.Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("illegal vault config key is not found")
	}
	return &decisionEngine{
		client:   openai.NewClient(option.WithAPIKey(apiKey)),
		logger:   logger,
		model:    openai.ChatModelGPT4o,
		policies: policies,
	}, nil
}

type decisionPayload struct {
	NextState string            `json:"next_state"`
	Utterance string            `json:"utterance"`
	Slots     map[string]string `json:"slots"`
	Done      bool              `json:"done"`
	Escalate  bool              `json:"escalate"`
}

func (d *decisionEngine) Step(ctx context.Context, input internal_dialogue.StepInput) (*internal_dialogue.StepResult, error) {
	// The progress-based escalation rule stays deterministic even with an
	// LLM choosing transitions.
	if input.AttemptCount >= d.policies.EscalationThreshold {
		return &internal_dialogue.StepResult{
			State:        input.State,
			Utterance:    d.policies.HandoffLine,
			Slots:        input.Slots.Clone(),
			AttemptCount: input.AttemptCount,
			Escalate:     true,
		}, nil
	}

	slotsJSON, _ := json.Marshal(input.Slots)
	system := fmt.Sprintf(systemPromptTemplate, input.State, slotsJSON, input.AttemptCount)

	completion, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: d.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(input.Transcript),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decision request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("decision request returned no choices")
	}

	return d.toResult(input, completion.Choices[0].Message.Content), nil
}

// toResult parses the model output leniently. Anything unusable falls back
// to a same-state reprompt; a malformed model reply must not end the call.
func (d *decisionEngine) toResult(input internal_dialogue.StepInput, content string) *internal_dialogue.StepResult {
	var payload decisionPayload
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "{"); idx >= 0 {
		content = content[idx:]
		if end := strings.LastIndex(content, "}"); end >= 0 {
			content = content[:end+1]
		}
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil || payload.Utterance == "" {
		d.logger.Warnw("unparseable decision payload, reprompting",
			"state", string(input.State),
			"error", fmt.Sprint(err),
		)
		return &internal_dialogue.StepResult{
			State:        input.State,
			Utterance:    d.policies.Fallback,
			Slots:        input.Slots.Clone(),
			AttemptCount: input.AttemptCount + 1,
		}
	}

	slots := input.Slots.Clone()
	for name, value := range payload.Slots {
		// Writes outside the closed slot set are discarded.
		_ = slots.Set(internal_dialogue.SlotName(name), value)
	}

	nextState := internal_dialogue.State(payload.NextState)
	switch nextState {
	case internal_dialogue.StateGreet, internal_dialogue.StateIdentifyIntent,
		internal_dialogue.StateCollectSlots, internal_dialogue.StateConfirm,
		internal_dialogue.StateSchedule, internal_dialogue.StateWrapUp:
	default:
		nextState = input.State
	}

	attempts := 0
	if nextState == input.State && len(payload.Slots) == 0 {
		attempts = input.AttemptCount + 1
	}

	return &internal_dialogue.StepResult{
		State:        nextState,
		Utterance:    payload.Utterance,
		Slots:        slots,
		AttemptCount: attempts,
		Done:         payload.Done,
		Escalate:     payload.Escalate,
	}
}

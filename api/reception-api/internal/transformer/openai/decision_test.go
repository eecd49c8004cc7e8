// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_transformer_openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_dialogue "github.com/rapidaai/reception/api/reception-api/internal/dialogue"
	"github.com/rapidaai/reception/pkg/commons"
)

// ====================================
// Helpers
// ====================================

func testLogger() commons.Logger {
	logger, _ := commons.NewApplicationLogger()
	return logger
}

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := map[string]interface{}{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "gpt-4o",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]interface{}{
						"role":    "assistant",
						"content": content,
					},
				},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
}

func engineAgainst(srv *httptest.Server) *decisionEngine {
	return &decisionEngine{
		client:   openai.NewClient(option.WithAPIKey("test-key"), option.WithBaseURL(srv.URL+"/")),
		logger:   testLogger(),
		model:    openai.ChatModelGPT4o,
		policies: internal_dialogue.DefaultPolicies(),
	}
}

// ====================================
// Constructor
// ====================================

func TestNewDecisionEngine_RequiresKey(t *testing.T) {
	_, err := NewDecisionEngine(testLogger(),"", internal_dialogue.DefaultPolicies())
	assert.Error(t, err)

	engine, err := NewDecisionEngine(testLogger(),"sk-test", internal_dialogue.DefaultPolicies())
	require.NoError(t, err)
	assert.NotNil(t, engine)
}

// ====================================
// Step
// ====================================

func TestStep_ParsesModelDecision(t *testing.T) {
	payload := `{"next_state":"collect_slots","utterance":"Could you please tell me your name?","slots":{"intent":"schedule_appointment"},"done":false,"escalate":false}`
	srv := completionServer(t, payload)
	defer srv.Close()

	engine := engineAgainst(srv)
	result, err := engine.Step(context.Background(), internal_dialogue.StepInput{
		State:      internal_dialogue.StateIdentifyIntent,
		Slots:      internal_dialogue.Slots{},
		Transcript: "I'd like to book an appointment",
	})
	require.NoError(t, err)

	assert.Equal(t, internal_dialogue.StateCollectSlots, result.State)
	assert.Equal(t, "Could you please tell me your name?", result.Utterance)
	assert.Equal(t, "schedule_appointment", result.Slots[internal_dialogue.SlotName_Intent])
	assert.False(t, result.Done)
	assert.False(t, result.Escalate)
	assert.Zero(t, result.AttemptCount)
}

func TestStep_StripsCodeFenceAroundJSON(t *testing.T) {
	payload := "```json\n{\"next_state\":\"confirm\",\"utterance\":\"Is that correct?\",\"slots\":{},\"done\":false,\"escalate\":false}\n```"
	srv := completionServer(t, payload)
	defer srv.Close()

	engine := engineAgainst(srv)
	result, err := engine.Step(context.Background(), internal_dialogue.StepInput{
		State:      internal_dialogue.StateCollectSlots,
		Slots:      internal_dialogue.Slots{},
		Transcript: "tomorrow at 2pm",
	})
	require.NoError(t, err)
	assert.Equal(t, internal_dialogue.StateConfirm, result.State)
}

func TestStep_MalformedPayloadReprompts(t *testing.T) {
	srv := completionServer(t, "sure, happy to help!")
	defer srv.Close()

	engine := engineAgainst(srv)
	result, err := engine.Step(context.Background(), internal_dialogue.StepInput{
		State:        internal_dialogue.StateCollectSlots,
		Slots:        internal_dialogue.Slots{},
		AttemptCount: 1,
		Transcript:   "hmm",
	})
	require.NoError(t, err)

	assert.Equal(t, internal_dialogue.StateCollectSlots, result.State)
	assert.Equal(t, internal_dialogue.DefaultPolicies().Fallback, result.Utterance)
	assert.Equal(t, 2, result.AttemptCount)
	assert.False(t, result.Escalate)
}

func TestStep_UnknownStateStaysPut(t *testing.T) {
	payload := `{"next_state":"teleport","utterance":"Okay.","slots":{},"done":false,"escalate":false}`
	srv := completionServer(t, payload)
	defer srv.Close()

	engine := engineAgainst(srv)
	result, err := engine.Step(context.Background(), internal_dialogue.StepInput{
		State:      internal_dialogue.StateConfirm,
		Slots:      internal_dialogue.Slots{},
		Transcript: "yes",
	})
	require.NoError(t, err)
	assert.Equal(t, internal_dialogue.StateConfirm, result.State)
}

func TestStep_ThresholdEscalatesWithoutModelCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("model must not be consulted once the escalation threshold is reached")
	}))
	defer srv.Close()

	engine := engineAgainst(srv)
	policies := internal_dialogue.DefaultPolicies()

	result, err := engine.Step(context.Background(), internal_dialogue.StepInput{
		State:        internal_dialogue.StateCollectSlots,
		Slots:        internal_dialogue.Slots{},
		AttemptCount: policies.EscalationThreshold,
		Transcript:   "anything",
	})
	require.NoError(t, err)
	assert.True(t, result.Escalate)
	assert.Equal(t, policies.HandoffLine, result.Utterance)
}

func TestStep_RequestFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	engine := engineAgainst(srv)
	// Avoid the SDK's default retry budget slowing the suite down.
	engine.client = openai.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0),
	)

	_, err := engine.Step(context.Background(), internal_dialogue.StepInput{
		State:      internal_dialogue.StateGreet,
		Slots:      internal_dialogue.Slots{},
		Transcript: "hello",
	})
	assert.Error(t, err)
}

// ====================================
// Slot filtering
// ====================================

func TestToResult_DiscardsUnknownSlots(t *testing.T) {
	engine := &decisionEngine{
		logger:   testLogger(),
		policies: internal_dialogue.DefaultPolicies(),
	}
	payload := `{"next_state":"collect_slots","utterance":"ok","slots":{"name":"John","favorite_color":"blue"},"done":false,"escalate":false}`

	result := engine.toResult(internal_dialogue.StepInput{
		State: internal_dialogue.StateCollectSlots,
		Slots: internal_dialogue.Slots{},
	}, payload)

	assert.Equal(t, "John", result.Slots[internal_dialogue.SlotName_Name])
	_, exists := result.Slots["favorite_color"]
	assert.False(t, exists)
}

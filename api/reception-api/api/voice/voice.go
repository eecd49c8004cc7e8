// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package reception_voice_api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	internal_session "github.com/rapidaai/reception/api/reception-api/internal/session"
	internal_signature "github.com/rapidaai/reception/api/reception-api/internal/signature"
	"github.com/rapidaai/reception/config"
	"github.com/rapidaai/reception/pkg/commons"
	"github.com/rapidaai/reception/pkg/utils"
)

// Carrier webhook signature headers (Telnyx names; Twilio requests are
// normalized by the carrier edge before reaching this service).
const (
	HeaderSignature = "telnyx-signature-ed25519"
	HeaderTimestamp = "telnyx-timestamp"
)

// VoiceApi exposes the carrier-facing webhook and media endpoints.
type VoiceApi struct {
	cfg      *config.AppConfig
	logger   commons.Logger
	verifier *internal_signature.Verifier
	manager  *internal_session.Manager
}

func NewVoiceApi(
	cfg *config.AppConfig,
	logger commons.Logger,
	verifier *internal_signature.Verifier,
	manager *internal_session.Manager,
) *VoiceApi {
	return &VoiceApi{
		cfg:      cfg,
		logger:   logger,
		verifier: verifier,
		manager:  manager,
	}
}

// webhookEnvelope is the carrier lifecycle event wire shape.
type webhookEnvelope struct {
	Data struct {
		EventType string `json:"event_type"`
		Payload   struct {
			CallControlID string `json:"call_control_id"`
			From          string `json:"from"`
			To            string `json:"to"`
			RecordingURLs struct {
				MP3 string `json:"mp3"`
			} `json:"recording_urls"`
		} `json:"payload"`
	} `json:"data"`
}

// Events receives signed carrier lifecycle events. The signature is checked
// against the exact raw body before anything is decoded; an invalid
// signature never reaches session logic. Valid events are acknowledged
// immediately and dispatched asynchronously.
//
// @Router /v1/voice/events [post]
func (vApi *VoiceApi) Events(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return
	}

	signature := c.GetHeader(HeaderSignature)
	timestamp := c.GetHeader(HeaderTimestamp)
	if !vApi.verifier.Verify(signature, timestamp, rawBody) {
		vApi.logger.Warnw("rejected webhook with invalid signature",
			"remote", c.ClientIP(),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
		return
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event payload"})
		return
	}

	event := internal_session.Event{
		Type:         envelope.Data.EventType,
		CallID:       envelope.Data.Payload.CallControlID,
		CallerNumber: envelope.Data.Payload.From,
		CalleeNumber: envelope.Data.Payload.To,
		RecordingURL: envelope.Data.Payload.RecordingURLs.MP3,
	}
	if event.CallID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event without call_control_id"})
		return
	}

	// Dispatch on a background context: the ack below must not race the
	// client closing the request.
	utils.Go(context.Background(), func() {
		if err := vApi.manager.Dispatch(event); err != nil {
			vApi.logger.Errorw("event dispatch failed",
				"type", event.Type, "call", event.CallID, "error", err)
		}
	})

	c.JSON(http.StatusOK, gin.H{"received": true})
}

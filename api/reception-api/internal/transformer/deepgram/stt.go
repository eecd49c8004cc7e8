// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_transformer_deepgram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listen "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	internal_type "github.com/rapidaai/reception/api/reception-api/internal/type"
	"github.com/rapidaai/reception/pkg/commons"
)

// liveClient is the slice of the SDK websocket client this adapter needs.
type liveClient interface {
	Connect() bool
	WriteBinary(data []byte) error
	Stop()
}

type deepgramSpeechToText struct {
	logger commons.Logger
	option *DeepgramOption
}

// NewDeepgramSpeechToText creates the Deepgram streaming recognition adapter.
func NewDeepgramSpeechToText(logger commons.Logger, apiKey string, opts map[string]interface{}) (internal_type.SpeechToText, error) {
	option, err := NewDeepgramOption(logger, apiKey, opts)
	if err != nil {
		return nil, err
	}
	return &deepgramSpeechToText{logger: logger, option: option}, nil
}

// Start opens one live transcription websocket for the session. The SDK
// invokes the callback methods from its read loop, which preserves the
// chronological, at-most-once-per-segment ordering the contract requires.
func (d *deepgramSpeechToText) Start(ctx context.Context, sessionID string, events internal_type.SpeechEvents) (internal_type.SpeechToTextHandle, error) {
	callback := &transcriptCallback{
		logger:    d.logger,
		sessionID: sessionID,
		events:    events,
	}

	client, err := listen.NewWSUsingCallback(
		ctx,
		d.option.GetKey(),
		&interfaces.ClientOptions{EnableKeepAlive: true},
		d.option.SpeechToTextOptions().ToLiveTranscriptionOptions(),
		callback,
	)
	if err != nil {
		return nil, &internal_type.StreamingProviderError{Provider: "deepgram", Err: err}
	}
	if !client.Connect() {
		return nil, &internal_type.StreamingProviderError{
			Provider: "deepgram",
			Err:      fmt.Errorf("failed to open live transcription for session %s", sessionID),
		}
	}

	d.logger.Debugf("deepgram stream opened: session=%s", sessionID)
	return &deepgramHandle{client: client}, nil
}

type deepgramHandle struct {
	client liveClient

	mu      sync.Mutex
	stopped bool
}

func (h *deepgramHandle) Send(frame internal_type.MediaFrame) error {
	h.mu.Lock()
	stopped := h.stopped
	h.mu.Unlock()
	if stopped {
		return fmt.Errorf("recognition stream already stopped")
	}
	if err := h.client.WriteBinary(frame.Payload); err != nil {
		return &internal_type.StreamingProviderError{Provider: "deepgram", Err: err}
	}
	return nil
}

func (h *deepgramHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}
	h.stopped = true
	h.client.Stop()
	return nil
}

// transcriptCallback adapts SDK events onto the SpeechEvents contract.
// Partial transcripts are advisory; only finals reach the dialogue.
type transcriptCallback struct {
	logger    commons.Logger
	sessionID string
	events    internal_type.SpeechEvents
}

func (c *transcriptCallback) Open(_ *msginterfaces.OpenResponse) error {
	c.logger.Debugf("deepgram open: session=%s", c.sessionID)
	if c.events.OnOpen != nil {
		c.events.OnOpen()
	}
	return nil
}

func (c *transcriptCallback) Message(mr *msginterfaces.MessageResponse) error {
	if mr == nil || len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	text := strings.TrimSpace(mr.Channel.Alternatives[0].Transcript)
	if text == "" {
		return nil
	}
	if mr.IsFinal {
		if c.events.OnFinal != nil {
			c.events.OnFinal(text)
		}
		return nil
	}
	if c.events.OnPartial != nil {
		c.events.OnPartial(text)
	}
	return nil
}

func (c *transcriptCallback) Metadata(_ *msginterfaces.MetadataResponse) error {
	return nil
}

func (c *transcriptCallback) SpeechStarted(_ *msginterfaces.SpeechStartedResponse) error {
	return nil
}

func (c *transcriptCallback) UtteranceEnd(_ *msginterfaces.UtteranceEndResponse) error {
	return nil
}

func (c *transcriptCallback) Close(_ *msginterfaces.CloseResponse) error {
	c.logger.Debugf("deepgram closed: session=%s", c.sessionID)
	return nil
}

func (c *transcriptCallback) Error(er *msginterfaces.ErrorResponse) error {
	err := &internal_type.StreamingProviderError{
		Provider: "deepgram",
		Err:      fmt.Errorf("%s: %s", er.ErrCode, er.ErrMsg),
	}
	c.logger.Errorf("deepgram stream error: session=%s err=%v", c.sessionID, err)
	if c.events.OnError != nil {
		c.events.OnError(err)
	}
	return nil
}

func (c *transcriptCallback) UnhandledEvent(byData []byte) error {
	c.logger.Debugf("deepgram unhandled event: session=%s bytes=%d", c.sessionID, len(byData))
	return nil
}

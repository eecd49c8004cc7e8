// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_telnyx_telephony

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	internal_telephony "github.com/rapidaai/reception/api/reception-api/internal/telephony"
	"github.com/rapidaai/reception/pkg/commons"
)

const defaultBaseURL = "https://api.telnyx.com/v2"

type tlx struct {
	client *resty.Client
	logger commons.Logger
}

// Option configures the Telnyx carrier.
type Option func(*tlx)

// WithBaseURL points the client at a different API host. Used by tests.
func WithBaseURL(baseURL string) Option {
	return func(t *tlx) { t.client.SetBaseURL(baseURL) }
}

// NewTelnyx creates the Telnyx Call Control v2 carrier client.
func NewTelnyx(logger commons.Logger, apiKey string, opts ...Option) internal_telephony.Carrier {
	client := resty.New().
		SetBaseURL(defaultBaseURL).
		SetAuthToken(apiKey).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")

	t := &tlx{client: client, logger: logger}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *tlx) Name() string { return "telnyx" }

func (t *tlx) Answer(ctx context.Context, callID string) error {
	t.logger.Debugf("telnyx answer: call=%s", callID)
	return t.action(ctx, "answer", callID, map[string]interface{}{})
}

func (t *tlx) StartStream(ctx context.Context, callID, mediaEndpoint string) error {
	t.logger.Debugf("telnyx streaming_start: call=%s endpoint=%s", callID, mediaEndpoint)
	return t.action(ctx, "streaming_start", callID, map[string]interface{}{
		"stream_url":   mediaEndpoint,
		"stream_track": "both_tracks",
	})
}

func (t *tlx) Speak(ctx context.Context, callID string, audio []byte) error {
	t.logger.Debugf("telnyx playback_start: call=%s bytes=%d", callID, len(audio))
	return t.action(ctx, "playback_start", callID, map[string]interface{}{
		"audio_url": "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(audio),
	})
}

func (t *tlx) Transfer(ctx context.Context, callID, destination string) error {
	t.logger.Infof("telnyx transfer: call=%s to=%s", callID, destination)
	return t.action(ctx, "transfer", callID, map[string]interface{}{
		"to": destination,
	})
}

func (t *tlx) VerifyCallerID(ctx context.Context, number string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"phone_number": number}).
		Post("/caller_ids")
	return t.wrap("verify_caller_id", number, resp, err)
}

func (t *tlx) action(ctx context.Context, name, callID string, body map[string]interface{}) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(fmt.Sprintf("/calls/%s/actions/%s", callID, name))
	return t.wrap(name, callID, resp, err)
}

// wrap classifies a resty outcome into a CarrierError. Network failures and
// server-side conditions (5xx, 429) are retryable; other rejections are not.
func (t *tlx) wrap(operation, callID string, resp *resty.Response, err error) error {
	if err != nil {
		return &internal_telephony.CarrierError{
			Operation: operation,
			CallID:    callID,
			Retryable: true,
			Err:       err,
		}
	}
	if resp.IsError() {
		status := resp.StatusCode()
		return &internal_telephony.CarrierError{
			Operation:  operation,
			CallID:     callID,
			StatusCode: status,
			Retryable:  status >= http.StatusInternalServerError || status == http.StatusTooManyRequests,
			Err:        fmt.Errorf("telnyx returned %s", resp.Status()),
		}
	}
	return nil
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_transformer_playht

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	internal_type "github.com/rapidaai/reception/api/reception-api/internal/type"
	"github.com/rapidaai/reception/pkg/commons"
	"github.com/rapidaai/reception/pkg/utils"
)

const defaultBaseURL = "https://api.play.ht"

// chunkSize is 100 ms of 8 kHz µ-law mono audio per yielded chunk.
const chunkSize = 800

type playHTTextToSpeech struct {
	client *resty.Client
	logger commons.Logger
	opts   utils.Option
}

// Option configures the PlayHT adapter.
type Option func(*playHTTextToSpeech)

// WithBaseURL points the client at a different API host. Used by tests.
func WithBaseURL(baseURL string) Option {
	return func(p *playHTTextToSpeech) { p.client.SetBaseURL(baseURL) }
}

// NewPlayHTTextToSpeech creates the PlayHT streaming synthesis adapter.
func NewPlayHTTextToSpeech(logger commons.Logger, apiKey, userID string, opts utils.Option, options ...Option) (internal_type.TextToSpeech, error) {
	if apiKey == "" || userID == "" {
		return nil, fmt.Errorf("illegal vault config key or user id is not found")
	}
	client := resty.New().
		SetBaseURL(defaultBaseURL).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetHeader("X-USER-ID", userID).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)

	p := &playHTTextToSpeech{client: client, logger: logger, opts: opts}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// Synthesize posts the utterance and yields the audio response body in
// fixed-size chunks as it streams in.
func (p *playHTTextToSpeech) Synthesize(ctx context.Context, text string, voice internal_type.VoiceProfile) (internal_type.SynthesisStream, error) {
	voiceID := voice.VoiceID
	if voiceID == "" {
		voiceID = p.opts.GetString("speak.voice.id", "larry")
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetBody(map[string]interface{}{
			"text":          text,
			"voice":         voiceID,
			"output_format": "mulaw",
			"sample_rate":   8000,
			"speed":         1,
		}).
		Post("/api/v2/tts/stream")
	if err != nil {
		return nil, &internal_type.StreamingProviderError{Provider: "playht", Err: err}
	}
	if resp.StatusCode() >= 400 {
		resp.RawBody().Close()
		return nil, &internal_type.StreamingProviderError{
			Provider: "playht",
			Err:      fmt.Errorf("synthesis rejected with status %d", resp.StatusCode()),
		}
	}

	stream := &bodyStream{chunks: make(chan []byte, 8)}
	utils.Go(ctx, func() {
		body := resp.RawBody()
		defer body.Close()
		stream.pump(body)
	})
	return stream, nil
}

type bodyStream struct {
	chunks chan []byte

	mu  sync.Mutex
	err error
}

func (s *bodyStream) Chunks() <-chan []byte { return s.chunks }

func (s *bodyStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *bodyStream) pump(body io.Reader) {
	defer close(s.chunks)
	for {
		buf := make([]byte, chunkSize)
		n, err := io.ReadFull(body, buf)
		if n > 0 {
			s.chunks <- buf[:n]
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return
		}
		if err != nil {
			s.mu.Lock()
			s.err = &internal_type.StreamingProviderError{Provider: "playht", Err: err}
			s.mu.Unlock()
			return
		}
	}
}

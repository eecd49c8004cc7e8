// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_transformer_elevenlabs

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	internal_type "github.com/rapidaai/reception/api/reception-api/internal/type"
	"github.com/rapidaai/reception/pkg/commons"
	"github.com/rapidaai/reception/pkg/utils"
)

const defaultEndpoint = "wss://api.elevenlabs.io"

// DefaultVoiceID is used when neither the session's voice profile nor the
// provider options name one.
const DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

type elevenLabsTextToSpeech struct {
	logger   commons.Logger
	key      string
	opts     utils.Option
	endpoint string
}

// Option configures the ElevenLabs adapter.
type Option func(*elevenLabsTextToSpeech)

// WithEndpoint points the adapter at a different websocket host. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(e *elevenLabsTextToSpeech) { e.endpoint = endpoint }
}

// NewElevenLabsTextToSpeech creates the ElevenLabs streaming synthesis
// adapter. Output is requested as 8 kHz µ-law, the telephone carrier's
// native format, so chunks go onto the media stream without transcoding.
func NewElevenLabsTextToSpeech(logger commons.Logger, apiKey string, opts utils.Option, options ...Option) (internal_type.TextToSpeech, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("illegal vault config key is not found")
	}
	e := &elevenLabsTextToSpeech{
		logger:   logger,
		key:      apiKey,
		opts:     opts,
		endpoint: defaultEndpoint,
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// wire message shapes for the stream-input websocket.
type synthesisRequest struct {
	Text                 string         `json:"text"`
	VoiceSettings        *voiceSettings `json:"voice_settings,omitempty"`
	TryTriggerGeneration bool           `json:"try_trigger_generation,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type synthesisResponse struct {
	Audio   string  `json:"audio,omitempty"`
	IsFinal *bool   `json:"isFinal,omitempty"`
	Error   *string `json:"error,omitempty"`
}

// Synthesize opens a stream-input websocket, writes the utterance, and
// yields decoded audio chunks in playback order. The stream is finite and
// not restartable.
func (e *elevenLabsTextToSpeech) Synthesize(ctx context.Context, text string, voice internal_type.VoiceProfile) (internal_type.SynthesisStream, error) {
	voiceID := voice.VoiceID
	if voiceID == "" {
		voiceID = e.opts.GetString("speak.voice.id", DefaultVoiceID)
	}
	model := e.opts.GetString("speak.model", "eleven_monolingual_v1")

	wsURL := fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=ulaw_8000",
		e.endpoint, voiceID, model)

	header := http.Header{}
	header.Set("xi-api-key", e.key)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, &internal_type.StreamingProviderError{Provider: "elevenlabs", Err: err}
	}

	messages := []synthesisRequest{
		{Text: " ", VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.8}},
		{Text: text + " ", TryTriggerGeneration: true},
		{Text: ""}, // end of input
	}
	for _, msg := range messages {
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			return nil, &internal_type.StreamingProviderError{Provider: "elevenlabs", Err: err}
		}
	}

	stream := newStream()
	utils.Go(ctx, func() {
		defer conn.Close()
		e.pump(conn, stream)
	})
	return stream, nil
}

func (e *elevenLabsTextToSpeech) pump(conn *websocket.Conn, stream *synthesisStream) {
	for {
		var resp synthesisResponse
		if err := conn.ReadJSON(&resp); err != nil {
			stream.fail(&internal_type.StreamingProviderError{Provider: "elevenlabs", Err: err})
			return
		}
		if resp.Error != nil {
			stream.fail(&internal_type.StreamingProviderError{
				Provider: "elevenlabs",
				Err:      fmt.Errorf("synthesis rejected: %s", *resp.Error),
			})
			return
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				stream.fail(&internal_type.StreamingProviderError{Provider: "elevenlabs", Err: err})
				return
			}
			stream.push(chunk)
		}
		if resp.IsFinal != nil && *resp.IsFinal {
			stream.finish()
			return
		}
	}
}

// synthesisStream is the channel-backed SynthesisStream implementation
// shared by the websocket pump above.
type synthesisStream struct {
	chunks chan []byte

	mu  sync.Mutex
	err error
}

func newStream() *synthesisStream {
	return &synthesisStream{chunks: make(chan []byte, 8)}
}

func (s *synthesisStream) Chunks() <-chan []byte { return s.chunks }

func (s *synthesisStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *synthesisStream) push(chunk []byte) {
	s.chunks <- chunk
}

func (s *synthesisStream) finish() {
	close(s.chunks)
}

func (s *synthesisStream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.chunks)
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import (
	"context"
	"fmt"
)

// StreamingProviderError marks a mid-call speech provider failure. The
// session manager decides between retry and the escalation path.
type StreamingProviderError struct {
	Provider string
	Err      error
}

func (e *StreamingProviderError) Error() string {
	return fmt.Sprintf("streaming provider %s failed: %v", e.Provider, e.Err)
}

func (e *StreamingProviderError) Unwrap() error { return e.Err }

// SpeechEvents carries the recognition callbacks for one stream. Callbacks
// fire asynchronously, at most once per produced segment, in chronological
// order for a given handle. Final transcripts are authoritative; partials
// are advisory and must not drive dialogue.
type SpeechEvents struct {
	OnOpen    func()
	OnPartial func(text string)
	OnFinal   func(text string)
	OnError   func(err error)
}

// SpeechToText is the provider-agnostic streaming recognition contract.
type SpeechToText interface {
	// Start opens a streaming recognition context for one session.
	Start(ctx context.Context, sessionID string, events SpeechEvents) (SpeechToTextHandle, error)
}

// SpeechToTextHandle is one live recognition stream.
type SpeechToTextHandle interface {
	// Send pushes one inbound frame into the stream.
	Send(frame MediaFrame) error
	// Stop closes the stream. Idempotent.
	Stop() error
}

// SynthesisStream is a finite, ordered sequence of synthesized audio chunks.
// It is not restartable; resynthesis requires a fresh Synthesize call.
// Chunks closes when synthesis finishes; Err reports whether it finished
// cleanly or died mid-stream.
type SynthesisStream interface {
	Chunks() <-chan []byte
	Err() error
}

// TextToSpeech is the provider-agnostic synthesis contract. Adapters
// request carrier-native audio from their provider: every yielded chunk is
// 8 kHz µ-law, ready for the media stream as-is.
type TextToSpeech interface {
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (SynthesisStream, error)
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_transformer_deepgram

import (
	"fmt"

	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"

	"github.com/rapidaai/reception/pkg/commons"
	"github.com/rapidaai/reception/pkg/utils"
)

// DeepgramOption holds the resolved Deepgram configuration for one process.
type DeepgramOption struct {
	logger commons.Logger
	key    string
	opts   utils.Option
}

// SpeechToTextOptions is the flattened live-transcription configuration.
type SpeechToTextOptions struct {
	Model          string
	Language       string
	Channels       int
	SmartFormat    bool
	InterimResults bool
	FillerWords    bool
	VadEvents      bool
	Endpointing    string
	Punctuate      bool
	NoDelay        bool
	Encoding       string
	SampleRate     int
	Diarize        bool
	Multichannel   bool
	Keywords       []string
	Keyterm        []string
}

// NewDeepgramOption validates the credential and wraps the per-concern
// option overrides.
func NewDeepgramOption(logger commons.Logger, apiKey string, opts utils.Option) (*DeepgramOption, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("illegal vault config key is not found")
	}
	return &DeepgramOption{logger: logger, key: apiKey, opts: opts}, nil
}

func (o *DeepgramOption) GetKey() string {
	return o.key
}

// GetEncoding returns the wire encoding of the audio pushed into the
// recognition stream. Carriers deliver 8 kHz µ-law and Deepgram consumes it
// natively, so no transcode happens on the inbound path.
func (o *DeepgramOption) GetEncoding() string {
	return "mulaw"
}

// GetSampleRate returns the inbound telephony sample rate.
func (o *DeepgramOption) GetSampleRate() int {
	return 8000
}

// SpeechToTextOptions resolves defaults and overrides into the live
// transcription configuration. Encoding and sample rate stay fixed to the
// telephony format regardless of overrides.
func (o *DeepgramOption) SpeechToTextOptions() SpeechToTextOptions {
	stt := SpeechToTextOptions{
		Model:          o.opts.GetString("listen.model", "nova-2"),
		Language:       o.opts.GetString("listen.language", "en-US"),
		Channels:       1,
		SmartFormat:    o.opts.GetBool("listen.smart_format", true),
		InterimResults: o.opts.GetBool("listen.interim_results", true),
		FillerWords:    o.opts.GetBool("listen.filler_words", true),
		VadEvents:      o.opts.GetBool("listen.vad_events", false),
		Endpointing:    o.opts.GetString("listen.endpointing", "5"),
		Punctuate:      o.opts.GetBool("listen.punctuate", true),
		NoDelay:        o.opts.GetBool("listen.no_delay", true),
		Encoding:       o.GetEncoding(),
		SampleRate:     o.GetSampleRate(),
		Diarize:        o.opts.GetBool("listen.diarize", false),
		Multichannel:   o.opts.GetBool("listen.multichannel", false),
	}

	// nova-3 renamed keyword boosting to keyterm prompting.
	if keywords := o.opts.GetStringSlice("listen.keyword"); len(keywords) > 0 {
		if stt.Model == "nova-3" {
			stt.Keyterm = keywords
		} else {
			stt.Keywords = keywords
		}
	}
	return stt
}

// ToLiveTranscriptionOptions maps the flattened options onto the SDK type.
func (s SpeechToTextOptions) ToLiveTranscriptionOptions() *interfaces.LiveTranscriptionOptions {
	return &interfaces.LiveTranscriptionOptions{
		Model:          s.Model,
		Language:       s.Language,
		Channels:       s.Channels,
		SmartFormat:    s.SmartFormat,
		InterimResults: s.InterimResults,
		FillerWords:    s.FillerWords,
		VadEvents:      s.VadEvents,
		Endpointing:    s.Endpointing,
		Punctuate:      s.Punctuate,
		NoDelay:        s.NoDelay,
		Encoding:       s.Encoding,
		SampleRate:     s.SampleRate,
		Diarize:        s.Diarize,
		Multichannel:   s.Multichannel,
		Keywords:       s.Keywords,
		Keyterm:        s.Keyterm,
	}
}

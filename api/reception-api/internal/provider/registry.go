// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_provider

import (
	"fmt"
	"strings"

	internal_dialogue "github.com/rapidaai/reception/api/reception-api/internal/dialogue"
	internal_telephony "github.com/rapidaai/reception/api/reception-api/internal/telephony"
	internal_telnyx_telephony "github.com/rapidaai/reception/api/reception-api/internal/telephony/telnyx"
	internal_twilio_telephony "github.com/rapidaai/reception/api/reception-api/internal/telephony/twilio"
	internal_transformer_deepgram "github.com/rapidaai/reception/api/reception-api/internal/transformer/deepgram"
	internal_transformer_elevenlabs "github.com/rapidaai/reception/api/reception-api/internal/transformer/elevenlabs"
	internal_transformer_openai "github.com/rapidaai/reception/api/reception-api/internal/transformer/openai"
	internal_transformer_playht "github.com/rapidaai/reception/api/reception-api/internal/transformer/playht"
	internal_type "github.com/rapidaai/reception/api/reception-api/internal/type"
	"github.com/rapidaai/reception/config"
	"github.com/rapidaai/reception/pkg/commons"
	"github.com/rapidaai/reception/pkg/utils"
)

// UnsupportedProviderError reports a provider name the registry has no
// implementation for.
type UnsupportedProviderError struct {
	Kind string
	Name string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported %s provider %q", e.Kind, e.Name)
}

// ProviderConfigurationError reports a known provider selected without the
// credentials it needs. Both error kinds surface at startup, never mid-call.
type ProviderConfigurationError struct {
	Kind    string
	Name    string
	Missing string
}

func (e *ProviderConfigurationError) Error() string {
	return fmt.Sprintf("%s provider %q is missing configuration %s", e.Kind, e.Name, e.Missing)
}

// Registry holds the provider implementations resolved from configuration.
// Resolution happens once at startup so a bad selection fails the process
// before any call is accepted.
type Registry struct {
	Carrier        internal_telephony.Carrier
	SpeechToText   internal_type.SpeechToText
	TextToSpeech   internal_type.TextToSpeech
	DecisionEngine internal_dialogue.Engine
}

func NewRegistry(logger commons.Logger, cfg *config.AppConfig) (*Registry, error) {
	carrier, err := resolveCarrier(logger, cfg)
	if err != nil {
		return nil, err
	}
	speechToText, err := resolveSpeechToText(logger, cfg)
	if err != nil {
		return nil, err
	}
	textToSpeech, err := resolveTextToSpeech(logger, cfg)
	if err != nil {
		return nil, err
	}
	decisionEngine, err := resolveDecisionEngine(logger, cfg)
	if err != nil {
		return nil, err
	}
	return &Registry{
		Carrier:        carrier,
		SpeechToText:   speechToText,
		TextToSpeech:   textToSpeech,
		DecisionEngine: decisionEngine,
	}, nil
}

func resolveCarrier(logger commons.Logger, cfg *config.AppConfig) (internal_telephony.Carrier, error) {
	switch name := strings.ToLower(cfg.CarrierConfig.Name); name {
	case "telnyx":
		if cfg.CarrierConfig.APIKey == "" {
			return nil, &ProviderConfigurationError{Kind: "carrier", Name: name, Missing: "CARRIER_API_KEY"}
		}
		if cfg.CarrierConfig.PublicKey == "" {
			return nil, &ProviderConfigurationError{Kind: "carrier", Name: name, Missing: "CARRIER_PUBLIC_KEY"}
		}
		return internal_telnyx_telephony.NewTelnyx(logger, cfg.CarrierConfig.APIKey), nil
	case "twilio":
		if cfg.CarrierConfig.AccountSID == "" {
			return nil, &ProviderConfigurationError{Kind: "carrier", Name: name, Missing: "CARRIER_ACCOUNT_SID"}
		}
		if cfg.CarrierConfig.AuthToken == "" {
			return nil, &ProviderConfigurationError{Kind: "carrier", Name: name, Missing: "CARRIER_AUTH_TOKEN"}
		}
		return internal_twilio_telephony.NewTwilio(logger, cfg.CarrierConfig.AccountSID, cfg.CarrierConfig.AuthToken), nil
	default:
		return nil, &UnsupportedProviderError{Kind: "carrier", Name: name}
	}
}

func resolveSpeechToText(logger commons.Logger, cfg *config.AppConfig) (internal_type.SpeechToText, error) {
	switch name := strings.ToLower(cfg.SpeechConfig.SpeechToText); name {
	case "deepgram":
		if cfg.SpeechConfig.DeepgramAPIKey == "" {
			return nil, &ProviderConfigurationError{Kind: "speech-to-text", Name: name, Missing: "DEEPGRAM_API_KEY"}
		}
		return internal_transformer_deepgram.NewDeepgramSpeechToText(logger, cfg.SpeechConfig.DeepgramAPIKey, utils.Option{})
	default:
		return nil, &UnsupportedProviderError{Kind: "speech-to-text", Name: name}
	}
}

func resolveTextToSpeech(logger commons.Logger, cfg *config.AppConfig) (internal_type.TextToSpeech, error) {
	switch name := strings.ToLower(cfg.SpeechConfig.TextToSpeech); name {
	case "elevenlabs":
		if cfg.SpeechConfig.ElevenLabsAPIKey == "" {
			return nil, &ProviderConfigurationError{Kind: "text-to-speech", Name: name, Missing: "ELEVENLABS_API_KEY"}
		}
		return internal_transformer_elevenlabs.NewElevenLabsTextToSpeech(logger, cfg.SpeechConfig.ElevenLabsAPIKey, utils.Option{})
	case "playht":
		if cfg.SpeechConfig.PlayHTAPIKey == "" {
			return nil, &ProviderConfigurationError{Kind: "text-to-speech", Name: name, Missing: "PLAYHT_API_KEY"}
		}
		if cfg.SpeechConfig.PlayHTUserID == "" {
			return nil, &ProviderConfigurationError{Kind: "text-to-speech", Name: name, Missing: "PLAYHT_USER_ID"}
		}
		return internal_transformer_playht.NewPlayHTTextToSpeech(logger, cfg.SpeechConfig.PlayHTAPIKey, cfg.SpeechConfig.PlayHTUserID, utils.Option{})
	default:
		return nil, &UnsupportedProviderError{Kind: "text-to-speech", Name: name}
	}
}

func resolveDecisionEngine(logger commons.Logger, cfg *config.AppConfig) (internal_dialogue.Engine, error) {
	policies := internal_dialogue.DefaultPolicies()
	switch name := strings.ToLower(cfg.SpeechConfig.DecisionEngine); name {
	case "rules":
		return internal_dialogue.NewRulesEngine(policies), nil
	case "openai":
		if cfg.SpeechConfig.OpenAIAPIKey == "" {
			return nil, &ProviderConfigurationError{Kind: "decision", Name: name, Missing: "OPENAI_API_KEY"}
		}
		return internal_transformer_openai.NewDecisionEngine(logger, cfg.SpeechConfig.OpenAIAPIKey, policies)
	default:
		return nil, &UnsupportedProviderError{Kind: "decision", Name: name}
	}
}

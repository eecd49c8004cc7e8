// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package configs

// PostgresConfig holds the connection settings for the call store.
type PostgresConfig struct {
	Host     string `mapstructure:"postgres_host"`
	Port     int    `mapstructure:"postgres_port"`
	User     string `mapstructure:"postgres_user"`
	Password string `mapstructure:"postgres_password"`
	Database string `mapstructure:"postgres_database"`
	SSLMode  string `mapstructure:"postgres_ssl_mode"`
}

// CarrierConfig holds the telephony carrier selection and credentials.
type CarrierConfig struct {
	// Name selects the carrier implementation: "telnyx" or "twilio".
	Name string `mapstructure:"carrier" validate:"required"`

	// PublicKey is the carrier's base64-encoded Ed25519 webhook
	// verification key (Telnyx publishes one per portal account).
	PublicKey string `mapstructure:"carrier_public_key"`

	APIKey string `mapstructure:"carrier_api_key"`

	// AccountSID/AuthToken are used by the Twilio carrier only.
	AccountSID string `mapstructure:"carrier_account_sid"`
	AuthToken  string `mapstructure:"carrier_auth_token"`

	// TransferDestination is the human hand-off number (E.164).
	TransferDestination string `mapstructure:"carrier_transfer_destination"`
}

// SpeechConfig holds speech provider selections and credentials.
type SpeechConfig struct {
	SpeechToText   string `mapstructure:"speech_to_text" validate:"required"`
	TextToSpeech   string `mapstructure:"text_to_speech" validate:"required"`
	DecisionEngine string `mapstructure:"decision_engine" validate:"required"`

	DeepgramAPIKey   string `mapstructure:"deepgram_api_key"`
	ElevenLabsAPIKey string `mapstructure:"elevenlabs_api_key"`
	PlayHTAPIKey     string `mapstructure:"playht_api_key"`
	PlayHTUserID     string `mapstructure:"playht_user_id"`
	OpenAIAPIKey     string `mapstructure:"openai_api_key"`
}

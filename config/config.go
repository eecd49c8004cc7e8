// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/rapidaai/reception/pkg/configs"
)

// Application config structure
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`

	// PublicHost is the externally reachable base URL handed to the carrier
	// for webhook and media-stream callbacks.
	PublicHost string `mapstructure:"public_host" validate:"required"`

	PostgresConfig configs.PostgresConfig `mapstructure:",squash"`
	CarrierConfig  configs.CarrierConfig  `mapstructure:",squash"`
	SpeechConfig   configs.SpeechConfig   `mapstructure:",squash"`

	// DefaultVoiceProfile is the provider voice id used when the called
	// number has no tenant-configured profile.
	DefaultVoiceProfile string `mapstructure:"default_voice_profile"`

	// SessionRetention is the number of seconds a terminal session remains
	// in the live registry before eviction.
	SessionRetention int `mapstructure:"session_retention_seconds"`
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env varaibles.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// setting all default values
	v.SetDefault("SERVICE_NAME", "reception-api")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 9090)
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("PUBLIC_HOST", "http://localhost:9090")

	v.SetDefault("CARRIER", "telnyx")
	v.SetDefault("SPEECH_TO_TEXT", "deepgram")
	v.SetDefault("TEXT_TO_SPEECH", "elevenlabs")
	v.SetDefault("DECISION_ENGINE", "rules")

	v.SetDefault("DEFAULT_VOICE_PROFILE", "")
	v.SetDefault("SESSION_RETENTION_SECONDS", 300)

	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_SSL_MODE", "disable")
}

// GetAppConfig unmarshals and validates the application configuration.
// An invalid configuration is a startup failure, never a per-call one.
func GetAppConfig(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

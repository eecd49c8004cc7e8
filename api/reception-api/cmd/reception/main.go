// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	internal_audio "github.com/rapidaai/reception/api/reception-api/internal/audio"
	internal_callstore "github.com/rapidaai/reception/api/reception-api/internal/callstore"
	internal_provider "github.com/rapidaai/reception/api/reception-api/internal/provider"
	internal_session "github.com/rapidaai/reception/api/reception-api/internal/session"
	internal_signature "github.com/rapidaai/reception/api/reception-api/internal/signature"
	internal_transport "github.com/rapidaai/reception/api/reception-api/internal/transport"
	internal_type "github.com/rapidaai/reception/api/reception-api/internal/type"
	reception_routers "github.com/rapidaai/reception/api/reception-api/router"
	"github.com/rapidaai/reception/config"
	"github.com/rapidaai/reception/pkg/commons"
	"github.com/rapidaai/reception/pkg/connectors"
)

func main() {
	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("unable to initialize configuration: %v", err)
	}
	cfg, err := config.GetAppConfig(vConfig)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := commons.NewApplicationLogger(commons.WithLogLevel(cfg.LogLevel))
	if err != nil {
		log.Fatalf("unable to initialize logger: %v", err)
	}
	defer logger.Sync()

	postgres, err := connectors.NewPostgresConnector(cfg.PostgresConfig, logger)
	if err != nil {
		logger.Fatalf("unable to connect postgres: %v", err)
	}
	defer postgres.Close()

	if err := postgres.DB(context.Background()).AutoMigrate(&internal_callstore.CallRecord{}); err != nil {
		logger.Fatalf("unable to migrate call records: %v", err)
	}

	// Provider selection is resolved once; an unknown name or missing
	// credential fails startup, never a live call.
	registry, err := internal_provider.NewRegistry(logger, cfg)
	if err != nil {
		logger.Fatalf("provider resolution failed: %v", err)
	}

	verifier, err := internal_signature.NewVerifier(cfg.CarrierConfig.PublicKey, logger)
	if err != nil {
		logger.Fatalf("webhook verifier setup failed: %v", err)
	}

	store := internal_callstore.NewStore(postgres, logger)
	transport := internal_transport.NewTransport(logger)

	manager := internal_session.NewManager(
		logger,
		registry.Carrier,
		registry.SpeechToText,
		registry.TextToSpeech,
		registry.DecisionEngine,
		transport,
		store,
		internal_session.WithVoiceProfile(internal_type.VoiceProfile{
			Engine:  cfg.SpeechConfig.TextToSpeech,
			VoiceID: cfg.DefaultVoiceProfile,
		}),
		internal_session.WithTransferDestination(cfg.CarrierConfig.TransferDestination),
		internal_session.WithRetention(time.Duration(cfg.SessionRetention)*time.Second),
		internal_session.WithMediaEndpoint(mediaEndpoint(cfg.PublicHost)),
		internal_session.WithApologyAudio(internal_audio.Tone(440, 400*time.Millisecond)),
	)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	reception_routers.HealthCheckRoutes(cfg, engine, logger, postgres)
	reception_routers.VoiceApiRoutes(cfg, engine, logger, verifier, manager)

	address := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	logger.Infof("%s %s listening on %s (carrier=%s stt=%s tts=%s decision=%s)",
		cfg.Name, cfg.Version, address,
		cfg.CarrierConfig.Name,
		cfg.SpeechConfig.SpeechToText,
		cfg.SpeechConfig.TextToSpeech,
		cfg.SpeechConfig.DecisionEngine,
	)
	server := &http.Server{Addr: address, Handler: engine}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutdown requested, draining live calls")

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := manager.Shutdown(drainCtx); err != nil {
		logger.Errorf("session drain incomplete: %v", err)
	}
	if err := server.Shutdown(drainCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
}

// mediaEndpoint builds the externally reachable websocket URL the carrier
// connects its media stream to.
func mediaEndpoint(publicHost string) func(callID string) string {
	wsHost := publicHost
	switch {
	case strings.HasPrefix(publicHost, "https://"):
		wsHost = "wss://" + strings.TrimPrefix(publicHost, "https://")
	case strings.HasPrefix(publicHost, "http://"):
		wsHost = "ws://" + strings.TrimPrefix(publicHost, "http://")
	}
	return func(callID string) string {
		return wsHost + "/v1/voice/media/" + callID
	}
}

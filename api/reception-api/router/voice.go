// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package reception_routers

import (
	"github.com/gin-gonic/gin"

	receptionVoiceApi "github.com/rapidaai/reception/api/reception-api/api/voice"
	internal_session "github.com/rapidaai/reception/api/reception-api/internal/session"
	internal_signature "github.com/rapidaai/reception/api/reception-api/internal/signature"
	"github.com/rapidaai/reception/config"
	"github.com/rapidaai/reception/pkg/commons"
)

func VoiceApiRoutes(
	cfg *config.AppConfig,
	engine *gin.Engine,
	logger commons.Logger,
	verifier *internal_signature.Verifier,
	manager *internal_session.Manager,
) {
	apiv1 := engine.Group("v1/voice")
	voiceApi := receptionVoiceApi.NewVoiceApi(cfg, logger, verifier, manager)
	{
		// carrier lifecycle webhooks (signature-verified)
		apiv1.POST("/events", voiceApi.Events)

		// per-call duplex media socket
		apiv1.GET("/media/:callId", voiceApi.Media)
	}
}

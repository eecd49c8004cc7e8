// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package health_check_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/reception/config"
	"github.com/rapidaai/reception/pkg/commons"
	"github.com/rapidaai/reception/pkg/connectors"
)

type HealthCheckApi struct {
	cfg      *config.AppConfig
	logger   commons.Logger
	postgres connectors.PostgresConnector
}

func New(cfg *config.AppConfig, logger commons.Logger, postgres connectors.PostgresConnector) *HealthCheckApi {
	return &HealthCheckApi{
		cfg:      cfg,
		logger:   logger,
		postgres: postgres,
	}
}

// Healthz reports process liveness.
func (hApi *HealthCheckApi) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": hApi.cfg.Name,
		"version": hApi.cfg.Version,
	})
}

// Readiness reports whether dependencies are reachable.
func (hApi *HealthCheckApi) Readiness(c *gin.Context) {
	var one int
	if err := hApi.postgres.DB(c.Request.Context()).Raw("SELECT 1").Scan(&one).Error; err != nil {
		hApi.logger.Errorf("readiness probe failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

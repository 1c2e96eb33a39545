// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the turn pipeline and the management surface over
// HTTP. The turn endpoint is the hot path; management endpoints require the
// configured management key.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/chatterlinx/voicecore/internal/api/handlers/management"
	"github.com/chatterlinx/voicecore/internal/config"
	"github.com/chatterlinx/voicecore/internal/pipeline"
)

// Server owns the HTTP lifecycle.
type Server struct {
	cfg    *config.Config
	engine *pipeline.Engine
	health *HealthHandler
	rules  *management.RulesHandler

	httpServer *http.Server
}

// NewServer wires the routes. Call Start to begin serving.
func NewServer(cfg *config.Config, engine *pipeline.Engine, health *HealthHandler, rules *management.RulesHandler) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		engine: engine,
		health: health,
		rules:  rules,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	s.registerRoutes(router)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/health", s.health.Health)

	v1 := router.Group("/v1")
	{
		v1.POST("/turn", s.handleTurn)
		v1.POST("/call/end", s.handleEndCall)
	}

	mgmt := router.Group("/v0/management", s.managementAuth())
	{
		mgmt.POST("/rules", s.rules.Upsert)
		mgmt.POST("/rules/test-match", s.rules.TestMatch)
		mgmt.POST("/rules/invalidate", s.rules.Invalidate)
		mgmt.GET("/rules/suggestions", s.rules.Suggestions)
	}
}

// managementAuth validates the X-Management-Key header against the hashed
// configured key.
func (s *Server) managementAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Management-Key")
		if key == "" || !s.cfg.CheckManagementKey(key) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid management key",
			})
			return
		}
		c.Next()
	}
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	log.Infof("api: listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

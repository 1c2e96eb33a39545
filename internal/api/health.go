// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatterlinx/voicecore/internal/cacheservice"
	"github.com/chatterlinx/voicecore/internal/gate"
	"github.com/chatterlinx/voicecore/internal/learning"
	"github.com/chatterlinx/voicecore/internal/llm"
	"github.com/chatterlinx/voicecore/internal/pipeline"
	"github.com/chatterlinx/voicecore/internal/session"
)

// HealthHandler reports dependency and pipeline health. The process stays
// "degraded" rather than unhealthy when the cache or the generative tier is
// down, because turns still complete on the deterministic path.
type HealthHandler struct {
	cache    cacheservice.Cache
	store    *learning.Store
	breaker  *llm.Breaker
	gate     *gate.Gate
	engine   *pipeline.Engine
	sessions *session.Manager
}

func NewHealthHandler(cache cacheservice.Cache, store *learning.Store, breaker *llm.Breaker, g *gate.Gate, engine *pipeline.Engine, sessions *session.Manager) *HealthHandler {
	return &HealthHandler{cache: cache, store: store, breaker: breaker, gate: g, engine: engine, sessions: sessions}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	storeOK := h.store.Ping(c.Request.Context()) == nil
	cacheOK := h.cache.Healthy()
	breakerOpen := h.breaker.Open()

	status := "ok"
	code := http.StatusOK
	switch {
	case !storeOK:
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	case !cacheOK || breakerOpen:
		status = "degraded"
	}

	c.JSON(code, gin.H{
		"status":        status,
		"store":         storeOK,
		"cache":         cacheOK,
		"breaker_open":  breakerOpen,
		"active_calls":  h.sessions.ActiveCount(),
		"gate":          h.gate.Stats(),
		"pipeline":      h.engine.Stats(),
	})
}

// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package management implements the authenticated operator endpoints for
// triage rules.
package management

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/chatterlinx/voicecore/internal/learning"
	"github.com/chatterlinx/voicecore/internal/triage"
)

// RulesHandler handles the /v0/management/rules endpoints.
type RulesHandler struct {
	store     *learning.Store
	compiler  *triage.Compiler
	matcher   *triage.Matcher
	suggester *learning.Suggester
}

func NewRulesHandler(store *learning.Store, compiler *triage.Compiler, matcher *triage.Matcher) *RulesHandler {
	return &RulesHandler{
		store:     store,
		compiler:  compiler,
		matcher:   matcher,
		suggester: learning.NewSuggester(store),
	}
}

// Suggestions handles GET /v0/management/rules/suggestions. Suggested rules
// are returned inactive; promoting one goes through Upsert.
func (h *RulesHandler) Suggestions(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}
	suggestions, err := h.suggester.Suggest(c.Request.Context(), tenantID)
	if err != nil {
		log.Errorf("management: suggestion analysis failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

// UpsertRuleRequest creates or updates one triage rule.
type UpsertRuleRequest struct {
	ID              string   `json:"id"`
	TenantID        string   `json:"tenant_id" binding:"required"`
	Keywords        []string `json:"keywords"`
	ExcludeKeywords []string `json:"exclude_keywords"`
	Condition       string   `json:"condition"`
	Action          string   `json:"action" binding:"required"`
	ServiceType     string   `json:"service_type"`
	Priority        int      `json:"priority"`
	Source          string   `json:"source"`
	Active          *bool    `json:"active"`
}

// Upsert handles POST /v0/management/rules. The tenant's compiled set is
// invalidated so the next turn sees the new rule.
func (h *RulesHandler) Upsert(c *gin.Context) {
	var req UpsertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := triage.Rule{
		ID:              req.ID,
		TenantID:        req.TenantID,
		Keywords:        req.Keywords,
		ExcludeKeywords: req.ExcludeKeywords,
		Condition:       req.Condition,
		Action:          triage.Action(req.Action),
		ServiceType:     req.ServiceType,
		Priority:        req.Priority,
		Source:          triage.Source(req.Source),
		Active:          true,
		UpdatedAt:       time.Now(),
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Source == "" {
		rule.Source = triage.SourceManual
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	if !validAction(rule.Action) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + req.Action})
		return
	}

	if err := h.store.UpsertRule(c.Request.Context(), &rule); err != nil {
		log.Errorf("management: rule upsert failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store rule"})
		return
	}
	h.compiler.Invalidate(c.Request.Context(), req.TenantID)

	c.JSON(http.StatusOK, gin.H{"id": rule.ID})
}

// TestMatchRequest previews how an utterance would triage for a tenant.
type TestMatchRequest struct {
	TenantID    string   `json:"tenant_id" binding:"required"`
	Utterance   string   `json:"utterance" binding:"required"`
	AuxKeywords []string `json:"aux_keywords,omitempty"`
}

// TestMatch handles POST /v0/management/rules/test-match. It runs the same
// compiled set, ordering, and matcher the live pipeline uses, so the preview
// can never drift from production behavior.
func (h *RulesHandler) TestMatch(c *gin.Context) {
	var req TestMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	normalized := triage.NormalizeUtterance(req.Utterance)
	set := h.compiler.Compiled(c.Request.Context(), req.TenantID)
	match := h.matcher.Match(set, normalized, req.AuxKeywords)

	c.JSON(http.StatusOK, gin.H{
		"normalized_utterance": normalized,
		"rule":                 match.Rule,
		"method":               match.Method,
		"matched_keywords":     match.MatchedKeywords,
		"is_fallback":          match.Rule.IsFallback(),
		"compiled_at":          set.CompiledAt,
		"rule_count":           len(set.Rules),
	})
}

// InvalidateRequest forces a tenant's rule set to recompile.
type InvalidateRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
}

// Invalidate handles POST /v0/management/rules/invalidate.
func (h *RulesHandler) Invalidate(c *gin.Context) {
	var req InvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.compiler.Invalidate(c.Request.Context(), req.TenantID)
	set := h.compiler.Rebuild(c.Request.Context(), req.TenantID)
	c.JSON(http.StatusOK, gin.H{"rule_count": len(set.Rules), "compiled_at": set.CompiledAt})
}

func validAction(a triage.Action) bool {
	switch a {
	case triage.ActionDirectToResolver, triage.ActionExplainAndPush,
		triage.ActionEscalateToHuman, triage.ActionTakeMessage, triage.ActionEndCallPolite:
		return true
	}
	return false
}

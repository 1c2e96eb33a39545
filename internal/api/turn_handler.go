// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/chatterlinx/voicecore/internal/assembler"
	"github.com/chatterlinx/voicecore/internal/pipeline"
	"github.com/chatterlinx/voicecore/internal/session"
)

func channelFromString(s string) assembler.Channel {
	if s == string(assembler.ChannelText) {
		return assembler.ChannelText
	}
	return assembler.ChannelVoice
}

// TurnRequest is the wire form of one caller utterance. Slots carries any
// structured fields the telephony platform extracted this turn; the response
// echoes the updated session state so the platform can mirror it.
type TurnRequest struct {
	TenantID    string         `json:"tenant_id" binding:"required"`
	CallID      string         `json:"call_id" binding:"required"`
	CallerID    string         `json:"caller_id"`
	Utterance   string         `json:"utterance" binding:"required"`
	AuxKeywords []string       `json:"aux_keywords,omitempty"`
	Channel     string         `json:"channel,omitempty"`
	Slots       *session.Slots `json:"slots,omitempty"`
}

// EndCallRequest closes a call explicitly, e.g. when the caller hangs up.
type EndCallRequest struct {
	CallID string `json:"call_id" binding:"required"`
}

// handleTurn handles POST /v1/turn.
func (s *Server) handleTurn(c *gin.Context) {
	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.engine.ProcessTurn(c.Request.Context(), pipeline.TurnRequest{
		TenantID:    req.TenantID,
		CallID:      req.CallID,
		CallerID:    req.CallerID,
		Utterance:   req.Utterance,
		AuxKeywords: req.AuxKeywords,
		Channel:     channelFromString(req.Channel),
		Slots:       req.Slots,
	})
	if err != nil {
		log.WithField("call_id", req.CallID).Errorf("api: turn failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "turn processing failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleEndCall handles POST /v1/call/end.
func (s *Server) handleEndCall(c *gin.Context) {
	var req EndCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.engine.EndCall(req.CallID)
	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}

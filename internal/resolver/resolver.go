// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package resolver matches a caller utterance to a tenant scenario through a
// three-tier cascade: deterministic triggers first, lexical similarity
// second, and the paid generative provider last. Each tier only runs when the
// previous one failed to clear its confidence floor, and the generative tier
// additionally requires the caller to have opted in for this turn.
package resolver

import (
	"context"
	"errors"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/chatterlinx/voicecore/internal/config"
	"github.com/chatterlinx/voicecore/internal/llm"
	"github.com/chatterlinx/voicecore/internal/scenario"
)

// ErrNoScenarios reports a tenant with an empty scenario pool. The pipeline
// treats this as a configuration problem and escalates rather than guessing.
var ErrNoScenarios = errors.New("resolver: tenant has no scenarios configured")

// Tier identifies which stage of the cascade produced a resolution.
type Tier string

const (
	TierTrigger    Tier = "trigger"
	TierLexical    Tier = "lexical"
	TierGenerative Tier = "generative"
	TierForced     Tier = "forced"
)

// Resolution is the cascade outcome for one turn. Candidate is nil when no
// tier matched.
type Resolution struct {
	Candidate  *scenario.Candidate
	ResolvedBy Tier
	Confidence float64
	TokensUsed int
	LatencyMs  int64
}

// Matched reports whether any tier produced a candidate.
func (r *Resolution) Matched() bool { return r != nil && r.Candidate != nil }

// Generative is the Tier-3 provider surface. *llm.Client satisfies it.
type Generative interface {
	Classify(ctx context.Context, req llm.ClassifyRequest) (*llm.ClassifyResult, error)
}

// Resolver runs the cascade for a single tenant pool per call.
type Resolver struct {
	cfg        config.ResolverConfig
	lexical    *LexicalEngine
	generative Generative
}

func New(cfg config.ResolverConfig, generative Generative) *Resolver {
	return &Resolver{
		cfg:        cfg,
		lexical:    NewLexicalEngine(),
		generative: generative,
	}
}

// Request carries one utterance through the cascade.
type Request struct {
	TenantID      string
	Utterance     string // normalized
	TenantContext string
	Candidates    []scenario.Candidate

	// AllowGenerative gates Tier 3; the decision comes from the cost gate.
	AllowGenerative bool

	// ForcedCandidateID, when set, bypasses the cascade entirely. Used when
	// a proven resolution path pins the outcome.
	ForcedCandidateID string
}

// Resolve runs the cascade. It never returns a nil Resolution on a nil
// error; an unmatched turn is (Resolution{Candidate: nil}, nil).
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	if len(req.Candidates) == 0 {
		return nil, ErrNoScenarios
	}

	logger := log.WithField("call_id", req.TenantID)

	if req.ForcedCandidateID != "" {
		if cand := findByID(req.Candidates, req.ForcedCandidateID); cand != nil {
			return &Resolution{Candidate: cand, ResolvedBy: TierForced, Confidence: 1.0}, nil
		}
		// The pinned scenario vanished from the pool; fall through to the
		// normal cascade.
		logger.Warnf("resolver: forced candidate %s not in pool, running cascade", req.ForcedCandidateID)
	}

	if cand, conf := r.matchTriggers(req.Utterance, req.Candidates); cand != nil && conf >= r.cfg.Tier1MinConfidence {
		return &Resolution{Candidate: cand, ResolvedBy: TierTrigger, Confidence: conf}, nil
	}

	if cand, conf := r.matchLexical(req.Utterance, req.Candidates); cand != nil && conf >= r.cfg.Tier2MinConfidence {
		return &Resolution{Candidate: cand, ResolvedBy: TierLexical, Confidence: conf}, nil
	}

	if !req.AllowGenerative || r.generative == nil {
		return &Resolution{}, nil
	}
	return r.resolveGenerative(ctx, req)
}

// Provisional runs the free Tier-1 pass alone and returns the best matching
// candidate, or nil when nothing triggers. The cost gate uses its intent and
// category to look up caller history before the full cascade runs.
func (r *Resolver) Provisional(utterance string, candidates []scenario.Candidate) *scenario.Candidate {
	cand, conf := r.matchTriggers(utterance, candidates)
	if cand == nil || conf < r.cfg.Tier1MinConfidence {
		return nil
	}
	return cand
}

func (r *Resolver) resolveGenerative(ctx context.Context, req Request) (*Resolution, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Tier3Timeout)
	defer cancel()

	summaries := make([]llm.CandidateSummary, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		summaries = append(summaries, llm.CandidateSummary{
			ID:          c.ID,
			Intent:      c.Intent,
			Description: describeCandidate(c),
		})
	}

	start := time.Now()
	result, err := r.generative.Classify(ctx, llm.ClassifyRequest{
		TenantID:      req.TenantID,
		Utterance:     req.Utterance,
		TenantContext: req.TenantContext,
		Candidates:    summaries,
	})
	if err != nil {
		// Timeouts, budget exhaustion, and breaker rejections all degrade
		// to "no match"; the turn still gets a deterministic response.
		log.Debugf("resolver: generative tier unavailable after %dms: %v",
			time.Since(start).Milliseconds(), err)
		return &Resolution{}, nil
	}

	res := &Resolution{TokensUsed: result.TokensUsed, LatencyMs: result.LatencyMs}
	if !result.Matched || result.Confidence < r.cfg.Tier3MinConfidence {
		return res, nil
	}
	cand := findByID(req.Candidates, result.ScenarioID)
	if cand == nil {
		log.Warnf("resolver: generative tier returned unknown scenario %q", result.ScenarioID)
		return res, nil
	}
	res.Candidate = cand
	res.ResolvedBy = TierGenerative
	res.Confidence = result.Confidence
	return res, nil
}

func findByID(candidates []scenario.Candidate, id string) *scenario.Candidate {
	for i := range candidates {
		if candidates[i].ID == id {
			return &candidates[i]
		}
	}
	return nil
}

// describeCandidate builds the one-line summary sent to the provider.
func describeCandidate(c scenario.Candidate) string {
	triggers := c.Triggers
	if len(triggers) > 5 {
		triggers = triggers[:5]
	}
	sorted := append([]string(nil), triggers...)
	sort.Strings(sorted)
	desc := c.Category
	for _, t := range sorted {
		desc += " | " + t
	}
	return desc
}

// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package gate decides, per turn, whether the expensive generative resolver
// tier is worth invoking. Tiers 1 and 2 are free; Tier 3 has real monetary
// and latency cost, so the gate amortizes it as the system learns.
package gate

import (
	"sync/atomic"

	"github.com/chatterlinx/voicecore/internal/memory"
)

// Reason explains a gate decision.
type Reason string

const (
	// ReasonCachedResponse: the exact normalized utterance has a learned
	// response with a historically successful outcome.
	ReasonCachedResponse Reason = "CACHED_RESPONSE"
	// ReasonProvenPath: a resolution path for this intent+category cleared
	// the sample-size and success-rate thresholds.
	ReasonProvenPath Reason = "PROVEN_PATH"
	// ReasonKnownCallerKnownIntent: the caller resolved this intent
	// successfully enough times before.
	ReasonKnownCallerKnownIntent Reason = "KNOWN_CALLER_KNOWN_INTENT"
	// ReasonNovel: nothing learned applies; the full cascade may run.
	ReasonNovel Reason = "NOVEL"
)

// Decision is the gate's plain decision record.
type Decision struct {
	UseExpensiveResolver bool   `json:"use_expensive_resolver"`
	Reason               Reason `json:"reason"`
	ForcedCandidateID    string `json:"forced_candidate_id,omitempty"`
	CachedResponse       string `json:"cached_response,omitempty"`
}

// Thresholds are the tenant-tunable gate knobs.
type Thresholds struct {
	MinPathSamples     int
	MinPathSuccessRate float64
	KnownCallerHits    int
}

// Gate evaluates the decision rules in order against an immutable memory
// snapshot. Given the same snapshot and classification the decision is
// deterministic; there is no hidden randomness.
type Gate struct {
	thresholds Thresholds

	// Decision counters, exposed via health.
	cachedHits  atomic.Int64
	provenHits  atomic.Int64
	knownHits   atomic.Int64
	novelCount  atomic.Int64
}

// New creates a gate with the given thresholds.
func New(t Thresholds) *Gate {
	return &Gate{thresholds: t}
}

// Decide applies the decision rules, first match wins:
//  1. exact cached response for the utterance
//  2. proven resolution path for (intent, category)
//  3. known caller with enough prior successes of the same intent
//  4. otherwise the expensive tier is allowed (NOVEL)
//
// intent may be empty when no provisional classification exists; rules that
// need it are then skipped, which safely falls through to NOVEL.
func (g *Gate) Decide(snap *memory.Snapshot, intent, category string) Decision {
	if snap.HasCachedResponse && snap.CachedResponse != "" {
		g.cachedHits.Add(1)
		return Decision{
			UseExpensiveResolver: false,
			Reason:               ReasonCachedResponse,
			CachedResponse:       snap.CachedResponse,
		}
	}

	if intent != "" {
		if path := snap.PathFor(intent, category); path != nil {
			if path.SampleSize >= g.thresholds.MinPathSamples &&
				path.SuccessRate() >= g.thresholds.MinPathSuccessRate {
				g.provenHits.Add(1)
				return Decision{
					UseExpensiveResolver: false,
					Reason:               ReasonProvenPath,
					ForcedCandidateID:    path.CandidateID,
				}
			}
		}

		if history := snap.HistoryFor(intent); history != nil {
			if history.SuccessCount >= g.thresholds.KnownCallerHits {
				decision := Decision{
					UseExpensiveResolver: false,
					Reason:               ReasonKnownCallerKnownIntent,
				}
				// Prefer the historically successful path when one exists,
				// even below the proven-path thresholds.
				if path := snap.PathFor(intent, category); path != nil && path.SuccessCount > 0 {
					decision.ForcedCandidateID = path.CandidateID
				}
				g.knownHits.Add(1)
				return decision
			}
		}
	}

	g.novelCount.Add(1)
	return Decision{UseExpensiveResolver: true, Reason: ReasonNovel}
}

// Stats returns the gate's decision distribution.
func (g *Gate) Stats() map[string]int64 {
	return map[string]int64{
		"cached_response":           g.cachedHits.Load(),
		"proven_path":               g.provenHits.Load(),
		"known_caller_known_intent": g.knownHits.Load(),
		"novel":                     g.novelCount.Load(),
	}
}

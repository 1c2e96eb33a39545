// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package memory defines the cross-call learning records and the hydrator
// that loads them at the start of a turn. Records are written only by the
// post-turn learning recorder and read only here; staleness is acceptable
// because the optimization gate always has a safe fallback.
package memory

import "time"

// CallerIntentHistory counts a caller's outcomes for one intent.
type CallerIntentHistory struct {
	TenantID     string    `json:"tenant_id"`
	CallerID     string    `json:"caller_id"`
	Intent       string    `json:"intent"`
	TotalCount   int       `json:"total_count"`
	SuccessCount int       `json:"success_count"`
	LastOutcome  string    `json:"last_outcome"` // "success" or "failure"
	LastSeen     time.Time `json:"last_seen"`
}

// ResolutionPath is a learned mapping from (intent, category) to the
// candidate that resolves it, with a tracked success rate.
type ResolutionPath struct {
	TenantID     string    `json:"tenant_id"`
	Intent       string    `json:"intent"`
	Category     string    `json:"category"`
	CandidateID  string    `json:"candidate_id"`
	SampleSize   int       `json:"sample_size"`
	SuccessCount int       `json:"success_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SuccessRate returns the path's observed success rate, 0 when unsampled.
func (p *ResolutionPath) SuccessRate() float64 {
	if p.SampleSize == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(p.SampleSize)
}

// Snapshot is the immutable memory view for one turn. The optimization gate
// receives it as a value and never reaches back into the stores.
type Snapshot struct {
	CallerHistory []CallerIntentHistory `json:"caller_history,omitempty"`
	Paths         []ResolutionPath      `json:"paths,omitempty"`

	// CachedResponse is the learned response text for the exact normalized
	// utterance, when one exists.
	CachedResponse    string `json:"cached_response,omitempty"`
	HasCachedResponse bool   `json:"has_cached_response"`

	// ReturnCustomer is true when the caller has any prior history.
	ReturnCustomer bool `json:"return_customer"`
}

// HistoryFor returns the caller's history entry for an intent, or nil.
func (s *Snapshot) HistoryFor(intent string) *CallerIntentHistory {
	for i := range s.CallerHistory {
		if s.CallerHistory[i].Intent == intent {
			return &s.CallerHistory[i]
		}
	}
	return nil
}

// PathFor returns the learned resolution path for (intent, category), or nil.
func (s *Snapshot) PathFor(intent, category string) *ResolutionPath {
	for i := range s.Paths {
		if s.Paths[i].Intent == intent && s.Paths[i].Category == category {
			return &s.Paths[i]
		}
	}
	return nil
}

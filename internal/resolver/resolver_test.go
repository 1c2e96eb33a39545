// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatterlinx/voicecore/internal/config"
	"github.com/chatterlinx/voicecore/internal/llm"
	"github.com/chatterlinx/voicecore/internal/scenario"
)

// mockGenerative is a scripted Tier-3 provider.
type mockGenerative struct {
	result *llm.ClassifyResult
	err    error
	calls  int
	// delay simulates a slow provider; Classify honors ctx cancellation.
	delay time.Duration
}

func (m *mockGenerative) Classify(ctx context.Context, _ llm.ClassifyRequest) (*llm.ClassifyResult, error) {
	m.calls++
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func testConfig() config.ResolverConfig {
	return config.ResolverConfig{
		Tier1MinConfidence: 0.3,
		Tier2MinConfidence: 0.5,
		Tier3MinConfidence: 0.7,
		Tier3Timeout:       400 * time.Millisecond,
	}
}

func testCandidates() []scenario.Candidate {
	return []scenario.Candidate{
		{
			ID:       "scn-hours",
			Intent:   "business_hours",
			Category: "info",
			Type:     scenario.TypeInfoFAQ,
			Triggers: []string{"what are your hours", "when are you open"},
		},
		{
			ID:               "scn-heater",
			Intent:           "water_heater_repair",
			Category:         "plumbing",
			Type:             scenario.TypeActionFlow,
			Triggers:         []string{"water heater", "no hot water"},
			NegativeTriggers: []string{"warranty"},
		},
	}
}

func TestResolveTriggerTier(t *testing.T) {
	r := New(testConfig(), nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		utter    string
		wantID   string
		wantTier Tier
	}{
		{"full phrase trigger", "what are your hours", "scn-hours", TierTrigger},
		{"trigger inside sentence", "my water heater is leaking everywhere", "scn-heater", TierTrigger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(ctx, Request{
				TenantID: "t1", Utterance: tt.utter, Candidates: testCandidates(),
			})
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !res.Matched() || res.Candidate.ID != tt.wantID {
				t.Fatalf("candidate = %+v, want %s", res.Candidate, tt.wantID)
			}
			if res.ResolvedBy != tt.wantTier {
				t.Errorf("resolvedBy = %s, want %s", res.ResolvedBy, tt.wantTier)
			}
			if res.Confidence <= 0 {
				t.Errorf("confidence = %f, want > 0", res.Confidence)
			}
		})
	}
}

func TestResolveNegativeTriggerVetoes(t *testing.T) {
	r := New(testConfig(), nil)

	res, err := r.Resolve(context.Background(), Request{
		TenantID:   "t1",
		Utterance:  "is my water heater covered by warranty",
		Candidates: testCandidates(),
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Matched() && res.Candidate.ID == "scn-heater" {
		t.Error("negative trigger did not veto the match")
	}
}

func TestResolveLexicalTier(t *testing.T) {
	cfg := testConfig()
	cfg.Tier2MinConfidence = 0.4
	r := New(cfg, nil)

	// No trigger phrase appears verbatim, but the vocabulary overlaps the
	// heater scenario strongly.
	res, err := r.Resolve(context.Background(), Request{
		TenantID:   "t1",
		Utterance:  "my heater broke and the water is cold",
		Candidates: testCandidates(),
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Matched() {
		t.Fatal("expected a lexical match")
	}
	if res.Candidate.ID != "scn-heater" {
		t.Errorf("candidate = %s, want scn-heater", res.Candidate.ID)
	}
}

func TestResolveGenerativeTier(t *testing.T) {
	ctx := context.Background()
	novel := "the thing in the garage is making a weird banging noise"

	t.Run("gated off never calls provider", func(t *testing.T) {
		mock := &mockGenerative{result: &llm.ClassifyResult{Matched: true, ScenarioID: "scn-heater", Confidence: 0.9}}
		r := New(testConfig(), mock)

		res, err := r.Resolve(ctx, Request{
			TenantID: "t1", Utterance: novel, Candidates: testCandidates(),
			AllowGenerative: false,
		})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if res.Matched() {
			t.Errorf("candidate = %s, want no match", res.Candidate.ID)
		}
		if mock.calls != 0 {
			t.Errorf("provider calls = %d, want 0", mock.calls)
		}
	})

	t.Run("accepted above confidence floor", func(t *testing.T) {
		mock := &mockGenerative{result: &llm.ClassifyResult{Matched: true, ScenarioID: "scn-heater", Confidence: 0.9, TokensUsed: 120}}
		r := New(testConfig(), mock)

		res, err := r.Resolve(ctx, Request{
			TenantID: "t1", Utterance: novel, Candidates: testCandidates(),
			AllowGenerative: true,
		})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if !res.Matched() || res.Candidate.ID != "scn-heater" {
			t.Fatalf("candidate = %+v, want scn-heater", res.Candidate)
		}
		if res.ResolvedBy != TierGenerative {
			t.Errorf("resolvedBy = %s, want %s", res.ResolvedBy, TierGenerative)
		}
		if res.TokensUsed != 120 {
			t.Errorf("tokensUsed = %d, want 120", res.TokensUsed)
		}
	})

	t.Run("below confidence floor rejected", func(t *testing.T) {
		mock := &mockGenerative{result: &llm.ClassifyResult{Matched: true, ScenarioID: "scn-heater", Confidence: 0.4}}
		r := New(testConfig(), mock)

		res, _ := r.Resolve(ctx, Request{
			TenantID: "t1", Utterance: novel, Candidates: testCandidates(),
			AllowGenerative: true,
		})
		if res.Matched() {
			t.Error("low-confidence provider verdict should not match")
		}
	})

	t.Run("provider error degrades to no match", func(t *testing.T) {
		mock := &mockGenerative{err: errors.New("upstream 500")}
		r := New(testConfig(), mock)

		res, err := r.Resolve(ctx, Request{
			TenantID: "t1", Utterance: novel, Candidates: testCandidates(),
			AllowGenerative: true,
		})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if res.Matched() {
			t.Error("provider error should degrade to no match")
		}
	})

	t.Run("timeout degrades to no match without retry", func(t *testing.T) {
		cfg := testConfig()
		cfg.Tier3Timeout = 10 * time.Millisecond
		mock := &mockGenerative{
			delay:  200 * time.Millisecond,
			result: &llm.ClassifyResult{Matched: true, ScenarioID: "scn-heater", Confidence: 0.9},
		}
		r := New(cfg, mock)

		start := time.Now()
		res, err := r.Resolve(ctx, Request{
			TenantID: "t1", Utterance: novel, Candidates: testCandidates(),
			AllowGenerative: true,
		})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if res.Matched() {
			t.Error("timed-out provider call should degrade to no match")
		}
		if mock.calls != 1 {
			t.Errorf("provider calls = %d, want 1 (no retry)", mock.calls)
		}
		if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
			t.Errorf("resolve blocked %v past the tier timeout", elapsed)
		}
	})

	t.Run("unknown scenario id rejected", func(t *testing.T) {
		mock := &mockGenerative{result: &llm.ClassifyResult{Matched: true, ScenarioID: "scn-ghost", Confidence: 0.95}}
		r := New(testConfig(), mock)

		res, _ := r.Resolve(ctx, Request{
			TenantID: "t1", Utterance: novel, Candidates: testCandidates(),
			AllowGenerative: true,
		})
		if res.Matched() {
			t.Error("unknown scenario id should not match")
		}
	})
}

func TestResolveForcedCandidate(t *testing.T) {
	mock := &mockGenerative{result: &llm.ClassifyResult{Matched: true, ScenarioID: "scn-hours", Confidence: 0.9}}
	r := New(testConfig(), mock)

	res, err := r.Resolve(context.Background(), Request{
		TenantID:          "t1",
		Utterance:         "anything at all",
		Candidates:        testCandidates(),
		AllowGenerative:   true,
		ForcedCandidateID: "scn-heater",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Matched() || res.Candidate.ID != "scn-heater" {
		t.Fatalf("candidate = %+v, want forced scn-heater", res.Candidate)
	}
	if res.ResolvedBy != TierForced {
		t.Errorf("resolvedBy = %s, want %s", res.ResolvedBy, TierForced)
	}
	if mock.calls != 0 {
		t.Errorf("provider calls = %d, want 0", mock.calls)
	}
}

func TestResolveNoScenarios(t *testing.T) {
	r := New(testConfig(), nil)
	_, err := r.Resolve(context.Background(), Request{TenantID: "t1", Utterance: "hello"})
	if !errors.Is(err, ErrNoScenarios) {
		t.Errorf("err = %v, want ErrNoScenarios", err)
	}
}

func TestProvisional(t *testing.T) {
	r := New(testConfig(), nil)

	if got := r.Provisional("no hot water since this morning", testCandidates()); got == nil || got.Intent != "water_heater_repair" {
		t.Errorf("provisional = %+v, want water_heater_repair", got)
	}
	if got := r.Provisional("completely unrelated chatter about weather today", testCandidates()); got != nil {
		t.Errorf("provisional = %+v, want nil", got)
	}
}

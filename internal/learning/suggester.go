// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package learning

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/chatterlinx/voicecore/internal/triage"
)

// RuleSuggestion is a proposed triage rule derived from learned resolution
// paths. Suggestions are never applied automatically; an operator promotes
// them through the management API, which stores them as AI_SUGGESTED rules.
type RuleSuggestion struct {
	Rule       triage.Rule `json:"rule"`
	Confidence float64     `json:"confidence"`
	SampleSize int         `json:"sample_size"`
	Rationale  string      `json:"rationale"`
}

// Suggester turns accumulated resolution paths into rule suggestions.
type Suggester struct {
	store *Store

	// MinSampleSize filters out paths without enough evidence.
	MinSampleSize int
	// MinConfidence filters out weak suggestions.
	MinConfidence float64
}

func NewSuggester(store *Store) *Suggester {
	return &Suggester{store: store, MinSampleSize: 10, MinConfidence: 0.7}
}

// Suggest analyzes a tenant's resolution paths and proposes triage rules for
// intents that keep resolving to the same scenario. Routing such intents
// through an explicit rule skips the resolver work entirely on future calls.
func (sg *Suggester) Suggest(ctx context.Context, tenantID string) ([]RuleSuggestion, error) {
	paths, err := sg.store.TenantPaths(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var suggestions []RuleSuggestion
	for _, p := range paths {
		if p.SampleSize < sg.MinSampleSize {
			continue
		}
		conf := pathConfidence(p.SuccessCount, p.SampleSize)
		if conf < sg.MinConfidence {
			continue
		}
		keywords := intentKeywords(p.Intent)
		if len(keywords) == 0 {
			continue
		}
		suggestions = append(suggestions, RuleSuggestion{
			Rule: triage.Rule{
				TenantID:    tenantID,
				Keywords:    keywords,
				Action:      triage.ActionDirectToResolver,
				ServiceType: p.Category,
				Priority:    10,
				Source:      triage.SourceAISuggested,
				Active:      false,
				UpdatedAt:   time.Now(),
			},
			Confidence: conf,
			SampleSize: p.SampleSize,
			Rationale:  "intent '" + p.Intent + "' resolved to scenario " + p.CandidateID + " consistently",
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	return suggestions, nil
}

// pathConfidence scores a path by success rate dampened by sample size, on a
// logarithmic curve that approaches 1.0 around a hundred samples.
func pathConfidence(successCount, sampleSize int) float64 {
	if sampleSize == 0 {
		return 0
	}
	rate := float64(successCount) / float64(sampleSize)

	samplePenalty := 1.0
	if sampleSize < 100 {
		samplePenalty = math.Log(float64(sampleSize)+1) / math.Log(101)
	}

	conf := rate * samplePenalty
	if conf > 1 {
		conf = 1
	}
	return conf
}

// intentKeywords derives rule keywords from an intent identifier like
// "water_heater_repair".
func intentKeywords(intent string) []string {
	var keywords []string
	for _, part := range strings.FieldsFunc(intent, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	}) {
		if len(part) > 2 {
			keywords = append(keywords, strings.ToLower(part))
		}
	}
	return keywords
}

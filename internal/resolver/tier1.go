// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package resolver

import (
	"strings"

	"github.com/chatterlinx/voicecore/internal/scenario"
)

// matchTriggers is the deterministic first tier: a candidate matches when at
// least one of its trigger phrases appears in the utterance and none of its
// negative triggers do. Confidence is the share of the utterance covered by
// the longest matched trigger, so a full-phrase hit scores 1.0 and a single
// word inside a long sentence scores low. Ties break on candidate ID to keep
// the tier fully deterministic.
func (r *Resolver) matchTriggers(utterance string, candidates []scenario.Candidate) (*scenario.Candidate, float64) {
	if utterance == "" {
		return nil, 0
	}

	var best *scenario.Candidate
	var bestConf float64
	for i := range candidates {
		cand := &candidates[i]
		conf := triggerConfidence(utterance, cand)
		if conf > bestConf || (conf == bestConf && conf > 0 && best != nil && cand.ID < best.ID) {
			best = cand
			bestConf = conf
		}
	}
	return best, bestConf
}

func triggerConfidence(utterance string, cand *scenario.Candidate) float64 {
	for _, neg := range cand.NegativeTriggers {
		if neg != "" && strings.Contains(utterance, strings.ToLower(neg)) {
			return 0
		}
	}

	longest := 0
	for _, trig := range cand.Triggers {
		trig = strings.ToLower(strings.TrimSpace(trig))
		if trig == "" || !strings.Contains(utterance, trig) {
			continue
		}
		if len(trig) > longest {
			longest = len(trig)
		}
	}
	if longest == 0 {
		return 0
	}
	conf := float64(longest) / float64(len(utterance))
	if conf > 1 {
		conf = 1
	}
	return conf
}

// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package resolver

import (
	"math"
	"strings"

	"github.com/chatterlinx/voicecore/internal/scenario"
)

// LexicalEngine is the second tier: token-set cosine similarity between the
// utterance and the text that describes a candidate (its triggers and
// intent). It is cheap enough to run against every candidate on every turn
// and catches rephrasings the exact triggers miss.
type LexicalEngine struct {
	stopwords map[string]struct{}
}

// Filler words carry no intent signal over the phone and only dilute the
// cosine, so they are dropped before scoring.
var defaultStopwords = []string{
	"a", "an", "the", "i", "my", "me", "is", "it", "its", "im", "to",
	"of", "and", "or", "so", "um", "uh", "like", "please", "hi", "hello",
	"yeah", "you", "your", "can", "could", "would", "need", "want",
}

func NewLexicalEngine() *LexicalEngine {
	stop := make(map[string]struct{}, len(defaultStopwords))
	for _, w := range defaultStopwords {
		stop[w] = struct{}{}
	}
	return &LexicalEngine{stopwords: stop}
}

// Score returns the cosine similarity in [0,1] between the utterance and the
// candidate's vocabulary.
func (e *LexicalEngine) Score(utterance string, cand *scenario.Candidate) float64 {
	utterVec := e.vectorize(utterance)
	if len(utterVec) == 0 {
		return 0
	}

	var candText strings.Builder
	candText.WriteString(cand.Intent)
	candText.WriteString(" ")
	candText.WriteString(cand.Category)
	for _, t := range cand.Triggers {
		candText.WriteString(" ")
		candText.WriteString(t)
	}
	candVec := e.vectorize(candText.String())
	if len(candVec) == 0 {
		return 0
	}

	return cosine(utterVec, candVec)
}

func (e *LexicalEngine) vectorize(text string) map[string]float64 {
	vec := make(map[string]float64)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?'\"-")
		if tok == "" {
			continue
		}
		if _, skip := e.stopwords[tok]; skip {
			continue
		}
		vec[tok]++
	}
	return vec
}

func cosine(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for tok, wa := range a {
		normA += wa * wa
		if wb, ok := b[tok]; ok {
			dot += wa * wb
		}
	}
	for _, wb := range b {
		normB += wb * wb
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// matchLexical scores every candidate and returns the best, respecting
// negative triggers the same way the first tier does. Ties break on ID.
func (r *Resolver) matchLexical(utterance string, candidates []scenario.Candidate) (*scenario.Candidate, float64) {
	var best *scenario.Candidate
	var bestScore float64
	for i := range candidates {
		cand := &candidates[i]
		if hasNegativeTrigger(utterance, cand) {
			continue
		}
		score := r.lexical.Score(utterance, cand)
		if score > bestScore || (score == bestScore && score > 0 && best != nil && cand.ID < best.ID) {
			best = cand
			bestScore = score
		}
	}
	return best, bestScore
}

func hasNegativeTrigger(utterance string, cand *scenario.Candidate) bool {
	for _, neg := range cand.NegativeTriggers {
		if neg != "" && strings.Contains(utterance, strings.ToLower(neg)) {
			return true
		}
	}
	return false
}

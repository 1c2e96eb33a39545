// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package triage

import (
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	log "github.com/sirupsen/logrus"
)

// MatchMethod records how a rule's keywords were satisfied, for observability.
type MatchMethod string

const (
	// MatchExact means every keyword was found in the utterance itself.
	MatchExact MatchMethod = "exact"
	// MatchAuxiliary means at least one keyword came from the auxiliary list
	// (e.g. upstream LLM-extracted keywords).
	MatchAuxiliary MatchMethod = "auxiliary"
	// MatchFallback means no authored rule matched and the synthetic
	// fallback was returned.
	MatchFallback MatchMethod = "fallback"
)

// MatchResult is the triage decision for one utterance. Exactly one rule is
// always present because every compiled set ends in the fallback rule.
type MatchResult struct {
	Rule            *Rule       `json:"rule"`
	Method          MatchMethod `json:"method"`
	MatchedKeywords []string    `json:"matched_keywords,omitempty"`
}

// MatchEnv is the environment optional rule conditions are evaluated against.
type MatchEnv struct {
	Utterance   string   `expr:"utterance"`
	AuxKeywords []string `expr:"aux_keywords"`
	Hour        int      `expr:"hour"`
}

// Matcher walks a compiled rule set and returns the first satisfied rule.
// It is pure computation apart from condition evaluation, and is shared
// between the production pipeline and the admin test-match endpoint.
type Matcher struct {
	// Precompiled condition programs, keyed by expression text.
	mu       sync.Mutex
	programs map[string]*vm.Program
}

// NewMatcher creates a matcher with an empty condition-program cache.
func NewMatcher() *Matcher {
	return &Matcher{programs: make(map[string]*vm.Program)}
}

// Match returns the first rule of set satisfied by the normalized utterance
// and the optional auxiliary keyword list. It never returns a nil rule.
func (m *Matcher) Match(set *CompiledRuleSet, normalizedUtterance string, auxKeywords []string) MatchResult {
	utterance := NormalizeUtterance(normalizedUtterance)

	aux := make(map[string]bool, len(auxKeywords))
	for _, kw := range auxKeywords {
		aux[strings.ToLower(strings.TrimSpace(kw))] = true
	}

	env := MatchEnv{Utterance: utterance, AuxKeywords: auxKeywords, Hour: time.Now().Hour()}

	for i := range set.Rules {
		rule := &set.Rules[i]
		matched, method, keywords := m.ruleMatches(rule, utterance, aux, env)
		if !matched {
			continue
		}
		if rule.IsFallback() {
			method = MatchFallback
		}
		return MatchResult{Rule: rule, Method: method, MatchedKeywords: keywords}
	}

	// Unreachable by the fallback invariant, kept as a hard guarantee.
	return MatchResult{Rule: set.Fallback(), Method: MatchFallback}
}

// ruleMatches checks a single rule: all keywords required, any exclude
// keyword vetoes, then the optional condition must pass.
func (m *Matcher) ruleMatches(rule *Rule, utterance string, aux map[string]bool, env MatchEnv) (bool, MatchMethod, []string) {
	// Exclude keywords veto regardless of keyword satisfaction.
	for _, kw := range rule.ExcludeKeywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(utterance, kw) || aux[kw] {
			return false, "", nil
		}
	}

	method := MatchExact
	matched := make([]string, 0, len(rule.Keywords))
	for _, kw := range rule.Keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		switch {
		case strings.Contains(utterance, kw):
			matched = append(matched, kw)
		case aux[kw]:
			matched = append(matched, kw)
			method = MatchAuxiliary
		default:
			return false, "", nil
		}
	}

	ok, err := m.evalCondition(rule.Condition, env)
	if err != nil {
		log.Warnf("triage: condition on rule %s failed to evaluate, treating as no match: %v", rule.ID, err)
		return false, "", nil
	}
	if !ok {
		return false, "", nil
	}

	return true, method, matched
}

// evalCondition evaluates an optional expr condition against the match
// environment. Programs are compiled once and reused.
func (m *Matcher) evalCondition(condition string, env MatchEnv) (bool, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" || condition == "true" {
		return true, nil
	}

	m.mu.Lock()
	program, ok := m.programs[condition]
	if !ok {
		var err error
		program, err = expr.Compile(condition, expr.Env(env), expr.AsBool())
		if err != nil {
			m.mu.Unlock()
			return false, err
		}
		m.programs[condition] = program
	}
	m.mu.Unlock()

	output, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	result, ok := output.(bool)
	if !ok {
		return false, nil
	}
	return result, nil
}

// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package triage implements the short-circuit classification pass that can
// end a call before expensive resolution runs. Tenant rules are compiled
// into a deterministically ordered set and matched against each utterance.
package triage

import (
	"sort"
	"strings"
	"time"
)

// Action is the directive a matched rule carries. The set is closed; the
// action executor switches exhaustively over it.
type Action string

const (
	// ActionDirectToResolver defers the turn to the knowledge resolver.
	ActionDirectToResolver Action = "DIRECT_TO_RESOLVER"
	// ActionExplainAndPush answers from the resolver, then pushes toward booking.
	ActionExplainAndPush Action = "EXPLAIN_AND_PUSH"
	// ActionEscalateToHuman transfers the call to a human immediately.
	ActionEscalateToHuman Action = "ESCALATE_TO_HUMAN"
	// ActionTakeMessage collects a message and ends the call.
	ActionTakeMessage Action = "TAKE_MESSAGE"
	// ActionEndCallPolite ends the call with a polite sign-off.
	ActionEndCallPolite Action = "END_CALL_POLITE"
)

// Terminal reports whether the action short-circuits the pipeline without
// consulting the resolver.
func (a Action) Terminal() bool {
	switch a {
	case ActionEscalateToHuman, ActionTakeMessage, ActionEndCallPolite:
		return true
	}
	return false
}

// Source identifies where a rule came from. Ordering rank: MANUAL beats
// AI_SUGGESTED beats SYSTEM when priorities tie.
type Source string

const (
	SourceManual      Source = "MANUAL"
	SourceAISuggested Source = "AI_SUGGESTED"
	SourceSystem      Source = "SYSTEM"
)

// rank returns the tie-break rank of a source (lower wins).
func (s Source) rank() int {
	switch s {
	case SourceManual:
		return 0
	case SourceAISuggested:
		return 1
	default:
		return 2
	}
}

// Rule is an immutable triage rule. Once compiled into a set it is never
// mutated; edits produce a new compiled set.
type Rule struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	Keywords        []string  `json:"keywords"`         // all required (AND)
	ExcludeKeywords []string  `json:"exclude_keywords"` // any present vetoes the match
	Condition       string    `json:"condition,omitempty"` // optional expr, empty means always true
	Action          Action    `json:"action"`
	ServiceType     string    `json:"service_type"`
	Priority        int       `json:"priority"`
	Source          Source    `json:"source"`
	Active          bool      `json:"active"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsFallback reports whether this is the synthetic always-matching rule.
func (r *Rule) IsFallback() bool {
	return r.Source == SourceSystem && len(r.Keywords) == 0 && len(r.ExcludeKeywords) == 0
}

// CompiledRuleSet is an immutable, deterministically ordered rule list for
// one tenant. The last entry is always the synthetic fallback rule.
type CompiledRuleSet struct {
	TenantID   string    `json:"tenant_id"`
	Rules      []Rule    `json:"rules"`
	CompiledAt time.Time `json:"compiled_at"`
}

// Fallback returns the synthetic fallback rule. By construction it is the
// last rule of every compiled set.
func (s *CompiledRuleSet) Fallback() *Rule {
	return &s.Rules[len(s.Rules)-1]
}

// CompareRules is the single ordering comparator shared by the compiler and
// the admin test-match preview: priority descending, then source rank, then
// most recent UpdatedAt, then rule ID ascending as the final deterministic key.
func CompareRules(a, b *Rule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.Source.rank() != b.Source.rank() {
		return a.Source.rank() < b.Source.rank()
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID < b.ID
}

// sortRules orders rules in place using CompareRules.
func sortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return CompareRules(&rules[i], &rules[j])
	})
}

// NormalizeUtterance lowercases an utterance and collapses whitespace so
// keyword containment checks behave consistently across transcription quirks.
func NormalizeUtterance(utterance string) string {
	return strings.Join(strings.Fields(strings.ToLower(utterance)), " ")
}

// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pipeline is the per-turn decision engine. Each turn flows through
// triage, memory hydration, the optimization gate, the knowledge resolver,
// response assembly, and the action state machine, with learning recorded
// off the request path. Degradation is graded: a broken dependency lowers
// answer quality but never crashes a live call.
package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/chatterlinx/voicecore/internal/action"
	"github.com/chatterlinx/voicecore/internal/assembler"
	"github.com/chatterlinx/voicecore/internal/gate"
	"github.com/chatterlinx/voicecore/internal/learning"
	"github.com/chatterlinx/voicecore/internal/memory"
	"github.com/chatterlinx/voicecore/internal/resolver"
	"github.com/chatterlinx/voicecore/internal/scenario"
	"github.com/chatterlinx/voicecore/internal/session"
	"github.com/chatterlinx/voicecore/internal/triage"
)

// Scripted phrases for turns the resolver never sees. Tenants can override
// these through scenario packs; these are the last-resort defaults.
const (
	phraseEscalate    = "Of course, let me get someone on the line for you. One moment please."
	phraseTakeMessage = "I'd be happy to take a message. Please go ahead whenever you're ready."
	phraseEndCall     = "Thanks so much for calling. Have a great day!"
	phraseClarify     = "I want to make sure I get this right. Could you tell me a little more about what you need?"
	phrasePushToBook  = "Would you like me to get a visit scheduled for you?"
)

// TurnRequest is one caller utterance entering the engine.
type TurnRequest struct {
	TenantID    string            `json:"tenant_id"`
	CallID      string            `json:"call_id"`
	CallerID    string            `json:"caller_id"`
	Utterance   string            `json:"utterance"`
	AuxKeywords []string          `json:"aux_keywords,omitempty"`
	Channel     assembler.Channel `json:"channel,omitempty"`

	// Slots carries structured fields the caller's platform extracted this
	// turn (address, callback number, name, urgency). Non-empty fields are
	// merged into the session before the turn is decided.
	Slots *session.Slots `json:"slots,omitempty"`
}

// Trace explains how a turn was decided. Returned to the caller and logged;
// it is the primary debugging surface for tuning rules and thresholds.
type Trace struct {
	NormalizedUtterance string             `json:"normalized_utterance"`
	TriageRuleID        string             `json:"triage_rule_id"`
	TriageAction        triage.Action      `json:"triage_action"`
	TriageMethod        triage.MatchMethod `json:"triage_method"`
	GateReason          gate.Reason        `json:"gate_reason,omitempty"`
	ResolvedBy          resolver.Tier      `json:"resolved_by,omitempty"`
	CandidateID         string             `json:"candidate_id,omitempty"`
	Confidence          float64            `json:"confidence,omitempty"`
	TokensUsed          int                `json:"tokens_used,omitempty"`
	DurationMs          int64              `json:"duration_ms"`
}

// TurnResult is the engine's answer for one turn. Session is the updated
// call state after the turn, so the calling platform can mirror it.
type TurnResult struct {
	ResponseText string                  `json:"response_text"`
	Action       action.State            `json:"action"`
	Booking      *session.BookingPayload `json:"booking,omitempty"`
	Session      *session.CallSession    `json:"session_state,omitempty"`
	Trace        Trace                   `json:"trace"`
}

// Engine wires the per-turn components. All dependencies are injected so
// tests can replace any stage.
type Engine struct {
	compiler  *triage.Compiler
	matcher   *triage.Matcher
	scenarios *scenario.Loader
	sessions  *session.Manager
	hydrator  *memory.Hydrator
	gate      *gate.Gate
	resolver  *resolver.Resolver
	assembler *assembler.Assembler
	recorder  *learning.Recorder

	turnsTotal      atomic.Int64
	turnsShortCut   atomic.Int64
	turnsUnmatched  atomic.Int64
	turnsGenerative atomic.Int64
}

func NewEngine(
	compiler *triage.Compiler,
	matcher *triage.Matcher,
	scenarios *scenario.Loader,
	sessions *session.Manager,
	hydrator *memory.Hydrator,
	g *gate.Gate,
	res *resolver.Resolver,
	asm *assembler.Assembler,
	recorder *learning.Recorder,
) *Engine {
	return &Engine{
		compiler:  compiler,
		matcher:   matcher,
		scenarios: scenarios,
		sessions:  sessions,
		hydrator:  hydrator,
		gate:      g,
		resolver:  res,
		assembler: asm,
		recorder:  recorder,
	}
}

// ProcessTurn runs one utterance through the full pipeline. Turns of the
// same call are serialized by the session manager; turns of different calls
// run in parallel.
func (e *Engine) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	start := time.Now()
	e.turnsTotal.Add(1)
	if req.Channel == "" {
		req.Channel = assembler.ChannelVoice
	}

	sess, release := e.sessions.Acquire(req.TenantID, req.CallID, req.CallerID)
	defer release()
	if req.Slots != nil {
		sess.MergeSlots(*req.Slots)
	}

	logger := log.WithField("call_id", req.CallID)
	normalized := triage.NormalizeUtterance(req.Utterance)

	// Stage 1: triage. Always yields exactly one rule.
	ruleSet := e.compiler.Compiled(ctx, req.TenantID)
	match := e.matcher.Match(ruleSet, normalized, req.AuxKeywords)
	sess.LastTriageRuleID = match.Rule.ID
	sess.LastTriageAction = string(match.Rule.Action)

	trace := Trace{
		NormalizedUtterance: normalized,
		TriageRuleID:        match.Rule.ID,
		TriageAction:        match.Rule.Action,
		TriageMethod:        match.Method,
	}

	machine := action.NewMachine(req.CallID)

	// Terminal triage actions never touch the resolver.
	if match.Rule.Action.Terminal() {
		e.turnsShortCut.Add(1)
		state := machine.ApplyTriage(match.Rule.Action, match.Rule.ID)
		return e.finish(sess, req, trace, terminalPhrase(state), state, "", start), nil
	}
	machine.ApplyTriage(match.Rule.Action, match.Rule.ID)

	candidates := e.scenarios.Candidates(req.TenantID)

	// Stage 2: hydrate memory, keyed by the free provisional classification.
	var provIntent, provCategory string
	if prov := e.resolver.Provisional(normalized, candidates); prov != nil {
		provIntent, provCategory = prov.Intent, prov.Category
	}
	snap := e.hydrator.Hydrate(ctx, req.TenantID, req.CallerID, provCategory, normalized)
	if snap.ReturnCustomer {
		sess.ReturnCustomer = true
	}

	// Stage 3: the gate decides whether this turn may spend money.
	decision := e.gate.Decide(snap, provIntent, provCategory)
	trace.GateReason = decision.Reason

	if decision.CachedResponse != "" {
		trace.ResolvedBy = "cached"
		sess.Slots.IssueCategory = firstNonEmpty(sess.Slots.IssueCategory, provCategory)
		e.recordOutcome(req, normalized, provIntent, provCategory, "", decision.CachedResponse, true)
		return e.finish(sess, req, trace, decision.CachedResponse, action.StateContinue, "", start), nil
	}

	// Stage 4: the cascade.
	resolution, err := e.resolver.Resolve(ctx, resolver.Request{
		TenantID:          req.TenantID,
		Utterance:         normalized,
		Candidates:        candidates,
		AllowGenerative:   decision.UseExpensiveResolver,
		ForcedCandidateID: decision.ForcedCandidateID,
	})
	if err != nil {
		if errors.Is(err, resolver.ErrNoScenarios) {
			// Tenant misconfiguration: say something safe and hand off.
			logger.Errorf("pipeline: %v", err)
			machine.ApplyTriage(triage.ActionEscalateToHuman, match.Rule.ID)
			return e.finish(sess, req, trace, action.SafePhrase, action.StateEscalate, "", start), nil
		}
		return nil, err
	}
	trace.TokensUsed = resolution.TokensUsed
	if resolution.ResolvedBy == resolver.TierGenerative {
		e.turnsGenerative.Add(1)
	}

	// Stage 5: assemble and act.
	if !resolution.Matched() {
		e.turnsUnmatched.Add(1)
		e.recordOutcome(req, normalized, provIntent, provCategory, "", "", false)
		return e.finish(sess, req, trace, phraseClarify, action.StateContinue, "", start), nil
	}

	cand := resolution.Candidate
	trace.ResolvedBy = resolution.ResolvedBy
	trace.CandidateID = cand.ID
	trace.Confidence = resolution.Confidence

	sess.Slots.IssueCategory = firstNonEmpty(sess.Slots.IssueCategory, cand.Category)

	assembled := e.assembler.Assemble(cand, req.Channel, e.scenarios.Fillers(req.TenantID))
	text := assembled.Text
	if text == "" {
		logger.Warnf("pipeline: scenario %s has no reply variants, escalating", cand.ID)
		machine.ApplyTriage(triage.ActionEscalateToHuman, match.Rule.ID)
		return e.finish(sess, req, trace, action.SafePhrase, action.StateEscalate, "", start), nil
	}
	if match.Rule.Action == triage.ActionExplainAndPush && assembled.FollowUp == scenario.FollowUpNone {
		text += " " + phrasePushToBook
	}

	sess.BookingReady = sess.Slots.IssueCategory != "" && (sess.Slots.Address != "" || sess.Slots.CallbackNumber != "")
	state := machine.ApplyFollowUp(assembled.FollowUp, sess.BookingReady)

	e.recordOutcome(req, normalized, cand.Intent, cand.Category, cand.ID, text, true)
	return e.finish(sess, req, trace, text, state, string(resolution.ResolvedBy), start), nil
}

// EndCall closes a session and flushes it to the archive.
func (e *Engine) EndCall(callID string) {
	e.sessions.End(callID)
}

// Stats exposes the engine counters for the health endpoint.
func (e *Engine) Stats() map[string]int64 {
	return map[string]int64{
		"turns_total":      e.turnsTotal.Load(),
		"turns_shortcut":   e.turnsShortCut.Load(),
		"turns_unmatched":  e.turnsUnmatched.Load(),
		"turns_generative": e.turnsGenerative.Load(),
	}
}

// finish records the turn on the session and builds the result.
func (e *Engine) finish(sess *session.CallSession, req TurnRequest, trace Trace, text string, state action.State, resolvedBy string, start time.Time) *TurnResult {
	trace.DurationMs = time.Since(start).Milliseconds()

	sess.AppendTurn(session.Turn{
		Utterance:    req.Utterance,
		Response:     text,
		Action:       string(state),
		TriageRuleID: trace.TriageRuleID,
		ResolvedBy:   resolvedBy,
	})

	result := &TurnResult{ResponseText: text, Action: state, Trace: trace}
	if state == action.StateBookingHandoff {
		sess.Booking = sess.BuildBookingPayload()
		result.Booking = sess.Booking
	}
	if state.Terminal() {
		e.sessions.End(sess.CallID)
	}
	result.Session = sess.Clone()

	log.WithField("call_id", req.CallID).Infof(
		"turn decided | action=%s rule=%s gate=%s tier=%s dur=%dms",
		state, trace.TriageRuleID, trace.GateReason, trace.ResolvedBy, trace.DurationMs)
	return result
}

// recordOutcome fires the async learning write.
func (e *Engine) recordOutcome(req TurnRequest, normalized, intent, category, candidateID, response string, success bool) {
	if intent == "" && candidateID == "" && success {
		return
	}
	e.recorder.Record(learning.TurnOutcome{
		TenantID:            req.TenantID,
		CallerID:            req.CallerID,
		Intent:              intent,
		Category:            category,
		CandidateID:         candidateID,
		NormalizedUtterance: normalized,
		ResponseText:        response,
		Success:             success,
	})
}

func terminalPhrase(state action.State) string {
	switch state {
	case action.StateTakeMessage:
		return phraseTakeMessage
	case action.StateEndCall:
		return phraseEndCall
	default:
		return phraseEscalate
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package session holds the mutable per-call state threaded through all
// turns of one phone call. A session is single-writer: the manager
// serializes turn processing per call, so session fields need no locking.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Slots are the structured fields extracted from the conversation so far.
type Slots struct {
	FirstName      string `json:"first_name,omitempty"`
	Address        string `json:"address,omitempty"`
	CallbackNumber string `json:"callback_number,omitempty"`
	IssueCategory  string `json:"issue_category,omitempty"`
	Urgency        string `json:"urgency,omitempty"`
}

// Turn records one utterance/response exchange.
type Turn struct {
	Index        int       `json:"index"`
	Utterance    string    `json:"utterance"`
	Response     string    `json:"response"`
	Action       string    `json:"action"`
	TriageRuleID string    `json:"triage_rule_id,omitempty"`
	ResolvedBy   string    `json:"resolved_by,omitempty"` // tier1, tier2, tier3, cached, forced
	At           time.Time `json:"at"`
}

// BookingPayload is handed to the booking collaborator on BOOKING_HANDOFF.
type BookingPayload struct {
	CallerContext  CallerContext     `json:"caller_context"`
	PreFilledSlots map[string]string `json:"pre_filled_slots,omitempty"`
}

// CallerContext is the caller summary inside a booking handoff.
type CallerContext struct {
	FirstName        string `json:"first_name,omitempty"`
	IssueCategory    string `json:"issue_category"`
	Urgency          string `json:"urgency"`
	IsReturnCustomer bool   `json:"is_return_customer"`
}

// CallSession is the per-call state. Created on call start, mutated turn by
// turn by exactly one goroutine at a time, archived on call end.
type CallSession struct {
	CallID   string `json:"call_id"`
	TenantID string `json:"tenant_id"`
	CallerID string `json:"caller_id"`

	Turns []Turn `json:"turns"`
	Slots Slots  `json:"slots"`

	// LastTriage records what triage decided this turn so downstream
	// components consult it without recomputation.
	LastTriageRuleID string `json:"last_triage_rule_id,omitempty"`
	LastTriageAction string `json:"last_triage_action,omitempty"`

	// ReturnCustomer is set by the pipeline from the hydrated memory
	// snapshot once the caller is recognized.
	ReturnCustomer bool `json:"return_customer"`

	// BookingReady is set once enough slots are filled to hand off.
	BookingReady bool            `json:"booking_ready"`
	Booking      *BookingPayload `json:"booking,omitempty"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Ended     bool      `json:"ended"`
}

// MergeSlots overlays the non-empty fields of u onto the session's slots.
// Empty fields in u never clear a value captured on an earlier turn.
func (s *CallSession) MergeSlots(u Slots) {
	if u.FirstName != "" {
		s.Slots.FirstName = u.FirstName
	}
	if u.Address != "" {
		s.Slots.Address = u.Address
	}
	if u.CallbackNumber != "" {
		s.Slots.CallbackNumber = u.CallbackNumber
	}
	if u.IssueCategory != "" {
		s.Slots.IssueCategory = u.IssueCategory
	}
	if u.Urgency != "" {
		s.Slots.Urgency = u.Urgency
	}
}

// Clone returns a copy safe to hand outside the turn lock. The turn slice is
// copied; the booking payload pointer is shared because it is write-once.
func (s *CallSession) Clone() *CallSession {
	c := *s
	c.Turns = append([]Turn(nil), s.Turns...)
	return &c
}

// AppendTurn records a completed turn on the session.
func (s *CallSession) AppendTurn(t Turn) {
	t.Index = len(s.Turns)
	t.At = time.Now()
	s.Turns = append(s.Turns, t)
}

// BuildBookingPayload assembles the handoff payload from the session's
// slots and caller recognition state.
func (s *CallSession) BuildBookingPayload() *BookingPayload {
	payload := &BookingPayload{
		CallerContext: CallerContext{
			FirstName:        s.Slots.FirstName,
			IssueCategory:    s.Slots.IssueCategory,
			Urgency:          s.Slots.Urgency,
			IsReturnCustomer: s.ReturnCustomer,
		},
		PreFilledSlots: map[string]string{},
	}
	if s.Slots.Address != "" {
		payload.PreFilledSlots["address"] = s.Slots.Address
	}
	if s.Slots.CallbackNumber != "" {
		payload.PreFilledSlots["callback_number"] = s.Slots.CallbackNumber
	}
	return payload
}

// Manager owns the active sessions and enforces the single-writer rule:
// turns of the same call are processed strictly sequentially while separate
// calls proceed in parallel.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry

	archiver *Archiver
}

type entry struct {
	session *CallSession
	// turnMu serializes turn processing for this call.
	turnMu sync.Mutex
}

// NewManager creates a session manager. The archiver may be nil, in which
// case ended sessions are discarded.
func NewManager(archiver *Archiver) *Manager {
	return &Manager{
		sessions: make(map[string]*entry),
		archiver: archiver,
	}
}

// Acquire returns the session for callID, creating it on first use, with its
// turn lock held. The caller must call the returned release function once
// the turn's action-executor step completes.
func (m *Manager) Acquire(tenantID, callID, callerID string) (*CallSession, func()) {
	m.mu.Lock()
	e, ok := m.sessions[callID]
	if !ok {
		if callID == "" {
			callID = uuid.NewString()
		}
		e = &entry{session: &CallSession{
			CallID:    callID,
			TenantID:  tenantID,
			CallerID:  callerID,
			StartedAt: time.Now(),
		}}
		m.sessions[callID] = e
	}
	m.mu.Unlock()

	e.turnMu.Lock()
	return e.session, e.turnMu.Unlock
}

// End marks the session finished, removes it from the active table, and
// hands it to the archiver.
func (m *Manager) End(callID string) {
	m.mu.Lock()
	e, ok := m.sessions[callID]
	if ok {
		delete(m.sessions, callID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	e.session.Ended = true
	e.session.EndedAt = time.Now()
	if m.archiver != nil {
		m.archiver.Archive(e.session)
	}
}

// ActiveCount returns the number of in-flight calls.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package action is the per-call state machine that decides what the call
// does after each turn: keep talking, hand off, or wind down. Transitions
// are validated; anything invalid degrades to a human escalation with a
// fixed safe phrase rather than leaving the caller stranded.
package action

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/chatterlinx/voicecore/internal/scenario"
	"github.com/chatterlinx/voicecore/internal/triage"
)

// State is the call's control state after a turn.
type State string

const (
	// StateContinue keeps the conversation going.
	StateContinue State = "CONTINUE"
	// StateEscalate hands the call to a human agent.
	StateEscalate State = "ESCALATE_TO_HUMAN"
	// StateTakeMessage switches to message-taking mode.
	StateTakeMessage State = "TAKE_MESSAGE"
	// StateEndCall ends the call politely.
	StateEndCall State = "END_CALL_POLITE"
	// StateBookingHandoff hands off to the booking flow with pre-filled slots.
	StateBookingHandoff State = "BOOKING_HANDOFF"
)

// Terminal reports whether the call is over from the pipeline's perspective.
func (s State) Terminal() bool {
	switch s {
	case StateEscalate, StateTakeMessage, StateEndCall, StateBookingHandoff:
		return true
	}
	return false
}

// SafePhrase is spoken when the machine has no valid move left.
const SafePhrase = "Let me connect you with someone who can help with that."

// validTransitions lists the allowed next states per state. Terminal states
// accept no transitions.
var validTransitions = map[State][]State{
	StateContinue: {StateContinue, StateEscalate, StateTakeMessage, StateEndCall, StateBookingHandoff},
}

// Machine tracks one call's control state. Not safe for concurrent use; the
// session manager serializes turns per call.
type Machine struct {
	callID string
	state  State
}

func NewMachine(callID string) *Machine {
	return &Machine{callID: callID, state: StateContinue}
}

func (m *Machine) State() State { return m.state }

// Transition moves the machine to the next state, logging the move with its
// reason. Invalid transitions are rejected.
func (m *Machine) Transition(to State, reason string) error {
	allowed := false
	for _, next := range validTransitions[m.state] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("action: invalid transition %s -> %s (%s)", m.state, to, reason)
	}
	if to != m.state {
		log.WithField("call_id", m.callID).Infof("action: %s -> %s | reason=%s", m.state, to, reason)
	}
	m.state = to
	return nil
}

// ApplyTriage maps a triage decision onto the machine. The switch is
// exhaustive over the triage action set; an unrecognized action is treated
// as a corrupt rule and escalates.
func (m *Machine) ApplyTriage(act triage.Action, ruleID string) State {
	reason := "triage rule " + ruleID
	var to State
	switch act {
	case triage.ActionDirectToResolver, triage.ActionExplainAndPush:
		to = StateContinue
	case triage.ActionEscalateToHuman:
		to = StateEscalate
	case triage.ActionTakeMessage:
		to = StateTakeMessage
	case triage.ActionEndCallPolite:
		to = StateEndCall
	default:
		log.WithField("call_id", m.callID).Errorf("action: unknown triage action %q, escalating", act)
		to = StateEscalate
		reason = "unknown triage action"
	}
	m.force(to, reason)
	return m.state
}

// ApplyFollowUp maps a scenario's follow-up request onto the machine after
// its reply has been assembled.
func (m *Machine) ApplyFollowUp(fu scenario.FollowUpAction, bookingReady bool) State {
	switch fu {
	case scenario.FollowUpAskToBook:
		if bookingReady {
			m.force(StateBookingHandoff, "booking slots complete")
		}
	case scenario.FollowUpTransfer:
		m.force(StateEscalate, "scenario requested transfer")
	case scenario.FollowUpAskQuestion, scenario.FollowUpNone:
		// conversation continues
	}
	return m.state
}

// force applies a transition, falling back to the escalation path when the
// move is invalid. Escalation from any state is the designed last resort.
func (m *Machine) force(to State, reason string) {
	if err := m.Transition(to, reason); err != nil {
		log.WithField("call_id", m.callID).Warnf("%v, escalating", err)
		m.state = StateEscalate
	}
}

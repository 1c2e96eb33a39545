// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scenario holds the tenant-configured response candidates the
// knowledge resolver matches against, and the loader that keeps them fresh.
package scenario

// Type classifies what kind of response a candidate produces. The set is
// closed; the response assembler switches exhaustively over it.
type Type string

const (
	// TypeInfoFAQ answers an informational question.
	TypeInfoFAQ Type = "INFO_FAQ"
	// TypeActionFlow drives a multi-step action (e.g. booking).
	TypeActionFlow Type = "ACTION_FLOW"
	// TypeSystemAck acknowledges without new information.
	TypeSystemAck Type = "SYSTEM_ACK"
	// TypeSmallTalk handles social chatter.
	TypeSmallTalk Type = "SMALL_TALK"
)

// ReplyStrategy selects among a candidate's reply variants.
type ReplyStrategy string

const (
	// StrategyWeightedRandom picks a weighted random variant (default).
	StrategyWeightedRandom ReplyStrategy = "WEIGHTED_RANDOM"
	// StrategySequential rotates through variants in order.
	StrategySequential ReplyStrategy = "SEQUENTIAL"
	// StrategyFirst always uses the first variant.
	StrategyFirst ReplyStrategy = "FIRST"
)

// FollowUpAction is an optional next step a candidate requests after its
// reply is delivered.
type FollowUpAction string

const (
	FollowUpNone        FollowUpAction = ""
	FollowUpAskToBook   FollowUpAction = "ASK_TO_BOOK"
	FollowUpTransfer    FollowUpAction = "TRANSFER"
	FollowUpAskQuestion FollowUpAction = "ASK_FOLLOW_UP_QUESTION"
)

// ReplyVariant is one way of phrasing a reply, with a selection weight.
type ReplyVariant struct {
	Text   string `yaml:"text" json:"text"`
	Weight int    `yaml:"weight" json:"weight"`
}

// ReplySet holds the variants for the three reply forms.
type ReplySet struct {
	Quick    []ReplyVariant `yaml:"quick" json:"quick"`
	Full     []ReplyVariant `yaml:"full" json:"full"`
	FollowUp []ReplyVariant `yaml:"follow-up" json:"follow_up"`
}

// Candidate is a tenant-configured unit of "what to say" for an intent.
// Read-only from the pipeline's perspective.
type Candidate struct {
	ID               string         `yaml:"id" json:"id"`
	Intent           string         `yaml:"intent" json:"intent"`
	Category         string         `yaml:"category" json:"category"`
	Type             Type           `yaml:"type" json:"type"`
	Triggers         []string       `yaml:"triggers" json:"triggers"`
	NegativeTriggers []string       `yaml:"negative-triggers" json:"negative_triggers"`
	Replies          ReplySet       `yaml:"replies" json:"replies"`
	Strategy         ReplyStrategy  `yaml:"strategy" json:"strategy"`
	FollowUp         FollowUpAction `yaml:"follow-up-action" json:"follow_up_action"`
}

// Pack is the on-disk structure of one tenant's scenario file.
type Pack struct {
	Tenant string `yaml:"tenant"`
	// Fillers are short acknowledgment phrases the assembler may prepend on
	// the voice channel.
	Fillers   []string    `yaml:"fillers"`
	Scenarios []Candidate `yaml:"scenarios"`
}

// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package assembler turns a resolved scenario into the sentence the caller
// actually hears. Variant selection is pluggable-random so tests can inject
// a seeded source and assert exact output.
package assembler

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/chatterlinx/voicecore/internal/config"
	"github.com/chatterlinx/voicecore/internal/scenario"
)

// Channel is the delivery medium for the assembled response.
type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelText  Channel = "text"
)

// Result is the assembled response for one turn.
type Result struct {
	Text     string
	FollowUp scenario.FollowUpAction
}

// Assembler composes responses from candidate reply sets. Safe for
// concurrent use.
type Assembler struct {
	cfg config.AssemblerConfig

	mu  sync.Mutex
	rng *rand.Rand
	// seq tracks the rotation cursor for SEQUENTIAL candidates, keyed by
	// candidate ID.
	seq map[string]int
}

// New creates an Assembler. rng may be nil, in which case a time-seeded
// source is used.
func New(cfg config.AssemblerConfig, rng *rand.Rand) *Assembler {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Assembler{cfg: cfg, rng: rng, seq: make(map[string]int)}
}

// Assemble builds the response text for a candidate. fillers are the
// tenant's short acknowledgments; one may be prepended on the voice channel.
// An empty Result.Text means the candidate had no usable variants and the
// caller must substitute a safe phrase.
func (a *Assembler) Assemble(cand *scenario.Candidate, channel Channel, fillers []string) Result {
	if cand == nil {
		return Result{}
	}

	var parts []string
	switch cand.Type {
	case scenario.TypeActionFlow:
		// Quick acknowledgment, the substantive reply, then the question
		// that moves the flow forward.
		if quick := a.pick(cand, cand.Replies.Quick); quick != "" {
			parts = append(parts, quick)
		}
		if full := a.pick(cand, cand.Replies.Full); full != "" {
			parts = append(parts, full)
		}
		if fu := a.pick(cand, cand.Replies.FollowUp); fu != "" {
			parts = append(parts, fu)
		}
	case scenario.TypeSystemAck:
		// Acknowledgments should be as short as possible on a phone call.
		if quick := shortest(cand.Replies.Quick); quick != "" {
			parts = append(parts, quick)
		}
	case scenario.TypeSmallTalk:
		if quick := a.pick(cand, cand.Replies.Quick); quick != "" {
			parts = append(parts, quick)
		}
	default: // TypeInfoFAQ and unknown types answer fully on voice
		if channel == ChannelText {
			if quick := a.pick(cand, cand.Replies.Quick); quick != "" {
				parts = append(parts, quick)
				break
			}
		}
		if full := a.pick(cand, cand.Replies.Full); full != "" {
			parts = append(parts, full)
		}
	}

	// Never leave the caller in silence: fall back across reply forms.
	if len(parts) == 0 {
		for _, variants := range [][]scenario.ReplyVariant{cand.Replies.Quick, cand.Replies.Full, cand.Replies.FollowUp} {
			if text := a.pick(cand, variants); text != "" {
				parts = append(parts, text)
				break
			}
		}
	}
	if len(parts) == 0 {
		return Result{FollowUp: cand.FollowUp}
	}

	text := strings.Join(parts, " ")
	if channel == ChannelVoice && cand.Type != scenario.TypeSystemAck && len(fillers) > 0 {
		a.mu.Lock()
		if a.rng.Float64() < a.cfg.VoiceFillerProbability {
			text = fillers[a.rng.Intn(len(fillers))] + " " + text
		}
		a.mu.Unlock()
	}

	return Result{Text: text, FollowUp: cand.FollowUp}
}

// pick selects one variant according to the candidate's strategy.
func (a *Assembler) pick(cand *scenario.Candidate, variants []scenario.ReplyVariant) string {
	if len(variants) == 0 {
		return ""
	}
	if len(variants) == 1 {
		return variants[0].Text
	}

	switch cand.Strategy {
	case scenario.StrategyFirst:
		return variants[0].Text
	case scenario.StrategySequential:
		a.mu.Lock()
		i := a.seq[cand.ID] % len(variants)
		a.seq[cand.ID]++
		a.mu.Unlock()
		return variants[i].Text
	default:
		return a.weightedRandom(variants)
	}
}

func (a *Assembler) weightedRandom(variants []scenario.ReplyVariant) string {
	total := 0
	for _, v := range variants {
		total += a.weight(v)
	}
	if total <= 0 {
		return variants[0].Text
	}
	a.mu.Lock()
	n := a.rng.Intn(total)
	a.mu.Unlock()
	for _, v := range variants {
		n -= a.weight(v)
		if n < 0 {
			return v.Text
		}
	}
	return variants[len(variants)-1].Text
}

func (a *Assembler) weight(v scenario.ReplyVariant) int {
	if v.Weight > 0 {
		return v.Weight
	}
	return a.cfg.DefaultVariantWeight
}

func shortest(variants []scenario.ReplyVariant) string {
	best := ""
	for _, v := range variants {
		if v.Text == "" {
			continue
		}
		if best == "" || len(v.Text) < len(best) {
			best = v.Text
		}
	}
	return best
}

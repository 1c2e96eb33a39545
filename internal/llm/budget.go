// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package llm wraps the Tier-3 generative provider behind a token budget and
// a circuit breaker. The provider is treated as untrusted and possibly slow;
// everything here fails toward "skip Tier 3", never toward blocking a call.
package llm

import (
	"errors"
	"sync"
	"time"
)

// ErrBudgetExceeded is returned when a tenant's token budget for the current
// window is exhausted. Tier 3 is skipped for the remainder of the window.
var ErrBudgetExceeded = errors.New("llm: tenant token budget exceeded")

// ErrBreakerOpen is returned while the circuit breaker is cooling down after
// consecutive provider failures.
var ErrBreakerOpen = errors.New("llm: circuit breaker open")

// Budget tracks per-tenant token spend over fixed windows. The check is a
// cheap in-memory guard evaluated before any Tier-3 attempt.
type Budget struct {
	tokensPerWindow int64
	window          time.Duration

	mu      sync.Mutex
	windows map[string]*budgetWindow
}

type budgetWindow struct {
	startedAt time.Time
	used      int64
}

// NewBudget creates a budget allowing tokensPerWindow per tenant per window.
func NewBudget(tokensPerWindow int64, window time.Duration) *Budget {
	return &Budget{
		tokensPerWindow: tokensPerWindow,
		window:          window,
		windows:         make(map[string]*budgetWindow),
	}
}

// Allow reports whether the tenant can spend an estimated number of tokens.
// It does not reserve; actual spend is recorded via Consume.
func (b *Budget) Allow(tenantID string, estimate int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.currentWindowLocked(tenantID)
	return w.used+estimate <= b.tokensPerWindow
}

// Consume records actual token spend for a tenant.
func (b *Budget) Consume(tenantID string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.currentWindowLocked(tenantID)
	w.used += tokens
}

// Remaining returns the tenant's unspent tokens in the current window.
func (b *Budget) Remaining(tenantID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.currentWindowLocked(tenantID)
	remaining := b.tokensPerWindow - w.used
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (b *Budget) currentWindowLocked(tenantID string) *budgetWindow {
	w, ok := b.windows[tenantID]
	if !ok || time.Since(w.startedAt) >= b.window {
		w = &budgetWindow{startedAt: time.Now()}
		b.windows[tenantID] = w
	}
	return w
}

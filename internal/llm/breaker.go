// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package llm

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Breaker is a consecutive-failure circuit breaker. After failureThreshold
// consecutive provider failures it opens for cooldown; any success closes it.
type Breaker struct {
	failureThreshold int
	cooldown         time.Duration

	mu           sync.Mutex
	failures     int
	openUntil    time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(failureThreshold int, cooldown time.Duration) *Breaker {
	return &Breaker{failureThreshold: failureThreshold, cooldown: cooldown}
}

// Allow reports whether a provider call may be attempted.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Now().After(b.openUntil)
}

// RecordSuccess closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.failures = 0
	b.openUntil = time.Time{}
	b.mu.Unlock()
}

// RecordFailure counts a failure and opens the breaker at the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.failureThreshold {
		b.openUntil = time.Now().Add(b.cooldown)
		b.failures = 0
		log.Warnf("llm: circuit breaker opened for %s after consecutive failures", b.cooldown)
	}
}

// Open reports whether the breaker is currently open.
func (b *Breaker) Open() bool {
	return !b.Allow()
}

// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package learning

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/chatterlinx/voicecore/internal/cacheservice"
	"github.com/chatterlinx/voicecore/internal/memory"
)

// recordTimeout bounds one post-turn write batch. Learning is fire-and-
// forget relative to the turn's response.
const recordTimeout = 2 * time.Second

// responseCacheTTL is how long a learned exact-utterance response stays
// usable without revalidation.
const responseCacheTTL = 24 * time.Hour

// TurnOutcome is what the pipeline reports after a turn completes.
type TurnOutcome struct {
	TenantID            string
	CallerID            string
	Intent              string
	Category            string
	CandidateID         string
	NormalizedUtterance string
	ResponseText        string
	Success             bool
}

// Recorder performs post-turn learning writes asynchronously. Failures are
// logged and discarded; they are never surfaced to the call.
type Recorder struct {
	store *Store
	cache cacheservice.Cache

	wg sync.WaitGroup
}

// NewRecorder creates a recorder over the learning store and response cache.
func NewRecorder(store *Store, cache cacheservice.Cache) *Recorder {
	return &Recorder{store: store, cache: cache}
}

// Record spawns a detached write of the turn's outcome. The caller-facing
// response never waits on it.
func (r *Recorder) Record(outcome TurnOutcome) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		r.write(ctx, outcome)
	}()
}

// Wait blocks until all in-flight learning writes finish. Used on shutdown
// and in tests.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) write(ctx context.Context, o TurnOutcome) {
	if o.Intent == "" {
		return
	}

	if o.CallerID != "" {
		if err := r.store.RecordCallerOutcome(ctx, o.TenantID, o.CallerID, o.Intent, o.Success); err != nil {
			log.Warnf("learning: caller outcome write dropped: %v", err)
		}
	}

	if o.CandidateID != "" {
		if err := r.store.RecordPathOutcome(ctx, o.TenantID, o.Intent, o.Category, o.CandidateID, o.Success); err != nil {
			log.Warnf("learning: path outcome write dropped: %v", err)
		}
	}

	// Only successful turns seed the exact-utterance response cache.
	if o.Success && o.NormalizedUtterance != "" && o.ResponseText != "" {
		key := memory.ResponseCacheKey(o.TenantID, o.NormalizedUtterance)
		r.cache.Set(ctx, key, o.ResponseText, responseCacheTTL)
	}
}

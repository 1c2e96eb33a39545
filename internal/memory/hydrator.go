// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/chatterlinx/voicecore/internal/cacheservice"
)

// hydrateTimeout bounds each individual read. The whole hydration stays
// within tens of milliseconds; a slow store degrades to an empty snapshot.
const hydrateTimeout = 50 * time.Millisecond

// Reader is the read side of the learning store.
type Reader interface {
	// CallerHistory returns all intent history rows for a caller.
	CallerHistory(ctx context.Context, tenantID, callerID string) ([]CallerIntentHistory, error)

	// ResolutionPaths returns all learned paths for a tenant category.
	ResolutionPaths(ctx context.Context, tenantID, category string) ([]ResolutionPath, error)
}

// Hydrator loads the memory snapshot for a turn. All reads run in parallel
// and are independently best-effort: a failed read leaves its part of the
// snapshot empty, which is always safe (equivalent to an unknown caller).
type Hydrator struct {
	reader Reader
	cache  cacheservice.Cache
}

// NewHydrator creates a hydrator over the learning store and response cache.
func NewHydrator(reader Reader, cache cacheservice.Cache) *Hydrator {
	return &Hydrator{reader: reader, cache: cache}
}

// ResponseCacheKey is the cache key for a learned response to a normalized
// utterance. Shared with the post-turn learning recorder.
func ResponseCacheKey(tenantID, normalizedUtterance string) string {
	sum := sha256.Sum256([]byte(normalizedUtterance))
	return "tenant:" + tenantID + ":resp:" + hex.EncodeToString(sum[:])
}

// Hydrate assembles the turn's memory snapshot.
func (h *Hydrator) Hydrate(ctx context.Context, tenantID, callerID, category, normalizedUtterance string) *Snapshot {
	ctx, cancel := context.WithTimeout(ctx, hydrateTimeout)
	defer cancel()

	snap := &Snapshot{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(3)

	go func() {
		defer wg.Done()
		history, err := h.reader.CallerHistory(ctx, tenantID, callerID)
		if err != nil {
			log.Debugf("memory: caller history read failed for %s/%s: %v", tenantID, callerID, err)
			return
		}
		mu.Lock()
		snap.CallerHistory = history
		snap.ReturnCustomer = len(history) > 0
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		paths, err := h.reader.ResolutionPaths(ctx, tenantID, category)
		if err != nil {
			log.Debugf("memory: resolution path read failed for %s/%s: %v", tenantID, category, err)
			return
		}
		mu.Lock()
		snap.Paths = paths
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		text, err := h.cache.Get(ctx, ResponseCacheKey(tenantID, normalizedUtterance))
		if err != nil {
			return
		}
		mu.Lock()
		snap.CachedResponse = text
		snap.HasCachedResponse = true
		mu.Unlock()
	}()

	wg.Wait()
	return snap
}

// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package triage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/chatterlinx/voicecore/internal/cacheservice"
)

// RuleStore loads persisted triage rules for a tenant. Implemented by the
// learning/rule SQL store; faked in tests.
type RuleStore interface {
	// ActiveRules returns the tenant's active manual and AI-suggested rules.
	ActiveRules(ctx context.Context, tenantID string) ([]Rule, error)
}

// Compiler builds and caches compiled rule sets per tenant. Compiled sets are
// cached in the shared cache service under a per-tenant key, and additionally
// held in-process (swap-on-write) so an in-flight call never observes a
// partially built list.
type Compiler struct {
	store RuleStore
	cache cacheservice.Cache
	ttl   time.Duration

	// lastGood holds the most recent successfully compiled set per tenant,
	// used as the stale-but-available fallback when the store is down.
	mu       sync.RWMutex
	lastGood map[string]*CompiledRuleSet
}

// NewCompiler creates a rule compiler backed by the given store and cache.
func NewCompiler(store RuleStore, cache cacheservice.Cache, ttl time.Duration) *Compiler {
	return &Compiler{
		store:    store,
		cache:    cache,
		ttl:      ttl,
		lastGood: make(map[string]*CompiledRuleSet),
	}
}

// ruleSetKey is the cache key holding a tenant's compiled rule set.
func ruleSetKey(tenantID string) string {
	return "tenant:" + tenantID + ":rules"
}

// Compiled returns the tenant's compiled rule set, building it on a cache
// miss. The returned set is immutable; callers must not modify it. The
// compiler never blocks a call on a broken store: it degrades to the last
// good set, and as a final resort to a fallback-only set.
func (c *Compiler) Compiled(ctx context.Context, tenantID string) *CompiledRuleSet {
	if cached, err := c.cache.Get(ctx, ruleSetKey(tenantID)); err == nil {
		var set CompiledRuleSet
		if err := json.Unmarshal([]byte(cached), &set); err == nil && len(set.Rules) > 0 {
			c.swapLastGood(&set)
			return &set
		}
		log.Warnf("triage: discarding undecodable cached rule set for tenant %s", tenantID)
	}
	return c.Rebuild(ctx, tenantID)
}

// Rebuild compiles the tenant's rules from the store, stores the result in
// the cache, and returns it.
func (c *Compiler) Rebuild(ctx context.Context, tenantID string) *CompiledRuleSet {
	rules, err := c.store.ActiveRules(ctx, tenantID)
	if err != nil {
		log.Warnf("triage: rule store unavailable for tenant %s: %v", tenantID, err)
		if stale := c.staleSet(tenantID); stale != nil {
			log.Infof("triage: serving stale rule set for tenant %s (%d rules)", tenantID, len(stale.Rules))
			return stale
		}
		return c.fallbackOnlySet(tenantID)
	}

	compiled := make([]Rule, 0, len(rules)+1)
	compiled = append(compiled, rules...)
	sortRules(compiled)
	compiled = append(compiled, fallbackRule(tenantID))

	set := &CompiledRuleSet{
		TenantID:   tenantID,
		Rules:      compiled,
		CompiledAt: time.Now(),
	}

	for i := range set.Rules {
		r := &set.Rules[i]
		log.Debugf("triage: tenant %s rank %d rule %s prio=%d source=%s action=%s",
			tenantID, i, r.ID, r.Priority, r.Source, r.Action)
	}

	if data, err := json.Marshal(set); err == nil {
		c.cache.Set(ctx, ruleSetKey(tenantID), string(data), c.ttl)
	}
	c.swapLastGood(set)
	return set
}

// Invalidate drops the tenant's cached rule set. Rule authoring collaborators
// must call this after any create/update/delete/(de)activate so the next call
// compiles a fresh set.
func (c *Compiler) Invalidate(ctx context.Context, tenantID string) {
	c.cache.Invalidate(ctx, ruleSetKey(tenantID))
	log.Infof("triage: invalidated compiled rule set for tenant %s", tenantID)
}

// fallbackRule builds the synthetic always-matching rule appended to every
// compiled set. Empty keyword sets satisfy any utterance.
func fallbackRule(tenantID string) Rule {
	return Rule{
		ID:          "system-fallback",
		TenantID:    tenantID,
		Action:      ActionDirectToResolver,
		ServiceType: "general",
		Priority:    -1 << 31,
		Source:      SourceSystem,
		Active:      true,
	}
}

// fallbackOnlySet is the degraded set used when neither the store nor a
// stale copy can produce rules. The call proceeds on the fallback alone.
func (c *Compiler) fallbackOnlySet(tenantID string) *CompiledRuleSet {
	log.Errorf("triage: no usable rules for tenant %s, running on fallback only", tenantID)
	return &CompiledRuleSet{
		TenantID:   tenantID,
		Rules:      []Rule{fallbackRule(tenantID)},
		CompiledAt: time.Now(),
	}
}

func (c *Compiler) swapLastGood(set *CompiledRuleSet) {
	c.mu.Lock()
	c.lastGood[set.TenantID] = set
	c.mu.Unlock()
}

func (c *Compiler) staleSet(tenantID string) *CompiledRuleSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastGood[tenantID]
}

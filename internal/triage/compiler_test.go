// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package triage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/chatterlinx/voicecore/internal/cacheservice"
)

// fakeRuleStore serves a fixed rule list, optionally failing.
type fakeRuleStore struct {
	rules []Rule
	err   error
	calls int
}

func (f *fakeRuleStore) ActiveRules(_ context.Context, tenantID string) ([]Rule, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []Rule
	for _, r := range f.rules {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func ruleFixture(id string, priority int, source Source, updated time.Time) Rule {
	return Rule{
		ID: id, TenantID: "t1", Keywords: []string{"leak"},
		Action: ActionDirectToResolver, Priority: priority,
		Source: source, Active: true, UpdatedAt: updated,
	}
}

func TestCompilerOrderingAndFallback(t *testing.T) {
	now := time.Now()
	store := &fakeRuleStore{rules: []Rule{
		ruleFixture("older", 50, SourceManual, now.Add(-time.Hour)),
		ruleFixture("ai", 50, SourceAISuggested, now),
		ruleFixture("top", 90, SourceManual, now.Add(-2*time.Hour)),
		ruleFixture("newer", 50, SourceManual, now),
	}}
	c := NewCompiler(store, cacheservice.NewMemoryCache(), time.Hour)

	set := c.Compiled(context.Background(), "t1")

	wantOrder := []string{"top", "newer", "older", "ai", "system-fallback"}
	if len(set.Rules) != len(wantOrder) {
		t.Fatalf("rule count = %d, want %d", len(set.Rules), len(wantOrder))
	}
	for i, want := range wantOrder {
		if set.Rules[i].ID != want {
			t.Errorf("rules[%d] = %s, want %s", i, set.Rules[i].ID, want)
		}
	}
	if !set.Fallback().IsFallback() {
		t.Error("last rule is not the fallback")
	}
}

func TestCompilerCachesCompiledSet(t *testing.T) {
	store := &fakeRuleStore{rules: []Rule{ruleFixture("r1", 10, SourceManual, time.Now())}}
	c := NewCompiler(store, cacheservice.NewMemoryCache(), time.Hour)
	ctx := context.Background()

	c.Compiled(ctx, "t1")
	c.Compiled(ctx, "t1")
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1 (second read served from cache)", store.calls)
	}
}

func TestCompilerInvalidatePicksUpNewRules(t *testing.T) {
	store := &fakeRuleStore{rules: []Rule{ruleFixture("r1", 10, SourceManual, time.Now())}}
	c := NewCompiler(store, cacheservice.NewMemoryCache(), time.Hour)
	ctx := context.Background()

	before := c.Compiled(ctx, "t1")
	if len(before.Rules) != 2 {
		t.Fatalf("rule count = %d, want 2", len(before.Rules))
	}

	// In-flight consumers keep the old immutable set.
	held := before

	store.rules = append(store.rules, ruleFixture("r2", 99, SourceManual, time.Now()))
	c.Invalidate(ctx, "t1")
	after := c.Compiled(ctx, "t1")

	if len(after.Rules) != 3 {
		t.Errorf("rule count after invalidate = %d, want 3", len(after.Rules))
	}
	if after.Rules[0].ID != "r2" {
		t.Errorf("top rule = %s, want r2", after.Rules[0].ID)
	}
	if len(held.Rules) != 2 {
		t.Error("previously compiled set mutated by rebuild")
	}
}

func TestCompilerStoreFailureDegrades(t *testing.T) {
	ctx := context.Background()

	t.Run("stale set preferred", func(t *testing.T) {
		store := &fakeRuleStore{rules: []Rule{ruleFixture("r1", 10, SourceManual, time.Now())}}
		cache := cacheservice.NewMemoryCache()
		c := NewCompiler(store, cache, time.Hour)

		c.Compiled(ctx, "t1")

		store.err = errors.New("connection refused")
		c.Invalidate(ctx, "t1")
		set := c.Compiled(ctx, "t1")

		if len(set.Rules) != 2 || set.Rules[0].ID != "r1" {
			t.Errorf("expected stale set with r1, got %d rules", len(set.Rules))
		}
	})

	t.Run("fallback-only as last resort", func(t *testing.T) {
		store := &fakeRuleStore{err: errors.New("connection refused")}
		c := NewCompiler(store, cacheservice.NewMemoryCache(), time.Hour)

		set := c.Compiled(ctx, "t1")
		if len(set.Rules) != 1 || !set.Rules[0].IsFallback() {
			t.Errorf("expected fallback-only set, got %d rules", len(set.Rules))
		}
	})
}

// TestCompareRulesProperties checks the ordering comparator is a strict weak
// order and fully deterministic, so identical inputs always compile to
// identical rule sequences.
func TestCompareRulesProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genRule := gopter.CombineGens(
		gen.IntRange(0, 5),
		gen.IntRange(0, 2),
		gen.Int64Range(0, 1000),
		gen.Identifier(),
	).Map(func(vals []interface{}) Rule {
		sources := []Source{SourceManual, SourceAISuggested, SourceSystem}
		return Rule{
			ID:        vals[3].(string),
			Priority:  vals[0].(int),
			Source:    sources[vals[1].(int)],
			UpdatedAt: time.Unix(vals[2].(int64), 0),
		}
	})

	properties.Property("irreflexive", prop.ForAll(
		func(r Rule) bool { return !CompareRules(&r, &r) },
		genRule,
	))

	properties.Property("asymmetric for distinct rules", prop.ForAll(
		func(a, b Rule) bool {
			if CompareRules(&a, &b) && CompareRules(&b, &a) {
				return false
			}
			return true
		},
		genRule, genRule,
	))

	properties.Property("total over distinct ids", prop.ForAll(
		func(a, b Rule) bool {
			if a.ID == b.ID {
				return true
			}
			return CompareRules(&a, &b) != CompareRules(&b, &a)
		},
		genRule, genRule,
	))

	properties.TestingRun(t)
}

func TestSortRulesDeterministic(t *testing.T) {
	now := time.Now()
	build := func() []Rule {
		return []Rule{
			ruleFixture("c", 10, SourceAISuggested, now),
			ruleFixture("a", 10, SourceAISuggested, now),
			ruleFixture("b", 10, SourceAISuggested, now),
		}
	}

	first := build()
	sortRules(first)
	for i := 0; i < 20; i++ {
		again := build()
		sortRules(again)
		for j := range first {
			if first[j].ID != again[j].ID {
				t.Fatalf("run %d: order differs at %d: %s vs %s", i, j, first[j].ID, again[j].ID)
			}
		}
	}
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if first[i].ID != id {
			t.Errorf("rules[%d] = %s, want %s (ID tie-break ascending)", i, first[i].ID, id)
		}
	}
}

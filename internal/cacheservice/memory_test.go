// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cacheservice

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheGetSet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(missing) err = %v, want ErrCacheMiss", err)
	}

	c.Set(ctx, "k", "v", 0)
	got, err := c.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Errorf("Get(k) = (%q, %v), want (v, nil)", got, err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	c.Set(ctx, "k", "v", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expired Get err = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheInvalidate(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	c.Set(ctx, "k", "v", 0)
	c.Invalidate(ctx, "k")
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("invalidated Get err = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheInvalidatePattern(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	c.Set(ctx, "tenant:t1:rules", "a", 0)
	c.Set(ctx, "tenant:t1:resp:abc", "b", 0)
	c.Set(ctx, "tenant:t2:rules", "c", 0)

	c.InvalidatePattern(ctx, "tenant:t1:*")

	if _, err := c.Get(ctx, "tenant:t1:rules"); !errors.Is(err, ErrCacheMiss) {
		t.Error("tenant:t1:rules survived pattern invalidation")
	}
	if _, err := c.Get(ctx, "tenant:t1:resp:abc"); !errors.Is(err, ErrCacheMiss) {
		t.Error("tenant:t1:resp:abc survived pattern invalidation")
	}
	if got, err := c.Get(ctx, "tenant:t2:rules"); err != nil || got != "c" {
		t.Errorf("tenant:t2:rules = (%q, %v), want untouched", got, err)
	}
}

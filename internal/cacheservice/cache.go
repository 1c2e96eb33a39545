// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cacheservice provides the shared caching substrate for compiled
// rule sets and learned responses. Backend failures are never surfaced to
// callers: every operation degrades to a cache miss so the pipeline falls
// back to its source of truth.
package cacheservice

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or the backend is
// unavailable. Callers treat both identically.
var ErrCacheMiss = errors.New("cacheservice: miss")

// Cache is the injected caching interface used by the rule compiler and the
// knowledge resolver. Implementations must be safe for concurrent use and
// must not return backend errors other than ErrCacheMiss from Get.
type Cache interface {
	// Get returns the value stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key with the given TTL. Errors are swallowed;
	// a failed Set leaves the previous value (if any) in place.
	Set(ctx context.Context, key string, value string, ttl time.Duration)

	// Invalidate removes a single key.
	Invalidate(ctx context.Context, key string)

	// InvalidatePattern removes all keys matching the given prefix pattern
	// (e.g. "tenant:42:rules*"). Implementations scan incrementally and
	// delete in batches; the call may outlive individual key visibility.
	InvalidatePattern(ctx context.Context, pattern string)

	// Healthy reports whether the backend responded to the last operation.
	Healthy() bool
}

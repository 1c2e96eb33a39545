// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cacheservice

import (
	"testing"
	"time"
)

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	cases := []string{
		"not-a-url",
		"http://localhost:6379",
		"redis://localhost:6379/not-a-db",
	}
	for _, url := range cases {
		c, err := NewRedisCache(url, 10, time.Minute)
		if err == nil {
			t.Errorf("NewRedisCache(%q) accepted an unparsable url", url)
		}
		if c != nil {
			t.Errorf("NewRedisCache(%q) returned a cache alongside the error", url)
		}
	}
}

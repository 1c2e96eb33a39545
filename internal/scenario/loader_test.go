// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scenario

import (
	"os"
	"path/filepath"
	"testing"
)

const samplePack = `
tenant: t1
fillers:
  - "Sure thing,"
  - "Okay,"
scenarios:
  - id: scn-hours
    intent: business_hours
    category: info
    triggers:
      - what are your hours
    replies:
      full:
        - text: "We're open weekdays from 8am to 6pm."
  - id: scn-book
    intent: schedule_visit
    category: plumbing
    type: ACTION_FLOW
    strategy: FIRST
    triggers:
      - schedule a visit
    replies:
      quick:
        - text: "Got it."
`

func writePack(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoaderLoadsPacks(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "t1.yaml", samplePack)

	l, err := NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	defer l.Close()

	cands := l.Candidates("t1")
	if len(cands) != 2 {
		t.Fatalf("candidate count = %d, want 2", len(cands))
	}
	if cands[0].ID != "scn-hours" || cands[0].Intent != "business_hours" {
		t.Errorf("cands[0] = %+v", cands[0])
	}
	if got := l.Fillers("t1"); len(got) != 2 || got[0] != "Sure thing," {
		t.Errorf("fillers = %v", got)
	}
	if got := l.Candidates("unknown"); got != nil {
		t.Errorf("unknown tenant candidates = %v, want nil", got)
	}
}

func TestLoaderAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "t1.yaml", samplePack)

	l, err := NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	defer l.Close()

	cands := l.Candidates("t1")
	if cands[0].Type != TypeInfoFAQ {
		t.Errorf("default type = %s, want %s", cands[0].Type, TypeInfoFAQ)
	}
	if cands[0].Strategy != StrategyWeightedRandom {
		t.Errorf("default strategy = %s, want %s", cands[0].Strategy, StrategyWeightedRandom)
	}
	// Explicit values survive.
	if cands[1].Type != TypeActionFlow || cands[1].Strategy != StrategyFirst {
		t.Errorf("explicit pack values overwritten: %+v", cands[1])
	}
}

func TestLoaderSkipsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "t1.yaml", samplePack)
	writePack(t, dir, "broken.yaml", "tenant: [unclosed")
	writePack(t, dir, "notenant.yaml", "scenarios: []")
	writePack(t, dir, "ignored.txt", "not yaml at all")

	l, err := NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	defer l.Close()

	if got := l.Candidates("t1"); len(got) != 2 {
		t.Errorf("valid pack lost next to broken files: %d candidates", len(got))
	}
}

func TestLoaderReloadSwapsAtomically(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "t1.yaml", samplePack)

	l, err := NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	defer l.Close()

	before := l.Candidates("t1")

	writePack(t, dir, "t1.yaml", `
tenant: t1
scenarios:
  - id: scn-new
    intent: emergencies
    category: emergency
    triggers: ["burst pipe"]
    replies:
      full:
        - text: "We'll dispatch someone right away."
`)
	if err := l.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	after := l.Candidates("t1")
	if len(after) != 1 || after[0].ID != "scn-new" {
		t.Errorf("reload result = %+v", after)
	}
	// The snapshot handed out before the reload is untouched.
	if len(before) != 2 {
		t.Errorf("pre-reload snapshot mutated: %d candidates", len(before))
	}
}

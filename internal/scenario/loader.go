// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"
)

// maxPackFileSize guards against pathological YAML files.
const maxPackFileSize = 1 * 1024 * 1024

// Loader loads tenant scenario packs from a directory of YAML files and
// hot-reloads them when files change, so authoring edits go live without a
// restart. Reads are lock-free snapshots; reloads swap the whole map.
type Loader struct {
	dir string

	mu    sync.RWMutex
	packs map[string]*Pack // tenant id -> pack

	watcher   *fsnotify.Watcher
	stopWatch chan struct{}
}

// NewLoader creates a loader rooted at dir and performs the initial load.
func NewLoader(dir string) (*Loader, error) {
	l := &Loader{
		dir:       dir,
		packs:     make(map[string]*Pack),
		stopWatch: make(chan struct{}),
	}
	if err := l.LoadAll(); err != nil {
		return nil, err
	}
	return l, nil
}

// LoadAll reads every pack file under the scenario directory. Individual
// broken files are skipped with a warning; they never take down the rest.
func (l *Loader) LoadAll() error {
	if _, err := os.Stat(l.dir); os.IsNotExist(err) {
		if err := os.MkdirAll(l.dir, 0o755); err != nil {
			return fmt.Errorf("scenario: failed to create pack directory: %w", err)
		}
	}

	packs := make(map[string]*Pack)

	err := filepath.Walk(l.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		if info.Size() > maxPackFileSize {
			log.Warnf("scenario: skipping oversized pack file %s (%d bytes)", path, info.Size())
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Errorf("scenario: failed to read pack file %s: %v", path, err)
			return nil
		}

		var pack Pack
		if err := yaml.Unmarshal(data, &pack); err != nil {
			log.Errorf("scenario: failed to parse pack file %s: %v", path, err)
			return nil
		}
		if pack.Tenant == "" {
			log.Warnf("scenario: pack file %s has no tenant id, skipping", path)
			return nil
		}
		applyDefaults(&pack)
		packs[pack.Tenant] = &pack
		return nil
	})
	if err != nil {
		return fmt.Errorf("scenario: pack directory walk failed: %w", err)
	}

	l.mu.Lock()
	l.packs = packs
	l.mu.Unlock()

	log.Infof("scenario: loaded packs for %d tenants from %s", len(packs), l.dir)
	return nil
}

// Candidates returns the tenant's scenario candidates, or nil when the
// tenant has no pack (a tenant configuration error handled upstream).
func (l *Loader) Candidates(tenantID string) []Candidate {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pack, ok := l.packs[tenantID]
	if !ok {
		return nil
	}
	return pack.Scenarios
}

// Fillers returns the tenant's filler acknowledgment phrases.
func (l *Loader) Fillers(tenantID string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pack, ok := l.packs[tenantID]
	if !ok {
		return nil
	}
	return pack.Fillers
}

// StartWatching begins hot-reloading pack files on filesystem changes.
func (l *Loader) StartWatching() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("scenario: failed to create watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("scenario: failed to watch %s: %w", l.dir, err)
	}
	l.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					log.Infof("scenario: pack change detected (%s), reloading", event.Name)
					if err := l.LoadAll(); err != nil {
						log.Errorf("scenario: reload failed: %v", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("scenario: watcher error: %v", err)
			case <-l.stopWatch:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher.
func (l *Loader) Close() {
	close(l.stopWatch)
	if l.watcher != nil {
		_ = l.watcher.Close()
	}
}

// applyDefaults fills unset strategy and weights.
func applyDefaults(pack *Pack) {
	for i := range pack.Scenarios {
		c := &pack.Scenarios[i]
		if c.Strategy == "" {
			c.Strategy = StrategyWeightedRandom
		}
		if c.Type == "" {
			c.Type = TypeInfoFAQ
		}
	}
}

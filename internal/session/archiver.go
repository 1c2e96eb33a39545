// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
)

// Archiver appends finished call sessions to per-day gzip JSON-line files
// under baseDir. Archival is best-effort trace storage; failures are logged
// and never affect call processing.
type Archiver struct {
	baseDir string

	mu          sync.Mutex
	currentDate string
	file        *os.File
	compressor  *gzip.Writer
	writer      *bufio.Writer
}

// NewArchiver creates an archiver rooted at baseDir.
func NewArchiver(baseDir string) (*Archiver, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("session: failed to create archive directory: %w", err)
	}
	return &Archiver{baseDir: baseDir}, nil
}

// Archive writes one session as a JSON line to today's archive file.
func (a *Archiver) Archive(s *CallSession) {
	data, err := json.Marshal(s)
	if err != nil {
		log.Warnf("session: failed to marshal session %s for archive: %v", s.CallID, err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.rotateLocked(); err != nil {
		log.Warnf("session: archive rotation failed: %v", err)
		return
	}

	if _, err := a.writer.Write(append(data, '\n')); err != nil {
		log.Warnf("session: failed to archive session %s: %v", s.CallID, err)
		return
	}
	// Flush through to the file so a crash loses at most the in-flight line.
	if err := a.writer.Flush(); err == nil {
		_ = a.compressor.Flush()
	}
}

// rotateLocked opens today's archive file, closing yesterday's first.
func (a *Archiver) rotateLocked() error {
	today := time.Now().Format("2006-01-02")
	if a.currentDate == today && a.file != nil {
		return nil
	}

	a.closeLocked()

	path := filepath.Join(a.baseDir, "calls-"+today+".jsonl.gz")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	a.file = file
	a.compressor = gzip.NewWriter(file)
	a.writer = bufio.NewWriter(a.compressor)
	a.currentDate = today
	return nil
}

// Close flushes and closes the current archive file.
func (a *Archiver) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeLocked()
	return nil
}

func (a *Archiver) closeLocked() {
	if a.writer != nil {
		_ = a.writer.Flush()
	}
	if a.compressor != nil {
		_ = a.compressor.Close()
	}
	if a.file != nil {
		_ = a.file.Close()
	}
	a.writer = nil
	a.compressor = nil
	a.file = nil
}

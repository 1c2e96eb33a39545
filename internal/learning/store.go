// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package learning persists what the pipeline learns across calls: triage
// rules, caller intent history, and proven resolution paths. The default
// backend is a local SQLite file; multi-instance deployments point the same
// schema at Postgres via the pgx driver.
package learning

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver ("pgx")
	_ "github.com/mattn/go-sqlite3"    // SQLite driver ("sqlite3")

	"github.com/chatterlinx/voicecore/internal/memory"
	"github.com/chatterlinx/voicecore/internal/triage"
)

// Store is the SQL-backed rule and learning-record store. It implements
// triage.RuleStore and memory.Reader.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the store using the given driver ("sqlite3" or "pgx")
// and DSN, creating the schema if needed.
func Open(driver, dsn string) (*Store, error) {
	if driver == "sqlite3" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("learning: failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("learning: failed to open store: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(time.Minute)

	s := &Store{db: db, driver: driver}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing database handle. Used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, driver: "sqlite3"}
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS triage_rules (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			keywords TEXT NOT NULL,
			exclude_keywords TEXT NOT NULL,
			condition TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			service_type TEXT NOT NULL,
			priority INTEGER NOT NULL,
			source TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_triage_rules_tenant ON triage_rules(tenant_id, active)`,
		`CREATE TABLE IF NOT EXISTS caller_intent_history (
			tenant_id TEXT NOT NULL,
			caller_id TEXT NOT NULL,
			intent TEXT NOT NULL,
			total_count INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			last_outcome TEXT NOT NULL DEFAULT '',
			last_seen TIMESTAMP NOT NULL,
			PRIMARY KEY (tenant_id, caller_id, intent)
		)`,
		`CREATE TABLE IF NOT EXISTS resolution_paths (
			tenant_id TEXT NOT NULL,
			intent TEXT NOT NULL,
			category TEXT NOT NULL,
			candidate_id TEXT NOT NULL,
			sample_size INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (tenant_id, intent, category)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("learning: schema init failed: %w", err)
		}
	}
	return nil
}

// q rewrites "?" placeholders to "$1, $2, ..." for the Postgres driver.
// Queries are authored in the SQLite form.
func (s *Store) q(query string) string {
	if s.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports store reachability for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ActiveRules returns the tenant's active rules, implementing
// triage.RuleStore. Ordering is left to the compiler's comparator.
func (s *Store) ActiveRules(ctx context.Context, tenantID string) ([]triage.Rule, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT id, tenant_id, keywords, exclude_keywords, condition, action, service_type, priority, source, updated_at
		 FROM triage_rules WHERE tenant_id = ? AND active = 1`), tenantID)
	if err != nil {
		return nil, fmt.Errorf("learning: rule query failed: %w", err)
	}
	defer rows.Close()

	var rules []triage.Rule
	for rows.Next() {
		var r triage.Rule
		var keywords, excludes string
		if err := rows.Scan(&r.ID, &r.TenantID, &keywords, &excludes, &r.Condition,
			&r.Action, &r.ServiceType, &r.Priority, &r.Source, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("learning: rule scan failed: %w", err)
		}
		if err := json.Unmarshal([]byte(keywords), &r.Keywords); err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(excludes), &r.ExcludeKeywords); err != nil {
			continue
		}
		r.Active = true
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// UpsertRule inserts or replaces a triage rule. Callers must invalidate the
// tenant's compiled rule set afterwards.
func (s *Store) UpsertRule(ctx context.Context, r *triage.Rule) error {
	// Nil slices must store as [] so reads always see a JSON array.
	keywords, err := json.Marshal(nonNil(r.Keywords))
	if err != nil {
		return err
	}
	excludes, err := json.Marshal(nonNil(r.ExcludeKeywords))
	if err != nil {
		return err
	}
	active := 0
	if r.Active {
		active = 1
	}
	_, err = s.db.ExecContext(ctx, s.q(
		`INSERT INTO triage_rules (id, tenant_id, keywords, exclude_keywords, condition, action, service_type, priority, source, active, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			keywords = excluded.keywords,
			exclude_keywords = excluded.exclude_keywords,
			condition = excluded.condition,
			action = excluded.action,
			service_type = excluded.service_type,
			priority = excluded.priority,
			source = excluded.source,
			active = excluded.active,
			updated_at = excluded.updated_at`),
		r.ID, r.TenantID, string(keywords), string(excludes), r.Condition,
		r.Action, r.ServiceType, r.Priority, r.Source, active, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("learning: rule upsert failed: %w", err)
	}
	return nil
}

// CallerHistory implements memory.Reader.
func (s *Store) CallerHistory(ctx context.Context, tenantID, callerID string) ([]memory.CallerIntentHistory, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT tenant_id, caller_id, intent, total_count, success_count, last_outcome, last_seen
		 FROM caller_intent_history WHERE tenant_id = ? AND caller_id = ?`), tenantID, callerID)
	if err != nil {
		return nil, fmt.Errorf("learning: caller history query failed: %w", err)
	}
	defer rows.Close()

	var history []memory.CallerIntentHistory
	for rows.Next() {
		var h memory.CallerIntentHistory
		if err := rows.Scan(&h.TenantID, &h.CallerID, &h.Intent, &h.TotalCount,
			&h.SuccessCount, &h.LastOutcome, &h.LastSeen); err != nil {
			return nil, fmt.Errorf("learning: caller history scan failed: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// ResolutionPaths implements memory.Reader.
func (s *Store) ResolutionPaths(ctx context.Context, tenantID, category string) ([]memory.ResolutionPath, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT tenant_id, intent, category, candidate_id, sample_size, success_count, updated_at
		 FROM resolution_paths WHERE tenant_id = ? AND category = ?`), tenantID, category)
	if err != nil {
		return nil, fmt.Errorf("learning: resolution path query failed: %w", err)
	}
	defer rows.Close()

	var paths []memory.ResolutionPath
	for rows.Next() {
		var p memory.ResolutionPath
		if err := rows.Scan(&p.TenantID, &p.Intent, &p.Category, &p.CandidateID,
			&p.SampleSize, &p.SuccessCount, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("learning: resolution path scan failed: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// RecordCallerOutcome atomically bumps a caller's intent counters. Concurrent
// calls for the same key never lose updates; aggregate counts are eventually
// consistent, not serializable.
func (s *Store) RecordCallerOutcome(ctx context.Context, tenantID, callerID, intent string, success bool) error {
	outcome := "failure"
	successInc := 0
	if success {
		outcome = "success"
		successInc = 1
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO caller_intent_history (tenant_id, caller_id, intent, total_count, success_count, last_outcome, last_seen)
		 VALUES (?, ?, ?, 1, ?, ?, ?)
		 ON CONFLICT(tenant_id, caller_id, intent) DO UPDATE SET
			total_count = caller_intent_history.total_count + 1,
			success_count = caller_intent_history.success_count + excluded.success_count,
			last_outcome = excluded.last_outcome,
			last_seen = excluded.last_seen`),
		tenantID, callerID, intent, successInc, outcome, time.Now())
	if err != nil {
		return fmt.Errorf("learning: caller outcome upsert failed: %w", err)
	}
	return nil
}

// RecordPathOutcome atomically bumps a resolution path's counters. The
// candidate id follows the most recent resolution (last-write-wins).
func (s *Store) RecordPathOutcome(ctx context.Context, tenantID, intent, category, candidateID string, success bool) error {
	successInc := 0
	if success {
		successInc = 1
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO resolution_paths (tenant_id, intent, category, candidate_id, sample_size, success_count, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT(tenant_id, intent, category) DO UPDATE SET
			candidate_id = excluded.candidate_id,
			sample_size = resolution_paths.sample_size + 1,
			success_count = resolution_paths.success_count + excluded.success_count,
			updated_at = excluded.updated_at`),
		tenantID, intent, category, candidateID, successInc, time.Now())
	if err != nil {
		return fmt.Errorf("learning: path outcome upsert failed: %w", err)
	}
	return nil
}

// TenantPaths returns every learned resolution path for a tenant, most
// sampled first. Used by the rule suggester.
func (s *Store) TenantPaths(ctx context.Context, tenantID string) ([]memory.ResolutionPath, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT tenant_id, intent, category, candidate_id, sample_size, success_count, updated_at
		 FROM resolution_paths WHERE tenant_id = ? ORDER BY sample_size DESC`), tenantID)
	if err != nil {
		return nil, fmt.Errorf("learning: tenant path query failed: %w", err)
	}
	defer rows.Close()

	var paths []memory.ResolutionPath
	for rows.Next() {
		var p memory.ResolutionPath
		if err := rows.Scan(&p.TenantID, &p.Intent, &p.Category, &p.CandidateID,
			&p.SampleSize, &p.SuccessCount, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("learning: tenant path scan failed: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

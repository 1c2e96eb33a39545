// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package learning

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/chatterlinx/voicecore/internal/triage"
)

func TestActiveRules(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := NewWithDB(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "keywords", "exclude_keywords", "condition",
		"action", "service_type", "priority", "source", "updated_at",
	}).
		AddRow("r1", "t1", `["smell","gas"]`, `[]`, "", "ESCALATE_TO_HUMAN", "emergency", 100, "MANUAL", now).
		AddRow("r2", "t1", `["water heater"]`, `["warranty"]`, "hour < 22", "DIRECT_TO_RESOLVER", "plumbing", 50, "AI_SUGGESTED", now).
		AddRow("bad", "t1", `not-json`, `[]`, "", "DIRECT_TO_RESOLVER", "general", 1, "MANUAL", now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM triage_rules WHERE tenant_id = ? AND active = 1")).
		WithArgs("t1").
		WillReturnRows(rows)

	rules, err := s.ActiveRules(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ActiveRules: %v", err)
	}
	// The corrupt row is skipped, not fatal.
	if len(rules) != 2 {
		t.Fatalf("rule count = %d, want 2", len(rules))
	}
	if rules[0].ID != "r1" || rules[0].Action != triage.ActionEscalateToHuman {
		t.Errorf("rules[0] = %+v", rules[0])
	}
	if len(rules[0].Keywords) != 2 || rules[0].Keywords[1] != "gas" {
		t.Errorf("rules[0].Keywords = %v", rules[0].Keywords)
	}
	if rules[1].ExcludeKeywords[0] != "warranty" || rules[1].Condition != "hour < 22" {
		t.Errorf("rules[1] = %+v", rules[1])
	}
	if !rules[0].Active {
		t.Error("scanned rule not marked active")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpsertRule(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := NewWithDB(db)

	rule := &triage.Rule{
		ID: "r1", TenantID: "t1",
		Keywords:        []string{"leak"},
		ExcludeKeywords: []string{},
		Action:          triage.ActionDirectToResolver,
		ServiceType:     "plumbing",
		Priority:        10,
		Source:          triage.SourceManual,
		Active:          true,
		UpdatedAt:       time.Now(),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO triage_rules")).
		WithArgs("r1", "t1", `["leak"]`, `[]`, "", "DIRECT_TO_RESOLVER", "plumbing", 10, "MANUAL", 1, rule.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.UpsertRule(context.Background(), rule); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpsertRuleNilKeywordSlices(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := NewWithDB(db)

	rule := &triage.Rule{
		ID: "r2", TenantID: "t1",
		Action:    triage.ActionTakeMessage,
		Source:    triage.SourceManual,
		Active:    true,
		UpdatedAt: time.Now(),
	}

	// Nil slices must still store as JSON arrays, never null.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO triage_rules")).
		WithArgs("r2", "t1", `[]`, `[]`, "", "TAKE_MESSAGE", "", 0, "MANUAL", 1, rule.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.UpsertRule(context.Background(), rule); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRecordCallerOutcome(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := NewWithDB(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO caller_intent_history")).
		WithArgs("t1", "c1", "hours", 1, "success", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.RecordCallerOutcome(context.Background(), "t1", "c1", "hours", true); err != nil {
		t.Fatalf("RecordCallerOutcome: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO caller_intent_history")).
		WithArgs("t1", "c1", "hours", 0, "failure", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.RecordCallerOutcome(context.Background(), "t1", "c1", "hours", false); err != nil {
		t.Fatalf("RecordCallerOutcome(failure): %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRecordPathOutcome(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := NewWithDB(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO resolution_paths")).
		WithArgs("t1", "hours", "info", "scn-1", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.RecordPathOutcome(context.Background(), "t1", "hours", "info", "scn-1", true); err != nil {
		t.Fatalf("RecordPathOutcome: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresPlaceholderRebind(t *testing.T) {
	s := &Store{driver: "pgx"}
	got := s.q("SELECT a FROM t WHERE x = ? AND y = ?")
	want := "SELECT a FROM t WHERE x = $1 AND y = $2"
	if got != want {
		t.Errorf("q() = %q, want %q", got, want)
	}

	sqlite := &Store{driver: "sqlite3"}
	if got := sqlite.q("x = ?"); got != "x = ?" {
		t.Errorf("sqlite q() = %q, want untouched", got)
	}
}

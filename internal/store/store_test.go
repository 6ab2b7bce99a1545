package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	core "github.com/handywriterz/handywriterz/internal/agent/core"
)

func TestSaveState(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	state := &core.WorkflowState{
		ConversationID: "c1",
		UserID:         "u1",
		Prompt:         "write about sepsis",
		Status:         core.StatusDrafting,
		StartedAt:      time.Now(),
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO workflows`)).
		WithArgs("c1", sqlmock.AnyArg(), "drafting", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SaveState(context.Background(), state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLoadState(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	stored := &core.WorkflowState{ConversationID: "c1", Status: core.StatusComplete, Draft: "final"}
	payload, _ := core.MarshalState(stored)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT state FROM workflows WHERE conversation_id = $1`)).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(payload))

	state, ok, err := st.LoadState(context.Background(), "c1")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if !ok {
		t.Fatalf("expected state to be found")
	}
	if state.Status != core.StatusComplete || state.Draft != "final" {
		t.Fatalf("state round trip wrong: %+v", state)
	}
}

func TestLoadStateNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT state FROM workflows`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"state"}))

	_, ok, err := st.LoadState(context.Background(), "missing")
	if err != nil {
		t.Fatalf("missing row should not be an error: %v", err)
	}
	if ok {
		t.Fatalf("expected not found")
	}
}

func TestFingerprintRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	fp := core.WritingFingerprint{UserID: "u1", AvgSentenceLen: 18.5, Drafts: 3}
	payload, _ := json.Marshal(fp)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO fingerprints`)).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := st.SaveFingerprint(context.Background(), fp); err != nil {
		t.Fatalf("SaveFingerprint: %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT profile FROM fingerprints WHERE user_id = $1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"profile"}).AddRow(payload))

	got, ok, err := st.GetFingerprint(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetFingerprint: %v", err)
	}
	if !ok || got.AvgSentenceLen != 18.5 || got.Drafts != 3 {
		t.Fatalf("fingerprint round trip wrong: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListWorkflowsFiltersByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	now := time.Now()
	mock.ExpectQuery(`SELECT conversation_id, COALESCE\(user_id, ''\), status, started_at, updated_at`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"conversation_id", "user_id", "status", "started_at", "updated_at"}).
			AddRow("c1", "u1", "complete", now, now))

	out, err := st.ListWorkflows(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("ListWorkflows: %v", err)
	}
	if len(out) != 1 || out[0].ConversationID != "c1" || out[0].Status != "complete" {
		t.Fatalf("unexpected listing: %+v", out)
	}
}

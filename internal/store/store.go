package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/handywriterz/handywriterz/config"
	core "github.com/handywriterz/handywriterz/internal/agent/core"
)

// Store is the Postgres persistence layer. It implements both
// core.CheckpointStore and core.FingerprintStore.
type Store struct {
	DB *sql.DB
}

func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	return NewWithDSN(ctx, cfg.DSN())
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// SaveState upserts the full workflow state as JSONB keyed by conversation.
// Saving the same step twice overwrites in place, which keeps checkpoint
// writes idempotent.
func (s *Store) SaveState(ctx context.Context, state *core.WorkflowState) error {
	payload, err := core.MarshalState(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO workflows (conversation_id, user_id, status, state, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (conversation_id)
		DO UPDATE SET status = EXCLUDED.status, state = EXCLUDED.state, updated_at = NOW()`,
		state.ConversationID, nullable(state.UserID), string(state.Status), payload, state.StartedAt)
	return err
}

// LoadState restores the latest checkpoint for a conversation.
func (s *Store) LoadState(ctx context.Context, conversationID string) (*core.WorkflowState, bool, error) {
	var payload []byte
	err := s.DB.QueryRowContext(ctx,
		`SELECT state FROM workflows WHERE conversation_id = $1`, conversationID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	state, err := core.UnmarshalState(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decoding state %s: %w", conversationID, err)
	}
	return state, true, nil
}

// WorkflowSummary is the list-view projection of a stored run.
type WorkflowSummary struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id,omitempty"`
	Status         string    `json:"status"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ListWorkflows returns recent runs, optionally filtered by user.
func (s *Store) ListWorkflows(ctx context.Context, userID string, limit int) ([]WorkflowSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT conversation_id, COALESCE(user_id, ''), status, started_at, updated_at
		FROM workflows`
	args := []interface{}{}
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT %d`, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WorkflowSummary
	for rows.Next() {
		var w WorkflowSummary
		if err := rows.Scan(&w.ConversationID, &w.UserID, &w.Status, &w.StartedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetFingerprint loads a user's writing fingerprint.
func (s *Store) GetFingerprint(ctx context.Context, userID string) (core.WritingFingerprint, bool, error) {
	var payload []byte
	err := s.DB.QueryRowContext(ctx,
		`SELECT profile FROM fingerprints WHERE user_id = $1`, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return core.WritingFingerprint{}, false, nil
	}
	if err != nil {
		return core.WritingFingerprint{}, false, err
	}
	var fp core.WritingFingerprint
	if err := json.Unmarshal(payload, &fp); err != nil {
		return core.WritingFingerprint{}, false, fmt.Errorf("decoding fingerprint %s: %w", userID, err)
	}
	return fp, true, nil
}

// SaveFingerprint upserts a user's writing fingerprint.
func (s *Store) SaveFingerprint(ctx context.Context, fp core.WritingFingerprint) error {
	payload, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("encoding fingerprint: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO fingerprints (user_id, profile, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET profile = EXCLUDED.profile, updated_at = NOW()`,
		fp.UserID, payload)
	return err
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package store

import (
	"context"
	"sync"

	core "github.com/handywriterz/handywriterz/internal/agent/core"
)

// MemoryStore is an in-process implementation of core.CheckpointStore and
// core.FingerprintStore for tests and single-node runs without Postgres.
type MemoryStore struct {
	mu           sync.RWMutex
	states       map[string][]byte
	fingerprints map[string]core.WritingFingerprint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:       make(map[string][]byte),
		fingerprints: make(map[string]core.WritingFingerprint),
	}
}

func (m *MemoryStore) SaveState(ctx context.Context, state *core.WorkflowState) error {
	// Serialized round trip keeps semantics identical to the SQL store.
	payload, err := core.MarshalState(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.states[state.ConversationID] = payload
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) LoadState(ctx context.Context, conversationID string) (*core.WorkflowState, bool, error) {
	m.mu.RLock()
	payload, ok := m.states[conversationID]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	state, err := core.UnmarshalState(payload)
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

func (m *MemoryStore) GetFingerprint(ctx context.Context, userID string) (core.WritingFingerprint, bool, error) {
	m.mu.RLock()
	fp, ok := m.fingerprints[userID]
	m.mu.RUnlock()
	return fp, ok, nil
}

func (m *MemoryStore) SaveFingerprint(ctx context.Context, fp core.WritingFingerprint) error {
	m.mu.Lock()
	m.fingerprints[fp.UserID] = fp
	m.mu.Unlock()
	return nil
}

package store

import (
	"context"
	"testing"

	core "github.com/handywriterz/handywriterz/internal/agent/core"
)

func TestMemoryStoreStateRoundTrip(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	ctx := context.Background()

	if _, ok, err := m.LoadState(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing state: ok=%v err=%v", ok, err)
	}

	state := &core.WorkflowState{
		ConversationID: "c1",
		Status:         core.StatusSearching,
		SearchQueries:  []string{"q1"},
	}
	if err := m.SaveState(ctx, state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	// Mutating the original after save must not leak into the store.
	state.SearchQueries[0] = "mutated"

	loaded, ok, err := m.LoadState(ctx, "c1")
	if err != nil || !ok {
		t.Fatalf("LoadState: ok=%v err=%v", ok, err)
	}
	if loaded.SearchQueries[0] != "q1" {
		t.Fatalf("store should hold a snapshot, got %v", loaded.SearchQueries)
	}
}

func TestMemoryStoreFingerprint(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	ctx := context.Background()

	if _, ok, err := m.GetFingerprint(ctx, "u1"); err != nil || ok {
		t.Fatalf("missing fingerprint: ok=%v err=%v", ok, err)
	}
	fp := core.WritingFingerprint{UserID: "u1", AvgSentenceLen: 20, Drafts: 1}
	if err := m.SaveFingerprint(ctx, fp); err != nil {
		t.Fatalf("SaveFingerprint: %v", err)
	}
	got, ok, err := m.GetFingerprint(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("GetFingerprint: ok=%v err=%v", ok, err)
	}
	if got.AvgSentenceLen != 20 {
		t.Fatalf("fingerprint round trip wrong: %+v", got)
	}
}

package core

import (
	"testing"
)

func TestApplyMergesOnlySetFields(t *testing.T) {
	t.Parallel()

	state := &WorkflowState{
		ConversationID: "c1",
		Draft:          "original draft",
		Revisions:      2,
	}
	state.Apply(StateUpdate{SearchQueries: []string{"q1", "q2"}})

	if state.Draft != "original draft" {
		t.Fatalf("unset field was overwritten: %q", state.Draft)
	}
	if state.Revisions != 2 {
		t.Fatalf("unset int field was overwritten: %d", state.Revisions)
	}
	if len(state.SearchQueries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(state.SearchQueries))
	}
}

func TestApplyLastWriteWins(t *testing.T) {
	t.Parallel()

	state := &WorkflowState{}
	state.Apply(StateUpdate{Draft: Str("first")})
	state.Apply(StateUpdate{Draft: Str("second")})

	if state.Draft != "second" {
		t.Fatalf("expected last write to win, got %q", state.Draft)
	}
}

func TestApplyZeroValuesThroughPointers(t *testing.T) {
	t.Parallel()

	state := &WorkflowState{NeedFallback: true, CitationError: true}
	state.Apply(StateUpdate{NeedFallback: Bool(false), CitationError: Bool(false)})

	if state.NeedFallback || state.CitationError {
		t.Fatalf("pointer update should reset booleans: fallback=%v citation=%v", state.NeedFallback, state.CitationError)
	}
}

func TestCloneIsolation(t *testing.T) {
	t.Parallel()

	state := &WorkflowState{
		ConversationID: "c1",
		SearchQueries:  []string{"q1"},
		Sources:        []SourceRecord{{ID: "Smith", Title: "A study"}},
		ResearchResults: SwarmResult{
			"synthesis": {Data: map[string]string{"synthesis_notes": "notes"}},
		},
	}

	clone := state.Clone()
	clone.SearchQueries[0] = "mutated"
	clone.Sources[0].ID = "Mutated"
	clone.ResearchResults["synthesis"].Data["synthesis_notes"] = "mutated"

	if state.SearchQueries[0] != "q1" {
		t.Fatalf("clone shares query slice")
	}
	if state.Sources[0].ID != "Smith" {
		t.Fatalf("clone shares source slice")
	}
	if state.ResearchResults["synthesis"].Data["synthesis_notes"] != "notes" {
		t.Fatalf("clone shares swarm result map")
	}
}

func TestStateJSONRoundTrip(t *testing.T) {
	t.Parallel()

	state := &WorkflowState{
		ConversationID:   "c1",
		UserID:           "u1",
		Prompt:           "write about sepsis management",
		Params:           UserParams{Field: "nursing", WriteupType: "essay", WordCount: 1500, CitationStyle: "apa", MinSources: 3},
		SearchQueries:    []string{"sepsis management nursing"},
		SearchParams:     SearchParams{Topic: "sepsis", YearFrom: 2015, YearTo: 2025, MinSources: 3},
		Sources:          []SourceRecord{{ID: "Smith", Title: "Sepsis care", Year: 2020, IsLive: true}},
		FallbackAttempts: 1,
		Draft:            "Sepsis is... (Smith, 2020)",
		Revisions:        1,
		QAResults:        SwarmResult{"fact_check": {Error: "timeout"}},
		Status:           StatusQA,
	}

	payload, err := MarshalState(state)
	if err != nil {
		t.Fatalf("MarshalState: %v", err)
	}
	restored, err := UnmarshalState(payload)
	if err != nil {
		t.Fatalf("UnmarshalState: %v", err)
	}

	if restored.ConversationID != state.ConversationID ||
		restored.Status != state.Status ||
		restored.FallbackAttempts != state.FallbackAttempts ||
		restored.Draft != state.Draft {
		t.Fatalf("round trip mismatch: %+v", restored)
	}
	if restored.QAResults["fact_check"].Error != "timeout" {
		t.Fatalf("swarm result lost in round trip")
	}
	if restored.Sources[0].ID != "Smith" || !restored.Sources[0].IsLive {
		t.Fatalf("source lost in round trip: %+v", restored.Sources)
	}
}

func TestTerminal(t *testing.T) {
	t.Parallel()

	for status, want := range map[WorkflowStatus]bool{
		StatusInitiated: false,
		StatusDrafting:  false,
		StatusComplete:  true,
		StatusFailed:    true,
	} {
		s := &WorkflowState{Status: status}
		if s.Terminal() != want {
			t.Errorf("Terminal(%s) = %v, want %v", status, s.Terminal(), want)
		}
	}
}

package core

import (
	"encoding/json"
	"time"
)

// StateUpdate is an agent's additive contribution to the workflow state.
// Only set fields are merged; merge order is the graph's dispatch order,
// last write wins per field.
type StateUpdate struct {
	SearchQueries []string
	SearchParams  *SearchParams
	RawHits       []SourceRecord
	Sources       []SourceRecord

	NeedFallback     *bool
	FallbackAttempts *int

	Draft            *string
	FormattedDraft   *string
	CitationError    *bool
	MissingCitations []string
	Revisions        *int

	ResearchResults SwarmResult
	QAResults       SwarmResult
	WritingResults  SwarmResult

	Status       WorkflowStatus
	ErrorMessage *string
}

// Apply merges an update into the state. Only the graph loop calls this;
// agents never mutate the canonical state directly.
func (s *WorkflowState) Apply(u StateUpdate) {
	if u.SearchQueries != nil {
		s.SearchQueries = u.SearchQueries
	}
	if u.SearchParams != nil {
		s.SearchParams = *u.SearchParams
	}
	if u.RawHits != nil {
		s.RawHits = u.RawHits
	}
	if u.Sources != nil {
		s.Sources = u.Sources
	}
	if u.NeedFallback != nil {
		s.NeedFallback = *u.NeedFallback
	}
	if u.FallbackAttempts != nil {
		s.FallbackAttempts = *u.FallbackAttempts
	}
	if u.Draft != nil {
		s.Draft = *u.Draft
	}
	if u.FormattedDraft != nil {
		s.FormattedDraft = *u.FormattedDraft
	}
	if u.CitationError != nil {
		s.CitationError = *u.CitationError
	}
	if u.MissingCitations != nil {
		s.MissingCitations = u.MissingCitations
	}
	if u.Revisions != nil {
		s.Revisions = *u.Revisions
	}
	if u.ResearchResults != nil {
		s.ResearchResults = u.ResearchResults
	}
	if u.QAResults != nil {
		s.QAResults = u.QAResults
	}
	if u.WritingResults != nil {
		s.WritingResults = u.WritingResults
	}
	if u.Status != "" {
		s.Status = u.Status
	}
	if u.ErrorMessage != nil {
		s.ErrorMessage = *u.ErrorMessage
	}
	s.UpdatedAt = time.Now()
}

// Clone returns a deep copy. Agents receive clones so concurrent readers
// never observe partial merges.
func (s *WorkflowState) Clone() *WorkflowState {
	cp := *s
	cp.SearchQueries = append([]string(nil), s.SearchQueries...)
	cp.RawHits = append([]SourceRecord(nil), s.RawHits...)
	cp.Sources = append([]SourceRecord(nil), s.Sources...)
	cp.MissingCitations = append([]string(nil), s.MissingCitations...)
	cp.ResearchResults = cloneSwarmResult(s.ResearchResults)
	cp.QAResults = cloneSwarmResult(s.QAResults)
	cp.WritingResults = cloneSwarmResult(s.WritingResults)
	return &cp
}

func cloneSwarmResult(r SwarmResult) SwarmResult {
	if r == nil {
		return nil
	}
	out := make(SwarmResult, len(r))
	for name, oc := range r {
		data := make(map[string]string, len(oc.Data))
		for k, v := range oc.Data {
			data[k] = v
		}
		if len(data) == 0 {
			data = nil
		}
		out[name] = SwarmOutcome{Data: data, Error: oc.Error}
	}
	return out
}

// MarshalState serializes the state for checkpointing.
func MarshalState(s *WorkflowState) ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalState restores a checkpointed state.
func UnmarshalState(b []byte) (*WorkflowState, error) {
	var s WorkflowState
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Terminal reports whether the workflow has reached an end state.
func (s *WorkflowState) Terminal() bool {
	return s.Status == StatusComplete || s.Status == StatusFailed
}

// Pointer helpers for building updates.

func Bool(v bool) *bool       { return &v }
func Int(v int) *int          { return &v }
func Str(v string) *string    { return &v }

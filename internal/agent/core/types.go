package core

import (
	"context"
	"time"
)

// WorkflowStatus enumerates the orchestrator graph states.
type WorkflowStatus string

const (
	StatusInitiated     WorkflowStatus = "initiated"
	StatusPlanning      WorkflowStatus = "planning"
	StatusSearching     WorkflowStatus = "searching"
	StatusVerifying     WorkflowStatus = "verifying"
	StatusDrafting      WorkflowStatus = "drafting"
	StatusQA            WorkflowStatus = "qa"
	StatusCitationAudit WorkflowStatus = "citation_audit"
	StatusFormatting    WorkflowStatus = "formatting"
	StatusComplete      WorkflowStatus = "complete"
	StatusFailed        WorkflowStatus = "failed"
)

// UserParams captures the writing request parameters supplied by the caller.
type UserParams struct {
	Field          string `json:"field"`
	WriteupType    string `json:"writeup_type"`
	WordCount      int    `json:"word_count"`
	CitationStyle  string `json:"citation_style"`
	Region         string `json:"region"`
	SourceAgeYears int    `json:"source_age_years"`
	MinSources     int    `json:"min_sources"`
	StudyDesign    string `json:"study_design,omitempty"`
}

// SourceRecord is one bibliographic/evidence source. Created raw by a search
// provider, enriched and validated by the verifier, immutable once verified.
type SourceRecord struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Authors string  `json:"authors,omitempty"`
	Year    int     `json:"year,omitempty"`
	Venue   string  `json:"venue,omitempty"`
	DOI     string  `json:"doi,omitempty"`
	URL     string  `json:"url,omitempty"`
	Design  string  `json:"design,omitempty"`
	IsLive  bool    `json:"is_live"`
	Impact  float64 `json:"impact"`
}

// SearchParams are the mutable search policy knobs. Only the fallback
// controller may relax these between attempts.
type SearchParams struct {
	Topic      string `json:"topic"`
	YearFrom   int    `json:"year_from"`
	YearTo     int    `json:"year_to"`
	Design     string `json:"design,omitempty"`
	MinSources int    `json:"min_sources"`
	MaxResults int    `json:"max_results"`
}

// WritingFingerprint is a per-user style profile merged across drafts.
type WritingFingerprint struct {
	UserID           string    `json:"user_id"`
	AvgSentenceLen   float64   `json:"avg_sentence_len"`
	LexicalDiversity float64   `json:"lexical_diversity"`
	CitationDensity  float64   `json:"citation_density"`
	Drafts           int       `json:"drafts"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SwarmOutcome is one swarm member's contribution: either its data or an
// error descriptor, never both.
type SwarmOutcome struct {
	Data  map[string]string `json:"data,omitempty"`
	Error string            `json:"error,omitempty"`
}

// SwarmResult maps agent name to its outcome for one swarm batch.
type SwarmResult map[string]SwarmOutcome

// WorkflowState is the single shared record threaded through the graph. It
// must stay JSON-serializable at every step boundary so runs can be
// checkpointed and resumed.
type WorkflowState struct {
	ConversationID string     `json:"conversation_id"`
	UserID         string     `json:"user_id,omitempty"`
	Prompt         string     `json:"prompt"`
	Params         UserParams `json:"user_params"`

	SearchQueries []string       `json:"search_queries,omitempty"`
	SearchParams  SearchParams   `json:"search_params"`
	RawHits       []SourceRecord `json:"raw_search_results,omitempty"`
	Sources       []SourceRecord `json:"verified_sources,omitempty"`

	NeedFallback     bool `json:"need_fallback"`
	FallbackAttempts int  `json:"fallback_attempts"`

	Draft            string   `json:"draft_content,omitempty"`
	FormattedDraft   string   `json:"formatted_draft,omitempty"`
	CitationError    bool     `json:"citation_error"`
	MissingCitations []string `json:"missing,omitempty"`
	Revisions        int      `json:"revisions"`

	ResearchResults SwarmResult `json:"research_swarm_results,omitempty"`
	QAResults       SwarmResult `json:"qa_swarm_results,omitempty"`
	WritingResults  SwarmResult `json:"writing_swarm_results,omitempty"`

	Status       WorkflowStatus `json:"workflow_status"`
	ErrorMessage string         `json:"error_message,omitempty"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Agent is the unit-of-work contract. Execute receives a snapshot of the
// state (treat as read-only) and returns an additive partial update. Failures
// are signalled via NodeError; recoverable failures should instead be folded
// into a best-effort update by the agent itself.
type Agent interface {
	Name() string
	Execute(ctx context.Context, state *WorkflowState) (StateUpdate, error)
}

// SwarmAgent is a swarm member: it reads a state snapshot and returns named
// note fields to be merged under the swarm's result key.
type SwarmAgent interface {
	Name() string
	Run(ctx context.Context, state *WorkflowState) (map[string]string, error)
}

// LLMProvider is the abstract text-generation capability every LLM-backed
// agent depends on. Calls can fail or time out; callers decide whether that
// is fatal per the agent's contract.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// ProgressReporter is the fire-and-forget progress side channel. It must
// never block or return an error into an agent's primary path.
type ProgressReporter interface {
	Report(conversationID, stage string, percent float64)
}

// NopProgress discards progress reports.
type NopProgress struct{}

func (NopProgress) Report(string, string, float64) {}

// CheckpointStore persists the workflow state between graph steps. Writes
// must be idempotent: the store may be asked to save the same step twice.
type CheckpointStore interface {
	SaveState(ctx context.Context, state *WorkflowState) error
	LoadState(ctx context.Context, conversationID string) (*WorkflowState, bool, error)
}

// FingerprintStore persists per-user writing fingerprints.
type FingerprintStore interface {
	GetFingerprint(ctx context.Context, userID string) (WritingFingerprint, bool, error)
	SaveFingerprint(ctx context.Context, fp WritingFingerprint) error
}

// SearchRunner is the search fan-out boundary the graph dispatches to.
type SearchRunner interface {
	Run(ctx context.Context, queries []string, params SearchParams) []SourceRecord
}

package core

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
)

// DraftAgent produces the academic draft from the verified sources, the
// research/QA swarm notes, and the user's stored writing fingerprint. A
// failed generation here is fatal: there is no degraded substitute for the
// draft itself.
type DraftAgent struct {
	llm         LLMProvider
	fingerprint *WritingFingerprint
	logger      *log.Logger
}

func NewDraftAgent(llm LLMProvider) *DraftAgent {
	return &DraftAgent{
		llm:    llm,
		logger: log.New(log.Writer(), "[WRITER] ", log.LstdFlags),
	}
}

// SetFingerprint attaches the user's style profile for this run.
func (a *DraftAgent) SetFingerprint(fp *WritingFingerprint) { a.fingerprint = fp }

func (a *DraftAgent) Name() string { return "writer" }

func (a *DraftAgent) Execute(ctx context.Context, state *WorkflowState) (StateUpdate, error) {
	prompt := a.draftPrompt(state)
	maxTokens := state.Params.WordCount * 2
	if maxTokens <= 0 {
		maxTokens = 3000
	}

	draft, err := a.llm.Generate(ctx, prompt, maxTokens)
	if err != nil {
		return StateUpdate{}, WrapFatal(a.Name(), fmt.Errorf("draft generation: %w", err))
	}
	draft = strings.TrimSpace(draft)
	if draft == "" {
		return StateUpdate{}, Fatalf(a.Name(), "draft generation returned empty text")
	}

	revisions := state.Revisions
	if state.Draft != "" {
		revisions++
	}
	return StateUpdate{Draft: Str(draft), Revisions: Int(revisions)}, nil
}

func (a *DraftAgent) draftPrompt(state *WorkflowState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %d-word %s in the field of %s.\n", state.Params.WordCount, orDefault(state.Params.WriteupType, "essay"), orDefault(state.Params.Field, "general studies"))
	fmt.Fprintf(&b, "Request: %s\n\n", state.Prompt)
	b.WriteString("Cite only the sources below, in-text as (AuthorKey, Year) using the bracketed id as AuthorKey:\n")
	for _, s := range state.Sources {
		fmt.Fprintf(&b, "- [%s] %s. %s (%d). %s\n", s.ID, s.Authors, s.Title, s.Year, s.Venue)
	}

	if notes := state.ResearchResults.Notes(); len(notes) > 0 {
		b.WriteString("\nResearch notes:\n")
		for _, n := range notes {
			b.WriteString(n + "\n")
		}
	}
	if state.Draft != "" {
		b.WriteString("\nThis is a revision. Previous draft issues:\n")
		if len(state.MissingCitations) > 0 {
			fmt.Fprintf(&b, "- citations to unknown sources: %s (remove or replace them)\n", strings.Join(state.MissingCitations, ", "))
		}
		for _, n := range state.QAResults.Notes() {
			b.WriteString("- " + n + "\n")
		}
		for _, n := range state.WritingResults.Notes() {
			b.WriteString("- " + n + "\n")
		}
	}

	if a.fingerprint != nil && a.fingerprint.Drafts > 0 {
		fmt.Fprintf(&b, "\nMatch the author's style: ~%.0f words per sentence, lexical diversity %.2f, about %.1f citations per 100 words.\n",
			a.fingerprint.AvgSentenceLen, a.fingerprint.LexicalDiversity, a.fingerprint.CitationDensity)
	}
	return b.String()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// FormatterAgent renders the reference list for the requested citation style
// and appends it to the draft. Purely deterministic; it never fails the run.
type FormatterAgent struct{}

func NewFormatterAgent() *FormatterAgent { return &FormatterAgent{} }

func (a *FormatterAgent) Name() string { return "formatter" }

func (a *FormatterAgent) Execute(ctx context.Context, state *WorkflowState) (StateUpdate, error) {
	refs := FormatReferences(state.Sources, state.Params.CitationStyle)
	var b strings.Builder
	b.WriteString(state.Draft)
	if len(refs) > 0 {
		b.WriteString("\n\nReferences\n")
		for _, r := range refs {
			b.WriteString(r + "\n")
		}
	}
	return StateUpdate{FormattedDraft: Str(b.String())}, nil
}

// FormatReferences renders one reference line per source, sorted by id.
// Styles: "apa" (default) and "harvard" differ only in venue punctuation
// here; full style fidelity belongs to the export layer.
func FormatReferences(sources []SourceRecord, style string) []string {
	sorted := append([]SourceRecord(nil), sources...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	out := make([]string, 0, len(sorted))
	for _, s := range sorted {
		var b strings.Builder
		authors := s.Authors
		if authors == "" {
			authors = s.ID
		}
		switch strings.ToLower(style) {
		case "harvard":
			fmt.Fprintf(&b, "%s, %d. %s.", authors, s.Year, s.Title)
		default: // apa
			fmt.Fprintf(&b, "%s (%d). %s.", authors, s.Year, s.Title)
		}
		if s.Venue != "" {
			fmt.Fprintf(&b, " %s.", s.Venue)
		}
		if s.DOI != "" {
			fmt.Fprintf(&b, " https://doi.org/%s", s.DOI)
		} else if s.URL != "" {
			fmt.Fprintf(&b, " %s", s.URL)
		}
		out = append(out, b.String())
	}
	return out
}

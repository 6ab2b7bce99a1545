package core

import (
	"context"
	"log"
	"regexp"
	"strings"
)

// citationPattern matches in-text citations of the form "(Author, 2020)" or
// "(Author 2020)": an author token between the opening parenthesis and a
// 4-digit year, separated by a comma and/or whitespace. The author token is
// the citation key; the year is not cross-checked against the source record.
var citationPattern = regexp.MustCompile(`\(([A-Za-z][A-Za-z'’\-]*)[,\s]\s*(\d{4})\)`)

// ExtractCitationKeys returns the author tokens of all in-text citations in
// draft, in order of first appearance, deduplicated.
func ExtractCitationKeys(draft string) []string {
	matches := citationPattern.FindAllStringSubmatch(draft, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var keys []string
	for _, m := range matches {
		key := m[1]
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// CitationAuditAgent cross-references every in-text citation key against the
// verified source set. It judges presence only, not citation correctness.
type CitationAuditAgent struct {
	logger *log.Logger
}

func NewCitationAuditAgent() *CitationAuditAgent {
	return &CitationAuditAgent{logger: log.New(log.Writer(), "[AUDIT] ", log.LstdFlags)}
}

func (a *CitationAuditAgent) Name() string { return "citation_audit" }

func (a *CitationAuditAgent) Execute(ctx context.Context, state *WorkflowState) (StateUpdate, error) {
	allowed := make(map[string]struct{}, len(state.Sources))
	for _, src := range state.Sources {
		allowed[strings.ToLower(src.ID)] = struct{}{}
	}

	var missing []string
	for _, key := range ExtractCitationKeys(state.Draft) {
		if _, ok := allowed[strings.ToLower(key)]; !ok {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		a.logger.Printf("draft cites %d unknown key(s): %s", len(missing), strings.Join(missing, ", "))
	}
	if missing == nil {
		// Non-nil so a clean re-audit clears the previous round's list.
		missing = []string{}
	}
	return StateUpdate{
		CitationError:    Bool(len(missing) > 0),
		MissingCitations: missing,
	}, nil
}

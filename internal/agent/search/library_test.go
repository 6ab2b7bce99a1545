package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/handywriterz/handywriterz/internal/agent/core"
)

func TestLibraryAddAndSearch(t *testing.T) {
	// bleve writes to disk; no t.Parallel to keep tmpdir churn low.
	lib, err := NewLibrary(filepath.Join(t.TempDir(), "library.bleve"), 5)
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	defer lib.Close()

	sources := []core.SourceRecord{
		{
			ID:      "Smith",
			Title:   "Early sepsis detection in intensive care",
			Authors: "Smith, John",
			Year:    2020,
			Venue:   "Critical Care",
			DOI:     "10.1000/sepsis",
			Design:  "cohort",
		},
		{
			ID:      "Doe",
			Title:   "Wound management techniques",
			Authors: "Doe, Jane",
			Year:    2021,
			URL:     "https://example.org/wound",
		},
		{ID: "NoKey", Title: "Unindexable source"}, // no DOI or URL, skipped
	}
	if err := lib.Add(sources); err != nil {
		t.Fatalf("Add: %v", err)
	}

	hits, err := lib.Search(context.Background(), "sepsis detection", core.SearchParams{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected the sepsis source to match")
	}
	h := hits[0]
	if h.DOI != "10.1000/sepsis" || h.Year != 2020 || h.ID != "Smith" {
		t.Fatalf("stored fields lost: %+v", h)
	}

	// The unrelated source should not outrank the match.
	for _, hit := range hits {
		if hit.Title == "Unindexable source" {
			t.Fatalf("keyless source should not be indexed")
		}
	}
}

func TestLibraryUpsertByDOI(t *testing.T) {
	lib, err := NewLibrary(filepath.Join(t.TempDir(), "library.bleve"), 5)
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	defer lib.Close()

	first := []core.SourceRecord{{ID: "Smith", Title: "Old title", Authors: "Smith, J.", Year: 2019, DOI: "10.1/a"}}
	second := []core.SourceRecord{{ID: "Smith", Title: "Corrected title", Authors: "Smith, J.", Year: 2020, DOI: "10.1/a"}}
	if err := lib.Add(first); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := lib.Add(second); err != nil {
		t.Fatalf("Add: %v", err)
	}

	hits, err := lib.Search(context.Background(), "corrected title", core.SearchParams{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("re-adding the same DOI should overwrite, got %d hits", len(hits))
	}
	if hits[0].Year != 2020 {
		t.Fatalf("expected updated document, got %+v", hits[0])
	}
}

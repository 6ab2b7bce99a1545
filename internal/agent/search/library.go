package search

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve"
	"github.com/handywriterz/handywriterz/internal/agent/core"
)

// Library searches a local full-text index of sources verified in earlier
// runs, so evidence a user has already vetted resurfaces before any network
// provider responds.
type Library struct {
	index      bleve.Index
	maxResults int
}

// NewLibrary opens (or creates) the index at path.
func NewLibrary(path string, maxResults int) (*Library, error) {
	var index bleve.Index
	var err error
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		index, err = bleve.New(path, bleve.NewIndexMapping())
	} else {
		index, err = bleve.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open library index: %w", err)
	}
	return &Library{index: index, maxResults: maxResults}, nil
}

func (l *Library) Name() string { return "library" }

// libraryDoc is the indexed representation of a verified source.
type libraryDoc struct {
	Title   string  `json:"title"`
	Authors string  `json:"authors"`
	Year    float64 `json:"year"`
	Venue   string  `json:"venue"`
	DOI     string  `json:"doi"`
	URL     string  `json:"url"`
	Design  string  `json:"design"`
}

// Add indexes verified sources for future runs.
func (l *Library) Add(sources []core.SourceRecord) error {
	batch := l.index.NewBatch()
	for _, s := range sources {
		doc := libraryDoc{
			Title:   s.Title,
			Authors: s.Authors,
			Year:    float64(s.Year),
			Venue:   s.Venue,
			DOI:     s.DOI,
			URL:     s.URL,
			Design:  s.Design,
		}
		key := s.DOI
		if key == "" {
			key = s.URL
		}
		if key == "" {
			continue
		}
		if err := batch.Index(key, doc); err != nil {
			return err
		}
	}
	return l.index.Batch(batch)
}

func (l *Library) Search(ctx context.Context, query string, params core.SearchParams) ([]core.SourceRecord, error) {
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, l.maxResults, 0, false)
	req.Fields = []string{"*"}

	res, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	var out []core.SourceRecord
	for _, hit := range res.Hits {
		rec := core.SourceRecord{
			Title:   fieldString(hit.Fields, "title"),
			Authors: fieldString(hit.Fields, "authors"),
			Venue:   fieldString(hit.Fields, "venue"),
			DOI:     fieldString(hit.Fields, "doi"),
			URL:     fieldString(hit.Fields, "url"),
			Design:  fieldString(hit.Fields, "design"),
			Impact:  hit.Score,
		}
		if y, ok := hit.Fields["year"].(float64); ok {
			rec.Year = int(y)
		}
		if rec.Title == "" {
			continue
		}
		rec.ID = RecordID(rec.Authors, rec.DOI)
		if rec.ID == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close releases the underlying index.
func (l *Library) Close() error { return l.index.Close() }

func fieldString(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}

// Package search implements the provider family: one client per external
// source, all normalizing into the canonical SourceRecord shape, executed as
// a concurrent no-abort fan-out.
package search

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/handywriterz/handywriterz/config"
	"github.com/handywriterz/handywriterz/internal/agent/core"
	"github.com/handywriterz/handywriterz/internal/agent/telemetry"
)

// Provider wraps one external search source. Search composes the provider's
// query building, network call, and normalization; it returns an empty slice
// rather than an error for HTTP-level failures, and skips items it cannot
// parse instead of aborting the batch.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, params core.SearchParams) ([]core.SourceRecord, error)
}

// Family runs every configured provider concurrently for every query. One
// provider being down never blocks the others.
type Family struct {
	providers []Provider
	timeout   time.Duration
	tele      *telemetry.Telemetry
	logger    *log.Logger
}

// NewFamily builds the provider roster from configuration. Academic
// providers need no credentials and are always on; keyed providers join only
// when configured. The library is shared with the caller (which also writes
// to it) and may be nil.
func NewFamily(cfg config.SearchConfig, lib *Library, tele *telemetry.Telemetry) *Family {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	providers := []Provider{
		NewCrossref(cfg.CrossrefMailto, maxResults),
		NewOpenAlex(maxResults),
		NewSemanticScholar(maxResults),
	}
	if cfg.BraveAPIKey != "" {
		providers = append(providers, NewBrave(cfg.BraveAPIKey, maxResults))
	}
	if cfg.SerperAPIKey != "" {
		providers = append(providers, NewSerper(cfg.SerperAPIKey, maxResults))
	}
	if cfg.GithubToken != "" {
		providers = append(providers, NewGithub(cfg.GithubToken, maxResults))
	}
	if lib != nil {
		providers = append(providers, lib)
	}

	return &Family{
		providers: providers,
		timeout:   timeout,
		tele:      tele,
		logger:    log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
	}
}

// NewFamilyWith builds a family over an explicit roster (used by tests and
// the one-shot CLI).
func NewFamilyWith(providers []Provider, timeout time.Duration, tele *telemetry.Telemetry) *Family {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Family{
		providers: providers,
		timeout:   timeout,
		tele:      tele,
		logger:    log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
	}
}

// Run fans all queries out to all providers and returns the merged,
// deduplicated hits. Provider failures are recorded and swallowed.
func (f *Family) Run(ctx context.Context, queries []string, params core.SearchParams) []core.SourceRecord {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		all []core.SourceRecord
	)

	for _, provider := range f.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			for _, query := range queries {
				hits := f.searchOne(ctx, p, query, params)
				if len(hits) == 0 {
					continue
				}
				mu.Lock()
				all = append(all, hits...)
				mu.Unlock()
			}
		}(provider)
	}
	wg.Wait()

	return Deduplicate(all)
}

func (f *Family) searchOne(ctx context.Context, p Provider, query string, params core.SearchParams) []core.SourceRecord {
	sctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	hits, err := p.Search(sctx, query, params)
	f.tele.RecordSearchEvent(telemetry.SearchEvent{
		Provider: p.Name(),
		Duration: time.Since(start),
		Results:  len(hits),
		Success:  err == nil,
	})
	if err != nil {
		f.logger.Printf("provider %s failed for %q: %v", p.Name(), query, err)
		return nil
	}
	return hits
}

// Deduplicate drops repeated hits, preferring DOI identity, then URL, then a
// normalized title.
func Deduplicate(hits []core.SourceRecord) []core.SourceRecord {
	seen := make(map[string]struct{}, len(hits))
	var out []core.SourceRecord
	for _, h := range hits {
		key := dedupeKey(h)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, h)
	}
	return out
}

func dedupeKey(h core.SourceRecord) string {
	if h.DOI != "" {
		return "doi:" + strings.ToLower(h.DOI)
	}
	if h.URL != "" {
		return "url:" + strings.ToLower(strings.TrimSuffix(h.URL, "/"))
	}
	return "title:" + strings.ToLower(strings.Join(strings.Fields(h.Title), " "))
}

// RecordID derives the stable citation key for a hit: the first author's
// surname when known, otherwise a fallback identifier from the provider.
func RecordID(authors, fallback string) string {
	surname := firstAuthorSurname(authors)
	if surname != "" {
		return surname
	}
	return fallback
}

func firstAuthorSurname(authors string) string {
	authors = strings.TrimSpace(authors)
	if authors == "" {
		return ""
	}
	first := authors
	for _, sep := range []string{";", " and ", "&"} {
		if i := strings.Index(first, sep); i >= 0 {
			first = first[:i]
		}
	}
	// "Surname, Given" keeps the surname; "Given Surname" takes the last word.
	if i := strings.Index(first, ","); i >= 0 {
		first = first[:i]
	} else {
		fields := strings.Fields(first)
		if len(fields) > 0 {
			first = fields[len(fields)-1]
		}
	}
	first = strings.TrimFunc(first, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-' && r != '\''
	})
	return strings.TrimSpace(first)
}

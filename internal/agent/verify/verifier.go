// Package verify implements the source quality gate: raw search hits go in,
// policy-compliant live sources come out, and the fallback controller relaxes
// the search policy when too few survive.
package verify

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/handywriterz/handywriterz/config"
	"github.com/handywriterz/handywriterz/internal/agent/core"
	"github.com/handywriterz/handywriterz/internal/agent/telemetry"
	"github.com/handywriterz/handywriterz/internal/tools/webfetch"
)

// Enricher fills missing metadata on a hit from its URL. Satisfied by
// webfetch.Fetcher; nil disables enrichment.
type Enricher interface {
	Fetch(ctx context.Context, url string) (webfetch.PageMeta, error)
}

// Verifier validates raw hits against the search policy. A hit survives only
// if it passes every check; failing hits are dropped, never repaired. This
// trades recall for precision deliberately.
type Verifier struct {
	cfg      config.VerifyConfig
	client   *http.Client
	enricher Enricher
	tele     *telemetry.Telemetry
	logger   *log.Logger
}

func NewVerifier(cfg config.VerifyConfig, tele *telemetry.Telemetry) *Verifier {
	timeout := cfg.LivenessTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	var enricher Enricher
	if cfg.EnrichTimeout > 0 {
		enricher = webfetch.NewFetcher(cfg.EnrichTimeout, cfg.RenderFallback)
	}
	return &Verifier{
		cfg:      cfg,
		client:   &http.Client{Timeout: timeout}, // follows redirects by default
		enricher: enricher,
		tele:     tele,
		logger:   log.New(log.Writer(), "[VERIFY] ", log.LstdFlags),
	}
}

func (v *Verifier) Name() string { return "verifier" }

// Execute verifies the state's raw hits and signals fallback when fewer than
// min_sources survive.
func (v *Verifier) Execute(ctx context.Context, state *core.WorkflowState) (core.StateUpdate, error) {
	sources := v.VerifyAll(ctx, state.RawHits, state.SearchParams)
	need := len(sources) < state.SearchParams.MinSources
	if need {
		v.logger.Printf("%d/%d hits survived, need %d: requesting fallback", len(sources), len(state.RawHits), state.SearchParams.MinSources)
	}
	return core.StateUpdate{
		Sources:      sources,
		NeedFallback: core.Bool(need),
	}, nil
}

// VerifyAll checks hits concurrently and returns the survivors in input
// order. Per-hit network failures count against that hit only.
func (v *Verifier) VerifyAll(ctx context.Context, hits []core.SourceRecord, params core.SearchParams) []core.SourceRecord {
	if len(hits) == 0 {
		return nil
	}
	maxConcurrent := v.cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}

	verified := make([]*core.SourceRecord, len(hits))
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	for i, hit := range hits {
		wg.Add(1)
		go func(idx int, h core.SourceRecord) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if out, ok := v.checkHit(ctx, h, params); ok {
				verified[idx] = &out
			}
		}(i, hit)
	}
	wg.Wait()

	var out []core.SourceRecord
	for _, s := range verified {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

func (v *Verifier) checkHit(ctx context.Context, hit core.SourceRecord, params core.SearchParams) (core.SourceRecord, bool) {
	v.enrich(ctx, &hit)

	if params.Design != "" && !designMatches(hit.Design, params.Design) {
		v.tele.RecordRejection("design")
		return hit, false
	}
	if hit.Year == 0 || hit.Year < params.YearFrom || hit.Year > params.YearTo {
		v.tele.RecordRejection("year")
		return hit, false
	}
	hit.IsLive = v.isLive(ctx, &hit)
	if !hit.IsLive {
		v.tele.RecordRejection("liveness")
		return hit, false
	}
	return hit, true
}

// enrich fills missing metadata from the page itself. Best effort: a failed
// lookup leaves the hit unchanged.
func (v *Verifier) enrich(ctx context.Context, hit *core.SourceRecord) {
	if v.enricher == nil || hit.URL == "" {
		return
	}
	if hit.Title != "" && hit.Venue != "" {
		return
	}
	meta, err := v.enricher.Fetch(ctx, hit.URL)
	if err != nil {
		return
	}
	if hit.Title == "" {
		hit.Title = meta.Title
	}
	if hit.Venue == "" {
		hit.Venue = meta.SiteName
	}
	if hit.Authors == "" {
		hit.Authors = meta.Byline
	}
}

// designMatches is a case-insensitive substring match, the defined tie-break
// for study-design filtering (not semantic matching).
func designMatches(design, required string) bool {
	return strings.Contains(strings.ToLower(design), strings.ToLower(required))
}

// isLive issues a redirect-following HEAD request; any network error or
// client/server error status means "not live". Canonicalizes the checked URL
// onto the record.
func (v *Verifier) isLive(ctx context.Context, hit *core.SourceRecord) bool {
	target := hit.URL
	if target == "" && hit.DOI != "" {
		target = "https://doi.org/" + hit.DOI
	}
	if target == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return false
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return false
	}
	if final := resp.Request.URL.String(); final != "" {
		hit.URL = final
	}
	return true
}

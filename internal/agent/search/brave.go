package search

import (
	"context"
	"fmt"
	"net/url"

	"github.com/handywriterz/handywriterz/internal/agent/core"
)

// Brave queries the Brave web search API for grey literature and
// institutional pages. https://api.search.brave.com/app/documentation
type Brave struct {
	apiKey     string
	maxResults int
	baseURL    string
	httpc      *core.HTTPClient
}

func NewBrave(apiKey string, maxResults int) *Brave {
	return &Brave{
		apiKey:     apiKey,
		maxResults: maxResults,
		baseURL:    "https://api.search.brave.com",
		httpc:      core.NewHTTPClient(0, 1, 0),
	}
}

func (b *Brave) Name() string { return "brave" }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			PageAge     string `json:"page_age"`
		} `json:"results"`
	} `json:"web"`
}

func (b *Brave) Search(ctx context.Context, query string, params core.SearchParams) ([]core.SourceRecord, error) {
	endpoint := fmt.Sprintf("%s/res/v1/web/search?q=%s&count=%d", b.baseURL, url.QueryEscape(query), b.maxResults)
	headers := map[string]string{
		"Accept":               "application/json",
		"X-Subscription-Token": b.apiKey,
	}
	var resp braveResponse
	if err := b.httpc.DoJSON(ctx, "GET", endpoint, headers, nil, &resp); err != nil {
		return nil, err
	}

	var out []core.SourceRecord
	for i, r := range resp.Web.Results {
		if i >= b.maxResults {
			break
		}
		if r.Title == "" || r.URL == "" {
			continue
		}
		out = append(out, core.SourceRecord{
			ID:     webRecordID(r.URL),
			Title:  r.Title,
			URL:    r.URL,
			Year:   yearFromPageAge(r.PageAge),
			Design: "web",
		})
	}
	return out, nil
}

// SetBaseURL overrides the API root, used by tests.
func (b *Brave) SetBaseURL(u string) { b.baseURL = u }

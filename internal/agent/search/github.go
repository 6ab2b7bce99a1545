package search

import (
	"context"
	"fmt"
	"net/url"

	"github.com/handywriterz/handywriterz/internal/agent/core"
)

// Github searches code repositories, used for technical writeups that cite
// software artifacts. https://docs.github.com/rest/search
type Github struct {
	token      string
	maxResults int
	baseURL    string
	httpc      *core.HTTPClient
}

func NewGithub(token string, maxResults int) *Github {
	return &Github{
		token:      token,
		maxResults: maxResults,
		baseURL:    "https://api.github.com",
		httpc:      core.NewHTTPClient(0, 1, 0),
	}
}

func (g *Github) Name() string { return "github" }

type githubResponse struct {
	Items []struct {
		FullName    string `json:"full_name"`
		HTMLURL     string `json:"html_url"`
		Description string `json:"description"`
		Owner       struct {
			Login string `json:"login"`
		} `json:"owner"`
		PushedAt string `json:"pushed_at"`
		Stars    int    `json:"stargazers_count"`
	} `json:"items"`
}

func (g *Github) Search(ctx context.Context, query string, params core.SearchParams) ([]core.SourceRecord, error) {
	endpoint := fmt.Sprintf("%s/search/repositories?q=%s&sort=stars&per_page=%d", g.baseURL, url.QueryEscape(query), g.maxResults)
	headers := map[string]string{
		"Accept":        "application/vnd.github+json",
		"Authorization": "Bearer " + g.token,
	}
	var resp githubResponse
	if err := g.httpc.DoJSON(ctx, "GET", endpoint, headers, nil, &resp); err != nil {
		return nil, err
	}

	var out []core.SourceRecord
	for i, r := range resp.Items {
		if i >= g.maxResults {
			break
		}
		if r.FullName == "" || r.HTMLURL == "" {
			continue
		}
		out = append(out, core.SourceRecord{
			ID:      capitalized(r.Owner.Login),
			Title:   r.FullName + ": " + r.Description,
			Authors: r.Owner.Login,
			URL:     r.HTMLURL,
			Year:    yearFromText(r.PushedAt),
			Venue:   "GitHub",
			Design:  "software",
			Impact:  float64(r.Stars),
		})
	}
	return out, nil
}

func capitalized(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]&^0x20) + s[1:]
}

// SetBaseURL overrides the API root, used by tests.
func (g *Github) SetBaseURL(u string) { g.baseURL = u }

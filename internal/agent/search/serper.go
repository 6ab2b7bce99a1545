package search

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/handywriterz/handywriterz/internal/agent/core"
)

// Serper queries Google results through serper.dev. https://serper.dev
type Serper struct {
	apiKey     string
	maxResults int
	baseURL    string
	httpc      *core.HTTPClient
}

func NewSerper(apiKey string, maxResults int) *Serper {
	return &Serper{
		apiKey:     apiKey,
		maxResults: maxResults,
		baseURL:    "https://google.serper.dev",
		httpc:      core.NewHTTPClient(0, 1, 0),
	}
}

func (s *Serper) Name() string { return "serper" }

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
	} `json:"organic"`
}

func (s *Serper) Search(ctx context.Context, query string, params core.SearchParams) ([]core.SourceRecord, error) {
	payload := map[string]any{"q": query, "num": s.maxResults}
	headers := map[string]string{"X-API-KEY": s.apiKey}
	var resp serperResponse
	if err := s.httpc.DoJSON(ctx, "POST", s.baseURL+"/search", headers, payload, &resp); err != nil {
		return nil, err
	}

	var out []core.SourceRecord
	for i, r := range resp.Organic {
		if i >= s.maxResults {
			break
		}
		if r.Title == "" || r.Link == "" {
			continue
		}
		out = append(out, core.SourceRecord{
			ID:     webRecordID(r.Link),
			Title:  r.Title,
			URL:    r.Link,
			Year:   yearFromText(r.Date),
			Design: "web",
		})
	}
	return out, nil
}

// SetBaseURL overrides the API root, used by tests.
func (s *Serper) SetBaseURL(u string) { s.baseURL = u }

// webRecordID derives a citation key from a URL's host: "who.int" -> "Who".
func webRecordID(rawURL string) string {
	host := rawURL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	host = strings.TrimPrefix(host, "www.")
	if i := strings.IndexByte(host, '.'); i >= 0 {
		host = host[:i]
	}
	if host == "" {
		return ""
	}
	return strings.ToUpper(host[:1]) + host[1:]
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// yearFromText pulls a plausible publication year out of freeform text.
func yearFromText(text string) int {
	m := yearPattern.FindString(text)
	if m == "" {
		return 0
	}
	y, _ := strconv.Atoi(m)
	return y
}

// yearFromPageAge parses Brave's page_age timestamps ("2023-08-01T...").
func yearFromPageAge(age string) int {
	if len(age) >= 4 {
		if y, err := strconv.Atoi(age[:4]); err == nil && y > 1900 {
			return y
		}
	}
	return yearFromText(age)
}

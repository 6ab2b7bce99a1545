package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/handywriterz/handywriterz/internal/agent/core"
)

// SemanticScholar queries the Semantic Scholar graph API.
// https://api.semanticscholar.org/api-docs/graph
type SemanticScholar struct {
	maxResults int
	baseURL    string
	httpc      *core.HTTPClient
}

func NewSemanticScholar(maxResults int) *SemanticScholar {
	return &SemanticScholar{
		maxResults: maxResults,
		baseURL:    "https://api.semanticscholar.org",
		httpc:      core.NewHTTPClient(0, 1, 0),
	}
}

func (s *SemanticScholar) Name() string { return "semantic_scholar" }

func (s *SemanticScholar) buildQuery(query string, params core.SearchParams) string {
	v := url.Values{}
	v.Set("query", query)
	v.Set("limit", fmt.Sprint(s.maxResults))
	v.Set("fields", "title,year,authors,venue,externalIds,url,publicationTypes")
	v.Set("year", fmt.Sprintf("%d-%d", params.YearFrom, params.YearTo))
	return s.baseURL + "/graph/v1/paper/search?" + v.Encode()
}

type semanticScholarResponse struct {
	Data []struct {
		Title   string `json:"title"`
		Year    int    `json:"year"`
		Venue   string `json:"venue"`
		URL     string `json:"url"`
		Authors []struct {
			Name string `json:"name"`
		} `json:"authors"`
		ExternalIDs struct {
			DOI string `json:"DOI"`
		} `json:"externalIds"`
		PublicationTypes []string `json:"publicationTypes"`
	} `json:"data"`
}

func (s *SemanticScholar) Search(ctx context.Context, query string, params core.SearchParams) ([]core.SourceRecord, error) {
	var resp semanticScholarResponse
	if err := s.httpc.DoJSON(ctx, "GET", s.buildQuery(query, params), nil, nil, &resp); err != nil {
		return nil, err
	}
	return s.normalize(resp), nil
}

func (s *SemanticScholar) normalize(resp semanticScholarResponse) []core.SourceRecord {
	var out []core.SourceRecord
	for _, item := range resp.Data {
		if item.Title == "" {
			continue
		}
		rec := core.SourceRecord{
			Title:  item.Title,
			Year:   item.Year,
			Venue:  item.Venue,
			URL:    item.URL,
			DOI:    item.ExternalIDs.DOI,
			Design: strings.Join(item.PublicationTypes, ", "),
		}
		var authors []string
		for _, a := range item.Authors {
			if a.Name != "" {
				authors = append(authors, a.Name)
			}
		}
		rec.Authors = strings.Join(authors, "; ")
		rec.ID = RecordID(rec.Authors, rec.DOI)
		if rec.ID == "" {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// SetBaseURL overrides the API root, used by tests.
func (s *SemanticScholar) SetBaseURL(u string) { s.baseURL = u }

package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/handywriterz/handywriterz/internal/agent/core"
)

// Crossref queries the Crossref works API for peer-reviewed literature.
// https://api.crossref.org/swagger-ui/index.html
type Crossref struct {
	mailto     string
	maxResults int
	baseURL    string
	httpc      *core.HTTPClient
}

func NewCrossref(mailto string, maxResults int) *Crossref {
	return &Crossref{
		mailto:     mailto,
		maxResults: maxResults,
		baseURL:    "https://api.crossref.org",
		httpc:      core.NewHTTPClient(0, 1, 0),
	}
}

func (c *Crossref) Name() string { return "crossref" }

func (c *Crossref) buildQuery(query string, params core.SearchParams) string {
	v := url.Values{}
	v.Set("query", query)
	v.Set("rows", fmt.Sprint(c.maxResults))
	filters := []string{
		fmt.Sprintf("from-pub-date:%d-01-01", params.YearFrom),
		fmt.Sprintf("until-pub-date:%d-12-31", params.YearTo),
	}
	v.Set("filter", strings.Join(filters, ","))
	if c.mailto != "" {
		v.Set("mailto", c.mailto)
	}
	return c.baseURL + "/works?" + v.Encode()
}

type crossrefResponse struct {
	Message struct {
		Items []struct {
			DOI            string     `json:"DOI"`
			Title          []string   `json:"title"`
			ContainerTitle []string   `json:"container-title"`
			URL            string     `json:"URL"`
			Type           string     `json:"type"`
			Author         []struct { // family/given per Crossref contributor model
				Family string `json:"family"`
				Given  string `json:"given"`
			} `json:"author"`
			Issued struct {
				DateParts [][]int `json:"date-parts"`
			} `json:"issued"`
		} `json:"items"`
	} `json:"message"`
}

func (c *Crossref) Search(ctx context.Context, query string, params core.SearchParams) ([]core.SourceRecord, error) {
	var resp crossrefResponse
	if err := c.httpc.DoJSON(ctx, "GET", c.buildQuery(query, params), nil, nil, &resp); err != nil {
		return nil, err
	}
	return c.normalize(resp), nil
}

func (c *Crossref) normalize(resp crossrefResponse) []core.SourceRecord {
	var out []core.SourceRecord
	for _, item := range resp.Message.Items {
		if len(item.Title) == 0 || item.Title[0] == "" {
			continue
		}
		rec := core.SourceRecord{
			Title:  item.Title[0],
			DOI:    item.DOI,
			URL:    item.URL,
			Design: item.Type,
		}
		if len(item.ContainerTitle) > 0 {
			rec.Venue = item.ContainerTitle[0]
		}
		var authors []string
		for _, a := range item.Author {
			name := strings.TrimSpace(a.Family)
			if a.Given != "" {
				name = strings.TrimSpace(a.Family + ", " + a.Given)
			}
			if name != "" {
				authors = append(authors, name)
			}
		}
		rec.Authors = strings.Join(authors, "; ")
		if len(item.Issued.DateParts) > 0 && len(item.Issued.DateParts[0]) > 0 {
			rec.Year = item.Issued.DateParts[0][0]
		}
		rec.ID = RecordID(rec.Authors, item.DOI)
		if rec.ID == "" {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// SetBaseURL overrides the API root, used by tests.
func (c *Crossref) SetBaseURL(u string) { c.baseURL = u }

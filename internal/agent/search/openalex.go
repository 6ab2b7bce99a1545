package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/handywriterz/handywriterz/internal/agent/core"
)

// OpenAlex queries the OpenAlex works API. https://docs.openalex.org
type OpenAlex struct {
	maxResults int
	baseURL    string
	httpc      *core.HTTPClient
}

func NewOpenAlex(maxResults int) *OpenAlex {
	return &OpenAlex{
		maxResults: maxResults,
		baseURL:    "https://api.openalex.org",
		httpc:      core.NewHTTPClient(0, 1, 0),
	}
}

func (o *OpenAlex) Name() string { return "openalex" }

func (o *OpenAlex) buildQuery(query string, params core.SearchParams) string {
	v := url.Values{}
	v.Set("search", query)
	v.Set("per-page", fmt.Sprint(o.maxResults))
	v.Set("filter", fmt.Sprintf("from_publication_date:%d-01-01,to_publication_date:%d-12-31", params.YearFrom, params.YearTo))
	return o.baseURL + "/works?" + v.Encode()
}

type openAlexResponse struct {
	Results []struct {
		DisplayName     string `json:"display_name"`
		PublicationYear int    `json:"publication_year"`
		DOI             string `json:"doi"` // full https://doi.org/... URL
		Type            string `json:"type"`
		PrimaryLocation struct {
			LandingPageURL string `json:"landing_page_url"`
			Source         struct {
				DisplayName string `json:"display_name"`
			} `json:"source"`
		} `json:"primary_location"`
		Authorships []struct {
			Author struct {
				DisplayName string `json:"display_name"`
			} `json:"author"`
		} `json:"authorships"`
	} `json:"results"`
}

func (o *OpenAlex) Search(ctx context.Context, query string, params core.SearchParams) ([]core.SourceRecord, error) {
	var resp openAlexResponse
	if err := o.httpc.DoJSON(ctx, "GET", o.buildQuery(query, params), nil, nil, &resp); err != nil {
		return nil, err
	}
	return o.normalize(resp), nil
}

func (o *OpenAlex) normalize(resp openAlexResponse) []core.SourceRecord {
	var out []core.SourceRecord
	for _, item := range resp.Results {
		if item.DisplayName == "" {
			continue
		}
		rec := core.SourceRecord{
			Title:  item.DisplayName,
			Year:   item.PublicationYear,
			Venue:  item.PrimaryLocation.Source.DisplayName,
			URL:    item.PrimaryLocation.LandingPageURL,
			DOI:    strings.TrimPrefix(item.DOI, "https://doi.org/"),
			Design: item.Type,
		}
		var authors []string
		for _, a := range item.Authorships {
			if a.Author.DisplayName != "" {
				authors = append(authors, a.Author.DisplayName)
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
func (o *OpenAlex) SetBaseURL(u string) { o.baseURL = u }

// Package webfetch fetches a page and extracts article metadata, used to
// enrich raw search hits with missing titles and venue names. Plain HTTP is
// tried first; when enabled, JS-only pages fall back to a headless render.
package webfetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"
)

// PageMeta is the extracted metadata of one fetched page.
type PageMeta struct {
	Title    string
	Byline   string
	SiteName string
	Excerpt  string
}

type Fetcher struct {
	client         *http.Client
	timeout        time.Duration
	renderFallback bool
	maxBody        int64
}

func NewFetcher(timeout time.Duration, renderFallback bool) *Fetcher {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Fetcher{
		client:         &http.Client{Timeout: timeout},
		timeout:        timeout,
		renderFallback: renderFallback,
		maxBody:        2 << 20,
	}
}

// Fetch retrieves the page and extracts its metadata. When the plain fetch
// yields no usable article and render fallback is enabled, the page is
// re-fetched through a headless browser.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (PageMeta, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return PageMeta{}, errors.New("empty url")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return PageMeta{}, err
	}

	html, err := f.fetchPlain(ctx, rawURL)
	if err == nil {
		if meta, exErr := extract(html, parsed); exErr == nil && meta.Title != "" {
			return meta, nil
		}
	}

	if !f.renderFallback {
		if err != nil {
			return PageMeta{}, err
		}
		return PageMeta{}, errors.New("no extractable content")
	}

	html, err = f.fetchRendered(ctx, rawURL)
	if err != nil {
		return PageMeta{}, err
	}
	return extract(html, parsed)
}

func (f *Fetcher) fetchPlain(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "HandyWriterz/1.0 (+research pipeline)")
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", errors.New(resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (f *Fetcher) fetchRendered(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout*2)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("HandyWriterz/1.0 (+research pipeline)"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func extract(html string, pageURL *url.URL) (PageMeta, error) {
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return PageMeta{}, err
	}
	return PageMeta{
		Title:    strings.TrimSpace(article.Title),
		Byline:   strings.TrimSpace(article.Byline),
		SiteName: strings.TrimSpace(article.SiteName),
		Excerpt:  strings.TrimSpace(article.Excerpt),
	}, nil
}

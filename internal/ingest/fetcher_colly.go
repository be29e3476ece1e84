package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gocolly/colly/v2"
)

// CollyFetcher is the fallback fetcher. It uses a browser-like header set and
// charset detection, which gets past sites that reject the primary crawler.
type CollyFetcher struct {
	cfg         FetchConfig
	MaxBodySize int
}

func NewCollyFetcher(cfg FetchConfig) *CollyFetcher {
	return &CollyFetcher{
		cfg:         cfg.withDefaults(GenericHeaders),
		MaxBodySize: 10 * 1024 * 1024,
	}
}

func (f *CollyFetcher) buildCollector(ctx context.Context) *colly.Collector {
	headers := make(map[string]string, len(f.cfg.Headers))
	for k, v := range f.cfg.Headers {
		if k != "User-Agent" {
			headers[k] = v
		}
	}

	c := colly.NewCollector(
		colly.UserAgent(f.cfg.Headers["User-Agent"]),
		colly.Headers(headers),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
		colly.StdlibContext(ctx),
	)
	c.WithTransport(newTransport(f.cfg))
	c.SetRequestTimeout(f.cfg.Timeout)
	c.SetRedirectHandler(redirectPolicy(f.cfg.AllowPrivate))
	return c
}

func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	c := f.buildCollector(ctx)

	var result *FetchedDocument
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		result = &FetchedDocument{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        io.NopCloser(bytes.NewReader(r.Body)),
			FetchedAt:   time.Now(),
			Headers:     map[string][]string(r.Headers.Clone()),
			FetchedBy:   "colly",
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = &StatusError{Code: r.StatusCode, URL: targetURL}
			return
		}
		fetchErr = err
	})

	visitErr := c.Visit(targetURL)
	if fetchErr != nil {
		return nil, fmt.Errorf("colly fetch failed: %w", fetchErr)
	}
	if visitErr != nil {
		return nil, fmt.Errorf("visit failed: %w", visitErr)
	}
	if result == nil {
		return nil, fmt.Errorf("no response received for %s", targetURL)
	}

	return result, nil
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var ErrNotHTML = errors.New("content type is not html")

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
	FetchedBy   string
}

// IsHTML reports whether the response declared an HTML media type. An empty
// content type is treated as HTML since many small sites omit it.
func (d *FetchedDocument) IsHTML() bool {
	ct := strings.ToLower(strings.TrimSpace(d.ContentType))
	return ct == "" || strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

func (d *FetchedDocument) IsPDF() bool {
	return strings.Contains(strings.ToLower(d.ContentType), "application/pdf") ||
		strings.HasSuffix(strings.ToLower(d.URL), ".pdf")
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// StatusError is returned when a server answers with a non-2xx status.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s", e.Code, e.URL)
}

// HeaderSet is a named group of request headers sent together.
type HeaderSet map[string]string

// PrimaryHeaders identify the crawler honestly.
var PrimaryHeaders = HeaderSet{
	"User-Agent":      "FundingScout/1.0 (+https://fundingscout.org/bot; funding opportunity discovery)",
	"Accept":          "text/html,application/xhtml+xml;q=0.9,application/pdf;q=0.8,*/*;q=0.5",
	"Accept-Language": "en-US,en;q=0.8",
}

// GenericHeaders look like an ordinary desktop browser. They are used only
// after the primary set was rejected.
var GenericHeaders = HeaderSet{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Cache-Control":             "no-cache",
	"Upgrade-Insecure-Requests": "1",
}

// FetchChain tries each fetcher in order and returns the first success.
type FetchChain []Fetcher

func (c FetchChain) Fetch(ctx context.Context, url string) (*FetchedDocument, error) {
	if len(c) == 0 {
		return nil, errors.New("no fetchers configured")
	}

	var errs []error
	for _, f := range c {
		doc, err := f.Fetch(ctx, url)
		if err == nil {
			return doc, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("all fetchers failed for %s: %w", url, errors.Join(errs...))
}

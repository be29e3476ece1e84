package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/david/funding-scout/internal/batch"
	"github.com/david/funding-scout/internal/models"
)

var ErrInsufficientContent = errors.New("extracted content below minimum length")

const maxHTMLBytes = 5 * 1024 * 1024

// ExtractStats counts what happened to each URL handed to ExtractAll.
type ExtractStats struct {
	Attempted       int
	Extracted       int
	FetchFailed     int
	NotHTML         int
	TooShort        int
	PDFSupplemented int
}

// Extractor turns search hits into funding-focused text excerpts.
type Extractor struct {
	Fetcher      Fetcher
	Runner       *batch.Runner
	FetchTimeout time.Duration
	// FollowPDFs enables the guideline PDF supplement when the page itself
	// lists no eligibility criteria.
	FollowPDFs bool

	now func() time.Time
}

// NewExtractor wires the primary HTTP fetcher with the colly fallback and the
// default batch settings (5 per batch, 1s between batches).
func NewExtractor(cfg FetchConfig) *Extractor {
	return &Extractor{
		Fetcher:      FetchChain{NewHTTPFetcher(cfg), NewCollyFetcher(FetchConfig{Timeout: cfg.Timeout, ProxyURL: cfg.ProxyURL, AllowPrivate: cfg.AllowPrivate})},
		Runner:       batch.NewRunner(5, time.Second),
		FetchTimeout: 15 * time.Second,
		FollowPDFs:   true,
		now:          time.Now,
	}
}

// ExtractAll fetches every result and returns the excerpts that carried
// enough text, in input order. Individual failures are logged and skipped.
func (e *Extractor) ExtractAll(ctx context.Context, results []models.SearchResult) ([]models.ExtractedContent, ExtractStats) {
	log := zap.S().Named("extract")
	stats := ExtractStats{Attempted: len(results)}
	out := make([]*models.ExtractedContent, len(results))
	pdfUsed := make([]bool, len(results))

	runner := e.Runner
	if runner == nil {
		runner = batch.NewRunner(5, time.Second)
	}

	errs := runner.Run(ctx, len(results), func(ctx context.Context, i int) error {
		content, usedPDF, err := e.extract(ctx, results[i])
		if err != nil {
			return err
		}
		out[i] = content
		pdfUsed[i] = usedPDF
		return nil
	})

	extracted := make([]models.ExtractedContent, 0, len(results))
	for i, err := range errs {
		switch {
		case err == nil:
			extracted = append(extracted, *out[i])
			if pdfUsed[i] {
				stats.PDFSupplemented++
			}
		case errors.Is(err, ErrNotHTML):
			stats.NotHTML++
			log.Debugw("skipping non-html result", "url", results[i].URL)
		case errors.Is(err, ErrInsufficientContent):
			stats.TooShort++
			log.Debugw("dropping short content", "url", results[i].URL)
		default:
			stats.FetchFailed++
			log.Warnw("fetch failed", "url", results[i].URL, "error", err)
		}
	}
	stats.Extracted = len(extracted)

	log.Infow("extraction finished",
		"attempted", stats.Attempted,
		"extracted", stats.Extracted,
		"fetch_failed", stats.FetchFailed,
		"not_html", stats.NotHTML,
		"too_short", stats.TooShort,
	)
	return extracted, stats
}

// Extract fetches and extracts a single result.
func (e *Extractor) Extract(ctx context.Context, r models.SearchResult) (models.ExtractedContent, error) {
	content, _, err := e.extract(ctx, r)
	if err != nil {
		return models.ExtractedContent{}, err
	}
	return *content, nil
}

func (e *Extractor) extract(ctx context.Context, r models.SearchResult) (*models.ExtractedContent, bool, error) {
	timeout := e.FetchTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	doc, err := e.Fetcher.Fetch(ctx, r.URL)
	if err != nil {
		return nil, false, err
	}
	defer doc.Body.Close()

	if !doc.IsHTML() {
		return nil, false, fmt.Errorf("%s (%s): %w", r.URL, doc.ContentType, ErrNotHTML)
	}

	parsed, err := goquery.NewDocumentFromReader(io.LimitReader(doc.Body, maxHTMLBytes))
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse html: %w", err)
	}

	text, method := extractFundingText(parsed)
	if charCount(text) < MinContentChars {
		return nil, false, fmt.Errorf("%s via %s: %w", r.URL, method, ErrInsufficientContent)
	}

	criteria := ExtractEligibility(parsed)
	usedPDF := false
	if len(criteria) == 0 && e.FollowPDFs {
		if pdfURL := guidelinePDFLink(parsed, doc.URL); pdfURL != "" {
			fromPDF, err := eligibilityFromPDF(ctx, e.Fetcher, pdfURL)
			if err != nil {
				zap.S().Named("extract").Debugw("guideline pdf skipped", "url", pdfURL, "error", err)
			} else if len(fromPDF) > 0 {
				criteria = fromPDF
				usedPDF = true
			}
		}
	}

	now := time.Now
	if e.now != nil {
		now = e.now
	}

	return &models.ExtractedContent{
		SearchResult:        r,
		Text:                text,
		EligibilityCriteria: criteria,
		ExtractedAt:         now(),
	}, usedPDF, nil
}

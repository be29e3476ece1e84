package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/david/funding-scout/internal/models"
)

// SearchProvider runs one web search query.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

const maxProviderBody = 2 << 20

// SerperProvider queries the Serper Google search API.
type SerperProvider struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

func NewSerperProvider(apiKey string) *SerperProvider {
	return &SerperProvider{
		APIKey:     apiKey,
		Endpoint:   "https://google.serper.dev/search",
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
	}
}

func (p *SerperProvider) Name() string { return "serper" }

func (p *SerperProvider) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	payload, err := json.Marshal(map[string]any{"q": query, "num": limit})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := doSearch(p.HTTPClient, req, p.Name())
	if err != nil {
		return nil, err
	}

	var results []models.SearchResult
	for _, item := range gjson.GetBytes(body, "organic").Array() {
		link := item.Get("link").String()
		if link == "" {
			continue
		}
		r := models.SearchResult{
			Title:         item.Get("title").String(),
			URL:           link,
			Snippet:       item.Get("snippet").String(),
			Provider:      p.Name(),
			PublishedDate: parsePublished(item.Get("date").String()),
		}
		if pos := item.Get("position"); pos.Exists() {
			n := int(pos.Int())
			r.Position = &n
		}
		results = append(results, r)
	}
	return results, nil
}

// BraveProvider queries the Brave web search API.
type BraveProvider struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

func NewBraveProvider(apiKey string) *BraveProvider {
	return &BraveProvider{
		APIKey:     apiKey,
		Endpoint:   "https://api.search.brave.com/res/v1/web/search",
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
	}
}

func (p *BraveProvider) Name() string { return "brave" }

func (p *BraveProvider) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	if limit > 20 {
		limit = 20
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("count", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Subscription-Token", p.APIKey)
	req.Header.Set("Accept", "application/json")

	body, err := doSearch(p.HTTPClient, req, p.Name())
	if err != nil {
		return nil, err
	}

	var results []models.SearchResult
	for i, item := range gjson.GetBytes(body, "web.results").Array() {
		link := item.Get("url").String()
		if link == "" {
			continue
		}
		pos := i + 1
		results = append(results, models.SearchResult{
			Title:         item.Get("title").String(),
			URL:           link,
			Snippet:       stripEmphasis(item.Get("description").String()),
			Provider:      p.Name(),
			Position:      &pos,
			PublishedDate: parsePublished(item.Get("page_age").String()),
		})
	}
	return results, nil
}

func doSearch(client *http.Client, req *http.Request, provider string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return nil, fmt.Errorf("%s read failed: %w", provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status: %d", provider, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s returned invalid json", provider)
	}
	return body, nil
}

var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

func parsePublished(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

var emphasisReplacer = strings.NewReplacer("<strong>", "", "</strong>", "")

func stripEmphasis(s string) string {
	return emphasisReplacer.Replace(s)
}

// ProvidersFromKeys builds the provider chain in fallback order: Serper
// first, then Brave.
func ProvidersFromKeys(serperKey, braveKey string) []SearchProvider {
	var providers []SearchProvider
	if serperKey != "" {
		providers = append(providers, NewSerperProvider(serperKey))
	}
	if braveKey != "" {
		providers = append(providers, NewBraveProvider(braveKey))
	}
	return providers
}

package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/david/funding-scout/internal/ingest"
	"github.com/david/funding-scout/internal/models"
)

var ErrNoSearchProvider = errors.New("no search provider configured")

const defaultResultsPerQuery = 10

// QueryCap is the number of expanded queries issued for a search depth.
func QueryCap(depth models.SearchDepth) int {
	switch depth {
	case models.DepthQuick:
		return 5
	case models.DepthComprehensive:
		return 15
	default:
		return 10
	}
}

// SiteDomainCount is how many registry domains per priority category get a
// site-scoped query.
func SiteDomainCount(depth models.SearchDepth) int {
	switch depth {
	case models.DepthQuick:
		return 1
	case models.DepthComprehensive:
		return 4
	default:
		return 2
	}
}

// SearchPlan is everything one Search call needs. Exclusions is passed per
// run so callers can override it without touching shared state.
type SearchPlan struct {
	Seed       string
	Queries    []WeightedQuery
	Depth      models.SearchDepth
	Priority   []models.SourceCategory
	Exclusions ExclusionSet
}

type SearchReport struct {
	Results        []models.SearchResult `json:"-"`
	QueriesIssued  []string              `json:"queries_issued"`
	Providers      []string              `json:"providers"`
	RawResults     int                   `json:"raw_results"`
	ProviderErrors int                   `json:"provider_errors"`
	FailedQueries  int                   `json:"failed_queries"`
	Excluded       int                   `json:"excluded"`
	Duplicates     int                   `json:"duplicates"`
}

// Orchestrator runs queries against an ordered list of search providers.
// Each query goes to the first provider; on error the next one is tried.
type Orchestrator struct {
	Providers       []SearchProvider
	Registry        *DomainRegistry
	Interval        time.Duration
	ResultsPerQuery int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewOrchestrator(providers []SearchProvider, registry *DomainRegistry) *Orchestrator {
	return &Orchestrator{
		Providers:       providers,
		Registry:        registry,
		Interval:        200 * time.Millisecond,
		ResultsPerQuery: defaultResultsPerQuery,
	}
}

func (o *Orchestrator) limiter(name string) *rate.Limiter {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.limiters == nil {
		o.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := o.limiters[name]
	if !ok {
		limit := rate.Inf
		if o.Interval > 0 {
			limit = rate.Every(o.Interval)
		}
		l = rate.NewLimiter(limit, 1)
		o.limiters[name] = l
	}
	return l
}

// Search issues the capped query list plus site-scoped queries, then drops
// excluded hosts and duplicate URLs. Provider order is kept. Provider
// failures are counted, never returned.
func (o *Orchestrator) Search(ctx context.Context, plan SearchPlan) (SearchReport, error) {
	log := zap.S().Named("search")
	var report SearchReport

	if len(o.Providers) == 0 {
		return report, ErrNoSearchProvider
	}
	for _, p := range o.Providers {
		report.Providers = append(report.Providers, p.Name())
	}

	queries := o.buildQueries(plan)
	limit := o.ResultsPerQuery
	if limit <= 0 {
		limit = defaultResultsPerQuery
	}

	var raw []models.SearchResult
	for _, q := range queries {
		if ctx.Err() != nil {
			log.Warnw("search cancelled", "issued", len(report.QueriesIssued), "planned", len(queries))
			break
		}
		report.QueriesIssued = append(report.QueriesIssued, q)

		results, errCount := o.searchWithFallback(ctx, q, limit)
		report.ProviderErrors += errCount
		if results == nil && errCount == len(o.Providers) {
			report.FailedQueries++
			log.Warnw("all providers failed, skipping query", "query", q)
			continue
		}
		raw = append(raw, results...)
	}
	report.RawResults = len(raw)

	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		if plan.Exclusions.Excludes(r.URL) {
			report.Excluded++
			continue
		}
		key := ingest.DedupKey(r.URL)
		if seen[key] {
			report.Duplicates++
			continue
		}
		seen[key] = true
		report.Results = append(report.Results, r)
	}

	log.Infow("search finished",
		"queries", len(report.QueriesIssued),
		"raw", report.RawResults,
		"excluded", report.Excluded,
		"duplicates", report.Duplicates,
		"kept", len(report.Results),
		"provider_errors", report.ProviderErrors,
	)
	return report, nil
}

func (o *Orchestrator) buildQueries(plan SearchPlan) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(q string) {
		if q != "" && !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
	}

	n := QueryCap(plan.Depth)
	for i, q := range plan.Queries {
		if i >= n {
			break
		}
		add(q.Text)
	}

	seed := plan.Seed
	if seed == "" && len(plan.Queries) > 0 {
		seed = plan.Queries[0].Text
	}
	if seed == "" {
		return out
	}
	for _, cat := range plan.Priority {
		for _, domain := range o.Registry.Domains(cat, SiteDomainCount(plan.Depth)) {
			if plan.Exclusions.Excludes(domain) {
				continue
			}
			add("site:" + domain + " " + seed)
		}
	}
	return out
}

// searchWithFallback returns the first provider's successful results and the
// number of providers that failed before it.
func (o *Orchestrator) searchWithFallback(ctx context.Context, query string, limit int) ([]models.SearchResult, int) {
	log := zap.S().Named("search")
	errCount := 0
	for _, p := range o.Providers {
		if err := o.limiter(p.Name()).Wait(ctx); err != nil {
			return nil, errCount + 1
		}
		results, err := p.Search(ctx, query, limit)
		if err != nil {
			errCount++
			log.Warnw("provider failed", "provider", p.Name(), "query", query, "error", err)
			continue
		}
		if results == nil {
			results = []models.SearchResult{}
		}
		return results, errCount
	}
	return nil, errCount
}

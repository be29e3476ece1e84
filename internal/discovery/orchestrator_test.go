package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/funding-scout/internal/models"
)

type fakeProvider struct {
	name    string
	results map[string][]models.SearchResult
	fail    func(query string) bool
	queries []string
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Search(_ context.Context, query string, _ int) ([]models.SearchResult, error) {
	p.queries = append(p.queries, query)
	if p.fail != nil && p.fail(query) {
		return nil, errors.New(p.name + " unavailable")
	}
	var out []models.SearchResult
	for _, r := range p.results[query] {
		r.Provider = p.name
		out = append(out, r)
	}
	return out, nil
}

func hit(url string) models.SearchResult {
	return models.SearchResult{Title: "Grant " + url, URL: url, Snippet: "funding"}
}

func newTestOrchestrator(providers ...SearchProvider) *Orchestrator {
	o := NewOrchestrator(providers, nil)
	o.Interval = 0
	return o
}

func TestOrchestrator_DedupAcrossProviders(t *testing.T) {
	serper := &fakeProvider{
		name: "serper",
		results: map[string][]models.SearchResult{
			"solar grants": {hit("https://energy.example.org/solar"), hit("https://other.example.org/a")},
		},
		fail: func(q string) bool { return q == "solar grants nonprofit" },
	}
	brave := &fakeProvider{
		name: "brave",
		results: map[string][]models.SearchResult{
			"solar grants nonprofit": {hit("http://www.energy.example.org/solar"), hit("https://third.example.org/b")},
		},
	}
	o := newTestOrchestrator(serper, brave)

	report, err := o.Search(context.Background(), SearchPlan{
		Seed:    "solar grants",
		Queries: []WeightedQuery{{Text: "solar grants", Weight: 1}, {Text: "solar grants nonprofit", Weight: 0.8}},
	})
	require.NoError(t, err)

	var urls []string
	for _, r := range report.Results {
		urls = append(urls, r.URL)
	}
	assert.Equal(t, []string{
		"https://energy.example.org/solar",
		"https://other.example.org/a",
		"https://third.example.org/b",
	}, urls)
	assert.Equal(t, "serper", report.Results[0].Provider)
	assert.Equal(t, 4, report.RawResults)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 1, report.ProviderErrors)
	assert.Zero(t, report.FailedQueries)
	assert.Equal(t, []string{"solar grants nonprofit"}, brave.queries)
}

func TestOrchestrator_ExcludedHostsNeverReturned(t *testing.T) {
	p := &fakeProvider{
		name: "serper",
		results: map[string][]models.SearchResult{
			"arts": {
				hit("https://www.grants.gov/view/1"),
				hit("https://simpler.grants.gov/opp"),
				hit("https://arts.example.org/fund"),
				hit("https://www.linkedin.com/posts/x"),
			},
		},
	}
	o := newTestOrchestrator(p)
	excl := NewExclusionSet("grants.gov", "linkedin.com")

	report, err := o.Search(context.Background(), SearchPlan{
		Seed:       "arts",
		Queries:    []WeightedQuery{{Text: "arts", Weight: 1}},
		Exclusions: excl,
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	for _, r := range report.Results {
		assert.False(t, excl.Excludes(r.URL), r.URL)
	}
	assert.Equal(t, 3, report.Excluded)
}

func TestOrchestrator_AllProvidersFail(t *testing.T) {
	down := func(string) bool { return true }
	o := newTestOrchestrator(&fakeProvider{name: "serper", fail: down}, &fakeProvider{name: "brave", fail: down})

	report, err := o.Search(context.Background(), SearchPlan{
		Queries: []WeightedQuery{{Text: "a"}, {Text: "b"}},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Equal(t, 2, report.FailedQueries)
	assert.Equal(t, 4, report.ProviderErrors)
}

func TestOrchestrator_NoProviders(t *testing.T) {
	_, err := newTestOrchestrator().Search(context.Background(), SearchPlan{Seed: "x"})
	assert.ErrorIs(t, err, ErrNoSearchProvider)
}

func TestOrchestrator_BuildQueries(t *testing.T) {
	reg, err := LoadDomainRegistry("")
	require.NoError(t, err)
	o := NewOrchestrator(nil, reg)

	var queries []WeightedQuery
	for _, q := range []string{"q1", "q2", "q3", "q4", "q5", "q6", "q7"} {
		queries = append(queries, WeightedQuery{Text: q})
	}

	built := o.buildQueries(SearchPlan{
		Seed:       "water",
		Queries:    queries,
		Depth:      models.DepthQuick,
		Priority:   []models.SourceCategory{models.SourceGovernment, models.SourceFoundation},
		Exclusions: reg.Exclusions(),
	})

	// grants.gov leads the government list but is excluded.
	assert.Equal(t, []string{"q1", "q2", "q3", "q4", "q5", "site:candid.org water"}, built)
	for _, q := range built {
		assert.False(t, strings.Contains(q, "grants.gov"))
	}
}

func TestQueryCaps(t *testing.T) {
	assert.Equal(t, 5, QueryCap(models.DepthQuick))
	assert.Equal(t, 10, QueryCap(models.DepthStandard))
	assert.Equal(t, 10, QueryCap(""))
	assert.Equal(t, 15, QueryCap(models.DepthComprehensive))
	assert.Equal(t, 4, SiteDomainCount(models.DepthComprehensive))
}

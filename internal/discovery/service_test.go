package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/funding-scout/internal/ai"
	"github.com/david/funding-scout/internal/ingest"
	"github.com/david/funding-scout/internal/models"
	"github.com/david/funding-scout/internal/scoring"
)

var discoveryNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixedIntent struct{ intent models.SearchIntent }

func (f fixedIntent) Analyze(context.Context, ai.IntentRequest) models.SearchIntent { return f.intent }

type passExtractor struct{}

func (passExtractor) ExtractAll(_ context.Context, results []models.SearchResult) ([]models.ExtractedContent, ingest.ExtractStats) {
	out := make([]models.ExtractedContent, 0, len(results))
	for _, r := range results {
		out = append(out, models.ExtractedContent{SearchResult: r, Text: "Program details for " + r.Title, ExtractedAt: discoveryNow})
	}
	return out, ingest.ExtractStats{Attempted: len(results), Extracted: len(out)}
}

// tableAnalyzer turns every content into a candidate with a preset match
// score. Extra candidates are appended as-is.
type tableAnalyzer struct {
	scores map[string]float64
	extra  []models.OpportunityCandidate
}

func (a tableAnalyzer) Analyze(_ context.Context, req ai.AnalyzeRequest) ([]models.OpportunityCandidate, ai.AnalyzeStats) {
	var out []models.OpportunityCandidate
	for _, c := range req.Contents {
		score, ok := a.scores[c.URL]
		if !ok {
			continue
		}
		out = append(out, models.OpportunityCandidate{
			ExtractedContent: c,
			IsValid:          true,
			ProgramName:      c.Title,
			AmountMin:        ptrFloat(10000),
			MatchScore:       score,
		})
	}
	out = append(out, a.extra...)
	return out, ai.AnalyzeStats{Analyzed: len(req.Contents), Kept: len(out)}
}

type memoryStore struct {
	saved []*models.ScoredOpportunity
	err   error
}

func (s *memoryStore) Upsert(_ context.Context, opp *models.ScoredOpportunity) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, opp)
	return nil
}

type memoryCache struct {
	records []models.CacheRecord
}

func (c *memoryCache) Upsert(_ context.Context, r models.CacheRecord) error {
	c.records = append(c.records, r)
	return nil
}

type constEmbedder struct{}

func (constEmbedder) GenerateEmbedding(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func ptrFloat(v float64) *float64 { return &v }

func fundingHit(url, title string) models.SearchResult {
	return models.SearchResult{Title: title, URL: url, Snippet: "Apply for solar funding before the deadline"}
}

func newTestService(store *memoryStore, analyzer tableAnalyzer) *Service {
	provider := &fakeProvider{
		name: "serper",
		results: map[string][]models.SearchResult{
			"solar grants": {
				fundingHit("https://a.example.org/solar", "Solar Grant Program"),
				fundingHit("https://b.example.org/solar", "Community Solar Grant Program"),
				fundingHit("https://c.example.org/solar", "Rooftop Solar Grant Program"),
			},
		},
	}
	orch := newTestOrchestrator(provider)
	scorer := scoring.NewScorer(scoring.DefaultWeights(), nil).WithClock(func() time.Time { return discoveryNow })

	svc := NewService(
		fixedIntent{intent: models.SearchIntent{Keywords: []string{"solar"}, RecommendedDepth: models.DepthQuick, Source: "heuristic"}},
		orch, passExtractor{}, analyzer, scorer, NewExclusionSet("linkedin.com"),
	).WithClock(func() time.Time { return discoveryNow })
	svc.Store = store
	return svc
}

func TestDiscover_ScoresRanksAndPersists(t *testing.T) {
	store := &memoryStore{}
	svc := newTestService(store, tableAnalyzer{
		scores: map[string]float64{
			"https://a.example.org/solar": 50,
			"https://b.example.org/solar": 95,
		},
		extra: []models.OpportunityCandidate{{
			ExtractedContent: models.ExtractedContent{SearchResult: models.SearchResult{URL: "https://www.linkedin.com/posts/grant"}},
			ProgramName:      "Reposted grant",
			MatchScore:       99,
		}},
	})
	svc.Embedder = constEmbedder{}

	small := models.Project{ID: uuid.New(), Name: "Small"}
	huge := models.Project{ID: uuid.New(), Name: "Huge", FundingRequestAmount: 1_000_000}

	resp, err := svc.Discover(context.Background(), DiscoveryRequest{
		SearchQuery:  "solar grants",
		UserProjects: []models.Project{huge, small},
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	require.Equal(t, 2, resp.OpportunitiesFound)
	require.Len(t, resp.Opportunities, 2)

	// Rule sum is 16 for an empty project; fit = round(0.6*16 + 0.4*match).
	top := resp.Opportunities[0]
	assert.Equal(t, "Community Solar Grant Program", top.Title)
	assert.Equal(t, 48, top.FitScore)
	assert.Equal(t, []uuid.UUID{small.ID}, top.MatchingProjectIDs)
	assert.Equal(t, uuid.NewSHA1(uuid.NameSpaceURL, []byte(ingest.DedupKey("https://b.example.org/solar"))), top.ID)

	second := resp.Opportunities[1]
	assert.Equal(t, 30, second.FitScore)
	assert.Empty(t, second.MatchingProjectIDs)

	assert.Equal(t, 1, resp.SearchStrategy.Guarded)
	assert.Equal(t, 2, resp.SearchStrategy.Persisted)
	assert.Equal(t, 2, resp.SearchStrategy.Embedded)
	assert.Equal(t, models.DepthQuick, resp.SearchStrategy.Depth)

	require.Len(t, store.saved, 2)
	for _, o := range store.saved {
		assert.Equal(t, "example.org", o.Source)
		assert.Equal(t, ingest.ExternalID(o.URL), o.ExternalID)
		assert.Len(t, o.Embedding, 3)
		assert.Equal(t, discoveryNow, o.CreatedAt)
	}
}

func TestDiscover_WritesScoresToCache(t *testing.T) {
	store, scores := &memoryStore{}, &memoryCache{}
	svc := newTestService(store, tableAnalyzer{scores: map[string]float64{"https://b.example.org/solar": 95}})
	svc.Cache = scores

	user := uuid.New()
	mine := models.Project{ID: uuid.New(), UserID: user, Name: "Small"}
	foreign := models.Project{ID: uuid.New(), UserID: uuid.New(), Name: "Other"}
	unsaved := models.Project{Name: "Draft"}

	resp, err := svc.Discover(context.Background(), DiscoveryRequest{
		UserID:       user,
		SearchQuery:  "solar grants",
		UserProjects: []models.Project{mine, foreign, unsaved},
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.OpportunitiesFound)
	assert.Equal(t, 1, resp.SearchStrategy.CachedScores)

	require.Len(t, scores.records, 1)
	rec := scores.records[0]
	assert.Equal(t, user, rec.UserID)
	assert.Equal(t, mine.ID, rec.ProjectID)
	assert.Equal(t, resp.Opportunities[0].ID, rec.OpportunityID)
	assert.Equal(t, models.CacheScored, rec.Status)
	assert.Equal(t, 48, rec.FitScore)
	require.NotNil(t, rec.CalculatedAt)
	assert.True(t, rec.CalculatedAt.Equal(discoveryNow))

	var analysis scoring.ScoreResult
	require.NoError(t, json.Unmarshal(rec.Analysis, &analysis))
	assert.Equal(t, rec.FitScore, analysis.FitScore)
}

func TestDiscover_SkipsCacheWithoutUser(t *testing.T) {
	scores := &memoryCache{}
	svc := newTestService(&memoryStore{}, tableAnalyzer{scores: map[string]float64{"https://b.example.org/solar": 95}})
	svc.Cache = scores

	resp, err := svc.Discover(context.Background(), DiscoveryRequest{
		SearchQuery:  "solar grants",
		UserProjects: []models.Project{{ID: uuid.New()}},
	})
	require.NoError(t, err)
	assert.Zero(t, resp.SearchStrategy.CachedScores)
	assert.Empty(t, scores.records)
}

func TestDiscover_RequestExclusionsApplyToOneRun(t *testing.T) {
	store := &memoryStore{}
	svc := newTestService(store, tableAnalyzer{scores: map[string]float64{
		"https://a.example.org/solar": 60,
		"https://b.example.org/solar": 60,
		"https://c.example.org/solar": 60,
	}})

	resp, err := svc.Discover(context.Background(), DiscoveryRequest{
		SearchQuery:    "solar grants",
		ExcludeDomains: []string{"b.example.org"},
		IncludeDomains: []string{"linkedin.com"},
	})
	require.NoError(t, err)

	for _, o := range resp.Opportunities {
		assert.NotEqual(t, "https://b.example.org/solar", o.SourceURL)
	}
	assert.Equal(t, 2, resp.OpportunitiesFound)
	assert.Equal(t, 1, resp.SearchStrategy.Search.Excluded)

	assert.False(t, svc.Exclusions.Excludes("b.example.org"))
	assert.True(t, svc.Exclusions.Excludes("linkedin.com"))
}

func TestDiscover_NoProjectsUsesMatchScore(t *testing.T) {
	svc := newTestService(&memoryStore{}, tableAnalyzer{scores: map[string]float64{"https://c.example.org/solar": 72.4}})

	resp, err := svc.Discover(context.Background(), DiscoveryRequest{SearchQuery: "solar grants"})
	require.NoError(t, err)
	require.Len(t, resp.Opportunities, 1)
	assert.Equal(t, 72, resp.Opportunities[0].FitScore)
	assert.Empty(t, resp.Opportunities[0].MatchingProjectIDs)
}

func TestDiscover_Errors(t *testing.T) {
	t.Run("persistence", func(t *testing.T) {
		store := &memoryStore{err: errors.New("connection refused")}
		svc := newTestService(store, tableAnalyzer{scores: map[string]float64{"https://a.example.org/solar": 80}})

		_, err := svc.Discover(context.Background(), DiscoveryRequest{SearchQuery: "solar grants"})
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("no provider", func(t *testing.T) {
		svc := newTestService(&memoryStore{}, tableAnalyzer{})
		svc.Search.Providers = nil

		_, err := svc.Discover(context.Background(), DiscoveryRequest{SearchQuery: "solar grants"})
		assert.ErrorIs(t, err, ErrNoSearchProvider)
	})

	t.Run("empty query", func(t *testing.T) {
		svc := newTestService(&memoryStore{}, tableAnalyzer{})
		_, err := svc.Discover(context.Background(), DiscoveryRequest{})
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})
}

func TestDiscover_DryRunWithoutStore(t *testing.T) {
	svc := newTestService(nil, tableAnalyzer{scores: map[string]float64{"https://a.example.org/solar": 80}})
	svc.Store = nil

	resp, err := svc.Discover(context.Background(), DiscoveryRequest{SearchQuery: "solar grants"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.OpportunitiesFound)
	assert.Zero(t, resp.SearchStrategy.Persisted)
}

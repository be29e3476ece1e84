package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/david/funding-scout/internal/ai"
	"github.com/david/funding-scout/internal/ingest"
	"github.com/david/funding-scout/internal/models"
	"github.com/david/funding-scout/internal/scoring"
)

// MatchThreshold is the fit a project needs to be listed as matching.
const MatchThreshold = 40

var ErrEmptyQuery = errors.New("search query is empty")

type IntentSource interface {
	Analyze(ctx context.Context, req ai.IntentRequest) models.SearchIntent
}

type ContentExtractor interface {
	ExtractAll(ctx context.Context, results []models.SearchResult) ([]models.ExtractedContent, ingest.ExtractStats)
}

type CandidateAnalyzer interface {
	Analyze(ctx context.Context, req ai.AnalyzeRequest) ([]models.OpportunityCandidate, ai.AnalyzeStats)
}

type OpportunityWriter interface {
	Upsert(ctx context.Context, opp *models.ScoredOpportunity) error
}

// ScoreCacheWriter receives the per-project scores discovery computes, so a
// later cache lookup for the same pair does not recompute.
type ScoreCacheWriter interface {
	Upsert(ctx context.Context, r models.CacheRecord) error
}

type ProfileReader interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (models.Profile, error)
}

type DiscoveryRequest struct {
	UserID              uuid.UUID                 `json:"user_id"`
	SearchQuery         string                    `json:"search_query"`
	ProjectType         string                    `json:"project_type,omitempty"`
	OrganizationType    string                    `json:"organization_type,omitempty"`
	UserProjects        []models.Project          `json:"user_projects,omitempty"`
	SearchDepth         models.SearchDepth        `json:"search_depth,omitempty"`
	ConversationHistory []models.ConversationTurn `json:"conversation_history,omitempty"`
	ResourceOnly        bool                      `json:"resource_only,omitempty"`
	ExcludeDomains      []string                  `json:"exclude_domains,omitempty"`
	IncludeDomains      []string                  `json:"include_domains,omitempty"`
}

// SearchStrategy reports what the run did at each stage.
type SearchStrategy struct {
	Depth           models.SearchDepth      `json:"depth"`
	PrioritySources []models.SourceCategory `json:"priority_sources"`
	Queries         []WeightedQuery         `json:"queries"`
	Search          SearchReport            `json:"search"`
	Filter          FilterStats             `json:"filter"`
	Extraction      ingest.ExtractStats     `json:"extraction"`
	Analysis        ai.AnalyzeStats         `json:"analysis"`
	ExcludedDomains int                     `json:"excluded_domains"`
	Guarded         int                     `json:"guarded"`
	Persisted       int                     `json:"persisted"`
	CachedScores    int                     `json:"cached_scores"`
	Embedded        int                     `json:"embedded"`
	Duration        string                  `json:"duration"`
}

type DiscoveryResponse struct {
	Success            bool                        `json:"success"`
	OpportunitiesFound int                         `json:"opportunities_found"`
	Opportunities      []models.OpportunitySummary `json:"opportunities"`
	SearchQuery        string                      `json:"search_query"`
	IntentAnalysis     models.SearchIntent         `json:"intent_analysis"`
	SearchStrategy     SearchStrategy              `json:"search_strategy"`
}

// Service wires the discovery pipeline. Store, Profiles and Embedder are
// optional: a nil Store makes the run a dry run.
type Service struct {
	Intent     IntentSource
	Search     *Orchestrator
	Filter     *RelevanceFilter
	Extractor  ContentExtractor
	Analyzer   CandidateAnalyzer
	Scorer     *scoring.Scorer
	Exclusions ExclusionSet

	Store    OpportunityWriter
	Cache    ScoreCacheWriter
	Profiles ProfileReader
	Embedder ai.Embedder

	now func() time.Time
}

func NewService(intent IntentSource, search *Orchestrator, extractor ContentExtractor, analyzer CandidateAnalyzer, scorer *scoring.Scorer, exclusions ExclusionSet) *Service {
	return &Service{
		Intent:     intent,
		Search:     search,
		Filter:     NewRelevanceFilter(),
		Extractor:  extractor,
		Analyzer:   analyzer,
		Scorer:     scorer,
		Exclusions: exclusions,
		now:        time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Discover runs one discovery request end to end. Only a missing search
// provider, an empty query or a failed write return an error; every other
// stage degrades and reports its counts in SearchStrategy.
func (s *Service) Discover(ctx context.Context, req DiscoveryRequest) (DiscoveryResponse, error) {
	log := zap.S().Named("discovery")
	start := s.clock()

	if s.Search == nil || len(s.Search.Providers) == 0 {
		return DiscoveryResponse{}, ErrNoSearchProvider
	}

	seed := seedQuery(req)
	if seed == "" {
		return DiscoveryResponse{}, ErrEmptyQuery
	}

	profile := s.loadProfile(ctx, req)

	briefs := make([]ai.ProjectBrief, 0, len(req.UserProjects))
	for _, p := range req.UserProjects {
		briefs = append(briefs, ai.BriefFromProject(p))
	}

	intent := s.Intent.Analyze(ctx, ai.IntentRequest{
		Query:    seed,
		History:  req.ConversationHistory,
		Projects: briefs,
	})

	depth := req.SearchDepth
	if depth == "" {
		depth = intent.RecommendedDepth
	}
	orgType := firstNonEmpty(req.OrganizationType, intent.OrganizationType, profile.OrganizationType)

	queries := ExpandQueries(ExpandInput{
		Seed:             seed,
		Projects:         briefs,
		OrganizationType: orgType,
		ResourceOnly:     req.ResourceOnly,
		Year:             start.Year(),
	})
	exclusions := s.Exclusions.With(req.ExcludeDomains...).Without(req.IncludeDomains...)

	strategy := SearchStrategy{
		Depth:           depth,
		PrioritySources: intent.PrioritySources,
		Queries:         queries,
		ExcludedDomains: exclusions.Len(),
	}
	log.Infow("discovery started",
		"query", seed, "intent", intent.IntentType, "intent_source", intent.Source,
		"depth", depth, "queries", len(queries), "projects", len(req.UserProjects))

	report, err := s.Search.Search(ctx, SearchPlan{
		Seed:       seed,
		Queries:    queries,
		Depth:      depth,
		Priority:   intent.PrioritySources,
		Exclusions: exclusions,
	})
	if err != nil {
		return DiscoveryResponse{}, err
	}
	strategy.Search = report

	filter := s.Filter
	if filter == nil {
		filter = NewRelevanceFilter()
	}
	relevant, fstats := filter.Filter(report.Results, FilterInput{
		Keywords:     intent.Keywords,
		ResourceOnly: req.ResourceOnly,
		Exclusions:   exclusions,
	})
	strategy.Filter = fstats
	log.Infow("relevance filter", "in", fstats.Input, "kept", fstats.Kept)

	contents, estats := s.Extractor.ExtractAll(ctx, relevant)
	strategy.Extraction = estats

	candidates, astats := s.Analyzer.Analyze(ctx, ai.AnalyzeRequest{
		Contents: contents,
		Query:    seed,
		Projects: briefs,
	})
	strategy.Analysis = astats

	now := s.clock()
	scored := make([]*models.ScoredOpportunity, 0, len(candidates))
	for _, c := range candidates {
		if exclusions.Excludes(c.URL) {
			strategy.Guarded++
			log.Warnw("excluded host reached persistence guard", "url", c.URL)
			continue
		}
		opp, fits := s.scoreCandidate(c, req.UserProjects, profile, now)

		if s.Embedder != nil {
			vec, err := s.Embedder.GenerateEmbedding(ctx, embeddingText(opp))
			if err != nil {
				log.Warnw("embedding failed", "url", opp.URL, "error", err)
			} else {
				opp.Embedding = vec
				strategy.Embedded++
			}
		}

		if s.Store != nil {
			if err := s.Store.Upsert(ctx, opp); err != nil {
				return DiscoveryResponse{}, fmt.Errorf("persist opportunity %s: %w", opp.URL, err)
			}
			strategy.Persisted++
			strategy.CachedScores += s.cacheScores(ctx, req.UserID, opp.ID, fits, now)
		}
		scored = append(scored, opp)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].FitScore > scored[j].FitScore })

	resp := DiscoveryResponse{
		Success:            true,
		OpportunitiesFound: len(scored),
		Opportunities:      make([]models.OpportunitySummary, 0, len(scored)),
		SearchQuery:        seed,
		IntentAnalysis:     intent,
	}
	for _, o := range scored {
		resp.Opportunities = append(resp.Opportunities, o.Summary())
	}
	strategy.Duration = s.clock().Sub(start).Round(time.Millisecond).String()
	resp.SearchStrategy = strategy

	log.Infow("discovery finished",
		"searched", len(report.Results),
		"relevant", len(relevant),
		"extracted", len(contents),
		"analyzed", len(candidates),
		"guarded", strategy.Guarded,
		"persisted", strategy.Persisted,
		"cached_scores", strategy.CachedScores,
		"duration", strategy.Duration,
	)
	return resp, nil
}

type projectFit struct {
	project models.Project
	result  scoring.ScoreResult
}

// scoreCandidate scores the candidate against every project, using the
// analyzer's match score as the strategic opinion so no extra LLM call is
// made per pair.
func (s *Service) scoreCandidate(c models.OpportunityCandidate, projects []models.Project, profile models.Profile, now time.Time) (*models.ScoredOpportunity, []projectFit) {
	opp := &models.ScoredOpportunity{
		OpportunityCandidate: c,
		ID:                   uuid.NewSHA1(uuid.NameSpaceURL, []byte(ingest.DedupKey(c.URL))),
		ExternalID:           ingest.ExternalID(c.URL),
		Source:               ingest.RegistrableDomain(c.URL),
		MatchingProjectIDs:   []uuid.UUID{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	weights := scoring.DefaultWeights()
	if s.Scorer != nil {
		weights = s.Scorer.Weights
	}
	opp.Competitiveness = scoring.Competitiveness(c)
	opp.TimelineUrgency = weights.Urgency(c.Deadline, now)

	if len(projects) == 0 || s.Scorer == nil {
		opp.FitScore = scoring.ClampScore(c.MatchScore)
		opp.ApplicationPriority = scoring.Priority(opp.FitScore, opp.Competitiveness, opp.TimelineUrgency)
		return opp, nil
	}

	fits := make([]projectFit, 0, len(projects))
	for _, p := range projects {
		res := s.Scorer.ScoreWithStrategic(scoring.Input{Opportunity: c, Project: p, Profile: profile}, c.MatchScore)
		fits = append(fits, projectFit{project: p, result: res})
		if res.FitScore > opp.FitScore {
			opp.FitScore = res.FitScore
		}
	}
	ranked := slices.Clone(fits)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].result.FitScore > ranked[j].result.FitScore })
	for _, f := range ranked {
		if f.result.FitScore >= MatchThreshold {
			opp.MatchingProjectIDs = append(opp.MatchingProjectIDs, f.project.ID)
		}
	}
	opp.ApplicationPriority = scoring.Priority(opp.FitScore, opp.Competitiveness, opp.TimelineUrgency)
	return opp, fits
}

// cacheScores writes one scored cache row per stored project. Failures are
// logged and skipped; the cache recomputes on its next lookup.
func (s *Service) cacheScores(ctx context.Context, userID, opportunityID uuid.UUID, fits []projectFit, now time.Time) int {
	if s.Cache == nil || userID == uuid.Nil {
		return 0
	}
	log := zap.S().Named("discovery")
	at := now.UTC()
	written := 0
	for _, f := range fits {
		if f.project.ID == uuid.Nil || (f.project.UserID != uuid.Nil && f.project.UserID != userID) {
			continue
		}
		raw, err := json.Marshal(f.result)
		if err != nil {
			log.Warnw("encode score for cache", "project_id", f.project.ID, "error", err)
			continue
		}
		err = s.Cache.Upsert(ctx, models.CacheRecord{
			UserID:        userID,
			ProjectID:     f.project.ID,
			OpportunityID: opportunityID,
			FitScore:      f.result.FitScore,
			Analysis:      raw,
			CalculatedAt:  &at,
			Status:        models.CacheScored,
		})
		if err != nil {
			log.Warnw("cache write failed", "project_id", f.project.ID, "opportunity_id", opportunityID, "error", err)
			continue
		}
		written++
	}
	return written
}

func (s *Service) loadProfile(ctx context.Context, req DiscoveryRequest) models.Profile {
	profile := models.Profile{UserID: req.UserID, OrganizationType: req.OrganizationType}
	if s.Profiles == nil || req.UserID == uuid.Nil {
		return profile
	}
	p, err := s.Profiles.GetProfile(ctx, req.UserID)
	if err != nil {
		zap.S().Named("discovery").Infow("no stored profile, using request fields", "user_id", req.UserID, "error", err)
		return profile
	}
	if p.OrganizationType == "" {
		p.OrganizationType = req.OrganizationType
	}
	return p
}

func seedQuery(req DiscoveryRequest) string {
	if q := strings.TrimSpace(req.SearchQuery); q != "" {
		return q
	}
	if pt := strings.TrimSpace(req.ProjectType); pt != "" {
		return pt + " funding"
	}
	for _, p := range req.UserProjects {
		if c := strings.TrimSpace(p.Category); c != "" {
			return c + " funding"
		}
	}
	return ""
}

func embeddingText(o *models.ScoredOpportunity) string {
	return strings.TrimSpace(o.DisplayTitle() + "\n" + o.Sponsor + "\n" + o.Description)
}

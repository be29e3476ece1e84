// Package cache keeps one fit score per (user, project, opportunity) and
// decides when a stored score is still good enough to return.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/david/funding-scout/internal/batch"
	"github.com/david/funding-scout/internal/db"
	"github.com/david/funding-scout/internal/models"
	"github.com/david/funding-scout/internal/scoring"
)

const (
	// TTL is how long a scored row is served without recomputation.
	TTL = 7 * 24 * time.Hour

	BatchSize  = 5
	BatchDelay = 200 * time.Millisecond
)

var ErrNotFound = db.ErrNotFound

type Store interface {
	Get(ctx context.Context, userID, projectID, opportunityID uuid.UUID) (*models.CacheRecord, error)
	Upsert(ctx context.Context, r models.CacheRecord) error
	MarkProjectNeedsScoring(ctx context.Context, userID, projectID uuid.UUID) (int64, error)
	MarkUserNeedsScoring(ctx context.Context, userID uuid.UUID) (int64, error)
}

type ProjectReader interface {
	GetProject(ctx context.Context, id uuid.UUID) (models.Project, error)
}

type ProfileReader interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (models.Profile, error)
}

type OpportunityReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ScoredOpportunity, error)
}

type FitScorer interface {
	Score(ctx context.Context, in scoring.Input) scoring.ScoreResult
}

// Result is what callers of GetOrCalculate see.
type Result struct {
	OpportunityID  uuid.UUID            `json:"opportunity_id"`
	Score          int                  `json:"score"`
	Cached         bool                 `json:"cached"`
	Analysis       *scoring.ScoreResult `json:"analysis,omitempty"`
	LastCalculated *time.Time           `json:"last_calculated,omitempty"`
}

type BatchItem struct {
	OpportunityID uuid.UUID `json:"opportunity_id"`
	Result        *Result   `json:"result,omitempty"`
	Error         string    `json:"error,omitempty"`
}

type BatchResult struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

type Service struct {
	Store         Store
	Projects      ProjectReader
	Profiles      ProfileReader
	Opportunities OpportunityReader
	Scorer        FitScorer
	TTL           time.Duration
	Runner        *batch.Runner

	now func() time.Time
}

func NewService(store Store, projects ProjectReader, profiles ProfileReader, opps OpportunityReader, scorer FitScorer) *Service {
	return &Service{
		Store:         store,
		Projects:      projects,
		Profiles:      profiles,
		Opportunities: opps,
		Scorer:        scorer,
		TTL:           TTL,
		Runner:        batch.NewRunner(BatchSize, BatchDelay),
		now:           time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetOrCalculate returns the stored score while it is fresh and recomputes it
// otherwise. force skips the freshness check.
func (s *Service) GetOrCalculate(ctx context.Context, userID, projectID, opportunityID uuid.UUID, force bool) (*Result, error) {
	if !force {
		if res, ok := s.lookup(ctx, userID, projectID, opportunityID); ok {
			return res, nil
		}
	}

	project, profile, err := s.loadSubjects(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	return s.calculate(ctx, userID, project, profile, opportunityID)
}

// lookup reports a fresh cached row. Read errors count as a miss.
func (s *Service) lookup(ctx context.Context, userID, projectID, opportunityID uuid.UUID) (*Result, bool) {
	log := zap.S().Named("cache")

	rec, err := s.Store.Get(ctx, userID, projectID, opportunityID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			log.Warnw("cache read failed", "project_id", projectID, "opportunity_id", opportunityID, "error", err)
		}
		return nil, false
	}
	if !s.fresh(rec) {
		return nil, false
	}

	res := &Result{
		OpportunityID:  opportunityID,
		Score:          rec.FitScore,
		Cached:         true,
		LastCalculated: rec.CalculatedAt,
	}
	if len(rec.Analysis) > 0 {
		var analysis scoring.ScoreResult
		if err := json.Unmarshal(rec.Analysis, &analysis); err != nil {
			log.Warnw("cached analysis unreadable, recalculating", "opportunity_id", opportunityID, "error", err)
			return nil, false
		}
		res.Analysis = &analysis
	}
	return res, true
}

func (s *Service) fresh(rec *models.CacheRecord) bool {
	if rec.Status != models.CacheScored || rec.CalculatedAt == nil {
		return false
	}
	return s.now().Sub(*rec.CalculatedAt) < s.ttl()
}

func (s *Service) ttl() time.Duration {
	if s.TTL <= 0 {
		return TTL
	}
	return s.TTL
}

func (s *Service) loadSubjects(ctx context.Context, userID, projectID uuid.UUID) (models.Project, models.Profile, error) {
	project, err := s.Projects.GetProject(ctx, projectID)
	if err != nil {
		return project, models.Profile{}, fmt.Errorf("load project: %w", err)
	}
	if project.UserID != uuid.Nil && project.UserID != userID {
		return project, models.Profile{}, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}

	profile := models.Profile{UserID: userID}
	if s.Profiles != nil {
		p, err := s.Profiles.GetProfile(ctx, userID)
		switch {
		case err == nil:
			profile = p
		case errors.Is(err, db.ErrNotFound):
		default:
			return project, profile, fmt.Errorf("load profile: %w", err)
		}
	}
	return project, profile, nil
}

func (s *Service) calculate(ctx context.Context, userID uuid.UUID, project models.Project, profile models.Profile, opportunityID uuid.UUID) (*Result, error) {
	opp, err := s.Opportunities.GetByID(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("load opportunity: %w", err)
	}

	analysis := s.Scorer.Score(ctx, scoring.Input{
		Opportunity: opp.OpportunityCandidate,
		Project:     project,
		Profile:     profile,
	})
	raw, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}

	at := s.now().UTC()
	err = s.Store.Upsert(ctx, models.CacheRecord{
		UserID:        userID,
		ProjectID:     project.ID,
		OpportunityID: opportunityID,
		FitScore:      analysis.FitScore,
		Analysis:      raw,
		CalculatedAt:  &at,
		Status:        models.CacheScored,
	})
	if err != nil {
		return nil, fmt.Errorf("store score: %w", err)
	}

	return &Result{
		OpportunityID:  opportunityID,
		Score:          analysis.FitScore,
		Cached:         false,
		Analysis:       &analysis,
		LastCalculated: &at,
	}, nil
}

// InvalidateOnProjectUpdate marks the project's cached scores stale when a
// scoring-relevant field changed. The boolean is the decision, not the row
// count.
func (s *Service) InvalidateOnProjectUpdate(ctx context.Context, before, after models.Project) (bool, error) {
	changed := ProjectChanges(before, after)
	if len(changed) == 0 {
		return false, nil
	}

	userID := after.UserID
	if userID == uuid.Nil {
		userID = before.UserID
	}
	projectID := after.ID
	if projectID == uuid.Nil {
		projectID = before.ID
	}

	n, err := s.Store.MarkProjectNeedsScoring(ctx, userID, projectID)
	if err != nil {
		return true, fmt.Errorf("invalidate project scores: %w", err)
	}
	zap.S().Named("cache").Infow("project scores invalidated", "project_id", projectID, "fields", changed, "rows", n)
	return true, nil
}

// InvalidateOnProfileUpdate marks every cached score of the user stale when a
// scoring-relevant profile field changed, since the profile feeds every pair.
func (s *Service) InvalidateOnProfileUpdate(ctx context.Context, before, after models.Profile) (bool, error) {
	changed := ProfileChanges(before, after)
	if len(changed) == 0 {
		return false, nil
	}

	userID := after.UserID
	if userID == uuid.Nil {
		userID = before.UserID
	}

	n, err := s.Store.MarkUserNeedsScoring(ctx, userID)
	if err != nil {
		return true, fmt.Errorf("invalidate user scores: %w", err)
	}
	zap.S().Named("cache").Infow("user scores invalidated", "user_id", userID, "fields", changed, "rows", n)
	return true, nil
}

// BatchCalculateScores scores many opportunities for one project. A failing
// item is reported in its slot and does not stop the others.
func (s *Service) BatchCalculateScores(ctx context.Context, userID, projectID uuid.UUID, opportunityIDs []uuid.UUID, force bool) (*BatchResult, error) {
	project, profile, err := s.loadSubjects(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	items := make([]BatchItem, len(opportunityIDs))
	runner := s.Runner
	if runner == nil {
		runner = batch.NewRunner(BatchSize, 0)
	}
	errs := runner.Run(ctx, len(opportunityIDs), func(ctx context.Context, i int) error {
		oppID := opportunityIDs[i]
		items[i].OpportunityID = oppID
		if !force {
			if res, ok := s.lookup(ctx, userID, projectID, oppID); ok {
				items[i].Result = res
				return nil
			}
		}
		res, err := s.calculate(ctx, userID, project, profile, oppID)
		if err != nil {
			return err
		}
		items[i].Result = res
		return nil
	})

	out := &BatchResult{Items: items}
	for i, err := range errs {
		if err != nil {
			items[i].OpportunityID = opportunityIDs[i]
			items[i].Error = err.Error()
			out.Failed++
			continue
		}
		out.Succeeded++
	}
	zap.S().Named("cache").Infow("batch scored", "project_id", projectID, "succeeded", out.Succeeded, "failed", out.Failed)
	return out, nil
}

package cache_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/funding-scout/internal/batch"
	"github.com/david/funding-scout/internal/cache"
	"github.com/david/funding-scout/internal/db/sqlitestore"
	"github.com/david/funding-scout/internal/models"
	"github.com/david/funding-scout/internal/scoring"
)

var t0 = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

type countingScorer struct {
	calls atomic.Int32
	score int
}

func (c *countingScorer) Score(_ context.Context, in scoring.Input) scoring.ScoreResult {
	c.calls.Add(1)
	return scoring.ScoreResult{
		FitScore:        c.score,
		EligibleByRules: true,
		Reasoning:       "scored " + in.Opportunity.ProgramName,
	}
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type fixture struct {
	svc     *cache.Service
	store   *sqlitestore.CacheStore
	scorer  *countingScorer
	clock   *clock
	user    uuid.UUID
	project models.Project
	profile models.Profile
	opps    []uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	d, err := sqlitestore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	f := &fixture{
		store:  d.Cache(),
		scorer: &countingScorer{score: 66},
		clock:  &clock{now: t0},
		user:   uuid.New(),
	}
	f.project = models.Project{
		ID:                   uuid.New(),
		UserID:               f.user,
		Name:                 "Rural Solar",
		Category:             "clean energy",
		FundingRequestAmount: 75_000,
		InternalNotes:        "call the county first",
	}
	f.profile = models.Profile{UserID: f.user, OrganizationType: "nonprofit", AnnualRevenue: 400_000}

	repo := d.Repository()
	require.NoError(t, repo.SaveProject(ctx, f.project))
	require.NoError(t, repo.SaveProfile(ctx, f.profile))

	opps := d.Opportunities()
	for _, url := range []string{"example.org/a", "example.org/b", "example.org/c"} {
		o := &models.ScoredOpportunity{ID: uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)), ExternalID: url, Source: "example.org"}
		o.URL = "https://" + url
		o.ProgramName = url
		require.NoError(t, opps.Upsert(ctx, o))
		f.opps = append(f.opps, o.ID)
	}

	f.svc = cache.NewService(f.store, repo, repo, opps, f.scorer).WithClock(f.clock.Now)
	f.svc.Runner = batch.NewRunner(cache.BatchSize, 0)
	return f
}

func TestGetOrCalculate_CachesWithinTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.GetOrCalculate(ctx, f.user, f.project.ID, f.opps[0], false)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 66, first.Score)
	require.NotNil(t, first.Analysis)
	assert.Equal(t, "scored example.org/a", first.Analysis.Reasoning)

	second, err := f.svc.GetOrCalculate(ctx, f.user, f.project.ID, f.opps[0], false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 66, second.Score)
	require.NotNil(t, second.Analysis)
	assert.Equal(t, first.Analysis.Reasoning, second.Analysis.Reasoning)
	require.NotNil(t, second.LastCalculated)
	assert.True(t, second.LastCalculated.Equal(t0))
	assert.EqualValues(t, 1, f.scorer.calls.Load())

	forced, err := f.svc.GetOrCalculate(ctx, f.user, f.project.ID, f.opps[0], true)
	require.NoError(t, err)
	assert.False(t, forced.Cached)
	assert.EqualValues(t, 2, f.scorer.calls.Load())
}

func TestGetOrCalculate_TTLBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetOrCalculate(ctx, f.user, f.project.ID, f.opps[0], false)
	require.NoError(t, err)

	f.clock.now = t0.Add(cache.TTL - time.Second)
	res, err := f.svc.GetOrCalculate(ctx, f.user, f.project.ID, f.opps[0], false)
	require.NoError(t, err)
	assert.True(t, res.Cached, "one second before expiry is still fresh")

	f.clock.now = t0.Add(cache.TTL)
	res, err = f.svc.GetOrCalculate(ctx, f.user, f.project.ID, f.opps[0], false)
	require.NoError(t, err)
	assert.False(t, res.Cached, "exactly seven days old is stale")
	assert.EqualValues(t, 2, f.scorer.calls.Load())
	assert.True(t, res.LastCalculated.Equal(t0.Add(cache.TTL)))
}

func TestGetOrCalculate_UnknownSubjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetOrCalculate(ctx, f.user, uuid.New(), f.opps[0], false)
	assert.ErrorIs(t, err, cache.ErrNotFound)

	_, err = f.svc.GetOrCalculate(ctx, f.user, f.project.ID, uuid.New(), false)
	assert.ErrorIs(t, err, cache.ErrNotFound)

	_, err = f.svc.GetOrCalculate(ctx, uuid.New(), f.project.ID, f.opps[0], false)
	assert.ErrorIs(t, err, cache.ErrNotFound, "projects of other users are not visible")
	assert.Zero(t, f.scorer.calls.Load())
}

func TestProjectChanges(t *testing.T) {
	base := models.Project{
		Name:                 "Rural Solar",
		FundingRequestAmount: 100_000,
		Goals:                []string{"Install panels", "Train staff"},
		InternalNotes:        "draft",
		UpdatedAt:            t0,
	}

	notes := base
	notes.InternalNotes = "final"
	notes.UpdatedAt = t0.Add(time.Hour)
	assert.Empty(t, cache.ProjectChanges(base, notes))

	reordered := base
	reordered.Goals = []string{"train staff", "Install  panels"}
	assert.Empty(t, cache.ProjectChanges(base, reordered), "goal lists compare as sets")

	small := base
	small.FundingRequestAmount = 105_000
	assert.Empty(t, cache.ProjectChanges(base, small))

	large := base
	large.FundingRequestAmount = 120_000
	large.Category = "energy"
	assert.Equal(t, []string{"category", "funding_request_amount"}, cache.ProjectChanges(base, large))

	start := t0
	dated := base
	dated.StartDate = &start
	assert.Equal(t, []string{"start_date"}, cache.ProjectChanges(base, dated))

	readiness := base
	readiness.StaffCount = 5
	readiness.Partnerships = []string{"County library", "Solar co-op"}
	readiness.OutcomeMeasures = []string{"kWh generated"}
	assert.Equal(t, []string{"staff_count", "partnerships", "outcome_measures"}, cache.ProjectChanges(base, readiness))

	fit := base
	fit.StartDateFlexible = true
	fit.TargetPopulation = "rural households"
	fit.InnovationLevel = "novel"
	assert.Equal(t, []string{"start_date_flexible", "target_population", "innovation_level"}, cache.ProjectChanges(base, fit))
}

func TestProjectChanges_BudgetBreakdown(t *testing.T) {
	base := models.Project{BudgetBreakdown: map[string]float64{"Equipment": 60_000, "Staff": 40_000}}

	renamed := base
	renamed.BudgetBreakdown = map[string]float64{"equipment ": 62_000, "staff": 40_000}
	assert.Empty(t, cache.ProjectChanges(base, renamed), "small moves and spacing are ignored")

	added := base
	added.BudgetBreakdown = map[string]float64{"Equipment": 60_000, "Staff": 40_000, "Travel": 5_000}
	assert.Equal(t, []string{"budget_breakdown"}, cache.ProjectChanges(base, added))

	moved := base
	moved.BudgetBreakdown = map[string]float64{"Equipment": 30_000, "Staff": 40_000}
	assert.Equal(t, []string{"budget_breakdown"}, cache.ProjectChanges(base, moved))
}

func TestProfileChanges(t *testing.T) {
	base := models.Profile{OrganizationType: "nonprofit", AnnualRevenue: 500_000, Certifications: []string{"501(c)(3)"}}

	notes := base
	notes.InternalNotes = "renewal due"
	assert.Empty(t, cache.ProfileChanges(base, notes))

	changed := base
	changed.SAMRegistered = true
	changed.AnnualRevenue = 600_000
	assert.Equal(t, []string{"sam_registered", "annual_revenue"}, cache.ProfileChanges(base, changed))

	track := base
	track.YearsOperating = 10
	track.PastAwards = 3
	assert.Equal(t, []string{"years_operating", "past_awards"}, cache.ProfileChanges(base, track))
}

func TestInvalidateOnProjectUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range f.opps[:2] {
		_, err := f.svc.GetOrCalculate(ctx, f.user, f.project.ID, id, false)
		require.NoError(t, err)
	}

	notesOnly := f.project
	notesOnly.InternalNotes = "county said yes"
	for i := 0; i < 2; i++ {
		invalidated, err := f.svc.InvalidateOnProjectUpdate(ctx, f.project, notesOnly)
		require.NoError(t, err)
		assert.False(t, invalidated)
	}
	res, err := f.svc.GetOrCalculate(ctx, f.user, f.project.ID, f.opps[0], false)
	require.NoError(t, err)
	assert.True(t, res.Cached, "notes-only edits keep cached scores")

	bigger := f.project
	bigger.FundingRequestAmount = 250_000
	for i := 0; i < 2; i++ {
		invalidated, err := f.svc.InvalidateOnProjectUpdate(ctx, f.project, bigger)
		require.NoError(t, err)
		assert.True(t, invalidated, "same diff gives the same decision")
	}

	rec, err := f.store.Get(ctx, f.user, f.project.ID, f.opps[1])
	require.NoError(t, err)
	assert.Equal(t, models.CacheNeedsScoring, rec.Status)
	assert.Nil(t, rec.CalculatedAt)

	calls := f.scorer.calls.Load()
	res, err = f.svc.GetOrCalculate(ctx, f.user, f.project.ID, f.opps[0], false)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, calls+1, f.scorer.calls.Load())
}

func TestInvalidateOnProfileUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetOrCalculate(ctx, f.user, f.project.ID, f.opps[0], false)
	require.NoError(t, err)

	unchanged := f.profile
	unchanged.UpdatedAt = t0.Add(time.Hour)
	invalidated, err := f.svc.InvalidateOnProfileUpdate(ctx, f.profile, unchanged)
	require.NoError(t, err)
	assert.False(t, invalidated)

	changed := f.profile
	changed.OrganizationType = "for-profit"
	invalidated, err = f.svc.InvalidateOnProfileUpdate(ctx, f.profile, changed)
	require.NoError(t, err)
	assert.True(t, invalidated)

	rec, err := f.store.Get(ctx, f.user, f.project.ID, f.opps[0])
	require.NoError(t, err)
	assert.Equal(t, models.CacheNeedsScoring, rec.Status)
}

func TestBatchCalculateScores_IsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetOrCalculate(ctx, f.user, f.project.ID, f.opps[0], false)
	require.NoError(t, err)

	missing := uuid.New()
	ids := []uuid.UUID{f.opps[0], missing, f.opps[1], f.opps[2]}
	res, err := f.svc.BatchCalculateScores(ctx, f.user, f.project.ID, ids, false)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Items, 4)

	assert.True(t, res.Items[0].Result.Cached)
	assert.Equal(t, missing, res.Items[1].OpportunityID)
	assert.Nil(t, res.Items[1].Result)
	assert.NotEmpty(t, res.Items[1].Error)
	for _, item := range res.Items[2:] {
		require.NotNil(t, item.Result)
		assert.False(t, item.Result.Cached)
		assert.Equal(t, 66, item.Result.Score)
	}
	assert.EqualValues(t, 3, f.scorer.calls.Load())
}

func TestBatchCalculateScores_UnknownProject(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.BatchCalculateScores(context.Background(), f.user, uuid.New(), f.opps, false)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

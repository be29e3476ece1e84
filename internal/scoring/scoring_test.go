package scoring

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/funding-scout/internal/ai"
	"github.com/david/funding-scout/internal/config"
	"github.com/david/funding-scout/internal/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeStrategic struct {
	fit   ai.StrategicFit
	err   error
	calls int
}

func (f *fakeStrategic) AnalyzeStrategicFit(context.Context, models.OpportunityCandidate, models.Project, models.Profile) (ai.StrategicFit, error) {
	f.calls++
	return f.fit, f.err
}

func ptr[T any](v T) *T { return &v }

func newTestScorer(analyzer StrategicAnalyzer) *Scorer {
	return NewScorer(DefaultWeights(), analyzer).WithClock(func() time.Time { return testNow })
}

// baseInput scores 57 on rules: compliance 12, readiness 17, strategic 13,
// timing 15.
func baseInput() Input {
	return Input{
		Opportunity: models.OpportunityCandidate{
			ProgramName:       "Clean Energy Fund",
			Description:       "Grants for clean energy projects in rural communities",
			AmountMin:         ptr(50000.0),
			AmountMax:         ptr(200000.0),
			Deadline:          ptr(testNow.AddDate(0, 0, 60)),
			OrganizationTypes: []string{"nonprofit"},
			SourceType:        "foundation",
		},
		Project: models.Project{
			Name:                 "Rural Solar",
			Description:          strings.Repeat("Community solar installation for rural schools. ", 5),
			Category:             "clean energy",
			FocusAreas:           []string{"solar", "rural"},
			FundingRequestAmount: 75000,
			Status:               models.ProjectReady,
			StaffCount:           3,
			Partnerships:         []string{"County utility"},
			OutcomeMeasures:      []string{"kWh generated"},
		},
		Profile: models.Profile{
			OrganizationType: "nonprofit",
			EIN:              "12-3456789",
			YearsOperating:   5,
		},
	}
}

func thinInput() Input {
	in := baseInput()
	in.Project.Description = "Solar for schools."
	in.Project.OutcomeMeasures = nil
	return in
}

func TestBreakdown(t *testing.T) {
	in := baseInput()
	b := DefaultWeights().Breakdown(in, testNow)

	assert.InDelta(t, 12, b.Compliance, 0.001)
	assert.InDelta(t, 17, b.Readiness, 0.001)
	assert.InDelta(t, 13, b.Strategic, 0.001)
	assert.InDelta(t, 15, b.Timing, 0.001)
	assert.InDelta(t, 57, b.Total(), 0.001)
}

func TestBreakdown_Overrides(t *testing.T) {
	w := DefaultWeights().WithOverrides(config.ScoringConfig{ComplianceBudget: 60})
	b := w.Breakdown(baseInput(), testNow)
	assert.InDelta(t, 24, b.Compliance, 0.001)
	assert.InDelta(t, 17, b.Readiness, 0.001)
}

func TestCompliance_SourceTables(t *testing.T) {
	in := baseInput()
	in.Profile.SAMRegistered = true
	in.Profile.AuditCompleted = true
	in.Profile.Certifications = []string{"501(c)(3)"}

	for source, want := range map[string]float64{"government": 30, "foundation": 30, "corporate": 30, "": 30} {
		in.Opportunity.SourceType = source
		assert.InDelta(t, want, compliancePoints(in), 0.001, source)
	}

	in.Profile.AuditCompleted = false
	in.Opportunity.SourceType = "government"
	assert.InDelta(t, 24, compliancePoints(in), 0.001)
	in.Opportunity.SourceType = "foundation"
	assert.InDelta(t, 22, compliancePoints(in), 0.001)
}

func TestReadiness_BudgetConsistency(t *testing.T) {
	w := DefaultWeights()
	p := models.Project{FundingRequestAmount: 100000, BudgetBreakdown: map[string]float64{"staff": 60000, "equipment": 45000}}
	assert.InDelta(t, 6, w.readinessPoints(p), 0.001)

	p.BudgetBreakdown["equipment"] = 80000
	assert.InDelta(t, 2, w.readinessPoints(p), 0.001)
}

func TestScore_ScenarioA(t *testing.T) {
	analyzer := &fakeStrategic{fit: ai.StrategicFit{Score: 80, Reasoning: "Strong topical fit", Provider: "openai"}}
	s := newTestScorer(analyzer)

	res := s.Score(context.Background(), thinInput())

	assert.True(t, res.HardFilters.Passed)
	assert.True(t, res.EligibleByRules)
	assert.Greater(t, res.FitScore, 0)
	assert.Greater(t, res.Breakdown.Compliance, 0.0)
	assert.Equal(t, ConfidenceLow, res.Confidence)
	assert.Equal(t, 1, analyzer.calls)
	require.NotNil(t, res.AIScore)
	// round(0.6*57 + 0.4*80)
	assert.Equal(t, 66, res.FitScore)
	assert.Equal(t, "openai", res.AIProvider)
	assert.Equal(t, "Strong topical fit", res.Reasoning)
	assert.Equal(t, models.UrgencyModerate, res.TimelineUrgency)
	require.NotNil(t, res.DaysUntilDeadline)
	assert.Equal(t, 60, *res.DaysUntilDeadline)
}

func TestScore_ScenarioB_ExpiredDeadline(t *testing.T) {
	analyzer := &fakeStrategic{fit: ai.StrategicFit{Score: 100}}
	s := newTestScorer(analyzer)

	in := thinInput()
	in.Opportunity.Deadline = ptr(testNow.AddDate(0, 0, -3))

	res := s.Score(context.Background(), in)
	assert.Equal(t, 0, res.FitScore)
	assert.False(t, res.EligibleByRules)
	assert.Contains(t, res.HardFilters.Flags, FlagDeadlineExpired)
	assert.Equal(t, models.UrgencyExpired, res.TimelineUrgency)
	assert.Equal(t, models.PriorityLow, res.ApplicationPriority)
	assert.Zero(t, analyzer.calls)

	pre := s.PreScore(in)
	assert.False(t, pre.EligibleByRules)
	assert.Zero(t, pre.QuickScore)
	assert.Contains(t, pre.Flags, FlagDeadlineExpired)
}

func TestScore_HighConfidenceSkipsAI(t *testing.T) {
	analyzer := &fakeStrategic{fit: ai.StrategicFit{Score: 0}}
	res := newTestScorer(analyzer).Score(context.Background(), baseInput())

	assert.Equal(t, ConfidenceHigh, res.Confidence)
	assert.Equal(t, 57, res.FitScore)
	assert.Nil(t, res.AIScore)
	assert.Zero(t, analyzer.calls)
}

func TestScore_AIFailureFallsBackToRules(t *testing.T) {
	for name, analyzer := range map[string]StrategicAnalyzer{
		"error": &fakeStrategic{err: errors.New("all providers failed")},
		"nil":   nil,
	} {
		t.Run(name, func(t *testing.T) {
			res := newTestScorer(analyzer).Score(context.Background(), thinInput())
			assert.Equal(t, 57, res.FitScore)
			assert.Contains(t, res.Notes, NoteAIFailed)
			assert.Nil(t, res.AIScore)
		})
	}
}

func TestScore_ClampedTo100(t *testing.T) {
	w := DefaultWeights().WithOverrides(config.ScoringConfig{
		ComplianceBudget: 100, ReadinessBudget: 100, StrategicBudget: 100, TimingBudget: 100,
	})
	s := NewScorer(w, nil).WithClock(func() time.Time { return testNow })

	res := s.Score(context.Background(), baseInput())
	assert.Equal(t, 100, res.FitScore)
	assert.Greater(t, res.RuleScore, 100.0)
}

func TestScoreWithStrategic(t *testing.T) {
	s := newTestScorer(nil)
	res := s.ScoreWithStrategic(thinInput(), 130)
	require.NotNil(t, res.AIScore)
	assert.Equal(t, 100.0, *res.AIScore)
	// round(0.6*57 + 0.4*100)
	assert.Equal(t, 74, res.FitScore)
}

func TestHardFilters(t *testing.T) {
	w := DefaultWeights()

	t.Run("org type synonyms", func(t *testing.T) {
		in := baseInput()
		in.Opportunity.OrganizationTypes = []string{"501(c)(3) organizations", "Tribal governments"}
		in.Profile.OrganizationType = "Non-Profit"
		assert.True(t, w.HardFilters(in, testNow).Passed)
	})

	t.Run("any accepts everything", func(t *testing.T) {
		in := baseInput()
		in.Opportunity.OrganizationTypes = []string{"All"}
		in.Profile.OrganizationType = "small business"
		assert.True(t, w.HardFilters(in, testNow).Passed)
	})

	t.Run("org type mismatch", func(t *testing.T) {
		in := baseInput()
		in.Opportunity.OrganizationTypes = []string{"university", "college"}
		res := w.HardFilters(in, testNow)
		assert.False(t, res.Passed)
		assert.Equal(t, []string{FlagOrgTypeMismatch}, res.Flags)
		require.Len(t, res.Reasons, 1)
	})

	t.Run("amount ratio", func(t *testing.T) {
		in := baseInput()
		in.Opportunity.AmountMin = ptr(5000.0)
		assert.Equal(t, []string{FlagAmountOutOfRange}, w.HardFilters(in, testNow).Flags)

		in.Opportunity.AmountMin = nil
		in.Opportunity.AmountMax = ptr(500_000.0)
		assert.True(t, w.HardFilters(in, testNow).Passed)
	})

	t.Run("rolling never expires", func(t *testing.T) {
		in := baseInput()
		in.Opportunity.Deadline = ptr(testNow.AddDate(0, -1, 0))
		in.Opportunity.IsRolling = true
		assert.True(t, w.HardFilters(in, testNow).Passed)
	})
}

func TestUrgency(t *testing.T) {
	w := DefaultWeights()
	cases := []struct {
		days int
		want models.Urgency
	}{
		{-1, models.UrgencyExpired},
		{0, models.UrgencyCritical},
		{7, models.UrgencyCritical},
		{8, models.UrgencyUrgent},
		{30, models.UrgencyUrgent},
		{90, models.UrgencyModerate},
		{91, models.UrgencyComfortable},
	}
	for _, c := range cases {
		d := testNow.AddDate(0, 0, c.days)
		assert.Equal(t, c.want, w.Urgency(&d, testNow), "days=%d", c.days)
	}
	assert.Equal(t, models.UrgencyComfortable, w.Urgency(nil, testNow))
}

func TestCompetitiveness(t *testing.T) {
	high := models.OpportunityCandidate{AmountMax: ptr(2_000_000.0), SourceType: "government"}
	assert.Equal(t, models.CompetitivenessHigh, Competitiveness(high))

	medium := models.OpportunityCandidate{
		AmountMax:         ptr(150_000.0),
		OrganizationTypes: []string{"nonprofit"},
		Eligibility:       []string{"a", "b"},
		SourceType:        "government",
	}
	assert.Equal(t, models.CompetitivenessMedium, Competitiveness(medium))

	low := models.OpportunityCandidate{
		AmountMax:         ptr(20_000.0),
		OrganizationTypes: []string{"nonprofit"},
		Eligibility:       []string{"a", "b"},
		SourceType:        "foundation",
	}
	assert.Equal(t, models.CompetitivenessLow, Competitiveness(low))
}

func TestPriority(t *testing.T) {
	cases := []struct {
		fit     int
		comp    models.Competitiveness
		urgency models.Urgency
		want    models.Priority
	}{
		{85, models.CompetitivenessLow, models.UrgencyComfortable, models.PriorityHigh},
		{85, models.CompetitivenessHigh, models.UrgencyComfortable, models.PriorityMedium},
		{85, models.CompetitivenessLow, models.UrgencyExpired, models.PriorityLow},
		{65, models.CompetitivenessLow, models.UrgencyUrgent, models.PriorityHigh},
		{65, models.CompetitivenessLow, models.UrgencyModerate, models.PriorityMedium},
		{65, models.CompetitivenessMedium, models.UrgencyCritical, models.PriorityMedium},
		{65, models.CompetitivenessHigh, models.UrgencyCritical, models.PriorityLow},
		{40, models.CompetitivenessLow, models.UrgencyCritical, models.PriorityLow},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Priority(c.fit, c.comp, c.urgency), "%+v", c)
	}
}

func TestPreScore_Flags(t *testing.T) {
	in := baseInput()
	in.Profile.EIN = ""
	in.Opportunity.Deadline = nil

	pre := newTestScorer(nil).PreScore(in)
	assert.True(t, pre.EligibleByRules)
	assert.ElementsMatch(t, []string{FlagMissingEIN, FlagMissingSAM, FlagNoDeadline}, pre.Flags)
	assert.Greater(t, pre.QuickScore, 0)
}

func TestService_Handle(t *testing.T) {
	svc := NewService(newTestScorer(nil))
	req := ScoreRequest{Opportunity: baseInput().Opportunity, Project: baseInput().Project, Profile: baseInput().Profile}

	resp, err := svc.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ActionEnhancedScore, resp.Action)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 57, resp.Result.FitScore)

	req.Action = ActionPreScore
	resp, err = svc.Handle(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, resp.PreScore)
	assert.Equal(t, 57, resp.PreScore.QuickScore)

	req.Action = "rescore"
	_, err = svc.Handle(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/david/funding-scout/internal/ai"
	"github.com/david/funding-scout/internal/models"
)

// NoteAIFailed is attached when the strategic analysis could not be used and
// the score fell back to the rule sum.
const NoteAIFailed = "AI analysis failed"

// StrategicAnalyzer is satisfied by *ai.StrategicAnalyzer.
type StrategicAnalyzer interface {
	AnalyzeStrategicFit(ctx context.Context, opp models.OpportunityCandidate, project models.Project, profile models.Profile) (ai.StrategicFit, error)
}

type Input struct {
	Opportunity models.OpportunityCandidate `json:"opportunity"`
	Project     models.Project              `json:"project"`
	Profile     models.Profile              `json:"profile"`
}

type ScoreResult struct {
	FitScore            int                    `json:"fit_score"`
	RuleScore           float64                `json:"rule_score"`
	AIScore             *float64               `json:"ai_score,omitempty"`
	Breakdown           Breakdown              `json:"breakdown"`
	Confidence          Confidence             `json:"confidence"`
	EligibleByRules     bool                   `json:"eligible_by_rules"`
	HardFilters         HardFilterResult       `json:"hard_filters"`
	Competitiveness     models.Competitiveness `json:"competitiveness"`
	TimelineUrgency     models.Urgency         `json:"timeline_urgency"`
	ApplicationPriority models.Priority        `json:"application_priority"`
	DaysUntilDeadline   *int                   `json:"days_until_deadline,omitempty"`
	Reasoning           string                 `json:"reasoning"`
	Strengths           []string               `json:"strengths,omitempty"`
	Concerns            []string               `json:"concerns,omitempty"`
	Notes               []string               `json:"notes,omitempty"`
	AIProvider          string                 `json:"ai_provider,omitempty"`
	CalculatedAt        time.Time              `json:"calculated_at"`
}

type Scorer struct {
	Weights Weights
	AI      StrategicAnalyzer
	now     func() time.Time
}

// NewScorer accepts a nil analyzer; low-confidence pairs then score on rules
// alone and carry the AI failure note.
func NewScorer(w Weights, analyzer StrategicAnalyzer) *Scorer {
	return &Scorer{Weights: w, AI: analyzer, now: time.Now}
}

// WithClock replaces the time source used for deadline checks.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	s.now = now
	return s
}

func (s *Scorer) Now() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Score runs hard filters, rule sub-scores and, when the inputs are too thin
// to trust the rules alone, the strategic LLM analysis.
func (s *Scorer) Score(ctx context.Context, in Input) ScoreResult {
	return s.score(in, func() (ai.StrategicFit, error) {
		if s.AI == nil {
			return ai.StrategicFit{}, ai.ErrNoProviders
		}
		return s.AI.AnalyzeStrategicFit(ctx, in.Opportunity, in.Project, in.Profile)
	})
}

// ScoreWithStrategic scores with a strategic opinion the caller already has,
// such as the analyzer's match score during discovery.
func (s *Scorer) ScoreWithStrategic(in Input, strategic float64) ScoreResult {
	return s.score(in, func() (ai.StrategicFit, error) {
		return ai.StrategicFit{Score: clamp(strategic, 0, 100), Provider: "analyzer"}, nil
	})
}

func (s *Scorer) score(in Input, strategic func() (ai.StrategicFit, error)) ScoreResult {
	log := zap.S().Named("scorer")
	now := s.Now()
	w := s.Weights

	res := ScoreResult{
		HardFilters:     w.HardFilters(in, now),
		Breakdown:       w.Breakdown(in, now),
		Confidence:      ConfidenceOf(in.Project, in.Profile),
		Competitiveness: Competitiveness(in.Opportunity),
		TimelineUrgency: w.Urgency(in.Opportunity.Deadline, now),
		CalculatedAt:    now,
	}
	res.EligibleByRules = res.HardFilters.Passed
	res.RuleScore = math.Round(res.Breakdown.Total()*10) / 10
	if d := in.Opportunity.Deadline; d != nil {
		days := DaysUntil(*d, now)
		res.DaysUntilDeadline = &days
	}
	res.Strengths, res.Concerns = ruleObservations(in, now)

	switch {
	case !res.HardFilters.Passed:
		res.FitScore = 0
		res.Reasoning = "Not eligible: " + strings.Join(res.HardFilters.Reasons, "; ")
		res.Concerns = append(append([]string{}, res.HardFilters.Reasons...), res.Concerns...)

	case res.Confidence == ConfidenceHigh:
		res.FitScore = ClampScore(res.Breakdown.Total())
		res.Reasoning = ruleReasoning(res.Breakdown)

	default:
		fit, err := strategic()
		if err != nil {
			log.Warnw("strategic analysis failed, using rule score",
				"program", in.Opportunity.ProgramName, "project", in.Project.Name, "error", err)
			res.FitScore = ClampScore(res.Breakdown.Total())
			res.Reasoning = ruleReasoning(res.Breakdown)
			res.Notes = append(res.Notes, NoteAIFailed)
			break
		}
		aiScore := fit.Score
		res.AIScore = &aiScore
		res.AIProvider = fit.Provider
		res.FitScore = ClampScore(w.blend(res.Breakdown.Total(), fit.Score))
		res.Reasoning = firstNonEmpty(fit.Reasoning, ruleReasoning(res.Breakdown))
		res.Strengths = append(res.Strengths, fit.Strengths...)
		res.Concerns = append(res.Concerns, fit.Concerns...)
	}

	res.ApplicationPriority = Priority(res.FitScore, res.Competitiveness, res.TimelineUrgency)
	return res
}

// ClampScore rounds v to an integer fit score in [0,100].
func ClampScore(v float64) int {
	return int(math.Round(clamp(v, 0, 100)))
}

func ruleReasoning(b Breakdown) string {
	return fmt.Sprintf("Rule-based fit: compliance %.1f, readiness %.1f, strategic %.1f, timing %.1f",
		b.Compliance, b.Readiness, b.Strategic, b.Timing)
}

func ruleObservations(in Input, now time.Time) (strengths, concerns []string) {
	p := in.Profile
	if strings.TrimSpace(p.EIN) != "" {
		strengths = append(strengths, "EIN on file")
	} else {
		concerns = append(concerns, "No EIN on file")
	}
	if p.SAMRegistered || strings.TrimSpace(p.UEI) != "" {
		strengths = append(strengths, "SAM registration active")
	} else if strings.EqualFold(in.Opportunity.SourceType, string(models.SourceGovernment)) {
		concerns = append(concerns, "Government funders usually require SAM registration")
	}

	switch in.Project.Status {
	case models.ProjectReady, models.ProjectInProgress:
		strengths = append(strengths, "Project is ready to execute")
	case models.ProjectIdea:
		concerns = append(concerns, "Project is still at the idea stage")
	}

	if d := in.Opportunity.Deadline; d != nil && !d.Before(now) && DaysUntil(*d, now) < 14 {
		concerns = append(concerns, "Less than two weeks until the deadline")
	}
	return strengths, concerns
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

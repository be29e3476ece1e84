// Package scoring computes the fit of a (project, opportunity) pair. Rule
// sub-scores are deterministic; the strategic opinion of an LLM is blended in
// only when the inputs are too thin to trust the rules alone.
package scoring

import "github.com/david/funding-scout/internal/config"

// Native point budgets. Sub-score rules award points on these scales and are
// then rescaled to the configured budgets.
const (
	nativeCompliance = 30
	nativeReadiness  = 25
	nativeStrategic  = 25
	nativeTiming     = 20
)

// Weights holds every tunable constant of the scorer.
type Weights struct {
	ComplianceBudget float64
	ReadinessBudget  float64
	StrategicBudget  float64
	TimingBudget     float64

	RuleWeight float64
	AIWeight   float64

	MinAmountRatio float64
	MaxAmountRatio float64

	// BudgetTolerance is how far a budget breakdown may drift from the
	// requested amount and still count as consistent.
	BudgetTolerance float64

	CriticalDays int
	UrgentDays   int
	ModerateDays int
}

func DefaultWeights() Weights {
	return Weights{
		ComplianceBudget: nativeCompliance,
		ReadinessBudget:  nativeReadiness,
		StrategicBudget:  nativeStrategic,
		TimingBudget:     nativeTiming,
		RuleWeight:       0.6,
		AIWeight:         0.4,
		MinAmountRatio:   0.1,
		MaxAmountRatio:   10,
		BudgetTolerance:  0.1,
		CriticalDays:     7,
		UrgentDays:       30,
		ModerateDays:     90,
	}
}

// WithOverrides replaces every field the config sets to a non-zero value.
func (w Weights) WithOverrides(c config.ScoringConfig) Weights {
	set := func(dst *float64, v float64) {
		if v > 0 {
			*dst = v
		}
	}
	set(&w.RuleWeight, c.RuleWeight)
	set(&w.AIWeight, c.AIWeight)
	set(&w.ComplianceBudget, c.ComplianceBudget)
	set(&w.ReadinessBudget, c.ReadinessBudget)
	set(&w.StrategicBudget, c.StrategicBudget)
	set(&w.TimingBudget, c.TimingBudget)
	return w
}

// blend mixes the rule sum with an AI score, normalising the two weights so
// they always sum to one.
func (w Weights) blend(rule, ai float64) float64 {
	total := w.RuleWeight + w.AIWeight
	if total <= 0 {
		return rule
	}
	return (w.RuleWeight*rule + w.AIWeight*ai) / total
}

func rescale(points, native, budget float64) float64 {
	if native <= 0 {
		return 0
	}
	return clamp(points, 0, native) / native * budget
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

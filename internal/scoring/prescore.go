package scoring

import (
	"strings"
)

// PreScore is the cheap rules-only check run before committing to a full
// score. It never calls an LLM.
type PreScore struct {
	EligibleByRules bool       `json:"eligible_by_rules"`
	Confidence      Confidence `json:"confidence"`
	QuickScore      int        `json:"quick_score"`
	Flags           []string   `json:"flags"`
	Reasons         []string   `json:"reasons,omitempty"`
}

func (s *Scorer) PreScore(in Input) PreScore {
	now := s.Now()
	hf := s.Weights.HardFilters(in, now)

	pre := PreScore{
		EligibleByRules: hf.Passed,
		Confidence:      ConfidenceOf(in.Project, in.Profile),
		Flags:           append([]string{}, hf.Flags...),
		Reasons:         hf.Reasons,
	}
	if strings.TrimSpace(in.Profile.EIN) == "" {
		pre.Flags = append(pre.Flags, FlagMissingEIN)
	}
	if !in.Profile.SAMRegistered && strings.TrimSpace(in.Profile.UEI) == "" {
		pre.Flags = append(pre.Flags, FlagMissingSAM)
	}
	if in.Opportunity.Deadline == nil && !in.Opportunity.IsRolling {
		pre.Flags = append(pre.Flags, FlagNoDeadline)
	}

	if hf.Passed {
		pre.QuickScore = ClampScore(s.Weights.Breakdown(in, now).Total())
	}
	return pre
}

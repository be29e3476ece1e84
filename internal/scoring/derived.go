package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/david/funding-scout/internal/models"
)

// DaysUntil rounds a partial day up, so a deadline later today is 1 day out.
func DaysUntil(deadline, now time.Time) int {
	return int(math.Ceil(deadline.Sub(now).Hours() / 24))
}

func (w Weights) Urgency(deadline *time.Time, now time.Time) models.Urgency {
	if deadline == nil {
		return models.UrgencyComfortable
	}
	if deadline.Before(now) {
		return models.UrgencyExpired
	}
	switch days := DaysUntil(*deadline, now); {
	case days <= w.CriticalDays:
		return models.UrgencyCritical
	case days <= w.UrgentDays:
		return models.UrgencyUrgent
	case days <= w.ModerateDays:
		return models.UrgencyModerate
	default:
		return models.UrgencyComfortable
	}
}

// Competitiveness estimates how many applicants a program attracts. Large
// awards, broad eligibility and federal visibility all raise it.
func Competitiveness(opp models.OpportunityCandidate) models.Competitiveness {
	points := 0

	if opp.AmountMax != nil {
		switch {
		case *opp.AmountMax >= 1_000_000:
			points += 2
		case *opp.AmountMax >= 100_000:
			points++
		}
	}

	if broadEligibility(opp) {
		points++
	}

	if strings.EqualFold(opp.SourceType, string(models.SourceGovernment)) {
		points++
	}

	switch {
	case points >= 3:
		return models.CompetitivenessHigh
	case points == 2:
		return models.CompetitivenessMedium
	default:
		return models.CompetitivenessLow
	}
}

func broadEligibility(opp models.OpportunityCandidate) bool {
	if len(opp.OrganizationTypes) == 0 || len(opp.OrganizationTypes) >= 3 {
		return true
	}
	for _, t := range opp.OrganizationTypes {
		if lt := strings.ToLower(strings.TrimSpace(t)); lt == "any" || lt == "all" {
			return true
		}
	}
	return len(opp.Eligibility)+len(opp.EligibilityCriteria) <= 1
}

// Priority combines fit, competitiveness and urgency. An expired program is
// never worth applying to.
func Priority(fit int, comp models.Competitiveness, urgency models.Urgency) models.Priority {
	if urgency == models.UrgencyExpired {
		return models.PriorityLow
	}
	switch {
	case fit >= 80:
		if comp == models.CompetitivenessHigh {
			return models.PriorityMedium
		}
		return models.PriorityHigh
	case fit >= 60:
		switch comp {
		case models.CompetitivenessLow:
			if urgency == models.UrgencyCritical || urgency == models.UrgencyUrgent {
				return models.PriorityHigh
			}
			return models.PriorityMedium
		case models.CompetitivenessMedium:
			return models.PriorityMedium
		default:
			return models.PriorityLow
		}
	default:
		return models.PriorityLow
	}
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

const minDescriptionChars = 200

// ConfidenceOf reports how much the rule sum can be trusted on its own.
func ConfidenceOf(project models.Project, profile models.Profile) Confidence {
	held := 0
	if len([]rune(strings.TrimSpace(project.Description))) >= minDescriptionChars {
		held++
	}
	if len(project.OutcomeMeasures) > 0 {
		held++
	}
	if profile.YearsOperating >= 3 || profile.PastAwards >= 1 {
		held++
	}
	switch held {
	case 3:
		return ConfidenceHigh
	case 2:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

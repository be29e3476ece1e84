package cache

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/david/funding-scout/internal/models"
)

// amountChangeThreshold is the relative change at which a money field counts
// as changed.
const amountChangeThreshold = 0.10

// ProjectChanges lists the scoring-relevant project fields that differ
// between before and after. Notes and timestamps are never reported.
func ProjectChanges(before, after models.Project) []string {
	var changed []string
	add := func(field string, differs bool) {
		if differs {
			changed = append(changed, field)
		}
	}
	add("name", normText(before.Name) != normText(after.Name))
	add("description", normText(before.Description) != normText(after.Description))
	add("category", normText(before.Category) != normText(after.Category))
	add("funding_request_amount", amountChanged(before.FundingRequestAmount, after.FundingRequestAmount))
	add("goals", !sameSet(before.Goals, after.Goals))
	add("focus_areas", !sameSet(before.FocusAreas, after.FocusAreas))
	add("geography", normText(before.Geography) != normText(after.Geography))
	add("status", before.Status != after.Status)
	add("start_date", !sameTime(before.StartDate, after.StartDate))
	add("start_date_flexible", before.StartDateFlexible != after.StartDateFlexible)
	add("staff_count", before.StaffCount != after.StaffCount)
	add("partnerships", !sameSet(before.Partnerships, after.Partnerships))
	add("budget_breakdown", budgetChanged(before.BudgetBreakdown, after.BudgetBreakdown))
	add("target_population", normText(before.TargetPopulation) != normText(after.TargetPopulation))
	add("innovation_level", normText(before.InnovationLevel) != normText(after.InnovationLevel))
	add("outcome_measures", !sameSet(before.OutcomeMeasures, after.OutcomeMeasures))
	return changed
}

// ProfileChanges is ProjectChanges for organization profiles.
func ProfileChanges(before, after models.Profile) []string {
	var changed []string
	add := func(field string, differs bool) {
		if differs {
			changed = append(changed, field)
		}
	}
	add("organization_type", normText(before.OrganizationType) != normText(after.OrganizationType))
	add("ein", normText(before.EIN) != normText(after.EIN))
	add("uei", normText(before.UEI) != normText(after.UEI))
	add("sam_registered", before.SAMRegistered != after.SAMRegistered)
	add("certifications", !sameSet(before.Certifications, after.Certifications))
	add("annual_revenue", amountChanged(before.AnnualRevenue, after.AnnualRevenue))
	add("audit_completed", before.AuditCompleted != after.AuditCompleted)
	add("service_areas", !sameSet(before.ServiceAreas, after.ServiceAreas))
	add("focus_areas", !sameSet(before.FocusAreas, after.FocusAreas))
	add("organization_name", normText(before.OrganizationName) != normText(after.OrganizationName))
	add("years_operating", before.YearsOperating != after.YearsOperating)
	add("past_awards", before.PastAwards != after.PastAwards)
	return changed
}

func normText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func amountChanged(before, after float64) bool {
	if before == after {
		return false
	}
	if before == 0 || after == 0 {
		return true
	}
	return math.Abs(after-before)/math.Abs(before) >= amountChangeThreshold
}

// budgetChanged compares line items by normalized name. A line added,
// removed or moved by the amount threshold counts as a change.
func budgetChanged(before, after map[string]float64) bool {
	norm := func(m map[string]float64) map[string]float64 {
		out := make(map[string]float64, len(m))
		for k, v := range m {
			if k = normText(k); k != "" {
				out[k] += v
			}
		}
		return out
	}
	b, a := norm(before), norm(after)
	if len(b) != len(a) {
		return true
	}
	for k, bv := range b {
		av, ok := a[k]
		if !ok || amountChanged(bv, av) {
			return true
		}
	}
	return false
}

func sameSet(a, b []string) bool {
	return strings.Join(normSet(a), "\x00") == strings.Join(normSet(b), "\x00")
}

func normSet(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		n := normText(item)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

package scoring

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/david/funding-scout/internal/models"
)

// Hard filter flags.
const (
	FlagDeadlineExpired  = "deadline_expired"
	FlagOrgTypeMismatch  = "organization_type_mismatch"
	FlagAmountOutOfRange = "amount_out_of_range"
	FlagMissingEIN       = "missing_ein"
	FlagMissingSAM       = "missing_sam_registration"
	FlagNoDeadline       = "no_deadline"
)

// HardFilterResult is a business outcome, not an error: a pair that fails a
// hard filter scores 0 and carries the reasons.
type HardFilterResult struct {
	Passed  bool     `json:"passed"`
	Reasons []string `json:"reasons,omitempty"`
	Flags   []string `json:"flags,omitempty"`
}

func (r *HardFilterResult) fail(flag, reason string) {
	r.Passed = false
	r.Flags = append(r.Flags, flag)
	r.Reasons = append(r.Reasons, reason)
}

// HardFilters checks organization type, amount ratio and deadline.
func (w Weights) HardFilters(in Input, now time.Time) HardFilterResult {
	res := HardFilterResult{Passed: true}
	opp := in.Opportunity

	if !orgTypeAccepted(in.Profile.OrganizationType, opp.OrganizationTypes) {
		res.fail(FlagOrgTypeMismatch, fmt.Sprintf("organization type %q is not eligible (accepts: %s)",
			in.Profile.OrganizationType, strings.Join(opp.OrganizationTypes, ", ")))
	}

	if ref := referenceAmount(opp); ref > 0 && in.Project.FundingRequestAmount > 0 {
		ratio := in.Project.FundingRequestAmount / ref
		if ratio < w.MinAmountRatio || ratio > w.MaxAmountRatio {
			res.fail(FlagAmountOutOfRange, fmt.Sprintf("requested amount %.0f is outside %.1f-%.0fx of program amount %.0f",
				in.Project.FundingRequestAmount, w.MinAmountRatio, w.MaxAmountRatio, ref))
		}
	}

	if opp.Deadline != nil && !opp.IsRolling && opp.Deadline.Before(now) {
		res.fail(FlagDeadlineExpired, fmt.Sprintf("deadline passed on %s", opp.Deadline.Format("2006-01-02")))
	}

	return res
}

// referenceAmount is the program minimum, or the maximum when no minimum is
// stated.
func referenceAmount(opp models.OpportunityCandidate) float64 {
	if opp.AmountMin != nil && *opp.AmountMin > 0 {
		return *opp.AmountMin
	}
	if opp.AmountMax != nil && *opp.AmountMax > 0 {
		return *opp.AmountMax
	}
	return 0
}

var orgTypeSynonyms = map[string]string{
	"nonprofit":         "nonprofit",
	"non-profit":        "nonprofit",
	"non profit":        "nonprofit",
	"not-for-profit":    "nonprofit",
	"not for profit":    "nonprofit",
	"501(c)(3)":         "nonprofit",
	"501c3":             "nonprofit",
	"charity":           "nonprofit",
	"charities":         "nonprofit",
	"ngo":               "nonprofit",
	"small business":    "business",
	"small_business":    "business",
	"business":          "business",
	"for-profit":        "business",
	"for profit":        "business",
	"company":           "business",
	"startup":           "business",
	"social enterprise": "business",
	"social_enterprise": "business",
	"university":        "education",
	"college":           "education",
	"school":            "education",
	"school district":   "education",
	"higher education":  "education",
	"education":         "education",
	"academic":          "education",
	"government":        "government",
	"local government":  "government",
	"state government":  "government",
	"municipality":      "government",
	"public agency":     "government",
	"tribal":            "tribal",
	"tribe":             "tribal",
	"tribal government": "tribal",
	"individual":        "individual",
	"individuals":       "individual",
}

func canonicalOrgType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "s")
	if c, ok := orgTypeSynonyms[s]; ok {
		return c
	}
	if c, ok := orgTypeSynonyms[s+"s"]; ok {
		return c
	}
	for _, phrase := range orgTypePhrases {
		if strings.Contains(s, phrase) {
			return orgTypeSynonyms[phrase]
		}
	}
	return s
}

// orgTypePhrases is longest first so "tribal government" wins over
// "government".
var orgTypePhrases = func() []string {
	out := make([]string, 0, len(orgTypeSynonyms))
	for k := range orgTypeSynonyms {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}()

// orgTypeAccepted is true when the program lists no types, lists any/all, or
// lists the organization's canonical type. An unknown organization type is
// not rejected.
func orgTypeAccepted(orgType string, accepted []string) bool {
	if len(accepted) == 0 || strings.TrimSpace(orgType) == "" {
		return true
	}
	mine := canonicalOrgType(orgType)
	for _, a := range accepted {
		la := strings.ToLower(strings.TrimSpace(a))
		if la == "any" || la == "all" || strings.HasPrefix(la, "all ") || strings.HasPrefix(la, "any ") {
			return true
		}
		if canonicalOrgType(a) == mine {
			return true
		}
	}
	return false
}

// Breakdown holds the four rule sub-scores on their configured budgets.
type Breakdown struct {
	Compliance float64 `json:"compliance_score"`
	Readiness  float64 `json:"readiness_score"`
	Strategic  float64 `json:"strategic_score"`
	Timing     float64 `json:"timing_score"`
}

func (b Breakdown) Total() float64 {
	return b.Compliance + b.Readiness + b.Strategic + b.Timing
}

func (w Weights) Breakdown(in Input, now time.Time) Breakdown {
	return Breakdown{
		Compliance: rescale(compliancePoints(in), nativeCompliance, w.ComplianceBudget),
		Readiness:  rescale(w.readinessPoints(in.Project), nativeReadiness, w.ReadinessBudget),
		Strategic:  rescale(strategicPoints(in), nativeStrategic, w.StrategicBudget),
		Timing:     rescale(timingPoints(in, now), nativeTiming, w.TimingBudget),
	}
}

type compliancePointTable struct {
	ein, sam, audit, certifications float64
}

var complianceTables = map[string]compliancePointTable{
	string(models.SourceGovernment): {ein: 8, sam: 10, audit: 6, certifications: 6},
	string(models.SourceFoundation): {ein: 12, sam: 5, audit: 8, certifications: 5},
}

var defaultComplianceTable = compliancePointTable{ein: 10, sam: 5, audit: 5, certifications: 10}

func compliancePoints(in Input) float64 {
	table, ok := complianceTables[strings.ToLower(in.Opportunity.SourceType)]
	if !ok {
		table = defaultComplianceTable
	}

	p := in.Profile
	var points float64
	if strings.TrimSpace(p.EIN) != "" {
		points += table.ein
	}
	if p.SAMRegistered || strings.TrimSpace(p.UEI) != "" {
		points += table.sam
	}
	if p.AuditCompleted {
		points += table.audit
	}
	if len(p.Certifications) > 0 {
		points += table.certifications
	}
	return points
}

func (w Weights) readinessPoints(p models.Project) float64 {
	var points float64

	switch p.Status {
	case models.ProjectReady, models.ProjectInProgress:
		points += 8
	case models.ProjectPlanning:
		points += 5
	case models.ProjectIdea:
		points += 2
	}

	switch {
	case p.StaffCount >= 3:
		points += 6
	case p.StaffCount >= 1:
		points += 4
	}

	switch {
	case len(p.Partnerships) >= 2:
		points += 5
	case len(p.Partnerships) == 1:
		points += 3
	}

	if len(p.BudgetBreakdown) > 0 {
		var sum float64
		for _, v := range p.BudgetBreakdown {
			sum += v
		}
		if p.FundingRequestAmount > 0 && math.Abs(sum-p.FundingRequestAmount)/p.FundingRequestAmount <= w.BudgetTolerance {
			points += 6
		} else {
			points += 2
		}
	}
	return points
}

var geoRestriction = regexp.MustCompile(`(?i)\b(must be (located|based) in|residents? of|based in|headquartered in|serving communities in|operating in|registered in|located in|limited to organizations in)\b`)

var innovationSignal = regexp.MustCompile(`(?i)\b(innovat\w*|pilot|novel|breakthrough|emerging|prototype)\b`)

func strategicPoints(in Input) float64 {
	opp := in.Opportunity
	project := in.Project
	haystack := strings.ToLower(strings.Join([]string{
		opp.ProgramName, opp.Description, opp.Text, strings.Join(opp.ProjectTypes, " "),
	}, " "))

	var points float64

	terms := append([]string{project.Category}, project.FocusAreas...)
	terms = append(terms, in.Profile.FocusAreas...)
	switch n := countMentions(haystack, terms); {
	case n >= 3:
		points += 10
	case n == 2:
		points += 8
	case n == 1:
		points += 5
	}

	if pop := strings.TrimSpace(project.TargetPopulation); pop != "" {
		if countMentions(haystack, significantWords(pop)) > 0 {
			points += 5
		} else {
			points += 2
		}
	}

	restrictions := geographicRestrictions(opp)
	if len(restrictions) == 0 {
		points += 3
	} else {
		areas := append([]string{project.Geography}, in.Profile.ServiceAreas...)
		if countMentions(strings.ToLower(strings.Join(restrictions, " ")), areas) > 0 {
			points += 5
		}
	}

	wantsInnovation := innovationSignal.MatchString(haystack)
	switch strings.ToLower(project.InnovationLevel) {
	case "breakthrough", "novel":
		points += pick(wantsInnovation, 5, 3)
	case "incremental":
		points += pick(wantsInnovation, 2, 4)
	default:
		points += pick(wantsInnovation, 1, 2)
	}

	return points
}

func geographicRestrictions(opp models.OpportunityCandidate) []string {
	var out []string
	for _, e := range opp.Eligibility {
		if geoRestriction.MatchString(e) {
			out = append(out, e)
		}
	}
	for _, e := range opp.EligibilityCriteria {
		if geoRestriction.MatchString(e) {
			out = append(out, e)
		}
	}
	return out
}

func timingPoints(in Input, now time.Time) float64 {
	opp := in.Opportunity
	project := in.Project
	var points float64

	switch {
	case opp.Deadline == nil && opp.IsRolling:
		points += 6
	case opp.Deadline == nil:
		points += 4
	default:
		days := opp.Deadline.Sub(now).Hours() / 24
		switch {
		case opp.IsRolling:
			points += 6
		case days >= 30:
			points += 8
		case days >= 14:
			points += 5
		case days >= 0:
			points += 2
		}
	}

	switch {
	case project.StartDate == nil:
		points += 5
	default:
		ref := now
		if opp.Deadline != nil {
			ref = *opp.Deadline
		}
		switch {
		case !ref.AddDate(0, 0, 90).After(*project.StartDate):
			points += 7
		case project.StartDateFlexible:
			points += 4
		default:
			points += 1
		}
	}

	if project.StartDateFlexible {
		points += 5
	} else {
		points += 2
	}
	return points
}

func countMentions(haystack string, terms []string) int {
	n := 0
	seen := make(map[string]bool)
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		if strings.Contains(haystack, t) {
			n++
		}
	}
	return n
}

func significantWords(s string) []string {
	var out []string
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-')
	}) {
		if len(f) > 3 {
			out = append(out, f)
		}
	}
	return out
}

func pick(cond bool, yes, no float64) float64 {
	if cond {
		return yes
	}
	return no
}

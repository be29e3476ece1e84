package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/david/funding-scout/internal/batch"
	"github.com/david/funding-scout/internal/ingest"
	"github.com/david/funding-scout/internal/models"
	"github.com/david/funding-scout/internal/resource"
)

// QualificationThreshold is the minimum match score a relevant candidate
// needs to be kept.
const QualificationThreshold = 40

const maxEligibilityItems = 10

// looseFloat accepts a JSON number, a numeric string, or null.
type looseFloat struct {
	v *float64
}

func (f *looseFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		f.v = nil
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = strings.NewReplacer(",", "", "$", "", " ", "").Replace(str)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// a label like "varies" is not an amount
		f.v = nil
		return nil
	}
	f.v = &v
	return nil
}

type analysisPayload struct {
	IsValidOpportunity    bool       `json:"is_valid_opportunity"`
	IsRelevantOpportunity bool       `json:"is_relevant_opportunity"`
	ProgramName           string     `json:"program_name"`
	Sponsor               string     `json:"sponsor"`
	Description           string     `json:"description"`
	AmountMin             looseFloat `json:"amount_min"`
	AmountMax             looseFloat `json:"amount_max"`
	AmountText            string     `json:"amount_text"`
	Currency              string     `json:"currency"`
	Deadline              string     `json:"deadline"`
	IsRolling             bool       `json:"is_rolling"`
	Eligibility           []string   `json:"eligibility"`
	ProjectTypes          []string   `json:"project_types"`
	OrganizationTypes     []string   `json:"organization_types"`
	SourceType            string     `json:"source_type"`
	IsNonMonetaryResource bool       `json:"is_non_monetary_resource"`
	ResourceTypes         []string   `json:"resource_types"`
	MatchScore            float64    `json:"match_score"`
	Confidence            float64    `json:"confidence"`
	Reasoning             string     `json:"reasoning"`
}

// AnalyzeRequest is the input to OpportunityAnalyzer.Analyze.
type AnalyzeRequest struct {
	Contents []models.ExtractedContent
	Query    string
	Projects []ProjectBrief
}

// AnalyzeStats counts the fate of every candidate.
type AnalyzeStats struct {
	Analyzed       int
	Kept           int
	LLMFailed      int
	ParseFailed    int
	Invalid        int
	BelowThreshold int
}

// OpportunityAnalyzer turns extracted pages into structured candidates.
type OpportunityAnalyzer struct {
	LLM    *Chain
	Runner *batch.Runner
}

// NewOpportunityAnalyzer uses batches of 3 with 1.5s between batches.
func NewOpportunityAnalyzer(llm *Chain) *OpportunityAnalyzer {
	return &OpportunityAnalyzer{
		LLM:    llm,
		Runner: batch.NewRunner(3, 1500*time.Millisecond),
	}
}

type dropReason int

const (
	kept dropReason = iota
	droppedLLM
	droppedParse
	droppedInvalid
	droppedThreshold
)

// Analyze returns the qualified candidates in input order. Candidates whose
// LLM call fails or whose answer does not parse are dropped without retry.
func (a *OpportunityAnalyzer) Analyze(ctx context.Context, req AnalyzeRequest) ([]models.OpportunityCandidate, AnalyzeStats) {
	log := zap.S().Named("analyze")
	stats := AnalyzeStats{Analyzed: len(req.Contents)}

	results := make([]*models.OpportunityCandidate, len(req.Contents))
	reasons := make([]dropReason, len(req.Contents))
	projects := describeProjects(req.Projects)

	runner := a.Runner
	if runner == nil {
		runner = batch.NewRunner(3, 1500*time.Millisecond)
	}

	errs := runner.Run(ctx, len(req.Contents), func(ctx context.Context, i int) error {
		content := req.Contents[i]
		out := a.LLM.Complete(ctx, buildAnalysisPrompt(content, req.Query, projects))
		if !out.OK() {
			reasons[i] = droppedLLM
			return out.Err
		}

		switch r := ParseJSON[analysisPayload](out.Text).(type) {
		case ParseFailure[analysisPayload]:
			reasons[i] = droppedParse
			return fmt.Errorf("%s: %s", out.Provider, r.Reason)
		case ParseSuccess[analysisPayload]:
			candidate, reason := buildCandidate(content, r.Value)
			reasons[i] = reason
			if reason == kept {
				results[i] = &candidate
			}
		}
		return nil
	})

	candidates := make([]models.OpportunityCandidate, 0, len(req.Contents))
	for i := range req.Contents {
		if errs[i] != nil && reasons[i] == kept {
			// cancelled before the task ran
			reasons[i] = droppedLLM
		}
		switch reasons[i] {
		case kept:
			if results[i] != nil {
				candidates = append(candidates, *results[i])
			}
		case droppedLLM:
			stats.LLMFailed++
			log.Warnw("llm call failed", "url", req.Contents[i].URL, "error", errs[i])
		case droppedParse:
			stats.ParseFailed++
			log.Warnw("analysis response unparseable", "url", req.Contents[i].URL, "error", errs[i])
		case droppedInvalid:
			stats.Invalid++
		case droppedThreshold:
			stats.BelowThreshold++
		}
	}
	stats.Kept = len(candidates)

	log.Infow("analysis finished",
		"analyzed", stats.Analyzed,
		"kept", stats.Kept,
		"llm_failed", stats.LLMFailed,
		"parse_failed", stats.ParseFailed,
		"invalid", stats.Invalid,
		"below_threshold", stats.BelowThreshold,
	)
	return candidates, stats
}

func buildAnalysisPrompt(content models.ExtractedContent, query, projects string) string {
	eligibility := "(none extracted)"
	if len(content.EligibilityCriteria) > 0 {
		eligibility = "- " + strings.Join(content.EligibilityCriteria, "\n- ")
	}

	return fmt.Sprintf(`You are an expert grant analyst. Decide whether the page below describes a funding opportunity (grant, award, credits or in-kind resource program) and extract its details.

SEARCH QUERY: %s

USER PROJECTS:
%s
PAGE TITLE: %s
PAGE URL: %s
PAGE TEXT:
%s

EXTRACTED ELIGIBILITY:
%s

Rules:
1. is_valid_opportunity=false for news articles, directories, lists of many programs, or closed/awarded results pages.
2. is_relevant_opportunity=true only if the program could fund one of the user's projects.
3. match_score is 0-100: how well the program fits the query and projects.
4. confidence is 0-100: how sure you are about the extracted fields.
5. Amounts are plain numbers. Put the original amount wording in amount_text.
6. deadline is YYYY-MM-DD, or null when none is stated. Set is_rolling=true for rolling or open-ended programs.
7. Set is_non_monetary_resource=true for credits, donated software, equipment, mentorship or technical assistance programs.

Return ONLY a JSON object:
{
  "is_valid_opportunity": boolean,
  "is_relevant_opportunity": boolean,
  "program_name": "string",
  "sponsor": "string",
  "description": "1-2 sentence neutral summary",
  "amount_min": number or null,
  "amount_max": number or null,
  "amount_text": "string or null",
  "currency": "3-letter ISO code or null",
  "deadline": "YYYY-MM-DD or null",
  "is_rolling": boolean,
  "eligibility": ["string"],
  "project_types": ["string"],
  "organization_types": ["string"],
  "source_type": "government" | "foundation" | "corporate" | "international" | "academic",
  "is_non_monetary_resource": boolean,
  "resource_types": ["cloud_credits" | "software" | "in_kind" | "mentorship" | "technical_assistance" | "equipment" | "accelerator" | "advertising" | "training" | "space"],
  "match_score": number,
  "confidence": number,
  "reasoning": "string"
}`, query, projects, content.Title, content.URL, content.Text, eligibility)
}

// buildCandidate validates an analysis payload. It never trusts a field it
// can check locally.
func buildCandidate(content models.ExtractedContent, p analysisPayload) (models.OpportunityCandidate, dropReason) {
	if !p.IsValidOpportunity {
		return models.OpportunityCandidate{}, droppedInvalid
	}

	name := strings.TrimSpace(p.ProgramName)
	if name == "" {
		name = strings.TrimSpace(content.Title)
	}
	if name == "" {
		return models.OpportunityCandidate{}, droppedInvalid
	}

	score := clamp(p.MatchScore, 0, 100)
	if !p.IsRelevantOpportunity || score < QualificationThreshold {
		return models.OpportunityCandidate{}, droppedThreshold
	}

	c := models.OpportunityCandidate{
		ExtractedContent:  content,
		IsValid:           true,
		ProgramName:       name,
		Sponsor:           strings.TrimSpace(p.Sponsor),
		Description:       ingest.SanitizeDescription(p.Description),
		IsRolling:         p.IsRolling,
		ProjectTypes:      cleanList(p.ProjectTypes, 0),
		OrganizationTypes: cleanList(p.OrganizationTypes, 0),
		SourceType:        sourceType(p.SourceType, content.URL),
		MatchScore:        score,
		Confidence:        clamp(p.Confidence, 0, 100),
		Reasoning:         strings.TrimSpace(p.Reasoning),
	}

	c.AmountMin, c.AmountMax, c.Currency = reconcileAmounts(p)

	if d := strings.TrimSpace(p.Deadline); d != "" {
		if strings.Contains(strings.ToLower(d), "rolling") {
			c.IsRolling = true
		} else if t, err := ingest.ParseDeadline(d); err == nil {
			c.Deadline = &t
		}
	}

	c.Eligibility = cleanList(p.Eligibility, maxEligibilityItems)
	if len(c.Eligibility) == 0 {
		c.Eligibility = cleanList(content.EligibilityCriteria, maxEligibilityItems)
	}

	c.IsNonMonetaryResource, c.ResourceTypes = reconcileResource(p, name, c.Description, content)
	return c, kept
}

func reconcileAmounts(p analysisPayload) (*float64, *float64, string) {
	min, max := p.AmountMin.v, p.AmountMax.v
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))

	if (min == nil || max == nil) && p.AmountText != "" {
		pmin, pmax, pcur := ingest.ParseAmount(p.AmountText, currency)
		if min == nil && pmin > 0 {
			min = &pmin
		}
		if max == nil && pmax > 0 {
			max = &pmax
		}
		if currency == "" {
			currency = pcur
		}
	}

	if min != nil && *min <= 0 {
		min = nil
	}
	if max != nil && *max <= 0 {
		max = nil
	}
	if min != nil && max != nil && *min > *max {
		min, max = max, min
	}
	if currency == "" && (min != nil || max != nil) {
		currency = "USD"
	}
	return min, max, currency
}

// reconcileResource merges the model's resource flags with the shared
// classifier. Unknown resource labels are dropped.
func reconcileResource(p analysisPayload, name, description string, content models.ExtractedContent) (bool, []string) {
	isResource, types := resource.IsNonMonetary(resource.Classify(name, description, content.Title, content.Snippet))

	for _, label := range p.ResourceTypes {
		if kind, ok := resource.KnownType(label); ok {
			types = appendKeyword(types, kind)
		}
	}
	if p.IsNonMonetaryResource && len(types) > 0 {
		isResource = true
	}
	if !isResource {
		return false, nil
	}
	return true, types
}

func sourceType(raw, pageURL string) string {
	cat := models.SourceCategory(strings.ToLower(strings.TrimSpace(raw)))
	if isSourceCategory(cat) {
		return string(cat)
	}

	host := ingest.Host(pageURL)
	switch {
	case strings.HasSuffix(host, ".gov") || strings.Contains(host, ".gov.") || strings.HasPrefix(host, "gov.") || strings.HasSuffix(host, ".mil"):
		return string(models.SourceGovernment)
	case strings.HasSuffix(host, ".edu") || strings.Contains(host, ".ac.") || strings.Contains(host, ".edu."):
		return string(models.SourceAcademic)
	case strings.HasSuffix(host, ".int") || strings.HasSuffix(host, "europa.eu"):
		return string(models.SourceInternational)
	}
	return ""
}

func cleanList(items []string, max int) []string {
	var out []string
	seen := make(map[string]bool)
	for _, it := range items {
		it = strings.Join(strings.Fields(it), " ")
		key := strings.ToLower(it)
		if it == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

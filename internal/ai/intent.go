package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/david/funding-scout/internal/ingest"
	"github.com/david/funding-scout/internal/models"
)

const maxHistoryTurns = 5

// ProjectBrief is the compact project description put into prompts.
type ProjectBrief struct {
	Name                  string
	Category              string
	Goals                 []string
	PreferredFundingTypes []string
	Keywords              []string
	FundingRequestAmount  float64
}

func BriefFromProject(p models.Project) ProjectBrief {
	return ProjectBrief{
		Name:                  p.Name,
		Category:              p.Category,
		Goals:                 p.Goals,
		PreferredFundingTypes: p.PreferredFundingTypes,
		Keywords:              p.Keywords,
		FundingRequestAmount:  p.FundingRequestAmount,
	}
}

func describeProjects(projects []ProjectBrief) string {
	if len(projects) == 0 {
		return "(none provided)"
	}
	var b strings.Builder
	for i, p := range projects {
		fmt.Fprintf(&b, "%d. %s", i+1, p.Name)
		if p.Category != "" {
			fmt.Fprintf(&b, " [%s]", p.Category)
		}
		if p.FundingRequestAmount > 0 {
			fmt.Fprintf(&b, " needs $%.0f", p.FundingRequestAmount)
		}
		if len(p.Goals) > 0 {
			fmt.Fprintf(&b, "; goals: %s", strings.Join(p.Goals, ", "))
		}
		if len(p.Keywords) > 0 {
			fmt.Fprintf(&b, "; keywords: %s", strings.Join(p.Keywords, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// IntentRequest is the input to IntentAnalyzer.Analyze.
type IntentRequest struct {
	Query    string
	History  []models.ConversationTurn
	Projects []ProjectBrief
}

type intentPayload struct {
	IntentType       string   `json:"intent_type"`
	Confidence       float64  `json:"confidence"`
	Keywords         []string `json:"keywords"`
	OrganizationType string   `json:"organization_type"`
	FundingRange     struct {
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
	} `json:"funding_range"`
	TimeConstraint   string   `json:"time_constraint"`
	RecommendedDepth string   `json:"recommended_depth"`
	PrioritySources  []string `json:"priority_sources"`
}

// IntentAnalyzer classifies a discovery query. It never fails: when the LLM
// chain cannot produce a usable answer the heuristic intent is returned.
type IntentAnalyzer struct {
	LLM *Chain
}

func NewIntentAnalyzer(llm *Chain) *IntentAnalyzer {
	return &IntentAnalyzer{LLM: llm}
}

func (a *IntentAnalyzer) Analyze(ctx context.Context, req IntentRequest) models.SearchIntent {
	log := zap.S().Named("intent")

	if a == nil || a.LLM.Len() == 0 {
		return HeuristicIntent(req.Query)
	}

	out := a.LLM.Complete(ctx, buildIntentPrompt(req))
	if !out.OK() {
		log.Warnw("intent analysis failed, using heuristic", "error", out.Err)
		return HeuristicIntent(req.Query)
	}

	switch r := ParseJSON[intentPayload](out.Text).(type) {
	case ParseSuccess[intentPayload]:
		intent := validateIntent(r.Value, req.Query)
		intent.Source = out.Provider
		return intent
	case ParseFailure[intentPayload]:
		log.Warnw("intent response unparseable, using heuristic", "provider", out.Provider, "reason", r.Reason)
	}
	return HeuristicIntent(req.Query)
}

func buildIntentPrompt(req IntentRequest) string {
	history := req.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	var conv strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&conv, "%s: %s\n", turn.Role, turn.Content)
	}
	if conv.Len() == 0 {
		conv.WriteString("(no prior conversation)\n")
	}

	return fmt.Sprintf(`You are a funding research strategist. Classify the search request below.

QUERY: %s

RECENT CONVERSATION:
%s
USER PROJECTS:
%s
Return ONLY a JSON object with this schema:
{
  "intent_type": "broad_discovery" | "specific_opportunity" | "project_matching" | "deadline_focused" | "amount_focused",
  "confidence": number between 0 and 1,
  "keywords": ["string"],
  "organization_type": "string or null",
  "funding_range": {"min": number or null, "max": number or null},
  "time_constraint": "urgent" | "recent" | "flexible",
  "recommended_depth": "quick" | "standard" | "comprehensive",
  "priority_sources": ["government" | "foundation" | "corporate" | "international" | "academic"]
}`, req.Query, conv.String(), describeProjects(req.Projects))
}

func validateIntent(p intentPayload, query string) models.SearchIntent {
	intent := models.SearchIntent{
		IntentType:       models.IntentBroadDiscovery,
		Confidence:       clamp(p.Confidence, 0, 1),
		OrganizationType: strings.TrimSpace(p.OrganizationType),
		TimeConstraint:   models.TimeFlexible,
		RecommendedDepth: models.DepthStandard,
	}

	switch t := models.IntentType(strings.ToLower(strings.TrimSpace(p.IntentType))); t {
	case models.IntentBroadDiscovery, models.IntentSpecificOpportunity, models.IntentProjectMatching,
		models.IntentDeadlineFocused, models.IntentAmountFocused:
		intent.IntentType = t
	}
	switch t := models.TimeConstraint(strings.ToLower(strings.TrimSpace(p.TimeConstraint))); t {
	case models.TimeUrgent, models.TimeRecent, models.TimeFlexible:
		intent.TimeConstraint = t
	}
	switch d := models.SearchDepth(strings.ToLower(strings.TrimSpace(p.RecommendedDepth))); d {
	case models.DepthQuick, models.DepthStandard, models.DepthComprehensive:
		intent.RecommendedDepth = d
	}

	for _, kw := range p.Keywords {
		intent.Keywords = appendKeyword(intent.Keywords, kw)
	}
	if len(intent.Keywords) == 0 {
		intent.Keywords = queryKeywords(query)
	}

	for _, s := range p.PrioritySources {
		cat := models.SourceCategory(strings.ToLower(strings.TrimSpace(s)))
		if isSourceCategory(cat) && !containsCategory(intent.PrioritySources, cat) {
			intent.PrioritySources = append(intent.PrioritySources, cat)
		}
	}

	if p.FundingRange.Min != nil && *p.FundingRange.Min > 0 {
		intent.FundingRange.Min = p.FundingRange.Min
	}
	if p.FundingRange.Max != nil && *p.FundingRange.Max > 0 {
		intent.FundingRange.Max = p.FundingRange.Max
	}
	if intent.FundingRange.Min != nil && intent.FundingRange.Max != nil && *intent.FundingRange.Min > *intent.FundingRange.Max {
		intent.FundingRange.Min, intent.FundingRange.Max = intent.FundingRange.Max, intent.FundingRange.Min
	}
	return intent
}

var stopwords = map[string]bool{
	"about": true, "after": true, "also": true, "been": true, "being": true, "could": true,
	"does": true, "each": true, "find": true, "from": true, "have": true, "help": true,
	"into": true, "just": true, "like": true, "looking": true, "more": true, "most": true,
	"need": true, "needs": true, "other": true, "some": true, "such": true, "than": true,
	"that": true, "their": true, "them": true, "then": true, "there": true, "these": true,
	"they": true, "this": true, "those": true, "want": true, "were": true, "what": true,
	"when": true, "where": true, "which": true, "while": true, "will": true, "with": true,
	"would": true, "your": true, "please": true, "show": true, "search": true, "available": true,
}

var (
	deadlinePhrase = regexp.MustCompile(`(?i)\b(deadlines?|due (soon|date|by)|closing soon|closes? (soon|this)|this (week|month)|next (week|month)|before (january|february|march|april|may|june|july|august|september|october|november|december))\b`)
	urgentPhrase   = regexp.MustCompile(`(?i)\b(urgent|asap|immediately|closing soon|this week|this month)\b`)
	recentPhrase   = regexp.MustCompile(`(?i)\b(new|newest|recent|recently|latest|just announced)\b`)
	amountPhrase   = regexp.MustCompile(`(?i)(\$\s?\d|\b\d[\d,\.]*\s?(k|million|thousand)\b|\b(up to|at least|minimum|maximum|large grants?|small grants?|micro.?grants?)\b)`)
	orgTypePhrase  = regexp.MustCompile(`(?i)\b(nonprofits?|non-profits?|small business(es)?|startups?|universit(y|ies)|schools?|tribes?|tribal|municipalit(y|ies)|charit(y|ies)|social enterprises?)\b`)
)

// HeuristicIntent builds a SearchIntent from the query text alone.
func HeuristicIntent(query string) models.SearchIntent {
	intent := models.SearchIntent{
		IntentType:       models.IntentBroadDiscovery,
		Confidence:       0.5,
		Keywords:         queryKeywords(query),
		TimeConstraint:   models.TimeFlexible,
		RecommendedDepth: models.DepthStandard,
		Source:           "heuristic",
	}

	switch {
	case deadlinePhrase.MatchString(query):
		intent.IntentType = models.IntentDeadlineFocused
	case amountPhrase.MatchString(query):
		intent.IntentType = models.IntentAmountFocused
	}

	switch {
	case urgentPhrase.MatchString(query):
		intent.TimeConstraint = models.TimeUrgent
	case recentPhrase.MatchString(query):
		intent.TimeConstraint = models.TimeRecent
	}

	if m := orgTypePhrase.FindString(query); m != "" {
		intent.OrganizationType = normalizeOrgType(m)
	}

	if min, max, _ := ingest.ParseAmount(query, "USD"); min > 0 || max > 0 {
		if min > 0 {
			intent.FundingRange.Min = &min
		}
		if max > 0 {
			intent.FundingRange.Max = &max
		}
	}

	return intent
}

func queryKeywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	var out []string
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if len([]rune(f)) <= 3 || stopwords[f] {
			continue
		}
		out = appendKeyword(out, f)
	}
	return out
}

func appendKeyword(list []string, kw string) []string {
	kw = strings.ToLower(strings.TrimSpace(kw))
	if kw == "" {
		return list
	}
	for _, existing := range list {
		if existing == kw {
			return list
		}
	}
	return append(list, kw)
}

func normalizeOrgType(s string) string {
	s = strings.ToLower(s)
	switch {
	case strings.HasPrefix(s, "non"), strings.HasPrefix(s, "charit"):
		return "nonprofit"
	case strings.HasPrefix(s, "small business"):
		return "small_business"
	case strings.HasPrefix(s, "startup"):
		return "startup"
	case strings.HasPrefix(s, "universit"), strings.HasPrefix(s, "school"):
		return "education"
	case strings.HasPrefix(s, "trib"):
		return "tribal"
	case strings.HasPrefix(s, "municipal"):
		return "government"
	case strings.HasPrefix(s, "social"):
		return "social_enterprise"
	}
	return s
}

func isSourceCategory(c models.SourceCategory) bool {
	return containsCategory(models.AllSourceCategories, c)
}

func containsCategory(list []models.SourceCategory, c models.SourceCategory) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
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

package models

import "time"

type IntentType string

const (
	IntentBroadDiscovery      IntentType = "broad_discovery"
	IntentSpecificOpportunity IntentType = "specific_opportunity"
	IntentProjectMatching     IntentType = "project_matching"
	IntentDeadlineFocused     IntentType = "deadline_focused"
	IntentAmountFocused       IntentType = "amount_focused"
)

type TimeConstraint string

const (
	TimeUrgent   TimeConstraint = "urgent"
	TimeRecent   TimeConstraint = "recent"
	TimeFlexible TimeConstraint = "flexible"
)

type SearchDepth string

const (
	DepthQuick         SearchDepth = "quick"
	DepthStandard      SearchDepth = "standard"
	DepthComprehensive SearchDepth = "comprehensive"
)

// SourceCategory groups funders for site-scoped queries.
type SourceCategory string

const (
	SourceGovernment    SourceCategory = "government"
	SourceFoundation    SourceCategory = "foundation"
	SourceCorporate     SourceCategory = "corporate"
	SourceInternational SourceCategory = "international"
	SourceAcademic      SourceCategory = "academic"
)

var AllSourceCategories = []SourceCategory{
	SourceGovernment, SourceFoundation, SourceCorporate, SourceInternational, SourceAcademic,
}

type FundingRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// SearchIntent is produced once per discovery request and not mutated after.
type SearchIntent struct {
	IntentType       IntentType       `json:"intent_type"`
	Confidence       float64          `json:"confidence"`
	Keywords         []string         `json:"keywords"`
	OrganizationType string           `json:"organization_type,omitempty"`
	FundingRange     FundingRange     `json:"funding_range"`
	TimeConstraint   TimeConstraint   `json:"time_constraint"`
	RecommendedDepth SearchDepth      `json:"recommended_depth"`
	PrioritySources  []SourceCategory `json:"priority_sources"`
	Source           string           `json:"source"` // llm provider name or "heuristic"
}

type SearchResult struct {
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	Snippet       string     `json:"snippet"`
	Provider      string     `json:"provider"`
	Position      *int       `json:"position,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	Relevance     float64    `json:"relevance,omitempty"`
}

// ExtractedContent carries a funding-focused excerpt of a fetched page.
type ExtractedContent struct {
	SearchResult

	Text                string    `json:"text"`
	EligibilityCriteria []string  `json:"eligibility_criteria"`
	ExtractedAt         time.Time `json:"extracted_at"`
}

type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

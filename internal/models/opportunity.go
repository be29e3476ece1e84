package models

import (
	"time"

	"github.com/google/uuid"
)

// OpportunityCandidate is the structured record the analyzer builds from
// extracted page content.
type OpportunityCandidate struct {
	ExtractedContent

	IsValid               bool       `json:"is_valid"`
	ProgramName           string     `json:"program_name"`
	Sponsor               string     `json:"sponsor"`
	Description           string     `json:"description"`
	AmountMin             *float64   `json:"amount_min,omitempty"`
	AmountMax             *float64   `json:"amount_max,omitempty"`
	Currency              string     `json:"currency,omitempty"`
	Deadline              *time.Time `json:"deadline,omitempty"`
	IsRolling             bool       `json:"is_rolling"`
	Eligibility           []string   `json:"eligibility"`
	ProjectTypes          []string   `json:"project_types"`
	OrganizationTypes     []string   `json:"organization_types"`
	SourceType            string     `json:"source_type,omitempty"` // government, foundation, corporate, international, academic
	IsNonMonetaryResource bool       `json:"is_non_monetary_resource"`
	ResourceTypes         []string   `json:"resource_types"`
	MatchScore            float64    `json:"match_score"`
	Confidence            float64    `json:"confidence"`
	Reasoning             string     `json:"reasoning,omitempty"`
}

type Competitiveness string

const (
	CompetitivenessLow    Competitiveness = "low"
	CompetitivenessMedium Competitiveness = "medium"
	CompetitivenessHigh   Competitiveness = "high"
)

type Urgency string

const (
	UrgencyExpired     Urgency = "expired"
	UrgencyCritical    Urgency = "critical"
	UrgencyUrgent      Urgency = "urgent"
	UrgencyModerate    Urgency = "moderate"
	UrgencyComfortable Urgency = "comfortable"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ScoredOpportunity is the terminal pipeline output and the row shape of the
// opportunity store.
type ScoredOpportunity struct {
	OpportunityCandidate

	ID                  uuid.UUID       `json:"id"`
	ExternalID          string          `json:"external_id"`
	Source              string          `json:"source"`
	FitScore            int             `json:"fit_score"`
	Competitiveness     Competitiveness `json:"competitiveness"`
	TimelineUrgency     Urgency         `json:"timeline_urgency"`
	ApplicationPriority Priority        `json:"application_priority"`
	MatchingProjectIDs  []uuid.UUID     `json:"matching_project_ids"`
	Embedding           []float32       `json:"-"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// DisplayTitle prefers the analyzed program name over the search hit title.
func (o *ScoredOpportunity) DisplayTitle() string {
	if o.ProgramName != "" {
		return o.ProgramName
	}
	return o.SearchResult.Title
}

// OpportunitySummary is the compact shape returned by discovery.
type OpportunitySummary struct {
	ID                  uuid.UUID       `json:"id"`
	Title               string          `json:"title"`
	Sponsor             string          `json:"sponsor"`
	Deadline            *time.Time      `json:"deadline,omitempty"`
	SourceURL           string          `json:"source_url"`
	FitScore            int             `json:"fit_score"`
	AmountMin           *float64        `json:"amount_min,omitempty"`
	AmountMax           *float64        `json:"amount_max,omitempty"`
	IsNonMonetary       bool            `json:"is_non_monetary_resource"`
	ResourceTypes       []string        `json:"resource_types,omitempty"`
	Competitiveness     Competitiveness `json:"competitiveness"`
	TimelineUrgency     Urgency         `json:"timeline_urgency"`
	ApplicationPriority Priority        `json:"application_priority"`
	MatchingProjectIDs  []uuid.UUID     `json:"matching_project_ids"`
}

func (o *ScoredOpportunity) Summary() OpportunitySummary {
	return OpportunitySummary{
		ID:                  o.ID,
		Title:               o.DisplayTitle(),
		Sponsor:             o.Sponsor,
		Deadline:            o.Deadline,
		SourceURL:           o.URL,
		FitScore:            o.FitScore,
		AmountMin:           o.AmountMin,
		AmountMax:           o.AmountMax,
		IsNonMonetary:       o.IsNonMonetaryResource,
		ResourceTypes:       o.ResourceTypes,
		Competitiveness:     o.Competitiveness,
		TimelineUrgency:     o.TimelineUrgency,
		ApplicationPriority: o.ApplicationPriority,
		MatchingProjectIDs:  o.MatchingProjectIDs,
	}
}

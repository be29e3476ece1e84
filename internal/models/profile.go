package models

import (
	"time"

	"github.com/google/uuid"
)

type ProjectStatus string

const (
	ProjectIdea       ProjectStatus = "idea"
	ProjectPlanning   ProjectStatus = "planning"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectReady      ProjectStatus = "ready"
)

// Project is read from the project repository; the pipeline never writes it.
type Project struct {
	ID                    uuid.UUID          `json:"id" yaml:"id"`
	UserID                uuid.UUID          `json:"user_id" yaml:"user_id"`
	Name                  string             `json:"name" yaml:"name"`
	Description           string             `json:"description" yaml:"description"`
	Category              string             `json:"category" yaml:"category"`
	Goals                 []string           `json:"goals" yaml:"goals"`
	PreferredFundingTypes []string           `json:"preferred_funding_types" yaml:"preferred_funding_types"`
	Keywords              []string           `json:"keywords" yaml:"keywords"`
	FundingRequestAmount  float64            `json:"funding_request_amount" yaml:"funding_request_amount"`
	Status                ProjectStatus      `json:"status" yaml:"status"`
	StaffCount            int                `json:"staff_count" yaml:"staff_count"`
	Partnerships          []string           `json:"partnerships" yaml:"partnerships"`
	BudgetBreakdown       map[string]float64 `json:"budget_breakdown" yaml:"budget_breakdown"`
	FocusAreas            []string           `json:"focus_areas" yaml:"focus_areas"`
	TargetPopulation      string             `json:"target_population" yaml:"target_population"`
	Geography             string             `json:"geography" yaml:"geography"`
	InnovationLevel       string             `json:"innovation_level" yaml:"innovation_level"` // incremental, novel, breakthrough
	OutcomeMeasures       []string           `json:"outcome_measures" yaml:"outcome_measures"`
	StartDate             *time.Time         `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	StartDateFlexible     bool               `json:"start_date_flexible" yaml:"start_date_flexible"`
	InternalNotes         string             `json:"internal_notes" yaml:"internal_notes"`
	UpdatedAt             time.Time          `json:"updated_at" yaml:"updated_at"`
}

// Profile describes the applying organization.
type Profile struct {
	UserID           uuid.UUID `json:"user_id" yaml:"user_id"`
	OrganizationName string    `json:"organization_name" yaml:"organization_name"`
	OrganizationType string    `json:"organization_type" yaml:"organization_type"`
	EIN              string    `json:"ein" yaml:"ein"`
	UEI              string    `json:"uei" yaml:"uei"`
	SAMRegistered    bool      `json:"sam_registered" yaml:"sam_registered"`
	AuditCompleted   bool      `json:"audit_completed" yaml:"audit_completed"`
	Certifications   []string  `json:"certifications" yaml:"certifications"`
	AnnualRevenue    float64   `json:"annual_revenue" yaml:"annual_revenue"`
	YearsOperating   int       `json:"years_operating" yaml:"years_operating"`
	PastAwards       int       `json:"past_awards" yaml:"past_awards"`
	FocusAreas       []string  `json:"focus_areas" yaml:"focus_areas"`
	ServiceAreas     []string  `json:"service_areas" yaml:"service_areas"`
	InternalNotes    string    `json:"internal_notes" yaml:"internal_notes"`
	UpdatedAt        time.Time `json:"updated_at" yaml:"updated_at"`
}

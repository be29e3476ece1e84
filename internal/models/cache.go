package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type CacheStatus string

const (
	CacheScored       CacheStatus = "scored"
	CacheNeedsScoring CacheStatus = "needs_scoring"
)

// CacheRecord maps a (user, project, opportunity) triple to its last score.
type CacheRecord struct {
	UserID        uuid.UUID       `json:"user_id"`
	ProjectID     uuid.UUID       `json:"project_id"`
	OpportunityID uuid.UUID       `json:"opportunity_id"`
	FitScore      int             `json:"fit_score"`
	Analysis      json.RawMessage `json:"analysis,omitempty"`
	CalculatedAt  *time.Time      `json:"calculated_at,omitempty"`
	Status        CacheStatus     `json:"status"`
}

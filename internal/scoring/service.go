package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/david/funding-scout/internal/models"
)

const (
	ActionEnhancedScore = "enhanced-score"
	ActionPreScore      = "pre-score"
)

var ErrUnknownAction = errors.New("unknown scoring action")

type ScoreRequest struct {
	Opportunity models.OpportunityCandidate `json:"opportunity"`
	Project     models.Project              `json:"project"`
	Profile     models.Profile              `json:"profile"`
	Action      string                      `json:"action"`
}

type ScoreResponse struct {
	Action   string       `json:"action"`
	Result   *ScoreResult `json:"result,omitempty"`
	PreScore *PreScore    `json:"pre_score,omitempty"`
}

type Service struct {
	Scorer *Scorer
}

func NewService(scorer *Scorer) *Service {
	return &Service{Scorer: scorer}
}

// Handle dispatches a scoring request. An empty action means enhanced-score.
func (s *Service) Handle(ctx context.Context, req ScoreRequest) (ScoreResponse, error) {
	in := Input{Opportunity: req.Opportunity, Project: req.Project, Profile: req.Profile}

	switch req.Action {
	case ActionEnhancedScore, "":
		res := s.Scorer.Score(ctx, in)
		return ScoreResponse{Action: ActionEnhancedScore, Result: &res}, nil
	case ActionPreScore:
		pre := s.Scorer.PreScore(in)
		return ScoreResponse{Action: ActionPreScore, PreScore: &pre}, nil
	default:
		return ScoreResponse{}, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
}

package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/david/funding-scout/internal/models"
)

// StrategicFit is the LLM's qualitative judgement of a (project, opportunity)
// pair. Score is 0-100.
type StrategicFit struct {
	Score     float64  `json:"strategic_score"`
	Reasoning string   `json:"reasoning"`
	Strengths []string `json:"strengths,omitempty"`
	Concerns  []string `json:"concerns,omitempty"`
	Provider  string   `json:"provider,omitempty"`
}

type strategicPayload struct {
	StrategicScore looseFloat `json:"strategic_score"`
	Reasoning      string     `json:"reasoning"`
	Strengths      []string   `json:"strengths"`
	Concerns       []string   `json:"concerns"`
}

type StrategicAnalyzer struct {
	LLM *Chain
}

func NewStrategicAnalyzer(llm *Chain) *StrategicAnalyzer {
	return &StrategicAnalyzer{LLM: llm}
}

// AnalyzeStrategicFit asks the LLM chain for a strategic score. Any provider
// or parse failure is returned as an error; the caller decides the fallback.
func (a *StrategicAnalyzer) AnalyzeStrategicFit(ctx context.Context, opp models.OpportunityCandidate, project models.Project, profile models.Profile) (StrategicFit, error) {
	if a == nil {
		return StrategicFit{}, ErrNoProviders
	}

	out := a.LLM.Complete(ctx, buildStrategicPrompt(opp, project, profile))
	if !out.OK() {
		return StrategicFit{}, out.Err
	}

	switch r := ParseJSON[strategicPayload](out.Text).(type) {
	case ParseSuccess[strategicPayload]:
		if r.Value.StrategicScore.v == nil {
			return StrategicFit{}, fmt.Errorf("%s: strategic_score missing", out.Provider)
		}
		return StrategicFit{
			Score:     clamp(*r.Value.StrategicScore.v, 0, 100),
			Reasoning: strings.TrimSpace(r.Value.Reasoning),
			Strengths: cleanList(r.Value.Strengths, 5),
			Concerns:  cleanList(r.Value.Concerns, 5),
			Provider:  out.Provider,
		}, nil
	case ParseFailure[strategicPayload]:
		return StrategicFit{}, fmt.Errorf("%s: %s", out.Provider, r.Reason)
	}
	return StrategicFit{}, fmt.Errorf("unreachable parse result")
}

func buildStrategicPrompt(opp models.OpportunityCandidate, project models.Project, profile models.Profile) string {
	amount := "not stated"
	switch {
	case opp.AmountMin != nil && opp.AmountMax != nil:
		amount = fmt.Sprintf("%.0f - %.0f %s", *opp.AmountMin, *opp.AmountMax, opp.Currency)
	case opp.AmountMax != nil:
		amount = fmt.Sprintf("up to %.0f %s", *opp.AmountMax, opp.Currency)
	case opp.AmountMin != nil:
		amount = fmt.Sprintf("at least %.0f %s", *opp.AmountMin, opp.Currency)
	}

	return fmt.Sprintf(`You are a senior grant strategist. Judge how well this project fits the funding opportunity strategically.

OPPORTUNITY
Program: %s
Sponsor: %s
Amount: %s
Description: %s
Eligibility: %s
Project types: %s

ORGANIZATION
Name: %s
Type: %s
Focus areas: %s
Service areas: %s

PROJECT
Name: %s
Description: %s
Category: %s
Goals: %s
Focus areas: %s
Target population: %s
Geography: %s
Requested amount: %.0f

Return ONLY a JSON object:
{
  "strategic_score": number between 0 and 100,
  "reasoning": "2-3 sentences",
  "strengths": ["string"],
  "concerns": ["string"]
}`,
		opp.ProgramName, opp.Sponsor, amount, opp.Description,
		strings.Join(opp.Eligibility, "; "), strings.Join(opp.ProjectTypes, ", "),
		profile.OrganizationName, profile.OrganizationType,
		strings.Join(profile.FocusAreas, ", "), strings.Join(profile.ServiceAreas, ", "),
		project.Name, project.Description, project.Category, strings.Join(project.Goals, "; "),
		strings.Join(project.FocusAreas, ", "), project.TargetPopulation, project.Geography,
		project.FundingRequestAmount,
	)
}

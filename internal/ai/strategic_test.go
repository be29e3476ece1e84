package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/funding-scout/internal/models"
)

func TestStrategicAnalyzer(t *testing.T) {
	llm := &scriptedCompleter{name: "ollama", answers: map[string]string{
		"Program: Solar": `{"strategic_score": 130, "reasoning": " Good match. ", "strengths": ["topic"], "concerns": []}`,
		"Program: Empty": `{"reasoning": "no score"}`,
	}}
	a := NewStrategicAnalyzer(NewChain(llm))

	fit, err := a.AnalyzeStrategicFit(context.Background(), models.OpportunityCandidate{ProgramName: "Solar"}, models.Project{}, models.Profile{})
	require.NoError(t, err)
	assert.Equal(t, 100.0, fit.Score)
	assert.Equal(t, "Good match.", fit.Reasoning)
	assert.Equal(t, []string{"topic"}, fit.Strengths)
	assert.Equal(t, "ollama", fit.Provider)

	_, err = a.AnalyzeStrategicFit(context.Background(), models.OpportunityCandidate{ProgramName: "Empty"}, models.Project{}, models.Profile{})
	assert.Error(t, err)

	failing := NewStrategicAnalyzer(NewChain(&scriptedCompleter{name: "x", err: errors.New("down")}))
	_, err = failing.AnalyzeStrategicFit(context.Background(), models.OpportunityCandidate{}, models.Project{}, models.Profile{})
	assert.Error(t, err)
}

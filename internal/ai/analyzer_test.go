package ai

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/funding-scout/internal/batch"
	"github.com/david/funding-scout/internal/models"
)

func content(title, url string) models.ExtractedContent {
	return models.ExtractedContent{
		SearchResult:        models.SearchResult{Title: title, URL: url, Provider: "serper"},
		Text:                strings.Repeat("Grants of up to $100,000 support community solar. ", 10),
		EligibilityCriteria: []string{"Applicants must be registered nonprofits"},
	}
}

func newTestAnalyzer(llm Completer) *OpportunityAnalyzer {
	a := NewOpportunityAnalyzer(NewChain(llm))
	a.Runner = batch.NewRunner(3, 0)
	return a
}

const validAnalysis = `{
	"is_valid_opportunity": true,
	"is_relevant_opportunity": true,
	"program_name": "Community Solar Fund",
	"sponsor": "Green Foundation",
	"description": "<p>Supports <b>community solar</b> pilots.</p>",
	"amount_min": null,
	"amount_max": "100,000",
	"amount_text": "grants from $25,000 to $100,000",
	"currency": "usd",
	"deadline": "2026-03-15",
	"eligibility": ["Nonprofits", "nonprofits", "Tribal governments"],
	"project_types": ["energy"],
	"organization_types": ["nonprofit"],
	"source_type": "Foundation",
	"is_non_monetary_resource": false,
	"resource_types": [],
	"match_score": 82,
	"confidence": 140,
	"reasoning": "Strong topical overlap."
}`

func TestOpportunityAnalyzer_BuildsValidatedCandidate(t *testing.T) {
	llm := &scriptedCompleter{name: "openai", answers: map[string]string{"solar-fund": validAnalysis}}

	got, stats := newTestAnalyzer(llm).Analyze(context.Background(), AnalyzeRequest{
		Contents: []models.ExtractedContent{content("Solar", "https://greenfoundation.org/solar-fund")},
		Query:    "community solar",
	})

	require.Len(t, got, 1)
	assert.Equal(t, 1, stats.Kept)

	c := got[0]
	assert.True(t, c.IsValid)
	assert.Equal(t, "Community Solar Fund", c.ProgramName)
	assert.Equal(t, "Supports community solar pilots.", c.Description)
	require.NotNil(t, c.AmountMin)
	require.NotNil(t, c.AmountMax)
	assert.Equal(t, 25000.0, *c.AmountMin)
	assert.Equal(t, 100000.0, *c.AmountMax)
	assert.Equal(t, "USD", c.Currency)
	require.NotNil(t, c.Deadline)
	assert.Equal(t, time.Date(2026, 3, 15, 23, 59, 59, 999999999, time.UTC), *c.Deadline)
	assert.Equal(t, []string{"Nonprofits", "Tribal governments"}, c.Eligibility)
	assert.Equal(t, "foundation", c.SourceType)
	assert.Equal(t, 82.0, c.MatchScore)
	assert.Equal(t, 100.0, c.Confidence)
	assert.False(t, c.IsNonMonetaryResource)
}

func TestOpportunityAnalyzer_DropsUnparseableAndContinues(t *testing.T) {
	llm := &scriptedCompleter{name: "openai", answers: map[string]string{
		"good-1":    strings.Replace(validAnalysis, "Community Solar Fund", "Fund One", 1),
		"prose":     "This page looks like a grant program but I am not sure.",
		"good-2":    strings.Replace(validAnalysis, "Community Solar Fund", "Fund Two", 1),
		"invalid":   `{"is_valid_opportunity": false, "program_name": "News"}`,
		"low-score": strings.Replace(validAnalysis, `"match_score": 82`, `"match_score": 39`, 1),
	}}

	contents := []models.ExtractedContent{
		content("A", "https://a.org/good-1"),
		content("B", "https://b.org/prose"),
		content("C", "https://c.org/good-2"),
		content("D", "https://d.org/invalid"),
		content("E", "https://e.org/low-score"),
	}

	var got []models.OpportunityCandidate
	var stats AnalyzeStats
	require.NotPanics(t, func() {
		got, stats = newTestAnalyzer(llm).Analyze(context.Background(), AnalyzeRequest{Contents: contents})
	})

	require.Len(t, got, 2)
	assert.Equal(t, "Fund One", got[0].ProgramName)
	assert.Equal(t, "Fund Two", got[1].ProgramName)
	assert.Equal(t, AnalyzeStats{Analyzed: 5, Kept: 2, ParseFailed: 1, Invalid: 1, BelowThreshold: 1}, stats)
	assert.Equal(t, 5, llm.Calls(), "a failed candidate must not be retried")
}

func TestOpportunityAnalyzer_ResourceReconciliation(t *testing.T) {
	payload := strings.NewReplacer(
		`"program_name": "Community Solar Fund"`, `"program_name": "Nonprofit Cloud Credits Program"`,
		`"is_non_monetary_resource": false`, `"is_non_monetary_resource": true`,
		`"resource_types": []`, `"resource_types": ["Mentorship", "magic beans"]`,
	).Replace(validAnalysis)
	llm := &scriptedCompleter{name: "gemini", answers: map[string]string{"": payload}}

	got, _ := newTestAnalyzer(llm).Analyze(context.Background(), AnalyzeRequest{
		Contents: []models.ExtractedContent{content("Credits", "https://cloud.example.com/credits")},
	})

	require.Len(t, got, 1)
	assert.True(t, got[0].IsNonMonetaryResource)
	assert.Equal(t, []string{"cloud_credits", "mentorship"}, got[0].ResourceTypes)
}

func TestSourceTypeFromHost(t *testing.T) {
	assert.Equal(t, "government", sourceType("", "https://www.grants.gov/x"))
	assert.Equal(t, "government", sourceType("", "https://www.gov.uk/apply"))
	assert.Equal(t, "academic", sourceType("unknown", "https://research.stanford.edu/fund"))
	assert.Equal(t, "", sourceType("", "https://foundation.org/"))
}

func TestLooseFloat(t *testing.T) {
	var p analysisPayload
	require.True(t, parsesAs(t, `{"amount_min": "$5,000", "amount_max": "varies"}`, &p))
	require.NotNil(t, p.AmountMin.v)
	assert.Equal(t, 5000.0, *p.AmountMin.v)
	assert.Nil(t, p.AmountMax.v)
}

func parsesAs(t *testing.T, s string, out *analysisPayload) bool {
	t.Helper()
	r, ok := ParseJSON[analysisPayload](s).(ParseSuccess[analysisPayload])
	if ok {
		*out = r.Value
	}
	return ok
}

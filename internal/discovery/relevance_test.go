package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/funding-scout/internal/models"
)

func TestRelevanceFilter_Stages(t *testing.T) {
	results := []models.SearchResult{
		{Title: "Weather forecast", URL: "https://weather.example.com", Snippet: "Sunny tomorrow"},
		{Title: "Grant news roundup", URL: "https://blog.example.com/news", Snippet: "Blog post: winners announced for last year."},
		{Title: "Top 10 grant databases", URL: "https://lists.example.com/grants", Snippet: "Funding lists"},
		{Title: "Clean Energy Community Grant Program", URL: "https://www.grants.gov/x", Snippet: "Apply now for funding."},
		{
			Title:   "Clean Energy Community Grant Program",
			URL:     "https://energyfoundation.org/community",
			Snippet: "Apply now for funding. Eligible nonprofits may submit a proposal before the deadline.",
		},
	}

	kept, stats := NewRelevanceFilter().Filter(results, FilterInput{
		Keywords:   []string{"Clean Energy"},
		Exclusions: NewExclusionSet("grants.gov"),
	})

	require.Len(t, kept, 1)
	assert.Equal(t, "https://energyfoundation.org/community", kept[0].URL)
	assert.InDelta(t, 1.0, kept[0].Relevance, 0.001)
	assert.Equal(t, FilterStats{Input: 5, NoSignal: 1, Directory: 1, Excluded: 1, BelowScore: 1, Kept: 1}, stats)
}

func TestRelevanceFilter_SortAndCap(t *testing.T) {
	results := []models.SearchResult{
		{Title: "Arts grant", URL: "https://a.org", Snippet: "Apply for this grant program"},
		{Title: "Arts grant fellowship", URL: "https://b.org", Snippet: "Apply by the deadline; eligibility guidelines inside"},
		{Title: "Arts grant", URL: "https://c.org", Snippet: "Apply for this grant program"},
	}
	f := &RelevanceFilter{Threshold: 0.4, MaxResults: 2}

	kept, stats := f.Filter(results, FilterInput{Keywords: []string{"arts"}})

	require.Len(t, kept, 2)
	assert.Equal(t, "https://b.org", kept[0].URL)
	assert.Equal(t, "https://a.org", kept[1].URL)
	assert.Equal(t, 1, stats.Capped)
}

func TestRelevanceFilter_ResourceOnly(t *testing.T) {
	results := []models.SearchResult{
		{Title: "Community grant", URL: "https://a.org", Snippet: "Apply for funding"},
		{Title: "Cloud credits for nonprofits", URL: "https://b.org", Snippet: "Apply for cloud credits and technical assistance."},
	}

	kept, stats := NewRelevanceFilter().Filter(results, FilterInput{ResourceOnly: true})

	require.Len(t, kept, 1)
	assert.Equal(t, "https://b.org", kept[0].URL)
	assert.Equal(t, 1, stats.NotResource)
}

func TestRelevanceFilter_ResourceOnlyBareCredits(t *testing.T) {
	results := []models.SearchResult{
		{Title: "Startup credits program for nonprofits", URL: "https://credits.example.org", Snippet: "Apply for up to $10,000 in credits."},
		{Title: "Research grant program", URL: "https://grant.example.org", Snippet: "Apply for up to $10,000 in funding."},
	}

	kept, stats := NewRelevanceFilter().Filter(results, FilterInput{ResourceOnly: true})

	require.Len(t, kept, 1)
	assert.Equal(t, "https://credits.example.org", kept[0].URL)
	assert.InDelta(t, 0.5, kept[0].Relevance, 0.001)
	assert.Equal(t, 1, stats.NotResource)
}

func TestContainsWord(t *testing.T) {
	assert.True(t, containsWord("research grants available", "grant"))
	assert.True(t, containsWord("grant", "grant"))
	assert.False(t, containsWord("grantee portal", "grant"))
	assert.False(t, containsWord("refund policy", "fund"))
}

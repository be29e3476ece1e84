package discovery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/funding-scout/internal/ai"
)

func TestExpandQueries_SeedFirstAndOrdered(t *testing.T) {
	qs := ExpandQueries(ExpandInput{
		Seed:             "  clean   energy ",
		OrganizationType: "non_profit",
		Year:             2026,
		Projects: []ai.ProjectBrief{{
			Name:                 "Rural Solar",
			Category:             "renewable energy",
			Goals:                []string{"solar for schools"},
			Keywords:             []string{"solar", "Solar"},
			FundingRequestAmount: 75000,
		}},
	})

	require.NotEmpty(t, qs)
	assert.Equal(t, WeightedQuery{Text: "clean energy", Weight: 1.0, Kind: KindSeed}, qs[0])

	seen := make(map[string]bool)
	for i, q := range qs {
		key := strings.ToLower(q.Text)
		assert.False(t, seen[key], "duplicate query %q", q.Text)
		seen[key] = true
		if i > 0 {
			assert.LessOrEqual(t, q.Weight, qs[i-1].Weight)
		}
	}

	assert.True(t, seen["clean energy grants for non profit"])
	assert.True(t, seen["clean energy grant up to $250,000"])
	assert.True(t, seen["clean energy grants 2026"])
	assert.True(t, seen["clean energy solar funding"])
}

func TestExpandQueries_Deterministic(t *testing.T) {
	in := ExpandInput{Seed: "youth arts", ResourceOnly: true, Year: 2026}
	assert.Equal(t, ExpandQueries(in), ExpandQueries(in))
}

func TestExpandQueries_Capped(t *testing.T) {
	var projects []ai.ProjectBrief
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		projects = append(projects, ai.ProjectBrief{
			Name:                  name,
			Category:              "category " + name,
			Goals:                 []string{"goal one " + name, "goal two " + name},
			Keywords:              []string{"kw1 " + name, "kw2 " + name, "kw3 " + name},
			PreferredFundingTypes: []string{"grant " + name, "loan " + name},
		})
	}
	qs := ExpandQueries(ExpandInput{Seed: "water", Projects: projects, ResourceOnly: true, Year: 2026})

	assert.Len(t, qs, MaxExpandedQueries)
	assert.Equal(t, KindSeed, qs[0].Kind)
}

func TestExpandQueries_ResourceAndFallbackSeed(t *testing.T) {
	qs := ExpandQueries(ExpandInput{
		Projects:     []ai.ProjectBrief{{Name: "Library Wifi"}},
		ResourceOnly: true,
	})
	require.NotEmpty(t, qs)
	assert.Equal(t, "Library Wifi", qs[0].Text)

	var kinds []string
	for _, q := range qs {
		kinds = append(kinds, q.Kind)
	}
	assert.Contains(t, kinds, KindResource)
	assert.NotContains(t, kinds, KindYear)

	assert.Nil(t, ExpandQueries(ExpandInput{}))
}

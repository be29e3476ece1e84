package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExclusionSet_Excludes(t *testing.T) {
	set := NewExclusionSet("grants.gov", "https://www.Facebook.com/pages", "ec.europa.eu.")

	cases := map[string]bool{
		"https://www.grants.gov/search-results": true,
		"https://simpler.grants.gov/opp/1":      true,
		"grants.gov:443":                        true,
		"https://m.facebook.com/foo":            true,
		"https://ec.europa.eu/info/funding":     true,
		"https://notgrants.gov/x":               false,
		"https://europa.eu/x":                   false,
		"https://example.org/grants.gov":        false,
		"":                                      false,
	}
	for in, want := range cases {
		assert.Equal(t, want, set.Excludes(in), in)
	}
}

func TestExclusionSet_CopiesOnWrite(t *testing.T) {
	base := NewExclusionSet("grants.gov")

	more := base.With("linkedin.com")
	fewer := base.Without("grants.gov")

	assert.Equal(t, []string{"grants.gov"}, base.Hosts())
	assert.Equal(t, []string{"grants.gov", "linkedin.com"}, more.Hosts())
	assert.Zero(t, fewer.Len())
	assert.True(t, base.Excludes("grants.gov"))
	assert.False(t, fewer.Excludes("grants.gov"))
}

func TestExclusionSet_ZeroValue(t *testing.T) {
	var set ExclusionSet
	assert.False(t, set.Excludes("https://grants.gov"))
	assert.True(t, set.With("grants.gov").Excludes("https://grants.gov"))
}

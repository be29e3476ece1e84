package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/funding-scout/internal/models"
)

func TestLoadDomainRegistry_Embedded(t *testing.T) {
	reg, err := LoadDomainRegistry("")
	require.NoError(t, err)

	assert.Equal(t, []string{"grants.gov", "sam.gov"}, reg.Domains(models.SourceGovernment, 2))
	assert.NotEmpty(t, reg.Domains(models.SourceFoundation, 10))
	assert.Empty(t, reg.Domains(models.SourceGovernment, 0))

	ex := reg.Exclusions("Example.com")
	assert.True(t, ex.Excludes("https://www.grants.gov/web"))
	assert.True(t, ex.Excludes("https://example.com/x"))
	assert.False(t, ex.Excludes("https://nsf.gov/funding"))
}

func TestLoadDomainRegistry_FileWithEnv(t *testing.T) {
	t.Setenv("EXTRA_FUNDER", "funder.example.org")
	path := filepath.Join(t.TempDir(), "domains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
priority_domains:
  foundation:
    - https://www.${EXTRA_FUNDER}/
excluded_domains:
  - spam.example.com
`), 0o644))

	reg, err := LoadDomainRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"funder.example.org"}, reg.Domains(models.SourceFoundation, 3))
	assert.True(t, reg.Exclusions().Excludes("spam.example.com"))
}

func TestDomainRegistry_Nil(t *testing.T) {
	var reg *DomainRegistry
	assert.Nil(t, reg.Domains(models.SourceGovernment, 3))
	assert.True(t, reg.Exclusions("x.com").Excludes("https://x.com"))
}

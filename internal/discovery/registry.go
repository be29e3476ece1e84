package discovery

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/david/funding-scout/internal/models"
)

//go:embed config/domains.yaml
var domainsYAML embed.FS

// DomainRegistry lists funder domains per source category and the default
// exclusion set.
type DomainRegistry struct {
	PriorityDomains map[models.SourceCategory][]string `yaml:"priority_domains"`
	ExcludedDomains []string                           `yaml:"excluded_domains"`
}

// LoadDomainRegistry reads the embedded domains.yaml, or the file at path
// when one is given.
func LoadDomainRegistry(path string) (*DomainRegistry, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = domainsYAML.ReadFile("config/domains.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read domain registry: %w", err)
	}

	// Expand environment variables within the YAML content (e.g. ${EXTRA_DOMAIN})
	expanded := os.ExpandEnv(string(data))

	var reg DomainRegistry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("failed to parse domain registry: %w", err)
	}

	for cat, domains := range reg.PriorityDomains {
		cleaned := domains[:0]
		for _, d := range domains {
			if d = normalizeHost(d); d != "" {
				cleaned = append(cleaned, d)
			}
		}
		reg.PriorityDomains[cat] = cleaned
	}
	return &reg, nil
}

// Domains returns up to n priority domains for a category.
func (r *DomainRegistry) Domains(cat models.SourceCategory, n int) []string {
	if r == nil || n <= 0 {
		return nil
	}
	domains := r.PriorityDomains[models.SourceCategory(strings.ToLower(string(cat)))]
	if len(domains) > n {
		domains = domains[:n]
	}
	return domains
}

// Exclusions builds the default exclusion set from the registry plus extra
// hosts from configuration.
func (r *DomainRegistry) Exclusions(extra ...string) ExclusionSet {
	var base []string
	if r != nil {
		base = r.ExcludedDomains
	}
	return NewExclusionSet(base...).With(extra...)
}

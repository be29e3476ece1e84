package discovery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/david/funding-scout/internal/ai"
)

const MaxExpandedQueries = 35

// Query kinds, recorded on each WeightedQuery.
const (
	KindSeed     = "seed"
	KindTopic    = "topic"
	KindOrgType  = "organization_type"
	KindSource   = "source_category"
	KindAmount   = "amount_tier"
	KindYear     = "year"
	KindResource = "resource"
	KindSite     = "site"
)

type WeightedQuery struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
	Kind   string  `json:"kind"`
}

type ExpandInput struct {
	Seed             string
	Projects         []ai.ProjectBrief
	OrganizationType string
	ResourceOnly     bool
	// Year feeds the current-year variants. Zero skips them.
	Year int
}

var sourceModifiers = []string{
	"government grant",
	"foundation grant",
	"corporate giving program",
	"international funding",
	"university research grant",
}

var resourceModifiers = []string{
	"cloud credits",
	"in-kind donation",
	"technical assistance",
	"software donation nonprofit",
	"mentorship program",
	"equipment donation",
}

// ExpandQueries turns a seed query and its context into at most
// MaxExpandedQueries search strings, ordered by weight. It is a pure function
// of its input.
func ExpandQueries(in ExpandInput) []WeightedQuery {
	seed := strings.Join(strings.Fields(in.Seed), " ")
	if seed == "" {
		for _, p := range in.Projects {
			if seed = firstNonEmpty(p.Category, p.Name); seed != "" {
				break
			}
		}
	}
	if seed == "" {
		return nil
	}

	var out []WeightedQuery
	seen := make(map[string]bool)
	add := func(text string, weight float64, kind string) {
		text = strings.Join(strings.Fields(text), " ")
		key := strings.ToLower(text)
		if text == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, WeightedQuery{Text: text, Weight: weight, Kind: kind})
	}

	add(seed, 1.0, KindSeed)

	var total float64
	for _, p := range in.Projects {
		total += p.FundingRequestAmount
		if p.Category != "" {
			add(seed+" "+p.Category+" grant", 0.9, KindTopic)
		}
		for _, g := range firstN(p.Goals, 2) {
			add(seed+" "+g, 0.9, KindTopic)
		}
		for _, kw := range firstN(p.Keywords, 3) {
			add(seed+" "+kw+" funding", 0.9, KindTopic)
		}
		for _, ft := range firstN(p.PreferredFundingTypes, 2) {
			add(seed+" "+ft, 0.9, KindTopic)
		}
	}

	if in.ResourceOnly {
		for _, m := range resourceModifiers {
			add(seed+" "+m, 0.85, KindResource)
		}
	}

	if org := strings.TrimSpace(strings.ReplaceAll(in.OrganizationType, "_", " ")); org != "" {
		add(seed+" grants for "+org, 0.8, KindOrgType)
		add(org+" funding "+seed, 0.8, KindOrgType)
	}

	for _, m := range sourceModifiers {
		add(seed+" "+m, 0.7, KindSource)
	}

	for _, tier := range amountTierTerms(total) {
		add(seed+" "+tier, 0.6, KindAmount)
	}

	if in.Year > 0 {
		add(fmt.Sprintf("%s grants %d", seed, in.Year), 0.5, KindYear)
		add(fmt.Sprintf("%s funding opportunities %d", seed, in.Year), 0.5, KindYear)
		add(fmt.Sprintf("%s call for proposals %d", seed, in.Year), 0.5, KindYear)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	if len(out) > MaxExpandedQueries {
		out = out[:MaxExpandedQueries]
	}
	return out
}

// amountTierTerms maps the summed funding need of all projects to search
// phrasing. Zero need yields no terms.
func amountTierTerms(total float64) []string {
	switch {
	case total <= 0:
		return nil
	case total < 25_000:
		return []string{"micro grant", "small grant"}
	case total < 250_000:
		return []string{"grant up to $250,000"}
	case total < 1_000_000:
		return []string{"large grant"}
	default:
		return []string{"major funding program"}
	}
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

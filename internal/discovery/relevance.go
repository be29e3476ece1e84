package discovery

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/david/funding-scout/internal/models"
	"github.com/david/funding-scout/internal/resource"
)

const (
	keywordWeight   = 0.2
	fundingWeight   = 0.15
	indicatorWeight = 0.1
	negativeWeight  = 0.3

	DefaultRelevanceThreshold = 0.4
	DefaultMaxExtractions     = 25
)

var fundingTerms = []string{
	"grant", "funding", "fund", "award", "fellowship", "scholarship", "sponsorship",
	"financial support", "rfp", "request for proposals", "call for proposals",
	"prize", "subsidy", "seed money", "credits", "in-kind",
}

var fundingOrgTokens = []string{
	"foundation", "trust", "endowment", "council", "agency", "department of",
	"ministry", "philanthropy", "charitable", "commission", "institute",
}

var indicatorTerms = []string{
	"apply", "application", "deadline", "eligible", "eligibility", "submit",
	"proposal", "open call", "now accepting", "how to apply", "guidelines", "program",
}

var negativeTerms = []string{
	"news", "blog", "job", "career", "hiring", "obituary", "lawsuit",
	"scam", "closed", "winners announced", "awarded to", "recipients announced",
	"press release", "forum", "wikipedia",
}

var (
	directoryTitle = regexp.MustCompile(`(?i)(\btop \d+\b|\b\d+ best\b|\blist of\b|\bdirectory\b|\bdatabase of (grants|funders)\b|\bgrant databases?\b)`)
	directoryPath  = regexp.MustCompile(`(?i)/(tag|tags|category|categories|search)(/|$)`)
)

type FilterInput struct {
	Keywords     []string
	ResourceOnly bool
	Exclusions   ExclusionSet
}

type FilterStats struct {
	Input       int `json:"input"`
	NoSignal    int `json:"no_signal"`
	Directory   int `json:"directory"`
	Excluded    int `json:"excluded"`
	NotResource int `json:"not_resource"`
	BelowScore  int `json:"below_score"`
	Capped      int `json:"capped"`
	Kept        int `json:"kept"`
}

// RelevanceFilter ranks raw search hits with a cheap lexical score.
type RelevanceFilter struct {
	Threshold  float64
	MaxResults int
}

func NewRelevanceFilter() *RelevanceFilter {
	return &RelevanceFilter{Threshold: DefaultRelevanceThreshold, MaxResults: DefaultMaxExtractions}
}

// Filter keeps hits that pass the boolean stage and score at or above the
// threshold, sorted by score descending (ties keep input order) and capped.
func (f *RelevanceFilter) Filter(results []models.SearchResult, in FilterInput) ([]models.SearchResult, FilterStats) {
	stats := FilterStats{Input: len(results)}
	keywords := lowerAll(in.Keywords)

	var kept []models.SearchResult
	for _, r := range results {
		text := strings.ToLower(r.Title + " " + r.Snippet)

		if in.Exclusions.Excludes(r.URL) {
			stats.Excluded++
			continue
		}

		var resourceTypes []string
		if in.ResourceOnly {
			isResource, types := resource.IsNonMonetary(resource.Classify(r.Title, r.Snippet))
			if !isResource {
				stats.NotResource++
				continue
			}
			resourceTypes = types
		} else if countTerms(text, fundingTerms) == 0 && countTerms(text, fundingOrgTokens) == 0 {
			stats.NoSignal++
			continue
		}

		if isDirectory(r) {
			stats.Directory++
			continue
		}

		score := relevanceScore(text, keywords, len(resourceTypes))
		if score < f.Threshold {
			stats.BelowScore++
			continue
		}
		r.Relevance = score
		kept = append(kept, r)
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Relevance > kept[j].Relevance })
	if f.MaxResults > 0 && len(kept) > f.MaxResults {
		stats.Capped = len(kept) - f.MaxResults
		kept = kept[:f.MaxResults]
	}
	stats.Kept = len(kept)

	zap.S().Named("relevance").Infow("relevance filter finished",
		"input", stats.Input,
		"kept", stats.Kept,
		"no_signal", stats.NoSignal,
		"directory", stats.Directory,
		"excluded", stats.Excluded,
		"not_resource", stats.NotResource,
		"below_score", stats.BelowScore,
	)
	return kept, stats
}

// relevanceScore is kw*0.2 + funding*0.15 + indicator*0.1 - negative*0.3,
// clamped to [0,1]. Resource types count as funding terms.
func relevanceScore(text string, keywords []string, resourceHits int) float64 {
	score := float64(countTerms(text, keywords))*keywordWeight +
		float64(countTerms(text, fundingTerms)+resourceHits)*fundingWeight +
		float64(countTerms(text, indicatorTerms))*indicatorWeight -
		float64(countTerms(text, negativeTerms))*negativeWeight

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func isDirectory(r models.SearchResult) bool {
	if directoryTitle.MatchString(r.Title) {
		return true
	}
	if u, err := url.Parse(r.URL); err == nil && directoryPath.MatchString(u.Path) {
		return true
	}
	return false
}

// countTerms counts distinct terms that occur in text on word boundaries.
func countTerms(text string, terms []string) int {
	n := 0
	for _, t := range terms {
		if t != "" && containsWord(text, t) {
			n++
		}
	}
	return n
}

func containsWord(text, term string) bool {
	for from := 0; ; {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end]) || text[end] == 's') {
			return true
		}
		from = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func lowerAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.ToLower(strings.TrimSpace(it)); it != "" {
			out = append(out, it)
		}
	}
	return out
}

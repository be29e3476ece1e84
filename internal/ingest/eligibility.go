package ingest

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxEligibilityCriteria = 10
	maxCriterionChars      = 200
	// bare headings such as "Who can apply" are shorter than this
	minSentenceChars = 25
)

var eligibilityHeading = regexp.MustCompile(`(?i)(eligib|who can apply|who may apply|who should apply|applicant requirements|requirements)`)

// Eligibility regex families, applied sentence by sentence.
var eligibilityFamilies = []*regexp.Regexp{
	// organization types named alongside an eligibility verb
	regexp.MustCompile(`(?i)\b(eligible|open to|applicants?|available to|restricted to|limited to)\b.*\b(501\(c\)\(3\)|nonprofits?|non-profits?|not-for-profit|charit(y|ies)|small business(es)?|universit(y|ies)|colleges?|tribal|municipalit(y|ies)|local governments?|school districts?|startups?|social enterprises?|faith-based)\b`),
	regexp.MustCompile(`(?i)\b(501\(c\)\(3\)|nonprofits?|non-profits?|small business(es)?|universit(y|ies)|tribal|municipalit(y|ies)|startups?)\b.*\b(are eligible|may apply|can apply|are invited to apply)\b`),
	// geographic restrictions
	regexp.MustCompile(`(?i)\b(must be (located|based) in|residents? of|headquartered in|serving communities in|operating in|registered in)\b`),
	// explicit requirements
	regexp.MustCompile(`(?i)\b(applicants must|must have|must be a|required to|applicants should|must demonstrate|must provide|must hold)\b`),
	// generic eligibility statements
	regexp.MustCompile(`(?i)\b(eligibility|eligible applicants|who can apply)\b`),
}

// ExtractEligibility collects eligibility criteria from list items under an
// eligibility heading and from sentences matching the eligibility families.
// Call it on a document already passed through cleanDocument.
func ExtractEligibility(doc *goquery.Document) []string {
	var criteria []string

	doc.Find("h1, h2, h3, h4, h5, h6, strong, b, dt").Each(func(_ int, heading *goquery.Selection) {
		if len(criteria) >= maxEligibilityCriteria {
			return
		}
		if !eligibilityHeading.MatchString(heading.Text()) || charCount(normalizeSpace(heading.Text())) > 80 {
			return
		}

		list := heading.NextAllFiltered("ul, ol").First()
		if list.Length() == 0 {
			list = heading.Parent().NextAllFiltered("ul, ol").First()
		}
		list.Find("li").Each(func(_ int, li *goquery.Selection) {
			criteria = addCriterion(criteria, li.Text())
		})
	})

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	return eligibilityFromLines(criteria, textLines(body))
}

// eligibilityFromLines appends sentences that match an eligibility family
// until the cap is reached.
func eligibilityFromLines(criteria []string, lines []string) []string {
	for _, s := range sentences(lines) {
		if len(criteria) >= maxEligibilityCriteria {
			break
		}
		if charCount(s) < minSentenceChars {
			continue
		}
		for _, re := range eligibilityFamilies {
			if re.MatchString(s) {
				criteria = addCriterion(criteria, s)
				break
			}
		}
	}
	return criteria
}

func addCriterion(criteria []string, raw string) []string {
	if len(criteria) >= maxEligibilityCriteria {
		return criteria
	}
	s := normalizeSpace(raw)
	if charCount(s) < 12 {
		return criteria
	}
	return appendUnique(criteria, truncateText(s, maxCriterionChars))
}

var pdfGuidelineHint = regexp.MustCompile(`(?i)(guideline|eligib|rfp|request for (proposals|applications)|call for (proposals|applications)|instructions|handbook|notice of funding)`)

// guidelinePDFLink returns the first linked PDF whose anchor text or path
// suggests it holds application guidelines.
func guidelinePDFLink(doc *goquery.Document, baseURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		lower := strings.ToLower(href)
		if !strings.Contains(lower, ".pdf") {
			return true
		}
		if !pdfGuidelineHint.MatchString(a.Text()) && !pdfGuidelineHint.MatchString(lower) {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		found = base.ResolveReference(ref).String()
		return false
	})
	return found
}

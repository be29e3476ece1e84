package ingest

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

const (
	MaxExcerptChars = 2000
	MinContentChars = 300
)

const boilerplateSelector = "script, style, nav, header, footer, aside, noscript, iframe, svg, form"

const blockSelector = "p, li, h1, h2, h3, h4, h5, h6, tr, dt, dd, div, section, article, blockquote"

const genericContentSelector = "main, article, [role=main], #content, .content, .main-content"

// Funding section families. A sentence is kept when any of them matches.
var fundingSectionPatterns = map[string]*regexp.Regexp{
	"amount":      regexp.MustCompile(`(?i)((us\$|\$|€|£)\s?\d|\b\d[\d,\.]*\s?(usd|eur|gbp)\b|\b(up to|maximum of|awards? of|grants? of|ranging from|funding of|award amount)\b)`),
	"deadline":    regexp.MustCompile(`(?i)\b(deadline|due date|due by|closing date|closes on|close on|submission date|applications? (are )?due|accepting applications until|letters? of inquiry)\b`),
	"eligibility": regexp.MustCompile(`(?i)\b(eligib\w*|who can apply|who may apply|applicants must|open to|restricted to|limited to)\b`),
}

var sentenceSplit = regexp.MustCompile(`([.!?;])\s+`)

var strictPolicy = bluemonday.StrictPolicy()

// ExtractionMethod records which fallback produced an excerpt.
type ExtractionMethod string

const (
	MethodFundingSections ExtractionMethod = "funding_sections"
	MethodGenericContent  ExtractionMethod = "generic_content"
	MethodFullPage        ExtractionMethod = "full_page"
)

// cleanDocument removes boilerplate elements and HTML comments, then marks
// block boundaries with newlines so Text() keeps sentences apart.
func cleanDocument(doc *goquery.Document) {
	doc.Find(boilerplateSelector).Remove()
	removeComments(doc.Selection)
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("th, td").AppendHtml(" | ")
	doc.Find(blockSelector).AppendHtml("\n")
}

func removeComments(sel *goquery.Selection) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#comment" {
			s.Remove()
			return
		}
		removeComments(s)
	})
}

// textLines returns the non-empty, whitespace-normalised lines of a selection.
func textLines(sel *goquery.Selection) []string {
	var out []string
	for _, line := range strings.Split(sel.Text(), "\n") {
		if line = strings.TrimRight(normalizeSpace(line), " |"); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// sentences splits lines further on sentence punctuation.
func sentences(lines []string) []string {
	var out []string
	for _, line := range lines {
		marked := sentenceSplit.ReplaceAllString(line, "$1\n")
		for _, s := range strings.Split(marked, "\n") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// fundingSections keeps, in document order, every sentence that matches a
// funding section pattern.
func fundingSections(lines []string) string {
	var kept []string
	seen := make(map[string]bool)
	for _, s := range sentences(lines) {
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		for _, re := range fundingSectionPatterns {
			if re.MatchString(s) {
				kept = append(kept, s)
				seen[key] = true
				break
			}
		}
	}
	return strings.Join(kept, "\n")
}

// extractFundingText runs the three extraction strategies in order and
// returns the first excerpt long enough to carry signal. The final fallback is
// returned even when short so the caller can report why it was dropped.
func extractFundingText(doc *goquery.Document) (string, ExtractionMethod) {
	cleanDocument(doc)
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}

	if text := fundingSections(textLines(body)); charCount(text) >= MinContentChars {
		return truncateText(text, MaxExcerptChars), MethodFundingSections
	}

	if main := doc.Find(genericContentSelector).First(); main.Length() > 0 {
		if text := strings.Join(textLines(main), "\n"); charCount(text) >= MinContentChars {
			return truncateText(text, MaxExcerptChars), MethodGenericContent
		}
	}

	return truncateText(stripTags(doc), MaxExcerptChars), MethodFullPage
}

// stripTags renders the cleaned document through a strict sanitizer, which
// drops every tag and keeps only text.
func stripTags(doc *goquery.Document) string {
	raw, err := doc.Html()
	if err != nil {
		return normalizeSpace(doc.Text())
	}
	return normalizeSpace(html.UnescapeString(strictPolicy.Sanitize(raw)))
}

// SanitizeDescription strips markup from text destined for storage.
func SanitizeDescription(s string) string {
	return normalizeSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

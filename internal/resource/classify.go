// Package resource decides whether an opportunity offers money or
// non-monetary support. Filtering, analysis and storage all use Classify so
// they agree on the answer.
package resource

import (
	"sort"
	"strings"
)

// Class is either Monetary or NonMonetaryResource.
type Class interface {
	isClass()
}

type Monetary struct{}

// NonMonetaryResource lists the resource kinds that were detected, sorted.
type NonMonetaryResource struct {
	Types []string
}

func (Monetary) isClass()            {}
func (NonMonetaryResource) isClass() {}

// resourceVocabulary maps a resource type to the phrases that signal it.
var resourceVocabulary = map[string][]string{
	"cloud_credits":        {"cloud credits", "cloud credit", "aws credits", "azure credits", "gcp credits", "google cloud credits", "compute credits", "api credits"},
	"software":             {"software donation", "donated software", "free licenses", "software grant", "nonprofit license", "licenses donated"},
	"in_kind":              {"in-kind", "in kind", "donated goods", "product donation", "donated services"},
	"mentorship":           {"mentorship", "mentoring", "mentor network", "coaching"},
	"technical_assistance": {"technical assistance", "capacity building", "consulting support", "pro bono", "pro-bono"},
	"equipment":            {"equipment donation", "donated equipment", "hardware donation", "equipment loan", "refurbished computers"},
	"accelerator":          {"accelerator", "incubator", "residency program"},
	"advertising":          {"ad grants", "advertising credits", "free advertising"},
	"training":             {"free training", "training program", "workshops", "bootcamp"},
	"space":                {"free office space", "co-working", "coworking", "donated space"},
}

// bareSignals are single resource keywords. They only count when no phrase
// from resourceVocabulary matched, and map to the type listed here.
var bareSignals = []struct{ keyword, kind string }{
	{"credits", "credits"},
	{"donated", "in_kind"},
}

// Classify inspects the given texts together. Any resource phrase or bare
// resource keyword yields NonMonetaryResource; monetary vocabulary alone
// yields Monetary.
func Classify(texts ...string) Class {
	haystack := strings.ToLower(strings.Join(texts, " "))

	var types []string
	for kind, phrases := range resourceVocabulary {
		for _, p := range phrases {
			if strings.Contains(haystack, p) {
				types = append(types, kind)
				break
			}
		}
	}

	if len(types) == 0 {
		types = bareSignalTypes(haystack)
	}
	if len(types) == 0 {
		return Monetary{}
	}
	sort.Strings(types)
	return NonMonetaryResource{Types: types}
}

// IsNonMonetary unpacks a Class into the flag + types pair stored on records.
func IsNonMonetary(c Class) (bool, []string) {
	if r, ok := c.(NonMonetaryResource); ok {
		return true, r.Types
	}
	return false, nil
}

func bareSignalTypes(haystack string) []string {
	var types []string
	for _, sig := range bareSignals {
		if hasWord(haystack, sig.keyword) {
			types = append(types, sig.kind)
		}
	}
	return types
}

// hasWord matches word on word boundaries so "accredits" is not "credits".
func hasWord(text, word string) bool {
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(word)
		if (start == 0 || !isLetter(text[start-1])) && (end == len(text) || !isLetter(text[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// KnownType normalises a free-form resource label ("Cloud Credits") to one of
// the classifier's type names. ok is false for labels it does not know.
func KnownType(label string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if _, ok := resourceVocabulary[key]; ok || key == "credits" {
		return key, true
	}
	for kind, phrases := range resourceVocabulary {
		for _, p := range phrases {
			if strings.EqualFold(p, strings.TrimSpace(label)) {
				return kind, true
			}
		}
	}
	return "", false
}

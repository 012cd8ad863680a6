package feeds

import (
	"regexp"
	"strings"
)

// Keyword sets for topical relevance. STRONG keywords are sufficient in a
// title; SUPPORTING keywords are counted in the body (threshold 2 for South
// Sudan, 3 for Sudan-only).

var strongSouthSudan = []string{
	"south sudan",
	"salva kiir",
	"riek machar",
	"unmiss",
	"splm-io",
	"sspdf",
	"juba government",
}

var strongSudan = []string{
	"sudan war",
	"sudan conflict",
	"khartoum",
	"rsf",
	"rapid support forces",
	"al-burhan",
	"burhan",
	"hemedti",
	"darfur",
	"port sudan",
	"sudanese army",
}

var supportingSouthSudan = []string{
	"kiir", "machar", "juba", "malakal", "bentiu", "bor", "wau", "torit",
	"jonglei", "unity state", "upper nile", "equatoria", "warrap", "abyei",
	"bahr el ghazal", "splm", "spla", "sspdf", "unmiss", "pibor", "renk",
}

var supportingSudan = []string{
	"khartoum", "omdurman", "darfur", "el fasher", "nyala", "el geneina",
	"port sudan", "kassala", "gezira", "wad madani", "kordofan", "blue nile",
	"burhan", "hemedti", "rsf", "saf", "sudanese armed forces",
	"rapid support", "el obeid", "sennar",
}

var shortKeywordRe = map[string]*regexp.Regexp{}

func init() {
	for _, set := range [][]string{strongSouthSudan, strongSudan, supportingSouthSudan, supportingSudan} {
		for _, k := range set {
			if len(k) <= 3 && !strings.Contains(k, " ") {
				shortKeywordRe[k] = regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
			}
		}
	}
}

// matchKeyword matches case-insensitively. Short tokens (<=3, e.g. "rsf")
// require word boundaries so they don't fire inside unrelated words.
func matchKeyword(text, k string) bool {
	if re, ok := shortKeywordRe[k]; ok {
		return re.MatchString(text)
	}
	return strings.Contains(text, k)
}

func containsKeyword(text string, keywords []string) bool {
	for _, k := range keywords {
		if matchKeyword(text, k) {
			return true
		}
	}
	return false
}

// countKeywords counts how many distinct keywords appear in the text.
func countKeywords(text string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if matchKeyword(text, k) {
			n++
		}
	}
	return n
}

// Relevant decides whether an item is about South Sudan or Sudan.
//
// Rules, in order:
//   - STRONG match in title accepts.
//   - "sudan" in the title without "south sudan" accepts with >=2 supporting
//     Sudan keywords in the body.
//   - >=2 supporting South Sudan keywords in the body accept.
//   - >=3 supporting Sudan keywords in the body accept.
func Relevant(title, body string) bool {
	title = strings.ToLower(title)
	body = strings.ToLower(body)

	if containsKeyword(title, strongSouthSudan) || containsKeyword(title, strongSudan) {
		return true
	}

	if strings.Contains(title, "sudan") && !strings.Contains(title, "south sudan") {
		if countKeywords(body, supportingSudan) >= 2 {
			return true
		}
	}

	if countKeywords(body, supportingSouthSudan) >= 2 {
		return true
	}
	if countKeywords(body, supportingSudan) >= 3 {
		return true
	}

	return false
}

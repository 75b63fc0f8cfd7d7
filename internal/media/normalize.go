package media

import (
	"strings"
	"unicode"
)

// leadingArticles are stripped from the front of titles before comparison.
// Covers English and French, the two languages the libraries mix.
var leadingArticles = []string{"the ", "a ", "an ", "le ", "la ", "les ", "un ", "une "}

// NormalizeTitle folds a title for fuzzy comparison: lower-cased, leading
// article stripped, non-alphanumeric characters removed, whitespace collapsed.
func NormalizeTitle(title string) string {
	t := strings.ToLower(title)

	for _, article := range leadingArticles {
		if strings.HasPrefix(t, article) {
			t = t[len(article):]
			break
		}
	}

	var b strings.Builder
	b.Grow(len(t))
	for _, r := range t {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

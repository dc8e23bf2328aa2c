package textutil

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/width"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// matched after width folding, so fullwidth （） are already ASCII
var annotationRegex = regexp.MustCompile(`\([^()]*\)|【[^【】]*】|\[[^\[\]]*\]`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// NormalizeTitle folds full/half width variants, strips bracketed
// annotations such as "（締切6/20）" and removes all whitespace, so a
// dashboard label and a course page link can be compared directly.
func NormalizeTitle(title string) string {
	title = width.Fold.String(title)
	for {
		stripped := annotationRegex.ReplaceAllString(title, "")
		if stripped == title {
			break
		}
		title = stripped
	}
	return NormalizeName(title)
}

func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, NormalizeName(m)) {
			return true
		}
	}
	return false
}

// MinPartialLength is the shortest overlap (in runes) accepted as a partial
// title match.
const MinPartialLength = 2

// BestMatch returns the index of the candidate that best matches target
// after NormalizeTitle: an exact match wins, otherwise the candidate with
// the longest containment overlap, with ties going to the higher
// Jaro-Winkler similarity. It returns -1 when nothing matches.
func BestMatch(target string, candidates []string) int {
	normTarget := NormalizeTitle(target)
	if normTarget == "" {
		return -1
	}

	normalized := make([]string, len(candidates))
	for i, c := range candidates {
		normalized[i] = NormalizeTitle(c)
		if normalized[i] == normTarget {
			return i
		}
	}

	best := -1
	bestOverlap := 0
	bestSimilarity := 0.0
	for i, c := range normalized {
		if c == "" {
			continue
		}
		overlap := 0
		switch {
		case strings.Contains(c, normTarget):
			overlap = utf8.RuneCountInString(normTarget)
		case strings.Contains(normTarget, c):
			overlap = utf8.RuneCountInString(c)
		}
		if overlap < MinPartialLength {
			continue
		}
		similarity := matchr.JaroWinkler(normTarget, c, false)
		if overlap > bestOverlap || (overlap == bestOverlap && similarity > bestSimilarity) {
			best = i
			bestOverlap = overlap
			bestSimilarity = similarity
		}
	}
	return best
}

package matching

import (
	"math"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// tokenFloor is the minimum per-token similarity counted as a token match (absorbs OCR typos)
const tokenFloor = 0.75

var stopWords = map[string]bool{
	"de": true, "la": true, "el": true, "en": true, "y": true, "a": true,
	"un": true, "una": true, "con": true, "por": true, "para": true,
	"los": true, "las": true, "del": true, "al": true,
}

var legalSuffixes = map[string]bool{
	"ltda": true, "limitada": true, "spa": true, "sa": true, "eirl": true,
	"inc": true, "ltd": true, "llc": true, "cia": true, "sociedad": true,
}

// NormalizeText folds accents, lowercases and replaces punctuation with single spaces
func NormalizeText(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space && b.Len() > 0 {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// NormalizeTaxID keeps only digits and letters, uppercased: "76.123.456-k" -> "76123456K"
func NormalizeTaxID(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeSupplierName drops company suffixes and stop words
func NormalizeSupplierName(s string) string {
	return strings.Join(tokens(s, true), " ")
}

// NormalizeProductName drops stop words but keeps units and sizes
func NormalizeProductName(s string) string {
	return strings.Join(tokens(s, false), " ")
}

func tokens(s string, dropLegal bool) []string {
	// "S.A." and "S. A." collapse to "s a" after normalization
	fields := strings.Fields(NormalizeText(s))
	out := make([]string, 0, len(fields))
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if dropLegal && f == "s" && i+1 < len(fields) && fields[i+1] == "a" {
			i++
			continue
		}
		if stopWords[f] || (dropLegal && legalSuffixes[f]) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Similarity scores two product descriptions in [0,1]
func Similarity(a, b string) float64 {
	return score(tokens(a, false), tokens(b, false))
}

// SupplierSimilarity scores two supplier names in [0,1], ignoring company suffixes
func SupplierSimilarity(a, b string) float64 {
	return score(tokens(a, true), tokens(b, true))
}

// score blends token overlap with whole-string edit similarity. Strings that share
// no token at all score 0 so that unrelated names never reach the suggestion floor.
func score(ta, tb []string) float64 {
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	ja, jb := strings.Join(ta, " "), strings.Join(tb, " ")
	if ja == jb {
		return 1
	}

	short, long := ta, tb
	if len(short) > len(long) {
		short, long = long, short
	}

	used := make([]bool, len(long))
	var matched float64
	for _, s := range short {
		best, idx := 0.0, -1
		for j, l := range long {
			if used[j] {
				continue
			}
			if sim := tokenSimilarity(s, l); sim > best {
				best, idx = sim, j
			}
		}
		if best >= tokenFloor {
			matched += best
			used[idx] = true
		}
	}
	if matched == 0 {
		return 0
	}

	containment := matched / float64(len(short))
	dice := 2 * matched / float64(len(ta)+len(tb))
	tokenScore := (containment + dice) / 2

	charScore := levenshtein.Similarity(ja, jb, nil)
	return round3(math.Max(tokenScore, charScore))
}

func tokenSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	return levenshtein.Similarity(a, b, nil)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

// Package names turns raw source spellings of fighter names into stable
// matching keys.
package names

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"

	"github.com/balaustrada/ufcscraper/pkg/errors"
)

// Normalized is the canonical form of a name. Key is what matching compares;
// Suffix is detected and held separately so "Jon Jones Jr" and "Jon Jones"
// normalize to the same key but remain distinguishable.
type Normalized struct {
	Raw    string
	Key    string
	Tokens []string
	Suffix string
}

var (
	doubleQuoted = regexp.MustCompile(`"[^"]*"`)
	singleQuoted = regexp.MustCompile(`(^|\s)'[^']*'(\s|$)`)
)

// Generational suffixes are kept off the matching key. Indexed by the token
// as it appears after lowercasing and punctuation collapse.
var suffixTokens = map[string]bool{
	"jr":  true,
	"sr":  true,
	"ii":  true,
	"iii": true,
	"iv":  true,
	"v":   true,
}

// Normalize produces the matching form of a raw name. It lowercases,
// transliterates diacritics, drops quoted nicknames, collapses punctuation
// and whitespace, and splits off a trailing generational suffix. The result
// depends only on the input.
func Normalize(raw string) (Normalized, error) {
	s := unidecode.Unidecode(raw)
	s = strings.ToLower(s)

	// Quoted nicknames carry no identity: `Quinton "Rampage" Jackson` and
	// `Quinton Jackson` are the same person. Single quotes are only treated
	// as nickname markers at word boundaries so O'Malley keeps its apostrophe
	// until punctuation collapse.
	s = doubleQuoted.ReplaceAllString(s, " ")
	s = singleQuoted.ReplaceAllString(s, " ")

	tokens := tokenize(s)
	if len(tokens) == 0 {
		return Normalized{}, errors.NewNormalizationError(raw, "no name content after normalization")
	}

	suffix := ""
	if len(tokens) > 1 && suffixTokens[tokens[len(tokens)-1]] {
		suffix = tokens[len(tokens)-1]
		tokens = tokens[:len(tokens)-1]
	}

	return Normalized{
		Raw:    raw,
		Key:    strings.Join(tokens, " "),
		Tokens: tokens,
		Suffix: suffix,
	}, nil
}

// Key normalizes without suffix handling and never fails. It is used for
// event names and other non-person strings where an empty result is just an
// empty key.
func Key(raw string) string {
	s := unidecode.Unidecode(raw)
	s = strings.ToLower(s)
	return strings.Join(tokenize(s), " ")
}

// FromKey rebuilds a Normalized from a key that Normalize already produced,
// such as one stored on a fighter row. The key is trusted as-is.
func FromKey(key string, suffix string) Normalized {
	return Normalized{
		Raw:    key,
		Key:    key,
		Tokens: strings.Fields(key),
		Suffix: suffix,
	}
}

// tokenize replaces every non-alphanumeric rune with a space and splits.
// Punctuation becoming a separator keeps hyphenated and apostrophized names
// comparable across sources that disagree on the punctuation.
func tokenize(s string) []string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

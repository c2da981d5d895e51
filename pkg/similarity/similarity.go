// Package similarity scores how alike two normalized names are.
package similarity

import (
	"sort"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/balaustrada/ufcscraper/pkg/names"
)

// Scorer compares normalized names and returns a bounded score. It is
// stateless; one instance can be shared freely.
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score returns a similarity in [0,1]. Identical keys score exactly 1.0.
// The score is the best of four views of the pair: the raw edit-distance
// ratio, the same ratio over alphabetically sorted tokens (tolerates
// swapped given/family names), a greedy token alignment (tolerates
// abbreviated tokens like "Jon" for "Jonathan"), and, when the names share
// at least one exact token to anchor them, the Jaro-Winkler similarity of
// the full keys. Every view is symmetric, so Score(a,b) == Score(b,a).
func (s *Scorer) Score(a, b names.Normalized) float64 {
	if a.Key == b.Key {
		return 1.0
	}
	if a.Key == "" || b.Key == "" {
		return 0.0
	}

	score := EditRatio(a.Key, b.Key)
	score = maxf(score, EditRatio(sortedKey(a.Tokens), sortedKey(b.Tokens)))
	score = maxf(score, alignTokens(a.Tokens, b.Tokens))
	if sharesToken(a.Tokens, b.Tokens) {
		score = maxf(score, matchr.JaroWinkler(a.Key, b.Key, false))
	}

	// Only identical keys may report a perfect score.
	if score >= 1.0 {
		score = 0.999
	}
	return score
}

// ScoreStrings normalizes both inputs and scores them. Inputs that cannot
// be normalized score 0.
func (s *Scorer) ScoreStrings(a, b string) float64 {
	na, err := names.Normalize(a)
	if err != nil {
		return 0.0
	}
	nb, err := names.Normalize(b)
	if err != nil {
		return 0.0
	}
	return s.Score(na, nb)
}

// DateProximity scores how close two dates are, 1.0 for the same instant
// decaying linearly to 0.0 at window.
func (s *Scorer) DateProximity(a, b time.Time, window time.Duration) float64 {
	if a.IsZero() || b.IsZero() || window <= 0 {
		return 0.0
	}
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	if diff >= window {
		return 0.0
	}
	return 1.0 - float64(diff)/float64(window)
}

// EditRatio is the Levenshtein distance expressed as a similarity in [0,1].
func EditRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	distance := matchr.Levenshtein(a, b)
	if distance > maxLen {
		distance = maxLen
	}
	return 1.0 - float64(distance)/float64(maxLen)
}

// alignTokens greedily pairs the most similar tokens across the two names
// and averages the pair scores over the longer token count. Pairs below the
// pairing floor do not count at all, so names with disjoint token sets fall
// to zero instead of accumulating noise.
func alignTokens(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	const pairFloor = 0.8

	type pair struct {
		i, j  int
		score float64
	}
	pairs := make([]pair, 0, len(a)*len(b))
	for i, ta := range a {
		for j, tb := range b {
			score := tokenScore(ta, tb)
			if score >= pairFloor {
				pairs = append(pairs, pair{i: i, j: j, score: score})
			}
		}
	}

	sort.Slice(pairs, func(x, y int) bool {
		if pairs[x].score != pairs[y].score {
			return pairs[x].score > pairs[y].score
		}
		if pairs[x].i != pairs[y].i {
			return pairs[x].i < pairs[y].i
		}
		return pairs[x].j < pairs[y].j
	})

	usedA := make(map[int]bool, len(a))
	usedB := make(map[int]bool, len(b))
	total := 0.0
	for _, p := range pairs {
		if usedA[p.i] || usedB[p.j] {
			continue
		}
		usedA[p.i] = true
		usedB[p.j] = true
		total += p.score
	}

	return total / float64(max(len(a), len(b)))
}

// tokenScore compares two single tokens. Identical tokens are 1.0; a token
// that is a prefix of the other (an abbreviation) scores through
// Jaro-Winkler, which rewards the shared prefix.
func tokenScore(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return matchr.JaroWinkler(a, b, false)
}

func sortedKey(tokens []string) string {
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}

func sharesToken(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		if set[t] {
			return true
		}
	}
	return false
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

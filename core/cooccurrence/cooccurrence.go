package cooccurrence

import (
	"slices"
	"strings"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/siherrmann/keygrapher/model"
)

// MinValueLength is exclusive: a value must be longer than this many characters.
const MinValueLength = 2

// NounAdjectiveTags are the Penn Treebank tags of nouns and adjectives.
var NounAdjectiveTags = mapset.NewSet("NN", "NNS", "NNP", "NNPS", "JJ", "JJR", "JJS")

// Keep reports whether a token takes part in the co-occurrence graph.
func Keep(token *model.TaggedToken) bool {
	if token == nil {
		return false
	}
	return utf8.RuneCountInString(token.Text) > MinValueLength && token.HasAnyPOS(NounAdjectiveTags)
}

// Filter returns the kept tokens in their original order.
func Filter(tokens []*model.TaggedToken) []*model.TaggedToken {
	filtered := make([]*model.TaggedToken, 0, len(tokens))
	for _, t := range tokens {
		if Keep(t) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// Pairs returns the adjacent pairs of the filtered sequence of each sentence.
// Tokens must be ordered by sentence, then position. Pairs never cross a
// sentence boundary. The same pair is returned once per observation.
func Pairs(tokens []*model.TaggedToken) []model.TagPair {
	filtered := Filter(tokens)

	var pairs []model.TagPair
	for i := 0; i+1 < len(filtered); i++ {
		if filtered[i].SentenceIndex != filtered[i+1].SentenceIndex {
			continue
		}
		pairs = append(pairs, model.NewTagPair(filtered[i].Identity(), filtered[i+1].Identity()))
	}
	return pairs
}

// Weights counts how often each pair was observed, the weight a fresh
// build produces.
func Weights(pairs []model.TagPair) map[model.TagPair]int {
	weights := make(map[model.TagPair]int, len(pairs))
	for _, p := range pairs {
		weights[p]++
	}
	return weights
}

// PairWeight is a distinct pair with the number of times it was observed.
type PairWeight struct {
	Pair  model.TagPair
	Count int
}

// SortedWeights normalizes and aggregates the pairs, ordered by endpoints.
// Writers that apply edges in this order lock them in the same order.
func SortedWeights(pairs []model.TagPair) []PairWeight {
	normalized := make([]model.TagPair, len(pairs))
	for i, p := range pairs {
		normalized[i] = model.NewTagPair(p.A, p.B)
	}

	var sorted []PairWeight
	for pair, count := range Weights(normalized) {
		sorted = append(sorted, PairWeight{Pair: pair, Count: count})
	}
	slices.SortFunc(sorted, func(x, y PairWeight) int {
		if c := strings.Compare(x.Pair.A.String(), y.Pair.A.String()); c != 0 {
			return c
		}
		return strings.Compare(x.Pair.B.String(), y.Pair.B.String())
	})
	return sorted
}

// Identities returns the distinct identities of the kept tokens in order of
// first appearance.
func Identities(tokens []*model.TaggedToken) []model.TagIdentity {
	seen := mapset.NewThreadUnsafeSet[model.TagIdentity]()
	var identities []model.TagIdentity
	for _, t := range Filter(tokens) {
		id := t.Identity()
		if seen.Add(id) {
			identities = append(identities, id)
		}
	}
	return identities
}

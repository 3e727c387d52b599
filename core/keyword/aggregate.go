package keyword

import (
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/siherrmann/keygrapher/model"
)

const (
	// MaxSingleKeywords is the number of single tags always kept.
	MaxSingleKeywords = 8
	// MaxPhraseGap is the largest start-to-previous-end distance that still
	// continues a phrase, i.e. at most one separating character.
	MaxPhraseGap = 1

	startSentinel = -1000
)

// Options controls stopword filtering and the trailing phrase policy.
type Options struct {
	Stopwords       mapset.Set[string]
	RemoveStopwords bool
	// FlushTrailingPhrase also counts the phrase still open after the last
	// occurrence. It is off by default, dropping that phrase.
	FlushTrailingPhrase bool
}

// OptionsFromConfig takes the aggregation options out of an extraction config.
func OptionsFromConfig(config *model.ExtractionConfig) Options {
	return Options{
		Stopwords:           config.Stopwords,
		RemoveStopwords:     config.RemoveStopwords,
		FlushTrailingPhrase: config.FlushTrailingPhrase,
	}
}

func (o Options) isStopword(value string) bool {
	return o.RemoveStopwords && o.Stopwords != nil && o.Stopwords.Contains(strings.ToLower(value))
}

// Result of an aggregation.
type Result struct {
	// Counts maps every keyword key to its occurrence count.
	Counts map[string]int
	// Candidates holds the same keys in deterministic order: phrases in the
	// order they were closed, then single tags by score.
	Candidates []model.KeywordCandidate
	// Malformed lists identities whose value contains the separator.
	Malformed []string
}

type scoredTag struct {
	identity model.TagIdentity
	score    float64
}

// Aggregate merges adjacent spans into phrases and selects the top single tags.
// Spans must be ordered by start offset. The result only depends on the spans
// and their order.
func Aggregate(spans []model.SpanMatch, opts Options) *Result {
	r := &Result{Counts: make(map[string]int)}
	order := []string{}
	displays := map[string]string{}

	put := func(key, display string, count int) {
		if _, ok := r.Counts[key]; !ok {
			order = append(order, key)
			displays[key] = display
		}
		r.Counts[key] = count
	}

	flush := func(phrase, lang string) {
		if len(strings.Fields(phrase)) <= 1 {
			return
		}
		key := model.PhraseKey(phrase, lang)
		put(key, phrase, r.Counts[key]+1)
	}

	prevEnd := startSentinel
	phrase := ""
	lang := ""
	scores := []scoredTag{}
	seen := map[model.TagIdentity]int{}

	for _, s := range spans {
		value := s.Identity.Value
		if opts.isStopword(value) {
			continue
		}

		if s.StartOffset-prevEnd <= MaxPhraseGap {
			phrase += " " + value
		} else {
			flush(phrase, lang)
			phrase = value
			lang = s.Identity.Language
		}
		prevEnd = s.EndOffset

		// last write wins, position stays at first sight
		if i, ok := seen[s.Identity]; ok {
			scores[i].score = s.Score
		} else {
			if strings.Contains(value, model.IdentitySeparator) {
				r.Malformed = append(r.Malformed, s.Identity.String())
			}
			seen[s.Identity] = len(scores)
			scores = append(scores, scoredTag{identity: s.Identity, score: s.Score})
		}
	}

	if opts.FlushTrailingPhrase {
		flush(phrase, lang)
	}

	slices.SortStableFunc(scores, func(a, b scoredTag) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})
	for i, s := range scores {
		if i >= MaxSingleKeywords {
			break
		}
		put(s.identity.String(), s.identity.Value, 1)
	}

	r.Candidates = make([]model.KeywordCandidate, 0, len(order))
	for _, key := range order {
		r.Candidates = append(r.Candidates, model.KeywordCandidate{
			Key:              key,
			DisplayValue:     displays[key],
			OccurrenceCount:  r.Counts[key],
			StopwordsApplied: opts.RemoveStopwords,
		})
	}

	return r
}

// CandidatesFromCounts builds candidates from a plain key to count mapping,
// re-deriving the display value from each key. Keys are sorted. Keys with
// more than one separator are reported as malformed and use the best-effort
// value.
func CandidatesFromCounts(counts map[string]int, stopwordsApplied bool) ([]model.KeywordCandidate, []string) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var malformed []string
	candidates := make([]model.KeywordCandidate, 0, len(keys))
	for _, key := range keys {
		value, err := model.KeyValue(key)
		if err != nil {
			malformed = append(malformed, key)
		}
		candidates = append(candidates, model.KeywordCandidate{
			Key:              key,
			DisplayValue:     value,
			OccurrenceCount:  counts[key],
			StopwordsApplied: stopwordsApplied,
		})
	}
	return candidates, malformed
}

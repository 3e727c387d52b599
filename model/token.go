package model

import mapset "github.com/deckarep/golang-set/v2"

// TaggedToken is a part-of-speech tagged token as produced by the upstream
// tagging stage. Offsets are character offsets within the whole document.
type TaggedToken struct {
	Text               string   `json:"text"`
	Language           string   `json:"language"`
	POSTags            []string `json:"pos_tags"`
	StartOffset        int      `json:"start_offset"`
	EndOffset          int      `json:"end_offset"`
	SentenceIndex      int      `json:"sentence_index"`
	SentenceOrderIndex int      `json:"sentence_order_index"`
}

// Identity returns the tag identity the token maps to.
func (t *TaggedToken) Identity() TagIdentity {
	return TagIdentity{Value: t.Text, Language: t.Language}
}

// HasAnyPOS reports whether the token carries at least one of the given tags.
func (t *TaggedToken) HasAnyPOS(tags mapset.Set[string]) bool {
	for _, p := range t.POSTags {
		if tags.Contains(p) {
			return true
		}
	}
	return false
}

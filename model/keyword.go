package model

import "time"

// AssociationMode decides what a repeated evaluation does with the
// keyword to document association.
type AssociationMode string

const (
	// AssociationAppend creates a new association on every evaluation.
	AssociationAppend AssociationMode = "append"
	// AssociationUpsert sets the count on the existing association.
	AssociationUpsert AssociationMode = "upsert"
)

// Valid reports whether the mode is known.
func (m AssociationMode) Valid() bool {
	return m == AssociationAppend || m == AssociationUpsert
}

// KeywordCandidate is an aggregated keyword ready to be persisted.
// Key is either a phrase key "word1 word2_lang" or a single tag identity.
type KeywordCandidate struct {
	Key              string `json:"key"`
	DisplayValue     string `json:"display_value"`
	OccurrenceCount  int    `json:"occurrence_count"`
	StopwordsApplied bool   `json:"stopwords_applied"`
}

// Keyword is the corpus scoped keyword entity.
type Keyword struct {
	ID        string    `json:"id"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentKeyword is a keyword together with one association to a document.
type DocumentKeyword struct {
	Keyword          *Keyword  `json:"keyword"`
	Count            int       `json:"count"`
	StopwordsApplied bool      `json:"stopwords_applied"`
	CreatedAt        time.Time `json:"created_at"`
}

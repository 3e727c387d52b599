package model

// MaxRankedNodes is the number of top ranked tags considered per document.
const MaxRankedNodes = 10

// RankedNode is a tag with its converged centrality score.
type RankedNode struct {
	Identity  TagIdentity `json:"identity"`
	Score     float64     `json:"score"`
	AuxWeight float64     `json:"aux_weight"` // weighted degree in the ranked graph
}

// Span is one occurrence of a tag in a document.
type Span struct {
	Identity    TagIdentity `json:"identity"`
	StartOffset int         `json:"start_offset"`
	EndOffset   int         `json:"end_offset"`
}

// SpanMatch pairs an occurrence with the score of its ranked tag.
type SpanMatch struct {
	Span
	Score float64 `json:"score"`
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// Default relation kind and weight property of co-occurrence edges
const (
	DefaultRelationKind = "CO_OCCURRENCE"
	DefaultWeightField  = "weight"
)

// TagPair is an unordered pair of adjacent tags. Use NewTagPair to keep A <= B.
type TagPair struct {
	A TagIdentity `json:"a"`
	B TagIdentity `json:"b"`
}

// NewTagPair normalizes the pair so (a,b) and (b,a) are the same edge.
func NewTagPair(a, b TagIdentity) TagPair {
	if b.Less(a) {
		a, b = b, a
	}
	return TagPair{A: a, B: b}
}

// CooccurrenceEdge is a weighted undirected relation between two tags.
type CooccurrenceEdge struct {
	ID           uuid.UUID   `json:"id"`
	A            TagIdentity `json:"a"`
	B            TagIdentity `json:"b"`
	RelationKind string      `json:"relation_kind"`
	WeightField  string      `json:"weight_field"`
	Weight       int         `json:"weight"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Pair returns the normalized pair of the edge.
func (e *CooccurrenceEdge) Pair() TagPair {
	return NewTagPair(e.A, e.B)
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// Document represents an annotated source document
type Document struct {
	ID        int64     `json:"id"`
	RID       uuid.UUID `json:"rid"`
	Title     string    `json:"title"`
	Source    string    `json:"source,omitempty"`
	Language  string    `json:"language,omitempty"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sentence is one sentence of an annotated document together with its tagged tokens.
// Tokens are expected in position order.
type Sentence struct {
	Index  int            `json:"index"`
	Text   string         `json:"text,omitempty"`
	Tokens []*TaggedToken `json:"tokens"`
}

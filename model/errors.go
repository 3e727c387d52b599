package model

import "errors"

var (
	// ErrDocumentNotFound is returned when the named document does not exist.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrMalformedIdentity marks an identity with more than one separator.
	// It is a warning: the accompanying value is a best-effort split.
	ErrMalformedIdentity = errors.New("malformed identity")
	// ErrInvalidConfig is returned for out of range extraction parameters.
	ErrInvalidConfig = errors.New("invalid extraction config")
)

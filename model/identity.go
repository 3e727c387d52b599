package model

import (
	"fmt"
	"strings"
)

// IdentitySeparator separates value and language in identity strings.
const IdentitySeparator = "_"

// TagIdentity is the canonical key of a tag: its normalized value plus language.
// Its string form is "value_lang", multi-word keyword keys use "word1 word2_lang".
type TagIdentity struct {
	Value    string `json:"value"`
	Language string `json:"language"`
}

// NewTagIdentity validates and builds an identity. A value containing the
// separator still yields an identity but also ErrMalformedIdentity, since the
// string form can then not be split back unambiguously.
func NewTagIdentity(value, language string) (TagIdentity, error) {
	if value == "" {
		return TagIdentity{}, fmt.Errorf("%w: empty value", ErrMalformedIdentity)
	}
	if strings.Contains(language, IdentitySeparator) {
		return TagIdentity{}, fmt.Errorf("%w: language %q contains %q", ErrMalformedIdentity, language, IdentitySeparator)
	}

	id := TagIdentity{Value: value, Language: language}
	if strings.Contains(value, IdentitySeparator) {
		return id, fmt.Errorf("%w: value %q contains %q", ErrMalformedIdentity, value, IdentitySeparator)
	}
	return id, nil
}

// ParseTagIdentity splits "value_lang". The value is the first segment and the
// language the second. With more than one separator the same split is returned
// together with ErrMalformedIdentity.
func ParseTagIdentity(s string) (TagIdentity, error) {
	parts := strings.Split(s, IdentitySeparator)

	id := TagIdentity{Value: parts[0]}
	if len(parts) > 1 {
		id.Language = parts[1]
	}

	if len(parts) > 2 {
		return id, fmt.Errorf("%w: %q has %d separators", ErrMalformedIdentity, s, len(parts)-1)
	}
	return id, nil
}

// String returns the "value_lang" form used as graph vertex key.
func (t TagIdentity) String() string {
	return t.Value + IdentitySeparator + t.Language
}

// Less orders identities by their string form.
func (t TagIdentity) Less(o TagIdentity) bool {
	return t.String() < o.String()
}

// PhraseKey returns the keyword key of a space joined phrase.
func PhraseKey(phrase string, language string) string {
	return phrase + IdentitySeparator + language
}

// KeyValue returns the display value of a keyword key, the text before the
// first separator. The error is ErrMalformedIdentity for keys with more than one.
func KeyValue(key string) (string, error) {
	id, err := ParseTagIdentity(key)
	return id.Value, err
}

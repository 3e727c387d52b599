package model

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultIterations    = 30
	DefaultDampingFactor = 0.85
)

// DefaultStopwords are the adjectives that carry little meaning on their own.
// They are only applied once RemoveStopwords is enabled.
var DefaultStopwords = []string{"new", "old", "large", "big", "small", "many", "few"}

// ExtractionConfig is the per call configuration of the keyword extraction.
// Entry points work on a Snapshot so a config can be reused across goroutines
// as long as it is not mutated while a call is in flight.
type ExtractionConfig struct {
	RelationKind        string             `json:"relation_kind"`
	WeightField         string             `json:"weight_field"`
	Iterations          int                `json:"iterations"`
	DampingFactor       float64            `json:"damping_factor"`
	Stopwords           mapset.Set[string] `json:"-"`
	RemoveStopwords     bool               `json:"remove_stopwords"`
	FlushTrailingPhrase bool               `json:"flush_trailing_phrase"`
	AssociationMode     AssociationMode    `json:"association_mode"`
}

// DefaultExtractionConfig returns the configuration used when nothing is set.
func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		RelationKind:        DefaultRelationKind,
		WeightField:         DefaultWeightField,
		Iterations:          DefaultIterations,
		DampingFactor:       DefaultDampingFactor,
		Stopwords:           mapset.NewSet(DefaultStopwords...),
		RemoveStopwords:     false,
		FlushTrailingPhrase: false,
		AssociationMode:     AssociationAppend,
	}
}

// ParseStopwords splits a comma separated list, trimming and lowercasing each entry.
func ParseStopwords(list string) mapset.Set[string] {
	stopwords := mapset.NewSet[string]()
	for _, s := range strings.Split(list, ",") {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			stopwords.Add(s)
		}
	}
	return stopwords
}

// SetStopwords replaces the stopword list. A non-empty list enables filtering.
func (c *ExtractionConfig) SetStopwords(list string) {
	c.Stopwords = ParseStopwords(list)
	if c.Stopwords.Cardinality() > 0 {
		c.RemoveStopwords = true
	}
}

// IsStopword reports whether value is filtered under this configuration.
func (c *ExtractionConfig) IsStopword(value string) bool {
	if !c.RemoveStopwords || c.Stopwords == nil {
		return false
	}
	return c.Stopwords.Contains(strings.ToLower(value))
}

// Validate checks the ranking parameters and names.
func (c *ExtractionConfig) Validate() error {
	if !IsIdentifier(c.RelationKind) {
		return fmt.Errorf("%w: relation kind %q must be a non-empty identifier", ErrInvalidConfig, c.RelationKind)
	}
	if !IsIdentifier(c.WeightField) {
		return fmt.Errorf("%w: weight field %q must be a non-empty identifier", ErrInvalidConfig, c.WeightField)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalidConfig, c.Iterations)
	}
	if c.DampingFactor <= 0 || c.DampingFactor >= 1 {
		return fmt.Errorf("%w: damping factor must be in (0, 1), got %v", ErrInvalidConfig, c.DampingFactor)
	}
	if !c.AssociationMode.Valid() {
		return fmt.Errorf("%w: unknown association mode %q", ErrInvalidConfig, c.AssociationMode)
	}
	return nil
}

// Snapshot returns a copy with its own stopword set.
func (c *ExtractionConfig) Snapshot() *ExtractionConfig {
	snapshot := *c
	if c.Stopwords != nil {
		snapshot.Stopwords = c.Stopwords.Clone()
	} else {
		snapshot.Stopwords = mapset.NewSet[string]()
	}
	return &snapshot
}

// NewExtractionConfigFromEnv starts from the defaults and applies KEYGRAPHER_* variables.
// A .env file in the working directory is loaded first if present.
func NewExtractionConfigFromEnv() (*ExtractionConfig, error) {
	_ = godotenv.Load()

	config := DefaultExtractionConfig()

	if v := strings.TrimSpace(os.Getenv("KEYGRAPHER_RELATION_KIND")); v != "" {
		config.RelationKind = v
	}
	if v := strings.TrimSpace(os.Getenv("KEYGRAPHER_WEIGHT_FIELD")); v != "" {
		config.WeightField = v
	}
	if v := strings.TrimSpace(os.Getenv("KEYGRAPHER_ITERATIONS")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: KEYGRAPHER_ITERATIONS: %v", ErrInvalidConfig, err)
		}
		config.Iterations = parsed
	}
	if v := strings.TrimSpace(os.Getenv("KEYGRAPHER_DAMPING")); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: KEYGRAPHER_DAMPING: %v", ErrInvalidConfig, err)
		}
		config.DampingFactor = parsed
	}
	if v, ok := os.LookupEnv("KEYGRAPHER_STOPWORDS"); ok {
		config.SetStopwords(v)
	}
	if v := strings.TrimSpace(os.Getenv("KEYGRAPHER_REMOVE_STOPWORDS")); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: KEYGRAPHER_REMOVE_STOPWORDS: %v", ErrInvalidConfig, err)
		}
		config.RemoveStopwords = parsed
	}
	if v := strings.TrimSpace(os.Getenv("KEYGRAPHER_FLUSH_TRAILING_PHRASE")); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: KEYGRAPHER_FLUSH_TRAILING_PHRASE: %v", ErrInvalidConfig, err)
		}
		config.FlushTrailingPhrase = parsed
	}
	if v := strings.TrimSpace(os.Getenv("KEYGRAPHER_ASSOCIATION_MODE")); v != "" {
		config.AssociationMode = AssociationMode(v)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// extractionConfigFile is the YAML layout read by LoadExtractionConfig.
type extractionConfigFile struct {
	RelationKind        string   `yaml:"relation_kind"`
	WeightField         string   `yaml:"weight_field"`
	Iterations          int      `yaml:"iterations"`
	DampingFactor       float64  `yaml:"damping_factor"`
	Stopwords           []string `yaml:"stopwords"`
	RemoveStopwords     *bool    `yaml:"remove_stopwords"`
	FlushTrailingPhrase bool     `yaml:"flush_trailing_phrase"`
	AssociationMode     string   `yaml:"association_mode"`
}

// LoadExtractionConfig reads a YAML file. Missing keys keep their defaults.
func LoadExtractionConfig(path string) (*ExtractionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseExtractionConfig(data)
}

// ParseExtractionConfig parses YAML config data, see LoadExtractionConfig.
func ParseExtractionConfig(data []byte) (*ExtractionConfig, error) {
	file := extractionConfigFile{}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	config := DefaultExtractionConfig()
	if file.RelationKind != "" {
		config.RelationKind = file.RelationKind
	}
	if file.WeightField != "" {
		config.WeightField = file.WeightField
	}
	if file.Iterations != 0 {
		config.Iterations = file.Iterations
	}
	if file.DampingFactor != 0 {
		config.DampingFactor = file.DampingFactor
	}
	if file.Stopwords != nil {
		config.SetStopwords(strings.Join(file.Stopwords, ","))
	}
	if file.RemoveStopwords != nil {
		config.RemoveStopwords = *file.RemoveStopwords
	}
	config.FlushTrailingPhrase = file.FlushTrailingPhrase
	if file.AssociationMode != "" {
		config.AssociationMode = AssociationMode(file.AssociationMode)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// IsIdentifier allows names that are safe to use as relationship type or
// property key: letters, digits and underscores, not starting with a digit.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultExtractionConfig(t *testing.T) {
	t.Run("Returns correct default values", func(t *testing.T) {
		config := DefaultExtractionConfig()

		assert.Equal(t, DefaultRelationKind, config.RelationKind)
		assert.Equal(t, DefaultWeightField, config.WeightField)
		assert.Equal(t, 30, config.Iterations, "Default Iterations should be 30")
		assert.Equal(t, 0.85, config.DampingFactor, "Default DampingFactor should be 0.85")
		assert.False(t, config.RemoveStopwords, "Stopword filtering should be disabled by default")
		assert.False(t, config.FlushTrailingPhrase, "Trailing phrases should not be flushed by default")
		assert.Equal(t, AssociationAppend, config.AssociationMode)
		assert.True(t, config.Stopwords.Contains("big"), "Default stopwords should be present")
		assert.NoError(t, config.Validate())
	})

	t.Run("Default stopwords are not applied until enabled", func(t *testing.T) {
		config := DefaultExtractionConfig()

		assert.False(t, config.IsStopword("new"))

		config.RemoveStopwords = true
		assert.True(t, config.IsStopword("new"))
		assert.True(t, config.IsStopword("NEW"), "Expected case-insensitive stopword check")
		assert.False(t, config.IsStopword("climate"))
	})
}

func TestParseStopwords(t *testing.T) {
	stopwords := ParseStopwords(" New, OLD ,,  large ")

	assert.Equal(t, 3, stopwords.Cardinality())
	assert.True(t, stopwords.Contains("new"))
	assert.True(t, stopwords.Contains("old"))
	assert.True(t, stopwords.Contains("large"))
}

func TestSetStopwords(t *testing.T) {
	t.Run("Non-empty list enables filtering", func(t *testing.T) {
		config := DefaultExtractionConfig()

		config.SetStopwords("new,old")

		assert.True(t, config.RemoveStopwords)
		assert.True(t, config.IsStopword("old"))
		assert.False(t, config.IsStopword("big"), "Expected default stopwords to be replaced")
	})

	t.Run("Empty list keeps filtering disabled", func(t *testing.T) {
		config := DefaultExtractionConfig()

		config.SetStopwords("  ")

		assert.False(t, config.RemoveStopwords)
		assert.Equal(t, 0, config.Stopwords.Cardinality())
	})
}

func TestExtractionConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *ExtractionConfig)
	}{
		{"Zero iterations", func(c *ExtractionConfig) { c.Iterations = 0 }},
		{"Damping of one", func(c *ExtractionConfig) { c.DampingFactor = 1 }},
		{"Negative damping", func(c *ExtractionConfig) { c.DampingFactor = -0.5 }},
		{"Empty relation kind", func(c *ExtractionConfig) { c.RelationKind = "" }},
		{"Relation kind with injection", func(c *ExtractionConfig) { c.RelationKind = "CO]-(x) DELETE x //" }},
		{"Weight field starting with digit", func(c *ExtractionConfig) { c.WeightField = "1weight" }},
		{"Unknown association mode", func(c *ExtractionConfig) { c.AssociationMode = "merge" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultExtractionConfig()
			tt.modify(&config)

			assert.ErrorIs(t, config.Validate(), ErrInvalidConfig)
		})
	}
}

func TestExtractionConfigSnapshot(t *testing.T) {
	config := DefaultExtractionConfig()
	config.SetStopwords("new")

	snapshot := config.Snapshot()
	config.Stopwords.Add("old")
	config.Iterations = 5

	assert.False(t, snapshot.Stopwords.Contains("old"), "Expected snapshot stopwords to be independent")
	assert.Equal(t, 30, snapshot.Iterations)
	assert.True(t, snapshot.IsStopword("new"))
}

func TestNewExtractionConfigFromEnv(t *testing.T) {
	t.Run("Applies environment variables", func(t *testing.T) {
		t.Setenv("KEYGRAPHER_RELATION_KIND", "RELATED")
		t.Setenv("KEYGRAPHER_WEIGHT_FIELD", "w")
		t.Setenv("KEYGRAPHER_ITERATIONS", "50")
		t.Setenv("KEYGRAPHER_DAMPING", "0.9")
		t.Setenv("KEYGRAPHER_STOPWORDS", "new, old")
		t.Setenv("KEYGRAPHER_FLUSH_TRAILING_PHRASE", "true")
		t.Setenv("KEYGRAPHER_ASSOCIATION_MODE", "upsert")

		config, err := NewExtractionConfigFromEnv()

		require.NoError(t, err)
		assert.Equal(t, "RELATED", config.RelationKind)
		assert.Equal(t, "w", config.WeightField)
		assert.Equal(t, 50, config.Iterations)
		assert.Equal(t, 0.9, config.DampingFactor)
		assert.True(t, config.RemoveStopwords)
		assert.True(t, config.IsStopword("old"))
		assert.True(t, config.FlushTrailingPhrase)
		assert.Equal(t, AssociationUpsert, config.AssociationMode)
	})

	t.Run("Explicit flag overrides implicit enabling", func(t *testing.T) {
		t.Setenv("KEYGRAPHER_STOPWORDS", "new")
		t.Setenv("KEYGRAPHER_REMOVE_STOPWORDS", "false")

		config, err := NewExtractionConfigFromEnv()

		require.NoError(t, err)
		assert.False(t, config.RemoveStopwords)
	})

	t.Run("Invalid iterations", func(t *testing.T) {
		t.Setenv("KEYGRAPHER_ITERATIONS", "many")

		_, err := NewExtractionConfigFromEnv()

		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestLoadExtractionConfig(t *testing.T) {
	t.Run("Load YAML file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "keygrapher.yaml")
		content := `
relation_kind: CO_OCCURRENCE_V2
iterations: 40
damping_factor: 0.8
stopwords: [new, Old]
association_mode: upsert
`
		err := os.WriteFile(path, []byte(content), 0600)
		require.NoError(t, err)

		config, err := LoadExtractionConfig(path)

		require.NoError(t, err)
		assert.Equal(t, "CO_OCCURRENCE_V2", config.RelationKind)
		assert.Equal(t, DefaultWeightField, config.WeightField, "Missing keys should keep defaults")
		assert.Equal(t, 40, config.Iterations)
		assert.Equal(t, 0.8, config.DampingFactor)
		assert.True(t, config.RemoveStopwords)
		assert.True(t, config.IsStopword("old"))
		assert.Equal(t, AssociationUpsert, config.AssociationMode)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := LoadExtractionConfig(filepath.Join(t.TempDir(), "missing.yaml"))

		assert.Error(t, err)
	})

	t.Run("Invalid values", func(t *testing.T) {
		_, err := ParseExtractionConfig([]byte("damping_factor: 1.5\n"))

		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("Malformed YAML", func(t *testing.T) {
		_, err := ParseExtractionConfig([]byte("iterations: [\n"))

		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestIsIdentifier(t *testing.T) {
	assert.True(t, IsIdentifier("CO_OCCURRENCE"))
	assert.True(t, IsIdentifier("weight2"))
	assert.True(t, IsIdentifier("_w"))
	assert.False(t, IsIdentifier(""), "Expected empty name to be rejected")
	assert.False(t, IsIdentifier("2weight"))
	assert.False(t, IsIdentifier("weight`}) DETACH DELETE (n"))
	assert.False(t, IsIdentifier("co-occurrence"))
}

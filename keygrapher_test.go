package keygrapher

import (
	"context"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/siherrmann/keygrapher/core/metrics"
	"github.com/siherrmann/keygrapher/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyGrapher(t *testing.T) {
	t.Run("Valid call NewKeyGrapher", func(t *testing.T) {
		k := initKeyGrapher(t)
		assert.NotNil(t, k.DB, "Expected keygrapher to have a database instance")
		assert.NotNil(t, k.Documents, "Expected keygrapher to have documents handler")
		assert.NotNil(t, k.Tags, "Expected keygrapher to have tags handler")
		assert.NotNil(t, k.Cooccurrences, "Expected keygrapher to have cooccurrences handler")
		assert.NotNil(t, k.Keywords, "Expected keygrapher to have keywords handler")
		assert.NotNil(t, k.Ranker, "Expected keygrapher to have a default ranker")
		assert.Nil(t, k.Neo4j, "Expected no neo4j client for the postgres store")
	})

	t.Run("KeyGrapher with nil database handles Close gracefully", func(t *testing.T) {
		k := &KeyGrapher{}
		assert.NoError(t, k.Close(), "Expected Close to handle nil DB gracefully")
	})
}

func TestInsertAnnotatedDocument(t *testing.T) {
	k := initKeyGrapher(t)
	ctx := context.Background()
	lang := testLanguage()

	t.Run("Insert document with sentences", func(t *testing.T) {
		doc := insertClimateDocument(t, k, lang)
		assert.NotEqual(t, uuid.Nil, doc.RID, "Expected document RID to be set")

		tokens, err := k.Tags.SelectTaggedTokens(ctx, doc.RID)
		require.NoError(t, err)
		assert.Len(t, tokens, 10)
	})

	t.Run("Document is removed when annotation fails", func(t *testing.T) {
		doc := &model.Document{Title: "Broken", Language: lang, Metadata: model.Metadata{}}
		broken := annotate(lang, "valid/NN")
		broken[0].Tokens[0].Text = ""

		err := k.InsertAnnotatedDocument(ctx, doc, broken)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrMalformedIdentity)

		_, err = k.Documents.SelectDocument(ctx, doc.RID)
		assert.ErrorIs(t, err, model.ErrDocumentNotFound, "Expected document to be removed again")
	})
}

func TestCreateCooccurrences(t *testing.T) {
	k := initKeyGrapher(t)
	ctx := context.Background()
	lang := testLanguage()
	doc := insertClimateDocument(t, k, lang)

	climate := model.TagIdentity{Value: "climate", Language: lang}
	change := model.TagIdentity{Value: "change", Language: lang}

	t.Run("Create edges with weights", func(t *testing.T) {
		err := k.CreateCooccurrences(ctx, doc.RID, model.DefaultRelationKind, model.DefaultWeightField)
		require.NoError(t, err)

		edges, err := k.Cooccurrences.SelectCooccurrencesByDocument(ctx, doc.RID, model.DefaultRelationKind, model.DefaultWeightField)
		require.NoError(t, err)
		assert.Len(t, edges, 4)

		edge, err := k.Cooccurrences.SelectCooccurrence(ctx, model.NewTagPair(climate, change), model.DefaultRelationKind, model.DefaultWeightField)
		require.NoError(t, err)
		assert.Equal(t, 2, edge.Weight, "Expected one observation per sentence")
	})

	t.Run("Second build increments weights", func(t *testing.T) {
		err := k.CreateCooccurrences(ctx, doc.RID, model.DefaultRelationKind, model.DefaultWeightField)
		require.NoError(t, err)

		edge, err := k.Cooccurrences.SelectCooccurrence(ctx, model.NewTagPair(climate, change), model.DefaultRelationKind, model.DefaultWeightField)
		require.NoError(t, err)
		assert.Equal(t, 4, edge.Weight)
	})

	t.Run("Delete edges", func(t *testing.T) {
		deleted, err := k.DeleteCooccurrences(ctx, doc.RID, model.DefaultRelationKind)
		require.NoError(t, err)
		assert.Equal(t, int64(4), deleted)

		deleted, err = k.DeleteCooccurrences(ctx, doc.RID, model.DefaultRelationKind)
		require.NoError(t, err)
		assert.Zero(t, deleted, "Expected delete without edges to be a no-op")
	})

	t.Run("Unknown document", func(t *testing.T) {
		err := k.CreateCooccurrences(ctx, uuid.New(), model.DefaultRelationKind, model.DefaultWeightField)
		assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	})
}

func TestRank(t *testing.T) {
	k := initKeyGrapher(t)
	ctx := context.Background()
	lang := testLanguage()
	doc := insertClimateDocument(t, k, lang)
	require.NoError(t, k.CreateCooccurrences(ctx, doc.RID, model.DefaultRelationKind, model.DefaultWeightField))

	t.Run("Rank tags of the document", func(t *testing.T) {
		ranked, err := k.Rank(ctx, doc.RID, model.DefaultRelationKind, model.DefaultWeightField, model.DefaultIterations, model.DefaultDampingFactor)
		require.NoError(t, err)
		require.Len(t, ranked, 5)

		assert.Equal(t, "change", ranked[0].Identity.Value, "Expected the best connected tag first")
		assert.Equal(t, float64(4), ranked[0].AuxWeight)

		sum := 0.0
		for i, node := range ranked {
			sum += node.Score
			if i > 0 {
				assert.GreaterOrEqual(t, ranked[i-1].Score, node.Score)
			}
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	})

	t.Run("Document without edges", func(t *testing.T) {
		ranked, err := k.Rank(ctx, doc.RID, "UNUSED_KIND", model.DefaultWeightField, model.DefaultIterations, model.DefaultDampingFactor)
		require.NoError(t, err)
		assert.Empty(t, ranked)
	})

	t.Run("Invalid parameters", func(t *testing.T) {
		_, err := k.Rank(ctx, doc.RID, model.DefaultRelationKind, model.DefaultWeightField, 0, model.DefaultDampingFactor)
		assert.ErrorIs(t, err, model.ErrInvalidConfig)

		_, err = k.Rank(ctx, doc.RID, model.DefaultRelationKind, model.DefaultWeightField, 10, 1)
		assert.ErrorIs(t, err, model.ErrInvalidConfig)
	})

	t.Run("Unknown document", func(t *testing.T) {
		_, err := k.Rank(ctx, uuid.New(), model.DefaultRelationKind, model.DefaultWeightField, model.DefaultIterations, model.DefaultDampingFactor)
		assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	})
}

func TestExtract(t *testing.T) {
	k := initKeyGrapher(t)
	ctx := context.Background()

	t.Run("Extract keywords", func(t *testing.T) {
		lang := testLanguage()
		doc := insertClimateDocument(t, k, lang)

		result, err := k.Extract(ctx, doc.RID, nil)
		require.NoError(t, err)

		assert.Equal(t, 2, result.Counts[model.PhraseKey("climate change", lang)])
		assert.Equal(t, 1, result.Counts[model.PhraseKey("coastal cities", lang)])
		for _, value := range []string{"climate", "change", "coastal", "cities", "migration"} {
			assert.Equal(t, 1, result.Counts[model.TagIdentity{Value: value, Language: lang}.String()], "Expected single keyword %s", value)
		}
		require.Len(t, result.Candidates, 7)
		assert.Equal(t, "climate change", result.Candidates[0].DisplayValue, "Expected phrases first")
		assert.Equal(t, "change", result.Candidates[2].DisplayValue, "Expected singles by score")

		associations, err := k.Keywords.SelectKeywordsByDocument(ctx, doc.RID)
		require.NoError(t, err)
		assert.Len(t, associations, 7)
	})

	t.Run("Repeated extraction appends associations", func(t *testing.T) {
		lang := testLanguage()
		doc := insertClimateDocument(t, k, lang)

		_, err := k.Extract(ctx, doc.RID, nil)
		require.NoError(t, err)
		result, err := k.Extract(ctx, doc.RID, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Counts[model.PhraseKey("climate change", lang)], "Expected a rebuild to keep the weights")

		associations, err := k.Keywords.SelectKeywordsByDocument(ctx, doc.RID)
		require.NoError(t, err)
		assert.Len(t, associations, 14)
	})

	t.Run("Repeated extraction with upsert", func(t *testing.T) {
		lang := testLanguage()
		doc := insertClimateDocument(t, k, lang)

		cfg := model.DefaultExtractionConfig()
		cfg.AssociationMode = model.AssociationUpsert

		_, err := k.Extract(ctx, doc.RID, &cfg)
		require.NoError(t, err)
		_, err = k.Extract(ctx, doc.RID, &cfg)
		require.NoError(t, err)

		associations, err := k.Keywords.SelectKeywordsByDocument(ctx, doc.RID)
		require.NoError(t, err)
		assert.Len(t, associations, 7)
	})

	t.Run("Stopwords break phrases", func(t *testing.T) {
		lang := testLanguage()
		doc := insertClimateDocument(t, k, lang)

		cfg := model.DefaultExtractionConfig()
		cfg.SetStopwords("Coastal")

		result, err := k.Extract(ctx, doc.RID, &cfg)
		require.NoError(t, err)

		assert.Equal(t, 2, result.Counts[model.PhraseKey("climate change", lang)])
		assert.NotContains(t, result.Counts, model.PhraseKey("coastal cities", lang))
		assert.NotContains(t, result.Counts, model.TagIdentity{Value: "coastal", Language: lang}.String())
		assert.Len(t, result.Candidates, 5)
		for _, c := range result.Candidates {
			assert.True(t, c.StopwordsApplied)
		}
	})

	t.Run("Evaluate without edges persists nothing", func(t *testing.T) {
		lang := testLanguage()
		doc := insertClimateDocument(t, k, lang)

		result, err := k.Evaluate(ctx, doc.RID, nil)
		require.NoError(t, err)
		assert.Empty(t, result.Candidates)

		associations, err := k.Keywords.SelectKeywordsByDocument(ctx, doc.RID)
		require.NoError(t, err)
		assert.Empty(t, associations)
	})

	t.Run("Invalid config", func(t *testing.T) {
		cfg := model.DefaultExtractionConfig()
		cfg.DampingFactor = 1.5

		_, err := k.Extract(ctx, uuid.New(), &cfg)
		assert.ErrorIs(t, err, model.ErrInvalidConfig)
	})

	t.Run("Unknown document", func(t *testing.T) {
		_, err := k.Extract(ctx, uuid.New(), nil)
		assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	})
}

func TestPersistKeywords(t *testing.T) {
	k := initKeyGrapher(t)
	ctx := context.Background()
	lang := testLanguage()
	doc := insertClimateDocument(t, k, lang)

	candidates := []model.KeywordCandidate{
		{Key: model.PhraseKey("sea level", lang), DisplayValue: "sea level", OccurrenceCount: 3},
		{Key: "big_" + lang, DisplayValue: "big", OccurrenceCount: 1},
	}

	t.Run("Stopword candidates are skipped", func(t *testing.T) {
		cfg := model.DefaultExtractionConfig()
		cfg.RemoveStopwords = true
		cfg.Stopwords = mapset.NewSet(model.DefaultStopwords...)

		persisted, err := k.PersistKeywords(ctx, doc.RID, candidates, &cfg)
		require.NoError(t, err)
		require.Len(t, persisted, 1)
		assert.Equal(t, "sea level", persisted[0].Keyword.Value)
		assert.Equal(t, 3, persisted[0].Count)
		assert.True(t, persisted[0].StopwordsApplied)
	})

	t.Run("Stopwords kept when filter is off", func(t *testing.T) {
		persisted, err := k.PersistKeywords(ctx, doc.RID, candidates, nil)
		require.NoError(t, err)
		assert.Len(t, persisted, 2)
	})
}

func TestPersistKeywordCounts(t *testing.T) {
	k := initKeyGrapher(t)
	ctx := context.Background()
	lang := testLanguage()
	doc := insertClimateDocument(t, k, lang)

	counts := map[string]int{
		model.PhraseKey("sea level", lang): 3,
		"big_" + lang:                      1,
	}

	t.Run("Display values come from the keys", func(t *testing.T) {
		persisted, err := k.PersistKeywordCounts(ctx, doc.RID, counts, nil)
		require.NoError(t, err)
		require.Len(t, persisted, 2)

		values := map[string]int{}
		for _, dk := range persisted {
			values[dk.Keyword.Value] = dk.Count
			assert.False(t, dk.StopwordsApplied)
		}
		assert.Equal(t, map[string]int{"sea level": 3, "big": 1}, values)
	})

	t.Run("Stopword keys are skipped", func(t *testing.T) {
		cfg := model.DefaultExtractionConfig()
		cfg.RemoveStopwords = true
		cfg.Stopwords = mapset.NewSet(model.DefaultStopwords...)
		cfg.AssociationMode = model.AssociationUpsert

		persisted, err := k.PersistKeywordCounts(ctx, doc.RID, counts, &cfg)
		require.NoError(t, err)
		require.Len(t, persisted, 1)
		assert.Equal(t, "sea level", persisted[0].Keyword.Value)
		assert.True(t, persisted[0].StopwordsApplied)
	})

	t.Run("Counts of an extraction can be persisted again", func(t *testing.T) {
		result, err := k.Extract(ctx, doc.RID, nil)
		require.NoError(t, err)

		persisted, err := k.PersistKeywordCounts(ctx, doc.RID, result.Counts, nil)
		require.NoError(t, err)
		assert.Len(t, persisted, len(result.Counts))
	})
}

func TestExtractBatch(t *testing.T) {
	k := initKeyGrapher(t)
	ctx := context.Background()

	first := insertClimateDocument(t, k, testLanguage())
	second := insertClimateDocument(t, k, testLanguage())
	unknown := uuid.New()

	extracted := testutil.ToFloat64(k.Metrics.Operations.WithLabelValues(metrics.OperationExtract, "success"))

	t.Run("Failing document does not stop the batch", func(t *testing.T) {
		results := k.ExtractBatch(ctx, []uuid.UUID{first.RID, unknown, second.RID}, nil, 2)
		require.Len(t, results, 3)

		assert.Equal(t, first.RID, results[0].DocumentRID)
		assert.NoError(t, results[0].Err)
		assert.Len(t, results[0].Result.Candidates, 7)

		assert.Equal(t, unknown, results[1].DocumentRID)
		assert.ErrorIs(t, results[1].Err, model.ErrDocumentNotFound)
		assert.Nil(t, results[1].Result)

		assert.Equal(t, second.RID, results[2].DocumentRID)
		assert.NoError(t, results[2].Err)
		assert.Len(t, results[2].Result.Candidates, 7)
	})

	t.Run("Metrics count the extractions", func(t *testing.T) {
		assert.Equal(t, extracted+2, testutil.ToFloat64(k.Metrics.Operations.WithLabelValues(metrics.OperationExtract, "success")))
	})

	t.Run("Documents sharing tags match sequential extraction", func(t *testing.T) {
		lang := testLanguage()
		docs := []*model.Document{
			insertDocument(t, k, lang, climateSentences...),
			insertDocument(t, k, lang, "coastal/JJ cities/NNS face/VBP climate/NN change/NN", "climate/NN policy/NN debate/NN"),
			insertDocument(t, k, lang, "climate/NN change/NN policy/NN", "migration/NN policy/NN"),
		}

		var rids []uuid.UUID
		var expected []map[string]int
		for _, doc := range docs {
			result, err := k.Extract(ctx, doc.RID, nil)
			require.NoError(t, err)
			require.NotEmpty(t, result.Counts)
			rids = append(rids, doc.RID)
			expected = append(expected, result.Counts)
		}

		results := k.ExtractBatch(ctx, rids, nil, len(rids))
		require.Len(t, results, len(rids))
		for i, r := range results {
			require.NoError(t, r.Err)
			assert.Equal(t, expected[i], r.Result.Counts, "Expected batch result of document %d to equal its own extraction", i)
		}
	})

	t.Run("Invalid config fails every document", func(t *testing.T) {
		cfg := model.DefaultExtractionConfig()
		cfg.Iterations = -1

		results := k.ExtractBatch(ctx, []uuid.UUID{first.RID, second.RID}, &cfg, 0)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.ErrorIs(t, r.Err, model.ErrInvalidConfig)
		}
	})
}

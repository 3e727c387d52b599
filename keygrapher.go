package keygrapher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/keygrapher/core/cooccurrence"
	"github.com/siherrmann/keygrapher/core/graph"
	"github.com/siherrmann/keygrapher/core/keyword"
	"github.com/siherrmann/keygrapher/core/metrics"
	"github.com/siherrmann/keygrapher/core/rank"
	"github.com/siherrmann/keygrapher/database"
	"github.com/siherrmann/keygrapher/database/neo4jdb"
	"github.com/siherrmann/keygrapher/helper"
	"github.com/siherrmann/keygrapher/model"
	loadSql "github.com/siherrmann/keygrapher/sql"
	"golang.org/x/sync/errgroup"
)

// KeyGrapher provides a unified interface to the stores and the ranking.
type KeyGrapher struct {
	DB            *helper.Database // nil when backed by Neo4j
	Neo4j         *neo4jdb.Client  // nil when backed by Postgres
	Documents     database.DocumentsDBHandlerFunctions
	Tags          database.TagsDBHandlerFunctions
	Cooccurrences database.CooccurrencesDBHandlerFunctions
	Keywords      database.KeywordsDBHandlerFunctions
	Ranker        rank.Ranker
	Metrics       *metrics.Metrics
	// Logging
	log *slog.Logger
	// Tags are shared across documents, so deleting, building and ranking
	// the edges of one document must not interleave with another.
	graphMu sync.Mutex
}

// BatchResult is the outcome of Extract for one document of a batch.
type BatchResult struct {
	DocumentRID uuid.UUID
	Result      *keyword.Result
	Err         error
}

func newLogger() *slog.Logger {
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	return slog.New(helper.NewPrettyHandler(os.Stdout, opts))
}

// NewKeyGrapher creates a KeyGrapher backed by Postgres with all handlers initialized.
func NewKeyGrapher(config *helper.DatabaseConfiguration) (*KeyGrapher, error) {
	logger := newLogger()

	// Initialize database
	db := helper.NewDatabase("keygrapher", config, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Tables reference each other, so handlers are created in this order.
	// force=false to not reload if functions already exist
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	tags, err := database.NewTagsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create tags handler", err)
	}

	cooccurrences, err := database.NewCooccurrencesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create cooccurrences handler", err)
	}

	keywords, err := database.NewKeywordsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create keywords handler", err)
	}

	return &KeyGrapher{
		DB:            db,
		Documents:     documents,
		Tags:          tags,
		Cooccurrences: cooccurrences,
		Keywords:      keywords,
		Ranker:        rank.NewPowerIteration(),
		Metrics:       metrics.New(nil),
		log:           logger,
	}, nil
}

// NewKeyGrapherWithNeo4j creates a KeyGrapher backed by a Neo4j database.
func NewKeyGrapherWithNeo4j(config *neo4jdb.Config) (*KeyGrapher, error) {
	logger := newLogger()

	client, err := neo4jdb.NewClient(config, logger)
	if err != nil {
		return nil, helper.NewError("create neo4j client", err)
	}

	store, err := neo4jdb.NewStore(client)
	if err != nil {
		client.Close(context.Background())
		return nil, helper.NewError("create neo4j store", err)
	}

	return &KeyGrapher{
		Neo4j:         client,
		Documents:     store,
		Tags:          store,
		Cooccurrences: store,
		Keywords:      store,
		Ranker:        rank.NewPowerIteration(),
		Metrics:       metrics.New(nil),
		log:           logger,
	}, nil
}

// Close closes the database connection
func (k *KeyGrapher) Close() error {
	if k.Neo4j != nil {
		if err := k.Neo4j.Close(context.Background()); err != nil {
			return err
		}
	}
	if k.DB != nil && k.DB.Instance != nil {
		return k.DB.Instance.Close()
	}
	return nil
}

func (k *KeyGrapher) logger() *slog.Logger {
	if k.log == nil {
		return slog.Default()
	}
	return k.log
}

// InsertAnnotatedDocument stores a document together with its tagged
// sentences. If the sentences cannot be stored the document is removed again.
func (k *KeyGrapher) InsertAnnotatedDocument(ctx context.Context, doc *model.Document, sentences []*model.Sentence) error {
	if err := k.Documents.InsertDocument(ctx, doc); err != nil {
		return helper.NewError("insert document", err)
	}

	if err := k.Tags.InsertAnnotatedText(ctx, doc.RID, sentences); err != nil {
		if delErr := k.Documents.DeleteDocument(ctx, doc.RID); delErr != nil {
			k.logger().Error("Failed to remove document after annotation error", slog.String("document_rid", doc.RID.String()), slog.Any("error", delErr))
		}
		return helper.NewError("insert annotated text", err)
	}

	k.logger().Info("Inserted annotated document", slog.String("document_rid", doc.RID.String()), slog.Int("sentences", len(sentences)))
	return nil
}

func (k *KeyGrapher) requireDocument(ctx context.Context, docRID uuid.UUID) error {
	_, err := k.Documents.SelectDocument(ctx, docRID)
	return err
}

// CreateCooccurrences adds one observation per adjacent noun or adjective
// pair of every sentence of the document. Each edge is incremented under
// weightField by the number of times its pair occurs, a new edge starts at
// that number. All pairs are written in one transaction.
func (k *KeyGrapher) CreateCooccurrences(ctx context.Context, docRID uuid.UUID, relationKind string, weightField string) error {
	k.graphMu.Lock()
	defer k.graphMu.Unlock()
	return k.createCooccurrences(ctx, docRID, relationKind, weightField)
}

func (k *KeyGrapher) createCooccurrences(ctx context.Context, docRID uuid.UUID, relationKind string, weightField string) (err error) {
	start := time.Now()
	defer func() { k.Metrics.Observe(metrics.OperationCreateCooccurrences, start, err) }()

	if err = k.requireDocument(ctx, docRID); err != nil {
		return helper.NewError("create cooccurrences", err)
	}

	tokens, err := k.Tags.SelectTaggedTokens(ctx, docRID)
	if err != nil {
		k.logger().Error("Failed to load tagged tokens", slog.String("document_rid", docRID.String()), slog.Any("error", err))
		return helper.NewError("create cooccurrences", err)
	}

	pairs := cooccurrence.Pairs(tokens)
	if err = k.Cooccurrences.UpsertCooccurrences(ctx, relationKind, weightField, pairs); err != nil {
		k.logger().Error("Failed to upsert cooccurrences", slog.String("document_rid", docRID.String()), slog.Any("error", err))
		return helper.NewError("create cooccurrences", err)
	}
	if k.Metrics != nil {
		k.Metrics.CooccurrenceEdges.Add(float64(len(pairs)))
	}

	k.logger().Debug("Created cooccurrences", slog.String("document_rid", docRID.String()), slog.String("relation_kind", relationKind), slog.Int("pairs", len(pairs)))
	return nil
}

// DeleteCooccurrences removes every relationKind edge touching a tag of the
// document and returns the number of removed edges. Edges shared with other
// documents are removed as well.
func (k *KeyGrapher) DeleteCooccurrences(ctx context.Context, docRID uuid.UUID, relationKind string) (int64, error) {
	k.graphMu.Lock()
	defer k.graphMu.Unlock()
	return k.deleteCooccurrences(ctx, docRID, relationKind)
}

func (k *KeyGrapher) deleteCooccurrences(ctx context.Context, docRID uuid.UUID, relationKind string) (deleted int64, err error) {
	start := time.Now()
	defer func() { k.Metrics.Observe(metrics.OperationDeleteCooccurrences, start, err) }()

	deleted, err = k.Cooccurrences.DeleteCooccurrencesByDocument(ctx, docRID, relationKind)
	if err != nil {
		k.logger().Error("Failed to delete cooccurrences", slog.String("document_rid", docRID.String()), slog.Any("error", err))
		return 0, helper.NewError("delete cooccurrences", err)
	}

	k.logger().Debug("Deleted cooccurrences", slog.String("document_rid", docRID.String()), slog.Int64("deleted", deleted))
	return deleted, nil
}

// Rank scores the tags of the document on its co-occurrence graph and returns
// the best model.MaxRankedNodes, highest score first.
func (k *KeyGrapher) Rank(ctx context.Context, docRID uuid.UUID, relationKind string, weightField string, iterations int, damping float64) ([]model.RankedNode, error) {
	k.graphMu.Lock()
	defer k.graphMu.Unlock()
	return k.rank(ctx, docRID, relationKind, weightField, iterations, damping)
}

func (k *KeyGrapher) rank(ctx context.Context, docRID uuid.UUID, relationKind string, weightField string, iterations int, damping float64) (ranked []model.RankedNode, err error) {
	start := time.Now()
	defer func() { k.Metrics.Observe(metrics.OperationRank, start, err) }()

	if iterations <= 0 {
		return nil, helper.NewError("rank", fmt.Errorf("%w: iterations must be positive, got %d", model.ErrInvalidConfig, iterations))
	}
	if damping <= 0 || damping >= 1 {
		return nil, helper.NewError("rank", fmt.Errorf("%w: damping factor must be in (0, 1), got %v", model.ErrInvalidConfig, damping))
	}
	if err = k.requireDocument(ctx, docRID); err != nil {
		return nil, helper.NewError("rank", err)
	}

	tokens, err := k.Tags.SelectTaggedTokens(ctx, docRID)
	if err != nil {
		return nil, helper.NewError("rank", err)
	}
	edges, err := k.Cooccurrences.SelectCooccurrencesByDocument(ctx, docRID, relationKind, weightField)
	if err != nil {
		k.logger().Error("Failed to load cooccurrences", slog.String("document_rid", docRID.String()), slog.Any("error", err))
		return nil, helper.NewError("rank", err)
	}

	ranker := k.Ranker
	if ranker == nil {
		ranker = rank.NewPowerIteration()
	}

	g := graph.FromEdges(cooccurrence.Identities(tokens), edges)
	ranked, err = ranker.Rank(ctx, g, iterations, damping)
	if err != nil {
		return nil, helper.NewError("rank", err)
	}

	ranked = rank.Top(ranked, model.MaxRankedNodes)
	k.logger().Debug("Ranked document", slog.String("document_rid", docRID.String()), slog.Int("nodes", g.Len()), slog.Int("ranked", len(ranked)))
	return ranked, nil
}

// PersistKeywords writes the candidates as keywords of the document. With
// stopword filtering enabled in cfg, candidates whose value is a stopword are
// skipped.
func (k *KeyGrapher) PersistKeywords(ctx context.Context, docRID uuid.UUID, candidates []model.KeywordCandidate, cfg *model.ExtractionConfig) (persisted []*model.DocumentKeyword, err error) {
	start := time.Now()
	defer func() { k.Metrics.Observe(metrics.OperationPersist, start, err) }()

	if cfg == nil {
		defaults := model.DefaultExtractionConfig()
		cfg = &defaults
	}

	kept := make([]model.KeywordCandidate, 0, len(candidates))
	for _, c := range candidates {
		if cfg.IsStopword(c.DisplayValue) {
			continue
		}
		c.StopwordsApplied = cfg.RemoveStopwords
		kept = append(kept, c)
	}

	persisted, err = k.Keywords.PersistKeywords(ctx, docRID, kept, cfg.AssociationMode)
	if err != nil {
		k.logger().Error("Failed to persist keywords", slog.String("document_rid", docRID.String()), slog.Any("error", err))
		return nil, helper.NewError("persist keywords", err)
	}
	if k.Metrics != nil {
		k.Metrics.KeywordsPersisted.Add(float64(len(persisted)))
	}

	return persisted, nil
}

// PersistKeywordCounts persists a key to count mapping such as
// keyword.Result.Counts. Display values are derived from the keys, malformed
// keys are logged and stored with their best-effort value.
func (k *KeyGrapher) PersistKeywordCounts(ctx context.Context, docRID uuid.UUID, counts map[string]int, cfg *model.ExtractionConfig) ([]*model.DocumentKeyword, error) {
	stopwordsApplied := cfg != nil && cfg.RemoveStopwords
	candidates, malformed := keyword.CandidatesFromCounts(counts, stopwordsApplied)
	for _, key := range malformed {
		k.logger().Warn("Malformed keyword key", slog.String("document_rid", docRID.String()), slog.String("key", key))
	}

	return k.PersistKeywords(ctx, docRID, candidates, cfg)
}

// Evaluate ranks the document, aggregates the occurrences of the ranked tags
// into keywords and persists them. The edges must have been created before.
// A nil cfg uses model.DefaultExtractionConfig.
func (k *KeyGrapher) Evaluate(ctx context.Context, docRID uuid.UUID, cfg *model.ExtractionConfig) (result *keyword.Result, err error) {
	start := time.Now()
	defer func() { k.Metrics.Observe(metrics.OperationEvaluate, start, err) }()

	cfg, err = snapshot(cfg)
	if err != nil {
		return nil, helper.NewError("evaluate", err)
	}

	ranked, err := k.Rank(ctx, docRID, cfg.RelationKind, cfg.WeightField, cfg.Iterations, cfg.DampingFactor)
	if err != nil {
		return nil, helper.NewError("evaluate", err)
	}

	result, err = k.evaluateRanked(ctx, docRID, ranked, cfg)
	if err != nil {
		return nil, helper.NewError("evaluate", err)
	}
	return result, nil
}

// evaluateRanked aggregates and persists the keywords of ranked nodes. It
// does not read the edges, so it runs outside graphMu.
func (k *KeyGrapher) evaluateRanked(ctx context.Context, docRID uuid.UUID, ranked []model.RankedNode, cfg *model.ExtractionConfig) (*keyword.Result, error) {
	identities := make([]model.TagIdentity, 0, len(ranked))
	scores := make(map[model.TagIdentity]float64, len(ranked))
	for _, node := range ranked {
		identities = append(identities, node.Identity)
		scores[node.Identity] = node.Score
	}

	spans, err := k.Tags.SelectSpans(ctx, docRID, identities)
	if err != nil {
		return nil, helper.NewError("select spans", err)
	}
	matches := make([]model.SpanMatch, 0, len(spans))
	for _, span := range spans {
		matches = append(matches, model.SpanMatch{Span: span, Score: scores[span.Identity]})
	}

	result := keyword.Aggregate(matches, keyword.OptionsFromConfig(cfg))
	for _, identity := range result.Malformed {
		k.logger().Warn("Malformed tag identity", slog.String("document_rid", docRID.String()), slog.String("identity", identity))
	}

	if _, err := k.PersistKeywords(ctx, docRID, result.Candidates, cfg); err != nil {
		return nil, err
	}

	k.logger().Info("Evaluated document", slog.String("document_rid", docRID.String()), slog.Int("keywords", len(result.Candidates)))
	return result, nil
}

// Extract rebuilds the co-occurrence edges of the document and evaluates it.
func (k *KeyGrapher) Extract(ctx context.Context, docRID uuid.UUID, cfg *model.ExtractionConfig) (result *keyword.Result, err error) {
	start := time.Now()
	defer func() { k.Metrics.Observe(metrics.OperationExtract, start, err) }()

	cfg, err = snapshot(cfg)
	if err != nil {
		return nil, helper.NewError("extract", err)
	}

	ranked, err := k.rebuildAndRank(ctx, docRID, cfg)
	if err != nil {
		return nil, helper.NewError("extract", err)
	}

	result, err = k.evaluateRanked(ctx, docRID, ranked, cfg)
	if err != nil {
		return nil, helper.NewError("extract", err)
	}
	return result, nil
}

// rebuildAndRank replaces the edges of the document and ranks it while
// holding graphMu, so no other document touches the shared tags in between.
func (k *KeyGrapher) rebuildAndRank(ctx context.Context, docRID uuid.UUID, cfg *model.ExtractionConfig) ([]model.RankedNode, error) {
	k.graphMu.Lock()
	defer k.graphMu.Unlock()

	if _, err := k.deleteCooccurrences(ctx, docRID, cfg.RelationKind); err != nil {
		return nil, err
	}
	if err := k.createCooccurrences(ctx, docRID, cfg.RelationKind, cfg.WeightField); err != nil {
		return nil, err
	}
	return k.rank(ctx, docRID, cfg.RelationKind, cfg.WeightField, cfg.Iterations, cfg.DampingFactor)
}

// ExtractBatch runs Extract for every document with at most concurrency
// documents in flight. Rebuilding and ranking the graph runs one document at
// a time, keyword aggregation and persistence run concurrently. A failing
// document does not stop the others, its error is reported in its
// BatchResult. Results keep the order of docRIDs.
func (k *KeyGrapher) ExtractBatch(ctx context.Context, docRIDs []uuid.UUID, cfg *model.ExtractionConfig, concurrency int) []BatchResult {
	results := make([]BatchResult, len(docRIDs))

	cfg, err := snapshot(cfg)
	if err != nil {
		for i, rid := range docRIDs {
			results[i] = BatchResult{DocumentRID: rid, Err: helper.NewError("extract batch", err)}
		}
		return results
	}

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, rid := range docRIDs {
		g.Go(func() error {
			result, err := k.Extract(ctx, rid, cfg)
			results[i] = BatchResult{DocumentRID: rid, Result: result, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	k.logger().Info("Extracted batch", slog.Int("documents", len(docRIDs)), slog.Int("failed", failed))

	return results
}

// snapshot validates cfg and returns an independent copy of it.
func snapshot(cfg *model.ExtractionConfig) (*model.ExtractionConfig, error) {
	if cfg == nil {
		defaults := model.DefaultExtractionConfig()
		cfg = &defaults
	}
	cfg = cfg.Snapshot()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

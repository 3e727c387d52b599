package keygrapher

import (
	"context"
	"database/sql"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/keygrapher/core/cooccurrence"
	"github.com/siherrmann/keygrapher/core/rank"
	"github.com/siherrmann/keygrapher/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type edgeKey struct {
	pair         model.TagPair
	relationKind string
	weightField  string
}

// memoryStore keeps documents, tags and edges in maps. Edge writes and reads
// sleep for delay before taking the lock so concurrent callers interleave.
type memoryStore struct {
	mu        sync.Mutex
	delay     time.Duration
	documents map[uuid.UUID]*model.Document
	tokens    map[uuid.UUID][]*model.TaggedToken
	edges     map[edgeKey]int
	keywords  map[uuid.UUID][]*model.DocumentKeyword
}

func newMemoryStore(delay time.Duration) *memoryStore {
	return &memoryStore{
		delay:     delay,
		documents: map[uuid.UUID]*model.Document{},
		tokens:    map[uuid.UUID][]*model.TaggedToken{},
		edges:     map[edgeKey]int{},
		keywords:  map[uuid.UUID][]*model.DocumentKeyword{},
	}
}

func newMemoryKeyGrapher(store *memoryStore) *KeyGrapher {
	return &KeyGrapher{
		Documents:     store,
		Tags:          store,
		Cooccurrences: store,
		Keywords:      store,
		Ranker:        rank.NewPowerIteration(),
	}
}

func (s *memoryStore) InsertDocument(ctx context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.RID == uuid.Nil {
		doc.RID = uuid.New()
	}
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	stored := *doc
	s.documents[doc.RID] = &stored
	return nil
}

func (s *memoryStore) SelectDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[rid]
	if !ok {
		return nil, model.ErrDocumentNotFound
	}
	found := *doc
	return &found, nil
}

func (s *memoryStore) SelectAllDocuments(ctx context.Context, lastCreatedAt *time.Time, limit int) ([]*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var docs []*model.Document
	for _, doc := range s.documents {
		if lastCreatedAt == nil || doc.CreatedAt.After(*lastCreatedAt) {
			docs = append(docs, doc)
		}
	}
	slices.SortFunc(docs, func(a, b *model.Document) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *memoryStore) UpdateDocument(ctx context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.RID]; !ok {
		return model.ErrDocumentNotFound
	}
	doc.UpdatedAt = time.Now()
	stored := *doc
	s.documents[doc.RID] = &stored
	return nil
}

func (s *memoryStore) DeleteDocument(ctx context.Context, rid uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, rid)
	delete(s.tokens, rid)
	delete(s.keywords, rid)
	return nil
}

func (s *memoryStore) InsertAnnotatedText(ctx context.Context, docRID uuid.UUID, sentences []*model.Sentence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[docRID]; !ok {
		return model.ErrDocumentNotFound
	}
	for _, sentence := range sentences {
		s.tokens[docRID] = append(s.tokens[docRID], sentence.Tokens...)
	}
	return nil
}

func (s *memoryStore) SelectTaggedTokens(ctx context.Context, docRID uuid.UUID) ([]*model.TaggedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tokens[docRID]), nil
}

func (s *memoryStore) SelectSpans(ctx context.Context, docRID uuid.UUID, identities []model.TagIdentity) ([]model.Span, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var spans []model.Span
	for _, token := range s.tokens[docRID] {
		if slices.Contains(identities, token.Identity()) {
			spans = append(spans, model.Span{Identity: token.Identity(), StartOffset: token.StartOffset, EndOffset: token.EndOffset})
		}
	}
	return spans, nil
}

// tagsOf must be called with mu held.
func (s *memoryStore) tagsOf(docRID uuid.UUID) map[model.TagIdentity]bool {
	tags := map[model.TagIdentity]bool{}
	for _, token := range s.tokens[docRID] {
		tags[token.Identity()] = true
	}
	return tags
}

func (s *memoryStore) UpsertCooccurrences(ctx context.Context, relationKind string, weightField string, pairs []model.TagPair) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range cooccurrence.SortedWeights(pairs) {
		s.edges[edgeKey{pair: w.Pair, relationKind: relationKind, weightField: weightField}] += w.Count
	}
	return nil
}

func (s *memoryStore) SelectCooccurrence(ctx context.Context, pair model.TagPair, relationKind string, weightField string) (*model.CooccurrenceEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair = model.NewTagPair(pair.A, pair.B)
	weight, ok := s.edges[edgeKey{pair: pair, relationKind: relationKind, weightField: weightField}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &model.CooccurrenceEdge{A: pair.A, B: pair.B, RelationKind: relationKind, WeightField: weightField, Weight: weight}, nil
}

func (s *memoryStore) SelectCooccurrencesByDocument(ctx context.Context, docRID uuid.UUID, relationKind string, weightField string) ([]*model.CooccurrenceEdge, error) {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := s.tagsOf(docRID)
	var edges []*model.CooccurrenceEdge
	for key, weight := range s.edges {
		if key.relationKind != relationKind || key.weightField != weightField {
			continue
		}
		if tags[key.pair.A] && tags[key.pair.B] {
			edges = append(edges, &model.CooccurrenceEdge{A: key.pair.A, B: key.pair.B, RelationKind: relationKind, WeightField: weightField, Weight: weight})
		}
	}
	slices.SortFunc(edges, func(a, b *model.CooccurrenceEdge) int {
		if a.A != b.A {
			if a.A.Less(b.A) {
				return -1
			}
			return 1
		}
		if a.B.Less(b.B) {
			return -1
		} else if b.B.Less(a.B) {
			return 1
		}
		return 0
	})
	return edges, nil
}

func (s *memoryStore) DeleteCooccurrencesByDocument(ctx context.Context, docRID uuid.UUID, relationKind string) (int64, error) {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := s.tagsOf(docRID)
	var deleted int64
	for key := range s.edges {
		if key.relationKind == relationKind && (tags[key.pair.A] || tags[key.pair.B]) {
			delete(s.edges, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memoryStore) PersistKeywords(ctx context.Context, docRID uuid.UUID, candidates []model.KeywordCandidate, mode model.AssociationMode) ([]*model.DocumentKeyword, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[docRID]; !ok {
		return nil, model.ErrDocumentNotFound
	}
	if mode == model.AssociationUpsert {
		s.keywords[docRID] = nil
	}
	var persisted []*model.DocumentKeyword
	for _, c := range candidates {
		dk := &model.DocumentKeyword{
			Keyword:          &model.Keyword{ID: c.Key, Value: c.DisplayValue, CreatedAt: time.Now()},
			Count:            c.OccurrenceCount,
			StopwordsApplied: c.StopwordsApplied,
			CreatedAt:        time.Now(),
		}
		persisted = append(persisted, dk)
	}
	s.keywords[docRID] = append(s.keywords[docRID], persisted...)
	return persisted, nil
}

func (s *memoryStore) SelectKeyword(ctx context.Context, id string) (*model.Keyword, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dks := range s.keywords {
		for _, dk := range dks {
			if dk.Keyword.ID == id {
				return dk.Keyword, nil
			}
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memoryStore) SelectKeywordsByDocument(ctx context.Context, docRID uuid.UUID) ([]*model.DocumentKeyword, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.keywords[docRID]), nil
}

// overlappingSentences share the tags climate, change and cities.
var overlappingSentences = [][]string{
	{"climate/NN change/NN policy/NN", "coastal/JJ cities/NNS adapt/VBP"},
	{"climate/NN science/NN models/NNS", "climate/NN change/NN drives/VBZ migration/NN"},
	{"big/JJ cities/NNS face/VBP climate/NN change/NN", "urban/JJ heat/NN"},
	{"change/NN management/NN", "climate/NN change/NN policy/NN debate/NN"},
}

func insertOverlappingDocuments(t *testing.T, k *KeyGrapher, language string) []uuid.UUID {
	var rids []uuid.UUID
	for i, sentences := range overlappingSentences {
		doc := &model.Document{Title: "Overlap " + string(rune('A'+i)), Language: language, Metadata: model.Metadata{}}
		require.NoError(t, k.InsertAnnotatedDocument(context.Background(), doc, annotate(language, sentences...)))
		rids = append(rids, doc.RID)
	}
	return rids
}

func TestExtractBatchSharedTags(t *testing.T) {
	ctx := context.Background()

	sequential := newMemoryKeyGrapher(newMemoryStore(0))
	var expected []map[string]int
	for _, rid := range insertOverlappingDocuments(t, sequential, "en") {
		result, err := sequential.Extract(ctx, rid, nil)
		require.NoError(t, err)
		require.NotEmpty(t, result.Counts)
		expected = append(expected, result.Counts)
	}

	t.Run("Concurrent batch matches sequential extraction", func(t *testing.T) {
		k := newMemoryKeyGrapher(newMemoryStore(2 * time.Millisecond))
		rids := insertOverlappingDocuments(t, k, "en")

		results := k.ExtractBatch(ctx, rids, nil, len(rids))
		require.Len(t, results, len(rids))
		for i, r := range results {
			require.NoError(t, r.Err)
			assert.Equal(t, expected[i], r.Result.Counts, "Expected document %d to be unaffected by the others", i)
		}
	})
}

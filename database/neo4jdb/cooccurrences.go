package neo4jdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/siherrmann/keygrapher/core/cooccurrence"
	"github.com/siherrmann/keygrapher/helper"
	"github.com/siherrmann/keygrapher/model"
)

// relationshipNames validates the names interpolated into Cypher, since
// relationship types and property keys cannot be parameters.
func relationshipNames(relationKind string, weightField string) error {
	if !model.IsIdentifier(relationKind) {
		return fmt.Errorf("%w: relation kind %q is not an identifier", model.ErrInvalidConfig, relationKind)
	}
	if !model.IsIdentifier(weightField) {
		return fmt.Errorf("%w: weight field %q is not an identifier", model.ErrInvalidConfig, weightField)
	}
	return nil
}

const edgeProjection = `
RETURN r.id AS id, a.value AS a_value, a.language AS a_language,
       b.value AS b_value, b.language AS b_language,
       coalesce(r.%[1]s, 0) AS weight, r.created_at AS created_at, r.updated_at AS updated_at`

// UpsertCooccurrences applies every pair observation in one transaction.
// Repeated pairs are summed and written in endpoint order: a missing edge
// starts at the observed count, an existing one is incremented by it.
// Nothing is written if a tag of any pair does not exist.
func (s *Store) UpsertCooccurrences(ctx context.Context, relationKind string, weightField string, pairs []model.TagPair) error {
	if err := relationshipNames(relationKind, weightField); err != nil {
		return helper.NewError("upsert cooccurrences", err)
	}
	if len(pairs) == 0 {
		return nil
	}

	weights := cooccurrence.SortedWeights(pairs)
	rows := make([]any, len(weights))
	for i, w := range weights {
		rows[i] = map[string]any{"a": w.Pair.A.String(), "b": w.Pair.B.String(), "count": w.Count}
	}

	query := fmt.Sprintf(`
UNWIND $pairs AS p
MATCH (a:Tag {id: p.a})
MATCH (b:Tag {id: p.b})
MERGE (a)-[r:%[1]s]->(b)
  ON CREATE SET r.id = randomUUID(), r.%[2]s = p.count, r.created_at = $now, r.updated_at = $now
  ON MATCH SET r.%[2]s = coalesce(r.%[2]s, 0) + p.count, r.updated_at = $now
RETURN count(*) AS applied`, relationKind, weightField)

	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"pairs": rows, "now": time.Now().UTC()})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		applied, err := value[int64](record, "applied")
		if err != nil {
			return nil, err
		}
		if int(applied) != len(rows) {
			return nil, fmt.Errorf("applied %d of %d pairs, unknown tags", applied, len(rows))
		}
		return applied, nil
	})
	if err != nil {
		return helper.NewError("upsert cooccurrences", err)
	}

	return nil
}

// SelectCooccurrence retrieves a single edge. The pair order does not matter.
func (s *Store) SelectCooccurrence(ctx context.Context, pair model.TagPair, relationKind string, weightField string) (*model.CooccurrenceEdge, error) {
	if err := relationshipNames(relationKind, weightField); err != nil {
		return nil, helper.NewError("select cooccurrence", err)
	}
	pair = model.NewTagPair(pair.A, pair.B)

	query := fmt.Sprintf(`MATCH (a:Tag {id: $a})-[r:%[2]s]->(b:Tag {id: $b})`+edgeProjection, weightField, relationKind)

	result, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"a": pair.A.String(), "b": pair.B.String()})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return edgeFromRecord(record, relationKind, weightField)
	})
	if err != nil {
		return nil, helper.NewError("select cooccurrence", err)
	}

	return result.(*model.CooccurrenceEdge), nil
}

// SelectCooccurrencesByDocument returns the edges whose endpoints are both
// tags of the document.
func (s *Store) SelectCooccurrencesByDocument(ctx context.Context, docRID uuid.UUID, relationKind string, weightField string) ([]*model.CooccurrenceEdge, error) {
	if err := relationshipNames(relationKind, weightField); err != nil {
		return nil, helper.NewError("select cooccurrences", err)
	}

	query := fmt.Sprintf(`
MATCH (:AnnotatedText {id: $doc})-[:CONTAINS_SENTENCE]->(:Sentence)-[:HAS_TAG]->(t:Tag)
WITH collect(DISTINCT t) AS tags
UNWIND tags AS a
MATCH (a)-[r:%[2]s]->(b:Tag)
WHERE b IN tags
WITH a, r, b ORDER BY a.id, b.id`+edgeProjection, weightField, relationKind)

	result, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"doc": docRID.String()})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		edges := make([]*model.CooccurrenceEdge, 0, len(records))
		for _, record := range records {
			edge, err := edgeFromRecord(record, relationKind, weightField)
			if err != nil {
				return nil, err
			}
			edges = append(edges, edge)
		}
		return edges, nil
	})
	if err != nil {
		return nil, helper.NewError("select cooccurrences", err)
	}

	return result.([]*model.CooccurrenceEdge), nil
}

// DeleteCooccurrencesByDocument deletes every relationKind edge touching at
// least one tag of the document and returns the number of deleted edges.
func (s *Store) DeleteCooccurrencesByDocument(ctx context.Context, docRID uuid.UUID, relationKind string) (int64, error) {
	if !model.IsIdentifier(relationKind) {
		return 0, helper.NewError("delete cooccurrences", fmt.Errorf("%w: relation kind %q is not an identifier", model.ErrInvalidConfig, relationKind))
	}

	query := fmt.Sprintf(`
MATCH (:AnnotatedText {id: $doc})-[:CONTAINS_SENTENCE]->(:Sentence)-[:HAS_TAG]->(t:Tag)
WITH DISTINCT t
MATCH (t)-[r:%s]-()
WITH DISTINCT r
DELETE r`, relationKind)

	result, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"doc": docRID.String()})
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return int64(summary.Counters().RelationshipsDeleted()), nil
	})
	if err != nil {
		return 0, helper.NewError("delete cooccurrences", err)
	}

	return result.(int64), nil
}

func edgeFromRecord(record *neo4j.Record, relationKind string, weightField string) (*model.CooccurrenceEdge, error) {
	var err error
	edge := &model.CooccurrenceEdge{RelationKind: relationKind, WeightField: weightField}

	id, err := value[string](record, "id")
	if err != nil {
		return nil, err
	}
	if id != "" {
		if edge.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
	}
	if edge.A.Value, err = value[string](record, "a_value"); err != nil {
		return nil, err
	}
	if edge.A.Language, err = value[string](record, "a_language"); err != nil {
		return nil, err
	}
	if edge.B.Value, err = value[string](record, "b_value"); err != nil {
		return nil, err
	}
	if edge.B.Language, err = value[string](record, "b_language"); err != nil {
		return nil, err
	}
	if edge.Weight, err = intValue(record, "weight"); err != nil {
		return nil, err
	}
	if edge.CreatedAt, err = value[time.Time](record, "created_at"); err != nil {
		return nil, err
	}
	if edge.UpdatedAt, err = value[time.Time](record, "updated_at"); err != nil {
		return nil, err
	}

	return edge, nil
}

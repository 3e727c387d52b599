package neo4jdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/siherrmann/keygrapher/helper"
	"github.com/siherrmann/keygrapher/model"
)

const (
	mergeKeyword = `
MERGE (k:Keyword {id: $id})
  ON CREATE SET k.value = $value, k.created_at = $now`

	appendAssociation = mergeKeyword + `
WITH k
MATCH (d:AnnotatedText {id: $doc})
CREATE (k)-[r:DESCRIBES {count: $count, stopwords_applied: $stopwords_applied, created_at: $now, updated_at: $now}]->(d)` + associationProjection

	updateLatestAssociation = `
MATCH (k:Keyword {id: $id})-[r:DESCRIBES]->(:AnnotatedText {id: $doc})
WITH k, r ORDER BY r.created_at DESC LIMIT 1
SET r.count = $count, r.stopwords_applied = $stopwords_applied, r.updated_at = $now` + associationProjection

	associationProjection = `
RETURN k.id AS id, k.value AS value, k.created_at AS keyword_created_at,
       r.count AS count, r.stopwords_applied AS stopwords_applied, r.created_at AS created_at`
)

// PersistKeywords links the candidates to a document in one transaction.
// Keywords are merged by key. With AssociationAppend every call adds a new
// DESCRIBES relationship, with AssociationUpsert the latest one of a keyword
// is updated. The document must exist, otherwise nothing is written and
// model.ErrDocumentNotFound is returned.
func (s *Store) PersistKeywords(ctx context.Context, docRID uuid.UUID, candidates []model.KeywordCandidate, mode model.AssociationMode) ([]*model.DocumentKeyword, error) {
	if !mode.Valid() {
		return nil, helper.NewError("persist keywords", fmt.Errorf("%w: unknown association mode %q", model.ErrInvalidConfig, mode))
	}

	result, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := documentExists(ctx, tx, docRID); err != nil {
			return nil, err
		}

		persisted := make([]*model.DocumentKeyword, 0, len(candidates))
		for _, candidate := range candidates {
			params := map[string]any{
				"doc":               docRID.String(),
				"id":                candidate.Key,
				"value":             candidate.DisplayValue,
				"count":             int64(candidate.OccurrenceCount),
				"stopwords_applied": candidate.StopwordsApplied,
				"now":               time.Now().UTC(),
			}

			var records []*neo4j.Record
			if mode == model.AssociationUpsert {
				res, err := tx.Run(ctx, updateLatestAssociation, params)
				if err != nil {
					return nil, err
				}
				if records, err = res.Collect(ctx); err != nil {
					return nil, err
				}
			}
			if len(records) == 0 {
				res, err := tx.Run(ctx, appendAssociation, params)
				if err != nil {
					return nil, err
				}
				if records, err = res.Collect(ctx); err != nil {
					return nil, err
				}
			}
			if len(records) == 0 {
				return nil, fmt.Errorf("keyword %s: no association written", candidate.Key)
			}

			association, err := associationFromRecord(records[0])
			if err != nil {
				return nil, err
			}
			persisted = append(persisted, association)
		}
		return persisted, nil
	})
	if err != nil {
		return nil, helper.NewError("persist keywords", err)
	}

	return result.([]*model.DocumentKeyword), nil
}

// SelectKeyword retrieves a keyword by key.
func (s *Store) SelectKeyword(ctx context.Context, id string) (*model.Keyword, error) {
	result, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (k:Keyword {id: $id})
RETURN k.id AS id, k.value AS value, k.created_at AS keyword_created_at`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return keywordFromRecord(record)
	})
	if err != nil {
		return nil, helper.NewError("select keyword", err)
	}

	return result.(*model.Keyword), nil
}

// SelectKeywordsByDocument returns every association of the document in
// creation order.
func (s *Store) SelectKeywordsByDocument(ctx context.Context, docRID uuid.UUID) ([]*model.DocumentKeyword, error) {
	result, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (k:Keyword)-[r:DESCRIBES]->(:AnnotatedText {id: $doc})
WITH k, r ORDER BY r.created_at, k.id`+associationProjection, map[string]any{"doc": docRID.String()})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		associations := make([]*model.DocumentKeyword, 0, len(records))
		for _, record := range records {
			association, err := associationFromRecord(record)
			if err != nil {
				return nil, err
			}
			associations = append(associations, association)
		}
		return associations, nil
	})
	if err != nil {
		return nil, helper.NewError("select keywords", err)
	}

	return result.([]*model.DocumentKeyword), nil
}

func keywordFromRecord(record *neo4j.Record) (*model.Keyword, error) {
	var err error
	keyword := &model.Keyword{}
	if keyword.ID, err = value[string](record, "id"); err != nil {
		return nil, err
	}
	if keyword.Value, err = value[string](record, "value"); err != nil {
		return nil, err
	}
	if keyword.CreatedAt, err = value[time.Time](record, "keyword_created_at"); err != nil {
		return nil, err
	}
	return keyword, nil
}

func associationFromRecord(record *neo4j.Record) (*model.DocumentKeyword, error) {
	keyword, err := keywordFromRecord(record)
	if err != nil {
		return nil, err
	}

	association := &model.DocumentKeyword{Keyword: keyword}
	if association.Count, err = intValue(record, "count"); err != nil {
		return nil, err
	}
	if association.StopwordsApplied, err = value[bool](record, "stopwords_applied"); err != nil {
		return nil, err
	}
	if association.CreatedAt, err = value[time.Time](record, "created_at"); err != nil {
		return nil, err
	}
	return association, nil
}

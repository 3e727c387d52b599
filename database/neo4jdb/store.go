package neo4jdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/siherrmann/keygrapher/database"
	"github.com/siherrmann/keygrapher/helper"
	"github.com/siherrmann/keygrapher/model"
)

var (
	_ database.DocumentsDBHandlerFunctions     = (*Store)(nil)
	_ database.TagsDBHandlerFunctions          = (*Store)(nil)
	_ database.CooccurrencesDBHandlerFunctions = (*Store)(nil)
	_ database.KeywordsDBHandlerFunctions      = (*Store)(nil)
)

var schema = []string{
	`CREATE CONSTRAINT annotated_text_id IF NOT EXISTS FOR (d:AnnotatedText) REQUIRE d.id IS UNIQUE`,
	`CREATE CONSTRAINT sentence_id IF NOT EXISTS FOR (s:Sentence) REQUIRE s.id IS UNIQUE`,
	`CREATE CONSTRAINT tag_id IF NOT EXISTS FOR (t:Tag) REQUIRE t.id IS UNIQUE`,
	`CREATE CONSTRAINT keyword_id IF NOT EXISTS FOR (k:Keyword) REQUIRE k.id IS UNIQUE`,
}

// Store keeps the annotated text graph in Neo4j:
//
//	(:AnnotatedText)-[:CONTAINS_SENTENCE]->(:Sentence)-[:SENTENCE_TAG_OCCURRENCE]->(:TagOccurrence)-[:TAG_OCCURRENCE_TAG]->(:Tag)
//	(:Sentence)-[:HAS_TAG]->(:Tag)
//	(:Keyword)-[:DESCRIBES {count}]->(:AnnotatedText)
//
// Co-occurrence edges are (:Tag)-[:<relationKind> {<weightField>}]->(:Tag),
// always directed from the smaller to the larger identity. Documents have no
// numeric ID here, they are addressed by RID only.
type Store struct {
	client *Client
	log    *slog.Logger
}

// NewStore creates the store and makes sure the uniqueness constraints exist.
func NewStore(client *Client) (*Store, error) {
	if client == nil || client.Driver == nil {
		return nil, helper.NewError("neo4j client validation", fmt.Errorf("neo4j client is nil"))
	}

	s := &Store{
		client: client,
		log:    client.log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.ensureSchema(ctx)

	s.log.Info("Initialized Neo4j store")

	return s, nil
}

// ensureSchema is best effort, restricted users may not create constraints.
func (s *Store) ensureSchema(ctx context.Context) {
	session := s.client.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, statement := range schema {
		res, err := session.Run(ctx, statement, nil)
		if err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", slog.String("error", err.Error()))
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

func (s *Store) write(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := s.client.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	return session.ExecuteWrite(ctx, work)
}

func (s *Store) read(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := s.client.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work)
}

const documentProjection = `
RETURN d.id AS id, d.title AS title, d.source AS source, d.language AS language,
       d.metadata_json AS metadata_json, d.created_at AS created_at, d.updated_at AS updated_at`

// InsertDocument creates an AnnotatedText node with a new RID.
func (s *Store) InsertDocument(ctx context.Context, doc *model.Document) error {
	metadata, err := metadataJSON(doc.Metadata)
	if err != nil {
		return helper.NewError("metadata", err)
	}

	now := time.Now().UTC()
	params := map[string]any{
		"id":            uuid.New().String(),
		"title":         doc.Title,
		"source":        doc.Source,
		"language":      doc.Language,
		"metadata_json": metadata,
		"now":           now,
	}

	result, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
CREATE (d:AnnotatedText {
    id: $id, title: $title, source: $source, language: $language,
    metadata_json: $metadata_json, created_at: $now, updated_at: $now
})`+documentProjection, params)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return documentFromRecord(record)
	})
	if err != nil {
		return helper.NewError("insert document", err)
	}

	*doc = *result.(*model.Document)
	return nil
}

// SelectDocument retrieves a document by RID.
// It returns model.ErrDocumentNotFound if there is none.
func (s *Store) SelectDocument(ctx context.Context, rid uuid.UUID) (*model.Document, error) {
	result, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (d:AnnotatedText {id: $id})`+documentProjection, map[string]any{"id": rid.String()})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("%w: %v", model.ErrDocumentNotFound, rid)
		}
		return documentFromRecord(records[0])
	})
	if err != nil {
		return nil, helper.NewError("select document", err)
	}

	return result.(*model.Document), nil
}

// SelectAllDocuments retrieves documents newest first, starting before lastCreatedAt if set.
func (s *Store) SelectAllDocuments(ctx context.Context, lastCreatedAt *time.Time, limit int) ([]*model.Document, error) {
	params := map[string]any{"last": nil, "limit": int64(limit)}
	if lastCreatedAt != nil {
		params["last"] = lastCreatedAt.UTC()
	}

	result, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (d:AnnotatedText)
WHERE $last IS NULL OR d.created_at < $last
WITH d ORDER BY d.created_at DESC LIMIT $limit`+documentProjection, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		documents := make([]*model.Document, 0, len(records))
		for _, record := range records {
			doc, err := documentFromRecord(record)
			if err != nil {
				return nil, err
			}
			documents = append(documents, doc)
		}
		return documents, nil
	})
	if err != nil {
		return nil, helper.NewError("select all documents", err)
	}

	return result.([]*model.Document), nil
}

// UpdateDocument updates title, source, language and metadata of a document.
func (s *Store) UpdateDocument(ctx context.Context, doc *model.Document) error {
	metadata, err := metadataJSON(doc.Metadata)
	if err != nil {
		return helper.NewError("metadata", err)
	}

	params := map[string]any{
		"id":            doc.RID.String(),
		"title":         doc.Title,
		"source":        doc.Source,
		"language":      doc.Language,
		"metadata_json": metadata,
		"now":           time.Now().UTC(),
	}

	result, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (d:AnnotatedText {id: $id})
SET d.title = $title, d.source = $source, d.language = $language,
    d.metadata_json = $metadata_json, d.updated_at = $now`+documentProjection, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("%w: %v", model.ErrDocumentNotFound, doc.RID)
		}
		return documentFromRecord(records[0])
	})
	if err != nil {
		return helper.NewError("update document", err)
	}

	*doc = *result.(*model.Document)
	return nil
}

// DeleteDocument deletes a document together with its sentences, tag
// occurrences and keyword associations. Tags and keywords are kept.
func (s *Store) DeleteDocument(ctx context.Context, rid uuid.UUID) error {
	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (d:AnnotatedText {id: $id})
OPTIONAL MATCH (d)-[:CONTAINS_SENTENCE]->(s:Sentence)
OPTIONAL MATCH (s)-[:SENTENCE_TAG_OCCURRENCE]->(o:TagOccurrence)
DETACH DELETE o, s, d`, map[string]any{"id": rid.String()})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return helper.NewError("delete document", err)
	}
	return nil
}

func documentFromRecord(record *neo4j.Record) (*model.Document, error) {
	id, err := value[string](record, "id")
	if err != nil {
		return nil, err
	}
	rid, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{RID: rid}
	if doc.Title, err = value[string](record, "title"); err != nil {
		return nil, err
	}
	if doc.Source, err = value[string](record, "source"); err != nil {
		return nil, err
	}
	if doc.Language, err = value[string](record, "language"); err != nil {
		return nil, err
	}
	if doc.CreatedAt, err = value[time.Time](record, "created_at"); err != nil {
		return nil, err
	}
	if doc.UpdatedAt, err = value[time.Time](record, "updated_at"); err != nil {
		return nil, err
	}

	metadata, err := value[string](record, "metadata_json")
	if err != nil {
		return nil, err
	}
	if err := doc.Metadata.Scan(metadata); err != nil {
		return nil, err
	}

	return doc, nil
}

func metadataJSON(m model.Metadata) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// value reads a typed column of a record. A null column yields the zero value.
func value[T any](record *neo4j.Record, key string) (T, error) {
	var zero T
	v, ok := record.Get(key)
	if !ok {
		return zero, fmt.Errorf("missing column %s", key)
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("column %s: unexpected type %T", key, v)
	}
	return t, nil
}

// intValue reads an integer column as int.
func intValue(record *neo4j.Record, key string) (int, error) {
	v, err := value[int64](record, key)
	return int(v), err
}

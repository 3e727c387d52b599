package neo4jdb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/siherrmann/keygrapher/helper"
	"github.com/siherrmann/keygrapher/model"
)

// InsertAnnotatedText stores the tagged sentences of a document in one transaction.
// Tags are shared across documents and merged by identity.
func (s *Store) InsertAnnotatedText(ctx context.Context, docRID uuid.UUID, sentences []*model.Sentence) error {
	rows := make([]any, 0, len(sentences))
	for _, sentence := range sentences {
		tokens := make([]any, 0, len(sentence.Tokens))
		for i, token := range sentence.Tokens {
			id, err := model.NewTagIdentity(token.Text, token.Language)
			if id.Value == "" {
				return helper.NewError(fmt.Sprintf("tag identity of token %d in sentence %d", i, sentence.Index), err)
			} else if err != nil {
				s.log.Warn("Storing malformed tag identity", slog.String("identity", id.String()), slog.String("error", err.Error()))
			}

			pos := make([]any, len(token.POSTags))
			for j, p := range token.POSTags {
				pos[j] = p
			}
			tokens = append(tokens, map[string]any{
				"identity": id.String(),
				"value":    token.Text,
				"language": token.Language,
				"start":    int64(token.StartOffset),
				"end":      int64(token.EndOffset),
				"index":    int64(token.SentenceOrderIndex),
				"pos":      pos,
			})
		}
		rows = append(rows, map[string]any{
			"id":     fmt.Sprintf("%s_%d", docRID, sentence.Index),
			"number": int64(sentence.Index),
			"text":   sentence.Text,
			"tokens": tokens,
		})
	}

	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := documentExists(ctx, tx, docRID); err != nil {
			return nil, err
		}

		res, err := tx.Run(ctx, `
MATCH (d:AnnotatedText {id: $doc})
UNWIND $sentences AS row
MERGE (s:Sentence {id: row.id})
SET s.sentence_number = row.number, s.text = row.text
MERGE (d)-[:CONTAINS_SENTENCE]->(s)
WITH s, row
UNWIND row.tokens AS token
MERGE (t:Tag {id: token.identity})
  ON CREATE SET t.value = token.value, t.language = token.language
CREATE (o:TagOccurrence {
    start_position: token.start, end_position: token.end,
    position_index: token.index, pos: token.pos, value: token.value
})
CREATE (s)-[:SENTENCE_TAG_OCCURRENCE]->(o)
CREATE (o)-[:TAG_OCCURRENCE_TAG]->(t)
MERGE (s)-[:HAS_TAG]->(t)`, map[string]any{"doc": docRID.String(), "sentences": rows})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return helper.NewError("insert annotated text", err)
	}

	return nil
}

// SelectTaggedTokens returns the tokens of a document ordered by sentence,
// then start offset.
func (s *Store) SelectTaggedTokens(ctx context.Context, docRID uuid.UUID) ([]*model.TaggedToken, error) {
	result, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (:AnnotatedText {id: $doc})-[:CONTAINS_SENTENCE]->(s:Sentence)
      -[:SENTENCE_TAG_OCCURRENCE]->(o:TagOccurrence)-[:TAG_OCCURRENCE_TAG]->(t:Tag)
RETURN t.value AS value, t.language AS language, o.pos AS pos,
       o.start_position AS start_position, o.end_position AS end_position,
       s.sentence_number AS sentence_number, o.position_index AS position_index
ORDER BY sentence_number, start_position, position_index`, map[string]any{"doc": docRID.String()})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		tokens := make([]*model.TaggedToken, 0, len(records))
		for _, record := range records {
			token, err := tokenFromRecord(record)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token)
		}
		return tokens, nil
	})
	if err != nil {
		return nil, helper.NewError("select tagged tokens", err)
	}

	return result.([]*model.TaggedToken), nil
}

// SelectSpans returns every occurrence of the given tags in the document
// ordered by start offset.
func (s *Store) SelectSpans(ctx context.Context, docRID uuid.UUID, identities []model.TagIdentity) ([]model.Span, error) {
	keys := make([]any, len(identities))
	for i, id := range identities {
		keys[i] = id.String()
	}

	result, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (:AnnotatedText {id: $doc})-[:CONTAINS_SENTENCE]->(:Sentence)
      -[:SENTENCE_TAG_OCCURRENCE]->(o:TagOccurrence)-[:TAG_OCCURRENCE_TAG]->(t:Tag)
WHERE t.id IN $ids
RETURN t.value AS value, t.language AS language,
       o.start_position AS start_position, o.end_position AS end_position
ORDER BY start_position`, map[string]any{"doc": docRID.String(), "ids": keys})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		spans := make([]model.Span, 0, len(records))
		for _, record := range records {
			span := model.Span{}
			if span.Identity.Value, err = value[string](record, "value"); err != nil {
				return nil, err
			}
			if span.Identity.Language, err = value[string](record, "language"); err != nil {
				return nil, err
			}
			if span.StartOffset, err = intValue(record, "start_position"); err != nil {
				return nil, err
			}
			if span.EndOffset, err = intValue(record, "end_position"); err != nil {
				return nil, err
			}
			spans = append(spans, span)
		}
		return spans, nil
	})
	if err != nil {
		return nil, helper.NewError("select spans", err)
	}

	return result.([]model.Span), nil
}

func tokenFromRecord(record *neo4j.Record) (*model.TaggedToken, error) {
	var err error
	token := &model.TaggedToken{}
	if token.Text, err = value[string](record, "value"); err != nil {
		return nil, err
	}
	if token.Language, err = value[string](record, "language"); err != nil {
		return nil, err
	}
	if token.StartOffset, err = intValue(record, "start_position"); err != nil {
		return nil, err
	}
	if token.EndOffset, err = intValue(record, "end_position"); err != nil {
		return nil, err
	}
	if token.SentenceIndex, err = intValue(record, "sentence_number"); err != nil {
		return nil, err
	}
	if token.SentenceOrderIndex, err = intValue(record, "position_index"); err != nil {
		return nil, err
	}

	pos, err := value[[]any](record, "pos")
	if err != nil {
		return nil, err
	}
	for _, p := range pos {
		if tag, ok := p.(string); ok {
			token.POSTags = append(token.POSTags, tag)
		}
	}

	return token, nil
}

// documentExists returns model.ErrDocumentNotFound if the document is missing.
func documentExists(ctx context.Context, tx neo4j.ManagedTransaction, docRID uuid.UUID) error {
	res, err := tx.Run(ctx, `MATCH (d:AnnotatedText {id: $doc}) RETURN count(d) AS n`, map[string]any{"doc": docRID.String()})
	if err != nil {
		return err
	}
	record, err := res.Single(ctx)
	if err != nil {
		return err
	}
	n, err := value[int64](record, "n")
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %v", model.ErrDocumentNotFound, docRID)
	}
	return nil
}

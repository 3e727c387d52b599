package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siherrmann/keygrapher/helper"
	"github.com/siherrmann/keygrapher/model"
	loadSql "github.com/siherrmann/keygrapher/sql"
)

// TagsDBHandlerFunctions defines the interface for the tagged token store.
type TagsDBHandlerFunctions interface {
	InsertAnnotatedText(ctx context.Context, docRID uuid.UUID, sentences []*model.Sentence) error
	SelectTaggedTokens(ctx context.Context, docRID uuid.UUID) ([]*model.TaggedToken, error)
	SelectSpans(ctx context.Context, docRID uuid.UUID, identities []model.TagIdentity) ([]model.Span, error)
}

// TagsDBHandler handles sentences, tags and tag occurrences.
type TagsDBHandler struct {
	db *helper.Database
}

// NewTagsDBHandler creates a new tags database handler.
// The documents table must already exist.
// If force is true, it will reload the SQL functions even if they already exist.
func NewTagsDBHandler(db *helper.Database, force bool) (*TagsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	tagsDbHandler := &TagsDBHandler{
		db: db,
	}

	err := loadSql.LoadTagsSql(tagsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load tags sql", err)
	}

	err = tagsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized TagsDBHandler")

	return tagsDbHandler, nil
}

// CreateTable creates the 'tags', 'sentences' and 'tag_occurrences' tables.
// If a table already exists, it does not create it again.
func (h *TagsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_tags();`)
	if err != nil {
		log.Panicf("error initializing tags tables: %#v", err)
	}

	h.db.Logger.Info("Checked/created tables tags, sentences and tag_occurrences")

	return nil
}

// InsertAnnotatedText stores the tagged sentences of a document in one transaction.
// Tags are shared across documents and created on first use.
func (h *TagsDBHandler) InsertAnnotatedText(ctx context.Context, docRID uuid.UUID, sentences []*model.Sentence) error {
	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	for _, sentence := range sentences {
		var sentenceID sql.NullInt64
		err := tx.QueryRowContext(
			ctx,
			`SELECT insert_sentence($1, $2, $3)`,
			docRID,
			sentence.Index,
			sentence.Text,
		).Scan(&sentenceID)
		if err != nil {
			return helper.NewError("insert sentence", err)
		}
		if !sentenceID.Valid {
			return helper.NewError("insert sentence", fmt.Errorf("%w: %v", model.ErrDocumentNotFound, docRID))
		}

		for i, token := range sentence.Tokens {
			id, err := model.NewTagIdentity(token.Text, token.Language)
			if id.Value == "" {
				return helper.NewError(fmt.Sprintf("tag identity of token %d in sentence %d", i, sentence.Index), err)
			} else if err != nil {
				h.db.Logger.Warn("Storing malformed tag identity", slog.String("identity", id.String()), slog.String("error", err.Error()))
			}

			_, err = tx.ExecContext(
				ctx,
				`SELECT insert_tag_occurrence($1, $2, $3, $4, $5, $6, $7, $8)`,
				sentenceID.Int64,
				id.String(),
				token.Text,
				token.Language,
				token.StartOffset,
				token.EndOffset,
				token.SentenceOrderIndex,
				pq.Array(token.POSTags),
			)
			if err != nil {
				return helper.NewError("insert tag occurrence", err)
			}
		}
	}

	err = tx.Commit()
	if err != nil {
		return helper.NewError("commit", err)
	}

	return nil
}

// SelectTaggedTokens returns the tokens of a document ordered by sentence,
// then start offset.
func (h *TagsDBHandler) SelectTaggedTokens(ctx context.Context, docRID uuid.UUID) ([]*model.TaggedToken, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_tagged_tokens($1)`,
		docRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var tokens []*model.TaggedToken
	for rows.Next() {
		token := &model.TaggedToken{}
		err := rows.Scan(
			&token.Text,
			&token.Language,
			pq.Array(&token.POSTags),
			&token.StartOffset,
			&token.EndOffset,
			&token.SentenceIndex,
			&token.SentenceOrderIndex,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		tokens = append(tokens, token)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return tokens, nil
}

// SelectSpans returns every occurrence of the given tags in the document
// ordered by start offset.
func (h *TagsDBHandler) SelectSpans(ctx context.Context, docRID uuid.UUID, identities []model.TagIdentity) ([]model.Span, error) {
	keys := make([]string, len(identities))
	for i, id := range identities {
		keys[i] = id.String()
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_spans($1, $2)`,
		docRID,
		pq.Array(keys),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var spans []model.Span
	for rows.Next() {
		span := model.Span{}
		err := rows.Scan(
			&span.Identity.Value,
			&span.Identity.Language,
			&span.StartOffset,
			&span.EndOffset,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		spans = append(spans, span)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return spans, nil
}

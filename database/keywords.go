package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/keygrapher/helper"
	"github.com/siherrmann/keygrapher/model"
	loadSql "github.com/siherrmann/keygrapher/sql"
)

// KeywordsDBHandlerFunctions defines the interface for keyword persistence.
type KeywordsDBHandlerFunctions interface {
	PersistKeywords(ctx context.Context, docRID uuid.UUID, candidates []model.KeywordCandidate, mode model.AssociationMode) ([]*model.DocumentKeyword, error)
	SelectKeyword(ctx context.Context, id string) (*model.Keyword, error)
	SelectKeywordsByDocument(ctx context.Context, docRID uuid.UUID) ([]*model.DocumentKeyword, error)
}

// KeywordsDBHandler handles keywords and their document associations.
type KeywordsDBHandler struct {
	db *helper.Database
}

// NewKeywordsDBHandler creates a new keywords database handler.
// The documents table must already exist.
// If force is true, it will reload the SQL functions even if they already exist.
func NewKeywordsDBHandler(db *helper.Database, force bool) (*KeywordsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	keywordsDbHandler := &KeywordsDBHandler{
		db: db,
	}

	err := loadSql.LoadKeywordsSql(keywordsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load keywords sql", err)
	}

	err = keywordsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized KeywordsDBHandler")

	return keywordsDbHandler, nil
}

// CreateTable creates the 'keywords' and 'keyword_documents' tables.
// If a table already exists, it does not create it again.
func (h *KeywordsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_keywords();`)
	if err != nil {
		log.Panicf("error initializing keywords tables: %#v", err)
	}

	h.db.Logger.Info("Checked/created tables keywords and keyword_documents")

	return nil
}

// PersistKeywords links the candidates to a document in one transaction.
// Keywords are found or created by key. With AssociationAppend every call
// adds a new association, with AssociationUpsert the latest association of
// a keyword is updated. The document must exist, otherwise nothing is written
// and model.ErrDocumentNotFound is returned.
func (h *KeywordsDBHandler) PersistKeywords(ctx context.Context, docRID uuid.UUID, candidates []model.KeywordCandidate, mode model.AssociationMode) ([]*model.DocumentKeyword, error) {
	if !mode.Valid() {
		return nil, helper.NewError("persist keywords", fmt.Errorf("%w: unknown association mode %q", model.ErrInvalidConfig, mode))
	}

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return nil, helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	documentID, err := selectDocumentID(ctx, tx, docRID)
	if err != nil {
		return nil, helper.NewError("select document", err)
	}

	associate := `SELECT * FROM insert_keyword_document($1, $2, $3, $4)`
	if mode == model.AssociationUpsert {
		associate = `SELECT * FROM upsert_keyword_document($1, $2, $3, $4)`
	}

	persisted := make([]*model.DocumentKeyword, 0, len(candidates))
	for _, candidate := range candidates {
		keyword := &model.Keyword{}
		err := tx.QueryRowContext(
			ctx,
			`SELECT * FROM find_or_create_keyword($1, $2)`,
			candidate.Key,
			candidate.DisplayValue,
		).Scan(
			&keyword.ID,
			&keyword.Value,
			&keyword.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError(fmt.Sprintf("keyword %s", candidate.Key), err)
		}

		association := &model.DocumentKeyword{Keyword: keyword}
		err = tx.QueryRowContext(
			ctx,
			associate,
			keyword.ID,
			documentID,
			candidate.OccurrenceCount,
			candidate.StopwordsApplied,
		).Scan(
			&association.Count,
			&association.StopwordsApplied,
			&association.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError(fmt.Sprintf("associate %s", candidate.Key), err)
		}

		persisted = append(persisted, association)
	}

	err = tx.Commit()
	if err != nil {
		return nil, helper.NewError("commit", err)
	}

	return persisted, nil
}

// SelectKeyword retrieves a keyword by key.
func (h *KeywordsDBHandler) SelectKeyword(ctx context.Context, id string) (*model.Keyword, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_keyword($1)`,
		id,
	)

	keyword := &model.Keyword{}
	err := row.Scan(
		&keyword.ID,
		&keyword.Value,
		&keyword.CreatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return keyword, nil
}

// SelectKeywordsByDocument returns every association of the document in
// creation order.
func (h *KeywordsDBHandler) SelectKeywordsByDocument(ctx context.Context, docRID uuid.UUID) ([]*model.DocumentKeyword, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_keywords_by_document($1)`,
		docRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var keywords []*model.DocumentKeyword
	for rows.Next() {
		association := &model.DocumentKeyword{Keyword: &model.Keyword{}}
		err := rows.Scan(
			&association.Keyword.ID,
			&association.Keyword.Value,
			&association.Keyword.CreatedAt,
			&association.Count,
			&association.StopwordsApplied,
			&association.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		keywords = append(keywords, association)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return keywords, nil
}

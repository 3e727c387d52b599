package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/keygrapher/core/cooccurrence"
	"github.com/siherrmann/keygrapher/helper"
	"github.com/siherrmann/keygrapher/model"
	loadSql "github.com/siherrmann/keygrapher/sql"
)

// CooccurrencesDBHandlerFunctions defines the interface for co-occurrence edge operations.
type CooccurrencesDBHandlerFunctions interface {
	UpsertCooccurrences(ctx context.Context, relationKind string, weightField string, pairs []model.TagPair) error
	SelectCooccurrence(ctx context.Context, pair model.TagPair, relationKind string, weightField string) (*model.CooccurrenceEdge, error)
	SelectCooccurrencesByDocument(ctx context.Context, docRID uuid.UUID, relationKind string, weightField string) ([]*model.CooccurrenceEdge, error)
	DeleteCooccurrencesByDocument(ctx context.Context, docRID uuid.UUID, relationKind string) (int64, error)
}

// CooccurrencesDBHandler handles the weighted edges between tags.
type CooccurrencesDBHandler struct {
	db *helper.Database
}

// NewCooccurrencesDBHandler creates a new co-occurrences database handler.
// The tags table must already exist.
// If force is true, it will reload the SQL functions even if they already exist.
func NewCooccurrencesDBHandler(db *helper.Database, force bool) (*CooccurrencesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	cooccurrencesDbHandler := &CooccurrencesDBHandler{
		db: db,
	}

	err := loadSql.LoadCooccurrencesSql(cooccurrencesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load cooccurrences sql", err)
	}

	err = cooccurrencesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized CooccurrencesDBHandler")

	return cooccurrencesDbHandler, nil
}

// CreateTable creates the 'cooccurrences' table in the database.
// If the table already exists, it does not create it again.
func (h *CooccurrencesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_cooccurrences();`)
	if err != nil {
		log.Panicf("error initializing cooccurrences table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table cooccurrences")

	return nil
}

// UpsertCooccurrences applies every pair observation in one transaction.
// Repeated pairs are summed first and edges are written in endpoint order.
// A missing edge is created with the observed count, an existing one is
// incremented by it. The weight is stored under weightField. Nothing is
// written if one pair fails.
func (h *CooccurrencesDBHandler) UpsertCooccurrences(ctx context.Context, relationKind string, weightField string, pairs []model.TagPair) error {
	if relationKind == "" || weightField == "" {
		return helper.NewError("upsert cooccurrences", fmt.Errorf("%w: relation kind and weight field are required", model.ErrInvalidConfig))
	}

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	for _, w := range cooccurrence.SortedWeights(pairs) {
		_, err := tx.ExecContext(
			ctx,
			`SELECT upsert_cooccurrence($1, $2, $3, $4, $5)`,
			w.Pair.A.String(),
			w.Pair.B.String(),
			relationKind,
			weightField,
			w.Count,
		)
		if err != nil {
			return helper.NewError(fmt.Sprintf("upsert %s-%s", w.Pair.A, w.Pair.B), err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return helper.NewError("commit", err)
	}

	return nil
}

// SelectCooccurrence retrieves a single edge. The pair order does not matter.
func (h *CooccurrencesDBHandler) SelectCooccurrence(ctx context.Context, pair model.TagPair, relationKind string, weightField string) (*model.CooccurrenceEdge, error) {
	pair = model.NewTagPair(pair.A, pair.B)

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_cooccurrence($1, $2, $3, $4)`,
		pair.A.String(),
		pair.B.String(),
		relationKind,
		weightField,
	)

	edge, err := scanCooccurrence(row, weightField)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return edge, nil
}

// SelectCooccurrencesByDocument returns the edges whose endpoints are both
// tags of the document.
func (h *CooccurrencesDBHandler) SelectCooccurrencesByDocument(ctx context.Context, docRID uuid.UUID, relationKind string, weightField string) ([]*model.CooccurrenceEdge, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_cooccurrences_by_document($1, $2, $3)`,
		docRID,
		relationKind,
		weightField,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var edges []*model.CooccurrenceEdge
	for rows.Next() {
		edge, err := scanCooccurrence(rows, weightField)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		edges = append(edges, edge)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return edges, nil
}

// DeleteCooccurrencesByDocument deletes every relationKind edge touching at
// least one tag of the document and returns the number of deleted edges.
func (h *CooccurrencesDBHandler) DeleteCooccurrencesByDocument(ctx context.Context, docRID uuid.UUID, relationKind string) (int64, error) {
	var deleted int64
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT delete_cooccurrences_by_document($1, $2)`,
		docRID,
		relationKind,
	).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("exec", err)
	}

	return deleted, nil
}

func scanCooccurrence(row scanner, weightField string) (*model.CooccurrenceEdge, error) {
	edge := &model.CooccurrenceEdge{WeightField: weightField}
	err := row.Scan(
		&edge.ID,
		&edge.A.Value,
		&edge.A.Language,
		&edge.B.Value,
		&edge.B.Language,
		&edge.RelationKind,
		&edge.Weight,
		&edge.CreatedAt,
		&edge.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return edge, nil
}

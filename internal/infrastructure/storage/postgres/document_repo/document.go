// Package document_repo stores documents and their lines in PostgreSQL.
package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/document"
	"stockflow/internal/infrastructure/storage/postgres"
)

const (
	documentsTable = "doc_documents"
	linesTable     = "doc_document_lines"
)

var (
	documentColumns = postgres.Columns[document.Document]()
	lineColumns     = []string{"line_id", "document_id", "line_no", "item_key", "item_kind", "quantity", "unit_price"}
)

var _ document.Repository = (*DocumentRepo)(nil)

// DocumentRepo implements document.Repository.
type DocumentRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewDocumentRepo creates a document repository.
func NewDocumentRepo(txm *postgres.TxManager) *DocumentRepo {
	return &DocumentRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts the header and its lines.
func (r *DocumentRepo) Create(ctx context.Context, doc *document.Document) error {
	data := postgres.Pick(postgres.StructToMap(doc), documentColumns...)

	sql, args, err := r.builder.Insert(documentsTable).SetMap(data).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewConflict("document already exists").
				WithDetail(apperror.DetailDocumentID, doc.ID).
				WithCause(err)
		}
		return fmt.Errorf("insert %s: %w", documentsTable, err)
	}
	return r.insertLines(ctx, doc)
}

func (r *DocumentRepo) Get(ctx context.Context, docID id.ID) (*document.Document, error) {
	return r.get(ctx, docID, false)
}

func (r *DocumentRepo) GetForUpdate(ctx context.Context, docID id.ID) (*document.Document, error) {
	return r.get(ctx, docID, true)
}

func (r *DocumentRepo) get(ctx context.Context, docID id.ID, forUpdate bool) (*document.Document, error) {
	q := r.builder.Select(documentColumns...).
		From(documentsTable).
		Where(squirrel.Eq{"id": docID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var doc document.Document
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &doc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("document", docID)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}

	lines, err := r.loadLines(ctx, []id.ID{doc.ID})
	if err != nil {
		return nil, err
	}
	doc.Lines = lines[doc.ID]
	return &doc, nil
}

// Update writes the header under an optimistic version check and replaces the lines.
func (r *DocumentRepo) Update(ctx context.Context, doc *document.Document) error {
	data := postgres.Pick(postgres.StructToMap(doc),
		postgres.Omit(documentColumns, "id", "created_at", "created_by", "version")...)

	sql, args, err := r.builder.Update(documentsTable).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": doc.ID, "version": doc.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", documentsTable, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("document", doc.ID)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx,
		"DELETE FROM "+linesTable+" WHERE document_id = $1", doc.ID); err != nil {
		return fmt.Errorf("delete lines: %w", err)
	}
	if err := r.insertLines(ctx, doc); err != nil {
		return err
	}

	doc.Version++
	return nil
}

func (r *DocumentRepo) List(ctx context.Context, filter document.Filter) ([]*document.Document, error) {
	q := r.builder.Select(documentColumns...).
		From(documentsTable).
		OrderBy("created_at", "id")

	if len(filter.Types) > 0 {
		q = q.Where(squirrel.Eq{"doc_type": filter.Types})
	}
	if len(filter.States) > 0 {
		q = q.Where(squirrel.Eq{"state": filter.States})
	}
	if filter.Warehouse != "" {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"source_warehouse": filter.Warehouse},
			squirrel.Eq{"dest_warehouse": filter.Warehouse},
		})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	var docs []*document.Document
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &docs, sql, args...); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		return docs, nil
	}

	ids := make([]id.ID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	lines, err := r.loadLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		d.Lines = lines[d.ID]
	}
	return docs, nil
}

func (r *DocumentRepo) ActiveDocumentsWithItem(ctx context.Context, itemKey string, exclude id.ID) ([]id.ID, error) {
	sql, args, err := r.activeWithItemQuery(itemKey, exclude).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build active documents: %w", err)
	}

	var ids []id.ID
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("active documents with item: %w", err)
	}
	return ids, nil
}

func (r *DocumentRepo) activeWithItemQuery(itemKey string, exclude id.ID) squirrel.SelectBuilder {
	return r.builder.Select("DISTINCT d.id").
		From(documentsTable + " d").
		Join(linesTable + " l ON l.document_id = d.id").
		Where(squirrel.Eq{"l.item_key": itemKey}).
		Where(squirrel.NotEq{"d.id": exclude}).
		Where(squirrel.Eq{"d.state": []document.State{
			document.StateDraft, document.StatePendingApproval, document.StateRejected,
		}})
}

// LockItem takes a transaction-scoped advisory lock on itemKey. Under READ
// COMMITTED the following ActiveDocumentsWithItem then sees lines committed
// by whoever held the lock before.
func (r *DocumentRepo) LockItem(ctx context.Context, itemKey string) error {
	sql, args, err := r.lockItemQuery(itemKey).ToSql()
	if err != nil {
		return fmt.Errorf("build item lock: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("lock item %s: %w", itemKey, err)
	}
	return nil
}

// itemLockClass keeps item locks apart from other advisory lock users.
const itemLockClass int32 = 0x5f17

func (r *DocumentRepo) lockItemQuery(itemKey string) squirrel.SelectBuilder {
	return r.builder.Select().
		Column(squirrel.Expr("pg_advisory_xact_lock(?, hashtext(?))", itemLockClass, itemKey))
}

type lineRow struct {
	DocumentID id.ID `db:"document_id"`
	document.LineItem
}

func (r *DocumentRepo) loadLines(ctx context.Context, docIDs []id.ID) (map[id.ID][]document.LineItem, error) {
	sql, args, err := r.builder.Select(lineColumns...).
		From(linesTable).
		Where(squirrel.Eq{"document_id": docIDs}).
		OrderBy("document_id", "line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lines select: %w", err)
	}

	var rows []lineRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("load lines: %w", err)
	}

	out := make(map[id.ID][]document.LineItem, len(docIDs))
	for _, row := range rows {
		out[row.DocumentID] = append(out[row.DocumentID], row.LineItem)
	}
	return out, nil
}

// insertLines uses COPY inside a transaction and a multi-row INSERT otherwise.
func (r *DocumentRepo) insertLines(ctx context.Context, doc *document.Document) error {
	if len(doc.Lines) == 0 {
		return nil
	}

	if r.txm.GetTx(ctx) != nil {
		rows := make([][]any, 0, len(doc.Lines))
		for _, l := range doc.Lines {
			rows = append(rows, []any{l.LineID, doc.ID, l.LineNo, l.ItemKey, string(l.ItemKind), l.Quantity.Int64Scaled(), l.UnitPrice})
		}
		if _, err := r.txm.CopyRows(ctx, linesTable, lineColumns, rows); err != nil {
			return fmt.Errorf("copy lines: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(linesTable).Columns(lineColumns...)
	for _, l := range doc.Lines {
		q = q.Values(l.LineID, doc.ID, l.LineNo, l.ItemKey, string(l.ItemKind), l.Quantity.Int64Scaled(), l.UnitPrice)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build lines insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}
	return nil
}

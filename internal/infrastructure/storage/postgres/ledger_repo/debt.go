package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/infrastructure/storage/postgres"
)

const debtEntriesTable = "reg_debt_entries"

var debtColumns = postgres.Columns[ledger.DebtEntry]()

var _ ledger.DebtRepository = (*DebtRepo)(nil)

// DebtRepo implements ledger.DebtRepository.
type DebtRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewDebtRepo creates a debt repository.
func NewDebtRepo(txm *postgres.TxManager) *DebtRepo {
	return &DebtRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *DebtRepo) Create(ctx context.Context, entry *ledger.DebtEntry) error {
	sql, args, err := r.builder.Insert(debtEntriesTable).
		SetMap(postgres.Pick(postgres.StructToMap(entry), debtColumns...)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewConflict("debt already posted for document").
				WithDetail(apperror.DetailDocumentID, entry.SourceDocumentID).
				WithCause(err)
		}
		return fmt.Errorf("insert debt entry: %w", err)
	}
	return nil
}

func (r *DebtRepo) Get(ctx context.Context, entryID id.ID) (*ledger.DebtEntry, error) {
	return r.getOne(ctx, squirrel.Eq{"id": entryID}, false, entryID)
}

func (r *DebtRepo) GetBySourceForUpdate(ctx context.Context, sourceDocumentID id.ID) (*ledger.DebtEntry, error) {
	return r.getOne(ctx, squirrel.Eq{"source_document_id": sourceDocumentID}, true, sourceDocumentID)
}

func (r *DebtRepo) getOne(ctx context.Context, where squirrel.Eq, forUpdate bool, ref id.ID) (*ledger.DebtEntry, error) {
	q := r.builder.Select(debtColumns...).From(debtEntriesTable).Where(where)
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var entry ledger.DebtEntry
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &entry, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("debt entry", ref)
		}
		return nil, fmt.Errorf("get debt entry: %w", err)
	}
	return &entry, nil
}

func (r *DebtRepo) ListOpenForUpdate(ctx context.Context, debtor, creditor ledger.Party) ([]*ledger.DebtEntry, error) {
	return r.selectEntries(ctx, r.openEntriesQuery(debtor, creditor))
}

// openEntriesQuery locks the pair's unsettled entries oldest first, the
// order payments are allocated in.
func (r *DebtRepo) openEntriesQuery(debtor, creditor ledger.Party) squirrel.SelectBuilder {
	return r.builder.Select(debtColumns...).
		From(debtEntriesTable).
		Where(squirrel.Eq{
			"debtor":   debtor,
			"creditor": creditor,
			"status":   []ledger.DebtStatus{ledger.DebtOpen, ledger.DebtPartial},
		}).
		OrderBy("created_at", "id").
		Suffix("FOR UPDATE")
}

func (r *DebtRepo) Update(ctx context.Context, entry *ledger.DebtEntry) error {
	sql, args, err := r.builder.Update(debtEntriesTable).
		Set("amount_paid", entry.AmountPaid).
		Set("status", entry.Status).
		Set("updated_at", entry.UpdatedAt).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": entry.ID, "version": entry.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update debt entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("debt entry", entry.ID)
	}
	entry.Version++
	return nil
}

// List returns matching entries oldest first.
func (r *DebtRepo) List(ctx context.Context, filter ledger.DebtFilter) ([]*ledger.DebtEntry, error) {
	q := r.builder.Select(debtColumns...).
		From(debtEntriesTable).
		OrderBy("created_at", "id")
	if filter.Debtor != "" {
		q = q.Where(squirrel.Eq{"debtor": filter.Debtor})
	}
	if filter.Creditor != "" {
		q = q.Where(squirrel.Eq{"creditor": filter.Creditor})
	}
	if len(filter.Statuses) > 0 {
		q = q.Where(squirrel.Eq{"status": filter.Statuses})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	return r.selectEntries(ctx, q)
}

func (r *DebtRepo) selectEntries(ctx context.Context, q squirrel.SelectBuilder) ([]*ledger.DebtEntry, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var out []*ledger.DebtEntry
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list debt entries: %w", err)
	}
	return out, nil
}

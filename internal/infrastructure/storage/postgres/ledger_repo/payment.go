package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/infrastructure/storage/postgres"
)

const (
	paymentsTable    = "reg_payments"
	allocationsTable = "reg_payment_allocations"
)

var paymentColumns = postgres.Columns[ledger.Payment]()

var _ ledger.PaymentRepository = (*PaymentRepo)(nil)

// PaymentRepo implements ledger.PaymentRepository.
type PaymentRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewPaymentRepo creates a payment repository.
func NewPaymentRepo(txm *postgres.TxManager) *PaymentRepo {
	return &PaymentRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create writes the payment and its allocations in one batch. Requires a transaction.
func (r *PaymentRepo) Create(ctx context.Context, p *ledger.Payment) error {
	sql, args, err := r.builder.Insert(paymentsTable).
		SetMap(postgres.Pick(postgres.StructToMap(p), paymentColumns...)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	batch := &pgx.Batch{}
	batch.Queue(sql, args...)
	for i, a := range p.Allocations {
		batch.Queue(`
			INSERT INTO reg_payment_allocations (payment_id, position, debt_entry_id, source_document_id, amount)
			VALUES ($1, $2, $3, $4, $5)
		`, p.ID, i, a.DebtEntryID, a.SourceDocumentID, a.Amount)
	}
	if err := r.txm.ExecBatch(ctx, batch); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepo) Get(ctx context.Context, paymentID id.ID) (*ledger.Payment, error) {
	sql, args, err := r.builder.Select(paymentColumns...).
		From(paymentsTable).
		Where(squirrel.Eq{"id": paymentID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var p ledger.Payment
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("payment", paymentID)
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if err := r.attachAllocations(ctx, []*ledger.Payment{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepo) List(ctx context.Context, filter ledger.PaymentFilter) ([]*ledger.Payment, error) {
	q := r.builder.Select(paymentColumns...).
		From(paymentsTable).
		OrderBy("posted_at", "id")
	if filter.Party != "" {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"payer": filter.Party},
			squirrel.Eq{"payee": filter.Party},
		})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	var out []*ledger.Payment
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	if err := r.attachAllocations(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

type allocationRow struct {
	PaymentID id.ID `db:"payment_id"`
	ledger.Allocation
}

func (r *PaymentRepo) attachAllocations(ctx context.Context, payments []*ledger.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	byID := make(map[id.ID]*ledger.Payment, len(payments))
	ids := make([]id.ID, 0, len(payments))
	for _, p := range payments {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	sql, args, err := r.builder.Select("payment_id", "debt_entry_id", "source_document_id", "amount").
		From(allocationsTable).
		Where(squirrel.Eq{"payment_id": ids}).
		OrderBy("payment_id", "position").
		ToSql()
	if err != nil {
		return fmt.Errorf("build allocations select: %w", err)
	}

	var rows []allocationRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return fmt.Errorf("load allocations: %w", err)
	}
	for _, row := range rows {
		p := byID[row.PaymentID]
		p.Allocations = append(p.Allocations, row.Allocation)
	}
	for _, p := range payments {
		if p.Allocations == nil {
			p.Allocations = []ledger.Allocation{}
		}
	}
	return nil
}

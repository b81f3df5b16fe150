// Package ledger_repo stores stock balances, debt entries and payments in PostgreSQL.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockflow/internal/core/apperror"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/infrastructure/storage/postgres"
)

const stockBalancesTable = "reg_stock_balances"

var balanceColumns = postgres.Columns[ledger.StockBalance]()

var _ ledger.BalanceRepository = (*BalanceRepo)(nil)

// BalanceRepo implements ledger.BalanceRepository.
type BalanceRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewBalanceRepo creates a balance repository.
func NewBalanceRepo(txm *postgres.TxManager) *BalanceRepo {
	return &BalanceRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *BalanceRepo) Get(ctx context.Context, key ledger.BalanceKey) (ledger.StockBalance, error) {
	sql, args, err := r.builder.Select(balanceColumns...).
		From(stockBalancesTable).
		Where(squirrel.Eq{"warehouse_code": key.Warehouse, "item_key": key.ItemKey}).
		ToSql()
	if err != nil {
		return ledger.StockBalance{}, fmt.Errorf("build select: %w", err)
	}

	var b ledger.StockBalance
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return ledger.StockBalance{Warehouse: key.Warehouse, ItemKey: key.ItemKey}, nil
		}
		return ledger.StockBalance{}, fmt.Errorf("get balance %s: %w", key, err)
	}
	return b, nil
}

// GetForUpdate inserts a zero row when missing so there is always a row to lock.
func (r *BalanceRepo) GetForUpdate(ctx context.Context, key ledger.BalanceKey) (ledger.StockBalance, error) {
	q := r.txm.GetQuerier(ctx)
	if _, err := q.Exec(ctx, `
		INSERT INTO reg_stock_balances (warehouse_code, item_key)
		VALUES ($1, $2)
		ON CONFLICT (warehouse_code, item_key) DO NOTHING
	`, key.Warehouse, key.ItemKey); err != nil {
		return ledger.StockBalance{}, fmt.Errorf("ensure balance row %s: %w", key, err)
	}

	sql, args, err := r.builder.Select(balanceColumns...).
		From(stockBalancesTable).
		Where(squirrel.Eq{"warehouse_code": key.Warehouse, "item_key": key.ItemKey}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return ledger.StockBalance{}, fmt.Errorf("build select: %w", err)
	}

	var b ledger.StockBalance
	if err := pgxscan.Get(ctx, q, &b, sql, args...); err != nil {
		return ledger.StockBalance{}, fmt.Errorf("lock balance %s: %w", key, err)
	}
	return b, nil
}

func (r *BalanceRepo) Save(ctx context.Context, b ledger.StockBalance) (ledger.StockBalance, error) {
	sql, args, err := r.saveQuery(b).ToSql()
	if err != nil {
		return b, fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return b, fmt.Errorf("save balance %s: %w", b.Key(), err)
	}
	if tag.RowsAffected() == 0 {
		return b, apperror.NewConcurrentModification("stock balance", b.Key().String())
	}
	b.Version++
	return b, nil
}

// saveQuery writes the counters only if nobody saved the row since it was read.
func (r *BalanceRepo) saveQuery(b ledger.StockBalance) squirrel.UpdateBuilder {
	return r.builder.Update(stockBalancesTable).
		Set("on_hand", b.OnHand.Int64Scaled()).
		Set("locked", b.Locked.Int64Scaled()).
		Set("held", b.Held.Int64Scaled()).
		Set("updated_at", b.UpdatedAt).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"warehouse_code": b.Warehouse, "item_key": b.ItemKey, "version": b.Version})
}

func (r *BalanceRepo) List(ctx context.Context, filter ledger.BalanceFilter) ([]ledger.StockBalance, error) {
	q := r.builder.Select(balanceColumns...).
		From(stockBalancesTable).
		OrderBy("warehouse_code", "item_key")
	if filter.Warehouse != "" {
		q = q.Where(squirrel.Eq{"warehouse_code": filter.Warehouse})
	}
	if filter.ItemKey != "" {
		q = q.Where(squirrel.Eq{"item_key": filter.ItemKey})
	}
	if filter.OnlyNonZero {
		q = q.Where("(on_hand <> 0 OR locked <> 0 OR held <> 0)")
	}
	return r.selectBalances(ctx, q)
}

// ListForUpdate locks rows in key order, the same order Batch.Load uses.
func (r *BalanceRepo) ListForUpdate(ctx context.Context) ([]ledger.StockBalance, error) {
	return r.selectBalances(ctx, r.lockAllQuery())
}

func (r *BalanceRepo) lockAllQuery() squirrel.SelectBuilder {
	return r.builder.Select(balanceColumns...).
		From(stockBalancesTable).
		OrderBy("warehouse_code", "item_key").
		Suffix("FOR UPDATE")
}

func (r *BalanceRepo) selectBalances(ctx context.Context, q squirrel.SelectBuilder) ([]ledger.StockBalance, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var out []ledger.StockBalance
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	return out, nil
}

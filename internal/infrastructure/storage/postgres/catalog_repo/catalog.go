// Package catalog_repo stores reference data: warehouses and items.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockflow/internal/domain/document"
	"stockflow/internal/infrastructure/storage/postgres"
)

const (
	warehousesTable = "cat_warehouses"
	itemsTable      = "cat_items"
)

// Warehouse is a stock location. Cashboxes hold money, not goods.
type Warehouse struct {
	Code      string `db:"code" json:"code"`
	Name      string `db:"name" json:"name"`
	IsCashbox bool   `db:"is_cashbox" json:"is_cashbox"`
}

// Item is a catalog entry referenced by document lines.
type Item struct {
	Key  string            `db:"item_key" json:"item_key"`
	Kind document.ItemKind `db:"item_kind" json:"item_kind"`
	Name string            `db:"name" json:"name"`
}

var _ document.MasterData = (*CatalogRepo)(nil)

// CatalogRepo implements document.MasterData and the seed writes.
type CatalogRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewCatalogRepo creates a catalog repository.
func NewCatalogRepo(txm *postgres.TxManager) *CatalogRepo {
	return &CatalogRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *CatalogRepo) WarehouseExists(ctx context.Context, code string) (bool, error) {
	var ok bool
	err := r.txm.GetQuerier(ctx).QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM "+warehousesTable+" WHERE code = $1)", code).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check warehouse %q: %w", code, err)
	}
	return ok, nil
}

func (r *CatalogRepo) ItemKind(ctx context.Context, itemKey string) (document.ItemKind, bool, error) {
	sql, args, err := r.itemKindQuery(itemKey).ToSql()
	if err != nil {
		return "", false, fmt.Errorf("build item select: %w", err)
	}

	var kind string
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &kind, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get item %q: %w", itemKey, err)
	}
	return document.ItemKind(kind), true, nil
}

func (r *CatalogRepo) itemKindQuery(itemKey string) squirrel.SelectBuilder {
	return r.builder.Select("item_kind").
		From(itemsTable).
		Where(squirrel.Eq{"item_key": itemKey})
}

// UpsertWarehouse inserts or renames a warehouse.
func (r *CatalogRepo) UpsertWarehouse(ctx context.Context, w Warehouse) error {
	sql, args, err := r.builder.Insert(warehousesTable).
		Columns("code", "name", "is_cashbox").
		Values(w.Code, w.Name, w.IsCashbox).
		Suffix("ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, is_cashbox = EXCLUDED.is_cashbox").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert warehouse %s: %w", w.Code, err)
	}
	return nil
}

// UpsertItem inserts or updates an item.
func (r *CatalogRepo) UpsertItem(ctx context.Context, it Item) error {
	sql, args, err := r.builder.Insert(itemsTable).
		Columns("item_key", "item_kind", "name").
		Values(it.Key, string(it.Kind), it.Name).
		Suffix("ON CONFLICT (item_key) DO UPDATE SET item_kind = EXCLUDED.item_kind, name = EXCLUDED.name").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert item %s: %w", it.Key, err)
	}
	return nil
}

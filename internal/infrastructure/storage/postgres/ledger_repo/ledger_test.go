package ledger_repo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/types"
	"stockflow/internal/domain/ledger"
)

func TestOpenEntriesQueryLocksOldestFirst(t *testing.T) {
	repo := NewDebtRepo(nil)
	debtor, creditor := ledger.WarehouseParty("W2"), ledger.WarehouseParty("W1")

	sql, args, err := repo.openEntriesQuery(debtor, creditor).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT "+strings.Join(debtColumns, ", ")+" FROM reg_debt_entries "+
		"WHERE creditor = $1 AND debtor = $2 AND status IN ($3,$4) "+
		"ORDER BY created_at, id FOR UPDATE", sql)
	assert.Equal(t, []any{creditor, debtor, ledger.DebtOpen, ledger.DebtPartial}, args)
}

func TestBalanceSaveQueryChecksVersion(t *testing.T) {
	repo := NewBalanceRepo(nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := ledger.StockBalance{
		Warehouse: "W1", ItemKey: "P-1",
		OnHand: types.Units(5), Locked: types.Units(2), Held: types.Units(1),
		Version: 7, UpdatedAt: now,
	}

	sql, args, err := repo.saveQuery(b).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "UPDATE reg_stock_balances "+
		"SET on_hand = $1, locked = $2, held = $3, updated_at = $4, version = version + 1 "+
		"WHERE item_key = $5 AND version = $6 AND warehouse_code = $7", sql)
	assert.Equal(t, []any{
		types.Units(5).Int64Scaled(), types.Units(2).Int64Scaled(), types.Units(1).Int64Scaled(), now,
		"P-1", 7, "W1",
	}, args)
}

func TestLockAllQueryUsesKeyOrder(t *testing.T) {
	repo := NewBalanceRepo(nil)

	sql, args, err := repo.lockAllQuery().ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT "+strings.Join(balanceColumns, ", ")+" FROM reg_stock_balances "+
		"ORDER BY warehouse_code, item_key FOR UPDATE", sql)
	assert.Empty(t, args)
}

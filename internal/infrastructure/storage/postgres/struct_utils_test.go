package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stockflow/internal/core/id"
	"stockflow/internal/domain/ledger"
)

type auditedRow struct {
	ledger.StockBalance
	Note    string `db:"note"`
	Ignored string `db:"-"`
	Plain   string
}

func TestColumnsIncludesEmbedded(t *testing.T) {
	cols := Columns[auditedRow]()

	assert.Equal(t, []string{
		"warehouse_code", "item_key", "on_hand", "locked", "held", "version", "updated_at", "note",
	}, cols)
}

func TestStructToMap(t *testing.T) {
	now := time.Now().UTC()
	row := auditedRow{
		StockBalance: ledger.StockBalance{Warehouse: "W1", ItemKey: "P-1", OnHand: 50_000, Version: 3, UpdatedAt: now},
		Note:         "opening",
	}

	m := StructToMap(&row)

	assert.Equal(t, "W1", m["warehouse_code"])
	assert.Equal(t, 3, m["version"])
	assert.Equal(t, now, m["updated_at"])
	assert.Equal(t, "opening", m["note"])
	assert.NotContains(t, m, "Plain")
	assert.Nil(t, StructToMap(id.New()))
}

func TestPickAndOmit(t *testing.T) {
	data := map[string]any{"id": 1, "version": 2, "name": "x"}

	assert.Equal(t, map[string]any{"name": "x"}, Pick(data, "name", "missing"))
	assert.Equal(t, []string{"name"}, Omit([]string{"id", "version", "name"}, "id", "version"))
}

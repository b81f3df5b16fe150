package catalog_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemKindQuery(t *testing.T) {
	repo := NewCatalogRepo(nil)

	sql, args, err := repo.itemKindQuery("VIN-1").ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT item_kind FROM cat_items WHERE item_key = $1", sql)
	assert.Equal(t, []any{"VIN-1"}, args)
}

package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/config"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/document"
	"stockflow/internal/domain/ledger"
	"stockflow/pkg/logger"
)

func memoryConfig() config.Config {
	return config.Config{
		Env:                "test",
		StoreDriver:        config.DriverMemory,
		JWTSecret:          "test-secret-0123456789",
		JWTIssuer:          "stockflow",
		JWTTTL:             time.Hour,
		IdempotencyEnabled: true,
		IdempotencyTTL:     time.Hour,
	}
}

func TestSeedMemoryStore(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(), logger.Nop())
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Migrate(ctx))

	docs, err := a.Seed(ctx, DemoDataset())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, document.StateApproved, d.State)
	}

	oil, err := a.Ledger.GetBalance(ctx, ledger.Key("MAIN", "PART-OIL-5W30"))
	require.NoError(t, err)
	assert.Equal(t, types.Units(120), oil.OnHand)
	assert.Equal(t, types.Units(120), oil.Available())

	car, err := a.Ledger.GetBalance(ctx, ledger.Key("SHOWROOM", "VIN-1HGCM82633A004352"))
	require.NoError(t, err)
	assert.Equal(t, types.Units(1), car.OnHand)
}

func TestRouterServesHealth(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "storage")
}

func TestUnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreDriver = "sqlite"

	_, err := New(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

package workflow_test

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/document"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/domain/workflow"
)

func TestConcurrentSubmitsForLastUnit(t *testing.T) {
	h := newHarness(t)
	h.stock(t, "W1", "P-1", 1)

	docs := []*document.Document{
		h.draft(t, transfer("W1", "W2"), part("P-1", 1, "10")),
		h.draft(t, sale("W1", "ACME"), part("P-1", 1, "10")),
	}

	errs := make([]error, len(docs))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, doc := range docs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = h.engine.Submit(h.ctx, doc.ID, clerk)
		}()
	}
	close(start)
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
		assert.Equal(t, "0.0000", appErr.Details["available"])
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, types.Units(1), h.balance(t, "W1", "P-1").Locked)
}

func TestConcurrentApprovalsOfSameDocument(t *testing.T) {
	h := newHarness(t)
	h.stock(t, "W1", "P-1", 4)
	doc := h.draft(t, transfer("W1", "W2"), part("P-1", 4, "1"))
	_, err := h.engine.Submit(h.ctx, doc.ID, clerk)
	require.NoError(t, err)

	const callers = 5
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.engine.Approve(h.ctx, doc.ID, approver)
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, types.Units(4), h.balance(t, "W2", "P-1").OnHand)
	assert.Equal(t, types.Quantity(0), h.balance(t, "W1", "P-1").OnHand)
}

// TestLockInvariantUnderRandomLoad runs random transitions concurrently and
// checks that every balance keeps 0 <= locked <= on_hand and that locked
// equals what pending documents reserve.
func TestLockInvariantUnderRandomLoad(t *testing.T) {
	h := newHarness(t)
	items := []string{"P-1", "P-2"}
	for _, item := range items {
		h.stock(t, "W1", item, 20)
		h.stock(t, "W2", item, 20)
	}

	var docIDs []id.ID
	for i := range 24 {
		from, to := "W1", "W2"
		if i%2 == 1 {
			from, to = to, from
		}
		doc := h.draft(t, transfer(from, to),
			part(items[i%2], int64(1+i%4), "1"),
			part(items[(i+1)%2], int64(1+i%3), "1"),
		)
		docIDs = append(docIDs, doc.ID)
	}

	var wg sync.WaitGroup
	for w := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(w), 42))
			for range 40 {
				docID := docIDs[rng.IntN(len(docIDs))]
				switch rng.IntN(5) {
				case 0, 1:
					_, _ = h.engine.Submit(h.ctx, docID, clerk)
				case 2:
					_, _ = h.engine.Approve(h.ctx, docID, approver)
				case 3:
					_, _ = h.engine.Reject(h.ctx, docID, approver, "random")
				case 4:
					if rng.IntN(2) == 0 {
						_, _ = h.engine.Reopen(h.ctx, docID, clerk)
					} else {
						_, _ = h.engine.Cancel(h.ctx, docID, clerk, "random")
					}
				}
			}
		}()
	}
	wg.Wait()

	balances, err := h.ledger.ListBalances(h.ctx, ledger.BalanceFilter{})
	require.NoError(t, err)
	for _, b := range balances {
		assert.NoError(t, b.CheckInvariant())
	}

	report, err := h.reconciler.Run(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Corrections)

	var total types.Quantity
	for _, b := range balances {
		total += b.OnHand
	}
	assert.Equal(t, types.Units(80), total, "transfers conserve stock")
}

// conflictingBalances fails the first n saves with a concurrent modification.
type conflictingBalances struct {
	ledger.BalanceRepository
	mu        sync.Mutex
	remaining int
}

func (c *conflictingBalances) Save(ctx context.Context, b ledger.StockBalance) (ledger.StockBalance, error) {
	c.mu.Lock()
	fail := c.remaining > 0
	if fail {
		c.remaining--
	}
	c.mu.Unlock()
	if fail {
		return b, apperror.NewConcurrentModification("stock balance", b.Key().String())
	}
	return c.BalanceRepository.Save(ctx, b)
}

func TestTransitionRetriesConcurrentModification(t *testing.T) {
	h := newHarness(t)
	h.stock(t, "W1", "P-1", 3)
	doc := h.draft(t, transfer("W1", "W2"), part("P-1", 2, "1"))

	flaky := &conflictingBalances{BalanceRepository: h.store.Balances(), remaining: 2}
	engine := workflow.NewEngine(h.store, h.store.Documents(), flaky, h.settlement,
		allowAll(), h.store.History(), h.store.Outbox(),
		workflow.Config{MaxAttempts: 3})

	got, err := engine.Submit(h.ctx, doc.ID, clerk)
	require.NoError(t, err)
	assert.Equal(t, document.StatePendingApproval, got.State)
	assert.Equal(t, types.Units(2), h.balance(t, "W1", "P-1").Locked)

	flaky.remaining = 5
	_, err = engine.Cancel(h.ctx, doc.ID, clerk, "")
	assert.True(t, apperror.IsConcurrentModification(err))
	assert.Equal(t, types.Units(2), h.balance(t, "W1", "P-1").Locked)
}

func TestCancelledContextLeavesNoPartialState(t *testing.T) {
	h := newHarness(t)
	h.stock(t, "W1", "P-1", 3)
	doc := h.draft(t, transfer("W1", "W2"), part("P-1", 2, "1"))

	ctx, cancel := context.WithCancel(h.ctx)
	cancel()
	_, err := h.engine.Submit(ctx, doc.ID, clerk)
	assert.True(t, apperror.HasCode(err, apperror.CodeTimeout))

	assert.Equal(t, types.Quantity(0), h.balance(t, "W1", "P-1").Locked)
	got, err := h.documents.Get(h.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StateDraft, got.State)
}

package workflow

import (
	"context"
	"fmt"
	"time"

	"stockflow/internal/core/id"
	"stockflow/internal/core/security"
	"stockflow/internal/core/tx"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/audit"
	"stockflow/internal/domain/document"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/domain/reservation"
	"stockflow/pkg/logger"
)

// Correction is one balance whose locked counter disagreed with the
// pending documents.
type Correction struct {
	Key       ledger.BalanceKey `json:"key"`
	Before    types.Quantity    `json:"before"`
	Expected  types.Quantity    `json:"expected"`
	After     types.Quantity    `json:"after"`
	Shortfall types.Quantity    `json:"shortfall"`
}

// Report summarizes one reconciliation pass.
type Report struct {
	StartedAt        time.Time    `json:"started_at"`
	FinishedAt       time.Time    `json:"finished_at"`
	PendingDocuments int          `json:"pending_documents"`
	BalancesChecked  int          `json:"balances_checked"`
	Corrections      []Correction `json:"corrections"`
}

// Reconciler rebuilds workflow locks from the documents still pending
// approval. Manual holds are not touched.
type Reconciler struct {
	txm      tx.Manager
	docs     document.Repository
	balances ledger.BalanceRepository
	authz    security.Authorizer
	events   audit.Publisher
	policies map[document.Type]Policy
	now      func() time.Time
}

// NewReconciler creates a reconciler.
func NewReconciler(
	txm tx.Manager,
	docs document.Repository,
	balances ledger.BalanceRepository,
	authz security.Authorizer,
	events audit.Publisher,
) *Reconciler {
	if events == nil {
		events = audit.NopPublisher
	}
	return &Reconciler{
		txm:      txm,
		docs:     docs,
		balances: balances,
		authz:    authz,
		events:   events,
		policies: DefaultPolicies(),
		now:      time.Now,
	}
}

// RunAs checks the reconcile capability and runs a pass.
func (r *Reconciler) RunAs(ctx context.Context, actor security.Actor) (Report, error) {
	if err := security.Require(ctx, r.authz, actor, security.ActionLedgerReconcile, security.Resource{Kind: "ledger"}); err != nil {
		return Report{}, err
	}
	return r.Run(ctx)
}

// Run performs one pass in a single transaction. Balance rows are locked
// before pending documents are read, so a submit committing mid-pass is
// either fully seen or not seen at all.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	report := Report{StartedAt: r.now().UTC()}

	err := r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		report.Corrections = []Correction{}

		rows, err := r.balances.ListForUpdate(ctx)
		if err != nil {
			return fmt.Errorf("lock balances: %w", err)
		}
		pending, err := r.docs.List(ctx, document.Filter{States: []document.State{document.StatePendingApproval}})
		if err != nil {
			return fmt.Errorf("list pending documents: %w", err)
		}
		report.PendingDocuments = len(pending)

		expected := make(map[ledger.BalanceKey]types.Quantity)
		keys := make([]ledger.BalanceKey, 0, len(rows))
		for _, row := range rows {
			keys = append(keys, row.Key())
		}
		for _, doc := range pending {
			policy, ok := r.policies[doc.Type]
			if !ok {
				continue
			}
			for _, m := range policy.Reservations(doc) {
				expected[m.Key] += m.Quantity
				keys = append(keys, m.Key)
			}
		}

		batch := reservation.NewBatch(r.balances)
		if err := batch.Load(ctx, keys...); err != nil {
			return err
		}
		keys = reservation.SortedKeys(keys)
		report.BalancesChecked = len(keys)

		for _, key := range keys {
			bal, _ := batch.Balance(key)
			want := expected[key]
			if bal.Locked == want {
				continue
			}

			target := want
			var shortfall types.Quantity
			if ceiling := types.MaxQuantity(0, bal.OnHand-bal.Held); target > ceiling {
				shortfall = target - ceiling
				target = ceiling
			}
			c := Correction{Key: key, Before: bal.Locked, Expected: want, After: target, Shortfall: shortfall}
			report.Corrections = append(report.Corrections, c)

			if target != bal.Locked {
				if err := batch.SetLocked(key, target); err != nil {
					return err
				}
			}
			logger.Warn(ctx, "reconciliation corrected locked stock",
				"warehouse", key.Warehouse, "item_key", key.ItemKey,
				"before", c.Before.String(), "expected", c.Expected.String(),
				"after", c.After.String(), "shortfall", c.Shortfall.String())
		}

		if _, err := batch.Flush(ctx, r.now().UTC()); err != nil {
			return err
		}
		if len(report.Corrections) == 0 {
			return nil
		}
		return r.events.Publish(ctx, audit.Event{
			AggregateType: "ledger",
			AggregateID:   id.New(),
			EventType:     audit.EventStockReconciled,
			Payload:       report.Corrections,
		})
	})
	if err != nil {
		logger.Error(ctx, "reconciliation failed", "error", err)
		return Report{}, err
	}

	report.FinishedAt = r.now().UTC()
	logger.Info(ctx, "reconciliation finished",
		"pending_documents", report.PendingDocuments,
		"balances_checked", report.BalancesChecked,
		"corrections", len(report.Corrections))
	return report, nil
}

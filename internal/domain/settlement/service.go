// Package settlement posts debts for approved documents and applies
// payments to them.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/security"
	"stockflow/internal/core/tx"
	"stockflow/internal/domain/audit"
	"stockflow/internal/domain/ledger"
	"stockflow/pkg/logger"
)

// Posting asks for a debt of debtor towards creditor.
type Posting struct {
	Debtor           ledger.Party
	Creditor         ledger.Party
	SourceDocumentID id.ID
	Amount           decimal.Decimal
}

// PaymentRequest describes money moving from Payer to Payee.
// With DocumentID set the payment targets the debt posted for that document;
// otherwise it is spread over the pair's open debts, oldest first.
type PaymentRequest struct {
	Payer            ledger.Party
	Payee            ledger.Party
	Amount           decimal.Decimal
	Method           string
	DocumentID       *id.ID
	SourceDocumentID *id.ID
}

// Service implements debt posting and payment allocation.
type Service struct {
	txm      tx.Manager
	debts    ledger.DebtRepository
	payments ledger.PaymentRepository
	authz    security.Authorizer
	events   audit.Publisher
	now      func() time.Time
}

// NewService creates a settlement service.
func NewService(
	txm tx.Manager,
	debts ledger.DebtRepository,
	payments ledger.PaymentRepository,
	authz security.Authorizer,
	events audit.Publisher,
) *Service {
	if events == nil {
		events = audit.NopPublisher
	}
	return &Service{txm: txm, debts: debts, payments: payments, authz: authz, events: events, now: time.Now}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PostDebt creates an OPEN entry for the source document. Posting the same
// document again returns the existing entry unchanged.
func (s *Service) PostDebt(ctx context.Context, p Posting) (*ledger.DebtEntry, error) {
	if err := p.Debtor.Validate(); err != nil {
		return nil, err
	}
	if err := p.Creditor.Validate(); err != nil {
		return nil, err
	}
	if p.Debtor == p.Creditor {
		return nil, apperror.NewValidation("debtor and creditor must differ").
			WithDetail(apperror.DetailDocumentID, p.SourceDocumentID)
	}
	if !p.Amount.IsPositive() {
		return nil, apperror.NewValidation("debt amount must be positive").
			WithDetail(apperror.DetailDocumentID, p.SourceDocumentID)
	}

	var entry *ledger.DebtEntry
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.debts.GetBySourceForUpdate(ctx, p.SourceDocumentID)
		switch {
		case err == nil:
			entry = existing
			return nil
		case !apperror.IsNotFound(err):
			return err
		}

		now := s.now().UTC()
		entry = &ledger.DebtEntry{
			ID:               id.New(),
			Debtor:           p.Debtor,
			Creditor:         p.Creditor,
			SourceDocumentID: p.SourceDocumentID,
			AmountDue:        p.Amount,
			AmountPaid:       decimal.Zero,
			Status:           ledger.DebtOpen,
			CreatedAt:        now,
			UpdatedAt:        now,
			Version:          1,
		}
		return s.debts.Create(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "debt posted",
		"debt_entry_id", entry.ID, "document_id", p.SourceDocumentID,
		"debtor", entry.Debtor, "creditor", entry.Creditor, "amount_due", entry.AmountDue.String())
	return entry, nil
}

// AllocatePayment records a payment on behalf of actor.
func (s *Service) AllocatePayment(ctx context.Context, actor security.Actor, req PaymentRequest) (*ledger.Payment, error) {
	if err := security.Require(ctx, s.authz, actor, security.ActionPaymentAllocate, security.Resource{
		Kind: "payment",
		Attributes: map[string]any{
			"payer":  string(req.Payer),
			"payee":  string(req.Payee),
			"amount": req.Amount.String(),
		},
	}); err != nil {
		return nil, err
	}
	return s.Allocate(ctx, actor.ID, req)
}

// Allocate records a payment without a capability check. Callers that
// already authorized the surrounding operation (cash voucher approval) use it.
func (s *Service) Allocate(ctx context.Context, postedBy string, req PaymentRequest) (*ledger.Payment, error) {
	if err := validatePayment(req); err != nil {
		return nil, err
	}

	var payment *ledger.Payment
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var entries []*ledger.DebtEntry
		if req.DocumentID != nil {
			entry, err := s.targetEntry(ctx, req)
			if err != nil {
				return err
			}
			entries = []*ledger.DebtEntry{entry}
		} else {
			var err error
			entries, err = s.debts.ListOpenForUpdate(ctx, req.Payer, req.Payee)
			if err != nil {
				return fmt.Errorf("list open debts: %w", err)
			}
		}

		now := s.now().UTC()
		payment = &ledger.Payment{
			ID:               id.New(),
			Payer:            req.Payer,
			Payee:            req.Payee,
			Amount:           req.Amount,
			Method:           req.Method,
			SourceDocumentID: req.SourceDocumentID,
			PostedBy:         postedBy,
			PostedAt:         now,
			Allocations:      []ledger.Allocation{},
		}

		left := req.Amount
		for _, entry := range entries {
			if !left.IsPositive() {
				break
			}
			portion := decimal.Min(left, entry.Remaining())
			if !portion.IsPositive() {
				continue
			}
			if err := entry.ApplyPayment(portion, now); err != nil {
				return err
			}
			if err := s.debts.Update(ctx, entry); err != nil {
				return err
			}
			payment.Allocations = append(payment.Allocations, ledger.Allocation{
				DebtEntryID:      entry.ID,
				SourceDocumentID: entry.SourceDocumentID,
				Amount:           portion,
			})
			left = left.Sub(portion)
		}
		payment.Unallocated = left

		if err := s.payments.Create(ctx, payment); err != nil {
			return err
		}
		return s.events.Publish(ctx, audit.Event{
			AggregateType: "payment",
			AggregateID:   payment.ID,
			EventType:     audit.EventPaymentAllocated,
			Payload:       payment,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "payment allocated",
		"payment_id", payment.ID, "payer", payment.Payer, "payee", payment.Payee,
		"amount", payment.Amount.String(), "allocations", len(payment.Allocations),
		"unallocated", payment.Unallocated.String())
	return payment, nil
}

// targetEntry locks the debt of the targeted document and checks the whole
// amount fits, so an overpayment fails before anything is written.
func (s *Service) targetEntry(ctx context.Context, req PaymentRequest) (*ledger.DebtEntry, error) {
	entry, err := s.debts.GetBySourceForUpdate(ctx, *req.DocumentID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("debt entry", *req.DocumentID).
				WithDetail(apperror.DetailDocumentID, *req.DocumentID)
		}
		return nil, err
	}
	if entry.Debtor != req.Payer || entry.Creditor != req.Payee {
		return nil, apperror.NewValidation("targeted debt is not owed by payer to payee").
			WithDetail(apperror.DetailDocumentID, *req.DocumentID).
			WithDetail("debtor", string(entry.Debtor)).
			WithDetail("creditor", string(entry.Creditor))
	}
	if req.Amount.GreaterThan(entry.Remaining()) {
		return nil, apperror.NewOverpayment(entry.ID, entry.Remaining().String(), req.Amount.String()).
			WithDetail(apperror.DetailDocumentID, entry.SourceDocumentID)
	}
	return entry, nil
}

func validatePayment(req PaymentRequest) error {
	if err := req.Payer.Validate(); err != nil {
		return err
	}
	if err := req.Payee.Validate(); err != nil {
		return err
	}
	if req.Payer == req.Payee {
		return apperror.NewValidation("payer and payee must differ")
	}
	if !req.Amount.IsPositive() {
		return apperror.NewValidation("payment amount must be positive").
			WithDetail("amount", req.Amount.String())
	}
	return nil
}

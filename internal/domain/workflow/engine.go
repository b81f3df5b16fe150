package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/security"
	"stockflow/internal/core/tx"
	"stockflow/internal/domain/audit"
	"stockflow/internal/domain/document"
	"stockflow/internal/domain/ledger"
	"stockflow/internal/domain/reservation"
	"stockflow/internal/domain/settlement"
	"stockflow/pkg/logger"
)

var tracer = otel.Tracer("stockflow/workflow")

// Request asks for one transition.
type Request struct {
	Action Action
	Actor  security.Actor
	Reason string
}

// Config tunes the engine.
type Config struct {
	// MaxAttempts bounds internal retries on concurrent modification.
	MaxAttempts int
	// RetryBackoff is the base delay between attempts.
	RetryBackoff time.Duration
}

// DefaultConfig retries three times starting at 20ms.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, RetryBackoff: 20 * time.Millisecond}
}

// Engine applies transitions. Each call is one atomic unit over the document,
// its stock balances, debts, payments, history and outbox.
type Engine struct {
	txm        tx.Manager
	docs       document.Repository
	balances   ledger.BalanceRepository
	settlement *settlement.Service
	authz      security.Authorizer
	history    audit.Recorder
	events     audit.Publisher
	policies   map[document.Type]Policy
	cfg        Config
	now        func() time.Time
}

// NewEngine creates an engine with the default policies.
func NewEngine(
	txm tx.Manager,
	docs document.Repository,
	balances ledger.BalanceRepository,
	settle *settlement.Service,
	authz security.Authorizer,
	history audit.Recorder,
	events audit.Publisher,
	cfg Config,
) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if events == nil {
		events = audit.NopPublisher
	}
	return &Engine{
		txm:        txm,
		docs:       docs,
		balances:   balances,
		settlement: settle,
		authz:      authz,
		history:    history,
		events:     events,
		policies:   DefaultPolicies(),
		cfg:        cfg,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Submit moves a DRAFT to PENDING_APPROVAL and locks its stock.
func (e *Engine) Submit(ctx context.Context, docID id.ID, actor security.Actor) (*document.Document, error) {
	return e.Transition(ctx, docID, Request{Action: ActionSubmit, Actor: actor})
}

// Approve finalizes a pending document.
func (e *Engine) Approve(ctx context.Context, docID id.ID, actor security.Actor) (*document.Document, error) {
	return e.Transition(ctx, docID, Request{Action: ActionApprove, Actor: actor})
}

// Reject returns a pending document to its author with a reason.
func (e *Engine) Reject(ctx context.Context, docID id.ID, actor security.Actor, reason string) (*document.Document, error) {
	return e.Transition(ctx, docID, Request{Action: ActionReject, Actor: actor, Reason: reason})
}

// Cancel abandons a DRAFT or pending document.
func (e *Engine) Cancel(ctx context.Context, docID id.ID, actor security.Actor, reason string) (*document.Document, error) {
	return e.Transition(ctx, docID, Request{Action: ActionCancel, Actor: actor, Reason: reason})
}

// Reopen turns a REJECTED document back into an editable DRAFT.
func (e *Engine) Reopen(ctx context.Context, docID id.ID, actor security.Actor) (*document.Document, error) {
	return e.Transition(ctx, docID, Request{Action: ActionReopen, Actor: actor})
}

// Transition applies req to the document, retrying internally when a
// concurrent writer got there first.
func (e *Engine) Transition(ctx context.Context, docID id.ID, req Request) (*document.Document, error) {
	if _, ok := transitions[req.Action]; !ok {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown action %q", req.Action))
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Action == ActionReject && req.Reason == "" {
		return nil, apperror.NewValidation("reject requires a reason").
			WithDetail(apperror.DetailDocumentID, docID)
	}

	ctx, span := tracer.Start(ctx, "workflow."+string(req.Action))
	defer span.End()
	span.SetAttributes(
		attribute.String("document.id", docID.String()),
		attribute.String("actor.id", req.Actor.ID),
	)

	var doc *document.Document
	var err error
	for attempt := 1; ; attempt++ {
		err = e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			var applyErr error
			doc, applyErr = e.apply(ctx, docID, req)
			return applyErr
		})
		if err == nil || !apperror.IsConcurrentModification(err) || attempt >= e.cfg.MaxAttempts {
			break
		}
		logger.Warn(ctx, "transition conflicted, retrying",
			"document_id", docID, "action", req.Action, "attempt", attempt)
		if waitErr := e.backoff(ctx, attempt); waitErr != nil {
			err = waitErr
			break
		}
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = apperror.NewTimeout(err).WithDetail(apperror.DetailDocumentID, docID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logger.Info(ctx, "document transitioned",
		"document_id", doc.ID, "number", doc.Number, "type", doc.Type,
		"action", req.Action, "state", doc.State)
	return doc, nil
}

func (e *Engine) backoff(ctx context.Context, attempt int) error {
	base := e.cfg.RetryBackoff * time.Duration(attempt)
	delay := base
	if base > 0 {
		delay = base + rand.N(base)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) apply(ctx context.Context, docID id.ID, req Request) (*document.Document, error) {
	doc, err := e.docs.GetForUpdate(ctx, docID)
	if err != nil {
		return nil, err
	}

	from := doc.State
	next, ok := Next(from, req.Action)
	if !ok {
		return nil, apperror.NewInvalidState(doc.ID, string(from), string(req.Action))
	}
	t := transitions[req.Action]
	if err := security.Require(ctx, e.authz, req.Actor, t.capability, document.Resource(doc)); err != nil {
		return nil, err
	}
	policy, ok := e.policies[doc.Type]
	if !ok {
		return nil, apperror.NewInternal(fmt.Errorf("no policy for document type %s", doc.Type))
	}

	now := e.now().UTC()
	switch req.Action {
	case ActionSubmit:
		err = e.submit(ctx, doc, policy, req.Actor, now)
	case ActionApprove:
		err = e.approve(ctx, doc, policy, req.Actor, now)
	case ActionReject:
		if err = notSubmitter(doc, req.Actor, "reject"); err == nil {
			err = e.release(ctx, doc, policy, now)
		}
		doc.RejectionReason = req.Reason
	case ActionCancel:
		if from == document.StatePendingApproval {
			err = e.release(ctx, doc, policy, now)
		}
		doc.CancelReason = req.Reason
	case ActionReopen:
		doc.SubmittedBy = ""
		doc.SubmittedAt = nil
	}
	if err != nil {
		return nil, err
	}

	doc.State = next
	doc.UpdatedAt = now
	if err := e.docs.Update(ctx, doc); err != nil {
		return nil, err
	}
	if err := e.record(ctx, doc, from, req, now); err != nil {
		return nil, err
	}
	if err := e.events.Publish(ctx, audit.Event{
		AggregateType: "document",
		AggregateID:   doc.ID,
		EventType:     t.event,
		Payload: map[string]any{
			"document_id": doc.ID,
			"number":      doc.Number,
			"type":        doc.Type,
			"from_state":  from,
			"to_state":    doc.State,
			"actor":       req.Actor.ID,
			"reason":      req.Reason,
		},
	}); err != nil {
		return nil, fmt.Errorf("publish event: %w", err)
	}
	return doc, nil
}

func (e *Engine) submit(ctx context.Context, doc *document.Document, policy Policy, actor security.Actor, now time.Time) error {
	if len(doc.Lines) == 0 {
		return apperror.NewValidation("document has no lines").
			WithDetail(apperror.DetailDocumentID, doc.ID)
	}

	moves := policy.Reservations(doc)
	batch := reservation.NewBatch(e.balances)
	if err := batch.Load(ctx, keysOf(moves)...); err != nil {
		return err
	}
	for _, m := range moves {
		if err := batch.Reserve(m.Key, m.Quantity); err != nil {
			return withLine(err, doc.ID, m.LineID)
		}
	}
	if _, err := batch.Flush(ctx, now); err != nil {
		return err
	}

	doc.SubmittedBy = actor.ID
	doc.SubmittedAt = &now
	doc.RejectionReason = ""
	return nil
}

// notSubmitter keeps the submitter from reviewing their own document.
func notSubmitter(doc *document.Document, actor security.Actor, verb string) error {
	if doc.SubmittedBy != "" && doc.SubmittedBy == actor.ID {
		return apperror.NewAuthorization(actor.ID, verb+" a document they submitted").
			WithDetail(apperror.DetailDocumentID, doc.ID)
	}
	return nil
}

func (e *Engine) approve(ctx context.Context, doc *document.Document, policy Policy, actor security.Actor, now time.Time) error {
	if err := notSubmitter(doc, actor, "approve"); err != nil {
		return err
	}

	reserved := policy.Reservations(doc)
	moves := policy.Movements(doc)
	batch := reservation.NewBatch(e.balances)
	if err := batch.Load(ctx, append(keysOf(reserved), keysOf(moves)...)...); err != nil {
		return err
	}
	for _, r := range reserved {
		if err := batch.Release(r.Key, r.Quantity); err != nil {
			return err
		}
	}
	for _, m := range moves {
		if err := batch.Commit(m.Key, m.Quantity, m.Direction); err != nil {
			if apperror.HasCode(err, apperror.CodeNegativeStock) {
				logger.Error(ctx, "stock invariant violation on approve",
					"document_id", doc.ID, "line_id", m.LineID,
					"warehouse", m.Key.Warehouse, "item_key", m.Key.ItemKey,
					"quantity", m.Quantity.String())
			}
			return withLine(err, doc.ID, m.LineID)
		}
	}
	if _, err := batch.Flush(ctx, now); err != nil {
		return err
	}

	if posting, ok := policy.Debt(doc); ok {
		if _, err := e.settlement.PostDebt(ctx, posting); err != nil {
			return err
		}
	}
	if payment, ok := policy.Payment(doc); ok {
		if _, err := e.settlement.Allocate(ctx, actor.ID, payment); err != nil {
			return err
		}
	}

	doc.ApprovedBy = actor.ID
	doc.ApprovedAt = &now
	return nil
}

// release drops the document's locks. Release clamps, so a retry after a
// partially applied release cannot push locked below zero.
func (e *Engine) release(ctx context.Context, doc *document.Document, policy Policy, now time.Time) error {
	reserved := policy.Reservations(doc)
	if len(reserved) == 0 {
		return nil
	}
	batch := reservation.NewBatch(e.balances)
	if err := batch.Load(ctx, keysOf(reserved)...); err != nil {
		return err
	}
	for _, r := range reserved {
		if err := batch.Release(r.Key, r.Quantity); err != nil {
			return err
		}
	}
	_, err := batch.Flush(ctx, now)
	return err
}

func (e *Engine) record(ctx context.Context, doc *document.Document, from document.State, req Request, now time.Time) error {
	if e.history == nil {
		return nil
	}
	snapshot, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return e.history.Record(ctx, audit.Entry{
		ID:         id.New(),
		DocumentID: doc.ID,
		Action:     string(req.Action),
		FromState:  string(from),
		ToState:    string(doc.State),
		Actor:      req.Actor.ID,
		Reason:     req.Reason,
		Snapshot:   snapshot,
		At:         now,
	})
}

func keysOf(moves []Move) []ledger.BalanceKey {
	keys := make([]ledger.BalanceKey, 0, len(moves))
	for _, m := range moves {
		keys = append(keys, m.Key)
	}
	return keys
}

func withLine(err error, docID, lineID id.ID) error {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.
			WithDetail(apperror.DetailDocumentID, docID).
			WithDetail(apperror.DetailLineID, lineID)
	}
	return err
}

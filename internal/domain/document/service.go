package document

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/numerator"
	"stockflow/internal/core/security"
	"stockflow/internal/core/tx"
	"stockflow/pkg/logger"
)

// Service creates drafts and edits their lines. It never touches stock.
type Service struct {
	repo    Repository
	txm     tx.Manager
	master  MasterData
	numbers *numerator.Generator
	authz   security.Authorizer
	now     func() time.Time
}

// NewService creates a document service.
func NewService(
	repo Repository,
	txm tx.Manager,
	master MasterData,
	numbers *numerator.Generator,
	authz security.Authorizer,
) *Service {
	return &Service{repo: repo, txm: txm, master: master, numbers: numbers, authz: authz, now: time.Now}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Resource describes doc for capability checks.
func Resource(doc *Document) security.Resource {
	return security.Resource{
		Kind: "document",
		ID:   doc.ID.String(),
		Attributes: map[string]any{
			"type":             string(doc.Type),
			"state":            string(doc.State),
			"source_warehouse": doc.SourceWarehouse,
			"dest_warehouse":   doc.DestWarehouse,
			"counterparty":     doc.Counterparty,
			"created_by":       doc.CreatedBy,
			"submitted_by":     doc.SubmittedBy,
		},
	}
}

// CreateDraft validates the header against master data and stores a new DRAFT.
func (s *Service) CreateDraft(ctx context.Context, actor security.Actor, h Header, lines ...LineInput) (*Document, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if err := security.Require(ctx, s.authz, actor, security.ActionDocumentCreate, security.Resource{
		Kind:       "document",
		Attributes: map[string]any{"type": string(h.Type)},
	}); err != nil {
		return nil, err
	}
	for _, code := range h.Warehouses() {
		if err := s.requireWarehouse(ctx, code); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	doc := NewDraft(h, actor.ID, now)

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if h.SettlesDocumentID != nil {
			if _, err := s.repo.Get(ctx, *h.SettlesDocumentID); err != nil {
				return err
			}
		}
		for _, in := range lines {
			if err := s.appendLine(ctx, doc, in); err != nil {
				return err
			}
		}
		number, err := s.numbers.Next(ctx, numerator.DefaultConfig(h.Type.NumberPrefix()), now)
		if err != nil {
			return fmt.Errorf("assign number: %w", err)
		}
		doc.Number = number
		return s.repo.Create(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "draft created",
		"document_id", doc.ID, "number", doc.Number, "type", doc.Type, "lines", len(doc.Lines))
	return doc, nil
}

// AddLine appends a line to a DRAFT document.
func (s *Service) AddLine(ctx context.Context, actor security.Actor, docID id.ID, in LineInput) (*Document, error) {
	return s.edit(ctx, actor, docID, "add_line", func(ctx context.Context, doc *Document) error {
		return s.appendLine(ctx, doc, in)
	})
}

// RemoveLine deletes a line from a DRAFT document.
func (s *Service) RemoveLine(ctx context.Context, actor security.Actor, docID, lineID id.ID) (*Document, error) {
	return s.edit(ctx, actor, docID, "remove_line", func(_ context.Context, doc *Document) error {
		for i, l := range doc.Lines {
			if l.LineID == lineID {
				doc.Lines = append(doc.Lines[:i], doc.Lines[i+1:]...)
				return nil
			}
		}
		return apperror.NewNotFound("line", lineID).
			WithDetail(apperror.DetailDocumentID, docID).
			WithDetail(apperror.DetailLineID, lineID)
	})
}

// Get returns a document with its lines.
func (s *Service) Get(ctx context.Context, docID id.ID) (*Document, error) {
	return s.repo.Get(ctx, docID)
}

// List returns documents matching filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]*Document, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) edit(
	ctx context.Context,
	actor security.Actor,
	docID id.ID,
	action string,
	mutate func(ctx context.Context, doc *Document) error,
) (*Document, error) {
	var doc *Document
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if doc.State != StateDraft {
			return apperror.NewInvalidState(doc.ID, string(doc.State), action)
		}
		if err := security.Require(ctx, s.authz, actor, security.ActionDocumentEdit, Resource(doc)); err != nil {
			return err
		}
		if err := mutate(ctx, doc); err != nil {
			return err
		}
		doc.UpdatedAt = s.now().UTC()
		return s.repo.Update(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "draft edited", "document_id", doc.ID, "action", action, "lines", len(doc.Lines))
	return doc, nil
}

func (s *Service) appendLine(ctx context.Context, doc *Document, raw LineInput) error {
	raw.ItemKey = strings.TrimSpace(raw.ItemKey)
	if raw.ItemKey != "" && doc.Type != TypeCashVoucher {
		if err := s.resolveKind(ctx, doc, &raw); err != nil {
			return err
		}
	}

	in, err := raw.normalize(doc.Type)
	if err != nil {
		if appErr, ok := apperror.AsAppError(err); ok {
			return appErr.WithDetail(apperror.DetailDocumentID, doc.ID)
		}
		return err
	}

	if in.ItemKind == KindVehicle {
		if err := s.checkVehicleFree(ctx, doc, in.ItemKey); err != nil {
			return err
		}
	}

	lineNo := 1
	for _, l := range doc.Lines {
		lineNo = max(lineNo, l.LineNo+1)
	}
	doc.Lines = append(doc.Lines, LineItem{
		LineID:    id.New(),
		LineNo:    lineNo,
		ItemKey:   in.ItemKey,
		ItemKind:  in.ItemKind,
		Quantity:  in.Quantity,
		UnitPrice: in.UnitPrice,
	})
	return nil
}

// resolveKind takes the line kind from the catalog. A declared kind that
// disagrees with the catalog is rejected.
func (s *Service) resolveKind(ctx context.Context, doc *Document, in *LineInput) error {
	kind, ok, err := s.master.ItemKind(ctx, in.ItemKey)
	if err != nil {
		return fmt.Errorf("check item %s: %w", in.ItemKey, err)
	}
	if !ok {
		return apperror.NewValidation(fmt.Sprintf("unknown item %q", in.ItemKey)).
			WithDetail(apperror.DetailItemKey, in.ItemKey).
			WithDetail(apperror.DetailDocumentID, doc.ID)
	}
	if in.ItemKind != "" && in.ItemKind != kind {
		return apperror.NewValidation(fmt.Sprintf("item %q is a %s, not a %s", in.ItemKey, kind, in.ItemKind)).
			WithDetail(apperror.DetailItemKey, in.ItemKey).
			WithDetail(apperror.DetailDocumentID, doc.ID).
			WithDetail("item_kind", string(kind))
	}
	in.ItemKind = kind
	return nil
}

// checkVehicleFree rejects a vehicle already on this document or, for
// movements out of stock, on another unfinished document.
func (s *Service) checkVehicleFree(ctx context.Context, doc *Document, itemKey string) error {
	for _, l := range doc.Lines {
		if l.ItemKey == itemKey {
			return apperror.NewConflict("vehicle is already on this document").
				WithDetail(apperror.DetailDocumentID, doc.ID).
				WithDetail(apperror.DetailItemKey, itemKey)
		}
	}
	if doc.Type != TypeTransferNote && doc.Type != TypeSalesInvoice {
		return nil
	}

	if err := s.repo.LockItem(ctx, itemKey); err != nil {
		return fmt.Errorf("lock vehicle %s: %w", itemKey, err)
	}
	others, err := s.repo.ActiveDocumentsWithItem(ctx, itemKey, doc.ID)
	if err != nil {
		return fmt.Errorf("check vehicle %s: %w", itemKey, err)
	}
	if len(others) > 0 {
		return apperror.NewConflict("vehicle is already on another open document").
			WithDetail(apperror.DetailDocumentID, doc.ID).
			WithDetail(apperror.DetailItemKey, itemKey).
			WithDetail("conflicting_document_id", others[0])
	}
	return nil
}

func (s *Service) requireWarehouse(ctx context.Context, code string) error {
	ok, err := s.master.WarehouseExists(ctx, code)
	if err != nil {
		return fmt.Errorf("check warehouse %s: %w", code, err)
	}
	if !ok {
		return apperror.NewValidation(fmt.Sprintf("unknown warehouse %q", code)).
			WithDetail(apperror.DetailWarehouse, code)
	}
	return nil
}

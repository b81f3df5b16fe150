package document

import (
	"context"

	"stockflow/internal/core/id"
)

// Filter narrows document listings. Zero values match everything.
type Filter struct {
	Types     []Type
	States    []State
	Warehouse string // source or destination
	Limit     int
	Offset    int
}

// Repository stores documents with their lines.
type Repository interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, docID id.ID) (*Document, error)

	// GetForUpdate locks the document row until the transaction ends.
	GetForUpdate(ctx context.Context, docID id.ID) (*Document, error)

	// Update writes header and lines if the stored version equals doc.Version,
	// then increments doc.Version.
	Update(ctx context.Context, doc *Document) error

	List(ctx context.Context, filter Filter) ([]*Document, error)

	// ActiveDocumentsWithItem returns ids of DRAFT, PENDING_APPROVAL or REJECTED
	// documents, other than exclude, that have a line for itemKey.
	ActiveDocumentsWithItem(ctx context.Context, itemKey string, exclude id.ID) ([]id.ID, error)

	// LockItem serializes line edits referencing itemKey until the
	// transaction ends. Callers take it before ActiveDocumentsWithItem.
	LockItem(ctx context.Context, itemKey string) error
}

// MasterData answers questions about reference data.
type MasterData interface {
	WarehouseExists(ctx context.Context, code string) (bool, error)

	// ItemKind returns the catalog kind of itemKey; ok is false for unknown items.
	ItemKind(ctx context.Context, itemKey string) (kind ItemKind, ok bool, err error)
}

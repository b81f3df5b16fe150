package memory

import (
	"context"
	"slices"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/document"
)

// DocumentRepo implements document.Repository.
type DocumentRepo struct {
	store *Store
}

func (r *DocumentRepo) Create(ctx context.Context, doc *document.Document) error {
	return r.store.write(ctx, func(st *state) error {
		if _, ok := st.documents[doc.ID]; ok {
			return apperror.NewConflict("document already exists").
				WithDetail(apperror.DetailDocumentID, doc.ID)
		}
		st.documents[doc.ID] = doc.Clone()
		return nil
	})
}

func (r *DocumentRepo) Get(ctx context.Context, docID id.ID) (*document.Document, error) {
	var out *document.Document
	err := r.store.read(ctx, func(st *state) error {
		doc, ok := st.documents[docID]
		if !ok {
			return apperror.NewNotFound("document", docID)
		}
		out = doc.Clone()
		return nil
	})
	return out, err
}

// GetForUpdate is Get; write transactions are already serialized.
func (r *DocumentRepo) GetForUpdate(ctx context.Context, docID id.ID) (*document.Document, error) {
	return r.Get(ctx, docID)
}

func (r *DocumentRepo) Update(ctx context.Context, doc *document.Document) error {
	return r.store.write(ctx, func(st *state) error {
		stored, ok := st.documents[doc.ID]
		if !ok {
			return apperror.NewNotFound("document", doc.ID)
		}
		if stored.Version != doc.Version {
			return apperror.NewConcurrentModification("document", doc.ID)
		}
		doc.Version++
		st.documents[doc.ID] = doc.Clone()
		return nil
	})
}

func (r *DocumentRepo) List(ctx context.Context, filter document.Filter) ([]*document.Document, error) {
	var out []*document.Document
	err := r.store.read(ctx, func(st *state) error {
		for _, doc := range st.documents {
			if matches(doc, filter) {
				out = append(out, doc.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b *document.Document) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if filter.Offset > 0 {
		out = out[min(filter.Offset, len(out)):]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *DocumentRepo) ActiveDocumentsWithItem(ctx context.Context, itemKey string, exclude id.ID) ([]id.ID, error) {
	var out []id.ID
	err := r.store.read(ctx, func(st *state) error {
		for _, doc := range st.documents {
			if doc.ID == exclude || doc.State.IsTerminal() {
				continue
			}
			if slices.ContainsFunc(doc.Lines, func(l document.LineItem) bool { return l.ItemKey == itemKey }) {
				out = append(out, doc.ID)
			}
		}
		return nil
	})
	return out, err
}

// LockItem is a no-op: write transactions already run one at a time.
func (r *DocumentRepo) LockItem(context.Context, string) error { return nil }

func matches(doc *document.Document, f document.Filter) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, doc.Type) {
		return false
	}
	if len(f.States) > 0 && !slices.Contains(f.States, doc.State) {
		return false
	}
	if f.Warehouse != "" && doc.SourceWarehouse != f.Warehouse && doc.DestWarehouse != f.Warehouse {
		return false
	}
	return true
}

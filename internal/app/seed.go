package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"stockflow/internal/core/security"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/document"
	"stockflow/internal/infrastructure/storage/memory"
	"stockflow/internal/infrastructure/storage/postgres/catalog_repo"
)

// CatalogWriter stores reference data.
type CatalogWriter interface {
	UpsertWarehouse(ctx context.Context, w catalog_repo.Warehouse) error
	UpsertItem(ctx context.Context, it catalog_repo.Item) error
}

type memoryCatalog struct {
	c *memory.Catalog
}

func (m memoryCatalog) UpsertWarehouse(ctx context.Context, w catalog_repo.Warehouse) error {
	return m.c.AddWarehouses(ctx, w.Code)
}

func (m memoryCatalog) UpsertItem(ctx context.Context, it catalog_repo.Item) error {
	return m.c.AddItems(ctx, it.Kind, it.Key)
}

// Opening is stock received through an approved purchase order.
type Opening struct {
	Warehouse string
	Supplier  string
	Lines     []document.LineInput
}

// Dataset is the reference data and opening stock of a demo installation.
type Dataset struct {
	Warehouses []catalog_repo.Warehouse
	Items      []catalog_repo.Item
	Openings   []Opening
}

// Seed actors. The approver differs from the author, as approval requires.
var (
	SeedClerk    = security.Actor{ID: "seed-clerk", Name: "Seed clerk", Roles: []string{security.RoleClerk}}
	SeedApprover = security.Actor{ID: "seed-approver", Name: "Seed approver", Roles: []string{security.RoleApprover}}
)

// DemoDataset returns a small installation: two warehouses, a cashbox,
// vehicles and parts.
func DemoDataset() Dataset {
	part := func(key string, units int64, price string) document.LineInput {
		return document.LineInput{
			ItemKey: key, ItemKind: document.KindPart,
			Quantity: types.Units(units), UnitPrice: decimal.RequireFromString(price),
		}
	}
	vehicle := func(vin, price string) document.LineInput {
		return document.LineInput{ItemKey: vin, ItemKind: document.KindVehicle, UnitPrice: decimal.RequireFromString(price)}
	}

	return Dataset{
		Warehouses: []catalog_repo.Warehouse{
			{Code: "MAIN", Name: "Main warehouse"},
			{Code: "SHOWROOM", Name: "Showroom"},
			{Code: "CASH", Name: "Front desk cashbox", IsCashbox: true},
		},
		Items: []catalog_repo.Item{
			{Key: "VIN-1HGCM82633A004352", Kind: document.KindVehicle, Name: "Sedan, silver"},
			{Key: "VIN-2T1BURHE0JC074589", Kind: document.KindVehicle, Name: "Hatchback, red"},
			{Key: "PART-OIL-5W30", Kind: document.KindPart, Name: "Engine oil 5W-30, 1L"},
			{Key: "PART-FILTER-OIL", Kind: document.KindPart, Name: "Oil filter"},
			{Key: "PART-BRAKE-PAD", Kind: document.KindPart, Name: "Brake pad set"},
		},
		Openings: []Opening{
			{
				Warehouse: "MAIN",
				Supplier:  "ACME-PARTS",
				Lines: []document.LineInput{
					part("PART-OIL-5W30", 120, "6.50"),
					part("PART-FILTER-OIL", 40, "9.90"),
					part("PART-BRAKE-PAD", 25, "48.00"),
				},
			},
			{
				Warehouse: "SHOWROOM",
				Supplier:  "FACTORY",
				Lines: []document.LineInput{
					vehicle("VIN-1HGCM82633A004352", "18500"),
					vehicle("VIN-2T1BURHE0JC074589", "16200"),
				},
			},
		},
	}
}

// Seed writes ds. Reference data is upserted; each opening becomes a
// purchase order taken through submit and approve.
func (a *App) Seed(ctx context.Context, ds Dataset) ([]*document.Document, error) {
	for _, w := range ds.Warehouses {
		if err := a.Catalog.UpsertWarehouse(ctx, w); err != nil {
			return nil, fmt.Errorf("seed warehouse %s: %w", w.Code, err)
		}
	}
	for _, it := range ds.Items {
		if err := a.Catalog.UpsertItem(ctx, it); err != nil {
			return nil, fmt.Errorf("seed item %s: %w", it.Key, err)
		}
	}

	docs := make([]*document.Document, 0, len(ds.Openings))
	for _, o := range ds.Openings {
		doc, err := a.Documents.CreateDraft(ctx, SeedClerk, document.Header{
			Type:          document.TypePurchaseOrder,
			DestWarehouse: o.Warehouse,
			Counterparty:  o.Supplier,
			Comment:       "opening stock",
		}, o.Lines...)
		if err != nil {
			return nil, fmt.Errorf("opening for %s: %w", o.Warehouse, err)
		}
		if _, err := a.Engine.Submit(ctx, doc.ID, SeedClerk); err != nil {
			return nil, fmt.Errorf("submit %s: %w", doc.Number, err)
		}
		if doc, err = a.Engine.Approve(ctx, doc.ID, SeedApprover); err != nil {
			return nil, fmt.Errorf("approve %s: %w", doc.Number, err)
		}
		docs = append(docs, doc)
		a.Log.Infow("opening stock posted", "document", doc.Number, "warehouse", o.Warehouse, "lines", len(doc.Lines))
	}
	return docs, nil
}

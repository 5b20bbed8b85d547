package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is the read model of a catalog item as seen by the commerce rules:
// price, availability, stock, and vendor attribution.
type Product struct {
	ID         string
	Name       string
	Price      decimal.Decimal
	CategoryID string
	VendorID   string
	VendorName string
	Active     bool
	// Stock is the tracked quantity on hand. Meaningful only when
	// TrackStock is true.
	Stock      int
	TrackStock bool
}

// Repository defines read operations against the product catalog.
// The catalog itself is owned by another subsystem; this is the consumed
// contract only.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

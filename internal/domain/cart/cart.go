package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/soukmarket/commerce-core/internal/domain/pricing"
)

// UntrackedStockLimit is the sentinel MaxQuantity for products whose stock
// is not tracked.
const UntrackedStockLimit = 1_000_000

var (
	// ErrLineNotFound is returned when a mutation targets a line that is
	// not in the cart.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrProductUnavailable is returned when adding a product that is not
	// active in the catalog.
	ErrProductUnavailable = errors.New("product is not available")
	// ErrOutOfStock is returned when adding a product with no tracked
	// stock left.
	ErrOutOfStock = errors.New("product is out of stock")
	// ErrInvalidQuantity is returned when adding a non-positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// Line is one cached cart entry. UnitPrice tracks the product's effective
// catalog price (after sales); MaxQuantity derives from tracked stock or
// the untracked sentinel. Quantity never exceeds MaxQuantity.
type Line struct {
	ProductID string
	// Variation distinguishes lines of the same product with different
	// options (size, color). Empty for products without variations.
	Variation   string
	Name        string
	UnitPrice   decimal.Decimal
	VendorID    string
	VendorName  string
	Quantity    int
	MaxQuantity int
}

// Key identifies the line within the cart.
func (l Line) Key() string {
	if l.Variation == "" {
		return l.ProductID
	}
	return l.ProductID + "|" + l.Variation
}

// Subtotal is the line's price times quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
}

// IssueKind classifies a problem found by Validate.
type IssueKind string

const (
	IssueOutOfStock        IssueKind = "out_of_stock"
	IssueInsufficientStock IssueKind = "insufficient_stock"
	IssuePriceChanged      IssueKind = "price_changed"
	IssueUnavailable       IssueKind = "product_unavailable"
)

// Issue describes one problem with a cart line, for presentation before
// checkout.
type Issue struct {
	Kind      IssueKind
	ProductID string
	Key       string
	// Available holds the remaining stock for insufficient_stock issues.
	Available int
	// NewPrice holds the current effective price for price_changed issues.
	NewPrice decimal.Decimal
}

// RemoteCart is the authoritative cart persistence service. Mutations are
// keyed by line key; the backing identity (user or anonymous session) is
// fixed at construction time of the implementation.
type RemoteCart interface {
	Load(ctx context.Context) ([]Line, error)
	Put(ctx context.Context, l Line) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Pricer resolves the effective (sale) price used for display in the cart.
type Pricer interface {
	SalePrice(ctx context.Context, productID string, listPrice decimal.Decimal) (pricing.SalePricing, error)
}

package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// PaymentStatus tracks the payment-gateway outcome for an order. It is fed
// by the external payment collaborator and never drives the status machine.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Role identifies who is acting on an order.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleVendor Role = "vendor"
	RoleAdmin  Role = "admin"
)

// Actor is the identity performing an order operation.
type Actor struct {
	ID   string
	Role Role
}

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// ErrStatusConflict is returned by Repository.UpdateStatus when the order's
// status no longer matches the expected value, i.e. a concurrent transition
// won the race.
var ErrStatusConflict = errors.New("order status changed concurrently")

// OrderItem is a single line of an order. Name, vendor attribution, and
// unit price are frozen at purchase time and never track later catalog
// changes.
type OrderItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	VendorID    string          `json:"vendor_id"`
	VendorName  string          `json:"vendor_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// Order is a placed order. Created once at checkout, mutated only through
// the ledger's status transition operation, never deleted.
//
// Total = Subtotal - Discount + Shipping + Tax, floored at zero. Subtotal
// already reflects sale prices; Discount is the coupon amount.
type Order struct {
	ID      string
	BuyerID string
	Items   []OrderItem

	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Shipping   decimal.Decimal
	Tax        decimal.Decimal
	Total      decimal.Decimal
	CouponCode string

	Status        Status
	PaymentStatus PaymentStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// VendorIDs returns the distinct vendors represented in the order's items,
// in first-appearance order.
func (o *Order) VendorIDs() []string {
	seen := make(map[string]struct{}, len(o.Items))
	var ids []string
	for _, item := range o.Items {
		if _, ok := seen[item.VendorID]; ok {
			continue
		}
		seen[item.VendorID] = struct{}{}
		ids = append(ids, item.VendorID)
	}
	return ids
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]Order, error)
	// UpdateStatus sets the order's status if and only if it still equals
	// expected, updating the timestamp atomically. It returns
	// ErrStatusConflict when the guard fails and ErrNotFound when the
	// order does not exist.
	UpdateStatus(ctx context.Context, id string, expected, next Status, at time.Time) error
	// UpdatePaymentStatus records the payment-gateway outcome.
	UpdatePaymentStatus(ctx context.Context, id string, ps PaymentStatus, at time.Time) error
}

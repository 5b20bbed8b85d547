package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/soukmarket/commerce-core/internal/domain/catalog"
	"github.com/soukmarket/commerce-core/internal/domain/pricing"
)

// Sentinel errors for checkout validation.
var (
	ErrEmptyItems      = errors.New("items required")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// ProductUnavailableError indicates a requested product is not active in the
// catalog.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is not available", e.ProductID)
}

// InsufficientStockError indicates the requested quantity exceeds tracked
// stock.
type InsufficientStockError struct {
	ProductID string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %s has only %d in stock", e.ProductID, e.Available)
}

// Pricer resolves effective prices and applies coupons at checkout.
// ReleaseCoupon compensates an applied redemption when order persistence
// fails, so a failed checkout never consumes a coupon use.
type Pricer interface {
	SalePrice(ctx context.Context, productID string, listPrice decimal.Decimal) (pricing.SalePricing, error)
	ApplyCoupon(ctx context.Context, req pricing.CouponRequest) (*pricing.CouponDiscount, error)
	ReleaseCoupon(ctx context.Context, couponID, customerID string) error
}

// Notifier is told about accepted order events. Implementations must not
// block a transition: notification failures are logged by the service, not
// propagated.
type Notifier interface {
	OrderPlaced(ctx context.Context, o *Order) error
	OrderStatusChanged(ctx context.Context, o *Order, previous Status, actor Actor) error
	PaymentChanged(ctx context.Context, o *Order) error
}

// CheckoutItem is a requested order line.
type CheckoutItem struct {
	ProductID string
	Quantity  int
}

// CheckoutRequest holds the input for placing an order. Shipping and Tax are
// computed upstream and carried through into the total.
type CheckoutRequest struct {
	BuyerID    string
	Items      []CheckoutItem
	CouponCode string
	Shipping   decimal.Decimal
	Tax        decimal.Decimal
}

// Service is the order ledger: it creates orders at checkout and enforces
// the role-gated status machine on every mutation.
type Service struct {
	products catalog.Repository
	pricer   Pricer
	orders   Repository
	notifier Notifier
	locks    keyedMutex
	now      func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(products catalog.Repository, pricer Pricer, orders Repository, notifier Notifier) *Service {
	return &Service{
		products: products,
		pricer:   pricer,
		orders:   orders,
		notifier: notifier,
		now:      time.Now,
	}
}

// Checkout validates the requested items against the catalog, freezes unit
// prices at their current effective (sale) price, applies an optional
// coupon, persists the order, and notifies the vendors.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	productMap := make(map[string]catalog.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	subtotal := decimal.Zero
	items := make([]OrderItem, len(req.Items))
	categoryIDs := make([]string, 0, len(req.Items))
	for i, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if !p.Active {
			return nil, &ProductUnavailableError{ProductID: item.ProductID}
		}
		if p.TrackStock && item.Quantity > p.Stock {
			return nil, &InsufficientStockError{ProductID: item.ProductID, Available: p.Stock}
		}

		sp, err := s.pricer.SalePrice(ctx, p.ID, p.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve price for product %s", p.ID)
		}

		items[i] = OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			VendorID:    p.VendorID,
			VendorName:  p.VendorName,
			Quantity:    item.Quantity,
			UnitPrice:   sp.SalePrice,
		}
		subtotal = subtotal.Add(sp.SalePrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		categoryIDs = append(categoryIDs, p.CategoryID)
	}
	subtotal = subtotal.Round(2)

	o := &Order{
		ID:            uuid.New().String(),
		BuyerID:       req.BuyerID,
		Items:         items,
		Subtotal:      subtotal,
		Shipping:      req.Shipping,
		Tax:           req.Tax,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     s.now(),
		UpdatedAt:     s.now(),
	}

	discount := decimal.Zero
	var applied *pricing.CouponDiscount
	if req.CouponCode != "" {
		d, err := s.pricer.ApplyCoupon(ctx, pricing.CouponRequest{
			Code:        req.CouponCode,
			VendorIDs:   o.VendorIDs(),
			CustomerID:  req.BuyerID,
			OrderTotal:  subtotal,
			ProductIDs:  ids,
			CategoryIDs: categoryIDs,
		})
		if err != nil {
			return nil, errors.Wrap(err, "apply coupon")
		}
		applied = d
		discount = d.Amount
		o.CouponCode = d.Coupon.Code
	}

	o.Discount = discount
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	o.Total = total.Add(req.Shipping).Add(req.Tax).Round(2)

	if err := s.orders.Create(ctx, o); err != nil {
		// The order never existed, so the redemption registered above must
		// not stand. Release it; a failed release is logged because the
		// customer would otherwise lose a use to a checkout that failed.
		if applied != nil {
			if rerr := s.pricer.ReleaseCoupon(ctx, applied.Coupon.ID, req.BuyerID); rerr != nil {
				zctx.From(ctx).Error("Coupon release after failed order create",
					zap.String("coupon_id", applied.Coupon.ID),
					zap.String("buyer_id", req.BuyerID),
					zap.Error(rerr))
			}
		}
		return nil, errors.Wrap(err, "create order")
	}

	if err := s.notifier.OrderPlaced(ctx, o); err != nil {
		zctx.From(ctx).Warn("New order notification failed",
			zap.String("order_id", o.ID), zap.Error(err))
	}

	return o, nil
}

// GetByID returns an order by id.
func (s *Service) GetByID(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// ListByBuyer returns the buyer's orders.
func (s *Service) ListByBuyer(ctx context.Context, buyerID string) ([]Order, error) {
	return s.orders.ListByBuyer(ctx, buyerID)
}

// UpdateStatus moves the order to next on behalf of the actor. The change
// is rejected as a no-op with IllegalTransitionError when the transition
// table forbids it. The write is serialized per order id and guarded by a
// compare-and-set at the repository, so concurrent transitions cannot be
// lost. On success the dispatcher is told once.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next Status, actor Actor) (*Order, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	previous := o.Status
	if !CanTransition(previous, next, actor.Role) {
		return nil, &IllegalTransitionError{From: previous, To: next, Actor: actor.Role}
	}

	at := s.now()
	if err := s.orders.UpdateStatus(ctx, orderID, previous, next, at); err != nil {
		return nil, errors.Wrap(err, "update order status")
	}

	o.Status = next
	o.UpdatedAt = at

	if err := s.notifier.OrderStatusChanged(ctx, o, previous, actor); err != nil {
		zctx.From(ctx).Warn("Order status notification failed",
			zap.String("order_id", o.ID),
			zap.String("status", string(next)),
			zap.Error(err))
	}

	return o, nil
}

// SetPaymentStatus records the payment-gateway outcome for the order and
// notifies the buyer.
func (s *Service) SetPaymentStatus(ctx context.Context, orderID string, ps PaymentStatus) (*Order, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	at := s.now()
	if err := s.orders.UpdatePaymentStatus(ctx, orderID, ps, at); err != nil {
		return nil, errors.Wrap(err, "update payment status")
	}

	o.PaymentStatus = ps
	o.UpdatedAt = at

	if err := s.notifier.PaymentChanged(ctx, o); err != nil {
		zctx.From(ctx).Warn("Payment notification failed",
			zap.String("order_id", o.ID), zap.Error(err))
	}

	return o, nil
}

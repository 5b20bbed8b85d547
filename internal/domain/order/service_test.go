package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soukmarket/commerce-core/internal/domain/catalog"
	"github.com/soukmarket/commerce-core/internal/domain/pricing"
	"github.com/soukmarket/commerce-core/internal/domain/promotion"
)

var couponFixture = promotion.Coupon{ID: "c1", Code: "SAVE15"}

// --- Mock implementations ---

type mockProductRepo struct {
	byID map[string]catalog.Product
}

func (m *mockProductRepo) List(context.Context) ([]catalog.Product, error) { return nil, nil }

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockPricer struct {
	salePrices map[string]decimal.Decimal
	discount   *pricing.CouponDiscount
	couponErr  error
	couponReq  *pricing.CouponRequest
	released   []string
}

func (m *mockPricer) SalePrice(_ context.Context, productID string, listPrice decimal.Decimal) (pricing.SalePricing, error) {
	p := pricing.SalePricing{ListPrice: listPrice, SalePrice: listPrice}
	if sp, ok := m.salePrices[productID]; ok {
		p.SalePrice = sp
		p.Discount = listPrice.Sub(sp)
	}
	return p, nil
}

func (m *mockPricer) ApplyCoupon(_ context.Context, req pricing.CouponRequest) (*pricing.CouponDiscount, error) {
	m.couponReq = &req
	if m.couponErr != nil {
		return nil, m.couponErr
	}
	return m.discount, nil
}

func (m *mockPricer) ReleaseCoupon(_ context.Context, couponID, customerID string) error {
	m.released = append(m.released, couponID+":"+customerID)
	return nil
}

type mockOrderRepo struct {
	byID      map[string]*Order
	created   []*Order
	createErr error
	statusErr error
}

func newMockOrderRepo(orders ...*Order) *mockOrderRepo {
	r := &mockOrderRepo{byID: make(map[string]*Order)}
	for _, o := range orders {
		r.byID[o.ID] = o
	}
	return r
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.byID[o.ID] = o
	m.created = append(m.created, o)
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) ListByBuyer(_ context.Context, buyerID string) ([]Order, error) {
	var out []Order
	for _, o := range m.byID {
		if o.BuyerID == buyerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, expected, next Status, at time.Time) error {
	if m.statusErr != nil {
		return m.statusErr
	}
	o, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != expected {
		return ErrStatusConflict
	}
	o.Status = next
	o.UpdatedAt = at
	return nil
}

func (m *mockOrderRepo) UpdatePaymentStatus(_ context.Context, id string, ps PaymentStatus, at time.Time) error {
	o, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	o.PaymentStatus = ps
	o.UpdatedAt = at
	return nil
}

type mockNotifier struct {
	placed         []string
	statusChanges  []string
	paymentChanges []string
	err            error
}

func (m *mockNotifier) OrderPlaced(_ context.Context, o *Order) error {
	m.placed = append(m.placed, o.ID)
	return m.err
}

func (m *mockNotifier) OrderStatusChanged(_ context.Context, o *Order, previous Status, _ Actor) error {
	m.statusChanges = append(m.statusChanges, string(previous)+"->"+string(o.Status))
	return m.err
}

func (m *mockNotifier) PaymentChanged(_ context.Context, o *Order) error {
	m.paymentChanges = append(m.paymentChanges, string(o.PaymentStatus))
	return m.err
}

// --- Helpers ---

func newProductRepo(products ...catalog.Product) *mockProductRepo {
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID}
}

func activeProduct(id, vendorID string, price string) catalog.Product {
	return catalog.Product{
		ID:         id,
		Name:       "Product " + id,
		Price:      decimal.RequireFromString(price),
		CategoryID: "cat-" + id,
		VendorID:   vendorID,
		VendorName: "Vendor " + vendorID,
		Active:     true,
	}
}

func newTestService(products *mockProductRepo, pricer *mockPricer, orders *mockOrderRepo, notifier *mockNotifier) *Service {
	svc := NewService(products, pricer, orders, notifier)
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

// --- Checkout ---

func TestCheckout_EmptyItems(t *testing.T) {
	svc := newTestService(newProductRepo(), &mockPricer{}, newMockOrderRepo(), &mockNotifier{})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{BuyerID: "u1"})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCheckout_InvalidQuantity(t *testing.T) {
	svc := newTestService(newProductRepo(), &mockPricer{}, newMockOrderRepo(), &mockNotifier{})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		BuyerID: "u1",
		Items:   []CheckoutItem{{ProductID: "p1", Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCheckout_ProductNotFound(t *testing.T) {
	svc := newTestService(newProductRepo(), &mockPricer{}, newMockOrderRepo(), &mockNotifier{})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		BuyerID: "u1",
		Items:   []CheckoutItem{{ProductID: "missing", Quantity: 1}},
	})

	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, "missing", pnf.ProductID)
}

func TestCheckout_InactiveProduct(t *testing.T) {
	p := activeProduct("p1", "v1", "10.00")
	p.Active = false
	svc := newTestService(newProductRepo(p), &mockPricer{}, newMockOrderRepo(), &mockNotifier{})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		BuyerID: "u1",
		Items:   []CheckoutItem{{ProductID: "p1", Quantity: 1}},
	})

	var pu *ProductUnavailableError
	require.ErrorAs(t, err, &pu)
	assert.Equal(t, "p1", pu.ProductID)
}

func TestCheckout_InsufficientStock(t *testing.T) {
	p := activeProduct("p1", "v1", "10.00")
	p.TrackStock = true
	p.Stock = 3
	svc := newTestService(newProductRepo(p), &mockPricer{}, newMockOrderRepo(), &mockNotifier{})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		BuyerID: "u1",
		Items:   []CheckoutItem{{ProductID: "p1", Quantity: 5}},
	})

	var is *InsufficientStockError
	require.ErrorAs(t, err, &is)
	assert.Equal(t, 3, is.Available)
}

func TestCheckout_FreezesSalePrices(t *testing.T) {
	p1 := activeProduct("p1", "v1", "100.00")
	p2 := activeProduct("p2", "v2", "20.00")
	pricer := &mockPricer{salePrices: map[string]decimal.Decimal{
		"p1": decimal.RequireFromString("80.00"),
	}}
	orders := newMockOrderRepo()
	notifier := &mockNotifier{}
	svc := newTestService(newProductRepo(p1, p2), pricer, orders, notifier)

	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		BuyerID: "u1",
		Items: []CheckoutItem{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("180.00").Equal(o.Subtotal))
	assert.True(t, decimal.RequireFromString("80.00").Equal(o.Items[0].UnitPrice), "unit price frozen at sale price")
	assert.Equal(t, "Product p1", o.Items[0].ProductName)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	require.Len(t, orders.created, 1)
	assert.Equal(t, []string{o.ID}, notifier.placed)
}

func TestCheckout_WithCoupon(t *testing.T) {
	p1 := activeProduct("p1", "v1", "100.00")
	p2 := activeProduct("p2", "v2", "50.00")
	pricer := &mockPricer{discount: &pricing.CouponDiscount{
		Coupon: &couponFixture,
		Amount: decimal.RequireFromString("15.00"),
	}}
	svc := newTestService(newProductRepo(p1, p2), pricer, newMockOrderRepo(), &mockNotifier{})

	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		BuyerID:    "u1",
		CouponCode: "SAVE15",
		Shipping:   decimal.RequireFromString("5.00"),
		Tax:        decimal.RequireFromString("2.00"),
		Items: []CheckoutItem{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "p2", Quantity: 1},
		},
	})
	require.NoError(t, err)

	// 150 - 15 + 5 + 2
	assert.True(t, decimal.RequireFromString("142.00").Equal(o.Total))
	assert.True(t, decimal.RequireFromString("15.00").Equal(o.Discount))
	assert.Equal(t, "SAVE15", o.CouponCode)

	// The coupon request carries the order's vendors and categories.
	require.NotNil(t, pricer.couponReq)
	assert.ElementsMatch(t, []string{"v1", "v2"}, pricer.couponReq.VendorIDs)
	assert.ElementsMatch(t, []string{"cat-p1", "cat-p2"}, pricer.couponReq.CategoryIDs)
	assert.Equal(t, "u1", pricer.couponReq.CustomerID)
}

func TestCheckout_CouponRejected(t *testing.T) {
	p1 := activeProduct("p1", "v1", "100.00")
	pricer := &mockPricer{couponErr: pricing.ErrUnknownCode}
	orders := newMockOrderRepo()
	svc := newTestService(newProductRepo(p1), pricer, orders, &mockNotifier{})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		BuyerID:    "u1",
		CouponCode: "BOGUS",
		Items:      []CheckoutItem{{ProductID: "p1", Quantity: 1}},
	})

	require.ErrorIs(t, err, pricing.ErrUnknownCode)
	assert.Empty(t, orders.created, "rejected coupon must not create an order")
}

func TestCheckout_TotalFlooredAtZero(t *testing.T) {
	p1 := activeProduct("p1", "v1", "10.00")
	pricer := &mockPricer{discount: &pricing.CouponDiscount{
		Coupon: &couponFixture,
		Amount: decimal.RequireFromString("999.00"),
	}}
	svc := newTestService(newProductRepo(p1), pricer, newMockOrderRepo(), &mockNotifier{})

	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		BuyerID:    "u1",
		CouponCode: "HUGE",
		Items:      []CheckoutItem{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.True(t, decimal.Zero.Equal(o.Total))
}

func TestCheckout_CreateFailureReleasesCoupon(t *testing.T) {
	p1 := activeProduct("p1", "v1", "100.00")
	pricer := &mockPricer{discount: &pricing.CouponDiscount{
		Coupon: &couponFixture,
		Amount: decimal.RequireFromString("15.00"),
	}}
	orders := newMockOrderRepo()
	orders.createErr = errors.New("insert failed")
	svc := newTestService(newProductRepo(p1), pricer, orders, &mockNotifier{})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		BuyerID:    "u1",
		CouponCode: "SAVE15",
		Items:      []CheckoutItem{{ProductID: "p1", Quantity: 1}},
	})

	require.Error(t, err)
	assert.Empty(t, orders.created)
	assert.Equal(t, []string{"c1:u1"}, pricer.released,
		"a failed persist must hand the redemption back")
}

func TestCheckout_CreateFailureWithoutCoupon(t *testing.T) {
	p1 := activeProduct("p1", "v1", "100.00")
	pricer := &mockPricer{}
	orders := newMockOrderRepo()
	orders.createErr = errors.New("insert failed")
	svc := newTestService(newProductRepo(p1), pricer, orders, &mockNotifier{})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		BuyerID: "u1",
		Items:   []CheckoutItem{{ProductID: "p1", Quantity: 1}},
	})

	require.Error(t, err)
	assert.Empty(t, pricer.released, "nothing to release when no coupon was applied")
}

func TestCheckout_NotifyFailureDoesNotFail(t *testing.T) {
	p1 := activeProduct("p1", "v1", "10.00")
	notifier := &mockNotifier{err: errors.New("smtp down")}
	svc := newTestService(newProductRepo(p1), &mockPricer{}, newMockOrderRepo(), notifier)

	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		BuyerID: "u1",
		Items:   []CheckoutItem{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err, "notification failure must not fail checkout")
	assert.NotNil(t, o)
}

// --- UpdateStatus ---

func TestUpdateStatus_AllowedTransition(t *testing.T) {
	orders := newMockOrderRepo(&Order{ID: "o1", Status: StatusPending})
	notifier := &mockNotifier{}
	svc := newTestService(newProductRepo(), &mockPricer{}, orders, notifier)

	o, err := svc.UpdateStatus(context.Background(), "o1", StatusConfirmed, Actor{ID: "v1", Role: RoleVendor})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, []string{"pending->confirmed"}, notifier.statusChanges)
}

func TestUpdateStatus_RejectedTransition(t *testing.T) {
	tests := []struct {
		name  string
		from  Status
		to    Status
		actor Actor
	}{
		{name: "buyer moves forward", from: StatusPending, to: StatusConfirmed, actor: Actor{ID: "u1", Role: RoleBuyer}},
		{name: "vendor skips confirmed", from: StatusPending, to: StatusProcessing, actor: Actor{ID: "v1", Role: RoleVendor}},
		{name: "vendor cancels processing", from: StatusProcessing, to: StatusCancelled, actor: Actor{ID: "v1", Role: RoleVendor}},
		{name: "admin reopens cancelled", from: StatusCancelled, to: StatusPending, actor: Actor{ID: "a1", Role: RoleAdmin}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := newMockOrderRepo(&Order{ID: "o1", Status: tt.from})
			notifier := &mockNotifier{}
			svc := newTestService(newProductRepo(), &mockPricer{}, orders, notifier)

			_, err := svc.UpdateStatus(context.Background(), "o1", tt.to, tt.actor)

			var ite *IllegalTransitionError
			require.ErrorAs(t, err, &ite)
			assert.Equal(t, tt.from, ite.From)
			assert.Equal(t, tt.to, ite.To)
			assert.Equal(t, tt.from, orders.byID["o1"].Status, "order must be unchanged")
			assert.Empty(t, notifier.statusChanges)
		})
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	svc := newTestService(newProductRepo(), &mockPricer{}, newMockOrderRepo(), &mockNotifier{})

	_, err := svc.UpdateStatus(context.Background(), "missing", StatusConfirmed, Actor{Role: RoleAdmin})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus_ConflictSurfaces(t *testing.T) {
	orders := newMockOrderRepo(&Order{ID: "o1", Status: StatusPending})
	orders.statusErr = ErrStatusConflict
	svc := newTestService(newProductRepo(), &mockPricer{}, orders, &mockNotifier{})

	_, err := svc.UpdateStatus(context.Background(), "o1", StatusConfirmed, Actor{Role: RoleVendor})
	require.ErrorIs(t, err, ErrStatusConflict)
}

// --- SetPaymentStatus ---

func TestSetPaymentStatus(t *testing.T) {
	orders := newMockOrderRepo(&Order{ID: "o1", Status: StatusPending, PaymentStatus: PaymentPending})
	notifier := &mockNotifier{}
	svc := newTestService(newProductRepo(), &mockPricer{}, orders, notifier)

	o, err := svc.SetPaymentStatus(context.Background(), "o1", PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Equal(t, []string{"paid"}, notifier.paymentChanges)
}

// --- VendorIDs ---

func TestVendorIDs(t *testing.T) {
	o := Order{Items: []OrderItem{
		{VendorID: "v1"},
		{VendorID: "v2"},
		{VendorID: "v1"},
		{VendorID: "v3"},
	}}
	assert.Equal(t, []string{"v1", "v2", "v3"}, o.VendorIDs())
}

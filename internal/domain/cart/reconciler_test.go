package cart

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soukmarket/commerce-core/internal/domain/catalog"
	"github.com/soukmarket/commerce-core/internal/domain/pricing"
)

// --- Mock implementations ---

type mockRemote struct {
	lines     map[string]Line
	order     []string
	putErr    error
	removeErr error
	clearErr  error
}

func newMockRemote() *mockRemote {
	return &mockRemote{lines: make(map[string]Line)}
}

func (m *mockRemote) Load(context.Context) ([]Line, error) {
	out := make([]Line, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.lines[k])
	}
	return out, nil
}

func (m *mockRemote) Put(_ context.Context, l Line) error {
	if m.putErr != nil {
		return m.putErr
	}
	if _, ok := m.lines[l.Key()]; !ok {
		m.order = append(m.order, l.Key())
	}
	m.lines[l.Key()] = l
	return nil
}

func (m *mockRemote) Remove(_ context.Context, key string) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	delete(m.lines, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockRemote) Clear(context.Context) error {
	if m.clearErr != nil {
		return m.clearErr
	}
	m.lines = make(map[string]Line)
	m.order = nil
	return nil
}

type mockCatalog struct {
	byID map[string]catalog.Product
}

func (m *mockCatalog) List(context.Context) ([]catalog.Product, error) { return nil, nil }

func (m *mockCatalog) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
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
}

func (m *mockPricer) SalePrice(_ context.Context, productID string, listPrice decimal.Decimal) (pricing.SalePricing, error) {
	p := pricing.SalePricing{ListPrice: listPrice, SalePrice: listPrice}
	if sp, ok := m.salePrices[productID]; ok {
		p.SalePrice = sp
		p.Discount = listPrice.Sub(sp)
	}
	return p, nil
}

// --- Helpers ---

func testProduct(id string, price string, stock int, tracked bool) catalog.Product {
	return catalog.Product{
		ID:         id,
		Name:       "Product " + id,
		Price:      decimal.RequireFromString(price),
		VendorID:   "v1",
		VendorName: "Vendor v1",
		Active:     true,
		Stock:      stock,
		TrackStock: tracked,
	}
}

func newTestReconciler(products ...catalog.Product) (*Reconciler, *mockRemote, *mockCatalog, *mockPricer) {
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	remote := newMockRemote()
	cat := &mockCatalog{byID: byID}
	pricer := &mockPricer{salePrices: make(map[string]decimal.Decimal)}
	return NewReconciler(remote, cat, pricer), remote, cat, pricer
}

// --- AddItem ---

func TestAddItem(t *testing.T) {
	p := testProduct("p1", "10.00", 5, true)
	r, remote, _, _ := newTestReconciler(p)

	require.NoError(t, r.AddItem(context.Background(), p, "", 2))

	lines := r.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, 5, lines[0].MaxQuantity)
	assert.True(t, decimal.RequireFromString("10.00").Equal(lines[0].UnitPrice))
	assert.Len(t, remote.lines, 1, "remote must hold the same line")
}

func TestAddItem_UsesSalePrice(t *testing.T) {
	p := testProduct("p1", "100.00", 0, false)
	r, _, _, pricer := newTestReconciler(p)
	pricer.salePrices["p1"] = decimal.RequireFromString("80.00")

	require.NoError(t, r.AddItem(context.Background(), p, "", 1))

	lines := r.Lines()
	require.Len(t, lines, 1)
	assert.True(t, decimal.RequireFromString("80.00").Equal(lines[0].UnitPrice))
}

func TestAddItem_QuantityClampedToStock(t *testing.T) {
	p := testProduct("p1", "10.00", 3, true)
	r, _, _, _ := newTestReconciler(p)

	require.NoError(t, r.AddItem(context.Background(), p, "", 2))
	require.NoError(t, r.AddItem(context.Background(), p, "", 5))

	lines := r.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity, "quantity is min(current+requested, max)")
}

func TestAddItem_UntrackedStockUsesSentinel(t *testing.T) {
	p := testProduct("p1", "10.00", 0, false)
	r, _, _, _ := newTestReconciler(p)

	require.NoError(t, r.AddItem(context.Background(), p, "", 7))

	lines := r.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, UntrackedStockLimit, lines[0].MaxQuantity)
	assert.Equal(t, 7, lines[0].Quantity)
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	p := testProduct("p1", "10.00", 5, true)
	r, remote, _, _ := newTestReconciler(p)

	for _, qty := range []int{0, -1} {
		require.ErrorIs(t, r.AddItem(context.Background(), p, "", qty), ErrInvalidQuantity)
	}
	assert.Empty(t, r.Lines())
	assert.Empty(t, remote.lines)
}

func TestAddItem_InactiveProduct(t *testing.T) {
	p := testProduct("p1", "10.00", 5, true)
	p.Active = false
	r, _, _, _ := newTestReconciler(p)

	require.ErrorIs(t, r.AddItem(context.Background(), p, "", 1), ErrProductUnavailable)
}

func TestAddItem_OutOfStock(t *testing.T) {
	p := testProduct("p1", "10.00", 0, true)
	r, _, _, _ := newTestReconciler(p)

	require.ErrorIs(t, r.AddItem(context.Background(), p, "", 1), ErrOutOfStock)
}

func TestAddItem_VariationsAreSeparateLines(t *testing.T) {
	p := testProduct("p1", "10.00", 10, true)
	r, _, _, _ := newTestReconciler(p)

	require.NoError(t, r.AddItem(context.Background(), p, "red", 1))
	require.NoError(t, r.AddItem(context.Background(), p, "blue", 2))

	lines := r.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "p1|red", lines[0].Key())
	assert.Equal(t, "p1|blue", lines[1].Key())
}

func TestAddItem_RollbackOnRemoteFailure(t *testing.T) {
	p := testProduct("p1", "10.00", 5, true)
	r, remote, _, _ := newTestReconciler(p)

	require.NoError(t, r.AddItem(context.Background(), p, "", 2))

	remote.putErr = errors.New("network down")
	err := r.AddItem(context.Background(), p, "", 1)
	require.Error(t, err)

	lines := r.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity, "failed mutation must restore the previous state")
}

// --- UpdateQuantity / RemoveItem / Clear ---

func TestUpdateQuantity(t *testing.T) {
	p := testProduct("p1", "10.00", 5, true)
	r, _, _, _ := newTestReconciler(p)
	require.NoError(t, r.AddItem(context.Background(), p, "", 1))

	require.NoError(t, r.UpdateQuantity(context.Background(), "p1", 4))
	assert.Equal(t, 4, r.Lines()[0].Quantity)

	require.NoError(t, r.UpdateQuantity(context.Background(), "p1", 99))
	assert.Equal(t, 5, r.Lines()[0].Quantity, "clamped to MaxQuantity")
}

func TestUpdateQuantity_BelowOneRemoves(t *testing.T) {
	p := testProduct("p1", "10.00", 5, true)
	r, remote, _, _ := newTestReconciler(p)
	require.NoError(t, r.AddItem(context.Background(), p, "", 2))

	require.NoError(t, r.UpdateQuantity(context.Background(), "p1", 0))
	assert.Empty(t, r.Lines())
	assert.Empty(t, remote.lines)
}

func TestUpdateQuantity_LineNotFound(t *testing.T) {
	r, _, _, _ := newTestReconciler()
	require.ErrorIs(t, r.UpdateQuantity(context.Background(), "missing", 2), ErrLineNotFound)
}

func TestRemoveItem_RollbackOnRemoteFailure(t *testing.T) {
	p := testProduct("p1", "10.00", 5, true)
	r, remote, _, _ := newTestReconciler(p)
	require.NoError(t, r.AddItem(context.Background(), p, "", 2))

	remote.removeErr = errors.New("network down")
	require.Error(t, r.RemoveItem(context.Background(), "p1"))
	require.Len(t, r.Lines(), 1, "failed removal must restore the line")
}

func TestClear(t *testing.T) {
	p := testProduct("p1", "10.00", 5, true)
	r, remote, _, _ := newTestReconciler(p)
	require.NoError(t, r.AddItem(context.Background(), p, "", 2))

	require.NoError(t, r.Clear(context.Background()))
	assert.Empty(t, r.Lines())
	assert.Empty(t, remote.lines)
}

// --- Reset ---

func TestReset_ReplacesCache(t *testing.T) {
	p := testProduct("p1", "10.00", 5, true)
	r, remote, _, _ := newTestReconciler(p)
	require.NoError(t, r.AddItem(context.Background(), p, "", 2))

	// Another identity's remote cart.
	remote.lines = map[string]Line{"p9": {ProductID: "p9", Quantity: 1}}
	remote.order = []string{"p9"}

	require.NoError(t, r.Reset(context.Background()))

	lines := r.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "p9", lines[0].ProductID, "previous identity's lines must not survive")
}

// --- Sync ---

func TestSync(t *testing.T) {
	p1 := testProduct("p1", "10.00", 5, true)
	p2 := testProduct("p2", "20.00", 10, true)
	p3 := testProduct("p3", "5.00", 10, true)
	r, _, cat, pricer := newTestReconciler(p1, p2, p3)

	require.NoError(t, r.AddItem(context.Background(), p1, "", 4))
	require.NoError(t, r.AddItem(context.Background(), p2, "", 2))
	require.NoError(t, r.AddItem(context.Background(), p3, "", 1))

	// Catalog moves underneath the cart: p1 stock shrinks, p2 goes on sale,
	// p3 is deactivated.
	p1.Stock = 2
	cat.byID["p1"] = p1
	pricer.salePrices["p2"] = decimal.RequireFromString("15.00")
	p3.Active = false
	cat.byID["p3"] = p3

	require.NoError(t, r.Sync(context.Background()))

	lines := r.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "p1", lines[0].ProductID)
	assert.Equal(t, 2, lines[0].Quantity, "quantity clamped to new stock")
	assert.Equal(t, 2, lines[0].MaxQuantity)
	assert.Equal(t, "p2", lines[1].ProductID)
	assert.True(t, decimal.RequireFromString("15.00").Equal(lines[1].UnitPrice), "price rewritten to effective price")
}

func TestSync_DropsZeroStockLines(t *testing.T) {
	p := testProduct("p1", "10.00", 5, true)
	r, _, cat, _ := newTestReconciler(p)
	require.NoError(t, r.AddItem(context.Background(), p, "", 2))

	p.Stock = 0
	cat.byID["p1"] = p

	require.NoError(t, r.Sync(context.Background()))
	assert.Empty(t, r.Lines())
}

func TestSync_ConvergesRemote(t *testing.T) {
	p1 := testProduct("p1", "10.00", 5, true)
	p2 := testProduct("p2", "20.00", 10, true)
	r, remote, cat, pricer := newTestReconciler(p1, p2)

	require.NoError(t, r.AddItem(context.Background(), p1, "", 2))
	require.NoError(t, r.AddItem(context.Background(), p2, "", 1))

	p1.Active = false
	cat.byID["p1"] = p1
	pricer.salePrices["p2"] = decimal.RequireFromString("15.00")

	require.NoError(t, r.Sync(context.Background()))

	// The remote cart holds exactly what the cache holds.
	require.Len(t, remote.lines, 1)
	got, ok := remote.lines["p2"]
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("15.00").Equal(got.UnitPrice))
}

func TestSync_DropSurvivesReset(t *testing.T) {
	p := testProduct("p1", "10.00", 5, true)
	r, _, cat, _ := newTestReconciler(p)
	require.NoError(t, r.AddItem(context.Background(), p, "", 2))

	p.Active = false
	cat.byID["p1"] = p

	require.NoError(t, r.Sync(context.Background()))
	require.Empty(t, r.Lines())

	require.NoError(t, r.Reset(context.Background()))
	assert.Empty(t, r.Lines(), "a reloaded cart must not resurrect reconciled-away lines")
}

func TestSync_ToleratesLineAlreadyGoneRemotely(t *testing.T) {
	p := testProduct("p1", "10.00", 5, true)
	r, remote, cat, _ := newTestReconciler(p)
	require.NoError(t, r.AddItem(context.Background(), p, "", 2))

	p.Active = false
	cat.byID["p1"] = p
	remote.removeErr = ErrLineNotFound

	require.NoError(t, r.Sync(context.Background()))
	assert.Empty(t, r.Lines())
}

func TestSync_RemoteFailureSurfaces(t *testing.T) {
	p := testProduct("p1", "10.00", 5, true)
	r, remote, cat, _ := newTestReconciler(p)
	require.NoError(t, r.AddItem(context.Background(), p, "", 2))

	p.Active = false
	cat.byID["p1"] = p
	remote.removeErr = errors.New("network down")

	require.Error(t, r.Sync(context.Background()))
	require.Len(t, r.Lines(), 1, "line stays until the remote removal succeeds")
}

func TestSync_Idempotent(t *testing.T) {
	p1 := testProduct("p1", "10.00", 3, true)
	r, _, cat, _ := newTestReconciler(p1)
	require.NoError(t, r.AddItem(context.Background(), p1, "", 3))

	p1.Stock = 1
	cat.byID["p1"] = p1

	require.NoError(t, r.Sync(context.Background()))
	first := r.Lines()

	require.NoError(t, r.Sync(context.Background()))
	assert.Equal(t, first, r.Lines(), "second sync with unchanged catalog must be a no-op")
}

// --- Validate ---

func TestValidate(t *testing.T) {
	p1 := testProduct("p1", "10.00", 5, true)
	p2 := testProduct("p2", "20.00", 10, true)
	p3 := testProduct("p3", "5.00", 10, true)
	p4 := testProduct("p4", "8.00", 10, true)
	r, _, cat, pricer := newTestReconciler(p1, p2, p3, p4)

	require.NoError(t, r.AddItem(context.Background(), p1, "", 4))
	require.NoError(t, r.AddItem(context.Background(), p2, "", 2))
	require.NoError(t, r.AddItem(context.Background(), p3, "", 1))
	require.NoError(t, r.AddItem(context.Background(), p4, "", 1))

	p1.Stock = 2
	cat.byID["p1"] = p1
	pricer.salePrices["p2"] = decimal.RequireFromString("15.00")
	p3.Stock = 0
	cat.byID["p3"] = p3
	delete(cat.byID, "p4")

	issues, err := r.Validate(context.Background())
	require.NoError(t, err)
	require.Len(t, issues, 4)

	byKind := make(map[IssueKind]Issue, len(issues))
	for _, is := range issues {
		byKind[is.Kind] = is
	}

	assert.Equal(t, "p1", byKind[IssueInsufficientStock].ProductID)
	assert.Equal(t, 2, byKind[IssueInsufficientStock].Available)
	assert.Equal(t, "p2", byKind[IssuePriceChanged].ProductID)
	assert.True(t, decimal.RequireFromString("15.00").Equal(byKind[IssuePriceChanged].NewPrice))
	assert.Equal(t, "p3", byKind[IssueOutOfStock].ProductID)
	assert.Equal(t, "p4", byKind[IssueUnavailable].ProductID)

	// Validate must not mutate the cart.
	assert.Len(t, r.Lines(), 4)
	assert.Equal(t, 4, r.Lines()[0].Quantity)
}

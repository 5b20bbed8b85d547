package cart

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"github.com/soukmarket/commerce-core/internal/domain/catalog"
)

// Reconciler keeps a locally cached line-item list consistent with the
// authoritative remote cart and the catalog. Mutations are optimistic: the
// local cache changes first, the remote command follows, and a failed
// command restores the pre-mutation snapshot so partial application cannot
// occur.
type Reconciler struct {
	remote  RemoteCart
	catalog catalog.Repository
	pricer  Pricer

	mu    sync.Mutex
	lines map[string]Line
	keys  []string
}

// NewReconciler creates an empty Reconciler. Call Reset to hydrate it from
// the remote cart.
func NewReconciler(remote RemoteCart, cat catalog.Repository, pricer Pricer) *Reconciler {
	return &Reconciler{
		remote:  remote,
		catalog: cat,
		pricer:  pricer,
		lines:   make(map[string]Line),
	}
}

// Reset discards the local cache and reloads it from the remote cart. It is
// also the identity-change hook: a new session or login must never keep the
// previous identity's cached lines.
func (r *Reconciler) Reset(ctx context.Context) error {
	loaded, err := r.remote.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load remote cart")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines = make(map[string]Line, len(loaded))
	r.keys = r.keys[:0]
	for _, l := range loaded {
		r.lines[l.Key()] = l
		r.keys = append(r.keys, l.Key())
	}
	return nil
}

// Lines returns the cached lines in insertion order.
func (r *Reconciler) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Line, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.lines[k])
	}
	return out
}

// AddItem adds quantity of the product (with an optional variation) to the
// cart, clamped so the resulting quantity never exceeds the line's
// MaxQuantity. The effective unit price comes from the resolver.
func (r *Reconciler) AddItem(ctx context.Context, p catalog.Product, variation string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !p.Active {
		return ErrProductUnavailable
	}

	maxQty := UntrackedStockLimit
	if p.TrackStock {
		maxQty = p.Stock
	}
	if maxQty <= 0 {
		return ErrOutOfStock
	}

	sp, err := r.pricer.SalePrice(ctx, p.ID, p.Price)
	if err != nil {
		return errors.Wrap(err, "resolve price")
	}

	line := Line{
		ProductID:   p.ID,
		Variation:   variation,
		Name:        p.Name,
		UnitPrice:   sp.SalePrice,
		VendorID:    p.VendorID,
		VendorName:  p.VendorName,
		Quantity:    quantity,
		MaxQuantity: maxQty,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := line.Key()
	if existing, ok := r.lines[key]; ok {
		line.Quantity += existing.Quantity
	}
	if line.Quantity > maxQty {
		line.Quantity = maxQty
	}

	snapshot := r.snapshot()
	r.put(line)

	if err := r.remote.Put(ctx, line); err != nil {
		r.restore(snapshot)
		return errors.Wrap(err, "remote add")
	}
	return nil
}

// RemoveItem removes the line with the given key.
func (r *Reconciler) RemoveItem(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(ctx, key)
}

// UpdateQuantity sets the line's quantity, clamped to its MaxQuantity.
// Quantities below one remove the line.
func (r *Reconciler) UpdateQuantity(ctx context.Context, key string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if quantity < 1 {
		return r.removeLocked(ctx, key)
	}

	line, ok := r.lines[key]
	if !ok {
		return ErrLineNotFound
	}

	if quantity > line.MaxQuantity {
		quantity = line.MaxQuantity
	}
	line.Quantity = quantity

	snapshot := r.snapshot()
	r.put(line)

	if err := r.remote.Put(ctx, line); err != nil {
		r.restore(snapshot)
		return errors.Wrap(err, "remote update")
	}
	return nil
}

// Clear empties the cart locally and remotely.
func (r *Reconciler) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.snapshot()
	r.lines = make(map[string]Line)
	r.keys = nil

	if err := r.remote.Clear(ctx); err != nil {
		r.restore(snapshot)
		return errors.Wrap(err, "remote clear")
	}
	return nil
}

// Sync reconciles every cached line against current catalog state: lines
// whose product is missing, inactive, or out of tracked stock are removed;
// prices are corrected to the current effective price; MaxQuantity is
// recomputed and quantities clamped downward. Every removal and correction
// is pushed to the remote cart as well, so a later Reset cannot resurrect
// reconciled-away state. Running Sync twice in a row with no catalog change
// yields the same cart as running it once.
func (r *Reconciler) Sync(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	products, err := r.fetchProducts(ctx)
	if err != nil {
		return err
	}

	for _, key := range append([]string(nil), r.keys...) {
		line := r.lines[key]

		p, ok := products[line.ProductID]
		if !ok || !p.Active {
			if err := r.syncRemove(ctx, key); err != nil {
				return err
			}
			continue
		}

		maxQty := UntrackedStockLimit
		if p.TrackStock {
			maxQty = p.Stock
		}
		if maxQty <= 0 {
			if err := r.syncRemove(ctx, key); err != nil {
				return err
			}
			continue
		}

		sp, err := r.pricer.SalePrice(ctx, p.ID, p.Price)
		if err != nil {
			return errors.Wrap(err, "resolve price")
		}

		updated := line
		updated.Name = p.Name
		updated.UnitPrice = sp.SalePrice
		updated.MaxQuantity = maxQty
		if updated.Quantity > maxQty {
			updated.Quantity = maxQty
		}
		if lineChanged(line, updated) {
			if err := r.remote.Put(ctx, updated); err != nil {
				return errors.Wrap(err, "remote sync update")
			}
			r.lines[key] = updated
		}
	}
	return nil
}

// syncRemove deletes a reconciled-away line remotely, then locally. A line
// already absent remotely is fine: the goal is convergence, not bookkeeping.
func (r *Reconciler) syncRemove(ctx context.Context, key string) error {
	if err := r.remote.Remove(ctx, key); err != nil && !errors.Is(err, ErrLineNotFound) {
		return errors.Wrap(err, "remote sync remove")
	}
	r.drop(key)
	return nil
}

func lineChanged(old, updated Line) bool {
	return old.Name != updated.Name ||
		old.Quantity != updated.Quantity ||
		old.MaxQuantity != updated.MaxQuantity ||
		!old.UnitPrice.Equal(updated.UnitPrice)
}

// Validate checks every cached line against current catalog state and
// returns the problems found, without mutating anything.
func (r *Reconciler) Validate(ctx context.Context) ([]Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	products, err := r.fetchProducts(ctx)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for _, key := range r.keys {
		line := r.lines[key]

		p, ok := products[line.ProductID]
		if !ok || !p.Active {
			issues = append(issues, Issue{
				Kind:      IssueUnavailable,
				ProductID: line.ProductID,
				Key:       key,
			})
			continue
		}

		if p.TrackStock {
			switch {
			case p.Stock <= 0:
				issues = append(issues, Issue{
					Kind:      IssueOutOfStock,
					ProductID: line.ProductID,
					Key:       key,
				})
				continue
			case line.Quantity > p.Stock:
				issues = append(issues, Issue{
					Kind:      IssueInsufficientStock,
					ProductID: line.ProductID,
					Key:       key,
					Available: p.Stock,
				})
			}
		}

		sp, err := r.pricer.SalePrice(ctx, p.ID, p.Price)
		if err != nil {
			return nil, errors.Wrap(err, "resolve price")
		}
		if !sp.SalePrice.Equal(line.UnitPrice) {
			issues = append(issues, Issue{
				Kind:      IssuePriceChanged,
				ProductID: line.ProductID,
				Key:       key,
				NewPrice:  sp.SalePrice,
			})
		}
	}
	return issues, nil
}

// removeLocked removes a line optimistically. Caller holds the mutex.
func (r *Reconciler) removeLocked(ctx context.Context, key string) error {
	if _, ok := r.lines[key]; !ok {
		return ErrLineNotFound
	}

	snapshot := r.snapshot()
	r.drop(key)

	if err := r.remote.Remove(ctx, key); err != nil {
		r.restore(snapshot)
		return errors.Wrap(err, "remote remove")
	}
	return nil
}

// fetchProducts batch-loads catalog state for every distinct product in the
// cart. Caller holds the mutex.
func (r *Reconciler) fetchProducts(ctx context.Context) (map[string]catalog.Product, error) {
	seen := make(map[string]struct{}, len(r.keys))
	var ids []string
	for _, key := range r.keys {
		id := r.lines[key].ProductID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	fetched, err := r.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	products := make(map[string]catalog.Product, len(fetched))
	for _, p := range fetched {
		products[p.ID] = p
	}
	return products, nil
}

type cartSnapshot struct {
	lines map[string]Line
	keys  []string
}

func (r *Reconciler) snapshot() cartSnapshot {
	lines := make(map[string]Line, len(r.lines))
	for k, v := range r.lines {
		lines[k] = v
	}
	return cartSnapshot{lines: lines, keys: append([]string(nil), r.keys...)}
}

func (r *Reconciler) restore(s cartSnapshot) {
	r.lines = s.lines
	r.keys = s.keys
}

func (r *Reconciler) put(l Line) {
	key := l.Key()
	if _, ok := r.lines[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.lines[key] = l
}

func (r *Reconciler) drop(key string) {
	delete(r.lines, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

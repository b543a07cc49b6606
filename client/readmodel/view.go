package readmodel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/restaurant-orders/client/events"
	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
)

// SnapshotFunc loads the authoritative list for a view.
type SnapshotFunc func(ctx context.Context) ([]models.Order, error)

// State is what a dashboard shows around the list itself.
type State struct {
	Loading            bool
	Error              string
	LastSuccessMessage string
	LastSync           time.Time
}

// View is one dashboard's projection of the Store: kitchen, cashier,
// admin or a customer's own orders.
type View struct {
	Name string

	store    *Store
	match    func(*models.Order) bool
	snapshot SnapshotFunc
	fetch    events.OrderFetcher
	order    SortKey

	mu         sync.Mutex
	generation uint64
	state      State
	log        *logrus.Entry
}

// KitchenActive: order yang masih dikerjakan dapur
func KitchenActive(o *models.Order) bool {
	return o.Status.Active()
}

// CashierActive keeps non-terminal orders plus completed ones still
// waiting for an in-store payment.
func CashierActive(o *models.Order) bool {
	if !o.Status.Terminal() {
		return true
	}
	return o.Status == lifecycle.StatusCompleted &&
		o.PaymentMethod != lifecycle.PaymentOnline &&
		o.PaymentStatus != lifecycle.PaymentPaid &&
		o.PaymentStatus != lifecycle.PaymentRefunded
}

func NewKitchenView(store *Store, snapshot SnapshotFunc, fetch events.OrderFetcher) *View {
	return newView("kitchen", store, KitchenActive, snapshot, fetch, SortOldest)
}

func NewCashierView(store *Store, snapshot SnapshotFunc, fetch events.OrderFetcher) *View {
	return newView("cashier", store, CashierActive, snapshot, fetch, SortNewest)
}

func NewAdminView(store *Store, snapshot SnapshotFunc, fetch events.OrderFetcher) *View {
	return newView("admin", store, func(*models.Order) bool { return true }, snapshot, fetch, SortNewest)
}

// NewMineView shows the orders owned by whoever identity returns.
func NewMineView(store *Store, identity func() models.Identity, snapshot SnapshotFunc, fetch events.OrderFetcher) *View {
	match := func(o *models.Order) bool { return identity().Owns(o) }
	return newView("mine", store, match, snapshot, fetch, SortNewest)
}

func newView(name string, store *Store, match func(*models.Order) bool, snapshot SnapshotFunc, fetch events.OrderFetcher, order SortKey) *View {
	return &View{
		Name:     name,
		store:    store,
		match:    match,
		snapshot: snapshot,
		fetch:    fetch,
		order:    order,
		log:      utils.Component("view").WithField("view", name),
	}
}

// FetchSnapshot loads the view's list and merges it into the store by
// revision, so a snapshot never overwrites a newer delta. When a newer
// FetchSnapshot starts before this one returns, this result is discarded.
// On failure the current data is kept and State().Error is set.
func (v *View) FetchSnapshot(ctx context.Context) error {
	v.mu.Lock()
	v.generation++
	gen := v.generation
	v.state.Loading = true
	v.mu.Unlock()

	orders, err := v.snapshot(ctx)

	v.mu.Lock()
	if gen != v.generation {
		v.mu.Unlock()
		v.log.WithField("generation", gen).Debug("discarding superseded snapshot")
		return nil
	}
	v.state.Loading = false
	if err != nil {
		v.state.Error = err.Error()
		v.mu.Unlock()
		v.log.WithError(err).Warn("fetching snapshot")
		return err
	}
	v.state.Error = ""
	v.state.LastSuccessMessage = fmt.Sprintf("loaded %d orders", len(orders))
	v.state.LastSync = time.Now()
	v.mu.Unlock()

	seen := make(map[string]struct{}, len(orders))
	for i := range orders {
		seen[orders[i].ID] = struct{}{}
		v.store.ApplyOrder(&orders[i])
	}

	// order yang kita pegang tapi hilang dari snapshot: mungkin ada event terlewat
	for _, o := range v.store.Select(v.match) {
		if _, ok := seen[o.ID]; ok {
			continue
		}
		v.reconcile(ctx, o.ID)
	}
	return nil
}

func (v *View) reconcile(ctx context.Context, id string) {
	if v.fetch == nil {
		return
	}
	o, err := v.fetch.GetOrder(ctx, id)
	if err != nil {
		if isNotFound(err) {
			v.store.Remove(id)
			return
		}
		v.log.WithError(err).WithField("order", id).Warn("reconciling order missing from snapshot")
		return
	}
	v.store.ApplyOrder(o)
}

// Upsert merges an order returned by a mutation.
func (v *View) Upsert(o *models.Order) {
	v.store.ApplyOrder(o)
}

func (v *View) Remove(id string) {
	v.store.Remove(id)
}

// Get returns the order when it belongs to this view.
func (v *View) Get(id string) (*models.Order, error) {
	o, err := v.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !v.match(o) {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// List returns the view's orders that pass filter, sorted by key.
// SortDefault uses the view's own ordering.
func (v *View) List(filter Filter, key SortKey) []models.Order {
	orders := v.store.Select(func(o *models.Order) bool {
		return v.match(o) && filter.Match(o)
	})
	if key == SortDefault {
		key = v.order
	}
	return Sort(orders, key, time.Now())
}

// Buckets groups the kitchen's active orders by status, oldest first.
func (v *View) Buckets() map[lifecycle.Status][]models.Order {
	buckets := map[lifecycle.Status][]models.Order{
		lifecycle.StatusPending:   {},
		lifecycle.StatusConfirmed: {},
		lifecycle.StatusPreparing: {},
		lifecycle.StatusReady:     {},
	}
	for _, o := range v.List(Filter{}, SortOldest) {
		if _, ok := buckets[o.Status]; ok {
			buckets[o.Status] = append(buckets[o.Status], o)
		}
	}
	return buckets
}

func (v *View) Contains(id string) bool {
	_, err := v.Get(id)
	return err == nil
}

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// notFound is satisfied by REST errors that carry a 404.
type notFound interface {
	NotFound() bool
}

func isNotFound(err error) bool {
	var nf notFound
	return errors.As(err, &nf) && nf.NotFound()
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
)

// Outcome is what a Store did with a delta.
type Outcome int

const (
	Applied Outcome = iota
	// Stale: the store already holds this revision or a newer one.
	Stale
	// Missing: a partial delta for an id the store has never seen.
	Missing
	// Removed: the id was deleted and stays deleted.
	Removed
)

// Applier is the canonical order store the dispatcher writes into.
type Applier interface {
	Apply(d Delta) Outcome
	Remove(id string)
}

// OrderFetcher loads one order over REST when a delta cannot be merged.
type OrderFetcher interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
}

// Notice is a user-facing message derived from a personal event.
type Notice struct {
	Kind    Kind
	OrderID string
	Title   string
	Message string
}

type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Dispatcher routes normalized events into the store. Handle is safe to
// call from the socket read goroutine.
type Dispatcher struct {
	store    Applier
	fetch    OrderFetcher
	notify   Notifier
	identity func() models.Identity

	RefetchTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	log      *logrus.Entry
}

// NewDispatcher; fetch, notify and identity may be nil.
func NewDispatcher(store Applier, fetch OrderFetcher, notify Notifier, identity func() models.Identity) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		ctx:            ctx,
		cancel:         cancel,
		store:          store,
		fetch:          fetch,
		notify:         notify,
		identity:       identity,
		RefetchTimeout: 10 * time.Second,
		inflight:       make(map[string]struct{}),
		log:            utils.Component("dispatcher"),
	}
}

// Handle processes one wire event. It never panics.
func (d *Dispatcher) Handle(event string, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			d.log.WithFields(logrus.Fields{"event": event, "panic": r}).Error("recovered from panic in event handler")
		}
	}()

	delta, err := Normalize(event, payload)
	if err != nil {
		d.log.WithError(err).WithField("event", event).Warn("dropping malformed event")
		return
	}

	switch delta.Kind {
	case KindUnknown:
		d.log.WithField("event", event).Debug("ignoring unknown event")

	case KindNotification, KindAnnouncement:
		d.emit(Notice{
			Kind:    delta.Kind,
			OrderID: firstString(delta.Fields, "orderId"),
			Title:   firstString(delta.Fields, "title"),
			Message: firstString(delta.Fields, "message"),
		})

	case KindDeleted:
		d.store.Remove(delta.ID)

	case KindPersonalStatus, KindPersonalPayment:
		if !d.mine(delta) {
			d.log.WithFields(logrus.Fields{"event": event, "order": delta.ID}).Debug("dropping personal event for another owner")
			return
		}
		if d.apply(delta) == Applied {
			d.emit(personalNotice(delta))
		}

	default:
		d.apply(delta)
	}
}

func (d *Dispatcher) apply(delta Delta) Outcome {
	out := d.store.Apply(delta)
	if out == Missing {
		d.Refetch(delta.ID)
	}
	return out
}

// mine reports whether a personal delta belongs to the current identity.
// A delta without owner fields is accepted; the server only sends it to
// the owner's room.
func (d *Dispatcher) mine(delta Delta) bool {
	if delta.OwnerID == "" || d.identity == nil {
		return true
	}
	id := d.identity()
	return delta.OwnerID == id.UserID || delta.OwnerID == id.GuestID
}

func (d *Dispatcher) emit(n Notice) {
	if d.notify == nil {
		return
	}
	d.notify.Notify(n)
}

// Refetch loads one order in the background and merges it as a full
// delta. Concurrent refetches of the same id collapse into one.
func (d *Dispatcher) Refetch(id string) {
	if d.fetch == nil || id == "" {
		return
	}
	d.mu.Lock()
	if _, busy := d.inflight[id]; busy {
		d.mu.Unlock()
		return
	}
	d.inflight[id] = struct{}{}
	parent := d.ctx
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.inflight, id)
			d.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(parent, d.RefetchTimeout)
		defer cancel()

		o, err := d.fetch.GetOrder(ctx, id)
		if err != nil {
			d.log.WithError(err).WithField("order", id).Warn("refetching order")
			return
		}
		full, err := FromOrder(o)
		if err != nil {
			d.log.WithError(err).WithField("order", id).Error("normalizing refetched order")
			return
		}
		d.store.Apply(full)
	}()
}

// Wait blocks until every background refetch has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Stop cancels the refetches in flight and waits for them. Refetches
// started afterwards run normally.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
}

func personalNotice(delta Delta) Notice {
	number := firstString(delta.Fields, "orderNumber")
	if number == "" {
		number = delta.ID
	}
	n := Notice{Kind: delta.Kind, OrderID: delta.ID}
	if delta.Kind == KindPersonalPayment {
		n.Title = "Payment updated"
		n.Message = fmt.Sprintf("Payment for order %s is %s", number, delta.PaymentStatus())
		return n
	}
	n.Title = "Order updated"
	n.Message = fmt.Sprintf("Order %s is now %s", number, delta.Status())
	return n
}

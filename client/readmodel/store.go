package readmodel

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/restaurant-orders/client/events"
	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrOrderRemoved  = errors.New("order has been removed")
)

// paymentFields are the keys a payment delta may write; status is handled
// separately in merge and only ever moves forward.
var paymentFields = map[string]bool{
	"_id":           true,
	"paymentStatus": true,
	"paymentMethod": true,
	"refundAmount":  true,
	"totalAmount":   true,
	"revision":      true,
	"updatedAt":     true,
}

// Change is reported to subscribers after every effective write.
type Change struct {
	ID      string
	Order   *models.Order
	Removed bool
}

// Store is the canonical client-side copy of every known order. Views are
// projections of it, so one delta updates every view at once.
type Store struct {
	mu         sync.RWMutex
	orders     map[string]*models.Order
	tombstones map[string]time.Time

	subMu  sync.Mutex
	subs   map[uint64]func(Change)
	nextID uint64

	log *logrus.Entry
}

func NewStore() *Store {
	return &Store{
		orders:     make(map[string]*models.Order),
		tombstones: make(map[string]time.Time),
		subs:       make(map[uint64]func(Change)),
		log:        utils.Component("readmodel"),
	}
}

// Apply merges one delta:
//   - removed ids stay removed
//   - unknown ids are only inserted from a full object
//   - an older or equal revision is dropped; without revisions an older
//     updatedAt is dropped
//   - full objects replace, partial deltas merge shallowly
//   - payment deltas write payment fields only, plus status when it moves
//     forward: the delta's revision covers status too, so a skipped
//     status change is caught up here instead of being hidden
//   - status never moves backward or out of a terminal state
func (s *Store) Apply(d events.Delta) events.Outcome {
	if d.ID == "" {
		return events.Stale
	}

	s.mu.Lock()
	if _, gone := s.tombstones[d.ID]; gone {
		s.mu.Unlock()
		return events.Removed
	}

	cur, known := s.orders[d.ID]
	if !known {
		if !d.Full {
			s.mu.Unlock()
			return events.Missing
		}
		o, err := decode(d.Fields)
		if err != nil {
			s.mu.Unlock()
			s.log.WithError(err).WithField("order", d.ID).Warn("dropping undecodable order")
			return events.Stale
		}
		s.orders[d.ID] = o
		s.mu.Unlock()
		s.publish(Change{ID: d.ID, Order: o.Clone()})
		return events.Applied
	}

	if stale(cur, d) {
		s.mu.Unlock()
		return events.Stale
	}

	next, err := merge(cur, d)
	if err != nil {
		s.mu.Unlock()
		s.log.WithError(err).WithField("order", d.ID).Warn("dropping unmergeable delta")
		return events.Stale
	}
	s.orders[d.ID] = next
	s.mu.Unlock()

	s.publish(Change{ID: d.ID, Order: next.Clone()})
	return events.Applied
}

// ApplyOrder merges an order returned by REST as a full delta.
func (s *Store) ApplyOrder(o *models.Order) events.Outcome {
	d, err := events.FromOrder(o)
	if err != nil {
		s.log.WithError(err).WithField("order", o.ID).Warn("normalizing order")
		return events.Stale
	}
	return s.Apply(d)
}

// Remove drops the order and remembers the id so late deltas cannot
// bring it back.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	_, existed := s.orders[id]
	delete(s.orders, id)
	s.tombstones[id] = time.Now()
	s.mu.Unlock()

	if existed {
		s.publish(Change{ID: id, Removed: true})
	}
}

// Get returns a copy of the order.
func (s *Store) Get(id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, gone := s.tombstones[id]; gone {
		return nil, ErrOrderRemoved
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

// Select returns copies of every order for which match is true.
func (s *Store) Select(match func(*models.Order) bool) []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if match == nil || match(o) {
			out = append(out, *o.Clone())
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// Reset forgets every order and tombstone, used when the identity changes.
func (s *Store) Reset() {
	s.mu.Lock()
	s.orders = make(map[string]*models.Order)
	s.tombstones = make(map[string]time.Time)
	s.mu.Unlock()
}

// Subscribe registers fn for every change; the returned func removes it.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) publish(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.WithField("panic", r).Error("recovered from panic in store subscriber")
				}
			}()
			fn(c)
		}()
	}
}

func stale(cur *models.Order, d events.Delta) bool {
	if d.Revision > 0 && cur.Revision > 0 {
		return d.Revision <= cur.Revision
	}
	if !d.UpdatedAt.IsZero() && !cur.UpdatedAt.IsZero() {
		return d.UpdatedAt.Before(cur.UpdatedAt)
	}
	return false
}

// paymentStatusCarry is the one non-payment key a payment delta may carry.
const paymentStatusCarry = "status"

func merge(cur *models.Order, d events.Delta) (*models.Order, error) {
	var base map[string]interface{}
	if d.Full && !d.Kind.IsPayment() {
		base = make(map[string]interface{}, len(d.Fields))
	} else {
		var err error
		if base, err = encode(cur); err != nil {
			return nil, err
		}
	}

	for k, v := range d.Fields {
		if d.Kind.IsPayment() && !paymentFields[k] && k != paymentStatusCarry {
			continue
		}
		base[k] = v
	}

	// status hanya boleh maju
	next := lifecycle.Status(stringOf(base["status"]))
	if next != cur.Status && !lifecycle.IsForward(cur.Status, next) {
		base["status"] = string(cur.Status)
	}

	return decode(base)
}

func encode(o *models.Order) (map[string]interface{}, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	m := map[string]interface{}{}
	return m, json.Unmarshal(raw, &m)
}

func decode(fields map[string]interface{}) (*models.Order, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var o models.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func stringOf(v interface{}) string {
	s, _ := v.(string)
	return s
}

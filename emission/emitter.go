package emission

import (
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/restaurant-orders/hub"
	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
)

// Sink delivers one event to a set of rooms. The hub and the broker relay
// both implement it.
type Sink interface {
	Emit(rooms []string, event string, data interface{})
}

// Emitter menerjemahkan mutasi order menjadi event bernama per room.
// Dipanggil hanya setelah commit berhasil.
type Emitter struct {
	sinks []Sink
	log   *logrus.Entry
}

func NewEmitter(sinks ...Sink) *Emitter {
	return &Emitter{sinks: sinks, log: utils.Component("emission")}
}

// AddSink registers another delivery target, e.g. the broker relay once it
// has connected.
func (e *Emitter) AddSink(s Sink) {
	e.sinks = append(e.sinks, s)
}

func (e *Emitter) send(rooms []string, event string, data interface{}) {
	if len(rooms) == 0 {
		return
	}
	e.log.WithFields(logrus.Fields{"event": event, "rooms": rooms}).Debug("emit")
	for _, s := range e.sinks {
		s.Emit(rooms, event, data)
	}
}

func (e *Emitter) OrderCreated(o *models.Order) {
	rooms := hub.StaffRooms()
	if owner := hub.OwnerRoom(o); owner != "" {
		rooms = append(rooms, owner)
	}
	e.send(rooms, EventOrderCreated, o)
}

// OrderStatusChanged: staff menerima order lengkap, pemilik menerima delta
func (e *Emitter) OrderStatusChanged(o *models.Order, previous lifecycle.Status) {
	e.send(hub.StaffRooms(), EventOrderStatusChanged, o)

	if owner := hub.OwnerRoom(o); owner != "" {
		d := stateDelta(o)
		d["previousStatus"] = previous
		e.send([]string{owner}, EventYourStatusChanged, d)
	}
}

func (e *Emitter) OrderEstimateChanged(o *models.Order) {
	rooms := hub.StaffRooms()
	if owner := hub.OwnerRoom(o); owner != "" {
		rooms = append(rooms, owner)
	}
	d := stateDelta(o)
	d["estimatedTime"] = o.EstimatedTime
	d["estimatedReadyTime"] = o.EstimatedReadyTime
	e.send(rooms, EventOrderEstimatedTime, d)
}

func (e *Emitter) OrderPaymentUpdated(o *models.Order) {
	d := stateDelta(o)
	d["refundAmount"] = o.RefundAmount
	d["totalAmount"] = o.TotalAmount

	e.send(hub.StaffRooms(), EventOrderPaymentUpdated, d)
	if owner := hub.OwnerRoom(o); owner != "" {
		e.send([]string{owner}, EventYourPaymentUpdated, d)
	}
	if o.PaymentStatus == lifecycle.PaymentRefunded {
		e.send([]string{hub.RoomAdmin}, EventOrderRefunded, d)
	}
}

func (e *Emitter) OrderDeleted(o *models.Order) {
	rooms := hub.StaffRooms()
	if owner := hub.OwnerRoom(o); owner != "" {
		rooms = append(rooms, owner)
	}
	e.send(rooms, EventOrderDeleted, map[string]interface{}{"orderId": o.ID})
}

// Notify sends a personal notification to one user or guest room.
func (e *Emitter) Notify(room string, n *models.Notification) {
	e.send([]string{room}, EventNotification, n)
}

func (e *Emitter) Announce(n *models.Notification) {
	e.send([]string{hub.RoomAll}, EventAnnouncement, n)
}

// stateDelta is the header every delta carries: identity, owner and the
// full lifecycle state at this revision. A client that drops an older
// revision therefore never loses a newer status or payment value.
func stateDelta(o *models.Order) map[string]interface{} {
	d := map[string]interface{}{
		"_id":           o.ID,
		"orderNumber":   o.OrderNumber,
		"status":        o.Status,
		"paymentStatus": o.PaymentStatus,
		"paymentMethod": o.PaymentMethod,
		"revision":      o.Revision,
		"updatedAt":     o.UpdatedAt,
	}
	if o.CustomerID != nil {
		d["customerId"] = *o.CustomerID
	}
	if o.GuestID != nil {
		d["guestId"] = *o.GuestID
	}
	return d
}

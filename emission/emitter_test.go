package emission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/restaurant-orders/hub"
	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/models"
)

type emitted struct {
	rooms []string
	event string
	data  interface{}
}

type recordingSink struct {
	events []emitted
}

func (r *recordingSink) Emit(rooms []string, event string, data interface{}) {
	r.events = append(r.events, emitted{rooms: rooms, event: event, data: data})
}

func (r *recordingSink) byEvent(event string) []emitted {
	var out []emitted
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func sampleOrder() *models.Order {
	owner := "cust-1"
	eta := 15
	return &models.Order{
		ID:            "o1",
		OrderNumber:   "ORD-1",
		CustomerID:    &owner,
		Status:        lifecycle.StatusPreparing,
		PaymentStatus: lifecycle.PaymentPaid,
		PaymentMethod: lifecycle.PaymentOnline,
		EstimatedTime: &eta,
		TotalAmount:   114,
		Revision:      3,
		UpdatedAt:     time.Now(),
	}
}

func TestOrderCreatedTargetsStaffAndOwner(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink)
	o := sampleOrder()

	e.OrderCreated(o)
	require.Len(t, sink.events, 1)
	assert.Equal(t, EventOrderCreated, sink.events[0].event)
	assert.ElementsMatch(t, []string{hub.RoomKitchen, hub.RoomCashier, hub.RoomAdmin, "user:cust-1"}, sink.events[0].rooms)
	assert.Same(t, o, sink.events[0].data)
}

func TestOrderStatusChangedSplitsFullAndPersonal(t *testing.T) {
	sink := &recordingSink{}
	NewEmitter(sink).OrderStatusChanged(sampleOrder(), lifecycle.StatusConfirmed)

	staff := sink.byEvent(EventOrderStatusChanged)
	require.Len(t, staff, 1)
	assert.Equal(t, hub.StaffRooms(), staff[0].rooms)

	personal := sink.byEvent(EventYourStatusChanged)
	require.Len(t, personal, 1)
	assert.Equal(t, []string{"user:cust-1"}, personal[0].rooms)
	delta := personal[0].data.(map[string]interface{})
	assert.Equal(t, "o1", delta["_id"])
	assert.Equal(t, lifecycle.StatusPreparing, delta["status"])
	assert.Equal(t, lifecycle.StatusConfirmed, delta["previousStatus"])
	assert.Equal(t, int64(3), delta["revision"])
	assert.Equal(t, "cust-1", delta["customerId"])
	assert.NotContains(t, delta, "items")
}

func TestOrderPaymentRefundedReachesAdmin(t *testing.T) {
	sink := &recordingSink{}
	o := sampleOrder()
	o.PaymentStatus = lifecycle.PaymentRefunded
	refund := 50.0
	o.RefundAmount = &refund

	NewEmitter(sink).OrderPaymentUpdated(o)
	assert.Len(t, sink.byEvent(EventOrderPaymentUpdated), 1)
	assert.Len(t, sink.byEvent(EventYourPaymentUpdated), 1)
	refunded := sink.byEvent(EventOrderRefunded)
	require.Len(t, refunded, 1)
	assert.Equal(t, []string{hub.RoomAdmin}, refunded[0].rooms)
	assert.Equal(t, &refund, refunded[0].data.(map[string]interface{})["refundAmount"])
}

func TestGuestOwnerAndDeletion(t *testing.T) {
	sink := &recordingSink{}
	o := sampleOrder()
	guest := "g-77"
	o.CustomerID = nil
	o.GuestID = &guest

	NewEmitter(sink).OrderDeleted(o)
	require.Len(t, sink.events, 1)
	assert.Contains(t, sink.events[0].rooms, "guest:g-77")
	assert.Equal(t, map[string]interface{}{"orderId": "o1"}, sink.events[0].data)
}

func TestAnnouncementGoesEverywhere(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	e := NewEmitter(a)
	e.AddSink(b)
	e.Announce(&models.Notification{Message: "kitchen closes at 22:00"})

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	assert.Equal(t, []string{hub.RoomAll}, a.events[0].rooms)
}

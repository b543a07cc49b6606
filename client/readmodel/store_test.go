package readmodel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/restaurant-orders/client/events"
	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/models"
)

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func fullOrder(id string, status lifecycle.Status, rev int64) *models.Order {
	customer := "u1"
	return &models.Order{
		ID:            id,
		OrderNumber:   "ORD-20260501-" + id,
		CustomerID:    &customer,
		Status:        status,
		PaymentStatus: lifecycle.PaymentPending,
		PaymentMethod: lifecycle.PaymentInStore,
		ServiceType:   lifecycle.ServicePickup,
		Items: []models.OrderItem{
			{MenuID: "m1", Name: "Nasi Goreng", UnitPrice: 50, Quantity: 2},
		},
		Subtotal:     100,
		VAT:          14,
		TotalAmount:  114,
		CustomerInfo: models.CustomerInfo{Name: "Budi"},
		Revision:     rev,
		CreatedAt:    base,
		UpdatedAt:    base.Add(time.Duration(rev) * time.Second),
	}
}

func event(t *testing.T, name, payload string) events.Delta {
	t.Helper()
	d, err := events.Normalize(name, json.RawMessage(payload))
	require.NoError(t, err)
	return d
}

func TestStoreInsertsOnlyFullObjects(t *testing.T) {
	s := NewStore()
	assert.Equal(t, events.Missing, s.Apply(event(t, "order:ready", `{"_id":"o1"}`)))
	_, err := s.Get("o1")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	assert.Equal(t, events.Applied, s.ApplyOrder(fullOrder("o1", lifecycle.StatusPending, 1)))
	o, err := s.Get("o1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusPending, o.Status)
}

func TestStorePartialDeltaKeepsOtherFields(t *testing.T) {
	s := NewStore()
	s.ApplyOrder(fullOrder("o1", lifecycle.StatusPreparing, 1))

	assert.Equal(t, events.Applied, s.Apply(event(t, "order:updated", `{"_id":"o1","status":"ready"}`)))

	o, err := s.Get("o1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusReady, o.Status)
	assert.Equal(t, 114.0, o.TotalAmount)
	assert.Equal(t, "Budi", o.CustomerInfo.Name)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)
}

func TestStoreIsIdempotent(t *testing.T) {
	s := NewStore()
	s.ApplyOrder(fullOrder("o1", lifecycle.StatusPending, 1))
	d := event(t, "order:updated", `{"_id":"o1","status":"confirmed","revision":2}`)

	assert.Equal(t, events.Applied, s.Apply(d))
	once, _ := s.Get("o1")
	assert.Equal(t, events.Stale, s.Apply(d))
	twice, _ := s.Get("o1")
	assert.Equal(t, once, twice)
}

func TestStoreOutOfOrderStatus(t *testing.T) {
	tests := []struct {
		name   string
		first  string
		second string
	}{
		{
			name:   "revision guard",
			first:  `{"_id":"o1","status":"ready","revision":4}`,
			second: `{"_id":"o1","status":"preparing","revision":3}`,
		},
		{
			name:   "updatedAt guard",
			first:  `{"_id":"o1","status":"ready","updatedAt":"2026-05-01T12:10:00Z"}`,
			second: `{"_id":"o1","status":"preparing","updatedAt":"2026-05-01T12:09:00Z"}`,
		},
		{
			name:   "graph guard without metadata",
			first:  `{"_id":"o1","status":"ready"}`,
			second: `{"_id":"o1","status":"preparing"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			o := fullOrder("o1", lifecycle.StatusConfirmed, 0)
			o.Revision = 0
			s.ApplyOrder(o)

			s.Apply(event(t, "order:status-changed", tt.first))
			s.Apply(event(t, "order:status-changed", tt.second))

			got, err := s.Get("o1")
			require.NoError(t, err)
			assert.Equal(t, lifecycle.StatusReady, got.Status)
		})
	}
}

func TestStoreTerminalStatusNeverChanges(t *testing.T) {
	s := NewStore()
	o := fullOrder("o1", lifecycle.StatusCompleted, 0)
	o.PaymentStatus = lifecycle.PaymentPaid
	o.Revision = 0
	s.ApplyOrder(o)

	s.Apply(event(t, "order:preparing", `{"_id":"o1"}`))
	s.Apply(event(t, "order:cancelled", `{"_id":"o1"}`))
	s.Apply(event(t, "order:refunded", `{"_id":"o1","status":"pending"}`))

	got, err := s.Get("o1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusCompleted, got.Status)
	assert.Equal(t, lifecycle.PaymentRefunded, got.PaymentStatus)
}

func TestStorePaymentDeltaTouchesPaymentFieldsOnly(t *testing.T) {
	s := NewStore()
	s.ApplyOrder(fullOrder("o1", lifecycle.StatusPreparing, 1))

	s.Apply(event(t, "order:payment-updated",
		`{"_id":"o1","paymentStatus":"paid","notes":"overwrite","tableNumber":"99","revision":2}`))

	got, err := s.Get("o1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, lifecycle.StatusPreparing, got.Status)
	assert.Empty(t, got.Notes)
	assert.Empty(t, got.TableNumber)
	assert.Equal(t, int64(2), got.Revision)
}

func TestStorePaymentDeltaStatusOnlyMovesForward(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   lifecycle.Status
	}{
		{"missed forward move is caught up", "ready", lifecycle.StatusReady},
		{"backward move is ignored", "pending", lifecycle.StatusPreparing},
		{"same status", "preparing", lifecycle.StatusPreparing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.ApplyOrder(fullOrder("o1", lifecycle.StatusPreparing, 1))

			s.Apply(event(t, "order:payment-updated",
				`{"_id":"o1","paymentStatus":"paid","status":"`+tt.status+`","revision":3}`))

			got, err := s.Get("o1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, lifecycle.PaymentPaid, got.PaymentStatus)
			assert.Equal(t, int64(3), got.Revision)
		})
	}
}

func TestStoreFullReplaceClearsEstimate(t *testing.T) {
	s := NewStore()
	o := fullOrder("o1", lifecycle.StatusPreparing, 1)
	minutes := 15
	o.EstimatedTime = &minutes
	s.ApplyOrder(o)

	next := fullOrder("o1", lifecycle.StatusPreparing, 2)
	s.ApplyOrder(next)

	got, err := s.Get("o1")
	require.NoError(t, err)
	assert.Nil(t, got.EstimatedTime)
}

func TestStoreRemoveLeavesTombstone(t *testing.T) {
	s := NewStore()
	s.ApplyOrder(fullOrder("o1", lifecycle.StatusCancelled, 3))

	var changes []Change
	unsubscribe := s.Subscribe(func(c Change) { changes = append(changes, c) })
	defer unsubscribe()

	s.Remove("o1")
	_, err := s.Get("o1")
	assert.ErrorIs(t, err, ErrOrderRemoved)

	// late delta and late snapshot both stay out
	assert.Equal(t, events.Removed, s.Apply(event(t, "order:updated", `{"_id":"o1","status":"cancelled","revision":9}`)))
	assert.Equal(t, events.Removed, s.ApplyOrder(fullOrder("o1", lifecycle.StatusCancelled, 9)))

	require.Len(t, changes, 1)
	assert.True(t, changes[0].Removed)
}

func TestStoreSubscriberPanicIsContained(t *testing.T) {
	s := NewStore()
	s.Subscribe(func(Change) { panic("listener bug") })
	assert.NotPanics(t, func() {
		s.ApplyOrder(fullOrder("o1", lifecycle.StatusPending, 1))
	})
	assert.Equal(t, 1, s.Len())
}

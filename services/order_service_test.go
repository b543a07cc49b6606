package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeremiapane/restaurant-orders/database"
	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/store"
)

type recordedEvent struct {
	name     string
	order    *models.Order
	previous lifecycle.Status
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) add(name string, o *models.Order, prev lifecycle.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{name: name, order: o.Clone(), previous: prev})
}

func (r *recordingEvents) OrderCreated(o *models.Order) { r.add("created", o, "") }
func (r *recordingEvents) OrderStatusChanged(o *models.Order, prev lifecycle.Status) {
	r.add("status", o, prev)
}
func (r *recordingEvents) OrderEstimateChanged(o *models.Order) { r.add("estimate", o, "") }
func (r *recordingEvents) OrderPaymentUpdated(o *models.Order)  { r.add("payment", o, "") }
func (r *recordingEvents) OrderDeleted(o *models.Order)         { r.add("deleted", o, "") }

func (r *recordingEvents) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.name
	}
	return out
}

func (r *recordingEvents) last() recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fixture struct {
	db      *gorm.DB
	orders  *OrderService
	carts   *CartService
	catalog *CatalogService
	events  *recordingEvents
	menu    *models.Menu
}

var (
	staff    = models.Identity{UserID: "staff-1", Role: models.RoleCashier}
	kitchen  = models.Identity{UserID: "kitchen-1", Role: models.RoleKitchen}
	customer = models.Identity{UserID: "cust-1", Role: models.RoleCustomer}
	guest    = models.Identity{GuestID: "guest-abc"}
)

func setupFixture(t *testing.T) *fixture {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	pricing, err := NewPricing("0.14", "10000")
	require.NoError(t, err)

	f := &fixture{db: db, events: &recordingEvents{}}
	f.catalog = NewCatalogService(db)
	f.carts = NewCartService(db, f.catalog)
	f.orders = NewOrderService(store.NewGormOrderRepository(db), f.carts, f.events, pricing)

	f.menu, err = f.catalog.Create(context.Background(), MenuRequest{Name: "Nasi Goreng", Price: 20000})
	require.NoError(t, err)
	return f
}

func (f *fixture) placeOrder(t *testing.T, owner models.Identity, service string) *models.Order {
	ctx := context.Background()
	cart, err := f.carts.Create(ctx, owner)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, owner, cart.ID, AddItemRequest{MenuID: f.menu.ID, Quantity: 2})
	require.NoError(t, err)

	req := FromCartRequest{CartID: cart.ID, ServiceType: service}
	if service == "dine-in" {
		req.TableNumber = "7"
	}
	order, err := f.orders.CreateFromCart(ctx, owner, req)
	require.NoError(t, err)
	return order
}

func TestPricingApply(t *testing.T) {
	p, err := NewPricing("0.14", "10000")
	require.NoError(t, err)

	o := &models.Order{
		ServiceType: lifecycle.ServiceDelivery,
		Items: []models.OrderItem{
			{UnitPrice: 10.10, Quantity: 3},
			{UnitPrice: 0.35, Quantity: 1},
		},
	}
	p.Apply(o)

	assert.Equal(t, 30.30, o.Items[0].LineTotal)
	assert.Equal(t, 30.65, o.Subtotal)
	assert.Equal(t, 4.29, o.VAT)
	assert.Equal(t, 10000.0, o.DeliveryFee)
	assert.Equal(t, 10034.94, o.TotalAmount)

	o.ServiceType = lifecycle.ServicePickup
	p.Apply(o)
	assert.Zero(t, o.DeliveryFee)
	assert.Equal(t, 34.94, o.TotalAmount)
}

func TestCreateFromCart(t *testing.T) {
	f := setupFixture(t)
	order := f.placeOrder(t, customer, "pickup")

	assert.Equal(t, lifecycle.StatusPending, order.Status)
	assert.Equal(t, lifecycle.PaymentPending, order.PaymentStatus)
	assert.Equal(t, lifecycle.PaymentOnline, order.PaymentMethod)
	assert.Equal(t, "cust-1", order.OwnerID())
	assert.EqualValues(t, 1, order.Revision)
	assert.Equal(t, 40000.0, order.Subtotal)
	assert.Equal(t, 5600.0, order.VAT)
	assert.Equal(t, 45600.0, order.TotalAmount)
	assert.Regexp(t, `^ORD-\d{8}-[0-9A-F]{6}$`, order.OrderNumber)
	assert.Equal(t, []string{"created"}, f.events.names())

	// cart ditutup setelah checkout
	ctx := context.Background()
	carts := []models.Cart{}
	require.NoError(t, f.db.Find(&carts).Error)
	require.Len(t, carts, 1)
	assert.Equal(t, models.CartOrdered, carts[0].Status)

	_, err := f.orders.CreateFromCart(ctx, customer, FromCartRequest{CartID: carts[0].ID, ServiceType: "pickup"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateFromCartValidation(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	cart, err := f.carts.Create(ctx, guest)
	require.NoError(t, err)

	_, err = f.orders.CreateFromCart(ctx, guest, FromCartRequest{CartID: cart.ID, ServiceType: "pickup"})
	assert.ErrorIs(t, err, ErrValidation, "empty cart")

	_, err = f.carts.AddItem(ctx, guest, cart.ID, AddItemRequest{MenuID: f.menu.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = f.orders.CreateFromCart(ctx, guest, FromCartRequest{CartID: cart.ID, ServiceType: "dine-in"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "tableNumber")

	_, err = f.orders.CreateFromCart(ctx, customer, FromCartRequest{CartID: cart.ID, ServiceType: "pickup"})
	assert.ErrorIs(t, err, ErrForbidden, "someone else's cart")

	order, err := f.orders.CreateFromCart(ctx, guest, FromCartRequest{CartID: cart.ID, ServiceType: "delivery", TableNumber: "9"})
	require.NoError(t, err)
	assert.True(t, order.IsGuest())
	assert.Empty(t, order.TableNumber)
	assert.Equal(t, 10000.0, order.DeliveryFee)
}

func TestCreateDirect(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	req := DirectRequest{
		ServiceType: "dine-in",
		TableNumber: "4",
		Items: []DirectItem{
			{MenuID: f.menu.ID, Quantity: 1},
			{Name: "Es Teh", UnitPrice: 5000, Quantity: 2},
		},
	}
	_, err := f.orders.CreateDirect(ctx, customer, req)
	assert.ErrorIs(t, err, ErrForbidden)

	order, err := f.orders.CreateDirect(ctx, staff, req)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.PaymentInStore, order.PaymentMethod)
	assert.True(t, order.IsGuest())
	assert.Equal(t, 30000.0, order.Subtotal)
	assert.Len(t, order.Items, 2)

	req.Items = []DirectItem{{Name: "Free", Quantity: 1}}
	_, err = f.orders.CreateDirect(ctx, staff, req)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateStatusFlow(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t, customer, "pickup")

	updated, err := f.orders.UpdateStatus(ctx, kitchen, order.ID, StatusRequest{Status: "preparing"})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusPreparing, updated.Status)
	assert.EqualValues(t, 2, updated.Revision)
	ev := f.events.last()
	assert.Equal(t, "status", ev.name)
	assert.Equal(t, lifecycle.StatusPending, ev.previous)

	// status yang sama: no-op, tanpa event
	again, err := f.orders.UpdateStatus(ctx, kitchen, order.ID, StatusRequest{Status: "preparing"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, again.Revision)
	assert.Len(t, f.events.names(), 2)

	_, err = f.orders.UpdateStatus(ctx, kitchen, order.ID, StatusRequest{Status: "confirmed"})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	_, err = f.orders.UpdateStatus(ctx, customer, order.ID, StatusRequest{Status: "ready"})
	assert.ErrorIs(t, err, ErrForbidden)

	// online order belum dibayar tidak boleh completed
	_, err = f.orders.UpdateStatus(ctx, staff, order.ID, StatusRequest{Status: "completed"})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	paid := "paid"
	_, err = f.orders.UpdatePayment(ctx, staff, order.ID, PaymentRequest{PaymentStatus: &paid})
	require.NoError(t, err)
	done, err := f.orders.UpdateStatus(ctx, staff, order.ID, StatusRequest{Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusCompleted, done.Status)
}

func TestUpdateEstimateClearsOtherField(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t, guest, "pickup")

	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	updated, err := f.orders.UpdateStatus(ctx, kitchen, order.ID, StatusRequest{EstimatedReadyTime: &at})
	require.NoError(t, err)
	require.NotNil(t, updated.EstimatedReadyTime)
	assert.Nil(t, updated.EstimatedTime)
	assert.Equal(t, "estimate", f.events.last().name)

	mins := 15
	updated, err = f.orders.UpdateStatus(ctx, kitchen, order.ID, StatusRequest{Status: "confirmed", EstimatedTime: &mins})
	require.NoError(t, err)
	assert.Equal(t, 15, *updated.EstimatedTime)
	assert.Nil(t, updated.EstimatedReadyTime)
	assert.Equal(t, []string{"created", "estimate", "status", "estimate"}, f.events.names())
}

func TestCancel(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	order := f.placeOrder(t, customer, "pickup")
	_, err := f.orders.Cancel(ctx, guest, order.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	cancelled, err := f.orders.Cancel(ctx, customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusCancelled, cancelled.Status)

	_, err = f.orders.Cancel(ctx, customer, order.ID)
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "already cancelled")

	// customer tidak bisa cancel setelah dapur mulai, staff bisa
	second := f.placeOrder(t, customer, "pickup")
	_, err = f.orders.UpdateStatus(ctx, kitchen, second.ID, StatusRequest{Status: "preparing"})
	require.NoError(t, err)
	_, err = f.orders.Cancel(ctx, customer, second.ID)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	_, err = f.orders.Cancel(ctx, staff, second.ID)
	assert.NoError(t, err)
}

func TestUpdatePaymentRefund(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t, customer, "pickup")

	refunded := "refunded"
	_, err := f.orders.UpdatePayment(ctx, staff, order.ID, PaymentRequest{PaymentStatus: &refunded})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "pending cannot be refunded")

	paid := "paid"
	_, err = f.orders.UpdatePayment(ctx, staff, order.ID, PaymentRequest{PaymentStatus: &paid})
	require.NoError(t, err)

	tooMuch := order.TotalAmount + 1
	_, err = f.orders.UpdatePayment(ctx, staff, order.ID, PaymentRequest{PaymentStatus: &refunded, RefundAmount: &tooMuch})
	assert.ErrorIs(t, err, ErrValidation)

	partial := 10000.0
	updated, err := f.orders.UpdatePayment(ctx, staff, order.ID, PaymentRequest{PaymentStatus: &refunded, RefundAmount: &partial})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.PaymentRefunded, updated.PaymentStatus)
	assert.Equal(t, 10000.0, *updated.RefundAmount)
	assert.Equal(t, "payment", f.events.last().name)

	card := "card"
	_, err = f.orders.UpdatePayment(ctx, staff, order.ID, PaymentRequest{PaymentMethod: &card})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestApplyPaymentOutcomeAndExpiry(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	old := f.placeOrder(t, customer, "pickup")
	fresh := f.placeOrder(t, guest, "pickup")

	f.orders.now = func() time.Time { return time.Now().Add(45 * time.Minute) }
	// order fresh dibuat ulang supaya created_at-nya masih baru
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", fresh.ID).
		Update("created_at", time.Now().Add(40*time.Minute)).Error)

	n, err := f.orders.ExpireStalePayments(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expired, err := f.orders.Get(ctx, staff, old.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.PaymentFailed, expired.PaymentStatus)

	// pembayaran yang telat datang tetap diterima
	paid, err := f.orders.ApplyPaymentOutcome(ctx, old.ID, lifecycle.PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.PaymentPaid, paid.PaymentStatus)

	untouched, err := f.orders.Get(ctx, staff, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.PaymentPending, untouched.PaymentStatus)
}

func TestDeleteOnlyTerminal(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t, customer, "pickup")

	err := f.orders.Delete(ctx, staff, order.ID)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	_, err = f.orders.Cancel(ctx, staff, order.ID)
	require.NoError(t, err)
	require.NoError(t, f.orders.Delete(ctx, staff, order.ID))
	assert.Equal(t, "deleted", f.events.last().name)

	_, err = f.orders.Get(ctx, staff, order.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestViewPermissions(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t, customer, "pickup")

	_, err := f.orders.Get(ctx, guest, order.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.orders.Get(ctx, kitchen, order.ID)
	assert.NoError(t, err)

	mine, err := f.orders.ListForOwner(ctx, customer, "cust-1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	_, err = f.orders.ListForOwner(ctx, guest, "cust-1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestKitchenActiveOldestFirst(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	first := f.placeOrder(t, customer, "pickup")
	second := f.placeOrder(t, guest, "pickup")
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", first.ID).
		Update("created_at", time.Now().Add(-time.Hour)).Error)
	done := f.placeOrder(t, customer, "pickup")
	_, err := f.orders.Cancel(ctx, staff, done.ID)
	require.NoError(t, err)

	active, err := f.orders.KitchenActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, first.ID, active[0].ID)
	assert.Equal(t, second.ID, active[1].ID)
}

func TestCartUpdateItemAtomic(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	cart, err := f.carts.Create(ctx, guest)
	require.NoError(t, err)
	cart, err = f.carts.AddItem(ctx, guest, cart.ID, AddItemRequest{MenuID: f.menu.ID, Quantity: 1, Options: map[string]string{"spice": "mild"}})
	require.NoError(t, err)
	cart, err = f.carts.AddItem(ctx, guest, cart.ID, AddItemRequest{MenuID: f.menu.ID, Quantity: 2, Options: map[string]string{"spice": "mild"}})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)

	qty := 5
	cart, err = f.carts.UpdateItem(ctx, guest, cart.ID, cart.Items[0].ID, UpdateItemRequest{Quantity: &qty, Options: map[string]string{"spice": "hot"}})
	require.NoError(t, err)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.Equal(t, "hot", cart.Items[0].Options["spice"])

	zero := 0
	_, err = f.carts.UpdateItem(ctx, guest, cart.ID, cart.Items[0].ID, UpdateItemRequest{Quantity: &zero})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.carts.UpdateItem(ctx, customer, cart.ID, cart.Items[0].ID, UpdateItemRequest{Quantity: &qty})
	assert.ErrorIs(t, err, ErrForbidden)

	cart, err = f.carts.RemoveItem(ctx, guest, cart.ID, cart.Items[0].ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

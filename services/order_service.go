package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/store"
	"github.com/yeremiapane/restaurant-orders/utils"
)

// EventEmitter dipanggil setelah setiap mutasi order berhasil di-commit.
type EventEmitter interface {
	OrderCreated(o *models.Order)
	OrderStatusChanged(o *models.Order, previous lifecycle.Status)
	OrderEstimateChanged(o *models.Order)
	OrderPaymentUpdated(o *models.Order)
	OrderDeleted(o *models.Order)
}

const maxUpdateAttempts = 5

type FromCartRequest struct {
	CartID        string              `json:"cartId" binding:"required"`
	ServiceType   string              `json:"serviceType" binding:"required"`
	PaymentMethod string              `json:"paymentMethod"`
	TableNumber   string              `json:"tableNumber"`
	Notes         string              `json:"notes"`
	CustomerInfo  models.CustomerInfo `json:"customerInfo"`
}

type DirectItem struct {
	MenuID    string            `json:"menuId"`
	Name      string            `json:"name"`
	UnitPrice float64           `json:"unitPrice"`
	Quantity  int               `json:"quantity" binding:"required,min=1"`
	Options   map[string]string `json:"options"`
}

// DirectRequest is a walk-in order entered by staff.
type DirectRequest struct {
	Items         []DirectItem        `json:"items" binding:"required,min=1,dive"`
	CustomerInfo  models.CustomerInfo `json:"customerInfo"`
	CustomerID    string              `json:"customerId"`
	ServiceType   string              `json:"serviceType" binding:"required"`
	PaymentMethod string              `json:"paymentMethod"`
	TableNumber   string              `json:"tableNumber"`
	Notes         string              `json:"notes"`
}

type StatusRequest struct {
	Status             string     `json:"status"`
	EstimatedTime      *int       `json:"estimatedTime"`
	EstimatedReadyTime *time.Time `json:"estimatedReadyTime"`
}

type PaymentRequest struct {
	PaymentMethod *string  `json:"paymentMethod"`
	PaymentStatus *string  `json:"paymentStatus"`
	RefundAmount  *float64 `json:"refundAmount"`
}

// orderRules adalah aturan validasi order sebelum disimpan
type orderRules struct {
	ServiceType   string `validate:"required,oneof=dine-in pickup delivery"`
	PaymentMethod string `validate:"required,oneof=online instore card"`
	TableNumber   string `validate:"required_if=ServiceType dine-in"`
	CustomerID    string `validate:"required_without=GuestID,excluded_with=GuestID"`
	GuestID       string `validate:"required_without=CustomerID"`
	ItemCount     int    `validate:"min=1"`
	Quantities    []int  `validate:"dive,min=1"`
	Email         string `validate:"omitempty,email"`
}

type OrderService struct {
	repo     store.OrderRepository
	carts    *CartService
	events   EventEmitter
	pricing  Pricing
	validate *validator.Validate
	log      *logrus.Entry

	// now dapat diganti di test
	now func() time.Time
}

func NewOrderService(repo store.OrderRepository, carts *CartService, events EventEmitter, pricing Pricing) *OrderService {
	return &OrderService{
		repo:     repo,
		carts:    carts,
		events:   events,
		pricing:  pricing,
		validate: validator.New(),
		log:      utils.Component("orders"),
		now:      time.Now,
	}
}

func actorOf(id models.Identity) lifecycle.Actor {
	if id.IsStaff() {
		return lifecycle.ActorStaff
	}
	return lifecycle.ActorCustomer
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

func (s *OrderService) CreateFromCart(ctx context.Context, actor models.Identity, req FromCartRequest) (*models.Order, error) {
	cart, err := s.carts.Get(ctx, req.CartID)
	if err != nil {
		return nil, err
	}
	if !cart.BelongsTo(actor) {
		return nil, ErrForbidden
	}
	if cart.Status != models.CartOpen {
		return nil, invalid("cart %s is already checked out", cart.ID)
	}
	if len(cart.Items) == 0 {
		return nil, invalid("cart is empty")
	}

	method := req.PaymentMethod
	if method == "" {
		method = string(lifecycle.PaymentOnline)
	}
	order, err := s.newOrder(req.ServiceType, method, req.TableNumber, req.Notes, req.CustomerInfo)
	if err != nil {
		return nil, err
	}
	order.CustomerID = cart.CustomerID
	order.GuestID = cart.GuestID
	for _, it := range cart.Items {
		order.Items = append(order.Items, models.OrderItem{
			MenuID:    it.MenuID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Options:   it.Options,
		})
	}

	if err := s.create(ctx, order); err != nil {
		return nil, err
	}
	if err := s.carts.MarkOrdered(ctx, cart.ID); err != nil {
		s.log.WithError(err).WithField("cart", cart.ID).Warn("order created but cart not closed")
	}
	return order, nil
}

func (s *OrderService) CreateDirect(ctx context.Context, actor models.Identity, req DirectRequest) (*models.Order, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	if len(req.Items) == 0 {
		return nil, invalid("order must contain at least one item")
	}

	method := req.PaymentMethod
	if method == "" {
		method = string(lifecycle.PaymentInStore)
	}
	order, err := s.newOrder(req.ServiceType, method, req.TableNumber, req.Notes, req.CustomerInfo)
	if err != nil {
		return nil, err
	}
	if req.CustomerID != "" {
		id := req.CustomerID
		order.CustomerID = &id
	} else {
		guest := "walkin-" + uuid.NewString()
		order.GuestID = &guest
	}

	for _, in := range req.Items {
		item := models.OrderItem{Quantity: in.Quantity, Options: in.Options}
		if in.MenuID != "" {
			menu, err := s.carts.Catalog.Orderable(ctx, in.MenuID)
			if err != nil {
				return nil, err
			}
			item.MenuID, item.Name, item.UnitPrice = menu.ID, menu.Name, menu.Price
		} else {
			if in.Name == "" || in.UnitPrice <= 0 {
				return nil, invalid("custom items need a name and a positive unitPrice")
			}
			item.Name, item.UnitPrice = in.Name, in.UnitPrice
		}
		order.Items = append(order.Items, item)
	}

	if err := s.create(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) newOrder(service, method, table, notes string, info models.CustomerInfo) (*models.Order, error) {
	st, err := lifecycle.ParseServiceType(service)
	if err != nil {
		return nil, invalid("serviceType must be dine-in, pickup or delivery")
	}
	pm, err := lifecycle.ParsePaymentMethod(method)
	if err != nil {
		return nil, invalid("paymentMethod must be online, instore or card")
	}
	if st != lifecycle.ServiceDineIn {
		table = ""
	}

	now := s.now()
	return &models.Order{
		ID:            uuid.NewString(),
		OrderNumber:   newOrderNumber(now),
		Status:        lifecycle.StatusPending,
		PaymentStatus: lifecycle.PaymentPending,
		PaymentMethod: pm,
		ServiceType:   st,
		TableNumber:   strings.TrimSpace(table),
		Notes:         notes,
		CustomerInfo:  info,
		Revision:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *OrderService) create(ctx context.Context, order *models.Order) error {
	rules := orderRules{
		ServiceType:   string(order.ServiceType),
		PaymentMethod: string(order.PaymentMethod),
		TableNumber:   order.TableNumber,
		ItemCount:     len(order.Items),
		Email:         order.CustomerInfo.Email,
	}
	if order.CustomerID != nil {
		rules.CustomerID = *order.CustomerID
	}
	if order.GuestID != nil {
		rules.GuestID = *order.GuestID
	}
	for _, it := range order.Items {
		rules.Quantities = append(rules.Quantities, it.Quantity)
	}
	if err := s.validate.Struct(rules); err != nil {
		return validationError(err)
	}

	s.pricing.Apply(order)
	if err := s.repo.Create(ctx, order); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"order":  order.ID,
		"number": order.OrderNumber,
		"total":  utils.FormatCurrency(order.TotalAmount),
	}).Info("order created")
	s.events.OrderCreated(order)
	return nil
}

// Get returns the order if actor may view it.
func (s *OrderService) Get(ctx context.Context, actor models.Identity, id string) (*models.Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(order) {
		return nil, ErrForbidden
	}
	return order, nil
}

// ListForOwner mengembalikan order milik ownerID, terbaru dulu
func (s *OrderService) ListForOwner(ctx context.Context, actor models.Identity, ownerID string) ([]models.Order, error) {
	if !actor.IsStaff() && actor.OwnerID() != ownerID {
		return nil, ErrForbidden
	}
	return s.repo.List(ctx, store.OrderFilter{OwnerID: ownerID})
}

func (s *OrderService) List(ctx context.Context, filter store.OrderFilter) ([]models.Order, error) {
	return s.repo.List(ctx, filter)
}

// KitchenActive returns the orders the kitchen still works on, oldest first.
func (s *OrderService) KitchenActive(ctx context.Context) ([]models.Order, error) {
	orders, err := s.repo.List(ctx, store.OrderFilter{Statuses: []lifecycle.Status{
		lifecycle.StatusPending, lifecycle.StatusConfirmed, lifecycle.StatusPreparing, lifecycle.StatusReady,
	}})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

type mutation struct {
	order  *models.Order
	before *models.Order
}

// mutate runs fn on a fresh copy and commits with a revision check.
// fn returns false when nothing changed; nothing is written then.
func (s *OrderService) mutate(ctx context.Context, id string, fn func(o *models.Order) (bool, error)) (*mutation, bool, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		order, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, false, err
		}
		before := order.Clone()

		changed, err := fn(order)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return &mutation{order: order, before: before}, false, nil
		}

		order.Revision = before.Revision + 1
		order.UpdatedAt = s.now()
		err = s.repo.Update(ctx, order, before.Revision)
		if errors.Is(err, store.ErrConflict) {
			s.log.WithFields(logrus.Fields{"order": id, "attempt": attempt + 1}).Debug("revision conflict, retrying")
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return &mutation{order: order, before: before}, true, nil
	}
	return nil, false, store.ErrConflict
}

// UpdateStatus changes status and/or the kitchen estimate. Setting one
// estimate field clears the other.
func (s *OrderService) UpdateStatus(ctx context.Context, actor models.Identity, id string, req StatusRequest) (*models.Order, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}

	var target lifecycle.Status
	if req.Status != "" {
		st, err := lifecycle.ParseStatus(req.Status)
		if err != nil {
			return nil, invalid("%v", err)
		}
		target = st
	} else if req.EstimatedTime == nil && req.EstimatedReadyTime == nil {
		return nil, invalid("status or estimate is required")
	}
	if req.EstimatedTime != nil && *req.EstimatedTime < 0 {
		return nil, invalid("estimatedTime must not be negative")
	}

	var statusChanged, estimateChanged bool
	m, changed, err := s.mutate(ctx, id, func(o *models.Order) (bool, error) {
		statusChanged, estimateChanged = false, false

		if target != "" && target != o.Status {
			if err := lifecycle.CheckTransition(o.Status, target, lifecycle.ActorStaff); err != nil {
				return false, err
			}
			if target == lifecycle.StatusCompleted {
				if err := lifecycle.CheckCompletion(o.PaymentMethod, o.PaymentStatus); err != nil {
					return false, err
				}
			}
			o.Status = target
			statusChanged = true
		}

		if req.EstimatedTime != nil || req.EstimatedReadyTime != nil {
			if o.Status.Terminal() && !statusChanged {
				return false, fmt.Errorf("%w: order is already %s", lifecycle.ErrInvalidTransition, o.Status)
			}
			if req.EstimatedTime != nil {
				mins := *req.EstimatedTime
				o.EstimatedTime = &mins
				o.EstimatedReadyTime = nil
			} else {
				at := req.EstimatedReadyTime.UTC()
				o.EstimatedReadyTime = &at
				o.EstimatedTime = nil
			}
			estimateChanged = true
		}
		return statusChanged || estimateChanged, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return m.order, nil
	}

	if statusChanged {
		s.log.WithFields(logrus.Fields{"order": id, "from": m.before.Status, "to": m.order.Status}).Info("order status changed")
		s.events.OrderStatusChanged(m.order, m.before.Status)
	}
	if estimateChanged {
		s.events.OrderEstimateChanged(m.order)
	}
	return m.order, nil
}

// Cancel dipakai customer (hanya saat pending) maupun staff.
func (s *OrderService) Cancel(ctx context.Context, actor models.Identity, id string) (*models.Order, error) {
	m, _, err := s.mutate(ctx, id, func(o *models.Order) (bool, error) {
		if !actor.CanView(o) {
			return false, ErrForbidden
		}
		if err := lifecycle.CheckTransition(o.Status, lifecycle.StatusCancelled, actorOf(actor)); err != nil {
			return false, err
		}
		o.Status = lifecycle.StatusCancelled
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"order": id, "from": m.before.Status}).Info("order cancelled")
	s.events.OrderStatusChanged(m.order, m.before.Status)
	return m.order, nil
}

func (s *OrderService) UpdatePayment(ctx context.Context, actor models.Identity, id string, req PaymentRequest) (*models.Order, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	if req.PaymentMethod == nil && req.PaymentStatus == nil && req.RefundAmount == nil {
		return nil, invalid("paymentStatus, paymentMethod or refundAmount is required")
	}

	var method lifecycle.PaymentMethod
	if req.PaymentMethod != nil {
		pm, err := lifecycle.ParsePaymentMethod(*req.PaymentMethod)
		if err != nil {
			return nil, invalid("%v", err)
		}
		method = pm
	}
	var target lifecycle.PaymentStatus
	if req.PaymentStatus != nil {
		ps, err := lifecycle.ParsePaymentStatus(*req.PaymentStatus)
		if err != nil {
			return nil, invalid("%v", err)
		}
		target = ps
	}

	m, changed, err := s.mutate(ctx, id, func(o *models.Order) (bool, error) {
		changed := false
		if method != "" && method != o.PaymentMethod {
			if o.PaymentStatus == lifecycle.PaymentPaid || o.PaymentStatus == lifecycle.PaymentRefunded {
				return false, invalid("payment method cannot change after payment")
			}
			o.PaymentMethod = method
			changed = true
		}

		if req.RefundAmount != nil && target != lifecycle.PaymentRefunded {
			return false, invalid("refundAmount requires paymentStatus refunded")
		}
		if target != "" && target != o.PaymentStatus {
			if err := lifecycle.CheckPaymentTransition(o.PaymentStatus, target); err != nil {
				return false, err
			}
			if target == lifecycle.PaymentRefunded {
				amount := o.TotalAmount
				if req.RefundAmount != nil {
					amount = *req.RefundAmount
				}
				if amount <= 0 || amount > o.TotalAmount {
					return false, invalid("refundAmount must be greater than 0 and at most %s", utils.FormatCurrency(o.TotalAmount))
				}
				o.RefundAmount = &amount
			}
			o.PaymentStatus = target
			changed = true
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.paymentCommitted(m)
	}
	return m.order, nil
}

func (s *OrderService) paymentCommitted(m *mutation) {
	s.log.WithFields(logrus.Fields{
		"order":  m.order.ID,
		"from":   m.before.PaymentStatus,
		"to":     m.order.PaymentStatus,
		"method": m.order.PaymentMethod,
	}).Info("order payment updated")
	s.events.OrderPaymentUpdated(m.order)
}

// ApplyPaymentOutcome records a result reported by the payment provider or
// the timeout monitor. A paid outcome on a failed order passes through
// pending first.
func (s *OrderService) ApplyPaymentOutcome(ctx context.Context, id string, outcome lifecycle.PaymentStatus) (*models.Order, error) {
	m, changed, err := s.mutate(ctx, id, func(o *models.Order) (bool, error) {
		if o.PaymentStatus == outcome {
			return false, nil
		}
		if o.Status == lifecycle.StatusCancelled && outcome == lifecycle.PaymentFailed {
			return false, nil
		}
		if o.PaymentStatus == lifecycle.PaymentFailed && outcome == lifecycle.PaymentPaid {
			o.PaymentStatus = lifecycle.PaymentPending
		}
		if err := lifecycle.CheckPaymentTransition(o.PaymentStatus, outcome); err != nil {
			return false, err
		}
		if outcome == lifecycle.PaymentRefunded && o.RefundAmount == nil {
			full := o.TotalAmount
			o.RefundAmount = &full
		}
		o.PaymentStatus = outcome
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.paymentCommitted(m)
	}
	return m.order, nil
}

// ExpireStalePayments marks online orders still unpaid after timeout as
// failed and returns how many were changed.
func (s *OrderService) ExpireStalePayments(ctx context.Context, timeout time.Duration) (int, error) {
	stale, err := s.repo.List(ctx, store.OrderFilter{
		Statuses:      []lifecycle.Status{lifecycle.StatusPending, lifecycle.StatusConfirmed, lifecycle.StatusPreparing, lifecycle.StatusReady},
		PaymentMethod: lifecycle.PaymentOnline,
		PaymentStatus: lifecycle.PaymentPending,
		CreatedBefore: s.now().Add(-timeout),
		Limit:         100,
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, o := range stale {
		if _, err := s.ApplyPaymentOutcome(ctx, o.ID, lifecycle.PaymentFailed); err != nil {
			s.log.WithError(err).WithField("order", o.ID).Warn("failed to expire payment")
			continue
		}
		expired++
	}
	return expired, nil
}

// Delete removes a finished order. Active orders must be cancelled first.
func (s *OrderService) Delete(ctx context.Context, actor models.Identity, id string) error {
	if !actor.IsStaff() {
		return ErrForbidden
	}
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !order.Status.Terminal() {
		return fmt.Errorf("%w: only completed or cancelled orders can be deleted", lifecycle.ErrInvalidTransition)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.log.WithField("order", id).Info("order deleted")
	s.events.OrderDeleted(order)
	return nil
}

package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yeremiapane/restaurant-orders/client/api"
	"github.com/yeremiapane/restaurant-orders/client/events"
	"github.com/yeremiapane/restaurant-orders/client/readmodel"
	"github.com/yeremiapane/restaurant-orders/client/socket"
	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/utils"
)

type Config struct {
	BaseURL    string
	SocketURL  string
	HTTPClient *http.Client
	Socket     socket.Config
	Notifier   events.Notifier
}

// Session is everything one dashboard needs: socket, REST client, the
// canonical store and the views for the current role.
type Session struct {
	API        *api.Client
	Socket     *socket.Manager
	Store      *readmodel.Store
	Dispatcher *events.Dispatcher

	Kitchen *readmodel.View
	Cashier *readmodel.View
	Admin   *readmodel.View
	Mine    *readmodel.View

	mu         sync.RWMutex
	identity   models.Identity
	token      string
	registered bool
	wasOpen    bool
	removers   []func()

	log *logrus.Entry
}

func New(cfg Config) *Session {
	sockCfg := cfg.Socket
	if sockCfg.URL == "" {
		sockCfg.URL = cfg.SocketURL
	}

	s := &Session{
		API:    api.NewClient(cfg.BaseURL, cfg.HTTPClient),
		Socket: socket.New(sockCfg),
		Store:  readmodel.NewStore(),
		log:    utils.Component("session"),
	}
	s.Dispatcher = events.NewDispatcher(s.Store, s.API, cfg.Notifier, s.Identity)

	s.Kitchen = readmodel.NewKitchenView(s.Store, s.API.KitchenActive, s.API)
	s.Cashier = readmodel.NewCashierView(s.Store, func(ctx context.Context) ([]models.Order, error) {
		return s.API.ListOrders(ctx, api.ListQuery{})
	}, s.API)
	s.Admin = readmodel.NewAdminView(s.Store, func(ctx context.Context) ([]models.Order, error) {
		return s.API.ListOrders(ctx, api.ListQuery{})
	}, s.API)
	s.Mine = readmodel.NewMineView(s.Store, s.Identity, func(ctx context.Context) ([]models.Order, error) {
		return s.API.UserOrders(ctx, s.Identity().OwnerID())
	}, s.API)
	return s
}

func (s *Session) Identity() models.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Init connects as identity, registers the event listeners once and loads
// the snapshots the role needs. Only a socket failure is returned; a
// failed snapshot shows up in that view's State().Error.
func (s *Session) Init(ctx context.Context, identity models.Identity, token string) error {
	s.setIdentity(identity, token)
	if err := s.Socket.Identify(identity, token); err != nil {
		return err
	}
	s.register()
	if err := s.Socket.Connect(ctx); err != nil {
		return fmt.Errorf("connecting socket: %w", err)
	}
	// gagal snapshot cukup tercatat di State().Error view masing-masing
	if err := s.Refresh(ctx); err != nil {
		s.log.WithError(err).Warn("initial snapshot failed, views keep the error")
	}
	return nil
}

// SetIdentity switches user: joins run again and the views reload from
// an empty store.
func (s *Session) SetIdentity(ctx context.Context, identity models.Identity, token string) error {
	prev := s.Identity()
	s.setIdentity(identity, token)
	if prev.OwnerID() != identity.OwnerID() || prev.Role != identity.Role {
		s.Store.Reset()
	}
	if err := s.Socket.Identify(identity, token); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

func (s *Session) setIdentity(identity models.Identity, token string) {
	s.mu.Lock()
	s.identity = identity
	s.token = token
	s.mu.Unlock()
	s.API.SetAuth(token, identity.GuestID)
}

// register attaches the listeners exactly once per session.
func (s *Session) register() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registered {
		return
	}
	s.registered = true
	s.removers = append(s.removers,
		s.Socket.OnAny(s.Dispatcher.Handle),
		s.Socket.OnState(s.onState),
	)
}

// onState reloads the views after a reconnect; deltas sent while the
// socket was down are lost.
func (s *Session) onState(state socket.State) {
	if state != socket.StateOpen {
		return
	}
	s.mu.Lock()
	again := s.wasOpen
	s.wasOpen = true
	s.mu.Unlock()
	if !again {
		return
	}
	go func() {
		if err := s.Refresh(context.Background()); err != nil {
			s.log.WithError(err).Warn("refreshing views after reconnect")
		}
	}()
}

// Views returns the views the current role works with.
func (s *Session) Views() []*readmodel.View {
	switch s.Identity().Role {
	case models.RoleKitchen:
		return []*readmodel.View{s.Kitchen}
	case models.RoleCashier:
		return []*readmodel.View{s.Cashier}
	case models.RoleAdmin:
		return []*readmodel.View{s.Admin, s.Kitchen, s.Cashier}
	}
	return []*readmodel.View{s.Mine}
}

// Refresh fetches every view snapshot concurrently. One failing view does
// not cancel the others; the first error is returned.
func (s *Session) Refresh(ctx context.Context) error {
	var g errgroup.Group
	for _, v := range s.Views() {
		g.Go(func() error { return v.FetchSnapshot(ctx) })
	}
	return g.Wait()
}

// Teardown disconnects and cancels background refetches.
func (s *Session) Teardown() {
	s.mu.Lock()
	removers := s.removers
	s.removers = nil
	s.registered = false
	s.wasOpen = false
	s.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
	s.Socket.Disconnect()
	s.Dispatcher.Stop()
}

// Order returns the order from the store, or loads it over REST. A
// deleted order gives readmodel.ErrOrderRemoved.
func (s *Session) Order(ctx context.Context, id string) (*models.Order, error) {
	o, err := s.Store.Get(id)
	if err == nil || errors.Is(err, readmodel.ErrOrderRemoved) {
		return o, err
	}
	fetched, err := s.API.GetOrder(ctx, id)
	if err != nil {
		if api.IsStatus(err, http.StatusNotFound) {
			return nil, readmodel.ErrOrderNotFound
		}
		return nil, err
	}
	s.Store.ApplyOrder(fetched)
	return fetched, nil
}

// Mutations below merge only what the server returns.

func (s *Session) CreateFromCart(ctx context.Context, req services.FromCartRequest) (*models.Order, error) {
	return s.applied(s.API.CreateFromCart(ctx, req))
}

func (s *Session) CreateDirect(ctx context.Context, req services.DirectRequest) (*models.Order, error) {
	return s.applied(s.API.CreateDirect(ctx, req))
}

func (s *Session) UpdateStatus(ctx context.Context, id string, req services.StatusRequest) (*models.Order, error) {
	return s.applied(s.API.UpdateStatus(ctx, id, req))
}

func (s *Session) UpdatePayment(ctx context.Context, id string, req services.PaymentRequest) (*models.Order, error) {
	return s.applied(s.API.UpdatePayment(ctx, id, req))
}

// Cancel is refused locally when a customer's order is known to be past
// pending.
func (s *Session) Cancel(ctx context.Context, id string) (*models.Order, error) {
	if !s.Identity().IsStaff() {
		if o, err := s.Store.Get(id); err == nil && o.Status != lifecycle.StatusPending {
			return nil, fmt.Errorf("%w: only pending orders can be cancelled, order is %s", api.ErrValidation, o.Status)
		}
	}
	return s.applied(s.API.Cancel(ctx, id))
}

func (s *Session) Delete(ctx context.Context, id string) error {
	if err := s.API.Delete(ctx, id); err != nil {
		return err
	}
	s.Store.Remove(id)
	return nil
}

func (s *Session) applied(o *models.Order, err error) (*models.Order, error) {
	if err != nil {
		return nil, err
	}
	s.Store.ApplyOrder(o)
	return o, nil
}

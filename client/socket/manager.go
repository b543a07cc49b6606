package socket

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
)

// Commands of the room-join protocol.
const (
	cmdRegister    = "register"
	cmdJoinRole    = "joinRole"
	cmdJoinKitchen = "joinKitchen"
	cmdJoinCashier = "joinCashier"
	cmdJoinAdmin   = "joinAdmin"
)

type State string

const (
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

const writeWait = 10 * time.Second

var (
	ErrNotConnected = errors.New("socket is not connected")
	ErrDisconnected = errors.New("socket disconnected while connecting")
)

type Config struct {
	// URL of the websocket endpoint, e.g. ws://localhost:8080/ws
	URL string

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Dialer *websocket.Dialer
	Header http.Header
}

type Handler func(payload json.RawMessage)

type AnyHandler func(event string, payload json.RawMessage)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Manager owns one websocket connection to the hub, re-dials it with
// backoff and replays the room joins after every dial.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	identity models.Identity
	token    string

	writeMu sync.Mutex

	lmu       sync.RWMutex
	nextID    uint64
	listeners map[string]map[uint64]Handler
	any       map[uint64]AnyHandler
	states    map[uint64]func(State)

	log *logrus.Entry
}

func New(cfg Config) *Manager {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Manager{
		cfg:       cfg,
		state:     StateClosed,
		listeners: make(map[string]map[uint64]Handler),
		any:       make(map[uint64]AnyHandler),
		states:    make(map[uint64]func(State)),
		log:       utils.Component("socket"),
	}
}

// Identify sets who the connection registers as. On a live connection
// the join sequence runs again right away.
func (m *Manager) Identify(identity models.Identity, token string) error {
	m.mu.Lock()
	m.identity = identity
	m.token = token
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	return m.join(conn)
}

// Connect dials once and starts the read/reconnect loop. Calling it while
// the manager is running is a no-op. Disconnect during the dial aborts it.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	m.setState(StateConnecting)
	dialCtx, stopDial := context.WithCancel(ctx)
	stopWatch := context.AfterFunc(loopCtx, stopDial)
	conn, err := m.dial(dialCtx)
	stopWatch()
	stopDial()

	m.mu.Lock()
	// Disconnect sudah jalan kalau done bukan milik kita lagi
	owner := m.running && m.done == done
	switch {
	case owner && err == nil:
		m.conn = conn
	case owner:
		m.running = false
		m.cancel, m.done = nil, nil
	}
	m.mu.Unlock()

	if err != nil || !owner {
		cancel()
		if conn != nil {
			conn.Close()
		}
		close(done)
		if err == nil {
			err = ErrDisconnected
		}
		if owner {
			m.setState(StateClosed)
		}
		return err
	}

	m.opened(conn)
	go m.loop(loopCtx, conn, done)
	return nil
}

// Active reports whether a connection is open right now.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil && m.state == StateOpen
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Disconnect removes every listener, closes the connection and stops
// reconnecting.
func (m *Manager) Disconnect() {
	m.lmu.Lock()
	m.listeners = make(map[string]map[uint64]Handler)
	m.any = make(map[uint64]AnyHandler)
	m.states = make(map[uint64]func(State))
	m.lmu.Unlock()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	conn, cancel, done := m.conn, m.cancel, m.done
	m.conn = nil
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	cancel()
	if conn != nil {
		m.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		m.writeMu.Unlock()
		conn.Close()
	}
	<-done
	m.setState(StateClosed)
}

// On registers fn for one event name; call the returned func to remove it.
func (m *Manager) On(event string, fn Handler) func() {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	id := m.nextID
	m.nextID++
	if m.listeners[event] == nil {
		m.listeners[event] = make(map[uint64]Handler)
	}
	m.listeners[event][id] = fn
	return func() {
		m.lmu.Lock()
		delete(m.listeners[event], id)
		m.lmu.Unlock()
	}
}

// OnAny registers fn for every inbound frame.
func (m *Manager) OnAny(fn AnyHandler) func() {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	id := m.nextID
	m.nextID++
	m.any[id] = fn
	return func() {
		m.lmu.Lock()
		delete(m.any, id)
		m.lmu.Unlock()
	}
}

func (m *Manager) OnState(fn func(State)) func() {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	id := m.nextID
	m.nextID++
	m.states[id] = fn
	return func() {
		m.lmu.Lock()
		delete(m.states, id)
		m.lmu.Unlock()
	}
}

// Send writes one command frame on the live connection.
func (m *Manager) Send(event string, data interface{}) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return m.write(conn, event, data)
}

func (m *Manager) write(conn *websocket.Conn, event string, data interface{}) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(outFrame{Event: event, Data: data})
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	m.mu.Lock()
	token, guestID := m.token, m.identity.GuestID
	m.mu.Unlock()

	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if guestID != "" {
		q.Set("guestId", guestID)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	for k, v := range m.cfg.Header {
		header[k] = v
	}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := m.cfg.Dialer.DialContext(ctx, u.String(), header)
	return conn, err
}

// opened runs after every successful dial.
func (m *Manager) opened(conn *websocket.Conn) {
	if err := m.join(conn); err != nil {
		m.log.WithError(err).Warn("room join failed")
	}
	m.setState(StateOpen)
}

// join sends register, joinRole and the role's group join.
func (m *Manager) join(conn *websocket.Conn) error {
	m.mu.Lock()
	identity, token := m.identity, m.token
	m.mu.Unlock()

	switch {
	case identity.UserID != "":
		if err := m.write(conn, cmdRegister, map[string]string{"userId": identity.UserID, "token": token}); err != nil {
			return err
		}
	case identity.GuestID != "":
		if err := m.write(conn, cmdRegister, map[string]string{"guestId": identity.GuestID}); err != nil {
			return err
		}
	default:
		return nil
	}

	if identity.Role == "" {
		return nil
	}
	if err := m.write(conn, cmdJoinRole, map[string]string{"role": identity.Role}); err != nil {
		return err
	}
	var group string
	switch identity.Role {
	case models.RoleKitchen:
		group = cmdJoinKitchen
	case models.RoleCashier:
		group = cmdJoinCashier
	case models.RoleAdmin:
		group = cmdJoinAdmin
	default:
		return nil
	}
	return m.write(conn, group, nil)
}

// loop reads until the connection drops, then re-dials with backoff until
// ctx is cancelled.
func (m *Manager) loop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		m.read(conn)
		if ctx.Err() != nil {
			return
		}

		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
		m.setState(StateReconnecting)

		next, ok := m.redial(ctx)
		if !ok {
			return
		}
		m.mu.Lock()
		if !m.running {
			m.mu.Unlock()
			next.Close()
			return
		}
		m.conn = next
		m.mu.Unlock()
		conn = next
		m.opened(conn)
	}
}

func (m *Manager) redial(ctx context.Context) (*websocket.Conn, bool) {
	for attempt := 0; ; attempt++ {
		wait := Backoff(attempt, m.cfg.InitialBackoff, m.cfg.MaxBackoff)
		m.log.WithFields(logrus.Fields{"attempt": attempt + 1, "wait": wait}).Info("reconnecting")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-timer.C:
		}

		conn, err := m.dial(ctx)
		if err == nil {
			return conn, true
		}
		if ctx.Err() != nil {
			return nil, false
		}
		m.log.WithError(err).Debug("dial failed")
	}
}

// Backoff returns the wait before the given retry: exponential from
// initial, capped at limit, with up to 50% random jitter taken off.
func Backoff(attempt int, initial, limit time.Duration) time.Duration {
	d := initial
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	half := int64(d / 2)
	if half <= 0 {
		return d
	}
	return time.Duration(half + rand.Int63n(half+1))
}

func (m *Manager) read(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.log.WithError(err).Warn("connection lost")
			}
			return
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			m.log.WithError(err).Warn("dropping malformed frame")
			continue
		}
		if f.Event == "error" {
			m.log.WithField("data", string(f.Data)).Warn("hub rejected command")
		}
		m.dispatch(f)
	}
}

func (m *Manager) dispatch(f frame) {
	m.lmu.RLock()
	handlers := make([]Handler, 0, len(m.listeners[f.Event]))
	for _, h := range m.listeners[f.Event] {
		handlers = append(handlers, h)
	}
	anys := make([]AnyHandler, 0, len(m.any))
	for _, h := range m.any {
		anys = append(anys, h)
	}
	m.lmu.RUnlock()

	for _, h := range handlers {
		m.safely(f.Event, func() { h(f.Data) })
	}
	for _, h := range anys {
		m.safely(f.Event, func() { h(f.Event, f.Data) })
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	m.lmu.RLock()
	fns := make([]func(State), 0, len(m.states))
	for _, fn := range m.states {
		fns = append(fns, fn)
	}
	m.lmu.RUnlock()

	for _, fn := range fns {
		m.safely("state", func() { fn(s) })
	}
}

func (m *Manager) safely(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithFields(logrus.Fields{"event": event, "panic": r}).Error("recovered from panic in listener")
		}
	}()
	fn()
}

package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
)

// Client -> server commands
const (
	EventRegister    = "register"
	EventJoinRole    = "joinRole"
	EventJoinKitchen = "joinKitchen"
	EventJoinCashier = "joinCashier"
	EventJoinAdmin   = "joinAdmin"
)

// Server replies to commands
const (
	EventJoined = "joined"
	EventError  = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 256
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// TokenVerifier resolves a JWT sent inside a register command.
type TokenVerifier func(token string) (models.Identity, error)

// Hub menampung semua koneksi WebSocket dan keanggotaan room-nya
type Hub struct {
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	mu      sync.RWMutex

	verify TokenVerifier
	log    *logrus.Entry
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity models.Identity

	// guarded by hub.mu
	rooms  map[string]struct{}
	closed bool
}

func NewHub(verify TokenVerifier) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		verify:  verify,
		log:     utils.Component("hub"),
	}
}

// ServeConn mendaftarkan koneksi yang sudah di-upgrade dan memblok sampai
// koneksi tertutup. identity kosong berarti tamu.
func (h *Hub) ServeConn(conn *websocket.Conn, identity models.Identity) {
	c := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		identity: identity,
		rooms:    make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.log.WithFields(logrus.Fields{"user": identity.UserID, "role": identity.Role, "clients": total}).Info("client connected")

	go c.writePump()
	c.readPump()
}

// Emit sends one frame to every connection in any of rooms. A connection
// that is in several target rooms receives the frame once.
func (h *Hub) Emit(rooms []string, event string, data interface{}) {
	payload, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		h.log.WithError(err).WithField("event", event).Error("marshal event")
		return
	}

	var slow []*Client
	delivered := 0

	h.mu.RLock()
	targets := make(map[*Client]struct{})
	for _, room := range rooms {
		if room == RoomAll {
			for c := range h.clients {
				targets[c] = struct{}{}
			}
			continue
		}
		for c := range h.rooms[room] {
			targets[c] = struct{}{}
		}
	}
	for c := range targets {
		select {
		case c.send <- payload:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("send buffer full, dropping client")
		h.unregister(c)
	}
	h.log.WithFields(logrus.Fields{"event": event, "rooms": rooms, "delivered": delivered}).Debug("emitted")
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	h.leaveAllLocked(c)
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveAllLocked(c)
}

func (h *Hub) leaveAllLocked(c *Client) {
	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	c.rooms = make(map[string]struct{})
}

var (
	errNoIdentity    = errors.New("register requires userId, guestId or token")
	errIdentityClash = errors.New("cannot register as a different user")
)

type registerPayload struct {
	UserID  string `json:"userId"`
	GuestID string `json:"guestId"`
	Token   string `json:"token"`
}

// handle memproses satu perintah dari client
func (h *Hub) handle(c *Client, msg inbound) {
	switch msg.Event {
	case EventRegister:
		room, err := h.register(c, msg.Data)
		if err != nil {
			c.reply(EventError, errorData(err.Error(), msg.Event))
			return
		}
		c.reply(EventJoined, map[string]string{"room": room})

	case EventJoinRole:
		role := stringField(msg.Data, "role")
		h.mu.RLock()
		current := c.identity.Role
		h.mu.RUnlock()
		if role == "" || role != current || !models.ValidRole(role) {
			c.reply(EventError, errorData("role does not match credentials", msg.Event))
			return
		}
		h.join(c, RoleRoom(role))
		c.reply(EventJoined, map[string]string{"room": RoleRoom(role)})

	case EventJoinKitchen:
		h.joinGroup(c, RoomKitchen, msg.Event)
	case EventJoinCashier:
		h.joinGroup(c, RoomCashier, msg.Event)
	case EventJoinAdmin:
		h.joinGroup(c, RoomAdmin, msg.Event)

	default:
		h.log.WithField("event", msg.Event).Debug("ignoring unknown command")
	}
}

func (h *Hub) register(c *Client, raw json.RawMessage) (string, error) {
	var p registerPayload
	if s := rawString(raw); s != "" {
		p.UserID = s
	} else if len(raw) > 0 {
		_ = json.Unmarshal(raw, &p)
	}

	h.mu.RLock()
	identity := c.identity
	h.mu.RUnlock()

	if p.Token != "" && h.verify != nil {
		verified, err := h.verify(p.Token)
		if err != nil {
			return "", err
		}
		identity = verified
	}

	var room string
	switch {
	case p.UserID != "" || (p.Token != "" && identity.UserID != ""):
		if p.UserID != "" && p.UserID != identity.UserID {
			return "", errIdentityClash
		}
		room = UserRoom(identity.UserID)
	case p.GuestID != "":
		identity = models.Identity{GuestID: p.GuestID}
		room = GuestRoom(p.GuestID)
	default:
		return "", errNoIdentity
	}

	h.mu.Lock()
	c.identity = identity
	h.mu.Unlock()

	h.leaveAll(c)
	h.join(c, room)
	return room, nil
}

func (h *Hub) joinGroup(c *Client, room, command string) {
	h.mu.RLock()
	role := c.identity.Role
	h.mu.RUnlock()
	if !canJoinGroup(room, role) {
		c.reply(EventError, errorData("not allowed to join "+room, command))
		return
	}
	h.join(c, room)
	c.reply(EventJoined, map[string]string{"room": room})
}

func errorData(message, command string) map[string]string {
	return map[string]string{"message": message, "command": command}
}

func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) > 0 && raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}

// stringField accepts either "value" or {"<field>": "value"}.
func stringField(raw json.RawMessage, field string) string {
	if s := rawString(raw); s != "" {
		return s
	}
	var m map[string]interface{}
	if json.Unmarshal(raw, &m) != nil {
		return ""
	}
	s, _ := m[field].(string)
	return s
}

func (c *Client) reply(event string, data interface{}) {
	payload, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.mu.RLock()
		user := c.identity.UserID
		c.hub.mu.RUnlock()
		c.hub.unregister(c)
		c.conn.Close()
		c.hub.log.WithField("user", user).Info("client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.WithError(err).Warn("unexpected close")
			}
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(EventError, errorData("malformed frame", ""))
			continue
		}
		c.hub.handle(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

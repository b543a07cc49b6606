package controllers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/restaurant-orders/models"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(gin.H{"event": event, "data": data}))
}

// readUntil membaca frame sampai menemukan event yang dicari
func readUntil(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Event == event {
			return f
		}
	}
}

func TestWebSocketRoomsReceiveOrderEvents(t *testing.T) {
	s := setupServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	kitchen := dialWS(t, srv, "?token="+s.tokens[models.RoleKitchen])
	send(t, kitchen, "joinKitchen", nil)
	joined := readUntil(t, kitchen, "joined")
	assert.JSONEq(t, `{"room":"kitchen"}`, string(joined.Data))

	guestConn := dialWS(t, srv, "")
	send(t, guestConn, "register", gin.H{"guestId": "guest-ws"})
	readUntil(t, guestConn, "joined")

	send(t, guestConn, "joinKitchen", nil)
	rejected := readUntil(t, guestConn, "error")
	assert.Contains(t, string(rejected.Data), "not allowed")

	order := s.placeOrder(t, asGuest("guest-ws"))

	created := readUntil(t, kitchen, "order:created")
	var got models.Order
	require.NoError(t, json.Unmarshal(created.Data, &got))
	assert.Equal(t, order.ID, got.ID)
	readUntil(t, guestConn, "order:created")

	code, _ := s.do(t, asRole(s, models.RoleKitchen), http.MethodPatch, "/api/orders/"+order.ID+"/status", gin.H{"status": "confirmed"})
	require.Equal(t, http.StatusOK, code)

	personal := readUntil(t, guestConn, "order:your-status-changed")
	var delta map[string]interface{}
	require.NoError(t, json.Unmarshal(personal.Data, &delta))
	assert.Equal(t, order.ID, delta["_id"])
	assert.Equal(t, "confirmed", delta["status"])
	assert.Equal(t, "pending", delta["previousStatus"])
	assert.EqualValues(t, 2, delta["revision"])

	staff := readUntil(t, kitchen, "order:status-changed")
	assert.Contains(t, string(staff.Data), `"status":"confirmed"`)
}

func TestWebSocketRejectsInvalidToken(t *testing.T) {
	s := setupServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=invalid"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

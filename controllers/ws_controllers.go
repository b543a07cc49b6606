package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yeremiapane/restaurant-orders/hub"
	"github.com/yeremiapane/restaurant-orders/middlewares"
)

type WSController struct {
	Hub      *hub.Hub
	upgrader websocket.Upgrader
}

// NewWSController menerima origin yang diizinkan; "*" mengizinkan semua.
func NewWSController(h *hub.Hub, allowedOrigin string) *WSController {
	return &WSController{
		Hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigin == "*" || origin == allowedOrigin
			},
		},
	}
}

// ServeWS -> endpoint WebSocket untuk semua role dan guest
func (wc *WSController) ServeWS(c *gin.Context) {
	identity := middlewares.CurrentIdentity(c)

	ws, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	// blocking sampai koneksi ditutup
	wc.Hub.ServeConn(ws, identity)
}

package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/elimuconnect/elimu/core"
	"github.com/elimuconnect/elimu/core/message"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsPongTimeout    = 60 * time.Second
	wsPingInterval   = 30 * time.Second
	wsMaxMessageSize = 512
	wsSendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type (
	// Hub tracks open inbox connections per user and fans messages out to
	// them. Delivery is best-effort; slow consumers are dropped and fall
	// back to polling.
	Hub struct {
		mu          sync.RWMutex
		connections map[string]map[*wsConnection]bool // keyed by user ID
		log         core.Logger
	}

	wsConnection struct {
		userID string
		conn   *websocket.Conn
		send   chan []byte
	}
)

var _ message.Broadcaster = (*Hub)(nil)

func NewHub(log core.Logger) *Hub {
	return &Hub{
		connections: make(map[string]map[*wsConnection]bool),
		log:         log,
	}
}

func (h *Hub) register(conn *wsConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.connections[conn.userID] == nil {
		h.connections[conn.userID] = make(map[*wsConnection]bool)
	}
	h.connections[conn.userID][conn] = true
}

func (h *Hub) unregister(conn *wsConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.connections[conn.userID]; ok && conns[conn] {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.connections, conn.userID)
		}
		close(conn.send)
	}
}

// BroadcastMessage pushes msg to every open inbox connection of userID.
func (h *Hub) BroadcastMessage(userID string, msg message.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error(fmt.Sprintf("marshaling pushed message: %v", err), err)
		return
	}

	h.mu.RLock()
	conns := make([]*wsConnection, 0, len(h.connections[userID]))
	for conn := range h.connections[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		select {
		case conn.send <- data:
		default:
			// buffer full; drop the connection, polling catches the client up
			h.log.Warn("inbox connection buffer full, dropping")
			h.unregister(conn)
		}
	}
}

// ConnectionCount reports open connections for userID.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}

// serve upgrades the request and pumps the user's inbox until the peer goes away.
func (h *Hub) serve(ctx echo.Context, userID string) error {
	ws, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return err
	}

	conn := &wsConnection{
		userID: userID,
		conn:   ws,
		send:   make(chan []byte, wsSendBufferSize),
	}
	h.register(conn)

	go h.writePump(conn)
	go h.readPump(conn)
	return nil
}

func (h *Hub) readPump(conn *wsConnection) {
	defer func() {
		h.unregister(conn)
		_ = conn.conn.Close()
	}()

	conn.conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	// inbound frames are ignored; the socket is push-only
	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug(fmt.Sprintf("inbox connection closed: %v", err))
			}
			break
		}
	}
}

func (h *Hub) writePump(conn *wsConnection) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.conn.Close()
	}()

	for {
		select {
		case data, ok := <-conn.send:
			_ = conn.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				_ = conn.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

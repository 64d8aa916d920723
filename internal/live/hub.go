// Package live pushes newly-ingested events to dashboard clients over a
// WebSocket, subscribing to internal/eventbus per connection and relaying
// whatever arrives for that connection's store until the client
// disconnects or the bus drops it.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/retailpulse/eventpipeline/internal/eventbus"
	"github.com/retailpulse/eventpipeline/internal/model"
	"github.com/retailpulse/eventpipeline/internal/tenancy"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// authenticator is the slice of *tenancy.MetaStore the live hub depends
// on, narrowed so tests can substitute a fake session store.
type authenticator interface {
	AuthenticateCredential(ctx context.Context, token string) (model.Scope, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub upgrades authenticated requests to a WebSocket and streams one
// store's events to each connected client.
type Hub struct {
	meta   authenticator
	bus    eventbus.Bus
	logger *slog.Logger
}

// New constructs a Hub.
func New(meta *tenancy.MetaStore, bus eventbus.Bus, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{meta: meta, bus: bus, logger: logger}
}

// ServeWS implements GET /api/analytics/live/stream?store_id=...&token=...
// A bearer token may arrive either as a query parameter (browsers cannot
// set arbitrary headers on the WebSocket handshake) or an Authorization
// header, for non-browser clients.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" {
		http.Error(w, "missing credential", http.StatusUnauthorized)
		return
	}

	cred, err := h.meta.AuthenticateCredential(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}

	storeID := r.URL.Query().Get("store_id")
	if storeID == "" {
		http.Error(w, "store_id is required", http.StatusBadRequest)
		return
	}
	if err := tenancy.Enforce(cred, model.Scope{OrgID: cred.OrgID, StoreID: storeID}); err != nil {
		http.Error(w, "scope violation", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("live: websocket upgrade failed", "error", err)
		return
	}

	events, unsubscribe := h.bus.Subscribe(storeID)
	h.logger.Info("live: client connected", "store_id", storeID)
	go h.writeLoop(conn, events, unsubscribe)
	h.readLoop(conn)
}

// writeLoop relays bus events to the client and pings it on a fixed
// interval, stopping when the bus closes the channel or a write or ping to
// the client fails.
func (h *Hub) writeLoop(conn *websocket.Conn, events <-chan model.Event, unsubscribe func()) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		unsubscribe()
		conn.Close()
	}()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			payload, err := json.Marshal(e)
			if err != nil {
				h.logger.Error("live: marshal event failed", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop exists only to observe the client's pong/close frames and
// detect disconnects; dashboards never send data over this connection.
func (h *Hub) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
		return ""
	}
	return auth[len(prefix):]
}

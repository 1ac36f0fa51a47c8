package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pongarena/coordinator/internal/config"
	"pongarena/coordinator/internal/coordinator"
	"pongarena/coordinator/internal/logging"
)

const (
	// maxInboundBytes caps a single client frame.
	maxInboundBytes = 32 * 1024
	// writeWait bounds a single outbound write, pings included.
	writeWait = 10 * time.Second
)

// gateway owns the HTTP upgrade path and the per-connection pumps between a
// websocket and the coordinator.
type gateway struct {
	cfg      *config.Config
	log      *logging.Logger
	coord    *coordinator.Coordinator
	auth     websocketAuthenticator
	upgrader websocket.Upgrader
}

func newGateway(cfg *config.Config, log *logging.Logger, coord *coordinator.Coordinator) (*gateway, error) {
	g := &gateway{cfg: cfg, log: log, coord: coord}

	if cfg.AuthSecret != "" {
		authenticator, err := newHMACWebsocketAuthenticator(cfg.AuthSecret)
		if err != nil {
			return nil, err
		}
		g.auth = authenticator
	} else {
		log.Warn("no auth secret configured, trusting client-claimed identities")
		g.auth = queryAuthenticator{}
	}

	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	return g, nil
}

// originAllowed accepts every origin when no allow-list is configured.
func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, origin) {
			return true
		}
	}
	return false
}

// wsConn adapts one gorilla connection to the coordinator.Conn contract. Send
// never blocks: frames queue onto a buffered channel drained by the write
// pump, and a consumer that falls too far behind is cut off.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	log  *logging.Logger

	closeOnce sync.Once
}

func (c *wsConn) Send(payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		c.log.Error("marshal outbound frame", logging.Error(err))
		return
	}
	select {
	case <-c.done:
	case c.send <- raw:
	default:
		//1.- A full queue means the client stopped reading; drop the connection.
		c.log.Warn("send queue overflow, terminating connection")
		c.Terminate()
	}
}

func (c *wsConn) Terminate() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (g *gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	claims, err := g.auth.Authenticate(r)
	if err != nil {
		g.log.Warn("websocket auth failed", logging.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sock, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", logging.Error(err))
		return
	}

	client := &wsConn{
		conn: sock,
		send: make(chan []byte, g.cfg.SendQueueSize),
		done: make(chan struct{}),
		log:  g.log,
	}

	g.log.Info("client connected",
		logging.Int64("user_id", claims.UserID),
		logging.String("remote", r.RemoteAddr))
	g.coord.Connect(claims.UserID, claims.Alias, client)

	go g.writePump(client)
	go g.readPump(claims.UserID, client)
}

// readPump relays inbound frames into the coordinator until the connection
// drops, then reports the disconnect.
func (g *gateway) readPump(userID int64, client *wsConn) {
	defer func() {
		g.coord.Disconnect(userID, client)
		client.Terminate()
		g.log.Info("client disconnected", logging.Int64("user_id", userID))
	}()

	limiter := g.coord.NewRateLimiter()
	deadline := 2 * g.cfg.HeartbeatInterval

	client.conn.SetReadLimit(maxInboundBytes)
	_ = client.conn.SetReadDeadline(time.Now().Add(deadline))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				g.log.Debug("read error", logging.Int64("user_id", userID), logging.Error(err))
			}
			return
		}
		_ = client.conn.SetReadDeadline(time.Now().Add(deadline))

		if !limiter.Allow() {
			client.Send(coordinator.ErrorPayload("rate_limited"))
			continue
		}
		g.coord.HandleFrame(userID, client, raw)
	}
}

// writePump drains the send queue and keeps the connection alive with
// heartbeat pings.
func (g *gateway) writePump(client *wsConn) {
	ticker := time.NewTicker(g.cfg.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		client.Terminate()
	}()

	for {
		select {
		case raw := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.done:
			return
		}
	}
}

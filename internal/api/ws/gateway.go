// Package ws provides the websocket gateway: front-end observers receive the
// front topic, and the single player device receives the player topic and
// reports its state over the same connection.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karabox/internal/app/notification"
	"github.com/osa030/karabox/internal/app/session"
	"github.com/osa030/karabox/internal/domain/user"
	"github.com/osa030/karabox/internal/infra/config"
)

// Event types sent only by the gateway.
const (
	// TypeDigest is the first event of a front connection. Its sequence_no
	// is that of the last event broadcast before the client subscribed, and
	// every later event on the connection has a greater one. An event
	// following the digest may repeat a change the digest already shows.
	TypeDigest   = "digest"
	TypeRejected = "rejected"
)

// Gateway upgrades authenticated requests to websocket connections.
type Gateway struct {
	session  *session.Manager
	config   *config.Config
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewGateway creates a new Gateway.
func NewGateway(mgr *session.Manager, cfg *config.Config) *Gateway {
	g := &Gateway{session: mgr, config: cfg, now: time.Now}
	g.upgrader = websocket.Upgrader{CheckOrigin: g.checkOrigin}
	return g
}

// checkOrigin accepts any origin unless allowed_origins is configured.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	allowed := g.config.WebSocket.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	return slices.Contains(allowed, r.Header.Get("Origin"))
}

func (g *Gateway) newClient(conn *websocket.Conn) *client {
	return newClient(conn, g.config.WebSocket.SendBuffer, g.config.WriteTimeout(), g.config.PingInterval())
}

// ServeFront streams the front topic, preceded by a digest of the session.
func (g *Gateway) ServeFront(w http.ResponseWriter, r *http.Request, u user.User) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Msgf("ws: front upgrade failed: user=%s err=%v", u.ID, err)
		return
	}
	c := g.newClient(conn)

	notifier := g.session.Notifier()
	subID, seq := notifier.SubscribeAt(notification.TopicFront, c)
	zlog.Debug().Msgf("ws: front connected: user=%s subscription=%s", u.ID, subID)

	// Events broadcast meanwhile wait in the send buffer until the digest
	// is written.
	digest, err := g.session.Digest(r.Context())
	if err == nil {
		err = c.writeNow(notification.Event{Type: TypeDigest, Data: digest, Date: g.now(), SequenceNo: seq})
	}
	if err != nil {
		zlog.Error().Msgf("ws: failed to send digest: user=%s err=%v", u.ID, err)
		notifier.Unsubscribe(notification.TopicFront, subID)
		c.close()
		return
	}

	go c.writePump()
	c.readPump(nil)

	notifier.Unsubscribe(notification.TopicFront, subID)
	zlog.Debug().Msgf("ws: front disconnected: user=%s subscription=%s", u.ID, subID)
}

// ServeDevice binds the player device to the session for the lifetime of
// the connection. Only one player may be connected at a time.
func (g *Gateway) ServeDevice(w http.ResponseWriter, r *http.Request, u user.User) {
	if !u.IsPlayer {
		g.refuse(w, http.StatusForbidden, session.ErrForbidden)
		return
	}

	channel := uuid.NewString()
	if err := g.session.ConnectPlayer(r.Context(), u, channel); err != nil {
		if session.Code(err) == "" {
			zlog.Error().Msgf("ws: failed to connect player: %v", err)
			g.refuse(w, http.StatusInternalServerError, err)
			return
		}
		g.refuse(w, http.StatusConflict, err)
		return
	}
	// The request context ends with the handler; cleanup must outlive it.
	defer func() {
		if err := g.session.DisconnectPlayer(context.Background(), channel); err != nil {
			zlog.Error().Msgf("ws: failed to disconnect player: channel=%s err=%v", channel, err)
		}
	}()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Msgf("ws: device upgrade failed: %v", err)
		return
	}
	c := g.newClient(conn)

	notifier := g.session.Notifier()
	subID := notifier.Subscribe(notification.TopicPlayer, c)
	zlog.Info().Msgf("ws: player connected: user=%s channel=%s", u.ID, channel)

	d := &deviceHandler{session: g.session, config: g.config, client: c, user: u, now: g.now}
	go c.writePump()
	c.readPump(d.handle)

	notifier.Unsubscribe(notification.TopicPlayer, subID)
	zlog.Info().Msgf("ws: player disconnected: user=%s channel=%s", u.ID, channel)
}

// refuse answers a request that is not upgraded.
func (g *Gateway) refuse(w http.ResponseWriter, status int, err error) {
	code := session.Code(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rejected{Code: code, Message: g.config.GetMessage(code)})
}

type rejected struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

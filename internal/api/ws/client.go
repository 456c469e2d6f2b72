package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karabox/internal/app/notification"
)

const maxMessageSize = 64 << 10

// client is one websocket connection. Events are queued in send and written
// by writePump; inbound frames are read by readPump.
type client struct {
	conn         *websocket.Conn
	send         chan notification.Event
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	pingInterval time.Duration
}

func newClient(conn *websocket.Conn, buffer int, writeTimeout, pingInterval time.Duration) *client {
	return &client{
		conn:         conn,
		send:         make(chan notification.Event, buffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

// Deliver queues an event without blocking. A client whose buffer is full
// is disconnected: it would miss the event and then carry on out of sync.
func (c *client) Deliver(ev notification.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		zlog.Warn().Msgf("ws: send buffer full, closing connection: remote=%s type=%s", c.conn.RemoteAddr(), ev.Type)
		c.close()
		return false
	}
}

// writeNow writes an event directly. It must only be called before
// writePump starts.
func (c *client) writeNow(ev notification.Event) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(ev)
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				zlog.Debug().Msgf("ws: write failed: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump calls handle for each text frame until the connection fails.
func (c *client) readPump(handle func(data []byte)) {
	defer c.close()

	pongWait := 2 * c.pingInterval
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zlog.Debug().Msgf("ws: read failed: %v", err)
			}
			return
		}
		if handle != nil {
			handle(data)
		}
	}
}

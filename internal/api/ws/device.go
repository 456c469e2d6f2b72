package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karabox/internal/app/notification"
	"github.com/osa030/karabox/internal/app/session"
	"github.com/osa030/karabox/internal/domain/player"
	"github.com/osa030/karabox/internal/domain/user"
	"github.com/osa030/karabox/internal/infra/config"
)

// Messages sent by the player device.
const (
	MessageReady  = "ready"
	MessageStatus = "status"
	MessageError  = "error"
)

const requestTimeout = 10 * time.Second

// inbound is a message from the player device.
type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type statusData struct {
	Event        string  `json:"event"`
	EntryID      string  `json:"playlist_entry_id"`
	Timing       float64 `json:"timing"` // Seconds
	ErrorMessage string  `json:"error_message"`
}

type errorData struct {
	EntryID      string `json:"playlist_entry_id"`
	ErrorMessage string `json:"error_message"`
}

// deviceHandler dispatches the messages of a connected player.
type deviceHandler struct {
	session *session.Manager
	config  *config.Config
	client  *client
	user    user.User
	now     func() time.Time
}

type messageHandler func(d *deviceHandler, ctx context.Context, data json.RawMessage) error

var messageHandlers = map[string]messageHandler{
	MessageReady:  (*deviceHandler).onReady,
	MessageStatus: (*deviceHandler).onStatus,
	MessageError:  (*deviceHandler).onError,
}

func (d *deviceHandler) handle(raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		d.reject(session.ErrInvalidRequest)
		return
	}
	h, ok := messageHandlers[msg.Type]
	if !ok {
		zlog.Warn().Msgf("ws: unknown player message: type=%q", msg.Type)
		d.reject(session.ErrInvalidRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := h(d, ctx, msg.Data); err != nil {
		if session.Code(err) == "" {
			zlog.Error().Msgf("ws: player message failed: type=%s err=%v", msg.Type, err)
		}
		d.reject(err)
	}
}

func (d *deviceHandler) onReady(ctx context.Context, _ json.RawMessage) error {
	return d.session.PlayerReady(ctx, d.user)
}

func (d *deviceHandler) onStatus(ctx context.Context, data json.RawMessage) error {
	var s statusData
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrapf(session.ErrInvalidRequest, "decode status: %v", err)
	}
	ev, err := player.ParseEvent(s.Event)
	if err != nil {
		return err
	}
	_, err = d.session.ReportStatus(ctx, d.user, player.Report{
		Event:   ev,
		EntryID: s.EntryID,
		Timing:  time.Duration(s.Timing * float64(time.Second)),
		Message: s.ErrorMessage,
	})
	return err
}

func (d *deviceHandler) onError(ctx context.Context, data json.RawMessage) error {
	var e errorData
	if err := json.Unmarshal(data, &e); err != nil {
		return errors.Wrapf(session.ErrInvalidRequest, "decode error: %v", err)
	}
	_, err := d.session.ReportError(ctx, d.user, e.EntryID, e.ErrorMessage)
	return err
}

// reject tells the player its message was refused.
func (d *deviceHandler) reject(err error) {
	code := session.Code(err)
	d.client.Deliver(notification.Event{
		Type: TypeRejected,
		Data: rejected{Code: code, Message: d.config.GetMessage(code)},
		Date: d.now(),
	})
}

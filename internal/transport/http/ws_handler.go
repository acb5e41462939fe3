package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg-server/internal/auth"
	"github.com/vovakirdan/wiremsg-server/internal/core"
)

// WSOptions tunes live connections.
type WSOptions struct {
	QueueSize    int
	WriteTimeout time.Duration
	RequireToken bool
}

// WSHandler upgrades HTTP connections and registers them as the user's delivery channel.
// The socket is push-only: the server never expects inbound frames.
type WSHandler struct {
	registry *core.Registry
	auth     *auth.Service
	opts     WSOptions
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(registry *core.Registry, authService *auth.Service, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &WSHandler{
		registry: registry,
		auth:     authService,
		opts:     opts,
		log:      logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		stdhttp.Error(w, "username is required", stdhttp.StatusBadRequest)
		return
	}

	if h.opts.RequireToken {
		claims, err := h.auth.ValidateToken(r.URL.Query().Get("token"))
		if err != nil || claims.Username != username {
			h.log.Debug().Err(err).Str("username", username).Msg("ws token rejected")
			stdhttp.Error(w, "invalid token", stdhttp.StatusUnauthorized)
			return
		}
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer ws.CloseNow()

	conn := core.NewConn(username, h.opts.QueueSize)
	if prev := h.registry.Register(username, conn); prev != nil {
		event := h.log.Info().Str("username", username).Str("new_conn_id", conn.ID)
		if old, ok := prev.(*core.Conn); ok {
			event = event.Str("replaced_conn_id", old.ID)
		}
		event.Msg("connection replaced by newer session")
	}
	h.log.Info().Str("username", username).Str("conn_id", conn.ID).Msg("user connected")

	defer func() {
		removed := h.registry.Unregister(username, conn)
		conn.Close()
		h.log.Info().Str("username", username).Str("conn_id", conn.ID).
			Bool("was_current", removed).Uint64("dropped", conn.Dropped()).Msg("user disconnected")
	}()

	// CloseRead keeps control frames flowing and cancels ctx once the peer goes away.
	ctx := ws.CloseRead(r.Context())

	err = h.writeLoop(ctx, ws, conn)

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if s := websocket.CloseStatus(err); s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			status = websocket.StatusInternalError
			reason = "write failed"
			h.log.Warn().Err(err).Str("username", username).Msg("ws connection closed with error")
		}
	}

	_ = ws.Close(status, reason)
}

func (h *WSHandler) writeLoop(ctx context.Context, ws *websocket.Conn, conn *core.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-conn.Done():
			return nil
		case payload := <-conn.Outbox():
			writeCtx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := ws.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

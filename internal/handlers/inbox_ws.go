package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/AnshRaj112/mystery-message-backend/internal/middleware"
	"github.com/AnshRaj112/mystery-message-backend/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 90 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsReadLimit  = 1024
)

// newInboxUpgrader accepts browser upgrades from the same host only until
// AllowOrigins widens it.
func newInboxUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// AllowOrigins lets browsers on the given frontend origins open the inbox socket.
// Browsers do not apply CORS to WebSocket upgrades, so the Origin header is
// checked here. Requests without one come from non-browser clients.
func (h *Handler) AllowOrigins(origins []string) {
	match := middleware.OriginMatcher(origins)
	h.upgrader.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || match(origin)
	}
}

// InboxWebSocket streams the caller's new messages as they arrive. The client
// only needs to answer pings; anything it sends is discarded.
func (h *Handler) InboxWebSocket(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	// Subscribe before upgrading so a Redis failure can still be reported as HTTP.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := h.inbox.Subscribe(ctx, caller.UserID)
	if err != nil {
		logger.Log(ctx).Error(ctx, "inbox subscribe failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := logger.Log(ctx)
	log.Debug(ctx, "inbox websocket opened")

	// Reader: keeps pong deadlines fresh and notices the client going away.
	go func() {
		defer cancel()
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				log.Debug(ctx, "inbox websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

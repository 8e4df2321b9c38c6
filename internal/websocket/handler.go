// Package websocket is the client transport of the coordinator. Each
// connection is one room session; inbound envelopes are routed to the
// coordinator and failures are answered with an error event to the
// requester only.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aaronwang/live-auction/internal/identity"
	"github.com/aaronwang/live-auction/internal/service"
)

const requestTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development (use proper CORS in production)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP connections and serves the auction protocol
type Handler struct {
	coord    *service.Coordinator
	resolver identity.Resolver
	logger   *slog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(coord *service.Coordinator, resolver identity.Resolver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		coord:    coord,
		resolver: resolver,
		logger:   logger,
	}
}

// ServeHTTP resolves the caller, upgrades the connection and serves it
// until it closes
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := tokenFrom(r)
	ident, err := h.resolver.Resolve(r.Context(), token)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			h.logger.Warn("rejected websocket connection", "remote", r.RemoteAddr, "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.logger.Error("identity lookup failed", "error", err)
		http.Error(w, "identity service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("failed to upgrade connection", "error", err)
		return
	}

	client := newClient(uuid.New().String(), *ident, conn, h.logger)
	h.coord.Connect(client)
	h.logger.Info("client connected", "session", client.ID(), "participant", ident.ParticipantRef, "role", ident.Role)

	go client.writePump()

	// the request context is cancelled once the handler returns
	ctx := context.WithoutCancel(r.Context())
	client.readPump(func(data []byte) {
		h.handleMessage(ctx, client, data)
	})

	h.coord.Disconnect(ctx, client.ID())
	h.logger.Info("client disconnected", "session", client.ID(), "participant", ident.ParticipantRef)
}

// tokenFrom reads the token query parameter or a bearer Authorization header
func tokenFrom(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/staffhub/notifications/internal/domain"
	"github.com/staffhub/notifications/internal/logger"
	"github.com/staffhub/notifications/internal/push"
	"github.com/staffhub/notifications/internal/service"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// wsSink adapts a websocket connection to push.Sink. Writes are serialized
// because gorilla connections allow one concurrent writer.
type wsSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSink) WriteJSON(ctx context.Context, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteJSON(payload)
}

func (s *wsSink) ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}

func (s *wsSink) Close() error {
	return s.conn.Close()
}

// StreamHandler upgrades receivers to a websocket fed by the push registry
type StreamHandler struct {
	registry            *push.Registry
	notificationService *service.NotificationService
	upgrader            websocket.Upgrader
}

// NewStreamHandler creates a new stream handler. allowedOrigins empty means any origin.
func NewStreamHandler(registry *push.Registry, notificationService *service.NotificationService, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		registry:            registry,
		notificationService: notificationService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// Stream handles GET /api/v1/notifications/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	receiver, ok := receiverFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	log := logger.From(r.Context()).With(slog.String("receiver", receiver.String()))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	sink := &wsSink{conn: conn}

	// The badge is correct from the first frame; later changes arrive as pushes
	if count, err := h.notificationService.UnreadCount(r.Context(), receiver); err == nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		err = sink.WriteJSON(ctx, domain.PushMessage{Kind: domain.PushUnreadCount, UnreadCount: &count})
		cancel()
		if err != nil {
			conn.Close()
			return
		}
	}

	c := h.registry.Register(receiver, sink)
	log.Debug("push connection opened", slog.Int("connections", h.registry.ConnectionsFor(receiver)))

	go keepAlive(sink, c)
	readPump(conn)

	h.registry.Unregister(c)
	log.Debug("push connection closed")
}

// readPump discards client frames and returns when the connection dies
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func keepAlive(sink *wsSink, c *push.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.Done():
			return
		case <-ticker.C:
			if err := sink.ping(); err != nil {
				sink.Close()
				return
			}
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

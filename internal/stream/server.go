package stream

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Options tunes websocket keepalive. Zero values pick defaults.
type Options struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	return o
}

// Handler upgrades requests to websocket event streams.
type Handler struct {
	hub      *Hub
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(h *Hub, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:    h,
		opts:   opts.withDefaults(),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/events/stream", h.Stream)
}

// Stream serves GET /v1/events/stream. The optional intent_id query
// parameter narrows the stream to one intent.
func (h *Handler) Stream(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", "error", err.Error())
		return nil
	}

	sub := h.hub.NewSubscriber(ws, c.QueryParam("intent_id"))
	if !h.hub.Register(sub) {
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		return ws.Close()
	}
	ws.SetReadLimit(h.opts.MaxMessageSize)

	go h.writePump(sub)
	go h.readPump(sub)
	return nil
}

// readPump only services control frames; subscribers send nothing.
func (h *Handler) readPump(sub *Subscriber) {
	defer func() {
		h.hub.Unregister(sub)
		sub.Close()
	}()

	_ = sub.Conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	sub.Conn.SetPongHandler(func(string) error {
		return sub.Conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	for {
		if _, _, err := sub.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", "subscriber", sub.ID, "error", err.Error())
			}
			return
		}
	}
}

func (h *Handler) writePump(sub *Subscriber) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		sub.Close()
	}()

	for {
		select {
		case message, ok := <-sub.Send:
			_ = sub.Conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if !ok {
				_ = sub.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sub.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("failed to write stream event", "subscriber", sub.ID, "error", err.Error())
				return
			}

		case <-ticker.C:
			_ = sub.Conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := sub.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

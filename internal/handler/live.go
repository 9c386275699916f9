package handler

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sakif/poketrade/internal/realtime"
	"github.com/sakif/poketrade/internal/service"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Pings go out before the peer's read deadline would expire.
	pingPeriod = (pongWait * 9) / 10

	// The streams are server to client; clients only send control frames.
	maxClientMessage = 512
)

// LiveHandler streams chat messages and notifications over websockets.
//
// Each connection is one subscription. The first frame is a snapshot of the
// current state; every later frame is a single new message or notification.
// Clients dedupe by id because an item created while the snapshot is read can
// arrive in both.
type LiveHandler struct {
	chats    *service.ChatService
	social   *service.SocialService
	upgrader websocket.Upgrader
	logger   *slog.Logger

	closeOnce sync.Once
	closing   chan struct{}
}

func NewLiveHandler(chats *service.ChatService, social *service.SocialService, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{
		chats:  chats,
		social: social,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		closing: make(chan struct{}),
	}
}

// Shutdown tells every open stream to close. http.Server.Shutdown does not
// track hijacked connections, so the server registers this with RegisterOnShutdown.
func (h *LiveHandler) Shutdown() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// HandleChat streams a chat: the whole conversation first, then each new message.
//
// HTTP: GET /api/chats/{id}/live (websocket)
func (h *LiveHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	sub, msgs, err := h.chats.Subscribe(r.Context(), userID(r), chatID)
	if err != nil {
		fail(w, r, h.logger, "subscribe to chat", err)
		return
	}
	h.stream(w, r, sub, realtime.TypeSnapshot, msgs)
}

// HandleNotifications streams the caller's notifications.
//
// HTTP: GET /api/live (websocket)
func (h *LiveHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	sub, notes, err := h.social.LiveNotifications(r.Context(), userID(r))
	if err != nil {
		fail(w, r, h.logger, "subscribe to notifications", err)
		return
	}
	h.stream(w, r, sub, realtime.TypeSnapshot, notes)
}

// stream upgrades the connection and pumps the subscription into it until
// either side goes away. It owns sub and closes it.
func (h *LiveHandler) stream(w http.ResponseWriter, r *http.Request, sub *realtime.Subscription, typ string, snapshot any) {
	defer sub.Close()

	first, err := realtime.NewEvent(sub.Topic, typ, snapshot)
	if err != nil {
		fail(w, r, h.logger, "encode snapshot", err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered with an HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go readPump(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := writeEvent(conn, first); err != nil {
		return
	}
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				// The broker dropped us for falling behind, or is shutting down.
				closeConn(conn, websocket.CloseTryAgainLater, "stream ended")
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-h.closing:
			closeConn(conn, websocket.CloseGoingAway, "server shutting down")
			return
		case <-done:
			return
		}
	}
}

// readPump keeps the read deadline moving with each pong and notices when the
// client goes away. It closes done when reading fails.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev realtime.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
}

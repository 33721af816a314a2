package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/freightdesk/internal/api/apiv1"
	"github.com/matheus3301/freightdesk/internal/api/middleware"
	"github.com/matheus3301/freightdesk/internal/messaging"
	"github.com/matheus3301/freightdesk/internal/unread"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// UnreadStream pushes the caller's unread count over a websocket. Each
// connection owns one synchronizer, seeded with the current count and torn
// down when the connection ends.
func (h *Handler) UnreadStream(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		h.Fail(w, r, messaging.ErrNotAuthenticated)
		return
	}
	seed, err := h.svc.GetUnreadMessagesCount(r.Context(), userID)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Only the latest count matters; older pending ones are replaced.
	updates := make(chan int, 1)
	push := func(n int) {
		for {
			select {
			case updates <- n:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	}

	counter := h.startUnreadCounter(ctx, userID, seed, push)
	defer counter.Close()

	go h.readLoop(conn, cancel)

	if err := writeFrame(conn, seed); err != nil {
		return
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case n := <-updates:
			if err := writeFrame(conn, n); err != nil {
				h.logger.Debug("unread stream write failed", zap.String("user_id", userID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// startUnreadCounter starts a synchronizer for userID and recomputes once,
// so a change that landed between reading seed and subscribing to the feed
// still reaches onChange.
func (h *Handler) startUnreadCounter(ctx context.Context, userID string, seed int, onChange func(int)) *unread.Synchronizer {
	counter := unread.NewSynchronizer(unread.Options{
		UserID:   userID,
		Seed:     seed,
		Counter:  h.svc,
		Bus:      h.bus,
		Registry: h.registry,
		OnChange: onChange,
		Logger:   h.logger,
	})
	counter.Start(ctx)
	counter.Refresh()
	return counter
}

// readLoop discards client frames and cancels the stream when the peer goes
// away.
func (h *Handler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4 * 1024)
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

func writeFrame(conn *websocket.Conn, count int) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(apiv1.UnreadFrame{Type: apiv1.FrameUnread, Count: count})
}

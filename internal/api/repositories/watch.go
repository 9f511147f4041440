package repositories

import (
	"context"
	"net/http"
	"time"

	"github.com/gomantics/repochat/internal/api/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Watch handles GET /v1/repositories/:id/watch. It upgrades to a websocket
// and streams status events, starting with the current snapshot. The server
// closes the socket with a normal closure when the repository is removed.
func (h *Handler) Watch(c web.Context) error {
	id := c.Param("id")

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// resolve before upgrading so unknown ids get a plain 404
	events, err := h.Status.Watch(ctx, id)
	if err != nil {
		return c.Fail(err, "watch repository")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		c.L.Warn("failed to upgrade websocket", zap.Error(err))
		return nil
	}
	defer ws.Close()

	l := c.L.With(zap.String("repo_id", id))
	l.Debug("watch started")

	// the read loop only exists to notice the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for ev := range events {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(ev); err != nil {
			l.Debug("watch client gone", zap.Error(err))
			return nil
		}
	}

	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "watch ended"),
		time.Now().Add(writeWait))
	l.Debug("watch finished")
	return nil
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"notifeed/pkg/logger"
	"notifeed/pkg/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 32 * 1024,
	// the UI collaborator connects from an app webview; origin checks
	// happen at the auth middleware via API keys
	CheckOrigin: func(*http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// streamFeed upgrades to a websocket and pushes a full feed snapshot on
// every committed store write until the client goes away.
func streamFeed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	snapshots, err := store.Subscribe(ctx)
	if err != nil {
		storeError(w, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws_upgrade_failed", "error", err)
		return
	}
	defer conn.Close()

	// reader goroutine: we never expect client frames, but reading is
	// required to observe close frames and to notice the peer going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				logger.Debug("ws_write_failed", "error", err)
				return
			}
		}
	}
}

package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"platestation/internal/logger"
	wshub "platestation/internal/services/websocket"
)

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewWebsocketHandler attaches a browser to the live view.
func ViewWebsocketHandler(hub *wshub.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		hub.Serve(connection)
	}
}

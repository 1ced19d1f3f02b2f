package httpapi

import "net/http"

// wsHub is the narrow capability ws.go needs from internal/eventbus.Hub.
type wsHub interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// wsHandler handles GET /ws, upgrading the connection and registering it
// with the hub as a subscriber.
func wsHandler(hub wsHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r)
	}
}

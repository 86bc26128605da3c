package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voltgrid/bess/internal/headend"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // operator dashboards connect cross-origin
	},
}

const wsWriteTimeout = 10 * time.Second

// streamTelemetry upgrades the connection and relays the live feed until the
// client goes away. Each client has its own feed subscription; a slow client
// only loses its own messages.
func streamTelemetry(state *headend.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("websocket upgrade failed from %s: %v", r.RemoteAddr, err)
			return
		}
		defer conn.Close()

		feed, cancel := state.Feed.Subscribe()
		defer cancel()
		logger.Printf("feed client connected from %s (%d total)", r.RemoteAddr, state.Feed.SubscriberCount())

		// Reader goroutine: only to notice the client closing.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				logger.Printf("feed client disconnected from %s", r.RemoteAddr)
				return
			case msg, ok := <-feed:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					logger.Printf("feed write failed to %s: %v", r.RemoteAddr, err)
					return
				}
			}
		}
	}
}

package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// local demo, same-origin page
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleProgressWS streams model download progress to the page. The
// connection closes itself once the download reaches a terminal state.
func (s *Server) handleProgressWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	snap := s.hub.snapshot()
	if err := conn.WriteJSON(snap); err != nil {
		return
	}
	if snap.State == downloadDone || snap.State == downloadFailed {
		return
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case ev := <-ch:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.State == downloadDone || ev.State == downloadFailed {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

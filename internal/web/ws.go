package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sweeney/washer-notify/internal/status"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxMsgSize   = 1 << 12
	pushInterval = 1 * time.Second
)

var upgrader = websocket.Upgrader{
	// LAN dashboards read the stream as well as the status page.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS streams the status snapshot to the client every pushInterval.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go s.drainReads(conn, done)

	ticker := time.NewTicker(pushInterval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	if err := s.sendStatus(conn); err != nil {
		s.log.Debugw("ws_write_failed", "err", err)
		return
	}

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debugw("ws_ping_failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := s.sendStatus(conn); err != nil {
				s.log.Debugw("ws_write_failed", "err", err)
				return
			}
		}
	}
}

// drainReads consumes control frames and signals when the peer goes away.
func (s *Server) drainReads(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) sendStatus(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, status.FormatJSON(s.tracker.Snapshot()))
}

package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sweeney/washer-notify/internal/line"
)

// maxCallbackBody bounds the webhook body read into memory.
const maxCallbackBody = 1 << 20

func (s *Server) handleCallback(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxCallbackBody)

	msgs, err := line.ParseRequest(s.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, line.ErrInvalidSignature) {
			s.log.Warnw("callback_bad_signature", "remote", c.ClientIP())
		} else {
			s.log.Warnw("callback_rejected", "err", err)
		}
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	// Messages from one callback are handled in delivery order.
	for _, m := range msgs {
		s.registrar.OnInboundMessage(c.Request.Context(), m.UserID, m.ReplyToken, m.Text)
	}
	c.Status(http.StatusOK)
}

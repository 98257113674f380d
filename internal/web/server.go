// Package web serves the status page and receives LINE webhook callbacks.
package web

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sweeney/washer-notify/internal/logger"
	"github.com/sweeney/washer-notify/internal/status"
)

// Registrar handles inbound chat messages.
type Registrar interface {
	OnInboundMessage(ctx context.Context, senderID, replyToken, text string) bool
}

// Server serves the status page and webhook over HTTP.
type Server struct {
	httpServer    *http.Server
	tracker       *status.Tracker
	registrar     Registrar
	channelSecret string
	log           *logger.Logger
}

// New creates a Server that reads state from the given tracker and forwards
// verified callback messages to registrar.
func New(addr string, tracker *status.Tracker, registrar Registrar, channelSecret string, log *logger.Logger) *Server {
	s := &Server{
		tracker:       tracker,
		registrar:     registrar,
		channelSecret: channelSecret,
		log:           log,
	}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/", s.handleIndex)
	router.GET("/index.html", s.handleIndex)
	router.GET("/index.json", s.handleJSON)
	router.GET("/health", s.handleHealth)
	router.GET("/ws", s.handleWS)

	router.POST("/callback", s.handleCallback)

	return router
}

// Handler returns the root HTTP handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(c *gin.Context) {
	snap := s.tracker.Snapshot()
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := renderHTML(c.Writer, snap); err != nil {
		s.log.Warnw("render_failed", "err", err)
	}
}

func (s *Server) handleJSON(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Package server exposes the local HTTP API: the inbox, contact and
// template management, outbound sends, the provider webhook and an SSE
// feed of daemon events for dashboard clients.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mzahid/dialdesk/internal/bus"
	"github.com/mzahid/dialdesk/internal/inbox"
	"github.com/mzahid/dialdesk/internal/status"
	"github.com/mzahid/dialdesk/internal/store"
	"github.com/mzahid/dialdesk/internal/sync"
	"go.uber.org/zap"
)

// Sender queues or sends outbound provider traffic.
type Sender interface {
	SendMessage(ctx context.Context, to, body, statusCallback string) (string, error)
	MakeCall(ctx context.Context, to, twimlURL string) (string, error)
}

// Server is the HTTP API surface.
type Server struct {
	addr    string
	inbox   *inbox.Store
	db      *store.DB
	poller  *sync.Poller
	sender  Sender
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	engine *gin.Engine
	http   *http.Server
}

// New creates the server and registers all routes.
func New(addr string, ib *inbox.Store, db *store.DB, poller *sync.Poller, sender Sender, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		addr:    addr,
		inbox:   ib,
		db:      db,
		poller:  poller,
		sender:  sender,
		bus:     b,
		machine: machine,
		logger:  logger,
		engine:  engine,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Unauthenticated: account bootstrap and the provider webhook.
	s.engine.POST("/api/auth/register", s.handleRegister)
	s.engine.POST("/api/auth/login", s.handleLogin)
	s.engine.POST("/webhook/twilio", s.handleWebhook)
	s.engine.GET("/api/health", s.handleHealth)

	api := s.engine.Group("/api", s.requireSession())
	api.POST("/auth/logout", s.handleLogout)
	api.GET("/auth/me", s.handleMe)

	api.GET("/status", s.handleStatus)
	api.POST("/sync", s.handleSyncNow)
	api.GET("/events", s.handleEvents)

	api.GET("/conversations", s.handleListConversations)
	api.GET("/conversations/:id", s.handleGetConversation)
	api.POST("/conversations/:id/select", s.handleSelectConversation)
	api.POST("/conversations/:id/read", s.handleMarkRead)
	api.POST("/messages", s.handleSendMessage)
	api.POST("/calls", s.handleMakeCall)

	api.GET("/contacts", s.handleListContacts)
	api.POST("/contacts", s.handleSaveContact)
	api.DELETE("/contacts/:id", s.handleDeleteContact)

	api.GET("/templates", s.handleListTemplates)
	api.POST("/templates", s.handleSaveTemplate)
	api.DELETE("/templates/:id", s.handleDeleteTemplate)

	api.GET("/filters", s.handleListFilters)
	api.POST("/filters", s.handleSaveFilter)
	api.DELETE("/filters/:name", s.handleDeleteFilter)
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.http = &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server exited", zap.Error(err))
		}
	}()
	s.logger.Info("http api listening", zap.String("addr", s.addr))
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Handler exposes the route tree, mainly so tests and embedders can serve
// it without binding a socket.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

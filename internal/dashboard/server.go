// Package dashboard exposes a read-only HTTP mirror of the console state to
// localhost, so controller internals can be inspected with curl while the
// terminal UI runs.
package dashboard

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Milix-M/DeepReSearch/internal/registry"
	"github.com/Milix-M/DeepReSearch/internal/session"
	"github.com/Milix-M/DeepReSearch/pkg/logger"
	"github.com/Milix-M/DeepReSearch/pkg/util"
)

// Server is the dashboard HTTP service.
type Server struct {
	router     *gin.Engine
	registry   *registry.Registry
	controller *session.Controller
}

// NewServer creates a dashboard over the given controller state.
func NewServer(reg *registry.Registry, ctrl *session.Controller) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	s := &Server{router: r, registry: reg, controller: ctrl}
	s.registerRoutes()
	return s
}

// Engine returns the Gin engine, used by tests.
func (s *Server) Engine() *gin.Engine { return s.router }

// Serve starts listening in the background. addr empty disables the server.
func (s *Server) Serve(addr string) {
	if addr == "" {
		return
	}
	util.SafeGo(func() {
		logger.Info("dashboard listening", logger.FieldAddr, addr)
		if err := s.router.Run(addr); err != nil {
			logger.Error("dashboard stopped", logger.FieldError, err)
		}
	})
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/threads", s.handleThreads)
	s.router.GET("/threads/:id/messages", s.handleMessages)
	s.router.GET("/threads/:id/insight", s.handleInsight)
}

func (s *Server) handleHealthz(c *gin.Context) {
	success(c, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"threads":   len(s.registry.List()),
	})
}

func (s *Server) handleThreads(c *gin.Context) {
	threads := s.registry.List()
	success(c, gin.H{
		"threads":       threads,
		"active_count":  len(s.registry.IDsByStatus(registry.StatusRunning)),
		"pending_count": len(s.registry.IDsByStatus(registry.StatusPendingHuman)),
	})
}

func (s *Server) handleMessages(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.registry.Get(id); !ok {
		notFound(c, "unknown thread")
		return
	}
	success(c, gin.H{
		"thread_id": id,
		"messages":  s.controller.Messages(id),
	})
}

func (s *Server) handleInsight(c *gin.Context) {
	id := c.Param("id")
	state, ok := s.controller.InsightState(id)
	if !ok {
		notFound(c, "no live insight for thread")
		return
	}
	success(c, gin.H{
		"thread_id":    id,
		"current_page": state.CurrentPage,
		"reasoning":    state.Reasoning,
		"updated_at":   state.UpdatedAt.Format(time.RFC3339),
	})
}

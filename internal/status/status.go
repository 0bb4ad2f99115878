// Package status serves a small read-only HTTP API over the running
// endpoint: liveness, counters and the current session.
package status

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/1ureka/camlink/internal/session"
	"github.com/1ureka/camlink/internal/util"
)

// Server is the status API.
type Server struct {
	addr    string
	role    string
	started time.Time
	router  *gin.Engine

	mu      sync.RWMutex
	current *session.Session
}

// New builds the router. Nothing listens until Run.
func New(addr, role string, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{addr: addr, role: role, started: time.Now()}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", s.health)
	router.GET("/stats", s.stats)
	router.GET("/session", s.session)

	s.router = router
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// SetSession publishes the session /session reports on; nil clears it.
func (s *Server) SetSession(sess *session.Session) {
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
}

// Run serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	util.LogInfo("status API listening on %s", s.addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"role":   s.role,
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, util.Stats.Snapshot())
}

func (s *Server) session(c *gin.Context) {
	s.mu.RLock()
	sess := s.current
	s.mu.RUnlock()

	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}
	c.JSON(http.StatusOK, sess.Status())
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		util.LogDebug("[status] %s %s %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

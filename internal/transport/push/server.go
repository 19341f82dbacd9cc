// Package push runs the local webhook bridge that stands in for the
// platform push transport: notification payloads POSTed here are routed
// exactly as a delivered push would be.
package push

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"feelink-client-go/internal/platform/logging"
)

// Handler consumes one raw notification body.
type Handler interface {
	HandleRaw(ctx context.Context, raw []byte) error
}

// Config wires a Server.
type Config struct {
	IP      string
	Port    int
	Handler Handler
	Logger  *logging.Logger

	LogLevel string
}

// Server is the webhook HTTP listener.
type Server struct {
	addr    string
	handler Handler
	logger  *logging.Logger
	engine  *gin.Engine
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("push server requires a handler")
	}

	if strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		addr:    fmt.Sprintf("%s:%d", cfg.IP, cfg.Port),
		handler: cfg.Handler,
		logger:  cfg.Logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(server.loggingMiddleware())
	engine.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	engine.POST("/notify", server.handleNotify)
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server.engine = engine
	return server, nil
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoTag("Push", "webhook bridge listening on %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

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
	return <-errCh
}

func (s *Server) handleNotify(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil || len(raw) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty body"})
		return
	}

	if err := s.handler.HandleRaw(c.Request.Context(), raw); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "routed"})
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.InfoTag("Push", "%s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Engine exposes the router for in-process tests.
func (s *Server) Engine() http.Handler {
	return s.engine
}

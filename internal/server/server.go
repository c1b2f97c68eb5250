// Package server exposes settings, conversations, and generation over a
// JSON HTTP API.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/zulandar/locallm/internal/conversation"
	"github.com/zulandar/locallm/internal/generation"
	"github.com/zulandar/locallm/internal/logger"
	"github.com/zulandar/locallm/internal/settings"
)

// ShutdownTimeout bounds how long in-flight requests may run after the
// server is asked to stop.
const ShutdownTimeout = 10 * time.Second

// Opts holds the services the API serves and how to serve them.
type Opts struct {
	Settings      *settings.Service
	Conversations *conversation.Manager
	Generator     *generation.Service
	Logger        *logger.Logger
	CORSOrigins   []string
	Addr          string    // host:port, defaults to 127.0.0.1:8000
	Out           io.Writer // optional startup banner
}

func (o Opts) check() error {
	if o.Settings == nil {
		return fmt.Errorf("server: settings service is required")
	}
	if o.Conversations == nil {
		return fmt.Errorf("server: conversation manager is required")
	}
	if o.Generator == nil {
		return fmt.Errorf("server: generation service is required")
	}
	return nil
}

// NewRouter builds the gin engine with every API route registered.
func NewRouter(opts Opts) (*gin.Engine, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(accessLog(log.With("service", "http")))
	router.Use(cors.New(corsConfig(opts.CORSOrigins)))

	h := &handlers{
		settings:      opts.Settings,
		conversations: opts.Conversations,
		generator:     opts.Generator,
		log:           log.With("service", "api"),
	}
	registerRoutes(router, h)
	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Requested-With"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

// Start serves the API until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts Opts) error {
	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:8000"
	}
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		shutdownErr <- srv.Shutdown(sctx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening on http://%s\n", opts.Addr)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// accessLog writes one line per request.
func accessLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Error("request", kv...)
		case c.Writer.Status() >= 400:
			log.Warn("request", kv...)
		default:
			log.Info("request", kv...)
		}
	}
}

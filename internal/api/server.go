// Package api exposes the newsletter service over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rss_digest/internal/model"
	"rss_digest/internal/newsletter"
	"rss_digest/internal/refresh"
)

// Service is the application surface the handlers call.
type Service interface {
	ValidateFeed(ctx context.Context, url string) error
	Subscribe(ctx context.Context, owner, url string) (*model.Feed, error)
	Unsubscribe(ctx context.Context, owner string, feedID int64) error
	Feeds(ctx context.Context, owner string) ([]model.Feed, error)
	Collect(ctx context.Context, owner string, req newsletter.Request) (*refresh.Result, error)
	Generate(ctx context.Context, owner string, req newsletter.Request) (*newsletter.Result, error)
	Stream(ctx context.Context, owner string, req newsletter.Request, onPartial func(model.Draft)) (*newsletter.Result, error)
	Newsletters(ctx context.Context, owner string) ([]model.Newsletter, error)
	Newsletter(ctx context.Context, owner, id string) (*model.Newsletter, error)
	DeleteNewsletter(ctx context.Context, owner, id string) error
	Settings(ctx context.Context, owner string) (*model.Settings, error)
	UpdateSettings(ctx context.Context, owner string, s model.Settings) (*model.Settings, error)
}

// Config configures the HTTP surface.
type Config struct {
	Addr        string
	Auth        AuthConfig
	CORSOrigins []string
}

// Server serves the JSON API.
type Server struct {
	svc    Service
	cfg    Config
	log    *slog.Logger
	engine *gin.Engine
}

// New creates a Server and registers its routes.
func New(svc Service, cfg Config, log *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{svc: svc, cfg: cfg, log: log, engine: gin.New()}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery(), s.requestLogger())
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(corsConfig(s.cfg.CORSOrigins)))
	}

	r.GET("/healthz", s.health)

	api := r.Group("/api")
	api.Use(authMiddleware(s.cfg.Auth))
	{
		api.GET("/feeds", s.listFeeds)
		api.POST("/feeds", s.createFeed)
		api.POST("/feeds/validate", s.validateFeed)
		api.DELETE("/feeds/:id", s.deleteFeed)

		api.GET("/articles", s.listArticles)

		api.POST("/newsletters", s.generateNewsletter)
		api.POST("/newsletters/stream", s.streamNewsletter)
		api.GET("/newsletters", s.listNewsletters)
		api.GET("/newsletters/:id", s.getNewsletter)
		api.DELETE("/newsletters/:id", s.deleteNewsletter)

		api.GET("/settings", s.getSettings)
		api.PUT("/settings", s.putSettings)
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http api listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := uuid.NewString()
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", id)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

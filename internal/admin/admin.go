package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/nmead/internal/observability"
	"github.com/danmuck/nmead/internal/server"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const shutdownGrace = 5 * time.Second

// Source is the sentence server state the admin surface reports on.
type Source interface {
	Registry() *server.Registry
	ActiveConnections() int64
	Started() bool
}

type Config struct {
	Addr        string
	CorsOrigins []string
	Version     string
	// Token, when set, is required as a bearer token on the server views.
	Token string
}

// Server is the admin HTTP surface: health, readiness, metrics, and
// read-only views of the sentence server.
type Server struct {
	cfg      Config
	src      Source
	router   *gin.Engine
	appeared time.Time
}

func New(cfg Config, src Source) *Server {
	observability.RegisterMetrics()
	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = "dev"
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(observability.Component("admin"), src))
	r.Use(requestMetrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{cfg: cfg, src: src, router: r, appeared: time.Now()}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": "nmead",
			"version": s.cfg.Version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.src.Started()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.appeared).String(),
			"version": s.cfg.Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	views := s.router.Group("/")
	if s.cfg.Token != "" {
		views.Use(requireToken(s.cfg.Token))
	}
	views.GET("/handlers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"handlers": s.src.Registry().Entries(),
		})
	})

	views.GET("/connections", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"active": s.src.ActiveConnections(),
		})
	})
}

// Serve listens on the configured address until ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("nmea.admin listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

package http_api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/pkg/logger"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 10 * time.Second
)

// Sessions issues sign-in nonces and session tokens.
type Sessions interface {
	Domain() string
	Statement() string
	IssueNonce() string
	VerifySignIn(message, signature string) (token string, owner string, err error)
	ParseToken(token string) (owner string, err error)
}

// Metrics records request metrics and exposes them for scraping.
type Metrics interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
	Handler() http.Handler
}

// Config holds the HTTP server settings.
type Config struct {
	Port int
	// AuthRateLimitRPM bounds the sign-in requests per client and minute. Zero disables the limit.
	AuthRateLimitRPM float64
	Development      bool
}

// HTTPServer is the HTTP server struct that will serve the API
type HTTPServer struct {
	logger *logger.Logger

	router *gin.Engine
	port   int
	server *http.Server

	praemium models.PraemiumI
	sessions Sessions
	metrics  Metrics
	limiter  *rateLimiter
}

// corsMiddleware adds CORS headers to all responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// NewHTTPServer creates a new HTTP server instance. metrics may be nil.
func NewHTTPServer(praemium models.PraemiumI, sessions Sessions, metrics Metrics, cfg Config, logger *logger.Logger) *HTTPServer {
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	server := &HTTPServer{
		logger:   logger,
		router:   router,
		port:     cfg.Port,
		praemium: praemium,
		sessions: sessions,
		metrics:  metrics,
	}
	if cfg.AuthRateLimitRPM > 0 {
		server.limiter = newRateLimiter(cfg.AuthRateLimitRPM, 5)
	}
	if metrics != nil {
		router.Use(server.metricsMiddleware())
	}

	server.routes()

	return server
}

var _ models.APIServer = (*HTTPServer)(nil)

// Handler returns the router, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *HTTPServer) Start() {
	addr := fmt.Sprintf("0.0.0.0:%v", s.port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server on ", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Fatal("Failed to start the HTTP server: ", err)
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server shut down successfully")
	return nil
}

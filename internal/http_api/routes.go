package http_api

import "github.com/gin-gonic/gin"

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	auth := s.router.Group("/api/v1/auth")
	if s.limiter != nil {
		auth.Use(s.limiter.middleware())
	}
	auth.GET("/nonce", s.nonce)
	auth.POST("/verify", s.verify)

	api := s.router.Group("/api/v1", s.requireSession())
	api.POST("/login", s.login)
	api.GET("/assets", s.assets)
	api.GET("/balance", s.balance)
	api.POST("/transactions/:action", s.buildTransaction)
	api.POST("/transitions", s.persistTransition)
}

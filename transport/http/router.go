package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Options configures the router
type Options struct {
	Logger zerolog.Logger
	// Registry enables request metrics and the /metrics route when set
	Registry *prometheus.Registry
}

// SetupRouter sets up the Gin router
func SetupRouter(backend Backend, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger(opts.Logger))
	if opts.Registry != nil {
		router.Use(Metrics(opts.Registry))
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	}

	// Create handlers
	handlers := NewHandlers(backend, opts.Logger)

	router.GET("/healthz", handlers.Health)

	v1 := router.Group("/v1")
	v1.Use(BearerToken())
	{
		v1.POST("/graphql", handlers.GraphQL)
	}

	admin := router.Group("/admin")
	{
		admin.POST("/acl", handlers.GrantAccess)
		admin.DELETE("/sessions/:wallet_pub_key_id", handlers.InvalidateSessions)
	}

	return router
}

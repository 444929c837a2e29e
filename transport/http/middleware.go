package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/layer-3/walletauth/adapters/graphql"
	"github.com/layer-3/walletauth/internal/devbackend"
)

const (
	requestIDKey   = "requestID"
	accessTokenKey = "accessToken"
)

// RequestID tags every request with the caller's X-Request-Id or a fresh one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(graphql.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(graphql.RequestIDHeader, id)
		c.Next()
	}
}

// BearerToken extracts the access token from the Authorization header.
// A missing header is left to the operation, a malformed one is rejected.
func BearerToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.Next()
			return
		}

		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusOK, errorResponse(devbackend.CodeInvalidJWT, "Malformed Authorization header"))
			return
		}

		c.Set(accessTokenKey, parts[1])
		c.Next()
	}
}

// RequestLogger logs one line per request
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request served")
	}
}

// Metrics counts requests and their latency per route
func Metrics(reg prometheus.Registerer) gin.HandlerFunc {
	factory := promauto.With(reg)
	requests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletauth",
		Subsystem: "devserver",
		Name:      "requests_total",
		Help:      "Requests served by the development backend.",
	}, []string{"route", "status"})
	duration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "walletauth",
		Subsystem: "devserver",
		Name:      "request_duration_seconds",
		Help:      "Latency of requests served by the development backend.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

package gateway

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/angeloszaimis/service-gateway/internal/auth"
	"github.com/angeloszaimis/service-gateway/internal/metrics"
)

const (
	headerRequestID     = "X-Request-ID"
	headerForwardedUser = "X-Forwarded-User"

	contextKeyIdentity  = "identity"
	contextKeyRequestID = "request_id"
)

// requestID keeps an inbound X-Request-ID or assigns a fresh one.
func (g *Gateway) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(contextKeyRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func (g *Gateway) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				g.logger.Error("Recovered from panic",
					slog.String("method", c.Request.Method),
					slog.String("path", c.Request.URL.Path),
					slog.Any("panic", r))
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
					Error: "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

func (g *Gateway) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		g.logger.Info("Request completed",
			slog.String("request_id", c.GetString(contextKeyRequestID)),
			slog.String("from", c.ClientIP()),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("proto", c.Request.Proto),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("user_agent", c.Request.UserAgent()))
	}
}

// recordMetrics appends a RequestMetric once the rest of the chain has run.
// The service is the first path segment below the base path.
func (g *Gateway) recordMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		endpoint := g.relativePath(c.Request.URL.Path)

		c.Next()

		g.store.AppendRequest(metrics.RequestMetric{
			Endpoint:     endpoint,
			Method:       c.Request.Method,
			ResponseTime: time.Since(start).Milliseconds(),
			Timestamp:    time.Now(),
			StatusCode:   c.Writer.Status(),
			Service:      serviceSegment(endpoint),
		})
	}
}

func (g *Gateway) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := g.authenticator.Authenticate(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
				Error: "Not authenticated",
			})
			return
		}

		c.Set(contextKeyIdentity, identity)
		c.Next()
	}
}

func identityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(contextKeyIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := v.(auth.Identity)
	return identity, ok
}

func (g *Gateway) relativePath(p string) string {
	if g.basePath == "/" {
		return p
	}

	rel := strings.TrimPrefix(p, g.basePath)
	if rel == "" {
		return "/"
	}
	return rel
}

func serviceSegment(endpoint string) string {
	segment, _, _ := strings.Cut(strings.TrimPrefix(endpoint, "/"), "/")
	return segment
}

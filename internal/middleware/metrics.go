package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/shimizudev/hentai-api/internal/model"
	"github.com/shimizudev/hentai-api/internal/repository"
)

// CallRecorder stores per-route and per-site call statistics.
type CallRecorder interface {
	Record(ctx context.Context, call repository.CallRecord) error
}

// Metrics returns a middleware that records API metrics
func Metrics(metrics CallRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only track API endpoints
		if !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Next()
			return
		}

		start := time.Now()

		c.Next()

		call := repository.CallRecord{
			Route:     routeOf(c),
			Namespace: c.GetString("namespace"),
			Status:    c.Writer.Status(),
			LatencyMs: float64(time.Since(start).Milliseconds()),
			CacheHit:  c.GetString("cache_source") == model.SourceCache,
		}

		// The request context is done by now.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := metrics.Record(ctx, call); err != nil {
			log.Warn().Err(err).Msg("Failed to record metrics")
		}
	}
}

// routeOf groups requests by their route pattern, e.g. /api/r34/:id.
func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return normalizePath(c.Request.URL.Path)
}

// normalizePath replaces numeric segments of unmatched paths with :id.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if isNumeric(part) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

// isNumeric checks if a string is purely numeric
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

package middleware

import (
	"strconv"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Metrics records latency and counts per route. Unmatched paths share one
// label so scanners cannot blow up cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := []string{c.Request.Method, route, strconv.Itoa(c.Writer.Status()), caller(c)}

		metrics.HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(labels...).Inc()
	}
}

// caller is only known once Auth has run further down the chain.
func caller(c *gin.Context) string {
	raw, _ := c.Get("scopes")
	if scopes, _ := raw.([]string); len(scopes) > 0 {
		return "service"
	}
	if _, ok := c.Get("userID"); ok {
		return "user"
	}
	return "anonymous"
}

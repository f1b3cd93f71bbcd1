package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nodeos/storaged/pkg/metrics"
)

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := metrics.NewTimer()
		c.Next()

		method := c.Request.Method
		metrics.APIRequestsTotal.WithLabelValues(method, strconv.Itoa(c.Writer.Status())).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, method)
	}
}

// ReadOnly blocks every mutating request. Used on the local socket
// listener so host tooling can inspect state but not change it.
func ReadOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead:
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "write operations are not allowed on the local socket",
			})
		}
	}
}

package handler

import (
	"time"

	"lifeos-currency/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestLogger tags every request with an id (reusing an incoming
// X-Request-ID) and logs it once the handler has finished.
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Set(requestIDKey, reqID)
		c.Header(RequestIDHeader, reqID)

		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"request_id":    reqID,
			"method":        c.Request.Method,
			"uri":           c.Request.RequestURI,
			"status":        c.Writer.Status(),
			"duration":      time.Since(start).String(),
			"response_size": c.Writer.Size(),
		})
		if c.Writer.Status() >= 500 {
			entry.Warn("request")
			return
		}
		entry.Info("request")
	}
}

func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveHTTP(path, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

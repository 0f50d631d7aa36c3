package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"
)

const (
	// RequestIDHeader carries the request id on requests and responses.
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "request_id"
)

// requestIDMiddleware reuses an incoming X-Request-ID or assigns a new one.
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id, _ = gonanoid.New()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) requestLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := s.opts.Logger.WithFields(logrus.Fields{
			"request_id":  c.GetString(requestIDKey),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("request")
			return
		}
		entry.Debug("request")
	}
}

// requestCounterMiddleware counts every request and every response with a
// status of 400 or above.
func (s *Server) requestCounterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.stats.requests.Add(1)
		c.Next()
		if c.Writer.Status() >= http.StatusBadRequest {
			s.stats.errors.Add(1)
		}
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		s.opts.Metrics.ObserveHTTP(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// authMiddleware enforces "Authorization: Bearer <api key>" when auth is
// enabled: 401 for a missing header, 403 for a wrong key.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.cfg.Server.EnableAuth {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			s.opts.Logger.WithField("request_id", c.GetString(requestIDKey)).Warn("Missing or invalid authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Missing or invalid authorization"})
			return
		}

		if token != s.cfg.Server.APIKey {
			s.opts.Logger.WithField("request_id", c.GetString(requestIDKey)).Warn("Invalid API key attempted")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "Invalid API key"})
			return
		}

		c.Next()
	}
}

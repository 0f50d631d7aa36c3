package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/logging"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/runner"
)

// Health states reported by /health.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

const (
	defaultTemperature = 0.5
	defaultMaxTokens   = 2048
)

// InvokeRequest is the body of POST /invoke.
type InvokeRequest struct {
	Query       string   `json:"query" binding:"required"`
	Temperature *float64 `json:"temperature" binding:"omitempty,gte=0,lte=2"`
	MaxTokens   *int     `json:"max_tokens" binding:"omitempty,gte=1"`
}

// InvokeResponse is the answer of POST /invoke.
type InvokeResponse struct {
	Response  string `json:"response"`
	Model     string `json:"model"`
	Tokens    int    `json:"tokens"`
	RequestID string `json:"request_id"`
}

func (s *Server) rootHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":     s.cfg.AppName,
		"version":     s.cfg.Version,
		"environment": s.cfg.Environment,
		"endpoints": gin.H{
			"health": "/health",
			"invoke": "/invoke (POST)",
			"docs":   "/docs",
		},
	})
}

// healthStatus classifies the error rate: above 10% is unhealthy, above 5%
// degraded.
func healthStatus(requests, errs int64) (string, float64) {
	if requests == 0 {
		return HealthHealthy, 0
	}

	rate := float64(errs) / float64(requests)

	switch {
	case rate > 0.1:
		return HealthUnhealthy, rate
	case rate > 0.05:
		return HealthDegraded, rate
	default:
		return HealthHealthy, rate
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	requests := s.stats.requests.Load()
	errs := s.stats.errors.Load()
	status, rate := healthStatus(requests, errs)

	body := gin.H{
		"status":         status,
		"service":        serviceName,
		"environment":    s.cfg.Environment,
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"request_count":  requests,
		"error_count":    errs,
		"agent": gin.H{
			"name":  s.opts.AgentName,
			"model": s.opts.ModelName,
		},
		"metrics": gin.H{
			"successful_requests": s.stats.successful.Load(),
			"timeout_count":       s.stats.timeouts.Load(),
			"error_rate":          math.Round(rate*1000) / 1000,
		},
	}

	if status == HealthUnhealthy {
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) invokeHandler(c *gin.Context) {
	requestID := c.GetString(requestIDKey)
	log := s.opts.Logger.WithField("request_id", requestID)

	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.WithError(err).Warn("invoke_agent.validation_error")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if maxTokens > s.cfg.Server.MaxTokens {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": fmt.Sprintf("max_tokens must be at most %d", s.cfg.Server.MaxTokens)})
		return
	}

	queryLen := utf8.RuneCountInString(req.Query)
	log.WithField("query_len", queryLen).Info("invoke_agent.start")

	if queryLen > s.cfg.Server.MaxQueryLength {
		log.WithField("len", queryLen).Warn("invoke_agent.query_too_long")
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("Query exceeds maximum length of %d", s.cfg.Server.MaxQueryLength)})
		return
	}

	text, err := s.invoke(c.Request.Context(), req.Query, model.GenerateConfig{
		Temperature:     model.Temperature(temperature),
		MaxOutputTokens: maxTokens,
	})
	if errors.Is(err, context.DeadlineExceeded) {
		s.stats.timeouts.Add(1)
		log.WithField("timeout", s.cfg.RequestTimeout().String()).Error("invoke_agent.timeout")
		c.JSON(http.StatusGatewayTimeout, gin.H{"detail": fmt.Sprintf("Agent request exceeded %d second timeout", s.cfg.Server.RequestTimeout)})
		return
	}
	if err != nil {
		log.WithError(err).Error("invoke_agent.unexpected_error")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "An unexpected error occurred. Please try again later."})
		return
	}

	tokens := len(strings.Fields(text))
	s.stats.successful.Add(1)
	log.WithFields(logrus.Fields{"tokens": tokens}).Info("invoke_agent.success")

	c.JSON(http.StatusOK, InvokeResponse{
		Response:  text,
		Model:     s.opts.ModelName,
		Tokens:    tokens,
		RequestID: requestID,
	})
}

// invoke runs a fresh agent in a new api_user session and concatenates the
// text of every final event. A request timeout surfaces as
// context.DeadlineExceeded.
func (s *Server) invoke(ctx context.Context, query string, cfg model.GenerateConfig) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout())
	defer cancel()

	r := runner.New(s.opts.AppName, s.opts.NewAgent(cfg), func(o *runner.Options) {
		o.SessionStore = s.opts.SessionStore
		o.Logger = logging.NewLogrusAdapter(s.opts.Logger)
		o.Callbacks = s.opts.Metrics.Callbacks()
	})

	sess, err := r.CreateSession(ctx, APIUserID, "", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	events, err := r.RunSync(ctx, APIUserID, sess.ID, *core.NewTextContent("user", query))
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", context.DeadlineExceeded
	}
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, ev := range events {
		if ev.IsPartial() || ev.Author == "user" {
			continue
		}
		sb.WriteString(ev.Text())
	}

	return sb.String(), nil
}

// Package server provides the HTTP surface of the cookbook: the production
// invoke API (/, /health, /invoke, /metrics) and the live websocket endpoint
// (/ws, /feedback).
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/hupe1980/agentcookbook/config"
	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/metrics"
	"github.com/hupe1980/agentcookbook/model"
	"github.com/hupe1980/agentcookbook/runner"
	"github.com/hupe1980/agentcookbook/session"
)

const (
	// DefaultAppName is the session scope of /invoke requests.
	DefaultAppName = "production_deployment"

	// APIUserID owns the sessions created by /invoke.
	APIUserID = "api_user"

	serviceName = "adk-production-deployment-api"
)

// AgentFactory builds the agent answering one /invoke request with the
// sampling parameters of that request.
type AgentFactory func(cfg model.GenerateConfig) core.Agent

// Options configures a Server.
type Options struct {
	// AppName scopes /invoke sessions.
	AppName string

	// AgentName and ModelName are reported by /health and /invoke.
	AgentName string
	ModelName string

	// NewAgent enables /invoke.
	NewAgent AgentFactory

	// LiveRunner enables /ws. Its agent must implement runner.LiveAgent.
	LiveRunner *runner.Runner
	LiveConfig model.LiveConfig

	// LiveBackOff paces reconnects of failed live runs.
	LiveBackOff func() backoff.BackOff

	SessionStore core.SessionStore
	Metrics      *metrics.Metrics
	Logger       *logrus.Logger
}

// Server is the gin based HTTP API.
type Server struct {
	cfg       *config.Config
	opts      Options
	router    *gin.Engine
	upgrader  websocket.Upgrader
	startTime time.Time
	stats     stats
}

type stats struct {
	requests   atomic.Int64
	errors     atomic.Int64
	successful atomic.Int64
	timeouts   atomic.Int64
}

// New builds the router. Validation errors of cfg are returned.
func New(cfg *config.Config, optFns ...func(o *Options)) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := Options{
		AppName: DefaultAppName,
		Logger:  logrus.StandardLogger(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}

	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	if opts.LiveConfig.ResponseModalities == nil {
		opts.LiveConfig = defaultLiveConfig()
	}

	if opts.LiveBackOff == nil {
		opts.LiveBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}

	s := &Server{
		cfg:       cfg,
		opts:      opts,
		startTime: time.Now().UTC(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	s.router = s.setupRouter()

	return s, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on cfg.Addr() until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.WithFields(logrus.Fields{
			"addr":        srv.Addr,
			"environment": s.cfg.Environment,
		}).Info("Starting HTTP server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.opts.Logger.Info("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func (s *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.CustomRecovery(func(c *gin.Context, err any) {
		s.opts.Logger.WithField("panic", err).Error("Recovered from panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "An unexpected error occurred. Please try again later."})
	}))
	router.Use(s.requestIDMiddleware())
	router.Use(s.requestLoggerMiddleware())
	router.Use(s.requestCounterMiddleware())
	router.Use(s.metricsMiddleware())

	s.opts.Logger.WithField("allowedOrigins", s.cfg.Server.AllowedOrigins).Info("Configuring CORS")

	corsCfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	}
	if len(s.cfg.Server.AllowedOrigins) == 0 || slices.Contains(s.cfg.Server.AllowedOrigins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.Server.AllowedOrigins
	}
	router.Use(cors.New(corsCfg))

	router.GET("/", s.rootHandler)
	router.GET("/health", s.healthHandler)
	router.GET("/metrics", gin.WrapH(s.opts.Metrics.Handler()))

	if s.opts.NewAgent != nil {
		router.POST("/invoke", s.authMiddleware(), s.invokeHandler)
	}

	if s.opts.LiveRunner != nil {
		router.GET("/ws", s.websocketHandler)
		router.POST("/feedback", s.feedbackHandler)
	}

	return router
}

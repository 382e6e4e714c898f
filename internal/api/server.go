// Package api exposes the telemetry pipeline and the blackout-risk engine as
// a JSON API.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/solixa/internal/alerting"
	"github.com/lox/solixa/internal/assistant"
	"github.com/lox/solixa/internal/blackout"
	"github.com/lox/solixa/internal/config"
	"github.com/lox/solixa/internal/stormrisk"
	"github.com/lox/solixa/internal/store"
	"github.com/lox/solixa/internal/telemetry"
)

// StormModel is satisfied by *stormrisk.Service.
type StormModel interface {
	Metrics(ctx context.Context) (*stormrisk.Metrics, error)
	Evaluation(ctx context.Context) (*stormrisk.Evaluation, error)
	County(ctx context.Context, fips string) (*stormrisk.CountyRisk, error)
	Counties(ctx context.Context, state string, limit int) ([]stormrisk.CountyRisk, error)
}

// Summarizer is satisfied by *assistant.Assistant.
type Summarizer interface {
	CountySummary(ctx context.Context, brief assistant.CountyBrief) (string, error)
}

// Deps are the services the API serves. Assistant may be nil when no chat
// backend is configured.
type Deps struct {
	Store      *store.Store
	Normalizer *telemetry.Normalizer
	Storm      StormModel
	Blackout   *blackout.Service
	Assistant  Summarizer
	Alerts     *alerting.Evaluator
}

type Server struct {
	cfg    *config.Config
	deps   Deps
	engine *gin.Engine
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Normalizer == nil {
		deps.Normalizer = telemetry.NewNormalizer(telemetry.DefaultAliases())
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	s := &Server{cfg: cfg, deps: deps, engine: engine}
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	{
		api.POST("/telemetry/analyze", s.handleAnalyze)
		api.POST("/anomalies/score", s.handleScore)
		api.POST("/anomalies/efficiency", s.handleEfficiency)

		api.GET("/weather/summary", s.handleWeatherSummary)
		api.GET("/outages/history", s.handleOutageHistory)
		api.GET("/blackout/risk", s.handleBlackoutRisk)
		api.GET("/blackout/counties", s.handleCounties)
		api.GET("/counties/:fips", s.handleCounty)

		api.GET("/model/metrics", s.handleModelMetrics)
		api.GET("/model/evaluation", s.handleModelEvaluation)

		api.POST("/chat/county", s.handleChatCounty)

		api.POST("/alerts/subscribe", s.handleSubscribe)
		api.POST("/alerts/test", s.handleTestAlert)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.Store != nil {
		if err := s.deps.Store.DB().PingContext(c.Request.Context()); err != nil {
			log.Printf("api: health check: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("api: listening on %s", s.cfg.Server.Addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

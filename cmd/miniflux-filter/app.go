package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/nalabelle/miniflux-filter/internal/activity"
	"github.com/nalabelle/miniflux-filter/internal/config"
	"github.com/nalabelle/miniflux-filter/internal/constants"
	"github.com/nalabelle/miniflux-filter/internal/engine"
	"github.com/nalabelle/miniflux-filter/internal/logger"
	"github.com/nalabelle/miniflux-filter/internal/management"
	"github.com/nalabelle/miniflux-filter/internal/miniflux"
	"github.com/nalabelle/miniflux-filter/internal/rules"
	"github.com/nalabelle/miniflux-filter/pkg/circuitbreaker"
	"github.com/nalabelle/miniflux-filter/pkg/health"
	"github.com/nalabelle/miniflux-filter/pkg/metrics"
	"github.com/nalabelle/miniflux-filter/pkg/middleware"
	"github.com/nalabelle/miniflux-filter/pkg/ratelimit"
)

type App struct {
	cfg    *config.Config
	log    logger.Logger
	store  *rules.Store
	client *miniflux.Client
	orch   *engine.Orchestrator
	server *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("miniflux-filter")
	}
	return &App{
		cfg: cfg,
		log: log,
	}
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.Register()

	a.store = rules.NewStore(a.cfg.Rules.Dir, a.log)
	if err := a.store.ReloadAll(); err != nil {
		return fmt.Errorf("failed to load rule sets: %w", err)
	}
	stats := a.store.Stats()
	a.log.InfowCtx(ctx, "Rule sets loaded",
		"total", stats.TotalRuleSets,
		"enabled", stats.EnabledRuleSets,
		"rules", stats.TotalRules,
	)
	metrics.SetActiveRuleSets(stats.EnabledRuleSets)

	var breaker *circuitbreaker.Wrapper
	if a.cfg.Breaker.Enabled {
		bcfg := circuitbreaker.DefaultConfig("miniflux")
		if a.cfg.Breaker.MaxRequests > 0 {
			bcfg.MaxRequests = a.cfg.Breaker.MaxRequests
		}
		if a.cfg.Breaker.Interval > 0 {
			bcfg.Interval = a.cfg.Breaker.Interval
		}
		if a.cfg.Breaker.Timeout > 0 {
			bcfg.Timeout = a.cfg.Breaker.Timeout
		}
		breaker = circuitbreaker.NewWrapper(bcfg)
	}

	a.client = miniflux.NewClient(a.cfg.Miniflux, breaker, a.log)
	if err := a.client.WaitReady(ctx); err != nil {
		return fmt.Errorf("miniflux not reachable: %w", err)
	}
	a.log.InfowCtx(ctx, "Miniflux connection verified", "url", a.cfg.Miniflux.URL)

	activityLog := activity.NewLog(a.cfg.Sync.ActivityLimit)
	a.orch = engine.NewOrchestrator(a.store, a.client, activityLog, a.log,
		a.cfg.Sync.PollInterval, a.cfg.Sync.MaxConcurrent)

	if a.cfg.Web.Enabled {
		a.initHTTPServer(activityLog)
	}

	return nil
}

func (a *App) initHTTPServer(activityLog *activity.Log) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.log))
	router.Use(middleware.RecoveryMiddleware(a.log))

	if a.cfg.Web.RateLimit.Enabled {
		rlCfg := ratelimit.DefaultConfig()
		if a.cfg.Web.RateLimit.RPS > 0 {
			rlCfg.RPS = a.cfg.Web.RateLimit.RPS
		}
		if a.cfg.Web.RateLimit.Burst > 0 {
			rlCfg.Burst = a.cfg.Web.RateLimit.Burst
		}
		router.Use(ratelimit.Middleware(rlCfg))
	}

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewUpstreamChecker(a.client))
	healthRegistry.Register(health.NewRulesDirChecker(a.cfg.Rules.Dir))

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	service := management.NewService(a.store, a.orch, activityLog, a.client)
	handler := management.NewHandler(service, a.log)
	handler.RegisterRoutes(router)

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Web.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.log.InfowCtx(gCtx, "HTTP server starting", "port", a.cfg.Web.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return a.orch.Start(gCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.log.InfowCtx(ctx, "Shutting down")
	return nil
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	loyaltyapp "github.com/loyalty/backend/internal/application/loyalty"
	"github.com/loyalty/backend/internal/bootstrap"
	"github.com/loyalty/backend/internal/infrastructure/logger"
	"github.com/loyalty/backend/internal/interfaces/http/handler"
	"github.com/loyalty/backend/internal/interfaces/http/middleware"
	"github.com/loyalty/backend/internal/interfaces/http/router"
	"go.uber.org/zap"

	_ "github.com/loyalty/backend/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Loyalty Points API
//	@version		1.0
//	@description	Loyalty account queries and point redemption. Points are earned from order confirmed events.

//	@contact.name	API Support
//	@contact.url	https://github.com/loyalty/backend

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

func main() {
	rt, err := bootstrap.Start(context.Background(), "api")
	if err != nil {
		panic("Failed to start: " + err.Error())
	}
	cfg := rt.Config
	log := rt.Logger

	spendService := loyaltyapp.NewSpendPointsService(rt.Accounts, log,
		loyaltyapp.WithSpendMaxAttempts(cfg.Loyalty.MaxWriteAttempts),
		loyaltyapp.WithSpendMetrics(rt.Metrics),
	)
	loyaltyHandler := handler.NewLoyaltyHandler(rt.Accounts, spendService)
	healthHandler := handler.NewHealthHandler(cfg.App.Name, version, rt.DB, rt.Cache)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// RequestID runs first so that every later middleware and the request
	// logger see the same id
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     rt.Telemetry.Tracer.IsEnabled(),
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: rt.Telemetry.Meter,
		Enabled:       true,
	}))
	profiling := middleware.DefaultProfilingConfig()
	profiling.Enabled = rt.Telemetry.Profiler.IsEnabled()
	engine.Use(middleware.ProfilingWithConfig(profiling))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.HTTP.CORSAllowOrigins,
		AllowMethods:  cfg.HTTP.CORSAllowMethods,
		AllowHeaders:  cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.Timeout(cfg.HTTP.RequestTimeout))

	// Probe endpoint outside API versioning
	engine.GET("/health", healthHandler.Health)

	engine.GET("/swagger/*any",
		middleware.SwaggerProtection(middleware.SwaggerConfig{
			Enabled:    cfg.Swagger.Enabled,
			AllowedIPs: cfg.Swagger.AllowedIPs,
		}),
		ginSwagger.WrapHandler(swaggerFiles.Handler),
	)

	api := router.NewRouter(engine).
		Register(router.LoyaltyRoutes(loyaltyHandler)).
		Register(router.SystemRoutes(healthHandler))
	api.Setup()
	log.Debug("Routes registered", zap.String("base_path", router.DefaultBasePath), zap.Strings("routes", api.Routes()))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("Shutting down server...", zap.String("signal", sig.String()))
	case err := <-serveErr:
		log.Error("Failed to start server", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	rt.Close(context.Background())
	log.Info("Server exited gracefully")
}

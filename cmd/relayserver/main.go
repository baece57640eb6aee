// Command relayserver runs the collaborative-editing relay: the CRDT
// gateway, control-room gateway, room lifecycle REST API, GitHub login, and
// health endpoint, all behind one gin router.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/opensync/docrelay/internal/auth"
	"github.com/opensync/docrelay/internal/bus"
	"github.com/opensync/docrelay/internal/config"
	"github.com/opensync/docrelay/internal/controlroom"
	"github.com/opensync/docrelay/internal/docengine"
	"github.com/opensync/docrelay/internal/gateway"
	"github.com/opensync/docrelay/internal/githubauth"
	"github.com/opensync/docrelay/internal/health"
	"github.com/opensync/docrelay/internal/logging"
	"github.com/opensync/docrelay/internal/middleware"
	"github.com/opensync/docrelay/internal/ratelimit"
	"github.com/opensync/docrelay/internal/restapi"
	"github.com/opensync/docrelay/internal/roomregistry"
	"github.com/opensync/docrelay/internal/store"
	"github.com/opensync/docrelay/internal/tracing"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// Absence of .env is normal outside local development.
		_ = err
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.GoEnv != "production"); err != nil {
		panic(err)
	}
	ctx := context.Background()
	logging.Info(ctx, "docrelay starting", zap.String("port", cfg.Port))

	if addr := os.Getenv("OTEL_COLLECTOR_ADDR"); addr != "" {
		tp, err := tracing.InitTracer(ctx, "docrelay", addr)
		if err != nil {
			logging.Warn(ctx, "tracing disabled: failed to init exporter", zap.Error(err))
		} else {
			defer func() { _ = tp.Shutdown(ctx) }()
		}
	}

	var redisService *bus.Service
	if cfg.RedisEnabled {
		redisService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Fatal(ctx, "failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = redisService.Close() }()
	}

	dataStore, err := store.OpenBolt(cfg.DataDir + "/relay.db")
	if err != nil {
		logging.Fatal(ctx, "failed to open store", zap.Error(err))
	}

	registry, err := roomregistry.NewRegistry(dataStore)
	if err != nil {
		logging.Fatal(ctx, "failed to load room registry", zap.Error(err))
	}

	docEngine := docengine.NewEngine(dataStore)
	controlEngine := controlroom.NewEngine()

	limiter, err := ratelimit.NewRateLimiter(cfg, redisService.Client())
	if err != nil {
		logging.Fatal(ctx, "failed to build rate limiter", zap.Error(err))
	}

	var identity *auth.Validator
	if cfg.JWTSecret != "" {
		identity = auth.NewValidator(cfg.JWTSecret)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("docrelay"))
	router.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.CORSOrigin}
	corsConfig.AllowCredentials = true
	if cfg.CORSOrigin == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	rooms := router.Group("/rooms")
	rooms.Use(limiter.RoomsMiddleware())
	restapi.NewHandlers(registry).Register(rooms)

	gwRouter := gateway.NewRouter(registry, docEngine, controlEngine, limiter, identity, cfg.RequireGitHubAuth)
	gwRouter.Register(router)

	if cfg.RequireGitHubAuth {
		ghHandler := githubauth.NewHandler(cfg.GitHubClientID, cfg.GitHubClientSecret, callbackURL(cfg), identity)
		router.GET("/auth/github", ghHandler.LoginHandler)
		router.GET("/auth/github/callback", ghHandler.CallbackHandler)
	}

	health.NewHandler(registry, gateway.ConnectionCount, redisService).Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		var err error
		if cfg.TLSCert != "" {
			logging.Info(ctx, "listening with TLS", zap.String("port", cfg.Port))
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			logging.Info(ctx, "listening", zap.String("port", cfg.Port))
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "http server shutdown error", zap.Error(err))
	}
	if err := docEngine.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "docengine shutdown error", zap.Error(err))
	}
	if err := dataStore.Close(); err != nil {
		logging.Error(ctx, "store close error", zap.Error(err))
	}

	logging.Info(ctx, "shutdown complete")
}

func callbackURL(cfg *config.Config) string {
	if explicit := os.Getenv("GITHUB_CALLBACK_URL"); explicit != "" {
		return explicit
	}
	scheme := "http"
	if cfg.TLSCert != "" {
		scheme = "https"
	}
	return scheme + "://localhost:" + cfg.Port + "/auth/github/callback"
}

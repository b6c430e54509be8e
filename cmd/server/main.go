package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shimizudev/hentai-api/internal/config"
	"github.com/shimizudev/hentai-api/internal/handler"
	"github.com/shimizudev/hentai-api/internal/middleware"
	"github.com/shimizudev/hentai-api/internal/repository"
	"github.com/shimizudev/hentai-api/internal/service"
	"github.com/shimizudev/hentai-api/internal/shaping"
	"github.com/shimizudev/hentai-api/pkg/httpclient"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	// Load configuration
	cfg := config.Load()
	log.Info().
		Str("port", cfg.Port).
		Str("mode", cfg.GinMode).
		Int("proxies", len(cfg.UpstreamProxies)).
		Dur("upstream_timeout", cfg.UpstreamTimeout).
		Msg("🚀 Starting hentai-api")

	gin.SetMode(cfg.GinMode)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStart()

	// Redis backs the result cache, rate counters and analytics
	redisClient, err := repository.Connect(startCtx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	cache := repository.NewCache(redisClient, shaping.DefaultCacheTTL)
	metrics := repository.NewMetrics(redisClient)
	metrics.RecordServerStart(startCtx)
	log.Info().Msg("📊 Metrics enabled")

	// MongoDB holds issued API keys
	mongoClient, err := repository.ConnectMongo(startCtx, cfg.MongoDBURI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("MongoDB disconnect failed")
		}
	}()

	apiKeys := repository.NewAPIKeys(mongoClient.Database(cfg.MongoDBName).Collection(repository.APIKeysCollection))
	if err := apiKeys.EnsureIndexes(startCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure API key indexes")
	}

	// One client per upstream so each site trips its own breaker
	upstreams := map[string]*httpclient.Client{
		shaping.NamespaceHentaiHaven: httpclient.NewClient("hentaihaven", cfg.UpstreamProxies, cfg.UpstreamTimeout),
		shaping.NamespaceHanime:      httpclient.NewClient("hanime", cfg.UpstreamProxies, cfg.UpstreamTimeout),
		shaping.NamespaceRule34:      httpclient.NewClient("rule34", cfg.UpstreamProxies, cfg.UpstreamTimeout),
	}
	if len(cfg.UpstreamProxies) > 0 {
		log.Info().Int("count", len(cfg.UpstreamProxies)).Msg("🔀 Proxy enabled")
	}

	// Initialize services
	hentaiHaven := service.NewHentaiHavenService(upstreams[shaping.NamespaceHentaiHaven], cfg.HentaiHavenBaseURL, cfg.HentaiHavenPlayerAPI)
	hanime := service.NewHanimeService(upstreams[shaping.NamespaceHanime], cfg.HanimeBaseURL, cfg.HanimeSearchURL)
	rule34 := service.NewRule34Service(upstreams[shaping.NamespaceRule34], cfg.Rule34BaseURL, cfg.Rule34AutocompleteURL)

	shaper := shaping.New(cache, repository.NewRateCounter(redisClient))

	// Initialize handlers
	hentaiHavenHandler := handler.NewHentaiHavenHandler(hentaiHaven, shaper)
	hanimeHandler := handler.NewHanimeHandler(hanime, shaper)
	rule34Handler := handler.NewRule34Handler(rule34, shaper)
	adminHandler := handler.NewAdminHandler(metrics, cache, apiKeys, cfg.TokenSecret, upstreams)

	// Setup router
	r := gin.New()
	// Episode ids are base64 and may contain an escaped slash.
	r.UseRawPath = true
	// X-Forwarded-For is only honored from configured proxies; the client IP keys rate limits.
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Fatal().Err(err).Msg("Invalid TRUSTED_PROXIES")
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging())
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.CORS())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes - identified by API key, anonymous callers get the low tier
	api := r.Group("/api")
	api.Use(middleware.ClientIdentity(apiKeys, cfg.TokenSecret))
	{
		api.GET("/status", adminHandler.GetStatus)

		hh := api.Group("/hh")
		hh.GET("/search/:query", hentaiHavenHandler.Search)
		hh.GET("/sources/:id", hentaiHavenHandler.Sources)
		hh.GET("/:id", hentaiHavenHandler.Info)

		hv := api.Group("/hanime")
		hv.GET("/recent", hanimeHandler.Recent)
		hv.GET("/search/:query", hanimeHandler.Search)
		hv.GET("/streams/:id", hanimeHandler.Streams)
		hv.GET("/:id", hanimeHandler.Video)

		r34 := api.Group("/r34")
		r34.GET("/autocomplete/:query", rule34Handler.Autocomplete)
		r34.GET("/search/:query", rule34Handler.Search)
		r34.GET("/:id", rule34Handler.Info)
	}

	// Admin routes - require ADMIN_API_KEY when configured
	admin := r.Group("/api/admin")
	admin.Use(middleware.AdminAuth(cfg.AdminAPIKey))
	{
		admin.GET("/analytics", adminHandler.GetAnalytics)
		admin.GET("/analytics/route", adminHandler.GetRouteStats)
		admin.DELETE("/analytics", adminHandler.ResetAnalytics)

		admin.POST("/keys", adminHandler.CreateKey)
		admin.DELETE("/keys/:key", adminHandler.RevokeKey)
		admin.POST("/tokens", adminHandler.CreateToken)

		admin.DELETE("/cache/:namespace", adminHandler.PurgeCache)
	}

	if cfg.AdminAPIKey != "" {
		log.Info().Msg("🔐 Admin API authentication enabled")
	} else {
		log.Warn().Msg("⚠️  Admin API has no key configured, admin routes are open")
	}
	if cfg.TokenSecret == "" {
		log.Info().Msg("Signed access tokens disabled (TOKEN_SECRET unset)")
	}

	// Create HTTP server with graceful shutdown support
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("🌐 Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("👋 Server exited")
}

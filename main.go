package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"shortlink-service/config"
	"shortlink-service/db"
	"shortlink-service/enrich"
	"shortlink-service/handlers"
	"shortlink-service/middleware"
	"shortlink-service/queue"
	"shortlink-service/workers"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	pgDB, err := db.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer pgDB.Close()
	log.Info().Msg("connected to PostgreSQL")

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := pgDB.Migrate(migrateCtx); err != nil {
		migrateCancel()
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	migrateCancel()

	redisDB, err := db.NewRedisDB(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redisDB.Close()
	log.Info().Msg("connected to Redis")

	clicks := queue.New(cfg.QueueCapacity)

	var geo enrich.GeoResolver = enrich.NoopGeoResolver{}
	if cfg.GeoAPIURL != "" {
		geo = enrich.NewHTTPGeoResolver(cfg.GeoAPIURL, cfg.GeoTimeout)
	}

	handlers.PrewarmCache(pgDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := workers.NewPool(pgDB, geo, clicks, workers.Config{
		Workers:      cfg.WorkerCount,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		GeoTimeout:   cfg.GeoTimeout,
		FlushTimeout: cfg.ShutdownTimeout,
	})
	poolDone := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(poolDone)
	}()

	// API routes carry rate limiting and logging; the redirect path below
	// carries neither.
	api := mux.NewRouter()
	rateLimit := middleware.RateLimit(redisDB, 100, time.Minute)

	api.Handle("/api/urls", middleware.Chain(handlers.CreateLink(pgDB, cfg.BaseURL), rateLimit, middleware.Logger)).Methods(http.MethodPost)
	api.Handle("/api/urls/", middleware.Chain(handlers.CreateLink(pgDB, cfg.BaseURL), rateLimit, middleware.Logger)).Methods(http.MethodPost)
	api.Handle("/api/urls", middleware.Chain(handlers.ListLinks(pgDB, cfg.BaseURL), rateLimit, middleware.Logger)).Methods(http.MethodGet)
	api.Handle("/api/urls/{code}", middleware.Chain(handlers.GetLink(pgDB, pgDB, cfg.BaseURL), rateLimit, middleware.Logger)).Methods(http.MethodGet)
	api.Handle("/api/urls/{code}", middleware.Chain(handlers.DeactivateLink(pgDB, redisDB), rateLimit, middleware.Logger)).Methods(http.MethodDelete)
	api.Handle("/api/analytics/{code}", middleware.Chain(handlers.GetAnalytics(pgDB, pgDB, redisDB), rateLimit, middleware.Logger)).Methods(http.MethodGet)
	api.Handle("/api/track/{code}", middleware.Chain(handlers.TrackClick(pgDB, clicks, redisDB), middleware.Logger)).Methods(http.MethodPost)

	api.Handle("/health", handlers.Health()).Methods(http.MethodGet)
	api.Handle("/ready", handlers.Readiness(pgDB, redisDB)).Methods(http.MethodGet)
	api.Handle("/metrics", handlers.Metrics(clicks)).Methods(http.MethodGet)

	apiHandler := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins([]string{cfg.FrontendURL}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type"}),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
	)(api)

	redirectHandler := handlers.HandleRedirect(pgDB, clicks, redisDB)

	// Most traffic is redirects; dispatch them on a prefix check before the
	// router gets involved.
	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/ready" || path == "/metrics" {
			apiHandler.ServeHTTP(w, r)
			return
		}
		handlers.IncrementRequestCount()
		if strings.HasPrefix(path, "/api") {
			apiHandler.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodGet && len(path) > 1 {
			redirectHandler(w, r)
			return
		}
		http.NotFound(w, r)
	})

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        root,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	// Stop the aggregator first so it can flush buffered events within the
	// shutdown budget.
	cancel()
	select {
	case <-poolDone:
	case <-time.After(cfg.ShutdownTimeout):
		log.Warn().Msg("aggregator flush exceeded shutdown timeout")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}

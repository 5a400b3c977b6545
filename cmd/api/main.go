package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/2010089698/sora2-251007-3/internal/adapter/repo"
	"github.com/2010089698/sora2-251007-3/internal/db/migrations"
	"github.com/2010089698/sora2-251007-3/internal/http/handlers"
	"github.com/2010089698/sora2-251007-3/internal/http/httpapi"
	"github.com/2010089698/sora2-251007-3/internal/infra"
	"github.com/2010089698/sora2-251007-3/internal/infra/credentials"
	"github.com/2010089698/sora2-251007-3/internal/providers/sora"
	"github.com/2010089698/sora2-251007-3/internal/worker"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, dialect, err := infra.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer db.Close()

	version, err := migrations.Up(ctx, db, string(dialect), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}
	logger.Info().Str("dialect", string(dialect)).Int64("schema_version", version).Msg("database ready")

	runner := infra.NewSQLRunner(db, dialect, logger)
	jobs := repo.NewJobRepository(runner)

	if !cfg.HasOpenAIKey() {
		logger.Warn().Msg("OPENAI_API_KEY is not set; polling stays paused until a key is configured")
	}
	factory := sora.NewFactory(sora.Options{
		APIKey:         cfg.OpenAIAPIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		Model:          cfg.OpenAIVideoModel,
		BetaHeader:     cfg.OpenAIBetaHeader,
		RequestTimeout: cfg.OpenAITimeout,
		Logger:         &logger,
	}, credentials.NewStore(runner))

	poller := worker.NewReconciler(jobs, worker.FromFactory(factory), worker.Options{
		Interval: cfg.PollInterval,
		Logger:   &logger,
	})

	app := handlers.NewApp(jobs, handlers.FromFactory(factory), logger)
	app.DB = db
	app.Poller = poller
	app.DefaultUserID = cfg.DefaultUserID

	router := httpapi.NewRouter(app, httpapi.Options{
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		CreatePerMinute: cfg.RateLimitPerMin,
		Logger:          logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("poller stopped with error")
		}
	}()

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	wg.Wait()
	logger.Info().Msg("server stopped")
}

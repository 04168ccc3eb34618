package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tgo/docqa/internal/app"
	"github.com/tgo/docqa/internal/config"
	"github.com/tgo/docqa/internal/handler"
	"github.com/tgo/docqa/internal/logger"
	"github.com/tgo/docqa/internal/pkg/jwt"
	"github.com/tgo/docqa/internal/task"
	"github.com/tgo/docqa/internal/worker"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.Setup(cfg.LogLevel, cfg.IsDevelopment())

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise services")
	}
	defer a.Close()

	if err := a.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	router := handler.SetupRouter(cfg, handler.Dependencies{
		Documents: a.Documents,
		Retrieval: a.Retrieval,
		Answers:   a.Answers,
		JWT:       jwt.NewManager(cfg.JWTSecret, 0),
		Checks: map[string]handler.ReadinessCheck{
			"database": a.Ping,
			"redis":    func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
		},
		Logger: log,
	})

	// Single-binary mode: run the pipeline in this process too
	var (
		pool      *worker.Pool
		scheduler *task.Scheduler
	)
	if cfg.WorkerEmbedded {
		resume := task.NewResumeStalledDocumentsTask(a.Docs, a.Queue, cfg.LeaseTTL, log)

		startup := task.NewScheduler(log)
		startup.RegisterTask(task.NewRequeueStaleJobsTask(a.Queue, log))
		startup.RegisterTask(resume)
		startup.RunOnce(ctx)

		scheduler = task.NewScheduler(log)
		scheduler.RegisterTask(resume)
		scheduler.StartPeriodic(cfg.LeaseTTL / 2)

		pool = worker.NewPool(a.Queue, a.Pipeline, worker.Config{Concurrency: cfg.WorkerConcurrency}, log)
		pool.Start()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	if pool != nil {
		pool.Stop()
	}

	log.Info().Msg("server exited")
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tgo/docqa/internal/app"
	"github.com/tgo/docqa/internal/config"
	"github.com/tgo/docqa/internal/logger"
	"github.com/tgo/docqa/internal/task"
	"github.com/tgo/docqa/internal/worker"
)

func main() {
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

	resume := task.NewResumeStalledDocumentsTask(a.Docs, a.Queue, cfg.LeaseTTL, log)

	// Requeueing the processing list is only safe before this worker takes jobs
	startup := task.NewScheduler(log)
	startup.RegisterTask(task.NewRequeueStaleJobsTask(a.Queue, log))
	startup.RegisterTask(resume)
	startup.RunOnce(ctx)

	scheduler := task.NewScheduler(log)
	scheduler.RegisterTask(resume)
	scheduler.StartPeriodic(cfg.LeaseTTL / 2)

	pool := worker.NewPool(a.Queue, a.Pipeline, worker.Config{Concurrency: cfg.WorkerConcurrency}, log)
	pool.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker, waiting for in-flight jobs")
	scheduler.Stop()
	pool.Stop()
	log.Info().Msg("worker exited")
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"transcode-orchestrator/internal/orchestrator"
	"transcode-orchestrator/internal/platform/config"
	"transcode-orchestrator/internal/platform/logger"
	"transcode-orchestrator/internal/platform/metrics"
	"transcode-orchestrator/internal/storage"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	var repo orchestrator.Repository
	if cfg.DatabaseURL != "" {
		pg, err := orchestrator.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres init failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		repo = pg
	} else {
		log.Warn("DATABASE_URL not set, using in-memory record store")
		repo = orchestrator.NewInMemoryRepository()
	}

	var checker orchestrator.InputChecker
	if cfg.Delivery.Configured() {
		store, err := storage.New(ctx,
			cfg.Delivery.Endpoint,
			cfg.Delivery.AccessKeyID,
			cfg.Delivery.SecretAccessKey,
			cfg.Delivery.Bucket)
		if err != nil {
			log.Error("object store init failed", "error", err)
			os.Exit(1)
		}
		checker = store
	} else {
		log.Warn("delivery bucket not configured, skipping input pre-flight checks")
	}

	submitter := orchestrator.NewRunPodClient(
		cfg.RunPodBaseURL,
		cfg.RunPodEndpointID,
		cfg.RunPodAPIKey,
		cfg.DispatchTimeout)

	dispatcher := orchestrator.NewDispatcher(submitter, checker, orchestrator.DispatchConfig{
		WebhookURL:    strings.TrimRight(cfg.WebhookBaseURL, "/") + "/webhooks/transcoding",
		WebhookSecret: cfg.WebhookSecret,
		Delivery: orchestrator.ObjectStoreConfig{
			Endpoint:        cfg.Delivery.Endpoint,
			AccessKeyID:     cfg.Delivery.AccessKeyID,
			SecretAccessKey: cfg.Delivery.SecretAccessKey,
			Bucket:          cfg.Delivery.Bucket,
		},
		Archive: orchestrator.ObjectStoreConfig{
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			Bucket:          cfg.Archive.Bucket,
		},
		SubmitTimeout: cfg.DispatchTimeout,
	})

	svc := orchestrator.NewService(repo, dispatcher, cfg.WebhookSecret)
	met := metrics.New()
	h := orchestrator.NewHandler(svc, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() {
			if n, err := repo.ActiveTranscodingCount(req.Context()); err == nil {
				met.SetActiveTranscodingJobs(n)
			}
		}).ServeHTTP(w, req)
	})
	h.Routes(r)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"log_level", cfg.LogLevel,
		"durable_store", cfg.DatabaseURL != "",
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

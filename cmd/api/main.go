package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"campaigns/internal/app"
	"campaigns/internal/awsutil"
	"campaigns/internal/config"
	"campaigns/internal/httpserver"
	"campaigns/internal/logging"
	"campaigns/internal/observability"
	sqsqueue "campaigns/internal/queue/sqs"
	"campaigns/internal/service"
	"campaigns/internal/store/pg"
)

func main() {
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, app.PoolOptions(cfg.DB))
	if err != nil {
		slog.Error("api db connect failed", "err", err)
		os.Exit(1)
	}
	store := pg.New(db)

	docs, err := app.NewDocumentStore(ctx, cfg.Dispatch, cfg.AWS)
	if err != nil {
		slog.Error("api document store init failed", "err", err)
		os.Exit(1)
	}
	orch, err := app.NewOrchestrator(cfg.Dispatch, store, docs)
	if err != nil {
		slog.Error("api dispatcher init failed", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	svc := &service.CampaignService{
		Store:             store,
		Dispatcher:        orch,
		Gateway:           cfg.Gateway,
		CountryCode:       cfg.CountryCode,
		ProfileCollection: cfg.ProfileCollection,
	}
	if docs != nil {
		svc.Profiles = docs
	}
	if cfg.SQSQueueURL != "" {
		awsCfg, err := awsutil.LoadConfig(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
		if err != nil {
			slog.Error("api aws config failed", "err", err)
			os.Exit(1)
		}
		svc.Queue = &sqsqueue.Producer{
			SQS:      awsutil.NewSQSClient(awsCfg, cfg.LocalstackEndpoint),
			QueueURL: cfg.SQSQueueURL,
		}
	} else {
		slog.Warn("SQS_QUEUE_URL not set, async dispatch disabled")
	}

	s := httpserver.New(2*time.Second, store.Ping)
	api := &httpserver.API{Svc: svc}
	api.Register(s.Mux)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port, "gateway", cfg.Gateway)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}

	db.Close()
}

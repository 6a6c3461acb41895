package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/prometheus/client_golang/prometheus"

	"campaigns/internal/app"
	"campaigns/internal/awsutil"
	"campaigns/internal/config"
	"campaigns/internal/dispatch"
	"campaigns/internal/httpserver"
	"campaigns/internal/logging"
	"campaigns/internal/observability"
	sqsqueue "campaigns/internal/queue/sqs"
	"campaigns/internal/store/pg"
)

func main() {
	cfg := config.LoadWorker()
	logging.Init("worker", cfg.LogFormat, cfg.LogLevel)

	// Use a root ctx we can cancel
	ctx, cancel := context.WithCancel(context.Background())

	db, err := pg.NewPool(ctx, cfg.DBDSN, app.PoolOptions(cfg.DB))
	if err != nil {
		slog.Error("worker db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	store := pg.New(db)

	awsCfg, err := awsutil.LoadConfig(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
	if err != nil {
		slog.Error("worker aws config failed", "err", err)
		os.Exit(1)
	}
	sqsClient := awsutil.NewSQSClient(awsCfg, cfg.LocalstackEndpoint)

	queueReachable := func(c context.Context) error {
		_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
			QueueUrl:       &cfg.SQSQueueURL,
			AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
		})
		return err
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()
	if err := queueReachable(startupCtx); err != nil {
		slog.Error("sqs not reachable", "err", err)
		os.Exit(1)
	}

	docs, err := app.NewDocumentStore(ctx, cfg.Dispatch, cfg.AWS)
	if err != nil {
		slog.Error("worker document store init failed", "err", err)
		os.Exit(1)
	}
	orch, err := app.NewOrchestrator(cfg.Dispatch, store, docs)
	if err != nil {
		slog.Error("worker dispatcher init failed", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	consumer := &sqsqueue.Consumer{
		SQS: sqsClient, QueueURL: cfg.SQSQueueURL,
		WaitTimeSeconds:   cfg.SQSWaitTime,
		MaxMessages:       cfg.SQSMaxMsgs,
		VisibilityTimeout: cfg.SQSVizTimeout,
	}

	// health server (liveness + readiness + metrics)
	health := httpserver.New(2*time.Second, store.Ping, queueReachable)
	healthSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           health.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker health listening", "port", cfg.Port)
		healthErrCh <- healthSrv.ListenAndServe()
	}()

	pollErrCh := make(chan error, 1)
	go func() {
		slog.Info("worker starting poll", "queue_url", cfg.SQSQueueURL, "gateway", cfg.Gateway)
		pollErrCh <- consumer.PollConcurrent(ctx, cfg.WorkerConcurrency, func(ctx context.Context, job sqsqueue.DispatchJob) error {
			slog.Info("worker job start", "job_id", job.JobID, "campaign_id", job.CampaignID)
			summary, err := orch.Dispatch(ctx, job.CampaignID)
			switch {
			case err == nil:
				slog.Info("worker job finish",
					"job_id", job.JobID,
					"campaign_id", job.CampaignID,
					"run_id", summary.RunID,
					"status", "ok",
					"sent", summary.Sent,
					"failed", summary.Failed,
				)
				return nil
			case dispatch.IsPermanent(err):
				// Missing campaign or template, or another run owns it.
				slog.Warn("worker job dropped", "job_id", job.JobID, "campaign_id", job.CampaignID, "err", err)
				return nil
			default:
				return err
			}
		})
	}()

	// shutdown wiring
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-pollErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("worker poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("worker health server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("worker shutdown", "signal", sig.String())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	select {
	case <-pollErrCh:
	case <-time.After(30 * time.Second):
		slog.Info("worker shutdown timeout waiting for poll loop")
	}
}

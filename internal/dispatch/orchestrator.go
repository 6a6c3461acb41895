package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"campaigns/internal/domain"
	"campaigns/internal/observability"
	"campaigns/internal/recorder"
	"campaigns/internal/render"
	"campaigns/internal/store"
	"campaigns/internal/util"
)

type Sender interface {
	Send(ctx context.Context, p domain.Payload) domain.AttemptResult
}

type Limiter interface {
	Acquire(ctx context.Context, key string) error
	Forget(key string)
}

type Recorder interface {
	Record(ctx context.Context, assoc domain.Association, res domain.AttemptResult, auditText string, rc recorder.RecordContext) error
}

type Config struct {
	BatchSize        int
	BatchConcurrency int
	BatchPause       time.Duration
	CountryCode      string
	BotID            string
	Collection       string // document store collection for the audit trail
	ClaimTTL         time.Duration
}

const (
	defaultBatchSize        = 50
	defaultBatchConcurrency = 3
	defaultBatchPause       = 500 * time.Millisecond
	defaultClaimTTL         = 30 * time.Minute
)

// Orchestrator runs one campaign end to end.
type Orchestrator struct {
	Resolver *Resolver
	Sender   Sender
	Limiter  Limiter
	Recorder Recorder
	Config   Config

	// Swappable for tests.
	Now      func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
	NewRunID func() string
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if o.Sleep != nil {
		return o.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) batchSize() int {
	if o.Config.BatchSize > 0 {
		return o.Config.BatchSize
	}
	return defaultBatchSize
}

func (o *Orchestrator) batchConcurrency() int {
	if o.Config.BatchConcurrency > 0 {
		return o.Config.BatchConcurrency
	}
	return defaultBatchConcurrency
}

func (o *Orchestrator) batchPause() time.Duration {
	if o.Config.BatchPause > 0 {
		return o.Config.BatchPause
	}
	return defaultBatchPause
}

func (o *Orchestrator) claimTTL() time.Duration {
	if o.Config.ClaimTTL > 0 {
		return o.Config.ClaimTTL
	}
	return defaultClaimTTL
}

// LimiterKey scopes rate limiting to one campaign.
func LimiterKey(campaignID int64) string {
	return "campaign:" + strconv.FormatInt(campaignID, 10)
}

// Dispatch sends the campaign to every recipient not yet sent. Per-recipient
// failures end up in the summary; only resolution and campaign status
// persistence failures are returned as errors.
func (o *Orchestrator) Dispatch(ctx context.Context, campaignID int64) (domain.CampaignSummary, error) {
	start := o.now()
	runID := util.NewRunID()
	if o.NewRunID != nil {
		runID = o.NewRunID()
	}
	log := slog.With("campaign_id", campaignID, "run_id", runID)

	summary, err := o.dispatch(ctx, log, campaignID, runID, start)
	result := "ok"
	if err != nil {
		result = "error"
		log.Error("campaign dispatch failed", "err", err)
	}
	observability.DispatchRuns.WithLabelValues(result).Inc()
	observability.DispatchDuration.Observe(o.now().Sub(start).Seconds())
	return summary, err
}

func (o *Orchestrator) dispatch(ctx context.Context, log *slog.Logger, campaignID int64, runID string, start time.Time) (domain.CampaignSummary, error) {
	campaign, recipients, err := o.Resolver.Resolve(ctx, campaignID)
	if err != nil {
		return domain.CampaignSummary{CampaignID: campaignID, RunID: runID}, err
	}
	if len(recipients) == 0 {
		log.Info("campaign has no pending recipients")
		return domain.Summarize(campaignID, runID, nil, 0, 0), nil
	}

	claimed, err := o.Resolver.Ledger.ClaimCampaign(ctx, store.CampaignClaim{
		ID:          campaignID,
		Now:         start,
		StaleBefore: start.Add(-o.claimTTL()),
	})
	if err != nil {
		return domain.CampaignSummary{CampaignID: campaignID, RunID: runID}, fmt.Errorf("%w: mark campaign %d sending: %v", domain.ErrPersistence, campaignID, err)
	}
	if !claimed {
		return domain.CampaignSummary{CampaignID: campaignID, RunID: runID}, fmt.Errorf("campaign %d: %w", campaignID, domain.ErrDispatchInProgress)
	}

	// Another run may have finished between resolve and claim, so totals
	// and recipients are read again under the claim.
	prior := campaign.Status
	campaign, recipients, err = o.Resolver.Resolve(ctx, campaignID)
	if err != nil {
		o.release(ctx, log, campaignID, prior)
		return domain.CampaignSummary{CampaignID: campaignID, RunID: runID}, err
	}
	if len(recipients) == 0 {
		o.release(ctx, log, campaignID, prior)
		log.Info("campaign has no pending recipients")
		return domain.Summarize(campaignID, runID, nil, 0, 0), nil
	}

	key := LimiterKey(campaignID)
	defer o.Limiter.Forget(key)

	rc := recorder.RecordContext{
		CampaignID:   campaignID,
		RunID:        runID,
		TemplateName: templateName(campaign.Template),
		BotID:        o.Config.BotID,
		Collection:   o.Config.Collection,
	}

	size := o.batchSize()
	batches := (len(recipients) + size - 1) / size
	log.Info("campaign dispatch started", "recipients", len(recipients), "batches", batches)

	results := make([]domain.RecipientResult, len(recipients))
	group := newTaskGroup(o.batchConcurrency())
	var halt firstError

	var stopErr error
	launched := 0
	for b := 0; b < batches; b++ {
		if b > 0 {
			if err := o.sleep(ctx, o.batchPause()); err != nil {
				stopErr = err
				break
			}
		}
		lo := b * size
		hi := min(lo+size, len(recipients))
		if err := group.Go(ctx, func() {
			o.runBatch(ctx, campaign, recipients[lo:hi], results[lo:hi], key, rc, &halt)
		}); err != nil {
			stopErr = err
			break
		}
		launched = hi
	}
	group.Wait()

	elapsed := o.now().Sub(start)
	summary := domain.Summarize(campaignID, runID, results[:launched], batches, elapsed)
	if stopErr == nil {
		stopErr = halt.get()
	}
	if stopErr != nil {
		// Unsent recipients stay pending and are picked up by the next run.
		o.release(ctx, log, campaignID, prior)
		return summary, fmt.Errorf("campaign %d interrupted with %d of %d recipients pending: %w",
			campaignID, len(recipients)-launched+summary.ErrorBreakdown[domain.StatusPending], len(recipients), stopErr)
	}

	end := o.now()
	totalSent := campaign.TotalSent + summary.Sent
	totalFailed := summary.Failed
	if err := o.Resolver.Ledger.UpdateCampaignStatus(ctx, store.CampaignStatusUpdate{
		ID:          campaignID,
		Status:      domain.CampaignSent,
		TotalSent:   &totalSent,
		TotalFailed: &totalFailed,
		EndsAt:      &end,
		Now:         end,
	}); err != nil {
		return summary, fmt.Errorf("%w: finalize campaign %d: %v", domain.ErrPersistence, campaignID, err)
	}

	log.Info("campaign dispatch finished",
		"sent", summary.Sent,
		"failed", summary.Failed,
		"seconds", summary.Performance.TotalTimeSeconds,
		"msgs_per_sec", summary.Performance.MessagesPerSecond,
	)
	return summary, nil
}

// release gives the sending claim back so the next run can start without
// waiting for it to go stale.
func (o *Orchestrator) release(ctx context.Context, log *slog.Logger, campaignID int64, status domain.CampaignStatus) {
	if status == "" || status == domain.CampaignSending {
		status = domain.CampaignActive
	}
	err := o.Resolver.Ledger.UpdateCampaignStatus(context.WithoutCancel(ctx), store.CampaignStatusUpdate{
		ID:     campaignID,
		Status: status,
		Now:    o.now(),
	})
	if err != nil {
		log.Error("release campaign claim failed", "err", err)
	}
}

// firstError keeps the first error reported by concurrent recipients.
type firstError struct {
	mu  sync.Mutex
	err error
}

func (f *firstError) set(err error) {
	f.mu.Lock()
	if f.err == nil {
		f.err = err
	}
	f.mu.Unlock()
}

func (f *firstError) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// runBatch processes every recipient of one batch concurrently and fills
// out, which is index aligned with batch.
func (o *Orchestrator) runBatch(ctx context.Context, campaign domain.Campaign, batch []domain.Association, out []domain.RecipientResult, key string, rc recorder.RecordContext, halt *firstError) {
	var wg sync.WaitGroup
	for i := range batch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = o.deliver(ctx, campaign, batch[i], key, rc, halt)
			observability.RecipientOutcomes.WithLabelValues(string(out[i].Status)).Inc()
		}()
	}
	wg.Wait()
}

func (o *Orchestrator) deliver(ctx context.Context, campaign domain.Campaign, assoc domain.Association, key string, rc recorder.RecordContext, halt *firstError) domain.RecipientResult {
	rr := domain.RecipientResult{
		AssociationID: assoc.ID,
		ClientID:      assoc.ClientID,
		Phone:         assoc.Client.Phone,
	}

	to, ok := util.NormalizePhone(assoc.Client.Phone, o.Config.CountryCode)
	var (
		res       domain.AttemptResult
		auditText string
	)
	if !ok {
		res = domain.AttemptResult{
			Outcome:      domain.OutcomeRejected,
			ErrorCode:    domain.CodeInvalidPhone,
			ErrorMessage: "client has no usable phone number",
		}
	} else {
		rr.Phone = to
		assoc.Client.Phone = to

		rendered := render.Render(*campaign.Template, campaign.VariableMappings, assoc.Client, to)
		auditText = rendered.AuditText

		if err := o.Limiter.Acquire(ctx, key); err != nil {
			// Nothing was sent; the row stays pending for the next run.
			halt.set(fmt.Errorf("rate slot: %w", err))
			rr.Status = domain.StatusPending
			rr.Error = err.Error()
			return rr
		}
		res = o.Sender.Send(ctx, rendered.Payload)
	}

	rc.Now = o.now()
	if err := o.Recorder.Record(ctx, assoc, res, auditText, rc); err != nil {
		slog.Error("record recipient outcome failed",
			"campaign_id", rc.CampaignID,
			"association_id", assoc.ID,
			"err", err,
		)
		rr.Status = domain.StatusFailed
		rr.ErrorCode = domain.CodePersistence
		rr.Error = err.Error()
		rr.MessageID = res.MessageID
		rr.Attempts = res.Attempts
		return rr
	}

	rr.Status = res.Outcome.Status()
	rr.MessageID = res.MessageID
	rr.ErrorCode = res.ErrorCode
	rr.Error = res.ErrorMessage
	rr.Attempts = res.Attempts
	return rr
}

func templateName(t *domain.Template) string {
	if t == nil {
		return ""
	}
	if t.GatewayTemplateName != "" {
		return t.GatewayTemplateName
	}
	return t.Name
}

// IsPermanent reports whether redelivering the same job cannot change the
// outcome. A run already in progress owns the pending recipients.
func IsPermanent(err error) bool {
	return errors.Is(err, domain.ErrCampaignNotFound) ||
		errors.Is(err, domain.ErrInvalidTemplate) ||
		errors.Is(err, domain.ErrDispatchInProgress)
}

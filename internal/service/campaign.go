package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"campaigns/internal/dispatch"
	"campaigns/internal/domain"
	"campaigns/internal/observability"
	sqsqueue "campaigns/internal/queue/sqs"
	"campaigns/internal/store"
	"campaigns/internal/util"
)

type Store interface {
	GetCampaign(ctx context.Context, id int64) (domain.Campaign, bool, error)
	ListAssociations(ctx context.Context, campaignID int64) ([]domain.Association, error)
	AttachClients(ctx context.Context, campaignID int64, clients []store.ClientUpsert) ([]store.AttachedClient, error)
}

type ProfileStore interface {
	BatchWrite(ctx context.Context, ops []store.WriteOp) error
}

type Queue interface {
	EnqueueDispatch(ctx context.Context, job sqsqueue.DispatchJob) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, campaignID int64) (domain.CampaignSummary, error)
}

// CampaignService is the operator facing side of campaigns: loading
// recipients and starting dispatch runs.
type CampaignService struct {
	Store      Store
	Profiles   ProfileStore // optional
	Queue      Queue        // optional; async dispatch is disabled without it
	Dispatcher Dispatcher

	Gateway           string
	CountryCode       string
	ProfileCollection string
	NewJobID          func() string
}

func (s *CampaignService) campaign(ctx context.Context, id int64) (domain.Campaign, error) {
	if id <= 0 {
		return domain.Campaign{}, domain.ErrInvalidCampaignID
	}
	c, ok, err := s.Store.GetCampaign(ctx, id)
	if err != nil {
		return domain.Campaign{}, err
	}
	if !ok {
		return domain.Campaign{}, fmt.Errorf("campaign %d: %w", id, domain.ErrCampaignNotFound)
	}
	return c, nil
}

// AttachClients upserts the clients by canonical phone and links them to
// the campaign. Rows without a name or usable phone are skipped.
func (s *CampaignService) AttachClients(ctx context.Context, campaignID int64, req domain.AttachClientsRequest) (domain.AttachResult, error) {
	if _, err := s.campaign(ctx, campaignID); err != nil {
		return domain.AttachResult{}, err
	}

	res := domain.AttachResult{CampaignID: campaignID}
	seen := make(map[string]bool, len(req.Clients))
	upserts := make([]store.ClientUpsert, 0, len(req.Clients))
	for i, in := range req.Clients {
		if err := in.Validate(); err != nil {
			res.Skipped = append(res.Skipped, "row "+strconv.Itoa(i+1)+": "+err.Error())
			continue
		}
		digits, ok := util.NormalizePhone(in.Phone, s.CountryCode)
		if !ok {
			res.Skipped = append(res.Skipped, "row "+strconv.Itoa(i+1)+": invalid phone "+in.Phone)
			continue
		}
		phone := util.E164(digits)
		if seen[phone] {
			res.Skipped = append(res.Skipped, "row "+strconv.Itoa(i+1)+": duplicate phone "+phone)
			continue
		}
		seen[phone] = true
		upserts = append(upserts, store.ClientUpsert{
			Name:        in.Name,
			Phone:       phone,
			Email:       in.Email,
			Amount:      in.Amount,
			DueDate:     in.DueDate,
			AccountCode: in.AccountCode,
			Manager:     in.Manager,
			Extra:       in.Extra,
		})
	}
	if len(upserts) == 0 {
		return res, nil
	}

	attached, err := s.Store.AttachClients(ctx, campaignID, upserts)
	if err != nil {
		return domain.AttachResult{}, fmt.Errorf("%w: attach clients: %v", domain.ErrPersistence, err)
	}
	for _, a := range attached {
		if a.Created {
			res.Attached++
		} else {
			res.Existing++
		}
	}

	s.mirrorProfiles(ctx, campaignID, attached)
	return res, nil
}

func (s *CampaignService) mirrorProfiles(ctx context.Context, campaignID int64, attached []store.AttachedClient) {
	if s.Profiles == nil || s.ProfileCollection == "" {
		return
	}
	ops := make([]store.WriteOp, 0, len(attached))
	for _, a := range attached {
		key := "cli_" + strconv.FormatInt(a.ClientID, 10)
		ops = append(ops, store.WriteOp{
			Collection: s.ProfileCollection,
			Key:        key,
			Fields:     store.ClientProfile{ClientID: key, Name: a.Name, Phone: a.Phone, Email: a.Email},
		})
	}
	if err := s.Profiles.BatchWrite(ctx, ops); err != nil {
		observability.AuditWriteFailures.Inc()
		slog.Warn("client profile mirror failed", "campaign_id", campaignID, "clients", len(ops), "err", err)
	}
}

func (s *CampaignService) ListRecipients(ctx context.Context, campaignID int64) ([]domain.Association, error) {
	if _, err := s.campaign(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.Store.ListAssociations(ctx, campaignID)
}

// Send runs the campaign in the calling goroutine and returns its summary.
func (s *CampaignService) Send(ctx context.Context, campaignID int64) (domain.CampaignSummary, error) {
	if campaignID <= 0 {
		return domain.CampaignSummary{}, domain.ErrInvalidCampaignID
	}
	return s.Dispatcher.Dispatch(ctx, campaignID)
}

// EnqueueDispatch checks the campaign can be sent and queues a dispatch job
// for the worker.
func (s *CampaignService) EnqueueDispatch(ctx context.Context, campaignID int64) (domain.DispatchAccepted, error) {
	c, err := s.campaign(ctx, campaignID)
	if err != nil {
		return domain.DispatchAccepted{}, err
	}
	if err := dispatch.ValidateTemplate(c.Template, s.Gateway); err != nil {
		return domain.DispatchAccepted{}, err
	}
	if s.Queue == nil {
		return domain.DispatchAccepted{}, fmt.Errorf("dispatch queue not configured")
	}

	newID := s.NewJobID
	if newID == nil {
		newID = util.NewJobID
	}
	job := sqsqueue.DispatchJob{JobID: newID(), CampaignID: campaignID, RequestedAt: util.NowUTC()}
	if err := s.Queue.EnqueueDispatch(ctx, job); err != nil {
		observability.Enqueues.WithLabelValues("error").Inc()
		return domain.DispatchAccepted{}, fmt.Errorf("enqueue dispatch: %w", err)
	}
	observability.Enqueues.WithLabelValues("ok").Inc()
	return domain.DispatchAccepted{JobID: job.JobID, CampaignID: campaignID, State: "queued"}, nil
}

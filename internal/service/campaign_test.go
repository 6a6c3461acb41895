package service

import (
	"context"
	"errors"
	"testing"

	"campaigns/internal/dispatch"
	"campaigns/internal/domain"
	sqsqueue "campaigns/internal/queue/sqs"
	"campaigns/internal/store"
)

type fakeStore struct {
	campaigns map[int64]domain.Campaign
	linked    map[string]bool
	attachArg []store.ClientUpsert
	attachErr error
	nextID    int64
}

func (f *fakeStore) GetCampaign(_ context.Context, id int64) (domain.Campaign, bool, error) {
	c, ok := f.campaigns[id]
	return c, ok, nil
}

func (f *fakeStore) ListAssociations(_ context.Context, campaignID int64) ([]domain.Association, error) {
	return []domain.Association{{ID: 1, CampaignID: campaignID, Status: domain.StatusPending}}, nil
}

func (f *fakeStore) AttachClients(_ context.Context, _ int64, clients []store.ClientUpsert) ([]store.AttachedClient, error) {
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	f.attachArg = clients
	if f.linked == nil {
		f.linked = map[string]bool{}
	}
	out := make([]store.AttachedClient, 0, len(clients))
	for _, c := range clients {
		f.nextID++
		out = append(out, store.AttachedClient{ClientID: f.nextID, Name: c.Name, Phone: c.Phone, Created: !f.linked[c.Phone]})
		f.linked[c.Phone] = true
	}
	return out, nil
}

type fakeProfiles struct {
	ops []store.WriteOp
	err error
}

func (f *fakeProfiles) BatchWrite(_ context.Context, ops []store.WriteOp) error {
	f.ops = append(f.ops, ops...)
	return f.err
}

type fakeQueue struct {
	jobs []sqsqueue.DispatchJob
	err  error
}

func (f *fakeQueue) EnqueueDispatch(_ context.Context, job sqsqueue.DispatchJob) error {
	f.jobs = append(f.jobs, job)
	return f.err
}

func newService() (*CampaignService, *fakeStore, *fakeProfiles, *fakeQueue) {
	st := &fakeStore{campaigns: map[int64]domain.Campaign{
		9:  {ID: 9, Template: &domain.Template{ID: 1, ParamCount: 1, ContentSID: "HX1"}},
		10: {ID: 10},
	}}
	pr := &fakeProfiles{}
	q := &fakeQueue{}
	svc := &CampaignService{
		Store: st, Profiles: pr, Queue: q,
		Gateway:           dispatch.GatewayTwilio,
		CountryCode:       "51",
		ProfileCollection: "clientes",
		NewJobID:          func() string { return "job_1" },
	}
	return svc, st, pr, q
}

func TestAttachClients(t *testing.T) {
	svc, st, pr, _ := newService()

	req := domain.AttachClientsRequest{Clients: []domain.ClientInput{
		{Name: "Ana", Phone: "987 654 321", Amount: "100"},
		{Name: "", Phone: "987000000"},
		{Name: "Luis", Phone: "---"},
		{Name: "Ana bis", Phone: "+51987654321"},
		{Name: "Eva", Phone: "51911111111"},
	}}
	res, err := svc.AttachClients(context.Background(), 9, req)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if res.Attached != 2 || res.Existing != 0 || len(res.Skipped) != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(st.attachArg) != 2 || st.attachArg[0].Phone != "+51987654321" || st.attachArg[1].Phone != "+51911111111" {
		t.Fatalf("unexpected upserts %+v", st.attachArg)
	}
	if st.attachArg[0].Amount != "100" {
		t.Fatalf("expected fields carried, got %+v", st.attachArg[0])
	}

	if len(pr.ops) != 2 || pr.ops[0].Collection != "clientes" || pr.ops[0].Key != "cli_1" {
		t.Fatalf("unexpected profile mirror %+v", pr.ops)
	}
	p := pr.ops[0].Fields.(store.ClientProfile)
	if p.ClientID != "cli_1" || p.Phone != "+51987654321" || p.Name != "Ana" {
		t.Fatalf("unexpected profile %+v", p)
	}

	again, err := svc.AttachClients(context.Background(), 9, domain.AttachClientsRequest{Clients: req.Clients[:1]})
	if err != nil {
		t.Fatalf("attach again: %v", err)
	}
	if again.Attached != 0 || again.Existing != 1 {
		t.Fatalf("expected existing link on second attach, got %+v", again)
	}
}

func TestAttachClientsProfileFailureIsNotFatal(t *testing.T) {
	svc, _, pr, _ := newService()
	pr.err = errors.New("throttled")

	res, err := svc.AttachClients(context.Background(), 9, domain.AttachClientsRequest{Clients: []domain.ClientInput{{Name: "Ana", Phone: "987654321"}}})
	if err != nil || res.Attached != 1 {
		t.Fatalf("unexpected %+v %v", res, err)
	}
}

func TestAttachClientsErrors(t *testing.T) {
	svc, st, _, _ := newService()

	if _, err := svc.AttachClients(context.Background(), 404, domain.AttachClientsRequest{}); !errors.Is(err, domain.ErrCampaignNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.AttachClients(context.Background(), 0, domain.AttachClientsRequest{}); !errors.Is(err, domain.ErrInvalidCampaignID) {
		t.Fatalf("expected invalid id, got %v", err)
	}

	st.attachErr = errors.New("tx aborted")
	_, err := svc.AttachClients(context.Background(), 9, domain.AttachClientsRequest{Clients: []domain.ClientInput{{Name: "Ana", Phone: "987654321"}}})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestEnqueueDispatch(t *testing.T) {
	svc, _, _, q := newService()

	acc, err := svc.EnqueueDispatch(context.Background(), 9)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if acc.JobID != "job_1" || acc.CampaignID != 9 || acc.State != "queued" {
		t.Fatalf("unexpected response %+v", acc)
	}
	if len(q.jobs) != 1 || q.jobs[0].CampaignID != 9 || q.jobs[0].RequestedAt.IsZero() {
		t.Fatalf("unexpected jobs %+v", q.jobs)
	}
}

func TestEnqueueDispatchRejectsInvalidTemplate(t *testing.T) {
	svc, _, _, q := newService()
	if _, err := svc.EnqueueDispatch(context.Background(), 10); !errors.Is(err, domain.ErrInvalidTemplate) {
		t.Fatalf("expected ErrInvalidTemplate, got %v", err)
	}
	if len(q.jobs) != 0 {
		t.Fatalf("nothing should be queued")
	}
}

func TestEnqueueDispatchQueueFailure(t *testing.T) {
	svc, _, _, q := newService()
	q.err = errors.New("sqs down")
	if _, err := svc.EnqueueDispatch(context.Background(), 9); err == nil {
		t.Fatalf("expected error")
	}
}

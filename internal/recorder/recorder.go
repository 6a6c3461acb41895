package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"campaigns/internal/domain"
	"campaigns/internal/observability"
	"campaigns/internal/store"
)

// MaxErrorDescription bounds the stored error text, in runes.
const MaxErrorDescription = 255

type Ledger interface {
	UpdateAssociation(ctx context.Context, in store.AssociationUpdate) error
}

type DocumentStore interface {
	UpsertDocument(ctx context.Context, collection, key string, fields any, merge bool) error
}

// RecordContext carries the per-run values stamped on every audit document.
type RecordContext struct {
	CampaignID   int64
	RunID        string
	TemplateName string
	BotID        string
	Collection   string
	Now          time.Time
}

// Recorder persists one attempt outcome. The ledger is authoritative; the
// document store is a best-effort conversation trail.
type Recorder struct {
	Ledger Ledger
	Docs   DocumentStore
}

func New(ledger Ledger, docs DocumentStore) *Recorder {
	return &Recorder{Ledger: ledger, Docs: docs}
}

// Record writes res onto assoc. A ledger failure is returned wrapped in
// domain.ErrPersistence; a document store failure is logged only.
func (r *Recorder) Record(ctx context.Context, assoc domain.Association, res domain.AttemptResult, auditText string, rc RecordContext) error {
	now := rc.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	phone := assoc.Client.Phone

	doc := store.AuditDocument{
		Phone:        phone,
		ClientID:     assoc.ClientID,
		CampaignID:   rc.CampaignID,
		BotID:        rc.BotID,
		Message:      auditText,
		TemplateName: rc.TemplateName,
		Sender:       "false",
		RunID:        rc.RunID,
		SentAt:       now.UnixMilli(),
	}

	var (
		upd   store.AssociationUpdate
		key   string
		merge bool
	)
	if res.Success() {
		upd = store.AssociationUpdate{
			ID:               assoc.ID,
			Status:           domain.StatusSent,
			GatewayMessageID: res.MessageID,
			Now:              now,
		}
		doc.Status = string(domain.StatusSent)
		doc.MessageID = res.MessageID
		key, merge = phone, true
	} else {
		status := res.Outcome.Status()
		upd = store.AssociationUpdate{
			ID:               assoc.ID,
			Status:           status,
			ErrorCode:        res.ErrorCode,
			ErrorDescription: Truncate(res.ErrorMessage, MaxErrorDescription),
			AddRetries:       res.Attempts,
			Now:              now,
		}
		doc.Status = string(status)
		doc.Error = res.ErrorMessage
		key = ErrorKey(phone, assoc.ID, now)
	}

	if err := r.Ledger.UpdateAssociation(ctx, upd); err != nil {
		return fmt.Errorf("%w: association %d: %v", domain.ErrPersistence, assoc.ID, err)
	}

	if r.Docs == nil || rc.Collection == "" {
		return nil
	}
	if err := r.Docs.UpsertDocument(ctx, rc.Collection, key, doc, merge); err != nil {
		observability.AuditWriteFailures.Inc()
		slog.Warn("audit document write failed",
			"campaign_id", rc.CampaignID,
			"association_id", assoc.ID,
			"key", key,
			"err", fmt.Errorf("%w: %v", domain.ErrAuditWrite, err),
		)
	}
	return nil
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// ErrorKey names the audit document of one failed attempt. The association
// id keeps attempts for the same phone apart across campaigns.
func ErrorKey(phone string, associationID int64, at time.Time) string {
	return phone + "_error_" + strconv.FormatInt(at.UnixMilli(), 10) + "_" + strconv.FormatInt(associationID, 10)
}

package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"campaigns/internal/domain"
	"campaigns/internal/store"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Store struct {
	DB    DBTX
	begin beginner
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db, begin: db} }

// InTx runs fn against a Store bound to one transaction. Nested calls use
// savepoints.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return pgx.BeginFunc(ctx, s.begin, func(tx pgx.Tx) error {
		return fn(&Store{DB: tx, begin: tx})
	})
}

func (s *Store) GetCampaign(ctx context.Context, id int64) (domain.Campaign, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT c.id, c.name, c.description, c.template_id, c.starts_at, c.ends_at, c.status,
		       c.variable_mappings, c.total_sent, c.total_failed,
		       t.id, COALESCE(t.name,''), COALESCE(t.message,''), COALESCE(t.gateway_template_name,''),
		       COALESCE(t.content_sid,''), COALESCE(t.language,''), COALESCE(t.param_count,0)
		FROM campaigns c
		LEFT JOIN templates t ON t.id = c.template_id
		WHERE c.id=$1
	`, id)

	var (
		c           domain.Campaign
		status      string
		mappingJSON []byte
		tplID       *int64
		tpl         domain.Template
	)
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.TemplateID, &c.StartsAt, &c.EndsAt, &status,
		&mappingJSON, &c.TotalSent, &c.TotalFailed,
		&tplID, &tpl.Name, &tpl.Message, &tpl.GatewayTemplateName, &tpl.ContentSID, &tpl.Language, &tpl.ParamCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Campaign{}, false, nil
		}
		return domain.Campaign{}, false, err
	}
	c.Status = domain.CampaignStatus(status)
	if len(mappingJSON) > 0 {
		if err := json.Unmarshal(mappingJSON, &c.VariableMappings); err != nil {
			return domain.Campaign{}, false, fmt.Errorf("decode variable_mappings: %w", err)
		}
	}
	if tplID != nil {
		tpl.ID = *tplID
		c.Template = &tpl
	}
	return c, true, nil
}

const associationColumns = `
	cr.id, cr.client_id, cr.campaign_id, cr.status, COALESCE(cr.gateway_message_id,''),
	cr.sent_at, cr.last_status_at, COALESCE(cr.error_code,''), COALESCE(cr.error_description,''), cr.retry_count,
	cl.name, cl.phone, cl.email, cl.amount, cl.due_date, cl.account_code, cl.manager, cl.extra`

// ListPendingAssociations returns every recipient of the campaign not yet
// sent, in id order.
func (s *Store) ListPendingAssociations(ctx context.Context, campaignID int64) ([]domain.Association, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+associationColumns+`
		FROM campaign_recipients cr
		JOIN clients cl ON cl.id = cr.client_id
		WHERE cr.campaign_id=$1 AND cr.status <> 'sent'
		ORDER BY cr.id
	`, campaignID)
	if err != nil {
		return nil, err
	}
	return scanAssociations(rows)
}

func (s *Store) ListAssociations(ctx context.Context, campaignID int64) ([]domain.Association, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+associationColumns+`
		FROM campaign_recipients cr
		JOIN clients cl ON cl.id = cr.client_id
		WHERE cr.campaign_id=$1
		ORDER BY cr.id
	`, campaignID)
	if err != nil {
		return nil, err
	}
	return scanAssociations(rows)
}

func scanAssociations(rows pgx.Rows) ([]domain.Association, error) {
	defer rows.Close()
	var out []domain.Association
	for rows.Next() {
		var (
			a         domain.Association
			status    string
			extraJSON []byte
		)
		if err := rows.Scan(&a.ID, &a.ClientID, &a.CampaignID, &status, &a.GatewayMessageID,
			&a.SentAt, &a.LastStatusAt, &a.ErrorCode, &a.ErrorDescription, &a.RetryCount,
			&a.Client.Name, &a.Client.Phone, &a.Client.Email, &a.Client.Amount, &a.Client.DueDate,
			&a.Client.AccountCode, &a.Client.Manager, &extraJSON); err != nil {
			return nil, err
		}
		a.Status = domain.DeliveryStatus(status)
		a.Client.ID = a.ClientID
		if len(extraJSON) > 0 {
			if err := json.Unmarshal(extraJSON, &a.Client.Extra); err != nil {
				return nil, fmt.Errorf("decode client %d extra: %w", a.ClientID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAssociation writes one attempt outcome in a single statement.
func (s *Store) UpdateAssociation(ctx context.Context, in store.AssociationUpdate) error {
	var (
		ct  pgconn.CommandTag
		err error
	)
	if in.Status == domain.StatusSent {
		ct, err = s.DB.Exec(ctx, `
			UPDATE campaign_recipients
			SET status=$2, gateway_message_id=$3, sent_at=$4, last_status_at=$4,
			    error_code=NULL, error_description=NULL
			WHERE id=$1
		`, in.ID, string(in.Status), nullIfEmpty(in.GatewayMessageID), in.Now)
	} else {
		ct, err = s.DB.Exec(ctx, `
			UPDATE campaign_recipients
			SET status=$2, last_status_at=$3, error_code=$4, error_description=$5,
			    retry_count = retry_count + $6
			WHERE id=$1
		`, in.ID, string(in.Status), in.Now, nullIfEmpty(in.ErrorCode), nullIfEmpty(in.ErrorDescription), in.AddRetries)
	}
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("campaign recipient %d: %w", in.ID, pgx.ErrNoRows)
	}
	return nil
}

func (s *Store) UpdateCampaignStatus(ctx context.Context, in store.CampaignStatusUpdate) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE campaigns
		SET status=$2,
		    total_sent=COALESCE($3, total_sent),
		    total_failed=COALESCE($4, total_failed),
		    ends_at=COALESCE($5, ends_at),
		    updated_at=$6
		WHERE id=$1
	`, in.ID, string(in.Status), in.TotalSent, in.TotalFailed, in.EndsAt, in.Now)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("campaign %d: %w", in.ID, pgx.ErrNoRows)
	}
	return nil
}

// ClaimCampaign marks the campaign sending. It reports false when another
// run holds a claim newer than in.StaleBefore.
func (s *Store) ClaimCampaign(ctx context.Context, in store.CampaignClaim) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE campaigns
		SET status='sending', updated_at=$2
		WHERE id=$1 AND (status <> 'sending' OR updated_at < $3)
	`, in.ID, in.Now, in.StaleBefore)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// UpsertClientByPhone creates the client or refreshes its fields, keyed by
// canonical phone.
func (s *Store) UpsertClientByPhone(ctx context.Context, in store.ClientUpsert) (int64, error) {
	extra, _ := json.Marshal(in.Extra)
	if in.Extra == nil {
		extra = []byte(`{}`)
	}
	var id int64
	err := s.DB.QueryRow(ctx, `
		INSERT INTO clients (name, phone, email, amount, due_date, account_code, manager, extra, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
		ON CONFLICT (phone) DO UPDATE SET
			name=EXCLUDED.name,
			email=COALESCE(NULLIF(EXCLUDED.email,''), clients.email),
			amount=COALESCE(NULLIF(EXCLUDED.amount,''), clients.amount),
			due_date=COALESCE(NULLIF(EXCLUDED.due_date,''), clients.due_date),
			account_code=COALESCE(NULLIF(EXCLUDED.account_code,''), clients.account_code),
			manager=COALESCE(NULLIF(EXCLUDED.manager,''), clients.manager),
			extra=clients.extra || EXCLUDED.extra,
			updated_at=now()
		RETURNING id
	`, in.Name, in.Phone, in.Email, in.Amount, in.DueDate, in.AccountCode, in.Manager, extra).Scan(&id)
	return id, err
}

// AttachClient links a client to a campaign. It reports false when the
// link already existed.
func (s *Store) AttachClient(ctx context.Context, campaignID, clientID int64) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO campaign_recipients (client_id, campaign_id, status)
		VALUES ($1,$2,'pending')
		ON CONFLICT (client_id, campaign_id) DO NOTHING
	`, clientID, campaignID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// AttachClients upserts every client and links it to the campaign in one
// transaction.
func (s *Store) AttachClients(ctx context.Context, campaignID int64, clients []store.ClientUpsert) ([]store.AttachedClient, error) {
	var out []store.AttachedClient
	err := s.InTx(ctx, func(tx *Store) error {
		out = make([]store.AttachedClient, 0, len(clients))
		for _, c := range clients {
			id, err := tx.UpsertClientByPhone(ctx, c)
			if err != nil {
				return fmt.Errorf("upsert client %s: %w", c.Phone, err)
			}
			created, err := tx.AttachClient(ctx, campaignID, id)
			if err != nil {
				return fmt.Errorf("attach client %d: %w", id, err)
			}
			out = append(out, store.AttachedClient{ClientID: id, Name: c.Name, Phone: c.Phone, Email: c.Email, Created: created})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateAssociationByGatewayID applies a provider status callback and
// reports whether a recipient matched.
func (s *Store) UpdateAssociationByGatewayID(ctx context.Context, in store.GatewayStatusUpdate) (bool, error) {
	var (
		ct  pgconn.CommandTag
		err error
	)
	if in.Status == "" {
		ct, err = s.DB.Exec(ctx, `
			UPDATE campaign_recipients SET last_status_at=$2 WHERE gateway_message_id=$1
		`, in.GatewayMessageID, in.Now)
	} else {
		ct, err = s.DB.Exec(ctx, `
			UPDATE campaign_recipients
			SET status=$2, error_code=$3, last_status_at=$4
			WHERE gateway_message_id=$1
		`, in.GatewayMessageID, string(in.Status), nullIfEmpty(in.ErrorCode), in.Now)
	}
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) InsertDeliveryEvent(ctx context.Context, in store.DeliveryEvent) error {
	b, _ := json.Marshal(in.Payload)
	received := in.ReceivedAt
	if received.IsZero() {
		received = time.Now().UTC()
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO delivery_events (provider, gateway_message_id, vendor_status, error_code, payload_json, received_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, in.Provider, in.GatewayMessageID, in.VendorStatus, nullIfEmpty(in.ErrorCode), b, received)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.DB.QueryRow(ctx, `SELECT 1`).Scan(&one)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

package dispatch

import (
	"context"
	"fmt"

	"campaigns/internal/domain"
	"campaigns/internal/store"
)

// Ledger is the relational side of a dispatch run.
type Ledger interface {
	GetCampaign(ctx context.Context, id int64) (domain.Campaign, bool, error)
	ListPendingAssociations(ctx context.Context, campaignID int64) ([]domain.Association, error)
	UpdateCampaignStatus(ctx context.Context, in store.CampaignStatusUpdate) error
	ClaimCampaign(ctx context.Context, in store.CampaignClaim) (bool, error)
}

const (
	GatewayTwilio = "twilio"
	GatewayMeta   = "meta"
)

// Resolver loads a campaign and the recipients still owed a message.
// It never writes.
type Resolver struct {
	Ledger  Ledger
	Gateway string
}

func (r *Resolver) Resolve(ctx context.Context, campaignID int64) (domain.Campaign, []domain.Association, error) {
	c, ok, err := r.Ledger.GetCampaign(ctx, campaignID)
	if err != nil {
		return domain.Campaign{}, nil, fmt.Errorf("load campaign %d: %w", campaignID, err)
	}
	if !ok {
		return domain.Campaign{}, nil, fmt.Errorf("campaign %d: %w", campaignID, domain.ErrCampaignNotFound)
	}
	if err := ValidateTemplate(c.Template, r.Gateway); err != nil {
		return domain.Campaign{}, nil, fmt.Errorf("campaign %d: %w", campaignID, err)
	}

	recipients, err := r.Pending(ctx, campaignID)
	if err != nil {
		return domain.Campaign{}, nil, err
	}
	return c, recipients, nil
}

// Pending lists the recipients of the campaign not yet sent, in id order.
func (r *Resolver) Pending(ctx context.Context, campaignID int64) ([]domain.Association, error) {
	recipients, err := r.Ledger.ListPendingAssociations(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list recipients of campaign %d: %w", campaignID, err)
	}
	return recipients, nil
}

// ValidateTemplate checks the template carries the identifier the gateway
// addresses it by. A parameterless template still needs one.
func ValidateTemplate(t *domain.Template, gateway string) error {
	if t == nil {
		return fmt.Errorf("%w: campaign has no template", domain.ErrInvalidTemplate)
	}

	var id string
	switch gateway {
	case GatewayMeta:
		id = t.GatewayTemplateName
	default:
		id = t.ContentSID
	}
	if id == "" {
		return fmt.Errorf("%w: template %d has no %s identifier", domain.ErrInvalidTemplate, t.ID, gateway)
	}
	return nil
}

package domain

import (
	"errors"
	"time"
)

type CampaignStatus string

const (
	CampaignDraft   CampaignStatus = "draft"
	CampaignActive  CampaignStatus = "active"
	CampaignSending CampaignStatus = "sending"
	CampaignSent    CampaignStatus = "sent"
)

// DeliveryStatus is the per-recipient state kept on the campaign association.
type DeliveryStatus string

const (
	StatusPending       DeliveryStatus = "pending"
	StatusSent          DeliveryStatus = "sent"
	StatusFailed        DeliveryStatus = "failed"
	StatusRejected      DeliveryStatus = "rejected"
	StatusUnauthorized  DeliveryStatus = "unauthorized"
	StatusRateLimited   DeliveryStatus = "rate_limited"
	StatusServerError   DeliveryStatus = "server_error"
	StatusNetworkFailed DeliveryStatus = "network_failed"
)

var (
	ErrCampaignNotFound   = errors.New("campaign not found")
	ErrInvalidTemplate    = errors.New("invalid template")
	ErrInvalidCampaignID  = errors.New("invalid campaign id")
	ErrPersistence        = errors.New("persistence failure")
	ErrAuditWrite         = errors.New("audit write failure")
	ErrMissingFields      = errors.New("missing required fields")
	ErrDispatchInProgress = errors.New("dispatch already in progress")
)

type Template struct {
	ID                  int64
	Name                string
	Message             string
	GatewayTemplateName string // Meta Business template name
	ContentSID          string // Twilio Content API sid
	Language            string
	ParamCount          int
}

func (t Template) HasParams() bool { return t.ParamCount > 0 }

type Campaign struct {
	ID               int64
	Name             string
	Description      string
	TemplateID       *int64
	Template         *Template
	StartsAt         *time.Time
	EndsAt           *time.Time
	Status           CampaignStatus
	VariableMappings map[string]string // positional index -> client field
	TotalSent        int
	TotalFailed      int
}

type Association struct {
	ID               int64
	ClientID         int64
	CampaignID       int64
	Client           Client
	Status           DeliveryStatus
	GatewayMessageID string
	SentAt           *time.Time
	LastStatusAt     *time.Time
	ErrorCode        string
	ErrorDescription string
	RetryCount       int
}

// AttachClientsRequest is the body of POST /v1/campaigns/{id}/recipients.
type AttachClientsRequest struct {
	Clients []ClientInput `json:"clients"`
}

type ClientInput struct {
	Name        string            `json:"name"`
	Phone       string            `json:"phone"`
	Email       string            `json:"email,omitempty"`
	Amount      string            `json:"amount,omitempty"`
	DueDate     string            `json:"dueDate,omitempty"`
	AccountCode string            `json:"accountCode,omitempty"`
	Manager     string            `json:"manager,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

func (c ClientInput) Validate() error {
	if c.Name == "" || c.Phone == "" {
		return ErrMissingFields
	}
	return nil
}

type AttachResult struct {
	CampaignID int64    `json:"campaignId"`
	Attached   int      `json:"attached"`
	Existing   int      `json:"existing"`
	Skipped    []string `json:"skipped,omitempty"`
}

type DispatchAccepted struct {
	JobID      string `json:"jobId"`
	CampaignID int64  `json:"campaignId"`
	State      string `json:"state"`
}

package store

import (
	"time"

	"campaigns/internal/domain"
)

// AssociationUpdate is the outcome written onto one campaign recipient row.
// A sent status clears the error fields; any other status records them
// and adds AddRetries to retry_count.
type AssociationUpdate struct {
	ID               int64
	Status           domain.DeliveryStatus
	GatewayMessageID string
	ErrorCode        string
	ErrorDescription string
	AddRetries       int
	Now              time.Time
}

type CampaignStatusUpdate struct {
	ID          int64
	Status      domain.CampaignStatus
	TotalSent   *int
	TotalFailed *int
	EndsAt      *time.Time
	Now         time.Time
}

// CampaignClaim moves a campaign to sending unless another run holds it.
// A sending claim last touched before StaleBefore is taken over.
type CampaignClaim struct {
	ID          int64
	Now         time.Time
	StaleBefore time.Time
}

type ClientUpsert struct {
	Name        string
	Phone       string
	Email       string
	Amount      string
	DueDate     string
	AccountCode string
	Manager     string
	Extra       map[string]string
}

// GatewayStatusUpdate applies a provider status callback to the recipient
// that holds GatewayMessageID. An empty Status only touches last_status_at.
type GatewayStatusUpdate struct {
	GatewayMessageID string
	Status           domain.DeliveryStatus
	ErrorCode        string
	Now              time.Time
}

type DeliveryEvent struct {
	Provider         string
	GatewayMessageID string
	VendorStatus     string
	ErrorCode        string
	Payload          any
	ReceivedAt       time.Time
}

// AuditDocument is the conversation trail entry for one send attempt.
type AuditDocument struct {
	Phone        string `dynamodbav:"celular" json:"celular"`
	ClientID     int64  `dynamodbav:"id_cliente" json:"id_cliente"`
	CampaignID   int64  `dynamodbav:"campanha_id" json:"campanha_id"`
	BotID        string `dynamodbav:"id_bot" json:"id_bot"`
	Message      string `dynamodbav:"mensaje" json:"mensaje"`
	TemplateName string `dynamodbav:"template_name,omitempty" json:"template_name,omitempty"`
	Sender       string `dynamodbav:"sender" json:"sender"`
	MessageID    string `dynamodbav:"message_id,omitempty" json:"message_id,omitempty"`
	Status       string `dynamodbav:"estado" json:"estado"`
	Error        string `dynamodbav:"error,omitempty" json:"error,omitempty"`
	RunID        string `dynamodbav:"run_id,omitempty" json:"run_id,omitempty"`
	SentAt       int64  `dynamodbav:"fecha" json:"fecha"` // epoch ms
}

// ClientProfile mirrors a client into the document store for the
// conversation view.
type ClientProfile struct {
	ClientID string `dynamodbav:"id_cliente" json:"id_cliente"`
	Name     string `dynamodbav:"nombre" json:"nombre"`
	Phone    string `dynamodbav:"celular" json:"celular"`
	Email    string `dynamodbav:"correo" json:"correo"`
}

// WriteOp is one put in a document store batch.
type WriteOp struct {
	Collection string
	Key        string
	Fields     any
}

// AttachedClient reports one client linked by an attach call. Created is
// false when the client was already a recipient of the campaign.
type AttachedClient struct {
	ClientID int64
	Name     string
	Phone    string
	Email    string
	Created  bool
}

package domain

import "time"

// Outcome is the classified result of a gateway send.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeRejected      Outcome = "rejected"
	OutcomeUnauthorized  Outcome = "unauthorized"
	OutcomeRateLimited   Outcome = "rate_limited"
	OutcomeServerError   Outcome = "server_error"
	OutcomeNetworkFailed Outcome = "network_failed"
	OutcomeUnknownError  Outcome = "unknown_error"
)

// Status maps an outcome onto the association status it records.
func (o Outcome) Status() DeliveryStatus {
	switch o {
	case OutcomeSuccess:
		return StatusSent
	case OutcomeRejected:
		return StatusRejected
	case OutcomeUnauthorized:
		return StatusUnauthorized
	case OutcomeRateLimited:
		return StatusRateLimited
	case OutcomeServerError:
		return StatusServerError
	case OutcomeNetworkFailed:
		return StatusNetworkFailed
	default:
		return StatusFailed
	}
}

// Transient reports whether a retry may succeed without changing the request.
func (o Outcome) Transient() bool {
	switch o {
	case OutcomeRateLimited, OutcomeServerError, OutcomeNetworkFailed:
		return true
	}
	return false
}

const (
	CodeGatewayAPI   = "GATEWAY_API_ERROR"
	CodeNetwork      = "NETWORK_ERROR"
	CodeCircuitOpen  = "CIRCUIT_OPEN"
	CodeUnknown      = "UNKNOWN_ERROR"
	CodeInvalidPhone = "INVALID_PHONE"
	CodePersistence  = "PERSISTENCE_ERROR"
)

// AttemptResult is what the delivery client hands back after all retries.
type AttemptResult struct {
	Outcome      Outcome
	MessageID    string
	HTTPStatus   int
	ErrorCode    string
	ErrorMessage string
	Attempts     int
}

func (r AttemptResult) Success() bool { return r.Outcome == OutcomeSuccess }

// RecipientResult is one line of a dispatch run.
type RecipientResult struct {
	AssociationID int64          `json:"associationId"`
	ClientID      int64          `json:"clientId"`
	Phone         string         `json:"phone"`
	Status        DeliveryStatus `json:"status"`
	MessageID     string         `json:"messageId,omitempty"`
	ErrorCode     string         `json:"errorCode,omitempty"`
	Error         string         `json:"error,omitempty"`
	Attempts      int            `json:"attempts"`
}

type Performance struct {
	MessagesPerSecond float64 `json:"messagesPerSecond"`
	TotalTimeSeconds  float64 `json:"totalTimeSeconds"`
}

type CampaignSummary struct {
	CampaignID     int64                  `json:"campaignId"`
	RunID          string                 `json:"runId"`
	Total          int                    `json:"total"`
	Sent           int                    `json:"sent"`
	Failed         int                    `json:"failed"`
	ErrorBreakdown map[DeliveryStatus]int `json:"errorBreakdown"`
	Batches        int                    `json:"batchesProcessed"`
	Performance    Performance            `json:"performance"`
	Results        []RecipientResult      `json:"results,omitempty"`
}

// Summarize folds recipient results into campaign totals.
func Summarize(campaignID int64, runID string, results []RecipientResult, batches int, elapsed time.Duration) CampaignSummary {
	s := CampaignSummary{
		CampaignID:     campaignID,
		RunID:          runID,
		Total:          len(results),
		ErrorBreakdown: map[DeliveryStatus]int{},
		Batches:        batches,
		Results:        results,
	}
	for _, r := range results {
		if r.Status == StatusSent {
			s.Sent++
			continue
		}
		s.Failed++
		s.ErrorBreakdown[r.Status]++
	}
	secs := elapsed.Seconds()
	s.Performance.TotalTimeSeconds = secs
	if secs > 0 {
		s.Performance.MessagesPerSecond = float64(s.Total) / secs
	}
	return s
}

package httpserver

import (
	"errors"
	"net/http"

	"campaigns/internal/domain"
)

const (
	ErrInvalidJSON      = "invalid json"
	ErrInvalidID        = "invalid campaign id"
	ErrDependency       = "dependency error"
	ErrNotFound         = "campaign not found"
	ErrInvalidTemplate  = "campaign template cannot be sent"
	ErrBadForm          = "bad form"
	ErrInvalidSignature = "invalid signature"
	ErrInProgress       = "campaign dispatch already in progress"
	ErrInternal         = "internal error"
)

// statusFor maps service errors onto HTTP responses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrCampaignNotFound):
		return http.StatusNotFound, ErrNotFound
	case errors.Is(err, domain.ErrInvalidCampaignID):
		return http.StatusBadRequest, ErrInvalidID
	case errors.Is(err, domain.ErrInvalidTemplate):
		return http.StatusBadRequest, ErrInvalidTemplate
	case errors.Is(err, domain.ErrDispatchInProgress):
		return http.StatusConflict, ErrInProgress
	case errors.Is(err, domain.ErrMissingFields):
		return http.StatusBadRequest, domain.ErrMissingFields.Error()
	}
	return http.StatusBadGateway, ErrDependency
}

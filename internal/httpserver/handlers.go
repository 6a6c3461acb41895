package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"campaigns/internal/domain"
)

type CampaignService interface {
	AttachClients(ctx context.Context, campaignID int64, req domain.AttachClientsRequest) (domain.AttachResult, error)
	ListRecipients(ctx context.Context, campaignID int64) ([]domain.Association, error)
	Send(ctx context.Context, campaignID int64) (domain.CampaignSummary, error)
	EnqueueDispatch(ctx context.Context, campaignID int64) (domain.DispatchAccepted, error)
}

type API struct {
	Svc CampaignService
}

func (a *API) Register(mux *mux.Router) {
	mux.HandleFunc("/v1/campaigns/{id}/recipients", a.handleAttach).Methods(http.MethodPost)
	mux.HandleFunc("/v1/campaigns/{id}/recipients", a.handleListRecipients).Methods(http.MethodGet)
	mux.HandleFunc("/v1/campaigns/{id}/send", a.handleSend).Methods(http.MethodPost)
	mux.HandleFunc("/v1/campaigns/{id}/dispatch", a.handleDispatch).Methods(http.MethodPost)
}

func campaignID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) handleAttach(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		http.Error(w, ErrInvalidID, http.StatusBadRequest)
		return
	}
	var req domain.AttachClientsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if len(req.Clients) == 0 {
		http.Error(w, domain.ErrMissingFields.Error(), http.StatusBadRequest)
		return
	}

	res, err := a.Svc.AttachClients(r.Context(), id, req)
	if err != nil {
		status, msg := statusFor(err)
		slog.Error("attach clients failed", "err", err, "campaign_id", id, "clients", len(req.Clients))
		http.Error(w, msg, status)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type recipientView struct {
	ID               int64      `json:"id"`
	ClientID         int64      `json:"clientId"`
	Name             string     `json:"name"`
	Phone            string     `json:"phone"`
	Status           string     `json:"status"`
	GatewayMessageID string     `json:"gatewayMessageId,omitempty"`
	SentAt           *time.Time `json:"sentAt,omitempty"`
	LastStatusAt     *time.Time `json:"lastStatusAt,omitempty"`
	ErrorCode        string     `json:"errorCode,omitempty"`
	ErrorDescription string     `json:"errorDescription,omitempty"`
	RetryCount       int        `json:"retryCount"`
}

func (a *API) handleListRecipients(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		http.Error(w, ErrInvalidID, http.StatusBadRequest)
		return
	}
	assocs, err := a.Svc.ListRecipients(r.Context(), id)
	if err != nil {
		status, msg := statusFor(err)
		if status >= 500 {
			slog.Error("list recipients failed", "err", err, "campaign_id", id)
		}
		http.Error(w, msg, status)
		return
	}

	out := make([]recipientView, 0, len(assocs))
	for _, as := range assocs {
		out = append(out, recipientView{
			ID:               as.ID,
			ClientID:         as.ClientID,
			Name:             as.Client.Name,
			Phone:            as.Client.Phone,
			Status:           string(as.Status),
			GatewayMessageID: as.GatewayMessageID,
			SentAt:           as.SentAt,
			LastStatusAt:     as.LastStatusAt,
			ErrorCode:        as.ErrorCode,
			ErrorDescription: as.ErrorDescription,
			RetryCount:       as.RetryCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaignId": id, "recipients": out})
}

func (a *API) handleSend(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		http.Error(w, ErrInvalidID, http.StatusBadRequest)
		return
	}
	summary, err := a.Svc.Send(r.Context(), id)
	if err != nil {
		status, msg := statusFor(err)
		slog.Error("campaign send failed", "err", err, "campaign_id", id, "run_id", summary.RunID)
		http.Error(w, msg, status)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		http.Error(w, ErrInvalidID, http.StatusBadRequest)
		return
	}
	acc, err := a.Svc.EnqueueDispatch(r.Context(), id)
	if err != nil {
		status, msg := statusFor(err)
		slog.Error("enqueue dispatch failed", "err", err, "campaign_id", id)
		http.Error(w, msg, status)
		return
	}
	writeJSON(w, http.StatusAccepted, acc)
}

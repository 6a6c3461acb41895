package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"campaigns/internal/domain"
	"campaigns/internal/observability"
	"campaigns/internal/providers/twilio"
	"campaigns/internal/store"
	"campaigns/internal/util"
)

type WebhookStore interface {
	InsertDeliveryEvent(ctx context.Context, in store.DeliveryEvent) error
	UpdateAssociationByGatewayID(ctx context.Context, in store.GatewayStatusUpdate) (bool, error)
}

type Webhook struct {
	Store           WebhookStore
	VerifySignature func(authToken, fullURL, provided string, form url.Values) bool
	AuthToken       string
	PublicURL       string
}

func (w *Webhook) Register(mux *mux.Router) {
	mux.HandleFunc("/v1/webhooks/twilio/status", w.handleTwilioStatus).Methods(http.MethodPost)
}

func (w *Webhook) handleTwilioStatus(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(rw, ErrBadForm, http.StatusBadRequest)
		return
	}
	if w.VerifySignature == nil || !w.VerifySignature(w.AuthToken, w.PublicURL, r.Header.Get("X-Twilio-Signature"), r.PostForm) {
		http.Error(rw, ErrInvalidSignature, http.StatusUnauthorized)
		return
	}

	cb := twilio.ParseStatusCallback(r.PostForm)
	observability.WebhookEvents.WithLabelValues(cb.MessageStatus).Inc()
	now := util.NowUTC()

	if err := w.Store.InsertDeliveryEvent(r.Context(), store.DeliveryEvent{
		Provider:         "twilio",
		GatewayMessageID: cb.MessageSid,
		VendorStatus:     cb.MessageStatus,
		ErrorCode:        cb.ErrorCode,
		Payload:          r.PostForm,
		ReceivedAt:       now,
	}); err != nil {
		slog.Error("webhook insert delivery event failed", "err", err, "message_sid", cb.MessageSid, "status", cb.MessageStatus)
		http.Error(rw, ErrDependency, http.StatusInternalServerError)
		return
	}

	// Only hard failures change the recipient status; they make it eligible
	// for the next dispatch run.
	upd := store.GatewayStatusUpdate{GatewayMessageID: cb.MessageSid, Now: now}
	if cb.Failed() {
		upd.Status = domain.StatusFailed
		upd.ErrorCode = cb.ErrorCode
	}

	matched, err := w.Store.UpdateAssociationByGatewayID(r.Context(), upd)
	if err != nil {
		slog.Error("webhook update recipient failed", "err", err, "message_sid", cb.MessageSid, "status", cb.MessageStatus)
		http.Error(rw, ErrDependency, http.StatusInternalServerError)
		return
	}
	if !matched {
		slog.Warn("webhook status for unknown message", "message_sid", cb.MessageSid, "status", cb.MessageStatus)
	}
	rw.WriteHeader(http.StatusOK)
}

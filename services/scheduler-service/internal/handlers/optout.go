package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/apptflow/libs/httpx"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/audit"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/consent"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/storage"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

type OptOutStore interface {
	OptOutSMSByPhone(ctx context.Context, phone string, now time.Time) (storage.OptOut, error)
	UnsubscribeEmail(ctx context.Context, token string, now time.Time) (storage.OptOut, error)
}

// OptOutConfig controls inbound webhook verification.
type OptOutConfig struct {
	// TwilioAuthToken signs inbound SMS callbacks. When empty every callback
	// is rejected unless SkipSignature is set.
	TwilioAuthToken string
	// WebhookURL is the public URL configured at the provider. When empty
	// it is rebuilt from the request and its forwarding headers.
	WebhookURL    string
	SkipSignature bool
}

type OptOutHandler struct {
	store  OptOutStore
	audit  audit.Recorder
	logger *slog.Logger
	cfg    OptOutConfig
	now    func() time.Time
}

func NewOptOutHandler(store OptOutStore, recorder audit.Recorder, logger *slog.Logger, cfg OptOutConfig) *OptOutHandler {
	return &OptOutHandler{store: store, audit: recorder, logger: logger, cfg: cfg, now: time.Now}
}

// SenderKey buckets inbound SMS webhooks by sender number.
func SenderKey(r *http.Request) string {
	return strings.TrimSpace(r.PostFormValue("From"))
}

// InboundSMS handles provider callbacks for inbound SMS. Opt-out keywords
// mark every customer with the sender's number as opted out.
func (h *OptOutHandler) InboundSMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if !h.cfg.SkipSignature && !validTwilioSignature(r, h.cfg.TwilioAuthToken, h.cfg.WebhookURL) {
		h.logger.Warn("inbound sms rejected: bad signature", "remote", r.RemoteAddr)
		httpx.WriteError(w, http.StatusForbidden, "invalid signature")
		return
	}
	from := strings.TrimSpace(r.PostFormValue("From"))
	body := r.PostFormValue("Body")

	if from != "" && consent.IsOptOutKeyword(body) {
		res, err := h.store.OptOutSMSByPhone(r.Context(), from, h.now().UTC())
		if err != nil {
			h.logger.Error("sms opt-out failed", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		h.logger.Info("sms opt-out recorded", "customers", len(res.CustomerIDs), "jobs_skipped", res.JobsSkipped)
		h.audit.Record(r.Context(), audit.Event{
			Action:  audit.ActionSMSOptOut,
			Subject: from,
			Details: map[string]any{"customers": len(res.CustomerIDs), "jobs_skipped": res.JobsSkipped},
		})
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

const unsubscribedPage = `<!doctype html><html><head><meta charset="utf-8"><title>Unsubscribed</title></head>` +
	`<body><h1>You have been unsubscribed</h1><p>You will no longer receive emails from this business.</p></body></html>`

func (h *OptOutHandler) EmailUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	res, err := h.store.UnsubscribeEmail(r.Context(), token, h.now().UTC())
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "unsubscribe link not found")
		return
	}
	if err != nil {
		h.logger.Error("email unsubscribe failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.audit.Record(r.Context(), audit.Event{
		Action:  audit.ActionEmailUnsubscribe,
		Subject: strings.Join(res.CustomerIDs, ","),
		Details: map[string]any{"jobs_skipped": res.JobsSkipped},
	})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(unsubscribedPage))
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/apptflow/libs/httpx"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/audit"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/sender"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/storage"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/templates"
)

const positiveRating = 4

type FeedbackStore interface {
	GetFeedbackByToken(ctx context.Context, token string) (storage.FeedbackView, error)
	SubmitFeedback(ctx context.Context, token string, rating int, comment string, now time.Time) error
}

type ReviewScheduler interface {
	ScheduleReviewJob(ctx context.Context, appointmentID, businessID, customerID string)
}

type FeedbackHandler struct {
	store     FeedbackStore
	scheduler ReviewScheduler
	email     sender.EmailSender
	audit     audit.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewFeedbackHandler(store FeedbackStore, scheduler ReviewScheduler, email sender.EmailSender, recorder audit.Recorder, logger *slog.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		store:     store,
		scheduler: scheduler,
		email:     email,
		audit:     recorder,
		logger:    logger,
		now:       time.Now,
	}
}

type feedbackResponse struct {
	BusinessName    string `json:"business_name"`
	ServiceName     string `json:"service_name"`
	AppointmentDate string `json:"appointment_date"`
	Submitted       bool   `json:"submitted"`
	Rating          *int   `json:"rating,omitempty"`
}

type submitFeedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type submitFeedbackResponse struct {
	NextStep  string `json:"next_step"`
	ReviewURL string `json:"review_url,omitempty"`
}

func (h *FeedbackHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.store.GetFeedbackByToken(r.Context(), chi.URLParam(r, "token"))
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "feedback not found")
		return
	}
	if err != nil {
		h.logger.Error("load feedback failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	loc := model.Business{Timezone: v.Timezone}.Location()
	httpx.WriteJSON(w, http.StatusOK, feedbackResponse{
		BusinessName:    v.BusinessName,
		ServiceName:     v.ServiceName,
		AppointmentDate: templates.FormatDate(v.AppointmentAt, loc),
		Submitted:       v.Feedback.SubmittedAt != nil,
		Rating:          v.Feedback.Rating,
	})
}

func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	var req submitFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		httpx.WriteError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}
	comment := clipUTF8(strings.TrimSpace(req.Comment), maxCommentBytes)

	v, err := h.store.GetFeedbackByToken(r.Context(), token)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "feedback not found")
		return
	}
	if err != nil {
		h.logger.Error("load feedback failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	err = h.store.SubmitFeedback(r.Context(), token, req.Rating, comment, h.now().UTC())
	switch {
	case errors.Is(err, storage.ErrAlreadySubmitted):
		httpx.WriteError(w, http.StatusConflict, "feedback already submitted")
		return
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "feedback not found")
		return
	case err != nil:
		h.logger.Error("submit feedback failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	fb := v.Feedback
	h.audit.Record(r.Context(), audit.Event{
		Action:     audit.ActionFeedbackSubmit,
		BusinessID: fb.BusinessID,
		Subject:    fb.AppointmentID,
		Details:    map[string]any{"rating": req.Rating},
	})

	if req.Rating >= positiveRating {
		h.scheduler.ScheduleReviewJob(r.Context(), fb.AppointmentID, fb.BusinessID, fb.CustomerID)
		httpx.WriteJSON(w, http.StatusOK, submitFeedbackResponse{NextStep: "review", ReviewURL: v.GoogleReviewURL})
		return
	}

	if v.OwnerEmail != "" && h.email != nil {
		go h.notifyOwner(context.WithoutCancel(r.Context()), v, req.Rating, comment)
	}
	httpx.WriteJSON(w, http.StatusOK, submitFeedbackResponse{NextStep: "thanks"})
}

func (h *FeedbackHandler) notifyOwner(ctx context.Context, v storage.FeedbackView, rating int, comment string) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	subject := fmt.Sprintf("New %d-star feedback for %s", rating, v.BusinessName)
	body := fmt.Sprintf("<p>%s rated their %s appointment %d/5.</p>", html.EscapeString(v.CustomerName), html.EscapeString(v.ServiceName), rating)
	if comment != "" {
		body += "<blockquote>" + html.EscapeString(comment) + "</blockquote>"
	}
	if _, err := h.email.SendEmail(ctx, v.OwnerEmail, subject, body); err != nil {
		h.logger.Warn("owner feedback email failed", "err", err, "business_id", v.Feedback.BusinessID)
	}
}

const maxCommentBytes = 2000

// clipUTF8 shortens s to at most n bytes, backing off to the previous rune
// boundary.
func clipUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

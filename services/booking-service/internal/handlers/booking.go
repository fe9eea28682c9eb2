package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptflow/libs/httpx"
	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/storage"
)

const maxDurationMinutes = 8 * 60

type SlotEngine interface {
	GetAvailableSlots(ctx context.Context, businessID string, date time.Time, durationMinutes, intervalMinutes int) ([]model.Slot, error)
	Compute(ctx context.Context, businessID string, date time.Time, durationMinutes, intervalMinutes int) (availability.Day, error)
}

type BookingStore interface {
	LookupIdempotency(ctx context.Context, businessID, key string) (storage.IdempotencyRecord, bool, error)
	Book(ctx context.Context, in storage.NewBooking) (storage.BookingResult, error)
	ConfirmByToken(ctx context.Context, token string) (storage.TokenResult, error)
	CancelByToken(ctx context.Context, token string) (storage.TokenResult, error)
	UpdateAppointment(ctx context.Context, businessID, appointmentID string, patch storage.AppointmentPatch) (model.Appointment, error)
}

type BookingHandler struct {
	engine          SlotEngine
	store           BookingStore
	logger          *slog.Logger
	defaultInterval int
	now             func() time.Time
}

func NewBookingHandler(engine SlotEngine, store BookingStore, logger *slog.Logger, defaultInterval int) *BookingHandler {
	if defaultInterval <= 0 {
		defaultInterval = availability.DefaultIntervalMinutes
	}
	return &BookingHandler{
		engine:          engine,
		store:           store,
		logger:          logger,
		defaultInterval: defaultInterval,
		now:             time.Now,
	}
}

type slotsResponse struct {
	BusinessID string       `json:"business_id"`
	Date       string       `json:"date"`
	Slots      []model.Slot `json:"slots"`
}

// Slots lists open slots for a business day.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	businessID := strings.TrimSpace(q.Get("business_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if businessID == "" || dateStr == "" {
		httpx.WriteError(w, http.StatusBadRequest, "business_id and date are required")
		return
	}
	date, err := time.Parse(time.DateOnly, dateStr)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date")
		return
	}
	duration, ok := positiveInt(q.Get("duration_minutes"), 0)
	if !ok || duration == 0 || duration > maxDurationMinutes {
		httpx.WriteError(w, http.StatusBadRequest, "invalid duration_minutes")
		return
	}
	interval, ok := positiveInt(q.Get("interval_minutes"), h.defaultInterval)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid interval_minutes")
		return
	}

	slots, err := h.engine.GetAvailableSlots(r.Context(), businessID, date, duration, interval)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "business not found")
		return
	}
	if err != nil {
		h.logger.Error("compute slots failed", "err", err, "business_id", businessID)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if slots == nil {
		slots = []model.Slot{}
	}
	out := slotsResponse{BusinessID: businessID, Date: dateStr, Slots: slots}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type bookRequest struct {
	BusinessID      string `json:"business_id"`
	ServiceName     string `json:"service_name"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	CustomerName    string `json:"customer_name"`
	CustomerPhone   string `json:"customer_phone"`
	CustomerEmail   string `json:"customer_email"`
	ConsentSMS      bool   `json:"consent_sms"`
	ConsentEmail    bool   `json:"consent_email"`
}

type bookResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	ConfirmToken  string `json:"confirm_token"`
}

// Book re-validates the requested slot and creates the appointment. Repeated
// requests with the same Idempotency-Key replay the first response.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.CustomerEmail = strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	if req.BusinessID == "" || req.CustomerName == "" {
		httpx.WriteError(w, http.StatusBadRequest, "business_id and customer_name are required")
		return
	}
	if req.CustomerPhone == "" && req.CustomerEmail == "" {
		httpx.WriteError(w, http.StatusBadRequest, "customer_phone or customer_email is required")
		return
	}
	if req.DurationMinutes <= 0 || req.DurationMinutes > maxDurationMinutes {
		httpx.WriteError(w, http.StatusBadRequest, "invalid duration_minutes")
		return
	}
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(req.Date))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date")
		return
	}

	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		rec, ok, err := h.store.LookupIdempotency(ctx, req.BusinessID, key)
		if err != nil {
			h.logger.Error("idempotency lookup failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if ok && rec.Finalized() {
			writeRaw(w, rec.StatusCode, rec.ResponsePayload)
			return
		}
	}

	day, err := h.engine.Compute(ctx, req.BusinessID, date, req.DurationMinutes, h.defaultInterval)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "business not found")
		return
	}
	if err != nil {
		h.logger.Error("compute slots failed", "err", err, "business_id", req.BusinessID)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	start, err := model.ClockOn(day.Start, req.Time)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid time")
		return
	}
	if !availability.Contains(day.Slots, start) {
		httpx.WriteError(w, http.StatusConflict, "this time slot is no longer available")
		return
	}

	res, err := h.store.Book(ctx, storage.NewBooking{
		Customer: model.Customer{
			BusinessID:   req.BusinessID,
			FullName:     req.CustomerName,
			Phone:        req.CustomerPhone,
			Email:        req.CustomerEmail,
			ConsentSMS:   req.ConsentSMS,
			ConsentEmail: req.ConsentEmail,
		},
		ServiceName:    strings.TrimSpace(req.ServiceName),
		Start:          start,
		End:            start.Add(day.Duration),
		IdempotencyKey: key,
		Now:            h.now().UTC(),
		Render: func(a model.Appointment) ([]byte, error) {
			return json.Marshal(newBookResponse(a, day.Location))
		},
	})
	if errors.Is(err, storage.ErrSlotTaken) {
		httpx.WriteError(w, http.StatusConflict, "this time slot is no longer available")
		return
	}
	if err != nil {
		h.logger.Error("create booking failed", "err", err, "business_id", req.BusinessID)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !res.Replayed {
		h.logger.Info("appointment booked", "appointment_id", res.Appointment.ID, "business_id", req.BusinessID)
	}
	writeRaw(w, res.StatusCode, res.Body)
}

func newBookResponse(a model.Appointment, loc *time.Location) bookResponse {
	out := bookResponse{
		AppointmentID: a.ID,
		Status:        string(a.Status),
		StartTime:     a.StartTime.In(loc).Format(time.RFC3339),
		ConfirmToken:  a.ConfirmToken,
	}
	if a.EndTime != nil {
		out.EndTime = a.EndTime.In(loc).Format(time.RFC3339)
	}
	return out
}

type updateRequest struct {
	BusinessID string  `json:"business_id"`
	Status     *string `json:"status"`
	StartTime  *string `json:"start_time"`
	EndTime    *string `json:"end_time"`
}

type appointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	BusinessID    string `json:"business_id"`
	CustomerID    string `json:"customer_id"`
	ServiceName   string `json:"service_name"`
	Status        string `json:"status"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time,omitempty"`
}

// Update changes an appointment's status or time and emits the lifecycle
// event the scheduler reconciles reminders from.
func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	if req.BusinessID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "business_id is required")
		return
	}

	var patch storage.AppointmentPatch
	if req.Status != nil {
		st := model.AppointmentStatus(strings.ToUpper(strings.TrimSpace(*req.Status)))
		if !st.Valid() {
			httpx.WriteError(w, http.StatusBadRequest, "invalid status")
			return
		}
		patch.Status = &st
	}
	if req.StartTime != nil {
		t, err := time.Parse(time.RFC3339, *req.StartTime)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid start_time")
			return
		}
		patch.StartTime = &t
	}
	if req.EndTime != nil {
		t, err := time.Parse(time.RFC3339, *req.EndTime)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid end_time")
			return
		}
		patch.EndTime = &t
	}
	if patch.StartTime != nil && patch.EndTime != nil && !patch.EndTime.After(*patch.StartTime) {
		httpx.WriteError(w, http.StatusBadRequest, "end_time must be after start_time")
		return
	}
	if patch.Status == nil && patch.StartTime == nil && patch.EndTime == nil {
		httpx.WriteError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	appt, err := h.store.UpdateAppointment(r.Context(), req.BusinessID, id, patch)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "appointment not found")
		return
	case errors.Is(err, storage.ErrSlotTaken):
		httpx.WriteError(w, http.StatusConflict, "time slot already booked")
		return
	case errors.Is(err, storage.ErrInvalidRange):
		httpx.WriteError(w, http.StatusBadRequest, "end_time must be after start_time")
		return
	case err != nil:
		h.logger.Error("update appointment failed", "err", err, "appointment_id", id)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := appointmentResponse{
		AppointmentID: appt.ID,
		BusinessID:    appt.BusinessID,
		CustomerID:    appt.CustomerID,
		ServiceName:   appt.ServiceName,
		Status:        string(appt.Status),
		StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
	}
	if appt.EndTime != nil {
		out.EndTime = appt.EndTime.UTC().Format(time.RFC3339)
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func positiveInt(raw string, fallback int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

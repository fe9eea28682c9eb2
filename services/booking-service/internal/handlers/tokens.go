package handlers

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/storage"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>{{.Title}}</title></head>
<body><main><h1>{{.Title}}</h1><p>{{.Message}}</p></main></body></html>`))

type page struct {
	Title   string
	Message string
}

func writePage(w http.ResponseWriter, status int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = pageTmpl.Execute(w, p)
}

// Confirm handles the confirm link sent in reminders.
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.ConfirmByToken(r.Context(), urlParam(r, "token"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writePage(w, http.StatusNotFound, page{"Link not found", "This confirmation link is invalid."})
	case errors.Is(err, storage.ErrStatusConflict):
		writePage(w, http.StatusConflict, page{"Cannot confirm", statusMessage(res.Appointment.Status)})
	case err != nil:
		h.logger.Error("confirm appointment failed", "err", err)
		writePage(w, http.StatusInternalServerError, page{"Something went wrong", "Please try again later."})
	case !res.Changed:
		writePage(w, http.StatusOK, page{"Already confirmed", "Your appointment is confirmed. See you soon!"})
	default:
		h.logger.Info("appointment confirmed", "appointment_id", res.Appointment.ID, "business_id", res.Appointment.BusinessID)
		writePage(w, http.StatusOK, page{"Appointment confirmed", "Thank you! Your appointment has been confirmed."})
	}
}

// Cancel handles the cancel link sent in reminders. Queued messages for the
// appointment are skipped in the same transaction.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.CancelByToken(r.Context(), urlParam(r, "token"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writePage(w, http.StatusNotFound, page{"Link not found", "This cancellation link is invalid."})
	case errors.Is(err, storage.ErrStatusConflict):
		writePage(w, http.StatusConflict, page{"Cannot cancel", statusMessage(res.Appointment.Status)})
	case err != nil:
		h.logger.Error("cancel appointment failed", "err", err)
		writePage(w, http.StatusInternalServerError, page{"Something went wrong", "Please try again later."})
	case !res.Changed:
		writePage(w, http.StatusOK, page{"Already cancelled", "This appointment was already cancelled."})
	default:
		h.logger.Info("appointment cancelled by customer",
			"appointment_id", res.Appointment.ID,
			"business_id", res.Appointment.BusinessID,
			"jobs_skipped", res.JobsSkipped,
		)
		writePage(w, http.StatusOK, page{"Appointment cancelled", "Your appointment has been cancelled. We hope to see you again soon!"})
	}
}

func statusMessage(s model.AppointmentStatus) string {
	switch s {
	case model.StatusCancelled:
		return "This appointment has been cancelled."
	case model.StatusCompleted:
		return "This appointment has already taken place."
	case model.StatusNoShow:
		return "This appointment was marked as missed."
	}
	return "This appointment can no longer be changed."
}

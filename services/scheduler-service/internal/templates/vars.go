package templates

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

const (
	VarCustomerName    = "customer_name"
	VarBusinessName    = "business_name"
	VarAppointmentDate = "appointment_date"
	VarAppointmentTime = "appointment_time"
	VarServiceName     = "service_name"
	VarConfirmURL      = "confirm_url"
	VarCancelURL       = "cancel_url"
	VarFeedbackURL     = "feedback_url"
	VarReviewURL       = "review_url"
	VarUnsubscribeURL  = "unsubscribe_url"
)

const DefaultAppURL = "https://localboost.app"

// Links builds the public URLs embedded in messages.
type Links struct {
	AppURL string
}

func (l Links) base() string {
	u := strings.TrimRight(strings.TrimSpace(l.AppURL), "/")
	if u == "" {
		return DefaultAppURL
	}
	return u
}

func (l Links) Confirm(token string) string {
	return l.base() + "/api/appointments/confirm/" + token
}

func (l Links) Cancel(token string) string {
	return l.base() + "/api/appointments/cancel/" + token
}

func (l Links) Feedback(token string) string {
	return l.base() + "/feedback/" + token
}

func (l Links) Unsubscribe(token string) string {
	return l.base() + "/api/webhooks/email-unsubscribe/" + token
}

// AppointmentVars builds the standard variables for an appointment message.
// Date and time are formatted in the business time zone. URLs whose token is
// missing are left unset.
func AppointmentVars(d model.AppointmentDetails, feedbackToken string, links Links) Vars {
	start := d.Appointment.StartTime.In(d.Business.Location())
	vars := Vars{
		VarCustomerName:    d.Customer.FullName,
		VarBusinessName:    d.Business.Name,
		VarServiceName:     d.Appointment.ServiceName,
		VarAppointmentDate: start.Format("02/01/2006"),
		VarAppointmentTime: start.Format("15:04"),
	}
	if d.Appointment.ConfirmToken != "" {
		vars[VarConfirmURL] = links.Confirm(d.Appointment.ConfirmToken)
	}
	if d.Appointment.CancelToken != "" {
		vars[VarCancelURL] = links.Cancel(d.Appointment.CancelToken)
	}
	if feedbackToken != "" {
		vars[VarFeedbackURL] = links.Feedback(feedbackToken)
	}
	if d.Business.GoogleReviewURL != "" {
		vars[VarReviewURL] = d.Business.GoogleReviewURL
	}
	if d.Customer.UnsubscribeToken != "" {
		vars[VarUnsubscribeURL] = links.Unsubscribe(d.Customer.UnsubscribeToken)
	}
	return vars
}

// FormatDate renders t as dd/MM/yyyy in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02/01/2006")
}

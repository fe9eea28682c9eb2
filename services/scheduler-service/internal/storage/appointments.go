package storage

import (
	"context"

	"github.com/md-rashed-zaman/apptflow/libs/db"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

const appointmentDetailsSQL = `
	SELECT a.id, a.business_id, a.customer_id, COALESCE(a.location_id::text, ''), a.service_name,
		a.start_time, a.end_time, a.status, a.confirm_token, a.cancel_token,
		c.id, c.business_id, c.full_name, COALESCE(c.phone, ''), COALESCE(c.email, ''),
		c.consent_sms, c.consent_email, c.opted_out_sms, c.opted_out_email, c.unsubscribe_token, c.deleted_at,
		b.id, b.name, b.timezone, b.language, COALESCE(b.google_review_url, ''), COALESCE(b.owner_email, '')
	FROM appointments a
	JOIN customers c ON c.id = a.customer_id
	JOIN businesses b ON b.id = a.business_id
	WHERE a.id = $1`

func (s *Store) GetAppointmentDetails(ctx context.Context, appointmentID string) (model.AppointmentDetails, bool, error) {
	var d model.AppointmentDetails
	a, c, b := &d.Appointment, &d.Customer, &d.Business
	err := s.db.QueryRow(ctx, appointmentDetailsSQL, appointmentID).Scan(
		&a.ID, &a.BusinessID, &a.CustomerID, &a.LocationID, &a.ServiceName,
		&a.StartTime, &a.EndTime, &a.Status, &a.ConfirmToken, &a.CancelToken,
		&c.ID, &c.BusinessID, &c.FullName, &c.Phone, &c.Email,
		&c.ConsentSMS, &c.ConsentEmail, &c.OptedOutSMS, &c.OptedOutEmail, &c.UnsubscribeToken, &c.DeletedAt,
		&b.ID, &b.Name, &b.Timezone, &b.Language, &b.GoogleReviewURL, &b.OwnerEmail,
	)
	if db.IsNotFound(err) {
		return model.AppointmentDetails{}, false, nil
	}
	if err != nil {
		return model.AppointmentDetails{}, false, err
	}
	return d, true, nil
}

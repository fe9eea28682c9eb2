package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/apptflow/libs/db"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

var ErrAlreadySubmitted = errors.New("feedback already submitted")

// FeedbackView is a feedback row with the context its public page shows.
type FeedbackView struct {
	Feedback        model.Feedback
	BusinessName    string
	GoogleReviewURL string
	OwnerEmail      string
	Timezone        string
	ServiceName     string
	AppointmentAt   time.Time
	CustomerName    string
}

// EnsureFeedback returns the appointment's feedback row, creating it with a
// fresh token on first use.
func (s *Store) EnsureFeedback(ctx context.Context, appt model.Appointment) (model.Feedback, error) {
	var fb model.Feedback
	err := s.db.QueryRow(ctx, `
		INSERT INTO feedback (id, business_id, appointment_id, customer_id, token)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (appointment_id) DO UPDATE SET appointment_id = EXCLUDED.appointment_id
		RETURNING id, business_id, appointment_id, customer_id, token
	`, uuid.NewString(), appt.BusinessID, appt.ID, appt.CustomerID, uuid.NewString()).Scan(
		&fb.ID, &fb.BusinessID, &fb.AppointmentID, &fb.CustomerID, &fb.Token,
	)
	return fb, err
}

func (s *Store) GetFeedbackByToken(ctx context.Context, token string) (FeedbackView, error) {
	var v FeedbackView
	fb := &v.Feedback
	err := s.db.QueryRow(ctx, `
		SELECT f.id, f.business_id, f.appointment_id, f.customer_id, f.token, f.rating, COALESCE(f.comment, ''), f.submitted_at,
			b.name, COALESCE(b.google_review_url, ''), COALESCE(b.owner_email, ''), b.timezone,
			a.service_name, a.start_time, c.full_name
		FROM feedback f
		JOIN businesses b ON b.id = f.business_id
		JOIN appointments a ON a.id = f.appointment_id
		JOIN customers c ON c.id = f.customer_id
		WHERE f.token = $1
	`, token).Scan(
		&fb.ID, &fb.BusinessID, &fb.AppointmentID, &fb.CustomerID, &fb.Token, &fb.Rating, &fb.Comment, &fb.SubmittedAt,
		&v.BusinessName, &v.GoogleReviewURL, &v.OwnerEmail, &v.Timezone,
		&v.ServiceName, &v.AppointmentAt, &v.CustomerName,
	)
	if db.IsNotFound(err) {
		return FeedbackView{}, ErrNotFound
	}
	return v, err
}

// SubmitFeedback records a rating once. A second submission returns
// ErrAlreadySubmitted.
func (s *Store) SubmitFeedback(ctx context.Context, token string, rating int, comment string, now time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE feedback
		SET rating = $2, comment = NULLIF($3, ''), submitted_at = $4
		WHERE token = $1 AND submitted_at IS NULL
	`, token, rating, comment, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM feedback WHERE token = $1)`, token).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrAlreadySubmitted
	}
	return ErrNotFound
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/apptflow/libs/db"
	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/outbox"
)

const ReasonAppointmentCancelled = "appointment cancelled"

type NewBooking struct {
	Customer       model.Customer
	ServiceName    string
	Start          time.Time
	End            time.Time
	IdempotencyKey string
	Now            time.Time
	// Render builds the response body stored against IdempotencyKey.
	Render func(model.Appointment) ([]byte, error)
}

type BookingResult struct {
	Appointment model.Appointment
	Body        []byte
	StatusCode  int
	Replayed    bool
}

// Book creates the customer if needed, the appointment with fresh confirm and
// cancel tokens, and the booked event, in one transaction. An overlapping live
// appointment yields ErrSlotTaken.
func (s *Store) Book(ctx context.Context, in NewBooking) (BookingResult, error) {
	var res BookingResult
	businessID := in.Customer.BusinessID
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if in.IdempotencyKey != "" {
			rec, err := lockIdempotencyKey(ctx, tx, businessID, in.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("lock idempotency key: %w", err)
			}
			if rec.Finalized() {
				res = BookingResult{Body: rec.ResponsePayload, StatusCode: rec.StatusCode, Replayed: true}
				return nil
			}
		}

		customerID, err := findOrCreateCustomer(ctx, tx, in.Customer, in.Now)
		if err != nil {
			return fmt.Errorf("customer: %w", err)
		}

		end := in.End
		appt, err := scanAppointment(tx.QueryRow(ctx, `
			INSERT INTO appointments
				(business_id, customer_id, service_name, start_time, end_time, status, confirm_token, cancel_token)
			VALUES ($1, $2, $3, $4, $5, 'SCHEDULED', $6, $7)
			RETURNING `+appointmentColumns,
			businessID, customerID, in.ServiceName, in.Start, &end, uuid.NewString(), uuid.NewString()))
		if db.IsExclusionViolation(err) {
			return ErrSlotTaken
		}
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		if err := s.writeEvent(ctx, tx, outbox.TopicBooked, appt, "", false); err != nil {
			return fmt.Errorf("outbox: %w", err)
		}

		res = BookingResult{Appointment: appt, StatusCode: 201}
		if in.Render != nil {
			if res.Body, err = in.Render(appt); err != nil {
				return err
			}
		}
		if in.IdempotencyKey != "" {
			if err := finalizeIdempotency(ctx, tx, businessID, in.IdempotencyKey, appt.ID, res.StatusCode, res.Body); err != nil {
				return fmt.Errorf("finalize idempotency key: %w", err)
			}
		}
		return nil
	})
	return res, err
}

// TokenResult is the outcome of a confirm or cancel link.
type TokenResult struct {
	Appointment model.Appointment
	// Changed is false when the appointment already had the target status.
	Changed     bool
	JobsSkipped int64
}

// ConfirmByToken moves a SCHEDULED appointment to CONFIRMED. Confirming twice
// succeeds; CANCELLED, COMPLETED and NO_SHOW yield ErrStatusConflict.
func (s *Store) ConfirmByToken(ctx context.Context, token string) (TokenResult, error) {
	var res TokenResult
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		appt, err := scanAppointment(tx.QueryRow(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE confirm_token = $1
			FOR UPDATE
		`, token))
		if err != nil {
			return err
		}
		res.Appointment = appt
		switch appt.Status {
		case model.StatusConfirmed:
			return nil
		case model.StatusScheduled:
		default:
			return ErrStatusConflict
		}

		appt.Status = model.StatusConfirmed
		if err := setStatus(ctx, tx, appt.ID, appt.Status); err != nil {
			return err
		}
		if err := s.writeEvent(ctx, tx, outbox.TopicUpdated, appt, model.StatusScheduled, false); err != nil {
			return fmt.Errorf("outbox: %w", err)
		}
		res.Appointment = appt
		res.Changed = true
		return nil
	})
	return res, err
}

// CancelByToken cancels the appointment and skips every queued message job
// for it. Cancelling twice succeeds; COMPLETED and NO_SHOW yield
// ErrStatusConflict.
func (s *Store) CancelByToken(ctx context.Context, token string) (TokenResult, error) {
	var res TokenResult
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		appt, err := scanAppointment(tx.QueryRow(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE cancel_token = $1
			FOR UPDATE
		`, token))
		if err != nil {
			return err
		}
		res.Appointment = appt
		switch appt.Status {
		case model.StatusCancelled:
			return nil
		case model.StatusCompleted, model.StatusNoShow:
			return ErrStatusConflict
		}

		previous := appt.Status
		appt.Status = model.StatusCancelled
		if err := setStatus(ctx, tx, appt.ID, appt.Status); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE message_jobs
			SET status = 'SKIPPED', error_reason = $2, updated_at = now()
			WHERE appointment_id = $1 AND status = 'QUEUED'
		`, appt.ID, ReasonAppointmentCancelled)
		if err != nil {
			return fmt.Errorf("skip jobs: %w", err)
		}
		if err := s.writeEvent(ctx, tx, outbox.TopicCancelled, appt, previous, false); err != nil {
			return fmt.Errorf("outbox: %w", err)
		}
		res.Appointment = appt
		res.Changed = true
		res.JobsSkipped = tag.RowsAffected()
		return nil
	})
	return res, err
}

type AppointmentPatch struct {
	Status    *model.AppointmentStatus
	StartTime *time.Time
	EndTime   *time.Time
}

// UpdateAppointment applies patch to an appointment of businessID and emits
// the updated event, or the cancelled event when the patch cancels it.
func (s *Store) UpdateAppointment(ctx context.Context, businessID, appointmentID string, patch AppointmentPatch) (model.Appointment, error) {
	var out model.Appointment
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		appt, err := scanAppointment(tx.QueryRow(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE id = $1 AND business_id = $2
			FOR UPDATE
		`, appointmentID, businessID))
		if err != nil {
			return err
		}

		previous := appt.Status
		startChanged := false
		if patch.StartTime != nil && !patch.StartTime.Equal(appt.StartTime) {
			// Keep the duration when only the start moves.
			if patch.EndTime == nil && appt.EndTime != nil {
				end := patch.StartTime.Add(appt.EndTime.Sub(appt.StartTime))
				appt.EndTime = &end
			}
			appt.StartTime = *patch.StartTime
			startChanged = true
		}
		if patch.EndTime != nil {
			end := *patch.EndTime
			appt.EndTime = &end
		}
		if patch.Status != nil {
			appt.Status = *patch.Status
		}
		if appt.EndTime != nil && !appt.EndTime.After(appt.StartTime) {
			return ErrInvalidRange
		}

		_, err = tx.Exec(ctx, `
			UPDATE appointments
			SET start_time = $2, end_time = $3, status = $4, updated_at = now()
			WHERE id = $1
		`, appt.ID, appt.StartTime, appt.EndTime, appt.Status)
		if db.IsExclusionViolation(err) {
			return ErrSlotTaken
		}
		if err != nil {
			return err
		}

		topic := outbox.TopicUpdated
		if appt.Status == model.StatusCancelled && previous != model.StatusCancelled {
			topic = outbox.TopicCancelled
		}
		if err := s.writeEvent(ctx, tx, topic, appt, previous, startChanged); err != nil {
			return fmt.Errorf("outbox: %w", err)
		}
		out = appt
		return nil
	})
	return out, err
}

func setStatus(ctx context.Context, q db.DBTX, appointmentID string, status model.AppointmentStatus) error {
	_, err := q.Exec(ctx, `UPDATE appointments SET status = $2, updated_at = now() WHERE id = $1`, appointmentID, status)
	return err
}

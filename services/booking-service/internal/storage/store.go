package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/apptflow/libs/db"
	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrSlotTaken means the appointment overlaps a live appointment of the
	// same business.
	ErrSlotTaken = errors.New("time slot already booked")
	// ErrStatusConflict means the appointment's status does not allow the
	// requested transition.
	ErrStatusConflict = errors.New("appointment status does not allow this change")
	// ErrInvalidRange means the appointment would end at or before its start.
	ErrInvalidRange = errors.New("end_time must be after start_time")
)

type Store struct {
	db     db.TxBeginner
	outbox *outbox.Repository
}

func New(conn db.TxBeginner, outboxRepo *outbox.Repository) *Store {
	return &Store{db: conn, outbox: outboxRepo}
}

const appointmentColumns = `id, business_id, customer_id, service_name, start_time, end_time, status, confirm_token, cancel_token`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(&a.ID, &a.BusinessID, &a.CustomerID, &a.ServiceName, &a.StartTime, &a.EndTime, &a.Status, &a.ConfirmToken, &a.CancelToken)
	if db.IsNotFound(err) {
		return model.Appointment{}, ErrNotFound
	}
	return a, err
}

// BusinessLocation returns the business time zone, UTC when unset or invalid.
func (s *Store) BusinessLocation(ctx context.Context, businessID string) (*time.Location, error) {
	var tz string
	err := s.db.QueryRow(ctx, `SELECT timezone FROM businesses WHERE id = $1`, businessID).Scan(&tz)
	if db.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(tz) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC, nil
	}
	return loc, nil
}

func (s *Store) writeEvent(ctx context.Context, q db.DBTX, topic string, appt model.Appointment, previous model.AppointmentStatus, startChanged bool) error {
	evt, err := outbox.AppointmentEvent(topic, appt, previous, startChanged)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, q, evt)
}

package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/apptflow/libs/db"
	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/model"
)

func (s *Store) GetWorkingHours(ctx context.Context, businessID string, day time.Weekday) (model.WorkingHours, bool, error) {
	h := model.WorkingHours{DayOfWeek: day}
	err := s.db.QueryRow(ctx, `
		SELECT start_time, end_time, is_active
		FROM working_hours
		WHERE business_id = $1 AND day_of_week = $2
	`, businessID, int(day)).Scan(&h.StartTime, &h.EndTime, &h.IsActive)
	if db.IsNotFound(err) {
		return model.WorkingHours{}, false, nil
	}
	if err != nil {
		return model.WorkingHours{}, false, err
	}
	return h, true, nil
}

// ListBusy returns live appointments starting in [from, to).
func (s *Store) ListBusy(ctx context.Context, businessID string, from, to time.Time) ([]model.Busy, error) {
	rows, err := s.db.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE business_id = $1
			AND status NOT IN ('CANCELLED', 'NO_SHOW')
			AND start_time >= $2
			AND start_time < $3
		ORDER BY start_time
	`, businessID, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Busy, error) {
		var b model.Busy
		err := row.Scan(&b.Start, &b.End)
		return b, err
	})
}

func (s *Store) ListBlockedSlots(ctx context.Context, businessID string, date time.Time) ([]model.BlockedSlot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT start_time, end_time, COALESCE(reason, '')
		FROM blocked_slots
		WHERE business_id = $1 AND date = $2::date
		ORDER BY start_time
	`, businessID, date.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.BlockedSlot, error) {
		var b model.BlockedSlot
		err := row.Scan(&b.StartTime, &b.EndTime, &b.Reason)
		return b, err
	})
}

package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/model"
)

const DefaultIntervalMinutes = 30

var ErrInvalidDuration = errors.New("duration and interval must be positive")

// Store is the data the engine reads. Appointments in CANCELLED or NO_SHOW
// must already be excluded by ListBusy.
type Store interface {
	BusinessLocation(ctx context.Context, businessID string) (*time.Location, error)
	GetWorkingHours(ctx context.Context, businessID string, day time.Weekday) (model.WorkingHours, bool, error)
	ListBusy(ctx context.Context, businessID string, from, to time.Time) ([]model.Busy, error)
	ListBlockedSlots(ctx context.Context, businessID string, date time.Time) ([]model.BlockedSlot, error)
}

type Engine struct {
	store Store
	now   func() time.Time
}

func NewEngine(store Store, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, now: now}
}

// Day is one business day resolved in the business's time zone.
type Day struct {
	Location *time.Location
	Start    time.Time
	Slots    []time.Time
	Duration time.Duration
}

// Location resolves the business time zone.
func (e *Engine) Location(ctx context.Context, businessID string) (*time.Location, error) {
	return e.store.BusinessLocation(ctx, businessID)
}

// GetAvailableSlots lists free slots on date (only its calendar day is used)
// as "HH:MM" ranges in the business's time zone, ascending.
func (e *Engine) GetAvailableSlots(ctx context.Context, businessID string, date time.Time, durationMinutes, intervalMinutes int) ([]model.Slot, error) {
	day, err := e.Compute(ctx, businessID, date, durationMinutes, intervalMinutes)
	if err != nil {
		return nil, err
	}
	out := make([]model.Slot, 0, len(day.Slots))
	for _, s := range day.Slots {
		out = append(out, model.Slot{
			StartTime: s.Format("15:04"),
			EndTime:   s.Add(day.Duration).Format("15:04"),
		})
	}
	return out, nil
}

// Compute returns the free slot start times for date.
func (e *Engine) Compute(ctx context.Context, businessID string, date time.Time, durationMinutes, intervalMinutes int) (Day, error) {
	if intervalMinutes == 0 {
		intervalMinutes = DefaultIntervalMinutes
	}
	if durationMinutes <= 0 || intervalMinutes <= 0 {
		return Day{}, ErrInvalidDuration
	}
	loc, err := e.store.BusinessLocation(ctx, businessID)
	if err != nil {
		return Day{}, err
	}
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	duration := time.Duration(durationMinutes) * time.Minute
	res := Day{Location: loc, Start: dayStart, Duration: duration}

	hours, ok, err := e.store.GetWorkingHours(ctx, businessID, dayStart.Weekday())
	if err != nil {
		return Day{}, fmt.Errorf("load working hours: %w", err)
	}
	if !ok || !hours.IsActive {
		return res, nil
	}
	workStart, err := model.ClockOn(dayStart, hours.StartTime)
	if err != nil {
		return Day{}, err
	}
	workEnd, err := model.ClockOn(dayStart, hours.EndTime)
	if err != nil {
		return Day{}, err
	}

	// Appointments starting the day before may still run into this one.
	dayEnd := dayStart.AddDate(0, 0, 1)
	busy, err := e.store.ListBusy(ctx, businessID, dayStart.AddDate(0, 0, -1), dayEnd)
	if err != nil {
		return Day{}, fmt.Errorf("load appointments: %w", err)
	}
	blocked, err := e.store.ListBlockedSlots(ctx, businessID, dayStart)
	if err != nil {
		return Day{}, fmt.Errorf("load blocked slots: %w", err)
	}

	intervals := make([]Interval, 0, len(busy)+len(blocked))
	for _, b := range busy {
		end := b.Start.Add(duration)
		if b.End != nil {
			end = *b.End
		}
		intervals = append(intervals, Interval{Start: b.Start, End: end})
	}
	for _, b := range blocked {
		start, err := model.ClockOn(dayStart, b.StartTime)
		if err != nil {
			return Day{}, err
		}
		end, err := model.ClockOn(dayStart, b.EndTime)
		if err != nil {
			return Day{}, err
		}
		intervals = append(intervals, Interval{Start: start, End: end})
	}

	res.Slots = AvailableSlots(workStart, workEnd, duration, time.Duration(intervalMinutes)*time.Minute, intervals, e.now())
	return res, nil
}

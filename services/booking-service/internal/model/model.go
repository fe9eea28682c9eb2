package model

import (
	"fmt"
	"strings"
	"time"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "SCHEDULED"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusNoShow    AppointmentStatus = "NO_SHOW"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Blocking reports whether an appointment in this status occupies its time range.
func (s AppointmentStatus) Blocking() bool {
	return s != StatusCancelled && s != StatusNoShow
}

type Appointment struct {
	ID           string
	BusinessID   string
	CustomerID   string
	ServiceName  string
	StartTime    time.Time
	EndTime      *time.Time
	Status       AppointmentStatus
	ConfirmToken string
	CancelToken  string
}

type Customer struct {
	ID           string
	BusinessID   string
	FullName     string
	Phone        string
	Email        string
	ConsentSMS   bool
	ConsentEmail bool
}

type WorkingHours struct {
	DayOfWeek time.Weekday
	StartTime string
	EndTime   string
	IsActive  bool
}

type BlockedSlot struct {
	StartTime string
	EndTime   string
	Reason    string
}

// Busy is an occupied range taken from an existing appointment. End is nil
// when the appointment has no stored end.
type Busy struct {
	Start time.Time
	End   *time.Time
}

type Slot struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// ClockOn parses an "HH:MM" time of day and places it on day's date in day's
// location.
func ClockOn(day time.Time, hhmm string) (time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid time of day %q", hhmm)
	}
	var h, m int
	if _, err := fmt.Sscanf(parts[0]+" "+parts[1], "%d %d", &h, &m); err != nil || h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return time.Time{}, fmt.Errorf("invalid time of day %q", hhmm)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location()), nil
}

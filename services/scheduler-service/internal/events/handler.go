// Package events turns appointment lifecycle events into scheduling calls.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

const (
	TopicBooked    = "booking.appointment.booked.v1"
	TopicUpdated   = "booking.appointment.updated.v1"
	TopicCancelled = "booking.appointment.cancelled.v1"
)

var Topics = []string{TopicBooked, TopicUpdated, TopicCancelled}

// AppointmentEvent is the payload booking-service publishes for every
// appointment mutation.
type AppointmentEvent struct {
	AppointmentID  string                  `json:"appointment_id"`
	BusinessID     string                  `json:"business_id"`
	CustomerID     string                  `json:"customer_id"`
	Status         model.AppointmentStatus `json:"status"`
	PreviousStatus model.AppointmentStatus `json:"previous_status,omitempty"`
	StartChanged   bool                    `json:"start_changed,omitempty"`
}

type Scheduler interface {
	ScheduleReminders(ctx context.Context, appointmentID string)
	SchedulePostVisitJobs(ctx context.Context, appointmentID string)
}

type Handler struct {
	scheduler Scheduler
	logger    *slog.Logger
}

func NewHandler(scheduler Scheduler, logger *slog.Logger) *Handler {
	return &Handler{scheduler: scheduler, logger: logger}
}

func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	var evt AppointmentEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", msg.Topic, err)
	}
	if evt.AppointmentID == "" {
		return fmt.Errorf("decode %s: missing appointment_id", msg.Topic)
	}

	switch msg.Topic {
	case TopicBooked, TopicCancelled:
		h.scheduler.ScheduleReminders(ctx, evt.AppointmentID)
	case TopicUpdated:
		statusChanged := evt.Status != evt.PreviousStatus
		if evt.StartChanged || statusChanged {
			h.scheduler.ScheduleReminders(ctx, evt.AppointmentID)
		}
		if statusChanged && evt.Status == model.AppointmentCompleted {
			h.scheduler.SchedulePostVisitJobs(ctx, evt.AppointmentID)
		}
	default:
		h.logger.Warn("unhandled topic", "topic", msg.Topic, "appointment_id", evt.AppointmentID)
	}
	return nil
}

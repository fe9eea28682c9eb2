package outbox

import (
	"encoding/json"

	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/model"
)

const (
	TopicBooked    = "booking.appointment.booked.v1"
	TopicUpdated   = "booking.appointment.updated.v1"
	TopicCancelled = "booking.appointment.cancelled.v1"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// AppointmentChange is the payload of every appointment lifecycle event.
type AppointmentChange struct {
	AppointmentID  string                  `json:"appointment_id"`
	BusinessID     string                  `json:"business_id"`
	CustomerID     string                  `json:"customer_id"`
	Status         model.AppointmentStatus `json:"status"`
	PreviousStatus model.AppointmentStatus `json:"previous_status,omitempty"`
	StartChanged   bool                    `json:"start_changed,omitempty"`
}

// AppointmentEvent builds the outbox envelope for an appointment change.
func AppointmentEvent(topic string, appt model.Appointment, previous model.AppointmentStatus, startChanged bool) (Event, error) {
	payload, err := json.Marshal(AppointmentChange{
		AppointmentID:  appt.ID,
		BusinessID:     appt.BusinessID,
		CustomerID:     appt.CustomerID,
		Status:         appt.Status,
		PreviousStatus: previous,
		StartChanged:   startChanged,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     topic,
		Payload:       payload,
	}, nil
}

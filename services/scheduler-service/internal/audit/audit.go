// Package audit records security-relevant actions without blocking callers.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/apptflow/libs/kafkax"
)

const Topic = "audit.events.v1"

const (
	ActionSMSOptOut        = "customer.sms_opt_out"
	ActionEmailUnsubscribe = "customer.email_unsubscribe"
	ActionFeedbackSubmit   = "feedback.submitted"
	ActionRunnerSweep      = "runner.sweep"
)

type Event struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	BusinessID string         `json:"business_id,omitempty"`
	Subject    string         `json:"subject,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Recorder never returns errors; sinks log their own failures.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// LogRecorder writes audit events to the structured log.
type LogRecorder struct {
	logger *slog.Logger
}

func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(_ context.Context, e Event) {
	e = normalize(e)
	r.logger.Info("audit", "audit_id", e.ID, "action", e.Action, "business_id", e.BusinessID, "subject", e.Subject, "details", e.Details)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaRecorder publishes audit events asynchronously.
type KafkaRecorder struct {
	writer  MessageWriter
	logger  *slog.Logger
	timeout time.Duration
}

func NewKafkaRecorder(writer MessageWriter, logger *slog.Logger) *KafkaRecorder {
	return &KafkaRecorder{writer: writer, logger: logger, timeout: 5 * time.Second}
}

func (r *KafkaRecorder) Record(ctx context.Context, e Event) {
	e = normalize(e)
	raw, err := json.Marshal(e)
	if err != nil {
		r.logger.Error("audit encode failed", "err", err, "action", e.Action)
		return
	}
	key := e.BusinessID
	if key == "" {
		key = e.ID
	}
	msg := kafkax.NewMessage(ctx, Topic, key, e.ID, raw)

	go func() {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		if err := r.writer.WriteMessages(wctx, msg); err != nil {
			r.logger.Warn("audit publish failed", "err", err, "action", e.Action, "audit_id", e.ID)
		}
	}()
}

func normalize(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return e
}

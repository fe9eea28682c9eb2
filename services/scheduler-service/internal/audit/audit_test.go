package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type chanWriter struct {
	got chan kafka.Message
	err error
}

func (w *chanWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		w.got <- m
	}
	return w.err
}

func TestKafkaRecorder(t *testing.T) {
	w := &chanWriter{got: make(chan kafka.Message, 1)}
	r := NewKafkaRecorder(w, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r.Record(context.Background(), Event{Action: ActionSMSOptOut, BusinessID: "biz-1", Subject: "+3069"})

	select {
	case m := <-w.got:
		if m.Topic != Topic || string(m.Key) != "biz-1" {
			t.Fatalf("unexpected message %s %s", m.Topic, m.Key)
		}
		var e Event
		if err := json.Unmarshal(m.Value, &e); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if e.ID == "" || e.OccurredAt.IsZero() || e.Action != ActionSMSOptOut {
			t.Fatalf("expected normalized event, got %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("audit event not published")
	}
}

func TestKafkaRecorder_ErrorsAreSwallowed(t *testing.T) {
	w := &chanWriter{got: make(chan kafka.Message, 1), err: errors.New("broker down")}
	r := NewKafkaRecorder(w, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.Record(context.Background(), Event{Action: ActionRunnerSweep})
	<-w.got
}

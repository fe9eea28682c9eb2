package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/consent"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/metrics"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

const (
	defaultFeedbackDelay = 60 * time.Minute
	defaultReviewDelay   = 5 * time.Minute

	ReasonSuperseded = "superseded by reschedule"
)

var reminderOffsets = map[model.RuleType]time.Duration{
	model.RuleReminder24h: 24 * time.Hour,
	model.RuleReminder2h:  2 * time.Hour,
}

type SchedulerConfig struct {
	// ReviewDelay applies when the review rule has no delay of its own.
	ReviewDelay time.Duration
	Now         func() time.Time
	Metrics     *metrics.Metrics
}

// Scheduler reconciles the queued message jobs of an appointment with its
// current state. Public methods never return errors; failures are logged.
type Scheduler struct {
	store       SchedulerStore
	logger      *slog.Logger
	now         func() time.Time
	reviewDelay time.Duration
	metrics     *metrics.Metrics
}

func NewScheduler(store SchedulerStore, logger *slog.Logger, cfg SchedulerConfig) *Scheduler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ReviewDelay <= 0 {
		cfg.ReviewDelay = defaultReviewDelay
	}
	return &Scheduler{
		store:       store,
		logger:      logger,
		now:         cfg.Now,
		reviewDelay: cfg.ReviewDelay,
		metrics:     cfg.Metrics,
	}
}

// ScheduleReminders keeps exactly one QUEUED reminder per (rule type, channel)
// at the latest computed send time, or clears them for cancelled and no-show
// appointments.
func (s *Scheduler) ScheduleReminders(ctx context.Context, appointmentID string) {
	if err := s.scheduleReminders(ctx, appointmentID); err != nil {
		s.logger.Error("schedule reminders failed", "appointment_id", appointmentID, "err", err)
	}
}

func (s *Scheduler) scheduleReminders(ctx context.Context, appointmentID string) error {
	d, ok, err := s.store.GetAppointmentDetails(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if !ok {
		return nil
	}

	appt := d.Appointment
	if appt.Status == model.AppointmentCancelled || appt.Status == model.AppointmentNoShow {
		reason := "appointment cancelled"
		if appt.Status == model.AppointmentNoShow {
			reason = "appointment no-show"
		}
		n, err := s.store.SkipQueuedJobs(ctx, appt.ID, model.ReminderRules, reason)
		if err != nil {
			return fmt.Errorf("skip reminders: %w", err)
		}
		s.metrics.JobsSkipped("reminder", n)
		return nil
	}
	if d.Customer.Deleted() {
		return nil
	}

	rules, err := s.store.ListEnabledRules(ctx, appt.BusinessID, model.ReminderRules)
	if err != nil {
		return fmt.Errorf("load reminder rules: %w", err)
	}

	now := s.now()
	for _, rule := range rules {
		offset, ok := reminderOffsets[rule.Type]
		if !ok {
			continue
		}
		sendAt := appt.StartTime.Add(-offset)
		if sendAt.Before(now) {
			continue
		}
		for _, ch := range consent.ResolveChannels(rule.Channel, d.Customer) {
			job := newJob(d, rule.Type, ch, sendAt)
			if err := s.store.SupersedeJob(ctx, job, ReasonSuperseded); err != nil {
				return fmt.Errorf("supersede %s %s: %w", rule.Type, ch, err)
			}
			s.metrics.JobScheduled(string(rule.Type), string(ch))
		}
	}
	return nil
}

// SchedulePostVisitJobs queues the feedback request for a completed
// appointment. Existing non-skipped jobs are left untouched.
func (s *Scheduler) SchedulePostVisitJobs(ctx context.Context, appointmentID string) {
	if err := s.schedulePostVisit(ctx, appointmentID); err != nil {
		s.logger.Error("schedule post-visit jobs failed", "appointment_id", appointmentID, "err", err)
	}
}

func (s *Scheduler) schedulePostVisit(ctx context.Context, appointmentID string) error {
	d, ok, err := s.store.GetAppointmentDetails(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if !ok || d.Customer.Deleted() {
		return nil
	}
	return s.gapFill(ctx, d, model.RuleFeedback1h, defaultFeedbackDelay)
}

// ScheduleReviewJob queues the review follow-up after positive feedback.
func (s *Scheduler) ScheduleReviewJob(ctx context.Context, appointmentID, businessID, customerID string) {
	if err := s.scheduleReview(ctx, appointmentID, businessID, customerID); err != nil {
		s.logger.Error("schedule review job failed", "appointment_id", appointmentID, "business_id", businessID, "err", err)
	}
}

func (s *Scheduler) scheduleReview(ctx context.Context, appointmentID, businessID, customerID string) error {
	d, ok, err := s.store.GetAppointmentDetails(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if !ok || d.Customer.Deleted() {
		return nil
	}
	if d.Appointment.BusinessID != businessID || d.Appointment.CustomerID != customerID {
		return fmt.Errorf("appointment %s does not belong to business %s and customer %s", appointmentID, businessID, customerID)
	}
	return s.gapFill(ctx, d, model.RuleReviewFollowup48, s.reviewDelay)
}

func (s *Scheduler) gapFill(ctx context.Context, d model.AppointmentDetails, ruleType model.RuleType, defaultDelay time.Duration) error {
	rules, err := s.store.ListEnabledRules(ctx, d.Appointment.BusinessID, []model.RuleType{ruleType})
	if err != nil {
		return fmt.Errorf("load %s rules: %w", ruleType, err)
	}
	now := s.now()
	for _, rule := range rules {
		delay := defaultDelay
		if rule.DelayMinutes != nil {
			delay = time.Duration(*rule.DelayMinutes) * time.Minute
		}
		sendAt := now.Add(delay)
		for _, ch := range consent.ResolveChannels(rule.Channel, d.Customer) {
			inserted, err := s.store.InsertJobIfAbsent(ctx, newJob(d, ruleType, ch, sendAt))
			if err != nil {
				return fmt.Errorf("insert %s %s: %w", ruleType, ch, err)
			}
			if inserted {
				s.metrics.JobScheduled(string(ruleType), string(ch))
			}
		}
	}
	return nil
}

func newJob(d model.AppointmentDetails, ruleType model.RuleType, ch model.Channel, sendAt time.Time) model.MessageJob {
	return model.MessageJob{
		ID:            uuid.NewString(),
		BusinessID:    d.Appointment.BusinessID,
		CustomerID:    d.Appointment.CustomerID,
		AppointmentID: d.Appointment.ID,
		RuleType:      ruleType,
		Channel:       ch,
		SendAt:        sendAt.UTC(),
		Status:        model.JobQueued,
	}
}

package jobs

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

// SchedulerStore is the persistence the scheduler reconciles jobs against.
type SchedulerStore interface {
	GetAppointmentDetails(ctx context.Context, appointmentID string) (model.AppointmentDetails, bool, error)
	ListEnabledRules(ctx context.Context, businessID string, types []model.RuleType) ([]model.AutomationRule, error)
	// SkipQueuedJobs marks every QUEUED job of the given types for the
	// appointment as SKIPPED and returns how many changed.
	SkipQueuedJobs(ctx context.Context, appointmentID string, types []model.RuleType, reason string) (int64, error)
	// SupersedeJob skips any QUEUED job with the same (appointment, rule type,
	// channel) and inserts job, atomically.
	SupersedeJob(ctx context.Context, job model.MessageJob, reason string) error
	// InsertJobIfAbsent inserts job unless a non-SKIPPED job already exists for
	// its (appointment, rule type, channel).
	InsertJobIfAbsent(ctx context.Context, job model.MessageJob) (bool, error)
}

// RunnerStore is the persistence the dispatch runner needs.
type RunnerStore interface {
	FetchDueJobs(ctx context.Context, now time.Time, limit int) ([]model.MessageJob, error)
	// ClaimJob moves a job from QUEUED to CLAIMED. It reports false when the
	// job was no longer QUEUED.
	ClaimJob(ctx context.Context, jobID string, now time.Time) (bool, error)
	MarkJobSent(ctx context.Context, jobID, providerMessageID string, sentAt time.Time) error
	MarkJobSkipped(ctx context.Context, jobID, reason string) error
	MarkJobFailed(ctx context.Context, jobID, reason string) error
	GetAppointmentDetails(ctx context.Context, appointmentID string) (model.AppointmentDetails, bool, error)
	GetRule(ctx context.Context, businessID string, ruleType model.RuleType) (*model.AutomationRule, error)
	EnsureFeedback(ctx context.Context, appt model.Appointment) (model.Feedback, error)
}

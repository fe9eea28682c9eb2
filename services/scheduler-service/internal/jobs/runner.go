package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/consent"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/metrics"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/quota"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/sender"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/templates"
)

const DefaultBatchSize = 50

const (
	ReasonNoTemplate         = "no template found"
	ReasonNoAppointment      = "appointment not found"
	ReasonUnsupportedChannel = "unsupported channel"
)

var tracer = otel.Tracer("scheduler-service/jobs")

// QuotaGuard gates sends on the business's plan.
type QuotaGuard interface {
	CheckLimit(ctx context.Context, businessID string) (quota.Decision, error)
	IncrementUsage(ctx context.Context, businessID string, count int) error
}

type TemplateResolver interface {
	Resolve(ctx context.Context, rule *model.AutomationRule, businessID string, ruleType model.RuleType, channel model.Channel, language string) (model.MessageTemplate, bool, error)
}

// Result counts the outcomes of one sweep. Jobs lost to a concurrent claim
// are not counted.
type Result struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type RunnerConfig struct {
	Links   templates.Links
	Now     func() time.Time
	Metrics *metrics.Metrics
}

type Runner struct {
	store     RunnerStore
	quota     QuotaGuard
	templates TemplateResolver
	sms       sender.SMSSender
	email     sender.EmailSender
	logger    *slog.Logger
	links     templates.Links
	now       func() time.Time
	metrics   *metrics.Metrics
}

func NewRunner(store RunnerStore, guard QuotaGuard, resolver TemplateResolver, sms sender.SMSSender, email sender.EmailSender, logger *slog.Logger, cfg RunnerConfig) *Runner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{
		store:     store,
		quota:     guard,
		templates: resolver,
		sms:       sms,
		email:     email,
		logger:    logger,
		links:     cfg.Links,
		now:       cfg.Now,
		metrics:   cfg.Metrics,
	}
}

type outcome int

const (
	outcomeLost outcome = iota
	outcomeSent
	outcomeSkipped
	outcomeFailed
)

// RunDueJobs dispatches up to batchSize due jobs, oldest first. Only a failure
// to fetch the batch is returned; per-job errors end in FAILED.
func (r *Runner) RunDueJobs(ctx context.Context, batchSize int) (Result, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	ctx, span := tracer.Start(ctx, "jobs.run_due")
	defer span.End()
	started := time.Now()
	defer func() { r.metrics.ObserveSweep(time.Since(started)) }()

	var res Result
	due, err := r.store.FetchDueJobs(ctx, r.now(), batchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch due jobs")
		return res, fmt.Errorf("fetch due jobs: %w", err)
	}

	for _, job := range due {
		if ctx.Err() != nil {
			break
		}
		switch r.process(ctx, job) {
		case outcomeLost:
			r.metrics.ClaimLost()
			continue
		case outcomeSent:
			res.Sent++
			r.metrics.JobOutcome(string(job.RuleType), string(job.Channel), metrics.OutcomeSent)
		case outcomeSkipped:
			res.Skipped++
			r.metrics.JobOutcome(string(job.RuleType), string(job.Channel), metrics.OutcomeSkipped)
		case outcomeFailed:
			res.Failed++
			r.metrics.JobOutcome(string(job.RuleType), string(job.Channel), metrics.OutcomeFailed)
		}
		res.Processed++
	}

	span.SetAttributes(
		attribute.Int("jobs.fetched", len(due)),
		attribute.Int("jobs.processed", res.Processed),
		attribute.Int("jobs.sent", res.Sent),
		attribute.Int("jobs.skipped", res.Skipped),
		attribute.Int("jobs.failed", res.Failed),
	)
	if res.Processed > 0 {
		r.logger.Info("due jobs processed", "processed", res.Processed, "sent", res.Sent, "skipped", res.Skipped, "failed", res.Failed)
	}
	return res, nil
}

// skipError carries a SKIPPED reason through prepare.
type skipError struct{ reason string }

func (e skipError) Error() string { return e.reason }

func (r *Runner) process(ctx context.Context, job model.MessageJob) outcome {
	log := r.logger.With("job_id", job.ID, "appointment_id", job.AppointmentID, "rule_type", job.RuleType, "channel", job.Channel)

	claimed, err := r.store.ClaimJob(ctx, job.ID, r.now())
	if err != nil {
		log.Error("claim job failed", "err", err)
		return outcomeFailed
	}
	if !claimed {
		log.Debug("job claimed by another runner")
		return outcomeLost
	}

	msg, err := r.prepare(ctx, job)
	if err != nil {
		var skip skipError
		if errors.As(err, &skip) {
			if err := r.store.MarkJobSkipped(ctx, job.ID, skip.reason); err != nil {
				log.Error("mark skipped failed", "err", err)
				return outcomeFailed
			}
			log.Info("job skipped", "reason", skip.reason)
			return outcomeSkipped
		}
		log.Error("prepare job failed", "err", err)
		return r.fail(ctx, log, job, err)
	}

	providerID, err := r.send(ctx, job.Channel, msg)
	if err != nil {
		log.Warn("send failed", "err", err)
		return r.fail(ctx, log, job, err)
	}

	if err := r.store.MarkJobSent(ctx, job.ID, providerID, r.now()); err != nil {
		log.Error("mark sent failed", "provider_message_id", providerID, "err", err)
		return outcomeFailed
	}
	if err := r.quota.IncrementUsage(ctx, job.BusinessID, 1); err != nil {
		log.Error("increment usage failed", "business_id", job.BusinessID, "err", err)
	}
	return outcomeSent
}

type outbound struct {
	to      string
	content templates.Content
}

func (r *Runner) prepare(ctx context.Context, job model.MessageJob) (outbound, error) {
	d, ok, err := r.store.GetAppointmentDetails(ctx, job.AppointmentID)
	if err != nil {
		return outbound{}, fmt.Errorf("load appointment: %w", err)
	}
	if !ok {
		return outbound{}, skipError{ReasonNoAppointment}
	}

	if reason := consent.CheckSendable(job.Channel, d.Customer); reason != "" {
		return outbound{}, skipError{reason}
	}

	decision, err := r.quota.CheckLimit(ctx, job.BusinessID)
	if err != nil {
		return outbound{}, fmt.Errorf("check quota: %w", err)
	}
	if !decision.Allowed {
		r.metrics.QuotaDenied(decision.Reason)
		return outbound{}, skipError{"billing limit: " + decision.Reason}
	}

	rule, err := r.store.GetRule(ctx, job.BusinessID, job.RuleType)
	if err != nil {
		return outbound{}, fmt.Errorf("load rule: %w", err)
	}
	tmpl, ok, err := r.templates.Resolve(ctx, rule, job.BusinessID, job.RuleType, job.Channel, d.Business.Language)
	if err != nil {
		return outbound{}, err
	}
	if !ok {
		return outbound{}, skipError{ReasonNoTemplate}
	}

	var feedbackToken string
	if job.RuleType == model.RuleFeedback1h {
		fb, err := r.store.EnsureFeedback(ctx, d.Appointment)
		if err != nil {
			return outbound{}, fmt.Errorf("ensure feedback: %w", err)
		}
		feedbackToken = fb.Token
	}

	vars := templates.AppointmentVars(d, feedbackToken, r.links)
	msg := outbound{content: templates.Compose(tmpl, vars, job.Channel, d.Business.Name)}
	switch job.Channel {
	case model.ChannelSMS:
		msg.to = d.Customer.Phone
	case model.ChannelEmail:
		msg.to = d.Customer.Email
	default:
		return outbound{}, skipError{ReasonUnsupportedChannel}
	}
	return msg, nil
}

func (r *Runner) send(ctx context.Context, ch model.Channel, msg outbound) (string, error) {
	if ch == model.ChannelSMS {
		return r.sms.SendSMS(ctx, msg.to, msg.content.Body)
	}
	return r.email.SendEmail(ctx, msg.to, msg.content.Subject, msg.content.Body)
}

func (r *Runner) fail(ctx context.Context, log *slog.Logger, job model.MessageJob, cause error) outcome {
	if err := r.store.MarkJobFailed(ctx, job.ID, cause.Error()); err != nil {
		log.Error("mark job failed errored", "cause", cause, "err", err)
	}
	return outcomeFailed
}

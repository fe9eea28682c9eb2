package storage

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptflow/libs/db"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

const insertJobSQL = `
	INSERT INTO message_jobs (id, business_id, customer_id, appointment_id, rule_type, channel, send_at, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, 'QUEUED')`

func ruleNames(types []model.RuleType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func (s *Store) SkipQueuedJobs(ctx context.Context, appointmentID string, types []model.RuleType, reason string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE message_jobs
		SET status = 'SKIPPED', error_reason = $3, updated_at = now()
		WHERE appointment_id = $1 AND rule_type = ANY($2) AND status = 'QUEUED'
	`, appointmentID, ruleNames(types), reason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SkipAllQueuedJobs skips every QUEUED job of the appointment.
func (s *Store) SkipAllQueuedJobs(ctx context.Context, appointmentID, reason string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE message_jobs
		SET status = 'SKIPPED', error_reason = $2, updated_at = now()
		WHERE appointment_id = $1 AND status = 'QUEUED'
	`, appointmentID, reason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) SupersedeJob(ctx context.Context, job model.MessageJob, reason string) error {
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE message_jobs
			SET status = 'SKIPPED', error_reason = $4, updated_at = now()
			WHERE appointment_id = $1 AND rule_type = $2 AND channel = $3 AND status = 'QUEUED'
		`, job.AppointmentID, string(job.RuleType), string(job.Channel), reason); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insertJobSQL,
			job.ID, job.BusinessID, job.CustomerID, job.AppointmentID, string(job.RuleType), string(job.Channel), job.SendAt)
		return err
	})
}

// InsertJobIfAbsent relies on message_jobs_post_visit_uniq for rule types it
// covers and on the NOT EXISTS guard otherwise.
func (s *Store) InsertJobIfAbsent(ctx context.Context, job model.MessageJob) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO message_jobs (id, business_id, customer_id, appointment_id, rule_type, channel, send_at, status)
		SELECT $1, $2, $3, $4, $5, $6, $7, 'QUEUED'
		WHERE NOT EXISTS (
			SELECT 1 FROM message_jobs
			WHERE appointment_id = $4 AND rule_type = $5 AND channel = $6 AND status <> 'SKIPPED'
		)
		ON CONFLICT DO NOTHING
	`, job.ID, job.BusinessID, job.CustomerID, job.AppointmentID, string(job.RuleType), string(job.Channel), job.SendAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) FetchDueJobs(ctx context.Context, now time.Time, limit int) ([]model.MessageJob, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, business_id, customer_id, COALESCE(appointment_id::text, ''), rule_type, channel, send_at, status
		FROM message_jobs
		WHERE status = 'QUEUED' AND send_at <= $1
		ORDER BY send_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MessageJob
	for rows.Next() {
		var j model.MessageJob
		if err := rows.Scan(&j.ID, &j.BusinessID, &j.CustomerID, &j.AppointmentID, &j.RuleType, &j.Channel, &j.SendAt, &j.Status); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ClaimJob is a conditional update; exactly one concurrent caller sees a row.
func (s *Store) ClaimJob(ctx context.Context, jobID string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE message_jobs
		SET status = 'CLAIMED', claimed_at = $2, updated_at = now()
		WHERE id = $1 AND status = 'QUEUED'
	`, jobID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) MarkJobSent(ctx context.Context, jobID, providerMessageID string, sentAt time.Time) error {
	return s.finish(ctx, jobID, model.JobSent, providerMessageID, "", &sentAt)
}

func (s *Store) MarkJobSkipped(ctx context.Context, jobID, reason string) error {
	return s.finish(ctx, jobID, model.JobSkipped, "", reason, nil)
}

func (s *Store) MarkJobFailed(ctx context.Context, jobID, reason string) error {
	return s.finish(ctx, jobID, model.JobFailed, "", reason, nil)
}

// finish moves a CLAIMED job to a terminal state.
func (s *Store) finish(ctx context.Context, jobID string, status model.JobStatus, providerID, reason string, sentAt *time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE message_jobs
		SET status = $2,
			provider_message_id = NULLIF($3, ''),
			error_reason = NULLIF($4, ''),
			sent_at = $5,
			updated_at = now()
		WHERE id = $1 AND status = 'CLAIMED'
	`, jobID, string(status), providerID, truncate(reason, 1000), sentAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SkipQueuedJobsForCustomer skips a customer's QUEUED jobs on one channel.
func (s *Store) SkipQueuedJobsForCustomer(ctx context.Context, q db.DBTX, customerID string, channel model.Channel, reason string) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE message_jobs
		SET status = 'SKIPPED', error_reason = $3, updated_at = now()
		WHERE customer_id = $1 AND channel = $2 AND status = 'QUEUED'
	`, customerID, string(channel), reason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

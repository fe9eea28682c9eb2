package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptflow/libs/db"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

// OptOut summarises an opt-out write.
type OptOut struct {
	CustomerIDs []string
	JobsSkipped int64
}

// OptOutSMSByPhone opts every customer with phone out of SMS and skips their
// queued SMS jobs.
func (s *Store) OptOutSMSByPhone(ctx context.Context, phone string, now time.Time) (OptOut, error) {
	var res OptOut
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE customers
			SET opted_out_sms = true, opted_out_sms_at = COALESCE(opted_out_sms_at, $2)
			WHERE phone = $1 AND deleted_at IS NULL
			RETURNING id
		`, phone, now)
		if err != nil {
			return err
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		res.CustomerIDs = ids
		for _, id := range ids {
			n, err := s.SkipQueuedJobsForCustomer(ctx, tx, id, model.ChannelSMS, "customer opted out of SMS")
			if err != nil {
				return err
			}
			res.JobsSkipped += n
		}
		return nil
	})
	return res, err
}

// UnsubscribeEmail opts the customer owning token out of email and skips their
// queued email jobs.
func (s *Store) UnsubscribeEmail(ctx context.Context, token string, now time.Time) (OptOut, error) {
	var res OptOut
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `
			UPDATE customers
			SET opted_out_email = true, opted_out_email_at = COALESCE(opted_out_email_at, $2)
			WHERE unsubscribe_token = $1
			RETURNING id
		`, token, now).Scan(&id)
		if db.IsNotFound(err) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		res.CustomerIDs = []string{id}
		n, err := s.SkipQueuedJobsForCustomer(ctx, tx, id, model.ChannelEmail, "customer opted out of email")
		res.JobsSkipped = n
		return err
	})
	return res, err
}

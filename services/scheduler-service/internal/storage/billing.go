package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptflow/libs/db"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

const billingColumns = `business_id, plan, status, messages_used_this_month, usage_period_start, current_period_end, COALESCE(stripe_subscription_id, '')`

func scanBilling(row pgx.Row) (model.Billing, error) {
	var b model.Billing
	err := row.Scan(&b.BusinessID, &b.Plan, &b.Status, &b.MessagesUsedThisMonth, &b.UsagePeriodStart, &b.CurrentPeriodEnd, &b.StripeSubscriptionID)
	return b, err
}

func (s *Store) GetBilling(ctx context.Context, businessID string) (model.Billing, bool, error) {
	b, err := scanBilling(s.db.QueryRow(ctx, `SELECT `+billingColumns+` FROM billing WHERE business_id = $1`, businessID))
	if db.IsNotFound(err) {
		return model.Billing{}, false, nil
	}
	if err != nil {
		return model.Billing{}, false, err
	}
	return b, true, nil
}

// rolloverCond matches quota.NeedsRollover against the row's current values.
const rolloverCond = `current_period_end IS NOT NULL AND $3 > current_period_end
	AND (usage_period_start IS NULL OR usage_period_start <= current_period_end)`

// IncrementUsage adds count in a single statement, resetting the counter on
// the first increment after the period ended.
func (s *Store) IncrementUsage(ctx context.Context, businessID string, count int, now time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE billing
		SET messages_used_this_month = CASE WHEN `+rolloverCond+` THEN $2 ELSE messages_used_this_month + $2 END,
			usage_period_start = CASE WHEN `+rolloverCond+` THEN $3 ELSE usage_period_start END,
			updated_at = now()
		WHERE business_id = $1
	`, businessID, count, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// WithAdvisoryLock runs fn in a transaction holding the transaction-level
// advisory lock key. It reports false without calling fn when another session
// holds the lock.
func (s *Store) WithAdvisoryLock(ctx context.Context, key int64, fn func(q db.DBTX) error) (bool, error) {
	var locked bool
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, key).Scan(&locked); err != nil {
			return err
		}
		if !locked {
			return nil
		}
		return fn(tx)
	})
	return locked, err
}

func (s *Store) ListStripeBilling(ctx context.Context, q db.DBTX, limit int) ([]model.Billing, error) {
	rows, err := q.Query(ctx, `
		SELECT `+billingColumns+`
		FROM billing
		WHERE stripe_subscription_id IS NOT NULL AND stripe_subscription_id <> ''
		ORDER BY updated_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Billing
	for rows.Next() {
		b, err := scanBilling(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSubscriptionState(ctx context.Context, q db.DBTX, businessID string, status model.BillingStatus, periodEnd *time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE billing
		SET status = $2,
			current_period_end = COALESCE($3, current_period_end),
			updated_at = now()
		WHERE business_id = $1
	`, businessID, string(status), periodEnd)
	return err
}

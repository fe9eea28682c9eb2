// Package billing keeps billing status and period end in step with Stripe so
// the quota guard rolls usage over at the right time.
package billing

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	stripesubscription "github.com/stripe/stripe-go/v79/subscription"

	"github.com/md-rashed-zaman/apptflow/libs/db"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

type Store interface {
	WithAdvisoryLock(ctx context.Context, key int64, fn func(q db.DBTX) error) (bool, error)
	ListStripeBilling(ctx context.Context, q db.DBTX, limit int) ([]model.Billing, error)
	UpdateSubscriptionState(ctx context.Context, q db.DBTX, businessID string, status model.BillingStatus, periodEnd *time.Time) error
}

// SubscriptionFetcher loads one Stripe subscription.
type SubscriptionFetcher func(ctx context.Context, id string) (*stripe.Subscription, error)

type Reconciler struct {
	store       Store
	fetch       SubscriptionFetcher
	logger      *slog.Logger
	batchSize   int
	advisoryKey int64
}

type Config struct {
	StripeSecretKey string
	BatchSize       int
	AdvisoryLockKey int64
}

// NewReconciler returns nil when no Stripe key is configured.
func NewReconciler(store Store, logger *slog.Logger, cfg Config) *Reconciler {
	key := strings.TrimSpace(cfg.StripeSecretKey)
	if key == "" {
		return nil
	}
	stripe.Key = key
	return newReconciler(store, stripeFetcher, logger, cfg)
}

func newReconciler(store Store, fetch SubscriptionFetcher, logger *slog.Logger, cfg Config) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.AdvisoryLockKey == 0 {
		cfg.AdvisoryLockKey = 4242002
	}
	return &Reconciler{
		store:       store,
		fetch:       fetch,
		logger:      logger,
		batchSize:   cfg.BatchSize,
		advisoryKey: cfg.AdvisoryLockKey,
	}
}

func stripeFetcher(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return stripesubscription.Get(id, params)
}

func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.ReconcileOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReconcileOnce(ctx)
		}
	}
}

// ReconcileOnce refreshes one batch. Only the replica holding the advisory
// lock does any work.
func (r *Reconciler) ReconcileOnce(ctx context.Context) {
	updated := 0
	locked, err := r.store.WithAdvisoryLock(ctx, r.advisoryKey, func(q db.DBTX) error {
		rows, err := r.store.ListStripeBilling(ctx, q, r.batchSize)
		if err != nil {
			return err
		}
		for _, b := range rows {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sub, err := r.fetch(ctx, b.StripeSubscriptionID)
			if err != nil {
				r.logger.Warn("billing sync: fetch subscription failed", "err", err, "business_id", b.BusinessID, "stripe_subscription_id", b.StripeSubscriptionID)
				continue
			}
			status, ok := MapStatus(sub.Status)
			if !ok {
				r.logger.Info("billing sync: unmapped status", "status", sub.Status, "business_id", b.BusinessID)
				status = b.Status
			}
			var periodEnd *time.Time
			if sub.CurrentPeriodEnd > 0 {
				t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
				periodEnd = &t
			}
			if err := r.store.UpdateSubscriptionState(ctx, q, b.BusinessID, status, periodEnd); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		r.logger.Error("billing sync failed", "err", err)
		return
	}
	if !locked {
		r.logger.Debug("billing sync: lock held by another instance", "lock_key", r.advisoryKey)
		return
	}
	if updated > 0 {
		r.logger.Info("billing sync completed", "updated", updated)
	}
}

// MapStatus converts a Stripe subscription status to a billing status.
func MapStatus(s stripe.SubscriptionStatus) (model.BillingStatus, bool) {
	switch s {
	case stripe.SubscriptionStatusActive:
		return model.BillingActive, true
	case stripe.SubscriptionStatusTrialing:
		return model.BillingTrialing, true
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return model.BillingPastDue, true
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return model.BillingCancelled, true
	case stripe.SubscriptionStatusIncomplete:
		return model.BillingIncomplete, true
	}
	return "", false
}

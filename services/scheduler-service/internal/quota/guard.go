package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

const (
	ReasonNoSubscription = "no active subscription"
	ReasonNotActive      = "subscription not active"
	ReasonLimitReached   = "monthly limit reached"
)

// Store is the billing persistence the guard needs. IncrementUsage must be a
// single atomic statement with the semantics of ApplyIncrement.
type Store interface {
	GetBilling(ctx context.Context, businessID string) (model.Billing, bool, error)
	IncrementUsage(ctx context.Context, businessID string, count int, now time.Time) error
}

type Decision struct {
	Allowed bool
	Reason  string
	Used    int
	Limit   int
}

type Guard struct {
	store Store
	now   func() time.Time
}

func NewGuard(store Store, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{store: store, now: now}
}

// CheckLimit decides whether the business may send one more message in the
// current billing period.
func (g *Guard) CheckLimit(ctx context.Context, businessID string) (Decision, error) {
	b, ok, err := g.store.GetBilling(ctx, businessID)
	if err != nil {
		return Decision{}, fmt.Errorf("load billing: %w", err)
	}
	if !ok {
		return Decision{Reason: ReasonNoSubscription}, nil
	}
	if b.Status == model.BillingCancelled || b.Status == model.BillingPastDue {
		return Decision{Reason: ReasonNotActive}, nil
	}

	limit := LimitsForPlan(b.Plan).MessagesPerMonth
	used := EffectiveUsage(b, g.now())
	if used >= limit {
		return Decision{Reason: ReasonLimitReached, Used: used, Limit: limit}, nil
	}
	return Decision{Allowed: true, Used: used, Limit: limit}, nil
}

// IncrementUsage records count sent messages, rolling the period over on the
// first call after currentPeriodEnd.
func (g *Guard) IncrementUsage(ctx context.Context, businessID string, count int) error {
	if count <= 0 {
		count = 1
	}
	if err := g.store.IncrementUsage(ctx, businessID, count, g.now()); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// NeedsRollover reports whether the counter still belongs to a period that
// ended before now. After a rollover usagePeriodStart is later than
// currentPeriodEnd, so later calls accumulate until the period end advances.
func NeedsRollover(b model.Billing, now time.Time) bool {
	if b.CurrentPeriodEnd == nil || !now.After(*b.CurrentPeriodEnd) {
		return false
	}
	return b.UsagePeriodStart == nil || !b.UsagePeriodStart.After(*b.CurrentPeriodEnd)
}

// EffectiveUsage is the counter as it applies to the period containing now.
func EffectiveUsage(b model.Billing, now time.Time) int {
	if NeedsRollover(b, now) {
		return 0
	}
	return b.MessagesUsedThisMonth
}

// ApplyIncrement returns b after recording count messages at now.
func ApplyIncrement(b model.Billing, count int, now time.Time) model.Billing {
	if NeedsRollover(b, now) {
		start := now
		b.MessagesUsedThisMonth = count
		b.UsagePeriodStart = &start
		return b
	}
	b.MessagesUsedThisMonth += count
	return b
}

package quota

import "github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"

// Limits are the entitlements of a billing plan. Only MessagesPerMonth is
// enforced here; locations and seats are enforced by the dashboard.
type Limits struct {
	Plan             model.Plan `json:"plan"`
	MessagesPerMonth int        `json:"messages_per_month"`
	Locations        int        `json:"locations"`
	Seats            int        `json:"seats"`
}

func LimitsForPlan(plan model.Plan) Limits {
	switch plan {
	case model.PlanPro:
		return Limits{Plan: model.PlanPro, MessagesPerMonth: 1000, Locations: 3, Seats: 3}
	case model.PlanPremium:
		return Limits{Plan: model.PlanPremium, MessagesPerMonth: 5000, Locations: 10, Seats: 10}
	default:
		return Limits{Plan: model.PlanStarter, MessagesPerMonth: 200, Locations: 1, Seats: 1}
	}
}

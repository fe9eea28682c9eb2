package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptflow/libs/db"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

const ruleColumns = `id, business_id, type, enabled, channel, COALESCE(template_id::text, ''), delay_minutes`

func scanRule(row pgx.Row) (model.AutomationRule, error) {
	var r model.AutomationRule
	err := row.Scan(&r.ID, &r.BusinessID, &r.Type, &r.Enabled, &r.Channel, &r.TemplateID, &r.DelayMinutes)
	return r, err
}

func (s *Store) ListEnabledRules(ctx context.Context, businessID string, types []model.RuleType) ([]model.AutomationRule, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM automation_rules
		WHERE business_id = $1 AND enabled AND type = ANY($2)
		ORDER BY type, created_at
	`, businessID, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AutomationRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRule returns the enabled rule of ruleType for the business, or nil.
func (s *Store) GetRule(ctx context.Context, businessID string, ruleType model.RuleType) (*model.AutomationRule, error) {
	r, err := scanRule(s.db.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM automation_rules
		WHERE business_id = $1 AND type = $2 AND enabled
		ORDER BY created_at
		LIMIT 1
	`, businessID, string(ruleType)))
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

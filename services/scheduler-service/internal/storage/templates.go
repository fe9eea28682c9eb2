package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptflow/libs/db"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

const templateColumns = `id, business_id, COALESCE(rule_type, ''), channel, language, name, COALESCE(subject, ''), body, is_default`

func scanTemplate(row pgx.Row) (model.MessageTemplate, bool, error) {
	var t model.MessageTemplate
	err := row.Scan(&t.ID, &t.BusinessID, &t.RuleType, &t.Channel, &t.Language, &t.Name, &t.Subject, &t.Body, &t.IsDefault)
	if db.IsNotFound(err) {
		return model.MessageTemplate{}, false, nil
	}
	if err != nil {
		return model.MessageTemplate{}, false, err
	}
	return t, true, nil
}

func (s *Store) GetTemplate(ctx context.Context, businessID, templateID string) (model.MessageTemplate, bool, error) {
	return scanTemplate(s.db.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM message_templates
		WHERE id = $1 AND business_id = $2
	`, templateID, businessID))
}

func (s *Store) FindDefaultTemplate(ctx context.Context, businessID string, ruleType model.RuleType, channel model.Channel, language string) (model.MessageTemplate, bool, error) {
	return scanTemplate(s.db.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM message_templates
		WHERE business_id = $1 AND rule_type = $2 AND channel = $3 AND language = $4 AND is_default
		ORDER BY created_at DESC
		LIMIT 1
	`, businessID, string(ruleType), string(channel), language))
}

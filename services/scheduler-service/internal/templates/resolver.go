package templates

import (
	"context"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

// Store looks up templates by id and by the default composite key.
type Store interface {
	GetTemplate(ctx context.Context, businessID, templateID string) (model.MessageTemplate, bool, error)
	FindDefaultTemplate(ctx context.Context, businessID string, ruleType model.RuleType, channel model.Channel, language string) (model.MessageTemplate, bool, error)
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve picks the rule's override template when it targets the job's
// channel, otherwise the business default for (rule type, channel, language).
func (r *Resolver) Resolve(ctx context.Context, rule *model.AutomationRule, businessID string, ruleType model.RuleType, channel model.Channel, language string) (model.MessageTemplate, bool, error) {
	if rule != nil && rule.TemplateID != "" {
		tmpl, ok, err := r.store.GetTemplate(ctx, businessID, rule.TemplateID)
		if err != nil {
			return model.MessageTemplate{}, false, fmt.Errorf("load rule template: %w", err)
		}
		if ok && tmpl.Channel == channel {
			return tmpl, true, nil
		}
	}

	lang := strings.ToUpper(strings.TrimSpace(language))
	if lang == "" {
		lang = "EN"
	}
	tmpl, ok, err := r.store.FindDefaultTemplate(ctx, businessID, ruleType, channel, lang)
	if err != nil {
		return model.MessageTemplate{}, false, fmt.Errorf("find default template: %w", err)
	}
	return tmpl, ok, nil
}

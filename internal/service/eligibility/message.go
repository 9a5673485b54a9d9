package eligibility

import (
	"strings"
	"sync"

	"github.com/ignite/keylock/internal/domain"
	"github.com/ignite/keylock/internal/pkg/logger"
	"github.com/osteele/liquid"
)

// messageRenderer renders per-rule Liquid message templates. Parsed templates
// are cached by source text.
type messageRenderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

func newMessageRenderer() *messageRenderer {
	return &messageRenderer{engine: liquid.NewEngine()}
}

// render returns the rule's templated message, or fallback when the rule has
// no template or the template fails.
func (m *messageRenderer) render(rule *domain.ConflictRule, jc *JoinContext, found *conflict, fallback string) string {
	src := strings.TrimSpace(rule.MessageTemplate)
	if src == "" {
		return fallback
	}

	var tpl *liquid.Template
	if cached, ok := m.cache.Load(src); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := m.engine.ParseString(src)
		if err != nil {
			logger.Warn("rule message template invalid", "rule_id", rule.ID, "error", err)
			return fallback
		}
		m.cache.Store(src, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(bindings(rule, jc, found, fallback))
	if err != nil {
		logger.Warn("rule message template failed", "rule_id", rule.ID, "error", err)
		return fallback
	}
	return out
}

func bindings(rule *domain.ConflictRule, jc *JoinContext, found *conflict, fallback string) liquid.Bindings {
	return liquid.Bindings{
		"rule": map[string]any{
			"id":       rule.ID,
			"name":     rule.Name,
			"type":     string(rule.Type),
			"severity": string(rule.Severity),
		},
		"campaign": map[string]any{
			"id":           jc.Campaign.ID,
			"name":         jc.Campaign.Name,
			"category":     jc.Campaign.Category,
			"brand_id":     jc.Campaign.BrandID,
			"budget":       jc.Campaign.Budget,
			"payment_type": string(jc.Campaign.PaymentType),
		},
		"streamer": map[string]any{
			"id":     jc.Streamer.ID,
			"role":   jc.Streamer.Role,
			"region": jc.Streamer.Region,
		},
		"conflicts": map[string]any{
			"campaigns":  found.campaigns,
			"categories": found.categories,
			"brands":     found.brands,
		},
		"default_message": fallback,
	}
}

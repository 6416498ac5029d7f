package anomaly

import (
	"fmt"
	"strings"

	"ledgerlens/internal/config"
)

// Rule is a single declarative check against a profile and the raw payload it
// was built from. Predicates must be side-effect free; a panicking predicate
// is caught and skipped without aborting the remaining rules.
type Rule struct {
	Name      string
	Message   string
	Predicate func(p *Profile, payload map[string]any) bool
}

// builtinRules returns the statically-defined rule set.
func builtinRules(cfg config.AnomalyConfig) []Rule {
	upper := cfg.TaxRatioUpper
	lower := cfg.TaxRatioLower
	return []Rule{
		{
			Name:    "tax_gt_total",
			Message: "tax amount exceeds the total amount, likely an extraction error",
			Predicate: func(p *Profile, _ map[string]any) bool {
				return p.TaxAmount != nil && p.Amount != nil && *p.TaxAmount > *p.Amount
			},
		},
		{
			Name:    "tax_ratio_high",
			Message: fmt.Sprintf("tax ratio above %.1f%%, verify the tax category", upper*100),
			Predicate: func(p *Profile, _ map[string]any) bool {
				ratio, ok := p.taxRatio()
				return ok && ratio > upper
			},
		},
		{
			Name:    "tax_ratio_low",
			Message: fmt.Sprintf("tax ratio below %.1f%%, inconsistent with standard VAT", lower*100),
			Predicate: func(p *Profile, _ map[string]any) bool {
				if p.Amount == nil || *p.Amount <= 200 {
					return false
				}
				ratio, ok := p.taxRatio()
				return ok && ratio < lower
			},
		},
		{
			Name:    "high_meal_expense",
			Message: fmt.Sprintf("meal expense above %.0f on a single receipt, an approval voucher may be required", cfg.MealCeiling),
			Predicate: func(p *Profile, payload map[string]any) bool {
				return categoryContains(p, payload, cfg.MealKeywords) &&
					p.Amount != nil && *p.Amount > cfg.MealCeiling
			},
		},
	}
}

// evaluateRules runs every rule and collects the messages of those that fire.
// Each predicate is isolated: a panic skips that rule only.
func evaluateRules(rules []Rule, p *Profile, payload map[string]any) []string {
	var findings []string
	for _, rule := range rules {
		if safePredicate(rule, p, payload) {
			findings = append(findings, rule.Message)
		}
	}
	return findings
}

func safePredicate(rule Rule, p *Profile, payload map[string]any) (fired bool) {
	defer func() {
		if recover() != nil {
			fired = false
		}
	}()
	return rule.Predicate(p, payload)
}

func categoryContains(p *Profile, payload map[string]any, keywords []string) bool {
	category := p.Category
	if category == "" {
		if v, ok := payload["category"].(string); ok {
			category = v
		}
	}
	category = strings.ToLower(category)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(category, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

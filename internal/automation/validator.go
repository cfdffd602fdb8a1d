package automation

import (
	"fmt"
	"strings"

	"sdrops/pkg/cel"
)

// NormalizeTags trims, drops empty values and removes duplicates, keeping the
// first occurrence.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

type Validator struct {
	evaluator *cel.Evaluator
}

func NewValidator(evaluator *cel.Evaluator) *Validator {
	return &Validator{evaluator: evaluator}
}

// ValidateRule checks a complete rule before it is written and normalizes it
// in place: tags, trigger mode default and the stored action config form.
func (v *Validator) ValidateRule(rule *Rule) error {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.Name == "" {
		return fmt.Errorf("name is required")
	}

	if rule.ActionType == "" {
		return fmt.Errorf("action_type is required")
	}
	if !rule.ActionType.Valid() {
		return fmt.Errorf("invalid action_type %q, must be one of: github_issue, in_app_notification, escalate_review", rule.ActionType)
	}

	rule.TriggerTags = NormalizeTags(rule.TriggerTags)
	if len(rule.TriggerTags) == 0 {
		return fmt.Errorf("at least one trigger tag is required")
	}

	if rule.TriggerMode == "" {
		rule.TriggerMode = TriggerModeAny
	}
	if !rule.TriggerMode.Valid() {
		return fmt.Errorf("invalid trigger_mode %q, must be any or all", rule.TriggerMode)
	}

	cfg, err := NormalizeActionConfig(rule.ActionType, rule.ActionConfig)
	if err != nil {
		return err
	}
	rule.ActionConfig = cfg

	rule.Condition = strings.TrimSpace(rule.Condition)
	if rule.Condition != "" {
		if err := v.evaluator.ValidateCondition(rule.Condition); err != nil {
			return fmt.Errorf("invalid condition: %w", err)
		}
	}

	return nil
}

// RuleMalformation reports why a stored rule cannot be matched, or "" if it can.
func (v *Validator) RuleMalformation(rule Rule) string {
	switch {
	case !rule.ActionType.Valid():
		return "invalid_action_type"
	case !rule.TriggerMode.Valid():
		return "invalid_trigger_mode"
	case len(rule.TriggerTags) == 0:
		return "empty_trigger_tags"
	case rule.Condition != "" && v.evaluator.ValidateCondition(rule.Condition) != nil:
		return "invalid_condition"
	}
	return ""
}

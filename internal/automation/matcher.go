package automation

import (
	"context"

	"sdrops/internal/logger"
	"sdrops/pkg/cel"
	"sdrops/pkg/metrics"
)

// Matcher decides which rules fire for a tag change.
type Matcher struct {
	evaluator *cel.Evaluator
	validator *Validator
	logger    logger.Logger
}

func NewMatcher(evaluator *cel.Evaluator, log logger.Logger) *Matcher {
	return &Matcher{
		evaluator: evaluator,
		validator: NewValidator(evaluator),
		logger:    log,
	}
}

// MatchRules returns the enabled rules that fire for event. Rules fire only on
// newly added tags: in any mode when one of their tags was added, in all mode
// when every tag is now present and one of them was just added. Malformed
// rules are skipped.
func (m *Matcher) MatchRules(ctx context.Context, rules []Rule, event TagEvent) []Rule {
	added := event.Added()
	if len(added) == 0 {
		return nil
	}

	current := toSet(event.Tags)
	addedSet := toSet(added)

	var vars *cel.Vars
	matched := make([]Rule, 0)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		if reason := m.validator.RuleMalformation(rule); reason != "" {
			metrics.IncRuleSkipped(reason)
			m.logger.WarnwCtx(ctx, "Skipping malformed automation rule",
				"rule_id", rule.ID,
				"reason", reason,
			)
			continue
		}

		if !tagsMatch(rule, current, addedSet) {
			continue
		}

		if rule.Condition != "" {
			if vars == nil {
				vars = &cel.Vars{
					ExportID:     event.ExportID,
					Tags:         event.Tags,
					PreviousTags: event.PreviousTags,
					AddedTags:    added,
					RemovedTags:  event.Removed(),
				}
			}
			ok, err := m.evaluator.EvaluateCondition(ctx, rule.Condition, *vars)
			if err != nil {
				metrics.IncRuleSkipped("condition_error")
				m.logger.WarnwCtx(ctx, "Rule condition evaluation failed",
					"rule_id", rule.ID,
					"error", err,
				)
				continue
			}
			if !ok {
				continue
			}
		}

		metrics.IncRuleMatched(string(rule.ActionType))
		matched = append(matched, rule)
	}

	return matched
}

func tagsMatch(rule Rule, current, added map[string]struct{}) bool {
	touched := false
	for _, tag := range rule.TriggerTags {
		if _, ok := added[tag]; ok {
			touched = true
			break
		}
	}
	if !touched {
		return false
	}

	if rule.TriggerMode == TriggerModeAll {
		for _, tag := range rule.TriggerTags {
			if _, ok := current[tag]; !ok {
				return false
			}
		}
	}
	return true
}

package automation

import (
	"math"
	"sort"
	"time"

	"sdrops/internal/constants"
)

type AnalyticsStats struct {
	TotalExecutions int     `json:"total_executions"`
	SuccessCount    int     `json:"success_count"`
	ErrorCount      int     `json:"error_count"`
	PendingCount    int     `json:"pending_count"`
	SuccessRate     float64 `json:"success_rate"`
	ActiveRules     int     `json:"active_rules"`
	UniqueExports   int     `json:"unique_exports"`
}

type TrendPoint struct {
	Date    string `json:"date"`
	Total   int    `json:"total"`
	Success int    `json:"success"`
	Errors  int    `json:"errors"`
	Pending int    `json:"pending"`
}

type StatusCount struct {
	Status LogStatus `json:"status"`
	Count  int       `json:"count"`
}

type RuleBreakdown struct {
	RuleID      string     `json:"rule_id"`
	RuleName    *string    `json:"rule_name"`
	ActionType  ActionType `json:"action_type"`
	RuleEnabled bool       `json:"rule_enabled"`
	Total       int        `json:"total"`
	Success     int        `json:"success"`
	Errors      int        `json:"errors"`
}

type ActionTypeCount struct {
	ActionType ActionType `json:"action_type"`
	Count      int        `json:"count"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type RecentError struct {
	ID           string     `json:"id"`
	RuleID       *string    `json:"rule_id"`
	ExportID     string     `json:"export_id"`
	ActionType   ActionType `json:"action_type"`
	ErrorMessage *string    `json:"error_message"`
	CreatedAt    time.Time  `json:"created_at"`
	RuleName     *string    `json:"rule_name"`
}

type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

type Analytics struct {
	Stats               AnalyticsStats    `json:"stats"`
	Trend               []TrendPoint      `json:"trend"`
	StatusBreakdown     []StatusCount     `json:"status_breakdown"`
	RuleBreakdown       []RuleBreakdown   `json:"rule_breakdown"`
	ActionTypeBreakdown []ActionTypeCount `json:"action_type_breakdown"`
	TopTags             []TagCount        `json:"top_tags"`
	RecentErrors        []RecentError     `json:"recent_errors"`
	HourlyActivity      []HourCount       `json:"hourly_activity"`
}

// ComputeAnalytics aggregates rows into a snapshot. Rows are expected newest
// first, which is the order recent_errors is reported in.
func ComputeAnalytics(rows []AnalyticsRow) *Analytics {
	var (
		stats     AnalyticsStats
		rules     = make(map[string]*RuleBreakdown)
		exports   = make(map[string]struct{})
		days      = make(map[string]*TrendPoint)
		statuses  = make(map[LogStatus]int)
		actions   = make(map[ActionType]int)
		tags      = make(map[string]int)
		hourly    = make([]HourCount, 24)
		errorRows = make([]RecentError, 0, constants.AnalyticsRecentError)
	)
	for h := range hourly {
		hourly[h].Hour = h
	}

	for _, row := range rows {
		stats.TotalExecutions++
		exports[row.ExportID] = struct{}{}
		statuses[row.Status]++
		actions[row.ActionType]++

		created := row.CreatedAt.UTC()
		hourly[created.Hour()].Count++

		day := created.Format(time.DateOnly)
		point, ok := days[day]
		if !ok {
			point = &TrendPoint{Date: day}
			days[day] = point
		}
		point.Total++

		var rb *RuleBreakdown
		if row.RuleID != nil {
			rb, ok = rules[*row.RuleID]
			if !ok {
				rb = &RuleBreakdown{RuleID: *row.RuleID, RuleName: row.RuleName, ActionType: row.ActionType}
				if row.RuleEnabled != nil {
					rb.RuleEnabled = *row.RuleEnabled
				}
				rules[*row.RuleID] = rb
			}
			rb.Total++
		}

		switch row.Status {
		case StatusSuccess:
			stats.SuccessCount++
			point.Success++
			if rb != nil {
				rb.Success++
			}
		case StatusError:
			stats.ErrorCount++
			point.Errors++
			if rb != nil {
				rb.Errors++
			}
			if len(errorRows) < constants.AnalyticsRecentError {
				errorRows = append(errorRows, RecentError{
					ID:           row.ID,
					RuleID:       row.RuleID,
					ExportID:     row.ExportID,
					ActionType:   row.ActionType,
					ErrorMessage: row.ErrorMessage,
					CreatedAt:    row.CreatedAt,
					RuleName:     row.RuleName,
				})
			}
		case StatusPending:
			stats.PendingCount++
			point.Pending++
		}

		for _, tag := range row.RuleTriggerTags {
			tags[tag]++
		}
	}

	stats.ActiveRules = len(rules)
	stats.UniqueExports = len(exports)
	if stats.TotalExecutions > 0 {
		rate := float64(stats.SuccessCount) / float64(stats.TotalExecutions) * 100
		stats.SuccessRate = math.Round(rate*10) / 10
	}

	return &Analytics{
		Stats:               stats,
		Trend:               trendPoints(days),
		StatusBreakdown:     statusCounts(statuses),
		RuleBreakdown:       ruleBreakdowns(rules),
		ActionTypeBreakdown: actionTypeCounts(actions),
		TopTags:             topTags(tags, constants.AnalyticsTopTags),
		RecentErrors:        errorRows,
		HourlyActivity:      hourly,
	}
}

func trendPoints(days map[string]*TrendPoint) []TrendPoint {
	out := make([]TrendPoint, 0, len(days))
	for _, p := range days {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func statusCounts(counts map[LogStatus]int) []StatusCount {
	out := make([]StatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, StatusCount{Status: status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Status < out[j].Status
	})
	return out
}

func ruleBreakdowns(rules map[string]*RuleBreakdown) []RuleBreakdown {
	out := make([]RuleBreakdown, 0, len(rules))
	for _, rb := range rules {
		out = append(out, *rb)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out
}

func actionTypeCounts(counts map[ActionType]int) []ActionTypeCount {
	out := make([]ActionTypeCount, 0, len(counts))
	for at, n := range counts {
		out = append(out, ActionTypeCount{ActionType: at, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ActionType < out[j].ActionType
	})
	return out
}

func topTags(counts map[string]int, limit int) []TagCount {
	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

package automation

import (
	"bytes"
	"encoding/json"
	"time"
)

type TriggerMode string

const (
	TriggerModeAny TriggerMode = "any"
	TriggerModeAll TriggerMode = "all"
)

func (m TriggerMode) Valid() bool {
	return m == TriggerModeAny || m == TriggerModeAll
}

type ActionType string

const (
	ActionGitHubIssue       ActionType = "github_issue"
	ActionInAppNotification ActionType = "in_app_notification"
	ActionEscalateReview    ActionType = "escalate_review"
)

var actionTypes = []ActionType{ActionGitHubIssue, ActionInAppNotification, ActionEscalateReview}

func (a ActionType) Valid() bool {
	for _, t := range actionTypes {
		if a == t {
			return true
		}
	}
	return false
}

type LogStatus string

const (
	StatusPending LogStatus = "pending"
	StatusSuccess LogStatus = "success"
	StatusError   LogStatus = "error"
)

func (s LogStatus) Valid() bool {
	return s == StatusPending || s == StatusSuccess || s == StatusError
}

func (s LogStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

type Rule struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	Name           string          `json:"name"`
	Description    *string         `json:"description"`
	TriggerTags    []string        `json:"trigger_tags"`
	TriggerMode    TriggerMode     `json:"trigger_mode"`
	Condition      string          `json:"condition,omitempty"`
	ActionType     ActionType      `json:"action_type"`
	ActionConfig   json.RawMessage `json:"action_config" swaggertype:"object"`
	Enabled        bool            `json:"enabled"`
	CreatedBy      *string         `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TagEvent is a change of the tag set on one export.
type TagEvent struct {
	ExportID     string   `json:"export_id"`
	Tags         []string `json:"tags"`
	PreviousTags []string `json:"previous_tags"`
}

// Added returns tags present now that were not present before, in event order.
func (e TagEvent) Added() []string {
	return difference(e.Tags, e.PreviousTags)
}

func (e TagEvent) Removed() []string {
	return difference(e.PreviousTags, e.Tags)
}

func difference(a, b []string) []string {
	exclude := toSet(b)
	seen := make(map[string]struct{}, len(a))
	out := make([]string, 0)
	for _, v := range a {
		if _, ok := exclude[v]; ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

type Log struct {
	ID              string          `json:"id"`
	OrganizationID  string          `json:"organization_id"`
	RuleID          *string         `json:"rule_id"`
	ExportID        string          `json:"export_id"`
	ActionType      ActionType      `json:"action_type"`
	Status          LogStatus       `json:"status"`
	Result          json.RawMessage `json:"result" swaggertype:"object"`
	ErrorMessage    *string         `json:"error_message"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at"`
	RuleName        *string         `json:"rule_name"`
	RuleActionType  *string         `json:"rule_action_type"`
	RuleTriggerTags []string        `json:"rule_trigger_tags"`
}

// LogDetail is a log row joined with the current state of its rule.
type LogDetail struct {
	Log
	RuleActionConfig json.RawMessage `json:"rule_action_config" swaggertype:"object"`
	RuleTriggerMode  *string         `json:"rule_trigger_mode"`
	RuleDescription  *string         `json:"rule_description"`
}

// DispatchTask is one unit of work for the runtime: run rule's action for event.
// ID doubles as the execution log id.
type DispatchTask struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	TriggeredBy    string    `json:"triggered_by"`
	Rule           Rule      `json:"rule"`
	Event          TagEvent  `json:"event"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

type CreateRuleRequest struct {
	Name         string          `json:"name"`
	Description  *string         `json:"description"`
	TriggerTags  []string        `json:"trigger_tags"`
	TriggerMode  string          `json:"trigger_mode"`
	Condition    string          `json:"condition"`
	ActionType   string          `json:"action_type"`
	ActionConfig json.RawMessage `json:"action_config" swaggertype:"object"`
	Enabled      *bool           `json:"enabled"`
}

type UpdateRuleRequest struct {
	Name         *string         `json:"name"`
	Description  *string         `json:"description"`
	TriggerTags  *[]string       `json:"trigger_tags"`
	TriggerMode  *string         `json:"trigger_mode"`
	Condition    *string         `json:"condition"`
	ActionType   *string         `json:"action_type"`
	ActionConfig json.RawMessage `json:"action_config" swaggertype:"object"`
	Enabled      *bool           `json:"enabled"`
}

func (r UpdateRuleRequest) empty() bool {
	return r.Name == nil && r.Description == nil && r.TriggerTags == nil &&
		r.TriggerMode == nil && r.Condition == nil && r.ActionType == nil &&
		!r.hasActionConfig() && r.Enabled == nil
}

// hasActionConfig treats an explicit null like an absent field.
func (r UpdateRuleRequest) hasActionConfig() bool {
	raw := bytes.TrimSpace(r.ActionConfig)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

type BulkToggleRequest struct {
	IDs     []string `json:"ids"`
	Enabled *bool    `json:"enabled"`
}

type ToggleResult struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

type BulkToggleResponse struct {
	Updated int            `json:"updated"`
	Results []ToggleResult `json:"results"`
}

type IDsRequest struct {
	IDs []string `json:"ids"`
}

type DeletedCountResponse struct {
	Deleted int64 `json:"deleted"`
}

type DeletedResponse struct {
	Deleted bool `json:"deleted"`
}

type TriggerRequest struct {
	ExportID     string   `json:"export_id"`
	Tags         []string `json:"tags"`
	PreviousTags []string `json:"previous_tags"`
}

type MatchedRule struct {
	RuleID     string     `json:"rule_id"`
	RuleName   string     `json:"rule_name"`
	ActionType ActionType `json:"action_type"`
}

type TriggerResponse struct {
	Triggered int           `json:"triggered"`
	Rules     []MatchedRule `json:"rules"`
	Message   string        `json:"message,omitempty"`
}

type LogFilter struct {
	RuleID     string `form:"rule_id"`
	ExportID   string `form:"export_id"`
	Status     string `form:"status"`
	ActionType string `form:"action_type"`
	DateFrom   string `form:"date_from"`
	DateTo     string `form:"date_to"`
	Tag        string `form:"tag"`
	Search     string `form:"search"`
	SortBy     string `form:"sort_by"`
	SortDir    string `form:"sort_dir"`
	Page       int    `form:"page"`
	Limit      int    `form:"limit"`
}

type LogListResponse struct {
	Logs  []Log `json:"logs"`
	Total int   `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

type ClearFilter struct {
	RuleID        string `form:"rule_id"`
	Status        string `form:"status"`
	OlderThanDays int    `form:"older_than_days"`
}

type AnalyticsFilter struct {
	RuleID   string `form:"rule_id" json:"rule_id,omitempty"`
	Status   string `form:"status" json:"status,omitempty"`
	DateFrom string `form:"date_from" json:"date_from,omitempty"`
	DateTo   string `form:"date_to" json:"date_to,omitempty"`
}

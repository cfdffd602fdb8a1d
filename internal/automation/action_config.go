package automation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type GitHubIssueConfig struct {
	Repo      string   `json:"repo"`
	Labels    []string `json:"labels,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
	Title     string   `json:"title,omitempty"`
}

// Owner and Name split Repo, which has already been validated as owner/name.
func (c GitHubIssueConfig) Owner() string {
	owner, _, _ := strings.Cut(c.Repo, "/")
	return owner
}

func (c GitHubIssueConfig) Name() string {
	_, name, _ := strings.Cut(c.Repo, "/")
	return name
}

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

type NotificationConfig struct {
	Severity      string `json:"severity"`
	NotifyMessage string `json:"notify_message,omitempty"`
}

const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Priorities is ordered lowest first.
var Priorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

type EscalationConfig struct {
	Priority string `json:"priority"`
}

// ActionConfig holds exactly one variant, selected by Type.
type ActionConfig struct {
	Type         ActionType
	GitHubIssue  *GitHubIssueConfig
	Notification *NotificationConfig
	Escalation   *EscalationConfig
}

// ParseActionConfig strictly decodes raw for actionType, rejecting unknown
// fields, and fills in defaults. An empty or null raw decodes as {}.
func ParseActionConfig(actionType ActionType, raw json.RawMessage) (ActionConfig, error) {
	cfg := ActionConfig{Type: actionType}

	switch actionType {
	case ActionGitHubIssue:
		var c GitHubIssueConfig
		if err := strictDecode(raw, &c); err != nil {
			return cfg, err
		}
		c.Repo = strings.TrimSpace(c.Repo)
		owner, name, ok := strings.Cut(c.Repo, "/")
		if c.Repo == "" {
			return cfg, fmt.Errorf("action_config.repo is required for github_issue")
		}
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			return cfg, fmt.Errorf("action_config.repo must be in owner/name form")
		}
		c.Labels = NormalizeTags(c.Labels)
		c.Assignees = NormalizeTags(c.Assignees)
		c.Title = strings.TrimSpace(c.Title)
		cfg.GitHubIssue = &c

	case ActionInAppNotification:
		var c NotificationConfig
		if err := strictDecode(raw, &c); err != nil {
			return cfg, err
		}
		c.Severity = strings.ToLower(strings.TrimSpace(c.Severity))
		if c.Severity == "" {
			c.Severity = SeverityInfo
		}
		switch c.Severity {
		case SeverityInfo, SeverityWarning, SeverityCritical:
		default:
			return cfg, fmt.Errorf("action_config.severity must be one of info, warning, critical")
		}
		cfg.Notification = &c

	case ActionEscalateReview:
		var c EscalationConfig
		if err := strictDecode(raw, &c); err != nil {
			return cfg, err
		}
		c.Priority = strings.ToLower(strings.TrimSpace(c.Priority))
		if c.Priority == "" {
			c.Priority = PriorityMedium
		}
		if PriorityRank(c.Priority) < 0 {
			return cfg, fmt.Errorf("action_config.priority must be one of %s", strings.Join(Priorities, ", "))
		}
		cfg.Escalation = &c

	default:
		return cfg, fmt.Errorf("invalid action_type %q, must be one of: github_issue, in_app_notification, escalate_review", actionType)
	}

	return cfg, nil
}

// MarshalJSON encodes the active variant only.
func (c ActionConfig) MarshalJSON() ([]byte, error) {
	switch {
	case c.GitHubIssue != nil:
		return json.Marshal(c.GitHubIssue)
	case c.Notification != nil:
		return json.Marshal(c.Notification)
	case c.Escalation != nil:
		return json.Marshal(c.Escalation)
	}
	return []byte("{}"), nil
}

// NormalizeActionConfig validates raw and returns the stored form.
func NormalizeActionConfig(actionType ActionType, raw json.RawMessage) (json.RawMessage, error) {
	cfg, err := ParseActionConfig(actionType, raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cfg)
}

func PriorityRank(priority string) int {
	for i, p := range Priorities {
		if p == priority {
			return i
		}
	}
	return -1
}

func strictDecode(raw json.RawMessage, v interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid action_config: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("invalid action_config: trailing data")
	}
	return nil
}

// RenderTemplate substitutes {rule_name}, {export_id}, {tags} and {added_tags}.
func RenderTemplate(tmpl string, rule Rule, event TagEvent) string {
	r := strings.NewReplacer(
		"{rule_name}", rule.Name,
		"{export_id}", event.ExportID,
		"{tags}", strings.Join(event.Tags, ", "),
		"{added_tags}", strings.Join(event.Added(), ", "),
	)
	return r.Replace(tmpl)
}

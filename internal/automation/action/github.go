package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"sdrops/internal/automation"
	"sdrops/internal/config"
	"sdrops/internal/constants"
	"sdrops/pkg/circuitbreaker"
)

const defaultIssueTitle = "[Automation] {rule_name}: {export_id}"

// GitHubIssues opens an issue in the configured repository.
type GitHubIssues struct {
	client  *http.Client
	baseURL string
	token   string
	breaker *circuitbreaker.Wrapper
}

func NewGitHubIssues(cfg config.GitHubConfig, cbCfg config.CircuitBreakerConfig) *GitHubIssues {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	baseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}

	return &GitHubIssues{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		token:   cfg.Token,
		breaker: circuitbreaker.NewWrapper(circuitbreaker.FromConfig("github", cbCfg)),
	}
}

type issueRequest struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Labels    []string `json:"labels,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
}

type issueResponse struct {
	HTMLURL string `json:"html_url"`
	Number  int    `json:"number"`
}

type IssueResult struct {
	IssueURL    string `json:"issue_url"`
	IssueNumber int    `json:"issue_number"`
}

// APIError is a non-2xx answer from GitHub.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github returned %d: %s", e.Status, e.Message)
}

func (g *GitHubIssues) Execute(ctx context.Context, task automation.DispatchTask, cfg automation.ActionConfig) (interface{}, error) {
	if cfg.GitHubIssue == nil {
		return nil, fmt.Errorf("missing github_issue config")
	}
	if g.token == "" {
		return nil, fmt.Errorf("github token is not configured")
	}
	gh := cfg.GitHubIssue

	titleTmpl := gh.Title
	if titleTmpl == "" {
		titleTmpl = defaultIssueTitle
	}
	payload, err := json.Marshal(issueRequest{
		Title:     automation.RenderTemplate(titleTmpl, task.Rule, task.Event),
		Body:      issueBody(task),
		Labels:    gh.Labels,
		Assignees: gh.Assignees,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode issue: %w", err)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/issues", g.baseURL, url.PathEscape(gh.Owner()), url.PathEscape(gh.Name()))

	// Client errors are returned as values so they do not count against the breaker.
	out, err := g.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		return g.post(ctx, endpoint, payload)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, fmt.Errorf("github unavailable: %w", err)
	}
	if err != nil {
		return nil, err
	}
	if apiErr, ok := out.(*APIError); ok {
		return nil, apiErr
	}

	issue := out.(*issueResponse)
	return IssueResult{IssueURL: issue.HTMLURL, IssueNumber: issue.Number}, nil
}

func (g *GitHubIssues) post(ctx context.Context, endpoint string, payload []byte) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read github response: %w", err)
	}

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(body, resp.Status)}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, apiErr
		}
		return apiErr, nil
	}

	var issue issueResponse
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("failed to decode github response: %w", err)
	}
	return &issue, nil
}

func errorMessage(body []byte, fallback string) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return fallback
}

func issueBody(task automation.DispatchTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automation rule **%s** matched export `%s`.\n\n", task.Rule.Name, task.Event.ExportID)
	fmt.Fprintf(&b, "- Added tags: %s\n", joinOrNone(task.Event.Added()))
	fmt.Fprintf(&b, "- Current tags: %s\n", joinOrNone(task.Event.Tags))
	fmt.Fprintf(&b, "- Rule ID: `%s`\n", task.Rule.ID)
	if task.TriggeredBy != "" {
		fmt.Fprintf(&b, "- Triggered by: %s\n", task.TriggeredBy)
	}
	return b.String()
}

func joinOrNone(tags []string) string {
	if len(tags) == 0 {
		return "none"
	}
	return strings.Join(tags, ", ")
}

package automation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdrops/internal/auth"
	"sdrops/internal/logger"
	pkgerrors "sdrops/pkg/errors"
	"sdrops/pkg/cel"
)

type captureRuntime struct {
	mu    sync.Mutex
	tasks []DispatchTask
	err   error
}

func (r *captureRuntime) Submit(_ context.Context, task DispatchTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *captureRuntime) Close() error { return nil }

type serviceFixture struct {
	svc     Service
	rules   *memRuleRepo
	logs    *memLogRepo
	runtime *captureRuntime
}

func newServiceFixture(t *testing.T, rules ...Rule) *serviceFixture {
	t.Helper()
	eval, err := cel.NewEvaluator()
	require.NoError(t, err)

	f := &serviceFixture{
		rules:   newMemRuleRepo(rules...),
		logs:    newMemLogRepo(),
		runtime: &captureRuntime{},
	}
	f.svc = NewService(f.rules, f.logs, NewMatcher(eval, logger.NopLogger()), NewValidator(eval), f.runtime, logger.NopLogger())
	return f
}

func orgCtx(org string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UserID: "user-1", OrganizationID: org})
}

func storedRule(id, org string, mode TriggerMode, tags ...string) Rule {
	r := rule(id, mode, tags...)
	r.OrganizationID = org
	r.ActionConfig = json.RawMessage(`{"severity":"info"}`)
	return r
}

func TestServiceRequiresIdentity(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.ListRules(context.Background())
	assert.True(t, pkgerrors.IsUnauthorized(err))

	_, err = f.svc.Trigger(context.Background(), TriggerRequest{ExportID: "e1"})
	assert.True(t, pkgerrors.IsUnauthorized(err))
}

func TestServiceCreateRule(t *testing.T) {
	f := newServiceFixture(t)
	ctx := orgCtx("org-1")

	created, err := f.svc.CreateRule(ctx, CreateRuleRequest{
		Name:         "  Hot leads ",
		TriggerTags:  []string{"hot", " hot", ""},
		ActionType:   "escalate_review",
		ActionConfig: json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "org-1", created.OrganizationID)
	assert.Equal(t, "Hot leads", created.Name)
	assert.Equal(t, []string{"hot"}, created.TriggerTags)
	assert.Equal(t, TriggerModeAny, created.TriggerMode)
	assert.True(t, created.Enabled)
	require.NotNil(t, created.CreatedBy)
	assert.Equal(t, "user-1", *created.CreatedBy)
	assert.JSONEq(t, `{"priority":"medium"}`, string(created.ActionConfig))

	got, err := f.svc.GetRule(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)

	_, err = f.svc.GetRule(orgCtx("org-2"), created.ID)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestServiceCreateRuleValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateRuleRequest
		wantMsg string
	}{
		{
			name:    "missing name",
			req:     CreateRuleRequest{TriggerTags: []string{"a"}, ActionType: "escalate_review"},
			wantMsg: "name is required",
		},
		{
			name:    "bad action type",
			req:     CreateRuleRequest{Name: "n", TriggerTags: []string{"a"}, ActionType: "fax"},
			wantMsg: "invalid action_type",
		},
		{
			name:    "no tags",
			req:     CreateRuleRequest{Name: "n", TriggerTags: []string{" "}, ActionType: "escalate_review"},
			wantMsg: "trigger tag",
		},
		{
			name:    "bad mode",
			req:     CreateRuleRequest{Name: "n", TriggerTags: []string{"a"}, TriggerMode: "some", ActionType: "escalate_review"},
			wantMsg: "trigger_mode",
		},
		{
			name:    "config for another variant",
			req:     CreateRuleRequest{Name: "n", TriggerTags: []string{"a"}, ActionType: "escalate_review", ActionConfig: json.RawMessage(`{"repo":"a/b"}`)},
			wantMsg: "repo",
		},
		{
			name:    "github without repo",
			req:     CreateRuleRequest{Name: "n", TriggerTags: []string{"a"}, ActionType: "github_issue", ActionConfig: json.RawMessage(`{}`)},
			wantMsg: "repo is required",
		},
		{
			name:    "bad condition",
			req:     CreateRuleRequest{Name: "n", TriggerTags: []string{"a"}, ActionType: "escalate_review", Condition: "size(tags)"},
			wantMsg: "invalid condition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			_, err := f.svc.CreateRule(orgCtx("org-1"), tt.req)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
			assert.Contains(t, pkgerrors.ToErrorResponse(err).Error, tt.wantMsg)
		})
	}
}

func TestServiceUpdateRule(t *testing.T) {
	existing := storedRule("r1", "org-1", TriggerModeAny, "hot")
	f := newServiceFixture(t, existing)
	ctx := orgCtx("org-1")

	_, err := f.svc.UpdateRule(ctx, "r1", UpdateRuleRequest{})
	assert.True(t, pkgerrors.IsValidation(err))

	name := "Renamed"
	mode := "all"
	tags := []string{"hot", "vip"}
	updated, err := f.svc.UpdateRule(ctx, "r1", UpdateRuleRequest{Name: &name, TriggerMode: &mode, TriggerTags: &tags})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, TriggerModeAll, updated.TriggerMode)
	assert.Equal(t, []string{"hot", "vip"}, updated.TriggerTags)
	assert.Equal(t, ActionInAppNotification, updated.ActionType)

	// switching the action type revalidates the stored config
	actionType := "github_issue"
	_, err = f.svc.UpdateRule(ctx, "r1", UpdateRuleRequest{ActionType: &actionType})
	assert.True(t, pkgerrors.IsValidation(err))

	updated, err = f.svc.UpdateRule(ctx, "r1", UpdateRuleRequest{
		ActionType:   &actionType,
		ActionConfig: json.RawMessage(`{"repo":"acme/leads"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, ActionGitHubIssue, updated.ActionType)

	_, err = f.svc.UpdateRule(ctx, "missing", UpdateRuleRequest{Name: &name})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestServiceUpdateRuleNullActionConfig(t *testing.T) {
	existing := storedRule("r1", "org-1", TriggerModeAny, "hot")
	existing.ActionConfig = json.RawMessage(`{"severity":"critical"}`)
	f := newServiceFixture(t, existing)
	ctx := orgCtx("org-1")

	_, err := f.svc.UpdateRule(ctx, "r1", UpdateRuleRequest{ActionConfig: json.RawMessage(`null`)})
	assert.True(t, pkgerrors.IsValidation(err))

	name := "Renamed"
	updated, err := f.svc.UpdateRule(ctx, "r1", UpdateRuleRequest{Name: &name, ActionConfig: json.RawMessage(` null `)})
	require.NoError(t, err)

	cfg, err := ParseActionConfig(ActionInAppNotification, updated.ActionConfig)
	require.NoError(t, err)
	require.NotNil(t, cfg.Notification)
	assert.Equal(t, SeverityCritical, cfg.Notification.Severity)
}

func TestServiceBulkOperations(t *testing.T) {
	f := newServiceFixture(t,
		storedRule("r1", "org-1", TriggerModeAny, "a"),
		storedRule("r2", "org-1", TriggerModeAny, "b"),
		storedRule("r3", "org-2", TriggerModeAny, "c"),
	)
	ctx := orgCtx("org-1")

	_, err := f.svc.BulkToggle(ctx, BulkToggleRequest{IDs: []string{"r1"}})
	assert.True(t, pkgerrors.IsValidation(err))
	_, err = f.svc.BulkToggle(ctx, BulkToggleRequest{Enabled: boolPtr(true)})
	assert.True(t, pkgerrors.IsValidation(err))

	toggled, err := f.svc.BulkToggle(ctx, BulkToggleRequest{IDs: []string{"r1", "r2", "r3"}, Enabled: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, 2, toggled.Updated)
	assert.ElementsMatch(t, []ToggleResult{{ID: "r1"}, {ID: "r2"}}, toggled.Results)

	_, err = f.svc.BulkDeleteRules(ctx, IDsRequest{})
	assert.True(t, pkgerrors.IsValidation(err))

	deleted, err := f.svc.BulkDeleteRules(ctx, IDsRequest{IDs: []string{"r1", "r3"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted.Deleted)

	single, err := f.svc.DeleteRule(ctx, "r2")
	require.NoError(t, err)
	assert.True(t, single.Deleted)

	_, err = f.svc.DeleteRule(ctx, "r2")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestServiceTrigger(t *testing.T) {
	f := newServiceFixture(t,
		storedRule("r-any", "org-1", TriggerModeAny, "hot"),
		storedRule("r-all", "org-1", TriggerModeAll, "hot", "vip"),
		storedRule("r-other", "org-2", TriggerModeAny, "hot"),
	)
	ctx := orgCtx("org-1")

	_, err := f.svc.Trigger(ctx, TriggerRequest{Tags: []string{"hot"}})
	assert.True(t, pkgerrors.IsValidation(err))

	resp, err := f.svc.Trigger(ctx, TriggerRequest{ExportID: "e1", Tags: []string{"hot"}, PreviousTags: []string{"hot"}})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Triggered)
	assert.Equal(t, "No new tags added", resp.Message)

	resp, err = f.svc.Trigger(ctx, TriggerRequest{ExportID: "e1", Tags: []string{"cold"}})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Triggered)
	assert.Equal(t, "No matching automation rules", resp.Message)
	assert.Empty(t, f.runtime.tasks)

	resp, err = f.svc.Trigger(ctx, TriggerRequest{ExportID: "e1", Tags: []string{"hot", "vip"}})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Triggered)
	assert.Empty(t, resp.Message)
	assert.ElementsMatch(t, []string{"r-any", "r-all"}, []string{resp.Rules[0].RuleID, resp.Rules[1].RuleID})

	require.Len(t, f.runtime.tasks, 2)
	for _, task := range f.runtime.tasks {
		assert.NotEmpty(t, task.ID)
		assert.Equal(t, "org-1", task.OrganizationID)
		assert.Equal(t, "user-1", task.TriggeredBy)
		assert.Equal(t, "e1", task.Event.ExportID)
		assert.False(t, task.SubmittedAt.IsZero())
	}
	assert.NotEqual(t, f.runtime.tasks[0].ID, f.runtime.tasks[1].ID)
}

func TestServiceTriggerSubmitFailureRecordsErrorRow(t *testing.T) {
	f := newServiceFixture(t, storedRule("r1", "org-1", TriggerModeAny, "hot"))
	f.runtime.err = pkgerrors.ErrServiceUnavailable.WithMessage("dispatch queue is full")

	resp, err := f.svc.Trigger(orgCtx("org-1"), TriggerRequest{ExportID: "e1", Tags: []string{"hot"}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Triggered)

	require.Equal(t, 1, f.logs.count())
	logs, _, err := f.logs.ListLogs(context.Background(), "org-1", LogFilter{})
	require.NoError(t, err)
	assert.Equal(t, StatusError, logs[0].Status)
	require.NotNil(t, logs[0].ErrorMessage)
	assert.Contains(t, *logs[0].ErrorMessage, "dispatch queue is full")
	assert.Equal(t, "r1", *logs[0].RuleID)
}

func TestServiceTriggerStorageFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.rules.err = errors.New("connection reset")

	_, err := f.svc.Trigger(orgCtx("org-1"), TriggerRequest{ExportID: "e1", Tags: []string{"hot"}})
	require.Error(t, err)
	assert.Equal(t, 500, pkgerrors.ToHTTPStatus(err))
	assert.Equal(t, "internal server error", pkgerrors.ToErrorResponse(err).Error)
}

func TestServiceLogs(t *testing.T) {
	f := newServiceFixture(t)
	ctx := orgCtx("org-1")
	require.NoError(t, f.logs.InsertTerminal(ctx, &Log{ID: "l1", OrganizationID: "org-1", Status: StatusSuccess}))
	require.NoError(t, f.logs.InsertTerminal(ctx, &Log{ID: "l2", OrganizationID: "org-1", Status: StatusError}))
	require.NoError(t, f.logs.InsertTerminal(ctx, &Log{ID: "l3", OrganizationID: "org-2", Status: StatusError}))

	list, err := f.svc.ListLogs(ctx, LogFilter{Page: -2, Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 200, list.Limit)
	assert.Equal(t, 200, f.logs.listFilter.Limit)

	_, err = f.svc.GetLog(ctx, "l3")
	assert.True(t, pkgerrors.IsNotFound(err))

	_, err = f.svc.BulkDeleteLogs(ctx, IDsRequest{IDs: []string{" "}})
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = f.svc.ClearLogs(ctx, ClearFilter{})
	assert.True(t, pkgerrors.IsValidation(err))
	_, err = f.svc.ClearLogs(ctx, ClearFilter{Status: "exploded"})
	assert.True(t, pkgerrors.IsValidation(err))
	_, err = f.svc.ClearLogs(ctx, ClearFilter{OlderThanDays: -3})
	assert.True(t, pkgerrors.IsValidation(err))

	cleared, err := f.svc.ClearLogs(ctx, ClearFilter{Status: "error"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared.Deleted)

	deleted, err := f.svc.BulkDeleteLogs(ctx, IDsRequest{IDs: []string{"l1", "l3"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted.Deleted)
}

type countingCache struct {
	stored map[string]*Analytics
	gets   int
}

func (c *countingCache) Get(_ context.Context, org string, filter AnalyticsFilter) (*Analytics, bool) {
	c.gets++
	a, ok := c.stored[analyticsCacheKey(org, filter)]
	return a, ok
}

func (c *countingCache) Set(_ context.Context, org string, filter AnalyticsFilter, a *Analytics) {
	c.stored[analyticsCacheKey(org, filter)] = a
}

func TestServiceAnalyticsUsesCache(t *testing.T) {
	eval, err := cel.NewEvaluator()
	require.NoError(t, err)

	logs := newMemLogRepo()
	logs.analytics = analyticsFixture()
	cache := &countingCache{stored: make(map[string]*Analytics)}
	svc := NewService(newMemRuleRepo(), logs, NewMatcher(eval, logger.NopLogger()), NewValidator(eval), &captureRuntime{}, logger.NopLogger(),
		WithAnalyticsCache(cache), WithAnalyticsMaxRows(3))
	ctx := orgCtx("org-1")

	first, err := svc.Analytics(ctx, AnalyticsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Stats.TotalExecutions)

	logs.analytics = nil
	second, err := svc.Analytics(ctx, AnalyticsFilter{})
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 2, cache.gets)

	_, err = svc.Analytics(ctx, AnalyticsFilter{DateFrom: "yesterday"})
	assert.True(t, pkgerrors.IsValidation(err))
}

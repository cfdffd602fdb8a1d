package automation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdrops/internal/logger"
)

func dispatchTask(id string, actionType ActionType, cfg string) DispatchTask {
	return DispatchTask{
		ID:             id,
		OrganizationID: "org-1",
		TriggeredBy:    "user-1",
		Rule: Rule{
			ID:             "rule-1",
			OrganizationID: "org-1",
			Name:           "Hot leads",
			TriggerTags:    []string{"hot"},
			TriggerMode:    TriggerModeAny,
			ActionType:     actionType,
			ActionConfig:   json.RawMessage(cfg),
			Enabled:        true,
		},
		Event: TagEvent{ExportID: "exp-1", Tags: []string{"hot"}},
	}
}

func TestDispatchSuccess(t *testing.T) {
	logs := newMemLogRepo()
	d := NewDispatcher(logs, time.Second, logger.NopLogger())

	var gotCfg ActionConfig
	d.Register(ActionEscalateReview, ExecutorFunc(func(_ context.Context, task DispatchTask, cfg ActionConfig) (interface{}, error) {
		gotCfg = cfg
		return map[string]string{"escalation_id": "esc-1"}, nil
	}))

	require.NoError(t, d.Dispatch(context.Background(), dispatchTask("t1", ActionEscalateReview, `{"priority":"high"}`)))

	entry, ok := logs.get("t1")
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, entry.Status)
	assert.JSONEq(t, `{"escalation_id":"esc-1"}`, string(entry.Result))
	assert.Nil(t, entry.ErrorMessage)
	assert.NotNil(t, entry.CompletedAt)
	assert.Equal(t, "exp-1", entry.ExportID)
	require.NotNil(t, entry.RuleID)
	assert.Equal(t, "rule-1", *entry.RuleID)
	require.NotNil(t, gotCfg.Escalation)
	assert.Equal(t, "high", gotCfg.Escalation.Priority)
}

func TestDispatchRecordsActionFailure(t *testing.T) {
	tests := []struct {
		name      string
		task      DispatchTask
		executor  Executor
		wantError string
	}{
		{
			name: "executor error",
			task: dispatchTask("t1", ActionGitHubIssue, `{"repo":"acme/leads"}`),
			executor: ExecutorFunc(func(context.Context, DispatchTask, ActionConfig) (interface{}, error) {
				return nil, errors.New("github returned 422: Validation Failed")
			}),
			wantError: "github returned 422: Validation Failed",
		},
		{
			name: "panic",
			task: dispatchTask("t2", ActionGitHubIssue, `{"repo":"acme/leads"}`),
			executor: ExecutorFunc(func(context.Context, DispatchTask, ActionConfig) (interface{}, error) {
				panic("nil map")
			}),
			wantError: "action panicked: nil map",
		},
		{
			name:      "unknown action type",
			task:      dispatchTask("t3", ActionType("send_fax"), `{}`),
			wantError: `unsupported action type "send_fax"`,
		},
		{
			name:      "invalid stored config",
			task:      dispatchTask("t4", ActionGitHubIssue, `{"repo":"nope"}`),
			executor:  ExecutorFunc(func(context.Context, DispatchTask, ActionConfig) (interface{}, error) { return nil, nil }),
			wantError: "invalid action config",
		},
		{
			name: "timeout",
			task: dispatchTask("t5", ActionInAppNotification, `{}`),
			executor: ExecutorFunc(func(ctx context.Context, _ DispatchTask, _ ActionConfig) (interface{}, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}),
			wantError: context.DeadlineExceeded.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := newMemLogRepo()
			d := NewDispatcher(logs, 50*time.Millisecond, logger.NopLogger())
			if tt.executor != nil {
				d.Register(tt.task.Rule.ActionType, tt.executor)
			}

			require.NoError(t, d.Dispatch(context.Background(), tt.task))

			entry, ok := logs.get(tt.task.ID)
			require.True(t, ok)
			assert.Equal(t, StatusError, entry.Status)
			require.NotNil(t, entry.ErrorMessage)
			assert.Contains(t, *entry.ErrorMessage, tt.wantError)
		})
	}
}

func TestDispatchIsIdempotentOnRedelivery(t *testing.T) {
	logs := newMemLogRepo()
	d := NewDispatcher(logs, time.Second, logger.NopLogger())

	calls := 0
	d.Register(ActionInAppNotification, ExecutorFunc(func(context.Context, DispatchTask, ActionConfig) (interface{}, error) {
		calls++
		return map[string]string{"notification_id": "n1"}, nil
	}))

	task := dispatchTask("t1", ActionInAppNotification, `{}`)
	require.NoError(t, d.Dispatch(context.Background(), task))
	require.NoError(t, d.Dispatch(context.Background(), task))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, logs.count())
}

func TestDispatchReturnsStorageErrors(t *testing.T) {
	storageErr := errors.New("connection refused")

	t.Run("create pending", func(t *testing.T) {
		logs := newMemLogRepo()
		logs.createErr = storageErr
		d := NewDispatcher(logs, time.Second, logger.NopLogger())

		err := d.Dispatch(context.Background(), dispatchTask("t1", ActionInAppNotification, `{}`))
		assert.ErrorIs(t, err, storageErr)
	})

	t.Run("resolve", func(t *testing.T) {
		logs := newMemLogRepo()
		logs.resolveErr = storageErr
		d := NewDispatcher(logs, time.Second, logger.NopLogger())
		d.Register(ActionInAppNotification, ExecutorFunc(func(context.Context, DispatchTask, ActionConfig) (interface{}, error) {
			return nil, nil
		}))

		err := d.Dispatch(context.Background(), dispatchTask("t1", ActionInAppNotification, `{}`))
		assert.ErrorIs(t, err, storageErr)

		entry, ok := logs.get("t1")
		require.True(t, ok)
		assert.Equal(t, StatusPending, entry.Status)
	})
}

func TestDispatchRecordsOutcomeWhenCancelledMidAction(t *testing.T) {
	logs := newMemLogRepo()
	logs.honorCtx = true
	d := NewDispatcher(logs, time.Second, logger.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Register(ActionEscalateReview, ExecutorFunc(func(ctx context.Context, _ DispatchTask, _ ActionConfig) (interface{}, error) {
		cancel()
		return nil, ctx.Err()
	}))

	require.NoError(t, d.Dispatch(ctx, dispatchTask("t1", ActionEscalateReview, `{}`)))

	entry, ok := logs.get("t1")
	require.True(t, ok)
	assert.Equal(t, StatusError, entry.Status)
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, context.Canceled.Error())
}

func TestDispatchResumesPendingRowOnRedelivery(t *testing.T) {
	logs := newMemLogRepo()
	d := NewDispatcher(logs, time.Second, logger.NopLogger())
	d.Register(ActionInAppNotification, ExecutorFunc(func(context.Context, DispatchTask, ActionConfig) (interface{}, error) {
		return map[string]string{"notification_id": "n1"}, nil
	}))

	task := dispatchTask("t1", ActionInAppNotification, `{}`)
	ruleID := task.Rule.ID
	_, err := logs.CreatePending(context.Background(), &Log{ID: task.ID, OrganizationID: task.OrganizationID, RuleID: &ruleID})
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(context.Background(), task))

	entry, ok := logs.get("t1")
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, entry.Status)
}

func TestDispatchSkipsDeletedRule(t *testing.T) {
	logs := newMemLogRepo()
	logs.deletedRules = map[string]bool{"rule-1": true}
	d := NewDispatcher(logs, time.Second, logger.NopLogger())

	calls := 0
	d.Register(ActionInAppNotification, ExecutorFunc(func(context.Context, DispatchTask, ActionConfig) (interface{}, error) {
		calls++
		return nil, nil
	}))

	require.NoError(t, d.Dispatch(context.Background(), dispatchTask("t1", ActionInAppNotification, `{}`)))

	assert.Zero(t, calls)
	assert.Zero(t, logs.count())
}

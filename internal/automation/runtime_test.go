package automation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdrops/internal/constants"
	"sdrops/internal/logger"
	pkgerrors "sdrops/pkg/errors"
	"sdrops/pkg/logging"
	"sdrops/pkg/models"
	"sdrops/pkg/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}
}

func TestInlineRuntimeRunsAndRetries(t *testing.T) {
	var attempts int32
	done := make(chan string, 1)

	rt := NewInlineRuntime(func(ctx context.Context, task DispatchTask) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("db unavailable")
		}
		done <- logging.GetRequestID(ctx)
		return nil
	}, 1, 4, fastPolicy(), logger.NopLogger())
	defer rt.Close()

	ctx, cancel := context.WithCancel(logging.WithRequestID(context.Background(), "req-1"))
	require.NoError(t, rt.Submit(ctx, DispatchTask{ID: "t1"}))
	cancel()

	select {
	case requestID := <-done:
		assert.Equal(t, "req-1", requestID)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not executed")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestInlineRuntimeQueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	rt := NewInlineRuntime(func(context.Context, DispatchTask) error {
		started <- struct{}{}
		<-release
		return nil
	}, 1, 1, fastPolicy(), logger.NopLogger())

	require.NoError(t, rt.Submit(context.Background(), DispatchTask{ID: "running"}))
	<-started
	require.NoError(t, rt.Submit(context.Background(), DispatchTask{ID: "queued"}))

	err := rt.Submit(context.Background(), DispatchTask{ID: "rejected"})
	require.Error(t, err)
	assert.Equal(t, 503, pkgerrors.ToHTTPStatus(err))

	close(release)
	require.NoError(t, rt.Close())
}

func TestInlineRuntimeCloseDrainsQueue(t *testing.T) {
	var mu sync.Mutex
	seen := make([]string, 0)

	rt := NewInlineRuntime(func(_ context.Context, task DispatchTask) error {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		seen = append(seen, task.ID)
		mu.Unlock()
		return nil
	}, 2, 10, fastPolicy(), logger.NopLogger())

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, rt.Submit(context.Background(), DispatchTask{ID: id}))
	}
	require.NoError(t, rt.Close())

	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, seen)

	err := rt.Submit(context.Background(), DispatchTask{ID: "late"})
	assert.True(t, errors.Is(err, pkgerrors.ErrServiceUnavailable))
	assert.NoError(t, rt.Close())
}

func TestInlineRuntimeSurvivesPanics(t *testing.T) {
	done := make(chan struct{}, 1)
	rt := NewInlineRuntime(func(_ context.Context, task DispatchTask) error {
		if task.ID == "boom" {
			panic("unexpected")
		}
		done <- struct{}{}
		return nil
	}, 1, 4, fastPolicy(), logger.NopLogger())
	defer rt.Close()

	require.NoError(t, rt.Submit(context.Background(), DispatchTask{ID: "boom"}))
	require.NoError(t, rt.Submit(context.Background(), DispatchTask{ID: "ok"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
}

type recordingProducer struct {
	mu       sync.Mutex
	topic    string
	messages []models.TaskEnvelope
	err      error
}

func (p *recordingProducer) Publish(_ context.Context, topic string, msg models.TaskEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestBrokerRuntimeRoundTrip(t *testing.T) {
	producer := &recordingProducer{}
	rt := NewBrokerRuntime(producer, "automation.dispatch", constants.ServiceNameAPI)

	task := dispatchTask("t1", ActionEscalateReview, `{"priority":"high"}`)
	task.SubmittedAt = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	ctx := logging.WithRequestID(context.Background(), "req-9")
	require.NoError(t, rt.Submit(ctx, task))

	require.Len(t, producer.messages, 1)
	env := producer.messages[0]
	assert.Equal(t, "automation.dispatch", producer.topic)
	assert.Equal(t, "t1", env.ID)
	assert.Equal(t, constants.TaskKindDispatch, env.Kind)
	assert.Equal(t, "org-1", env.Metadata.OrganizationID)
	assert.Equal(t, "req-9", env.Metadata.RequestID)
	assert.True(t, task.SubmittedAt.Equal(env.Timestamp))

	var got DispatchTask
	handler := NewTaskHandler(func(_ context.Context, task DispatchTask) error {
		got = task
		return nil
	})
	require.NoError(t, handler(context.Background(), env))
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, task.Rule.Name, got.Rule.Name)
	assert.JSONEq(t, `{"priority":"high"}`, string(got.Rule.ActionConfig))
	assert.Equal(t, task.Event, got.Event)
}

func TestBrokerRuntimePublishFailure(t *testing.T) {
	rt := NewBrokerRuntime(&recordingProducer{err: errors.New("no brokers")}, "t", "api")

	err := rt.Submit(context.Background(), dispatchTask("t1", ActionInAppNotification, `{}`))
	require.Error(t, err)
	assert.Equal(t, 503, pkgerrors.ToHTTPStatus(err))
}

func TestTaskHandlerRejectsBadEnvelopes(t *testing.T) {
	handler := NewTaskHandler(func(context.Context, DispatchTask) error { return nil })

	tests := []struct {
		name string
		env  models.TaskEnvelope
	}{
		{name: "wrong kind", env: models.TaskEnvelope{ID: "t1", Kind: "other", Payload: []byte(`{"id":"t1"}`)}},
		{name: "bad payload", env: models.TaskEnvelope{ID: "t1", Kind: constants.TaskKindDispatch, Payload: []byte(`[`)}},
		{name: "id mismatch", env: models.TaskEnvelope{ID: "t1", Kind: constants.TaskKindDispatch, Payload: []byte(`{"id":"t2"}`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler(context.Background(), tt.env)
			require.Error(t, err)
			assert.True(t, retry.IsFatal(err))
		})
	}
}

func TestTaskHandlerPassesStepErrorsThrough(t *testing.T) {
	stepErr := errors.New("db down")
	handler := NewTaskHandler(func(context.Context, DispatchTask) error { return stepErr })

	env, err := NewTaskEnvelope(context.Background(), DispatchTask{ID: "t1", OrganizationID: "org-1"}, "api")
	require.NoError(t, err)

	err = handler(context.Background(), *env)
	assert.ErrorIs(t, err, stepErr)
	assert.False(t, retry.IsFatal(err))
}

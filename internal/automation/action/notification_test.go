package action

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdrops/internal/automation"
	"sdrops/internal/logger"
)

type memNotificationStore struct {
	mu         sync.Mutex
	byDispatch map[string]Notification
	err        error
}

func newMemNotificationStore() *memNotificationStore {
	return &memNotificationStore{byDispatch: make(map[string]Notification)}
}

func (s *memNotificationStore) Insert(_ context.Context, n Notification) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Notification{}, s.err
	}
	if existing, ok := s.byDispatch[n.DispatchID]; ok {
		return existing, nil
	}
	s.byDispatch[n.DispatchID] = n
	return n, nil
}

func TestNotificationsStoresAndPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sub := client.Subscribe(context.Background(), "automation:notifications:org-1")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	store := newMemNotificationStore()
	n := NewNotifications(store, client, "", logger.NopLogger())

	cfg := parse(automation.ActionInAppNotification, `{"severity":"warning"}`)
	out, err := n.Execute(context.Background(), task(automation.ActionInAppNotification, ""), cfg)
	require.NoError(t, err)

	result := out.(NotificationResult)
	assert.Equal(t, "warning", result.Severity)
	assert.NotEmpty(t, result.NotificationID)

	stored := store.byDispatch["task-1"]
	assert.Equal(t, `Rule "Hot leads" matched export exp-9 (added: hot)`, stored.Message)
	assert.Equal(t, "rule-1", stored.RuleID)

	select {
	case msg := <-sub.Channel():
		var published Notification
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &published))
		assert.Equal(t, result.NotificationID, published.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not published")
	}
}

func TestNotificationsIdempotentPerDispatch(t *testing.T) {
	store := newMemNotificationStore()
	n := NewNotifications(store, nil, "", logger.NopLogger())
	cfg := parse(automation.ActionInAppNotification, `{"severity":"info","notify_message":"{export_id} is hot"}`)

	first, err := n.Execute(context.Background(), task(automation.ActionInAppNotification, ""), cfg)
	require.NoError(t, err)
	second, err := n.Execute(context.Background(), task(automation.ActionInAppNotification, ""), cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, store.byDispatch, 1)
	assert.Equal(t, "exp-9 is hot", store.byDispatch["task-1"].Message)
}

func TestNotificationsPublishFailureIsNotFatal(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	n := NewNotifications(newMemNotificationStore(), client, "custom:", logger.NopLogger())
	assert.Equal(t, "custom:org-1", n.Channel("org-1"))

	cfg := parse(automation.ActionInAppNotification, `{"severity":"info"}`)
	_, err := n.Execute(context.Background(), task(automation.ActionInAppNotification, ""), cfg)
	assert.NoError(t, err)
}

func TestNotificationsStoreError(t *testing.T) {
	store := newMemNotificationStore()
	store.err = errors.New("db down")
	n := NewNotifications(store, nil, "", logger.NopLogger())

	cfg := parse(automation.ActionInAppNotification, `{"severity":"info"}`)
	_, err := n.Execute(context.Background(), task(automation.ActionInAppNotification, ""), cfg)
	assert.EqualError(t, err, "db down")
}

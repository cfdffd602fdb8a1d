package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdrops/internal/config"
)

func TestWrapperTripsAfterFailures(t *testing.T) {
	w := NewWrapper(FromConfig("github-test", config.CircuitBreakerConfig{
		MinRequests:  2,
		FailureRatio: 0.5,
		Timeout:      time.Minute,
	}))

	boom := errors.New("upstream 502")
	for i := 0; i < 2; i++ {
		_, err := w.ExecuteWithContext(context.Background(), func() (interface{}, error) {
			return nil, boom
		})
		require.ErrorIs(t, err, boom)
	}

	assert.True(t, w.IsOpen())

	called := false
	_, err := w.ExecuteWithContext(context.Background(), func() (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestWrapperPassesResult(t *testing.T) {
	w := NewWrapper(DefaultConfig("ok-test"))

	res, err := w.ExecuteWithContext(context.Background(), func() (interface{}, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Equal(t, gobreaker.StateClosed, w.State())
}

func TestWrapperCancelledContext(t *testing.T) {
	w := NewWrapper(DefaultConfig("ctx-test"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.ExecuteWithContext(ctx, func() (interface{}, error) {
		t.Fatal("should not run")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromConfigDefaults(t *testing.T) {
	c := FromConfig("x", config.CircuitBreakerConfig{})
	assert.Equal(t, uint32(3), c.MaxRequests)
	assert.Equal(t, 60*time.Second, c.Timeout)
	assert.False(t, c.ReadyToTrip(gobreaker.Counts{Requests: 2, TotalFailures: 2}))
	assert.True(t, c.ReadyToTrip(gobreaker.Counts{Requests: 4, TotalFailures: 2}))
}

package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapperOpensAfterFailureRatio(t *testing.T) {
	w := NewWrapper(Config{
		Name:         "webhook-test",
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	})
	ctx := context.Background()
	boom := errors.New("refused")

	require.ErrorIs(t, w.Execute(ctx, func() error { return boom }), boom)
	assert.False(t, w.IsOpen())
	require.ErrorIs(t, w.Execute(ctx, func() error { return boom }), boom)
	assert.True(t, w.IsOpen())

	called := false
	err := w.Execute(ctx, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.False(t, called)
}

func TestWrapperStaysClosedOnSuccess(t *testing.T) {
	w := NewWrapper(DefaultConfig("webhook-ok"))
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Execute(context.Background(), func() error { return nil }))
	}
	assert.Equal(t, gobreaker.StateClosed, w.State())
	assert.Equal(t, "webhook-ok", w.Name())
}

func TestWrapperRejectsCancelledContext(t *testing.T) {
	w := NewWrapper(DefaultConfig("webhook-ctx"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Execute(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

package lib

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPollSucceedsAfterRetries(t *testing.T) {
	errNotReady := errors.New("not ready")

	attempts := 0
	err := Poll(context.Background(), time.Second, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errNotReady
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestPollTimeout(t *testing.T) {
	errNotReady := errors.New("not ready")

	err := Poll(context.Background(), 5*time.Millisecond, time.Millisecond, func() error {
		return errNotReady
	})

	require.ErrorIs(t, err, errNotReady)
}

func TestPollContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Poll(ctx, time.Minute, time.Millisecond, func() error {
		return errors.New("not ready")
	})

	require.ErrorIs(t, err, context.Canceled)
}

package container

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverError(t *testing.T) {
	assert.Nil(t, NewDriverError("click", "#x", nil))

	err := NewDriverError("click", "#x", errBoom)
	assert.EqualError(t, err, `driver click "#x": boom`)
	assert.ErrorIs(t, err, errBoom)

	wrapped := fmt.Errorf("pass: %w", err)
	assert.Equal(t, wrapped, NewDriverError("detect state", "#y", wrapped), "already a driver error")

	var de *DriverError
	require.True(t, errors.As(wrapped, &de))
	assert.Equal(t, "click", de.Op)
}

func TestFatal(t *testing.T) {
	assert.Nil(t, Fatal(nil))
	assert.False(t, IsFatal(errBoom))

	err := Fatal(errBoom)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, errBoom)
	assert.True(t, IsFatal(fmt.Errorf("refresh: %w", err)))
}

func TestLifecycleViolationUnwrap(t *testing.T) {
	destroyed := &LifecycleViolation{ContainerID: "c", State: StateDestroyed, Op: "refresh"}
	assert.ErrorIs(t, destroyed, ErrDestroyed)
	assert.Contains(t, destroyed.Error(), "refresh not allowed in state destroyed")

	failed := &LifecycleViolation{ContainerID: "c", State: StateFailed, Op: "start"}
	assert.False(t, errors.Is(failed, ErrDestroyed))
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after a transient failure", func(t *testing.T) {
		attempts := 0
		v, err := Retry(ctx, 1, func() (int, error) {
			attempts++
			if attempts == 1 {
				return 0, errBoom
			}
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, v)
		assert.Equal(t, 2, attempts)
	})

	t.Run("gives up after the budget", func(t *testing.T) {
		attempts := 0
		_, err := Retry(ctx, 1, func() (int, error) {
			attempts++
			return 0, errBoom
		})
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 2, attempts)
	})

	t.Run("fatal errors are not retried", func(t *testing.T) {
		attempts := 0
		_, err := Retry(ctx, 3, func() (string, error) {
			attempts++
			return "", Fatal(errBoom)
		})
		assert.True(t, IsFatal(err))
		assert.Equal(t, 1, attempts)
	})

	t.Run("zero retries runs once", func(t *testing.T) {
		attempts := 0
		_, err := Retry(ctx, 0, func() (int, error) {
			attempts++
			return 0, errBoom
		})
		assert.Error(t, err)
		assert.Equal(t, 1, attempts)
	})
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/quarry/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond}
}

func TestDo_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "should succeed on first try")
}

func TestDo_EventualSuccess(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return core.ErrCapability
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts, "should succeed on third attempt")
}

func TestDo_AllAttemptsFail(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		attempts++
		return core.ErrSourceUnavailable
	})
	assert.ErrorIs(t, err, core.ErrSourceUnavailable)
	assert.Equal(t, 3, attempts, "should attempt exactly maxAttempts times")
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		attempts++
		return core.ErrNotAPDF
	})
	assert.ErrorIs(t, err, core.ErrNotAPDF)
	assert.Equal(t, 1, attempts)
}

func TestDo_CustomRetryable(t *testing.T) {
	attempts := 0
	policy := fastPolicy(3)
	policy.Retryable = func(error) bool { return true }
	err := Do(context.Background(), policy, func(context.Context) error {
		attempts++
		return errors.New("anything")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Do(ctx, fastPolicy(5), func(context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return core.ErrCapability
	})
	assert.ErrorIs(t, err, core.ErrCapability)
	assert.Equal(t, 2, attempts)
}

func TestDo_AttemptTimeoutIsTransient(t *testing.T) {
	attempts := 0
	policy := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Timeout: 10 * time.Millisecond}
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, core.ErrCapabilityTimeout)
	assert.Equal(t, 2, attempts)
}

func TestDo_InvalidMaxAttempts(t *testing.T) {
	err := Do(context.Background(), Policy{}, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}

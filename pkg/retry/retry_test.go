package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDoRetriesDependencyErrorsUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("conn reset"), "load cart")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(2), func(context.Context) error {
		calls++
		return pkgerrors.New(pkgerrors.CodeCartVersionConflict, "stale")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeCartVersionConflict))
}

func TestDoDoesNotRetryDomainErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "only 2 left")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))
}

func TestDoDoesNotRetryUntypedErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return errors.New("plain")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDisabledRunsOnce(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Disabled(), func(context.Context) error {
		calls++
		return pkgerrors.New(pkgerrors.CodeDependency, "down")
	})
	assert.Equal(t, 1, calls)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(pkgerrors.New(pkgerrors.CodeDependency, "x")))
	assert.False(t, Retryable(pkgerrors.New(pkgerrors.CodeInternal, "x")))
	assert.False(t, Retryable(nil))
}

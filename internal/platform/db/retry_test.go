package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{Base: time.Millisecond, Cap: 4 * time.Millisecond, MaxRetries: 3}
}

func TestRetryPolicyRetriesThreeTimes(t *testing.T) {
	calls := 0
	boom := errors.New("connection reset")
	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls, "one attempt plus three retries")
}

func TestRetryPolicyStopsOnSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryPolicyDoesNotRetryNoRows(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return pgx.ErrNoRows
	})
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	assert.Equal(t, 1, calls)
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, time.Second, p.Base)
	assert.Equal(t, 30*time.Second, p.Cap)
	assert.EqualValues(t, 3, p.MaxRetries)
}

package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), StoreRetryConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     1.0,
	}
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(eris.New("flaky"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_DoesNotRetryPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), StoreRetryConfig(), func(ctx context.Context) error {
		calls++
		return eris.New("constraint violation")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_StoreBusyExhaustsAtTwoAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), StoreRetryConfig(), func(ctx context.Context) error {
		calls++
		return eris.New("database is locked")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoVal_PreservesValue(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}
	calls := 0
	v, err := DoVal(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, NewTransientError(eris.New("blip"), 500)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDo_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, RetryConfig{MaxAttempts: 5, InitialBackoff: 10 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientError(eris.New("flaky"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsStoreBusy(t *testing.T) {
	assert.True(t, IsStoreBusy(eris.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, IsStoreBusy(eris.New("database is busy")))
	assert.False(t, IsStoreBusy(eris.New("no such table: json_payload_cache")))
	assert.False(t, IsStoreBusy(nil))
}

func TestIsSchemaMissing(t *testing.T) {
	assert.True(t, IsSchemaMissing(eris.New("SQL logic error: no such table: csv_payload_cache")))
	assert.False(t, IsSchemaMissing(eris.New("database is locked")))
	assert.False(t, IsSchemaMissing(nil))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "code %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), "code %d", code)
	}
}

package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequence(statuses ...Status) Fetcher[int] {
	calls := 0
	return func(context.Context) (int, Status, error) {
		i := calls
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		calls++
		return calls, statuses[i], nil
	}
}

func TestUntil_Completes(t *testing.T) {
	var changes []Status
	got, err := Until(context.Background(), sequence(StatusPending, StatusProcessing, StatusProcessing, StatusCompleted), Options{
		Interval: time.Millisecond,
		Timeout:  time.Second,
		OnChange: func(s Status) { changes = append(changes, s) },
	})

	require.NoError(t, err)
	assert.Equal(t, 4, got)
	assert.Equal(t, []Status{StatusPending, StatusProcessing, StatusCompleted}, changes)
}

func TestUntil_Failed(t *testing.T) {
	_, err := Until(context.Background(), sequence(StatusPending, StatusFailed), Options{
		Interval: time.Millisecond,
		Timeout:  time.Second,
	})
	assert.ErrorIs(t, err, ErrJobFailed)
}

func TestUntil_Timeout(t *testing.T) {
	_, err := Until(context.Background(), sequence(StatusPending), Options{
		Interval: 5 * time.Millisecond,
		Timeout:  30 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestUntil_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Until(ctx, sequence(StatusPending), Options{Interval: time.Millisecond, Timeout: time.Second})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestUntil_RetriesTransientErrors(t *testing.T) {
	calls := 0
	var reported []error
	fetch := func(context.Context) (string, Status, error) {
		calls++
		if calls < 3 {
			return "", "", errors.New("connection reset")
		}
		return "done", StatusCompleted, nil
	}

	got, err := Until(context.Background(), fetch, Options{
		Interval: time.Millisecond,
		Timeout:  time.Second,
		OnError:  func(err error) { reported = append(reported, err) },
	})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Len(t, reported, 2)
}

func TestUntil_PermanentError(t *testing.T) {
	boom := errors.New("job not found")
	fetch := func(context.Context) (string, Status, error) {
		return "", "", backoff.Permanent(boom)
	}

	_, err := Until(context.Background(), fetch, Options{Interval: time.Millisecond, Timeout: time.Second})
	assert.ErrorIs(t, err, boom)
}

func TestUntil_UnknownStatus(t *testing.T) {
	_, err := Until(context.Background(), sequence(Status("queued")), Options{Interval: time.Millisecond, Timeout: time.Second})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job status")
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

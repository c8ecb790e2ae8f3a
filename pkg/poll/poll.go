// Package poll waits for asynchronous upstream jobs to reach a terminal state.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var (
	ErrTimeout   = errors.New("poll: timed out waiting for job")
	ErrJobFailed = errors.New("poll: job failed")

	errNotDone = errors.New("job not finished")
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Fetcher reports the current job snapshot. Errors wrapped with
// backoff.Permanent stop polling, any other error is retried.
type Fetcher[T any] func(ctx context.Context) (T, Status, error)

type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	// OnChange is called every time the observed status differs from the previous one.
	OnChange func(Status)
	// OnError is called for every retried fetch error.
	OnError func(error)
}

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 10 * time.Minute
)

// Until calls fetch every Interval until the job completes, fails or Timeout passes.
// The last fetched snapshot is returned together with the error.
func Until[T any](ctx context.Context, fetch Fetcher[T], opts Options) (T, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	pollCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var (
		last T
		seen Status
	)

	operation := func() error {
		snapshot, status, err := fetch(pollCtx)
		if err != nil {
			return err
		}
		if !status.Valid() {
			return backoff.Permanent(fmt.Errorf("poll: unknown job status %q", status))
		}

		last = snapshot
		if status != seen {
			seen = status
			if opts.OnChange != nil {
				opts.OnChange(status)
			}
		}

		switch status {
		case StatusCompleted:
			return nil
		case StatusFailed:
			return backoff.Permanent(ErrJobFailed)
		default:
			return errNotDone
		}
	}

	notify := func(err error, _ time.Duration) {
		if opts.OnError != nil && !errors.Is(err, errNotDone) {
			opts.OnError(err)
		}
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(opts.Interval), pollCtx)
	err := backoff.RetryNotify(operation, policy, notify)
	if err == nil {
		return last, nil
	}

	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return last, ErrTimeout
	}
	if errors.Is(err, errNotDone) {
		return last, ErrTimeout
	}
	return last, err
}

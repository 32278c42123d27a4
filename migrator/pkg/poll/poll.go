package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	log "github.com/sirupsen/logrus"
)

// ErrTimeout is returned when the condition is still unmet after the last
// allowed attempt or once the deadline has passed.
var ErrTimeout = errors.New("condition not met before the polling bound")

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// CheckFunc is evaluated once per attempt. done=true stops polling with success;
// a non-nil error stops polling immediately and is returned as is.
type CheckFunc func(ctx context.Context, attempt int) (done bool, err error)

// Options bound a poll. At least one of MaxAttempts and Timeout must be set.
type Options struct {
	Name string

	// Interval between attempts. With MaxInterval and Factor unset the interval
	// is fixed.
	Interval    time.Duration
	MaxInterval time.Duration
	Factor      float64

	MaxAttempts int
	Timeout     time.Duration

	Sleep SleepFunc
	Now   func() time.Time

	// OnAttempt, when set, is called after every unsuccessful attempt.
	OnAttempt func(attempt int)
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Until evaluates check until it reports done, returns an error, or the bound
// is reached. It returns the number of attempts made.
func Until(ctx context.Context, opts Options, check CheckFunc) (int, error) {
	if opts.MaxAttempts <= 0 && opts.Timeout <= 0 {
		return 0, fmt.Errorf("poll %v: refusing to poll without an attempt or time bound", opts.Name)
	}
	if opts.Interval <= 0 {
		return 0, fmt.Errorf("poll %v: interval must be positive, got %v", opts.Name, opts.Interval)
	}

	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	b := &backoff.Backoff{
		Min:    opts.Interval,
		Max:    opts.Interval,
		Factor: 1,
		Jitter: false,
	}
	if opts.MaxInterval > opts.Interval {
		b.Max = opts.MaxInterval
		b.Factor = opts.Factor
		if b.Factor < 1 {
			b.Factor = 2
		}
	}

	start := now()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, fmt.Errorf("poll %v interrupted: %w", opts.Name, err)
		}

		done, err := check(ctx, attempt)
		if err != nil {
			return attempt, err
		}
		if done {
			log.Debugf("Poll %v succeeded after %v attempt(s).", opts.Name, attempt)
			return attempt, nil
		}
		if opts.OnAttempt != nil {
			opts.OnAttempt(attempt)
		}

		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			return attempt, fmt.Errorf("poll %v: %w after %v attempts", opts.Name, ErrTimeout, attempt)
		}

		delay := b.Duration()
		if opts.Timeout > 0 && now().Sub(start)+delay > opts.Timeout {
			return attempt, fmt.Errorf("poll %v: %w after %v", opts.Name, ErrTimeout, opts.Timeout)
		}

		log.Debugf("Poll %v attempt %v not done, next check in %v.", opts.Name, attempt, delay)
		if err := sleep(ctx, delay); err != nil {
			return attempt, fmt.Errorf("poll %v interrupted: %w", opts.Name, err)
		}
	}
}

package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func TestUntil_SucceedsOnThirdAttempt(t *testing.T) {
	clock := newFakeClock()
	results := []bool{false, false, true}

	attempts, err := Until(context.Background(), Options{
		Name:        "test",
		Interval:    30 * time.Second,
		MaxAttempts: 60,
		Sleep:       clock.Sleep,
		Now:         clock.Now,
	}, func(ctx context.Context, attempt int) (bool, error) {
		return results[attempt-1], nil
	})

	require.Nil(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, clock.sleeps)
}

func TestUntil_MaxAttempts(t *testing.T) {
	clock := newFakeClock()
	calls := 0

	attempts, err := Until(context.Background(), Options{
		Interval:    time.Second,
		MaxAttempts: 5,
		Sleep:       clock.Sleep,
		Now:         clock.Now,
	}, func(ctx context.Context, attempt int) (bool, error) {
		calls++
		return false, nil
	})

	require.True(t, errors.Is(err, ErrTimeout))
	require.Equal(t, 5, attempts)
	require.Equal(t, 5, calls)
	require.Len(t, clock.sleeps, 4)
}

func TestUntil_Timeout(t *testing.T) {
	clock := newFakeClock()

	attempts, err := Until(context.Background(), Options{
		Interval: 30 * time.Second,
		Timeout:  2 * time.Minute,
		Sleep:    clock.Sleep,
		Now:      clock.Now,
	}, func(ctx context.Context, attempt int) (bool, error) {
		return false, nil
	})

	require.True(t, errors.Is(err, ErrTimeout))
	require.Equal(t, 5, attempts)
	require.Equal(t, 2*time.Minute, clock.now.Sub(newFakeClock().now))
}

func TestUntil_CheckErrorStopsImmediately(t *testing.T) {
	clock := newFakeClock()
	failure := errors.New("snapshot failed")

	attempts, err := Until(context.Background(), Options{
		Interval:    time.Second,
		MaxAttempts: 10,
		Sleep:       clock.Sleep,
		Now:         clock.Now,
	}, func(ctx context.Context, attempt int) (bool, error) {
		if attempt == 2 {
			return false, failure
		}
		return false, nil
	})

	require.Equal(t, failure, err)
	require.Equal(t, 2, attempts)
	require.Len(t, clock.sleeps, 1)
}

func TestUntil_RequiresBound(t *testing.T) {
	_, err := Until(context.Background(), Options{Interval: time.Second},
		func(ctx context.Context, attempt int) (bool, error) {
			t.Fatal("check must not run")
			return false, nil
		})
	require.Error(t, err)
}

func TestUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts, err := Until(ctx, Options{
		Interval:    time.Hour,
		MaxAttempts: 3,
	}, func(ctx context.Context, attempt int) (bool, error) {
		cancel()
		return false, nil
	})

	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, 1, attempts)
}

func TestUntil_GrowingInterval(t *testing.T) {
	clock := newFakeClock()

	_, err := Until(context.Background(), Options{
		Interval:    time.Second,
		MaxInterval: 4 * time.Second,
		Factor:      2,
		MaxAttempts: 5,
		Sleep:       clock.Sleep,
		Now:         clock.Now,
	}, func(ctx context.Context, attempt int) (bool, error) {
		return false, nil
	})

	require.True(t, errors.Is(err, ErrTimeout))
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}, clock.sleeps)
}

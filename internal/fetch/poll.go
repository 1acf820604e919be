package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrPollTimeout means the awaited result did not show up in time. It is not
// a rejection: the operation may still complete later.
var ErrPollTimeout = errors.New("polling timed out")

// PollOptions shape the backoff of PollUntil. Zero fields take the defaults.
type PollOptions struct {
	Timeout    time.Duration
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultPoll is 90s overall, starting at 500ms and growing 1.5x up to 5s.
var DefaultPoll = PollOptions{
	Timeout:    90 * time.Second,
	BaseDelay:  500 * time.Millisecond,
	MaxDelay:   5 * time.Second,
	Multiplier: 1.5,
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultPoll.Timeout
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultPoll.BaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultPoll.MaxDelay
	}
	if o.Multiplier < 1 {
		o.Multiplier = DefaultPoll.Multiplier
	}
	return o
}

// Delay is the wait after the attempt-th failed try, starting at 1. It never
// exceeds MaxDelay.
func (o PollOptions) Delay(attempt int) time.Duration {
	o = o.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(o.BaseDelay) * math.Pow(o.Multiplier, float64(attempt-1))
	if d >= float64(o.MaxDelay) || math.IsInf(d, 1) {
		return o.MaxDelay
	}
	return time.Duration(d)
}

// PollUntil calls fn until it reports done, fails, or the timeout passes. fn
// returning (_, false, nil) means "not yet". A wait that would overshoot the
// deadline is cut short so fn gets one final try at the deadline.
func PollUntil[T any](ctx context.Context, opts PollOptions, fn func(context.Context) (T, bool, error)) (T, error) {
	var zero T
	opts = opts.withDefaults()
	deadline := time.Now().Add(opts.Timeout)

	for attempt := 1; ; attempt++ {
		v, done, err := fn(ctx)
		if err != nil {
			return zero, err
		}
		if done {
			return v, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return zero, fmt.Errorf("%w after %s", ErrPollTimeout, opts.Timeout)
		}
		wait := min(opts.Delay(attempt), remaining)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

// Package await layers retried queries on top of the query engine: the
// poll-with-timeout pattern test code uses to ride out animations and
// asynchronous state changes. Each poll runs against a freshly fetched
// root; coherence across polls is explicitly not promised.
package await

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chenhan1218/autopilot/internal/introspection"
	"github.com/chenhan1218/autopilot/internal/proxy"
	"github.com/chenhan1218/autopilot/internal/query"
)

// Sentinel outcomes. A caller-initiated abort is Cancelled, never
// Timeout; assertions treat the two very differently.
var (
	ErrTimeout   = errors.New("condition not met before deadline")
	ErrCancelled = errors.New("wait cancelled")
)

// Options tunes the poll loop. Interval grows by doubling up to
// MaxInterval, so a condition that flips early is seen within one small
// interval while a slow one doesn't hammer the transport.
type Options struct {
	Interval    time.Duration
	MaxInterval time.Duration
}

// DefaultOptions matches the polling cadence of the original tool's
// wait surface.
var DefaultOptions = Options{
	Interval:    100 * time.Millisecond,
	MaxInterval: time.Second,
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultOptions.Interval
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = DefaultOptions.MaxInterval
	}
	if o.MaxInterval < o.Interval {
		o.MaxInterval = o.Interval
	}
	return o
}

// For polls SelectSingle against sess until it returns a match or timeout
// elapses. NoMatch results keep the loop going; an ambiguous result
// propagates immediately since more polling will not disambiguate it.
// Cancelling ctx returns ErrCancelled without leaking the poll loop.
func For(ctx context.Context, sess *proxy.Session, q query.Query, timeout time.Duration, opts Options) (*proxy.Proxy, error) {
	var match *proxy.Proxy
	err := poll(ctx, timeout, opts, func(pollCtx context.Context) (bool, error) {
		root, err := freshRoot(pollCtx, sess)
		if err != nil {
			return false, err
		}
		p, err := query.SelectSingle(pollCtx, root, q)
		if err != nil {
			var noMatch *introspection.NoMatchError
			if errors.As(err, &noMatch) {
				return false, nil
			}
			return false, err
		}
		match = p
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", q.String(), err)
	}
	return match, nil
}

// UntilGone polls until no node under the root matches q, for asserting
// that a widget disappeared.
func UntilGone(ctx context.Context, sess *proxy.Session, q query.Query, timeout time.Duration, opts Options) error {
	err := poll(ctx, timeout, opts, func(pollCtx context.Context) (bool, error) {
		root, err := freshRoot(pollCtx, sess)
		if err != nil {
			return false, err
		}
		matches, err := query.Select(pollCtx, root, q)
		if err != nil {
			return false, err
		}
		return len(matches) == 0, nil
	})
	if err != nil {
		return fmt.Errorf("waiting for %s to go: %w", q.String(), err)
	}
	return nil
}

// freshRoot invalidates the session cache and refetches the root, so each
// poll observes current tree state rather than a remembered one.
func freshRoot(ctx context.Context, sess *proxy.Session) (*proxy.Proxy, error) {
	sess.Invalidate()
	return sess.Root(ctx)
}

// poll runs check until it reports done, the timeout elapses (ErrTimeout)
// or ctx is cancelled (ErrCancelled). It never busy-spins: between
// checks it sleeps the current interval, which doubles up to the cap.
func poll(ctx context.Context, timeout time.Duration, opts Options, check func(context.Context) (bool, error)) error {
	opts = opts.withDefaults()
	deadline := time.Now().Add(timeout)

	interval := opts.Interval
	for {
		done, err := check(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			}
			return err
		}
		if done {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w (after %s)", ErrTimeout, timeout)
		}
		sleep := interval
		if sleep > remaining {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		case <-timer.C:
		}
		interval *= 2
		if interval > opts.MaxInterval {
			interval = opts.MaxInterval
		}
	}
}

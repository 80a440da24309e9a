package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chenhan1218/autopilot/internal/introspection"
)

// transientError marks a failure that is worth retrying: the bus was
// momentarily busy, a frame timed out, etc. A disconnect is never
// transient.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so the retry layer knows it may retry the call.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// RetryPolicy bounds how often a transient failure is retried and how long
// to back off between attempts. The delay doubles per attempt up to MaxDelay.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy suits a local bus: a few quick retries, capped well
// below any caller-visible wait interval.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:  3,
	BaseDelay: 25 * time.Millisecond,
	MaxDelay:  200 * time.Millisecond,
}

// WithRetry wraps conn so transient fetch failures are retried per policy.
// Once attempts exhaust, the failure surfaces as ErrSourceDisconnected:
// at that point the endpoint is treated as gone and the connection dead.
func WithRetry(conn Conn, policy RetryPolicy) Conn {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &retryConn{conn: conn, policy: policy}
}

type retryConn struct {
	conn   Conn
	policy RetryPolicy
}

func (r *retryConn) Source() introspection.SourceInfo { return r.conn.Source() }
func (r *retryConn) Close() error                     { return r.conn.Close() }

func (r *retryConn) Root(ctx context.Context) (introspection.NodeID, error) {
	var id introspection.NodeID
	err := r.retry(ctx, func() error {
		var err error
		id, err = r.conn.Root(ctx)
		return err
	})
	return id, err
}

func (r *retryConn) FetchNode(ctx context.Context, id introspection.NodeID) (introspection.Node, error) {
	var node introspection.Node
	err := r.retry(ctx, func() error {
		var err error
		node, err = r.conn.FetchNode(ctx, id)
		return err
	})
	return node, err
}

func (r *retryConn) FetchChildren(ctx context.Context, id introspection.NodeID) ([]introspection.NodeID, error) {
	var children []introspection.NodeID
	err := r.retry(ctx, func() error {
		var err error
		children, err = r.conn.FetchChildren(ctx, id)
		return err
	})
	return children, err
}

func (r *retryConn) retry(ctx context.Context, call func() error) error {
	delay := r.policy.BaseDelay
	var last error
	for attempt := 0; attempt < r.policy.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if r.policy.MaxDelay > 0 && delay > r.policy.MaxDelay {
				delay = r.policy.MaxDelay
			}
		}
		err := call()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		last = err
	}
	return fmt.Errorf("%w: retries exhausted: %v", introspection.ErrSourceDisconnected, last)
}

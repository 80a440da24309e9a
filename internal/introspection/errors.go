package introspection

import (
	"errors"
	"fmt"
)

// Sentinel errors for the introspection taxonomy. Transport-transient
// failures are retried inside the transport layer and only surface as
// ErrSourceDisconnected once retries exhaust; everything else propagates
// to the caller unmodified.
var (
	// ErrConnectionNotFound: Connect was given a source id that is not
	// (or no longer) on the bus.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrSourceDisconnected: the source's endpoint went away. Terminal;
	// every proxy built on the source is stale from this point on.
	ErrSourceDisconnected = errors.New("source disconnected")

	// ErrNodeNotFound: the node id does not resolve against the source's
	// current tree.
	ErrNodeNotFound = errors.New("node not found")

	// ErrAttributeNotFound: the node exists but carries no attribute with
	// the requested name. Lookups fail rather than returning a default.
	ErrAttributeNotFound = errors.New("attribute not found")

	// ErrStaleProxy: the proxy's node id no longer resolves, or its source
	// has disconnected. Recover by re-running the originating query, never
	// by retrying the same handle.
	ErrStaleProxy = errors.New("stale proxy")
)

// NoMatchError is returned by SelectSingle when zero nodes satisfy the
// predicate. It is deliberately distinct from AmbiguousMatchError so test
// failures say which of the two situations the author has to fix.
type NoMatchError struct {
	Query string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no node matches %s", e.Query)
}

// AmbiguousMatchError is returned by SelectSingle when more than one node
// satisfies the predicate. Count equals the length SelectMany would have
// returned; First describes the deterministic first match in traversal
// order, for debuggability.
type AmbiguousMatchError struct {
	Query string
	Count int
	First string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("%d nodes match %s (first: %s)", e.Count, e.Query, e.First)
}

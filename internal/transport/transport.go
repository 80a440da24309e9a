// Package transport connects to introspection endpoints on the bus and
// exchanges request/response messages with them. It owns discovery, the
// wire protocol, and the retry policy; it does not cache tree state.
package transport

import (
	"context"

	"github.com/chenhan1218/autopilot/internal/introspection"
)

// Bus discovers introspection endpoints and opens connections to them.
type Bus interface {
	// ListSources enumerates the endpoints currently on the bus, ordered
	// by discovery time. Re-invoking re-enumerates live connections.
	ListSources(ctx context.Context) ([]introspection.SourceInfo, error)

	// Connect opens a channel to one endpoint. Fails with
	// introspection.ErrConnectionNotFound if the id is not on the bus.
	Connect(ctx context.Context, id introspection.SourceID) (Conn, error)
}

// Conn is one open channel to a source's introspection endpoint.
//
// Concurrent calls are safe to issue interleaved; the implementation
// serializes or multiplexes them internally. Callers must not assume
// atomicity across a multi-call traversal: the remote tree can change
// between any two fetches.
type Conn interface {
	// Source describes the endpoint this connection is attached to.
	Source() introspection.SourceInfo

	// Root returns the id of the tree's root node.
	Root(ctx context.Context) (introspection.NodeID, error)

	// FetchNode retrieves a node snapshot. Fails with ErrNodeNotFound if
	// the id does not resolve, or ErrSourceDisconnected if the endpoint
	// has gone away.
	FetchNode(ctx context.Context, id introspection.NodeID) (introspection.Node, error)

	// FetchChildren retrieves a node's child ids in tree order.
	FetchChildren(ctx context.Context, id introspection.NodeID) ([]introspection.NodeID, error)

	// Close releases the channel. Safe to call more than once.
	Close() error
}

// Package proxy builds local handles over a remote introspection tree.
// A Session owns one transport connection plus a short-lived node-state
// cache; Proxies are views onto nodes that refetch on access unless
// explicitly frozen.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chenhan1218/autopilot/internal/introspection"
	"github.com/chenhan1218/autopilot/internal/transport"
)

// cacheSize bounds how many node states a session keeps. Target trees can
// be arbitrarily wide; the LRU keeps traversal working sets hot without
// holding the whole tree.
const cacheSize = 4096

// DefaultStateTTL is how long a cached node state satisfies reads before
// the session refetches. Small enough that a proxy behaves as a live view;
// large enough that reading five attributes in one assertion is one fetch.
const DefaultStateTTL = 100 * time.Millisecond

type cachedState struct {
	node      introspection.Node
	fetchedAt time.Time
}

// Session wraps one connection to an introspection source. It is the
// cache scope for a logical test: call Invalidate between tests to drop
// every remembered node state.
type Session struct {
	conn  transport.Conn
	ttl   time.Duration
	cache *lru.Cache[introspection.NodeID, cachedState]
}

// NewSession builds a session over conn with the default state TTL.
func NewSession(conn transport.Conn) *Session {
	return NewSessionTTL(conn, DefaultStateTTL)
}

// NewSessionTTL builds a session with an explicit state TTL. A ttl of 0
// disables caching entirely: every read is a fresh fetch.
func NewSessionTTL(conn transport.Conn, ttl time.Duration) *Session {
	cache, err := lru.New[introspection.NodeID, cachedState](cacheSize)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &Session{conn: conn, ttl: ttl, cache: cache}
}

// Source describes the endpoint this session is attached to.
func (s *Session) Source() introspection.SourceInfo { return s.conn.Source() }

// Close releases the underlying connection.
func (s *Session) Close() error { return s.conn.Close() }

// Invalidate drops all cached node state. The test runner calls this
// between logical tests so no state leaks across them.
func (s *Session) Invalidate() { s.cache.Purge() }

// Root fetches the tree root and wraps it in a proxy.
func (s *Session) Root(ctx context.Context) (*Proxy, error) {
	id, err := s.conn.Root(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch root id: %w", err)
	}
	node, err := s.fetch(ctx, id, true)
	if err != nil {
		return nil, err
	}
	return s.wrap(node), nil
}

// Proxy builds a proxy for a known node id, fetching its current state.
// The inspector uses this to re-attach to a node picked from a listing.
func (s *Session) Proxy(ctx context.Context, id introspection.NodeID) (*Proxy, error) {
	node, err := s.fetch(ctx, id, true)
	if err != nil {
		return nil, err
	}
	return s.wrap(node), nil
}

// wrap builds a proxy over a fetched node snapshot.
func (s *Session) wrap(node introspection.Node) *Proxy {
	return &Proxy{session: s, id: node.ID, state: node}
}

// fetch returns the node's state, from cache when fresh enough unless
// force is set. Transport failures that mean the node is gone surface to
// proxy callers as ErrStaleProxy with the cause attached.
func (s *Session) fetch(ctx context.Context, id introspection.NodeID, force bool) (introspection.Node, error) {
	if !force && s.ttl > 0 {
		if entry, ok := s.cache.Get(id); ok && time.Since(entry.fetchedAt) < s.ttl {
			return entry.node, nil
		}
	}
	node, err := s.conn.FetchNode(ctx, id)
	if err != nil {
		return introspection.Node{}, staleErr(id, err)
	}
	if s.ttl > 0 {
		s.cache.Add(id, cachedState{node: node, fetchedAt: time.Now()})
	}
	return node, nil
}

func (s *Session) fetchChildren(ctx context.Context, id introspection.NodeID) ([]introspection.NodeID, error) {
	children, err := s.conn.FetchChildren(ctx, id)
	if err != nil {
		return nil, staleErr(id, err)
	}
	return children, nil
}

// staleErr maps "the node or its source is gone" onto ErrStaleProxy.
// A disconnect additionally keeps ErrSourceDisconnected in the chain so
// traversals can tell a vanished node (skippable) from a dead source
// (terminal). Other failures pass through.
func staleErr(id introspection.NodeID, err error) error {
	if errors.Is(err, introspection.ErrSourceDisconnected) {
		return fmt.Errorf("node %d: %w (%w)", id, introspection.ErrStaleProxy, err)
	}
	if errors.Is(err, introspection.ErrNodeNotFound) {
		return fmt.Errorf("node %d: %w: %v", id, introspection.ErrStaleProxy, err)
	}
	return fmt.Errorf("node %d: %w", id, err)
}

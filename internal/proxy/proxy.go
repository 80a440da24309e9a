package proxy

import (
	"context"
	"fmt"

	"github.com/chenhan1218/autopilot/internal/introspection"
)

// Proxy is a local handle on one remote tree node. It holds the last
// fetched snapshot but behaves as a live view: attribute reads refetch
// when the session's cached state has gone stale, unless the proxy is
// frozen. A proxy never owns its session and becomes stale once the
// source disconnects.
type Proxy struct {
	session *Session
	id      introspection.NodeID
	state   introspection.Node
	frozen  bool
}

// ID returns the node id this proxy wraps. Valid only while the source
// connection is alive; not stable across reconnects.
func (p *Proxy) ID() introspection.NodeID { return p.id }

// TypeName returns the node's type name from the held snapshot.
func (p *Proxy) TypeName() string { return p.state.TypeName }

// Source describes the introspection source this proxy belongs to.
func (p *Proxy) Source() introspection.SourceInfo { return p.session.Source() }

// Session returns the owning session.
func (p *Proxy) Session() *Session { return p.session }

// Equal reports identity equality: same session and same node id.
// Structural or attribute equality is deliberately not considered.
func (p *Proxy) Equal(other *Proxy) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.session == other.session && p.id == other.id
}

// Attribute reads one attribute. Unless the proxy is frozen this may
// trigger a fresh fetch. A node that exists but lacks the attribute fails
// with ErrAttributeNotFound; a node that no longer resolves fails with
// ErrStaleProxy.
func (p *Proxy) Attribute(ctx context.Context, name string) (introspection.Value, error) {
	state, err := p.currentState(ctx)
	if err != nil {
		return introspection.Value{}, err
	}
	v, ok := state.Attr(name)
	if !ok {
		return introspection.Value{}, fmt.Errorf("%s has no attribute %q: %w",
			state.TypeName, name, introspection.ErrAttributeNotFound)
	}
	return v, nil
}

// Properties returns the full materialized attribute bag. The returned
// map is a copy; mutating it does not affect the proxy.
func (p *Proxy) Properties(ctx context.Context) (map[string]introspection.Value, error) {
	state, err := p.currentState(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]introspection.Value, len(state.Attrs))
	for k, v := range state.Attrs {
		out[k] = v
	}
	return out, nil
}

// Node returns the current node snapshot.
func (p *Proxy) Node(ctx context.Context) (introspection.Node, error) {
	return p.currentState(ctx)
}

func (p *Proxy) currentState(ctx context.Context) (introspection.Node, error) {
	if p.frozen {
		return p.state, nil
	}
	state, err := p.session.fetch(ctx, p.id, false)
	if err != nil {
		return introspection.Node{}, err
	}
	p.state = state
	return state, nil
}

// Snapshot returns the held node state without fetching. Traversals use
// it to evaluate predicates against the state fetched at visit time.
func (p *Proxy) Snapshot() introspection.Node { return p.state }

// Refresh refetches the node and returns a new proxy for it. The returned
// proxy always has the same node id; if the id no longer resolves the
// call fails with ErrStaleProxy instead.
func (p *Proxy) Refresh(ctx context.Context) (*Proxy, error) {
	state, err := p.session.fetch(ctx, p.id, true)
	if err != nil {
		return nil, err
	}
	return p.session.wrap(state), nil
}

// Frozen returns a copy of this proxy that serves every read from the
// snapshot it holds right now, with no further fetches. Use it to read
// several attributes from one coherent state.
func (p *Proxy) Frozen() *Proxy {
	return &Proxy{session: p.session, id: p.id, state: p.state, frozen: true}
}

// Children returns a lazy sequence over this node's children. Child ids
// are fetched on first use and each child node on first access of its
// index; the sequence is cheap to restart by calling Children again.
func (p *Proxy) Children() *ChildSeq {
	return &ChildSeq{parent: p}
}

// ChildSeq is a lazily materialized child list. It is not safe for
// concurrent use; each traversal should obtain its own sequence.
type ChildSeq struct {
	parent *Proxy
	ids    []introspection.NodeID
	loaded bool
}

func (cs *ChildSeq) load(ctx context.Context) error {
	if cs.loaded {
		return nil
	}
	ids, err := cs.parent.session.fetchChildren(ctx, cs.parent.id)
	if err != nil {
		return err
	}
	cs.ids = ids
	cs.loaded = true
	return nil
}

// Len returns the number of children, fetching the id list if needed.
func (cs *ChildSeq) Len(ctx context.Context) (int, error) {
	if err := cs.load(ctx); err != nil {
		return 0, err
	}
	return len(cs.ids), nil
}

// At fetches the child at index i. The tree can mutate between calls; a
// child that vanished since the id list was fetched fails with
// ErrStaleProxy.
func (cs *ChildSeq) At(ctx context.Context, i int) (*Proxy, error) {
	if err := cs.load(ctx); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(cs.ids) {
		return nil, fmt.Errorf("child index %d out of range [0, %d)", i, len(cs.ids))
	}
	node, err := cs.parent.session.fetch(ctx, cs.ids[i], false)
	if err != nil {
		return nil, err
	}
	return cs.parent.session.wrap(node), nil
}

// IDs returns the child node ids in tree order.
func (cs *ChildSeq) IDs(ctx context.Context) ([]introspection.NodeID, error) {
	if err := cs.load(ctx); err != nil {
		return nil, err
	}
	return append([]introspection.NodeID{}, cs.ids...), nil
}

package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/chenhan1218/autopilot/internal/introspection"
)

// MemoryBus is an in-process Bus. It backs the demo server and the test
// suites: trees can be mutated while connections are open, which is
// exactly the situation the engine has to tolerate against a real target.
type MemoryBus struct {
	mu      sync.Mutex
	order   []introspection.SourceID
	sources map[introspection.SourceID]*MemoryTree
}

// NewMemoryBus returns an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{sources: make(map[introspection.SourceID]*MemoryTree)}
}

// Add publishes a tree on the bus. Discovery order is insertion order.
func (b *MemoryBus) Add(tree *MemoryTree) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := tree.info.ID
	if _, exists := b.sources[id]; !exists {
		b.order = append(b.order, id)
	}
	b.sources[id] = tree
}

// Remove takes a source off the bus and disconnects it. Open connections
// to it start failing with ErrSourceDisconnected.
func (b *MemoryBus) Remove(id introspection.SourceID) {
	b.mu.Lock()
	tree := b.sources[id]
	delete(b.sources, id)
	for i, sid := range b.order {
		if sid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	if tree != nil {
		tree.Disconnect()
	}
}

func (b *MemoryBus) ListSources(ctx context.Context) ([]introspection.SourceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	infos := make([]introspection.SourceInfo, 0, len(b.order))
	for _, id := range b.order {
		infos = append(infos, b.sources[id].info)
	}
	return infos, nil
}

func (b *MemoryBus) Connect(ctx context.Context, id introspection.SourceID) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	tree, ok := b.sources[id]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("source %q: %w", id, introspection.ErrConnectionNotFound)
	}
	return &memConn{tree: tree}, nil
}

// MemoryTree is a mutable introspection tree. All mutation methods are
// safe to call while connections are fetching.
type MemoryTree struct {
	info introspection.SourceInfo

	mu           sync.Mutex
	root         introspection.NodeID
	nodes        map[introspection.NodeID]introspection.Node
	disconnected bool
	nextErr      error
}

// NewMemoryTree builds a tree with the given root node.
func NewMemoryTree(info introspection.SourceInfo, root introspection.Node) *MemoryTree {
	t := &MemoryTree{
		info:  info,
		root:  root.ID,
		nodes: make(map[introspection.NodeID]introspection.Node),
	}
	t.nodes[root.ID] = cloneNode(root)
	return t
}

// Info returns the source description this tree is published under.
func (t *MemoryTree) Info() introspection.SourceInfo { return t.info }

// AddChild inserts node as the last child of parent.
func (t *MemoryTree) AddChild(parent introspection.NodeID, node introspection.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.nodes[parent]
	if !ok {
		return
	}
	p.ChildIDs = append(p.ChildIDs, node.ID)
	t.nodes[parent] = p
	t.nodes[node.ID] = cloneNode(node)
}

// SetAttr updates one attribute on a node.
func (t *MemoryTree) SetAttr(id introspection.NodeID, name string, v introspection.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	attrs := make(map[string]introspection.Value, len(n.Attrs)+1)
	for k, val := range n.Attrs {
		attrs[k] = val
	}
	attrs[name] = v
	n.Attrs = attrs
	t.nodes[id] = n
}

// RemoveNode deletes a node and its subtree, detaching it from its parent.
// Subsequent fetches of the removed ids fail with ErrNodeNotFound.
func (t *MemoryTree) RemoveNode(id introspection.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for pid, p := range t.nodes {
		for i, cid := range p.ChildIDs {
			if cid == id {
				p.ChildIDs = append(append([]introspection.NodeID{}, p.ChildIDs[:i]...), p.ChildIDs[i+1:]...)
				t.nodes[pid] = p
				break
			}
		}
	}
	t.removeSubtree(id)
}

func (t *MemoryTree) removeSubtree(id introspection.NodeID) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	delete(t.nodes, id)
	for _, cid := range n.ChildIDs {
		t.removeSubtree(cid)
	}
}

// Disconnect simulates the target process going away. Terminal: every
// open and future connection fails with ErrSourceDisconnected.
func (t *MemoryTree) Disconnect() {
	t.mu.Lock()
	t.disconnected = true
	t.mu.Unlock()
}

// FailNext injects err into the next fetch on any connection. Used to
// exercise the retry path with transient errors.
func (t *MemoryTree) FailNext(err error) {
	t.mu.Lock()
	t.nextErr = err
	t.mu.Unlock()
}

func (t *MemoryTree) takeErr() error {
	if t.disconnected {
		return introspection.ErrSourceDisconnected
	}
	if t.nextErr != nil {
		err := t.nextErr
		t.nextErr = nil
		return err
	}
	return nil
}

func cloneNode(n introspection.Node) introspection.Node {
	out := introspection.Node{ID: n.ID, TypeName: n.TypeName}
	if n.Attrs != nil {
		out.Attrs = make(map[string]introspection.Value, len(n.Attrs))
		for k, v := range n.Attrs {
			out.Attrs[k] = v
		}
	}
	out.ChildIDs = append([]introspection.NodeID{}, n.ChildIDs...)
	return out
}

type memConn struct {
	tree   *MemoryTree
	mu     sync.Mutex
	closed bool
}

func (c *memConn) Source() introspection.SourceInfo { return c.tree.info }

func (c *memConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *memConn) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return introspection.ErrSourceDisconnected
	}
	return nil
}

func (c *memConn) Root(ctx context.Context) (introspection.NodeID, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	c.tree.mu.Lock()
	defer c.tree.mu.Unlock()
	if err := c.tree.takeErr(); err != nil {
		return 0, err
	}
	return c.tree.root, nil
}

func (c *memConn) FetchNode(ctx context.Context, id introspection.NodeID) (introspection.Node, error) {
	if err := c.check(ctx); err != nil {
		return introspection.Node{}, err
	}
	c.tree.mu.Lock()
	defer c.tree.mu.Unlock()
	if err := c.tree.takeErr(); err != nil {
		return introspection.Node{}, err
	}
	n, ok := c.tree.nodes[id]
	if !ok {
		return introspection.Node{}, fmt.Errorf("node %d: %w", id, introspection.ErrNodeNotFound)
	}
	return cloneNode(n), nil
}

func (c *memConn) FetchChildren(ctx context.Context, id introspection.NodeID) ([]introspection.NodeID, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.tree.mu.Lock()
	defer c.tree.mu.Unlock()
	if err := c.tree.takeErr(); err != nil {
		return nil, err
	}
	n, ok := c.tree.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, introspection.ErrNodeNotFound)
	}
	return append([]introspection.NodeID{}, n.ChildIDs...), nil
}

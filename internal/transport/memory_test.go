package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/chenhan1218/autopilot/internal/introspection"
)

func TestMemoryBus_ListSourcesInDiscoveryOrder(t *testing.T) {
	bus := NewMemoryBus()
	for _, id := range []introspection.SourceID{"beta", "alpha", "gamma"} {
		root := introspection.Node{ID: 1, TypeName: "Window"}
		bus.Add(NewMemoryTree(introspection.SourceInfo{ID: id}, root))
	}

	sources, err := bus.ListSources(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(sources))
	}
	want := []introspection.SourceID{"beta", "alpha", "gamma"}
	for i, w := range want {
		if sources[i].ID != w {
			t.Errorf("position %d: expected %q, got %q", i, w, sources[i].ID)
		}
	}
}

func TestMemoryBus_ConnectUnknownSource(t *testing.T) {
	bus := NewMemoryBus()
	_, err := bus.Connect(context.Background(), "ghost")
	if !errors.Is(err, introspection.ErrConnectionNotFound) {
		t.Errorf("expected ErrConnectionNotFound, got %v", err)
	}
}

func TestMemoryBus_RemoveDisconnectsOpenConnections(t *testing.T) {
	bus := NewMemoryBus()
	tree := testTree()
	bus.Add(tree)

	conn, err := bus.Connect(context.Background(), "app")
	if err != nil {
		t.Fatal(err)
	}
	bus.Remove("app")

	if _, err := conn.Root(context.Background()); !errors.Is(err, introspection.ErrSourceDisconnected) {
		t.Errorf("expected ErrSourceDisconnected, got %v", err)
	}
	sources, err := bus.ListSources(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 0 {
		t.Errorf("expected removed source to be gone from discovery, got %d", len(sources))
	}
}

func TestMemoryTree_RemoveNodeDetachesSubtree(t *testing.T) {
	tree := testTree()
	tree.AddChild(1, introspection.Node{ID: 2, TypeName: "Panel"})
	tree.AddChild(2, introspection.Node{ID: 3, TypeName: "Button"})

	conn := &memConn{tree: tree}
	ctx := context.Background()

	tree.RemoveNode(2)

	children, err := conn.FetchChildren(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 0 {
		t.Errorf("expected node 2 detached from root, got children %v", children)
	}
	if _, err := conn.FetchNode(ctx, 2); !errors.Is(err, introspection.ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound for removed node, got %v", err)
	}
	if _, err := conn.FetchNode(ctx, 3); !errors.Is(err, introspection.ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound for removed descendant, got %v", err)
	}
}

func TestMemoryTree_SetAttrVisibleToOpenConnection(t *testing.T) {
	tree := testTree()
	conn := &memConn{tree: tree}
	ctx := context.Background()

	tree.SetAttr(1, "title", introspection.String("updated"))

	node, err := conn.FetchNode(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := node.Attr("title")
	if !ok {
		t.Fatal("expected title attribute")
	}
	if s, _ := v.AsString(); s != "updated" {
		t.Errorf("expected %q, got %q", "updated", s)
	}
}

func TestMemoryTree_FetchReturnsCopies(t *testing.T) {
	tree := testTree()
	tree.AddChild(1, introspection.Node{ID: 2, TypeName: "Button"})
	conn := &memConn{tree: tree}
	ctx := context.Background()

	node, err := conn.FetchNode(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	node.ChildIDs[0] = 999

	again, err := conn.FetchNode(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if again.ChildIDs[0] != 2 {
		t.Error("mutating a fetched node must not affect the tree")
	}
}

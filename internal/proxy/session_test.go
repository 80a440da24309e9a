package proxy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chenhan1218/autopilot/internal/introspection"
	"github.com/chenhan1218/autopilot/internal/transport"
)

// buttonTree builds a window with one OK button, connected through the
// in-memory bus.
func buttonTree(t *testing.T) (*Session, *transport.MemoryTree) {
	t.Helper()

	root := introspection.Node{
		ID:       1,
		TypeName: "Window",
		Attrs: map[string]introspection.Value{
			"title": introspection.String("Main"),
		},
	}
	tree := transport.NewMemoryTree(introspection.SourceInfo{ID: "app", Name: "App", PID: 100}, root)
	tree.AddChild(1, introspection.Node{
		ID:       2,
		TypeName: "Button",
		Attrs: map[string]introspection.Value{
			"label": introspection.String("OK"),
		},
	})

	bus := transport.NewMemoryBus()
	bus.Add(tree)
	conn, err := bus.Connect(context.Background(), "app")
	if err != nil {
		t.Fatal(err)
	}
	// TTL 0: every read observes current tree state, which keeps the
	// mutation tests deterministic.
	sess := NewSessionTTL(conn, 0)
	t.Cleanup(func() { sess.Close() })
	return sess, tree
}

func TestSession_RootProxy(t *testing.T) {
	sess, _ := buttonTree(t)
	root, err := sess.Root(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if root.ID() != 1 || root.TypeName() != "Window" {
		t.Errorf("unexpected root: id=%d type=%q", root.ID(), root.TypeName())
	}
	if root.Source().ID != "app" {
		t.Errorf("expected source app, got %q", root.Source().ID)
	}
}

func TestSession_CacheServesRepeatReads(t *testing.T) {
	sess, tree := buttonTree(t)
	sess.ttl = time.Minute // long TTL so the first fetch stays authoritative

	ctx := context.Background()
	root, err := sess.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}

	tree.SetAttr(1, "title", introspection.String("Changed"))

	v, err := root.Attribute(ctx, "title")
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.AsString(); s != "Main" {
		t.Errorf("expected cached title Main, got %q", s)
	}

	sess.Invalidate()
	v, err = root.Attribute(ctx, "title")
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.AsString(); s != "Changed" {
		t.Errorf("expected fresh title Changed after Invalidate, got %q", s)
	}
}

func TestProxy_AttributeNotFound(t *testing.T) {
	sess, _ := buttonTree(t)
	root, err := sess.Root(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	_, err = root.Attribute(context.Background(), "nope")
	if !errors.Is(err, introspection.ErrAttributeNotFound) {
		t.Errorf("expected ErrAttributeNotFound, got %v", err)
	}
}

func TestProxy_PropertiesReturnsCopy(t *testing.T) {
	sess, _ := buttonTree(t)
	ctx := context.Background()
	root, err := sess.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	props, err := root.Properties(ctx)
	if err != nil {
		t.Fatal(err)
	}
	props["title"] = introspection.String("mutated")

	v, err := root.Attribute(ctx, "title")
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.AsString(); s != "Main" {
		t.Errorf("mutating the returned bag must not affect the proxy, got %q", s)
	}
}

func TestProxy_LiveViewSeesMutation(t *testing.T) {
	sess, tree := buttonTree(t)
	ctx := context.Background()
	root, err := sess.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}

	tree.SetAttr(1, "title", introspection.String("Renamed"))

	v, err := root.Attribute(ctx, "title")
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.AsString(); s != "Renamed" {
		t.Errorf("expected live read to see Renamed, got %q", s)
	}
}

func TestProxy_FrozenReadsHeldState(t *testing.T) {
	sess, tree := buttonTree(t)
	ctx := context.Background()
	root, err := sess.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	frozen := root.Frozen()

	tree.SetAttr(1, "title", introspection.String("Renamed"))

	v, err := frozen.Attribute(ctx, "title")
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := v.AsString(); s != "Main" {
		t.Errorf("frozen proxy must serve its snapshot, got %q", s)
	}

	// Frozen reads even survive the node vanishing.
	tree.RemoveNode(1)
	if _, err := frozen.Attribute(ctx, "title"); err != nil {
		t.Errorf("frozen proxy must not fetch, got %v", err)
	}
}

func TestProxy_RefreshKeepsIdentity(t *testing.T) {
	sess, tree := buttonTree(t)
	ctx := context.Background()
	root, err := sess.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	children := root.Children()
	button, err := children.At(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}

	tree.SetAttr(2, "label", introspection.String("Confirm"))

	fresh, err := button.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.ID() != button.ID() {
		t.Errorf("refresh must keep the node id, got %d and %d", fresh.ID(), button.ID())
	}
	if !fresh.Equal(button) {
		t.Error("refreshed proxy must be Equal to the original")
	}
	v, ok := fresh.Snapshot().Attr("label")
	if !ok {
		t.Fatal("expected label attribute")
	}
	if s, _ := v.AsString(); s != "Confirm" {
		t.Errorf("expected refreshed label Confirm, got %q", s)
	}
}

func TestProxy_StaleAfterNodeRemoved(t *testing.T) {
	sess, tree := buttonTree(t)
	ctx := context.Background()
	root, err := sess.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	button, err := root.Children().At(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}

	tree.RemoveNode(2)

	_, err = button.Refresh(ctx)
	if !errors.Is(err, introspection.ErrStaleProxy) {
		t.Errorf("expected ErrStaleProxy, got %v", err)
	}
	if errors.Is(err, introspection.ErrSourceDisconnected) {
		t.Error("a vanished node must not report a disconnect")
	}
}

func TestProxy_StaleAfterDisconnectKeepsCause(t *testing.T) {
	sess, tree := buttonTree(t)
	ctx := context.Background()
	root, err := sess.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}

	tree.Disconnect()

	_, err = root.Attribute(ctx, "title")
	if !errors.Is(err, introspection.ErrStaleProxy) {
		t.Errorf("expected ErrStaleProxy, got %v", err)
	}
	if !errors.Is(err, introspection.ErrSourceDisconnected) {
		t.Errorf("expected ErrSourceDisconnected in the chain, got %v", err)
	}
}

func TestProxy_Equal(t *testing.T) {
	sess, _ := buttonTree(t)
	ctx := context.Background()
	a, err := sess.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := sess.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Error("two proxies on the same session and id must be equal")
	}
	child, err := a.Children().At(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if a.Equal(child) {
		t.Error("different node ids must not be equal")
	}
	if a.Equal(nil) {
		t.Error("a proxy is never equal to nil")
	}
}

func TestChildSeq_LazyAndOrdered(t *testing.T) {
	sess, tree := buttonTree(t)
	tree.AddChild(1, introspection.Node{ID: 3, TypeName: "Button",
		Attrs: map[string]introspection.Value{"label": introspection.String("Cancel")}})
	ctx := context.Background()

	root, err := sess.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	children := root.Children()
	n, err := children.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 children, got %d", n)
	}
	ids, err := children.IDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ids[0] != 2 || ids[1] != 3 {
		t.Errorf("expected tree order [2 3], got %v", ids)
	}

	if _, err := children.At(ctx, 2); err == nil {
		t.Error("expected out-of-range index to fail")
	}
}

func TestChildSeq_VanishedChildIsStale(t *testing.T) {
	sess, tree := buttonTree(t)
	ctx := context.Background()
	root, err := sess.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	children := root.Children()
	if _, err := children.Len(ctx); err != nil {
		t.Fatal(err)
	}

	// The id list is already materialized; now the child disappears.
	tree.RemoveNode(2)

	_, err = children.At(ctx, 0)
	if !errors.Is(err, introspection.ErrStaleProxy) {
		t.Errorf("expected ErrStaleProxy for vanished child, got %v", err)
	}
}

func TestSession_ProxyByID(t *testing.T) {
	sess, _ := buttonTree(t)
	ctx := context.Background()

	p, err := sess.Proxy(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if p.TypeName() != "Button" {
		t.Errorf("expected Button, got %q", p.TypeName())
	}

	if _, err := sess.Proxy(ctx, 999); !errors.Is(err, introspection.ErrStaleProxy) {
		t.Errorf("expected ErrStaleProxy for unknown id, got %v", err)
	}
}

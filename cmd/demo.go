package cmd

import (
	"github.com/chenhan1218/autopilot/internal/introspection"
	"github.com/chenhan1218/autopilot/internal/transport"
)

// withGeometry adds the on-screen rectangle to an attribute bag.
func withGeometry(attrs map[string]introspection.Value, r introspection.Rect) map[string]introspection.Value {
	attrs[introspection.GeometryAttr] = introspection.RectOf(r)
	return attrs
}

// demoBus publishes a small fixed tree so the CLI can be exercised
// without a real instrumented application on the bus.
func demoBus() *transport.MemoryBus {
	root := introspection.Node{
		ID:       1,
		TypeName: "Window",
		Attrs: withGeometry(map[string]introspection.Value{
			"title":   introspection.String("Demo App"),
			"visible": introspection.Bool(true),
		}, introspection.Rect{X: 0, Y: 0, W: 800, H: 600}),
	}
	tree := transport.NewMemoryTree(introspection.SourceInfo{
		ID:   "demo",
		Name: "Demo App",
		PID:  1,
	}, root)

	tree.AddChild(1, introspection.Node{
		ID:       2,
		TypeName: "Button",
		Attrs: withGeometry(map[string]introspection.Value{
			"label":   introspection.String("OK"),
			"enabled": introspection.Bool(true),
		}, introspection.Rect{X: 560, Y: 540, W: 100, H: 40}),
	})
	tree.AddChild(1, introspection.Node{
		ID:       3,
		TypeName: "Button",
		Attrs: withGeometry(map[string]introspection.Value{
			"label":   introspection.String("Cancel"),
			"enabled": introspection.Bool(true),
		}, introspection.Rect{X: 680, Y: 540, W: 100, H: 40}),
	})
	tree.AddChild(1, introspection.Node{
		ID:       4,
		TypeName: "TextField",
		Attrs: withGeometry(map[string]introspection.Value{
			"text":        introspection.String("hello"),
			"placeholder": introspection.String("Type here"),
		}, introspection.Rect{X: 20, Y: 20, W: 760, H: 32}),
	})
	tree.AddChild(4, introspection.Node{
		ID:       5,
		TypeName: "Cursor",
		Attrs: map[string]introspection.Value{
			"position": introspection.PointOf(introspection.Point{X: 60, Y: 36}),
		},
	})

	bus := transport.NewMemoryBus()
	bus.Add(tree)
	return bus
}

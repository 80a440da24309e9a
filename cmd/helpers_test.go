package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/chenhan1218/autopilot/internal/introspection"
	"github.com/chenhan1218/autopilot/internal/transport"
)

func TestParseAttrValue(t *testing.T) {
	tests := []struct {
		input string
		want  introspection.Value
	}{
		{"hello", introspection.String("hello")},
		{"true", introspection.Bool(true)},
		{"false", introspection.Bool(false)},
		{"42", introspection.Int(42)},
		{"-7", introspection.Int(-7)},
		{"2.5", introspection.Float(2.5)},
		{`"42"`, introspection.String("42")},
		{`"true"`, introspection.String("true")},
		{"", introspection.String("")},
	}
	for _, tt := range tests {
		got := parseAttrValue(tt.input)
		if !got.Equal(tt.want) {
			t.Errorf("parseAttrValue(%q) = %s (%v), want %s (%v)",
				tt.input, got, got.Kind(), tt.want, tt.want.Kind())
		}
	}
}

func TestBuildQuery_RequiresACondition(t *testing.T) {
	if _, err := buildQuery("", nil); err == nil {
		t.Error("expected an error for an unconstrained query")
	}
}

func TestBuildQuery_TypeAndAttrs(t *testing.T) {
	q, err := buildQuery("Button", []string{"label=OK", "enabled=true"})
	if err != nil {
		t.Fatal(err)
	}
	node := introspection.Node{ID: 3, TypeName: "Button",
		Attrs: map[string]introspection.Value{
			"label":   introspection.String("OK"),
			"enabled": introspection.Bool(true),
		}}
	if !q.Matches(node) {
		t.Error("expected the query to match the node")
	}
	node.Attrs["enabled"] = introspection.Bool(false)
	if q.Matches(node) {
		t.Error("expected the query to reject a flipped attribute")
	}
}

func TestBuildQuery_MalformedAttr(t *testing.T) {
	for _, bad := range []string{"labelOK", "=OK"} {
		if _, err := buildQuery("", []string{bad}); err == nil {
			t.Errorf("expected an error for --attr %q", bad)
		}
	}
}

func TestConnectSource_AutoSelectsOnlySource(t *testing.T) {
	bus := transport.NewMemoryBus()
	bus.Add(transport.NewMemoryTree(
		introspection.SourceInfo{ID: "only", Name: "App", PID: 1},
		introspection.Node{ID: 1, TypeName: "Window"}))

	sess, err := connectSource(context.Background(), bus, "")
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	if sess.Source().ID != "only" {
		t.Errorf("expected the only source, got %q", sess.Source().ID)
	}
}

func TestConnectSource_EmptyBus(t *testing.T) {
	bus := transport.NewMemoryBus()
	if _, err := connectSource(context.Background(), bus, ""); err == nil {
		t.Error("expected an error for an empty bus")
	}
}

func TestConnectSource_AmbiguousBusListsIDs(t *testing.T) {
	bus := transport.NewMemoryBus()
	for _, id := range []introspection.SourceID{"one", "two"} {
		bus.Add(transport.NewMemoryTree(
			introspection.SourceInfo{ID: id},
			introspection.Node{ID: 1, TypeName: "Window"}))
	}
	_, err := connectSource(context.Background(), bus, "")
	if err == nil {
		t.Fatal("expected an error when multiple sources are on the bus")
	}
	if !strings.Contains(err.Error(), "one") || !strings.Contains(err.Error(), "two") {
		t.Errorf("expected the error to list the candidate ids, got %q", err)
	}
}

func TestParams(t *testing.T) {
	params := map[string]interface{}{
		"name":  "demo",
		"count": float64(3),
		"flag":  true,
		"attrs": []interface{}{"a=1", "b=2"},
	}
	if got := StringParam(params, "name", "x"); got != "demo" {
		t.Errorf("StringParam = %q", got)
	}
	if got := StringParam(params, "missing", "x"); got != "x" {
		t.Errorf("StringParam default = %q", got)
	}
	if got := IntParam(params, "count", 0); got != 3 {
		t.Errorf("IntParam = %d", got)
	}
	if got := BoolParam(params, "flag", false); !got {
		t.Error("BoolParam = false")
	}
	attrs := StringSliceParam(params, "attrs")
	if len(attrs) != 2 || attrs[0] != "a=1" {
		t.Errorf("StringSliceParam = %v", attrs)
	}
	if StringSliceParam(params, "missing") != nil {
		t.Error("expected nil for a missing slice param")
	}
}

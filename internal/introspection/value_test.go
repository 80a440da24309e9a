package introspection

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestValue_KindAndAccessors(t *testing.T) {
	v := String("hello")
	if v.Kind() != KindString {
		t.Errorf("expected KindString, got %v", v.Kind())
	}
	s, ok := v.AsString()
	if !ok || s != "hello" {
		t.Errorf("expected (hello, true), got (%q, %v)", s, ok)
	}
	if _, ok := v.AsInt(); ok {
		t.Error("expected AsInt to fail on a string value")
	}
	if _, ok := v.AsRect(); ok {
		t.Error("expected AsRect to fail on a string value")
	}
}

func TestValue_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"equal strings", String("OK"), String("OK"), true},
		{"case sensitive strings", String("OK"), String("ok"), false},
		{"equal ints", Int(42), Int(42), true},
		{"different ints", Int(42), Int(43), false},
		{"int vs float never equal", Int(42), Float(42), false},
		{"equal bools", Bool(true), Bool(true), true},
		{"equal rects", RectOf(Rect{X: 1, Y: 2, W: 3, H: 4}), RectOf(Rect{X: 1, Y: 2, W: 3, H: 4}), true},
		{"different rects", RectOf(Rect{X: 1, Y: 2, W: 3, H: 4}), RectOf(Rect{X: 1, Y: 2, W: 3, H: 5}), false},
		{"equal points", PointOf(Point{X: 1, Y: 2}), PointOf(Point{X: 1, Y: 2}), true},
		{"equal colors", ColorOf(Color{R: 1, G: 2, B: 3, A: 4}), ColorOf(Color{R: 1, G: 2, B: 3, A: 4}), true},
		{"equal opaque", Opaque([]byte{1, 2}), Opaque([]byte{1, 2}), true},
		{"different opaque", Opaque([]byte{1, 2}), Opaque([]byte{1, 3}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestValue_String(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{String("abc"), "abc"},
		{Int(7), "7"},
		{Float(1.5), "1.5"},
		{Bool(false), "false"},
		{RectOf(Rect{X: 0, Y: 0, W: 10, H: 20}), "[0, 0, 10, 20]"},
		{PointOf(Point{X: 3, Y: 4}), "(3, 4)"},
		{SizeOf(Size{W: 5, H: 6}), "5x6"},
		{ColorOf(Color{R: 255, G: 0, B: 0, A: 255}), "#ff0000ff"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestValue_CBORRoundTrip(t *testing.T) {
	values := []Value{
		String("label"),
		Int(-3),
		Float(2.25),
		Bool(true),
		RectOf(Rect{X: 1, Y: 2, W: 3, H: 4}),
		PointOf(Point{X: 9, Y: 8}),
		SizeOf(Size{W: 7, H: 6}),
		ColorOf(Color{R: 1, G: 2, B: 3, A: 4}),
		Opaque([]byte{0xde, 0xad}),
	}
	for _, v := range values {
		data, err := cbor.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", v, err)
		}
		var back Value
		if err := cbor.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", v, err)
		}
		if !v.Equal(back) {
			t.Errorf("round trip changed value: %s -> %s", v, back)
		}
	}
}

func TestValue_UnknownKindDegradesToOpaque(t *testing.T) {
	data, err := cbor.Marshal(wireValue{K: Kind(99), S: "future"})
	if err != nil {
		t.Fatal(err)
	}
	var v Value
	if err := cbor.Unmarshal(data, &v); err != nil {
		t.Fatalf("expected unknown kind to decode, got %v", err)
	}
	if v.Kind() != KindOpaque {
		t.Errorf("expected KindOpaque, got %v", v.Kind())
	}
}

func TestNode_Rect(t *testing.T) {
	n := Node{
		ID:       1,
		TypeName: "Button",
		Attrs: map[string]Value{
			GeometryAttr: RectOf(Rect{X: 10, Y: 20, W: 30, H: 40}),
		},
	}
	r, ok := n.Rect()
	if !ok {
		t.Fatal("expected a rectangle")
	}
	if r.W != 30 || r.H != 40 {
		t.Errorf("unexpected rect: %+v", r)
	}

	bare := Node{ID: 2, TypeName: "Label"}
	if _, ok := bare.Rect(); ok {
		t.Error("expected no rectangle on a node without geometry")
	}
}

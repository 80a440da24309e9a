package introspection

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind discriminates the tagged union of attribute value types carried on
// the wire. The numeric values are part of the wire protocol; do not
// reorder them.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindRect
	KindPoint
	KindSize
	KindColor
	KindOpaque
)

// String returns the protocol name of the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindRect:
		return "rect"
	case KindPoint:
		return "point"
	case KindSize:
		return "size"
	case KindColor:
		return "color"
	case KindOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Rect is an on-screen rectangle in global coordinates.
type Rect struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	W float64 `yaml:"w" json:"w"`
	H float64 `yaml:"h" json:"h"`
}

// Point is a position in global coordinates.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Size is a width/height pair.
type Size struct {
	W float64 `yaml:"w" json:"w"`
	H float64 `yaml:"h" json:"h"`
}

// Color is an RGBA color with 8-bit channels.
type Color struct {
	R uint8 `yaml:"r" json:"r"`
	G uint8 `yaml:"g" json:"g"`
	B uint8 `yaml:"b" json:"b"`
	A uint8 `yaml:"a" json:"a"`
}

// Value is one attribute value from a node's attribute bag. Attribute bags
// have no fixed schema per node type, so values carry their own kind and
// callers ask for the representation they expect. A lookup that asks for
// the wrong kind reports failure rather than coercing.
type Value struct {
	kind   Kind
	str    string
	num    int64
	flt    float64
	truth  bool
	rect   Rect
	point  Point
	size   Size
	color  Color
	opaque []byte
}

func String(s string) Value { return Value{kind: KindString, str: s} }
func Int(i int64) Value     { return Value{kind: KindInt, num: i} }
func Float(f float64) Value { return Value{kind: KindFloat, flt: f} }
func Bool(b bool) Value     { return Value{kind: KindBool, truth: b} }
func RectOf(r Rect) Value   { return Value{kind: KindRect, rect: r} }
func PointOf(p Point) Value { return Value{kind: KindPoint, point: p} }
func SizeOf(s Size) Value   { return Value{kind: KindSize, size: s} }
func ColorOf(c Color) Value { return Value{kind: KindColor, color: c} }
func Opaque(b []byte) Value { return Value{kind: KindOpaque, opaque: b} }

// Kind reports which member of the union is set.
func (v Value) Kind() Kind { return v.kind }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }
func (v Value) AsInt() (int64, bool)     { return v.num, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool) { return v.flt, v.kind == KindFloat }
func (v Value) AsBool() (bool, bool)     { return v.truth, v.kind == KindBool }
func (v Value) AsRect() (Rect, bool)     { return v.rect, v.kind == KindRect }
func (v Value) AsPoint() (Point, bool)   { return v.point, v.kind == KindPoint }
func (v Value) AsSize() (Size, bool)     { return v.size, v.kind == KindSize }
func (v Value) AsColor() (Color, bool)   { return v.color, v.kind == KindColor }
func (v Value) AsOpaque() ([]byte, bool) { return v.opaque, v.kind == KindOpaque }

// Equal reports exact equality: same kind and same payload. String
// comparison is case-sensitive. Opaque values compare byte-for-byte.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindInt:
		return v.num == other.num
	case KindFloat:
		return v.flt == other.flt
	case KindBool:
		return v.truth == other.truth
	case KindRect:
		return v.rect == other.rect
	case KindPoint:
		return v.point == other.point
	case KindSize:
		return v.size == other.size
	case KindColor:
		return v.color == other.color
	case KindOpaque:
		if len(v.opaque) != len(other.opaque) {
			return false
		}
		for i := range v.opaque {
			if v.opaque[i] != other.opaque[i] {
				return false
			}
		}
		return true
	}
	return false
}

// String renders the value for display in listings and error messages.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return fmt.Sprintf("%d", v.num)
	case KindFloat:
		return fmt.Sprintf("%g", v.flt)
	case KindBool:
		return fmt.Sprintf("%t", v.truth)
	case KindRect:
		return fmt.Sprintf("[%g, %g, %g, %g]", v.rect.X, v.rect.Y, v.rect.W, v.rect.H)
	case KindPoint:
		return fmt.Sprintf("(%g, %g)", v.point.X, v.point.Y)
	case KindSize:
		return fmt.Sprintf("%gx%g", v.size.W, v.size.H)
	case KindColor:
		return fmt.Sprintf("#%02x%02x%02x%02x", v.color.R, v.color.G, v.color.B, v.color.A)
	case KindOpaque:
		return fmt.Sprintf("opaque(%d bytes)", len(v.opaque))
	}
	return "<invalid>"
}

// wireValue is the CBOR envelope for Value. Only the member matching K is
// encoded; everything else is omitted.
type wireValue struct {
	K Kind    `cbor:"k"`
	S string  `cbor:"s,omitempty"`
	I int64   `cbor:"i,omitempty"`
	F float64 `cbor:"f,omitempty"`
	B bool    `cbor:"b,omitempty"`
	R *Rect   `cbor:"r,omitempty"`
	P *Point  `cbor:"p,omitempty"`
	Z *Size   `cbor:"z,omitempty"`
	C *Color  `cbor:"c,omitempty"`
	O []byte  `cbor:"o,omitempty"`
}

// MarshalCBOR implements cbor.Marshaler.
func (v Value) MarshalCBOR() ([]byte, error) {
	w := wireValue{K: v.kind}
	switch v.kind {
	case KindString:
		w.S = v.str
	case KindInt:
		w.I = v.num
	case KindFloat:
		w.F = v.flt
	case KindBool:
		w.B = v.truth
	case KindRect:
		w.R = &v.rect
	case KindPoint:
		w.P = &v.point
	case KindSize:
		w.Z = &v.size
	case KindColor:
		w.C = &v.color
	case KindOpaque:
		w.O = v.opaque
	default:
		return nil, fmt.Errorf("marshal value: unknown kind %d", v.kind)
	}
	return cbor.Marshal(w)
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (v *Value) UnmarshalCBOR(data []byte) error {
	var w wireValue
	if err := cbor.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	out := Value{kind: w.K}
	switch w.K {
	case KindString:
		out.str = w.S
	case KindInt:
		out.num = w.I
	case KindFloat:
		out.flt = w.F
	case KindBool:
		out.truth = w.B
	case KindRect:
		if w.R != nil {
			out.rect = *w.R
		}
	case KindPoint:
		if w.P != nil {
			out.point = *w.P
		}
	case KindSize:
		if w.Z != nil {
			out.size = *w.Z
		}
	case KindColor:
		if w.C != nil {
			out.color = *w.C
		}
	case KindOpaque:
		out.opaque = w.O
	default:
		// Unknown kinds degrade to opaque so a newer endpoint doesn't
		// break older clients.
		out.kind = KindOpaque
		out.opaque = data
	}
	*v = out
	return nil
}

// MarshalYAML renders the naked payload so listings stay readable.
func (v Value) MarshalYAML() (interface{}, error) {
	return v.display(), nil
}

// MarshalJSON renders the naked payload, mirroring MarshalYAML.
func (v Value) MarshalJSON() ([]byte, error) {
	return jsonMarshal(v.display())
}

func (v Value) display() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.num
	case KindFloat:
		return v.flt
	case KindBool:
		return v.truth
	case KindRect:
		return v.rect
	case KindPoint:
		return v.point
	case KindSize:
		return v.size
	case KindColor:
		return v.String()
	case KindOpaque:
		return v.String()
	}
	return nil
}

// Package introspection defines the data model shared by the transport,
// proxy, and query layers: sources, nodes, and the tagged attribute values
// that target processes expose on the bus.
package introspection

// SourceID identifies one introspection endpoint on the bus.
type SourceID string

// NodeID identifies a node within a single source's tree. IDs are unique
// within one source and never reused while the connection is alive, but
// are not stable across two separate connections to the same process.
type NodeID uint64

// SourceInfo describes a discovered introspection endpoint.
type SourceInfo struct {
	ID   SourceID `yaml:"id"             json:"id"`
	Name string   `yaml:"name"           json:"name"` // bus connection name
	PID  int      `yaml:"pid,omitempty"  json:"pid,omitempty"`
	Addr string   `yaml:"addr,omitempty" json:"addr,omitempty"`
}

// Node is a snapshot of one remote tree position: its type, attribute bag,
// and children in tree order. Child order is meaningful for disambiguation
// and must be preserved by every layer above the transport.
type Node struct {
	ID       NodeID
	TypeName string
	Attrs    map[string]Value
	ChildIDs []NodeID
}

// Attr looks up an attribute by name. The bool reports presence; callers
// that need a hard failure use Proxy.Attribute, which maps absence to
// ErrAttributeNotFound.
func (n Node) Attr(name string) (Value, bool) {
	v, ok := n.Attrs[name]
	return v, ok
}

// GeometryAttr is the attribute name under which visual nodes publish
// their on-screen rectangle. Non-visual nodes simply omit it.
const GeometryAttr = "globalRect"

// Rect reports the node's on-screen rectangle, if it has one.
func (n Node) Rect() (Rect, bool) {
	v, ok := n.Attrs[GeometryAttr]
	if !ok {
		return Rect{}, false
	}
	return v.AsRect()
}

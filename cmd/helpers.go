package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chenhan1218/autopilot/internal/introspection"
	"github.com/chenhan1218/autopilot/internal/proxy"
	"github.com/chenhan1218/autopilot/internal/query"
	"github.com/chenhan1218/autopilot/internal/transport"
)

// parseAttrValue turns a flag value into a typed attribute value. Bare
// booleans and numbers get their natural kind; surrounding double quotes
// force a string (so --attr label='"42"' matches the string "42").
func parseAttrValue(s string) introspection.Value {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return introspection.String(s[1 : len(s)-1])
	}
	switch s {
	case "true":
		return introspection.Bool(true)
	case "false":
		return introspection.Bool(false)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return introspection.Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return introspection.Float(f)
	}
	return introspection.String(s)
}

// buildQuery assembles a query from --type and repeated --attr name=value
// flags. At least one condition is required; matching every node is
// never what a test author means.
func buildQuery(typeName string, attrs []string) (query.Query, error) {
	if typeName == "" && len(attrs) == 0 {
		return query.Query{}, fmt.Errorf("specify at least one condition: --type or --attr")
	}
	q := query.Any()
	if typeName != "" {
		q = query.Type(typeName)
	}
	for _, a := range attrs {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return query.Query{}, fmt.Errorf("invalid --attr %q: expected name=value", a)
		}
		q = q.WithAttr(name, parseAttrValue(value))
	}
	return q, nil
}

// connectSource opens a session to the named source, or to the only
// source on the bus when no name is given.
func connectSource(ctx context.Context, bus transport.Bus, sourceID string) (*proxy.Session, error) {
	id := introspection.SourceID(sourceID)
	if id == "" {
		sources, err := bus.ListSources(ctx)
		if err != nil {
			return nil, fmt.Errorf("list sources: %w", err)
		}
		switch len(sources) {
		case 0:
			return nil, fmt.Errorf("no introspection sources on the bus")
		case 1:
			id = sources[0].ID
		default:
			ids := make([]string, len(sources))
			for i, s := range sources {
				ids[i] = string(s.ID)
			}
			return nil, fmt.Errorf("multiple sources on the bus, pick one with --source: %s", strings.Join(ids, ", "))
		}
	}
	conn, err := bus.Connect(ctx, id)
	if err != nil {
		return nil, err
	}
	return proxy.NewSession(conn), nil
}

// nodeInfo is the compact node representation used by query, wait, and
// vis output.
type nodeInfo struct {
	ID    uint64                         `yaml:"id"              json:"id"`
	Type  string                         `yaml:"type"            json:"type"`
	Attrs map[string]introspection.Value `yaml:"attrs,omitempty" json:"attrs,omitempty"`
	Rect  *introspection.Rect            `yaml:"rect,omitempty"  json:"rect,omitempty"`
}

func nodeInfoFrom(p *proxy.Proxy) nodeInfo {
	node := p.Snapshot()
	info := nodeInfo{
		ID:    uint64(node.ID),
		Type:  node.TypeName,
		Attrs: node.Attrs,
	}
	if r, ok := node.Rect(); ok {
		info.Rect = &r
	}
	return info
}

func nodeInfos(proxies []*proxy.Proxy) []nodeInfo {
	infos := make([]nodeInfo, 0, len(proxies))
	for _, p := range proxies {
		infos = append(infos, nodeInfoFrom(p))
	}
	return infos
}

// StringParam extracts a string parameter from MCP tool arguments.
func StringParam(params map[string]interface{}, key, def string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return def
}

// IntParam extracts an int parameter from MCP tool arguments. JSON
// numbers arrive as float64.
func IntParam(params map[string]interface{}, key string, def int) int {
	if v, ok := params[key].(float64); ok {
		return int(v)
	}
	return def
}

// BoolParam extracts a bool parameter from MCP tool arguments.
func BoolParam(params map[string]interface{}, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

// StringSliceParam extracts a []string parameter from MCP tool arguments.
func StringSliceParam(params map[string]interface{}, key string) []string {
	raw, ok := params[key].([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

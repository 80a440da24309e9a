// Package query evaluates search predicates against a live introspection
// tree. Traversal is depth-first pre-order with children visited in tree
// order, so results are deterministic for a fixed tree state and the
// first match reported in an ambiguity error is stable.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/chenhan1218/autopilot/internal/introspection"
	"github.com/chenhan1218/autopilot/internal/proxy"
)

// Query is an immutable conjunction of match conditions. The zero value
// matches every node; narrow it with the With* methods, which return
// copies.
type Query struct {
	typeName     string
	attrs        []attrFilter
	fns          []func(introspection.Node) bool
	pruneOnMatch bool
}

type attrFilter struct {
	name  string
	value introspection.Value
}

// Type matches nodes whose type name equals name exactly.
func Type(name string) Query {
	return Query{typeName: name}
}

// Any matches every node. Useful as a base for attribute-only queries.
func Any() Query {
	return Query{}
}

// WithAttr adds an attribute-equality condition. Comparison is exact and
// case-sensitive for strings; a node lacking the attribute does not match.
func (q Query) WithAttr(name string, value introspection.Value) Query {
	attrs := append([]attrFilter{}, q.attrs...)
	attrs = append(attrs, attrFilter{name: name, value: value})
	q.attrs = attrs
	return q
}

// WithFunc adds a caller-supplied condition evaluated against the
// materialized node snapshot of each visited node.
func (q Query) WithFunc(fn func(introspection.Node) bool) Query {
	fns := append([]func(introspection.Node) bool{}, q.fns...)
	fns = append(fns, fn)
	q.fns = fns
	return q
}

// MatchesAndStop makes traversal skip the subtree below each matching
// node. The default is full traversal, since siblings and descendants of
// a match may also match.
func (q Query) MatchesAndStop() Query {
	q.pruneOnMatch = true
	return q
}

// Matches evaluates the conjunction against one node snapshot.
func (q Query) Matches(node introspection.Node) bool {
	if q.typeName != "" && node.TypeName != q.typeName {
		return false
	}
	for _, f := range q.attrs {
		v, ok := node.Attr(f.name)
		if !ok || !v.Equal(f.value) {
			return false
		}
	}
	for _, fn := range q.fns {
		if !fn(node) {
			return false
		}
	}
	return true
}

// String renders the query for error messages.
func (q Query) String() string {
	var parts []string
	if q.typeName != "" {
		parts = append(parts, fmt.Sprintf("type==%q", q.typeName))
	}
	for _, f := range q.attrs {
		parts = append(parts, fmt.Sprintf("%s==%q", f.name, f.value.String()))
	}
	if len(q.fns) > 0 {
		parts = append(parts, fmt.Sprintf("func(%d)", len(q.fns)))
	}
	if len(parts) == 0 {
		return "any node"
	}
	return strings.Join(parts, " && ")
}

// Select returns every proxy under root (root included) matching q, in
// depth-first pre-order. The tree can mutate mid-traversal: a child that
// vanishes between the id fetch and the node fetch is skipped, while a
// source disconnect aborts the traversal with the transport's error.
func Select(ctx context.Context, root *proxy.Proxy, q Query) ([]*proxy.Proxy, error) {
	// Refresh the root so the traversal starts from current state.
	if _, err := root.Node(ctx); err != nil {
		return nil, err
	}

	var matches []*proxy.Proxy
	if err := walk(ctx, root, q, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func walk(ctx context.Context, p *proxy.Proxy, q Query, matches *[]*proxy.Proxy) error {
	node := p.Snapshot()
	matched := q.Matches(node)
	if matched {
		*matches = append(*matches, p)
		if q.pruneOnMatch {
			return nil
		}
	}

	children := p.Children()
	n, err := children.Len(ctx)
	if err != nil {
		return skipOrFail(err)
	}
	for i := 0; i < n; i++ {
		child, err := children.At(ctx, i)
		if err != nil {
			if ferr := skipOrFail(err); ferr != nil {
				return ferr
			}
			continue
		}
		if err := walk(ctx, child, q, matches); err != nil {
			return err
		}
	}
	return nil
}

// skipOrFail decides how a fetch failure affects the traversal: a node
// that merely vanished is treated as absent, anything else aborts.
func skipOrFail(err error) error {
	if errors.Is(err, introspection.ErrStaleProxy) &&
		!errors.Is(err, introspection.ErrSourceDisconnected) {
		return nil
	}
	return err
}

// SelectSingle returns the unique proxy under root matching q. Zero
// matches fail with NoMatchError; two or more fail with
// AmbiguousMatchError carrying the count and the deterministic first
// match in traversal order.
func SelectSingle(ctx context.Context, root *proxy.Proxy, q Query) (*proxy.Proxy, error) {
	matches, err := Select(ctx, root, q)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, &introspection.NoMatchError{Query: q.String()}
	case 1:
		return matches[0], nil
	default:
		return nil, &introspection.AmbiguousMatchError{
			Query: q.String(),
			Count: len(matches),
			First: describe(matches[0]),
		}
	}
}

func describe(p *proxy.Proxy) string {
	return fmt.Sprintf("%s(id=%d)", p.TypeName(), p.ID())
}

// TextMatch returns a condition matching nodes whose type name or any
// string attribute contains text, case-insensitively. This is the
// predicate behind the inspector's search box.
func TextMatch(text string) func(introspection.Node) bool {
	lower := strings.ToLower(text)
	return func(node introspection.Node) bool {
		if strings.Contains(strings.ToLower(node.TypeName), lower) {
			return true
		}
		// Iterate attribute names in sorted order for determinism, even
		// though any-match makes order mostly moot.
		names := make([]string, 0, len(node.Attrs))
		for name := range node.Attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if s, ok := node.Attrs[name].AsString(); ok {
				if strings.Contains(strings.ToLower(s), lower) {
					return true
				}
			}
		}
		return false
	}
}

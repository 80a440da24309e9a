// Package overlay maps selected proxies to on-screen geometry and drives
// the inspector's highlight and search behavior. The rendering surface
// itself is external; this package only decides what rectangle to show
// and when to clear it.
package overlay

import (
	"context"
	"errors"
	"sync"

	"github.com/chenhan1218/autopilot/internal/introspection"
	"github.com/chenhan1218/autopilot/internal/proxy"
	"github.com/chenhan1218/autopilot/internal/query"
)

// Highlighter is the side-effecting surface the selection bridge draws
// on. Implementations must tolerate Clear without a prior Highlight.
type Highlighter interface {
	Highlight(introspection.Rect) error
	Clear() error
}

// Translate returns a highlighter that shifts rectangles from global
// coordinates into hl's frame-local coordinates. Needed when the frame's
// origin is not at the global (0,0), e.g. a window not in the top-left
// corner of the screen.
func Translate(hl Highlighter, origin introspection.Point) Highlighter {
	return &translatedHighlighter{hl: hl, origin: origin}
}

type translatedHighlighter struct {
	hl     Highlighter
	origin introspection.Point
}

func (t *translatedHighlighter) Highlight(r introspection.Rect) error {
	r.X -= t.origin.X
	r.Y -= t.origin.Y
	return t.hl.Highlight(r)
}

func (t *translatedHighlighter) Clear() error { return t.hl.Clear() }

// RectangleOf returns the proxy's on-screen rectangle. The bool is false
// when the node carries no geometry attribute; that is not an error,
// since many introspection nodes are non-visual. The rectangle is
// recomputed from current node state on every call, never cached.
func RectangleOf(ctx context.Context, p *proxy.Proxy) (introspection.Rect, bool, error) {
	v, err := p.Attribute(ctx, introspection.GeometryAttr)
	if err != nil {
		if errors.Is(err, introspection.ErrAttributeNotFound) {
			return introspection.Rect{}, false, nil
		}
		return introspection.Rect{}, false, err
	}
	r, ok := v.AsRect()
	if !ok {
		// Attribute present but not a rectangle: treat as non-visual.
		return introspection.Rect{}, false, nil
	}
	return r, true, nil
}

// Selector holds at most one active highlight. Selecting a new node
// implicitly clears the previous highlight.
type Selector struct {
	hl Highlighter

	mu     sync.Mutex
	active bool
}

// NewSelector wraps a highlighter.
func NewSelector(hl Highlighter) *Selector {
	return &Selector{hl: hl}
}

// Select highlights the proxy's rectangle, replacing any previous
// highlight. For a non-visual node it only clears; the bool reports
// whether anything is highlighted afterwards.
func (s *Selector) Select(ctx context.Context, p *proxy.Proxy) (introspection.Rect, bool, error) {
	rect, ok, err := RectangleOf(ctx, p)
	if err != nil {
		return introspection.Rect{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		if err := s.hl.Clear(); err != nil {
			return introspection.Rect{}, false, err
		}
		s.active = false
	}
	if !ok {
		return introspection.Rect{}, false, nil
	}
	if err := s.hl.Highlight(rect); err != nil {
		return introspection.Rect{}, false, err
	}
	s.active = true
	return rect, true, nil
}

// Clear removes the active highlight, if any.
func (s *Selector) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	s.active = false
	return s.hl.Clear()
}

// Active reports whether a highlight is currently shown.
func (s *Selector) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ViewState is the search-and-filter state of the inspector's tree view.
type ViewState int

const (
	FullTree ViewState = iota
	Filtered
)

func (s ViewState) String() string {
	if s == Filtered {
		return "filtered"
	}
	return "full-tree"
}

// View drives the tree listing: either the full tree or the matches of
// the current search. Every transition clears the active highlight
// ("searching turns off the current component overlay"), and a new
// search always re-filters from the full tree rather than from the
// previous filtered result.
type View struct {
	sess *proxy.Session
	sel  *Selector

	mu     sync.Mutex
	state  ViewState
	search string
}

// NewView builds a view over a session, starting in FullTree.
func NewView(sess *proxy.Session, sel *Selector) *View {
	return &View{sess: sess, sel: sel}
}

// State returns the current view state.
func (v *View) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// SearchText returns the active search string ("" in FullTree).
func (v *View) SearchText() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.search
}

// Search filters the listing to nodes matching text and moves the view
// to Filtered. The active highlight is cleared as a side effect.
func (v *View) Search(ctx context.Context, text string) ([]*proxy.Proxy, error) {
	if err := v.sel.Clear(); err != nil {
		return nil, err
	}
	root, err := v.sess.Root(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := query.Select(ctx, root, query.Any().WithFunc(query.TextMatch(text)))
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.state = Filtered
	v.search = text
	v.mu.Unlock()
	return matches, nil
}

// ClearSearch restores the full unfiltered listing and clears any active
// highlight.
func (v *View) ClearSearch(ctx context.Context) ([]*proxy.Proxy, error) {
	if err := v.sel.Clear(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.state = FullTree
	v.search = ""
	v.mu.Unlock()
	return v.Listing(ctx)
}

// Listing returns every node in depth-first pre-order, or only matching
// nodes while a search is active.
func (v *View) Listing(ctx context.Context) ([]*proxy.Proxy, error) {
	v.mu.Lock()
	state, search := v.state, v.search
	v.mu.Unlock()

	root, err := v.sess.Root(ctx)
	if err != nil {
		return nil, err
	}
	q := query.Any()
	if state == Filtered {
		q = q.WithFunc(query.TextMatch(search))
	}
	return query.Select(ctx, root, q)
}

package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/dom"
)

const pollInterval = 100 * time.Millisecond

// Locator finds one element by accessible role and name, the way a screen
// reader would see it. An empty Role matches any element (label lookup).
type Locator struct {
	Role string
	Name string
}

func ByRole(role, name string) Locator { return Locator{Role: role, Name: name} }

// ByLabel matches form controls by their label and any element by aria-label.
func ByLabel(label string) Locator { return Locator{Name: label} }

func (l Locator) String() string {
	if l.Role == "" {
		return fmt.Sprintf("label=%q", l.Name)
	}
	return fmt.Sprintf("role=%s[name=%q]", l.Role, l.Name)
}

// axNode is the part of an accessibility tree node the matcher needs.
type axNode struct {
	Role      string
	Name      string
	BackendID int64
	Disabled  bool
}

// Roles that only carry text of some other element. A label lookup must
// skip them or it would find the <label> and the text run instead of the
// control.
var textRoles = map[string]bool{
	"StaticText":    true,
	"InlineTextBox": true,
	"LabelText":     true,
	"RootWebArea":   true,
	"WebArea":       true,
	"ListMarker":    true,
}

// match returns the single node l selects. Exact name matches win over
// case-insensitive substring matches. Zero matches returns
// ErrElementNotFound; several returns ErrAmbiguousLocator.
func (l Locator) match(nodes []axNode) (axNode, error) {
	var exact, partial []axNode
	want := strings.ToLower(l.Name)
	for _, n := range nodes {
		if n.BackendID == 0 || n.Name == "" {
			continue
		}
		if l.Role != "" && !strings.EqualFold(n.Role, l.Role) {
			continue
		}
		if l.Role == "" && textRoles[n.Role] {
			continue
		}
		switch {
		case n.Name == l.Name:
			exact = append(exact, n)
		case strings.Contains(strings.ToLower(n.Name), want):
			partial = append(partial, n)
		}
	}

	candidates := exact
	if len(candidates) == 0 {
		candidates = partial
	}
	switch len(candidates) {
	case 0:
		return axNode{}, fmt.Errorf("%w: %s", ErrElementNotFound, l)
	case 1:
		return candidates[0], nil
	default:
		return axNode{}, fmt.Errorf("%w: %s matched %d elements", ErrAmbiguousLocator, l, len(candidates))
	}
}

// pollLocate fetches the tree until l matches exactly one enabled node. A
// disabled match keeps polling, since LibCal enables its submit buttons only
// after the form settles. The last fetch error is kept for the final error.
func pollLocate(ctx context.Context, l Locator, fetch func(context.Context) ([]axNode, error)) (axNode, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var fetchErr error
	disabled := false
	for {
		nodes, err := fetch(ctx)
		fetchErr = err
		if err == nil {
			n, merr := l.match(nodes)
			switch {
			case merr == nil && !n.Disabled:
				return n, nil
			case merr == nil:
				disabled = true
			case errors.Is(merr, ErrAmbiguousLocator):
				return axNode{}, merr
			default:
				disabled = false
			}
		}
		select {
		case <-ctx.Done():
			switch {
			case disabled:
				return axNode{}, fmt.Errorf("%w: %s is disabled (%w)", ErrNotInteractable, l, ctx.Err())
			case fetchErr != nil:
				return axNode{}, fmt.Errorf("%w: %s (%w): accessibility tree: %w", ErrElementNotFound, l, ctx.Err(), fetchErr)
			}
			return axNode{}, fmt.Errorf("%w: %s (%w)", ErrElementNotFound, l, ctx.Err())
		case <-ticker.C:
		}
	}
}

// pollClickPoint waits until the element has a non-empty box that did not
// move since the previous poll and that receives hits at its centre, then
// returns that centre.
func pollClickPoint(ctx context.Context, l Locator,
	measure func(context.Context) (dom.Quad, error),
	hits func(ctx context.Context, x, y float64) (bool, error),
) (float64, float64, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var prev dom.Quad
	reason := "has no box"
	for {
		q, err := measure(ctx)
		switch {
		case err != nil:
			reason = fmt.Sprintf("has no box (%v)", err)
		case quadArea(q) == 0:
			reason = "is not visible"
		case !sameQuad(prev, q):
			reason = "is still moving"
		default:
			x, y := quadCenter(q)
			ok, herr := hits(ctx, x, y)
			if herr == nil && ok {
				return x, y, nil
			}
			reason = "is covered by another element"
			if herr != nil {
				reason = fmt.Sprintf("could not be hit-tested (%v)", herr)
			}
		}
		if err == nil {
			prev = q
		}
		select {
		case <-ctx.Done():
			return 0, 0, fmt.Errorf("%w: %s %s (%w)", ErrNotInteractable, l, reason, ctx.Err())
		case <-ticker.C:
		}
	}
}

func quadCenter(q dom.Quad) (float64, float64) {
	if len(q) < 8 {
		return 0, 0
	}
	var x, y float64
	for i := 0; i < 8; i += 2 {
		x += q[i]
		y += q[i+1]
	}
	return x / 4, y / 4
}

// quadArea is the shoelace area of the four-point quad.
func quadArea(q dom.Quad) float64 {
	if len(q) < 8 {
		return 0
	}
	var a float64
	for i := 0; i < 8; i += 2 {
		j := (i + 2) % 8
		a += q[i]*q[j+1] - q[j]*q[i+1]
	}
	if a < 0 {
		a = -a
	}
	return a / 2
}

func sameQuad(a, b dom.Quad) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

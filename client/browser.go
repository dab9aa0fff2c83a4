package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// SessionOptions configures the browser launch.
type SessionOptions struct {
	Headless    bool
	UserAgent   string
	ProxyURL    string // passed to Chrome as --proxy-server
	StepTimeout time.Duration
}

// Session is one browser, one context, one tab. Every Page method runs with
// its own StepTimeout.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	monitor     *ResponseMonitor
	stepTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewSession launches Chrome and opens a tab. The caller must Close it.
func NewSession(parent context.Context, opts SessionOptions) (*Session, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = DefaultStepTimeout
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(opts.UserAgent),
		chromedp.WindowSize(1366, 900),
	)
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.ProxyURL != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyURL))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		monitor:     NewResponseMonitor(),
		stepTimeout: opts.StepTimeout,
	}
	chromedp.ListenTarget(ctx, s.monitor.HandleEvent)

	// The first Run starts the browser process.
	if err := chromedp.Run(ctx, network.Enable(), accessibility.Enable()); err != nil {
		s.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return s, nil
}

// Close shuts the browser down. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancel()
		s.allocCancel()
	})
	return s.closeErr
}

// Issues returns the HTTP errors seen so far.
func (s *Session) Issues() []string { return s.monitor.Issues() }

func (s *Session) Goto(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

// Click waits until the element is enabled, visible, not moving and on top
// at its centre, then clicks there with a real mouse event.
func (s *Session) Click(ctx context.Context, loc Locator) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		id, err := s.locate(ctx, loc)
		if err != nil {
			return err
		}
		measure := func(ctx context.Context) (dom.Quad, error) {
			if err := dom.ScrollIntoViewIfNeeded().WithBackendNodeID(id).Do(ctx); err != nil {
				return nil, err
			}
			box, err := dom.GetBoxModel().WithBackendNodeID(id).Do(ctx)
			if err != nil {
				return nil, err
			}
			return box.Border, nil
		}
		hits := func(ctx context.Context, x, y float64) (bool, error) {
			res, err := callOn(ctx, id, fmt.Sprintf(hitTestJS, x, y))
			return res == "ok", err
		}
		x, y, err := pollClickPoint(ctx, loc, measure, hits)
		if err != nil {
			return err
		}
		return chromedp.MouseClickXY(x, y).Do(ctx)
	}))
}

// Fill replaces the value of a text input.
func (s *Session) Fill(ctx context.Context, loc Locator, value string) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		id, err := s.locate(ctx, loc)
		if err != nil {
			return err
		}
		if err := dom.Focus().WithBackendNodeID(id).Do(ctx); err != nil {
			return fmt.Errorf("focus %s: %w", loc, err)
		}
		if _, err := callOn(ctx, id, clearValueJS); err != nil {
			return fmt.Errorf("clear %s: %w", loc, err)
		}
		if err := input.InsertText(value).Do(ctx); err != nil {
			return fmt.Errorf("type into %s: %w", loc, err)
		}
		_, err = callOn(ctx, id, dispatchChangeJS)
		return err
	}))
}

// SelectOption picks the option whose value or label equals value. Options
// may be populated after the control appears, so a missing option is polled
// for until the step times out.
func (s *Session) SelectOption(ctx context.Context, loc Locator, value string) error {
	want, err := json.Marshal(value)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(selectOptionJS, want)

	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		id, err := s.locate(ctx, loc)
		if err != nil {
			return err
		}
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			res, err := callOn(ctx, id, script)
			if err != nil {
				return fmt.Errorf("select %q in %s: %w", value, loc, err)
			}
			switch res {
			case "ok":
				return nil
			case "not-select":
				return fmt.Errorf("%w: %s", ErrNotSelect, loc)
			case "no-option":
			default:
				return fmt.Errorf("select %q in %s: unexpected result %q", value, loc, res)
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %q in %s (%w)", ErrOptionNotFound, value, loc, ctx.Err())
			case <-ticker.C:
			}
		}
	}))
}

// HTML returns the current document's outer HTML.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(s.ctx, s.stepTimeout)
	stop := context.AfterFunc(ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()
	return chromedp.Run(stepCtx, actions...)
}

// locate polls the accessibility tree until loc matches exactly one enabled
// node.
func (s *Session) locate(ctx context.Context, loc Locator) (cdp.BackendNodeID, error) {
	n, err := pollLocate(ctx, loc, func(ctx context.Context) ([]axNode, error) {
		nodes, err := accessibility.GetFullAXTree().Do(ctx)
		if err != nil {
			return nil, err
		}
		return convertAXNodes(nodes), nil
	})
	if err != nil {
		return 0, err
	}
	return cdp.BackendNodeID(n.BackendID), nil
}

func convertAXNodes(nodes []*accessibility.Node) []axNode {
	out := make([]axNode, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || n.Ignored {
			continue
		}
		an := axNode{
			Role:      axString(n.Role),
			Name:      axString(n.Name),
			BackendID: int64(n.BackendDOMNodeID),
		}
		for _, p := range n.Properties {
			if p != nil && p.Name == accessibility.PropertyNameDisabled {
				an.Disabled = axBool(p.Value)
			}
		}
		out = append(out, an)
	}
	return out
}

func axString(v *accessibility.Value) string {
	if v == nil || len(v.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal([]byte(v.Value), &s); err != nil {
		return ""
	}
	return s
}

func axBool(v *accessibility.Value) bool {
	if v == nil || len(v.Value) == 0 {
		return false
	}
	var b bool
	_ = json.Unmarshal([]byte(v.Value), &b)
	return b
}

// callOn runs fn with `this` bound to the node and returns its string result.
func callOn(ctx context.Context, id cdp.BackendNodeID, fn string) (string, error) {
	obj, err := dom.ResolveNode().WithBackendNodeID(id).Do(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

	res, exp, err := runtime.CallFunctionOn(fn).
		WithObjectID(obj.ObjectID).
		WithReturnByValue(true).
		Do(ctx)
	if err != nil {
		return "", err
	}
	if exp != nil {
		return "", exp
	}
	var out string
	if res != nil && len(res.Value) > 0 {
		_ = json.Unmarshal([]byte(res.Value), &out)
	}
	return out, nil
}

const clearValueJS = `function() {
	this.value = "";
	this.dispatchEvent(new Event("input", {bubbles: true}));
}`

const dispatchChangeJS = `function() {
	this.dispatchEvent(new Event("change", {bubbles: true}));
}`

// hitTestJS reports whether the element (or a descendant) is topmost at the
// given viewport point.
const hitTestJS = `function() {
	const el = document.elementFromPoint(%f, %f);
	return el && (el === this || this.contains(el)) ? "ok" : "covered";
}`

const selectOptionJS = `function() {
	const want = %s;
	if (!(this instanceof HTMLSelectElement)) return "not-select";
	const opt = Array.from(this.options).find(o => o.value === want || o.label === want || o.textContent.trim() === want);
	if (!opt) return "no-option";
	this.value = opt.value;
	this.dispatchEvent(new Event("input", {bubbles: true}));
	this.dispatchEvent(new Event("change", {bubbles: true}));
	return "ok";
}`

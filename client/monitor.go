package client

import (
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/network"
)

// ResponseMonitor records failed page and XHR responses seen by the browser.
// It only feeds the run report.
type ResponseMonitor struct {
	mu     sync.Mutex
	issues []string

	// MaxIssues caps how many entries are kept. Default: 20
	MaxIssues int
	dropped   int
}

// NewResponseMonitor creates a new ResponseMonitor.
func NewResponseMonitor() *ResponseMonitor {
	return &ResponseMonitor{MaxIssues: 20}
}

// HandleEvent is passed to chromedp.ListenTarget.
func (m *ResponseMonitor) HandleEvent(ev interface{}) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Response == nil {
		return
	}
	switch e.Type {
	case network.ResourceTypeDocument, network.ResourceTypeXHR, network.ResourceTypeFetch:
		m.Record(e.Response.Status, e.Response.URL)
	}
}

// Record stores status/url if the status is an HTTP error.
func (m *ResponseMonitor) Record(status int64, url string) {
	if status < 400 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.issues) >= m.MaxIssues {
		m.dropped++
		return
	}
	m.issues = append(m.issues, fmt.Sprintf("HTTP %d %s", status, url))
}

// Issues returns a copy of what was recorded so far.
func (m *ResponseMonitor) Issues() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.issues...)
	if m.dropped > 0 {
		out = append(out, fmt.Sprintf("(%d more not shown)", m.dropped))
	}
	return out
}

// Package ratelimit implements the outbound rate governor. One Governor
// exists per external platform; every gateway call passes through
// Admit before dispatch and feeds response headers back through
// UpdateFromHeaders after.
package ratelimit

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrAdmitTimeout indicates a caller waited longer than the governor's
// maximum admission wait. Treated as unrecoverable by callers.
var ErrAdmitTimeout = errors.New("ratelimit: admission wait exceeded maximum")

// WindowSpec describes one fixed quota window, e.g. 100 requests per
// 10 seconds or 5000 per day.
type WindowSpec struct {
	Window time.Duration
	Limit  int
}

// WindowUsage is a point-in-time view of one window's budget.
type WindowUsage struct {
	Window  time.Duration
	Limit   int
	Used    int
	ResetAt time.Time
}

// HeaderUpdate carries platform-reported budget state for one window.
// Remaining < 0 means the header did not report remaining quota;
// ResetAfter <= 0 means the header did not report reset timing.
type HeaderUpdate struct {
	WindowIndex int
	Remaining   int
	ResetAfter  time.Duration
}

// HeaderParser extracts budget updates from a platform response.
// Each platform adapter supplies its own parser.
type HeaderParser func(http.Header) []HeaderUpdate

type windowState struct {
	spec    WindowSpec
	used    int
	resetAt time.Time
}

// Governor tracks consumed quota against one platform's advertised
// limits and admits outbound calls. Windows are fixed, anchored at
// first use, and reset in place when their boundary passes.
type Governor struct {
	mu       sync.Mutex
	platform string
	windows  []*windowState
	parser   HeaderParser
	maxWait  time.Duration
	logger   *zap.Logger
}

// GovernorOption is a functional option for Governor configuration.
type GovernorOption func(*Governor)

// WithLogger sets the governor's logger.
func WithLogger(logger *zap.Logger) GovernorOption {
	return func(g *Governor) {
		g.logger = logger
	}
}

// WithMaxWait caps the total time one Admit call may spend waiting.
func WithMaxWait(d time.Duration) GovernorOption {
	return func(g *Governor) {
		g.maxWait = d
	}
}

// WithHeaderParser sets the platform-specific response header parser.
func WithHeaderParser(p HeaderParser) GovernorOption {
	return func(g *Governor) {
		g.parser = p
	}
}

// NewGovernor creates a governor for one platform.
func NewGovernor(platform string, specs []WindowSpec, opts ...GovernorOption) *Governor {
	g := &Governor{
		platform: platform,
		windows:  make([]*windowState, 0, len(specs)),
		maxWait:  5 * time.Minute,
		logger:   zap.NewNop(),
	}
	for _, spec := range specs {
		g.windows = append(g.windows, &windowState{spec: spec})
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit blocks the caller until every window has headroom, then
// reserves one unit of quota in each. The wait is a timed sleep, never
// a busy poll; the window boundary is re-checked after each sleep so a
// reset passing mid-wait is observed. Returns ErrAdmitTimeout when the
// cumulative wait exceeds the configured maximum.
func (g *Governor) Admit() error {
	var waited time.Duration

	for {
		g.mu.Lock()
		now := time.Now()
		wait := g.longestWaitLocked(now)
		if wait == 0 {
			for _, w := range g.windows {
				w.used++
			}
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		if waited+wait > g.maxWait {
			return fmt.Errorf("%w: platform %s, waited %s", ErrAdmitTimeout, g.platform, waited)
		}

		g.logger.Debug("rate governor waiting",
			zap.String("platform", g.platform),
			zap.Duration("wait", wait))
		time.Sleep(wait)
		waited += wait
	}
}

// longestWaitLocked rolls expired windows forward and returns the
// longest remaining wait across exhausted windows, or 0 when every
// window has capacity. Caller must hold g.mu.
func (g *Governor) longestWaitLocked(now time.Time) time.Duration {
	var longest time.Duration
	for _, w := range g.windows {
		if w.resetAt.IsZero() {
			w.resetAt = now.Add(w.spec.Window)
		}
		if !now.Before(w.resetAt) {
			w.used = 0
			w.resetAt = now.Add(w.spec.Window)
		}
		if w.used >= w.spec.Limit {
			if wait := w.resetAt.Sub(now); wait > longest {
				longest = wait
			}
		}
	}
	return longest
}

// RecordUsage adds n consumed units to every window, for calls that
// cost more than the single unit Admit reserved.
func (g *Governor) RecordUsage(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, w := range g.windows {
		w.used += n
	}
}

// UpdateFromHeaders applies platform-reported budget state. The
// platform's numbers are authoritative and override the local counter.
func (g *Governor) UpdateFromHeaders(h http.Header) {
	if g.parser == nil {
		return
	}
	updates := g.parser(h)
	if len(updates) == 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	for _, u := range updates {
		if u.WindowIndex < 0 || u.WindowIndex >= len(g.windows) {
			continue
		}
		w := g.windows[u.WindowIndex]
		if u.Remaining >= 0 {
			used := w.spec.Limit - u.Remaining
			if used < 0 {
				used = 0
			}
			w.used = used
		}
		if u.ResetAfter > 0 {
			w.resetAt = now.Add(u.ResetAfter)
		}
	}
}

// Usage returns a snapshot of every window's budget.
func (g *Governor) Usage() []WindowUsage {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	g.longestWaitLocked(now)

	out := make([]WindowUsage, 0, len(g.windows))
	for _, w := range g.windows {
		out = append(out, WindowUsage{
			Window:  w.spec.Window,
			Limit:   w.spec.Limit,
			Used:    w.used,
			ResetAt: w.resetAt,
		})
	}
	return out
}

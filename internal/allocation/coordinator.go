package allocation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Outcome is the coordinator's view of the latest lookup.
type Outcome struct {
	RequestID uint64 `json:"request_id"`
	RGCode    string `json:"rg_code"`
	// Pending is true while the request for RGCode is in flight.
	Pending bool    `json:"pending"`
	Result  *Result `json:"result,omitempty"`
	// Error is set when the lookup failed. The outcome still counts as
	// resolved and carries an empty result so the operator can move on.
	Error string `json:"error,omitempty"`
}

// Found reports whether the lookup resolved with at least one record.
func (o Outcome) Found() bool {
	return o.Result != nil && len(o.Result.Items) > 0
}

// Coordinator issues allocation lookups as RGs are confirmed. Responses
// that arrive after a newer request was issued are discarded, and
// re-confirming the last queried RG does not issue a new request.
type Coordinator struct {
	looker Looker

	mu      sync.Mutex
	counter uint64
	lastRG  string
	latest  Outcome
	waiters []chan struct{}
}

// NewCoordinator creates a coordinator backed by looker.
func NewCoordinator(looker Looker) *Coordinator {
	return &Coordinator{looker: looker}
}

// Dispatch starts a lookup for rgCode in the background and returns its
// request id. It returns false when rgCode is empty or equals the last
// queried RG.
func (c *Coordinator) Dispatch(ctx context.Context, rgCode string) (uint64, bool) {
	rgCode = strings.ToUpper(strings.TrimSpace(rgCode))
	if rgCode == "" {
		return 0, false
	}

	c.mu.Lock()
	if rgCode == c.lastRG {
		id := c.counter
		c.mu.Unlock()
		slog.Debug("allocation lookup skipped, RG unchanged", "rg_code", rgCode)
		return id, false
	}
	c.counter++
	id := c.counter
	c.lastRG = rgCode
	c.latest = Outcome{RequestID: id, RGCode: rgCode, Pending: true}
	c.mu.Unlock()

	// The lookup outlives the operator action that triggered it.
	go c.run(context.WithoutCancel(ctx), id, rgCode)
	return id, true
}

func (c *Coordinator) run(ctx context.Context, id uint64, rgCode string) {
	result, err := c.looker.Lookup(ctx, rgCode, "")

	c.mu.Lock()
	defer c.mu.Unlock()

	if id != c.counter {
		slog.Debug("discarding stale allocation lookup", "rg_code", rgCode, "request_id", id, "current", c.counter)
		return
	}

	outcome := Outcome{RequestID: id, RGCode: rgCode}
	if err != nil {
		slog.Warn("allocation lookup failed", "rg_code", rgCode, "error", err)
		outcome.Error = err.Error()
		outcome.Result = &Result{RGCode: rgCode, Items: []Record{}}
	} else {
		slog.Info("allocation lookup finished", "rg_code", rgCode, "total", result.Total, "items", len(result.Items))
		outcome.Result = result
	}
	c.latest = outcome
	c.notify()
}

// Latest returns the most recent outcome.
func (c *Coordinator) Latest() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Wait blocks until the current request resolves or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if !c.latest.Pending {
		o := c.latest
		c.mu.Unlock()
		return o, nil
	}
	ch := make(chan struct{})
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	select {
	case <-ch:
		return c.Latest(), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Reset forgets the last RG and invalidates any in-flight request.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	c.lastRG = ""
	c.latest = Outcome{}
	c.notify()
}

func (c *Coordinator) notify() {
	for _, ch := range c.waiters {
		close(ch)
	}
	c.waiters = nil
}

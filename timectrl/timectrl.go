package timectrl

import (
	"context"
	"sync"
)

// SimClock gives read access to simulated time. Routers and protocol
// engines depend on this abstraction rather than on the controller.
type SimClock interface {
	// Now returns the current simulated tick.
	Now() int
}

// Clock is a settable SimClock. Time only moves forward.
type Clock struct {
	mu  sync.RWMutex
	now int
}

// NewClock returns a clock positioned at tick 0.
func NewClock() *Clock {
	return &Clock{}
}

// Now implements SimClock.
func (c *Clock) Now() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to tick. Attempts to move backwards are ignored
// and reported as false.
func (c *Clock) Set(tick int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tick < c.now {
		return false
	}
	c.now = tick
	return true
}

// TimeController drives simulated time tick by tick and notifies
// registered listeners, in registration order, on every tick.
type TimeController struct {
	clock     *Clock
	listeners []func(tick int) error
}

// NewTimeController constructs a controller advancing clock.
func NewTimeController(clock *Clock) *TimeController {
	if clock == nil {
		clock = NewClock()
	}
	return &TimeController{clock: clock}
}

// Clock returns the clock driven by the controller.
func (tc *TimeController) Clock() *Clock {
	return tc.clock
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(tick int) error) {
	tc.listeners = append(tc.listeners, fn)
}

// Run advances through ticks 0..ticks-1. Each tick the clock is set
// before listeners run. The first listener error stops the run and is
// returned; so does cancellation of ctx, checked between ticks.
func (tc *TimeController) Run(ctx context.Context, ticks int) error {
	for tick := 0; tick < ticks; tick++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tc.clock.Set(tick)
		for _, fn := range tc.listeners {
			if err := fn(tick); err != nil {
				return err
			}
		}
	}
	return nil
}

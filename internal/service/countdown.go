package service

import (
	"context"
	"sync"
	"time"
)

// Countdown polls a caller-supplied accessor on a fixed cadence and exposes
// a throttled display value: observers only see a change when the polled
// value actually differs. Skip is optimistic — the display zeroes
// immediately without waiting for confirmation.
type Countdown struct {
	get      func() int
	onSkip   func()
	interval time.Duration

	mu      sync.Mutex
	display int
	last    int
	cancel  context.CancelFunc
}

type CountdownOption func(*Countdown)

// WithInterval overrides the 1s polling cadence; used by tests.
func WithInterval(d time.Duration) CountdownOption {
	return func(c *Countdown) {
		c.interval = d
	}
}

func NewCountdown(get func() int, onSkip func(), opts ...CountdownOption) *Countdown {
	c := &Countdown{
		get:      get,
		onSkip:   onSkip,
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins polling until ctx is cancelled or Stop is called.
func (c *Countdown) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.display = c.get()
	c.last = c.display
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.poll()
			}
		}
	}()
}

func (c *Countdown) poll() {
	value := c.get()

	c.mu.Lock()
	if value != c.last {
		c.last = value
		c.display = value
	}
	c.mu.Unlock()
}

// Display returns the throttled countdown value.
func (c *Countdown) Display() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.display
}

// Skip zeroes the display and fires the skip action. No-op at zero.
func (c *Countdown) Skip() {
	c.mu.Lock()
	if c.display <= 0 {
		c.mu.Unlock()
		return
	}
	c.display = 0
	c.last = 0
	onSkip := c.onSkip
	c.mu.Unlock()

	if onSkip != nil {
		onSkip()
	}
}

func (c *Countdown) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

package viewer

import (
	"sync"
	"time"
)

// FrameClock delivers animation frame ticks to the render loop.
type FrameClock interface {
	Frames() <-chan time.Time
	Stop()
}

type tickerClock struct {
	t *time.Ticker
}

// NewTickerClock returns a FrameClock that fires rate times per second.
func NewTickerClock(rate int) FrameClock {
	if rate <= 0 {
		rate = 60
	}
	return &tickerClock{t: time.NewTicker(time.Second / time.Duration(rate))}
}

func (c *tickerClock) Frames() <-chan time.Time { return c.t.C }
func (c *tickerClock) Stop()                    { c.t.Stop() }

// ManualClock is a FrameClock advanced by Tick. Each Tick blocks until the
// render loop has taken the frame, so after Tick returns the frame is either
// rendering or done.
type ManualClock struct {
	ch       chan time.Time
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewManualClock creates a ManualClock.
func NewManualClock() *ManualClock {
	return &ManualClock{ch: make(chan time.Time), stopped: make(chan struct{})}
}

// Frames implements FrameClock.
func (c *ManualClock) Frames() <-chan time.Time { return c.ch }

// Stop implements FrameClock. Pending and later Ticks return false.
func (c *ManualClock) Stop() {
	c.stopOnce.Do(func() { close(c.stopped) })
}

// Tick delivers one frame. It returns false if the clock was stopped.
func (c *ManualClock) Tick() bool {
	select {
	case c.ch <- time.Now():
		return true
	case <-c.stopped:
		return false
	}
}

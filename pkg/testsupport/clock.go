package testsupport

import (
	"sort"
	"sync"
	"time"

	"github.com/elodin/bridge/pkg/autosave"
)

// Clock is a manual autosave.Clock. Timers only fire from Advance, on the
// calling goroutine, in deadline order.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*clockTimer
}

type clockTimer struct {
	clock    *Clock
	deadline time.Time
	seq      int
	fn       func()
	active   bool
}

// NewClock returns a clock starting at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

var _ autosave.Clock = (*Clock)(nil)

// Now reports the fake current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers fn to run once the clock advances past d.
func (c *Clock) AfterFunc(d time.Duration, fn func()) autosave.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	timer := &clockTimer{
		clock:    c,
		deadline: c.now.Add(d),
		seq:      c.seq,
		fn:       fn,
		active:   true,
	}
	c.timers = append(c.timers, timer)
	return timer
}

// Stop cancels the timer. It reports whether the timer was still pending.
func (t *clockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.active = false
	return was
}

// Advance moves the clock forward by d, firing due timers. Callbacks may
// schedule new timers; those fire too when they fall inside the window.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			if target.After(c.now) {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		next.active = false
		if next.deadline.After(c.now) {
			c.now = next.deadline
		}
		fn := next.fn
		c.mu.Unlock()

		fn()
	}
}

// Pending reports how many timers are waiting to fire.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, timer := range c.timers {
		if timer.active {
			count++
		}
	}
	return count
}

func (c *Clock) nextDueLocked(target time.Time) *clockTimer {
	active := c.timers[:0]
	for _, timer := range c.timers {
		if timer.active {
			active = append(active, timer)
		}
	}
	c.timers = active

	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].deadline.Equal(c.timers[j].deadline) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].deadline.Before(c.timers[j].deadline)
	})
	if len(c.timers) == 0 || c.timers[0].deadline.After(target) {
		return nil
	}
	return c.timers[0]
}

package clock

import (
	"sort"
	"sync"
	"time"

	"github.com/eleven-am/loom/internal/ports"
)

// Fake is a manually advanced clock. After and AfterFunc with a
// non-positive duration fire immediately.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	seq    int
}

type fakeTimer struct {
	clock   *Fake
	at      time.Time
	seq     int
	fn      func()
	ch      chan time.Time
	stopped bool
	fired   bool
}

var _ ports.Clock = (*Fake)(nil)

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.Now()
		return ch
	}
	c.schedule(d, nil, ch)
	return ch
}

func (c *Fake) AfterFunc(d time.Duration, f func()) ports.Timer {
	t := c.schedule(d, f, nil)
	if d <= 0 {
		c.fireDue()
	}
	return t
}

func (c *Fake) schedule(d time.Duration, f func(), ch chan time.Time) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, fn: f, ch: ch}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs every timer that came due, in due
// order, on the caller's goroutine.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	c.fireDue()
}

// Set jumps to t without going backwards.
func (c *Fake) Set(t time.Time) {
	c.mu.Lock()
	if t.After(c.now) {
		c.now = t
	}
	c.mu.Unlock()
	c.fireDue()
}

// Pending reports the number of armed timers.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (c *Fake) fireDue() {
	for {
		c.mu.Lock()
		var due []*fakeTimer
		var rest []*fakeTimer
		for _, t := range c.timers {
			switch {
			case t.stopped || t.fired:
			case !t.at.After(c.now):
				t.fired = true
				due = append(due, t)
			default:
				rest = append(rest, t)
			}
		}
		c.timers = rest
		now := c.now
		c.mu.Unlock()

		if len(due) == 0 {
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at.Equal(due[j].at) {
				return due[i].seq < due[j].seq
			}
			return due[i].at.Before(due[j].at)
		})
		for _, t := range due {
			if t.fn != nil {
				t.fn()
			}
			if t.ch != nil {
				t.ch <- now
			}
		}
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

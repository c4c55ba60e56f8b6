package clock

import (
	"time"

	"github.com/eleven-am/loom/internal/ports"
)

// System is the wall clock.
type System struct{}

var _ ports.Clock = System{}

func New() System {
	return System{}
}

func (System) Now() time.Time {
	return time.Now().UTC()
}

func (System) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (System) AfterFunc(d time.Duration, f func()) ports.Timer {
	return time.AfterFunc(d, f)
}

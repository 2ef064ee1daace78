// Package scheduler drives game ticks on a fixed interval without any UI
// toolkit. Each Arm schedules exactly one tick; the tick handler decides
// whether the next one is armed.
package scheduler

import (
	"sync"
	"time"
)

// DefaultInterval 默认 tick 间隔
const DefaultInterval = 200 * time.Millisecond

// Timer is the part of *time.Timer the scheduler needs.
type Timer interface {
	Stop() bool
}

// AfterFunc starts a timer that calls f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Scheduler arms one tick at a time. A generation counter acts as the
// cancellation token: a timer that fires after Arm or Cancel was called
// again sees a stale generation and does nothing.
type Scheduler struct {
	mu       sync.Mutex
	interval time.Duration
	after    AfterFunc
	tick     func() bool
	timer    Timer
	gen      uint64
}

// New returns a scheduler that calls tick every interval while tick keeps
// returning true.
func New(interval time.Duration, tick func() bool) *Scheduler {
	return NewWithTimer(interval, tick, realAfterFunc)
}

// NewWithTimer is New with a custom timer source.
func NewWithTimer(interval time.Duration, tick func() bool, after AfterFunc) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{interval: interval, tick: tick, after: after}
}

// SetInterval changes the period used by the next Arm.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

// Interval returns the current period.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Arm schedules the next tick, replacing any tick already pending.
func (s *Scheduler) Arm() {
	s.mu.Lock()
	s.armLocked()
	s.mu.Unlock()
}

func (s *Scheduler) armLocked() {
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.after(s.interval, func() { s.fire(gen) })
}

// Cancel drops the pending tick, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
}

// Armed reports whether a tick is pending.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	// tick 在锁外执行，处理函数里可以调用 Arm/Cancel
	again := s.tick()

	s.mu.Lock()
	defer s.mu.Unlock()
	// tick 期间有人 Arm 或 Cancel 过就不再重排
	if again && gen == s.gen {
		s.armLocked()
	}
}

// Package clock abstracts the time source used by timeout arithmetic so that
// budgets can be tested without sleeping.
package clock

import (
	"sync"
	"time"
)

// Clock defines the time operations the session layer needs.
type Clock interface {
	// Now returns the current time. Values returned by the system clock carry
	// a monotonic reading, so Sub between two of them ignores wall-clock jumps.
	Now() time.Time
}

// Millis returns t as Unix milliseconds, the unit START_MILLIS is reported in.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// SystemClock 系统时钟
type SystemClock struct{}

// NewSystemClock 创建系统时钟
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

// Now returns time.Now().
func (c *SystemClock) Now() time.Time {
	return time.Now()
}

// MockClock is a manually advanced clock for tests.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock 创建固定在 t 的模拟时钟
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mock time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t, backwards included.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Add advances the clock by d.
func (c *MockClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	defaultMu    sync.RWMutex
	defaultClock Clock = NewSystemClock()
)

// Default returns the process clock.
func Default() Clock {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultClock
}

// SetDefault replaces the process clock; nil is ignored.
func SetDefault(c Clock) {
	if c == nil {
		return
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultClock = c
}

// ResetDefault restores the system clock.
func ResetDefault() {
	SetDefault(NewSystemClock())
}

// OrDefault returns c, or the process clock when c is nil.
func OrDefault(c Clock) Clock {
	if c == nil {
		return Default()
	}
	return c
}

package exchange

import (
	"net/http"
	"sync"
	"time"
)

// Clock estimates the offset between the exchange's clock and the local one
// from the Date header of every response. Corrected timestamps keep signed
// and time-filtered requests valid on hosts with drifting clocks. Precision
// is one second — the resolution of the Date header.
type Clock struct {
	mu      sync.RWMutex
	offset  time.Duration
	samples int
	now     func() time.Time // injectable for tests
}

// NewClock creates a clock with zero offset.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// UpdateFromHeader ingests a response Date header. Empty or malformed
// values are ignored.
func (c *Clock) UpdateFromHeader(date string) {
	if date == "" {
		return
	}
	server, err := http.ParseTime(date)
	if err != nil {
		return
	}
	offset := server.Sub(c.now()).Round(time.Second)

	c.mu.Lock()
	c.offset = offset
	c.samples++
	c.mu.Unlock()
}

// Now returns the current time corrected by the estimated server offset.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now().Add(c.offset)
}

// Offset returns the current estimate of serverTime − localTime.
func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Synced reports whether at least one Date header has been observed.
func (c *Clock) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.samples > 0
}

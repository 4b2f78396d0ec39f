package price

import (
	"sync/atomic"
	"time"
)

// Cooldown records "upstream rate-limited until T" process-wide. Writes
// are last-writer-wins; in-flight calls are not paused, callers surface
// the state as an advisory warning.
type Cooldown struct {
	until atomic.Int64 // unix seconds
	span  time.Duration
}

// NewCooldown creates a cooldown tracker that arms for span per signal.
func NewCooldown(span time.Duration) *Cooldown {
	return &Cooldown{span: span}
}

// Trip records an upstream throttle signal.
func (c *Cooldown) Trip() {
	c.until.Store(time.Now().Add(c.span).Unix())
}

// Active reports whether the cooldown window is still open.
func (c *Cooldown) Active() bool {
	return time.Now().Unix() < c.until.Load()
}

// Until returns the cooldown expiry, zero when never tripped.
func (c *Cooldown) Until() time.Time {
	v := c.until.Load()
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0)
}

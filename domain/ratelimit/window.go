// Package ratelimit provides pure fixed-window quota arithmetic.
// All functions are deterministic - same input always produces same output.
package ratelimit

import (
	"fmt"
	"time"
)

// Window is a fixed time bucket that bounds a counter's validity.
type Window string

const (
	Minute Window = "minute"
	Day    Window = "day"
)

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	switch w {
	case Minute:
		return time.Minute
	case Day:
		return 24 * time.Hour
	}
	return 0
}

// Bounds returns the start and end of the window containing now.
// Windows are aligned to UTC.
// This is a PURE function.
func (w Window) Bounds(now time.Time) (start, end time.Time) {
	d := w.Duration()
	start = now.UTC().Truncate(d)
	return start, start.Add(d)
}

// Policy is the quota attached to an API key (value type).
// A zero field means "not set" and is filled from the default policy.
type Policy struct {
	RequestsPerMinute int64 `json:"requestsPerMinute" yaml:"requests_per_minute"`
	RequestsPerDay    int64 `json:"requestsPerDay" yaml:"requests_per_day"`
}

// WithDefaults fills unset fields of p from def.
// This is a PURE function.
func (p Policy) WithDefaults(def Policy) Policy {
	if p.RequestsPerMinute <= 0 {
		p.RequestsPerMinute = def.RequestsPerMinute
	}
	if p.RequestsPerDay <= 0 {
		p.RequestsPerDay = def.RequestsPerDay
	}
	return p
}

// Limit returns the limit for a window.
func (p Policy) Limit(w Window) int64 {
	if w == Minute {
		return p.RequestsPerMinute
	}
	return p.RequestsPerDay
}

// Counter identifies one (key, window) counter and its lifetime (value type).
type Counter struct {
	Key    string
	Window Window
	Start  time.Time
	End    time.Time
	Limit  int64
}

// TTL returns how long the counter lives from now.
// Never less than one second so a counter created at the edge of a
// window still expires.
func (c Counter) TTL(now time.Time) time.Duration {
	ttl := c.End.Sub(now)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

// CounterKey builds the store key for a counter.
// Format: <prefix>:{<keyID>}:<window>:<windowStartUnix>
// The braces are a Redis Cluster hash tag: every counter of one key maps
// to the same slot, so a script can touch the minute and day counters
// together.
func CounterKey(prefix, keyID string, w Window, start time.Time) string {
	return fmt.Sprintf("%s:{%s}:%s:%d", prefix, keyID, w, start.Unix())
}

// Counters returns the minute and day counters for a key at now, in that order.
// This is a PURE function.
func Counters(prefix, keyID string, p Policy, now time.Time) []Counter {
	out := make([]Counter, 0, 2)
	for _, w := range []Window{Minute, Day} {
		start, end := w.Bounds(now)
		out = append(out, Counter{
			Key:    CounterKey(prefix, keyID, w, start),
			Window: w,
			Start:  start,
			End:    end,
			Limit:  p.Limit(w),
		})
	}
	return out
}

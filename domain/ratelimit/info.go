package ratelimit

import "time"

// Info is the current quota state of an API key (value type).
type Info struct {
	Limits        Policy    `json:"limits"`
	MinuteCount   int64     `json:"currentMinuteCount"`
	DayCount      int64     `json:"currentDayCount"`
	MinuteResetAt time.Time `json:"minuteResetAt"`
	DayResetAt    time.Time `json:"dayResetAt"`
	IsLimited     bool      `json:"isLimited"`
	LimitedBy     Window    `json:"limitedBy,omitempty"`
}

// Evaluate builds the quota state from the current counts.
// A key is limited when either count has reached its limit.
// This is a PURE function.
func Evaluate(p Policy, minuteCount, dayCount int64, now time.Time) Info {
	_, minuteEnd := Minute.Bounds(now)
	_, dayEnd := Day.Bounds(now)

	info := Info{
		Limits:        p,
		MinuteCount:   minuteCount,
		DayCount:      dayCount,
		MinuteResetAt: minuteEnd,
		DayResetAt:    dayEnd,
	}

	switch {
	case minuteCount >= p.RequestsPerMinute:
		info.IsLimited = true
		info.LimitedBy = Minute
	case dayCount >= p.RequestsPerDay:
		info.IsLimited = true
		info.LimitedBy = Day
	}
	return info
}

// Remaining returns the requests left before the tighter window limits.
func (i Info) Remaining() int64 {
	m := i.Limits.RequestsPerMinute - i.MinuteCount
	d := i.Limits.RequestsPerDay - i.DayCount
	if d < m {
		m = d
	}
	if m < 0 {
		return 0
	}
	return m
}

// ResetAt returns when the binding window resets.
// For a key limited by its day quota that is the end of the day.
func (i Info) ResetAt() time.Time {
	if i.LimitedBy == Day {
		return i.DayResetAt
	}
	return i.MinuteResetAt
}

// RetryAfter returns how long a limited caller should wait.
// This is a PURE function.
func (i Info) RetryAfter(now time.Time) time.Duration {
	if !i.IsLimited {
		return 0
	}
	d := i.ResetAt().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

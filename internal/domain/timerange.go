package domain

import "time"

// TimeRange is an immutable [Start, End] interval with Start strictly
// before End.
type TimeRange struct {
	start time.Time
	end   time.Time
}

// NewTimeRange validates and builds a TimeRange.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if start.IsZero() {
		return TimeRange{}, validationError("Start time is required")
	}
	if end.IsZero() {
		return TimeRange{}, validationError("End time is required")
	}
	if !start.Before(end) {
		return TimeRange{}, validationError("Start time must be before end time")
	}
	return TimeRange{start: start, end: end}, nil
}

// TimeRangeFromDuration builds the range [start, start+d].
func TimeRangeFromDuration(start time.Time, d time.Duration) (TimeRange, error) {
	return NewTimeRange(start, start.Add(d))
}

// LastHour returns the hour ending now.
func LastHour() TimeRange { return trailing(time.Hour) }

// LastDay returns the 24 hours ending now.
func LastDay() TimeRange { return trailing(24 * time.Hour) }

// LastWeek returns the 7 days ending now.
func LastWeek() TimeRange { return trailing(7 * 24 * time.Hour) }

func trailing(d time.Duration) TimeRange {
	end := time.Now()
	return TimeRange{start: end.Add(-d), end: end}
}

// Start returns the inclusive lower bound.
func (r TimeRange) Start() time.Time { return r.start }

// End returns the inclusive upper bound.
func (r TimeRange) End() time.Time { return r.end }

// DurationMs returns the length of the range in milliseconds.
func (r TimeRange) DurationMs() int64 {
	return r.end.UnixMilli() - r.start.UnixMilli()
}

// DurationSeconds is floor(DurationMs / 1000).
func (r TimeRange) DurationSeconds() int64 { return r.DurationMs() / 1000 }

// DurationMinutes is floor(DurationSeconds / 60).
func (r TimeRange) DurationMinutes() int64 { return r.DurationSeconds() / 60 }

// DurationHours is floor(DurationMinutes / 60).
func (r TimeRange) DurationHours() int64 { return r.DurationMinutes() / 60 }

// Contains reports whether t lies within the range, bounds included.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.start) && !t.After(r.end)
}

// Overlaps reports whether the two ranges share any instant other than a
// single touching bound.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.start.Before(other.end) && r.end.After(other.start)
}

// Equals compares both bounds at millisecond precision.
func (r TimeRange) Equals(other TimeRange) bool {
	return r.start.UnixMilli() == other.start.UnixMilli() &&
		r.end.UnixMilli() == other.end.UnixMilli()
}

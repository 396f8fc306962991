package anim

import (
	"encoding/json"
	"fmt"
	"math"
)

// TimePoint identifies an animation time as a number of ticks.
type TimePoint int32

const (
	// TimeNegativeInfinity is the smallest representable time.
	TimeNegativeInfinity TimePoint = math.MinInt32
	// TimePositiveInfinity is the largest representable time.
	TimePositiveInfinity TimePoint = math.MaxInt32
)

// TimeInterval is a closed range of animation times.  Intervals are always kept in
// canonical form: an interval whose start lies after its end is the empty interval.
type TimeInterval struct {
	start TimePoint
	end   TimePoint
}

var emptyInterval = TimeInterval{start: TimePositiveInfinity, end: TimeNegativeInfinity}

// NewInterval returns the interval [start, end], or the empty interval if start > end.
func NewInterval(start TimePoint, end TimePoint) TimeInterval {
	if start > end {
		return emptyInterval
	}
	return TimeInterval{start: start, end: end}
}

// Infinite returns the interval that contains every time point.
func Infinite() TimeInterval {
	return TimeInterval{start: TimeNegativeInfinity, end: TimePositiveInfinity}
}

// Empty returns the interval that contains no time point.
func Empty() TimeInterval {
	return emptyInterval
}

// Instant returns the interval that contains only t.
func Instant(t TimePoint) TimeInterval {
	return TimeInterval{start: t, end: t}
}

// Start returns the first time of the interval.
func (i TimeInterval) Start() TimePoint {
	return i.start
}

// End returns the last time of the interval.
func (i TimeInterval) End() TimePoint {
	return i.end
}

// IsEmpty reports whether the interval contains no time point.
func (i TimeInterval) IsEmpty() bool {
	return i.start > i.end
}

// IsInfinite reports whether the interval spans all representable times.
func (i TimeInterval) IsInfinite() bool {
	return i.start == TimeNegativeInfinity && i.end == TimePositiveInfinity
}

// Contains tests whether t lies inside the interval.
func (i TimeInterval) Contains(t TimePoint) bool {
	return i.start <= t && t <= i.end
}

// Intersect returns the overlap of the two intervals.
func (i TimeInterval) Intersect(other TimeInterval) TimeInterval {
	if i.IsEmpty() || other.IsEmpty() {
		return emptyInterval
	}
	start := i.start
	if other.start > start {
		start = other.start
	}
	end := i.end
	if other.end < end {
		end = other.end
	}
	return NewInterval(start, end)
}

func (i TimeInterval) String() string {
	switch {
	case i.IsEmpty():
		return "[empty]"
	case i.IsInfinite():
		return "[infinite]"
	}
	return fmt.Sprintf("[%s, %s]", formatTime(i.start), formatTime(i.end))
}

func formatTime(t TimePoint) string {
	switch t {
	case TimeNegativeInfinity:
		return "-inf"
	case TimePositiveInfinity:
		return "+inf"
	}
	return fmt.Sprintf("%d", t)
}

type intervalJSON struct {
	Start    *TimePoint `json:"start,omitempty"`
	End      *TimePoint `json:"end,omitempty"`
	Empty    bool       `json:"empty,omitempty"`
	Infinite bool       `json:"infinite,omitempty"`
}

// MarshalJSON encodes the interval, leaving out infinite bounds.
func (i TimeInterval) MarshalJSON() ([]byte, error) {
	out := intervalJSON{Empty: i.IsEmpty(), Infinite: i.IsInfinite()}
	if !out.Empty && !out.Infinite {
		if i.start != TimeNegativeInfinity {
			start := i.start
			out.Start = &start
		}
		if i.end != TimePositiveInfinity {
			end := i.end
			out.End = &end
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an interval written by MarshalJSON.  Missing bounds are infinite.
func (i *TimeInterval) UnmarshalJSON(data []byte) error {
	var in intervalJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch {
	case in.Empty:
		*i = Empty()
	case in.Infinite:
		*i = Infinite()
	default:
		start, end := TimeNegativeInfinity, TimePositiveInfinity
		if in.Start != nil {
			start = *in.Start
		}
		if in.End != nil {
			end = *in.End
		}
		*i = NewInterval(start, end)
	}
	return nil
}

package anim

// DefaultTicksPerFrame is the number of time ticks per animation frame.
const DefaultTicksPerFrame = 4800

// Clock converts between animation frames and time points.
type Clock struct {
	TicksPerFrame int
}

// NewClock returns a clock with the given resolution, falling back to the default for
// non-positive values.
func NewClock(ticksPerFrame int) Clock {
	if ticksPerFrame <= 0 {
		ticksPerFrame = DefaultTicksPerFrame
	}
	return Clock{TicksPerFrame: ticksPerFrame}
}

// FrameToTime returns the time at which the given frame starts.
func (c Clock) FrameToTime(frame int) TimePoint {
	return TimePoint(frame * c.ticks())
}

// TimeToFrame returns the frame shown at time t.  Times between two frames map to the
// earlier one.
func (c Clock) TimeToFrame(t TimePoint) int {
	ticks := c.ticks()
	frame := int(t) / ticks
	if int(t)%ticks < 0 {
		frame--
	}
	return frame
}

func (c Clock) ticks() int {
	if c.TicksPerFrame <= 0 {
		return DefaultTicksPerFrame
	}
	return c.TicksPerFrame
}

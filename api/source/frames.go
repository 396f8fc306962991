package source

import (
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
)

// clampFrame maps an animation time to a valid index of a trajectory with count frames.
func clampFrame(clock anim.Clock, t anim.TimePoint, count int) int {
	frame := clock.TimeToFrame(t)
	if frame < 0 {
		frame = 0
	} else if frame >= count && count > 0 {
		frame = count - 1
	}
	return frame
}

// frameValidity returns the time interval during which frame is shown.  The first frame
// extends to negative infinity and the last frame to positive infinity.
func frameValidity(clock anim.Clock, frame int, count int) anim.TimeInterval {
	iv := anim.Infinite()
	if frame > 0 {
		iv = iv.Intersect(anim.NewInterval(clock.FrameToTime(frame), anim.TimePositiveInfinity))
	}
	if frame < count-1 {
		end := clock.FrameToTime(frame+1) - 1
		if start := clock.FrameToTime(frame); end < start {
			end = start
		}
		iv = iv.Intersect(anim.NewInterval(anim.TimeNegativeInfinity, end))
	}
	return iv
}

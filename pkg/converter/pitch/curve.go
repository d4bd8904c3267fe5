// Package pitch implements the pitch curve operations shared by the codecs:
// resampling, gap padding, redundant point reduction, vibrato synthesis and
// the VOCALOID pitch-bend event model.
package pitch

import (
	"sort"

	"github.com/james-see/singformat/pkg/model"
)

// Interpolate inserts, between every pair of valued neighbours, a point at
// each multiple of interval strictly between them holding the linearly
// interpolated value. Original points are kept. Gaps are not bridged.
func Interpolate(points []model.PitchPoint, interval int64) []model.PitchPoint {
	if interval <= 0 || len(points) < 2 {
		return clonePoints(points)
	}
	out := make([]model.PitchPoint, 0, len(points))
	for i, cur := range points {
		out = append(out, clonePoint(cur))
		if i+1 == len(points) {
			break
		}
		next := points[i+1]
		if cur.Value == nil || next.Value == nil {
			continue
		}
		from, to := *cur.Value, *next.Value
		span := float64(next.Tick - cur.Tick)
		for tick := firstMultipleAfter(cur.Tick, interval); tick < next.Tick; tick += interval {
			ratio := float64(tick-cur.Tick) / span
			out = append(out, model.Point(tick, from+(to-from)*ratio))
		}
	}
	return out
}

// AppendPointsForInterpolation pads step-held gaps before resampling. When two
// neighbours are more than interval apart, a point carrying the previous
// value is inserted at next.Tick-interval so the step shape survives linear
// interpolation.
func AppendPointsForInterpolation(points []model.PitchPoint, interval int64) []model.PitchPoint {
	out := make([]model.PitchPoint, 0, len(points))
	for i, cur := range points {
		if i > 0 {
			prev := points[i-1]
			if cur.Tick-prev.Tick > interval {
				out = append(out, model.PitchPoint{Tick: cur.Tick - interval, Value: copyValue(prev.Value)})
			}
		}
		out = append(out, clonePoint(cur))
	}
	return out
}

// ReduceRepeated drops the interior points of every run of three or more
// consecutive equal values. Runs of one or two points are kept as they are.
func ReduceRepeated(points []model.PitchPoint) []model.PitchPoint {
	out := make([]model.PitchPoint, 0, len(points))
	for start := 0; start < len(points); {
		end := start
		for end+1 < len(points) && sameValue(points[end+1].Value, points[start].Value) {
			end++
		}
		if end-start+1 >= 3 {
			out = append(out, clonePoint(points[start]), clonePoint(points[end]))
		} else {
			for i := start; i <= end; i++ {
				out = append(out, clonePoint(points[i]))
			}
		}
		start = end + 1
	}
	return out
}

// InterpolateFunc computes a value at tick from its neighbours. Either
// neighbour may be nil.
type InterpolateFunc func(prev, next *model.PitchPoint, tick int64) float64

// Resampled returns one point per step from tick 0 through the last input tick.
func Resampled(points []model.PitchPoint, step int64, fn InterpolateFunc) []model.PitchPoint {
	if len(points) == 0 || step <= 0 {
		return nil
	}
	last := points[len(points)-1].Tick
	out := make([]model.PitchPoint, 0, last/step+1)
	idx := 0
	for tick := int64(0); tick <= last; tick += step {
		for idx < len(points) && points[idx].Tick <= tick {
			idx++
		}
		var prev, next *model.PitchPoint
		if idx > 0 {
			prev = &points[idx-1]
		}
		if idx < len(points) {
			next = &points[idx]
		}
		out = append(out, model.Point(tick, fn(prev, next, tick)))
	}
	return out
}

// Dot copies the previous value, else the next value, else zero.
func Dot(prev, next *model.PitchPoint, _ int64) float64 {
	switch {
	case prev != nil && prev.Value != nil:
		return *prev.Value
	case next != nil && next.Value != nil:
		return *next.Value
	default:
		return 0
	}
}

// DotResampled is Resampled with Dot.
func DotResampled(points []model.PitchPoint, step int64) []model.PitchPoint {
	return Resampled(points, step, Dot)
}

// Linear interpolates between valued neighbours and falls back to Dot.
func Linear(prev, next *model.PitchPoint, tick int64) float64 {
	if prev == nil || next == nil || prev.Value == nil || next.Value == nil || next.Tick == prev.Tick {
		return Dot(prev, next, tick)
	}
	ratio := float64(tick-prev.Tick) / float64(next.Tick-prev.Tick)
	return *prev.Value + (*next.Value-*prev.Value)*ratio
}

// Sorted returns the points ordered by tick with later duplicates winning.
func Sorted(points []model.PitchPoint) []model.PitchPoint {
	out := clonePoints(points)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	deduped := out[:0]
	for _, p := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Tick == p.Tick {
			deduped[n-1] = p
			continue
		}
		deduped = append(deduped, p)
	}
	return deduped
}

// Shift moves every point by delta ticks.
func Shift(points []model.PitchPoint, delta int64) []model.PitchPoint {
	out := clonePoints(points)
	for i := range out {
		out[i].Tick += delta
	}
	return out
}

// Scale multiplies every value by factor.
func Scale(points []model.PitchPoint, factor float64) []model.PitchPoint {
	out := clonePoints(points)
	for i := range out {
		if out[i].Value != nil {
			*out[i].Value *= factor
		}
	}
	return out
}

func firstMultipleAfter(tick, interval int64) int64 {
	q := tick / interval
	if tick < 0 && tick%interval != 0 {
		q--
	}
	return (q + 1) * interval
}

func sameValue(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyValue(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return model.Float(*v)
}

func clonePoint(p model.PitchPoint) model.PitchPoint {
	return model.PitchPoint{Tick: p.Tick, Value: copyValue(p.Value)}
}

func clonePoints(points []model.PitchPoint) []model.PitchPoint {
	if points == nil {
		return nil
	}
	out := make([]model.PitchPoint, len(points))
	for i, p := range points {
		out[i] = clonePoint(p)
	}
	return out
}

package pitch

import (
	"math"

	"github.com/james-see/singformat/pkg/converter/timing"
	"github.com/james-see/singformat/pkg/model"
)

// Vibrato describes a note vibrato. Percentages are 0-100.
type Vibrato struct {
	Length  float64 // % of the note length, taken from the tail
	Period  float64 // ms
	Depth   float64 // cents
	FadeIn  float64 // % of the vibrato length
	FadeOut float64 // % of the vibrato length
	Phase   float64 // % of the period
	Shift   float64 // % of the depth
}

// IsZero reports whether the vibrato produces no modulation.
func (v Vibrato) IsZero() bool {
	return v.Length <= 0 || v.Depth == 0 || v.Period <= 0
}

// Value returns the modulation in cents at t ms after the note start, for a
// note lasting noteLength ms.
func (v Vibrato) Value(t, noteLength float64) float64 {
	if v.IsZero() {
		return 0
	}
	length := noteLength * v.Length / 100
	start := noteLength - length
	if t < start {
		return 0
	}
	easeIn := ramp((t - start) / (length * v.FadeIn / 100))
	easeOut := ramp((noteLength - t) / (length * v.FadeOut / 100))
	freq := 1 / v.Period
	phase := v.Phase / 100
	shift := v.Shift / 100
	return v.Depth * easeIn * easeOut * (math.Sin(2*math.Pi*(freq*(t-start)-phase)) + shift)
}

func ramp(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 1
	}
	return math.Max(0, math.Min(1, x))
}

// AppendVibrato sums the vibrato of note onto a relative curve. The curve is
// resampled every interval ticks across the vibrato tail so the sinusoid is
// not aliased by sparse input points.
func AppendVibrato(points []model.PitchPoint, note model.Note, v Vibrato, tr *timing.Transformer, interval int64) []model.PitchPoint {
	if v.IsZero() || interval <= 0 {
		return clonePoints(points)
	}
	onMs := tr.TickToMilliSec(note.TickOn)
	noteMs := tr.TickToMilliSec(note.TickOff) - onMs
	startMs := onMs + noteMs*(1-v.Length/100)
	startTick := tr.MilliSecToTick(startMs)
	if startTick < note.TickOn {
		startTick = note.TickOn
	}

	curve := model.Pitch{Data: points}
	var out []model.PitchPoint
	for _, p := range points {
		if p.Tick < startTick || p.Tick >= note.TickOff {
			out = append(out, clonePoint(p))
		}
	}
	for tick := startTick; tick < note.TickOff; tick += interval {
		base, _ := curve.ValueAt(tick)
		cents := v.Value(tr.TickToMilliSec(tick)-onMs, noteMs)
		out = append(out, model.Point(tick, base+cents/100))
	}
	if after, ok := curve.ValueAt(note.TickOff); ok {
		out = append(out, model.Point(note.TickOff, after))
	} else {
		out = append(out, model.Gap(note.TickOff))
	}
	return Sorted(out)
}

package pitch

import (
	"sort"

	"github.com/james-see/singformat/pkg/model"
)

// ToRelative returns the curve as offsets from the key of the note sounding
// at each tick. Points outside every note become gaps.
func ToRelative(p *model.Pitch, notes []model.Note) *model.Pitch {
	if p == nil {
		return nil
	}
	if !p.IsAbsolute {
		c := p.Clone()
		return &c
	}
	return &model.Pitch{Data: rebase(p.Data, notes, -1), IsAbsolute: false}
}

// ToAbsolute returns the curve as absolute semitones.
func ToAbsolute(p *model.Pitch, notes []model.Note) *model.Pitch {
	if p == nil {
		return nil
	}
	if p.IsAbsolute {
		c := p.Clone()
		return &c
	}
	return &model.Pitch{Data: rebase(p.Data, notes, 1), IsAbsolute: true}
}

// rebase adds sign*key of the covering note to every held value. Note
// boundaries get explicit points because the held value changes meaning there.
func rebase(points []model.PitchPoint, notes []model.Note, sign float64) []model.PitchPoint {
	if len(points) == 0 {
		return nil
	}
	ticks := make([]int64, 0, len(points)+2*len(notes))
	for _, pt := range points {
		ticks = append(ticks, pt.Tick)
	}
	first := points[0].Tick
	for _, n := range notes {
		if n.TickOn >= first {
			ticks = append(ticks, n.TickOn)
		}
		if n.TickOff >= first {
			ticks = append(ticks, n.TickOff)
		}
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })

	out := make([]model.PitchPoint, 0, len(ticks))
	noteIdx, pointIdx := 0, 0
	var held *float64
	var last int64
	for i, tick := range ticks {
		if i > 0 && tick == last {
			continue
		}
		last = tick
		for pointIdx < len(points) && points[pointIdx].Tick <= tick {
			held = points[pointIdx].Value
			pointIdx++
		}
		for noteIdx < len(notes) && notes[noteIdx].TickOff <= tick {
			noteIdx++
		}
		var value *float64
		if held != nil && noteIdx < len(notes) && notes[noteIdx].TickOn <= tick {
			value = model.Float(*held + sign*float64(notes[noteIdx].Key))
		}
		out = append(out, model.PitchPoint{Tick: tick, Value: value})
	}
	return out
}

// NotePoints returns the points of a curve within [tickOn, tickOff), with the
// value held at tickOn prepended when the curve has no point there.
func NotePoints(p *model.Pitch, tickOn, tickOff int64) []model.PitchPoint {
	if p == nil {
		return nil
	}
	var out []model.PitchPoint
	if v, ok := p.ValueAt(tickOn); ok {
		out = append(out, model.Point(tickOn, v))
	}
	for _, pt := range p.Data {
		if pt.Tick < tickOn || pt.Tick >= tickOff {
			continue
		}
		if len(out) > 0 && out[len(out)-1].Tick == pt.Tick {
			out[len(out)-1] = clonePoint(pt)
			continue
		}
		out = append(out, clonePoint(pt))
	}
	return out
}

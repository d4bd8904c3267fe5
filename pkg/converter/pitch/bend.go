package pitch

import (
	"math"
	"sort"

	"github.com/james-see/singformat/pkg/model"
)

// VOCALOID pitch-bend model constants.
const (
	DefaultSensitivity = 2
	MaxSensitivity     = 24
	MaxBend            = 8191

	silenceThreshold = 480
	restoreOffset    = silenceThreshold / 2
)

// BendEvent is one PIT or PBS event at an absolute tick.
type BendEvent struct {
	Tick  int64
	Value int
}

// BendPart holds the PIT and PBS event lists of one part.
type BendPart struct {
	PIT []BendEvent
	PBS []BendEvent
}

// DecodeBend converts PIT/PBS parts into a relative curve in semitones. A part
// starting inside an earlier part's range replaces the earlier tail.
func DecodeBend(parts []BendPart) []model.PitchPoint {
	var out []model.PitchPoint
	for _, part := range parts {
		if len(part.PIT) == 0 {
			continue
		}
		pit := sortedEvents(part.PIT)
		pbs := sortedEvents(part.PBS)

		start := pit[0].Tick
		cut := len(out)
		for cut > 0 && out[cut-1].Tick >= start {
			cut--
		}
		out = out[:cut]

		sens := DefaultSensitivity
		j := 0
		for _, ev := range pit {
			for j < len(pbs) && pbs[j].Tick <= ev.Tick {
				sens = pbs[j].Value
				j++
			}
			value := float64(ev.Value) / MaxBend * float64(sens)
			out = append(out, model.Point(ev.Tick, value))
		}
	}
	return Sorted(out)
}

// EncodeBend quantizes a relative curve into PIT and PBS events. The curve is
// split wherever consecutive points are at least 480 ticks apart; each section
// gets the smallest whole sensitivity covering its peak, and a section that
// raises the sensitivity restores the default 240 ticks after it ends. Gaps
// encode as zero. Sensitivity is capped at 24 semitones; clamped reports
// whether a section peak had to be flattened to fit.
func EncodeBend(points []model.PitchPoint) (pit, pbs []BendEvent, clamped bool) {
	for _, section := range splitSections(points) {
		peak := 0.0
		for _, p := range section {
			peak = math.Max(peak, math.Abs(p.ValueOr(0)))
		}
		sens := int(math.Ceil(peak))
		if sens > DefaultSensitivity {
			if sens > MaxSensitivity {
				sens = MaxSensitivity
				clamped = true
			}
			pbs = append(pbs,
				BendEvent{Tick: section[0].Tick, Value: sens},
				BendEvent{Tick: section[len(section)-1].Tick + restoreOffset, Value: DefaultSensitivity},
			)
		} else {
			sens = DefaultSensitivity
		}
		for _, p := range section {
			pit = append(pit, BendEvent{Tick: p.Tick, Value: quantize(p.ValueOr(0), sens)})
		}
	}
	return pit, pbs, clamped
}

func quantize(v float64, sens int) int {
	q := int(math.Round(v * MaxBend / float64(sens)))
	switch {
	case q > MaxBend:
		return MaxBend
	case q < -MaxBend:
		return -MaxBend
	}
	return q
}

func splitSections(points []model.PitchPoint) [][]model.PitchPoint {
	var sections [][]model.PitchPoint
	var cur []model.PitchPoint
	for i, p := range points {
		if i > 0 && p.Tick-points[i-1].Tick >= silenceThreshold {
			sections = append(sections, cur)
			cur = nil
		}
		cur = append(cur, p)
	}
	if len(cur) > 0 {
		sections = append(sections, cur)
	}
	return sections
}

func sortedEvents(events []BendEvent) []BendEvent {
	out := append([]BendEvent(nil), events...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out
}

// Package timing maps tick positions to wall-clock time through a tempo list.
package timing

import (
	"math"
	"sort"

	"github.com/james-see/singformat/pkg/model"
)

type segment struct {
	tickStart  int64
	tickEnd    int64 // math.MaxInt64 for the last segment
	secPerTick float64
	offset     float64
}

// Transformer converts between ticks and seconds. It is immutable and safe
// for concurrent use.
type Transformer struct {
	segments []segment
}

// New builds a Transformer. An empty tempo list falls back to the default tempo.
func New(tempos []model.Tempo) *Transformer {
	if len(tempos) == 0 {
		tempos = []model.Tempo{model.DefaultTempo}
	}
	sorted := append([]model.Tempo(nil), tempos...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TickPosition < sorted[j].TickPosition
	})
	segments := make([]segment, len(sorted))
	offset := 0.0
	for i, t := range sorted {
		end := int64(math.MaxInt64)
		if i+1 < len(sorted) {
			end = sorted[i+1].TickPosition
		}
		rate := 60 / float64(model.TicksPerBeat) / t.BPM
		segments[i] = segment{tickStart: t.TickPosition, tickEnd: end, secPerTick: rate, offset: offset}
		if end != math.MaxInt64 {
			offset += float64(end-t.TickPosition) * rate
		}
	}
	return &Transformer{segments: segments}
}

// TickToSec returns the time of tick in seconds. Ticks before the first tempo
// extrapolate with the first segment's rate.
func (tr *Transformer) TickToSec(tick int64) float64 {
	return tr.TickToSecF(float64(tick))
}

// TickToSecF is TickToSec for fractional ticks.
func (tr *Transformer) TickToSecF(tick float64) float64 {
	seg := tr.segments[0]
	for _, s := range tr.segments {
		if float64(s.tickStart) > tick {
			break
		}
		seg = s
	}
	return seg.offset + (tick-float64(seg.tickStart))*seg.secPerTick
}

// SecToTickF returns the fractional tick at sec.
func (tr *Transformer) SecToTickF(sec float64) float64 {
	seg := tr.segments[0]
	for _, s := range tr.segments {
		if s.offset > sec {
			break
		}
		seg = s
	}
	return float64(seg.tickStart) + (sec-seg.offset)/seg.secPerTick
}

// SecToTick returns the tick at sec, rounded to the nearest integer.
func (tr *Transformer) SecToTick(sec float64) int64 {
	return int64(math.Round(tr.SecToTickF(sec)))
}

// TickToMilliSec returns the time of tick in milliseconds.
func (tr *Transformer) TickToMilliSec(tick int64) float64 {
	return tr.TickToSec(tick) * 1000
}

// MilliSecToTick returns the tick at ms.
func (tr *Transformer) MilliSecToTick(ms float64) int64 {
	return tr.SecToTick(ms / 1000)
}

package formats

import (
	"sort"

	"github.com/james-see/singformat/pkg/model"
)

// dropPreMeasure removes a pre-roll of prefix measures from tempo and meter
// lists whose positions still include it. The last entry inside the pre-roll
// moves to the start; earlier ones are reported as ignored.
func dropPreMeasure(tempos []model.Tempo, sigs []model.TimeSignature, prefix int) ([]model.Tempo, []model.TimeSignature, int64, []model.ImportWarning) {
	sort.SliceStable(sigs, func(i, j int) bool { return sigs[i].MeasurePosition < sigs[j].MeasurePosition })
	sort.SliceStable(tempos, func(i, j int) bool { return tempos[i].TickPosition < tempos[j].TickPosition })
	if prefix <= 0 {
		return tempos, sigs, 0, nil
	}
	tickPrefix := model.MeasureToTick(sigs, prefix)
	var warnings []model.ImportWarning

	var outSigs []model.TimeSignature
	var lastBefore *model.TimeSignature
	for i := range sigs {
		ts := sigs[i]
		if ts.MeasurePosition < prefix {
			if lastBefore != nil {
				warnings = append(warnings, model.TimeSignatureIgnoredInPreMeasure{TimeSignature: *lastBefore})
			}
			lastBefore = &sigs[i]
			continue
		}
		ts.MeasurePosition -= prefix
		outSigs = append(outSigs, ts)
	}
	if lastBefore != nil && (len(outSigs) == 0 || outSigs[0].MeasurePosition > 0) {
		first := *lastBefore
		first.MeasurePosition = 0
		outSigs = append([]model.TimeSignature{first}, outSigs...)
	} else if lastBefore != nil {
		warnings = append(warnings, model.TimeSignatureIgnoredInPreMeasure{TimeSignature: *lastBefore})
	}

	var outTempos []model.Tempo
	var tempoBefore *model.Tempo
	for i := range tempos {
		t := tempos[i]
		if t.TickPosition < tickPrefix {
			if tempoBefore != nil {
				warnings = append(warnings, model.TempoIgnoredInPreMeasure{Tempo: *tempoBefore})
			}
			tempoBefore = &tempos[i]
			continue
		}
		t.TickPosition -= tickPrefix
		outTempos = append(outTempos, t)
	}
	if tempoBefore != nil && (len(outTempos) == 0 || outTempos[0].TickPosition > 0) {
		outTempos = append([]model.Tempo{{TickPosition: 0, BPM: tempoBefore.BPM}}, outTempos...)
	} else if tempoBefore != nil {
		warnings = append(warnings, model.TempoIgnoredInPreMeasure{Tempo: *tempoBefore})
	}
	return outTempos, outSigs, tickPrefix, warnings
}

// addPreMeasure is the inverse used by encoders: it returns the tick offset
// of a pre-roll of prefix measures in the project's first meter.
func addPreMeasure(p *model.Project, prefix int) int64 {
	if prefix <= 0 {
		return 0
	}
	first := model.DefaultTimeSignature
	if len(p.TimeSignatures) > 0 {
		first = p.TimeSignatures[0]
	}
	return int64(prefix) * first.TicksInMeasure()
}

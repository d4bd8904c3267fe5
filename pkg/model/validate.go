package model

import "sort"

// ValidateNotes sorts the notes by start, truncates an earlier note that
// overlaps the next one, drops notes left without length and re-indexes ids.
func (t Track) ValidateNotes() Track {
	notes := append([]Note(nil), t.Notes...)
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].TickOn < notes[j].TickOn
	})
	for i := 0; i+1 < len(notes); i++ {
		if notes[i].TickOff > notes[i+1].TickOn {
			notes[i].TickOff = notes[i+1].TickOn
		}
	}
	kept := notes[:0]
	for _, n := range notes {
		if n.TickOff > n.TickOn {
			kept = append(kept, n)
		}
	}
	for i := range kept {
		kept[i].ID = i
	}
	out := t.Clone()
	out.Notes = kept
	return out
}

// ValidateNotes applies Track.ValidateNotes to every track.
func (p Project) ValidateNotes() Project {
	return p.MapTracks(Track.ValidateNotes)
}

// Check verifies the structural note invariants a decoder must hand back.
func (p Project) Check() error {
	for ti, t := range p.Tracks {
		for i, n := range t.Notes {
			if n.TickOn < 0 || n.TickOff <= n.TickOn {
				return &IllegalNotePositionError{Track: ti, NoteID: n.ID, TickOn: n.TickOn, TickOff: n.TickOff}
			}
			if i > 0 && t.Notes[i-1].TickOff > n.TickOn {
				return &NotesOverlappingError{Track: ti, NoteID: n.ID}
			}
		}
	}
	return nil
}

// Finalize is the common tail of every decoder: default tempo and meter,
// note validation, dense track ids and the structural check.
func (p Project) Finalize() (*Project, error) {
	out := p.RequireTempos().RequireTimeSignatures().ValidateNotes().Reindex()
	if err := out.Check(); err != nil {
		return nil, err
	}
	return &out, nil
}

// MeasureToTick returns the first tick of measure m under the given signatures.
// Signatures must be sorted; measures before the first one use its length.
func MeasureToTick(signatures []TimeSignature, m int) int64 {
	if len(signatures) == 0 {
		signatures = []TimeSignature{DefaultTimeSignature}
	}
	var tick int64
	current := signatures[0]
	measure := 0
	if m < 0 {
		return int64(m) * current.TicksInMeasure()
	}
	for _, ts := range signatures[1:] {
		if ts.MeasurePosition >= m {
			break
		}
		tick += int64(ts.MeasurePosition-measure) * current.TicksInMeasure()
		measure = ts.MeasurePosition
		current = ts
	}
	return tick + int64(m-measure)*current.TicksInMeasure()
}

// TickToMeasure returns the measure containing tick and the tick offset
// inside it.
func TickToMeasure(signatures []TimeSignature, tick int64) (int, int64) {
	if len(signatures) == 0 {
		signatures = []TimeSignature{DefaultTimeSignature}
	}
	current := signatures[0]
	measure := 0
	var start int64
	for _, ts := range signatures[1:] {
		next := start + int64(ts.MeasurePosition-measure)*current.TicksInMeasure()
		if next > tick {
			break
		}
		start = next
		measure = ts.MeasurePosition
		current = ts
	}
	length := current.TicksInMeasure()
	delta := tick - start
	count := delta / length
	if delta < 0 && delta%length != 0 {
		count--
	}
	return measure + int(count), delta - count*length
}

// SignatureAt returns the signature in effect at measure m.
func SignatureAt(signatures []TimeSignature, m int) TimeSignature {
	current := DefaultTimeSignature
	if len(signatures) > 0 {
		current = signatures[0]
	}
	for _, ts := range signatures {
		if ts.MeasurePosition > m {
			break
		}
		current = ts
	}
	return current
}

// Package model holds the intermediate project representation shared by every
// format codec.
package model

import "sort"

// TicksPerBeat is the tick resolution of every intermediate representation.
const TicksPerBeat = 480

// KeyMin and KeyMax bound MIDI note numbers.
const (
	KeyMin = 0
	KeyMax = 127
)

// File is one raw input handed to a decoder.
type File struct {
	Name string
	Data []byte
}

// Project is the format-independent project. Treat it as a value: every
// transformation returns a new Project.
type Project struct {
	Format         string
	InputFiles     []string
	Name           string
	Tracks         []Track
	TimeSignatures []TimeSignature
	Tempos         []Tempo
	MeasurePrefix  int
	ImportWarnings []ImportWarning
	LyricsType     LyricsType
}

// Track is one singing track.
type Track struct {
	ID    int
	Name  string
	Notes []Note
	Pitch *Pitch
}

// Note is a single sung note. TickOff is exclusive.
type Note struct {
	ID      int
	Key     int
	Lyric   string
	Phoneme string
	TickOn  int64
	TickOff int64
}

// Length returns the note length in ticks.
func (n Note) Length() int64 {
	return n.TickOff - n.TickOn
}

// Tempo is a BPM change at a tick position.
type Tempo struct {
	TickPosition int64
	BPM          float64
}

// TimeSignature is a meter change at a measure position.
type TimeSignature struct {
	MeasurePosition int
	Numerator       int
	Denominator     int
}

// DefaultTempo and DefaultTimeSignature are inserted when a file carries none.
var (
	DefaultTempo         = Tempo{TickPosition: 0, BPM: 120}
	DefaultTimeSignature = TimeSignature{MeasurePosition: 0, Numerator: 4, Denominator: 4}
)

// TicksInMeasure returns the length of one measure of this signature.
func (ts TimeSignature) TicksInMeasure() int64 {
	return int64(TicksPerBeat) * 4 * int64(ts.Numerator) / int64(ts.Denominator)
}

// TicksInBeat returns the length of one beat of this signature.
func (ts TimeSignature) TicksInBeat() int64 {
	return int64(TicksPerBeat) * 4 / int64(ts.Denominator)
}

// Clone returns a deep copy of the project.
func (p Project) Clone() Project {
	out := p
	out.InputFiles = append([]string(nil), p.InputFiles...)
	out.TimeSignatures = append([]TimeSignature(nil), p.TimeSignatures...)
	out.Tempos = append([]Tempo(nil), p.Tempos...)
	out.ImportWarnings = append([]ImportWarning(nil), p.ImportWarnings...)
	out.Tracks = make([]Track, len(p.Tracks))
	for i, t := range p.Tracks {
		out.Tracks[i] = t.Clone()
	}
	return out
}

// Clone returns a deep copy of the track.
func (t Track) Clone() Track {
	out := t
	out.Notes = append([]Note(nil), t.Notes...)
	if t.Pitch != nil {
		p := t.Pitch.Clone()
		out.Pitch = &p
	}
	return out
}

// WithNotes returns a copy of the track with its notes replaced.
func (t Track) WithNotes(notes []Note) Track {
	out := t.Clone()
	out.Notes = notes
	return out
}

// MapTracks returns a copy of the project with fn applied to every track.
func (p Project) MapTracks(fn func(Track) Track) Project {
	out := p.Clone()
	for i := range out.Tracks {
		out.Tracks[i] = fn(out.Tracks[i])
	}
	return out
}

// LastTick returns the end of the last note in the project.
func (p Project) LastTick() int64 {
	var last int64
	for _, t := range p.Tracks {
		for _, n := range t.Notes {
			if n.TickOff > last {
				last = n.TickOff
			}
		}
	}
	return last
}

// NoteCount returns the total note count.
func (p Project) NoteCount() int {
	count := 0
	for _, t := range p.Tracks {
		count += len(t.Notes)
	}
	return count
}

// Reindex rewrites track ids so they are dense from 0.
func (p Project) Reindex() Project {
	out := p.Clone()
	for i := range out.Tracks {
		out.Tracks[i].ID = i
	}
	return out
}

// RequireTempos inserts the default tempo and a warning if none are present,
// sorts tempos, and drops duplicates at the same tick (last one wins).
func (p Project) RequireTempos() Project {
	out := p.Clone()
	if len(out.Tempos) == 0 {
		out.Tempos = []Tempo{DefaultTempo}
		out.ImportWarnings = append(out.ImportWarnings, TempoNotFound{})
		return out
	}
	sort.SliceStable(out.Tempos, func(i, j int) bool {
		return out.Tempos[i].TickPosition < out.Tempos[j].TickPosition
	})
	deduped := out.Tempos[:0:0]
	for _, t := range out.Tempos {
		if n := len(deduped); n > 0 && deduped[n-1].TickPosition == t.TickPosition {
			deduped[n-1] = t
			continue
		}
		deduped = append(deduped, t)
	}
	if deduped[0].TickPosition > 0 {
		deduped = append([]Tempo{{TickPosition: 0, BPM: deduped[0].BPM}}, deduped...)
	}
	out.Tempos = deduped
	return out
}

// RequireTimeSignatures does the same for time signatures.
func (p Project) RequireTimeSignatures() Project {
	out := p.Clone()
	if len(out.TimeSignatures) == 0 {
		out.TimeSignatures = []TimeSignature{DefaultTimeSignature}
		out.ImportWarnings = append(out.ImportWarnings, TimeSignatureNotFound{})
		return out
	}
	sort.SliceStable(out.TimeSignatures, func(i, j int) bool {
		return out.TimeSignatures[i].MeasurePosition < out.TimeSignatures[j].MeasurePosition
	})
	deduped := out.TimeSignatures[:0:0]
	for _, ts := range out.TimeSignatures {
		if n := len(deduped); n > 0 && deduped[n-1].MeasurePosition == ts.MeasurePosition {
			deduped[n-1] = ts
			continue
		}
		deduped = append(deduped, ts)
	}
	if deduped[0].MeasurePosition > 0 {
		first := deduped[0]
		first.MeasurePosition = 0
		deduped = append([]TimeSignature{first}, deduped...)
	}
	out.TimeSignatures = deduped
	return out
}

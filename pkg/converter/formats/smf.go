package formats

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/james-see/singformat/pkg/converter/bin"
	"github.com/james-see/singformat/pkg/model"
	"gitlab.com/gomidi/midi/v2/smf"
)

// timedMsg is a MIDI message at an absolute tick.
type timedMsg struct {
	tick int64
	msg  []byte
}

// meterEvent is a time signature found at an absolute tick.
type meterEvent struct {
	tick        int64
	numerator   int
	denominator int
}

// readSMF decodes an SMF file into per-track absolute-tick events, rescaled
// to 480 ticks per quarter note.
func readSMF(data []byte) ([][]timedMsg, error) {
	header, err := bin.ReadSMFHeader(data)
	if err != nil {
		return nil, model.UnparsableError("standard midi file header", err)
	}
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, model.UnparsableError("standard midi file", err)
	}
	// SMPTE divisions have the top bit set and keep the default resolution.
	resolution := int64(model.TicksPerBeat)
	if header.Division&0x8000 == 0 && header.Division > 0 {
		resolution = int64(header.Division)
	}

	tracks := make([][]timedMsg, 0, len(s.Tracks))
	for _, track := range s.Tracks {
		var events []timedMsg
		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)
			events = append(events, timedMsg{
				tick: tick * model.TicksPerBeat / resolution,
				msg:  []byte(ev.Message),
			})
		}
		tracks = append(tracks, events)
	}
	return tracks, nil
}

// conductorEvents extracts tempo and meter events from one track.
func conductorEvents(events []timedMsg) ([]model.Tempo, []meterEvent) {
	var tempos []model.Tempo
	var meters []meterEvent
	for _, ev := range events {
		typ, payload, ok := bin.ParseMeta(ev.msg)
		if !ok {
			continue
		}
		switch typ {
		case bin.MetaTempo:
			if bpm, ok := bin.TempoFromPayload(payload); ok {
				tempos = append(tempos, model.Tempo{TickPosition: ev.tick, BPM: bpm})
			}
		case bin.MetaTimeSignature:
			if num, den, ok := bin.TimeSignatureFromPayload(payload); ok {
				meters = append(meters, meterEvent{tick: ev.tick, numerator: num, denominator: den})
			}
		}
	}
	return tempos, meters
}

// metersToSignatures converts tick-positioned meters into measure positions.
func metersToSignatures(meters []meterEvent) []model.TimeSignature {
	sort.SliceStable(meters, func(i, j int) bool { return meters[i].tick < meters[j].tick })
	var out []model.TimeSignature
	current := model.DefaultTimeSignature
	var lastTick int64
	measure := 0
	for _, m := range meters {
		if m.numerator <= 0 || m.denominator <= 0 {
			continue
		}
		measure += int((m.tick - lastTick) / current.TicksInMeasure())
		lastTick = m.tick
		current = model.TimeSignature{MeasurePosition: measure, Numerator: m.numerator, Denominator: m.denominator}
		out = append(out, current)
	}
	return out
}

// conductorTrack builds tempo and meter messages, shifted by offset ticks
// after the first entry of each list.
func conductorTrack(p *model.Project, name string, offset int64) []timedMsg {
	var events []timedMsg
	if name != "" {
		if msg, err := bin.MetaEvent(bin.MetaTrackName, []byte(name)); err == nil {
			events = append(events, timedMsg{tick: 0, msg: msg})
		}
	}
	for i, ts := range p.TimeSignatures {
		tick := model.MeasureToTick(p.TimeSignatures, ts.MeasurePosition)
		if i > 0 {
			tick += offset
		}
		events = append(events, timedMsg{tick: tick, msg: bin.TimeSignatureEvent(ts.Numerator, ts.Denominator)})
	}
	for i, t := range p.Tempos {
		tick := t.TickPosition
		if i > 0 {
			tick += offset
		}
		events = append(events, timedMsg{tick: tick, msg: bin.TempoEvent(t.BPM)})
	}
	return events
}

// buildTrack orders events and converts them to delta times. The track is
// closed at end or at the last event, whichever is later.
func buildTrack(events []timedMsg, end int64) smf.Track {
	sort.SliceStable(events, func(i, j int) bool { return events[i].tick < events[j].tick })
	var track smf.Track
	var last int64
	for _, ev := range events {
		track.Add(uint32(ev.tick-last), ev.msg)
		last = ev.tick
	}
	if end < last {
		end = last
	}
	track.Close(uint32(end - last))
	return track
}

// writeSMF serialises format-1 tracks at 480 ticks per quarter note.
func writeSMF(tracks []smf.Track) ([]byte, error) {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(model.TicksPerBeat)
	for i, track := range tracks {
		if err := s.Add(track); err != nil {
			return nil, fmt.Errorf("failed to add track %d: %w", i, err)
		}
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

package formats

import (
	"github.com/james-see/singformat/pkg/converter/bin"
	"github.com/james-see/singformat/pkg/converter/pitch"
	"github.com/james-see/singformat/pkg/model"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

var midiFormat = model.Format{
	Name:                "mid",
	DisplayName:         "Standard MIDI",
	Extensions:          []string{".mid", ".midi"},
	CanParse:            true,
	CanGenerate:         true,
	PossibleLyricsTypes: allLyrics,
}

const (
	defaultMidiLyric = "a"
	midiVelocity     = 100
	ccRPNMSB         = 101
	ccRPNLSB         = 100
	ccDataEntryMSB   = 6
	ccDataEntryLSB   = 38
)

type midiNoteOn struct {
	tick  int64
	lyric string
}

// ParseMidi decodes a Standard MIDI File. Every track holding notes becomes a
// project track; lyric meta events at a note-on are attached to that note and
// pitch bends are decoded with their RPN 0 sensitivity.
func ParseMidi(file model.File, params model.ImportParams) (*model.Project, error) {
	tracks, err := readSMF(file.Data)
	if err != nil {
		return nil, err
	}

	project := model.Project{
		Format:     midiFormat.Name,
		InputFiles: []string{file.Name},
		Name:       baseName(file.Name),
	}
	var meters []meterEvent
	for i, events := range tracks {
		tempos, m := conductorEvents(events)
		project.Tempos = append(project.Tempos, tempos...)
		meters = append(meters, m...)

		track, ok, err := parseMidiTrack(events, params)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		track.ID = len(project.Tracks)
		if track.Name == "" {
			track.Name = trackName(model.Track{ID: i})
		}
		project.Tracks = append(project.Tracks, track)
	}
	project.TimeSignatures = metersToSignatures(meters)
	return project.Finalize()
}

func parseMidiTrack(events []timedMsg, params model.ImportParams) (model.Track, bool, error) {
	var track model.Track
	open := make(map[int][]midiNoteOn)
	var pendingLyric string
	var pendingTick int64 = -1
	var part pitch.BendPart
	var rpn [2]int
	rpn[0], rpn[1] = -1, -1

	for _, ev := range events {
		msg := ev.msg
		if typ, payload, ok := bin.ParseMeta(msg); ok {
			switch typ {
			case bin.MetaTrackName:
				if name, err := bin.DecodeText(payload); err == nil && track.Name == "" {
					track.Name = name
				}
			case bin.MetaLyric:
				if text, err := bin.DecodeText(payload); err == nil {
					pendingLyric, pendingTick = text, ev.tick
				}
			}
			continue
		}
		if len(msg) < 3 {
			continue
		}
		status, d1, d2 := msg[0]&0xF0, int(msg[1]), int(msg[2])
		switch {
		case status == 0x90 && d2 > 0:
			lyric := defaultMidiLyric
			if pendingTick == ev.tick && pendingLyric != "" {
				lyric = pendingLyric
				pendingLyric = ""
			}
			open[d1] = append(open[d1], midiNoteOn{tick: ev.tick, lyric: lyric})
		case status == 0x80 || status == 0x90:
			stack := open[d1]
			if len(stack) == 0 {
				continue
			}
			on := stack[0]
			open[d1] = stack[1:]
			track.Notes = append(track.Notes, model.Note{
				Key:     d1,
				Lyric:   on.lyric,
				TickOn:  on.tick,
				TickOff: ev.tick,
			})
		case status == 0xE0:
			value := (d2<<7 | d1) - 8192
			part.PIT = append(part.PIT, pitch.BendEvent{Tick: ev.tick, Value: max(value, -pitch.MaxBend)})
		case status == 0xB0:
			switch d1 {
			case ccRPNMSB:
				rpn[0] = d2
			case ccRPNLSB:
				rpn[1] = d2
			case ccDataEntryMSB:
				if rpn[0] == 0 && rpn[1] == 0 {
					part.PBS = append(part.PBS, pitch.BendEvent{Tick: ev.tick, Value: d2})
				}
			}
		}
	}
	if len(track.Notes) == 0 {
		return track, false, nil
	}
	if !params.SimpleImport && len(part.PIT) > 0 {
		track.Pitch = &model.Pitch{Data: pitch.DecodeBend([]pitch.BendPart{part})}
	}
	return track, true, nil
}

// GenerateMidi encodes the project as a format-1 Standard MIDI File with a
// conductor track followed by one track per singing track.
func GenerateMidi(p *model.Project, features []model.Feature) (*model.ExportResult, error) {
	end := p.LastTick()
	tracks := []smf.Track{buildTrack(conductorTrack(p, p.Name, 0), end)}
	clamped := false
	for i, t := range p.Tracks {
		events, trackClamped, err := midiTrackEvents(t, uint8(i%16), model.HasConvertPitch(features))
		if err != nil {
			return nil, err
		}
		clamped = clamped || trackClamped
		tracks = append(tracks, buildTrack(events, end))
	}
	data, err := writeSMF(tracks)
	if err != nil {
		return nil, err
	}
	res := singleResult(p, midiFormat.Extension(), data)
	if clamped {
		res.Notifications = append(res.Notifications, model.DataOverLengthLimitIgnored{})
	}
	return res, nil
}

func midiTrackEvents(t model.Track, channel uint8, withPitch bool) ([]timedMsg, bool, error) {
	var events []timedMsg
	name, err := bin.MetaEvent(bin.MetaTrackName, []byte(trackName(t)))
	if err != nil {
		return nil, false, err
	}
	events = append(events, timedMsg{tick: 0, msg: name})
	for _, n := range t.Notes {
		key := uint8(clampKey(n.Key))
		if n.Lyric != "" {
			lyric, err := bin.MetaEvent(bin.MetaLyric, []byte(n.Lyric))
			if err != nil {
				return nil, false, err
			}
			events = append(events, timedMsg{tick: n.TickOn, msg: lyric})
		}
		events = append(events,
			timedMsg{tick: n.TickOn, msg: midi.NoteOn(channel, key, midiVelocity)},
			timedMsg{tick: n.TickOff, msg: midi.NoteOff(channel, key)},
		)
	}
	clamped := false
	if withPitch {
		var pit, pbs []pitch.BendEvent
		pit, pbs, clamped = bendEvents(t)
		for _, ev := range pbs {
			events = append(events,
				timedMsg{tick: ev.Tick, msg: midi.ControlChange(channel, ccRPNMSB, 0)},
				timedMsg{tick: ev.Tick, msg: midi.ControlChange(channel, ccRPNLSB, 0)},
				timedMsg{tick: ev.Tick, msg: midi.ControlChange(channel, ccDataEntryMSB, uint8(ev.Value))},
				timedMsg{tick: ev.Tick, msg: midi.ControlChange(channel, ccDataEntryLSB, 0)},
			)
		}
		for _, ev := range pit {
			events = append(events, timedMsg{tick: ev.Tick, msg: midi.Pitchbend(channel, int16(ev.Value))})
		}
	}
	return events, clamped, nil
}

package formats

import (
	"strconv"

	"github.com/beevik/etree"

	"github.com/james-see/singformat/pkg/model"
)

var musicXMLFormat = model.Format{
	Name:                "musicxml",
	DisplayName:         "MusicXML",
	Extensions:          []string{".musicxml", ".xml"},
	CanGenerate:         true,
	PossibleLyricsTypes: allLyrics,
}

const musicXMLDoctype = `DOCTYPE score-partwise PUBLIC "-//Recordare//DTD MusicXML 3.1 Partwise//EN" "http://www.musicxml.org/dtds/partwise.dtd"`

var pitchSteps = [12]struct {
	step  string
	alter int
}{
	{"C", 0}, {"C", 1}, {"D", 0}, {"D", 1}, {"E", 0}, {"F", 0},
	{"F", 1}, {"G", 0}, {"G", 1}, {"A", 0}, {"A", 1}, {"B", 0},
}

// GenerateMusicXML writes one partwise score per track. Notes crossing a
// barline are split and tied.
func GenerateMusicXML(p *model.Project, _ []model.Feature) (*model.ExportResult, error) {
	result := &model.ExportResult{}
	for _, t := range p.Tracks {
		data, err := writeXML(musicXMLScore(p, t), true, musicXMLDoctype)
		if err != nil {
			return nil, err
		}
		result.Outputs = append(result.Outputs, model.Output{
			Data:     data,
			FileName: trackName(t) + musicXMLFormat.Extension(),
		})
	}
	return result, nil
}

func musicXMLScore(p *model.Project, t model.Track) *etree.Element {
	root := etree.NewElement("score-partwise")
	root.CreateAttr("version", "3.1")
	addText(addElement(root, "work"), "work-title", p.Name)
	addText(addElement(addElement(root, "identification"), "encoding"), "software", "singformat")
	addText(addElement(addElement(root, "part-list"), "score-part", "id", "P1"), "part-name", trackName(t))
	part := addElement(root, "part", "id", "P1")

	end := lastNoteEnd(t)
	lastMeasure := 0
	if end > 0 {
		lastMeasure, _ = model.TickToMeasure(p.TimeSignatures, end-1)
	}
	tempoIdx := 0
	noteIdx := 0
	for m := 0; m <= lastMeasure; m++ {
		start := model.MeasureToTick(p.TimeSignatures, m)
		stop := model.MeasureToTick(p.TimeSignatures, m+1)
		measure := addElement(part, "measure", "number", strconv.Itoa(m+1))

		if m == 0 || signatureStartsAt(p.TimeSignatures, m) {
			ts := model.SignatureAt(p.TimeSignatures, m)
			attrs := addElement(measure, "attributes")
			if m == 0 {
				addText(attrs, "divisions", strconv.Itoa(model.TicksPerBeat))
			}
			tm := addElement(attrs, "time")
			addText(tm, "beats", strconv.Itoa(ts.Numerator))
			addText(tm, "beat-type", strconv.Itoa(ts.Denominator))
			if m == 0 {
				clef := addElement(attrs, "clef")
				addText(clef, "sign", "G")
				addText(clef, "line", "2")
			}
		}

		cursor := start
		emitTempos := func(until int64) {
			for tempoIdx < len(p.Tempos) && p.Tempos[tempoIdx].TickPosition <= until {
				musicXMLTempo(measure, p.Tempos[tempoIdx].BPM)
				tempoIdx++
			}
		}
		for noteIdx < len(t.Notes) && t.Notes[noteIdx].TickOn < stop {
			n := t.Notes[noteIdx]
			segStart := max(n.TickOn, start)
			segEnd := min(n.TickOff, stop)
			if segStart > cursor {
				emitTempos(cursor)
				musicXMLRest(measure, segStart-cursor)
			}
			emitTempos(segStart)
			musicXMLNote(measure, n, segStart, segEnd)
			cursor = segEnd
			if n.TickOff > stop {
				break
			}
			noteIdx++
		}
		if cursor < stop {
			emitTempos(cursor)
			musicXMLRest(measure, stop-cursor)
		}
	}
	return root
}

func signatureStartsAt(sigs []model.TimeSignature, m int) bool {
	for _, ts := range sigs {
		if ts.MeasurePosition == m {
			return true
		}
	}
	return false
}

func musicXMLTempo(measure *etree.Element, bpm float64) {
	value := strconv.FormatFloat(bpm, 'f', -1, 64)
	direction := addElement(measure, "direction", "placement", "above")
	metronome := addElement(addElement(direction, "direction-type"), "metronome")
	addText(metronome, "beat-unit", "quarter")
	addText(metronome, "per-minute", value)
	addElement(direction, "sound", "tempo", value)
}

func musicXMLRest(measure *etree.Element, length int64) {
	note := addElement(measure, "note")
	addElement(note, "rest")
	addText(note, "duration", strconv.FormatInt(length, 10))
	addText(note, "voice", "1")
}

// musicXMLNote writes the segment [from, to) of n with the ties it needs.
func musicXMLNote(measure *etree.Element, n model.Note, from, to int64) {
	key := clampKey(n.Key)
	step := pitchSteps[key%12]
	note := addElement(measure, "note")
	pitchNode := addElement(note, "pitch")
	addText(pitchNode, "step", step.step)
	if step.alter != 0 {
		addText(pitchNode, "alter", strconv.Itoa(step.alter))
	}
	addText(pitchNode, "octave", strconv.Itoa(key/12-1))
	addText(note, "duration", strconv.FormatInt(to-from, 10))

	tieStop, tieStart := from > n.TickOn, to < n.TickOff
	if tieStop {
		addElement(note, "tie", "type", "stop")
	}
	if tieStart {
		addElement(note, "tie", "type", "start")
	}
	addText(note, "voice", "1")
	if tieStop || tieStart {
		notations := addElement(note, "notations")
		if tieStop {
			addElement(notations, "tied", "type", "stop")
		}
		if tieStart {
			addElement(notations, "tied", "type", "start")
		}
	}
	if !tieStop && n.Lyric != "" {
		lyric := addElement(note, "lyric")
		addText(lyric, "syllabic", "single")
		addText(lyric, "text", n.Lyric)
	}
}

package formats

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/james-see/singformat/pkg/converter/pitch"
	"github.com/james-see/singformat/pkg/model"
	"github.com/tidwall/gjson"
)

var s5pFormat = model.Format{
	Name:                "s5p",
	DisplayName:         "Synthesizer V (legacy)",
	Extensions:          []string{".s5p"},
	CanParse:            true,
	CanGenerate:         true,
	PossibleLyricsTypes: allLyrics,
}

const (
	s5pVersion         = 7
	s5pDefaultInterval = 5512500
)

// ParseS5p decodes a legacy Synthesizer V project. Pitch deltas are stored as
// (index, cents) pairs on a grid of interval blicks.
func ParseS5p(file model.File, params model.ImportParams) (*model.Project, error) {
	data := bytesTrimNul(file.Data)
	if !gjson.ValidBytes(data) {
		return nil, model.UnparsableError("s5p json", fmt.Errorf("invalid json"))
	}
	doc := gjson.ParseBytes(data)

	project := model.Project{
		Format:     s5pFormat.Name,
		InputFiles: []string{file.Name},
		Name:       baseName(file.Name),
	}
	for _, t := range doc.Get("tempo").Array() {
		project.Tempos = append(project.Tempos, model.Tempo{
			TickPosition: blickToTick(t.Get("position").Int()),
			BPM:          t.Get("beatPerMinute").Float(),
		})
	}
	for _, m := range doc.Get("meter").Array() {
		project.TimeSignatures = append(project.TimeSignatures, model.TimeSignature{
			MeasurePosition: int(m.Get("measure").Int()),
			Numerator:       int(m.Get("beatPerMeasure").Int()),
			Denominator:     int(m.Get("beatGranularity").Int()),
		})
	}

	for i, t := range doc.Get("tracks").Array() {
		track := model.Track{ID: i, Name: t.Get("name").String()}
		for _, n := range t.Get("notes").Array() {
			onset := n.Get("onset").Int()
			track.Notes = append(track.Notes, model.Note{
				Key:     int(n.Get("pitch").Int()),
				Lyric:   n.Get("lyric").String(),
				TickOn:  blickToTick(onset),
				TickOff: blickToTick(onset + n.Get("duration").Int()),
			})
		}
		if !params.SimpleImport && len(track.Notes) > 0 {
			interval := t.Get("parameters.interval").Int()
			if interval <= 0 {
				interval = s5pDefaultInterval
			}
			raw := t.Get("parameters.pitchDelta").Array()
			var pts []model.PitchPoint
			for j := 0; j+1 < len(raw); j += 2 {
				pts = append(pts, model.Point(blickToTick(raw[j].Int()*interval), raw[j+1].Float()/100))
			}
			if len(pts) > 0 {
				pts = append(pts, model.Gap(track.Notes[len(track.Notes)-1].TickOff))
				track.Pitch = &model.Pitch{Data: pitch.Sorted(pts)}
			}
		}
		project.Tracks = append(project.Tracks, track)
	}
	return project.Finalize()
}

func bytesTrimNul(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == 0 || b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

type s5pProject struct {
	Version      int             `json:"version"`
	Tracks       []s5pTrack      `json:"tracks"`
	Meter        []s5pMeter      `json:"meter"`
	Tempo        []s5pTempo      `json:"tempo"`
	Mixer        s5pMixer        `json:"mixer"`
	Instrumental s5pInstrumental `json:"instrumental"`
}

type s5pTrack struct {
	Name       string        `json:"name"`
	DBName     string        `json:"dbName"`
	Color      string        `json:"color"`
	Display    bool          `json:"display"`
	Parameters s5pParameters `json:"parameters"`
	Notes      []s5pNote     `json:"notes"`
}

type s5pParameters struct {
	Interval   int64     `json:"interval"`
	PitchDelta []float64 `json:"pitchDelta"`
}

type s5pNote struct {
	Onset    int64  `json:"onset"`
	Duration int64  `json:"duration"`
	Lyric    string `json:"lyric"`
	Comment  string `json:"comment"`
	Pitch    int    `json:"pitch"`
}

type s5pMeter struct {
	Measure         int `json:"measure"`
	BeatPerMeasure  int `json:"beatPerMeasure"`
	BeatGranularity int `json:"beatGranularity"`
}

type s5pTempo struct {
	Position      int64   `json:"position"`
	BeatPerMinute float64 `json:"beatPerMinute"`
}

type s5pMixer struct {
	GainInstrumental float64 `json:"gainInstrumentalDecibel"`
	GainVocalMaster  float64 `json:"gainVocalMasterDecibel"`
}

type s5pInstrumental struct {
	Filename string  `json:"filename"`
	Offset   float64 `json:"offset"`
}

// GenerateS5p encodes a legacy Synthesizer V project. The relative curve is
// sampled on the default interval grid inside notes.
func GenerateS5p(p *model.Project, features []model.Feature) (*model.ExportResult, error) {
	doc := s5pProject{Version: s5pVersion}
	for _, ts := range p.TimeSignatures {
		doc.Meter = append(doc.Meter, s5pMeter{Measure: ts.MeasurePosition, BeatPerMeasure: ts.Numerator, BeatGranularity: ts.Denominator})
	}
	for _, t := range p.Tempos {
		doc.Tempo = append(doc.Tempo, s5pTempo{Position: tickToBlick(t.TickPosition), BeatPerMinute: t.BPM})
	}
	withPitch := model.HasConvertPitch(features)
	for _, t := range p.Tracks {
		track := s5pTrack{
			Name:       trackName(t),
			Color:      "15e879",
			Display:    true,
			Parameters: s5pParameters{Interval: s5pDefaultInterval, PitchDelta: []float64{}},
			Notes:      make([]s5pNote, 0, len(t.Notes)),
		}
		for _, n := range t.Notes {
			track.Notes = append(track.Notes, s5pNote{
				Onset:    tickToBlick(n.TickOn),
				Duration: tickToBlick(n.Length()),
				Lyric:    n.Lyric,
				Comment:  n.Lyric,
				Pitch:    clampKey(n.Key),
			})
		}
		if withPitch {
			track.Parameters.PitchDelta = s5pPitchDelta(t)
		}
		doc.Tracks = append(doc.Tracks, track)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode s5p: %w", err)
	}
	return singleResult(p, s5pFormat.Extension(), data), nil
}

// s5pPitchDelta samples the relative curve on the interval grid inside notes
// as index/cents pairs.
func s5pPitchDelta(t model.Track) []float64 {
	points := relativePoints(t)
	out := []float64{}
	if len(points) == 0 || len(t.Notes) == 0 {
		return out
	}
	count := (tickToBlick(lastNoteEnd(t)) + s5pDefaultInterval - 1) / s5pDefaultInterval
	samples := gridSamples(points, count, func(idx int64) int64 {
		return blickToTick(idx * s5pDefaultInterval)
	})
	for _, n := range t.Notes {
		first := int64(math.Ceil(float64(tickToBlick(n.TickOn)) / s5pDefaultInterval))
		for idx := first; idx*s5pDefaultInterval < tickToBlick(n.TickOff) && idx < count; idx++ {
			v := samples[idx]
			if math.IsNaN(v) {
				continue
			}
			out = append(out, float64(idx), math.Round(v*100*1000)/1000)
		}
	}
	return out
}

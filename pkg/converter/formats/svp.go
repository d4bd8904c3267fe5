package formats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/james-see/singformat/pkg/converter/pitch"
	"github.com/james-see/singformat/pkg/model"
	"github.com/tidwall/gjson"
)

var svpFormat = model.Format{
	Name:                "svp",
	DisplayName:         "Synthesizer V Studio",
	Extensions:          []string{".svp"},
	CanParse:            true,
	CanGenerate:         true,
	PossibleLyricsTypes: allLyrics,
}

const (
	blicksPerTick  = 1470000
	svpVersion     = 153
	svpDocSplitter = 0x00
)

func tickToBlick(tick int64) int64 {
	return tick * blicksPerTick
}

func blickToTick(blick int64) int64 {
	return int64(math.Round(float64(blick) / blicksPerTick))
}

// svpDocument picks the document with the highest version out of the
// NUL-separated JSON documents an SVP file may hold.
func svpDocument(data []byte) (gjson.Result, error) {
	var best gjson.Result
	bestVersion := int64(-1)
	for _, chunk := range bytes.Split(data, []byte{svpDocSplitter}) {
		chunk = bytes.TrimSpace(chunk)
		if len(chunk) == 0 || !gjson.ValidBytes(chunk) {
			continue
		}
		doc := gjson.ParseBytes(chunk)
		if v := doc.Get("version").Int(); v > bestVersion {
			best, bestVersion = doc, v
		}
	}
	if bestVersion < 0 {
		return gjson.Result{}, model.UnparsableError("svp json", fmt.Errorf("no valid document"))
	}
	return best, nil
}

// ParseSvp decodes a Synthesizer V Studio project. Group references are
// resolved from the library and placed with their blick and pitch offsets.
func ParseSvp(file model.File, params model.ImportParams) (*model.Project, error) {
	doc, err := svpDocument(file.Data)
	if err != nil {
		return nil, err
	}

	project := model.Project{
		Format:     svpFormat.Name,
		InputFiles: []string{file.Name},
		Name:       baseName(file.Name),
	}
	for _, t := range doc.Get("time.tempo").Array() {
		project.Tempos = append(project.Tempos, model.Tempo{
			TickPosition: blickToTick(t.Get("position").Int()),
			BPM:          t.Get("bpm").Float(),
		})
	}
	for _, m := range doc.Get("time.meter").Array() {
		project.TimeSignatures = append(project.TimeSignatures, model.TimeSignature{
			MeasurePosition: int(m.Get("index").Int()),
			Numerator:       int(m.Get("numerator").Int()),
			Denominator:     int(m.Get("denominator").Int()),
		})
	}

	library := make(map[string]gjson.Result)
	for _, g := range doc.Get("library").Array() {
		library[g.Get("uuid").String()] = g
	}
	for i, t := range doc.Get("tracks").Array() {
		track := model.Track{ID: i, Name: t.Get("name").String()}
		var curve []model.PitchPoint
		appendGroup := func(group gjson.Result, blickOffset, pitchOffset int64) {
			notes, pts := readSvpGroup(group, blickOffset, pitchOffset)
			track.Notes = append(track.Notes, notes...)
			curve = append(curve, pts...)
		}
		appendGroup(t.Get("mainGroup"), 0, 0)
		for _, ref := range t.Get("groups").Array() {
			group, ok := library[ref.Get("groupID").String()]
			if !ok {
				continue
			}
			appendGroup(group, ref.Get("blickOffset").Int(), ref.Get("pitchOffset").Int())
		}
		if !params.SimpleImport && len(curve) > 0 {
			track.Pitch = &model.Pitch{Data: pitch.Sorted(curve)}
		}
		project.Tracks = append(project.Tracks, track)
	}
	return project.Finalize()
}

// readSvpGroup reads the notes and pitchDelta curve of one group, closing the
// curve with gaps outside the group's notes.
func readSvpGroup(group gjson.Result, blickOffset, pitchOffset int64) ([]model.Note, []model.PitchPoint) {
	var notes []model.Note
	for _, n := range group.Get("notes").Array() {
		onset := n.Get("onset").Int() + blickOffset
		notes = append(notes, model.Note{
			Key:     int(n.Get("pitch").Int() + pitchOffset),
			Lyric:   n.Get("lyrics").String(),
			Phoneme: n.Get("phonemes").String(),
			TickOn:  blickToTick(onset),
			TickOff: blickToTick(onset + n.Get("duration").Int()),
		})
	}
	raw := group.Get("parameters.pitchDelta.points").Array()
	if len(raw) < 2 || len(notes) == 0 {
		return notes, nil
	}
	var points []model.PitchPoint
	for i := 0; i+1 < len(raw); i += 2 {
		tick := blickToTick(raw[i].Int() + blickOffset)
		points = append(points, model.Point(tick, raw[i+1].Float()/100))
	}
	points = append(points, model.Gap(notes[len(notes)-1].TickOff))
	return notes, points
}

type svpProject struct {
	Version      int             `json:"version"`
	Time         svpTime         `json:"time"`
	Library      []svpGroup      `json:"library"`
	Tracks       []svpTrack      `json:"tracks"`
	RenderConfig svpRenderConfig `json:"renderConfig"`
}

type svpTime struct {
	Meter []svpMeter `json:"meter"`
	Tempo []svpTempo `json:"tempo"`
}

type svpMeter struct {
	Index       int `json:"index"`
	Numerator   int `json:"numerator"`
	Denominator int `json:"denominator"`
}

type svpTempo struct {
	Position int64   `json:"position"`
	BPM      float64 `json:"bpm"`
}

type svpGroup struct {
	Name       string        `json:"name"`
	UUID       string        `json:"uuid"`
	Parameters svpParameters `json:"parameters"`
	Notes      []svpNote     `json:"notes"`
}

type svpParameters struct {
	PitchDelta svpCurve `json:"pitchDelta"`
}

type svpCurve struct {
	Mode   string    `json:"mode"`
	Points []float64 `json:"points"`
}

type svpNote struct {
	Onset    int64  `json:"onset"`
	Duration int64  `json:"duration"`
	Lyrics   string `json:"lyrics"`
	Phonemes string `json:"phonemes"`
	Pitch    int    `json:"pitch"`
	Detune   int    `json:"detune"`
}

type svpTrack struct {
	Name          string   `json:"name"`
	DispColor     string   `json:"dispColor"`
	DispOrder     int      `json:"dispOrder"`
	RenderEnabled bool     `json:"renderEnabled"`
	MainGroup     svpGroup `json:"mainGroup"`
	MainRef       svpRef   `json:"mainRef"`
	Groups        []svpRef `json:"groups"`
}

type svpRef struct {
	GroupID        string `json:"groupID"`
	BlickOffset    int64  `json:"blickOffset"`
	PitchOffset    int    `json:"pitchOffset"`
	IsInstrumental bool   `json:"isInstrumental"`
}

type svpRenderConfig struct {
	Destination   string `json:"destination"`
	Filename      string `json:"filename"`
	NumChannels   int    `json:"numChannels"`
	AspirationFmt string `json:"aspirationFormat"`
	BitDepth      int    `json:"bitDepth"`
	SampleRate    int    `json:"sampleRate"`
	ExportMixDown bool   `json:"exportMixDown"`
}

// GenerateSvp encodes a Synthesizer V Studio project. Each track keeps its
// notes in the main group.
func GenerateSvp(p *model.Project, features []model.Feature) (*model.ExportResult, error) {
	doc := svpProject{
		Version: svpVersion,
		Library: []svpGroup{},
		RenderConfig: svpRenderConfig{
			Filename: p.Name, NumChannels: 1, AspirationFmt: "noAspiration",
			BitDepth: 16, SampleRate: 44100, ExportMixDown: true,
		},
	}
	for _, ts := range p.TimeSignatures {
		doc.Time.Meter = append(doc.Time.Meter, svpMeter{Index: ts.MeasurePosition, Numerator: ts.Numerator, Denominator: ts.Denominator})
	}
	for _, t := range p.Tempos {
		doc.Time.Tempo = append(doc.Time.Tempo, svpTempo{Position: tickToBlick(t.TickPosition), BPM: t.BPM})
	}

	withPitch := model.HasConvertPitch(features)
	for i, t := range p.Tracks {
		group := svpGroup{
			Name:       "main",
			UUID:       uuid.New().String(),
			Parameters: svpParameters{PitchDelta: svpCurve{Mode: "cubic", Points: []float64{}}},
			Notes:      make([]svpNote, 0, len(t.Notes)),
		}
		for _, n := range t.Notes {
			group.Notes = append(group.Notes, svpNote{
				Onset:    tickToBlick(n.TickOn),
				Duration: tickToBlick(n.Length()),
				Lyrics:   n.Lyric,
				Phonemes: n.Phoneme,
				Pitch:    clampKey(n.Key),
			})
		}
		if withPitch {
			for _, pt := range pitch.ReduceRepeated(relativePoints(t)) {
				cents := math.Round(pt.ValueOr(0)*100*1000) / 1000
				group.Parameters.PitchDelta.Points = append(group.Parameters.PitchDelta.Points,
					float64(tickToBlick(pt.Tick)), cents)
			}
		}
		doc.Tracks = append(doc.Tracks, svpTrack{
			Name:      trackName(t),
			DispColor: "ff7db235",
			DispOrder: i,
			MainGroup: group,
			MainRef:   svpRef{GroupID: group.UUID},
			Groups:    []svpRef{},
		})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode svp: %w", err)
	}
	data = append(data, svpDocSplitter)
	return singleResult(p, svpFormat.Extension(), data), nil
}

package formats

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/james-see/singformat/pkg/converter/pitch"
	"github.com/james-see/singformat/pkg/converter/timing"
	"github.com/james-see/singformat/pkg/model"
	"gopkg.in/yaml.v3"
)

var ustxFormat = model.Format{
	Name:                "ustx",
	DisplayName:         "OpenUtau",
	Extensions:          []string{".ustx"},
	CanParse:            true,
	CanGenerate:         true,
	PossibleLyricsTypes: allLyrics,
}

const (
	ustxVersionCurrent = "0.6"
	ustxPitchCurve     = "pitd"
	ustxPitchInterval  = 5
)

// ustxVersion accepts both the numeric and the quoted form of ustx_version.
type ustxVersion string

func (v *ustxVersion) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("ustx_version: expected scalar, got kind %d", node.Kind)
	}
	*v = ustxVersion(node.Value)
	return nil
}

func (v ustxVersion) MarshalYAML() (any, error) {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: string(v)}, nil
}

type ustxProject struct {
	Name           string              `yaml:"name"`
	Comment        string              `yaml:"comment"`
	OutputDir      string              `yaml:"output_dir"`
	CacheDir       string              `yaml:"cache_dir"`
	Version        ustxVersion         `yaml:"ustx_version"`
	Resolution     int                 `yaml:"resolution"`
	BPM            float64             `yaml:"bpm"`
	BeatPerBar     int                 `yaml:"beat_per_bar"`
	BeatUnit       int                 `yaml:"beat_unit"`
	TimeSignatures []ustxTimeSignature `yaml:"time_signatures,omitempty"`
	Tempos         []ustxTempo         `yaml:"tempos,omitempty"`
	Tracks         []ustxTrack         `yaml:"tracks"`
	VoiceParts     []ustxVoicePart     `yaml:"voice_parts"`
	WaveParts      []any               `yaml:"wave_parts"`
}

type ustxTimeSignature struct {
	BarPosition int `yaml:"bar_position"`
	BeatPerBar  int `yaml:"beat_per_bar"`
	BeatUnit    int `yaml:"beat_unit"`
}

type ustxTempo struct {
	Position int64   `yaml:"position"`
	BPM      float64 `yaml:"bpm"`
}

type ustxTrack struct {
	Phonemizer string  `yaml:"phonemizer"`
	Mute       bool    `yaml:"mute"`
	Solo       bool    `yaml:"solo"`
	Volume     float64 `yaml:"volume"`
}

type ustxVoicePart struct {
	Name     string      `yaml:"name"`
	Comment  string      `yaml:"comment"`
	TrackNo  int         `yaml:"track_no"`
	Position int64       `yaml:"position"`
	Notes    []ustxNote  `yaml:"notes"`
	Curves   []ustxCurve `yaml:"curves,omitempty"`
}

type ustxNote struct {
	Position int64       `yaml:"position"`
	Duration int64       `yaml:"duration"`
	Tone     int         `yaml:"tone"`
	Lyric    string      `yaml:"lyric"`
	Pitch    ustxPitch   `yaml:"pitch"`
	Vibrato  ustxVibrato `yaml:"vibrato"`
}

type ustxPitch struct {
	Data      []ustxPitchPoint `yaml:"data"`
	SnapFirst bool             `yaml:"snap_first"`
}

type ustxPitchPoint struct {
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Shape string  `yaml:"shape"`
}

type ustxVibrato struct {
	Length float64 `yaml:"length"`
	Period float64 `yaml:"period"`
	Depth  float64 `yaml:"depth"`
	In     float64 `yaml:"in"`
	Out    float64 `yaml:"out"`
	Shift  float64 `yaml:"shift"`
	Drift  float64 `yaml:"drift"`
}

type ustxCurve struct {
	Abbr string  `yaml:"abbr"`
	Xs   []int64 `yaml:"xs"`
	Ys   []int   `yaml:"ys"`
}

// ParseUstx decodes an OpenUtau project. Projects older than the tempo list
// carry a single bpm and meter at the top level.
func ParseUstx(file model.File, params model.ImportParams) (*model.Project, error) {
	var doc ustxProject
	if err := yaml.Unmarshal(file.Data, &doc); err != nil {
		return nil, model.UnparsableError("ustx yaml", err)
	}
	if doc.Resolution != 0 && doc.Resolution != model.TicksPerBeat {
		return nil, model.NewIllegalFile(model.IllegalElementValue, "resolution "+strconv.Itoa(doc.Resolution))
	}

	project := model.Project{
		Format:     ustxFormat.Name,
		InputFiles: []string{file.Name},
		Name:       doc.Name,
	}
	if project.Name == "" {
		project.Name = baseName(file.Name)
	}
	if doc.Version != "" && doc.Version != ustxVersionCurrent {
		project.ImportWarnings = append(project.ImportWarnings, model.IncompatibleFormatSerializationVersion{
			CurrentVersion: ustxVersionCurrent, DataVersion: string(doc.Version),
		})
	}
	for _, t := range doc.Tempos {
		project.Tempos = append(project.Tempos, model.Tempo{TickPosition: t.Position, BPM: t.BPM})
	}
	if len(project.Tempos) == 0 && doc.BPM > 0 {
		project.Tempos = []model.Tempo{{BPM: doc.BPM}}
	}
	for _, ts := range doc.TimeSignatures {
		project.TimeSignatures = append(project.TimeSignatures, model.TimeSignature{
			MeasurePosition: ts.BarPosition, Numerator: ts.BeatPerBar, Denominator: ts.BeatUnit,
		})
	}
	if len(project.TimeSignatures) == 0 && doc.BeatPerBar > 0 && doc.BeatUnit > 0 {
		project.TimeSignatures = []model.TimeSignature{{Numerator: doc.BeatPerBar, Denominator: doc.BeatUnit}}
	}

	trackCount := len(doc.Tracks)
	for _, part := range doc.VoiceParts {
		trackCount = max(trackCount, part.TrackNo+1)
	}
	tr := timing.New(project.Tempos)
	for i := 0; i < trackCount; i++ {
		var parts []ustxVoicePart
		for _, part := range doc.VoiceParts {
			if part.TrackNo == i {
				parts = append(parts, part)
			}
		}
		project.Tracks = append(project.Tracks, ustxTrackFromParts(i, parts, tr, params))
	}
	return project.Finalize()
}

func ustxTrackFromParts(id int, parts []ustxVoicePart, tr *timing.Transformer, params model.ImportParams) model.Track {
	track := model.Track{ID: id}
	type sourced struct {
		note ustxNote
		part int64
	}
	var all []sourced
	var pitd []model.PitchPoint
	for _, part := range parts {
		if track.Name == "" {
			track.Name = part.Name
		}
		for _, n := range part.Notes {
			all = append(all, sourced{note: n, part: part.Position})
		}
		for _, c := range part.Curves {
			if c.Abbr != ustxPitchCurve {
				continue
			}
			for i := range c.Xs {
				if i < len(c.Ys) {
					pitd = append(pitd, model.Point(part.Position+c.Xs[i], float64(c.Ys[i])/100))
				}
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].part+all[i].note.Position < all[j].part+all[j].note.Position
	})
	for _, s := range all {
		on := s.part + s.note.Position
		track.Notes = append(track.Notes, model.Note{
			Key: s.note.Tone, Lyric: s.note.Lyric, TickOn: on, TickOff: on + s.note.Duration,
		})
	}
	if params.SimpleImport || len(track.Notes) == 0 {
		return track
	}

	var abs []model.PitchPoint
	for i, s := range all {
		n := track.Notes[i]
		prev, hasPrev := prevTone(track.Notes, i)
		pts := ustxNoteCurve(s.note, n, prev, hasPrev, tr)
		if len(pts) == 0 || pts[0].Tick > n.TickOn {
			pts = append([]model.PitchPoint{model.Point(n.TickOn, float64(n.Key))}, pts...)
		}
		cut := len(abs)
		for cut > 0 && abs[cut-1].Tick >= pts[0].Tick {
			cut--
		}
		abs = append(abs[:cut], pts...)
		if i+1 == len(track.Notes) || track.Notes[i+1].TickOn > n.TickOff {
			abs = append(abs, model.Gap(n.TickOff))
		}
	}
	rel := pitch.ToRelative(&model.Pitch{Data: pitch.Sorted(abs), IsAbsolute: true}, track.Notes).Data
	if len(pitd) > 0 {
		rel = addDelta(rel, pitch.Sorted(pitd), track.Notes)
	}
	for i, s := range all {
		v := s.note.Vibrato
		vib := pitch.Vibrato{Length: v.Length, Period: v.Period, Depth: v.Depth, FadeIn: v.In, FadeOut: v.Out, Phase: v.Shift, Shift: v.Drift}
		if !vib.IsZero() {
			rel = pitch.AppendVibrato(rel, track.Notes[i], vib, tr, ustxPitchInterval)
		}
	}
	track.Pitch = &model.Pitch{Data: rel}
	return track
}

// prevTone returns the key of the note ending where note i starts.
func prevTone(notes []model.Note, i int) (int, bool) {
	if i == 0 || notes[i-1].TickOff != notes[i].TickOn {
		return 0, false
	}
	return notes[i-1].Key, true
}

func ustxNoteCurve(src ustxNote, n model.Note, prev int, hasPrev bool, tr *timing.Transformer) []model.PitchPoint {
	data := src.Pitch.Data
	if len(data) == 0 {
		return nil
	}
	onMs := tr.TickToMilliSec(n.TickOn)
	key := float64(n.Key)
	ys := make([]float64, len(data))
	for i, p := range data {
		ys[i] = p.Y
	}
	if src.Pitch.SnapFirst {
		ys[0] = 0
		if hasPrev {
			ys[0] = float64(prev-n.Key) * 10
		}
	}
	var out []model.PitchPoint
	for i := 0; i+1 < len(data); i++ {
		from := tr.MilliSecToTick(onMs + data[i].X)
		to := tr.MilliSecToTick(onMs + data[i+1].X)
		for tick := from; tick < to; tick += ustxPitchInterval {
			x := float64(tick-from) / float64(to-from)
			y := ys[i] + (ys[i+1]-ys[i])*ustxShape(data[i].Shape, x)
			out = append(out, model.Point(tick, key+y/10))
		}
	}
	last := len(data) - 1
	out = append(out, model.Point(tr.MilliSecToTick(onMs+data[last].X), key+ys[last]/10))
	return pitch.Sorted(out)
}

func ustxShape(shape string, x float64) float64 {
	switch shape {
	case "l":
		return x
	case "i":
		return 1 - math.Cos(math.Pi/2*x)
	case "o":
		return math.Sin(math.Pi / 2 * x)
	default:
		return (1 - math.Cos(math.Pi*x)) / 2
	}
}

// addDelta samples the relative curve inside every note and adds the linearly
// interpolated delta curve.
func addDelta(rel, delta []model.PitchPoint, notes []model.Note) []model.PitchPoint {
	base := &model.Pitch{Data: rel}
	var out []model.PitchPoint
	for _, n := range notes {
		for _, s := range noteSamples(base, n, ustxPitchInterval) {
			out = append(out, model.Point(s.Tick, *s.Value+linearAt(delta, s.Tick)))
		}
		out = append(out, model.Gap(n.TickOff))
	}
	return pitch.Sorted(out)
}

func linearAt(points []model.PitchPoint, tick int64) float64 {
	idx := sort.Search(len(points), func(i int) bool { return points[i].Tick > tick })
	var prev, next *model.PitchPoint
	if idx > 0 {
		prev = &points[idx-1]
	}
	if idx < len(points) {
		next = &points[idx]
	}
	return pitch.Linear(prev, next, tick)
}

// GenerateUstx encodes an OpenUtau project with one part per track. The pitch
// curve, when exported, goes to the pitd delta curve over flat notes.
func GenerateUstx(p *model.Project, features []model.Feature) (*model.ExportResult, error) {
	doc := ustxProject{
		Name:       p.Name,
		OutputDir:  "Vocal",
		CacheDir:   "UCache",
		Version:    ustxVersionCurrent,
		Resolution: model.TicksPerBeat,
		BPM:        model.DefaultTempo.BPM,
		BeatPerBar: model.DefaultTimeSignature.Numerator,
		BeatUnit:   model.DefaultTimeSignature.Denominator,
		WaveParts:  []any{},
	}
	if len(p.Tempos) > 0 {
		doc.BPM = p.Tempos[0].BPM
	}
	if len(p.TimeSignatures) > 0 {
		doc.BeatPerBar = p.TimeSignatures[0].Numerator
		doc.BeatUnit = p.TimeSignatures[0].Denominator
	}
	for _, t := range p.Tempos {
		doc.Tempos = append(doc.Tempos, ustxTempo{Position: t.TickPosition, BPM: t.BPM})
	}
	for _, ts := range p.TimeSignatures {
		doc.TimeSignatures = append(doc.TimeSignatures, ustxTimeSignature{
			BarPosition: ts.MeasurePosition, BeatPerBar: ts.Numerator, BeatUnit: ts.Denominator,
		})
	}

	withPitch := model.HasConvertPitch(features)
	for i, t := range p.Tracks {
		doc.Tracks = append(doc.Tracks, ustxTrack{Phonemizer: "OpenUtau.Core.DefaultPhonemizer"})
		part := ustxVoicePart{Name: trackName(t), TrackNo: i, Notes: make([]ustxNote, 0, len(t.Notes))}
		for _, n := range t.Notes {
			part.Notes = append(part.Notes, ustxNote{
				Position: n.TickOn,
				Duration: n.Length(),
				Tone:     clampKey(n.Key),
				Lyric:    n.Lyric,
				Pitch: ustxPitch{
					Data:      []ustxPitchPoint{{X: 0, Y: 0, Shape: "io"}},
					SnapFirst: false,
				},
				Vibrato: ustxVibrato{Period: 175, Depth: 25, In: 10, Out: 10},
			})
		}
		if withPitch {
			if curve, ok := ustxPitd(t); ok {
				part.Curves = append(part.Curves, curve)
			}
		}
		doc.VoiceParts = append(doc.VoiceParts, part)
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ustx: %w", err)
	}
	return singleResult(p, ustxFormat.Extension(), data), nil
}

func ustxPitd(t model.Track) (ustxCurve, bool) {
	points := relativePoints(t)
	if len(points) == 0 {
		return ustxCurve{}, false
	}
	rel := &model.Pitch{Data: points}
	curve := ustxCurve{Abbr: ustxPitchCurve}
	for _, n := range t.Notes {
		for _, s := range pitch.Scale(noteSamples(rel, n, ustxPitchInterval), 100) {
			curve.Xs = append(curve.Xs, s.Tick)
			curve.Ys = append(curve.Ys, int(math.Round(*s.Value)))
		}
	}
	return curve, len(curve.Xs) > 0
}

// Package formats implements the per-format project codecs. Every codec
// decodes raw files into a model.Project and encodes a model.Project back into
// one or more payloads.
package formats

import (
	"context"
	"fmt"
	"math"
	"path"
	"sort"
	"strings"

	"github.com/james-see/singformat/pkg/converter/pitch"
	"github.com/james-see/singformat/pkg/model"
)

type parseFunc func(files []model.File, params model.ImportParams) (*model.Project, error)

type generateFunc func(p *model.Project, features []model.Feature) (*model.ExportResult, error)

// Codec is a registered format with its decoder and encoder.
type Codec struct {
	info     model.Format
	parse    parseFunc
	generate generateFunc
}

// Format returns the format description.
func (c *Codec) Format() model.Format {
	return c.info
}

// Parse decodes files into a project.
func (c *Codec) Parse(ctx context.Context, files []model.File, params model.ImportParams) (*model.Project, error) {
	if c.parse == nil {
		return nil, fmt.Errorf("%s: %w", c.info.Name, model.ErrCannotParse)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, model.ErrNoInput
	}
	return c.parse(files, params)
}

// Generate encodes a project.
func (c *Codec) Generate(ctx context.Context, p *model.Project, features []model.Feature) (*model.ExportResult, error) {
	if c.generate == nil {
		return nil, fmt.Errorf("%s: %w", c.info.Name, model.ErrCannotExport)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p == nil || len(p.Tracks) == 0 {
		return nil, model.ErrEmptyProject
	}
	return c.generate(p, features)
}

func single(fn func(model.File, model.ImportParams) (*model.Project, error)) parseFunc {
	return func(files []model.File, params model.ImportParams) (*model.Project, error) {
		return fn(files[0], params)
	}
}

var allLyrics = []model.LyricsType{model.RomajiCV, model.RomajiVCV, model.KanaCV, model.KanaVCV}

// All returns every codec in registry order.
func All() []*Codec {
	return []*Codec{
		{info: vsqFormat, parse: single(ParseVsq), generate: GenerateVsq},
		{info: vocaloidMidFormat, parse: single(ParseVocaloidMid), generate: GenerateVocaloidMid},
		{info: vsqxFormat, parse: single(ParseVsqx), generate: GenerateVsqx},
		{info: vprFormat, parse: single(ParseVpr), generate: GenerateVpr},
		{info: ustFormat, parse: ParseUst, generate: GenerateUst},
		{info: ustxFormat, parse: single(ParseUstx), generate: GenerateUstx},
		{info: ccsFormat, parse: single(ParseCcs), generate: GenerateCcs},
		{info: svpFormat, parse: single(ParseSvp), generate: GenerateSvp},
		{info: s5pFormat, parse: single(ParseS5p), generate: GenerateS5p},
		{info: midiFormat, parse: single(ParseMidi), generate: GenerateMidi},
		{info: musicXMLFormat, generate: GenerateMusicXML},
		{info: ufdataFormat, parse: single(ParseUfData), generate: GenerateUfData},
		{info: ppsfFormat, parse: single(ParsePpsf)},
	}
}

// baseName strips the directory and extension of a file name.
func baseName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if ext := path.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

func singleResult(p *model.Project, ext string, data []byte, notifications ...model.ExportNotification) *model.ExportResult {
	return &model.ExportResult{
		Data:          data,
		FileName:      p.Name + ext,
		Notifications: notifications,
	}
}

// trackName returns the track name or a numbered fallback.
func trackName(t model.Track) string {
	if t.Name != "" {
		return t.Name
	}
	return fmt.Sprintf("Track %d", t.ID+1)
}

// relativePoints returns the track curve as key-relative points, or nil.
func relativePoints(t model.Track) []model.PitchPoint {
	if t.Pitch.IsEmpty() {
		return nil
	}
	return pitch.ToRelative(t.Pitch, t.Notes).Data
}

// bendInterval is the grid a relative curve is resampled on before it is
// quantized into PIT/PBS events.
const bendInterval = 5

// bendEvents encodes the track curve for the VOCALOID event model. Step holds
// are padded so they survive linear resampling, and runs of equal samples are
// collapsed to their ends before quantizing.
func bendEvents(t model.Track) (pit, pbs []pitch.BendEvent, clamped bool) {
	points := relativePoints(t)
	if len(points) == 0 {
		return nil, nil, false
	}
	points = pitch.AppendPointsForInterpolation(points, bendInterval)
	points = pitch.ReduceRepeated(pitch.Interpolate(points, bendInterval))
	return pitch.EncodeBend(points)
}

// absolutePoints returns the track curve in absolute semitones, or nil.
func absolutePoints(t model.Track) []model.PitchPoint {
	if t.Pitch.IsEmpty() {
		return nil
	}
	return pitch.ToAbsolute(t.Pitch, t.Notes).Data
}

// noteSamples resamples the curve under n every step ticks, starting at the
// note onset and covering its whole length.
func noteSamples(curve *model.Pitch, n model.Note, step int64) []model.PitchPoint {
	points := pitch.Shift(pitch.NotePoints(curve, n.TickOn, n.TickOff), -n.TickOn)
	if len(points) == 0 {
		points = []model.PitchPoint{model.Point(0, 0)}
	}
	if end := n.Length() - 1; points[len(points)-1].Tick < end {
		points = append(points, model.PitchPoint{Tick: end, Value: points[len(points)-1].Value})
	}
	return pitch.Shift(pitch.DotResampled(points, step), n.TickOn)
}

// gridSamples resamples a held curve onto a grid whose k-th sample sits at
// tickAt(k) for k in [0, count). tickAt must not decrease. Samples where no
// value is held are NaN.
func gridSamples(points []model.PitchPoint, count int64, tickAt func(int64) int64) []float64 {
	if count <= 0 || len(points) == 0 {
		return nil
	}
	indexed := make([]model.PitchPoint, 0, len(points)+1)
	for _, pt := range points {
		k := sort.Search(int(count), func(i int) bool { return tickAt(int64(i)) >= pt.Tick })
		indexed = append(indexed, model.PitchPoint{Tick: int64(k), Value: pt.Value})
	}
	if last := indexed[len(indexed)-1]; last.Tick < count-1 {
		indexed = append(indexed, model.PitchPoint{Tick: count - 1, Value: last.Value})
	}
	out := make([]float64, count)
	for _, s := range pitch.Resampled(indexed, 1, heldOrNaN) {
		if s.Tick < count {
			out[s.Tick] = *s.Value
		}
	}
	return out
}

func heldOrNaN(prev, _ *model.PitchPoint, _ int64) float64 {
	if prev == nil || prev.Value == nil {
		return math.NaN()
	}
	return *prev.Value
}

func clampKey(k int) int {
	return max(model.KeyMin, min(model.KeyMax, k))
}

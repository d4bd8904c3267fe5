package formats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/james-see/singformat/pkg/converter/bin"
	"github.com/james-see/singformat/pkg/converter/lyrics"
	"github.com/james-see/singformat/pkg/converter/pitch"
	"github.com/james-see/singformat/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noteShape struct {
	Key   int
	Lyric string
	On    int64
	Off   int64
}

func shapes(t model.Track) []noteShape {
	out := make([]noteShape, len(t.Notes))
	for i, n := range t.Notes {
		out[i] = noteShape{Key: n.Key, Lyric: n.Lyric, On: n.TickOn, Off: n.TickOff}
	}
	return out
}

func sampleProject(t *testing.T) *model.Project {
	t.Helper()
	p := model.Project{
		Name:           "sample",
		Tempos:         []model.Tempo{{TickPosition: 0, BPM: 120}, {TickPosition: 1920, BPM: 150}},
		TimeSignatures: []model.TimeSignature{{MeasurePosition: 0, Numerator: 4, Denominator: 4}, {MeasurePosition: 2, Numerator: 3, Denominator: 4}},
		Tracks: []model.Track{
			{Name: "lead", Notes: []model.Note{
				{Key: 60, Lyric: "あ", TickOn: 0, TickOff: 480},
				{Key: 62, Lyric: "い", TickOn: 480, TickOff: 960},
				{Key: 64, Lyric: "う", TickOn: 1440, TickOff: 1920},
			}},
			{Name: "harmony", Notes: []model.Note{
				{Key: 57, Lyric: "か", TickOn: 0, TickOff: 960},
			}},
		},
	}
	out, err := p.Finalize()
	require.NoError(t, err)
	return out
}

func codecByName(t *testing.T, name string) *Codec {
	t.Helper()
	for _, c := range All() {
		if c.Format().Name == name {
			return c
		}
	}
	t.Fatalf("codec %s not registered", name)
	return nil
}

func TestRegistry(t *testing.T) {
	seen := make(map[string]bool)
	for _, c := range All() {
		f := c.Format()
		assert.False(t, seen[f.Name], "duplicate codec %s", f.Name)
		seen[f.Name] = true
		assert.NotEmpty(t, f.Extension(), f.Name)
		assert.Equal(t, f.CanParse, c.parse != nil, f.Name)
		assert.Equal(t, f.CanGenerate, c.generate != nil, f.Name)
	}
	assert.Len(t, seen, 13)
}

func TestCodecMisuse(t *testing.T) {
	ctx := context.Background()

	_, err := codecByName(t, "musicxml").Parse(ctx, []model.File{{Name: "a.xml"}}, model.ImportParams{})
	assert.ErrorIs(t, err, model.ErrCannotParse)

	_, err = codecByName(t, "ppsf").Generate(ctx, sampleProject(t), nil)
	assert.ErrorIs(t, err, model.ErrCannotExport)

	_, err = codecByName(t, "vsqx").Parse(ctx, nil, model.ImportParams{})
	assert.ErrorIs(t, err, model.ErrNoInput)

	_, err = codecByName(t, "svp").Generate(ctx, &model.Project{Name: "empty"}, nil)
	assert.ErrorIs(t, err, model.ErrEmptyProject)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = codecByName(t, "svp").Generate(cancelled, sampleProject(t), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		codec  string
		tempos bool
		meters bool
	}{
		{codec: "mid", tempos: true, meters: true},
		{codec: "vsq", tempos: true, meters: true},
		{codec: "vocaloid-mid", tempos: true, meters: true},
		{codec: "vsqx", tempos: true, meters: true},
		{codec: "vpr", tempos: true, meters: true},
		{codec: "ustx", tempos: true, meters: true},
		{codec: "ccs", tempos: true, meters: true},
		{codec: "svp", tempos: true, meters: true},
		{codec: "s5p", tempos: true, meters: true},
		{codec: "ufdata", tempos: true, meters: true},
	}
	for _, tt := range tests {
		t.Run(tt.codec, func(t *testing.T) {
			ctx := context.Background()
			src := sampleProject(t)
			c := codecByName(t, tt.codec)

			res, err := c.Generate(ctx, src, nil)
			require.NoError(t, err)
			require.False(t, res.IsMulti())
			assert.True(t, strings.HasPrefix(res.FileName, "sample"))

			got, err := c.Parse(ctx, []model.File{{Name: res.FileName, Data: res.Data}}, model.ImportParams{})
			require.NoError(t, err)
			assert.Equal(t, tt.codec, got.Format)
			require.Len(t, got.Tracks, len(src.Tracks))
			for i := range src.Tracks {
				assert.Equal(t, shapes(src.Tracks[i]), shapes(got.Tracks[i]), "track %d", i)
				assert.Equal(t, i, got.Tracks[i].ID)
			}
			if tt.tempos {
				require.Len(t, got.Tempos, len(src.Tempos))
				for i := range src.Tempos {
					assert.Equal(t, src.Tempos[i].TickPosition, got.Tempos[i].TickPosition)
					assert.InDelta(t, src.Tempos[i].BPM, got.Tempos[i].BPM, 0.01)
				}
			}
			if tt.meters {
				assert.Equal(t, src.TimeSignatures, got.TimeSignatures)
			}
		})
	}
}

func TestExportNotifications(t *testing.T) {
	tests := []struct {
		codec string
		want  model.ExportNotification
	}{
		{"vsq", model.PhonemeResetRequiredVSQ{}},
		{"vsqx", model.PhonemeResetRequiredV4{}},
		{"vpr", model.PhonemeResetRequiredV5{}},
	}
	for _, tt := range tests {
		t.Run(tt.codec, func(t *testing.T) {
			res, err := codecByName(t, tt.codec).Generate(context.Background(), sampleProject(t), nil)
			require.NoError(t, err)
			assert.Contains(t, res.Notifications, tt.want)
		})
	}
}

func TestPitchExport(t *testing.T) {
	src := sampleProject(t)
	src.Tracks[0].Pitch = &model.Pitch{Data: []model.PitchPoint{
		model.Point(0, 0.5),
		model.Point(240, 0.5),
		model.Point(480, -0.25),
		model.Gap(960),
	}}
	features := []model.Feature{model.ConvertPitch{}}

	for _, name := range []string{"mid", "vsqx", "ccs", "svp", "s5p", "ufdata"} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := codecByName(t, name)
			res, err := c.Generate(ctx, src, features)
			require.NoError(t, err)
			got, err := c.Parse(ctx, []model.File{{Name: res.FileName, Data: res.Data}}, model.ImportParams{})
			require.NoError(t, err)
			assert.False(t, got.Tracks[0].Pitch.IsEmpty())

			simple, err := c.Parse(ctx, []model.File{{Name: res.FileName, Data: res.Data}}, model.ImportParams{SimpleImport: true})
			require.NoError(t, err)
			assert.True(t, simple.Tracks[0].Pitch.IsEmpty())
		})
	}
}

// stepCurve holds 0 for the first half of the lead's first note and jumps to
// +2 semitones at tick 240.
func stepCurve() *model.Pitch {
	return &model.Pitch{Data: []model.PitchPoint{
		model.Point(0, 0),
		model.Point(240, 2),
		model.Point(480, 0),
	}}
}

func TestBendExportKeepsStepShape(t *testing.T) {
	features := []model.Feature{model.ConvertPitch{}}
	for _, name := range []string{"vsq", "vsqx", "mid"} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			src := sampleProject(t)
			src.Tracks[0].Pitch = stepCurve()
			c := codecByName(t, name)

			res, err := c.Generate(ctx, src, features)
			require.NoError(t, err)
			assert.NotContains(t, res.Notifications, model.ExportNotification(model.DataOverLengthLimitIgnored{}))
			got, err := c.Parse(ctx, []model.File{{Name: res.FileName, Data: res.Data}}, model.ImportParams{})
			require.NoError(t, err)

			curve := pitch.ToRelative(got.Tracks[0].Pitch, got.Tracks[0].Notes)
			for _, tick := range []int64{0, 120, 235, 239} {
				v, ok := curve.ValueAt(tick)
				require.True(t, ok, "tick %d", tick)
				assert.InDelta(t, 0, v, 1e-3, "tick %d", tick)
			}
			for _, tick := range []int64{240, 300, 475} {
				v, ok := curve.ValueAt(tick)
				require.True(t, ok, "tick %d", tick)
				assert.InDelta(t, 2, v, 1e-3, "tick %d", tick)
			}
		})
	}
}

func TestBendExportReportsClampedSensitivity(t *testing.T) {
	features := []model.Feature{model.ConvertPitch{}}
	for _, name := range []string{"vsq", "vsqx", "vpr", "mid"} {
		t.Run(name, func(t *testing.T) {
			src := sampleProject(t)
			src.Tracks[0].Pitch = &model.Pitch{Data: []model.PitchPoint{model.Point(0, 30), model.Point(240, -1)}}
			res, err := codecByName(t, name).Generate(context.Background(), src, features)
			require.NoError(t, err)
			assert.Contains(t, res.Notifications, model.ExportNotification(model.DataOverLengthLimitIgnored{}))

			res, err = codecByName(t, name).Generate(context.Background(), sampleProject(t), features)
			require.NoError(t, err)
			assert.NotContains(t, res.Notifications, model.ExportNotification(model.DataOverLengthLimitIgnored{}))
		})
	}
}

func TestNoteSampledPitchKeepsStepShape(t *testing.T) {
	src := sampleProject(t)
	src.Tracks[0].Pitch = stepCurve()

	t.Run("ust", func(t *testing.T) {
		res, err := GenerateUst(src, []model.Feature{model.ConvertPitch{}})
		require.NoError(t, err)
		text, err := bin.DecodeText(res.Outputs[0].Data)
		require.NoError(t, err)
		start := strings.Index(text, "PitchBend=")
		require.GreaterOrEqual(t, start, 0)
		line := text[start+len("PitchBend="):]
		line = line[:strings.Index(line, "\r\n")]
		values := strings.Split(line, ",")
		require.Len(t, values, 96)
		assert.Equal(t, "0", values[0])
		assert.Equal(t, "0", values[47])
		assert.Equal(t, "200", values[48])
		assert.Equal(t, "200", values[95])
	})

	t.Run("ustx", func(t *testing.T) {
		curve, ok := ustxPitd(src.Tracks[0])
		require.True(t, ok)
		require.Equal(t, len(curve.Xs), len(curve.Ys))
		at := make(map[int64]int, len(curve.Xs))
		for i, x := range curve.Xs {
			at[x] = curve.Ys[i]
		}
		assert.Equal(t, 0, at[0])
		assert.Equal(t, 0, at[235])
		assert.Equal(t, 200, at[240])
		assert.Equal(t, 200, at[475])
		assert.Equal(t, 0, at[480])
	})
}

func TestUstTemposFromFirstFileWithTempo(t *testing.T) {
	body := "[#0000]\r\nLength=480\r\nLyric=a\r\nNoteNum=60\r\n[#TRACKEND]\r\n"
	files := []model.File{
		{Name: "a.ust", Data: []byte("[#SETTING]\r\n" + body)},
		{Name: "b.ust", Data: []byte("[#SETTING]\r\nTempo=150\r\n" + body)},
		{Name: "c.ust", Data: []byte("[#SETTING]\r\nTempo=90\r\n" + body)},
	}
	p, err := ParseUst(files, model.ImportParams{MultipleMode: true})
	require.NoError(t, err)
	require.NotEmpty(t, p.Tempos)
	assert.InDelta(t, 150.0, p.Tempos[0].BPM, 1e-9)
	assert.Equal(t, "a", p.Name)

	var ignored []string
	for _, w := range p.ImportWarnings {
		if tw, ok := w.(model.TempoIgnoredInFile); ok {
			ignored = append(ignored, tw.File)
		}
	}
	assert.Equal(t, []string{"c.ust"}, ignored)
}

func TestUstRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := sampleProject(t)
	c := codecByName(t, "ust")

	res, err := c.Generate(ctx, src, nil)
	require.NoError(t, err)
	require.Len(t, res.Outputs, 2)
	assert.Equal(t, "lead.ust", res.Outputs[0].FileName)
	assert.Contains(t, res.Notifications, model.ExportNotification(model.TempoChangeIgnored{}))

	text, err := bin.DecodeText(res.Outputs[0].Data)
	require.NoError(t, err)
	assert.Contains(t, text, "Mode2=True\r\n")
	assert.Contains(t, text, "Lyric=R\r\n")

	files := make([]model.File, len(res.Outputs))
	for i, o := range res.Outputs {
		files[i] = model.File{Name: o.FileName, Data: o.Data}
	}
	got, err := c.Parse(ctx, files, model.ImportParams{MultipleMode: true})
	require.NoError(t, err)
	require.Len(t, got.Tracks, 2)
	assert.Equal(t, shapes(src.Tracks[0]), shapes(got.Tracks[0]))
	assert.Equal(t, shapes(src.Tracks[1]), shapes(got.Tracks[1]))
	assert.Equal(t, "lead", got.Tracks[0].Name)
	require.NotEmpty(t, got.Tempos)
	assert.InDelta(t, 120, got.Tempos[0].BPM, 0.001)

	var ignored int
	for _, w := range got.ImportWarnings {
		if _, ok := w.(model.TempoIgnoredInFile); ok {
			ignored++
		}
	}
	assert.Equal(t, 1, ignored)
}

func ustSource(lines []string, keys []int) string {
	var b strings.Builder
	b.WriteString("[#VERSION]\r\nUST Version1.2\r\n[#SETTING]\r\nTempo=120.00\r\nProjectName=doremi\r\n")
	for i, l := range lines {
		fmt.Fprintf(&b, "[#%04d]\r\nLength=480\r\nLyric=%s\r\nNoteNum=%d\r\n", i, l, keys[i])
	}
	b.WriteString("[#TRACKEND]\r\n")
	return b.String()
}

func TestUstKanaVCVToCV(t *testing.T) {
	vcv := []string{"- ど", "o れ", "e み", "i ふぁ", "a そ", "o ら", "a し", "i ど"}
	keys := []int{60, 62, 64, 65, 67, 69, 71, 72}
	data, err := bin.ToShiftJIS(ustSource(vcv, keys))
	require.NoError(t, err)

	p, err := ParseUst([]model.File{{Name: "doremi.ust", Data: data}}, model.ImportParams{})
	require.NoError(t, err)
	assert.Equal(t, "doremi", p.Name)
	require.Len(t, p.Tracks, 1)
	require.Equal(t, model.KanaVCV, lyrics.Infer(*p))

	cv := lyrics.ConvertJapanese(*p, model.KanaVCV, model.KanaCV)
	var got []string
	for _, n := range cv.Tracks[0].Notes {
		got = append(got, n.Lyric)
	}
	assert.Equal(t, []string{"ど", "れ", "み", "ふぁ", "そ", "ら", "し", "ど"}, got)
}

func TestUstPitchModes(t *testing.T) {
	text := "[#SETTING]\r\nTempo=120\r\n" +
		"[#0000]\r\nLength=480\r\nLyric=a\r\nNoteNum=60\r\nPBS=-40;20\r\nPBW=80,120\r\nPBY=0\r\n" +
		"[#0001]\r\nLength=480\r\nLyric=R\r\nNoteNum=60\r\n" +
		"[#0002]\r\nLength=480\r\nLyric=i\r\nNoteNum=62\r\nPBType=5\r\nPBStart=0\r\nPitchBend=0,10,20,30\r\n" +
		"[#TRACKEND]\r\n"
	p, err := ParseUst([]model.File{{Name: "modes.ust", Data: []byte(text)}}, model.ImportParams{})
	require.NoError(t, err)
	require.Len(t, p.Tracks[0].Notes, 2)
	assert.Equal(t, int64(960), p.Tracks[0].Notes[1].TickOn)
	require.False(t, p.Tracks[0].Pitch.IsEmpty())
	assert.False(t, p.Tracks[0].Pitch.IsAbsolute)

	simple, err := ParseUst([]model.File{{Name: "modes.ust", Data: []byte(text)}}, model.ImportParams{SimpleImport: true})
	require.NoError(t, err)
	assert.Nil(t, simple.Tracks[0].Pitch)
}

// synthSvp builds a project with one main group per track.
func synthSvp(tracks int, keys []int) []byte {
	var ts []map[string]any
	for i := 0; i < tracks; i++ {
		var notes []map[string]any
		for j, k := range keys {
			notes = append(notes, map[string]any{
				"onset":    tickToBlick(int64(j) * 480),
				"duration": tickToBlick(480),
				"lyrics":   "la",
				"phonemes": "",
				"pitch":    k,
			})
		}
		ts = append(ts, map[string]any{
			"name":      fmt.Sprintf("Voice %d", i+1),
			"mainGroup": map[string]any{"name": "main", "uuid": fmt.Sprintf("g-%d", i), "notes": notes},
			"groups":    []any{},
		})
	}
	doc := map[string]any{
		"version": svpVersion,
		"time": map[string]any{
			"meter": []any{map[string]any{"index": 0, "numerator": 4, "denominator": 4}},
			"tempo": []any{map[string]any{"position": 0, "bpm": 128.0}},
		},
		"library": []any{},
		"tracks":  ts,
	}
	data, _ := json.Marshal(doc)
	return append(data, 0)
}

func TestSvpToUstTenTracks(t *testing.T) {
	keys := []int{60, 62, 64, 65, 67, 69, 71, 72, 74, 76}
	p, err := ParseSvp(model.File{Name: "ten.svp", Data: synthSvp(10, keys)}, model.ImportParams{})
	require.NoError(t, err)
	require.Len(t, p.Tracks, 10)

	res, err := GenerateUst(p, nil)
	require.NoError(t, err)
	require.Len(t, res.Outputs, 10)
	for i, o := range res.Outputs {
		assert.Equal(t, fmt.Sprintf("Voice %d.ust", i+1), o.FileName)
		back, err := ParseUst([]model.File{{Name: o.FileName, Data: o.Data}}, model.ImportParams{})
		require.NoError(t, err)
		require.Len(t, back.Tracks, 1)
		var got []int
		for _, n := range back.Tracks[0].Notes {
			got = append(got, n.Key)
		}
		assert.Equal(t, keys, got, "track %d", i)
		assert.InDelta(t, 128, back.Tempos[0].BPM, 0.001)
	}
}

func TestSvpLibraryGroups(t *testing.T) {
	doc := `{"version":153,"time":{"meter":[{"index":0,"numerator":4,"denominator":4}],"tempo":[{"position":0,"bpm":120}]},
"library":[{"uuid":"lib","notes":[{"onset":0,"duration":705600000,"lyrics":"ra","pitch":60}]}],
"tracks":[{"name":"t","mainGroup":{"notes":[]},"groups":[{"groupID":"lib","blickOffset":1411200000,"pitchOffset":2}]}]}`
	older := `{"version":100,"tracks":[]}`
	p, err := ParseSvp(model.File{Name: "lib.svp", Data: []byte(older + "\x00" + doc + "\x00")}, model.ImportParams{})
	require.NoError(t, err)
	require.Len(t, p.Tracks, 1)
	assert.Equal(t, []noteShape{{Key: 62, Lyric: "ra", On: 960, Off: 1440}}, shapes(p.Tracks[0]))
}

func TestVsqxRejectsUnknownRoot(t *testing.T) {
	_, err := ParseVsqx(model.File{Name: "x.vsqx", Data: []byte(`<?xml version="1.0"?><vsq5></vsq5>`)}, model.ImportParams{})
	var illegal *model.IllegalFileError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, model.UnknownVersion, illegal.Kind)
}

func TestVsqPreMeasure(t *testing.T) {
	src := sampleProject(t)
	src.MeasurePrefix = 2
	res, err := GenerateVsq(src, nil)
	require.NoError(t, err)
	got, err := ParseVsq(model.File{Name: "pre.vsq", Data: res.Data}, model.ImportParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, got.MeasurePrefix)
	assert.Equal(t, shapes(src.Tracks[0]), shapes(got.Tracks[0]))
}

func TestDropPreMeasure(t *testing.T) {
	tempos := []model.Tempo{{TickPosition: 0, BPM: 100}, {TickPosition: 960, BPM: 110}, {TickPosition: 3840, BPM: 140}}
	sigs := []model.TimeSignature{{MeasurePosition: 0, Numerator: 4, Denominator: 4}, {MeasurePosition: 3, Numerator: 3, Denominator: 4}}

	gotTempos, gotSigs, prefix, warnings := dropPreMeasure(tempos, sigs, 1)
	assert.Equal(t, int64(1920), prefix)
	assert.Equal(t, []model.Tempo{{TickPosition: 0, BPM: 110}, {TickPosition: 1920, BPM: 140}}, gotTempos)
	assert.Equal(t, []model.TimeSignature{{MeasurePosition: 0, Numerator: 4, Denominator: 4}, {MeasurePosition: 2, Numerator: 3, Denominator: 4}}, gotSigs)
	assert.Equal(t, []model.ImportWarning{model.TempoIgnoredInPreMeasure{Tempo: model.Tempo{TickPosition: 0, BPM: 100}}}, warnings)

	p := &model.Project{TimeSignatures: []model.TimeSignature{{Numerator: 3, Denominator: 4}}}
	assert.Equal(t, int64(2880), addPreMeasure(p, 2))
	assert.Equal(t, int64(0), addPreMeasure(p, 0))
}

func TestINI(t *testing.T) {
	doc := parseINI("[EventList]\r\n1920=ID#0002\r\n0=ID#0000\r\n480=ID#0001\r\n[ID#0001]\r\nLength=abc\r\n")
	var keys []string
	for _, e := range doc.section("EventList") {
		keys = append(keys, e.key)
	}
	assert.Equal(t, []string{"0", "480", "1920"}, keys)

	_, err := doc.getInt("ID#0001", "Length")
	var illegal *model.IllegalFileError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, model.IllegalElementValue, illegal.Kind)

	_, err = doc.getInt("ID#0001", "Note#")
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, model.MissingElement, illegal.Kind)

	assert.Equal(t, []string{"a", "a,b", "0.000000", "64"}, splitQuoted(`"a","a,b",0.000000,64`))
}

func TestMusicXML(t *testing.T) {
	src := sampleProject(t)
	src.Tracks[1].Notes[0].TickOff = 2400
	res, err := GenerateMusicXML(src, nil)
	require.NoError(t, err)
	require.Len(t, res.Outputs, 2)
	assert.Equal(t, "harmony.musicxml", res.Outputs[1].FileName)

	lead := string(res.Outputs[0].Data)
	assert.Contains(t, lead, "<!DOCTYPE score-partwise")
	assert.Contains(t, lead, "<text>あ</text>")
	assert.Contains(t, lead, "<beat-type>4</beat-type>")

	assert.Equal(t, 1, strings.Count(lead, "<measure "))

	harmony := string(res.Outputs[1].Data)
	assert.Equal(t, 2, strings.Count(harmony, "<measure "))
	assert.Contains(t, harmony, `<tie type="start"`)
	assert.Contains(t, harmony, `<tie type="stop"`)
	assert.Equal(t, 1, strings.Count(harmony, "<lyric>"))
}

func TestPpsf(t *testing.T) {
	t.Run("legacy xml", func(t *testing.T) {
		_, err := ParsePpsf(model.File{Name: "old.ppsf", Data: []byte(`<?xml version="1.0"?><Piapro/>`)}, model.ImportParams{})
		var unsupported *model.UnsupportedFileFormatError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, model.UnsupportedLegacy, unsupported.Reason)
		assert.Contains(t, unsupported.Detail, "Piapro")
	})

	t.Run("broken legacy xml", func(t *testing.T) {
		_, err := ParsePpsf(model.File{Name: "old.ppsf", Data: []byte(`<Piapro><a></Piapro>`)}, model.ImportParams{})
		var illegal *model.IllegalFileError
		require.ErrorAs(t, err, &illegal)
		assert.Equal(t, model.Unparsable, illegal.Kind)
	})

	t.Run("archive", func(t *testing.T) {
		project := `{"ppsf":{"project":{"name":"demo",
"tempo":{"const":1200000,"use_sequence":false},
"meter":{"const":{"nume":3,"denomi":4},"use_sequence":false},
"dvl_track":[{"name":"v","events":[
{"pos":0,"length":480,"note_number":60,"lyric":"ら","enabled":true},
{"pos":480,"length":480,"note_number":62,"lyric":"り","enabled":false},
{"pos":960,"length":240,"note_number":64,"lyric":"る"}]}]}}}`
		data, err := writeZip(map[string][]byte{ppsfProjectPath: []byte(project)}, []string{ppsfProjectPath})
		require.NoError(t, err)

		p, err := ParsePpsf(model.File{Name: "demo.ppsf", Data: data}, model.ImportParams{})
		require.NoError(t, err)
		assert.Equal(t, "demo", p.Name)
		assert.Equal(t, []model.Tempo{{TickPosition: 0, BPM: 120}}, p.Tempos)
		assert.Equal(t, []model.TimeSignature{{Numerator: 3, Denominator: 4}}, p.TimeSignatures)
		assert.Equal(t, []noteShape{
			{Key: 60, Lyric: "ら", On: 0, Off: 480},
			{Key: 64, Lyric: "る", On: 960, Off: 1200},
		}, shapes(p.Tracks[0]))
	})

	t.Run("missing entry", func(t *testing.T) {
		data, err := writeZip(map[string][]byte{"other.json": []byte("{}")}, []string{"other.json"})
		require.NoError(t, err)
		_, err = ParsePpsf(model.File{Name: "x.ppsf", Data: data}, model.ImportParams{})
		var illegal *model.IllegalFileError
		require.ErrorAs(t, err, &illegal)
		assert.Equal(t, model.MissingElement, illegal.Kind)
	})
}

func TestInterchangeJSON(t *testing.T) {
	src := sampleProject(t)
	src.Tracks[0].Notes[0].Phoneme = "a"
	src.Tracks[0].Pitch = &model.Pitch{Data: []model.PitchPoint{model.Point(0, 60), model.Gap(480)}, IsAbsolute: true}

	data, err := ProjectToInterchangeJSON(*src)
	require.NoError(t, err)
	got, err := InterchangeJSONToProject(data)
	require.NoError(t, err)
	assert.Equal(t, src.Tracks, got.Tracks)
	assert.Equal(t, src.Tempos, got.Tempos)
	assert.Equal(t, src.TimeSignatures, got.TimeSignatures)

	tests := []struct {
		name string
		data string
	}{
		{"missing version", `{"project":{}}`},
		{"newer version", `{"formatVersion":2,"project":{}}`},
		{"schema violation", `{"formatVersion":1,"project":{"name":"x","tracks":[{"name":"t","notes":[{"key":200,"tickOn":0,"tickOff":1,"lyric":"a"}]}],"timeSignatures":[],"tempos":[],"measurePrefix":0}}`},
		{"missing project fields", `{"formatVersion":1,"project":{"name":"x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InterchangeJSONToProject([]byte(tt.data))
			var unsupported *model.UnsupportedFileFormatError
			require.ErrorAs(t, err, &unsupported)
			assert.Equal(t, model.UnsupportedSchemaMismatch, unsupported.Reason)
		})
	}

	_, err = InterchangeJSONToProject([]byte("{not json"))
	var illegal *model.IllegalFileError
	require.ErrorAs(t, err, &illegal)
}

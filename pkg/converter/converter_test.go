package converter

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/james-see/singformat/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCodec implements Codec for testing
type mockCodec struct {
	name     string
	perTrack bool
	calls    atomic.Int32
	fail     error
}

func (m *mockCodec) Format() Format {
	return Format{
		Name:         m.name,
		Extensions:   []string{"." + m.name},
		MultipleFile: m.perTrack,
		CanParse:     true,
		CanGenerate:  true,
	}
}

func (m *mockCodec) Parse(_ context.Context, files []model.File, _ model.ImportParams) (*model.Project, error) {
	p := model.Project{Format: m.name, Name: "mock"}
	for i, f := range files {
		p.Tracks = append(p.Tracks, model.Track{ID: i, Name: f.Name, Notes: []model.Note{{Key: 60, Lyric: "ka", TickOn: 0, TickOff: 480}}})
	}
	return p.Finalize()
}

func (m *mockCodec) Generate(_ context.Context, p *model.Project, _ []model.Feature) (*model.ExportResult, error) {
	m.calls.Add(1)
	if m.fail != nil {
		return nil, m.fail
	}
	names := make([]string, len(p.Tracks))
	for i, t := range p.Tracks {
		names[i] = t.Name
	}
	if m.perTrack {
		res := &model.ExportResult{Notifications: []model.ExportNotification{model.TempoChangeIgnored{}}}
		for _, n := range names {
			res.Outputs = append(res.Outputs, model.Output{Data: []byte(n), FileName: n + "." + m.name})
		}
		return res, nil
	}
	return &model.ExportResult{
		Data:          []byte(strings.Join(names, ",")),
		FileName:      p.Name + "." + m.name,
		Notifications: []model.ExportNotification{model.PitchDataExported{}},
	}, nil
}

func projectWithTracks(names ...string) *model.Project {
	p := &model.Project{Name: "demo"}
	for i, n := range names {
		p.Tracks = append(p.Tracks, model.Track{ID: i, Name: n})
	}
	return p
}

func entryNames(outputs []model.Output) []string {
	out := make([]string, len(outputs))
	for i, o := range outputs {
		out[i] = o.FileName
	}
	return out
}

func TestDetectFormat(t *testing.T) {
	conv := Default()
	tests := []struct {
		filename string
		data     []byte
		expected string
	}{
		{"song.vsqx", nil, "vsqx"},
		{"song.ust", nil, "ust"},
		{"song.ustx", nil, "ustx"},
		{"song.svp", nil, "svp"},
		{"song.mid", []byte("MThd\x00\x00\x00\x06"), "mid"},
		{"song.mid", []byte("MThd\x00\x00\x00\x06MTrk DM:0000:[Common]"), "vocaloid-mid"},
		{"song.MID", []byte("MThd"), "mid"},
		{"export", []byte("MThd....DM:0000:[Common]\nVersion=DSB301"), "vsq"},
		{"export", []byte(`{"formatVersion":1,"project":{}}`), "ufdata"},
		{"export", []byte("{\"version\":153,\"library\":[]}\x00"), "svp"},
		{"export", []byte(`{"version":7,"instrumental":{}}`), "s5p"},
		{"export", []byte(`<?xml version="1.0"?><vsq4 xmlns="http://www.yamaha.co.jp/vocaloid/schema/vsq4/">`), "vsqx"},
		{"export", []byte(`<?xml version="1.0"?><Scenario Code="x">`), "ccs"},
		{"export", []byte("[#VERSION]\r\nUST Version1.2\r\n[#SETTING]\r\n"), "ust"},
		{"export", []byte("name: New Project\nustx_version: \"0.6\"\n"), "ustx"},
	}

	for _, tt := range tests {
		t.Run(tt.filename+"/"+tt.expected, func(t *testing.T) {
			f, err := conv.DetectFormat(tt.filename, tt.data)
			require.NoError(t, err)
			if f.Name != tt.expected {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.filename, f.Name, tt.expected)
			}
		})
	}
}

func TestDetectFormatUnknown(t *testing.T) {
	conv := Default()
	for _, name := range []string{"notes.txt", "score.musicxml", "noext"} {
		t.Run(name, func(t *testing.T) {
			_, err := conv.DetectFormat(name, []byte{0x00, 0x01})
			var unsupported *model.UnsupportedFileFormatError
			require.ErrorAs(t, err, &unsupported)
			assert.Equal(t, model.UnsupportedUnknown, unsupported.Reason)
		})
	}
}

func TestNew(t *testing.T) {
	first := &mockCodec{name: "a"}
	second := &mockCodec{name: "b"}
	replacement := &mockCodec{name: "a", perTrack: true}

	conv := New(first, second, replacement)
	formats := conv.Formats()
	require.Len(t, formats, 2)
	assert.Equal(t, "a", formats[0].Name)
	assert.True(t, formats[0].MultipleFile)

	codec, err := conv.Lookup("b")
	require.NoError(t, err)
	assert.Same(t, second, codec)

	_, err = conv.Lookup("zzz")
	var unsupported *model.UnsupportedFileFormatError
	assert.ErrorAs(t, err, &unsupported)
}

func TestDefaultRegistry(t *testing.T) {
	names := make(map[string]bool)
	for _, f := range Default().Formats() {
		names[f.Name] = true
	}
	for _, want := range []string{"vsq", "vocaloid-mid", "vsqx", "vpr", "ust", "ustx", "ccs", "svp", "s5p", "mid", "musicxml", "ufdata", "ppsf"} {
		assert.True(t, names[want], want)
	}
}

func TestGenerateSingle(t *testing.T) {
	codec := &mockCodec{name: "one"}
	conv := New(codec)

	res, err := conv.Generate(context.Background(), projectWithTracks("a", "b"), "one", nil)
	require.NoError(t, err)
	assert.False(t, res.IsMulti())
	assert.Equal(t, "demo.one", res.FileName)
	assert.Equal(t, "a,b", string(res.Data))
	assert.Equal(t, int32(1), codec.calls.Load())
}

func TestGenerateSplit(t *testing.T) {
	codec := &mockCodec{name: "one"}
	conv := New(codec)
	conv.SetWorkers(2)

	features := []model.Feature{model.SplitProject{MaxTrackCount: 2}}
	res, err := conv.Generate(context.Background(), projectWithTracks("a", "b", "c", "d", "e"), "one", features)
	require.NoError(t, err)
	assert.Equal(t, int32(3), codec.calls.Load())
	assert.Equal(t, "demo.zip", res.FileName)
	assert.Equal(t, []string{"demo_1_a.one", "demo_2_c.one", "demo_3_e.one"}, entryNames(res.Outputs))
	assert.Equal(t, "c,d", string(res.Outputs[1].Data))
	assert.Equal(t, []model.ExportNotification{model.PitchDataExported{}}, res.Notifications)

	files, err := UnpackArchive(res.Data)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "demo_3_e.one", files[2].Name)
	assert.Equal(t, "e", string(files[2].Data))
}

func TestGeneratePerTrack(t *testing.T) {
	codec := &mockCodec{name: "multi", perTrack: true}
	conv := New(codec)

	res, err := conv.Generate(context.Background(), projectWithTracks("lead", "", "chorus"), "multi", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), codec.calls.Load())
	assert.Equal(t, []string{"demo_1_lead.multi", "demo_2_untitled.multi", "demo_3_chorus.multi"}, entryNames(res.Outputs))
	assert.Len(t, res.Notifications, 1)

	single, err := conv.Generate(context.Background(), projectWithTracks("solo"), "multi", nil)
	require.NoError(t, err)
	assert.False(t, single.IsMulti())
	assert.Equal(t, "demo_1_solo.multi", single.FileName)
	assert.Equal(t, "solo", string(single.Data))
}

func TestGenerateErrors(t *testing.T) {
	boom := errors.New("boom")
	conv := New(&mockCodec{name: "bad", fail: boom}, &mockCodec{name: "one"})

	_, err := conv.Generate(context.Background(), projectWithTracks("a", "b"), "bad", []model.Feature{model.SplitProject{MaxTrackCount: 1}})
	assert.ErrorIs(t, err, boom)

	_, err = conv.Generate(context.Background(), &model.Project{}, "one", nil)
	assert.ErrorIs(t, err, model.ErrEmptyProject)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = conv.Generate(ctx, projectWithTracks("a", "b"), "one", []model.Feature{model.SplitProject{MaxTrackCount: 1}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnpackArchiveOrder(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"p_10_x.ust", "p_2_y.ust", "readme.txt", "p_1_z.ust"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(name))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	files, err := UnpackArchive(buf.Bytes())
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"p_1_z.ust", "p_2_y.ust", "p_10_x.ust", "readme.txt"}, names)

	_, err = UnpackArchive([]byte("not a zip"))
	var illegal *model.IllegalFileError
	assert.ErrorAs(t, err, &illegal)
}

func TestEntryName(t *testing.T) {
	name := entryName("my_song", 3, "うた", ".ust")
	assert.True(t, strings.HasPrefix(name, "my-song_3_"), name)
	assert.True(t, strings.HasSuffix(name, ".ust"), name)
	assert.Equal(t, 3, entryIndex(name))
	assert.Equal(t, 2, strings.Count(name, "_"))
	assert.Equal(t, "untitled", safeName("  "))
}

func TestParse(t *testing.T) {
	conv := Default()
	ust := "[#SETTING]\r\nTempo=120\r\n[#0000]\r\nLength=480\r\nLyric=ka\r\nNoteNum=60\r\n[#0001]\r\nLength=480\r\nLyric=ki\r\nNoteNum=62\r\n"

	p, err := conv.Parse(context.Background(), "ust", []model.File{{Name: "a.ust", Data: []byte(ust)}}, model.ImportParams{})
	require.NoError(t, err)
	assert.Equal(t, model.RomajiCV, p.LyricsType)

	_, err = conv.Parse(context.Background(), "vsqx", []model.File{{Name: "a.vsqx"}, {Name: "b.vsqx"}}, model.ImportParams{})
	assert.ErrorIs(t, err, model.ErrTooManyFiles)

	_, err = conv.Parse(context.Background(), "musicxml", []model.File{{Name: "a.xml"}}, model.ImportParams{})
	assert.ErrorIs(t, err, model.ErrCannotParse)
}

func TestConvertLyrics(t *testing.T) {
	conv := Default()
	p := model.Project{
		LyricsType: model.RomajiVCV,
		Tracks: []model.Track{{Notes: []model.Note{
			{Key: 60, Lyric: "- ka", TickOn: 0, TickOff: 480},
			{Key: 60, Lyric: "a ki", TickOn: 480, TickOff: 960},
		}}},
	}

	// vsq cannot carry VCV lyrics and falls back to its suggested kana CV
	out, err := conv.ConvertLyrics(p, "vsq", model.LyricsUnknown)
	require.NoError(t, err)
	assert.Equal(t, model.KanaCV, out.LyricsType)
	assert.Equal(t, "か", out.Tracks[0].Notes[0].Lyric)
	assert.Equal(t, "き", out.Tracks[0].Notes[1].Lyric)

	kept, err := conv.ConvertLyrics(p, "ust", model.LyricsUnknown)
	require.NoError(t, err)
	assert.Equal(t, "- ka", kept.Tracks[0].Notes[0].Lyric)

	_, err = conv.ConvertLyrics(p, "nope", model.KanaCV)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	p := model.Project{
		Name:           "demo",
		Format:         "ust",
		Tempos:         []model.Tempo{{TickPosition: 0, BPM: 120}},
		TimeSignatures: []model.TimeSignature{model.DefaultTimeSignature},
		Tracks: []model.Track{{Name: "lead", Notes: []model.Note{{Key: 60, TickOn: 0, TickOff: 1920}}}},
		ImportWarnings: []model.ImportWarning{model.TempoNotFound{}},
	}
	s := Summarize(p)
	assert.Equal(t, "demo", s.Name)
	assert.Equal(t, int64(1920), s.LastTick)
	assert.InDelta(t, float64(2*time.Second), float64(s.Duration), float64(time.Millisecond))
	assert.Equal(t, []TrackSummary{{Name: "lead", Notes: 1}}, s.Tracks)
	assert.Len(t, s.Warnings, 1)
}

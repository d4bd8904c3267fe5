package formats

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/james-see/singformat/pkg/converter/bin"
	"github.com/james-see/singformat/pkg/converter/pitch"
	"github.com/james-see/singformat/pkg/converter/timing"
	"github.com/james-see/singformat/pkg/model"
)

var ustFormat = model.Format{
	Name:                "ust",
	DisplayName:         "UTAU",
	Extensions:          []string{".ust"},
	MultipleFile:        true,
	CanParse:            true,
	CanGenerate:         true,
	PossibleLyricsTypes: allLyrics,
}

const (
	ustPitchInterval = 5
	ustNewline       = "\r\n"
)

var ustNoteSection = regexp.MustCompile(`^#\d+$`)

// ustNote keeps the raw pitch fields of a note until the tempo map is known.
type ustNote struct {
	note      model.Note
	pbs       string
	pbw       string
	pby       string
	pbm       string
	pitchBend string
	pbStart   string
	vbr       string
}

type ustFile struct {
	name   string
	tempos []model.Tempo
	notes  []ustNote
}

// ParseUst decodes one or more UTAU sequence files, one track per file. Tempo
// changes come from the first file that carries any; those of later files are
// reported and dropped.
func ParseUst(files []model.File, params model.ImportParams) (*model.Project, error) {
	project := model.Project{Format: ustFormat.Name}
	var parsed []ustFile
	for i, f := range files {
		uf, err := parseUstFile(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		project.InputFiles = append(project.InputFiles, f.Name)
		if i == 0 {
			project.Name = uf.name
			if project.Name == "" {
				project.Name = baseName(f.Name)
			}
		}
		if len(project.Tempos) == 0 {
			project.Tempos = uf.tempos
		} else {
			for _, t := range uf.tempos {
				project.ImportWarnings = append(project.ImportWarnings, model.TempoIgnoredInFile{File: f.Name, Tempo: t})
			}
		}
		parsed = append(parsed, uf)
	}

	tr := timing.New(project.Tempos)
	for i, uf := range parsed {
		track := model.Track{ID: i, Name: baseName(files[i].Name)}
		for _, n := range uf.notes {
			track.Notes = append(track.Notes, n.note)
		}
		if !params.SimpleImport {
			track.Pitch = ustPitch(uf.notes, tr)
		}
		project.Tracks = append(project.Tracks, track)
	}
	return project.Finalize()
}

func parseUstFile(f model.File) (ustFile, error) {
	text, err := bin.DecodeText(f.Data)
	if err != nil {
		return ustFile{}, model.UnparsableError("ust text", err)
	}
	doc := parseINI(text)
	out := ustFile{}
	if name, ok := doc.get("#SETTING", "ProjectName"); ok {
		out.name = strings.TrimSpace(name)
	}
	if s, ok := doc.get("#SETTING", "Tempo"); ok {
		if bpm, err := parseFloat(s); err == nil && bpm > 0 {
			out.tempos = append(out.tempos, model.Tempo{TickPosition: 0, BPM: bpm})
		}
	}

	var tick int64
	found := false
	for _, section := range doc.order {
		if !ustNoteSection.MatchString(section) {
			continue
		}
		found = true
		length, err := doc.getInt(section, "Length")
		if err != nil {
			return ustFile{}, err
		}
		if s, ok := doc.get(section, "Tempo"); ok {
			if bpm, err := parseFloat(s); err == nil && bpm > 0 {
				out.tempos = append(out.tempos, model.Tempo{TickPosition: tick, BPM: bpm})
			}
		}
		lyric, _ := doc.get(section, "Lyric")
		lyric = strings.TrimSpace(lyric)
		if lyric == "" || lyric == "R" || lyric == "r" {
			tick += length
			continue
		}
		key, err := doc.getInt(section, "NoteNum")
		if err != nil {
			return ustFile{}, err
		}
		n := ustNote{note: model.Note{Key: int(key), Lyric: lyric, TickOn: tick, TickOff: tick + length}}
		n.pbs, _ = doc.get(section, "PBS")
		n.pbw, _ = doc.get(section, "PBW")
		n.pby, _ = doc.get(section, "PBY")
		n.pbm, _ = doc.get(section, "PBM")
		n.pitchBend, _ = doc.get(section, "PitchBend")
		n.pbStart, _ = doc.get(section, "PBStart")
		n.vbr, _ = doc.get(section, "VBR")
		out.notes = append(out.notes, n)
		tick += length
	}
	if !found {
		return ustFile{}, model.MissingElementError("note section")
	}
	return out, nil
}

// ustPitch builds an absolute curve from the Mode2 or Mode1 data of each note,
// converts it to relative form and adds the note vibratos.
func ustPitch(notes []ustNote, tr *timing.Transformer) *model.Pitch {
	var abs []model.PitchPoint
	hasData := false
	for i, n := range notes {
		pts := ustNoteCurve(n, tr)
		if len(pts) > 0 {
			hasData = true
		} else {
			pts = []model.PitchPoint{model.Point(n.note.TickOn, float64(n.note.Key))}
		}
		if pts[0].Tick > n.note.TickOn {
			pts = append([]model.PitchPoint{model.Point(n.note.TickOn, float64(n.note.Key))}, pts...)
		}
		cut := len(abs)
		for cut > 0 && abs[cut-1].Tick >= pts[0].Tick {
			cut--
		}
		abs = append(abs[:cut], pts...)
		if i+1 == len(notes) || notes[i+1].note.TickOn > n.note.TickOff {
			abs = append(abs, model.Gap(n.note.TickOff))
		}
	}
	var vibratos bool
	for _, n := range notes {
		if !parseVibrato(n.vbr).IsZero() {
			vibratos = true
		}
	}
	if !hasData && !vibratos {
		return nil
	}

	modelNotes := make([]model.Note, len(notes))
	for i, n := range notes {
		modelNotes[i] = n.note
	}
	rel := pitch.ToRelative(&model.Pitch{Data: pitch.Sorted(abs), IsAbsolute: true}, modelNotes).Data
	for _, n := range notes {
		if v := parseVibrato(n.vbr); !v.IsZero() {
			rel = pitch.AppendVibrato(rel, n.note, v, tr, ustPitchInterval)
		}
	}
	return &model.Pitch{Data: rel}
}

// ustNoteCurve returns absolute points for one note, preferring Mode2 data.
func ustNoteCurve(n ustNote, tr *timing.Transformer) []model.PitchPoint {
	key := float64(n.note.Key)
	onMs := tr.TickToMilliSec(n.note.TickOn)
	msToTick := func(ms float64) int64 { return tr.MilliSecToTick(onMs + ms) }

	if n.pbw != "" {
		start := splitNumbers(strings.ReplaceAll(n.pbs, ";", ","))
		xs := []float64{0}
		ys := []float64{0}
		if len(start) > 0 {
			xs[0] = start[0]
		}
		if len(start) > 1 {
			ys[0] = start[1]
		}
		widths := splitNumbers(n.pbw)
		heights := splitNumbers(n.pby)
		for i, w := range widths {
			xs = append(xs, xs[i]+w)
			y := 0.0
			if i < len(widths)-1 && i < len(heights) {
				y = heights[i]
			}
			ys = append(ys, y)
		}
		shapes := strings.Split(n.pbm, ",")
		var out []model.PitchPoint
		for i := 0; i+1 < len(xs); i++ {
			shape := ""
			if i < len(shapes) {
				shape = strings.TrimSpace(shapes[i])
			}
			from, to := msToTick(xs[i]), msToTick(xs[i+1])
			for tick := from; tick < to; tick += ustPitchInterval {
				x := float64(tick-from) / float64(to-from)
				y := ys[i] + (ys[i+1]-ys[i])*curveShape(shape, x)
				out = append(out, model.Point(tick, key+y/10))
			}
		}
		out = append(out, model.Point(msToTick(xs[len(xs)-1]), key+ys[len(ys)-1]/10))
		return pitch.Sorted(out)
	}

	if n.pitchBend != "" {
		cents := splitNumbers(n.pitchBend)
		startMs, _ := parseFloat(n.pbStart)
		first := msToTick(startMs)
		out := make([]model.PitchPoint, 0, len(cents))
		for i, c := range cents {
			out = append(out, model.Point(first+int64(i)*ustPitchInterval, key+c/100))
		}
		return out
	}
	return nil
}

// curveShape maps progress x in [0,1] through a UTAU Mode2 segment shape.
func curveShape(shape string, x float64) float64 {
	switch shape {
	case "s":
		return x
	case "r":
		return math.Sin(math.Pi / 2 * x)
	case "j":
		return 1 - math.Cos(math.Pi/2*x)
	default:
		return (1 - math.Cos(math.Pi*x)) / 2
	}
}

func parseVibrato(s string) pitch.Vibrato {
	v := splitNumbers(s)
	if len(v) < 7 {
		return pitch.Vibrato{}
	}
	return pitch.Vibrato{
		Length: v[0], Period: v[1], Depth: v[2],
		FadeIn: v[3], FadeOut: v[4], Phase: v[5], Shift: v[6],
	}
}

func splitNumbers(s string) []float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		out[i], _ = parseFloat(p)
	}
	return out
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// GenerateUst encodes one UTAU file per track. Gaps become rests, which are
// split at tempo changes; tempo changes inside a note move to the next
// section boundary.
func GenerateUst(p *model.Project, features []model.Feature) (*model.ExportResult, error) {
	withPitch := model.HasConvertPitch(features)
	result := &model.ExportResult{}
	tempoMoved := false
	for _, t := range p.Tracks {
		text, moved := ustText(p, t, withPitch)
		tempoMoved = tempoMoved || moved
		data, err := bin.ToShiftJIS(text)
		if err != nil {
			return nil, fmt.Errorf("track %s: %w", trackName(t), err)
		}
		result.Outputs = append(result.Outputs, model.Output{Data: data, FileName: trackName(t) + ustFormat.Extension()})
	}
	if tempoMoved {
		result.Notifications = append(result.Notifications, model.TempoChangeIgnored{})
	}
	if withPitch {
		result.Notifications = append(result.Notifications, model.PitchDataExported{})
	}
	return result, nil
}

type ustSection struct {
	tick   int64
	length int64
	note   *model.Note
}

func ustText(p *model.Project, t model.Track, withPitch bool) (string, bool) {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+ustNewline, args...)
	}
	firstBPM := model.DefaultTempo.BPM
	if len(p.Tempos) > 0 {
		firstBPM = p.Tempos[0].BPM
	}
	line("[#VERSION]")
	line("UST Version1.2")
	line("[#SETTING]")
	line("Tempo=%s", formatBPM(firstBPM))
	line("Tracks=1")
	line("ProjectName=%s", p.Name)
	line("VoiceDir=%%VOICE%%uta")
	line("OutFile=")
	line("CacheDir=%s.cache", p.Name)
	line("Tool1=wavtool.exe")
	line("Tool2=resampler.exe")
	if !withPitch {
		line("Mode2=True")
	}

	sections := ustSections(p, t)
	var rel *model.Pitch
	if withPitch {
		rel = pitch.ToRelative(t.Pitch, t.Notes)
	}
	tempoIdx := 1
	moved := false
	for i, s := range sections {
		line("[#%04d]", i)
		line("Length=%d", s.length)
		if s.note == nil {
			line("Lyric=R")
			line("NoteNum=60")
		} else {
			line("Lyric=%s", s.note.Lyric)
			line("NoteNum=%d", clampKey(s.note.Key))
		}
		line("PreUtterance=")
		line("Intensity=100")
		line("Modulation=0")
		var bpm float64
		for tempoIdx < len(p.Tempos) && p.Tempos[tempoIdx].TickPosition <= s.tick {
			if p.Tempos[tempoIdx].TickPosition != s.tick {
				moved = true
			}
			bpm = p.Tempos[tempoIdx].BPM
			tempoIdx++
		}
		if bpm > 0 {
			line("Tempo=%s", formatBPM(bpm))
		}
		if s.note != nil && !rel.IsEmpty() {
			line("PBType=%d", ustPitchInterval)
			line("PBStart=0")
			line("PitchBend=%s", ustPitchBend(rel, s.note))
		}
	}
	line("[#TRACKEND]")
	return b.String(), moved || tempoIdx < len(p.Tempos)
}

// ustSections lays out notes and rests. Rests are split at tempo changes so
// each change can be written on the section starting there.
func ustSections(p *model.Project, t model.Track) []ustSection {
	var out []ustSection
	addRest := func(from, to int64) {
		for from < to {
			end := to
			for _, tempo := range p.Tempos {
				if tempo.TickPosition > from && tempo.TickPosition < end {
					end = tempo.TickPosition
					break
				}
			}
			out = append(out, ustSection{tick: from, length: end - from})
			from = end
		}
	}
	var cursor int64
	for i := range t.Notes {
		n := &t.Notes[i]
		addRest(cursor, n.TickOn)
		out = append(out, ustSection{tick: n.TickOn, length: n.Length(), note: n})
		cursor = n.TickOff
	}
	return out
}

func ustPitchBend(rel *model.Pitch, n *model.Note) string {
	samples := pitch.Scale(noteSamples(rel, *n, ustPitchInterval), 100)
	values := make([]string, len(samples))
	for i, s := range samples {
		values[i] = strconv.Itoa(int(math.Round(*s.Value)))
	}
	return strings.Join(values, ",")
}

func formatBPM(bpm float64) string {
	return strconv.FormatFloat(bpm, 'f', 2, 64)
}

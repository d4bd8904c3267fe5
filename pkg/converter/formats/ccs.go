package formats

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/james-see/singformat/pkg/converter/pitch"
	"github.com/james-see/singformat/pkg/converter/timing"
	"github.com/james-see/singformat/pkg/model"
)

var ccsFormat = model.Format{
	Name:                "ccs",
	DisplayName:         "CeVIO",
	Extensions:          []string{".ccs"},
	CanParse:            true,
	CanGenerate:         true,
	PossibleLyricsTypes: []model.LyricsType{model.KanaCV},
	SuggestedLyricsType: model.KanaCV,
}

const (
	ccsClockPerTick = 2
	ccsFrameMs      = 5.0
	ccsCategory     = "SingerSong"
)

// ParseCcs decodes a CeVIO project. Every song unit becomes a track; the
// tempo and meter come from the first unit.
func ParseCcs(file model.File, params model.ImportParams) (*model.Project, error) {
	root, err := readXML(file.Data)
	if err != nil {
		return nil, model.UnparsableError("ccs", err)
	}
	if root.Tag != "Scenario" {
		return nil, model.MissingElementError("Scenario")
	}
	scene := childPath(root, "Sequence", "Scene")
	units := childPath(scene, "Units")
	if units == nil {
		return nil, model.MissingElementError("Units")
	}
	groupNames := make(map[string]string)
	for _, g := range childElements(childPath(scene, "Groups"), "Group") {
		id, _ := attr(g, "Id")
		name, _ := attr(g, "Name")
		groupNames[id] = name
	}

	project := model.Project{
		Format:     ccsFormat.Name,
		InputFiles: []string{file.Name},
		Name:       baseName(file.Name),
	}
	var songs []*etree.Element
	var groups []string
	for _, u := range units.SelectElements("Unit") {
		if cat, _ := attr(u, "Category"); cat != ccsCategory {
			continue
		}
		song := u.SelectElement("Song")
		if song == nil {
			return nil, model.MissingElementError("Song")
		}
		group, _ := attr(u, "Group")
		songs = append(songs, song)
		groups = append(groups, group)
	}
	if len(songs) == 0 {
		return nil, model.MissingElementError("Unit")
	}

	for i, song := range songs {
		tempos, meters, err := ccsConductor(song)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			project.Tempos = tempos
			project.TimeSignatures = metersToSignatures(meters)
			continue
		}
		for _, t := range tempos {
			if !containsTempo(project.Tempos, t) {
				project.ImportWarnings = append(project.ImportWarnings, model.TempoIgnoredInTrack{Track: i, Tempo: t})
			}
		}
	}

	tr := timing.New(project.Tempos)
	for i, song := range songs {
		track := model.Track{ID: i, Name: groupNames[groups[i]]}
		for _, n := range childElements(childPath(song, "Score"), "Note") {
			note, err := ccsNote(n)
			if err != nil {
				return nil, fmt.Errorf("track %d: %w", i+1, err)
			}
			track.Notes = append(track.Notes, note)
		}
		if !params.SimpleImport {
			if pts := ccsLogF0(childPath(song, "Parameter", "LogF0"), tr); len(pts) > 0 {
				track.Pitch = &model.Pitch{Data: pts, IsAbsolute: true}
			}
		}
		project.Tracks = append(project.Tracks, track)
	}
	return project.Finalize()
}

func containsTempo(tempos []model.Tempo, t model.Tempo) bool {
	for _, x := range tempos {
		if x.TickPosition == t.TickPosition && x.BPM == t.BPM {
			return true
		}
	}
	return false
}

func ccsConductor(song *etree.Element) ([]model.Tempo, []meterEvent, error) {
	var tempos []model.Tempo
	for _, s := range childElements(childPath(song, "Tempo"), "Sound") {
		clock, ok1 := attrInt(s, "Clock")
		bpm, ok2 := attrFloat(s, "Tempo")
		if !ok1 || !ok2 {
			return nil, nil, &model.IllegalFileError{Kind: model.MissingAttribute, Detail: "Sound Clock/Tempo"}
		}
		tempos = append(tempos, model.Tempo{TickPosition: clock / ccsClockPerTick, BPM: bpm})
	}
	var meters []meterEvent
	for _, t := range childElements(childPath(song, "Beat"), "Time") {
		clock, ok1 := attrInt(t, "Clock")
		beats, ok2 := attrInt(t, "Beats")
		beatType, ok3 := attrInt(t, "BeatType")
		if !ok1 || !ok2 || !ok3 {
			return nil, nil, &model.IllegalFileError{Kind: model.MissingAttribute, Detail: "Time Clock/Beats/BeatType"}
		}
		meters = append(meters, meterEvent{tick: clock / ccsClockPerTick, numerator: int(beats), denominator: int(beatType)})
	}
	return tempos, meters, nil
}

func ccsNote(n *etree.Element) (model.Note, error) {
	clock, ok1 := attrInt(n, "Clock")
	step, ok2 := attrInt(n, "PitchStep")
	octave, ok3 := attrInt(n, "PitchOctave")
	duration, ok4 := attrInt(n, "Duration")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return model.Note{}, &model.IllegalFileError{Kind: model.MissingAttribute, Detail: "Note"}
	}
	lyric, _ := attr(n, "Lyric")
	on := clock / ccsClockPerTick
	return model.Note{
		Key:     int((octave+1)*12 + step),
		Lyric:   lyric,
		TickOn:  on,
		TickOff: on + duration/ccsClockPerTick,
	}, nil
}

// ccsLogF0 reads natural-log frequency frames into absolute semitones. A run
// is closed with a gap when the next data does not continue it.
func ccsLogF0(node *etree.Element, tr *timing.Transformer) []model.PitchPoint {
	var out []model.PitchPoint
	next := int64(0)
	for _, d := range childElements(node, "Data") {
		index := next
		if v, ok := attrInt(d, "Index"); ok {
			index = v
		}
		repeat := int64(1)
		if v, ok := attrInt(d, "Repeat"); ok && v > 0 {
			repeat = v
		}
		logHz, err := strconv.ParseFloat(strings.TrimSpace(d.Text()), 64)
		if err != nil {
			continue
		}
		if index != next && len(out) > 0 {
			out = append(out, model.Gap(ccsFrameTick(tr, next)))
		}
		out = append(out, model.Point(ccsFrameTick(tr, index), hzToKey(math.Exp(logHz))))
		next = index + repeat
	}
	if len(out) > 0 {
		out = append(out, model.Gap(ccsFrameTick(tr, next)))
	}
	return pitch.Sorted(out)
}

func ccsFrameTick(tr *timing.Transformer, frame int64) int64 {
	return tr.MilliSecToTick(float64(frame) * ccsFrameMs)
}

func hzToKey(hz float64) float64 {
	return 69 + 12*math.Log2(hz/440)
}

func keyToHz(key float64) float64 {
	return 440 * math.Pow(2, (key-69)/12)
}

// GenerateCcs encodes a CeVIO project with one song unit and group per track.
func GenerateCcs(p *model.Project, features []model.Feature) (*model.ExportResult, error) {
	tr := timing.New(p.Tempos)
	root := etree.NewElement("Scenario")
	root.CreateAttr("Code", "7251BC4B6168E7B2992FA620BD3E1E77")
	gen := addElement(root, "Generation")
	addElement(gen, "Author", "Version", "3.2.21.2")
	addElement(gen, "TTS", "Version", "3.1.0")
	svss := addElement(gen, "SVSS", "Version", "3.0.5")
	addElement(svss, "Dictionary", "Version", "1.4.0")

	scene := addElement(addElement(root, "Sequence", "Id", ""), "Scene", "Id", "")
	units := addElement(scene, "Units")
	groups := addElement(scene, "Groups")
	addElement(scene, "SoundSetting", "Rhythm", "4/4", "Tempo", "120")

	withPitch := model.HasConvertPitch(features)
	end := tr.TickToSec(p.LastTick())
	for _, t := range p.Tracks {
		groupID := uuid.New().String()
		unit := addElement(units, "Unit",
			"Version", "1.0",
			"Id", "",
			"Category", ccsCategory,
			"Group", groupID,
			"StartTime", "00:00:00",
			"Duration", ccsDuration(end),
			"CastId", "",
			"Language", "Japanese")
		song := addElement(unit, "Song", "Version", "1.07")
		ccsTempo(song, p)
		ccsBeat(song, p)
		ccsScore(song, t)
		if withPitch {
			ccsWriteLogF0(song, t, tr)
		}
		addElement(groups, "Group",
			"Version", "1.0",
			"Id", groupID,
			"Category", ccsCategory,
			"Name", trackName(t),
			"Color", "#FFAF1F14",
			"Volume", "0",
			"Pan", "0",
			"IsSolo", "false",
			"IsMuted", "false",
			"CastId", "",
			"Language", "Japanese")
	}

	data, err := writeXML(root, false, "")
	if err != nil {
		return nil, err
	}
	return singleResult(p, ccsFormat.Extension(), data), nil
}

func ccsTempo(song *etree.Element, p *model.Project) {
	n := addElement(song, "Tempo")
	for _, t := range p.Tempos {
		addElement(n, "Sound",
			"Clock", strconv.FormatInt(t.TickPosition*ccsClockPerTick, 10),
			"Tempo", strconv.FormatFloat(t.BPM, 'f', -1, 64))
	}
}

func ccsBeat(song *etree.Element, p *model.Project) {
	n := addElement(song, "Beat")
	for _, ts := range p.TimeSignatures {
		tick := model.MeasureToTick(p.TimeSignatures, ts.MeasurePosition)
		addElement(n, "Time",
			"Clock", strconv.FormatInt(tick*ccsClockPerTick, 10),
			"Beats", strconv.Itoa(ts.Numerator),
			"BeatType", strconv.Itoa(ts.Denominator))
	}
}

func ccsScore(song *etree.Element, t model.Track) {
	score := addElement(song, "Score")
	addElement(score, "Key", "Clock", "0", "Fifths", "0", "Mode", "0")
	addElement(score, "Dynamics", "Clock", "0", "Value", "5")
	for _, n := range t.Notes {
		key := clampKey(n.Key)
		addElement(score, "Note",
			"Clock", strconv.FormatInt(n.TickOn*ccsClockPerTick, 10),
			"PitchStep", strconv.Itoa(key%12),
			"PitchOctave", strconv.Itoa(key/12-1),
			"Duration", strconv.FormatInt(n.Length()*ccsClockPerTick, 10),
			"Lyric", n.Lyric)
	}
}

// ccsWriteLogF0 samples the absolute curve on the frame grid inside notes and
// run-length encodes equal frames under song's Parameter element. Nothing is
// written when no frame carries a value.
func ccsWriteLogF0(song *etree.Element, t model.Track, tr *timing.Transformer) {
	points := absolutePoints(t)
	if len(points) == 0 {
		return
	}
	lastFrame := int64(tr.TickToMilliSec(lastNoteEnd(t)) / ccsFrameMs)
	samples := gridSamples(points, lastFrame, func(frame int64) int64 {
		return ccsFrameTick(tr, frame)
	})
	if len(samples) == 0 {
		return
	}
	logF0 := etree.NewElement("LogF0")
	logF0.CreateAttr("Length", strconv.FormatInt(lastFrame, 10))

	var runStart int64 = -1
	var runValue string
	flush := func(end int64) {
		if runStart < 0 {
			return
		}
		d := addText(logF0, "Data", runValue)
		d.CreateAttr("Index", strconv.FormatInt(runStart, 10))
		if end-runStart > 1 {
			d.CreateAttr("Repeat", strconv.FormatInt(end-runStart, 10))
		}
		runStart = -1
	}
	noteIdx := 0
	for frame := int64(0); frame < lastFrame; frame++ {
		tick := ccsFrameTick(tr, frame)
		for noteIdx < len(t.Notes) && t.Notes[noteIdx].TickOff <= tick {
			noteIdx++
		}
		inNote := noteIdx < len(t.Notes) && t.Notes[noteIdx].TickOn <= tick
		v := samples[frame]
		if !inNote || math.IsNaN(v) {
			flush(frame)
			continue
		}
		value := strconv.FormatFloat(math.Log(keyToHz(v)), 'f', 6, 64)
		if runStart >= 0 && value == runValue {
			continue
		}
		flush(frame)
		runStart, runValue = frame, value
	}
	flush(lastFrame)
	if len(logF0.ChildElements()) == 0 {
		return
	}
	addElement(song, "Parameter").AddChild(logF0)
}

func ccsDuration(sec float64) string {
	d := time.Duration(sec * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := d.Seconds() - float64(h*3600+m*60)
	return fmt.Sprintf("%02d:%02d:%05.2f", h, m, s)
}

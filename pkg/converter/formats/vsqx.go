package formats

import (
	"fmt"
	"math"
	"strconv"

	"github.com/beevik/etree"

	"github.com/james-see/singformat/pkg/converter/pitch"
	"github.com/james-see/singformat/pkg/model"
)

var vsqxFormat = model.Format{
	Name:                "vsqx",
	DisplayName:         "VOCALOID3/4",
	Extensions:          []string{".vsqx"},
	CanParse:            true,
	CanGenerate:         true,
	PossibleLyricsTypes: vocaloidLyrics,
	SuggestedLyricsType: model.KanaCV,
}

// vsqxTags names the elements that differ between the vsq3 and vsq4 schemas.
type vsqxTags struct {
	timeSigMeasure, timeSigNumerator, timeSigDenominator  string
	tempoTick, tempoValue                                 string
	trackName, part, partTick                             string
	noteTick, noteLength, noteKey, noteLyric, notePhoneme string
	control, controlTick, controlValue                    string
	pitchBend, pitchBendSens                              string
}

var (
	vsq3Tags = vsqxTags{
		timeSigMeasure: "posMes", timeSigNumerator: "nume", timeSigDenominator: "denomi",
		tempoTick: "posTick", tempoValue: "bpm",
		trackName: "trackName", part: "musicalPart", partTick: "posTick",
		noteTick: "posTick", noteLength: "durTick", noteKey: "noteNum", noteLyric: "lyric", notePhoneme: "phnms",
		control: "mCtrl", controlTick: "posTick", controlValue: "attr",
		pitchBend: "PIT", pitchBendSens: "PBS",
	}
	vsq4Tags = vsqxTags{
		timeSigMeasure: "m", timeSigNumerator: "nu", timeSigDenominator: "de",
		tempoTick: "t", tempoValue: "v",
		trackName: "name", part: "vsPart", partTick: "t",
		noteTick: "t", noteLength: "dur", noteKey: "n", noteLyric: "y", notePhoneme: "p",
		control: "cc", controlTick: "t", controlValue: "v",
		pitchBend: "P", pitchBendSens: "S",
	}
)

const (
	vsq4Namespace = "http://www.yamaha.co.jp/vocaloid/schema/vsq4/"
	vsqxBPMScale  = 100
)

// ParseVsqx decodes a VOCALOID3 (vsq3) or VOCALOID4 (vsq4) project.
func ParseVsqx(file model.File, params model.ImportParams) (*model.Project, error) {
	root, err := readXML(file.Data)
	if err != nil {
		return nil, model.UnparsableError("vsqx", err)
	}
	var tags vsqxTags
	switch root.Tag {
	case "vsq3":
		tags = vsq3Tags
	case "vsq4":
		tags = vsq4Tags
	default:
		return nil, model.NewIllegalFile(model.UnknownVersion, "vsqx root "+root.Tag)
	}

	master := root.SelectElement("masterTrack")
	if master == nil {
		return nil, model.MissingElementError("masterTrack")
	}
	preMeasure := 0
	if v, ok := childInt(master, "preMeasure"); ok {
		preMeasure = int(v)
	}

	var sigs []model.TimeSignature
	for _, n := range master.SelectElements("timeSig") {
		m, ok1 := childInt(n, tags.timeSigMeasure)
		nu, ok2 := childInt(n, tags.timeSigNumerator)
		de, ok3 := childInt(n, tags.timeSigDenominator)
		if !ok1 || !ok2 || !ok3 {
			return nil, model.MissingElementError("timeSig")
		}
		sigs = append(sigs, model.TimeSignature{MeasurePosition: int(m), Numerator: int(nu), Denominator: int(de)})
	}
	var tempos []model.Tempo
	for _, n := range master.SelectElements("tempo") {
		t, ok1 := childInt(n, tags.tempoTick)
		v, ok2 := childInt(n, tags.tempoValue)
		if !ok1 || !ok2 {
			return nil, model.MissingElementError("tempo")
		}
		tempos = append(tempos, model.Tempo{TickPosition: t, BPM: float64(v) / vsqxBPMScale})
	}
	tempos, sigs, tickPrefix, warnings := dropPreMeasure(tempos, sigs, preMeasure)

	project := model.Project{
		Format:         vsqxFormat.Name,
		InputFiles:     []string{file.Name},
		Name:           baseName(file.Name),
		Tempos:         tempos,
		TimeSignatures: sigs,
		MeasurePrefix:  preMeasure,
		ImportWarnings: warnings,
	}
	for i, n := range root.SelectElements("vsTrack") {
		track, err := parseVsqxTrack(n, tags, tickPrefix, params)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i+1, err)
		}
		track.ID = i
		project.Tracks = append(project.Tracks, track)
	}
	return project.Finalize()
}

func parseVsqxTrack(n *etree.Element, tags vsqxTags, tickPrefix int64, params model.ImportParams) (model.Track, error) {
	var track model.Track
	track.Name, _ = childText(n, tags.trackName)
	var parts []pitch.BendPart
	for _, part := range n.SelectElements(tags.part) {
		partTick, _ := childInt(part, tags.partTick)
		offset := partTick - tickPrefix
		for _, note := range part.SelectElements("note") {
			t, ok1 := childInt(note, tags.noteTick)
			dur, ok2 := childInt(note, tags.noteLength)
			key, ok3 := childInt(note, tags.noteKey)
			if !ok1 || !ok2 || !ok3 {
				return track, model.MissingElementError("note")
			}
			lyric, _ := childText(note, tags.noteLyric)
			phoneme, _ := childText(note, tags.notePhoneme)
			track.Notes = append(track.Notes, model.Note{
				Key:     int(key),
				Lyric:   lyric,
				Phoneme: phoneme,
				TickOn:  t + offset,
				TickOff: t + offset + dur,
			})
		}
		if params.SimpleImport {
			continue
		}
		var bp pitch.BendPart
		for _, c := range part.SelectElements(tags.control) {
			t, _ := childInt(c, tags.controlTick)
			id, _ := attr(c.SelectElement(tags.controlValue), "id")
			text, _ := childText(c, tags.controlValue)
			v, err := strconv.Atoi(text)
			if err != nil {
				continue
			}
			ev := pitch.BendEvent{Tick: t + offset, Value: v}
			switch id {
			case tags.pitchBend:
				bp.PIT = append(bp.PIT, ev)
			case tags.pitchBendSens:
				bp.PBS = append(bp.PBS, ev)
			}
		}
		if len(bp.PIT) > 0 {
			parts = append(parts, bp)
		}
	}
	if len(parts) > 0 {
		track.Pitch = &model.Pitch{Data: pitch.DecodeBend(parts)}
	}
	return track, nil
}

// GenerateVsqx encodes a vsq4 project with one part per track.
func GenerateVsqx(p *model.Project, features []model.Feature) (*model.ExportResult, error) {
	preMeasure := max(vsqMinPreMeasure, min(vsqMaxPreMeasure, p.MeasurePrefix))
	tickPrefix := addPreMeasure(p, preMeasure)
	tags := vsq4Tags
	itoa := func(v int64) string { return strconv.FormatInt(v, 10) }

	root := etree.NewElement("vsq4")
	root.CreateAttr("xmlns", vsq4Namespace)
	root.CreateAttr("xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance")
	root.CreateAttr("xsi:schemaLocation", vsq4Namespace+" vsq4.xsd")
	addCData(root, "vender", "Yamaha corporation")
	addCData(root, "version", "4.0.0.3")
	voice := addElement(addElement(root, "vVoiceTable"), "vVoice")
	addText(voice, "bs", "0")
	addText(voice, "pc", "0")
	addCData(voice, "id", "BCNFCY43LB2LZCD4")
	addCData(voice, "name", "VY2V3")

	mixer := addElement(root, "mixer")
	unit := addElement(mixer, "masterUnit")
	for _, tag := range []string{"oDev", "rLvl", "vol"} {
		addText(unit, tag, "0")
	}
	for i := range p.Tracks {
		vs := addElement(mixer, "vsUnit")
		addText(vs, "tNo", strconv.Itoa(i))
		addText(vs, "iGin", "0")
		addText(vs, "sLvl", "-898")
		addText(vs, "sEnable", "0")
		addText(vs, "m", "0")
		addText(vs, "s", "0")
		addText(vs, "pan", "64")
		addText(vs, "vol", "0")
	}

	master := addElement(root, "masterTrack")
	addCData(master, "seqName", p.Name)
	addCData(master, "comment", "")
	addText(master, "resolution", strconv.Itoa(model.TicksPerBeat))
	addText(master, "preMeasure", strconv.Itoa(preMeasure))
	for i, ts := range p.TimeSignatures {
		m := ts.MeasurePosition
		if i > 0 {
			m += preMeasure
		}
		sig := addElement(master, "timeSig")
		addText(sig, tags.timeSigMeasure, strconv.Itoa(m))
		addText(sig, tags.timeSigNumerator, strconv.Itoa(ts.Numerator))
		addText(sig, tags.timeSigDenominator, strconv.Itoa(ts.Denominator))
	}
	for i, t := range p.Tempos {
		tick := t.TickPosition
		if i > 0 {
			tick += tickPrefix
		}
		tempo := addElement(master, "tempo")
		addText(tempo, tags.tempoTick, itoa(tick))
		addText(tempo, tags.tempoValue, itoa(int64(math.Round(t.BPM*vsqxBPMScale))))
	}

	withPitch := model.HasConvertPitch(features)
	clamped := false
	for i, t := range p.Tracks {
		track := addElement(root, "vsTrack")
		addText(track, "tNo", strconv.Itoa(i))
		addCData(track, tags.trackName, trackName(t))
		addCData(track, "comment", "")

		part := addElement(track, "vsPart")
		addText(part, tags.partTick, itoa(tickPrefix))
		addText(part, "playTime", itoa(lastNoteEnd(t)))
		addCData(part, "name", trackName(t))
		addCData(part, "comment", "")
		plug := addElement(part, "sPlug")
		addCData(plug, "id", "ACA9C502-A04B-42b5-B2EB-5CEA36D16FCE")
		addCData(plug, "name", "VOCALOID2 Compatible Style")
		addText(plug, "version", "3.0.0.1")
		singer := addElement(part, "singer")
		addText(singer, "t", "0")
		addText(singer, "bs", "0")
		addText(singer, "pc", "0")

		if withPitch {
			pit, pbs, c := bendEvents(t)
			clamped = clamped || c
			for _, ev := range mergeBendEvents(pit, pbs) {
				id := tags.pitchBend
				if ev.sens {
					id = tags.pitchBendSens
				}
				ctrl := addElement(part, tags.control)
				addText(ctrl, tags.controlTick, itoa(ev.Tick))
				addText(ctrl, tags.controlValue, strconv.Itoa(ev.Value)).CreateAttr("id", id)
			}
		}
		for _, n := range t.Notes {
			phoneme := n.Phoneme
			if phoneme == "" {
				phoneme = "a"
			}
			note := addElement(part, "note")
			addText(note, tags.noteTick, itoa(n.TickOn))
			addText(note, tags.noteLength, itoa(n.Length()))
			addText(note, tags.noteKey, strconv.Itoa(clampKey(n.Key)))
			addText(note, "v", "64")
			addCData(note, tags.noteLyric, n.Lyric)
			addCData(note, tags.notePhoneme, phoneme)
		}
	}
	addElement(root, "monoTrack")
	addElement(root, "stTrack")
	addCData(root, "aux", "")

	data, err := writeXML(root, true, "")
	if err != nil {
		return nil, err
	}
	res := singleResult(p, vsqxFormat.Extension(), data, model.PhonemeResetRequiredV4{})
	if clamped {
		res.Notifications = append(res.Notifications, model.DataOverLengthLimitIgnored{})
	}
	return res, nil
}

type taggedBend struct {
	pitch.BendEvent
	sens bool
}

// mergeBendEvents interleaves PIT and PBS by tick with PBS first at a tie.
func mergeBendEvents(pit, pbs []pitch.BendEvent) []taggedBend {
	out := make([]taggedBend, 0, len(pit)+len(pbs))
	i, j := 0, 0
	for i < len(pit) || j < len(pbs) {
		if j < len(pbs) && (i == len(pit) || pbs[j].Tick <= pit[i].Tick) {
			out = append(out, taggedBend{BendEvent: pbs[j], sens: true})
			j++
			continue
		}
		out = append(out, taggedBend{BendEvent: pit[i]})
		i++
	}
	return out
}

func lastNoteEnd(t model.Track) int64 {
	if len(t.Notes) == 0 {
		return 0
	}
	return t.Notes[len(t.Notes)-1].TickOff
}

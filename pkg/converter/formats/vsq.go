package formats

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/james-see/singformat/pkg/converter/bin"
	"github.com/james-see/singformat/pkg/converter/pitch"
	"github.com/james-see/singformat/pkg/model"
	"gitlab.com/gomidi/midi/v2/smf"
)

var vocaloidLyrics = []model.LyricsType{model.RomajiCV, model.KanaCV}

var vsqFormat = model.Format{
	Name:                "vsq",
	DisplayName:         "VOCALOID2",
	Extensions:          []string{".vsq"},
	CanParse:            true,
	CanGenerate:         true,
	PossibleLyricsTypes: vocaloidLyrics,
	SuggestedLyricsType: model.KanaCV,
}

var vocaloidMidFormat = model.Format{
	Name:                "vocaloid-mid",
	DisplayName:         "VOCALOID1 MIDI",
	Extensions:          []string{".mid"},
	CanParse:            true,
	CanGenerate:         true,
	PossibleLyricsTypes: vocaloidLyrics,
	SuggestedLyricsType: model.KanaCV,
}

const (
	vsqTextPrefix    = "DM:"
	vsqChunkSize     = 119
	vsqMasterName    = "Master Track"
	vsqMinPreMeasure = 1
	vsqMaxPreMeasure = 8
)

// vsqVariant selects the tagging of a VSQ-like file.
type vsqVariant struct {
	format  model.Format
	version string
}

var (
	vsqV2  = vsqVariant{format: vsqFormat, version: "DSB301"}
	vsqMid = vsqVariant{format: vocaloidMidFormat, version: "DSB202"}
)

// ParseVsq decodes a VOCALOID2 .vsq file.
func ParseVsq(file model.File, params model.ImportParams) (*model.Project, error) {
	return vsqV2.parse(file, params)
}

// GenerateVsq encodes a VOCALOID2 .vsq file.
func GenerateVsq(p *model.Project, features []model.Feature) (*model.ExportResult, error) {
	return vsqV2.generate(p, features)
}

// ParseVocaloidMid decodes a MIDI file exported by VOCALOID1.
func ParseVocaloidMid(file model.File, params model.ImportParams) (*model.Project, error) {
	return vsqMid.parse(file, params)
}

// GenerateVocaloidMid encodes a VOCALOID1 MIDI file.
func GenerateVocaloidMid(p *model.Project, features []model.Feature) (*model.ExportResult, error) {
	return vsqMid.generate(p, features)
}

func (v vsqVariant) parse(file model.File, params model.ImportParams) (*model.Project, error) {
	tracks, err := readSMF(file.Data)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, model.MissingElementError("master track")
	}

	tempos, meters := conductorEvents(tracks[0])
	var warnings []model.ImportWarning
	docs := make([]*iniDoc, 0, len(tracks)-1)
	for i, events := range tracks[1:] {
		t, m := conductorEvents(events)
		for _, tempo := range t {
			warnings = append(warnings, model.TempoIgnoredInTrack{Track: i, Tempo: tempo})
		}
		for _, sig := range metersToSignatures(m) {
			warnings = append(warnings, model.TimeSignatureIgnoredInTrack{Track: i, TimeSignature: sig})
		}
		text, err := vsqTrackText(events)
		if err != nil {
			return nil, err
		}
		if text == "" {
			continue
		}
		docs = append(docs, parseINI(text))
	}
	if len(docs) == 0 {
		return nil, model.MissingElementError("vsq track text")
	}

	preMeasure := 0
	if s, ok := docs[0].get("Master", "PreMeasure"); ok {
		preMeasure, _ = strconv.Atoi(s)
	}
	tempos, sigs, tickPrefix, preWarnings := dropPreMeasure(tempos, metersToSignatures(meters), preMeasure)
	warnings = append(warnings, preWarnings...)

	project := model.Project{
		Format:         v.format.Name,
		InputFiles:     []string{file.Name},
		Name:           baseName(file.Name),
		Tempos:         tempos,
		TimeSignatures: sigs,
		MeasurePrefix:  preMeasure,
		ImportWarnings: warnings,
	}
	for i, doc := range docs {
		track, err := parseVsqTrack(doc, tickPrefix, params)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i+1, err)
		}
		track.ID = i
		project.Tracks = append(project.Tracks, track)
	}
	return project.Finalize()
}

// vsqTrackText joins the DM:nnnn: text events of one track and decodes them.
func vsqTrackText(events []timedMsg) (string, error) {
	var raw bytes.Buffer
	for _, ev := range events {
		typ, payload, ok := bin.ParseMeta(ev.msg)
		if !ok || (typ != bin.MetaText && typ != bin.MetaTrackName) {
			continue
		}
		if !bytes.HasPrefix(payload, []byte(vsqTextPrefix)) {
			continue
		}
		rest := payload[len(vsqTextPrefix):]
		idx := bytes.IndexByte(rest, ':')
		if idx < 0 {
			return "", model.NewIllegalFile(model.IllegalElementValue, "vsq text event without index")
		}
		raw.Write(rest[idx+1:])
	}
	if raw.Len() == 0 {
		return "", nil
	}
	return bin.DecodeText(raw.Bytes())
}

func parseVsqTrack(doc *iniDoc, tickPrefix int64, params model.ImportParams) (model.Track, error) {
	var track model.Track
	if name, ok := doc.get("Common", "Name"); ok {
		track.Name = name
	}
	for _, entry := range doc.section("EventList") {
		tick, err := strconv.ParseInt(entry.key, 10, 64)
		if err != nil {
			return track, model.NewIllegalFile(model.IllegalElementValue, "EventList tick "+entry.key)
		}
		for _, id := range strings.Split(entry.value, ",") {
			id = strings.TrimSpace(id)
			if id == "" || id == "EOS" {
				continue
			}
			note, ok, err := parseVsqNote(doc, id, tick-tickPrefix)
			if err != nil {
				return track, err
			}
			if ok && note.TickOn >= 0 {
				track.Notes = append(track.Notes, note)
			}
		}
	}
	if !params.SimpleImport {
		part := pitch.BendPart{
			PIT: vsqBendList(doc.section("PitchBendBPList"), tickPrefix),
			PBS: vsqBendList(doc.section("PitchBendSensBPList"), tickPrefix),
		}
		if len(part.PIT) > 0 {
			track.Pitch = &model.Pitch{Data: pitch.DecodeBend([]pitch.BendPart{part})}
		}
	}
	return track, nil
}

func parseVsqNote(doc *iniDoc, id string, tick int64) (model.Note, bool, error) {
	if typ, _ := doc.get(id, "Type"); typ != "Anote" {
		return model.Note{}, false, nil
	}
	length, err := doc.getInt(id, "Length")
	if err != nil {
		return model.Note{}, false, err
	}
	key, err := doc.getInt(id, "Note#")
	if err != nil {
		return model.Note{}, false, err
	}
	note := model.Note{Key: int(key), TickOn: tick, TickOff: tick + length}
	handle, ok := doc.get(id, "LyricHandle")
	if !ok {
		return model.Note{}, false, model.MissingElementError(id + " LyricHandle")
	}
	if l0, ok := doc.get(handle, "L0"); ok {
		fields := splitQuoted(l0)
		if len(fields) > 0 {
			note.Lyric = fields[0]
		}
		if len(fields) > 1 {
			note.Phoneme = fields[1]
		}
	}
	return note, true, nil
}

func vsqBendList(entries []iniEntry, tickPrefix int64) []pitch.BendEvent {
	var out []pitch.BendEvent
	for _, e := range entries {
		tick, err1 := strconv.ParseInt(e.key, 10, 64)
		value, err2 := strconv.Atoi(strings.TrimSpace(e.value))
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, pitch.BendEvent{Tick: max(tick-tickPrefix, 0), Value: value})
	}
	return out
}

func (v vsqVariant) generate(p *model.Project, features []model.Feature) (*model.ExportResult, error) {
	preMeasure := max(vsqMinPreMeasure, min(vsqMaxPreMeasure, p.MeasurePrefix))
	tickPrefix := addPreMeasure(p, preMeasure)
	end := p.LastTick() + tickPrefix

	tracks := []smf.Track{buildTrack(conductorTrack(p, vsqMasterName, tickPrefix), end)}
	withPitch := model.HasConvertPitch(features)
	clamped := false
	for i, t := range p.Tracks {
		text, trackClamped := v.trackText(p, i, t, preMeasure, tickPrefix, end, withPitch)
		clamped = clamped || trackClamped
		events, err := vsqTextEvents(trackName(t), text)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i+1, err)
		}
		tracks = append(tracks, buildTrack(events, end))
	}
	data, err := writeSMF(tracks)
	if err != nil {
		return nil, err
	}
	res := singleResult(p, v.format.Extension(), data, model.PhonemeResetRequiredVSQ{})
	if clamped {
		res.Notifications = append(res.Notifications, model.DataOverLengthLimitIgnored{})
	}
	return res, nil
}

func (v vsqVariant) trackText(p *model.Project, index int, t model.Track, preMeasure int, tickPrefix, end int64, withPitch bool) (string, bool) {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}
	line("[Common]")
	line("Version=%s", v.version)
	line("Name=%s", trackName(t))
	line("Color=181,162,123")
	line("DynamicsMode=1")
	line("PlayMode=1")
	if index == 0 {
		line("[Master]")
		line("PreMeasure=%d", preMeasure)
		line("[Mixer]")
		line("MasterFeder=0")
		line("MasterPanpot=0")
		line("MasterMute=0")
		line("OutputMode=0")
		line("Tracks=%d", len(p.Tracks))
		for i := range p.Tracks {
			line("Feder%d=0", i)
			line("Panpot%d=0", i)
			line("Mute%d=0", i)
			line("Solo%d=0", i)
		}
	}

	line("[EventList]")
	line("0=ID#0000")
	for i, n := range t.Notes {
		line("%d=ID#%04d", n.TickOn+tickPrefix, i+1)
	}
	line("%d=EOS", end)

	line("[ID#0000]")
	line("Type=Singer")
	line("IconHandle=h#0000")
	for i, n := range t.Notes {
		line("[ID#%04d]", i+1)
		line("Type=Anote")
		line("Length=%d", n.Length())
		line("Note#=%d", clampKey(n.Key))
		line("Dynamics=64")
		line("PMBendDepth=8")
		line("PMBendLength=0")
		line("PMbPortamentoUse=0")
		line("DEMdecGainRate=50")
		line("DEMaccent=50")
		line("LyricHandle=h#%04d", i+1)
	}

	line("[h#0000]")
	line("IconID=$07010000")
	line("IDS=Miku")
	line("Original=0")
	line("Caption=")
	line("Length=1")
	line("Language=0")
	line("Program=0")
	for i, n := range t.Notes {
		phoneme := n.Phoneme
		if phoneme == "" {
			phoneme = "a"
		}
		line("[h#%04d]", i+1)
		line(`L0="%s","%s",0.000000,64,0,0`, unquote(n.Lyric), unquote(phoneme))
	}

	clamped := false
	if withPitch {
		var pit, pbs []pitch.BendEvent
		pit, pbs, clamped = bendEvents(t)
		if len(pit) > 0 {
			line("[PitchBendBPList]")
			for _, ev := range pit {
				line("%d=%d", ev.Tick+tickPrefix, ev.Value)
			}
		}
		if len(pbs) > 0 {
			line("[PitchBendSensBPList]")
			for _, ev := range pbs {
				line("%d=%d", ev.Tick+tickPrefix, ev.Value)
			}
		}
	}
	return b.String(), clamped
}

// vsqTextEvents splits Shift-JIS text into DM:nnnn: text events at tick 0.
func vsqTextEvents(name, text string) ([]timedMsg, error) {
	nameMsg, err := bin.MetaEvent(bin.MetaTrackName, []byte(name))
	if err != nil {
		return nil, err
	}
	events := []timedMsg{{tick: 0, msg: nameMsg}}
	raw, err := bin.ToShiftJIS(text)
	if err != nil {
		return nil, fmt.Errorf("failed to encode track text: %w", err)
	}
	for i := 0; len(raw) > 0; i++ {
		n := min(vsqChunkSize, len(raw))
		payload := append([]byte(fmt.Sprintf("%s%04d:", vsqTextPrefix, i)), raw[:n]...)
		raw = raw[n:]
		msg, err := bin.MetaEvent(bin.MetaText, payload)
		if err != nil {
			return nil, err
		}
		events = append(events, timedMsg{tick: 0, msg: msg})
	}
	return events, nil
}

func unquote(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}

// iniDoc is the sectioned key=value text VOCALOID embeds in its tracks.
// Section and key order is preserved.
type iniDoc struct {
	order    []string
	sections map[string][]iniEntry
}

type iniEntry struct {
	key, value string
}

func parseINI(text string) *iniDoc {
	doc := &iniDoc{sections: make(map[string][]iniEntry)}
	current := ""
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			current = line[1 : len(line)-1]
			if _, ok := doc.sections[current]; !ok {
				doc.order = append(doc.order, current)
				doc.sections[current] = nil
			}
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		doc.sections[current] = append(doc.sections[current], iniEntry{key: key, value: value})
	}
	for name, entries := range doc.sections {
		if name == "EventList" || strings.HasSuffix(name, "BPList") {
			sort.SliceStable(entries, func(i, j int) bool {
				a, _ := strconv.ParseInt(entries[i].key, 10, 64)
				b, _ := strconv.ParseInt(entries[j].key, 10, 64)
				return a < b
			})
		}
	}
	return doc
}

func (d *iniDoc) section(name string) []iniEntry {
	return d.sections[name]
}

func (d *iniDoc) get(section, key string) (string, bool) {
	for _, e := range d.sections[section] {
		if e.key == key {
			return e.value, true
		}
	}
	return "", false
}

func (d *iniDoc) getInt(section, key string) (int64, error) {
	s, ok := d.get(section, key)
	if !ok {
		return 0, model.MissingElementError(section + " " + key)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, &model.IllegalFileError{Kind: model.IllegalElementValue, Detail: section + " " + key, Err: err}
	}
	return v, nil
}

// splitQuoted splits a comma separated list whose fields may be double quoted.
func splitQuoted(s string) []string {
	var fields []string
	var cur strings.Builder
	quoted := false
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}

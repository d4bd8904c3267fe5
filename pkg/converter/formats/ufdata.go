package formats

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/james-see/singformat/pkg/model"
	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

var ufdataFormat = model.Format{
	Name:                "ufdata",
	DisplayName:         "UtaFormatix Data",
	Extensions:          []string{".ufdata"},
	CanParse:            true,
	CanGenerate:         true,
	PossibleLyricsTypes: allLyrics,
}

const ufdataVersion = 1

//go:embed data/ufdata.schema.json
var ufdataSchemaJSON []byte

var ufdataSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(ufdataSchemaJSON))
})

type ufDocument struct {
	FormatVersion int       `json:"formatVersion"`
	Project       ufProject `json:"project"`
}

type ufProject struct {
	Name           string            `json:"name"`
	Tracks         []ufTrack         `json:"tracks"`
	TimeSignatures []ufTimeSignature `json:"timeSignatures"`
	Tempos         []ufTempo         `json:"tempos"`
	MeasurePrefix  int               `json:"measurePrefix"`
}

type ufTrack struct {
	Name  string   `json:"name"`
	Notes []ufNote `json:"notes"`
	Pitch *ufPitch `json:"pitch"`
}

type ufNote struct {
	Key     int     `json:"key"`
	TickOn  int64   `json:"tickOn"`
	TickOff int64   `json:"tickOff"`
	Lyric   string  `json:"lyric"`
	Phoneme *string `json:"phoneme"`
}

type ufPitch struct {
	Ticks      []int64    `json:"ticks"`
	Values     []*float64 `json:"values"`
	IsAbsolute bool       `json:"isAbsolute"`
}

type ufTimeSignature struct {
	MeasurePosition int `json:"measurePosition"`
	Numerator       int `json:"numerator"`
	Denominator     int `json:"denominator"`
}

type ufTempo struct {
	TickPosition int64   `json:"tickPosition"`
	BPM          float64 `json:"bpm"`
}

// ParseUfData decodes an interchange file.
func ParseUfData(file model.File, params model.ImportParams) (*model.Project, error) {
	p, err := InterchangeJSONToProject(file.Data)
	if err != nil {
		return nil, err
	}
	p.InputFiles = []string{file.Name}
	if params.SimpleImport {
		for i := range p.Tracks {
			p.Tracks[i].Pitch = nil
		}
	}
	if p.Name == "" {
		p.Name = baseName(file.Name)
	}
	return p, nil
}

// GenerateUfData encodes the project as an interchange file.
func GenerateUfData(p *model.Project, _ []model.Feature) (*model.ExportResult, error) {
	data, err := ProjectToInterchangeJSON(*p)
	if err != nil {
		return nil, err
	}
	return singleResult(p, ufdataFormat.Extension(), data), nil
}

// InterchangeJSONToProject validates data against the interchange schema and
// converts it. A different formatVersion is rejected before validation.
func InterchangeJSONToProject(data []byte) (*model.Project, error) {
	if !gjson.ValidBytes(data) {
		return nil, model.UnparsableError("ufdata json", fmt.Errorf("invalid json"))
	}
	version := gjson.GetBytes(data, "formatVersion")
	if !version.Exists() {
		return nil, &model.UnsupportedFileFormatError{Format: ufdataFormat.Name, Reason: model.UnsupportedSchemaMismatch, Detail: "formatVersion missing"}
	}
	if version.Int() != ufdataVersion {
		return nil, &model.UnsupportedFileFormatError{
			Format: ufdataFormat.Name,
			Reason: model.UnsupportedSchemaMismatch,
			Detail: fmt.Sprintf("formatVersion %s, supported %d", version.Raw, ufdataVersion),
		}
	}

	schema, err := ufdataSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile ufdata schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, model.UnparsableError("ufdata", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, &model.UnsupportedFileFormatError{
			Format: ufdataFormat.Name,
			Reason: model.UnsupportedSchemaMismatch,
			Detail: strings.Join(msgs, "; "),
		}
	}

	var doc ufDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, model.UnparsableError("ufdata", err)
	}
	project := model.Project{
		Format:        ufdataFormat.Name,
		Name:          doc.Project.Name,
		MeasurePrefix: doc.Project.MeasurePrefix,
	}
	for _, ts := range doc.Project.TimeSignatures {
		project.TimeSignatures = append(project.TimeSignatures, model.TimeSignature(ts))
	}
	for _, t := range doc.Project.Tempos {
		project.Tempos = append(project.Tempos, model.Tempo(t))
	}
	for i, t := range doc.Project.Tracks {
		track := model.Track{ID: i, Name: t.Name}
		for _, n := range t.Notes {
			note := model.Note{Key: n.Key, Lyric: n.Lyric, TickOn: n.TickOn, TickOff: n.TickOff}
			if n.Phoneme != nil {
				note.Phoneme = *n.Phoneme
			}
			track.Notes = append(track.Notes, note)
		}
		if t.Pitch != nil {
			if len(t.Pitch.Ticks) != len(t.Pitch.Values) {
				return nil, model.NewIllegalFile(model.IllegalElementValue, "pitch ticks and values differ in length")
			}
			curve := &model.Pitch{IsAbsolute: t.Pitch.IsAbsolute}
			for j, tick := range t.Pitch.Ticks {
				curve.Data = append(curve.Data, model.PitchPoint{Tick: tick, Value: t.Pitch.Values[j]})
			}
			track.Pitch = curve
		}
		project.Tracks = append(project.Tracks, track)
	}
	return project.Finalize()
}

// ProjectToInterchangeJSON encodes p in the interchange schema.
func ProjectToInterchangeJSON(p model.Project) ([]byte, error) {
	doc := ufDocument{
		FormatVersion: ufdataVersion,
		Project: ufProject{
			Name:           p.Name,
			Tracks:         make([]ufTrack, 0, len(p.Tracks)),
			TimeSignatures: make([]ufTimeSignature, 0, len(p.TimeSignatures)),
			Tempos:         make([]ufTempo, 0, len(p.Tempos)),
			MeasurePrefix:  p.MeasurePrefix,
		},
	}
	for _, ts := range p.TimeSignatures {
		doc.Project.TimeSignatures = append(doc.Project.TimeSignatures, ufTimeSignature(ts))
	}
	for _, t := range p.Tempos {
		doc.Project.Tempos = append(doc.Project.Tempos, ufTempo(t))
	}
	for _, t := range p.Tracks {
		track := ufTrack{Name: trackName(t), Notes: make([]ufNote, 0, len(t.Notes))}
		for _, n := range t.Notes {
			note := ufNote{Key: clampKey(n.Key), TickOn: n.TickOn, TickOff: n.TickOff, Lyric: n.Lyric}
			if n.Phoneme != "" {
				phoneme := n.Phoneme
				note.Phoneme = &phoneme
			}
			track.Notes = append(track.Notes, note)
		}
		if t.Pitch != nil {
			track.Pitch = &ufPitch{IsAbsolute: t.Pitch.IsAbsolute, Ticks: []int64{}, Values: []*float64{}}
			for _, pt := range t.Pitch.Data {
				track.Pitch.Ticks = append(track.Pitch.Ticks, pt.Tick)
				track.Pitch.Values = append(track.Pitch.Values, pt.Value)
			}
		}
		doc.Project.Tracks = append(doc.Project.Tracks, track)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ufdata: %w", err)
	}
	return data, nil
}

package formats

import (
	"bytes"
	"encoding/json"

	"github.com/james-see/singformat/pkg/model"
)

var ppsfFormat = model.Format{
	Name:                "ppsf",
	DisplayName:         "Piapro Studio",
	Extensions:          []string{".ppsf"},
	CanParse:            true,
	PossibleLyricsTypes: vocaloidLyrics,
}

const (
	ppsfProjectPath = "Project/ppsf.json"
	ppsfBPMScale    = 10000
)

type ppsfDocument struct {
	PPSF struct {
		Project struct {
			Name  string `json:"name"`
			Tempo struct {
				Const  int         `json:"const"`
				Events []ppsfTempo `json:"events"`
				UseSeq bool        `json:"use_sequence"`
			} `json:"tempo"`
			Meter struct {
				Const  ppsfMeter   `json:"const"`
				Meters []ppsfMeter `json:"meters"`
				UseSeq bool        `json:"use_sequence"`
			} `json:"meter"`
			DvlTracks []ppsfTrack `json:"dvl_track"`
		} `json:"project"`
	} `json:"ppsf"`
}

type ppsfTempo struct {
	Curve string `json:"curve_type"`
	Tick  int64  `json:"tick"`
	Value int    `json:"value"`
}

type ppsfMeter struct {
	Denomi  int `json:"denomi"`
	Measure int `json:"measure"`
	Nume    int `json:"nume"`
}

type ppsfTrack struct {
	Name   string      `json:"name"`
	Events []ppsfEvent `json:"events"`
}

type ppsfEvent struct {
	Enabled    *bool  `json:"enabled"`
	Length     int64  `json:"length"`
	Lyric      string `json:"lyric"`
	NoteNumber int    `json:"note_number"`
	Pos        int64  `json:"pos"`
}

// ParsePpsf decodes a Piapro Studio archive. The legacy XML variant is
// recognised and rejected.
func ParsePpsf(file model.File, _ model.ImportParams) (*model.Project, error) {
	if bytes.HasPrefix(bytes.TrimSpace(file.Data), []byte("<")) {
		root, err := readXML(file.Data)
		if err != nil {
			return nil, model.UnparsableError("ppsf", err)
		}
		return nil, &model.UnsupportedFileFormatError{
			Format: ppsfFormat.Name,
			Reason: model.UnsupportedLegacy,
			Detail: "XML based Piapro Studio project, root " + root.Tag,
		}
	}
	raw, err := readZipEntry(file.Data, ppsfProjectPath)
	if err != nil {
		return nil, err
	}
	var doc ppsfDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, model.UnparsableError(ppsfProjectPath, err)
	}
	src := doc.PPSF.Project

	project := model.Project{
		Format:     ppsfFormat.Name,
		InputFiles: []string{file.Name},
		Name:       src.Name,
	}
	if project.Name == "" {
		project.Name = baseName(file.Name)
	}
	if src.Tempo.UseSeq {
		for _, t := range src.Tempo.Events {
			project.Tempos = append(project.Tempos, model.Tempo{TickPosition: t.Tick, BPM: float64(t.Value) / ppsfBPMScale})
		}
	}
	if len(project.Tempos) == 0 && src.Tempo.Const > 0 {
		project.Tempos = []model.Tempo{{BPM: float64(src.Tempo.Const) / ppsfBPMScale}}
	}
	if src.Meter.UseSeq {
		for _, m := range src.Meter.Meters {
			project.TimeSignatures = append(project.TimeSignatures, model.TimeSignature{
				MeasurePosition: m.Measure, Numerator: m.Nume, Denominator: m.Denomi,
			})
		}
	}
	if len(project.TimeSignatures) == 0 && src.Meter.Const.Nume > 0 && src.Meter.Const.Denomi > 0 {
		project.TimeSignatures = []model.TimeSignature{{Numerator: src.Meter.Const.Nume, Denominator: src.Meter.Const.Denomi}}
	}

	for i, t := range src.DvlTracks {
		track := model.Track{ID: i, Name: t.Name}
		for _, ev := range t.Events {
			if ev.Enabled != nil && !*ev.Enabled {
				continue
			}
			track.Notes = append(track.Notes, model.Note{
				Key:     ev.NoteNumber,
				Lyric:   ev.Lyric,
				TickOn:  ev.Pos,
				TickOff: ev.Pos + ev.Length,
			})
		}
		project.Tracks = append(project.Tracks, track)
	}
	return project.Finalize()
}

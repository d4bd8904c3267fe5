package formats

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/james-see/singformat/pkg/converter/pitch"
	"github.com/james-see/singformat/pkg/model"
)

var vprFormat = model.Format{
	Name:                "vpr",
	DisplayName:         "VOCALOID5",
	Extensions:          []string{".vpr"},
	CanParse:            true,
	CanGenerate:         true,
	PossibleLyricsTypes: vocaloidLyrics,
	SuggestedLyricsType: model.KanaCV,
}

const (
	vprSequencePath = "Project/sequence.json"
	vprBPMScale     = 100
	vprVocalTrack   = 0
)

type vprProject struct {
	Version     vprVersion     `json:"version"`
	Vender      string         `json:"vender"`
	Title       string         `json:"title"`
	MasterTrack vprMasterTrack `json:"masterTrack"`
	Voices      []vprVoice     `json:"voices"`
	Tracks      []vprTrack     `json:"tracks"`
}

type vprVersion struct {
	Major    int `json:"major"`
	Minor    int `json:"minor"`
	Revision int `json:"revision"`
}

type vprMasterTrack struct {
	SamplingRate int        `json:"samplingRate"`
	Tempo        vprTempo   `json:"tempo"`
	TimeSig      vprTimeSig `json:"timeSig"`
}

type vprTempo struct {
	Global vprGlobalTempo `json:"global"`
	Events []vprEvent     `json:"events"`
}

type vprGlobalTempo struct {
	IsEnabled bool `json:"isEnabled"`
	Value     int  `json:"value"`
}

type vprTimeSig struct {
	Events []vprTimeSigEvent `json:"events"`
}

type vprTimeSigEvent struct {
	Bar   int `json:"bar"`
	Numer int `json:"numer"`
	Denom int `json:"denom"`
}

type vprEvent struct {
	Pos   int64 `json:"pos"`
	Value int   `json:"value"`
}

type vprVoice struct {
	CompID string `json:"compID"`
	Name   string `json:"name"`
}

type vprTrack struct {
	Type  int       `json:"type"`
	Name  string    `json:"name"`
	BusNo int       `json:"busNo"`
	Parts []vprPart `json:"parts,omitempty"`
}

type vprPart struct {
	Pos         int64           `json:"pos"`
	Duration    int64           `json:"duration"`
	StyleName   string          `json:"styleName"`
	Voice       *vprPartVoice   `json:"voice,omitempty"`
	Notes       []vprNote       `json:"notes"`
	Controllers []vprController `json:"controllers,omitempty"`
}

type vprPartVoice struct {
	CompID string `json:"compID"`
	LangID int    `json:"langID"`
}

type vprNote struct {
	Lyric    string `json:"lyric"`
	Phoneme  string `json:"phoneme"`
	Pos      int64  `json:"pos"`
	Duration int64  `json:"duration"`
	Number   int    `json:"number"`
	Velocity int    `json:"velocity"`
}

type vprController struct {
	Name   string     `json:"name"`
	Events []vprEvent `json:"events"`
}

// ParseVpr decodes a VOCALOID5 project archive.
func ParseVpr(file model.File, params model.ImportParams) (*model.Project, error) {
	raw, err := readZipEntry(file.Data, vprSequencePath)
	if err != nil {
		return nil, err
	}
	var doc vprProject
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, model.UnparsableError(vprSequencePath, err)
	}

	project := model.Project{
		Format:     vprFormat.Name,
		InputFiles: []string{file.Name},
		Name:       baseName(file.Name),
	}
	for _, ev := range doc.MasterTrack.Tempo.Events {
		project.Tempos = append(project.Tempos, model.Tempo{TickPosition: ev.Pos, BPM: float64(ev.Value) / vprBPMScale})
	}
	if len(project.Tempos) == 0 && doc.MasterTrack.Tempo.Global.Value > 0 {
		project.Tempos = []model.Tempo{{BPM: float64(doc.MasterTrack.Tempo.Global.Value) / vprBPMScale}}
	}
	for _, ev := range doc.MasterTrack.TimeSig.Events {
		project.TimeSignatures = append(project.TimeSignatures, model.TimeSignature{
			MeasurePosition: ev.Bar, Numerator: ev.Numer, Denominator: ev.Denom,
		})
	}

	for _, t := range doc.Tracks {
		if t.Type != vprVocalTrack {
			continue
		}
		track := model.Track{ID: len(project.Tracks), Name: t.Name}
		var parts []pitch.BendPart
		for _, part := range t.Parts {
			for _, n := range part.Notes {
				track.Notes = append(track.Notes, model.Note{
					Key:     n.Number,
					Lyric:   n.Lyric,
					Phoneme: n.Phoneme,
					TickOn:  part.Pos + n.Pos,
					TickOff: part.Pos + n.Pos + n.Duration,
				})
			}
			if params.SimpleImport {
				continue
			}
			var bp pitch.BendPart
			for _, c := range part.Controllers {
				var events *[]pitch.BendEvent
				switch c.Name {
				case "pitchBend":
					events = &bp.PIT
				case "pitchBendSens":
					events = &bp.PBS
				default:
					continue
				}
				for _, ev := range c.Events {
					*events = append(*events, pitch.BendEvent{Tick: part.Pos + ev.Pos, Value: ev.Value})
				}
			}
			if len(bp.PIT) > 0 {
				parts = append(parts, bp)
			}
		}
		if len(parts) > 0 {
			track.Pitch = &model.Pitch{Data: pitch.DecodeBend(parts)}
		}
		project.Tracks = append(project.Tracks, track)
	}
	return project.Finalize()
}

// GenerateVpr encodes a VOCALOID5 project archive with one part per track.
func GenerateVpr(p *model.Project, features []model.Feature) (*model.ExportResult, error) {
	doc := vprProject{
		Version: vprVersion{Major: 5, Minor: 0, Revision: 0},
		Vender:  "Yamaha Corporation",
		Title:   p.Name,
		MasterTrack: vprMasterTrack{
			SamplingRate: 44100,
		},
		Voices: []vprVoice{{CompID: "BNLMEDJ4HKNLBDH6", Name: "Amy"}},
	}
	for _, t := range p.Tempos {
		doc.MasterTrack.Tempo.Events = append(doc.MasterTrack.Tempo.Events, vprEvent{
			Pos: t.TickPosition, Value: int(math.Round(t.BPM * vprBPMScale)),
		})
	}
	if len(doc.MasterTrack.Tempo.Events) > 0 {
		doc.MasterTrack.Tempo.Global.Value = doc.MasterTrack.Tempo.Events[0].Value
	}
	for _, ts := range p.TimeSignatures {
		doc.MasterTrack.TimeSig.Events = append(doc.MasterTrack.TimeSig.Events, vprTimeSigEvent{
			Bar: ts.MeasurePosition, Numer: ts.Numerator, Denom: ts.Denominator,
		})
	}

	withPitch := model.HasConvertPitch(features)
	clamped := false
	for i, t := range p.Tracks {
		part := vprPart{
			Duration:  lastNoteEnd(t),
			StyleName: "No Effect",
			Voice:     &vprPartVoice{CompID: doc.Voices[0].CompID},
			Notes:     make([]vprNote, 0, len(t.Notes)),
		}
		for _, n := range t.Notes {
			part.Notes = append(part.Notes, vprNote{
				Lyric:    n.Lyric,
				Phoneme:  n.Phoneme,
				Pos:      n.TickOn,
				Duration: n.Length(),
				Number:   clampKey(n.Key),
				Velocity: 64,
			})
		}
		if withPitch {
			pit, pbs, trackClamped := bendEvents(t)
			clamped = clamped || trackClamped
			if len(pbs) > 0 {
				part.Controllers = append(part.Controllers, vprController{Name: "pitchBendSens", Events: vprEvents(pbs)})
			}
			if len(pit) > 0 {
				part.Controllers = append(part.Controllers, vprController{Name: "pitchBend", Events: vprEvents(pit)})
			}
		}
		doc.Tracks = append(doc.Tracks, vprTrack{
			Type:  vprVocalTrack,
			Name:  trackName(t),
			BusNo: i,
			Parts: []vprPart{part},
		})
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", vprSequencePath, err)
	}
	data, err := writeZip(map[string][]byte{vprSequencePath: raw}, []string{vprSequencePath})
	if err != nil {
		return nil, err
	}
	res := singleResult(p, vprFormat.Extension(), data, model.PhonemeResetRequiredV5{})
	if clamped {
		res.Notifications = append(res.Notifications, model.DataOverLengthLimitIgnored{})
	}
	return res, nil
}

func vprEvents(events []pitch.BendEvent) []vprEvent {
	out := make([]vprEvent, len(events))
	for i, ev := range events {
		out[i] = vprEvent{Pos: ev.Tick, Value: ev.Value}
	}
	return out
}

// readZipEntry returns the entry at name, matching either path separator.
func readZipEntry(data []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, model.UnparsableError("zip archive", err)
	}
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, `\`, "/") != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, model.UnparsableError(name, err)
		}
		defer rc.Close()
		raw, err := io.ReadAll(rc)
		if err != nil {
			return nil, model.UnparsableError(name, err)
		}
		return raw, nil
	}
	return nil, model.MissingElementError(name)
}

// writeZip stores entries in the given order.
func writeZip(entries map[string][]byte, order []string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", name, err)
		}
		if _, err := w.Write(entries[name]); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}
	return buf.Bytes(), nil
}

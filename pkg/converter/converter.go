package converter

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/james-see/singformat/pkg/converter/lyrics"
	"github.com/james-see/singformat/pkg/converter/timing"
	"github.com/james-see/singformat/pkg/logger"
	"github.com/james-see/singformat/pkg/model"
	"github.com/tidwall/gjson"
)

// DetectFormat detects the format of a file from its extension, falling back
// to its content when the extension is unknown or shared by several formats.
func (c *Converter) DetectFormat(filename string, data []byte) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	var candidates []Format
	for _, f := range c.Formats() {
		if !f.CanParse {
			continue
		}
		for _, e := range f.Extensions {
			if e == ext {
				candidates = append(candidates, f)
				break
			}
		}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	if name := sniffFormat(data); name != "" {
		if codec, ok := c.byName[name]; ok && codec.Format().CanParse {
			return codec.Format(), nil
		}
	}
	if len(candidates) > 0 {
		return candidates[0], nil
	}
	return Format{}, &model.UnsupportedFileFormatError{
		Format: strings.TrimPrefix(ext, "."),
		Reason: model.UnsupportedUnknown,
		Detail: "cannot determine format of " + filepath.Base(filename),
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// sniffFormat guesses a format name from file content, or returns "".
func sniffFormat(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	trimmed := bytes.TrimSpace(bytes.TrimRight(data, "\x00"))
	switch {
	case bytes.HasPrefix(data, []byte("MThd")):
		// VOCALOID stores its track text in DM:nnnn: events
		switch {
		case bytes.Contains(data, []byte("DSB301")):
			return "vsq"
		case bytes.Contains(data, []byte("DM:0000:")):
			return "vocaloid-mid"
		}
		return "mid"
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		switch {
		case bytes.Contains(data, []byte("sequence.json")):
			return "vpr"
		case bytes.Contains(data, []byte("ppsf.json")):
			return "ppsf"
		}
	case bytes.HasPrefix(trimmed, []byte("<")):
		switch {
		case bytes.Contains(trimmed, []byte("<vsq3")), bytes.Contains(trimmed, []byte("<vsq4")):
			return "vsqx"
		case bytes.Contains(trimmed, []byte("<Scenario")):
			return "ccs"
		case bytes.Contains(trimmed, []byte("Piapro")):
			return "ppsf"
		}
	case bytes.HasPrefix(trimmed, []byte("{")):
		if i := bytes.IndexByte(trimmed, 0); i >= 0 {
			trimmed = trimmed[:i]
		}
		if !gjson.ValidBytes(trimmed) {
			return ""
		}
		doc := gjson.ParseBytes(trimmed)
		switch {
		case doc.Get("formatVersion").Exists():
			return "ufdata"
		case doc.Get("library").Exists(), doc.Get("renderConfig").Exists():
			return "svp"
		case doc.Get("instrumental").Exists(), doc.Get("tracks.0.parameters.interval").Exists():
			return "s5p"
		}
	case bytes.Contains(data, []byte("[#SETTING]")):
		return "ust"
	case bytes.Contains(data, []byte("ustx_version")):
		return "ustx"
	}
	return ""
}

// Parse decodes files with the named format and infers the lyric style.
func (c *Converter) Parse(ctx context.Context, format string, files []model.File, params model.ImportParams) (*model.Project, error) {
	codec, err := c.Lookup(format)
	if err != nil {
		return nil, err
	}
	if len(files) > 1 && !codec.Format().MultipleFile {
		return nil, fmt.Errorf("%s got %d files: %w", format, len(files), model.ErrTooManyFiles)
	}
	params.MultipleMode = len(files) > 1

	started := time.Now()
	p, err := codec.Parse(ctx, files, params)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", format, err)
	}
	p.LyricsType = lyrics.Infer(*p)

	logger.Debug("project decoded", logger.Fields{
		"format":      format,
		"tracks":      len(p.Tracks),
		"notes":       p.NoteCount(),
		"warnings":    len(p.ImportWarnings),
		"lyrics":      p.LyricsType.String(),
		"duration_ms": time.Since(started).Milliseconds(),
	})
	for _, w := range p.ImportWarnings {
		logger.Debug("import warning", logger.Fields{"format": format, "warning": model.DescribeWarning(w)})
	}
	return p, nil
}

// ConvertLyrics rewrites the project lyrics for the target format. When to is
// LyricsUnknown the current style is kept; a style the target cannot carry is
// replaced by the target's suggested one.
func (c *Converter) ConvertLyrics(p model.Project, format string, to model.LyricsType) (model.Project, error) {
	codec, err := c.Lookup(format)
	if err != nil {
		return model.Project{}, err
	}
	f := codec.Format()
	from := p.LyricsType
	if from == model.LyricsUnknown {
		from = lyrics.Infer(p)
	}
	if to == model.LyricsUnknown {
		to = from
	}
	if f.SuggestedLyricsType != model.LyricsUnknown && !f.Supports(to) {
		to = f.SuggestedLyricsType
	}
	if from == model.LyricsUnknown || from == to {
		return p.Clone(), nil
	}
	logger.Debug("converting lyrics", logger.Fields{"format": format, "from": from.String(), "to": to.String()})
	return lyrics.ConvertJapanese(p, from, to), nil
}

// Summarize describes p for display.
func Summarize(p model.Project) Summary {
	s := Summary{
		Name:           p.Name,
		Format:         p.Format,
		InputFiles:     p.InputFiles,
		LyricsType:     p.LyricsType.String(),
		Tempos:         p.Tempos,
		TimeSignatures: p.TimeSignatures,
		MeasurePrefix:  p.MeasurePrefix,
		LastTick:       p.LastTick(),
		Tracks:         make([]TrackSummary, len(p.Tracks)),
		Warnings:       make([]string, len(p.ImportWarnings)),
	}
	for i, t := range p.Tracks {
		s.Tracks[i] = TrackSummary{Name: t.Name, Notes: len(t.Notes), HasPitch: !t.Pitch.IsEmpty()}
	}
	for i, w := range p.ImportWarnings {
		s.Warnings[i] = model.DescribeWarning(w)
	}
	sec := timing.New(p.Tempos).TickToSec(s.LastTick)
	s.Duration = time.Duration(sec * float64(time.Second))
	return s
}

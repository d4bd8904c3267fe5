// Package converter provides conversion between vocal synthesizer project
// formats through the shared model.Project representation.
package converter

import (
	"context"
	"runtime"
	"time"

	"github.com/james-see/singformat/pkg/converter/formats"
	"github.com/james-see/singformat/pkg/model"
)

// Format describes one registered file format.
type Format = model.Format

// Codec interface for format-specific decoding and encoding
type Codec interface {
	Format() Format
	Parse(ctx context.Context, files []model.File, params model.ImportParams) (*model.Project, error)
	Generate(ctx context.Context, p *model.Project, features []model.Feature) (*model.ExportResult, error)
}

// Converter handles format conversions
type Converter struct {
	codecs  []Codec
	byName  map[string]Codec
	workers int
}

// New creates a Converter over the given codecs. Later codecs with the same
// name replace earlier ones.
func New(codecs ...Codec) *Converter {
	c := &Converter{
		byName:  make(map[string]Codec, len(codecs)),
		workers: runtime.NumCPU(),
	}
	for _, codec := range codecs {
		name := codec.Format().Name
		if _, ok := c.byName[name]; !ok {
			c.codecs = append(c.codecs, codec)
		} else {
			for i := range c.codecs {
				if c.codecs[i].Format().Name == name {
					c.codecs[i] = codec
				}
			}
		}
		c.byName[name] = codec
	}
	return c
}

// Default returns a Converter with every built-in format registered.
func Default() *Converter {
	all := formats.All()
	codecs := make([]Codec, len(all))
	for i, codec := range all {
		codecs[i] = codec
	}
	return New(codecs...)
}

// SetWorkers bounds the number of outputs encoded in parallel.
func (c *Converter) SetWorkers(n int) {
	if n > 0 {
		c.workers = n
	}
}

// Formats returns every registered format in registry order.
func (c *Converter) Formats() []Format {
	out := make([]Format, len(c.codecs))
	for i, codec := range c.codecs {
		out[i] = codec.Format()
	}
	return out
}

// Lookup returns the codec registered under name.
func (c *Converter) Lookup(name string) (Codec, error) {
	codec, ok := c.byName[name]
	if !ok {
		return nil, &model.UnsupportedFileFormatError{Format: name, Reason: model.UnsupportedUnknown, Detail: "no such format"}
	}
	return codec, nil
}

// TrackSummary describes one decoded track.
type TrackSummary struct {
	Name     string `json:"name"`
	Notes    int    `json:"notes"`
	HasPitch bool   `json:"hasPitch"`
}

// Summary describes a decoded project for display.
type Summary struct {
	Name           string                `json:"name"`
	Format         string                `json:"format"`
	InputFiles     []string              `json:"inputFiles"`
	LyricsType     string                `json:"lyricsType"`
	Tracks         []TrackSummary        `json:"tracks"`
	Tempos         []model.Tempo         `json:"tempos"`
	TimeSignatures []model.TimeSignature `json:"timeSignatures"`
	MeasurePrefix  int                   `json:"measurePrefix"`
	LastTick       int64                 `json:"lastTick"`
	Duration       time.Duration         `json:"duration"`
	Warnings       []string              `json:"warnings"`
}

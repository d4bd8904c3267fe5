package model

// LyricsType is the detected Japanese lyric notation of a project.
type LyricsType int

const (
	LyricsUnknown LyricsType = iota
	RomajiCV
	RomajiVCV
	KanaCV
	KanaVCV
)

var lyricsTypeNames = map[LyricsType]string{
	LyricsUnknown: "unknown",
	RomajiCV:      "romaji-cv",
	RomajiVCV:     "romaji-vcv",
	KanaCV:        "kana-cv",
	KanaVCV:       "kana-vcv",
}

func (t LyricsType) String() string {
	if s, ok := lyricsTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// IsRomaji reports whether the style is written in Latin letters.
func (t LyricsType) IsRomaji() bool {
	return t == RomajiCV || t == RomajiVCV
}

// IsKana reports whether the style is written in kana.
func (t LyricsType) IsKana() bool {
	return t == KanaCV || t == KanaVCV
}

// IsVCV reports whether the style prefixes the previous vowel.
func (t LyricsType) IsVCV() bool {
	return t == RomajiVCV || t == KanaVCV
}

// ParseLyricsType accepts the names returned by String.
func ParseLyricsType(s string) (LyricsType, bool) {
	for t, name := range lyricsTypeNames {
		if name == s {
			return t, true
		}
	}
	return LyricsUnknown, false
}

// ImportParams tunes decoding.
type ImportParams struct {
	// SimpleImport skips pitch decoding.
	SimpleImport bool
	// MultipleMode is set when several files form one project.
	MultipleMode bool
}

// Feature is an export option. Implementations: ConvertPitch, SplitProject.
type Feature interface {
	feature()
}

// ConvertPitch enables pitch curve export.
type ConvertPitch struct{}

// SplitProject splits the output into chunks of at most MaxTrackCount tracks.
type SplitProject struct {
	MaxTrackCount int
}

func (ConvertPitch) feature() {}
func (SplitProject) feature() {}

// HasConvertPitch reports whether ConvertPitch is present.
func HasConvertPitch(features []Feature) bool {
	for _, f := range features {
		if _, ok := f.(ConvertPitch); ok {
			return true
		}
	}
	return false
}

// SplitLimit returns the SplitProject limit or 0.
func SplitLimit(features []Feature) int {
	for _, f := range features {
		if s, ok := f.(SplitProject); ok && s.MaxTrackCount > 0 {
			return s.MaxTrackCount
		}
	}
	return 0
}

// Output is one encoded payload.
type Output struct {
	Data     []byte
	FileName string
}

// ExportResult is what an encoder returns. A single-payload export sets Data
// and FileName; per-track exports fill Outputs in track order.
type ExportResult struct {
	Data          []byte
	FileName      string
	Outputs       []Output
	Notifications []ExportNotification
}

// IsMulti reports whether the result carries several payloads.
func (r *ExportResult) IsMulti() bool {
	return len(r.Outputs) > 0
}

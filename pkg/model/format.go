package model

// Format describes one registered file format.
type Format struct {
	// Name is the registry key, e.g. "vsqx".
	Name        string
	DisplayName string
	// Extensions lists accepted extensions with the dot. The first one is used
	// for output.
	Extensions   []string
	MultipleFile bool
	CanParse     bool
	CanGenerate  bool
	// PossibleLyricsTypes are the notations the format can carry.
	PossibleLyricsTypes []LyricsType
	// SuggestedLyricsType is forced on export when not LyricsUnknown.
	SuggestedLyricsType LyricsType
}

// Extension returns the output extension.
func (f Format) Extension() string {
	if len(f.Extensions) == 0 {
		return ""
	}
	return f.Extensions[0]
}

// Supports reports whether the format can carry the given notation.
func (f Format) Supports(t LyricsType) bool {
	for _, p := range f.PossibleLyricsTypes {
		if p == t {
			return true
		}
	}
	return false
}

package lyrics

import (
	"strings"

	"github.com/james-see/singformat/pkg/model"
)

const (
	minTrackShare   = 0.1
	majorityPercent = 0.7
	restPrefix      = "-"
	longVowelMark   = "ー"
)

// Classify returns the notation of a single lyric.
func Classify(lyric string) model.LyricsType {
	lyric = stripSuffix(strings.TrimSpace(lyric))
	if head, body, ok := strings.Cut(lyric, " "); ok && head != "" {
		switch {
		case IsKana(body):
			return model.KanaVCV
		case IsRomaji(strings.ToLower(body)):
			return model.RomajiVCV
		}
		return model.LyricsUnknown
	}
	switch {
	case IsKana(lyric):
		return model.KanaCV
	case IsRomaji(strings.ToLower(lyric)):
		return model.RomajiCV
	}
	return model.LyricsUnknown
}

// Infer returns the notation used throughout the project. Tracks holding
// fewer than a tenth of the largest track's notes are ignored; every other
// track must agree on a style covering more than 70% of its notes.
func Infer(p model.Project) model.LyricsType {
	largest := 0
	for _, t := range p.Tracks {
		if len(t.Notes) > largest {
			largest = len(t.Notes)
		}
	}
	if largest == 0 {
		return model.LyricsUnknown
	}
	found := model.LyricsUnknown
	for _, t := range p.Tracks {
		if float64(len(t.Notes)) < float64(largest)*minTrackShare {
			continue
		}
		style := trackStyle(t)
		if style == model.LyricsUnknown {
			continue
		}
		if found != model.LyricsUnknown && found != style {
			return model.LyricsUnknown
		}
		found = style
	}
	return found
}

func trackStyle(t model.Track) model.LyricsType {
	if len(t.Notes) == 0 {
		return model.LyricsUnknown
	}
	counts := make(map[model.LyricsType]int)
	for _, n := range t.Notes {
		counts[Classify(n.Lyric)]++
	}
	for style, c := range counts {
		if style != model.LyricsUnknown && float64(c) > float64(len(t.Notes))*majorityPercent {
			return style
		}
	}
	return model.LyricsUnknown
}

// ConvertJapanese rewrites every lyric from one notation to another. Lyrics
// that are not recognised are left as they are.
func ConvertJapanese(p model.Project, from, to model.LyricsType) model.Project {
	if from == model.LyricsUnknown || to == model.LyricsUnknown || from == to {
		return p.Clone()
	}
	out := p.MapTracks(func(t model.Track) model.Track {
		notes := append([]model.Note(nil), t.Notes...)
		for i := range notes {
			lyric := Cleanup(notes[i].Lyric, from)
			if from.IsVCV() {
				lyric = VCVToCV(lyric)
			}
			notes[i].Lyric = convertScript(lyric, from, to)
		}
		notes = connectVowels(notes, to)
		if to.IsVCV() {
			notes = CVToVCV(notes)
		}
		return t.WithNotes(notes)
	})
	out.LyricsType = to
	return out
}

// Cleanup normalises a lyric for the given notation and reduces it to its
// longest known syllable prefix.
func Cleanup(lyric string, style model.LyricsType) string {
	lyric = strings.TrimSpace(lyric)
	if style.IsVCV() {
		if head, body, ok := strings.Cut(lyric, " "); ok {
			return head + " " + cleanupCV(body, style)
		}
	}
	return cleanupCV(lyric, style)
}

func cleanupCV(lyric string, style model.LyricsType) string {
	lyric = strings.TrimPrefix(strings.TrimSpace(lyric), "?")
	lyric = stripSuffix(lyric)
	switch {
	case style.IsRomaji():
		lyric = strings.ToLower(lyric)
		for l := min(len(lyric), maxRomajiLen); l > 0; l-- {
			if IsRomaji(lyric[:l]) {
				return lyric[:l]
			}
		}
	case style.IsKana():
		lyric = strings.TrimPrefix(foldKatakana(lyric), "っ")
		runes := []rune(lyric)
		for l := min(len(runes), 2); l > 0; l-- {
			if IsKana(string(runes[:l])) {
				return string(runes[:l])
			}
		}
	}
	return lyric
}

// VCVToCV drops the vowel prefix of a VCV lyric.
func VCVToCV(lyric string) string {
	if _, body, ok := strings.Cut(lyric, " "); ok {
		return body
	}
	return lyric
}

// CVToVCV prefixes every lyric with the romaji vowel of the note right before
// it, or "-" after a rest or an unrecognised lyric. Kana VCV banks use the same
// romaji prefixes.
func CVToVCV(notes []model.Note) []model.Note {
	out := append([]model.Note(nil), notes...)
	for i := range out {
		prefix := restPrefix
		if i > 0 && notes[i-1].TickOff == notes[i].TickOn {
			if v := VowelOf(notes[i-1].Lyric); v != "" {
				prefix = KanaToRomaji(v)
			}
		}
		out[i].Lyric = prefix + " " + notes[i].Lyric
	}
	return out
}

func convertScript(lyric string, from, to model.LyricsType) string {
	switch {
	case from.IsKana() && to.IsRomaji():
		return KanaToRomaji(lyric)
	case from.IsRomaji() && to.IsKana():
		return RomajiToKana(lyric)
	}
	return lyric
}

func inScript(vowel string, style model.LyricsType) string {
	if style.IsKana() {
		return RomajiToKana(KanaToRomaji(vowel))
	}
	return KanaToRomaji(vowel)
}

// connectVowels resolves "-" and "ー" lyrics to the previous note's vowel.
func connectVowels(notes []model.Note, to model.LyricsType) []model.Note {
	for i := 1; i < len(notes); i++ {
		if notes[i].Lyric != restPrefix && notes[i].Lyric != longVowelMark {
			continue
		}
		if v := VowelOf(notes[i-1].Lyric); v != "" {
			notes[i].Lyric = inScript(v, to)
		}
	}
	return notes
}

// stripSuffix removes a trailing "_suffix" such as a voice-bank variant tag.
func stripSuffix(lyric string) string {
	if i := strings.Index(lyric, "_"); i > 0 {
		return lyric[:i]
	}
	return lyric
}

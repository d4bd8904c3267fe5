package lyrics

import (
	"bufio"
	_ "embed"
	"strings"
	"unicode"

	"github.com/james-see/singformat/pkg/model"
)

//go:embed data/pinyin.txt
var pinyinData string

var pinyinOf = loadPinyin(pinyinData)

func loadPinyin(data string) map[rune]string {
	table := make(map[rune]string)
	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		reading, chars, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		for _, r := range strings.TrimSpace(chars) {
			if _, dup := table[r]; !dup {
				table[r] = reading
			}
		}
	}
	return table
}

// Pinyin transliterates the Han characters of s, one space-separated syllable
// per character. Other characters are kept in place.
func Pinyin(s string) string {
	var parts []string
	var rest strings.Builder
	flush := func() {
		if rest.Len() > 0 {
			parts = append(parts, rest.String())
			rest.Reset()
		}
	}
	for _, r := range s {
		if reading, ok := pinyinOf[r]; ok {
			flush()
			parts = append(parts, reading)
			continue
		}
		if unicode.IsSpace(r) {
			flush()
			continue
		}
		rest.WriteRune(r)
	}
	flush()
	return strings.Join(parts, " ")
}

// ToPinyin transliterates every lyric containing Han characters.
func ToPinyin(p model.Project) model.Project {
	return p.MapTracks(func(t model.Track) model.Track {
		for i, n := range t.Notes {
			if containsHan(n.Lyric) {
				t.Notes[i].Lyric = Pinyin(n.Lyric)
			}
		}
		return t
	})
}

func containsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

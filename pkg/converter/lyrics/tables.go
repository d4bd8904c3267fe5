// Package lyrics detects and converts Japanese lyric notations and applies
// user-supplied lyric and phoneme rewrites.
package lyrics

import "strings"

// kanaRomaji lists hiragana with their romaji spellings. The first row for a
// kana gives its canonical spelling; later rows are accepted aliases.
var kanaRomaji = [][2]string{
	{"あ", "a"}, {"い", "i"}, {"う", "u"}, {"え", "e"}, {"お", "o"},
	{"か", "ka"}, {"き", "ki"}, {"く", "ku"}, {"け", "ke"}, {"こ", "ko"},
	{"さ", "sa"}, {"し", "shi"}, {"す", "su"}, {"せ", "se"}, {"そ", "so"},
	{"た", "ta"}, {"ち", "chi"}, {"つ", "tsu"}, {"て", "te"}, {"と", "to"},
	{"な", "na"}, {"に", "ni"}, {"ぬ", "nu"}, {"ね", "ne"}, {"の", "no"},
	{"は", "ha"}, {"ひ", "hi"}, {"ふ", "fu"}, {"へ", "he"}, {"ほ", "ho"},
	{"ま", "ma"}, {"み", "mi"}, {"む", "mu"}, {"め", "me"}, {"も", "mo"},
	{"や", "ya"}, {"ゆ", "yu"}, {"いぇ", "ye"}, {"よ", "yo"},
	{"ら", "ra"}, {"り", "ri"}, {"る", "ru"}, {"れ", "re"}, {"ろ", "ro"},
	{"わ", "wa"}, {"うぃ", "wi"}, {"うぇ", "we"}, {"を", "wo"}, {"うぉ", "who"},
	{"ん", "n"},
	{"が", "ga"}, {"ぎ", "gi"}, {"ぐ", "gu"}, {"げ", "ge"}, {"ご", "go"},
	{"ざ", "za"}, {"じ", "ji"}, {"ず", "zu"}, {"ぜ", "ze"}, {"ぞ", "zo"},
	{"だ", "da"}, {"ぢ", "di"}, {"づ", "du"}, {"で", "de"}, {"ど", "do"},
	{"ば", "ba"}, {"び", "bi"}, {"ぶ", "bu"}, {"べ", "be"}, {"ぼ", "bo"},
	{"ぱ", "pa"}, {"ぴ", "pi"}, {"ぷ", "pu"}, {"ぺ", "pe"}, {"ぽ", "po"},
	{"きゃ", "kya"}, {"きゅ", "kyu"}, {"きぇ", "kye"}, {"きょ", "kyo"},
	{"しゃ", "sha"}, {"しゅ", "shu"}, {"しぇ", "she"}, {"しょ", "sho"},
	{"ちゃ", "cha"}, {"ちゅ", "chu"}, {"ちぇ", "che"}, {"ちょ", "cho"},
	{"にゃ", "nya"}, {"にゅ", "nyu"}, {"にぇ", "nye"}, {"にょ", "nyo"},
	{"ひゃ", "hya"}, {"ひゅ", "hyu"}, {"ひぇ", "hye"}, {"ひょ", "hyo"},
	{"みゃ", "mya"}, {"みゅ", "myu"}, {"みぇ", "mye"}, {"みょ", "myo"},
	{"りゃ", "rya"}, {"りゅ", "ryu"}, {"りぇ", "rye"}, {"りょ", "ryo"},
	{"ぎゃ", "gya"}, {"ぎゅ", "gyu"}, {"ぎぇ", "gye"}, {"ぎょ", "gyo"},
	{"じゃ", "ja"}, {"じゅ", "ju"}, {"じぇ", "je"}, {"じょ", "jo"},
	{"びゃ", "bya"}, {"びゅ", "byu"}, {"びぇ", "bye"}, {"びょ", "byo"},
	{"ぴゃ", "pya"}, {"ぴゅ", "pyu"}, {"ぴぇ", "pye"}, {"ぴょ", "pyo"},
	{"ふぁ", "fa"}, {"ふぃ", "fi"}, {"ふぇ", "fe"}, {"ふぉ", "fo"},
	{"つぁ", "tsa"}, {"つぃ", "tsi"}, {"つぇ", "tse"}, {"つぉ", "tso"},
	{"てぃ", "ti"}, {"とぅ", "tu"}, {"てゅ", "tyu"},
	{"でぃ", "dhi"}, {"どぅ", "dhu"}, {"でゅ", "dyu"},
	{"すぃ", "si"}, {"ずぃ", "zi"},
	{"ゔぁ", "va"}, {"ゔぃ", "vi"}, {"ゔ", "vu"}, {"ゔぇ", "ve"}, {"ゔぉ", "vo"},
	{"くぁ", "kwa"}, {"ぐぁ", "gwa"},

	// aliases
	{"ふ", "hu"}, {"じゃ", "jya"}, {"じゅ", "jyu"}, {"じょ", "jyo"},
	{"じゃ", "zya"}, {"じゅ", "zyu"}, {"じょ", "zyo"}, {"ちゃ", "tya"},
	{"ちょ", "tyo"}, {"しゃ", "sya"}, {"しゅ", "syu"},
	{"しょ", "syo"}, {"じ", "zhi"}, {"ん", "nn"}, {"ぢ", "dzi"}, {"づ", "dzu"},
}

var (
	toRomaji      map[string]string
	toKana        map[string]string
	maxRomajiLen  int
	vowelOfKana   map[string]string
	romajiVowels  = "aiueon"
	vowelKanaByCh = map[byte]string{'a': "あ", 'i': "い", 'u': "う", 'e': "え", 'o': "お", 'n': "ん"}
)

func init() {
	toRomaji = make(map[string]string, len(kanaRomaji))
	toKana = make(map[string]string, len(kanaRomaji))
	vowelOfKana = make(map[string]string, len(kanaRomaji))
	for _, row := range kanaRomaji {
		k, r := row[0], row[1]
		if _, ok := toRomaji[k]; !ok {
			toRomaji[k] = r
			vowelOfKana[k] = vowelKanaByCh[r[len(r)-1]]
		}
		if _, ok := toKana[r]; !ok {
			toKana[r] = k
		}
		if len(r) > maxRomajiLen {
			maxRomajiLen = len(r)
		}
	}
}

// IsKana reports whether s is a known kana syllable. Katakana is folded to
// hiragana first.
func IsKana(s string) bool {
	_, ok := toRomaji[foldKatakana(s)]
	return ok
}

// IsRomaji reports whether s is a known romaji syllable.
func IsRomaji(s string) bool {
	_, ok := toKana[s]
	return ok
}

// KanaToRomaji returns the canonical romaji of a kana syllable, or s unchanged.
func KanaToRomaji(s string) string {
	if r, ok := toRomaji[foldKatakana(s)]; ok {
		return r
	}
	return s
}

// Romanize transliterates every kana syllable of s, preferring two-rune
// syllables such as "きゃ". Other runes are kept.
func Romanize(s string) string {
	runes := []rune(foldKatakana(s))
	var b strings.Builder
	for i := 0; i < len(runes); {
		if i+1 < len(runes) {
			if r, ok := toRomaji[string(runes[i:i+2])]; ok {
				b.WriteString(r)
				i += 2
				continue
			}
		}
		if r, ok := toRomaji[string(runes[i])]; ok {
			b.WriteString(r)
		} else {
			b.WriteRune(runes[i])
		}
		i++
	}
	return b.String()
}

// RomajiToKana returns the hiragana of a romaji syllable, or s unchanged.
func RomajiToKana(s string) string {
	if k, ok := toKana[s]; ok {
		return k
	}
	return s
}

// VowelOf returns the trailing vowel of a syllable in the same script, or ""
// when s is not a known syllable.
func VowelOf(s string) string {
	if k, ok := vowelOfKana[foldKatakana(s)]; ok {
		return k
	}
	if _, ok := toKana[s]; ok {
		last := s[len(s)-1]
		if strings.IndexByte(romajiVowels, last) >= 0 {
			return string(last)
		}
	}
	return ""
}

// foldKatakana maps katakana to hiragana. Other runes are kept.
func foldKatakana(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 'ァ' && r <= 'ヶ' {
			r -= 'ァ' - 'ぁ'
		}
		b.WriteRune(r)
	}
	return b.String()
}

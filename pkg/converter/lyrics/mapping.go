package lyrics

import (
	"bufio"
	"fmt"
	"sort"
	"strings"

	"github.com/james-see/singformat/pkg/model"
)

// MappingRule maps a phoneme token sequence to replacement tokens.
type MappingRule struct {
	From []string
	To   []string
}

// MappingRules is an ordered phoneme dictionary. Longer sequences take
// precedence.
type MappingRules []MappingRule

// ParseMappingRules reads "from=to" lines. Tokens are space separated; blank
// lines and lines starting with '#' are skipped. An empty right side deletes
// the matched tokens.
func ParseMappingRules(text string) (MappingRules, error) {
	var rules MappingRules
	sc := bufio.NewScanner(strings.NewReader(text))
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		from, to, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: missing '='", line)
		}
		fromTokens := strings.Fields(from)
		if len(fromTokens) == 0 {
			return nil, fmt.Errorf("line %d: empty pattern", line)
		}
		rules = append(rules, MappingRule{From: fromTokens, To: strings.Fields(to)})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mapping rules: %w", err)
	}
	return rules.Sorted(), nil
}

// Sorted orders rules by descending token count, then descending pattern length.
func (m MappingRules) Sorted() MappingRules {
	out := append(MappingRules(nil), m...)
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].From) != len(out[j].From) {
			return len(out[i].From) > len(out[j].From)
		}
		return len(strings.Join(out[i].From, " ")) > len(strings.Join(out[j].From, " "))
	})
	return out
}

// Map rewrites one note's phonemes. Tokens are consumed left to right; at each
// position the first rule whose sequence matches is spliced in and its tokens
// are skipped. Replacement output is never matched again.
func (m MappingRules) Map(phonemes string) string {
	rules := m.Sorted()
	tokens := strings.Fields(phonemes)
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		matched := false
		for _, r := range rules {
			if hasSequence(tokens[i:], r.From) {
				out = append(out, r.To...)
				i += len(r.From)
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}
	return strings.Join(out, " ")
}

// Apply maps the phonemes of every note that has them.
func (m MappingRules) Apply(p model.Project) model.Project {
	if len(m) == 0 {
		return p.Clone()
	}
	return p.MapTracks(func(t model.Track) model.Track {
		for i, n := range t.Notes {
			if n.Phoneme != "" {
				t.Notes[i].Phoneme = m.Map(n.Phoneme)
			}
		}
		return t
	})
}

func hasSequence(tokens, seq []string) bool {
	if len(seq) > len(tokens) {
		return false
	}
	for i, s := range seq {
		if tokens[i] != s {
			return false
		}
	}
	return true
}

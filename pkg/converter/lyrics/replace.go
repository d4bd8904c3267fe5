package lyrics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/james-see/singformat/pkg/model"
	"gopkg.in/yaml.v3"
)

// FilterType selects which lyrics a rule applies to.
type FilterType string

const (
	FilterNone     FilterType = "none"
	FilterExact    FilterType = "exact"
	FilterContains FilterType = "contains"
	FilterPrefix   FilterType = "prefix"
	FilterSuffix   FilterType = "suffix"
	FilterRegex    FilterType = "regex"
)

// ReplaceType selects how a matching lyric is rewritten.
type ReplaceType string

const (
	ReplaceAll   ReplaceType = "all"
	ReplaceExact ReplaceType = "exact"
	ReplaceRegex ReplaceType = "regex"
)

// ReplacementRule rewrites a lyric or phoneme string.
type ReplacementRule struct {
	Filter     FilterType  `yaml:"filter"`
	FilterText string      `yaml:"filterText"`
	Replace    ReplaceType `yaml:"replace"`
	From       string      `yaml:"from"`
	To         string      `yaml:"to"`
}

// Validate checks rule types and regular expressions.
func (r ReplacementRule) Validate() error {
	switch r.Filter {
	case "", FilterNone, FilterExact, FilterContains, FilterPrefix, FilterSuffix:
	case FilterRegex:
		if _, err := regexp.Compile(r.FilterText); err != nil {
			return fmt.Errorf("filter regex %q: %w", r.FilterText, err)
		}
	default:
		return fmt.Errorf("unknown filter type %q", r.Filter)
	}
	switch r.Replace {
	case "", ReplaceAll, ReplaceExact:
	case ReplaceRegex:
		if _, err := regexp.Compile(r.From); err != nil {
			return fmt.Errorf("replace regex %q: %w", r.From, err)
		}
	default:
		return fmt.Errorf("unknown replace type %q", r.Replace)
	}
	return nil
}

// Matches reports whether the rule's filter accepts s.
func (r ReplacementRule) Matches(s string) bool {
	switch r.Filter {
	case FilterExact:
		return s == r.FilterText
	case FilterContains:
		return strings.Contains(s, r.FilterText)
	case FilterPrefix:
		return strings.HasPrefix(s, r.FilterText)
	case FilterSuffix:
		return strings.HasSuffix(s, r.FilterText)
	case FilterRegex:
		re, err := regexp.Compile(r.FilterText)
		return err == nil && re.MatchString(s)
	default:
		return true
	}
}

// Apply rewrites s when the filter matches. Invalid expressions leave s as is.
func (r ReplacementRule) Apply(s string) string {
	if !r.Matches(s) {
		return s
	}
	switch r.Replace {
	case ReplaceAll:
		return r.To
	case ReplaceExact, "":
		if r.From == "" {
			return s
		}
		return strings.ReplaceAll(s, r.From, r.To)
	case ReplaceRegex:
		re, err := regexp.Compile(r.From)
		if err != nil {
			return s
		}
		return re.ReplaceAllString(s, r.To)
	}
	return s
}

// ApplyRules runs the rules in order, each seeing the previous one's output.
func ApplyRules(rules []ReplacementRule, s string) string {
	for _, r := range rules {
		s = r.Apply(s)
	}
	return s
}

// ReplaceLyrics applies rules to every lyric. Notes whose lyric becomes empty
// are removed and each track is validated again.
func ReplaceLyrics(p model.Project, rules []ReplacementRule) model.Project {
	if len(rules) == 0 {
		return p.Clone()
	}
	return p.MapTracks(func(t model.Track) model.Track {
		notes := make([]model.Note, 0, len(t.Notes))
		for _, n := range t.Notes {
			n.Lyric = ApplyRules(rules, n.Lyric)
			if n.Lyric == "" {
				continue
			}
			notes = append(notes, n)
		}
		return t.WithNotes(notes).ValidateNotes()
	})
}

// ReplacePhonemes applies rules to every non-empty phoneme string.
func ReplacePhonemes(p model.Project, rules []ReplacementRule) model.Project {
	if len(rules) == 0 {
		return p.Clone()
	}
	return p.MapTracks(func(t model.Track) model.Track {
		for i, n := range t.Notes {
			if n.Phoneme != "" {
				t.Notes[i].Phoneme = ApplyRules(rules, n.Phoneme)
			}
		}
		return t
	})
}

// ruleFile is the YAML layout of a rule file.
type ruleFile struct {
	Lyrics   []ReplacementRule `yaml:"lyrics"`
	Phonemes []ReplacementRule `yaml:"phonemes"`
}

// ParseRules reads lyric and phoneme rules from YAML:
//
//	lyrics:
//	  - {filter: suffix, filterText: "R", replace: all, to: ""}
//	phonemes:
//	  - {replace: regex, from: "^cl$", to: "Q"}
func ParseRules(data []byte) (lyricRules, phonemeRules []ReplacementRule, err error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	for i, r := range append(append([]ReplacementRule(nil), f.Lyrics...), f.Phonemes...) {
		if err := r.Validate(); err != nil {
			return nil, nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
	}
	return f.Lyrics, f.Phonemes, nil
}

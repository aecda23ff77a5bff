// Package lexicon rewrites text into the form the speech synthesizer should
// pronounce (abbreviations, acronyms, sign glosses).
package lexicon

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultPassLimit = 30

// ErrUnstable is returned when entries keep rewriting each other past the pass limit.
var ErrUnstable = errors.New("lexicon did not settle")

// File is the on-disk YAML layout.
//
//	passes: 10
//	entries:
//	  - word: DNI
//	    say: de ene i
//	  - pattern: '\bSr\.'
//	    say: señor
type File struct {
	Passes  int     `yaml:"passes"`
	Entries []Entry `yaml:"entries"`
}

// Entry replaces either a whole word (case-insensitive) or a regular expression match.
type Entry struct {
	Word          string `yaml:"word,omitempty"`
	Pattern       string `yaml:"pattern,omitempty"`
	Say           string `yaml:"say"`
	CaseSensitive bool   `yaml:"case_sensitive,omitempty"`
}

type rewrite struct {
	re  *regexp.Regexp
	say string
}

// Lexicon applies its entries repeatedly until the text stops changing.
type Lexicon struct {
	rewrites  []rewrite
	passLimit int
}

// Load reads a lexicon file. A blank path or missing file yields an empty lexicon.
func Load(path string) (*Lexicon, error) {
	if strings.TrimSpace(path) == "" {
		return &Lexicon{passLimit: defaultPassLimit}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Lexicon{passLimit: defaultPassLimit}, nil
		}
		return nil, fmt.Errorf("failed to read lexicon %q: %w", path, err)
	}

	lex, err := Parse(contents)
	if err != nil {
		return nil, fmt.Errorf("failed to parse lexicon %q: %w", path, err)
	}
	return lex, nil
}

// Parse compiles a YAML lexicon document.
func Parse(contents []byte) (*Lexicon, error) {
	var file File
	if err := yaml.Unmarshal(contents, &file); err != nil {
		return nil, err
	}
	return New(file)
}

func New(file File) (*Lexicon, error) {
	passLimit := file.Passes
	if passLimit <= 0 {
		passLimit = defaultPassLimit
	}

	rewrites := make([]rewrite, 0, len(file.Entries))
	for index, entry := range file.Entries {
		compiled, err := compile(entry)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", index+1, err)
		}
		rewrites = append(rewrites, compiled)
	}
	return &Lexicon{rewrites: rewrites, passLimit: passLimit}, nil
}

func compile(entry Entry) (rewrite, error) {
	word := strings.TrimSpace(entry.Word)
	pattern := entry.Pattern

	switch {
	case word != "" && pattern != "":
		return rewrite{}, errors.New("word and pattern are mutually exclusive")
	case word != "":
		pattern = wordPattern(word)
	case pattern == "":
		return rewrite{}, errors.New("word or pattern is required")
	}

	if !entry.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return rewrite{}, fmt.Errorf("invalid pattern: %w", err)
	}
	return rewrite{re: re, say: entry.Say}, nil
}

// wordPattern anchors word on word boundaries, skipping ends that are
// punctuation so entries like "Av." still match.
func wordPattern(word string) string {
	pattern := regexp.QuoteMeta(word)
	if isWordByte(word[0]) {
		pattern = `\b` + pattern
	}
	if isWordByte(word[len(word)-1]) {
		pattern += `\b`
	}
	return pattern
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Len returns the number of entries.
func (l *Lexicon) Len() int {
	return len(l.rewrites)
}

// Apply rewrites text. It fails with ErrUnstable when the entries form a cycle.
func (l *Lexicon) Apply(text string) (string, error) {
	if len(l.rewrites) == 0 {
		return text, nil
	}

	result := text
	for pass := 0; pass < l.passLimit; pass++ {
		changed := false
		for _, rw := range l.rewrites {
			next := rw.re.ReplaceAllString(result, rw.say)
			if next != result {
				result = next
				changed = true
			}
		}
		if !changed {
			return result, nil
		}
	}
	return result, fmt.Errorf("%w after %d passes", ErrUnstable, l.passLimit)
}

package ai

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed archetypes.yaml
var archetypesConfig []byte

// ArchetypeNone is returned when no keyword matches. Conversations on
// such steps get the base prompt with no archetype clauses, which also
// keeps behavior unchanged for steps that predate archetypes.
const ArchetypeNone = "none"

// Archetype is one cognitive-style entry from the embedded table: the
// keywords that select it plus the exact constraint/style/length triple
// the composer appends. Static configuration, never computed.
type Archetype struct {
	Key        string   `yaml:"key"`
	Keywords   []string `yaml:"keywords"`
	Constraint string   `yaml:"constraint"`
	Style      string   `yaml:"style"`
	MinWords   int      `yaml:"min_words"`
	MaxWords   int      `yaml:"max_words"`
}

type archetypeFile struct {
	Archetypes []Archetype `yaml:"archetypes"`
}

// ArchetypeRegistry holds the ordered archetype table. The slice order
// is the classification priority; it comes straight from the YAML and
// is never re-sorted.
type ArchetypeRegistry struct {
	ordered []Archetype
	byKey   map[string]*Archetype
}

// NewArchetypeRegistry loads the embedded archetype table.
func NewArchetypeRegistry() (*ArchetypeRegistry, error) {
	var file archetypeFile
	if err := yaml.Unmarshal(archetypesConfig, &file); err != nil {
		return nil, fmt.Errorf("unmarshal archetypes config: %w", err)
	}
	if len(file.Archetypes) == 0 {
		return nil, fmt.Errorf("archetypes config is empty")
	}

	r := &ArchetypeRegistry{
		ordered: file.Archetypes,
		byKey:   make(map[string]*Archetype, len(file.Archetypes)),
	}
	for i := range r.ordered {
		a := &r.ordered[i]
		if a.Key == "" || len(a.Keywords) == 0 {
			return nil, fmt.Errorf("archetype %d: missing key or keywords", i)
		}
		if _, dup := r.byKey[a.Key]; dup {
			return nil, fmt.Errorf("archetype %q: duplicate key", a.Key)
		}
		r.byKey[a.Key] = a
	}

	return r, nil
}

// Classify infers an archetype from a step's label and instruction.
// Pure and deterministic: the concatenated text is lowercased and
// tokenized, then tested against each archetype's keywords in table
// order; the first non-empty intersection wins. No match returns
// ArchetypeNone - a normal outcome, not an error.
func (r *ArchetypeRegistry) Classify(stepLabel, stepInstruction string) string {
	text := strings.ToLower(stepLabel + " " + stepInstruction)
	tokens := tokenSet(text)

	for i := range r.ordered {
		a := &r.ordered[i]
		for _, kw := range a.Keywords {
			if strings.ContainsRune(kw, ' ') {
				// Multi-word keywords match as a phrase
				if strings.Contains(text, kw) {
					return a.Key
				}
				continue
			}
			if _, ok := tokens[kw]; ok {
				return a.Key
			}
		}
	}

	return ArchetypeNone
}

// Get returns the archetype for key, or nil for ArchetypeNone and
// unknown keys.
func (r *ArchetypeRegistry) Get(key string) *Archetype {
	return r.byKey[key]
}

// Keys returns the archetype keys in priority order.
func (r *ArchetypeRegistry) Keys() []string {
	keys := make([]string, len(r.ordered))
	for i := range r.ordered {
		keys[i] = r.ordered[i].Key
	}
	return keys
}

func tokenSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultDocument []byte

// #region types

// Archetype is an immutable creative-style category a creator is modeled against.
type Archetype struct {
	Designation  string   `yaml:"designation" json:"designation"`
	Title        string   `yaml:"title" json:"title"`
	Glyph        string   `yaml:"glyph" json:"glyph"`
	Essence      string   `yaml:"essence" json:"essence"`
	CreativeMode string   `yaml:"creativeMode" json:"creativeMode"`
	Color        string   `yaml:"color" json:"color"`
	Keywords     []string `yaml:"keywords" json:"keywords"`
}

// QuestionOption is one card inside a presentable question set.
type QuestionOption struct {
	ID            string `yaml:"id" json:"id"`
	Prompt        string `yaml:"prompt" json:"prompt"`
	Topic         string `yaml:"topic" json:"topic"`
	ArchetypeHint string `yaml:"archetypeHint" json:"archetypeHint"`
}

// QuestionSet groups 2 or 4 options presented together.
type QuestionSet struct {
	ID      string           `yaml:"id" json:"id"`
	Topic   string           `yaml:"topic" json:"topic"`
	Prompt  string           `yaml:"prompt" json:"prompt"`
	Options []QuestionOption `yaml:"options" json:"options"`
}

type document struct {
	Archetypes []Archetype   `yaml:"archetypes"`
	Quiz       []QuestionSet `yaml:"quiz"`
}

// #endregion types

// #region catalog

// Catalog is the fixed archetype list plus the quiz pool. Read-only after Load.
type Catalog struct {
	archetypes []Archetype
	index      map[string]int
	sets       []QuestionSet
	setIndex   map[string]int
	options    map[string]QuestionOption
	optionSet  map[string]string
}

// Default parses the embedded catalog document.
func Default() (*Catalog, error) {
	return Parse(defaultDocument)
}

// Load reads a catalog document from disk. An empty path yields the embedded default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a catalog document.
func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return build(doc)
}

func build(doc document) (*Catalog, error) {
	if len(doc.Archetypes) < 2 {
		return nil, fmt.Errorf("catalog needs at least 2 archetypes, got %d", len(doc.Archetypes))
	}
	c := &Catalog{
		index:     make(map[string]int, len(doc.Archetypes)),
		setIndex:  make(map[string]int, len(doc.Quiz)),
		options:   make(map[string]QuestionOption),
		optionSet: make(map[string]string),
	}
	for i, a := range doc.Archetypes {
		if a.Designation == "" {
			return nil, fmt.Errorf("archetype %d has no designation", i)
		}
		if _, dup := c.index[a.Designation]; dup {
			return nil, fmt.Errorf("duplicate archetype %s", a.Designation)
		}
		c.index[a.Designation] = i
		c.archetypes = append(c.archetypes, a)
	}
	for _, set := range doc.Quiz {
		if _, dup := c.setIndex[set.ID]; dup {
			return nil, fmt.Errorf("duplicate question set %s", set.ID)
		}
		if n := len(set.Options); n != 2 && n != 4 {
			return nil, fmt.Errorf("question set %s has %d options, want 2 or 4", set.ID, n)
		}
		for j, opt := range set.Options {
			if opt.Topic == "" {
				opt.Topic = set.Topic
				set.Options[j] = opt
			}
			if _, ok := c.index[opt.ArchetypeHint]; !ok {
				return nil, fmt.Errorf("option %s hints unknown archetype %q", opt.ID, opt.ArchetypeHint)
			}
			if _, dup := c.options[opt.ID]; dup {
				return nil, fmt.Errorf("duplicate option %s", opt.ID)
			}
			c.options[opt.ID] = opt
			c.optionSet[opt.ID] = set.ID
		}
		c.setIndex[set.ID] = len(c.sets)
		c.sets = append(c.sets, set)
	}
	return c, nil
}

// #endregion catalog

// #region lookups

// Archetypes returns the archetypes in catalog order.
func (c *Catalog) Archetypes() []Archetype {
	out := make([]Archetype, len(c.archetypes))
	copy(out, c.archetypes)
	return out
}

// Designations returns archetype ids in catalog order.
func (c *Catalog) Designations() []string {
	out := make([]string, len(c.archetypes))
	for i, a := range c.archetypes {
		out[i] = a.Designation
	}
	return out
}

// Len is the number of archetypes.
func (c *Catalog) Len() int {
	return len(c.archetypes)
}

// Has reports whether designation names a catalog archetype.
func (c *Catalog) Has(designation string) bool {
	_, ok := c.index[designation]
	return ok
}

// Archetype looks up a single archetype.
func (c *Catalog) Archetype(designation string) (Archetype, bool) {
	i, ok := c.index[designation]
	if !ok {
		return Archetype{}, false
	}
	return c.archetypes[i], true
}

// Position returns the catalog order of designation, or -1.
func (c *Catalog) Position(designation string) int {
	if i, ok := c.index[designation]; ok {
		return i
	}
	return -1
}

// Sets returns the quiz pool in pool order.
func (c *Catalog) Sets() []QuestionSet {
	out := make([]QuestionSet, len(c.sets))
	copy(out, c.sets)
	return out
}

// Set looks up a question set by id.
func (c *Catalog) Set(id string) (QuestionSet, bool) {
	i, ok := c.setIndex[id]
	if !ok {
		return QuestionSet{}, false
	}
	return c.sets[i], true
}

// Option looks up a question option by id.
func (c *Catalog) Option(id string) (QuestionOption, bool) {
	opt, ok := c.options[id]
	return opt, ok
}

// SetOf returns the question set an option belongs to.
func (c *Catalog) SetOf(optionID string) (QuestionSet, bool) {
	setID, ok := c.optionSet[optionID]
	if !ok {
		return QuestionSet{}, false
	}
	return c.Set(setID)
}

// #endregion lookups

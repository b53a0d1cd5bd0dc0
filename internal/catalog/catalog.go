// Package catalog holds the registry of visual styles and length presets.
// Each style carries its planner tone guidance and the ffmpeg filtergraph used
// to stylize continuity frames, so adding a style is a data change only.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Style describes one visual style.
type Style struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Tone        string `yaml:"tone" json:"-"`
	FrameFilter string `yaml:"frame_filter" json:"-"`
}

// Preset describes a target length bundle.
type Preset struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Clips       string `yaml:"clips" json:"clips"`
	Duration    string `yaml:"duration" json:"duration"`
	Cost        string `yaml:"cost" json:"cost"`
	Description string `yaml:"description" json:"description"`
	Guidance    string `yaml:"guidance" json:"-"`
}

type document struct {
	Styles  []Style  `yaml:"styles"`
	Presets []Preset `yaml:"presets"`
}

// Catalog is an immutable lookup of styles and presets in declaration order.
type Catalog struct {
	styles      []Style
	presets     []Preset
	styleIndex  map[string]int
	presetIndex map[string]int
}

const (
	fallbackTone     = "cinematic storytelling"
	fallbackGuidance = "narrative storytelling"
)

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Errorf("catalog: embedded definition invalid: %w", err))
	}
	return c
}

// Load returns the embedded catalog merged with the YAML file at path.
// Entries in the file replace embedded entries with the same id and new ids
// are appended. An empty path yields the embedded catalog.
func Load(path string) (*Catalog, error) {
	base := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read override: %w", err)
	}
	override, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return base.merge(override), nil
}

// Parse decodes a catalog document.
func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	c := &Catalog{}
	for _, s := range doc.Styles {
		s.ID = normalizeID(s.ID)
		if s.ID == "" {
			return nil, errors.New("catalog: style id is required")
		}
		c.putStyle(s)
	}
	for _, p := range doc.Presets {
		p.ID = normalizeID(p.ID)
		if p.ID == "" {
			return nil, errors.New("catalog: preset id is required")
		}
		c.putPreset(p)
	}
	return c, nil
}

func (c *Catalog) merge(other *Catalog) *Catalog {
	out := &Catalog{}
	for _, s := range c.styles {
		out.putStyle(s)
	}
	for _, p := range c.presets {
		out.putPreset(p)
	}
	for _, s := range other.styles {
		out.putStyle(s)
	}
	for _, p := range other.presets {
		out.putPreset(p)
	}
	return out
}

func (c *Catalog) putStyle(s Style) {
	if c.styleIndex == nil {
		c.styleIndex = map[string]int{}
	}
	if s.Name == "" {
		s.Name = DisplayName(s.ID)
	}
	if i, ok := c.styleIndex[s.ID]; ok {
		c.styles[i] = s
		return
	}
	c.styleIndex[s.ID] = len(c.styles)
	c.styles = append(c.styles, s)
}

func (c *Catalog) putPreset(p Preset) {
	if c.presetIndex == nil {
		c.presetIndex = map[string]int{}
	}
	if p.Name == "" {
		p.Name = DisplayName(p.ID)
	}
	if i, ok := c.presetIndex[p.ID]; ok {
		c.presets[i] = p
		return
	}
	c.presetIndex[p.ID] = len(c.presets)
	c.presets = append(c.presets, p)
}

// Style looks up a style by id.
func (c *Catalog) Style(id string) (Style, bool) {
	i, ok := c.styleIndex[normalizeID(id)]
	if !ok {
		return Style{}, false
	}
	return c.styles[i], true
}

// Preset looks up a preset by id.
func (c *Catalog) Preset(id string) (Preset, bool) {
	i, ok := c.presetIndex[normalizeID(id)]
	if !ok {
		return Preset{}, false
	}
	return c.presets[i], true
}

func (c *Catalog) Styles() []Style {
	return append([]Style(nil), c.styles...)
}

func (c *Catalog) Presets() []Preset {
	return append([]Preset(nil), c.presets...)
}

// Tone returns planner guidance for the style, or a generic tone for unknown ids.
func (c *Catalog) Tone(styleID string) string {
	if s, ok := c.Style(styleID); ok && strings.TrimSpace(s.Tone) != "" {
		return s.Tone
	}
	return fallbackTone
}

// Guidance returns scene-count guidance for the preset.
func (c *Catalog) Guidance(presetID string) string {
	if p, ok := c.Preset(presetID); ok && strings.TrimSpace(p.Guidance) != "" {
		return p.Guidance
	}
	return fallbackGuidance
}

// FrameFilter returns the continuity-frame filtergraph for the style; empty
// means the frame is used as extracted.
func (c *Catalog) FrameFilter(styleID string) string {
	if s, ok := c.Style(styleID); ok {
		return strings.TrimSpace(s.FrameFilter)
	}
	return ""
}

// DisplayName turns an id such as "wes-anderson" into "Wes Anderson".
func DisplayName(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' })
	return cases.Title(language.English).String(strings.Join(words, " "))
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

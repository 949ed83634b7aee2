package mission

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the immutable reference data: the ordered scenario sequence and
// the selectable characters.
type Catalog struct {
	Characters []Character `yaml:"characters" json:"characters"`
	Scenarios  []Scenario  `yaml:"scenarios" json:"scenarios"`
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog from path, or the embedded one when path is
// empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Scenarios) == 0 {
		return errors.New("no scenarios")
	}
	if len(c.Characters) == 0 {
		return errors.New("no characters")
	}
	seen := make(map[string]bool)
	for _, s := range c.Scenarios {
		if strings.TrimSpace(s.ID) == "" {
			return errors.New("scenario without id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate scenario %q", s.ID)
		}
		seen[s.ID] = true
		if strings.TrimSpace(s.Instruction) == "" {
			return fmt.Errorf("scenario %q has no instruction", s.ID)
		}
	}
	chars := make(map[string]bool)
	for _, ch := range c.Characters {
		if strings.TrimSpace(ch.ID) == "" {
			return errors.New("character without id")
		}
		if chars[ch.ID] {
			return fmt.Errorf("duplicate character %q", ch.ID)
		}
		chars[ch.ID] = true
	}
	return nil
}

// Index returns the position of scenario id in the sequence.
func (c *Catalog) Index(id string) (int, bool) {
	for i, s := range c.Scenarios {
		if s.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Scenario looks up a scenario's content. The returned Status is unset.
func (c *Catalog) Scenario(id string) (Scenario, bool) {
	i, ok := c.Index(id)
	if !ok {
		return Scenario{}, false
	}
	return c.Scenarios[i], true
}

func (c *Catalog) Character(id string) (Character, bool) {
	for _, ch := range c.Characters {
		if ch.ID == id {
			return ch, true
		}
	}
	return Character{}, false
}

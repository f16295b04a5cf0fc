// Package scenario loads YAML scenario files: an ASCII terrain map per
// region, the items and workers on it and the postings an operator makes.
package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"haulplan.ai/internal/sim/catalogs"
)

type Scenario struct {
	Name     string        `yaml:"name"`
	Seed     int64         `yaml:"seed"`
	Regions  []RegionSpec  `yaml:"regions"`
	Items    []ItemSpec    `yaml:"items"`
	Workers  []WorkerSpec  `yaml:"workers"`
	Postings []PostingSpec `yaml:"postings"`
	Expect   Expect        `yaml:"expect"`
}

type RegionSpec struct {
	ID int `yaml:"id"`
	// Map rows run north to south (z grows downwards), one rune per cell.
	Map  string   `yaml:"map"`
	Fog  [][2]int `yaml:"fog,omitempty"`
	Fire [][2]int `yaml:"fire,omitempty"`
}

type ItemSpec struct {
	ID       string `yaml:"id"`
	Def      string `yaml:"def"`
	Stuff    string `yaml:"stuff,omitempty"`
	InnerDef string `yaml:"inner_def,omitempty"`
	Count    int    `yaml:"count"`
	Region   int    `yaml:"region"`
	Pos      [2]int `yaml:"pos"`
}

type WorkerSpec struct {
	ID      string  `yaml:"id"`
	Faction string  `yaml:"faction,omitempty"`
	Region  int     `yaml:"region"`
	Pos     [2]int  `yaml:"pos"`
	Allowed *[4]int `yaml:"allowed_area,omitempty"`
}

type PostingSpec struct {
	Name   string     `yaml:"name"`
	Region int        `yaml:"region"`
	Items  []string   `yaml:"items"`
	Cursor [2]float64 `yaml:"cursor"`
	// Quantities sets operator overrides by member item id.
	Quantities map[string]int `yaml:"quantities,omitempty"`
	// AtTick delays the posting; 0 posts before the first tick.
	AtTick uint64 `yaml:"at_tick,omitempty"`
}

type Expect struct {
	Ticks    int               `yaml:"ticks"`
	Statuses map[string]string `yaml:"statuses"`
}

func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func Parse(raw []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if len(s.Regions) == 0 {
		return fmt.Errorf("no regions")
	}
	regions := map[int]bool{}
	for _, r := range s.Regions {
		if regions[r.ID] {
			return fmt.Errorf("region %d defined twice", r.ID)
		}
		regions[r.ID] = true
		if len(r.Rows()) == 0 {
			return fmt.Errorf("region %d: empty map", r.ID)
		}
	}
	ids := map[string]bool{}
	for _, it := range s.Items {
		if it.ID == "" || ids[it.ID] {
			return fmt.Errorf("item id %q empty or duplicated", it.ID)
		}
		ids[it.ID] = true
		if it.Count <= 0 {
			return fmt.Errorf("item %s: count must be positive", it.ID)
		}
		if !regions[it.Region] {
			return fmt.Errorf("item %s: unknown region %d", it.ID, it.Region)
		}
	}
	for _, w := range s.Workers {
		if w.ID == "" || ids[w.ID] {
			return fmt.Errorf("worker id %q empty or duplicated", w.ID)
		}
		ids[w.ID] = true
		if !regions[w.Region] {
			return fmt.Errorf("worker %s: unknown region %d", w.ID, w.Region)
		}
	}
	names := map[string]bool{}
	for i, p := range s.Postings {
		if p.Name == "" {
			s.Postings[i].Name = fmt.Sprintf("posting-%d", i)
		}
		if names[s.Postings[i].Name] {
			return fmt.Errorf("posting %q defined twice", p.Name)
		}
		names[s.Postings[i].Name] = true
		if !regions[p.Region] {
			return fmt.Errorf("posting %s: unknown region %d", s.Postings[i].Name, p.Region)
		}
	}
	for name := range s.Expect.Statuses {
		if !names[name] {
			return fmt.Errorf("expect: unknown posting %q", name)
		}
	}
	return nil
}

// Rows returns the non-empty map rows with surrounding whitespace trimmed.
func (r RegionSpec) Rows() []string {
	var rows []string
	for _, line := range strings.Split(r.Map, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			rows = append(rows, line)
		}
	}
	return rows
}

// Terrain decodes the map through the terrain catalog. Rows must be equally
// wide; cells are indexed z*width+x.
func (r RegionSpec) Terrain(cat catalogs.TerrainCatalog) (width, height int, cells []uint8, err error) {
	rows := r.Rows()
	height = len(rows)
	for z, row := range rows {
		runes := []rune(row)
		if z == 0 {
			width = len(runes)
			cells = make([]uint8, 0, width*height)
		} else if len(runes) != width {
			return 0, 0, nil, fmt.Errorf("region %d: row %d is %d wide, want %d", r.ID, z, len(runes), width)
		}
		for x, ch := range runes {
			id, ok := cat.BySymbol[ch]
			if !ok {
				return 0, 0, nil, fmt.Errorf("region %d: unknown terrain %q at (%d,%d)", r.ID, ch, x, z)
			}
			cells = append(cells, id)
		}
	}
	return width, height, cells, nil
}

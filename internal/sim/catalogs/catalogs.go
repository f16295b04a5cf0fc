package catalogs

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"sort"
)

//go:embed defaults/*.json
var defaults embed.FS

type Catalogs struct {
	Items   ItemCatalog
	Terrain TerrainCatalog
}

type ItemCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
}

type ItemDef struct {
	ID         string `json:"id"`
	Label      string `json:"label,omitempty"`
	StackLimit int    `json:"stack_limit"`
	// Storable items occupy stockpile cells; plants and corpses do not.
	Storable bool `json:"storable"`
	Haulable bool `json:"haulable"`
	// Minifiable defs are packed furniture; their stacks carry an inner def.
	Minifiable bool `json:"minifiable,omitempty"`
	// MadeFromStuff marks defs whose stacks only mix within one material.
	MadeFromStuff bool `json:"made_from_stuff,omitempty"`
}

type TerrainCatalog struct {
	// Defs is indexed by terrain id; id 0 is open ground.
	Defs     []TerrainDef
	BySymbol map[rune]uint8
	ByID     map[string]uint8
	Digest   string
}

type TerrainDef struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Passable bool   `json:"passable"`
	// HoldsItems is false for terrain items can never rest on.
	HoldsItems bool `json:"holds_items"`
	// Blocking terrain is passable but never a destination (doors).
	Blocking bool `json:"blocking,omitempty"`
}

// Default returns the catalogs compiled into the binary.
func Default() *Catalogs {
	sub, err := fs.Sub(defaults, "defaults")
	if err != nil {
		panic(err)
	}
	c, err := LoadFS(sub)
	if err != nil {
		panic(fmt.Sprintf("embedded catalogs: %v", err))
	}
	return c
}

func Load(configDir string) (*Catalogs, error) {
	return LoadFS(os.DirFS(configDir))
}

func LoadFS(fsys fs.FS) (*Catalogs, error) {
	var c Catalogs
	if err := loadItems(fsys, "items.json", &c.Items); err != nil {
		return nil, err
	}
	if err := loadTerrain(fsys, "terrain.json", &c.Terrain); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c ItemCatalog) Def(id string) (ItemDef, bool) {
	d, ok := c.Defs[id]
	return d, ok
}

// StackLimit is the def's stack limit, 1 for unknown defs.
func (c ItemCatalog) StackLimit(id string) int {
	if d, ok := c.Defs[id]; ok && d.StackLimit > 0 {
		return d.StackLimit
	}
	return 1
}

func (c TerrainCatalog) Def(id uint8) TerrainDef {
	if int(id) < len(c.Defs) {
		return c.Defs[id]
	}
	return TerrainDef{ID: "UNKNOWN"}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadItems(fsys fs.FS, path string, out *ItemCatalog) error {
	raw, err := fs.ReadFile(fsys, path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		if d.StackLimit <= 0 {
			return fmt.Errorf("items.json: %s: stack_limit must be positive", d.ID)
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("items.json: duplicate id %s", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadTerrain(fsys fs.FS, path string, out *TerrainCatalog) error {
	raw, err := fs.ReadFile(fsys, path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	if err := json.Unmarshal(raw, &out.Defs); err != nil {
		return fmt.Errorf("terrain.json: %w", err)
	}
	if len(out.Defs) == 0 || out.Defs[0].ID != "OPEN" {
		return fmt.Errorf("terrain.json: OPEN must come first")
	}
	if len(out.Defs) > 255 {
		return fmt.Errorf("terrain.json: too many terrain defs")
	}
	out.BySymbol = map[rune]uint8{}
	out.ByID = map[string]uint8{}
	for i, d := range out.Defs {
		sym := []rune(d.Symbol)
		if d.ID == "" || len(sym) != 1 {
			return fmt.Errorf("terrain.json: entry %d needs an id and a one-rune symbol", i)
		}
		if _, dup := out.BySymbol[sym[0]]; dup {
			return fmt.Errorf("terrain.json: symbol %q used twice", d.Symbol)
		}
		out.BySymbol[sym[0]] = uint8(i)
		out.ByID[d.ID] = uint8(i)
	}
	return nil
}

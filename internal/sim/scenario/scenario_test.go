package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"haulplan.ai/internal/sim/catalogs"
)

const twoStacks = `
name: two-stacks
regions:
  - id: 0
    map: |
      ....#
      ..D.#
      ~~..#
items:
  - {id: a, def: wood, count: 75, region: 0, pos: [0, 0]}
  - {id: b, def: wood, count: 40, region: 0, pos: [1, 0]}
workers:
  - {id: w1, region: 0, pos: [0, 1]}
postings:
  - name: stockpile
    region: 0
    items: [a, b]
    cursor: [3.5, 2.5]
  - region: 0
    items: [b]
    cursor: [0.5, 0.5]
expect:
  ticks: 100
  statuses: {stockpile: COMPLETE}
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(twoStacks))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Name != "two-stacks" || len(s.Items) != 2 || len(s.Workers) != 1 {
		t.Fatalf("unexpected scenario: %+v", s)
	}
	if s.Postings[1].Name != "posting-1" {
		t.Fatalf("default posting name: %q", s.Postings[1].Name)
	}
	if s.Postings[0].Cursor != [2]float64{3.5, 2.5} {
		t.Fatalf("cursor: %v", s.Postings[0].Cursor)
	}

	w, h, cells, err := s.Regions[0].Terrain(catalogs.Default().Terrain)
	if err != nil {
		t.Fatalf("terrain: %v", err)
	}
	if w != 5 || h != 3 || len(cells) != 15 {
		t.Fatalf("size: %dx%d (%d cells)", w, h, len(cells))
	}
	cat := catalogs.Default().Terrain
	if got := cat.Def(cells[1*w+2]).ID; got != "DOOR" {
		t.Fatalf("cell (2,1): %s", got)
	}
	if got := cat.Def(cells[2*w+0]).ID; got != "WATER" {
		t.Fatalf("cell (0,2): %s", got)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"no regions":      `name: x`,
		"unknown region":  "regions: [{id: 0, map: \"..\"}]\nitems: [{id: a, def: wood, count: 1, region: 3}]",
		"zero count":      "regions: [{id: 0, map: \"..\"}]\nitems: [{id: a, def: wood, count: 0}]",
		"duplicate ids":   "regions: [{id: 0, map: \"..\"}]\nitems: [{id: a, def: wood, count: 1}]\nworkers: [{id: a}]",
		"unknown expect":  "regions: [{id: 0, map: \"..\"}]\nexpect: {statuses: {ghost: COMPLETE}}",
		"empty map":       "regions: [{id: 0, map: \"\"}]",
		"not yaml at all": "regions: [",
	}
	for name, body := range cases {
		if _, err := Parse([]byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestTerrainRejectsRaggedAndUnknown(t *testing.T) {
	cat := catalogs.Default().Terrain
	if _, _, _, err := (RegionSpec{Map: "...\n.."}).Terrain(cat); err == nil {
		t.Fatalf("ragged map accepted")
	}
	if _, _, _, err := (RegionSpec{Map: ".?."}).Terrain(cat); err == nil {
		t.Fatalf("unknown symbol accepted")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	if err := os.WriteFile(path, []byte(twoStacks), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
}

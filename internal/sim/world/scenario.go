package world

import (
	"fmt"
	"log"
	"sort"

	"haulplan.ai/internal/haul"
	"haulplan.ai/internal/sim/catalogs"
	"haulplan.ai/internal/sim/model"
	"haulplan.ai/internal/sim/scenario"
)

// NewFromScenario builds the regions, items and workers of sc. Postings are
// made by RunScenario at their tick.
func NewFromScenario(cfg WorldConfig, cats *catalogs.Catalogs, logger *log.Logger, sc *scenario.Scenario) (*World, error) {
	cfg.Seed = sc.Seed
	if cfg.ID == "" {
		cfg.ID = sc.Name
	}
	w, err := New(cfg, cats, logger)
	if err != nil {
		return nil, err
	}
	for _, rs := range sc.Regions {
		width, height, cells, err := rs.Terrain(cats.Terrain)
		if err != nil {
			return nil, err
		}
		r := NewRegion(rs.ID, width, height)
		copy(r.Terrain, cells)
		for _, c := range rs.Fog {
			r.SetFog(cellOf(c), true)
		}
		for _, c := range rs.Fire {
			r.SetFire(cellOf(c), true)
		}
		if err := w.AddRegion(r); err != nil {
			return nil, err
		}
	}
	for _, is := range sc.Items {
		if _, err := w.SpawnItem(ItemSpec{
			ID:       is.ID,
			Def:      is.Def,
			Stuff:    is.Stuff,
			InnerDef: is.InnerDef,
			Count:    is.Count,
			Region:   is.Region,
			Pos:      cellOf(is.Pos),
		}); err != nil {
			return nil, err
		}
	}
	for _, ws := range sc.Workers {
		spec := WorkerSpec{ID: ws.ID, Faction: ws.Faction, Region: ws.Region, Pos: cellOf(ws.Pos)}
		if a := ws.Allowed; a != nil {
			spec.AllowedArea = &model.Rect{MinX: a[0], MinZ: a[1], MaxX: a[2], MaxZ: a[3]}
		}
		if err := w.AddWorker(spec); err != nil {
			return nil, err
		}
	}
	return w, nil
}

type ScenarioResult struct {
	Ticks    int
	Digest   string
	Postings map[string]int
	// Statuses holds the last published status of every posting, including
	// postings garbage collected before the run ended.
	Statuses   map[string]haul.Status
	Mismatches []string
}

// RunScenario steps w for ticks ticks (sc.Expect.Ticks when ticks <= 0),
// posting sc's postings on their tick, and compares the final statuses with
// sc.Expect.
func RunScenario(w *World, sc *scenario.Scenario, ticks int) (ScenarioResult, error) {
	if ticks <= 0 {
		ticks = sc.Expect.Ticks
	}
	res := ScenarioResult{Postings: map[string]int{}, Statuses: map[string]haul.Status{}}
	updates, unsubscribe := w.Subscribe(4096)
	defer unsubscribe()

	last := map[int]haul.Status{}
	drain := func() {
		for {
			select {
			case st := <-updates:
				last[st.PostingID] = st.Status
			default:
				return
			}
		}
	}

	start := w.CurrentTick()
	for i := 0; i < ticks; i++ {
		now := w.CurrentTick()
		for _, ps := range sc.Postings {
			if ps.AtTick != now-start {
				continue
			}
			cursor := model.Point{X: ps.Cursor[0], Z: ps.Cursor[1]}
			id, err := w.Post(ps.Region, ps.Items, cursor, ps.Quantities)
			if err != nil {
				return res, fmt.Errorf("posting %s: %w", ps.Name, err)
			}
			res.Postings[ps.Name] = id
		}
		_, res.Digest = w.StepOnce(nil)
		drain()
		res.Ticks++
	}

	for name, id := range res.Postings {
		if st, ok := last[id]; ok {
			res.Statuses[name] = st
		} else if p := w.haul.Posting(id); p != nil {
			res.Statuses[name] = w.haul.Status(p)
		}
	}
	names := make([]string, 0, len(sc.Expect.Statuses))
	for name := range sc.Expect.Statuses {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		want := sc.Expect.Statuses[name]
		got, ok := res.Statuses[name]
		switch {
		case !ok:
			res.Mismatches = append(res.Mismatches, fmt.Sprintf("%s: never posted, want %s", name, want))
		case got.String() != want:
			res.Mismatches = append(res.Mismatches, fmt.Sprintf("%s: status %s, want %s", name, got, want))
		}
	}
	return res, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

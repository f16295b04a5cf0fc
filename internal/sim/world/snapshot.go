package world

import (
	"fmt"
	"log"
	"slices"
	"sort"

	"haulplan.ai/internal/persistence/snapshot"
	"haulplan.ai/internal/sim/catalogs"
	"haulplan.ai/internal/sim/model"
)

func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		Seed:         w.cfg.Seed,
		TickRate:     w.tune.TickRateHz,
		Faction:      w.tune.Faction,
		NoZoneBorder: w.tune.Search.NoZoneBorder,
		Haul:         w.haul.Export(),
		Counters:     snapshot.CountersV1{NextItem: w.nextItemNum.Load()},
	}
	for _, id := range w.RegionIDs() {
		r := w.regions[id]
		s.Regions = append(s.Regions, snapshot.RegionV1{
			ID:      r.ID,
			Width:   r.Width,
			Height:  r.Height,
			Terrain: slices.Clone(r.Terrain),
			Fog:     slices.Clone(r.Fog),
			Fire:    slices.Clone(r.Fire),
		})
	}
	for _, it := range w.sortedItems() {
		s.Items = append(s.Items, snapshot.ItemV1{
			ID:         it.ID,
			Def:        it.Def,
			Stuff:      it.Stuff,
			InnerDef:   it.InnerDef,
			Count:      it.Count,
			StackLimit: it.StackLimit,
			Region:     it.Region,
			Pos:        [2]int{it.Pos.X, it.Pos.Z},
			Holder:     it.Holder,
			Forbidden:  it.Forbidden,
			Designated: it.Designated,
		})
	}
	for _, wk := range w.sortedWorkers() {
		wv := snapshot.WorkerV1{
			ID:      wk.ID,
			Faction: wk.Faction,
			Region:  wk.Region,
			Pos:     [2]int{wk.Pos.X, wk.Pos.Z},
		}
		if a := wk.AllowedArea; a != nil {
			wv.AllowedArea = &[4]int{a.MinX, a.MinZ, a.MaxX, a.MaxZ}
		}
		if wk.Job != nil {
			j := exportJob(wk.Job)
			wv.Job = &j
		}
		for _, q := range wk.Queue {
			wv.Queue = append(wv.Queue, exportJob(q))
		}
		s.Workers = append(s.Workers, wv)
	}
	keys := make([]regionCell, 0, len(w.reservations))
	for k := range w.reservations {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.Cell.Z != b.Cell.Z {
			return a.Cell.Z < b.Cell.Z
		}
		return a.Cell.X < b.Cell.X
	})
	for _, k := range keys {
		s.Reservations = append(s.Reservations, snapshot.ReservationV1{
			Region: k.Region,
			Pos:    [2]int{k.Cell.X, k.Cell.Z},
			Worker: w.reservations[k],
		})
	}
	return s
}

func exportJob(j *HaulJob) snapshot.JobV1 {
	out := snapshot.JobV1{
		PostingID: j.PostingID,
		ItemID:    j.ItemID,
		Def:       j.Sig.Def,
		Stuff:     j.Sig.Stuff,
		InnerDef:  j.Sig.InnerDef,
		Count:     j.Count,
		Phase:     uint8(j.Phase),
		Carried:   j.Carried,
		Wait:      j.Wait,
	}
	for _, c := range j.Targets {
		out.Targets = append(out.Targets, [2]int{c.X, c.Z})
	}
	return out
}

func importJob(j snapshot.JobV1) *HaulJob {
	out := &HaulJob{
		PostingID: j.PostingID,
		ItemID:    j.ItemID,
		Sig:       model.Signature{Def: j.Def, Stuff: j.Stuff, InnerDef: j.InnerDef},
		Count:     j.Count,
		Phase:     JobPhase(j.Phase),
		Carried:   j.Carried,
		Wait:      j.Wait,
	}
	for _, t := range j.Targets {
		out.Targets = append(out.Targets, cellOf(t))
	}
	return out
}

// NewFromSnapshot rebuilds a world from a save. The snapshot's seed, tick rate,
// faction and border override cfg; the rest of cfg.Tuning applies as given.
func NewFromSnapshot(cfg WorldConfig, cats *catalogs.Catalogs, logger *log.Logger, s snapshot.SnapshotV1) (*World, error) {
	if s.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Header.Version)
	}
	cfg.Seed = s.Seed
	if cfg.ID == "" {
		cfg.ID = s.Header.WorldID
	}
	if s.TickRate > 0 {
		cfg.Tuning.TickRateHz = s.TickRate
	}
	if s.Faction != "" {
		cfg.Tuning.Faction = s.Faction
	}
	cfg.Tuning.Search.NoZoneBorder = s.NoZoneBorder
	w, err := New(cfg, cats, logger)
	if err != nil {
		return nil, err
	}
	for _, rv := range s.Regions {
		for i, t := range rv.Terrain {
			if int(t) >= len(cats.Terrain.Defs) {
				return nil, fmt.Errorf("region %d cell %d: unknown terrain id %d", rv.ID, i, t)
			}
		}
		r := &Region{ID: rv.ID, Width: rv.Width, Height: rv.Height, Terrain: slices.Clone(rv.Terrain), Fog: rv.Fog, Fire: rv.Fire}
		n := rv.Width * rv.Height
		if r.Fog == nil {
			r.Fog = make([]bool, n)
		}
		if r.Fire == nil {
			r.Fire = make([]bool, n)
		}
		if err := w.AddRegion(r); err != nil {
			return nil, err
		}
	}
	for _, iv := range s.Items {
		if _, ok := w.regions[iv.Region]; !ok {
			return nil, fmt.Errorf("item %s: unknown region %d", iv.ID, iv.Region)
		}
		it := &ItemEntity{
			ID:         iv.ID,
			Def:        iv.Def,
			Stuff:      iv.Stuff,
			InnerDef:   iv.InnerDef,
			Count:      iv.Count,
			StackLimit: iv.StackLimit,
			Region:     iv.Region,
			Pos:        cellOf(iv.Pos),
			Holder:     iv.Holder,
			Forbidden:  iv.Forbidden,
			Designated: iv.Designated,
		}
		w.items[it.ID] = it
		if it.Holder == "" {
			w.placeItem(it, it.Pos)
		}
	}
	for _, wv := range s.Workers {
		if _, ok := w.regions[wv.Region]; !ok {
			return nil, fmt.Errorf("worker %s: unknown region %d", wv.ID, wv.Region)
		}
		wk := &WorkerState{ID: wv.ID, Faction: wv.Faction, Region: wv.Region, Pos: cellOf(wv.Pos)}
		if a := wv.AllowedArea; a != nil {
			wk.AllowedArea = &model.Rect{MinX: a[0], MinZ: a[1], MaxX: a[2], MaxZ: a[3]}
		}
		if wv.Job != nil {
			wk.Job = importJob(*wv.Job)
		}
		for _, q := range wv.Queue {
			wk.Queue = append(wk.Queue, importJob(q))
		}
		for _, j := range append([]*HaulJob{wk.Job}, wk.Queue...) {
			if j != nil && j.Carried == "" {
				w.itemClaims[j.ItemID] = wk.ID
			}
		}
		w.workers[wk.ID] = wk
	}
	for _, rv := range s.Reservations {
		w.reservations[regionCell{rv.Region, cellOf(rv.Pos)}] = rv.Worker
	}
	if err := w.haul.Import(s.Haul); err != nil {
		return nil, err
	}
	w.nextItemNum.Store(s.Counters.NextItem)
	w.tick.Store(s.Header.Tick + 1)
	return w, nil
}

package world

import (
	"fmt"
	"sort"

	"haulplan.ai/internal/haul"
	"haulplan.ai/internal/sim/catalogs"
	"haulplan.ai/internal/sim/model"
)

type regionCell struct {
	Region int
	Cell   model.Cell
}

// Region is one rectangular map. Cells are indexed z*Width+x.
type Region struct {
	ID      int
	Width   int
	Height  int
	Terrain []uint8
	Fog     []bool
	Fire    []bool
}

func NewRegion(id, width, height int) *Region {
	n := width * height
	return &Region{
		ID:      id,
		Width:   width,
		Height:  height,
		Terrain: make([]uint8, n),
		Fog:     make([]bool, n),
		Fire:    make([]bool, n),
	}
}

func (r *Region) InBounds(c model.Cell) bool {
	return c.X >= 0 && c.Z >= 0 && c.X < r.Width && c.Z < r.Height
}

func (r *Region) index(c model.Cell) int { return c.Z*r.Width + c.X }

// InBorder reports whether c lies within border cells of the map edge.
func (r *Region) InBorder(c model.Cell, border int) bool {
	return c.X < border || c.Z < border || c.X >= r.Width-border || c.Z >= r.Height-border
}

func (r *Region) SetTerrain(c model.Cell, id uint8) {
	if r.InBounds(c) {
		r.Terrain[r.index(c)] = id
	}
}

func (r *Region) SetFog(c model.Cell, on bool) {
	if r.InBounds(c) {
		r.Fog[r.index(c)] = on
	}
}

func (r *Region) SetFire(c model.Cell, on bool) {
	if r.InBounds(c) {
		r.Fire[r.index(c)] = on
	}
}

func (w *World) AddRegion(r *Region) error {
	if _, dup := w.regions[r.ID]; dup {
		return fmt.Errorf("region %d already exists", r.ID)
	}
	if len(r.Terrain) != r.Width*r.Height || len(r.Fog) != len(r.Terrain) || len(r.Fire) != len(r.Terrain) {
		return fmt.Errorf("region %d: cell arrays do not match %dx%d", r.ID, r.Width, r.Height)
	}
	w.regions[r.ID] = r
	return nil
}

// RemoveRegion drops a region with everything on it. Its haul registry is
// forgotten on the next garbage collection.
func (w *World) RemoveRegion(id int) {
	if _, ok := w.regions[id]; !ok {
		return
	}
	for _, wk := range w.sortedWorkers() {
		if wk.Region == id {
			w.endJob(wk, "region removed")
			delete(w.workers, wk.ID)
		}
	}
	for _, it := range w.sortedItems() {
		if it.Region == id {
			w.destroyItem(it.ID)
		}
	}
	delete(w.regions, id)
}

func (w *World) Region(id int) (*Region, bool) {
	r, ok := w.regions[id]
	return r, ok
}

func (w *World) RegionIDs() []int {
	ids := make([]int, 0, len(w.regions))
	for id := range w.regions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (w *World) terrainAt(r *Region, c model.Cell) catalogs.TerrainDef {
	return w.catalogs.Terrain.Def(r.Terrain[r.index(c)])
}

// passable is what pathing may cross. Doors are passable.
func (w *World) passable(r *Region, c model.Cell) bool {
	return r.InBounds(c) && w.terrainAt(r, c).Passable
}

// regionSet exposes the world's regions to the haul service.
type regionSet struct{ w *World }

func (s regionSet) Region(id int) (haul.World, bool) {
	r, ok := s.w.regions[id]
	if !ok {
		return nil, false
	}
	return view{w: s.w, r: r}, true
}

func (s regionSet) RegionIDs() []int { return s.w.RegionIDs() }

// view answers the haul engine's questions about one region.
type view struct {
	w *World
	r *Region
}

var _ haul.World = view{}

func (v view) RegionID() int   { return v.r.ID }
func (v view) Faction() string { return v.w.tune.Faction }

func (v view) PossibleDestination(c model.Cell) bool {
	r := v.r
	if !r.InBounds(c) || r.Fog[r.index(c)] || r.Fire[r.index(c)] {
		return false
	}
	if r.InBorder(c, v.w.tune.Search.NoZoneBorder) {
		return false
	}
	t := v.w.terrainAt(r, c)
	return t.Passable && !t.Blocking
}

// ItemsIfValidSpot applies every PossibleDestination check and also needs
// terrain that holds items.
func (v view) ItemsIfValidSpot(c model.Cell) ([]model.Item, bool) {
	r := v.r
	if !v.PossibleDestination(c) || !v.w.terrainAt(r, c).HoldsItems {
		return nil, false
	}
	var out []model.Item
	for _, id := range v.w.ground[regionCell{r.ID, c}] {
		it := v.w.items[id]
		if d, ok := v.w.catalogs.Items.Def(it.Def); ok && d.Storable {
			out = append(out, it.View())
		}
	}
	return out, true
}

func (v view) ReservedByFaction(c model.Cell, faction string) bool {
	holder, ok := v.w.reservations[regionCell{v.r.ID, c}]
	if !ok {
		return false
	}
	wk, ok := v.w.workers[holder]
	return ok && wk.Faction == faction
}

// RespectedReserver also names the asking worker: its reservations all belong
// to its current or queued jobs.
func (v view) RespectedReserver(c model.Cell, worker string) (string, bool) {
	holder, ok := v.w.reservations[regionCell{v.r.ID, c}]
	if !ok {
		return "", false
	}
	return holder, true
}

func (v view) CanReach(worker string, from, to model.Cell) bool {
	return v.w.reach.field(v.w, v.r, to).reaches(from)
}

func (v view) Worker(id string) (model.Worker, bool) {
	wk, ok := v.w.workers[id]
	if !ok {
		return model.Worker{}, false
	}
	return wk.View(), true
}

func (v view) FactionWorkers(faction string) []model.Worker {
	var out []model.Worker
	for _, wk := range v.w.sortedWorkers() {
		if wk.Faction == faction && wk.Region == v.r.ID {
			out = append(out, wk.View())
		}
	}
	return out
}

func (v view) CurrentDelivery(worker string) (model.Delivery, bool) {
	wk, ok := v.w.workers[worker]
	if !ok || wk.Job == nil {
		return model.Delivery{}, false
	}
	return wk.Job.delivery(), true
}

func (v view) QueuedDeliveries(worker string) []model.Delivery {
	wk, ok := v.w.workers[worker]
	if !ok {
		return nil
	}
	out := make([]model.Delivery, 0, len(wk.Queue))
	for _, j := range wk.Queue {
		out = append(out, j.delivery())
	}
	return out
}

func (v view) Forbidden(worker string, c model.Cell) bool {
	wk, ok := v.w.workers[worker]
	if !ok {
		return true
	}
	return wk.AllowedArea != nil && !wk.AllowedArea.Contains(c)
}

func (v view) Item(id string) (model.Item, bool) {
	it, ok := v.w.items[id]
	if !ok || it.Region != v.r.ID {
		return model.Item{}, false
	}
	return it.View(), true
}

// AsHaulable accepts item ids and item views of this region whose def may
// ever be hauled.
func (v view) AsHaulable(obj any) (model.Item, bool) {
	var id string
	switch o := obj.(type) {
	case string:
		id = o
	case model.Item:
		id = o.ID
	case *ItemEntity:
		id = o.ID
	default:
		return model.Item{}, false
	}
	it, ok := v.w.items[id]
	if !ok || it.Region != v.r.ID {
		return model.Item{}, false
	}
	d, ok := v.w.catalogs.Items.Def(it.Def)
	if !ok || !d.Haulable {
		return model.Item{}, false
	}
	return it.View(), true
}

func (v view) ReleaseToPosting(it model.Item) {
	if e, ok := v.w.items[it.ID]; ok {
		e.Forbidden = false
		e.Designated = false
	}
}

func (v view) EndJobsCarrying(itemID string) { v.w.endJobs[itemID] = true }

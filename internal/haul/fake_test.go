package haul

import (
	"bytes"
	"log"
	"sort"

	"haulplan.ai/internal/sim/model"
)

type fakeWorld struct {
	region  int
	faction string
	width   int
	height  int

	blocked     map[model.Cell]bool
	unreachable map[model.Cell]bool
	forbidden   map[model.Cell]bool
	reserved    map[model.Cell]string

	items    map[string]*model.Item
	workers  map[string]model.Worker
	current  map[string]model.Delivery
	queued   map[string][]model.Delivery
	released []string
	ended    []string
}

func newFakeWorld(width, height int) *fakeWorld {
	return &fakeWorld{
		faction:     "colony",
		width:       width,
		height:      height,
		blocked:     map[model.Cell]bool{},
		unreachable: map[model.Cell]bool{},
		forbidden:   map[model.Cell]bool{},
		reserved:    map[model.Cell]string{},
		items:       map[string]*model.Item{},
		workers:     map[string]model.Worker{},
		current:     map[string]model.Delivery{},
		queued:      map[string][]model.Delivery{},
	}
}

func (f *fakeWorld) addItem(id, def string, count, limit, x, z int) model.Item {
	it := &model.Item{ID: id, Def: def, Count: count, StackLimit: limit, Pos: model.Cell{X: x, Z: z}}
	f.items[id] = it
	return *it
}

func (f *fakeWorld) addWorker(id string, x, z int) {
	f.workers[id] = model.Worker{ID: id, Faction: f.faction, Pos: model.Cell{X: x, Z: z}}
}

func (f *fakeWorld) item(id string) model.Item { return *f.items[id] }

func (f *fakeWorld) inBounds(c model.Cell) bool {
	return c.X >= 0 && c.Z >= 0 && c.X < f.width && c.Z < f.height
}

func (f *fakeWorld) PossibleDestination(c model.Cell) bool {
	return f.inBounds(c) && !f.blocked[c]
}

func (f *fakeWorld) ItemsIfValidSpot(c model.Cell) ([]model.Item, bool) {
	if !f.PossibleDestination(c) {
		return nil, false
	}
	var out []model.Item
	for _, it := range f.items {
		if it.Spawned() && it.Pos == c {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, true
}

func (f *fakeWorld) ReservedByFaction(c model.Cell, faction string) bool {
	holder, ok := f.reserved[c]
	if !ok {
		return false
	}
	return f.workers[holder].Faction == faction
}

func (f *fakeWorld) RespectedReserver(c model.Cell, worker string) (string, bool) {
	holder, ok := f.reserved[c]
	if !ok || holder == worker {
		return "", false
	}
	return holder, true
}

func (f *fakeWorld) CanReach(worker string, from, to model.Cell) bool { return !f.unreachable[to] }

func (f *fakeWorld) Worker(id string) (model.Worker, bool) {
	w, ok := f.workers[id]
	return w, ok
}

func (f *fakeWorld) FactionWorkers(faction string) []model.Worker {
	var out []model.Worker
	for _, w := range f.workers {
		if w.Faction == faction {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeWorld) CurrentDelivery(worker string) (model.Delivery, bool) {
	d, ok := f.current[worker]
	return d, ok
}

func (f *fakeWorld) QueuedDeliveries(worker string) []model.Delivery { return f.queued[worker] }

func (f *fakeWorld) Forbidden(worker string, c model.Cell) bool { return f.forbidden[c] }

func (f *fakeWorld) Item(id string) (model.Item, bool) {
	it, ok := f.items[id]
	if !ok {
		return model.Item{}, false
	}
	return *it, true
}

// AsHaulable accepts item values and ids of known items; plants never haul.
func (f *fakeWorld) AsHaulable(obj any) (model.Item, bool) {
	switch v := obj.(type) {
	case model.Item:
		return v, v.Def != "plant"
	case string:
		it, ok := f.items[v]
		if !ok || it.Def == "plant" {
			return model.Item{}, false
		}
		return *it, true
	}
	return model.Item{}, false
}

func (f *fakeWorld) ReleaseToPosting(it model.Item) { f.released = append(f.released, it.ID) }
func (f *fakeWorld) EndJobsCarrying(itemID string)  { f.ended = append(f.ended, itemID) }

func (f *fakeWorld) RegionID() int   { return f.region }
func (f *fakeWorld) Faction() string { return f.faction }

type fakeRegions map[int]*fakeWorld

func (r fakeRegions) Region(id int) (World, bool) {
	w, ok := r[id]
	if !ok {
		return nil, false
	}
	return w, true
}

func (r fakeRegions) RegionIDs() []int {
	var out []int
	for id := range r {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

type fixedRand int

func (r fixedRand) IntN(n int) int { return int(r) % n }

type recordingHooks struct {
	NopHooks
	searched  int
	committed []int
	removed   []string
	delivered int
	overkill  int
	dropped   []int
}

func (h *recordingHooks) DestinationSearched(*Posting, bool) { h.searched++ }
func (h *recordingHooks) PostingCommitted(p *Posting)        { h.committed = append(h.committed, p.ID()) }
func (h *recordingHooks) ItemRemoved(_ *Posting, id string, _ bool) {
	h.removed = append(h.removed, id)
}
func (h *recordingHooks) Delivered(_ *Posting, _ *InventoryRecord, n int) { h.delivered += n }
func (h *recordingHooks) Overkill(_ *Posting, _ *InventoryRecord, n int)  { h.overkill += n }
func (h *recordingHooks) PostingRemoved(p *Posting)                       { h.dropped = append(h.dropped, p.ID()) }

func bufLogger() (*log.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return log.New(&buf, "", 0), &buf
}

// twoStacks is the 75 + 40 wood posting on an open 9x9 field, items parked
// in the corner away from the cursor.
func twoStacks(t interface{ Helper() }) (*fakeWorld, *Posting) {
	t.Helper()
	w := newFakeWorld(9, 9)
	a := w.addItem("a", "wood", 75, 100, 0, 0)
	b := w.addItem("b", "wood", 40, 100, 1, 0)
	return w, NewPosting(1, 0, []any{a, b}, w, nil)
}

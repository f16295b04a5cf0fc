package world

import (
	"fmt"
	"slices"

	"haulplan.ai/internal/sim/model"
)

type JobPhase uint8

const (
	PhaseToItem JobPhase = iota
	PhasePickup
	PhaseToTarget
)

func (p JobPhase) String() string {
	switch p {
	case PhaseToItem:
		return "TO_ITEM"
	case PhasePickup:
		return "PICKUP"
	case PhaseToTarget:
		return "TO_TARGET"
	}
	return fmt.Sprintf("PHASE(%d)", uint8(p))
}

// HaulJob carries Count units of ItemID to Targets for a posting. Once the
// units are picked up Carried names the stack in the worker's hands.
type HaulJob struct {
	PostingID int
	ItemID    string
	Sig       model.Signature
	Count     int
	Targets   []model.Cell
	Phase     JobPhase
	Carried   string
	Wait      int
}

func (j *HaulJob) delivery() model.Delivery {
	id := j.ItemID
	if j.Carried != "" {
		id = j.Carried
	}
	return model.Delivery{
		PostingID: j.PostingID,
		ItemID:    id,
		Sig:       j.Sig,
		Count:     j.Count,
		Targets:   slices.Clone(j.Targets),
	}
}

type WorkerState struct {
	ID          string
	Faction     string
	Region      int
	Pos         model.Cell
	AllowedArea *model.Rect

	Job   *HaulJob
	Queue []*HaulJob
}

func (wk *WorkerState) View() model.Worker {
	return model.Worker{ID: wk.ID, Faction: wk.Faction, Pos: wk.Pos, AllowedArea: wk.AllowedArea}
}

type WorkerSpec struct {
	ID          string
	Faction     string
	Region      int
	Pos         model.Cell
	AllowedArea *model.Rect
}

// AddWorker places an idle worker. An empty faction joins the hauling faction.
func (w *World) AddWorker(spec WorkerSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("worker needs an id")
	}
	if _, dup := w.workers[spec.ID]; dup {
		return fmt.Errorf("worker %s already exists", spec.ID)
	}
	r, ok := w.regions[spec.Region]
	if !ok {
		return fmt.Errorf("worker %s: unknown region %d", spec.ID, spec.Region)
	}
	if !w.passable(r, spec.Pos) {
		return fmt.Errorf("worker %s: %s is not passable", spec.ID, spec.Pos)
	}
	faction := spec.Faction
	if faction == "" {
		faction = w.tune.Faction
	}
	w.workers[spec.ID] = &WorkerState{
		ID:          spec.ID,
		Faction:     faction,
		Region:      spec.Region,
		Pos:         spec.Pos,
		AllowedArea: spec.AllowedArea,
	}
	return nil
}

func (w *World) Worker(id string) (WorkerState, bool) {
	wk, ok := w.workers[id]
	if !ok {
		return WorkerState{}, false
	}
	return *wk, true
}

func (w *World) WorkerIDs() []string {
	out := make([]string, 0, len(w.workers))
	for _, wk := range w.sortedWorkers() {
		out = append(out, wk.ID)
	}
	return out
}

func (w *World) reserve(wk *WorkerState, cells []model.Cell) {
	for _, c := range cells {
		w.reservations[regionCell{wk.Region, c}] = wk.ID
	}
}

// release gives up cells the worker no longer needs. A cell that another of
// the worker's jobs still targets stays reserved. Callers take the cells out
// of their job first.
func (w *World) release(wk *WorkerState, cells []model.Cell) {
	for _, c := range cells {
		k := regionCell{wk.Region, c}
		if w.reservations[k] == wk.ID && !wk.targets(c) {
			delete(w.reservations, k)
		}
	}
}

// targets reports whether the current or a queued job still delivers to c.
func (wk *WorkerState) targets(c model.Cell) bool {
	if wk.Job != nil && slices.Contains(wk.Job.Targets, c) {
		return true
	}
	for _, j := range wk.Queue {
		if slices.Contains(j.Targets, c) {
			return true
		}
	}
	return false
}

// dropJob gives back a job's claims without touching what the worker holds.
func (w *World) dropJob(wk *WorkerState, j *HaulJob) {
	cells := j.Targets
	j.Targets = nil
	w.release(wk, cells)
	if w.itemClaims[j.ItemID] == wk.ID {
		delete(w.itemClaims, j.ItemID)
	}
}

// endJob abandons the worker's current job. A carried stack is put down near
// the worker and stays a member of its posting.
func (w *World) endJob(wk *WorkerState, reason string) {
	j := wk.Job
	if j == nil {
		return
	}
	w.dropJob(wk, j)
	if j.Carried != "" {
		if it, ok := w.items[j.Carried]; ok && it.Holder == wk.ID {
			w.putDown(wk, it)
		}
	}
	wk.Job = nil
	if reason != "" {
		w.audit(AuditEntry{Event: "JOB_ENDED", Region: wk.Region, PostingID: j.PostingID, Item: j.ItemID, Worker: wk.ID, Detail: reason})
	}
}

// putDown drops it on the nearest cell that can take it, merging into a
// compatible stack when there is room. Whatever cannot be merged lands on
// the worker's own cell as a last resort.
func (w *World) putDown(wk *WorkerState, it *ItemEntity) {
	r := w.regions[wk.Region]
	v := view{w: w, r: r}
	field := w.reach.field(w, r, wk.Pos)
	best, found := model.Cell{}, false
	bestDist := 0
	for c, d := range field {
		if found && (d > bestDist || (d == bestDist && (c.Z > best.Z || (c.Z == best.Z && c.X > best.X)))) {
			continue
		}
		if _, reserved := w.reservations[regionCell{r.ID, c}]; reserved {
			continue
		}
		items, ok := v.ItemsIfValidSpot(c)
		if !ok {
			continue
		}
		fits := len(items) == 0
		if len(items) == 1 && items[0].Signature() == it.sig() && items[0].SpaceLeft() >= it.Count {
			fits = true
		}
		if fits {
			best, bestDist, found = c, d, true
		}
	}
	if !found {
		best = wk.Pos
	}
	w.unground(it)
	it.Holder = ""
	for _, id := range w.ground[regionCell{r.ID, best}] {
		other := w.items[id]
		if other.sig() == it.sig() && other.Count+it.Count <= other.StackLimit {
			other.Count += it.Count
			w.consumeItem(it)
			return
		}
	}
	w.placeItem(it, best)
}

// consumeItem removes a stack whose units were all merged into another.
func (w *World) consumeItem(it *ItemEntity) {
	if p := w.haul.FindPostingContaining(it.ID); p != nil {
		w.haul.RemoveItem(p, it.View(), false)
	}
	w.unground(it)
	delete(w.items, it.ID)
	delete(w.itemClaims, it.ID)
}

// walk moves the worker up to CellsPerTick cells toward to. It reports false
// when no path exists.
func (w *World) walk(wk *WorkerState, to model.Cell) bool {
	r := w.regions[wk.Region]
	field := w.reach.field(w, r, to)
	for i := 0; i < w.tune.Worker.CellsPerTick && wk.Pos != to; i++ {
		n, ok := field.next(wk.Pos)
		if !ok {
			return false
		}
		wk.Pos = n
	}
	if wk.Job != nil && wk.Job.Carried != "" {
		if it, ok := w.items[wk.Job.Carried]; ok {
			it.Pos = wk.Pos
		}
	}
	return true
}

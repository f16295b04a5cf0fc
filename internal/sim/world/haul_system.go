package world

import (
	"haulplan.ai/internal/haul"
	"haulplan.ai/internal/sim/model"
)

// systemHaul runs every worker once per tick in id order: drop stale queued
// jobs, end cancelled ones, plan when idle, advance the current job and top up
// the queue.
func (w *World) systemHaul(nowTick uint64) {
	active := 0
	for _, wk := range w.sortedWorkers() {
		w.pruneQueue(wk)
		if wk.Job != nil && w.jobCancelled(wk.Job) {
			w.endJob(wk, "cancelled")
		}
		if wk.Job == nil && len(wk.Queue) > 0 {
			wk.Job, wk.Queue = wk.Queue[0], wk.Queue[1:]
		}
		if wk.Job == nil {
			wk.Job = w.planJob(wk)
		}
		if wk.Job != nil {
			w.stepJob(wk)
		}
		if wk.Job != nil && len(wk.Queue) < w.tune.Worker.MaxQueued {
			if j := w.planJob(wk); j != nil {
				wk.Queue = append(wk.Queue, j)
			}
		}
		if wk.Job != nil {
			active++
		}
	}
	clear(w.endJobs)
	if w.metrics != nil {
		w.metrics.ActiveJobs.Set(float64(active))
	}
}

func (w *World) jobCancelled(j *HaulJob) bool {
	p := w.haul.Posting(j.PostingID)
	if p == nil {
		return true
	}
	src := j.ItemID
	if j.Carried != "" {
		src = j.Carried
	}
	return w.endJobs[src] || !p.HasItem(src)
}

func (w *World) pruneQueue(wk *WorkerState) {
	kept := wk.Queue[:0]
	for _, j := range wk.Queue {
		it, ok := w.items[j.ItemID]
		if w.jobCancelled(j) || !ok || it.Holder != "" {
			w.dropJob(wk, j)
			continue
		}
		kept = append(kept, j)
	}
	wk.Queue = kept
}

// queuedFor sums the units already promised by queued jobs. Queued jobs do not
// count as in transit, so planning subtracts them itself.
func (w *World) queuedFor(postingID int, sig model.Signature) int {
	n := 0
	for _, wk := range w.workers {
		for _, j := range wk.Queue {
			if j.PostingID == postingID && j.Sig == sig {
				n += j.Count
			}
		}
	}
	return n
}

func (w *World) regionPostings(region int) []*haul.Posting {
	for _, r := range w.haul.Registries() {
		if r.RegionID() == region {
			return r.Postings()
		}
	}
	return nil
}

// planJob picks the first unclaimed posting item the worker can reach and
// reserves room for it. Postings are tried oldest first.
func (w *World) planJob(wk *WorkerState) *HaulJob {
	r, ok := w.regions[wk.Region]
	if !ok {
		return nil
	}
	v := view{w: w, r: r}
	for _, p := range w.regionPostings(wk.Region) {
		if p.Destinations() == nil || w.haul.Status(p).Terminal() {
			continue
		}
		for _, rec := range p.Inventory() {
			left := rec.RemainingToDeliver(v, v.Faction()) - w.queuedFor(p.ID(), rec.Signature())
			if left <= 0 {
				continue
			}
			for _, id := range rec.Items() {
				if j := w.planItem(wk, v, p, id, left); j != nil {
					return j
				}
			}
		}
	}
	return nil
}

func (w *World) planItem(wk *WorkerState, v view, p *haul.Posting, id string, left int) *HaulJob {
	it, ok := w.items[id]
	if !ok || it.Holder != "" || it.Forbidden || it.Region != wk.Region {
		return nil
	}
	if _, claimed := w.itemClaims[id]; claimed {
		return nil
	}
	if v.Forbidden(wk.ID, it.Pos) || !w.reach.field(w, v.r, it.Pos).reaches(wk.Pos) {
		return nil
	}
	al, err := w.haul.AllocateDestinations(it.View(), wk.ID, p, nil)
	if err != nil {
		w.log.Printf("ERROR worker %s posting %d: %v", wk.ID, p.ID(), err)
		return nil
	}
	count := min(it.Count, left)
	cells, err := al.RequestCapacity(count)
	if err != nil {
		w.log.Printf("ERROR worker %s posting %d: %v", wk.ID, p.ID(), err)
		return nil
	}
	if len(cells) == 0 {
		return nil
	}
	if space, err := al.FreeSpaceInCells(cells); err == nil && space < count {
		count = space
	}
	if count <= 0 {
		return nil
	}
	j := &HaulJob{
		PostingID: p.ID(),
		ItemID:    id,
		Sig:       it.sig(),
		Count:     count,
		Targets:   cells,
	}
	w.reserve(wk, cells)
	w.itemClaims[id] = wk.ID
	w.audit(AuditEntry{Event: "JOB_PLANNED", Region: wk.Region, PostingID: p.ID(), Item: id, Worker: wk.ID, Count: count})
	return j
}

func (w *World) stepJob(wk *WorkerState) {
	j := wk.Job
	p := w.haul.Posting(j.PostingID)
	switch j.Phase {
	case PhaseToItem:
		it, ok := w.items[j.ItemID]
		if !ok || it.Holder != "" {
			w.endJob(wk, "item gone")
			return
		}
		if wk.Pos != it.Pos {
			if !w.walk(wk, it.Pos) {
				w.endJob(wk, "item unreachable")
				return
			}
			if wk.Pos != it.Pos {
				return
			}
		}
		j.Phase = PhasePickup
		j.Wait = w.tune.Worker.PickupTicks
		if j.Wait == 0 {
			w.pickUp(wk, p)
		}
	case PhasePickup:
		if j.Wait > 0 {
			j.Wait--
			return
		}
		w.pickUp(wk, p)
	case PhaseToTarget:
		w.deliver(wk, p)
	}
}

func (w *World) pickUp(wk *WorkerState, p *haul.Posting) {
	j := wk.Job
	it, ok := w.items[j.ItemID]
	if !ok || it.Holder != "" || it.Pos != wk.Pos {
		w.endJob(wk, "item gone")
		return
	}
	delete(w.itemClaims, it.ID)
	carried := it
	if it.Count > j.Count {
		carried = w.splitItem(it, j.Count, wk.ID)
		if !w.haul.AddSplinter(p, carried.View()) {
			w.log.Printf("ERROR posting %d: splinter %s of %s not added", p.ID(), carried.ID, it.ID)
		}
	} else {
		w.liftItem(it, wk.ID)
		j.Count = it.Count
	}
	j.Carried = carried.ID
	j.Phase = PhaseToTarget
	w.audit(AuditEntry{Event: "PICKED_UP", Region: wk.Region, PostingID: p.ID(), Item: carried.ID, Worker: wk.ID, Count: carried.Count})
}

func (w *World) deliver(wk *WorkerState, p *haul.Posting) {
	j := wk.Job
	it, ok := w.items[j.Carried]
	if !ok || it.Holder != wk.ID {
		w.endJob(wk, "carried item lost")
		return
	}
	if len(j.Targets) == 0 {
		w.retarget(wk, p, it)
		return
	}
	target := j.Targets[0]
	if wk.Pos != target {
		if !w.walk(wk, target) {
			j.Targets = j.Targets[1:]
			w.release(wk, []model.Cell{target})
			return
		}
		if wk.Pos != target {
			return
		}
	}

	n := w.dropAt(wk, it, target)
	j.Targets = j.Targets[1:]
	w.release(wk, []model.Cell{target})
	if n > 0 {
		w.haul.RecordDelivery(p, j.Sig, n)
		w.audit(AuditEntry{Event: "DELIVERED", Region: wk.Region, PostingID: p.ID(), Item: it.ID, Worker: wk.ID, Count: n, Detail: target.String()})
	}
	if cur, ok := w.items[it.ID]; !ok || cur.Holder != wk.ID {
		wk.Job = nil
		w.dropJob(wk, j)
		return
	}
	j.Count = it.Count
	if len(j.Targets) == 0 {
		w.retarget(wk, p, it)
	}
}

// dropAt puts as much of it on c as fits and returns the units moved.
func (w *World) dropAt(wk *WorkerState, it *ItemEntity, c model.Cell) int {
	v := view{w: w, r: w.regions[wk.Region]}
	items, ok := v.ItemsIfValidSpot(c)
	if !ok {
		return 0
	}
	switch {
	case len(items) == 0:
		n := it.Count
		w.placeItem(it, c)
		if p := w.haul.FindPostingContaining(it.ID); p != nil {
			w.haul.RemoveItem(p, it.View(), false)
		}
		return n
	case len(items) == 1 && items[0].Signature() == it.sig():
		other := w.items[items[0].ID]
		n := min(other.StackLimit-other.Count, it.Count)
		if n <= 0 {
			return 0
		}
		other.Count += n
		it.Count -= n
		if it.Count == 0 {
			w.consumeItem(it)
		}
		return n
	}
	return 0
}

// retarget asks for fresh room for what the worker still carries. With none
// left the stack is put down and the job ends.
func (w *World) retarget(wk *WorkerState, p *haul.Posting, it *ItemEntity) {
	var cells []model.Cell
	al, err := w.haul.AllocateDestinations(it.View(), wk.ID, p, nil)
	if err == nil {
		cells, err = al.RequestCapacity(it.Count)
	}
	if err != nil {
		w.log.Printf("ERROR worker %s posting %d: %v", wk.ID, p.ID(), err)
	}
	if len(cells) == 0 {
		w.endJob(wk, "no room left")
		return
	}
	w.reserve(wk, cells)
	wk.Job.Targets = cells
}

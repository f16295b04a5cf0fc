package haul

import (
	"fmt"
	"slices"
	"sort"

	"haulplan.ai/internal/sim/model"
)

// Grader scores a free destination cell; higher is better.
type Grader func(model.Cell) float64

// DefaultGrader has no preference.
func DefaultGrader(model.Cell) float64 { return 0 }

// Rand picks the anchor cell capacity requests grow from.
type Rand interface {
	IntN(n int) int
}

// Allocator is a one-shot view of a posting's destinations from the point of
// view of one worker about to carry one item. Build a fresh one per decision.
type Allocator struct {
	world   World
	posting *Posting
	record  *InventoryRecord
	item    model.Item
	worker  string
	grader  Grader
	rng     Rand

	free         []model.Cell
	partial      []model.Cell
	partialSpace map[model.Cell]int
	sameType     int
}

// NewAllocator filters p's destinations down to the cells worker can use for
// it right now and splits them into free and partially filled cells.
func NewAllocator(w World, it model.Item, worker string, p *Posting, grader Grader, rng Rand) (*Allocator, error) {
	rec := p.RecordWithItem(it.ID)
	if rec == nil {
		return nil, precondition("allocate", fmt.Errorf("%w: %s in posting %d", ErrItemNotInPosting, it.ID, p.id))
	}
	if grader == nil {
		grader = DefaultGrader
	}
	a := &Allocator{
		world:        w,
		posting:      p,
		record:       rec,
		item:         it,
		worker:       worker,
		grader:       grader,
		rng:          rng,
		partialSpace: map[model.Cell]int{},
	}

	origin := it.Pos
	if !it.Spawned() {
		if carrier, ok := w.Worker(it.Holder); ok {
			origin = carrier.Pos
		}
	}

	for _, cell := range p.destinations {
		items, valid := w.ItemsIfValidSpot(cell)

		// The cell counts as holding our stack type when a compatible item lies
		// there or the worker holding the cell is bringing one.
		sameType := false
		if valid {
			for _, i := range items {
				if rec.CanMixWith(i) {
					sameType = true
					break
				}
			}
		}
		claimant, claimed := w.RespectedReserver(cell, worker)
		if claimed && !sameType {
			sameType = bringsSignature(w, claimant, cell, rec.sig)
		}
		if sameType {
			a.sameType++
		}

		if !valid || claimed || w.Forbidden(worker, cell) {
			continue
		}
		if !w.CanReach(worker, origin, cell) {
			continue
		}
		switch {
		case len(items) == 0:
			a.free = append(a.free, cell)
		case len(items) == 1 && sameType:
			if space := items[0].SpaceLeft(); space > 0 {
				a.partial = append(a.partial, cell)
				a.partialSpace[cell] = space
			}
		}
	}
	return a, nil
}

func bringsSignature(w Workforce, claimant string, cell model.Cell, sig model.Signature) bool {
	jobs := w.QueuedDeliveries(claimant)
	if cur, ok := w.CurrentDelivery(claimant); ok {
		jobs = append(jobs, cur)
	}
	for _, d := range jobs {
		if d.Sig == sig && d.HasTarget(cell) {
			return true
		}
	}
	return false
}

func (a *Allocator) Record() *InventoryRecord { return a.record }
func (a *Allocator) FreeCells() []model.Cell  { return slices.Clone(a.free) }
func (a *Allocator) PartialCells() []model.Cell {
	return slices.Clone(a.partial)
}

// PartialSpace is the residual room of a partially filled cell.
func (a *Allocator) PartialSpace(c model.Cell) (int, bool) {
	n, ok := a.partialSpace[c]
	return n, ok
}

// UsableDestinations returns every partial cell plus the best free cells still
// needed to reach the record's stack requirement.
func (a *Allocator) UsableDestinations() []model.Cell {
	want := a.record.StacksRequired() - a.sameType
	if want < 0 {
		want = 0
	}
	if want > len(a.free) {
		want = len(a.free)
	}
	free := slices.Clone(a.free)
	sort.SliceStable(free, func(i, j int) bool { return a.grader(free[i]) > a.grader(free[j]) })

	out := slices.Clone(a.partial)
	return append(out, free[:want]...)
}

// RequestCapacity returns the shortest run of usable cells, ordered by
// distance from a random usable anchor, whose combined room covers amount.
// The last cell may bring more room than needed.
func (a *Allocator) RequestCapacity(amount int) ([]model.Cell, error) {
	usable := a.UsableDestinations()
	if len(usable) == 0 {
		return nil, nil
	}
	for _, c := range usable {
		if !a.posting.HasDestination(c) {
			return nil, precondition("request capacity", fmt.Errorf("%w: %s left posting %d", ErrUnknownCell, c, a.posting.id))
		}
	}
	anchor := usable[0]
	if a.rng != nil && len(usable) > 1 {
		anchor = usable[a.rng.IntN(len(usable))]
	}
	ordered := slices.Clone(usable)
	sort.SliceStable(ordered, func(i, j int) bool {
		return anchor.Manhattan(ordered[i]) < anchor.Manhattan(ordered[j])
	})

	space := 0
	n := 0
	for n < len(ordered) && space < amount {
		if room, ok := a.partialSpace[ordered[n]]; ok {
			space += room
		} else {
			space += a.item.StackLimit
		}
		n++
	}
	return ordered[:n], nil
}

// FreeSpaceInCells sums the live room left in cells. Every cell must belong to
// this allocator's free or partial set.
func (a *Allocator) FreeSpaceInCells(cells []model.Cell) (int, error) {
	space := 0
	for _, c := range cells {
		if _, partial := a.partialSpace[c]; !partial && !slices.Contains(a.free, c) {
			return 0, precondition("free space", fmt.Errorf("%w: %s", ErrUnknownCell, c))
		}
		items, ok := a.world.ItemsIfValidSpot(c)
		if !ok {
			continue
		}
		if len(items) == 0 {
			space += a.item.StackLimit
			continue
		}
		for _, i := range items {
			if a.record.CanMixWith(i) {
				space += i.SpaceLeft()
				break
			}
		}
	}
	return space, nil
}

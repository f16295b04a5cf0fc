package haul

import (
	"container/heap"
	"iter"
	"math"

	"haulplan.ai/internal/sim/model"
)

type candidate struct {
	cell model.Cell
	dist float64
}

// frontier is a min-heap on distance to the cursor. Exact ties break on the
// lower Z, then the lower X.
type frontier []candidate

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].dist != f[j].dist {
		return f[i].dist < f[j].dist
	}
	if f[i].cell.Z != f[j].cell.Z {
		return f[i].cell.Z < f[j].cell.Z
	}
	return f[i].cell.X < f[j].cell.X
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)   { *f = append(*f, x.(candidate)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	c := old[n-1]
	*f = old[:n-1]
	return c
}

// Candidates flood-fills four-directionally from the cell under cursor and
// yields possible destination cells nearest first. maxCells > 0 stops the
// fill after that many cells.
func Candidates(cells Cells, cursor model.Point, maxCells int) iter.Seq[model.Cell] {
	return func(yield func(model.Cell) bool) {
		seen := map[model.Cell]bool{}
		var open frontier

		start := cursor.Cell()
		seen[start] = true
		if cells.PossibleDestination(start) {
			heap.Push(&open, candidate{cell: start, dist: start.Center().Dist(cursor)})
		}

		yielded := 0
		for open.Len() > 0 {
			cur := heap.Pop(&open).(candidate)
			if !yield(cur.cell) {
				return
			}
			yielded++
			if maxCells > 0 && yielded >= maxCells {
				return
			}
			for _, d := range model.Cardinals {
				n := cur.cell.Add(d)
				if seen[n] {
					continue
				}
				seen[n] = true
				if cells.PossibleDestination(n) {
					heap.Push(&open, candidate{cell: n, dist: n.Center().Dist(cursor)})
				}
			}
		}
	}
}

// TryMakeDestinations searches for cells near cursor that can jointly take
// every record of the posting. With allowCached and an unchanged cursor the
// previous outcome is returned without searching again.
func (p *Posting) TryMakeDestinations(w World, cursor model.Point, allowCached bool) bool {
	return p.tryMakeDestinations(w, cursor, allowCached, 0)
}

func (p *Posting) tryMakeDestinations(w World, cursor model.Point, allowCached bool, maxCells int) bool {
	if allowCached && p.cursor != nil && *p.cursor == cursor {
		return p.destinations != nil
	}
	at := cursor
	p.cursor = &at

	// Gate only: computed on the previous merge state.
	minStacks := p.stacksRequired()
	p.resetMerge()

	faction := w.Faction()
	var dests []model.Cell
	if p.stacksRequired() == 0 {
		p.commitDestinations([]model.Cell{})
		return true
	}
	for cell := range Candidates(w, cursor, maxCells) {
		items, ok := w.ItemsIfValidSpot(cell)
		if !ok || w.ReservedByFaction(cell, faction) {
			continue
		}
		accepted := false
		switch {
		case len(items) == 0:
			dests = append(dests, cell)
			accepted = true
		case len(items) == 1 && !p.HasItem(items[0].ID) && items[0].SpaceLeft() > 0:
			for _, rec := range p.inventory {
				if rec.CanMixWith(items[0]) {
					dests = append(dests, cell)
					rec.AddMergeCell(items[0].Count)
					accepted = true
					break
				}
			}
		}
		if !accepted || len(dests) < minStacks {
			continue
		}
		if len(dests) < p.stacksRequired() {
			continue
		}
		p.commitDestinations(dests)
		return true
	}
	p.destinations = nil
	return false
}

func (p *Posting) commitDestinations(dests []model.Cell) {
	p.destinations = dests
	if len(dests) == 0 {
		p.center = model.Point{}
		p.radius = 0
		return
	}
	var sx, sz float64
	for _, c := range dests {
		ctr := c.Center()
		sx += ctr.X
		sz += ctr.Z
	}
	n := float64(len(dests))
	p.center = model.Point{X: sx / n, Z: sz / n}
	p.radius = math.Sqrt(n / math.Pi)
}

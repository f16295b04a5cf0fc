package world

import "haulplan.ai/internal/sim/model"

// distField holds BFS step counts from a root cell across passable terrain.
type distField map[model.Cell]int

func (f distField) reaches(c model.Cell) bool {
	_, ok := f[c]
	return ok
}

// next returns the neighbour of from one step closer to the root.
func (f distField) next(from model.Cell) (model.Cell, bool) {
	d, ok := f[from]
	if !ok || d == 0 {
		return from, false
	}
	for _, dir := range model.Cardinals {
		n := from.Add(dir)
		if nd, ok := f[n]; ok && nd == d-1 {
			return n, true
		}
	}
	return from, false
}

// reachCache memoizes distance fields for the current tick. Terrain may change
// between ticks, so it is reset at every step.
type reachCache struct {
	fields map[regionCell]distField
}

func newReachCache() *reachCache {
	return &reachCache{fields: map[regionCell]distField{}}
}

func (rc *reachCache) reset() { clear(rc.fields) }

func (rc *reachCache) field(w *World, r *Region, root model.Cell) distField {
	k := regionCell{r.ID, root}
	if f, ok := rc.fields[k]; ok {
		return f
	}
	f := distField{}
	if r.InBounds(root) {
		f[root] = 0
		queue := []model.Cell{root}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, dir := range model.Cardinals {
				n := cur.Add(dir)
				if _, seen := f[n]; seen || !w.passable(r, n) {
					continue
				}
				f[n] = f[cur] + 1
				queue = append(queue, n)
			}
		}
	}
	rc.fields[k] = f
	return f
}

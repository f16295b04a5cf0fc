package world

import (
	"fmt"
	"slices"

	"haulplan.ai/internal/sim/model"
)

// ItemEntity is an item stack on the ground or in a worker's hands.
type ItemEntity struct {
	ID         string
	Def        string
	Stuff      string
	InnerDef   string
	Count      int
	StackLimit int

	Region int
	Pos    model.Cell
	Holder string

	Forbidden  bool
	Designated bool
}

func (it *ItemEntity) View() model.Item {
	return model.Item{
		ID:         it.ID,
		Def:        it.Def,
		Stuff:      it.Stuff,
		InnerDef:   it.InnerDef,
		Count:      it.Count,
		StackLimit: it.StackLimit,
		Pos:        it.Pos,
		Holder:     it.Holder,
	}
}

func (it *ItemEntity) sig() model.Signature {
	return model.Signature{Def: it.Def, Stuff: it.Stuff, InnerDef: it.InnerDef}
}

type ItemSpec struct {
	ID       string
	Def      string
	Stuff    string
	InnerDef string
	Count    int
	Region   int
	Pos      model.Cell
}

func (w *World) newItemID() string {
	for {
		id := fmt.Sprintf("I%06d", w.nextItemNum.Add(1))
		if _, taken := w.items[id]; !taken {
			return id
		}
	}
}

// SpawnItem puts a new stack on the ground. An empty spec ID is assigned.
func (w *World) SpawnItem(spec ItemSpec) (string, error) {
	r, ok := w.regions[spec.Region]
	if !ok {
		return "", fmt.Errorf("spawn %s: unknown region %d", spec.Def, spec.Region)
	}
	if !r.InBounds(spec.Pos) {
		return "", fmt.Errorf("spawn %s: %s out of bounds", spec.Def, spec.Pos)
	}
	if _, ok := w.catalogs.Items.Def(spec.Def); !ok {
		return "", fmt.Errorf("spawn: unknown item def %q", spec.Def)
	}
	limit := w.catalogs.Items.StackLimit(spec.Def)
	if spec.Count <= 0 || spec.Count > limit {
		return "", fmt.Errorf("spawn %s: count %d not in [1,%d]", spec.Def, spec.Count, limit)
	}
	id := spec.ID
	if id == "" {
		id = w.newItemID()
	}
	if _, dup := w.items[id]; dup {
		return "", fmt.Errorf("spawn: item %s already exists", id)
	}
	it := &ItemEntity{
		ID:         id,
		Def:        spec.Def,
		Stuff:      spec.Stuff,
		InnerDef:   spec.InnerDef,
		Count:      spec.Count,
		StackLimit: limit,
		Region:     spec.Region,
		Designated: true,
	}
	w.items[id] = it
	w.placeItem(it, spec.Pos)
	return id, nil
}

func (w *World) Item(id string) (ItemEntity, bool) {
	it, ok := w.items[id]
	if !ok {
		return ItemEntity{}, false
	}
	return *it, true
}

// ItemsAt lists the ids of the stacks lying on c.
func (w *World) ItemsAt(region int, c model.Cell) []string {
	return slices.Clone(w.ground[regionCell{region, c}])
}

func (w *World) placeItem(it *ItemEntity, c model.Cell) {
	it.Holder = ""
	it.Pos = c
	k := regionCell{it.Region, c}
	w.ground[k] = append(w.ground[k], it.ID)
}

func (w *World) liftItem(it *ItemEntity, holder string) {
	w.unground(it)
	it.Holder = holder
}

func (w *World) unground(it *ItemEntity) {
	if it.Holder != "" {
		return
	}
	k := regionCell{it.Region, it.Pos}
	ids := slices.DeleteFunc(w.ground[k], func(id string) bool { return id == it.ID })
	if len(ids) == 0 {
		delete(w.ground, k)
		return
	}
	w.ground[k] = ids
}

// DestroyItem removes an item from the world. Postings notice on their next
// clean; jobs carrying it are ended cooperatively.
func (w *World) DestroyItem(id string) bool {
	if _, ok := w.items[id]; !ok {
		return false
	}
	w.destroyItem(id)
	return true
}

func (w *World) destroyItem(id string) {
	it, ok := w.items[id]
	if !ok {
		return
	}
	w.unground(it)
	delete(w.items, id)
	delete(w.itemClaims, id)
	w.endJobs[id] = true
}

// splitItem takes n units off it into a new stack held by holder.
func (w *World) splitItem(it *ItemEntity, n int, holder string) *ItemEntity {
	it.Count -= n
	part := &ItemEntity{
		ID:         w.newItemID(),
		Def:        it.Def,
		Stuff:      it.Stuff,
		InnerDef:   it.InnerDef,
		Count:      n,
		StackLimit: it.StackLimit,
		Region:     it.Region,
		Pos:        it.Pos,
		Holder:     holder,
	}
	w.items[part.ID] = part
	return part
}

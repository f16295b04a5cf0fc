package haul

import (
	"fmt"
	"slices"

	"haulplan.ai/internal/sim/model"
)

const noOverride = -1

// InventoryRecord groups the items of one stack signature inside a posting.
//
// selected is maintained incrementally as items join or are cancelled; it is
// never recomputed from the live stacks. Merge bookkeeping is transient and
// rebuilt by every destination search.
type InventoryRecord struct {
	postingID  int
	sig        model.Signature
	stackLimit int

	items    []string
	selected int
	override int

	mergeCapacity int
	mergeStacks   int

	moved     int
	overshoot int
}

func newRecord(postingID int, first model.Item) *InventoryRecord {
	limit := first.StackLimit
	if limit <= 0 {
		limit = 1
	}
	return &InventoryRecord{
		postingID:  postingID,
		sig:        first.Signature(),
		stackLimit: limit,
		items:      []string{first.ID},
		selected:   first.Count,
		override:   noOverride,
	}
}

func (r *InventoryRecord) PostingID() int             { return r.postingID }
func (r *InventoryRecord) Signature() model.Signature { return r.sig }
func (r *InventoryRecord) StackLimit() int            { return r.stackLimit }
func (r *InventoryRecord) SelectedQuantity() int      { return r.selected }
func (r *InventoryRecord) MergeCapacity() int         { return r.mergeCapacity }
func (r *InventoryRecord) MergeStackCount() int       { return r.mergeStacks }
func (r *InventoryRecord) MovedQuantity() int         { return r.moved }

// Overshoot is the total quantity reported delivered beyond the effective
// quantity. Non-zero means the accounting was clamped at least once.
func (r *InventoryRecord) Overshoot() int { return r.overshoot }

// Items returns the member item ids in insertion order.
func (r *InventoryRecord) Items() []string { return slices.Clone(r.items) }

// EffectiveQuantity is the operator override when set, the selected quantity otherwise.
func (r *InventoryRecord) EffectiveQuantity() int {
	if r.override == noOverride {
		return r.selected
	}
	return r.override
}

func (r *InventoryRecord) PlayerChangedQuantity() bool { return r.override != noOverride }

// SetQuantity sets the operator override. Values outside [0, selected] are
// rejected and leave the record unchanged.
func (r *InventoryRecord) SetQuantity(q int) error {
	if q < 0 || q > r.selected {
		return fmt.Errorf("%w: %d not in [0,%d]", ErrQuantityOutOfRange, q, r.selected)
	}
	r.override = q
	r.settleMoved()
	return nil
}

func (r *InventoryRecord) ClearQuantity() { r.override = noOverride }

func (r *InventoryRecord) CanMixWith(it model.Item) bool {
	return it.Signature() == r.sig
}

func (r *InventoryRecord) HasItem(id string) bool {
	return slices.Contains(r.items, id)
}

// TryAdd appends it when the signatures match. With sideEffects false the
// selected quantity is left alone; that is the path for stacks split off an
// existing member.
func (r *InventoryRecord) TryAdd(it model.Item, sideEffects bool) bool {
	if !r.CanMixWith(it) || r.HasItem(it.ID) {
		return false
	}
	r.items = append(r.items, it.ID)
	if sideEffects {
		r.selected += it.Count
	}
	return true
}

// TryRemove drops it from the record. An operator cancel also gives back its
// quantity and pulls the override down to the new selected quantity.
func (r *InventoryRecord) TryRemove(it model.Item, operatorCancel bool) bool {
	i := slices.Index(r.items, it.ID)
	if i < 0 {
		return false
	}
	r.items = slices.Delete(r.items, i, i+1)
	if operatorCancel {
		r.selected -= it.Count
		if r.selected < 0 {
			r.selected = 0
		}
		if r.override != noOverride && r.override > r.selected {
			r.override = r.selected
		}
		r.settleMoved()
	}
	return true
}

// settleMoved caps moved after the operator lowered the wanted quantity.
// Units already delivered past the new quantity are not an overshoot.
func (r *InventoryRecord) settleMoved() {
	r.moved = min(r.moved, r.EffectiveQuantity())
}

func (r *InventoryRecord) ResetMerge() {
	r.mergeCapacity = 0
	r.mergeStacks = 0
}

// AddMergeCell records an existing compatible stack of existing units that
// this record will top up.
func (r *InventoryRecord) AddMergeCell(existing int) {
	r.mergeStacks++
	if room := r.stackLimit - existing; room > 0 {
		r.mergeCapacity += room
	}
}

// StacksWorth is the number of stacks quantity fills.
func StacksWorth(stackLimit, quantity int) int {
	if quantity <= 0 {
		return 0
	}
	if stackLimit <= 0 {
		stackLimit = 1
	}
	return (quantity + stackLimit - 1) / stackLimit
}

// StacksRequired is the number of destination cells the record needs: one per
// merge target plus fresh stacks for whatever the merges cannot absorb.
func (r *InventoryRecord) StacksRequired() int {
	rest := r.EffectiveQuantity() - r.mergeCapacity
	if rest < 0 {
		rest = 0
	}
	return StacksWorth(r.stackLimit, rest) + r.mergeStacks
}

// InTransit sums what workers of faction are carrying for this record right now.
func (r *InventoryRecord) InTransit(w Workforce, faction string) int {
	n := 0
	for _, wk := range w.FactionWorkers(faction) {
		d, ok := w.CurrentDelivery(wk.ID)
		if !ok {
			continue
		}
		if d.PostingID == r.postingID && d.Sig == r.sig {
			n += d.Count
		}
	}
	return n
}

func (r *InventoryRecord) RemainingToDeliver(w Workforce, faction string) int {
	rest := r.EffectiveQuantity() - (r.moved + r.InTransit(w, faction))
	if rest < 0 {
		return 0
	}
	return rest
}

// recordDelivery adds n delivered units and clamps the total to the effective
// quantity. It returns the excess that had to be clamped away.
func (r *InventoryRecord) recordDelivery(n int) int {
	if n <= 0 {
		return 0
	}
	r.moved += n
	return r.clampMoved()
}

func (r *InventoryRecord) clampMoved() int {
	eff := r.EffectiveQuantity()
	if r.moved <= eff {
		return 0
	}
	excess := r.moved - eff
	r.overshoot += excess
	r.moved = eff
	return excess
}

func (r *InventoryRecord) Label() string {
	name := r.sig.Def
	if r.sig.InnerDef != "" {
		name = r.sig.InnerDef
	}
	if r.sig.Stuff != "" {
		name = r.sig.Stuff + " " + name
	}
	return fmt.Sprintf("%s x%d", name, r.EffectiveQuantity())
}

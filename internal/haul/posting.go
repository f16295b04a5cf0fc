package haul

import (
	"fmt"
	"io"
	"log"
	"slices"
	"sort"
	"strings"

	"haulplan.ai/internal/sim/model"
)

// Posting is one explicit haul: a batch of items grouped by stack signature
// and the destination cells computed for it.
type Posting struct {
	id       int
	regionID int

	inventory []*InventoryRecord
	// items is the flattened view of every record's items.
	items []string

	destinations []model.Cell
	cursor       *model.Point
	center       model.Point
	radius       float64

	registered bool
	log        *log.Logger
}

// NewPosting builds a planning posting from an arbitrary selection. Anything
// that is not a haulable item is skipped.
func NewPosting(id, regionID int, selection []any, h Haulability, logger *log.Logger) *Posting {
	p := &Posting{id: id, regionID: regionID, log: logger}
	if p.log == nil {
		p.log = log.New(io.Discard, "", 0)
	}
	for _, obj := range selection {
		it, ok := h.AsHaulable(obj)
		if !ok || p.HasItem(it.ID) {
			continue
		}
		p.add(it)
	}
	return p
}

func (p *Posting) add(it model.Item) {
	p.items = append(p.items, it.ID)
	for _, rec := range p.inventory {
		if rec.TryAdd(it, true) {
			return
		}
	}
	p.inventory = append(p.inventory, newRecord(p.id, it))
}

func (p *Posting) ID() int          { return p.id }
func (p *Posting) RegionID() int    { return p.regionID }
func (p *Posting) Registered() bool { return p.registered }

func (p *Posting) Inventory() []*InventoryRecord { return slices.Clone(p.inventory) }

// Items returns the flattened item ids.
func (p *Posting) Items() []string { return slices.Clone(p.items) }

func (p *Posting) HasItem(id string) bool { return slices.Contains(p.items, id) }

// Destinations returns the committed cells, or nil when there are none or the
// last search failed.
func (p *Posting) Destinations() []model.Cell {
	if p.destinations == nil {
		return nil
	}
	return slices.Clone(p.destinations)
}

func (p *Posting) HasDestination(c model.Cell) bool { return slices.Contains(p.destinations, c) }

// Cursor is the last point a destination search ran for.
func (p *Posting) Cursor() (model.Point, bool) {
	if p.cursor == nil {
		return model.Point{}, false
	}
	return *p.cursor, true
}

func (p *Posting) VisualizationCenter() model.Point { return p.center }
func (p *Posting) VisualizationRadius() float64     { return p.radius }

func (p *Posting) RecordWithItem(id string) *InventoryRecord {
	for _, rec := range p.inventory {
		if rec.HasItem(id) {
			return rec
		}
	}
	return nil
}

func (p *Posting) RecordFor(sig model.Signature) *InventoryRecord {
	for _, rec := range p.inventory {
		if rec.sig == sig {
			return rec
		}
	}
	return nil
}

// RemoveItem takes it out of the posting. It returns false when the item is
// not part of the posting. A flattened entry without an owning record is an
// internal inconsistency: it is logged and treated as a no-op.
func (p *Posting) RemoveItem(it model.Item, operatorCancel bool) bool {
	if !p.HasItem(it.ID) {
		return false
	}
	owner := p.RecordWithItem(it.ID)
	if owner == nil || !owner.TryRemove(it, operatorCancel) {
		p.log.Printf("ERROR posting %d lists item %s without an owning record", p.id, it.ID)
		return false
	}
	p.items = slices.DeleteFunc(p.items, func(id string) bool { return id == it.ID })
	return true
}

// AddSplinter adds a stack split off a member item. It joins the matching
// record without changing the selected quantity.
func (p *Posting) AddSplinter(it model.Item) bool {
	if p.HasItem(it.ID) {
		return false
	}
	rec := p.RecordFor(it.Signature())
	if rec == nil {
		p.log.Printf("ERROR posting %d: no record matches splinter %s", p.id, it)
		return false
	}
	if !rec.TryAdd(it, false) {
		return false
	}
	p.items = append(p.items, it.ID)
	return true
}

// Clean drops items that no longer exist.
func (p *Posting) Clean(items Items) []string {
	var gone []string
	for _, id := range p.Items() {
		if _, ok := items.Item(id); ok {
			continue
		}
		if p.RemoveItem(model.Item{ID: id}, false) {
			gone = append(gone, id)
		}
	}
	return gone
}

// ReloadItemsFromInventory rebuilds the flattened view from the records.
func (p *Posting) ReloadItemsFromInventory() {
	p.items = p.items[:0]
	for _, rec := range p.inventory {
		p.items = append(p.items, rec.items...)
	}
}

func (p *Posting) stacksRequired() int {
	n := 0
	for _, rec := range p.inventory {
		n += rec.StacksRequired()
	}
	return n
}

// StacksRequired sums StacksRequired over every record.
func (p *Posting) StacksRequired() int { return p.stacksRequired() }

func (p *Posting) resetMerge() {
	for _, rec := range p.inventory {
		rec.ResetMerge()
	}
}

// Coherent reports whether the flattened view equals the union of the records.
func (p *Posting) Coherent() bool {
	a := slices.Clone(p.items)
	var b []string
	for _, rec := range p.inventory {
		b = append(b, rec.items...)
	}
	sort.Strings(a)
	sort.Strings(b)
	return slices.Equal(a, b)
}

// Details renders the posting's internals for debugging.
func (p *Posting) Details() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "posting #%d region=%d registered=%v\n", p.id, p.regionID, p.registered)
	fmt.Fprintf(&sb, "records: %d items: %d coherent: %v\n", len(p.inventory), len(p.items), p.Coherent())
	for i, rec := range p.inventory {
		fmt.Fprintf(&sb, "  record %d [%s] selected=%d effective=%d moved=%d merge=%d/%d items=%s\n",
			i, rec.sig, rec.selected, rec.EffectiveQuantity(), rec.moved,
			rec.mergeCapacity, rec.mergeStacks, strings.Join(rec.items, ","))
	}
	if p.destinations == nil {
		sb.WriteString("destinations: none\n")
		return sb.String()
	}
	sb.WriteString("destinations:")
	for _, c := range p.destinations {
		sb.WriteString(" " + c.String())
	}
	sb.WriteString("\n")
	return sb.String()
}

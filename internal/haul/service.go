package haul

import (
	"fmt"
	"io"
	"log"
	"sort"

	"haulplan.ai/internal/sim/model"
)

// Hooks observe posting lifecycle events. Implementations must not call back
// into the Service.
type Hooks interface {
	DestinationSearched(p *Posting, ok bool)
	PostingCommitted(p *Posting)
	ItemRemoved(p *Posting, itemID string, operatorCancel bool)
	Delivered(p *Posting, rec *InventoryRecord, n int)
	Overkill(p *Posting, rec *InventoryRecord, excess int)
	PostingRemoved(p *Posting)
}

// NopHooks ignores every event.
type NopHooks struct{}

func (NopHooks) DestinationSearched(*Posting, bool)        {}
func (NopHooks) PostingCommitted(*Posting)                 {}
func (NopHooks) ItemRemoved(*Posting, string, bool)        {}
func (NopHooks) Delivered(*Posting, *InventoryRecord, int) {}
func (NopHooks) Overkill(*Posting, *InventoryRecord, int)  {}
func (NopHooks) PostingRemoved(*Posting)                   {}

type Options struct {
	Logger *log.Logger
	Hooks  Hooks
	// MaxSearchCells bounds every destination flood fill; 0 means the fill is
	// bounded only by the region.
	MaxSearchCells int
	Rand           Rand
}

// Service owns every region's registry. It is created by and lives as long as
// the simulation session that holds it.
type Service struct {
	regions    Regions
	registries map[int]*Registry
	nextID     int

	log      *log.Logger
	hooks    Hooks
	maxCells int
	rng      Rand
}

func NewService(regions Regions, opts Options) *Service {
	s := &Service{
		regions:    regions,
		registries: map[int]*Registry{},
		log:        opts.Logger,
		hooks:      opts.Hooks,
		maxCells:   opts.MaxSearchCells,
		rng:        opts.Rand,
	}
	if s.log == nil {
		s.log = log.New(io.Discard, "", 0)
	}
	if s.hooks == nil {
		s.hooks = NopHooks{}
	}
	return s
}

// Registry returns the registry of a region, creating it on first use.
func (s *Service) Registry(regionID int) *Registry {
	r := s.registries[regionID]
	if r == nil {
		r = newRegistry(regionID)
		s.registries[regionID] = r
	}
	return r
}

// Registries returns every registry ordered by region id.
func (s *Service) Registries() []*Registry {
	ids := make([]int, 0, len(s.registries))
	for id := range s.registries {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]*Registry, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.registries[id])
	}
	return out
}

// newPostingID hands out ids from 1; 0 never names a posting.
func (s *Service) newPostingID() int {
	id := max(s.nextID, 1)
	for _, r := range s.registries {
		if m := r.maxID() + 1; m > id {
			id = m
		}
	}
	s.nextID = id + 1
	return id
}

func (s *Service) world(regionID int) (World, error) {
	w, ok := s.regions.Region(regionID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRegion, regionID)
	}
	return w, nil
}

// CreatePosting builds a planning posting from an operator selection.
func (s *Service) CreatePosting(regionID int, selection []any) (*Posting, error) {
	w, err := s.world(regionID)
	if err != nil {
		return nil, err
	}
	return NewPosting(s.newPostingID(), regionID, selection, w, s.log), nil
}

func (s *Service) TryMakeDestinations(p *Posting, cursor model.Point, allowCached bool) bool {
	w, err := s.world(p.regionID)
	if err != nil {
		s.log.Printf("destination search for posting %d: %v", p.id, err)
		return false
	}
	if allowCached && p.cursor != nil && *p.cursor == cursor {
		return p.destinations != nil
	}
	ok := p.tryMakeDestinations(w, cursor, false, s.maxCells)
	s.hooks.DestinationSearched(p, ok)
	return ok
}

// CommitPosting registers p. Each of its items is first released to the
// posting and taken out of every other registered posting.
func (s *Service) CommitPosting(p *Posting) error {
	w, err := s.world(p.regionID)
	if err != nil {
		return precondition("commit", err)
	}
	reg := s.Registry(p.regionID)
	if p.registered {
		return precondition("commit", fmt.Errorf("%w: %d", ErrDuplicatePostingID, p.id))
	}
	if _, dup := reg.postings[p.id]; dup {
		return precondition("commit", fmt.Errorf("%w: %d in region %d", ErrDuplicatePostingID, p.id, p.regionID))
	}
	for _, id := range p.items {
		it, ok := w.Item(id)
		if ok {
			w.ReleaseToPosting(it)
		} else {
			it = model.Item{ID: id}
		}
		for _, r := range s.Registries() {
			for _, other := range r.Postings() {
				if other.RemoveItem(it, false) {
					s.hooks.ItemRemoved(other, id, false)
				}
			}
		}
	}
	if err := reg.insert(p); err != nil {
		return err
	}
	s.log.Printf("posting %d committed in region %d: %d items, %d destinations", p.id, p.regionID, len(p.items), len(p.destinations))
	s.hooks.PostingCommitted(p)
	return nil
}

// FindPostingContaining returns the registered posting holding the item.
func (s *Service) FindPostingContaining(itemID string) *Posting {
	for _, r := range s.Registries() {
		if p := r.PostingWithItem(itemID); p != nil {
			return p
		}
	}
	return nil
}

// Posting looks a registered posting up by id.
func (s *Service) Posting(id int) *Posting {
	for _, r := range s.registries {
		if p, ok := r.postings[id]; ok {
			return p
		}
	}
	return nil
}

func (s *Service) RemoveItem(p *Posting, it model.Item, operatorCancel bool) bool {
	if !p.RemoveItem(it, operatorCancel) {
		return false
	}
	s.hooks.ItemRemoved(p, it.ID, operatorCancel)
	return true
}

// CancelItem is the operator cancel: the item leaves its posting and every
// worker job referencing it is ended on its next check.
func (s *Service) CancelItem(itemID string) bool {
	p := s.FindPostingContaining(itemID)
	if p == nil {
		return false
	}
	w, err := s.world(p.regionID)
	if err != nil {
		return false
	}
	it, ok := w.Item(itemID)
	if !ok {
		it = model.Item{ID: itemID}
	}
	if !s.RemoveItem(p, it, true) {
		return false
	}
	w.EndJobsCarrying(itemID)
	return true
}

// SetQuantity sets the operator override on the record holding itemID.
func (s *Service) SetQuantity(p *Posting, itemID string, quantity int) error {
	rec := p.RecordWithItem(itemID)
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrItemNotInPosting, itemID)
	}
	return rec.SetQuantity(quantity)
}

// AllocateDestinations builds an Allocator for worker carrying it.
func (s *Service) AllocateDestinations(it model.Item, worker string, p *Posting, grader Grader) (*Allocator, error) {
	w, err := s.world(p.regionID)
	if err != nil {
		return nil, precondition("allocate", err)
	}
	return NewAllocator(w, it, worker, p, grader, s.rng)
}

// AddSplinter registers a stack split off a member of p.
func (s *Service) AddSplinter(p *Posting, it model.Item) bool { return p.AddSplinter(it) }

// RecordDelivery books n units of the record with signature sig as delivered.
// Overshoot is clamped and reported, never propagated.
func (s *Service) RecordDelivery(p *Posting, sig model.Signature, n int) {
	rec := p.RecordFor(sig)
	if rec == nil {
		s.log.Printf("ERROR posting %d: delivery for unknown record %s", p.id, sig)
		return
	}
	excess := rec.recordDelivery(n)
	s.hooks.Delivered(p, rec, n)
	if excess > 0 {
		s.log.Printf("ERROR posting %d record %s: delivered %d beyond requested, clamped", p.id, sig, excess)
		s.hooks.Overkill(p, rec, excess)
	}
}

func (s *Service) Status(p *Posting) Status {
	w, err := s.world(p.regionID)
	if err != nil {
		return StatusPlanning
	}
	return p.Status(w)
}

// Haulables lists every item held by a posting in the region.
func (s *Service) Haulables(regionID int) []string {
	r, ok := s.registries[regionID]
	if !ok {
		return nil
	}
	return r.Haulables()
}

// SelectAllInPosting returns the live items on the map of the posting that
// holds itemID.
func (s *Service) SelectAllInPosting(itemID string) []model.Item {
	p := s.FindPostingContaining(itemID)
	if p == nil {
		return nil
	}
	w, err := s.world(p.regionID)
	if err != nil {
		return nil
	}
	var out []model.Item
	for _, id := range p.items {
		if it, ok := w.Item(id); ok {
			out = append(out, it)
		}
	}
	return out
}

// CleanGarbage forgets regions that no longer exist, drops destroyed items and
// removes postings left without items.
func (s *Service) CleanGarbage() {
	live := map[int]bool{}
	for _, id := range s.regions.RegionIDs() {
		live[id] = true
	}
	for id, r := range s.registries {
		if !live[id] {
			s.log.Printf("dropping registry of vanished region %d (%d postings)", id, r.Len())
			delete(s.registries, id)
		}
	}
	for _, r := range s.Registries() {
		w, ok := s.regions.Region(r.regionID)
		if !ok {
			continue
		}
		for _, p := range r.cleanGarbage(w) {
			s.hooks.PostingRemoved(p)
		}
	}
}

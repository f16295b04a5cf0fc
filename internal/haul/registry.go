package haul

import (
	"fmt"
	"sort"
)

// Registry owns the registered postings of one region.
type Registry struct {
	regionID int
	postings map[int]*Posting
}

func newRegistry(regionID int) *Registry {
	return &Registry{regionID: regionID, postings: map[int]*Posting{}}
}

func (r *Registry) RegionID() int { return r.regionID }
func (r *Registry) Len() int      { return len(r.postings) }

func (r *Registry) Posting(id int) (*Posting, bool) {
	p, ok := r.postings[id]
	return p, ok
}

// Postings returns the postings ordered by id.
func (r *Registry) Postings() []*Posting {
	out := make([]*Posting, 0, len(r.postings))
	for _, p := range r.postings {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (r *Registry) PostingWithItem(itemID string) *Posting {
	for _, p := range r.Postings() {
		if p.HasItem(itemID) {
			return p
		}
	}
	return nil
}

// Haulables lists every item held by a posting of this region.
func (r *Registry) Haulables() []string {
	var out []string
	for _, p := range r.Postings() {
		out = append(out, p.items...)
	}
	return out
}

func (r *Registry) insert(p *Posting) error {
	if _, dup := r.postings[p.id]; dup {
		return precondition("commit", fmt.Errorf("%w: %d in region %d", ErrDuplicatePostingID, p.id, r.regionID))
	}
	r.postings[p.id] = p
	p.registered = true
	return nil
}

func (r *Registry) maxID() int {
	m := -1
	for id := range r.postings {
		if id > m {
			m = id
		}
	}
	return m
}

// cleanGarbage drops destroyed items and then every posting left empty.
func (r *Registry) cleanGarbage(items Items) []*Posting {
	var removed []*Posting
	for _, p := range r.Postings() {
		p.Clean(items)
		if len(p.items) == 0 {
			delete(r.postings, p.id)
			removed = append(removed, p)
		}
	}
	return removed
}

package world

import (
	"fmt"
	"slices"

	"haulplan.ai/internal/haul"
)

// PostingState is the published view of a registered posting.
type PostingState struct {
	Tick         uint64        `json:"tick"`
	PostingID    int           `json:"posting_id"`
	Region       int           `json:"region"`
	Status       haul.Status   `json:"status"`
	Records      []RecordState `json:"records"`
	Destinations [][2]int      `json:"destinations,omitempty"`
	Removed      bool          `json:"removed,omitempty"`
}

type RecordState struct {
	Label     string `json:"label"`
	Def       string `json:"def"`
	Stuff     string `json:"stuff,omitempty"`
	InnerDef  string `json:"inner_def,omitempty"`
	Selected  int    `json:"selected"`
	Effective int    `json:"effective"`
	Moved     int    `json:"moved"`
	Remaining int    `json:"remaining"`
	Items     int    `json:"items"`
}

func (s PostingState) sameProgress(o PostingState) bool {
	return s.Status == o.Status && s.Removed == o.Removed &&
		slices.Equal(s.Records, o.Records) && slices.Equal(s.Destinations, o.Destinations)
}

func (w *World) postingState(p *haul.Posting, nowTick uint64) PostingState {
	st := PostingState{
		Tick:      nowTick,
		PostingID: p.ID(),
		Region:    p.RegionID(),
		Status:    w.haul.Status(p),
	}
	if r, ok := w.regions[p.RegionID()]; ok {
		v := view{w: w, r: r}
		for _, rec := range p.Inventory() {
			sig := rec.Signature()
			st.Records = append(st.Records, RecordState{
				Label:     rec.Label(),
				Def:       sig.Def,
				Stuff:     sig.Stuff,
				InnerDef:  sig.InnerDef,
				Selected:  rec.SelectedQuantity(),
				Effective: rec.EffectiveQuantity(),
				Moved:     rec.MovedQuantity(),
				Remaining: rec.RemainingToDeliver(v, v.Faction()),
				Items:     len(rec.Items()),
			})
		}
	}
	for _, c := range p.Destinations() {
		st.Destinations = append(st.Destinations, [2]int{c.X, c.Z})
	}
	return st
}

// PostingStates returns the current state of every registered posting.
func (w *World) PostingStates() []PostingState {
	var out []PostingState
	for _, r := range w.haul.Registries() {
		for _, p := range r.Postings() {
			out = append(out, w.postingState(p, w.tick.Load()))
		}
	}
	return out
}

// trackPostings publishes every posting whose status or progress moved since
// the last tick.
func (w *World) trackPostings(nowTick uint64) {
	counts := map[haul.Status]int{}
	for _, r := range w.haul.Registries() {
		for _, p := range r.Postings() {
			st := w.postingState(p, nowTick)
			counts[st.Status]++
			prev, seen := w.tracked[p.ID()]
			if seen && prev.sameProgress(st) {
				continue
			}
			w.tracked[p.ID()] = st
			if !seen || prev.Status != st.Status {
				w.audit(AuditEntry{Event: "STATUS", Region: st.Region, PostingID: st.PostingID, Status: st.Status.String()})
			}
			w.emit(st)
		}
	}
	if w.metrics != nil {
		w.metrics.setStatusCounts(counts)
	}
}

func (w *World) emit(st PostingState) {
	w.publish(st)
	if w.postingIndex != nil {
		if err := w.postingIndex.UpsertPosting(st); err != nil {
			w.log.Printf("posting index: %v", err)
		}
	}
}

// hooks turns haul service events into audit entries and metrics.
type hooks struct{ w *World }

var _ haul.Hooks = hooks{}

func (h hooks) DestinationSearched(p *haul.Posting, ok bool) {
	if h.w.metrics != nil {
		h.w.metrics.observeSearch(ok)
	}
}

func (h hooks) PostingCommitted(p *haul.Posting) {
	h.w.audit(AuditEntry{Event: "COMMITTED", Region: p.RegionID(), PostingID: p.ID(), Count: len(p.Items()), Detail: fmt.Sprintf("%d records", len(p.Inventory()))})
	if h.w.metrics != nil {
		h.w.metrics.Committed.Inc()
	}
}

func (h hooks) ItemRemoved(p *haul.Posting, itemID string, operatorCancel bool) {
	reason := "released"
	if operatorCancel {
		reason = "cancelled"
	}
	h.w.audit(AuditEntry{Event: "ITEM_REMOVED", Region: p.RegionID(), PostingID: p.ID(), Item: itemID, Detail: reason})
	if h.w.metrics != nil {
		h.w.metrics.ItemsRemoved.WithLabelValues(reason).Inc()
	}
}

func (h hooks) Delivered(p *haul.Posting, rec *haul.InventoryRecord, n int) {
	if h.w.metrics != nil {
		h.w.metrics.DeliveredUnits.Add(float64(n))
	}
}

func (h hooks) Overkill(p *haul.Posting, rec *haul.InventoryRecord, excess int) {
	h.w.audit(AuditEntry{Event: "OVERKILL", Region: p.RegionID(), PostingID: p.ID(), Count: excess, Detail: rec.Label()})
	if h.w.metrics != nil {
		h.w.metrics.Overkill.Inc()
	}
}

func (h hooks) PostingRemoved(p *haul.Posting) {
	h.w.audit(AuditEntry{Event: "REMOVED", Region: p.RegionID(), PostingID: p.ID()})
	delete(h.w.tracked, p.ID())
	st := h.w.postingState(p, h.w.tick.Load())
	st.Removed = true
	h.w.emit(st)
}

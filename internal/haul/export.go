package haul

import (
	"fmt"

	"haulplan.ai/internal/persistence/snapshot"
	"haulplan.ai/internal/sim/model"
)

// Export captures every registry. Merge bookkeeping is not persisted.
func (s *Service) Export() *snapshot.HaulV1 {
	out := &snapshot.HaulV1{
		FormatVersion: snapshot.HaulFormatVersion,
		NextPostingID: s.nextID,
	}
	for _, r := range s.Registries() {
		rv := snapshot.RegistryV1{RegionID: r.regionID}
		for _, p := range r.Postings() {
			rv.Postings = append(rv.Postings, exportPosting(p))
		}
		out.Registries = append(out.Registries, rv)
	}
	return out
}

func exportPosting(p *Posting) snapshot.PostingV1 {
	pv := snapshot.PostingV1{
		ID:              p.id,
		RegionID:        p.regionID,
		HasDestinations: p.destinations != nil,
		Center:          [2]float64{p.center.X, p.center.Z},
		Radius:          p.radius,
	}
	for _, c := range p.destinations {
		pv.Destinations = append(pv.Destinations, [2]int{c.X, c.Z})
	}
	if p.cursor != nil {
		pv.HasCursor = true
		pv.Cursor = [2]float64{p.cursor.X, p.cursor.Z}
	}
	for _, rec := range p.inventory {
		pv.Records = append(pv.Records, snapshot.RecordV1{
			Def:        rec.sig.Def,
			Stuff:      rec.sig.Stuff,
			InnerDef:   rec.sig.InnerDef,
			StackLimit: rec.stackLimit,
			Items:      rec.Items(),
			Selected:   rec.selected,
			Override:   rec.override,
			Moved:      rec.moved,
			Overshoot:  rec.overshoot,
		})
	}
	return pv
}

// Import replaces every registry with h. A nil h is a save without haul
// state: it is logged and the service starts empty.
func (s *Service) Import(h *snapshot.HaulV1) error {
	s.registries = map[int]*Registry{}
	s.nextID = 0
	if h == nil {
		s.log.Printf("ERROR no haul registry in save, starting empty")
		return nil
	}
	if h.FormatVersion != snapshot.HaulFormatVersion {
		return fmt.Errorf("haul format version %d not supported", h.FormatVersion)
	}
	for _, rv := range h.Registries {
		reg := s.Registry(rv.RegionID)
		for _, pv := range rv.Postings {
			p := s.importPosting(rv.RegionID, pv)
			if err := reg.insert(p); err != nil {
				return fmt.Errorf("import region %d: %w", rv.RegionID, err)
			}
		}
	}
	s.nextID = h.NextPostingID
	for _, r := range s.registries {
		if m := r.maxID() + 1; m > s.nextID {
			s.nextID = m
		}
	}
	return nil
}

func (s *Service) importPosting(regionID int, pv snapshot.PostingV1) *Posting {
	if pv.RegionID != regionID {
		s.log.Printf("ERROR posting %d saved under region %d claims region %d", pv.ID, regionID, pv.RegionID)
	}
	p := &Posting{id: pv.ID, regionID: regionID, log: s.log}
	for _, rv := range pv.Records {
		rec := &InventoryRecord{
			postingID:  pv.ID,
			sig:        model.Signature{Def: rv.Def, Stuff: rv.Stuff, InnerDef: rv.InnerDef},
			stackLimit: max(rv.StackLimit, 1),
			items:      append([]string(nil), rv.Items...),
			selected:   rv.Selected,
			override:   rv.Override,
			moved:      rv.Moved,
			overshoot:  rv.Overshoot,
		}
		if rec.override != noOverride && (rec.override < 0 || rec.override > rec.selected) {
			s.log.Printf("ERROR posting %d record %s: saved quantity %d out of range, cleared", pv.ID, rec.sig, rec.override)
			rec.override = noOverride
		}
		p.inventory = append(p.inventory, rec)
	}
	p.ReloadItemsFromInventory()
	if pv.HasDestinations {
		p.destinations = make([]model.Cell, 0, len(pv.Destinations))
		for _, c := range pv.Destinations {
			p.destinations = append(p.destinations, model.Cell{X: c[0], Z: c[1]})
		}
	}
	if pv.HasCursor {
		p.cursor = &model.Point{X: pv.Cursor[0], Z: pv.Cursor[1]}
	}
	p.center = model.Point{X: pv.Center[0], Z: pv.Center[1]}
	p.radius = pv.Radius
	return p
}

package haul

import (
	"fmt"
	"strings"
)

type Status uint8

const (
	// StatusPlanning: not registered yet.
	StatusPlanning Status = iota
	StatusInProgress
	// StatusDestinationBlocked: quantity remains but the last search failed.
	StatusDestinationBlocked
	// StatusIncompletable: the remaining source items cannot cover what is left.
	StatusIncompletable
	StatusComplete
	// StatusOverkillError: more was delivered than requested; the record was clamped.
	StatusOverkillError
)

var statusNames = [...]string{
	StatusPlanning:           "PLANNING",
	StatusInProgress:         "IN_PROGRESS",
	StatusDestinationBlocked: "DESTINATION_BLOCKED",
	StatusIncompletable:      "INCOMPLETABLE",
	StatusComplete:           "COMPLETE",
	StatusOverkillError:      "OVERKILL_ERROR",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("STATUS(%d)", uint8(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v := strings.ToUpper(strings.TrimSpace(string(b)))
	for i, n := range statusNames {
		if n == v {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", v)
}

// Terminal reports whether no further hauling will happen for the posting.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusIncompletable || s == StatusOverkillError
}

// Status evaluates the posting against the live world.
//
// Order matters: an overshoot is reported first, then completion, then a
// shortage of source items (which no new destination could fix), then a
// missing destination set.
func (p *Posting) Status(w World) Status {
	if !p.registered {
		return StatusPlanning
	}
	overkill := false
	for _, rec := range p.inventory {
		if excess := rec.clampMoved(); excess > 0 {
			p.log.Printf("ERROR posting %d record %s: moved exceeded requested by %d, clamped", p.id, rec.sig, excess)
		}
		if rec.overshoot > 0 {
			overkill = true
		}
	}
	if overkill {
		return StatusOverkillError
	}

	faction := w.Faction()
	remaining := 0
	short := false
	for _, rec := range p.inventory {
		left := rec.RemainingToDeliver(w, faction)
		remaining += left
		if left > 0 && left > groundSupply(w, rec) {
			short = true
		}
	}
	switch {
	case remaining == 0:
		return StatusComplete
	case short:
		return StatusIncompletable
	case p.destinations == nil:
		return StatusDestinationBlocked
	default:
		return StatusInProgress
	}
}

// groundSupply is what the record's items lying on the map can still supply.
// Items already picked up are counted as in transit instead.
func groundSupply(items Items, rec *InventoryRecord) int {
	n := 0
	for _, id := range rec.items {
		it, ok := items.Item(id)
		if !ok || !it.Spawned() {
			continue
		}
		n += it.Count
	}
	return n
}

package model

// Worker is a point-in-time view of an agent able to carry items.
type Worker struct {
	ID      string
	Faction string
	Pos     Cell

	// AllowedArea restricts where the worker may go; nil means anywhere.
	AllowedArea *Rect
}

// Delivery describes a haul task a worker is running or has queued: carry
// Count units of an item of signature Sig to Targets (first target first).
type Delivery struct {
	PostingID int
	ItemID    string
	Sig       Signature
	Count     int
	Targets   []Cell
}

// HasTarget reports whether c is one of the delivery's drop cells.
func (d Delivery) HasTarget(c Cell) bool {
	for _, t := range d.Targets {
		if t == c {
			return true
		}
	}
	return false
}

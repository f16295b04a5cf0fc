package model

import "testing"

func TestPointCellFloorsNegative(t *testing.T) {
	c := Point{X: -0.5, Z: 2.99}.Cell()
	if c != (Cell{X: -1, Z: 2}) {
		t.Fatalf("unexpected cell: %v", c)
	}
}

func TestSignatureString(t *testing.T) {
	s := Signature{Def: "Table", Stuff: "Wood", InnerDef: "TableShort"}
	if got := s.String(); got != "Wood Table(TableShort)" {
		t.Fatalf("unexpected label: %q", got)
	}
}

func TestItemSpaceLeft(t *testing.T) {
	it := Item{Count: 60, StackLimit: 100}
	if it.SpaceLeft() != 40 {
		t.Fatalf("space left = %d", it.SpaceLeft())
	}
	it.Count = 120
	if it.SpaceLeft() != 0 {
		t.Fatalf("overfull stack should report no space, got %d", it.SpaceLeft())
	}
}

func TestDeliveryHasTarget(t *testing.T) {
	d := Delivery{Targets: []Cell{{X: 1, Z: 1}, {X: 2, Z: 1}}}
	if !d.HasTarget(Cell{X: 2, Z: 1}) || d.HasTarget(Cell{X: 3, Z: 1}) {
		t.Fatalf("HasTarget mismatch")
	}
}

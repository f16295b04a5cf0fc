package model

import "fmt"

// Signature identifies items that may share a stack: definition, material and,
// for packed furniture, the inner definition.
type Signature struct {
	Def      string `json:"def" yaml:"def"`
	Stuff    string `json:"stuff,omitempty" yaml:"stuff,omitempty"`
	InnerDef string `json:"inner_def,omitempty" yaml:"inner_def,omitempty"`
}

func (s Signature) String() string {
	out := s.Def
	if s.Stuff != "" {
		out = s.Stuff + " " + out
	}
	if s.InnerDef != "" {
		out = fmt.Sprintf("%s(%s)", out, s.InnerDef)
	}
	return out
}

// Item is a point-in-time view of an item stack in the world.
type Item struct {
	ID         string
	Def        string
	Stuff      string
	InnerDef   string
	Count      int
	StackLimit int

	Pos Cell
	// Holder is the worker carrying the item, empty when it lies on the ground.
	Holder string
}

func (it Item) Signature() Signature {
	return Signature{Def: it.Def, Stuff: it.Stuff, InnerDef: it.InnerDef}
}

func (it Item) Spawned() bool { return it.Holder == "" }

// SpaceLeft is how many more units fit on this stack.
func (it Item) SpaceLeft() int {
	if it.Count >= it.StackLimit {
		return 0
	}
	return it.StackLimit - it.Count
}

func (it Item) String() string {
	return fmt.Sprintf("%s[%s x%d]", it.ID, it.Signature(), it.Count)
}

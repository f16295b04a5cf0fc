package world

import (
	"fmt"

	"haulplan.ai/internal/sim/model"
)

// Replayer re-applies logged ticks to a world restored from a snapshot and
// checks each tick's digest against the log.
type Replayer struct {
	w *World
	// SELECT refs are random; logged refs map to the ones issued on replay.
	refs map[string]string

	Checked int
	Skipped int
}

func NewReplayer(w *World) *Replayer {
	return &Replayer{w: w, refs: map[string]string{}}
}

// Step applies one logged tick. Entries older than the world's tick are
// skipped; a gap is an error. It must not run concurrently with Run.
func (r *Replayer) Step(e TickLogEntry) error {
	now := r.w.CurrentTick()
	if e.Tick < now {
		r.Skipped++
		return nil
	}
	if e.Tick != now {
		return fmt.Errorf("tick gap: world at %d, log at %d", now, e.Tick)
	}

	cmds := make([]Command, len(e.Commands))
	replies := make([]chan Result, len(e.Commands))
	for i, rc := range e.Commands {
		replies[i] = make(chan Result, 1)
		cmds[i] = r.command(rc)
		cmds[i].Reply = replies[i]
	}

	tick, digest := r.w.StepOnce(cmds)
	for i, rc := range e.Commands {
		res := <-replies[i]
		if res.OK != rc.OK {
			return fmt.Errorf("tick %d: %s command %d: ok=%v, logged ok=%v (%s)", tick, rc.Kind, i, res.OK, rc.OK, res.Message)
		}
		if rc.Kind == CmdSelect && res.OK {
			r.refs[rc.Ref] = res.Ref
		}
	}
	if digest != e.Digest {
		return fmt.Errorf("digest mismatch at tick %d: got %s, logged %s", tick, digest, e.Digest)
	}
	r.Checked++
	return nil
}

func (r *Replayer) command(rc RecordedCommand) Command {
	cmd := Command{
		Kind:      rc.Kind,
		Region:    rc.Region,
		Items:     rc.Items,
		Cursor:    model.Point{X: rc.Cursor[0], Z: rc.Cursor[1]},
		PostingID: rc.PostingID,
		Item:      rc.Item,
		Quantity:  rc.Quantity,
	}
	switch rc.Kind {
	case CmdPreview, CmdCommit, CmdDiscard:
		if live, ok := r.refs[rc.Ref]; ok {
			cmd.Ref = live
		} else {
			cmd.Ref = rc.Ref
		}
		if rc.Kind == CmdCommit {
			// The logged id is the committed one, not an input.
			cmd.PostingID = 0
		}
	}
	return cmd
}

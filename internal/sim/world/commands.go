package world

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"haulplan.ai/internal/haul"
	"haulplan.ai/internal/protocol"
	"haulplan.ai/internal/sim/model"
)

type CommandKind string

const (
	CmdSelect      CommandKind = "SELECT"
	CmdPreview     CommandKind = "PREVIEW"
	CmdCommit      CommandKind = "COMMIT"
	CmdDiscard     CommandKind = "DISCARD"
	CmdCancelItem  CommandKind = "CANCEL_ITEM"
	CmdSetQuantity CommandKind = "SET_QUANTITY"
)

// Command is an operator request applied at the next tick boundary.
type Command struct {
	Kind CommandKind

	// SELECT
	Region int
	Items  []string

	// PREVIEW, COMMIT, DISCARD
	Ref    string
	Cursor model.Point

	// CANCEL_ITEM, SET_QUANTITY
	PostingID int
	Item      string
	Quantity  int

	Reply chan<- Result
}

type Result struct {
	OK      bool
	Code    string
	Message string

	Ref       string
	PostingID int
	Items     []string

	Destinations []model.Cell
	Center       model.Point
	Radius       float64
}

func fail(code, format string, args ...any) Result {
	return Result{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (c Command) record(res Result) RecordedCommand {
	rc := RecordedCommand{
		Kind:      c.Kind,
		Region:    c.Region,
		Ref:       c.Ref,
		Items:     c.Items,
		PostingID: c.PostingID,
		Item:      c.Item,
		Quantity:  c.Quantity,
		OK:        res.OK,
		Code:      res.Code,
	}
	if c.Kind == CmdSelect {
		rc.Ref = res.Ref
	}
	if c.Kind == CmdPreview || c.Kind == CmdCommit {
		rc.Cursor = [2]float64{c.Cursor.X, c.Cursor.Z}
	}
	if c.Kind == CmdCommit && res.OK {
		rc.PostingID = res.PostingID
	}
	return rc
}

func (w *World) apply(cmd Command, nowTick uint64) Result {
	switch cmd.Kind {
	case CmdSelect:
		return w.applySelect(cmd)
	case CmdPreview:
		p, ok := w.planning[cmd.Ref]
		if !ok {
			return fail(protocol.ErrUnknownRef, "no selection %q", cmd.Ref)
		}
		return w.preview(cmd.Ref, p, cmd.Cursor)
	case CmdCommit:
		return w.applyCommit(cmd, nowTick)
	case CmdDiscard:
		if _, ok := w.planning[cmd.Ref]; !ok {
			return fail(protocol.ErrUnknownRef, "no selection %q", cmd.Ref)
		}
		delete(w.planning, cmd.Ref)
		return Result{OK: true, Ref: cmd.Ref}
	case CmdCancelItem:
		if cmd.Item == "" {
			return fail(protocol.ErrBadRequest, "missing item")
		}
		if !w.haul.CancelItem(cmd.Item) {
			return fail(protocol.ErrNotFound, "item %s is not in any posting", cmd.Item)
		}
		return Result{OK: true, Items: []string{cmd.Item}}
	case CmdSetQuantity:
		p := w.haul.Posting(cmd.PostingID)
		if p == nil {
			return fail(protocol.ErrNotFound, "no posting %d", cmd.PostingID)
		}
		if err := w.haul.SetQuantity(p, cmd.Item, cmd.Quantity); err != nil {
			if errors.Is(err, haul.ErrQuantityOutOfRange) {
				return fail(protocol.ErrOutOfRange, "%v", err)
			}
			return fail(protocol.ErrNotFound, "%v", err)
		}
		w.audit(AuditEntry{Event: "QUANTITY_SET", Region: p.RegionID(), PostingID: p.ID(), Item: cmd.Item, Count: cmd.Quantity})
		return Result{OK: true, PostingID: p.ID()}
	default:
		return fail(protocol.ErrBadRequest, "unknown command %q", cmd.Kind)
	}
}

func (w *World) applySelect(cmd Command) Result {
	if _, ok := w.regions[cmd.Region]; !ok {
		return fail(protocol.ErrNotFound, "no region %d", cmd.Region)
	}
	if len(cmd.Items) == 0 {
		return fail(protocol.ErrBadRequest, "empty selection")
	}
	sel := make([]any, len(cmd.Items))
	for i, id := range cmd.Items {
		sel[i] = id
	}
	p, err := w.haul.CreatePosting(cmd.Region, sel)
	if err != nil {
		return fail(protocol.ErrNotFound, "%v", err)
	}
	if len(p.Items()) == 0 {
		return fail(protocol.ErrEmptySelection, "nothing haulable in selection")
	}
	ref := uuid.NewString()
	w.planning[ref] = p
	return Result{OK: true, Ref: ref, PostingID: p.ID(), Items: p.Items()}
}

func (w *World) preview(ref string, p *haul.Posting, cursor model.Point) Result {
	ok := w.haul.TryMakeDestinations(p, cursor, true)
	res := Result{
		OK:           ok,
		Ref:          ref,
		PostingID:    p.ID(),
		Destinations: p.Destinations(),
		Center:       p.VisualizationCenter(),
		Radius:       p.VisualizationRadius(),
	}
	if !ok {
		res.Code = protocol.ErrNoDestination
		res.Message = "no room near cursor"
	}
	return res
}

func (w *World) applyCommit(cmd Command, nowTick uint64) Result {
	p, ok := w.planning[cmd.Ref]
	if !ok {
		return fail(protocol.ErrUnknownRef, "no selection %q", cmd.Ref)
	}
	res := w.preview(cmd.Ref, p, cmd.Cursor)
	if !res.OK {
		return res
	}
	if err := w.haul.CommitPosting(p); err != nil {
		w.log.Printf("ERROR tick %d commit posting %d: %v", nowTick, p.ID(), err)
		delete(w.planning, cmd.Ref)
		return fail(protocol.ErrInternal, "%v", err)
	}
	delete(w.planning, cmd.Ref)
	res.Items = p.Items()
	return res
}

// Post selects items in a region and commits them at cursor in one go, applying
// any quantity overrides keyed by item id. It must run on the world loop
// goroutine or before Run.
func (w *World) Post(region int, items []string, cursor model.Point, quantities map[string]int) (int, error) {
	sel := w.apply(Command{Kind: CmdSelect, Region: region, Items: items}, w.tick.Load())
	if !sel.OK {
		return 0, fmt.Errorf("%s: %s", sel.Code, sel.Message)
	}
	res := w.apply(Command{Kind: CmdCommit, Ref: sel.Ref, Cursor: cursor}, w.tick.Load())
	if !res.OK {
		delete(w.planning, sel.Ref)
		return 0, fmt.Errorf("%s: %s", res.Code, res.Message)
	}
	for _, id := range sortedKeys(quantities) {
		q := w.apply(Command{Kind: CmdSetQuantity, PostingID: res.PostingID, Item: id, Quantity: quantities[id]}, w.tick.Load())
		if !q.OK {
			return res.PostingID, fmt.Errorf("%s: %s", q.Code, q.Message)
		}
	}
	return res.PostingID, nil
}

package haul

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haulplan.ai/internal/sim/model"
)

func newTestService(t *testing.T, regions fakeRegions) (*Service, *recordingHooks) {
	t.Helper()
	hooks := &recordingHooks{}
	logger, _ := bufLogger()
	return NewService(regions, Options{Logger: logger, Hooks: hooks, Rand: fixedRand(0)}), hooks
}

func committed(t *testing.T, s *Service, region int, cursor model.Point, sel ...any) *Posting {
	t.Helper()
	p, err := s.CreatePosting(region, sel)
	require.NoError(t, err)
	require.True(t, s.TryMakeDestinations(p, cursor, true))
	require.NoError(t, s.CommitPosting(p))
	return p
}

func TestServiceCommitPosting(t *testing.T) {
	w := newFakeWorld(9, 9)
	w.addItem("a", "wood", 75, 100, 0, 0)
	w.addItem("b", "wood", 40, 100, 1, 0)
	s, hooks := newTestService(t, fakeRegions{0: w})

	p, err := s.CreatePosting(0, []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, StatusPlanning, s.Status(p))
	require.True(t, s.TryMakeDestinations(p, model.Point{X: 4.5, Z: 4.5}, true))
	require.True(t, s.TryMakeDestinations(p, model.Point{X: 4.5, Z: 4.5}, true))
	assert.Equal(t, 1, hooks.searched, "cached call is not a search")

	require.NoError(t, s.CommitPosting(p))
	assert.True(t, p.Registered())
	assert.Equal(t, []string{"a", "b"}, w.released)
	assert.Equal(t, []int{p.ID()}, hooks.committed)
	assert.Same(t, p, s.FindPostingContaining("b"))
	assert.Same(t, p, s.Posting(p.ID()))
	assert.Equal(t, []string{"a", "b"}, s.Haulables(0))
	assert.Equal(t, StatusInProgress, s.Status(p))

	err = s.CommitPosting(p)
	require.ErrorIs(t, err, ErrDuplicatePostingID)
	assert.True(t, IsPrecondition(err))
}

func TestServiceCommitRejectsDuplicateIDBeforeSideEffects(t *testing.T) {
	w := newFakeWorld(9, 9)
	w.addItem("a", "wood", 75, 100, 0, 0)
	w.addItem("b", "wood", 40, 100, 1, 0)
	s, _ := newTestService(t, fakeRegions{0: w})
	first := committed(t, s, 0, model.Point{X: 4.5, Z: 4.5}, "a")
	w.released = nil

	clash := NewPosting(first.ID(), 0, []any{"a", "b"}, w, nil)
	err := s.CommitPosting(clash)
	require.ErrorIs(t, err, ErrDuplicatePostingID)
	assert.True(t, IsPrecondition(err))
	assert.Empty(t, w.released)
	assert.True(t, first.HasItem("a"))
}

func TestServiceSingleMembershipAcrossRegions(t *testing.T) {
	home := newFakeWorld(9, 9)
	home.addItem("a", "wood", 75, 100, 0, 0)
	home.addItem("b", "wood", 40, 100, 1, 0)
	away := newFakeWorld(9, 9)
	away.region = 1
	away.items = home.items
	s, hooks := newTestService(t, fakeRegions{0: home, 1: away})

	first := committed(t, s, 0, model.Point{X: 4.5, Z: 4.5}, "a", "b")
	second := committed(t, s, 1, model.Point{X: 2.5, Z: 2.5}, "b")

	assert.Greater(t, second.ID(), first.ID())
	assert.Equal(t, []string{"a"}, first.Items())
	assert.Equal(t, []string{"b"}, hooks.removed)
	// The item left by reassignment, not by cancel.
	assert.Equal(t, 115, first.RecordWithItem("a").SelectedQuantity())
	assert.Same(t, second, s.FindPostingContaining("b"))
	assert.True(t, first.Coherent())
	assert.True(t, second.Coherent())

	members := map[string]int{}
	for _, r := range s.Registries() {
		for _, p := range r.Postings() {
			for _, id := range p.Items() {
				members[id]++
			}
		}
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, members)
}

func TestServiceUnknownRegion(t *testing.T) {
	s, _ := newTestService(t, fakeRegions{})
	_, err := s.CreatePosting(4, nil)
	require.ErrorIs(t, err, ErrUnknownRegion)
	assert.False(t, IsPrecondition(err))
}

func TestServicePostingIDsStayMonotonic(t *testing.T) {
	w := newFakeWorld(9, 9)
	w.addItem("a", "wood", 75, 100, 0, 0)
	s, _ := newTestService(t, fakeRegions{0: w})

	first, err := s.CreatePosting(0, []any{"a"})
	require.NoError(t, err)
	second, err := s.CreatePosting(0, []any{"a"})
	require.NoError(t, err)
	assert.Equal(t, first.ID()+1, second.ID())

	manual := NewPosting(40, 0, []any{"a"}, w, nil)
	require.NoError(t, s.CommitPosting(manual))
	next, err := s.CreatePosting(0, nil)
	require.NoError(t, err)
	assert.Equal(t, 41, next.ID())
}

func TestServiceCancelItem(t *testing.T) {
	w := newFakeWorld(9, 9)
	w.addItem("a", "wood", 75, 100, 0, 0)
	w.addItem("b", "wood", 40, 100, 1, 0)
	s, hooks := newTestService(t, fakeRegions{0: w})
	p := committed(t, s, 0, model.Point{X: 4.5, Z: 4.5}, "a", "b")
	require.NoError(t, s.SetQuantity(p, "a", 100))

	assert.True(t, s.CancelItem("a"))
	assert.Equal(t, []string{"a"}, w.ended)
	assert.Equal(t, []string{"a"}, hooks.removed)
	rec := p.RecordWithItem("b")
	assert.Equal(t, 40, rec.SelectedQuantity())
	assert.Equal(t, 40, rec.EffectiveQuantity())
	assert.Nil(t, s.FindPostingContaining("a"))

	assert.False(t, s.CancelItem("a"))
	assert.False(t, s.CancelItem("nobody"))
}

func TestServiceSetQuantityErrors(t *testing.T) {
	w := newFakeWorld(9, 9)
	w.addItem("a", "wood", 75, 100, 0, 0)
	s, _ := newTestService(t, fakeRegions{0: w})
	p := committed(t, s, 0, model.Point{X: 4.5, Z: 4.5}, "a")

	require.ErrorIs(t, s.SetQuantity(p, "zzz", 1), ErrItemNotInPosting)
	require.ErrorIs(t, s.SetQuantity(p, "a", 80), ErrQuantityOutOfRange)
	require.NoError(t, s.SetQuantity(p, "a", 10))
	assert.Equal(t, 10, p.RecordWithItem("a").EffectiveQuantity())
}

func TestServiceStatusTransitions(t *testing.T) {
	w := newFakeWorld(9, 9)
	w.addItem("a", "wood", 75, 100, 0, 0)
	w.addItem("b", "wood", 40, 100, 1, 0)
	w.addWorker("w1", 0, 1)
	s, _ := newTestService(t, fakeRegions{0: w})
	p := committed(t, s, 0, model.Point{X: 4.5, Z: 4.5}, "a", "b")
	sig := model.Signature{Def: "wood"}

	assert.Equal(t, StatusInProgress, s.Status(p))

	// Picked up: no longer on the ground but in transit.
	w.items["a"].Holder = "w1"
	w.current["w1"] = model.Delivery{PostingID: p.ID(), ItemID: "a", Sig: sig, Count: 75, Targets: p.Destinations()[:1]}
	assert.Equal(t, StatusInProgress, s.Status(p))

	// Delivered.
	delete(w.current, "w1")
	s.RecordDelivery(p, sig, 75)
	assert.True(t, s.RemoveItem(p, w.item("a"), false))
	assert.Equal(t, StatusInProgress, s.Status(p))

	// The destination area became unusable.
	for x := 0; x < 9; x++ {
		for z := 2; z < 9; z++ {
			w.blocked[model.Cell{X: x, Z: z}] = true
		}
	}
	assert.False(t, s.TryMakeDestinations(p, model.Point{X: 4.5, Z: 4.5}, false))
	assert.Equal(t, StatusDestinationBlocked, s.Status(p))

	// The last source was destroyed.
	delete(w.items, "b")
	assert.Equal(t, StatusIncompletable, s.Status(p))
	assert.True(t, s.Status(p).Terminal())
}

func TestServiceStatusComplete(t *testing.T) {
	w := newFakeWorld(9, 9)
	w.addItem("a", "wood", 75, 100, 0, 0)
	s, hooks := newTestService(t, fakeRegions{0: w})
	p := committed(t, s, 0, model.Point{X: 4.5, Z: 4.5}, "a")

	s.RecordDelivery(p, model.Signature{Def: "wood"}, 75)
	assert.Equal(t, StatusComplete, s.Status(p))
	assert.Equal(t, 75, hooks.delivered)
	assert.Zero(t, hooks.overkill)
}

func TestServiceOverkillIsClampedAndSticky(t *testing.T) {
	w := newFakeWorld(9, 9)
	w.addItem("a", "wood", 75, 100, 0, 0)
	hooks := &recordingHooks{}
	logger, buf := bufLogger()
	s := NewService(fakeRegions{0: w}, Options{Logger: logger, Hooks: hooks})
	p := committed(t, s, 0, model.Point{X: 4.5, Z: 4.5}, "a")
	sig := model.Signature{Def: "wood"}

	s.RecordDelivery(p, sig, 80)
	assert.Equal(t, 5, hooks.overkill)
	assert.Contains(t, buf.String(), "ERROR")
	rec := p.RecordFor(sig)
	assert.Equal(t, 75, rec.MovedQuantity())
	assert.Equal(t, StatusOverkillError, s.Status(p))
	assert.Equal(t, StatusOverkillError, s.Status(p))

	s.RecordDelivery(p, model.Signature{Def: "gold"}, 1)
	assert.Contains(t, buf.String(), "unknown record")
}

func TestStatusOverrideDropBelowMovedCompletes(t *testing.T) {
	w := newFakeWorld(9, 9)
	w.addItem("a", "wood", 75, 100, 0, 0)
	s, _ := newTestService(t, fakeRegions{0: w})
	p := committed(t, s, 0, model.Point{X: 4.5, Z: 4.5}, "a")
	sig := model.Signature{Def: "wood"}

	s.RecordDelivery(p, sig, 50)
	require.NoError(t, s.SetQuantity(p, "a", 20))
	assert.Equal(t, StatusComplete, s.Status(p))
	rec := p.RecordFor(sig)
	assert.Equal(t, 20, rec.MovedQuantity())
	assert.Zero(t, rec.Overshoot())

	// Raising the quantity again reopens the posting.
	require.NoError(t, s.SetQuantity(p, "a", 60))
	assert.Equal(t, StatusInProgress, s.Status(p))
}

func TestServiceCleanGarbage(t *testing.T) {
	home := newFakeWorld(9, 9)
	home.addItem("a", "wood", 75, 100, 0, 0)
	home.addItem("b", "wood", 40, 100, 1, 0)
	away := newFakeWorld(9, 9)
	away.region = 1
	away.addItem("c", "stone", 10, 75, 0, 0)
	regions := fakeRegions{0: home, 1: away}
	s, hooks := newTestService(t, regions)

	first := committed(t, s, 0, model.Point{X: 4.5, Z: 4.5}, "a", "b")
	second := committed(t, s, 0, model.Point{X: 8.5, Z: 8.5}, "a")
	committed(t, s, 1, model.Point{X: 4.5, Z: 4.5}, "c")
	require.Equal(t, []string{"b"}, first.Items(), "a moved to the newer posting")
	delete(regions, 1)
	delete(home.items, "b")

	s.CleanGarbage()

	require.Len(t, s.Registries(), 1)
	assert.Equal(t, []int{first.ID()}, hooks.dropped)
	assert.Nil(t, s.Posting(first.ID()))
	assert.Empty(t, first.Items())
	assert.Same(t, second, s.Posting(second.ID()))
	assert.Equal(t, []string{"a"}, second.Items())
}

func TestServiceSelectAllInPosting(t *testing.T) {
	w := newFakeWorld(9, 9)
	w.addItem("a", "wood", 75, 100, 0, 0)
	w.addItem("b", "wood", 40, 100, 1, 0)
	w.addItem("s", "stone", 40, 75, 2, 0)
	s, _ := newTestService(t, fakeRegions{0: w})
	committed(t, s, 0, model.Point{X: 4.5, Z: 4.5}, "a", "b", "s")
	delete(w.items, "b")

	got := s.SelectAllInPosting("s")
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "s", got[1].ID)
	assert.Nil(t, s.SelectAllInPosting("zzz"))
}

func TestServiceAllocateDestinations(t *testing.T) {
	w := newFakeWorld(9, 9)
	w.addItem("a", "wood", 75, 100, 0, 0)
	w.addWorker("w1", 0, 1)
	s, _ := newTestService(t, fakeRegions{0: w})
	p := committed(t, s, 0, model.Point{X: 4.5, Z: 4.5}, "a")

	al, err := s.AllocateDestinations(w.item("a"), "w1", p, nil)
	require.NoError(t, err)
	got, err := al.RequestCapacity(75)
	require.NoError(t, err)
	assert.Equal(t, cells(4, 4), got)

	split := w.addItem("a2", "wood", 25, 100, 0, 0)
	require.True(t, s.AddSplinter(p, split))
	assert.Equal(t, 75, p.RecordWithItem("a2").SelectedQuantity())
}

func TestServiceExportImport(t *testing.T) {
	w := newFakeWorld(9, 9)
	w.addItem("a", "wood", 75, 100, 0, 0)
	w.addItem("b", "wood", 40, 100, 1, 0)
	w.addItem("c", "wood", 10, 100, 2, 0)
	s, _ := newTestService(t, fakeRegions{0: w})
	p := committed(t, s, 0, model.Point{X: 4.5, Z: 4.5}, "a", "b")
	require.NoError(t, s.SetQuantity(p, "a", 90))
	s.RecordDelivery(p, model.Signature{Def: "wood"}, 30)

	blocked, err := s.CreatePosting(0, []any{"c"})
	require.NoError(t, err)
	require.NoError(t, s.CommitPosting(blocked))

	saved := s.Export()
	require.Len(t, saved.Registries, 1)

	restored, _ := newTestService(t, fakeRegions{0: w})
	require.NoError(t, restored.Import(saved))

	got := restored.Posting(p.ID())
	require.NotNil(t, got)
	assert.True(t, got.Registered())
	assert.Equal(t, p.Items(), got.Items())
	assert.Equal(t, p.Destinations(), got.Destinations())
	assert.Equal(t, p.VisualizationCenter(), got.VisualizationCenter())
	cur, ok := got.Cursor()
	require.True(t, ok)
	assert.Equal(t, model.Point{X: 4.5, Z: 4.5}, cur)
	rec := got.RecordWithItem("a")
	assert.Equal(t, 90, rec.EffectiveQuantity())
	assert.Equal(t, 115, rec.SelectedQuantity())
	assert.Equal(t, 30, rec.MovedQuantity())
	assert.Zero(t, rec.MergeStackCount())

	nb := restored.Posting(blocked.ID())
	require.NotNil(t, nb)
	assert.Nil(t, nb.Destinations())
	assert.Equal(t, StatusDestinationBlocked, restored.Status(nb))

	next, err := restored.CreatePosting(0, nil)
	require.NoError(t, err)
	assert.Greater(t, next.ID(), blocked.ID())
}

func TestServiceImportMissingRegistry(t *testing.T) {
	w := newFakeWorld(9, 9)
	w.addItem("a", "wood", 75, 100, 0, 0)
	logger, buf := bufLogger()
	s := NewService(fakeRegions{0: w}, Options{Logger: logger})
	committed(t, s, 0, model.Point{X: 4.5, Z: 4.5}, "a")

	require.NoError(t, s.Import(nil))
	assert.Empty(t, s.Registries())
	assert.Contains(t, buf.String(), "ERROR no haul registry")

	bad := s.Export()
	bad.FormatVersion = 99
	assert.Error(t, s.Import(bad))
}

package haul

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haulplan.ai/internal/sim/model"
)

func wood(id string, count int) model.Item {
	return model.Item{ID: id, Def: "wood", Count: count, StackLimit: 100}
}

func TestRecordTryAddChecksSignature(t *testing.T) {
	rec := newRecord(1, wood("a", 75))

	assert.True(t, rec.TryAdd(wood("b", 40), true))
	assert.False(t, rec.TryAdd(wood("b", 40), true), "duplicate item")
	assert.False(t, rec.TryAdd(model.Item{ID: "c", Def: "stone", Count: 5, StackLimit: 75}, true))
	assert.False(t, rec.TryAdd(model.Item{ID: "d", Def: "wood", Stuff: "oak", Count: 5, StackLimit: 100}, true))

	assert.Equal(t, 115, rec.SelectedQuantity())
	assert.Equal(t, []string{"a", "b"}, rec.Items())
}

func TestRecordTryAddWithoutSideEffects(t *testing.T) {
	rec := newRecord(1, wood("a", 75))
	require.True(t, rec.TryAdd(wood("a2", 25), false))
	assert.Equal(t, 75, rec.SelectedQuantity())
}

func TestRecordOperatorCancelClampsOverride(t *testing.T) {
	rec := newRecord(1, wood("a", 75))
	require.True(t, rec.TryAdd(wood("b", 40), true))
	require.NoError(t, rec.SetQuantity(100))

	require.True(t, rec.TryRemove(wood("a", 75), true))
	assert.Equal(t, 40, rec.SelectedQuantity())
	assert.Equal(t, 40, rec.EffectiveQuantity())
	assert.True(t, rec.PlayerChangedQuantity())

	assert.False(t, rec.TryRemove(wood("a", 75), true), "already removed")
}

func TestRecordDeliveredRemovalKeepsSelected(t *testing.T) {
	rec := newRecord(1, wood("a", 75))
	require.True(t, rec.TryAdd(wood("b", 40), true))
	require.NoError(t, rec.SetQuantity(90))

	require.True(t, rec.TryRemove(wood("a", 75), false))
	assert.Equal(t, 115, rec.SelectedQuantity())
	assert.Equal(t, 90, rec.EffectiveQuantity())
}

func TestRecordSetQuantityRange(t *testing.T) {
	rec := newRecord(1, wood("a", 75))

	err := rec.SetQuantity(76)
	require.ErrorIs(t, err, ErrQuantityOutOfRange)
	assert.False(t, IsPrecondition(err))
	assert.Equal(t, 75, rec.EffectiveQuantity())

	require.ErrorIs(t, rec.SetQuantity(-1), ErrQuantityOutOfRange)
	assert.False(t, rec.PlayerChangedQuantity())

	require.NoError(t, rec.SetQuantity(0))
	assert.Equal(t, 0, rec.EffectiveQuantity())
	rec.ClearQuantity()
	assert.Equal(t, 75, rec.EffectiveQuantity())
}

func TestStacksRequired(t *testing.T) {
	tests := []struct {
		name   string
		qty    int
		merges []int
		want   int
	}{
		{name: "empty", qty: 0, want: 0},
		{name: "one partial stack", qty: 40, want: 1},
		{name: "exact stack", qty: 100, want: 1},
		{name: "two stacks", qty: 115, want: 2},
		{name: "merge absorbs part", qty: 115, merges: []int{60}, want: 2},
		{name: "merge absorbs all", qty: 30, merges: []int{60}, want: 1},
		{name: "two merges", qty: 115, merges: []int{60, 10}, want: 2},
		{name: "full merge target counts", qty: 50, merges: []int{100}, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &InventoryRecord{sig: model.Signature{Def: "wood"}, stackLimit: 100, selected: tt.qty, override: noOverride}
			for _, m := range tt.merges {
				rec.AddMergeCell(m)
			}
			assert.Equal(t, tt.want, rec.StacksRequired())
		})
	}
}

func TestMergeCapacityBounds(t *testing.T) {
	rec := newRecord(1, wood("a", 75))
	for _, existing := range []int{60, 100, 130, 0, 99} {
		rec.AddMergeCell(existing)
		assert.GreaterOrEqual(t, rec.MergeCapacity(), 0)
		assert.LessOrEqual(t, rec.MergeCapacity(), rec.StackLimit()*rec.MergeStackCount())
	}
	assert.Equal(t, 5, rec.MergeStackCount())
	assert.Equal(t, 40+100+1, rec.MergeCapacity())

	rec.ResetMerge()
	assert.Zero(t, rec.MergeCapacity())
	assert.Zero(t, rec.MergeStackCount())
}

func TestRemainingToDeliverCountsInTransit(t *testing.T) {
	w := newFakeWorld(4, 4)
	w.addWorker("w1", 0, 0)
	w.addWorker("w2", 1, 0)
	w.workers["other"] = model.Worker{ID: "other", Faction: "raiders"}

	rec := newRecord(7, wood("a", 75))
	require.True(t, rec.TryAdd(wood("b", 40), true))
	rec.recordDelivery(10)

	w.current["w1"] = model.Delivery{PostingID: 7, ItemID: "a", Sig: rec.Signature(), Count: 30}
	w.current["w2"] = model.Delivery{PostingID: 8, ItemID: "x", Sig: rec.Signature(), Count: 50}
	w.current["other"] = model.Delivery{PostingID: 7, ItemID: "b", Sig: rec.Signature(), Count: 40}

	assert.Equal(t, 30, rec.InTransit(w, "colony"))
	assert.Equal(t, 75, rec.RemainingToDeliver(w, "colony"))

	rec.recordDelivery(90)
	assert.Zero(t, rec.RemainingToDeliver(w, "colony"))
}

func TestRecordDeliveryClampsOvershoot(t *testing.T) {
	rec := newRecord(1, wood("a", 75))

	assert.Zero(t, rec.recordDelivery(70))
	assert.Equal(t, 10, rec.recordDelivery(15))
	assert.Equal(t, 75, rec.MovedQuantity())
	assert.Equal(t, 10, rec.Overshoot())

	assert.Zero(t, rec.recordDelivery(-3))
	assert.Equal(t, 75, rec.MovedQuantity())
}

func TestRecordLoweredQuantityIsNoOvershoot(t *testing.T) {
	rec := newRecord(1, wood("a", 75))
	require.True(t, rec.TryAdd(wood("b", 40), true))
	assert.Zero(t, rec.recordDelivery(60))

	require.NoError(t, rec.SetQuantity(30))
	assert.Equal(t, 30, rec.MovedQuantity())
	assert.Zero(t, rec.clampMoved())

	rec.ClearQuantity()
	require.True(t, rec.TryRemove(wood("b", 40), true))
	require.True(t, rec.TryRemove(wood("a", 75), true))
	assert.Zero(t, rec.MovedQuantity())
	assert.Zero(t, rec.Overshoot())
}

func TestRecordLabel(t *testing.T) {
	rec := newRecord(1, model.Item{ID: "a", Def: "minified", Stuff: "oak", InnerDef: "table", Count: 1, StackLimit: 1})
	assert.Equal(t, "oak table x1", rec.Label())

	rec = newRecord(1, wood("b", 40))
	require.NoError(t, rec.SetQuantity(25))
	assert.Equal(t, "wood x25", rec.Label())
}

func TestStacksWorthClampsLimit(t *testing.T) {
	assert.Equal(t, 3, StacksWorth(0, 3))
	assert.Equal(t, 0, StacksWorth(10, -5))
	assert.Equal(t, 2, StacksWorth(10, 11))
}

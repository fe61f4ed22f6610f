package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func placed(id int64, instrumentID int, side Side, qty int64, price string) Placed {
	return Placed{
		OrderID:         id,
		InstrumentID:    instrumentID,
		Side:            side,
		Price:           decimal.RequireFromString(price),
		InitialQuantity: qty,
	}
}

func TestLedgerLifecycle(t *testing.T) {
	l := NewLedger(nil)

	require.NoError(t, l.OnPlaced(placed(1, 10, SideBuy, 5, "99")))
	require.NoError(t, l.OnPlaced(placed(2, 10, SideSell, 3, "101")))
	require.NoError(t, l.OnPlaced(placed(3, 11, SideBuy, 7, "0.5")))

	assert.Equal(t, []int64{1, 2}, l.OrderIDs(10))
	assert.Equal(t, []int64{1, 2, 3}, l.AllOrderIDs())
	assert.EqualValues(t, 8, l.PlacedQuantity(10))

	require.NoError(t, l.OnFilled(Filled{OrderID: 1, InstrumentID: 10, FilledQuantity: 2}))
	o, ok := l.Order(1)
	require.True(t, ok)
	assert.EqualValues(t, 3, o.Quantity)
	assert.EqualValues(t, 5, o.InitialQuantity)
	assert.EqualValues(t, 6, l.PlacedQuantity(10))

	// 全部成交后从两个索引中移除
	require.NoError(t, l.OnFilled(Filled{OrderID: 1, FilledQuantity: 3}))
	_, ok = l.Order(1)
	assert.False(t, ok)
	assert.Equal(t, []int64{2}, l.OrderIDs(10))

	require.NoError(t, l.OnCancelled(2))
	require.NoError(t, l.OnForcedCancel(3))
	assert.Zero(t, l.Len())
	assert.Empty(t, l.OrderIDs(10))
	assert.Empty(t, l.AllOrderIDs())
	assert.Zero(t, l.PlacedQuantity(10))
}

func TestLedgerUnknownOrder(t *testing.T) {
	l := NewLedger(nil)
	assert.ErrorIs(t, l.OnFilled(Filled{OrderID: 42, FilledQuantity: 1}), ErrUnknownOrder)
	assert.ErrorIs(t, l.OnCancelled(42), ErrUnknownOrder)
	assert.ErrorIs(t, l.OnForcedCancel(42), ErrUnknownOrder)

	require.NoError(t, l.OnPlaced(placed(1, 10, SideBuy, 1, "1")))
	assert.ErrorIs(t, l.OnFilled(Filled{OrderID: 1, InstrumentID: 11, FilledQuantity: 1}), ErrUnknownOrder)
}

func TestLedgerRejectsBadEvents(t *testing.T) {
	l := NewLedger(nil)
	require.NoError(t, l.OnPlaced(placed(1, 10, SideBuy, 2, "1")))

	assert.ErrorIs(t, l.OnPlaced(placed(1, 10, SideBuy, 2, "1")), ErrDuplicateOrder)
	assert.ErrorIs(t, l.OnPlaced(placed(2, 10, SideBuy, 0, "1")), ErrInvalidOrder)
	assert.ErrorIs(t, l.OnPlaced(placed(3, 10, SideBuy, 1, "0")), ErrInvalidOrder)
	assert.ErrorIs(t, l.OnFilled(Filled{OrderID: 1, FilledQuantity: 3}), ErrOverfill)
	assert.ErrorIs(t, l.OnFilled(Filled{OrderID: 1, FilledQuantity: 0}), ErrInvalidOrder)

	o, _ := l.Order(1)
	assert.EqualValues(t, 2, o.Quantity)
}

func TestNextOrderIDAdvancesPastPlaced(t *testing.T) {
	l := NewLedger(nil)
	assert.EqualValues(t, 1, l.NextOrderID())
	assert.EqualValues(t, 2, l.NextOrderID())

	require.NoError(t, l.OnPlaced(placed(100, 1, SideSell, 1, "2")))
	assert.EqualValues(t, 101, l.NextOrderID())

	// 较小的 id 不会让计数器回退
	require.NoError(t, l.OnPlaced(placed(50, 1, SideSell, 1, "2")))
	assert.EqualValues(t, 102, l.NextOrderID())
}

func TestLedgerIndicesStayConsistent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := NewLedger(nil)
		live := map[int64]int64{}

		steps := rapid.IntRange(1, 200).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				id := l.NextOrderID()
				qty := rapid.Int64Range(1, 10).Draw(t, "qty")
				inst := rapid.IntRange(1, 4).Draw(t, "instrument")
				if err := l.OnPlaced(placed(id, inst, SideBuy, qty, "1")); err != nil {
					t.Fatalf("place: %v", err)
				}
				live[id] = qty
			case 1:
				if len(live) == 0 {
					continue
				}
				ids := l.AllOrderIDs()
				id := rapid.SampledFrom(ids).Draw(t, "fill")
				qty := rapid.Int64Range(1, live[id]).Draw(t, "fillQty")
				if err := l.OnFilled(Filled{OrderID: id, FilledQuantity: qty}); err != nil {
					t.Fatalf("fill: %v", err)
				}
				live[id] -= qty
				if live[id] == 0 {
					delete(live, id)
				}
			case 2:
				if len(live) == 0 {
					continue
				}
				id := rapid.SampledFrom(l.AllOrderIDs()).Draw(t, "cancel")
				if err := l.OnCancelled(id); err != nil {
					t.Fatalf("cancel: %v", err)
				}
				delete(live, id)
			}

			var perInstrument int
			for inst := 1; inst <= 4; inst++ {
				for _, id := range l.OrderIDs(inst) {
					o, ok := l.Order(id)
					if !ok || o.InstrumentID != inst {
						t.Fatalf("order %d indexed under %d but missing from global index", id, inst)
					}
					perInstrument++
				}
			}
			if perInstrument != l.Len() || l.Len() != len(live) {
				t.Fatalf("index sizes diverged: per-instrument=%d global=%d model=%d", perInstrument, l.Len(), len(live))
			}
			for id, qty := range live {
				o, ok := l.Order(id)
				if !ok || o.Quantity != qty {
					t.Fatalf("order %d: want remaining %d, got %+v", id, qty, o)
				}
			}
		}
	})
}

package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDataManagerMid(t *testing.T) {
	tests := []struct {
		name string
		q    Quotes
		want string
	}{
		{"both sides", Quotes{InstrumentID: 1, Bid: &PriceQuantity{Price: d("99"), Quantity: 1}, Ask: &PriceQuantity{Price: d("100"), Quantity: 2}, Last: d("10")}, "99.5"},
		{"bid only", Quotes{InstrumentID: 1, Bid: &PriceQuantity{Price: d("99")}, Last: d("10")}, "99"},
		{"ask only", Quotes{InstrumentID: 1, Ask: &PriceQuantity{Price: d("101")}, Last: d("10")}, "101"},
		{"empty book", Quotes{InstrumentID: 1, Last: d("10")}, "10"},
		{"rounded to 8 places", Quotes{InstrumentID: 1, Bid: &PriceQuantity{Price: d("0.00000001")}, Ask: &PriceQuantity{Price: d("0.00000004")}}, "0.00000002"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewDataManager(nil)
			require.NoError(t, m.OnQuotes(tc.q))
			mid, err := m.Mid(1)
			require.NoError(t, err)
			assert.True(t, mid.Equal(d(tc.want)), "mid=%s want=%s", mid, tc.want)
		})
	}
}

func TestDataManagerReplacesWholesale(t *testing.T) {
	m := NewDataManager(nil)
	require.NoError(t, m.OnQuotes(Quotes{InstrumentID: 7, Bid: &PriceQuantity{Price: d("1")}, Last: d("1")}))
	require.NoError(t, m.OnQuotes(Quotes{InstrumentID: 7, Last: d("3")}))

	q, ok := m.Quotes(7)
	require.True(t, ok)
	assert.Nil(t, q.Bid)

	mid, err := m.Mid(7)
	require.NoError(t, err)
	assert.True(t, mid.Equal(d("3")))
}

func TestDataManagerMissingQuotes(t *testing.T) {
	m := NewDataManager(nil)
	_, err := m.Mid(1)
	assert.ErrorIs(t, err, ErrNoQuotes)
	_, err = m.LastTradePrice(1)
	assert.ErrorIs(t, err, ErrNoQuotes)

	_, err = LastFairPrice{Data: m}.FairPrice(1)
	assert.ErrorIs(t, err, ErrNoQuotes)
}

func TestDataManagerNonPositivePriceIsMissing(t *testing.T) {
	tests := []struct {
		name string
		q    Quotes
		last bool
	}{
		{"book without trade", Quotes{InstrumentID: 1, Bid: &PriceQuantity{Price: d("99")}, Ask: &PriceQuantity{Price: d("101")}}, true},
		{"empty book without trade", Quotes{InstrumentID: 1}, true},
		{"zero bid only", Quotes{InstrumentID: 1, Bid: &PriceQuantity{Price: d("0")}, Last: d("5")}, false},
		{"mid rounds to zero", Quotes{InstrumentID: 1, Bid: &PriceQuantity{Price: d("0.000000001")}, Ask: &PriceQuantity{Price: d("0.000000002")}, Last: d("5")}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewDataManager(nil)
			require.NoError(t, m.OnQuotes(tc.q))
			src := MidFairPrice{Data: m}.FairPrice
			if tc.last {
				src = LastFairPrice{Data: m}.FairPrice
			}
			_, err := src(1)
			assert.ErrorIs(t, err, ErrNoQuotes)
		})
	}

	// 有盘口时 mid 仍然可用
	m := NewDataManager(nil)
	require.NoError(t, m.OnQuotes(Quotes{InstrumentID: 1, Bid: &PriceQuantity{Price: d("99")}, Ask: &PriceQuantity{Price: d("101")}}))
	mid, err := m.Mid(1)
	require.NoError(t, err)
	assert.True(t, mid.Equal(d("100")))
}

func TestNewFairPriceProvider(t *testing.T) {
	m := NewDataManager(nil)
	require.NoError(t, m.OnQuotes(Quotes{InstrumentID: 1, Bid: &PriceQuantity{Price: d("98")}, Ask: &PriceQuantity{Price: d("102")}, Last: d("97")}))

	last, err := NewFairPriceProvider(SourceLast, m)
	require.NoError(t, err)
	p, err := last.FairPrice(1)
	require.NoError(t, err)
	assert.True(t, p.Equal(d("97")))

	mid, err := NewFairPriceProvider(SourceMid, m)
	require.NoError(t, err)
	p, err = mid.FairPrice(1)
	require.NoError(t, err)
	assert.True(t, p.Equal(d("100")))

	_, err = NewFairPriceProvider("vwap", m)
	assert.Error(t, err)

	vol, err := ConstantVolatility(d("0.6")).FairPrice(12345)
	require.NoError(t, err)
	assert.True(t, vol.Equal(d("0.6")))
}

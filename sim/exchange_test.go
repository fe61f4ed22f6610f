package sim

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-mm/gateway"
	"options-mm/instrument"
	"options-mm/order"
	"options-mm/risk"
)

func dial(t *testing.T, x *Exchange) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(x)
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func recv(t *testing.T, conn *websocket.Conn) gateway.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env gateway.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestExchangeOrderFlow(t *testing.T) {
	insts := []instrument.Instrument{{
		ID: 1, Symbol: "F", Kind: instrument.KindInverseFutures,
		Expiration: time.Date(2026, 12, 25, 8, 0, 0, 0, time.UTC), TickSize: decimal.RequireFromString("0.5"), NotionalAmount: 1,
	}}
	x := NewExchange(insts, risk.AccountState{}, nil)
	conn := dial(t, x)

	// 未设置 secret 时不校验签名
	send(t, conn, gateway.Envelope{Type: gateway.TypeAuth, Data: json.RawMessage(`{"apiKey":"k"}`)})
	env := recv(t, conn)
	require.Equal(t, gateway.TypeInstruments, env.Type)
	got, err := gateway.DecodeInstruments(env.Data)
	require.NoError(t, err)
	assert.Equal(t, "F", got[0].Symbol)

	send(t, conn, gateway.Envelope{Type: gateway.TypeSubscribe})
	assert.Equal(t, gateway.TypeAccountState, recv(t, conn).Type)

	price := decimal.RequireFromString("100")
	send(t, conn, gateway.BatchMessage{Type: gateway.TypeBatch, Batch: []order.Operation{
		order.PlaceLimit(1, 1, order.SideBuy, 1, price),
		order.PlaceLimit(2, 1, order.SideSell, 0, price),
		order.PlaceLimit(3, 1, order.SideSell, 2, price.Add(decimal.NewFromInt(1))),
	}})
	assert.Equal(t, gateway.TypeOrderPlaced, recv(t, conn).Type)
	assert.Equal(t, gateway.TypeOrderPlaceFailed, recv(t, conn).Type)
	assert.Equal(t, gateway.TypeOrderPlaced, recv(t, conn).Type)
	<-x.Batches()
	assert.Equal(t, []int64{1, 3}, x.OpenOrderIDs())

	require.NoError(t, x.Fill(3, 5))
	env = recv(t, conn)
	require.Equal(t, gateway.TypeOrderFilled, env.Type)
	var filled order.Filled
	require.NoError(t, json.Unmarshal(env.Data, &filled))
	assert.EqualValues(t, 2, filled.FilledQuantity)
	assert.EqualValues(t, 0, filled.LeftQuantity)
	env = recv(t, conn)
	require.Equal(t, gateway.TypeOpenPosition, env.Type)
	var pos risk.OpenPosition
	require.NoError(t, json.Unmarshal(env.Data, &pos))
	assert.Equal(t, risk.OpenPosition{InstrumentID: 1, Quantity: -2}, pos)
	assert.ErrorIs(t, x.Fill(3, 1), order.ErrUnknownOrder)

	send(t, conn, gateway.BatchMessage{Type: gateway.TypeBatch, Batch: []order.Operation{order.CancelAll()}})
	assert.Equal(t, gateway.TypeOrderCancelled, recv(t, conn).Type)
	env = recv(t, conn)
	assert.Equal(t, gateway.TypeAllOrdersCancelled, env.Type)
	assert.Empty(t, env.Data)
	<-x.Batches()
	assert.Empty(t, x.OpenOrderIDs())
}

func TestExchangePushWithoutClient(t *testing.T) {
	x := NewExchange(nil, risk.AccountState{}, nil)
	assert.Error(t, x.Push(gateway.TypeOpenPosition, risk.OpenPosition{InstrumentID: 1}))
}

package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"options-mm/gateway"
	"options-mm/instrument"
	"options-mm/market"
	"options-mm/order"
	"options-mm/risk"
)

// Exchange 内存模拟交易所，说同一套 websocket 协议。
// 收到鉴权后下发合约，收到订阅后推送行情与账户快照，
// 批量操作按顺序确认。用于测试与本地演练，不撮合。
type Exchange struct {
	APIKey    string
	APISecret string // 为空时不校验签名

	log      *zap.Logger
	upgrader websocket.Upgrader

	mu          sync.Mutex
	instruments []instrument.Instrument
	quotes      map[int]market.Quotes
	account     risk.AccountState
	open        map[int64]order.Placed
	conn        *websocket.Conn
	writeMu     sync.Mutex
	batches     chan []order.Operation
}

func NewExchange(instruments []instrument.Instrument, account risk.AccountState, log *zap.Logger) *Exchange {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exchange{
		log:         log.Named("sim"),
		instruments: instruments,
		quotes:      make(map[int]market.Quotes),
		account:     account,
		open:        make(map[int64]order.Placed),
		batches:     make(chan []order.Operation, 1024),
	}
}

// Batches 每个收到的批次在确认后发送到此 channel。
func (x *Exchange) Batches() <-chan []order.Operation { return x.batches }

// SetQuotes 更新行情；已连接时立即推送。
func (x *Exchange) SetQuotes(q market.Quotes) error {
	x.mu.Lock()
	x.quotes[q.InstrumentID] = q
	connected := x.conn != nil
	x.mu.Unlock()
	if !connected {
		return nil
	}
	return x.push(gateway.TypeQuotes, q)
}

// OpenOrderIDs 模拟交易所视角的挂单。
func (x *Exchange) OpenOrderIDs() []int64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	ids := make([]int64, 0, len(x.open))
	for id := range x.open {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Fill 成交一笔挂单的部分或全部数量，推送成交回报和更新后的持仓。
func (x *Exchange) Fill(id, qty int64) error {
	x.mu.Lock()
	p, ok := x.open[id]
	if !ok {
		x.mu.Unlock()
		return fmt.Errorf("fill %d: %w", id, order.ErrUnknownOrder)
	}
	if qty > p.Quantity {
		qty = p.Quantity
	}
	p.Quantity -= qty
	if p.Quantity == 0 {
		delete(x.open, id)
	} else {
		x.open[id] = p
	}
	delta := qty
	if p.Side == order.SideSell {
		delta = -qty
	}
	pos := x.addPosition(p.InstrumentID, delta)
	x.mu.Unlock()

	if err := x.push(gateway.TypeOrderFilled, order.Filled{
		OrderID:        id,
		InstrumentID:   p.InstrumentID,
		Price:          p.Price,
		FilledQuantity: qty,
		LeftQuantity:   p.Quantity,
	}); err != nil {
		return err
	}
	return x.push(gateway.TypeOpenPosition, pos)
}

// addPosition 调用方持有 x.mu。
func (x *Exchange) addPosition(instrumentID int, delta int64) risk.OpenPosition {
	for i, p := range x.account.Positions {
		if p.InstrumentID == instrumentID {
			x.account.Positions[i].Quantity += delta
			return x.account.Positions[i]
		}
	}
	p := risk.OpenPosition{InstrumentID: instrumentID, Quantity: delta}
	x.account.Positions = append(x.account.Positions, p)
	return p
}

// Push 向已连接的客户端发送任意事件。
func (x *Exchange) Push(msgType string, data any) error {
	return x.push(msgType, data)
}

func (x *Exchange) push(msgType string, data any) error {
	env, err := gateway.NewEnvelope(msgType, data)
	if err != nil {
		return err
	}
	x.mu.Lock()
	conn := x.conn
	x.mu.Unlock()
	if conn == nil {
		return errors.New("no client connected")
	}
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	return conn.WriteJSON(env)
}

// ServeHTTP 升级为 websocket 并服务一个客户端直到断开。
func (x *Exchange) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := x.upgrader.Upgrade(w, r, nil)
	if err != nil {
		x.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	x.mu.Lock()
	x.conn = conn
	x.mu.Unlock()
	defer func() {
		x.mu.Lock()
		x.conn = nil
		x.mu.Unlock()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				x.log.Debug("client gone", zap.Error(err))
			}
			return
		}
		var env gateway.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			x.log.Warn("malformed message", zap.Error(err))
			return
		}
		if err := x.handle(env, raw); err != nil {
			x.log.Warn("handle message", zap.String("type", env.Type), zap.Error(err))
			return
		}
	}
}

func (x *Exchange) handle(env gateway.Envelope, raw []byte) error {
	switch env.Type {
	case gateway.TypeAuth:
		var auth gateway.AuthData
		if err := json.Unmarshal(env.Data, &auth); err != nil {
			return err
		}
		if x.APISecret != "" && (auth.APIKey != x.APIKey || auth.Signature != gateway.Sign(x.APISecret, auth.APIKey, auth.Timestamp)) {
			return errors.New("bad signature")
		}
		raw, err := gateway.EncodeInstruments(x.instruments)
		if err != nil {
			return err
		}
		return x.push(gateway.TypeInstruments, raw)
	case gateway.TypeSubscribe:
		x.mu.Lock()
		quotes := make([]market.Quotes, 0, len(x.quotes))
		for _, q := range x.quotes {
			quotes = append(quotes, q)
		}
		account := risk.AccountState{Balance: x.account.Balance, Positions: slices.Clone(x.account.Positions)}
		x.mu.Unlock()
		for _, q := range quotes {
			if err := x.push(gateway.TypeQuotes, q); err != nil {
				return err
			}
		}
		return x.push(gateway.TypeAccountState, account)
	case gateway.TypeBatch:
		var batch gateway.BatchMessage
		if err := json.Unmarshal(raw, &batch); err != nil {
			return err
		}
		for _, op := range batch.Batch {
			if err := x.apply(op); err != nil {
				return err
			}
		}
		x.batches <- batch.Batch
		return nil
	default:
		x.log.Debug("ignoring message", zap.String("type", env.Type))
		return nil
	}
}

func (x *Exchange) apply(op order.Operation) error {
	switch op.Type {
	case order.OpCancelAll:
		for _, id := range x.OpenOrderIDs() {
			x.mu.Lock()
			delete(x.open, id)
			x.mu.Unlock()
			if err := x.push(gateway.TypeOrderCancelled, order.Cancelled{OrderID: id}); err != nil {
				return err
			}
		}
		return x.push(gateway.TypeAllOrdersCancelled, nil)
	case order.OpCancel:
		x.mu.Lock()
		_, ok := x.open[op.OrderID]
		delete(x.open, op.OrderID)
		x.mu.Unlock()
		if !ok {
			return x.push(gateway.TypeOrderCancelFailed, order.CancelFailed{OrderID: op.OrderID, Cause: "NOT_FOUND"})
		}
		return x.push(gateway.TypeOrderCancelled, order.Cancelled{OrderID: op.OrderID})
	case order.OpPlaceLimit:
		if op.Price == nil || op.Quantity <= 0 {
			return x.push(gateway.TypeOrderPlaceFailed, order.PlaceFailed{OrderID: op.OrderID, Cause: "INVALID"})
		}
		p := order.Placed{
			OrderID:         op.OrderID,
			InstrumentID:    op.InstrumentID,
			Side:            op.Side,
			Price:           *op.Price,
			InitialQuantity: op.Quantity,
			Quantity:        op.Quantity,
		}
		x.mu.Lock()
		x.open[op.OrderID] = p
		x.mu.Unlock()
		return x.push(gateway.TypeOrderPlaced, p)
	default:
		return fmt.Errorf("unknown operation %q", op.Type)
	}
}

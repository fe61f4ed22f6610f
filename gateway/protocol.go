package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"options-mm/instrument"
	"options-mm/market"
	"options-mm/order"
	"options-mm/risk"
)

// 入站消息类型。
const (
	TypeInstruments             = "instruments"
	TypeQuotes                  = "quotes"
	TypeOpenPosition            = "open_position"
	TypeAccountState            = "account_state"
	TypeOrderPlaced             = "order_placed"
	TypeOrderPlaceFailed        = "order_place_failed"
	TypeOrderCancelled          = "order_cancelled"
	TypeOrderForcefullyCanceled = "order_forcefully_cancelled"
	TypeOrderCancelFailed       = "order_cancel_failed"
	TypeOrderFilled             = "order_filled"
	TypeOrderModified           = "order_modified"
	TypeOrderModificationFailed = "order_modification_failed"
	TypeAllOrdersCancelled      = "all_orders_cancelled"
	TypeCancelAllOrdersFailed   = "cancel_all_orders_failed"
)

// 出站消息类型。
const (
	TypeAuth      = "auth"
	TypeSubscribe = "subscribe"
	TypeBatch     = "batch"
)

// Envelope 所有 websocket 消息的外层。
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// BatchMessage 出站批次。
type BatchMessage struct {
	Type  string            `json:"type"`
	Batch []order.Operation `json:"batch"`
}

// AuthData 鉴权消息内容。
type AuthData struct {
	APIKey    string `json:"apiKey"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// Listener 接收解码后的交易所事件，internal/engine.Engine 实现该接口。
type Listener interface {
	OnQuotes(q market.Quotes) error
	OnOpenPosition(p risk.OpenPosition) error
	OnAccountState(s risk.AccountState) error
	OnOrderPlaced(ev order.Placed) error
	OnOrderPlaceFailed(ev order.PlaceFailed) error
	OnOrderCancelled(ev order.Cancelled) error
	OnOrderForcefullyCancelled(ev order.ForcefullyCancelled) error
	OnOrderCancelFailed(ev order.CancelFailed) error
	OnOrderFilled(ev order.Filled) error
	OnOrderModified(ev order.Modified) error
	OnOrderModificationFailed(ev order.ModificationFailed) error
	OnAllOrdersCancelled(ev order.AllCancelled) error
	OnCancelAllOrdersFailed(ev order.CancelAllFailed) error
}

// wireInstrument 交易所下发的合约静态数据，到期时间为毫秒时间戳。
type wireInstrument struct {
	ID             int             `json:"instrumentId"`
	Symbol         string          `json:"symbol"`
	Type           string          `json:"type"`
	Expiration     int64           `json:"expiration"`
	Strike         decimal.Decimal `json:"strike"`
	TickSize       decimal.Decimal `json:"tickSize"`
	NotionalAmount int64           `json:"notionalAmount"`
}

func (w wireInstrument) toInstrument() (instrument.Instrument, error) {
	kind, err := instrument.ParseKind(w.Type)
	if err != nil {
		return instrument.Instrument{}, fmt.Errorf("instrument %d: %w", w.ID, err)
	}
	return instrument.Instrument{
		ID:             w.ID,
		Symbol:         w.Symbol,
		Kind:           kind,
		Expiration:     time.UnixMilli(w.Expiration).UTC(),
		Strike:         w.Strike,
		TickSize:       w.TickSize,
		NotionalAmount: w.NotionalAmount,
	}, nil
}

func fromInstrument(inst instrument.Instrument) wireInstrument {
	return wireInstrument{
		ID:             inst.ID,
		Symbol:         inst.Symbol,
		Type:           inst.Kind.String(),
		Expiration:     inst.Expiration.UnixMilli(),
		Strike:         inst.Strike,
		TickSize:       inst.TickSize,
		NotionalAmount: inst.NotionalAmount,
	}
}

// EncodeInstruments 生成 instruments 消息的 data 字段，供模拟交易所使用。
func EncodeInstruments(insts []instrument.Instrument) (json.RawMessage, error) {
	wire := make([]wireInstrument, 0, len(insts))
	for _, inst := range insts {
		wire = append(wire, fromInstrument(inst))
	}
	return json.Marshal(wire)
}

// NewEnvelope 编码 data 并包装为消息。
func NewEnvelope(msgType string, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Type: msgType}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return Envelope{Type: msgType, Data: raw}, nil
}

// Sign 计算鉴权签名：HMAC-SHA256(secret, apiKey + timestamp)。
func Sign(secret, apiKey string, timestamp int64) string {
	return sign(secret, apiKey+strconv.FormatInt(timestamp, 10))
}

// DecodeInstruments 解析 instruments 消息的 data 字段。
func DecodeInstruments(raw json.RawMessage) ([]instrument.Instrument, error) {
	var wire []wireInstrument
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode instruments: %w", err)
	}
	out := make([]instrument.Instrument, 0, len(wire))
	for _, w := range wire {
		inst, err := w.toInstrument()
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// decodeAs 解码 data 并交给 handler。
func decodeAs[T any](raw json.RawMessage, handle func(T) error) error {
	var v T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode %T: %w", v, err)
		}
	}
	return handle(v)
}

// dispatch 把事件交给 listener。未知类型返回 handled=false。
func dispatch(l Listener, env Envelope) (handled bool, err error) {
	switch env.Type {
	case TypeQuotes:
		err = decodeAs(env.Data, l.OnQuotes)
	case TypeOpenPosition:
		err = decodeAs(env.Data, l.OnOpenPosition)
	case TypeAccountState:
		err = decodeAs(env.Data, l.OnAccountState)
	case TypeOrderPlaced:
		err = decodeAs(env.Data, l.OnOrderPlaced)
	case TypeOrderPlaceFailed:
		err = decodeAs(env.Data, l.OnOrderPlaceFailed)
	case TypeOrderCancelled:
		err = decodeAs(env.Data, l.OnOrderCancelled)
	case TypeOrderForcefullyCanceled:
		err = decodeAs(env.Data, l.OnOrderForcefullyCancelled)
	case TypeOrderCancelFailed:
		err = decodeAs(env.Data, l.OnOrderCancelFailed)
	case TypeOrderFilled:
		err = decodeAs(env.Data, l.OnOrderFilled)
	case TypeOrderModified:
		err = decodeAs(env.Data, l.OnOrderModified)
	case TypeOrderModificationFailed:
		err = decodeAs(env.Data, l.OnOrderModificationFailed)
	case TypeAllOrdersCancelled:
		err = decodeAs(env.Data, l.OnAllOrdersCancelled)
	case TypeCancelAllOrdersFailed:
		err = decodeAs(env.Data, l.OnCancelAllOrdersFailed)
	default:
		return false, nil
	}
	return true, err
}

package instrument

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

var (
	ErrUnknownInstrument     = errors.New("unknown instrument")
	ErrNoFuturesAtExpiration = errors.New("no traded futures at expiration")
	ErrDuplicateInstrumentID = errors.New("duplicate instrument id")
)

// Manager 持有全部合约静态数据，按可交易性/类型/到期日过滤。
// 构造后只读，可被多个组件共享。
type Manager struct {
	clock       Clock
	instruments map[int]Instrument
	ordered     []Instrument
}

// NewManager 校验并登记合约；任一合约不合法则整体失败。
func NewManager(clock Clock, instruments []Instrument, log *zap.Logger) (*Manager, error) {
	if clock == nil {
		clock = SystemClock
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		clock:       clock,
		instruments: make(map[int]Instrument, len(instruments)),
		ordered:     make([]Instrument, 0, len(instruments)),
	}
	for _, inst := range instruments {
		if err := inst.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m.instruments[inst.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateInstrumentID, inst.ID)
		}
		m.instruments[inst.ID] = inst
		m.ordered = append(m.ordered, inst)
	}
	// 固定顺序，保证每轮生成的订单序列可复现
	sort.Slice(m.ordered, func(a, b int) bool { return m.ordered[a].ID < m.ordered[b].ID })

	log.Info("instruments loaded", zap.Int("count", len(m.ordered)))
	return m, nil
}

// Instrument 按 id 查询。
func (m *Manager) Instrument(id int) (Instrument, error) {
	inst, ok := m.instruments[id]
	if !ok {
		return Instrument{}, fmt.Errorf("%w: id=%d", ErrUnknownInstrument, id)
	}
	return inst, nil
}

// IDs 返回全部合约 id（升序），用于行情订阅。
func (m *Manager) IDs() []int {
	ids := make([]int, 0, len(m.ordered))
	for _, inst := range m.ordered {
		ids = append(ids, inst.ID)
	}
	return ids
}

func (m *Manager) TradedInstruments() []Instrument {
	return m.filter(func(Instrument) bool { return true })
}

func (m *Manager) TradedFutures() []Instrument {
	return m.filter(Instrument.IsFutures)
}

func (m *Manager) TradedOptions() []Instrument {
	return m.filter(Instrument.IsOption)
}

// FuturesAtExpiration 返回同到期日的可交易期货，作为期权定价标的。
func (m *Manager) FuturesAtExpiration(expiration time.Time) (Instrument, error) {
	for _, f := range m.TradedFutures() {
		if f.Expiration.Equal(expiration) {
			return f, nil
		}
	}
	return Instrument{}, fmt.Errorf("%w: %s", ErrNoFuturesAtExpiration, expiration.UTC().Format(time.RFC3339))
}

func (m *Manager) filter(keep func(Instrument) bool) []Instrument {
	now := m.clock.Now()
	res := make([]Instrument, 0, len(m.ordered))
	for _, inst := range m.ordered {
		if keep(inst) && inst.IsTraded(now) {
			res = append(res, inst)
		}
	}
	return res
}

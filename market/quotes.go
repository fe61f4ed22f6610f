package market

import "github.com/shopspring/decimal"

// PriceQuantity 盘口一档。
type PriceQuantity struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

// Quotes 单个合约的最新行情快照；每次推送整体替换。
type Quotes struct {
	InstrumentID int             `json:"instrumentId"`
	Bid          *PriceQuantity  `json:"bid,omitempty"`
	Ask          *PriceQuantity  `json:"ask,omitempty"`
	Last         decimal.Decimal `json:"last"`
}

// Copyright (c) 2025 BVK Chaitanya

package mt5bridge

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade return code for a completed request.
const RetcodeDone = 10009

const (
	OrderTypeBuy  = "buy"
	OrderTypeSell = "sell"

	ActionDeal = "deal"

	FillingFOK = "fok"
	TimeGTC    = "gtc"
)

type TickResponse struct {
	Symbol  string          `json:"symbol"`
	Bid     decimal.Decimal `json:"bid"`
	Ask     decimal.Decimal `json:"ask"`
	TimeMsc int64           `json:"time_msc"`
}

func (v *TickResponse) Time() time.Time {
	return time.UnixMilli(v.TimeMsc).UTC()
}

type Rate struct {
	Time  int64           `json:"time"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

type RatesResponse struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	Rates     []*Rate `json:"rates"`
}

type SymbolInfo struct {
	Name        string          `json:"name"`
	Digits      int             `json:"digits"`
	Point       decimal.Decimal `json:"point"`
	TradeMode   int             `json:"trade_mode"`
	SessionOpen int             `json:"session_open"`
}

type OrderRequest struct {
	Action      string          `json:"action"`
	Symbol      string          `json:"symbol"`
	Volume      decimal.Decimal `json:"volume"`
	Type        string          `json:"type"`
	Price       decimal.Decimal `json:"price"`
	Deviation   int             `json:"deviation"`
	Magic       int64           `json:"magic"`
	Comment     string          `json:"comment"`
	TypeTime    string          `json:"type_time"`
	TypeFilling string          `json:"type_filling"`

	// Position is set to the ticket of the position being closed.
	Position int64 `json:"position,omitempty"`

	ClientID string `json:"client_id,omitempty"`
}

type OrderResponse struct {
	Retcode   int             `json:"retcode"`
	Deal      int64           `json:"deal"`
	Order     int64           `json:"order"`
	Volume    decimal.Decimal `json:"volume"`
	Price     decimal.Decimal `json:"price"`
	Comment   string          `json:"comment"`
	RequestID int64           `json:"request_id"`
}

type Position struct {
	Ticket    int64           `json:"ticket"`
	Symbol    string          `json:"symbol"`
	Type      string          `json:"type"`
	Volume    decimal.Decimal `json:"volume"`
	PriceOpen decimal.Decimal `json:"price_open"`
	Magic     int64           `json:"magic"`
	Comment   string          `json:"comment"`
}

type PositionsResponse struct {
	Positions []*Position `json:"positions"`
}

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Message is the websocket message format for both directions.
type Message struct {
	Type string `json:"type"`

	// Message holds description when Type is "error".
	Message string `json:"message,omitempty"`

	Symbols []string `json:"symbols,omitempty"`

	JWT string `json:"jwt,omitempty"`

	Tick *TickResponse `json:"tick,omitempty"`
}

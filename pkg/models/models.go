package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// PriceTick представляет последнюю цену маркировки по символу.
// История тиков не хранится: более поздний тик полностью заменяет предыдущий.
type PriceTick struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}

// OrderBookLevel представляет уровень стакана
type OrderBookLevel struct {
	Price  float64
	Amount float64
}

// DepthSnapshot представляет снимок стакана заявок.
// Каждый снимок целиком заменяет предыдущий, инкрементальных обновлений нет.
type DepthSnapshot struct {
	Symbol    string
	Timestamp time.Time
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
}

// Wallet представляет фьючерсный кошелек (баланс авторитетен на сервере)
type Wallet struct {
	Balance decimal.Decimal
}

// PositionSide сторона позиции
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// Position представляет открытую позицию.
// Цена входа, размер и цена ликвидации назначаются сервером
// и на стороне клиента не изменяются.
type Position struct {
	ID               int64
	Symbol           string
	Side             PositionSide
	EntryPrice       decimal.Decimal
	Amount           decimal.Decimal
	Leverage         int
	InitialMargin    decimal.Decimal
	LiquidationPrice decimal.Decimal
	OpenedAt         time.Time
}

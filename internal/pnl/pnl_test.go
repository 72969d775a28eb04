package pnl

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/skalibog/bftt/pkg/models"
	"github.com/stretchr/testify/assert"
)

func position(side models.PositionSide, entry, amount string) models.Position {
	return models.Position{
		ID:         1,
		Symbol:     "BTCUSDT",
		Side:       side,
		EntryPrice: decimal.RequireFromString(entry),
		Amount:     decimal.RequireFromString(amount),
		Leverage:   10,
	}
}

// Вход 100, размер 2, цена 110: LONG дает +20, SHORT дает -20
func TestUnrealized(t *testing.T) {
	price := decimal.RequireFromString("110")

	long := Unrealized(position(models.Long, "100", "2"), price)
	assert.True(t, long.Equal(decimal.RequireFromString("20")), "LONG: получено %s", long)

	short := Unrealized(position(models.Short, "100", "2"), price)
	assert.True(t, short.Equal(decimal.RequireFromString("-20")), "SHORT: получено %s", short)
}

// Пока живой цены нет, PnL равен нулю, а не значению по устаревшим данным
func TestUnrealizedNoPrice(t *testing.T) {
	pos := position(models.Long, "100", "2")

	assert.True(t, Unrealized(pos, decimal.Zero).IsZero())
	assert.True(t, Unrealized(pos, decimal.RequireFromString("-1")).IsZero())
}

// Чистая функция: одинаковые входы дают одинаковый результат
func TestUnrealizedDeterministic(t *testing.T) {
	pos := position(models.Short, "27123.45", "0.317")
	price := decimal.RequireFromString("26980.11")

	first := Unrealized(pos, price)
	second := Unrealized(pos, price)
	assert.True(t, first.Equal(second))
}

func TestUnrealizedUnknownSide(t *testing.T) {
	pos := position("SIDEWAYS", "100", "2")
	assert.True(t, Unrealized(pos, decimal.RequireFromString("110")).IsZero())
}

func TestTotalUnrealized(t *testing.T) {
	positions := []models.Position{
		position(models.Long, "100", "2"),  // +20 при цене 110
		position(models.Short, "100", "1"), // -10 при цене 110
	}
	positions[1].Symbol = "ETHUSDT"

	prices := map[string]string{
		"BTCUSDT": "110",
		"ETHUSDT": "110",
	}
	priceFor := func(symbol string) (decimal.Decimal, bool) {
		raw, ok := prices[symbol]
		if !ok {
			return decimal.Zero, false
		}
		return decimal.RequireFromString(raw), true
	}

	total := TotalUnrealized(positions, priceFor)
	assert.True(t, total.Equal(decimal.RequireFromString("10")), "получено %s", total)

	// Позиции без живой цены не входят в сумму
	delete(prices, "ETHUSDT")
	total = TotalUnrealized(positions, priceFor)
	assert.True(t, total.Equal(decimal.RequireFromString("20")), "получено %s", total)
}

// Округление живет только в форматировании, не в расчетах
func TestFormatCurrency(t *testing.T) {
	assert.Equal(t, "20.00", FormatCurrency(decimal.RequireFromString("20")))
	assert.Equal(t, "-0.33", FormatCurrency(decimal.RequireFromString("-0.333")))
	assert.Equal(t, "0.00", FormatCurrency(decimal.Zero))
}

package pnl

import (
	"github.com/shopspring/decimal"
	"github.com/skalibog/bftt/pkg/models"
)

// Unrealized возвращает нереализованный PnL позиции по последней цене маркировки.
// Чистая функция: LONG считается как (цена - вход) * размер, SHORT как (вход - цена) * размер.
// Пока живой цены нет (ноль или отрицательная), возвращается ноль,
// чтобы UI показывал нейтральное состояние, а не значение по устаревшим данным.
func Unrealized(pos models.Position, lastPrice decimal.Decimal) decimal.Decimal {
	if lastPrice.Sign() <= 0 {
		return decimal.Zero
	}

	switch pos.Side {
	case models.Long:
		return lastPrice.Sub(pos.EntryPrice).Mul(pos.Amount)
	case models.Short:
		return pos.EntryPrice.Sub(lastPrice).Mul(pos.Amount)
	default:
		return decimal.Zero
	}
}

// TotalUnrealized суммирует нереализованный PnL по списку позиций.
// priceFor выдает последнюю живую цену символа; позиции без цены дают ноль.
func TotalUnrealized(positions []models.Position, priceFor func(symbol string) (decimal.Decimal, bool)) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range positions {
		price, ok := priceFor(pos.Symbol)
		if !ok {
			continue
		}
		total = total.Add(Unrealized(pos, price))
	}
	return total
}

// FormatCurrency форматирует денежное значение для отображения:
// округление применяется только здесь, в расчетах его нет
func FormatCurrency(v decimal.Decimal) string {
	return v.StringFixed(2)
}

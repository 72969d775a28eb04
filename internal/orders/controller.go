package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/skalibog/bftt/internal/backend"
	"github.com/skalibog/bftt/internal/catalog"
	"github.com/skalibog/bftt/pkg/logger"
	"github.com/skalibog/bftt/pkg/models"
	"go.uber.org/zap"
)

// Side направление ордера в терминах формы UI
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Position соответствие направления ордера стороне позиции
func (s Side) Position() models.PositionSide {
	if s == Sell {
		return models.Short
	}
	return models.Long
}

// Границы плеча формы UI
const (
	MinLeverage = 1
	MaxLeverage = 125
)

// ErrNoPrice возвращается, когда живой цены еще нет: заявка блокируется,
// и форма показывает состояние ожидания цены вместо отправки без цены
var ErrNoPrice = errors.New("нет живой цены, ожидание потока")

// API операции бэкенда, нужные контроллеру
type API interface {
	OpenPosition(ctx context.Context, req backend.OpenRequest) (models.Position, error)
	ClosePosition(ctx context.Context, positionID int64, price decimal.Decimal) (decimal.Decimal, error)
}

// Controller валидирует и отправляет запросы открытия и закрытия позиций,
// используя последнюю живую цену как ценовой ориентир
type Controller struct {
	api     API
	catalog *catalog.Catalog
	price   func(symbol string) (decimal.Decimal, bool)
	refresh func(ctx context.Context)
}

// NewController создает контроллер ордеров.
// price выдает последнюю живую цену символа;
// refresh форсирует обновление кошелька и позиций после успеха.
func NewController(api API, cat *catalog.Catalog, price func(string) (decimal.Decimal, bool), refresh func(context.Context)) *Controller {
	return &Controller{
		api:     api,
		catalog: cat,
		price:   price,
		refresh: refresh,
	}
}

// Open валидирует и отправляет запрос открытия позиции.
// При успехе кошелек и позиции обновляются немедленно, не дожидаясь
// следующего тика опроса. При ошибке локальное состояние не меняется.
func (c *Controller) Open(ctx context.Context, symbol string, side Side, leverage int, margin string) (models.Position, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	// Валидация до любого сетевого вызова
	if !c.catalog.Contains(symbol) {
		return models.Position{}, fmt.Errorf("символ %s отсутствует в каталоге", symbol)
	}
	if side != Buy && side != Sell {
		return models.Position{}, fmt.Errorf("неизвестное направление %q", side)
	}
	if leverage < MinLeverage || leverage > MaxLeverage {
		return models.Position{}, fmt.Errorf("плечо вне диапазона от %d до %d", MinLeverage, MaxLeverage)
	}

	margin = strings.TrimSpace(margin)
	if margin == "" {
		return models.Position{}, fmt.Errorf("введите сумму маржи")
	}
	marginValue, err := decimal.NewFromString(margin)
	if err != nil {
		return models.Position{}, fmt.Errorf("маржа не число: %q", margin)
	}
	if marginValue.Sign() <= 0 {
		return models.Position{}, fmt.Errorf("маржа должна быть положительной")
	}

	price, ok := c.price(symbol)
	if !ok {
		return models.Position{}, ErrNoPrice
	}

	req := backend.OpenRequest{
		Symbol:   symbol,
		Side:     side.Position(),
		Leverage: leverage,
		Margin:   marginValue,
		Price:    price,
		ClientID: uuid.NewString(),
	}

	logger.Info("Отправка запроса открытия позиции",
		zap.String("client_id", req.ClientID),
		zap.String("symbol", symbol),
		zap.String("side", string(req.Side)),
		zap.Int("leverage", leverage),
		zap.String("margin", marginValue.String()),
		zap.String("price", price.String()))

	pos, err := c.api.OpenPosition(ctx, req)
	if err != nil {
		logger.Warn("Открытие позиции отклонено",
			zap.String("client_id", req.ClientID), zap.Error(err))
		return models.Position{}, err
	}

	// Немедленная синхронизация, чтобы эффект был виден без задержки
	c.refresh(ctx)

	logger.Info("Позиция открыта",
		zap.String("client_id", req.ClientID), zap.Int64("position_id", pos.ID))
	return pos, nil
}

// Close отправляет запрос закрытия позиции с текущей живой ценой
// и возвращает реализованный PnL из ответа сервера
func (c *Controller) Close(ctx context.Context, positionID int64, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	price, ok := c.price(symbol)
	if !ok {
		return decimal.Zero, ErrNoPrice
	}

	clientID := uuid.NewString()
	logger.Info("Отправка запроса закрытия позиции",
		zap.String("client_id", clientID),
		zap.Int64("position_id", positionID),
		zap.String("price", price.String()))

	realized, err := c.api.ClosePosition(ctx, positionID, price)
	if err != nil {
		logger.Warn("Закрытие позиции отклонено",
			zap.String("client_id", clientID), zap.Error(err))
		return decimal.Zero, err
	}

	c.refresh(ctx)

	logger.Info("Позиция закрыта",
		zap.String("client_id", clientID),
		zap.Int64("position_id", positionID),
		zap.String("pnl", realized.String()))
	return realized, nil
}

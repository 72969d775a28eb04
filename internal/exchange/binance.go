package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/skalibog/bftt/internal/config"
	"github.com/skalibog/bftt/pkg/models"
)

// BinanceClient клиент для получения рыночных данных Binance Futures
type BinanceClient struct {
	futures *futures.Client
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) (*BinanceClient, error) {
	if cfg.Testnet {
		futures.UseTestnet = true
	}

	futuresClient := futures.NewClient(cfg.APIKey, cfg.APISecret)

	return &BinanceClient{
		futures: futuresClient,
	}, nil
}

// GetKlines получает исторические свечи
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	klines, err := c.futures.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	candles := make([]*models.Candle, 0, len(klines))
	for _, k := range klines {
		open, err1 := strconv.ParseFloat(k.Open, 64)
		high, err2 := strconv.ParseFloat(k.High, 64)
		low, err3 := strconv.ParseFloat(k.Low, 64)
		closePrice, err4 := strconv.ParseFloat(k.Close, 64)
		volume, err5 := strconv.ParseFloat(k.Volume, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			return nil, fmt.Errorf("ошибка парсинга свечи %s %s", symbol, interval)
		}

		candles = append(candles, &models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  time.Unix(k.OpenTime/1000, 0),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: time.Unix(k.CloseTime/1000, 0),
		})
	}

	return candles, nil
}

// GetOrderBook получает снимок стакана через REST.
// Используется как начальное состояние стакана до прихода первого кадра потока.
func (c *BinanceClient) GetOrderBook(ctx context.Context, symbol string, limit int) (*models.DepthSnapshot, error) {
	ob, err := c.futures.NewDepthService().
		Symbol(symbol).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения стакана: %w", err)
	}

	snapshot := &models.DepthSnapshot{
		Symbol:    symbol,
		Timestamp: time.Now(),
		Bids:      make([]models.OrderBookLevel, 0, len(ob.Bids)),
		Asks:      make([]models.OrderBookLevel, 0, len(ob.Asks)),
	}

	for _, bid := range ob.Bids {
		level, err := parseLevel(bid.Price, bid.Quantity)
		if err != nil {
			return nil, fmt.Errorf("ошибка парсинга уровня бида: %w", err)
		}
		snapshot.Bids = append(snapshot.Bids, level)
	}

	for _, ask := range ob.Asks {
		level, err := parseLevel(ask.Price, ask.Quantity)
		if err != nil {
			return nil, fmt.Errorf("ошибка парсинга уровня аска: %w", err)
		}
		snapshot.Asks = append(snapshot.Asks, level)
	}

	return snapshot, nil
}

// parseLevel конвертирует строковые цену и объем уровня в числа
func parseLevel(price, amount string) (models.OrderBookLevel, error) {
	p, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return models.OrderBookLevel{}, err
	}
	a, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return models.OrderBookLevel{}, err
	}
	return models.OrderBookLevel{Price: p, Amount: a}, nil
}

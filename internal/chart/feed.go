package chart

import (
	"context"
	"fmt"
	"sync"

	talib "github.com/markcheno/go-talib"
	"github.com/skalibog/bftt/internal/config"
	"github.com/skalibog/bftt/internal/storage"
	"github.com/skalibog/bftt/pkg/logger"
	"github.com/skalibog/bftt/pkg/models"
	"go.uber.org/zap"
)

// KlineSource источник исторических свечей
type KlineSource interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)
}

// Intervals допустимые интервалы графика
var Intervals = []string{"1m", "5m", "15m", "1h", "4h", "1d"}

// ValidInterval проверяет интервал по списку допустимых
func ValidInterval(interval string) bool {
	for _, iv := range Intervals {
		if iv == interval {
			return true
		}
	}
	return false
}

// NextInterval возвращает следующий интервал по циклу (для переключения в UI)
func NextInterval(interval string) string {
	for i, iv := range Intervals {
		if iv == interval {
			return Intervals[(i+1)%len(Intervals)]
		}
	}
	return Intervals[0]
}

// Feed загружает ограниченное окно исторических свечей и целиком заменяет
// набор данных графика. С живыми тиками набор не сливается: график отражает
// последнюю успешную загрузку до следующей перезагрузки.
type Feed struct {
	source   KlineSource
	limit    int
	rsiLen   int
	recorder storage.Recorder

	mu       sync.RWMutex
	gen      uint64
	symbol   string
	interval string
	candles  []*models.Candle
	rsi      float64
	rsiKnown bool
}

// NewFeed создает адаптер графика
func NewFeed(source KlineSource, cfg config.ChartConfig, recorder storage.Recorder) *Feed {
	return &Feed{
		source:   source,
		limit:    cfg.CandleLimit,
		rsiLen:   cfg.RSIPeriod,
		recorder: recorder,
	}
}

// Reload загружает окно свечей для символа и интервала.
// Ошибка загрузки оставляет предыдущий набор данных; повторов нет.
// Ответ, пришедший после следующей перезагрузки, отбрасывается:
// устаревший символ не должен попасть на график, уже показывающий другой.
func (f *Feed) Reload(ctx context.Context, symbol, interval string) error {
	if !ValidInterval(interval) {
		return fmt.Errorf("недопустимый интервал %q", interval)
	}

	f.mu.Lock()
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	candles, err := f.source.GetKlines(ctx, symbol, interval, f.limit)
	if err != nil {
		return fmt.Errorf("ошибка загрузки свечей %s %s: %w", symbol, interval, err)
	}

	f.mu.Lock()
	if f.gen != gen {
		f.mu.Unlock()
		logger.Debug("Отброшен устаревший ответ загрузки свечей",
			zap.String("symbol", symbol), zap.String("interval", interval))
		return nil
	}

	// Старый набор освобождается до установки нового
	f.candles = nil
	f.candles = candles
	f.symbol = symbol
	f.interval = interval
	f.rsi, f.rsiKnown = computeRSI(candles, f.rsiLen)
	f.mu.Unlock()

	if err := f.recorder.SaveCandles(ctx, candles); err != nil {
		logger.Warn("Ошибка записи свечей", zap.Error(err))
	}

	logger.Info("Загружено окно свечей",
		zap.String("symbol", symbol), zap.String("interval", interval), zap.Int("count", len(candles)))
	return nil
}

// Candles возвращает текущий набор данных графика
func (f *Feed) Candles() []*models.Candle {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*models.Candle, len(f.candles))
	copy(out, f.candles)
	return out
}

// Symbol возвращает символ текущего набора данных
func (f *Feed) Symbol() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.symbol
}

// Interval возвращает интервал текущего набора данных
func (f *Feed) Interval() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.interval
}

// RSI возвращает RSI по ценам закрытия загруженного окна
func (f *Feed) RSI() (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.rsi, f.rsiKnown
}

// computeRSI считает RSI последней свечи; данных должно хватать на период
func computeRSI(candles []*models.Candle, period int) (float64, bool) {
	if len(candles) <= period {
		return 0, false
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	values := talib.Rsi(closes, period)
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}

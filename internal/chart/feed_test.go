package chart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skalibog/bftt/internal/config"
	"github.com/skalibog/bftt/internal/storage"
	"github.com/skalibog/bftt/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSource управляемый источник свечей: умеет задерживать ответ,
// чтобы воспроизвести гонку со сменой символа
type stubSource struct {
	mu      sync.Mutex
	err     error
	blockCh chan struct{}
	calls   []string
}

func (s *stubSource) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	s.mu.Lock()
	s.calls = append(s.calls, symbol+"/"+interval)
	block := s.blockCh
	s.blockCh = nil
	err := s.err
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return makeCandles(symbol, interval, limit), nil
}

func makeCandles(symbol, interval string, count int) []*models.Candle {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]*models.Candle, count)
	for i := range candles {
		price := 100.0 + float64(i)
		candles[i] = &models.Candle{
			Symbol:   symbol,
			Interval: interval,
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     price,
			High:     price + 1,
			Low:      price - 1,
			Close:    price + 0.5,
			Volume:   10,
		}
	}
	return candles
}

func newTestFeed(source KlineSource) *Feed {
	return NewFeed(source, config.ChartConfig{CandleLimit: 300, RSIPeriod: 14}, storage.NewNoop())
}

func TestReload(t *testing.T) {
	source := &stubSource{}
	feed := newTestFeed(source)

	require.NoError(t, feed.Reload(context.Background(), "BTCUSDT", "1m"))

	candles := feed.Candles()
	require.Len(t, candles, 300)
	assert.Equal(t, "BTCUSDT", feed.Symbol())
	assert.Equal(t, "1m", feed.Interval())

	// Окна хватает на период, RSI посчитан
	rsi, ok := feed.RSI()
	require.True(t, ok)
	assert.Greater(t, rsi, 0.0)
	assert.LessOrEqual(t, rsi, 100.0)
}

func TestReloadInvalidInterval(t *testing.T) {
	source := &stubSource{}
	feed := newTestFeed(source)

	require.Error(t, feed.Reload(context.Background(), "BTCUSDT", "7m"))
	assert.Empty(t, source.calls)
}

// Ошибка загрузки оставляет предыдущий набор данных
func TestReloadKeepsDataOnError(t *testing.T) {
	source := &stubSource{}
	feed := newTestFeed(source)

	require.NoError(t, feed.Reload(context.Background(), "BTCUSDT", "1m"))

	source.mu.Lock()
	source.err = errors.New("сеть недоступна")
	source.mu.Unlock()

	require.Error(t, feed.Reload(context.Background(), "ETHUSDT", "1m"))

	assert.Equal(t, "BTCUSDT", feed.Symbol())
	assert.Len(t, feed.Candles(), 300)
}

// Ответ, пришедший после следующей перезагрузки, отбрасывается:
// устаревший символ не попадает на график, уже показывающий другой
func TestReloadDiscardsStaleResponse(t *testing.T) {
	source := &stubSource{}
	feed := newTestFeed(source)

	block := make(chan struct{})
	source.mu.Lock()
	source.blockCh = block
	source.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- feed.Reload(context.Background(), "BTCUSDT", "1m")
	}()

	// Ждем, пока первый запрос повиснет в источнике
	require.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return len(source.calls) == 1
	}, 3*time.Second, 10*time.Millisecond)

	// Вторая перезагрузка завершается первой
	require.NoError(t, feed.Reload(context.Background(), "ETHUSDT", "5m"))
	require.Equal(t, "ETHUSDT", feed.Symbol())

	// Зависший ответ старого символа возвращается и должен быть отброшен
	close(block)
	require.NoError(t, <-done)

	assert.Equal(t, "ETHUSDT", feed.Symbol())
	assert.Equal(t, "5m", feed.Interval())
	require.NotEmpty(t, feed.Candles())
	assert.Equal(t, "ETHUSDT", feed.Candles()[0].Symbol)
}

// Окна меньше периода недостаточно для RSI
func TestRSIRequiresEnoughCandles(t *testing.T) {
	source := &stubSource{}
	feed := NewFeed(source, config.ChartConfig{CandleLimit: 10, RSIPeriod: 14}, storage.NewNoop())

	require.NoError(t, feed.Reload(context.Background(), "BTCUSDT", "1m"))

	_, ok := feed.RSI()
	assert.False(t, ok)
}

func TestIntervals(t *testing.T) {
	for _, iv := range []string{"1m", "5m", "15m", "1h", "4h", "1d"} {
		assert.True(t, ValidInterval(iv), iv)
	}
	assert.False(t, ValidInterval("7m"))
	assert.False(t, ValidInterval(""))

	assert.Equal(t, "5m", NextInterval("1m"))
	assert.Equal(t, "1m", NextInterval("1d"))
	assert.Equal(t, "1m", NextInterval("неизвестный"))
}

package storage

import (
	"context"

	"github.com/skalibog/bftt/pkg/models"
)

// Recorder записывает рыночные данные сессии (свечи, тики цены, вершину стакана).
// Состояние кошелька и позиций не записывается никогда: оно авторитетно на сервере.
type Recorder interface {
	SaveCandles(ctx context.Context, candles []*models.Candle) error
	SaveTick(ctx context.Context, tick models.PriceTick) error
	SaveDepth(ctx context.Context, snapshot models.DepthSnapshot) error
	Close()
}

// noopRecorder используется, когда запись отключена в конфигурации
type noopRecorder struct{}

// NewNoop создает рекордер, который ничего не записывает
func NewNoop() Recorder {
	return noopRecorder{}
}

func (noopRecorder) SaveCandles(context.Context, []*models.Candle) error { return nil }
func (noopRecorder) SaveTick(context.Context, models.PriceTick) error    { return nil }
func (noopRecorder) SaveDepth(context.Context, models.DepthSnapshot) error {
	return nil
}
func (noopRecorder) Close() {}

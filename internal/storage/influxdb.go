// internal/storage/influxdb.go
package storage

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/skalibog/bftt/internal/config"
	"github.com/skalibog/bftt/pkg/models"
)

// InfluxDBRecorder реализует интерфейс Recorder с использованием InfluxDB
type InfluxDBRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBRecorder создает новый рекордер InfluxDB
func NewInfluxDBRecorder(cfg config.StorageConfig) (*InfluxDBRecorder, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	writeAPI := client.WriteAPI(cfg.Organization, cfg.Bucket)

	return &InfluxDBRecorder{
		client:   client,
		writeAPI: writeAPI,
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBRecorder) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveCandles сохраняет загруженное окно свечей
func (s *InfluxDBRecorder) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	for _, candle := range candles {
		point := influxdb2.NewPoint(
			"candles",
			map[string]string{
				"symbol":   candle.Symbol,
				"interval": candle.Interval,
			},
			map[string]interface{}{
				"open":   candle.Open,
				"high":   candle.High,
				"low":    candle.Low,
				"close":  candle.Close,
				"volume": candle.Volume,
			},
			candle.OpenTime,
		)
		s.writeAPI.WritePoint(point)
	}

	s.writeAPI.Flush()
	return nil
}

// SaveTick сохраняет тик цены маркировки
func (s *InfluxDBRecorder) SaveTick(ctx context.Context, tick models.PriceTick) error {
	point := influxdb2.NewPoint(
		"mark_price",
		map[string]string{
			"symbol": tick.Symbol,
		},
		map[string]interface{}{
			"price": tick.Price,
		},
		tick.Timestamp,
	)

	// Запись асинхронная: поток данных не должен ждать базу
	s.writeAPI.WritePoint(point)
	return nil
}

// SaveDepth сохраняет вершину стакана (лучший бид и аск)
func (s *InfluxDBRecorder) SaveDepth(ctx context.Context, snapshot models.DepthSnapshot) error {
	if len(snapshot.Bids) == 0 || len(snapshot.Asks) == 0 {
		return nil
	}

	point := influxdb2.NewPoint(
		"depth_top",
		map[string]string{
			"symbol": snapshot.Symbol,
		},
		map[string]interface{}{
			"best_bid":        snapshot.Bids[0].Price,
			"best_bid_amount": snapshot.Bids[0].Amount,
			"best_ask":        snapshot.Asks[0].Price,
			"best_ask_amount": snapshot.Asks[0].Amount,
		},
		snapshot.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	return nil
}

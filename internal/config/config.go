package config

import (
	"fmt"
	"os"
	"time"

	"github.com/skalibog/bftt/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance BinanceConfig `yaml:"binance"`
	Backend BackendConfig `yaml:"backend"`
	Trading TradingConfig `yaml:"trading"`
	Stream  StreamConfig  `yaml:"stream"`
	Account AccountConfig `yaml:"account"`
	Chart   ChartConfig   `yaml:"chart"`
	Storage StorageConfig `yaml:"storage"`
	UI      UIConfig      `yaml:"ui"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// BackendConfig содержит настройки подключения к бэкенду аккаунта
type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PairConfig описывает торговую пару каталога
type PairConfig struct {
	Symbol string `yaml:"symbol"`
	Name   string `yaml:"name"`
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	Pairs           []PairConfig `yaml:"pairs"`
	Interval        string       `yaml:"interval"`
	DefaultLeverage int          `yaml:"default_leverage"`
}

// StreamConfig содержит настройки потокового подключения
type StreamConfig struct {
	WSBaseURL string `yaml:"ws_base_url"`
	Depth     int    `yaml:"depth"`
	Reconnect bool   `yaml:"reconnect"`
}

// AccountConfig содержит настройки опроса аккаунта
type AccountConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

// ChartConfig содержит настройки графика
type ChartConfig struct {
	CandleLimit int `yaml:"candle_limit"`
	RSIPeriod   int `yaml:"rsi_period"`
}

// StorageConfig настройки записи рыночных данных сессии
type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	RefreshRate int `yaml:"refresh_rate_ms"`
}

// Значения по умолчанию. Интервал опроса аккаунта не может превышать 2 секунды.
const (
	defaultWSBaseURL   = "wss://fstream.binance.com"
	defaultDepth       = 20
	defaultCandleLimit = 300
	defaultRSIPeriod   = 14
	defaultInterval    = "1m"
	defaultLeverage    = 10
	maxPollInterval    = 2000
	defaultRefreshRate = 500
)

// Load загружает конфигурацию из файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	config.applyDefaults()

	logger.Debug("Загружена конфигурация", zap.String("path", path), zap.Any("config", config))
	logger.Info("Загружена конфигурация", zap.Int("пар", len(config.Trading.Pairs)), zap.String("interval", config.Trading.Interval))
	return &config, nil
}

// applyDefaults заполняет отсутствующие значения и ограничивает недопустимые
func (c *Config) applyDefaults() {
	if c.Stream.WSBaseURL == "" {
		c.Stream.WSBaseURL = defaultWSBaseURL
	}
	if c.Stream.Depth <= 0 {
		c.Stream.Depth = defaultDepth
	}
	if c.Chart.CandleLimit <= 0 {
		c.Chart.CandleLimit = defaultCandleLimit
	}
	if c.Chart.RSIPeriod <= 0 {
		c.Chart.RSIPeriod = defaultRSIPeriod
	}
	if c.Trading.Interval == "" {
		c.Trading.Interval = defaultInterval
	}
	if c.Trading.DefaultLeverage <= 0 {
		c.Trading.DefaultLeverage = defaultLeverage
	}
	if c.Account.PollIntervalMs <= 0 || c.Account.PollIntervalMs > maxPollInterval {
		c.Account.PollIntervalMs = maxPollInterval
	}
	if c.UI.RefreshRate <= 0 {
		c.UI.RefreshRate = defaultRefreshRate
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = 10
	}
}

// PollInterval возвращает интервал опроса аккаунта
func (c AccountConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/skalibog/bftt/internal/catalog"
	"github.com/skalibog/bftt/internal/config"
	"github.com/skalibog/bftt/pkg/logger"
	"github.com/skalibog/bftt/pkg/models"
	"go.uber.org/zap"
)

// Manager владеет единственным потоковым подключением активного символа.
// Подключение мультиплексирует два логических канала: цену маркировки и
// снимок стакана фиксированной глубины. Смена символа закрывает старое
// подключение до открытия нового, так что живое подключение всегда одно.
type Manager struct {
	cfg     config.StreamConfig
	catalog *catalog.Catalog

	onTick  func(models.PriceTick)
	onDepth func(models.DepthSnapshot)

	mu     sync.Mutex
	conn   *websocket.Conn
	symbol string
	gen    uint64
}

// NewManager создает менеджер потока
func NewManager(cfg config.StreamConfig, cat *catalog.Catalog) *Manager {
	return &Manager{
		cfg:     cfg,
		catalog: cat,
	}
}

// OnPriceTick регистрирует получателя тиков цены; вызывается до Subscribe
func (m *Manager) OnPriceTick(fn func(models.PriceTick)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTick = fn
}

// OnDepthSnapshot регистрирует получателя снимков стакана; вызывается до Subscribe
func (m *Manager) OnDepthSnapshot(fn func(models.DepthSnapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDepth = fn
}

// Subscribe открывает потоковое подключение для символа.
// Предыдущее подключение закрывается до открытия нового.
func (m *Manager) Subscribe(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return fmt.Errorf("пустой символ")
	}
	if !m.catalog.Contains(symbol) {
		return fmt.Errorf("символ %s отсутствует в каталоге", symbol)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Сначала закрываем старое подключение
	m.closeLocked()
	m.gen++
	gen := m.gen

	conn, err := m.dial(symbol)
	if err != nil {
		return fmt.Errorf("ошибка подключения к потоку %s: %w", symbol, err)
	}

	m.conn = conn
	m.symbol = symbol

	logger.Info("Открыт поток рыночных данных", zap.String("symbol", symbol))
	go m.run(ctx, conn, symbol, gen)

	return nil
}

// Symbol возвращает символ активного подключения (пустая строка, если его нет)
func (m *Manager) Symbol() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.symbol
}

// Close закрывает активное подключение; безопасен при повторных вызовах
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeLocked()
	m.gen++
}

func (m *Manager) closeLocked() {
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.symbol = ""
}

// isCurrent проверяет, что поколение подключения еще актуально
func (m *Manager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen
}

// dial открывает websocket-подключение комбинированного потока
func (m *Manager) dial(symbol string) (*websocket.Conn, error) {
	lower := strings.ToLower(symbol)
	wsURL := fmt.Sprintf("%s/stream?streams=%s@markPrice@1s/%s@depth%d@100ms",
		strings.TrimRight(m.cfg.WSBaseURL, "/"), lower, lower, m.cfg.Depth)

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.Dial(wsURL, nil)
	return conn, err
}

// run читает кадры подключения и, если переподключение включено,
// восстанавливает его после обрыва. По умолчанию переподключения нет:
// обрыв деградирует до состояния "нет живых данных", восстановление
// происходит только сменой символа или интервала.
func (m *Manager) run(ctx context.Context, conn *websocket.Conn, symbol string, gen uint64) {
	for {
		err := m.readLoop(ctx, conn, symbol, gen)
		_ = conn.Close()

		if ctx.Err() != nil || !m.isCurrent(gen) {
			return
		}

		logger.Warn("Поток рыночных данных закрыт",
			zap.String("symbol", symbol), zap.Error(err))

		if !m.cfg.Reconnect {
			return
		}

		next, ok := m.redial(ctx, symbol, gen)
		if !ok {
			return
		}
		conn = next
	}
}

// readLoop читает кадры до ошибки чтения или смены поколения
func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn, symbol string, gen uint64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !m.isCurrent(gen) {
			return nil
		}

		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		m.handleFrame(symbol, msg)
	}
}

// redial восстанавливает подключение с нарастающей задержкой
func (m *Manager) redial(ctx context.Context, symbol string, gen uint64) (*websocket.Conn, bool) {
	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    30 * time.Second,
		Jitter: true,
	}

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(b.Duration()):
		}
		if !m.isCurrent(gen) {
			return nil, false
		}

		conn, err := m.dial(symbol)
		if err != nil {
			logger.Warn("Ошибка переподключения к потоку",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			_ = conn.Close()
			return nil, false
		}
		m.conn = conn
		m.mu.Unlock()

		logger.Info("Поток рыночных данных восстановлен", zap.String("symbol", symbol))
		return conn, true
	}
}

// streamFrame кадр комбинированного потока: имя канала + полезная нагрузка
type streamFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// markPricePayload полезная нагрузка канала цены маркировки
type markPricePayload struct {
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
}

// depthPayload полезная нагрузка канала стакана фиксированной глубины
type depthPayload struct {
	EventTime int64      `json:"E"`
	Symbol    string     `json:"s"`
	Bids      [][]string `json:"b"`
	Asks      [][]string `json:"a"`
}

// handleFrame разбирает кадр и доставляет типизированное событие.
// Нечитаемые кадры отбрасываются: они логируются, но не обрывают подключение.
func (m *Manager) handleFrame(symbol string, msg []byte) {
	var frame streamFrame
	if err := json.Unmarshal(msg, &frame); err != nil || len(frame.Data) == 0 {
		logger.Debug("Отброшен нечитаемый кадр потока", zap.String("symbol", symbol))
		return
	}

	switch {
	case strings.Contains(frame.Stream, "markPrice"):
		m.handleMarkPrice(symbol, frame.Data)
	case strings.Contains(frame.Stream, "depth"):
		m.handleDepth(symbol, frame.Data)
	default:
		logger.Debug("Отброшен кадр неизвестного канала", zap.String("stream", frame.Stream))
	}
}

func (m *Manager) handleMarkPrice(symbol string, data json.RawMessage) {
	var ev markPricePayload
	if err := json.Unmarshal(data, &ev); err != nil {
		logger.Debug("Отброшен нечитаемый кадр цены", zap.String("symbol", symbol))
		return
	}

	price, err := strconv.ParseFloat(ev.Price, 64)
	if err != nil || price <= 0 {
		logger.Debug("Отброшен кадр с некорректной ценой",
			zap.String("symbol", symbol), zap.String("price", ev.Price))
		return
	}

	tick := models.PriceTick{
		Symbol:    strings.ToUpper(ev.Symbol),
		Price:     price,
		Timestamp: eventTime(ev.EventTime),
	}
	if tick.Symbol == "" {
		tick.Symbol = symbol
	}

	if m.onTick != nil {
		m.onTick(tick)
	}
}

func (m *Manager) handleDepth(symbol string, data json.RawMessage) {
	var ev depthPayload
	if err := json.Unmarshal(data, &ev); err != nil {
		logger.Debug("Отброшен нечитаемый кадр стакана", zap.String("symbol", symbol))
		return
	}

	bids, err := parseLevels(ev.Bids)
	if err != nil {
		logger.Debug("Отброшен кадр стакана: некорректные биды", zap.Error(err))
		return
	}
	asks, err := parseLevels(ev.Asks)
	if err != nil {
		logger.Debug("Отброшен кадр стакана: некорректные аски", zap.Error(err))
		return
	}

	snapshot := models.DepthSnapshot{
		Symbol:    strings.ToUpper(ev.Symbol),
		Timestamp: eventTime(ev.EventTime),
		Bids:      bids,
		Asks:      asks,
	}
	if snapshot.Symbol == "" {
		snapshot.Symbol = symbol
	}

	if m.onDepth != nil {
		m.onDepth(snapshot)
	}
}

// parseLevels конвертирует уровни [["цена","объем"],...] в числа.
// Любой нечитаемый уровень отбрасывает весь кадр.
func parseLevels(raw [][]string) ([]models.OrderBookLevel, error) {
	levels := make([]models.OrderBookLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("уровень из %d элементов", len(pair))
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, fmt.Errorf("ошибка парсинга цены уровня: %w", err)
		}
		amount, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, fmt.Errorf("ошибка парсинга объема уровня: %w", err)
		}
		if price < 0 || amount < 0 {
			return nil, fmt.Errorf("отрицательный уровень стакана")
		}
		levels = append(levels, models.OrderBookLevel{Price: price, Amount: amount})
	}
	return levels, nil
}

func eventTime(ms int64) time.Time {
	if ms > 0 {
		return time.UnixMilli(ms)
	}
	return time.Now()
}

package terminal

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/skalibog/bftt/internal/catalog"
	"github.com/skalibog/bftt/internal/chart"
	"github.com/skalibog/bftt/internal/orderbook"
	"github.com/skalibog/bftt/internal/orders"
	"github.com/skalibog/bftt/internal/pnl"
	"github.com/skalibog/bftt/internal/storage"
	"github.com/skalibog/bftt/pkg/logger"
	"github.com/skalibog/bftt/pkg/models"
	"go.uber.org/zap"
)

// Stream подписка на поток рыночных данных активного символа
type Stream interface {
	Subscribe(ctx context.Context, symbol string) error
	Close()
}

// ChartFeed перезагрузка окна свечей графика
type ChartFeed interface {
	Reload(ctx context.Context, symbol, interval string) error
}

// DepthSource начальный снимок стакана через REST (до первого кадра потока)
type DepthSource interface {
	GetOrderBook(ctx context.Context, symbol string, limit int) (*models.DepthSnapshot, error)
}

// Accounts состояние аккаунта, поддерживаемое опросчиком
type Accounts interface {
	Start(ctx context.Context)
	Stop()
	ForceRefresh(ctx context.Context)
	Wallet() (models.Wallet, bool)
	Positions() []models.Position
}

// PositionView позиция вместе с производным нереализованным PnL
type PositionView struct {
	models.Position
	PnL      decimal.Decimal
	HasPrice bool
}

// Terminal владеет всем состоянием торгового терминала на время своей жизни:
// активный символ и интервал, последний тик цены, стакан, кошелек и позиции.
// Последняя цена и последний снимок стакана пишутся только потоком и читаются
// калькулятором PnL, контроллером ордеров и UI; читатели обязаны учитывать,
// что цены может еще не быть.
type Terminal struct {
	catalog  *catalog.Catalog
	stream   Stream
	chart    ChartFeed
	depth    DepthSource
	book     *orderbook.Book
	accounts Accounts
	recorder storage.Recorder
	notify   func()

	depthLimit int

	mu       sync.RWMutex
	symbol   string
	interval string
	lastTick models.PriceTick
	hasTick  bool

	// Выбор формы: переживает смену символа
	leverage int
	side     orders.Side
}

// Config зависимости и начальные значения терминала
type Config struct {
	Catalog    *catalog.Catalog
	Stream     Stream
	Chart      ChartFeed
	Depth      DepthSource
	Book       *orderbook.Book
	Accounts   Accounts
	Recorder   storage.Recorder
	Notify     func()
	Interval   string
	Leverage   int
	DepthLimit int
}

// New создает терминал
func New(cfg Config) *Terminal {
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = storage.NewNoop()
	}
	interval := cfg.Interval
	if !chart.ValidInterval(interval) {
		interval = chart.Intervals[0]
	}
	leverage := cfg.Leverage
	if leverage < orders.MinLeverage || leverage > orders.MaxLeverage {
		leverage = orders.MinLeverage
	}
	depthLimit := cfg.DepthLimit
	if depthLimit <= 0 {
		depthLimit = 20
	}

	return &Terminal{
		catalog:    cfg.Catalog,
		stream:     cfg.Stream,
		chart:      cfg.Chart,
		depth:      cfg.Depth,
		book:       cfg.Book,
		accounts:   cfg.Accounts,
		recorder:   recorder,
		notify:     cfg.Notify,
		depthLimit: depthLimit,
		interval:   interval,
		leverage:   leverage,
		side:       orders.Buy,
	}
}

// Start запускает опрос аккаунта и выбирает первую пару каталога
func (t *Terminal) Start(ctx context.Context) error {
	t.accounts.Start(ctx)

	pairs := t.catalog.Pairs()
	if len(pairs) == 0 {
		return fmt.Errorf("каталог пуст")
	}
	return t.SwitchSymbol(ctx, pairs[0].Symbol)
}

// Stop останавливает поток и опрос; висящих таймеров не остается
func (t *Terminal) Stop() {
	t.stream.Close()
	t.accounts.Stop()
}

// SwitchSymbol явный обработчик смены символа:
// закрыть старый поток → открыть новый → перезагрузить график.
// Из состояния переживают смену только каталог и выбор плеча и стороны.
func (t *Terminal) SwitchSymbol(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !t.catalog.Contains(symbol) {
		return fmt.Errorf("символ %s отсутствует в каталоге", symbol)
	}

	t.mu.Lock()
	if t.symbol == symbol {
		t.mu.Unlock()
		return nil
	}
	t.symbol = symbol
	t.hasTick = false
	t.lastTick = models.PriceTick{}
	t.mu.Unlock()

	t.book.Reset()

	if err := t.stream.Subscribe(ctx, symbol); err != nil {
		return err
	}

	t.reloadChart(ctx, symbol)
	t.seedDepth(ctx, symbol)
	t.ping()
	return nil
}

// SwitchInterval меняет интервал графика; подключение потока
// переустанавливается, как и при смене символа
func (t *Terminal) SwitchInterval(ctx context.Context, interval string) error {
	if !chart.ValidInterval(interval) {
		return fmt.Errorf("недопустимый интервал %q", interval)
	}

	t.mu.Lock()
	t.interval = interval
	symbol := t.symbol
	t.mu.Unlock()

	if symbol == "" {
		return nil
	}

	if err := t.stream.Subscribe(ctx, symbol); err != nil {
		return err
	}

	t.reloadChart(ctx, symbol)
	t.ping()
	return nil
}

// reloadChart перезагружает график в фоне; ошибка оставляет прежний набор.
// Устаревшие ответы отбрасывает защита поколений внутри адаптера графика.
func (t *Terminal) reloadChart(ctx context.Context, symbol string) {
	interval := t.ActiveInterval()
	go func() {
		if err := t.chart.Reload(ctx, symbol, interval); err != nil {
			logger.Warn("График не перезагружен", zap.Error(err))
			return
		}
		t.ping()
	}()
}

// seedDepth наполняет стакан REST-снимком до первого кадра потока.
// Снимок проходит через HandleDepth, так что устаревший символ отбрасывается.
func (t *Terminal) seedDepth(ctx context.Context, symbol string) {
	if t.depth == nil {
		return
	}
	go func() {
		snapshot, err := t.depth.GetOrderBook(ctx, symbol, t.depthLimit)
		if err != nil {
			logger.Debug("Начальный снимок стакана недоступен",
				zap.String("symbol", symbol), zap.Error(err))
			return
		}
		t.HandleDepth(*snapshot)
	}()
}

// HandleTick принимает тик цены из потока.
// Тики неактивного символа и тики старше текущего отбрасываются:
// действует правило "последний побеждает".
func (t *Terminal) HandleTick(tick models.PriceTick) {
	t.mu.Lock()
	if tick.Symbol != t.symbol {
		t.mu.Unlock()
		logger.Debug("Отброшен тик неактивного символа", zap.String("symbol", tick.Symbol))
		return
	}
	if t.hasTick && tick.Timestamp.Before(t.lastTick.Timestamp) {
		t.mu.Unlock()
		return
	}
	t.lastTick = tick
	t.hasTick = true
	t.mu.Unlock()

	if err := t.recorder.SaveTick(context.Background(), tick); err != nil {
		logger.Warn("Ошибка записи тика", zap.Error(err))
	}
	t.ping()
}

// HandleDepth принимает снимок стакана из потока
func (t *Terminal) HandleDepth(snapshot models.DepthSnapshot) {
	t.mu.RLock()
	active := t.symbol
	t.mu.RUnlock()

	if snapshot.Symbol != active {
		logger.Debug("Отброшен снимок стакана неактивного символа",
			zap.String("symbol", snapshot.Symbol))
		return
	}

	t.book.Apply(snapshot)

	if err := t.recorder.SaveDepth(context.Background(), snapshot); err != nil {
		logger.Warn("Ошибка записи стакана", zap.Error(err))
	}
	t.ping()
}

// LastPrice возвращает последнюю живую цену символа.
// Для неактивного символа или до первого тика цены нет.
func (t *Terminal) LastPrice(symbol string) (decimal.Decimal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.hasTick || t.symbol != strings.ToUpper(strings.TrimSpace(symbol)) {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(t.lastTick.Price), true
}

// LastTick возвращает последний тик активного символа
func (t *Terminal) LastTick() (models.PriceTick, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastTick, t.hasTick
}

// ActiveSymbol возвращает активный символ
func (t *Terminal) ActiveSymbol() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.symbol
}

// ActiveInterval возвращает активный интервал графика
func (t *Terminal) ActiveInterval() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.interval
}

// Leverage возвращает выбранное плечо
func (t *Terminal) Leverage() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.leverage
}

// AdjustLeverage сдвигает плечо с ограничением границ формы
func (t *Terminal) AdjustLeverage(delta int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.leverage += delta
	if t.leverage < orders.MinLeverage {
		t.leverage = orders.MinLeverage
	}
	if t.leverage > orders.MaxLeverage {
		t.leverage = orders.MaxLeverage
	}
	return t.leverage
}

// Side возвращает выбранное направление формы
func (t *Terminal) Side() orders.Side {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.side
}

// SetSide устанавливает направление формы
func (t *Terminal) SetSide(side orders.Side) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.side = side
}

// Book возвращает отображаемое состояние стакана
func (t *Terminal) Book() *orderbook.Book {
	return t.book
}

// Wallet возвращает последний известный баланс
func (t *Terminal) Wallet() (models.Wallet, bool) {
	return t.accounts.Wallet()
}

// Positions возвращает открытые позиции с производным PnL.
// Позиции без живой цены показываются с нулевым PnL и признаком ожидания.
func (t *Terminal) Positions() []PositionView {
	positions := t.accounts.Positions()
	views := make([]PositionView, 0, len(positions))

	for _, pos := range positions {
		price, ok := t.LastPrice(pos.Symbol)
		view := PositionView{Position: pos, HasPrice: ok}
		if ok {
			view.PnL = pnl.Unrealized(pos, price)
		} else {
			view.PnL = decimal.Zero
		}
		views = append(views, view)
	}

	return views
}

// ForceRefresh форсирует обновление кошелька и позиций
func (t *Terminal) ForceRefresh(ctx context.Context) {
	t.accounts.ForceRefresh(ctx)
	t.ping()
}

func (t *Terminal) ping() {
	if t.notify != nil {
		t.notify()
	}
}

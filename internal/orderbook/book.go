package orderbook

import (
	"sort"
	"sync"

	"github.com/skalibog/bftt/pkg/models"
)

// MaxLevels максимум отображаемых уровней на каждой стороне
const MaxLevels = 10

// Book представляет отображаемое состояние стакана.
// Каждый примененный снимок целиком заменяет предыдущий: слияний и
// инкрементальных правок нет. Пустой или неполный снимок переводит
// стакан в явное состояние "нет данных" вместо показа устаревших уровней.
type Book struct {
	mu     sync.RWMutex
	symbol string
	asks   []models.OrderBookLevel
	bids   []models.OrderBookLevel
	ready  bool
}

// NewBook создает пустой стакан
func NewBook() *Book {
	return &Book{}
}

// Apply применяет снимок стакана, полностью заменяя предыдущее состояние
func (b *Book) Apply(snapshot models.DepthSnapshot) {
	asks := make([]models.OrderBookLevel, len(snapshot.Asks))
	copy(asks, snapshot.Asks)
	bids := make([]models.OrderBookLevel, len(snapshot.Bids))
	copy(bids, snapshot.Bids)

	// Аски по возрастанию цены, биды по убыванию
	sort.Slice(asks, func(i, j int) bool {
		return asks[i].Price < asks[j].Price
	})
	sort.Slice(bids, func(i, j int) bool {
		return bids[i].Price > bids[j].Price
	})

	if len(asks) > MaxLevels {
		asks = asks[:MaxLevels]
	}
	if len(bids) > MaxLevels {
		bids = bids[:MaxLevels]
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(asks) == 0 || len(bids) == 0 {
		// Неполный снимок: явное "нет данных" вместо устаревших уровней
		b.symbol = snapshot.Symbol
		b.asks = nil
		b.bids = nil
		b.ready = false
		return
	}

	b.symbol = snapshot.Symbol
	b.asks = asks
	b.bids = bids
	b.ready = true
}

// Reset сбрасывает стакан в состояние "нет данных"
func (b *Book) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.symbol = ""
	b.asks = nil
	b.bids = nil
	b.ready = false
}

// Ready сообщает, есть ли данные для отображения
func (b *Book) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

// Symbol возвращает символ последнего примененного снимка
func (b *Book) Symbol() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.symbol
}

// Asks возвращает до MaxLevels асков по возрастанию цены
func (b *Book) Asks() []models.OrderBookLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.OrderBookLevel, len(b.asks))
	copy(out, b.asks)
	return out
}

// Bids возвращает до MaxLevels бидов по убыванию цены
func (b *Book) Bids() []models.OrderBookLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.OrderBookLevel, len(b.bids))
	copy(out, b.bids)
	return out
}

// Spread возвращает текущий спред (лучший аск минус лучший бид)
func (b *Book) Spread() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.ready {
		return 0, false
	}
	return b.asks[0].Price - b.bids[0].Price, true
}

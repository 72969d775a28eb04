package catalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/skalibog/bftt/internal/config"
)

// Pair представляет торговую пару каталога
type Pair struct {
	Symbol string
	Name   string
}

// Catalog представляет каталог торгуемых пар.
// Избранное хранится здесь же с явным жизненным циклом
// (Favorites/ToggleFavorite/ClearFavorites), а не в глобальном
// key-value хранилище.
type Catalog struct {
	mu        sync.RWMutex
	pairs     []Pair
	index     map[string]Pair
	favorites map[string]bool
}

// defaultPairs список пар по умолчанию
var defaultPairs = []Pair{
	{Symbol: "BTCUSDT", Name: "BTC/USDT"},
	{Symbol: "ETHUSDT", Name: "ETH/USDT"},
	{Symbol: "SOLUSDT", Name: "SOL/USDT"},
	{Symbol: "XRPUSDT", Name: "XRP/USDT"},
}

// New создает каталог из конфигурации; при пустом списке используется набор по умолчанию
func New(pairs []config.PairConfig) *Catalog {
	c := &Catalog{
		index:     make(map[string]Pair),
		favorites: make(map[string]bool),
	}

	for _, p := range pairs {
		symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
		if symbol == "" {
			continue
		}
		name := p.Name
		if name == "" {
			name = symbol
		}
		c.add(Pair{Symbol: symbol, Name: name})
	}

	if len(c.pairs) == 0 {
		for _, p := range defaultPairs {
			c.add(p)
		}
	}

	return c
}

func (c *Catalog) add(p Pair) {
	if _, exists := c.index[p.Symbol]; exists {
		return
	}
	c.pairs = append(c.pairs, p)
	c.index[p.Symbol] = p
}

// Pairs возвращает все пары каталога в порядке объявления
func (c *Catalog) Pairs() []Pair {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Pair, len(c.pairs))
	copy(out, c.pairs)
	return out
}

// Contains проверяет наличие символа в каталоге
func (c *Catalog) Contains(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.index[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

// Name возвращает отображаемое имя пары
func (c *Catalog) Name(symbol string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if p, ok := c.index[strings.ToUpper(strings.TrimSpace(symbol))]; ok {
		return p.Name
	}
	return symbol
}

// IsFavorite проверяет, отмечена ли пара как избранная
func (c *Catalog) IsFavorite(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.favorites[strings.ToUpper(strings.TrimSpace(symbol))]
}

// ToggleFavorite переключает признак избранного; неизвестные символы игнорируются
func (c *Catalog) ToggleFavorite(symbol string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[symbol]; !ok {
		return
	}
	if c.favorites[symbol] {
		delete(c.favorites, symbol)
	} else {
		c.favorites[symbol] = true
	}
}

// Favorites возвращает отсортированный список избранных символов
func (c *Catalog) Favorites() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.favorites))
	for symbol := range c.favorites {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// ClearFavorites очищает избранное
func (c *Catalog) ClearFavorites() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.favorites = make(map[string]bool)
}

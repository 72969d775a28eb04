package orderbook

import (
	"testing"

	"github.com/skalibog/bftt/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func levels(prices ...float64) []models.OrderBookLevel {
	out := make([]models.OrderBookLevel, len(prices))
	for i, p := range prices {
		out[i] = models.OrderBookLevel{Price: p, Amount: 1}
	}
	return out
}

// Аски по возрастанию, биды по убыванию, не больше MaxLevels на сторону
func TestApplySortsAndTruncates(t *testing.T) {
	book := NewBook()

	book.Apply(models.DepthSnapshot{
		Symbol: "BTCUSDT",
		Asks:   levels(103, 101, 105, 102, 104, 106, 107, 109, 108, 110, 111, 112),
		Bids:   levels(99, 100, 97, 98, 96, 95, 94, 93, 92, 91, 90, 89),
	})

	require.True(t, book.Ready())
	asks := book.Asks()
	bids := book.Bids()
	require.Len(t, asks, MaxLevels)
	require.Len(t, bids, MaxLevels)

	for i := 1; i < len(asks); i++ {
		assert.Less(t, asks[i-1].Price, asks[i].Price)
	}
	for i := 1; i < len(bids); i++ {
		assert.Greater(t, bids[i-1].Price, bids[i].Price)
	}

	// Усечение оставляет лучшие уровни, а не первые попавшиеся
	assert.Equal(t, 101.0, asks[0].Price)
	assert.Equal(t, 110.0, asks[len(asks)-1].Price)
	assert.Equal(t, 100.0, bids[0].Price)
	assert.Equal(t, 91.0, bids[len(bids)-1].Price)

	spread, ok := book.Spread()
	require.True(t, ok)
	assert.InDelta(t, 1.0, spread, 1e-9)
}

// Каждый снимок целиком заменяет предыдущий, слияния нет
func TestApplyReplacesWholesale(t *testing.T) {
	book := NewBook()

	book.Apply(models.DepthSnapshot{
		Symbol: "BTCUSDT",
		Asks:   levels(101, 102),
		Bids:   levels(100, 99),
	})
	book.Apply(models.DepthSnapshot{
		Symbol: "BTCUSDT",
		Asks:   levels(201),
		Bids:   levels(200),
	})

	require.True(t, book.Ready())
	asks := book.Asks()
	require.Len(t, asks, 1)
	assert.Equal(t, 201.0, asks[0].Price)

	bids := book.Bids()
	require.Len(t, bids, 1)
	assert.Equal(t, 200.0, bids[0].Price)
}

// Пустой или неполный снимок дает явное "нет данных" вместо устаревших уровней
func TestApplyIncompleteSnapshot(t *testing.T) {
	book := NewBook()

	book.Apply(models.DepthSnapshot{
		Symbol: "BTCUSDT",
		Asks:   levels(101),
		Bids:   levels(100),
	})
	require.True(t, book.Ready())

	book.Apply(models.DepthSnapshot{
		Symbol: "BTCUSDT",
		Asks:   levels(105),
		Bids:   nil,
	})

	assert.False(t, book.Ready())
	assert.Empty(t, book.Asks())
	assert.Empty(t, book.Bids())

	_, ok := book.Spread()
	assert.False(t, ok)
}

func TestReset(t *testing.T) {
	book := NewBook()
	book.Apply(models.DepthSnapshot{
		Symbol: "BTCUSDT",
		Asks:   levels(101),
		Bids:   levels(100),
	})

	book.Reset()

	assert.False(t, book.Ready())
	assert.Empty(t, book.Symbol())
	assert.Empty(t, book.Asks())
	assert.Empty(t, book.Bids())
}

// Возвращаемые срезы - копии, правки читателя не трогают стакан
func TestAccessorsReturnCopies(t *testing.T) {
	book := NewBook()
	book.Apply(models.DepthSnapshot{
		Symbol: "BTCUSDT",
		Asks:   levels(101, 102),
		Bids:   levels(100, 99),
	})

	asks := book.Asks()
	asks[0].Price = 1

	assert.Equal(t, 101.0, book.Asks()[0].Price)
}

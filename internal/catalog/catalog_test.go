package catalog

import (
	"testing"

	"github.com/skalibog/bftt/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromConfig(t *testing.T) {
	c := New([]config.PairConfig{
		{Symbol: "btcusdt", Name: "BTC/USDT"},
		{Symbol: " ETHUSDT "},
		{Symbol: ""},
		{Symbol: "BTCUSDT", Name: "дубликат"},
	})

	pairs := c.Pairs()
	require.Len(t, pairs, 2)
	assert.Equal(t, "BTCUSDT", pairs[0].Symbol)
	assert.Equal(t, "BTC/USDT", pairs[0].Name)
	// Без имени отображается сам символ
	assert.Equal(t, "ETHUSDT", pairs[1].Name)

	assert.True(t, c.Contains("btcusdt"))
	assert.False(t, c.Contains("DOGEUSDT"))
	assert.Equal(t, "BTC/USDT", c.Name("BTCUSDT"))
	assert.Equal(t, "DOGEUSDT", c.Name("DOGEUSDT"))
}

// Пустая конфигурация дает набор пар по умолчанию
func TestNewDefaults(t *testing.T) {
	c := New(nil)

	pairs := c.Pairs()
	require.NotEmpty(t, pairs)
	assert.Equal(t, "BTCUSDT", pairs[0].Symbol)
}

func TestFavoritesLifecycle(t *testing.T) {
	c := New(nil)

	assert.False(t, c.IsFavorite("BTCUSDT"))

	c.ToggleFavorite("ethusdt")
	c.ToggleFavorite("BTCUSDT")
	assert.True(t, c.IsFavorite("BTCUSDT"))
	assert.True(t, c.IsFavorite("ETHUSDT"))
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, c.Favorites())

	// Повторное переключение снимает отметку
	c.ToggleFavorite("BTCUSDT")
	assert.False(t, c.IsFavorite("BTCUSDT"))
	assert.Equal(t, []string{"ETHUSDT"}, c.Favorites())

	// Неизвестный символ игнорируется
	c.ToggleFavorite("DOGEUSDT")
	assert.False(t, c.IsFavorite("DOGEUSDT"))

	c.ClearFavorites()
	assert.Empty(t, c.Favorites())
}

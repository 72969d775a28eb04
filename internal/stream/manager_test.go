package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/skalibog/bftt/internal/catalog"
	"github.com/skalibog/bftt/internal/config"
	"github.com/skalibog/bftt/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsServer тестовый websocket-сервер: считает живые подключения
// и отдает принятые соединения тесту для отправки кадров
type wsServer struct {
	upgrader websocket.Upgrader
	server   *httptest.Server

	mu       sync.Mutex
	lastURL  string
	open     atomic.Int64
	accepted chan *websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{accepted: make(chan *websocket.Conn, 8)}

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.lastURL = r.URL.String()
		s.mu.Unlock()

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		s.open.Add(1)
		s.accepted <- conn

		// Чтение до закрытия клиентом, чтобы заметить разрыв
		go func() {
			defer s.open.Add(-1)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(s.server.Close)

	return s
}

func (s *wsServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *wsServer) requestURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastURL
}

func (s *wsServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.accepted:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("сервер не принял подключение")
		return nil
	}
}

func newTestManager(s *wsServer) *Manager {
	return NewManager(config.StreamConfig{
		WSBaseURL: s.wsURL(),
		Depth:     20,
	}, catalog.New(nil))
}

func waitTick(t *testing.T, ch <-chan models.PriceTick) models.PriceTick {
	t.Helper()
	select {
	case tick := <-ch:
		return tick
	case <-time.After(3 * time.Second):
		t.Fatal("тик не доставлен")
		return models.PriceTick{}
	}
}

func TestSubscribeURL(t *testing.T) {
	s := newWSServer(t)
	m := newTestManager(s)
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), "BTCUSDT"))
	s.nextConn(t)

	// Комбинированный поток: цена маркировки + стакан фиксированной глубины
	url := s.requestURL()
	assert.Contains(t, url, "/stream?streams=")
	assert.Contains(t, url, "btcusdt@markPrice@1s")
	assert.Contains(t, url, "btcusdt@depth20@100ms")
	assert.Equal(t, "BTCUSDT", m.Symbol())
}

func TestSubscribeUnknownSymbol(t *testing.T) {
	s := newWSServer(t)
	m := newTestManager(s)

	require.Error(t, m.Subscribe(context.Background(), "DOGEUSDT"))
	require.Error(t, m.Subscribe(context.Background(), ""))
	assert.Empty(t, m.Symbol())
}

// Смена символа закрывает старое подключение до открытия нового:
// живое подключение всегда ровно одно
func TestSubscribeSingleConnection(t *testing.T) {
	s := newWSServer(t)
	m := newTestManager(s)
	defer m.Close()

	require.NoError(t, m.Subscribe(context.Background(), "BTCUSDT"))
	s.nextConn(t)

	require.NoError(t, m.Subscribe(context.Background(), "ETHUSDT"))
	s.nextConn(t)

	assert.Equal(t, "ETHUSDT", m.Symbol())
	assert.Contains(t, s.requestURL(), "ethusdt@markPrice@1s")

	require.Eventually(t, func() bool {
		return s.open.Load() == 1
	}, 3*time.Second, 10*time.Millisecond, "старое подключение должно закрыться")
}

func TestFrameDelivery(t *testing.T) {
	s := newWSServer(t)
	m := newTestManager(s)
	defer m.Close()

	ticks := make(chan models.PriceTick, 8)
	depths := make(chan models.DepthSnapshot, 8)
	m.OnPriceTick(func(tick models.PriceTick) { ticks <- tick })
	m.OnDepthSnapshot(func(snap models.DepthSnapshot) { depths <- snap })

	require.NoError(t, m.Subscribe(context.Background(), "BTCUSDT"))
	conn := s.nextConn(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(
		`{"stream":"btcusdt@markPrice@1s","data":{"E":1716000000000,"s":"BTCUSDT","p":"27000.10"}}`)))

	tick := waitTick(t, ticks)
	assert.Equal(t, "BTCUSDT", tick.Symbol)
	assert.Equal(t, 27000.10, tick.Price)
	assert.Equal(t, time.UnixMilli(1716000000000), tick.Timestamp)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(
		`{"stream":"btcusdt@depth20@100ms","data":{"E":1716000000100,"s":"BTCUSDT",
		  "b":[["26999.5","0.4"],["26999.0","1.2"]],"a":[["27000.5","0.7"]]}}`)))

	select {
	case snap := <-depths:
		assert.Equal(t, "BTCUSDT", snap.Symbol)
		require.Len(t, snap.Bids, 2)
		require.Len(t, snap.Asks, 1)
		assert.Equal(t, 26999.5, snap.Bids[0].Price)
		assert.Equal(t, 0.7, snap.Asks[0].Amount)
	case <-time.After(3 * time.Second):
		t.Fatal("снимок стакана не доставлен")
	}
}

// Нечитаемые кадры отбрасываются молча, подключение живет дальше
func TestMalformedFramesDropped(t *testing.T) {
	s := newWSServer(t)
	m := newTestManager(s)
	defer m.Close()

	ticks := make(chan models.PriceTick, 8)
	depths := make(chan models.DepthSnapshot, 8)
	m.OnPriceTick(func(tick models.PriceTick) { ticks <- tick })
	m.OnDepthSnapshot(func(snap models.DepthSnapshot) { depths <- snap })

	require.NoError(t, m.Subscribe(context.Background(), "BTCUSDT"))
	conn := s.nextConn(t)

	malformed := []string{
		`не json`,
		`{"stream":"btcusdt@markPrice@1s"}`,
		`{"stream":"btcusdt@markPrice@1s","data":{"s":"BTCUSDT","p":"не число"}}`,
		`{"stream":"btcusdt@markPrice@1s","data":{"s":"BTCUSDT","p":"-5"}}`,
		`{"stream":"btcusdt@depth20@100ms","data":{"s":"BTCUSDT","b":[["27000"]],"a":[]}}`,
		`{"stream":"btcusdt@depth20@100ms","data":{"s":"BTCUSDT","b":[["x","1"]],"a":[]}}`,
		`{"stream":"btcusdt@unknown","data":{"x":1}}`,
	}
	for _, frame := range malformed {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
	}

	// Хороший кадр после мусора все еще доставляется
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(
		`{"stream":"btcusdt@markPrice@1s","data":{"s":"BTCUSDT","p":"27001.00"}}`)))

	tick := waitTick(t, ticks)
	assert.Equal(t, 27001.00, tick.Price)

	// Ни одно событие из мусора не дошло
	assert.Empty(t, ticks)
	assert.Empty(t, depths)
}

func TestClose(t *testing.T) {
	s := newWSServer(t)
	m := newTestManager(s)

	require.NoError(t, m.Subscribe(context.Background(), "BTCUSDT"))
	s.nextConn(t)

	m.Close()
	assert.Empty(t, m.Symbol())

	require.Eventually(t, func() bool {
		return s.open.Load() == 0
	}, 3*time.Second, 10*time.Millisecond)

	// Повторное закрытие безопасно
	m.Close()
}

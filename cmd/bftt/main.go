package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/skalibog/bftt/internal/account"
	"github.com/skalibog/bftt/internal/backend"
	"github.com/skalibog/bftt/internal/catalog"
	"github.com/skalibog/bftt/internal/chart"
	"github.com/skalibog/bftt/internal/config"
	"github.com/skalibog/bftt/internal/exchange"
	"github.com/skalibog/bftt/internal/orderbook"
	"github.com/skalibog/bftt/internal/orders"
	"github.com/skalibog/bftt/internal/storage"
	"github.com/skalibog/bftt/internal/stream"
	"github.com/skalibog/bftt/internal/terminal"
	"github.com/skalibog/bftt/internal/ui"
	"github.com/skalibog/bftt/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// Инициализация логгера
	logger.Init()
	defer logger.Sync()

	logger.Info("Запуск BFTT - Binance Futures Trading Terminal")

	// Загрузка конфигурации
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	// Создание контекста с отменой
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Обработка сигналов для корректного завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Получен сигнал завершения, останавливаем терминал...")
		cancel()
	}()

	// Хранилище рыночных данных (опционально)
	var recorder storage.Recorder
	if cfg.Storage.Enabled {
		recorder, err = storage.NewInfluxDBRecorder(cfg.Storage)
		if err != nil {
			logger.Fatal("Ошибка инициализации InfluxDB", zap.Error(err))
		}
	} else {
		recorder = storage.NewNoop()
	}
	defer recorder.Close()

	// Клиент биржи
	binanceClient, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка создания клиента Binance", zap.Error(err))
	}

	// Клиент торгового бэкенда
	backendClient := backend.NewClient(cfg.Backend, backend.StaticToken(cfg.Backend.Token))

	// Каталог торговых пар
	cat := catalog.New(cfg.Trading.Pairs)

	// Стакан, график и поток рыночных данных
	book := orderbook.NewBook()
	feed := chart.NewFeed(binanceClient, cfg.Chart, recorder)
	streamManager := stream.NewManager(cfg.Stream, cat)

	// Опросчик аккаунта
	var termUI *ui.TermUI
	notify := func() {
		if termUI != nil {
			termUI.Refresh()
		}
	}
	poller := account.NewPoller(backendClient, cfg.Account, notify)

	// Терминал - владелец состояния
	term := terminal.New(terminal.Config{
		Catalog:    cat,
		Stream:     streamManager,
		Chart:      feed,
		Depth:      binanceClient,
		Book:       book,
		Accounts:   poller,
		Recorder:   recorder,
		Notify:     notify,
		Interval:   cfg.Trading.Interval,
		Leverage:   cfg.Trading.DefaultLeverage,
		DepthLimit: cfg.Stream.Depth,
	})

	// Кадры потока направляются в терминал
	streamManager.OnPriceTick(term.HandleTick)
	streamManager.OnDepthSnapshot(term.HandleDepth)

	// Контроллер ордеров: цена берется из живого тика, после сделки - форс-обновление
	controller := orders.NewController(backendClient, cat, term.LastPrice, term.ForceRefresh)

	if err := term.Start(ctx); err != nil {
		logger.Fatal("Ошибка запуска терминала", zap.Error(err))
	}
	defer term.Stop()

	// Текстовый интерфейс; блокирует до выхода
	termUI = ui.NewTermUI(ctx, cfg.UI, term, controller, cat, feed)
	termUI.Start()

	logger.Info("BFTT завершен")
}

package ui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/skalibog/bftt/internal/catalog"
	"github.com/skalibog/bftt/internal/chart"
	"github.com/skalibog/bftt/internal/config"
	"github.com/skalibog/bftt/internal/orders"
	"github.com/skalibog/bftt/internal/pnl"
	"github.com/skalibog/bftt/internal/terminal"
	"github.com/skalibog/bftt/pkg/logger"
	"go.uber.org/zap"
)

// Стили UI
var (
	// Основные цвета
	primaryColor  = lipgloss.Color("#0077cc")
	sectionColor  = lipgloss.Color("#333333")
	askColor      = lipgloss.Color("#cc3300")
	bidColor      = lipgloss.Color("#33cc33")
	pendingColor  = lipgloss.Color("#cccc00")
	subduedColor  = lipgloss.Color("#999999")
	selectedColor = lipgloss.Color("#222222")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#ffffff")).
				Background(sectionColor).
				Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(sectionColor).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(subduedColor).
			Padding(0, 1)
	askStyle     = lipgloss.NewStyle().Foreground(askColor)
	bidStyle     = lipgloss.NewStyle().Foreground(bidColor)
	pendingStyle = lipgloss.NewStyle().Foreground(pendingColor)
)

// Руны спарклайна графика
var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// TermUI представляет терминальный интерфейс
type TermUI struct {
	ctx      context.Context
	terminal *terminal.Terminal
	orders   *orders.Controller
	catalog  *catalog.Catalog
	chart    *chart.Feed
	cfg      config.UIConfig

	program *tea.Program

	logsMutex sync.RWMutex
	logs      []string
	logFile   string

	selectedMarket   int
	selectedPosition int
	marginInput      string
	status           string
	width            int
	height           int
}

// Сообщения для обновления UI
type refreshMsg struct{}
type statusMsg string

// bubbleModel - модель для bubbletea
type bubbleModel struct {
	ui *TermUI
}

// NewTermUI создает терминальный интерфейс
func NewTermUI(ctx context.Context, cfg config.UIConfig, term *terminal.Terminal, ctl *orders.Controller, cat *catalog.Catalog, feed *chart.Feed) *TermUI {
	ui := &TermUI{
		ctx:      ctx,
		terminal: term,
		orders:   ctl,
		catalog:  cat,
		chart:    feed,
		cfg:      cfg,
		logs:     []string{"BFTT запущен. Ожидание данных..."},
		logFile:  logger.JSONLogFile(),
		width:    120,
		height:   40,
	}

	refreshRate := time.Duration(cfg.RefreshRate) * time.Millisecond
	if refreshRate <= 0 {
		refreshRate = 500 * time.Millisecond
	}

	// Таймеры перерисовки и обновления панели логов
	go func() {
		redraw := time.NewTicker(refreshRate)
		defer redraw.Stop()
		logTail := time.NewTicker(1 * time.Second)
		defer logTail.Stop()

		for {
			select {
			case <-redraw.C:
				ui.Refresh()
			case <-logTail.C:
				if err := ui.loadLogsFromFile(); err != nil {
					logger.Warn("Ошибка загрузки логов", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return ui
}

// Start запускает UI; блокирует до выхода
func (ui *TermUI) Start() {
	model := bubbleModel{ui: ui}
	ui.program = tea.NewProgram(model, tea.WithAltScreen())

	if _, err := ui.program.Run(); err != nil {
		fmt.Printf("Ошибка запуска UI: %v\n", err)
	}
}

// Refresh просит UI перерисоваться; вызывается терминалом при новых данных
func (ui *TermUI) Refresh() {
	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

// setStatus показывает сообщение в строке статуса формы
func (ui *TermUI) setStatus(msg string) {
	if ui.program != nil {
		ui.program.Send(statusMsg(msg))
	}
}

// submitOrder отправляет заявку открытия в фоне
func (ui *TermUI) submitOrder() {
	symbol := ui.terminal.ActiveSymbol()
	side := ui.terminal.Side()
	leverage := ui.terminal.Leverage()
	margin := ui.marginInput

	go func() {
		pos, err := ui.orders.Open(ui.ctx, symbol, side, leverage, margin)
		if err != nil {
			ui.setStatus("Ошибка: " + err.Error())
			return
		}
		ui.setStatus(fmt.Sprintf("Позиция #%d открыта (%s %s)", pos.ID, pos.Side, pos.Symbol))
	}()
}

// closeSelected закрывает выбранную позицию в фоне
func (ui *TermUI) closeSelected() {
	positions := ui.terminal.Positions()
	if len(positions) == 0 {
		ui.setStatus("Нет открытых позиций")
		return
	}
	idx := ui.selectedPosition
	if idx >= len(positions) {
		idx = len(positions) - 1
	}
	pos := positions[idx]

	go func() {
		realized, err := ui.orders.Close(ui.ctx, pos.ID, pos.Symbol)
		if err != nil {
			ui.setStatus("Ошибка: " + err.Error())
			return
		}
		ui.setStatus(fmt.Sprintf("Позиция #%d закрыта, PnL %s", pos.ID, pnl.FormatCurrency(realized)))
	}()
}

// Методы для bubbletea
func (m bubbleModel) Init() tea.Cmd {
	return nil
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	ui := m.ui

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			ui.terminal.Stop()
			return m, tea.Quit
		case "up":
			ui.selectedMarket = max(0, ui.selectedMarket-1)
		case "down":
			ui.selectedMarket = min(len(ui.catalog.Pairs())-1, ui.selectedMarket+1)
		case "enter":
			pairs := ui.catalog.Pairs()
			if ui.selectedMarket < len(pairs) {
				symbol := pairs[ui.selectedMarket].Symbol
				if err := ui.terminal.SwitchSymbol(ui.ctx, symbol); err != nil {
					ui.status = "Ошибка: " + err.Error()
				} else {
					ui.status = "Выбран " + symbol
				}
			}
		case "i":
			next := chart.NextInterval(ui.terminal.ActiveInterval())
			if err := ui.terminal.SwitchInterval(ui.ctx, next); err != nil {
				ui.status = "Ошибка: " + err.Error()
			}
		case "f":
			pairs := ui.catalog.Pairs()
			if ui.selectedMarket < len(pairs) {
				ui.catalog.ToggleFavorite(pairs[ui.selectedMarket].Symbol)
			}
		case "b":
			ui.terminal.SetSide(orders.Buy)
		case "s":
			ui.terminal.SetSide(orders.Sell)
		case "+", "=":
			ui.terminal.AdjustLeverage(1)
		case "-":
			ui.terminal.AdjustLeverage(-1)
		case "o":
			ui.submitOrder()
		case "c":
			ui.closeSelected()
		case "j":
			ui.selectedPosition++
		case "k":
			ui.selectedPosition = max(0, ui.selectedPosition-1)
		case "backspace":
			if len(ui.marginInput) > 0 {
				ui.marginInput = ui.marginInput[:len(ui.marginInput)-1]
			}
		default:
			// Цифры и точка попадают в поле маржи
			s := msg.String()
			if len(s) == 1 && (s >= "0" && s <= "9" || s == ".") {
				ui.marginInput += s
			}
		}

	case tea.WindowSizeMsg:
		ui.width = msg.Width
		ui.height = msg.Height

	case statusMsg:
		ui.status = string(msg)

	case refreshMsg:
		// Просто перерисовка
	}

	return m, nil
}

func (m bubbleModel) View() string {
	ui := m.ui

	title := titleStyle.Render("BFTT - Binance Futures Trading Terminal")
	markets := ui.renderMarkets()
	chartPanel := ui.renderChart()
	book := ui.renderOrderBook()
	positions := ui.renderPositions()
	form := ui.renderForm()
	logs := ui.renderLogs()
	footer := footerStyle.Render("↑/↓+Enter - рынок, I - интервал, B/S - направление, +/- - плечо, цифры - маржа, O - открыть, J/K+C - закрыть, F - избранное, Q - выход")

	top := lipgloss.JoinHorizontal(lipgloss.Top, markets, chartPanel, book)
	middle := lipgloss.JoinHorizontal(lipgloss.Top, positions, form)

	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			top,
			middle,
			logs,
			footer,
		),
	)
}

// renderMarkets отображает каталог пар с живой ценой активного символа
func (ui *TermUI) renderMarkets() string {
	header := sectionHeaderStyle.Render("РЫНКИ")
	content := strings.Builder{}

	active := ui.terminal.ActiveSymbol()
	tick, hasTick := ui.terminal.LastTick()

	for i, pair := range ui.catalog.Pairs() {
		marker := "  "
		if ui.catalog.IsFavorite(pair.Symbol) {
			marker = "★ "
		}

		line := fmt.Sprintf("%s%-10s", marker, pair.Name)
		if pair.Symbol == active {
			if hasTick {
				line += fmt.Sprintf(" %.2f", tick.Price)
			} else {
				line += pendingStyle.Render(" ожидание...")
			}
		}

		if i == ui.selectedMarket {
			line = "> " + line
			line = lipgloss.NewStyle().Background(selectedColor).Render(line)
		} else {
			line = "  " + line
		}

		content.WriteString(line + "\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content.String()),
	)
}

// renderChart отображает спарклайн по ценам закрытия и RSI
func (ui *TermUI) renderChart() string {
	header := sectionHeaderStyle.Render(
		fmt.Sprintf("ГРАФИК %s %s", ui.terminal.ActiveSymbol(), ui.terminal.ActiveInterval()))
	content := strings.Builder{}

	candles := ui.chart.Candles()
	if len(candles) == 0 {
		content.WriteString("  Нет данных графика\n")
	} else {
		width := 60
		if len(candles) < width {
			width = len(candles)
		}
		window := candles[len(candles)-width:]

		low, high := window[0].Low, window[0].High
		for _, c := range window {
			if c.Low < low {
				low = c.Low
			}
			if c.High > high {
				high = c.High
			}
		}

		spark := make([]rune, len(window))
		span := high - low
		for i, c := range window {
			idx := 0
			if span > 0 {
				idx = int((c.Close - low) / span * float64(len(sparkRunes)-1))
			}
			spark[i] = sparkRunes[idx]
		}

		content.WriteString(fmt.Sprintf("  Max %.2f\n", high))
		content.WriteString("  " + string(spark) + "\n")
		content.WriteString(fmt.Sprintf("  Min %.2f  Закрытие %.2f\n", low, window[len(window)-1].Close))

		if rsi, ok := ui.chart.RSI(); ok {
			content.WriteString(fmt.Sprintf("  RSI: %.1f\n", rsi))
		}
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content.String()),
	)
}

// renderOrderBook отображает до 10 асков и бидов
func (ui *TermUI) renderOrderBook() string {
	header := sectionHeaderStyle.Render("СТАКАН")
	content := strings.Builder{}

	book := ui.terminal.Book()
	if !book.Ready() {
		content.WriteString("  Нет данных\n")
	} else {
		asks := book.Asks()
		// Аски отображаются сверху вниз от дорогих к дешевым
		for i := len(asks) - 1; i >= 0; i-- {
			content.WriteString(askStyle.Render(
				fmt.Sprintf("  %12.2f  %10.4f", asks[i].Price, asks[i].Amount)) + "\n")
		}
		if spread, ok := book.Spread(); ok {
			content.WriteString(fmt.Sprintf("  --- спред %.2f ---\n", spread))
		}
		for _, bid := range book.Bids() {
			content.WriteString(bidStyle.Render(
				fmt.Sprintf("  %12.2f  %10.4f", bid.Price, bid.Amount)) + "\n")
		}
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content.String()),
	)
}

// renderPositions отображает открытые позиции с живым PnL
func (ui *TermUI) renderPositions() string {
	header := sectionHeaderStyle.Render("ПОЗИЦИИ")
	content := strings.Builder{}

	views := ui.terminal.Positions()
	if len(views) == 0 {
		content.WriteString("  Нет открытых позиций\n")
	}

	if ui.selectedPosition >= len(views) && len(views) > 0 {
		ui.selectedPosition = len(views) - 1
	}

	for i, view := range views {
		pnlText := pendingStyle.Render("ожидание цены")
		if view.HasPrice {
			formatted := pnl.FormatCurrency(view.PnL)
			if view.PnL.Sign() >= 0 {
				pnlText = bidStyle.Render("+" + formatted)
			} else {
				pnlText = askStyle.Render(formatted)
			}
		}

		line := fmt.Sprintf("  #%d %s %s x%d вход %s ликв %s PnL %s",
			view.ID, view.Symbol, view.Side, view.Leverage,
			pnl.FormatCurrency(view.EntryPrice), pnl.FormatCurrency(view.LiquidationPrice), pnlText)

		if i == ui.selectedPosition {
			line = "> " + line[2:]
		}

		content.WriteString(line + "\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content.String()),
	)
}

// renderForm отображает кошелек и форму заявки
func (ui *TermUI) renderForm() string {
	header := sectionHeaderStyle.Render("ОРДЕР")
	content := strings.Builder{}

	if wallet, ok := ui.terminal.Wallet(); ok {
		content.WriteString("  Баланс: " + pnl.FormatCurrency(wallet.Balance) + " USDT\n")
	} else {
		content.WriteString(pendingStyle.Render("  Баланс: загрузка...") + "\n")
	}

	side := ui.terminal.Side()
	sideText := bidStyle.Render("BUY / LONG")
	if side == orders.Sell {
		sideText = askStyle.Render("SELL / SHORT")
	}
	content.WriteString("  Направление: " + sideText + "\n")
	content.WriteString(fmt.Sprintf("  Плечо: x%d\n", ui.terminal.Leverage()))

	margin := ui.marginInput
	if margin == "" {
		margin = "0.0"
	}
	content.WriteString("  Маржа: " + margin + " USDT\n")

	if ui.status != "" {
		content.WriteString("  " + ui.status + "\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content.String()),
	)
}

// loadLogsFromFile загружает хвост JSON-лога для панели логов
func (ui *TermUI) loadLogsFromFile() error {
	file, err := os.Open(ui.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var logs []string

	// Регулярное выражение для удаления ANSI-цветов
	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)

	for scanner.Scan() {
		line := scanner.Text()

		var zapLog map[string]interface{}
		if err := json.Unmarshal([]byte(line), &zapLog); err == nil {
			level, _ := zapLog["level"].(string)
			ts, _ := zapLog["ts"].(string)
			msg, _ := zapLog["msg"].(string)

			level = ansiRegex.ReplaceAllString(level, "")

			timestamp := ""
			if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
				timestamp = t.Format("15:04:05")
			}

			formattedMsg := fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)
			for k, v := range zapLog {
				if k != "level" && k != "ts" && k != "msg" && k != "caller" {
					formattedMsg += fmt.Sprintf(" (%s: %v)", k, v)
				}
			}

			logs = append(logs, formattedMsg)
		} else {
			logs = append(logs, line)
		}

		// Ограничиваем количество логов
		if len(logs) > 50 {
			logs = logs[1:]
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	ui.logsMutex.Lock()
	if len(logs) > 0 {
		ui.logs = logs
	}
	ui.logsMutex.Unlock()

	ui.Refresh()
	return nil
}

// renderLogs отображает хвост логов с подсветкой уровня
func (ui *TermUI) renderLogs() string {
	header := sectionHeaderStyle.Render("ЛОГИ")
	content := strings.Builder{}

	ui.logsMutex.RLock()
	logs := make([]string, len(ui.logs))
	copy(logs, ui.logs)
	ui.logsMutex.RUnlock()

	maxLogsToShow := 6
	start := 0
	if len(logs) > maxLogsToShow {
		start = len(logs) - maxLogsToShow
	}

	for i := start; i < len(logs); i++ {
		log := logs[i]

		if strings.Contains(log, "[ERROR]") {
			log = askStyle.Render(log)
		} else if strings.Contains(log, "[WARN]") {
			log = pendingStyle.Render(log)
		} else if strings.Contains(log, "[DEBUG]") {
			log = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(log)
		}

		content.WriteString("  " + log + "\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content.String()),
	)
}

// Вспомогательные функции min/max
func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

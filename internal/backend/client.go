package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/skalibog/bftt/internal/config"
	"github.com/skalibog/bftt/pkg/models"
)

// TokenSource выдает bearer-токен для запросов к бэкенду.
// Обновление токена и редирект при истечении сессии живут вне этого клиента.
type TokenSource interface {
	Token() string
}

// StaticToken простейший источник токена из конфигурации
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// Client клиент REST API бэкенда аккаунта.
// Любой ответ с полем error считается ошибкой с этим сообщением;
// автоматических повторов нет.
type Client struct {
	http   *resty.Client
	tokens TokenSource
}

// NewClient создает клиент бэкенда
func NewClient(cfg config.BackendConfig, tokens TokenSource) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		tokens: tokens,
	}
}

// OpenRequest параметры открытия позиции.
// Цена берется из последнего живого тика; авторитет по цене входа,
// ликвидации и размеру остается за сервером.
type OpenRequest struct {
	Symbol   string
	Side     models.PositionSide
	Leverage int
	Margin   decimal.Decimal
	Price    decimal.Decimal
	ClientID string
}

// Проводные формы ответов бэкенда
type walletPayload struct {
	Balance string `json:"balance"`
	Error   string `json:"error"`
}

type positionPayload struct {
	ID               int64  `json:"id"`
	Symbol           string `json:"symbol"`
	Side             string `json:"side"`
	EntryPrice       string `json:"entry_price"`
	Amount           string `json:"amount"`
	Contracts        string `json:"contracts"`
	Leverage         int    `json:"leverage"`
	InitialMargin    string `json:"initial_margin"`
	MarginUsed       string `json:"margin_used"`
	LiquidationPrice string `json:"liquidation_price"`
	OpenedAt         string `json:"opened_at"`
}

type openPayload struct {
	Message  string           `json:"message"`
	Position *positionPayload `json:"position"`
	Error    string           `json:"error"`
}

type closePayload struct {
	Message string `json:"message"`
	PnL     string `json:"pnl"`
	Error   string `json:"error"`
}

// GetWallet получает баланс фьючерсного кошелька
func (c *Client) GetWallet(ctx context.Context) (models.Wallet, error) {
	body, err := c.get(ctx, "/futures/wallet/")
	if err != nil {
		return models.Wallet{}, err
	}

	var payload walletPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Wallet{}, fmt.Errorf("ошибка разбора ответа кошелька: %w", err)
	}
	if payload.Error != "" {
		return models.Wallet{}, fmt.Errorf("%s", payload.Error)
	}

	balance, err := decimal.NewFromString(payload.Balance)
	if err != nil {
		return models.Wallet{}, fmt.Errorf("ошибка разбора баланса: %w", err)
	}

	return models.Wallet{Balance: balance}, nil
}

// GetPositions получает список открытых позиций
func (c *Client) GetPositions(ctx context.Context) ([]models.Position, error) {
	body, err := c.get(ctx, "/futures/positions/")
	if err != nil {
		return nil, err
	}

	// Бэкенд отдает либо список, либо объект с полем error
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "[") {
		var failure struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &failure); err == nil && failure.Error != "" {
			return nil, fmt.Errorf("%s", failure.Error)
		}
		return nil, fmt.Errorf("неожиданный ответ списка позиций")
	}

	var payload []positionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("ошибка разбора списка позиций: %w", err)
	}

	positions := make([]models.Position, 0, len(payload))
	for _, p := range payload {
		pos, err := p.toModel()
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора позиции %d: %w", p.ID, err)
		}
		positions = append(positions, pos)
	}

	return positions, nil
}

// OpenPosition отправляет запрос открытия позиции.
// Сервер единолично решает цену входа, размер и цену ликвидации.
func (c *Client) OpenPosition(ctx context.Context, req OpenRequest) (models.Position, error) {
	body := map[string]interface{}{
		"symbol":   req.Symbol,
		"side":     strings.ToLower(string(req.Side)),
		"leverage": req.Leverage,
		"margin":   req.Margin.String(),
		"price":    req.Price.String(),
	}

	raw, err := c.post(ctx, "/futures/open/", body)
	if err != nil {
		return models.Position{}, err
	}

	var payload openPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.Position{}, fmt.Errorf("ошибка разбора ответа открытия: %w", err)
	}
	if payload.Error != "" {
		return models.Position{}, fmt.Errorf("%s", payload.Error)
	}
	if payload.Position == nil {
		return models.Position{}, fmt.Errorf("ответ открытия без позиции")
	}

	return payload.Position.toModel()
}

// ClosePosition отправляет запрос закрытия позиции и возвращает
// реализованный PnL из ответа сервера
func (c *Client) ClosePosition(ctx context.Context, positionID int64, price decimal.Decimal) (decimal.Decimal, error) {
	raw, err := c.post(ctx, fmt.Sprintf("/futures/close/%d/", positionID), map[string]interface{}{
		"price": price.String(),
	})
	if err != nil {
		return decimal.Zero, err
	}

	var payload closePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("ошибка разбора ответа закрытия: %w", err)
	}
	if payload.Error != "" {
		return decimal.Zero, fmt.Errorf("%s", payload.Error)
	}

	pnl, err := decimal.NewFromString(payload.PnL)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ошибка разбора PnL: %w", err)
	}

	return pnl, nil
}

// get выполняет GET-запрос с авторизацией
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.tokens.Token()).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса %s: %w", path, err)
	}
	return responseBody(resp, path)
}

// post выполняет POST-запрос с авторизацией
func (c *Client) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.tokens.Token()).
		SetBody(body).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса %s: %w", path, err)
	}
	return responseBody(resp, path)
}

// responseBody возвращает тело ответа; на ошибочном статусе пытается
// вытащить серверное сообщение из формы {error}
func responseBody(resp *resty.Response, path string) ([]byte, error) {
	body := resp.Body()

	if resp.IsError() {
		var failure struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &failure); err == nil && failure.Error != "" {
			return nil, fmt.Errorf("%s", failure.Error)
		}
		return nil, fmt.Errorf("бэкенд вернул статус %d для %s", resp.StatusCode(), path)
	}

	return body, nil
}

// toModel конвертирует проводную форму позиции в модель
func (p positionPayload) toModel() (models.Position, error) {
	entry, err := decimal.NewFromString(p.EntryPrice)
	if err != nil {
		return models.Position{}, fmt.Errorf("цена входа: %w", err)
	}

	rawAmount := p.Amount
	if rawAmount == "" {
		rawAmount = p.Contracts
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return models.Position{}, fmt.Errorf("размер: %w", err)
	}

	rawMargin := p.InitialMargin
	if rawMargin == "" {
		rawMargin = p.MarginUsed
	}
	margin, err := decimal.NewFromString(rawMargin)
	if err != nil {
		return models.Position{}, fmt.Errorf("маржа: %w", err)
	}

	liq, err := decimal.NewFromString(p.LiquidationPrice)
	if err != nil {
		return models.Position{}, fmt.Errorf("цена ликвидации: %w", err)
	}

	side := models.PositionSide(strings.ToUpper(p.Side))
	if side != models.Long && side != models.Short {
		return models.Position{}, fmt.Errorf("неизвестная сторона %q", p.Side)
	}

	pos := models.Position{
		ID:               p.ID,
		Symbol:           strings.ToUpper(p.Symbol),
		Side:             side,
		EntryPrice:       entry,
		Amount:           amount,
		Leverage:         p.Leverage,
		InitialMargin:    margin,
		LiquidationPrice: liq,
	}

	if p.OpenedAt != "" {
		if t, err := time.Parse(time.RFC3339, p.OpenedAt); err == nil {
			pos.OpenedAt = t
		}
	}

	return pos, nil
}

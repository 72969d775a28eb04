package account

import (
	"context"
	"sync"
	"time"

	"github.com/skalibog/bftt/internal/backend"
	"github.com/skalibog/bftt/internal/config"
	"github.com/skalibog/bftt/pkg/logger"
	"github.com/skalibog/bftt/pkg/models"
	"go.uber.org/zap"
)

// Poller периодически опрашивает бэкенд: баланс кошелька и открытые позиции.
// Оба запроса независимы; неудачный цикл оставляет последнее известное
// состояние (устаревшее, но доступное), следующий цикл пробует снова.
type Poller struct {
	client   *backend.Client
	interval time.Duration
	onUpdate func()

	mu          sync.RWMutex
	wallet      models.Wallet
	walletKnown bool
	positions   []models.Position

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller создает опросчик аккаунта; onUpdate уведомляет UI об изменениях
func NewPoller(client *backend.Client, cfg config.AccountConfig, onUpdate func()) *Poller {
	return &Poller{
		client:   client,
		interval: cfg.PollInterval(),
		onUpdate: onUpdate,
	}
}

// Start запускает цикл опроса: немедленное обновление, затем по таймеру
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)

		p.refresh(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.refresh(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop останавливает опрос; таймер и горутина завершаются
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		<-p.done
	}
}

// ForceRefresh выполняет немедленное обновление вне расписания.
// Вызывается после действий с ордерами, чтобы пользователь увидел
// эффект без ожидания следующего тика опроса.
func (p *Poller) ForceRefresh(ctx context.Context) {
	p.refresh(ctx)
}

// refresh выполняет два независимых запроса; ошибки не очищают состояние
func (p *Poller) refresh(ctx context.Context) {
	changed := false

	wallet, err := p.client.GetWallet(ctx)
	if err != nil {
		logger.Warn("Ошибка опроса кошелька", zap.Error(err))
	} else {
		p.mu.Lock()
		p.wallet = wallet
		p.walletKnown = true
		p.mu.Unlock()
		changed = true
	}

	positions, err := p.client.GetPositions(ctx)
	if err != nil {
		logger.Warn("Ошибка опроса позиций", zap.Error(err))
	} else {
		p.mu.Lock()
		p.positions = positions
		p.mu.Unlock()
		changed = true
	}

	if changed && p.onUpdate != nil {
		p.onUpdate()
	}
}

// Wallet возвращает последний известный баланс и признак его наличия
func (p *Poller) Wallet() (models.Wallet, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.wallet, p.walletKnown
}

// Positions возвращает последний известный список открытых позиций
func (p *Poller) Positions() []models.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]models.Position, len(p.positions))
	copy(out, p.positions)
	return out
}

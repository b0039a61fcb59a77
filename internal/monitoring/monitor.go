// Package monitoring runs the periodic health sweep: rolling channel
// delivery rates, merchant low-balance alerts and queue backlog gauges.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/sakaloan5-create/sms-platform/internal/model"
	"github.com/sakaloan5-create/sms-platform/internal/queue"
	"github.com/sakaloan5-create/sms-platform/pkg/logger"
	"github.com/sakaloan5-create/sms-platform/pkg/prom"
	"github.com/shopspring/decimal"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultRateWindow    = time.Hour

	// degradeBelow is the delivery rate under which a channel is marked
	// degraded. minSample keeps tiny windows from flapping a channel.
	degradeBelow = 0.80
	minSample    = int64(20)
)

type MessageCounter interface {
	CountByStatusSince(ctx context.Context, since time.Time) (map[int64]map[model.MessageStatus]int64, error)
}

type ChannelUpdater interface {
	List(ctx context.Context, f model.ChannelFilter) ([]*model.Channel, error)
	UpdateSuccessRate(ctx context.Context, id int64, rate float64) error
	UpdateStatus(ctx context.Context, id int64, status model.ChannelStatus) error
}

type BalanceLister interface {
	ListBelowBalance(ctx context.Context, threshold decimal.Decimal) ([]*model.Merchant, error)
}

type MonitorConfig struct {
	SweepInterval       time.Duration
	RateWindow          time.Duration
	LowBalanceThreshold decimal.Decimal
}

// Monitor owns the background sweep goroutine. Start is idempotent-safe
// to pair with one Stop.
type Monitor struct {
	cfg       MonitorConfig
	messages  MessageCounter
	channels  ChannelUpdater
	merchants BalanceLister
	queues    []*queue.Queue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMonitor(cfg MonitorConfig, messages MessageCounter, channels ChannelUpdater, merchants BalanceLister, queues ...*queue.Queue) *Monitor {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = defaultRateWindow
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		cfg:       cfg,
		messages:  messages,
		channels:  channels,
		merchants: merchants,
		queues:    queues,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.sweepLoop()
	logger.Info("Monitor started", "interval", m.cfg.SweepInterval.String())
}

func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
	logger.Info("Monitor stopped")
}

func (m *Monitor) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep(m.ctx)
		case <-m.ctx.Done():
			return
		}
	}
}

// Sweep runs one full pass. Exported so operators can trigger it on
// demand and tests can drive it without the ticker.
func (m *Monitor) Sweep(ctx context.Context) {
	m.sweepChannelRates(ctx)
	m.sweepLowBalances(ctx)
	m.sweepQueueBacklog()
}

func (m *Monitor) sweepChannelRates(ctx context.Context) {
	counts, err := m.messages.CountByStatusSince(ctx, time.Now().Add(-m.cfg.RateWindow))
	if err != nil {
		logger.Error("channel rate sweep failed", "error", err)
		return
	}

	channels, err := m.channels.List(ctx, model.ChannelFilter{
		Statuses: []model.ChannelStatus{model.ChannelStatusActive, model.ChannelStatusDegraded},
	})
	if err != nil {
		logger.Error("channel rate sweep failed listing channels", "error", err)
		return
	}

	for _, ch := range channels {
		byStatus, ok := counts[ch.ID]
		if !ok {
			continue
		}
		delivered := byStatus[model.MessageStatusDelivered]
		failed := byStatus[model.MessageStatusFailed]
		settled := delivered + failed
		if settled < minSample {
			continue
		}

		rate := float64(delivered) / float64(settled)
		if err := m.channels.UpdateSuccessRate(ctx, ch.ID, rate); err != nil {
			logger.Error("failed updating channel success rate", "channel", ch.Name, "error", err)
			continue
		}

		switch {
		case rate < degradeBelow && ch.Status == model.ChannelStatusActive:
			logger.Warn("channel delivery rate degraded", "channel", ch.Name, "rate", rate, "sample", settled)
			if err := m.channels.UpdateStatus(ctx, ch.ID, model.ChannelStatusDegraded); err != nil {
				logger.Error("failed degrading channel", "channel", ch.Name, "error", err)
			}
		case rate >= degradeBelow && ch.Status == model.ChannelStatusDegraded:
			logger.Info("channel delivery rate recovered", "channel", ch.Name, "rate", rate)
			if err := m.channels.UpdateStatus(ctx, ch.ID, model.ChannelStatusActive); err != nil {
				logger.Error("failed restoring channel", "channel", ch.Name, "error", err)
			}
		}
	}
}

func (m *Monitor) sweepLowBalances(ctx context.Context) {
	low, err := m.merchants.ListBelowBalance(ctx, m.cfg.LowBalanceThreshold)
	if err != nil {
		logger.Error("low balance sweep failed", "error", err)
		return
	}

	prom.SetLowBalanceMerchants(float64(len(low)))
	for _, merchant := range low {
		logger.Warn("merchant balance below threshold",
			"merchant", merchant.Name, "balance", merchant.Balance.String(),
			"threshold", m.cfg.LowBalanceThreshold.String())
	}
}

func (m *Monitor) sweepQueueBacklog() {
	for _, q := range m.queues {
		stats, err := q.GetStats()
		if err != nil {
			logger.Warn("queue stats unavailable", "queue", q.Name(), "error", err)
			continue
		}
		prom.SetQueueBacklog(q.Name(), float64(stats.PendingMessages))
	}
}

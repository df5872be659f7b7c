package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/models"
)

// BookingSource is the external booking-system query: time range in,
// candidate operations out.
type BookingSource interface {
	QueryOperations(ctx context.Context, from, to time.Time) ([]models.ScheduledOperation, error)
}

// Poller drives the periodic booking-system poll over the forward
// horizon and retires past operations.
type Poller struct {
	registry *Registry
	source   BookingSource
	logger   *zap.Logger

	interval time.Duration
	horizon  time.Duration
}

// NewPoller creates the booking poller.
func NewPoller(registry *Registry, source BookingSource, logger *zap.Logger) *Poller {
	return &Poller{
		registry: registry,
		source:   source,
		logger:   logger,
		interval: time.Duration(registry.cfg.Schedule.PollIntervalSeconds) * time.Second,
		horizon:  time.Duration(registry.cfg.Schedule.HorizonHours) * time.Hour,
	}
}

// Start runs the poll loop until the context is cancelled. A failed
// poll is logged and retried on the next cycle; the loop never dies.
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info("Booking poller started",
		zap.Duration("interval", p.interval),
		zap.Duration("horizon", p.horizon),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Booking poller stopped")
			return nil
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	now := time.Now()

	ops, err := p.source.QueryOperations(ctx, now, now.Add(p.horizon))
	if err != nil {
		p.logger.Error("Booking poll failed, will retry next cycle", zap.Error(err))
	} else {
		for _, op := range ops {
			p.registry.UpsertFromPoll(op)
		}
		p.logger.Debug("Booking poll completed",
			zap.Int("operations", len(ops)),
			zap.Int("tracked", p.registry.Size()),
		)
	}

	p.registry.Retire(now)
}

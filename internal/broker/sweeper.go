package broker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/agentui/internal/domain"
)

// RunSweeper expires and evicts requests every SweepInterval until ctx is done.
func (b *Broker) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.Sweep(ctx, b.now())
		}
	}
}

// SweepResult counts what one sweep changed.
type SweepResult struct {
	Expired int
	Evicted int
}

// Sweep moves overdue pending requests to timeout and drops terminal requests
// older than the retention window.
func (b *Broker) Sweep(ctx context.Context, now time.Time) SweepResult {
	var res SweepResult

	if b.cfg.ExpirePending {
		for _, id := range b.requests.Overdue(now) {
			req, err := b.requests.Finish(id, domain.StatusTimeout, "request expired", now)
			if err != nil {
				// Answered between the scan and the transition.
				if !errors.Is(err, domain.ErrAlreadyTerminal) {
					b.log.Warn("failed to expire request", zap.String("request_id", id), zap.Error(err))
				}
				continue
			}
			b.finished(ctx, req, domain.HistoryExpired)
			res.Expired++
		}
	}

	if b.cfg.Retention > 0 {
		for _, req := range b.requests.Evict(now.Add(-b.cfg.Retention)) {
			b.record(ctx, req, domain.HistoryEvicted)
			res.Evicted++
		}
	}

	if res.Expired > 0 || res.Evicted > 0 {
		b.log.Info("sweep finished", zap.Int("expired", res.Expired), zap.Int("evicted", res.Evicted))
	}
	return res
}

package broker

import (
	"context"
	"errors"
	"time"

	"github.com/xiaot623/agentui/internal/domain"
)

// WaitForCompletion blocks until the request is terminal, the timeout passes
// or ctx is done. Unknown ids fail immediately. A timeout of zero or less uses
// the configured wait budget.
func (b *Broker) WaitForCompletion(ctx context.Context, id string, timeout time.Duration) (req domain.InteractionRequest, err error) {
	if timeout <= 0 {
		timeout = b.cfg.WaitTimeout
	}
	start := time.Now()
	defer func() {
		b.metrics.ObserveWait(waitOutcome(err), time.Since(start))
	}()

	req, err = b.requests.Get(id)
	if err != nil {
		return domain.InteractionRequest{}, err
	}
	if req.Status.IsTerminal() {
		return req, nil
	}

	done, err := b.requests.Done(id)
	if err != nil {
		return domain.InteractionRequest{}, err
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return domain.InteractionRequest{}, ctx.Err()
		case <-deadline.C:
			// A completion that raced the deadline still counts.
			if req, err := b.requests.Get(id); err == nil && req.Status.IsTerminal() {
				return req, nil
			}
			return domain.InteractionRequest{}, domain.ErrWaitTimeout
		case <-done:
			done = nil
		case <-ticker.C:
		}

		req, err = b.requests.Get(id)
		if err != nil {
			return domain.InteractionRequest{}, err
		}
		if req.Status.IsTerminal() {
			return req, nil
		}
	}
}

func waitOutcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, domain.ErrWaitTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "cancelled"
	}
}

// Package dispatch fans a batch of messages out over a provider's
// single-send hook with bounded concurrency and optional rate limiting.
// Outcomes keep the input order regardless of completion order.
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/heraldhq/herald/pkg/clients"
	"github.com/heraldhq/herald/pkg/config"
	"github.com/heraldhq/herald/pkg/message"
)

// SendFunc submits one message and returns the provider receipt.
type SendFunc func(ctx context.Context, msg *message.Message) (*message.Receipt, error)

// Outcome is the result of dispatching one message. Index is the
// message's position in the input batch.
type Outcome struct {
	Index   int
	Receipt *message.Receipt
	Err     error
}

// Dispatcher runs batch fan-out with a fixed worker count and an
// optional token bucket shared across workers. A Dispatcher is safe for
// concurrent use; each Dispatch call gets its own worker pool.
type Dispatcher struct {
	workers int
	limiter clients.RateLimiter
	logger  *zap.Logger
}

// New builds a dispatcher from channel dispatch configuration. A zero
// worker count falls back to the CPU count; rate limiting is off unless
// the configuration asks for it.
func New(cfg config.DispatchConfig, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		workers: cfg.GetWorkers(),
		logger:  logger.With(zap.String("component", "dispatch")),
	}
	if cfg.IsRateLimited() {
		d.limiter = clients.NewRateLimiter(cfg.RateLimitPerSec, cfg.GetBurst())
	}
	return d
}

// Workers returns the configured worker count.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// Dispatch sends every message and returns one outcome per input, in
// input order. Cancellation marks every message not yet handed to a
// worker with ctx.Err(); sends already in flight finish and report
// their own outcome. Dispatch never returns early with a partial
// result slice.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs []*message.Message, send SendFunc) []Outcome {
	outcomes := make([]Outcome, len(msgs))
	if len(msgs) == 0 {
		return outcomes
	}

	workers := d.workers
	if workers > len(msgs) {
		workers = len(msgs)
	}

	start := time.Now()
	d.logger.Debug("dispatching batch",
		zap.Int("messages", len(msgs)),
		zap.Int("workers", workers),
		zap.Bool("rate_limited", d.limiter != nil))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = d.sendOne(ctx, i, msgs[i], send)
			}
		}()
	}

	// Indexes either reach exactly one worker or are marked cancelled
	// here, so every outcomes slot has exactly one writer.
feed:
	for i := 0; i < len(msgs); i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			for j := i; j < len(msgs); j++ {
				outcomes[j] = Outcome{Index: j, Err: ctx.Err()}
			}
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	failed := 0
	for i := range outcomes {
		if outcomes[i].Err != nil {
			failed++
		}
	}
	d.logger.Debug("batch dispatched",
		zap.Int("messages", len(msgs)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))

	return outcomes
}

func (d *Dispatcher) sendOne(ctx context.Context, idx int, msg *message.Message, send SendFunc) Outcome {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return Outcome{Index: idx, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return Outcome{Index: idx, Err: err}
	}

	receipt, err := send(ctx, msg)
	return Outcome{Index: idx, Receipt: receipt, Err: err}
}

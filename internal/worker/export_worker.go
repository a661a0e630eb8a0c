// Package worker runs the background export loops: consuming export
// messages from AMQP, sweeping expenses stuck in the pending state and
// refreshing the spreadsheet report tabs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"splitledger/internal/amqp"
	"splitledger/internal/services"
)

// Consumer delivers export messages until the context is cancelled.
type Consumer interface {
	ConsumeExports(ctx context.Context, handler func(context.Context, *amqp.ExportMessage) error) error
}

// ExportWorker ties the AMQP consumer to the export processor and
// drives the periodic sweeps.
type ExportWorker struct {
	consumer  Consumer
	processor *services.ExportProcessor

	batchSize      int
	sweepInterval  time.Duration
	reportInterval time.Duration
}

// Option configures an ExportWorker.
type Option func(*ExportWorker)

// WithBatchSize sets how many pending expenses a single sweep exports.
func WithBatchSize(n int) Option {
	return func(w *ExportWorker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithSweepInterval sets how often the pending sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(w *ExportWorker) {
		if d > 0 {
			w.sweepInterval = d
		}
	}
}

// WithReportInterval sets how often the report tabs are rewritten.
func WithReportInterval(d time.Duration) Option {
	return func(w *ExportWorker) {
		if d > 0 {
			w.reportInterval = d
		}
	}
}

func NewExportWorker(consumer Consumer, processor *services.ExportProcessor, opts ...Option) *ExportWorker {
	w := &ExportWorker{
		consumer:       consumer,
		processor:      processor,
		batchSize:      10,
		sweepInterval:  30 * time.Second,
		reportInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until the context is cancelled or a loop fails. The
// pending sweep is the safety net for lost messages: an expense whose
// message never arrived is still exported within one sweep interval.
func (w *ExportWorker) Run(ctx context.Context) error {
	// Clear any backlog before consuming, so a worker that was down
	// catches up immediately instead of after the first tick.
	if err := w.processor.ProcessPending(ctx, w.batchSize*5); err != nil {
		slog.ErrorContext(ctx, "Startup pending sweep failed", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := w.consumer.ConsumeExports(ctx, w.processor.HandleMessage); err != nil && ctx.Err() == nil {
			return fmt.Errorf("consume export messages: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(w.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := w.processor.ProcessPending(ctx, w.batchSize); err != nil {
					slog.ErrorContext(ctx, "Pending sweep failed", "error", err)
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(w.reportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := w.processor.RefreshReport(ctx); err != nil {
					slog.ErrorContext(ctx, "Report refresh failed", "error", err)
				}
			}
		}
	})

	return g.Wait()
}

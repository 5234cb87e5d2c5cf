// Package batchworker implements the Batch Worker (spec.md §4.2): claims
// due rows from the Email Queue Store and attempts delivery through the
// Mailer, one BatchLog per invocation.
package batchworker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.redcell.dev/rangeops/internal/common/metrics"
	"go.redcell.dev/rangeops/internal/common/tsid"
	"go.redcell.dev/rangeops/internal/platform/emailqueue"
)

// Mailer is the subset of mailer.Client the worker depends on.
type Mailer interface {
	Send(ctx context.Context, row *emailqueue.Row) (providerMessageID string, err error)
}

// Config holds Batch Worker tuning parameters.
type Config struct {
	WorkerID      string
	BatchSize     int
	TemplateNames []string // not read by the Worker; claims are not filtered by template
}

// DefaultConfig returns sensible defaults. WorkerID defaults to a
// generated id if left empty by the caller.
func DefaultConfig() *Config {
	return &Config{BatchSize: 100}
}

// Worker runs one or more batches over the email queue. Multiple Worker
// instances (in separate processes) may call RunBatch concurrently: the
// at-most-one-claim guarantee comes from emailqueue.Repository.ClaimDue's
// transactional claim, not from any leadership mechanism here.
type Worker struct {
	repo   emailqueue.Repository
	mailer Mailer
	config *Config
}

// New creates a Batch Worker bound to a queue repository and a mailer.
func New(repo emailqueue.Repository, mailer Mailer, config *Config) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.WorkerID == "" {
		config.WorkerID = "worker-" + tsid.Generate()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	return &Worker{repo: repo, mailer: mailer, config: config}
}

// RunBatch executes one Batch Worker pass: claims up to batchSize due
// rows, attempts delivery for each, and records a BatchLog. A per-row
// send failure never aborts the remaining rows in the batch.
func (w *Worker) RunBatch(ctx context.Context, batchSize int) (*emailqueue.BatchLog, error) {
	if batchSize <= 0 {
		batchSize = w.config.BatchSize
	}

	start := time.Now()
	batchID := tsid.Generate()

	log := &emailqueue.BatchLog{
		ID:        tsid.Generate(),
		BatchID:   batchID,
		WorkerID:  w.config.WorkerID,
		StartedAt: start,
	}

	pollStart := time.Now()
	rows, err := w.repo.ClaimDue(ctx, batchSize, start, batchID, w.config.WorkerID)
	metrics.BatchWorkerPollDuration.Observe(time.Since(pollStart).Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim due rows: %w", err)
	}

	log.RowCount = len(rows)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			break
		}
		w.processRow(ctx, row, log)
	}

	finished := time.Now()
	log.FinishedAt = &finished

	if err := w.repo.RecordBatchLog(ctx, log); err != nil {
		slog.Error("failed to record batch log", "error", err, "batchId", batchID)
	}

	slog.Info("batch worker pass complete",
		"batchId", batchID,
		"claimed", log.RowCount,
		"sent", log.SentCount,
		"failed", log.FailedCount,
		"duration", finished.Sub(start))

	return log, nil
}

func (w *Worker) processRow(ctx context.Context, row *emailqueue.Row, log *emailqueue.BatchLog) {
	sendStart := time.Now()
	providerMessageID, err := w.mailer.Send(ctx, row)
	metrics.BatchWorkerSendDuration.Observe(time.Since(sendStart).Seconds())

	if err != nil {
		w.markFailed(ctx, row, err, log)
		return
	}

	if markErr := w.repo.MarkSent(ctx, row.ID, providerMessageID); markErr != nil {
		slog.Error("failed to mark row sent", "error", markErr, "rowId", row.ID)
		w.markFailed(ctx, row, markErr, log)
		return
	}

	log.SentCount++
	metrics.BatchWorkerRowsProcessed.WithLabelValues("sent").Inc()
}

func (w *Worker) markFailed(ctx context.Context, row *emailqueue.Row, sendErr error, log *emailqueue.BatchLog) {
	if err := w.repo.MarkFailed(ctx, row.ID, sendErr.Error()); err != nil {
		slog.Error("failed to mark row failed", "error", err, "rowId", row.ID)
	}
	log.FailedCount++
	metrics.BatchWorkerRowsProcessed.WithLabelValues("failed").Inc()
	slog.Warn("mailer send failed for queued row", "error", sendErr, "rowId", row.ID, "templateName", row.TemplateName)
}

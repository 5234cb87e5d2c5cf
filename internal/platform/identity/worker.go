package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"go.redcell.dev/rangeops/internal/common/metrics"
)

// breakerName identifies this worker's circuit breaker in metrics and logs,
// mirroring the "target" label convention of the HTTP mediator this is
// grounded on.
const breakerName = "identity-sync"

// SyncRequest is what gets pushed to the downstream identity provider for
// one Row.
type SyncRequest struct {
	UserID    string
	Username  string
	Password  string // plaintext, decrypted just-in-time; never logged
	Operation Operation
}

// DownstreamClient talks to the external user directory. Sync returns the
// HTTP-style status code the directory responded with, or a non-nil error
// for a transport-level failure (no status code available).
type DownstreamClient interface {
	Sync(ctx context.Context, req SyncRequest) (statusCode int, err error)
}

// Decryptor recovers the plaintext password from a queued row's ciphertext.
type Decryptor func(ciphertext string) (string, error)

// BatchResult summarizes one RunBatch call.
type BatchResult struct {
	Synced  int
	Failed  int
	Retried int
}

// Worker pulls unsynced rows and pushes them downstream, wrapping every
// outbound call in a circuit breaker so a directory outage degrades to
// fast local failures instead of stalling the batch (spec.md §4.7).
type Worker struct {
	repo    Repository
	client  DownstreamClient
	decrypt Decryptor
	breaker *gobreaker.CircuitBreaker
}

// NewWorker builds a Worker. cfg may be nil to use DefaultBreakerConfig.
func NewWorker(repo Repository, client DownstreamClient, decrypt Decryptor, cfg *BreakerConfig) *Worker {
	if cfg == nil {
		defaults := DefaultBreakerConfig()
		cfg = &defaults
	}
	return &Worker{
		repo:    repo,
		client:  client,
		decrypt: decrypt,
		breaker: newBreaker(*cfg),
	}
}

// BreakerConfig configures the identity sync circuit breaker.
type BreakerConfig struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	Ratio       float64
	MinRequests uint32
}

// DefaultBreakerConfig mirrors the HTTP mediator's production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     5 * time.Second,
		Ratio:       0.5,
		MinRequests: 10,
	}
}

func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.Ratio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Info("identity sync circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			var stateValue float64
			switch to {
			case gobreaker.StateClosed:
				stateValue = float64(metrics.CircuitBreakerClosed)
			case gobreaker.StateOpen:
				stateValue = float64(metrics.CircuitBreakerOpen)
				metrics.MediatorCircuitBreakerTrips.WithLabelValues(name).Inc()
			case gobreaker.StateHalfOpen:
				stateValue = float64(metrics.CircuitBreakerHalfOpen)
			}
			metrics.MediatorCircuitBreakerState.WithLabelValues(name).Set(stateValue)
		},
	})
}

// RunBatch pulls up to batchSize unsynced rows and pushes each downstream.
//
// If the breaker is already open when a row is attempted, that call
// short-circuits without reaching the repository's Mark* methods at all, so
// a row is left untouched (still synced=false) rather than counted as a
// retry. When the breaker is open from the first row onward, the entire
// tick ends with no row marked, matching the "abort the batch without
// marking any rows processed" contract for a wholly unreachable downstream.
func (w *Worker) RunBatch(ctx context.Context, batchSize int) (*BatchResult, error) {
	rows, err := w.repo.FindUnsynced(ctx, batchSize)
	if err != nil {
		return nil, fmt.Errorf("identity sync: find unsynced: %w", err)
	}

	result := &BatchResult{}
	for _, row := range rows {
		w.syncOne(ctx, row, result)
	}

	slog.Info("identity sync batch complete", "rows", len(rows),
		"synced", result.Synced, "failed", result.Failed, "retried", result.Retried)
	return result, nil
}

func (w *Worker) syncOne(ctx context.Context, row *Row, result *BatchResult) {
	password := ""
	if row.EncryptedPassword != nil {
		plain, err := w.decrypt(*row.EncryptedPassword)
		if err != nil {
			slog.Error("identity sync: decrypt failed", "row_id", row.ID, "user_id", row.UserID, "error", err)
			if err := w.repo.MarkRetry(ctx, row.ID, "decrypt failed"); err != nil {
				slog.Error("identity sync: mark retry failed", "row_id", row.ID, "error", err)
			}
			result.Retried++
			return
		}
		password = plain
	}

	outcome, err := w.breaker.Execute(func() (interface{}, error) {
		statusCode, err := w.client.Sync(ctx, SyncRequest{
			UserID: row.UserID, Username: row.Username, Password: password, Operation: row.Operation,
		})
		if err != nil {
			return nil, err
		}
		return statusCode, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		slog.Warn("identity sync: downstream circuit open, leaving row queued", "row_id", row.ID)
		return
	}

	if err != nil {
		slog.Error("identity sync: downstream call failed", "row_id", row.ID, "user_id", row.UserID, "error", err)
		if err := w.repo.MarkRetry(ctx, row.ID, err.Error()); err != nil {
			slog.Error("identity sync: mark retry failed", "row_id", row.ID, "error", err)
		}
		result.Retried++
		return
	}

	statusCode := outcome.(int)
	switch {
	case statusCode >= 200 && statusCode < 300:
		if err := w.repo.MarkSynced(ctx, row.ID); err != nil {
			slog.Error("identity sync: mark synced failed", "row_id", row.ID, "error", err)
			return
		}
		result.Synced++
	case statusCode >= 400 && statusCode < 500:
		errMsg := fmt.Sprintf("downstream rejected with status %d", statusCode)
		if err := w.repo.MarkFailed(ctx, row.ID, errMsg); err != nil {
			slog.Error("identity sync: mark failed failed", "row_id", row.ID, "error", err)
			return
		}
		result.Failed++
	default:
		errMsg := fmt.Sprintf("downstream returned status %d", statusCode)
		if err := w.repo.MarkRetry(ctx, row.ID, errMsg); err != nil {
			slog.Error("identity sync: mark retry failed", "row_id", row.ID, "error", err)
			return
		}
		result.Retried++
	}
}

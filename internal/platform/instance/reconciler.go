package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"go.redcell.dev/rangeops/internal/common/metrics"
	"go.redcell.dev/rangeops/internal/common/tsid"
)

// Reconciler polls every pollable Instance's cloud provider once per tick,
// normalizes the response, and persists the result. A single instance's
// failure never aborts the tick for the rest (spec.md §4.9).
type Reconciler struct {
	repo      Repository
	providers map[Provider]CloudProvider
	breakers  map[Provider]*gobreaker.CircuitBreaker
}

// NewReconciler builds a Reconciler. providers maps each Provider this
// deployment uses to its CloudProvider implementation; an instance whose
// Provider has no entry is skipped with a logged warning.
func NewReconciler(repo Repository, providers map[Provider]CloudProvider) *Reconciler {
	breakers := make(map[Provider]*gobreaker.CircuitBreaker, len(providers))
	for name := range providers {
		breakers[name] = newProviderBreaker(name)
	}
	return &Reconciler{repo: repo, providers: providers, breakers: breakers}
}

func newProviderBreaker(name Provider) *gobreaker.CircuitBreaker {
	breakerName := "instance-" + string(name)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.5
		},
		OnStateChange: func(n string, from gobreaker.State, to gobreaker.State) {
			slog.Info("instance reconciler circuit breaker state changed", "name", n, "from", from.String(), "to", to.String())
			var stateValue float64
			switch to {
			case gobreaker.StateClosed:
				stateValue = float64(metrics.CircuitBreakerClosed)
			case gobreaker.StateOpen:
				stateValue = float64(metrics.CircuitBreakerOpen)
				metrics.MediatorCircuitBreakerTrips.WithLabelValues(n).Inc()
			case gobreaker.StateHalfOpen:
				stateValue = float64(metrics.CircuitBreakerHalfOpen)
			}
			metrics.MediatorCircuitBreakerState.WithLabelValues(n).Set(stateValue)
		},
	})
}

// TickSummary reports the outcome of one reconciliation pass.
type TickSummary struct {
	Polled  int
	Updated int
	Skipped int
	Errored int
}

// Run polls every pollable instance once and persists whatever status
// each provider reports, tolerating per-instance failures.
func (r *Reconciler) Run(ctx context.Context) (*TickSummary, error) {
	instances, err := r.repo.FindPollable(ctx)
	if err != nil {
		return nil, err
	}

	summary := &TickSummary{}
	for _, inst := range instances {
		summary.Polled++
		r.reconcileOne(ctx, inst, summary)
	}

	slog.Info("instance reconciler tick complete",
		"polled", summary.Polled, "updated", summary.Updated, "skipped", summary.Skipped, "errored", summary.Errored)
	return summary, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, inst *Instance, summary *TickSummary) {
	provider, ok := r.providers[inst.Provider]
	if !ok {
		slog.Warn("instance reconciler: no provider configured", "instance_id", inst.ID, "provider", inst.Provider)
		summary.Skipped++
		return
	}
	breaker := r.breakers[inst.Provider]

	result, err := breaker.Execute(func() (interface{}, error) {
		return PollStatus(ctx, provider, inst.ProviderInstanceID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		slog.Warn("instance reconciler: provider circuit open, skipping instance", "instance_id", inst.ID, "provider", inst.Provider)
		summary.Skipped++
		return
	}
	if err != nil {
		slog.Error("instance reconciler: get status failed", "instance_id", inst.ID, "provider", inst.Provider, "error", err)
		if markErr := r.repo.RecordSyncError(ctx, inst.ID, err.Error()); markErr != nil {
			slog.Error("instance reconciler: record sync error failed", "instance_id", inst.ID, "error", markErr)
		}
		summary.Errored++
		return
	}

	report := result.(*StatusReport)
	if err := r.repo.UpdateStatus(ctx, inst.ID, report.Status, report.PrimaryIPv4); err != nil {
		slog.Error("instance reconciler: update status failed", "instance_id", inst.ID, "error", err)
		summary.Errored++
		return
	}
	summary.Updated++
}

// ProvisionRequest describes a new instance to create through a provider,
// including the cloud-init template to render into the create call's
// user_data argument (spec.md §6).
type ProvisionRequest struct {
	Provider Provider
	Name     string
	Size     string
	Image    string
	Region   string
	Network  string
	Key      string

	CloudInitTemplate string
	CloudInitValues   map[string]string

	Hostname   string
	UserID     *string
	EventID    *string
	TemplateID *string
}

// Provision renders req's cloud-init template (when given), calls the
// provider's create_instance, and persists the resulting row in the
// BUILDING state for the next Run tick to pick up.
func (r *Reconciler) Provision(ctx context.Context, req ProvisionRequest) (*Instance, error) {
	provider, ok := r.providers[req.Provider]
	if !ok {
		return nil, fmt.Errorf("instance: no provider configured for %q", req.Provider)
	}

	var userData []byte
	if req.CloudInitTemplate != "" {
		encoded, err := RenderCloudInit(req.CloudInitTemplate, req.CloudInitValues)
		if err != nil {
			return nil, err
		}
		userData = []byte(encoded)
	}

	providerInstanceID, err := provider.CreateInstance(ctx, CreateInstanceParams{
		Name:     req.Name,
		Size:     req.Size,
		Image:    req.Image,
		Region:   req.Region,
		Network:  req.Network,
		Key:      req.Key,
		UserData: userData,
	})
	if err != nil {
		return nil, fmt.Errorf("instance: create instance: %w", err)
	}

	now := time.Now().UTC()
	inst := &Instance{
		ID:                 tsid.Generate(),
		Provider:           req.Provider,
		ProviderInstanceID: providerInstanceID,
		Hostname:           req.Hostname,
		Status:             StatusBuilding,
		UserID:             req.UserID,
		EventID:            req.EventID,
		TemplateID:         req.TemplateID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := r.repo.Insert(ctx, inst); err != nil {
		return nil, fmt.Errorf("instance: insert: %w", err)
	}
	return inst, nil
}

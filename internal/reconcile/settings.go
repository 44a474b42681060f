package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/evanofslack/cf-zone-sync/internal/diff"
	"github.com/evanofslack/cf-zone-sync/internal/metrics"
	"github.com/evanofslack/cf-zone-sync/internal/provider"
)

type SettingsReconciler struct {
	client    provider.Client
	store     ConfigStore
	gate      Gate
	presenter Presenter
	executor  *Executor
	metrics   *metrics.Metrics
}

func NewSettingsReconciler(d Deps) *SettingsReconciler {
	return &SettingsReconciler{
		client:    d.Client,
		store:     d.Store,
		gate:      d.Gate,
		presenter: d.Presenter,
		executor:  NewExecutor(d.Client, d.Metrics, d.Concurrency),
		metrics:   d.Metrics,
	}
}

func (r *SettingsReconciler) Reconcile(ctx context.Context, zone provider.Zone) Outcome {
	o := &Outcome{Resource: ResourceSettings, Zone: zone.Name}
	r.run(ctx, zone, o)
	finish(o, r.presenter, r.metrics)
	return *o
}

func (r *SettingsReconciler) run(ctx context.Context, zone provider.Zone, o *Outcome) {
	desired, err := r.store.Settings()
	if err != nil {
		err = desiredStateError(err, zone.Name, ResourceSettings)
		o.abort(string(kindOf(err)), err)
		return
	}

	live, err := r.client.Settings(ctx, zone.ID)
	if err != nil {
		err = Classify(err, zone.Name, "settings", CapabilitySettingsRead)
		o.abort(string(kindOf(err)), err)
		return
	}
	o.enter(StateLoaded)
	slog.Debug("Loaded settings", "zone", zone.Name, "live", len(live), "desired", len(desired))

	current := make(map[string]any, len(live))
	for _, s := range live {
		current[s.ID] = s.Value
	}
	d := diff.Mapping(current, desired)
	o.SettingsDiff = d
	o.enter(StateDiffed)

	if len(d) == 0 {
		slog.Info("Settings match, ending reconciliation", "zone", zone.Name)
		o.Reason = ReasonMatches
		o.enter(StateNoChange)
		o.enter(StateReported)
		return
	}

	items := BuildSettingsPlan(d)
	o.Settings = items
	o.enter(StatePlanBuilt)
	r.presenter.SettingsDiff(zone.Name, d)

	ok, reason, err := confirm(ctx, r.gate, fmt.Sprintf("Apply %d setting changes to %s?", len(items), zone.Name))
	if err != nil {
		o.abort(ReasonDeclined, err)
		return
	}
	if !ok {
		slog.Info("Settings plan not applied", "zone", zone.Name, "reason", reason)
		o.abort(reason, nil)
		return
	}
	o.enter(StateConfirmed)

	if err := r.executor.ExecuteSettings(ctx, zone, items); err != nil {
		o.abort(string(kindOf(err)), err)
		return
	}
	o.enter(StateApplied)
	o.enter(StateReported)
}

func kindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return TransportError
}

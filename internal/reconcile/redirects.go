package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/evanofslack/cf-zone-sync/internal/diff"
	"github.com/evanofslack/cf-zone-sync/internal/metrics"
	"github.com/evanofslack/cf-zone-sync/internal/provider"
	"github.com/evanofslack/cf-zone-sync/internal/redirect"
)

type RedirectReconciler struct {
	client    provider.Client
	store     ConfigStore
	gate      Gate
	presenter Presenter
	executor  *Executor
	metrics   *metrics.Metrics
}

func NewRedirectReconciler(d Deps) *RedirectReconciler {
	return &RedirectReconciler{
		client:    d.Client,
		store:     d.Store,
		gate:      d.Gate,
		presenter: d.Presenter,
		executor:  NewExecutor(d.Client, d.Metrics, d.Concurrency),
		metrics:   d.Metrics,
	}
}

func (r *RedirectReconciler) Reconcile(ctx context.Context, zone provider.Zone) Outcome {
	o := &Outcome{Resource: ResourceRedirects, Zone: zone.Name}
	r.run(ctx, zone, o)
	finish(o, r.presenter, r.metrics)
	return *o
}

func (r *RedirectReconciler) run(ctx context.Context, zone provider.Zone, o *Outcome) {
	desired, err := r.store.Redirects(zone.Name)
	if err != nil {
		err = desiredStateError(err, zone.Name, ResourceRedirects)
		o.abort(string(kindOf(err)), err)
		return
	}

	live, err := r.client.PageRules(ctx, zone.ID)
	if err != nil {
		err = Classify(err, zone.Name, "pagerules", CapabilityPageRulesRead)
		o.abort(string(kindOf(err)), err)
		return
	}
	o.enter(StateLoaded)
	r.presenter.ZoneHealth(zone, len(live))

	// Only forwarding rules take part in the diff; the rest still count
	// against quota.
	forwarding := redirect.Forwarding(live)
	if skipped := len(live) - len(forwarding); skipped > 0 {
		slog.Debug("Ignoring page rules with unsupported actions", "zone", zone.Name, "count", skipped)
	}
	d := diff.Sequence(redirect.ToRules(forwarding), desired)
	o.RedirectsDiff = d
	o.enter(StateDiffed)

	if len(d) == 0 {
		slog.Info("Redirects match, ending reconciliation", "zone", zone.Name)
		r.presenter.PageRules(zone.Name, live)
		o.Reason = ReasonMatches
		o.enter(StateNoChange)
		o.enter(StateReported)
		return
	}
	r.presenter.RedirectsDiff(zone.Name, d)

	ops, err := BuildRedirectPlan(d, RedirectPlanInput{
		Zone:         zone.Name,
		Current:      forwarding,
		Desired:      desired,
		ZoneWildcard: zone.Wildcard(),
		Quota:        zone.PageRuleQuota,
		LiveCount:    len(live),
	})
	if err != nil {
		o.abort(string(kindOf(err)), err)
		return
	}
	o.Operations = ops
	o.enter(StatePlanBuilt)
	slog.Debug("Built redirect plan", "zone", zone.Name, "ops", summarize(ops))

	ok, reason, err := confirm(ctx, r.gate, fmt.Sprintf("Apply %s to page rules of %s?", summarize(ops), zone.Name))
	if err != nil {
		o.abort(ReasonDeclined, err)
		return
	}
	if !ok {
		slog.Info("Redirect plan not applied", "zone", zone.Name, "reason", reason)
		o.abort(reason, nil)
		return
	}
	o.enter(StateConfirmed)

	results := r.executor.ExecuteRedirectPlan(ctx, zone, ops)
	o.Results = results
	o.enter(StateApplied)

	r.presenter.RedirectResults(zone.Name, results)
	o.enter(StateReported)
}

package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/evanofslack/cf-zone-sync/internal/metrics"
	"github.com/evanofslack/cf-zone-sync/internal/provider"
)

const defaultConcurrency = 4

type PlanResult struct {
	TargetKey string
	Kind      OpKind
	Success   bool
	Err       error
	// Rule is the resulting rule for successful creates and updates.
	Rule *provider.PageRule
}

type Executor struct {
	client      provider.Client
	metrics     *metrics.Metrics
	concurrency int
}

func NewExecutor(client provider.Client, metrics *metrics.Metrics, concurrency int) *Executor {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Executor{client: client, metrics: metrics, concurrency: concurrency}
}

// ExecuteSettings applies all items in a single call.
func (x *Executor) ExecuteSettings(ctx context.Context, zone provider.Zone, items []provider.Setting) error {
	slog.Debug("Start execute settings from plan", "zone", zone.Name, "count", len(items))
	err := x.client.UpdateSettings(ctx, zone.ID, items)
	x.metrics.IncOperation(string(Update), zone.Name, err == nil)
	if err != nil {
		slog.Error("Failed to update settings", "zone", zone.Name, "error", err)
		return Classify(err, zone.Name, "settings", CapabilitySettingsEdit)
	}
	return nil
}

// ExecuteRedirectPlan submits every operation and returns one result per
// op, in op order. A failed op never stops its siblings.
func (x *Executor) ExecuteRedirectPlan(ctx context.Context, zone provider.Zone, ops []Operation) []PlanResult {
	results := make([]PlanResult, len(ops))

	var g errgroup.Group
	g.SetLimit(x.concurrency)
	for i, op := range ops {
		g.Go(func() error {
			results[i] = x.apply(ctx, zone, op)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (x *Executor) apply(ctx context.Context, zone provider.Zone, op Operation) (result PlanResult) {
	result = PlanResult{TargetKey: op.TargetKey, Kind: op.Kind}
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Err = Classify(fmt.Errorf("%s %s: panic: %v", op.Kind, op.TargetKey, r), zone.Name, op.TargetKey, "")
		}
		x.metrics.IncOperation(string(op.Kind), zone.Name, result.Success)
	}()

	slog.Debug("Start execute operation from plan", "zone", zone.Name, "op", op.Kind, "key", op.TargetKey)

	var err error
	switch op.Kind {
	case Create:
		if op.Payload == nil {
			err = fmt.Errorf("create %s: missing payload", op.TargetKey)
			break
		}
		var created provider.PageRule
		created, err = x.client.CreatePageRule(ctx, zone.ID, *op.Payload)
		if err == nil {
			result.Rule = &created
		}
	case Update:
		if op.Payload == nil {
			err = fmt.Errorf("update %s: missing payload", op.TargetKey)
			break
		}
		var updated provider.PageRule
		updated, err = x.client.UpdatePageRule(ctx, zone.ID, op.TargetKey, *op.Payload)
		if err == nil {
			result.Rule = &updated
		}
	case Delete:
		err = x.client.DeletePageRule(ctx, zone.ID, op.TargetKey)
	default:
		err = fmt.Errorf("unknown operation %q", op.Kind)
	}

	if err != nil {
		slog.Error("Failed to apply operation", "zone", zone.Name, "op", op.Kind, "key", op.TargetKey, "error", err)
		result.Err = Classify(err, zone.Name, op.TargetKey, CapabilityPageRulesEdit)
		return result
	}
	result.Success = true
	return result
}

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/evanofslack/cf-zone-sync/internal/diff"
	"github.com/evanofslack/cf-zone-sync/internal/metrics"
	"github.com/evanofslack/cf-zone-sync/internal/provider"
	"github.com/evanofslack/cf-zone-sync/internal/redirect"
)

// ConfigStore yields desired state. A missing file is reported with an error
// wrapping fs.ErrNotExist.
type ConfigStore interface {
	Settings() (map[string]any, error)
	Redirects(zone string) ([]redirect.Rule, error)
}

// Gate asks whether a built plan may be applied.
type Gate interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// Presenter renders reconciliation progress for the user.
type Presenter interface {
	ZoneHealth(zone provider.Zone, used int)
	SettingsDiff(zone string, d map[string]diff.Entry)
	RedirectsDiff(zone string, d map[int]diff.Entry)
	RedirectResults(zone string, results []PlanResult)
	// PageRules lists live page rules, shown when redirects already match.
	PageRules(zone string, rules []provider.PageRule)
	Outcome(o Outcome)
}

// Reconciler converges one resource kind of one zone.
type Reconciler interface {
	Reconcile(ctx context.Context, zone provider.Zone) Outcome
}

type Resource string

const (
	ResourceSettings  Resource = "settings"
	ResourceRedirects Resource = "redirects"
)

type State string

const (
	StateLoaded    State = "loaded"
	StateDiffed    State = "diffed"
	StateNoChange  State = "no_change"
	StatePlanBuilt State = "plan_built"
	StateAborted   State = "aborted"
	StateConfirmed State = "confirmed"
	StateApplied   State = "applied"
	StateReported  State = "reported"
)

// Reasons recorded on an Outcome.
const (
	ReasonMatches  = "matches"
	ReasonDeclined = "declined"
	ReasonDryRun   = "dry run"
)

// Outcome is the record of one reconciliation.
type Outcome struct {
	Resource Resource
	Zone     string
	State    State
	// Trail lists every visited state in order.
	Trail  []State
	Reason string

	SettingsDiff  map[string]diff.Entry
	RedirectsDiff map[int]diff.Entry
	Settings      []provider.Setting
	Operations    []Operation
	Results       []PlanResult
	Err           error
}

// Failed reports whether the reconciliation or any applied op ended in error.
// A zone without desired state is skipped, not failed.
func (o Outcome) Failed() bool {
	if o.Err != nil {
		return !errors.Is(o.Err, ErrNoMatchingConfig)
	}
	for _, r := range o.Results {
		if !r.Success {
			return true
		}
	}
	return false
}

func (o *Outcome) enter(s State) {
	o.State = s
	o.Trail = append(o.Trail, s)
}

func (o *Outcome) abort(reason string, err error) {
	o.Reason = reason
	o.Err = err
	o.enter(StateAborted)
}

// Deps are the collaborators shared by both reconcilers.
type Deps struct {
	Client      provider.Client
	Store       ConfigStore
	Gate        Gate
	Presenter   Presenter
	Metrics     *metrics.Metrics
	Concurrency int
}

// declineReason lets a gate explain a refusal.
type declineReason interface {
	DeclineReason() string
}

func confirm(ctx context.Context, gate Gate, prompt string) (bool, string, error) {
	ok, err := gate.Confirm(ctx, prompt)
	if err != nil {
		return false, "", fmt.Errorf("confirm: %w", err)
	}
	if ok {
		return true, "", nil
	}
	if r, hasReason := gate.(declineReason); hasReason {
		return false, r.DeclineReason(), nil
	}
	return false, ReasonDeclined, nil
}

// desiredStateError classifies a ConfigStore failure. Only a missing file
// is NoMatchingConfig.
func desiredStateError(err error, zone string, resource Resource) error {
	kind := InvalidConfig
	if errors.Is(err, fs.ErrNotExist) {
		kind = NoMatchingConfig
	}
	return &Error{Kind: kind, Zone: zone, Resource: string(resource), Err: err}
}

func finish(o *Outcome, p Presenter, m *metrics.Metrics) {
	m.IncReconcile(string(o.Resource), string(o.State))
	p.Outcome(*o)
	if o.Err != nil {
		slog.Warn("Reconciliation ended with error", "zone", o.Zone, "resource", o.Resource, "state", o.State, "error", o.Err)
		return
	}
	slog.Info("Reconciliation finished", "zone", o.Zone, "resource", o.Resource, "state", o.State, "reason", o.Reason)
}

// Runner processes zones one at a time.
type Runner struct {
	reconciler Reconciler
}

func NewRunner(r Reconciler) *Runner {
	return &Runner{reconciler: r}
}

// Each reconciles every zone in order, waiting for each to finish, prompt
// included, before starting the next.
func (r *Runner) Each(ctx context.Context, zones []provider.Zone) []Outcome {
	outcomes := make([]Outcome, 0, len(zones))
	for _, zone := range zones {
		if err := ctx.Err(); err != nil {
			slog.Warn("Stopping before remaining zones", "remaining", len(zones)-len(outcomes), "error", err)
			break
		}
		outcomes = append(outcomes, r.reconciler.Reconcile(ctx, zone))
	}
	return outcomes
}

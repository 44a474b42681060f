package reconcile

import (
	"fmt"
	"strings"

	"github.com/evanofslack/cf-zone-sync/internal/diff"
	"github.com/evanofslack/cf-zone-sync/internal/idgen"
	"github.com/evanofslack/cf-zone-sync/internal/provider"
	"github.com/evanofslack/cf-zone-sync/internal/redirect"
)

type OpKind string

// Values double as metric operation labels.
const (
	Create OpKind = "create"
	Update OpKind = "update"
	Delete OpKind = "delete"
)

type Operation struct {
	// TargetKey is the remote rule id, or a placeholder for Create.
	TargetKey string
	Kind      OpKind
	Payload   *provider.PageRule
}

type RedirectPlanInput struct {
	Zone string
	// Current holds the forwarding page rules, aligned with the diffed
	// sequence.
	Current      []provider.PageRule
	Desired      []redirect.Rule
	ZoneWildcard string
	Quota        int
	// LiveCount is every live page rule, forwarding or not.
	LiveCount int
}

// BuildSettingsPlan returns one item per changed key, sorted by id.
func BuildSettingsPlan(d map[string]diff.Entry) []provider.Setting {
	items := make([]provider.Setting, 0, len(d))
	for _, key := range diff.SortedKeys(d) {
		items = append(items, provider.Setting{ID: key, Value: d[key].Value()})
	}
	return items
}

// BuildRedirectPlan turns a positional diff into operations in index order.
// Plans that would leave the zone over its page rule quota are rejected.
func BuildRedirectPlan(d map[int]diff.Entry, in RedirectPlanInput) ([]Operation, error) {
	var creates, deletes int
	for _, e := range d {
		switch {
		case e.Added():
			creates++
		case e.Removed():
			deletes++
		}
	}
	if total := in.LiveCount - deletes + creates; total > in.Quota {
		return nil, &Error{
			Kind:     QuotaExceeded,
			Zone:     in.Zone,
			Resource: "pagerules",
			Detail:   fmt.Sprintf("plan needs %d page rules, zone allows %d", total, in.Quota),
		}
	}

	ops := make([]Operation, 0, len(d))
	for _, i := range diff.SortedIndices(d) {
		e := d[i]
		switch {
		case e.Added():
			if i >= len(in.Desired) {
				return nil, fmt.Errorf("build plan: desired rule %d out of range", i)
			}
			key, err := idgen.Placeholder()
			if err != nil {
				return nil, fmt.Errorf("build plan: %w", err)
			}
			payload := redirect.ToPageRule(in.Desired[i], in.ZoneWildcard)
			ops = append(ops, Operation{TargetKey: key, Kind: Create, Payload: &payload})
		case e.Removed():
			if i >= len(in.Current) {
				return nil, fmt.Errorf("build plan: current rule %d out of range", i)
			}
			ops = append(ops, Operation{TargetKey: in.Current[i].ID, Kind: Delete})
		default:
			if i >= len(in.Current) || i >= len(in.Desired) {
				return nil, fmt.Errorf("build plan: rule %d out of range", i)
			}
			payload := redirect.ToPageRule(in.Desired[i], in.ZoneWildcard)
			payload.Priority = in.Current[i].Priority
			ops = append(ops, Operation{TargetKey: in.Current[i].ID, Kind: Update, Payload: &payload})
		}
	}
	return ops, nil
}

// Count returns the number of operations per kind.
func Count(ops []Operation) map[OpKind]int {
	counts := make(map[OpKind]int, 3)
	for _, op := range ops {
		counts[op.Kind]++
	}
	return counts
}

func summarize(ops []Operation) string {
	counts := Count(ops)
	parts := make([]string, 0, len(counts))
	for _, kind := range []OpKind{Create, Update, Delete} {
		if n := counts[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, kind))
		}
	}
	return strings.Join(parts, ", ")
}

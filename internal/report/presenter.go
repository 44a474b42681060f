// Package report renders reconciliation progress as colored text.
package report

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/evanofslack/cf-zone-sync/internal/diff"
	"github.com/evanofslack/cf-zone-sync/internal/provider"
	"github.com/evanofslack/cf-zone-sync/internal/reconcile"
	"github.com/evanofslack/cf-zone-sync/internal/redirect"
)

var (
	bold    = color.New(color.Bold).SprintFunc()
	red     = color.New(color.FgRed).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	magenta = color.New(color.FgMagenta).SprintFunc()
)

type Presenter struct {
	w io.Writer
}

// New writes to w. Colors are dropped when noColor is set.
func New(w io.Writer, noColor bool) *Presenter {
	if noColor {
		color.NoColor = true
	}
	return &Presenter{w: w}
}

func (p *Presenter) ZoneHealth(zone provider.Zone, used int) {
	fmt.Fprintf(p.w, "Zone Health Check:\n  %s - %s\n  %s - %d of %d Page Rules used.\n\n",
		bold(zone.Name), zone.ID, green(zone.PlanName), used, zone.PageRuleQuota)
}

func (p *Presenter) SettingsDiff(zone string, d map[string]diff.Entry) {
	fmt.Fprintln(p.w, yellow(fmt.Sprintf("%s settings need updating:", zone)))
	p.writeEntries(d, 0)
	fmt.Fprintln(p.w)
}

func (p *Presenter) writeEntries(d map[string]diff.Entry, level int) {
	indent := strings.Repeat("  ", level)
	for _, key := range diff.SortedKeys(d) {
		e := d[key]
		if e.Children != nil {
			fmt.Fprintf(p.w, "%s%s:\n", indent, key)
			p.writeEntries(e.Children, level+1)
			continue
		}
		current := "unset"
		if e.HasCurrent {
			current = fmt.Sprint(e.Current)
		}
		fmt.Fprintf(p.w, "%s%s: %s (currently %s)\n", indent, key, green(fmt.Sprint(e.Desired)), yellow(current))
	}
}

func (p *Presenter) RedirectsDiff(zone string, d map[int]diff.Entry) {
	fmt.Fprintf(p.w, "Below are the missing redirects for %s:\n", bold(zone))

	tw := tabwriter.NewWriter(p.w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", bold("#"), bold("Current"), bold("Future"), bold("Difference"))
	for _, i := range diff.SortedIndices(d) {
		e := d[i]
		switch {
		case e.Added():
			fmt.Fprintf(tw, "%d\t%s\t%s\t\n", i, green("none: will add ->"), cell(e.Desired))
		case e.Removed():
			fmt.Fprintf(tw, "%d\t%s\t%s\t\n", i, cell(e.Current), red("<-- will remove"))
		default:
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, cell(e.Current), cell(e.Desired), changed(e.Current, e.Desired))
		}
	}
	tw.Flush()
	fmt.Fprintln(p.w)
}

func (p *Presenter) RedirectResults(zone string, results []reconcile.PlanResult) {
	for _, r := range results {
		if !r.Success {
			fmt.Fprintf(p.w, "%s %s %s: %v\n", red("[ERROR]"), r.Kind, r.TargetKey, r.Err)
			continue
		}
		switch r.Kind {
		case reconcile.Delete:
			fmt.Fprintf(p.w, "Page rule %s has been removed.\n", r.TargetKey)
		case reconcile.Create:
			fmt.Fprintf(p.w, "The following page rule was created and enabled:\n  %s\n", ruleText(r.Rule))
		case reconcile.Update:
			fmt.Fprintf(p.w, "Page rule %s has been updated:\n  %s\n", r.TargetKey, ruleText(r.Rule))
		}
	}
}

// PageRules prints every live page rule of zone in priority order, including
// those with actions other than forwarding.
func (p *Presenter) PageRules(zone string, rules []provider.PageRule) {
	fmt.Fprintf(p.w, "Page rules of %s:\n", bold(zone))
	if len(rules) == 0 {
		fmt.Fprintln(p.w, "  none")
		return
	}
	sorted := slices.SortedStableFunc(slices.Values(rules), func(a, b provider.PageRule) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	for _, r := range sorted {
		if r.Forward == nil {
			fmt.Fprintf(p.w, "  %s: %s [%s]\n", r.ID, ruleText(&r), strings.Join(r.Other, ", "))
			continue
		}
		fmt.Fprintf(p.w, "  %s: %s\n", r.ID, ruleText(&r))
	}
	fmt.Fprintln(p.w)
}

func (p *Presenter) Outcome(o reconcile.Outcome) {
	noun := string(o.Resource)
	switch {
	case errors.Is(o.Err, reconcile.ErrNoMatchingConfig):
		if o.Resource == reconcile.ResourceRedirects {
			fmt.Fprintln(p.w, magenta(fmt.Sprintf("No redirect description for %s was found.", bold(o.Zone))))
		} else {
			fmt.Fprintln(p.w, magenta("No settings baseline (.settings.yaml) was found."))
		}
	case errors.Is(o.Err, reconcile.ErrQuotaExceeded):
		fmt.Fprintln(p.w, red(fmt.Sprintf("Sorry, %v", o.Err)))
		fmt.Fprintln(p.w, "Remove redirects or move them to a worker instead of Page Rules.")
	case errors.Is(o.Err, reconcile.ErrPermissionDenied):
		var e *reconcile.Error
		if errors.As(o.Err, &e) && e.Capability != "" {
			fmt.Fprintf(p.w, "%s The API token needs the %s permissions enabled.\n", red("✗"), bold(e.Capability))
		}
		fmt.Fprintf(p.w, "%s %v\n", red("✗"), o.Err)
	case o.Err != nil:
		fmt.Fprintf(p.w, "%s %v\n", red("✗"), o.Err)
	case o.Reason == reconcile.ReasonMatches:
		fmt.Fprintf(p.w, "%s %s %s match the preferred configuration.\n", bold(green("✓")), o.Zone, noun)
	case o.State == reconcile.StateAborted:
		fmt.Fprintf(p.w, "%s %s left unchanged (%s).\n", o.Zone, noun, o.Reason)
	case o.Resource == reconcile.ResourceSettings:
		fmt.Fprintln(p.w, green(fmt.Sprintf("Success! %s settings have been updated.", o.Zone)))
	default:
		applied := 0
		for _, r := range o.Results {
			if r.Success {
				applied++
			}
		}
		summary := fmt.Sprintf("%d of %d page rule changes applied to %s.", applied, len(o.Results), o.Zone)
		if applied < len(o.Results) {
			fmt.Fprintln(p.w, yellow(summary))
			return
		}
		fmt.Fprintln(p.w, green(summary))
	}
}

// Zones lists name -> id pairs sorted by name.
func (p *Presenter) Zones(zones map[string]string) {
	if len(zones) == 0 {
		fmt.Fprintln(p.w, "No zones cached, run `zones sync` first.")
		return
	}
	tw := tabwriter.NewWriter(p.w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID")
	for _, name := range slices.Sorted(maps.Keys(zones)) {
		fmt.Fprintf(tw, "%s\t%s\n", name, zones[name])
	}
	tw.Flush()
}

// cell renders a value as single line YAML.
func cell(v any) string {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.Join(lines, ", ")
}

func changed(current, desired any) string {
	c, okC := current.(redirect.Rule)
	d, okD := desired.(redirect.Rule)
	if !okC || !okD {
		return cell(desired)
	}
	var parts []string
	if c.Base != d.Base {
		parts = append(parts, "base: "+d.Base)
	}
	if c.To != d.To {
		parts = append(parts, "to: "+d.To)
	}
	if c.Status != d.Status {
		parts = append(parts, fmt.Sprintf("status: %d", d.Status))
	}
	return strings.Join(parts, ", ")
}

func ruleText(r *provider.PageRule) string {
	if r == nil {
		return ""
	}
	if r.Forward == nil {
		return fmt.Sprintf("%s (%s)", r.Matcher, r.Status)
	}
	return fmt.Sprintf("%s -> %d %s (%s)", r.Matcher, r.Forward.StatusCode, r.Forward.URL, r.Status)
}

package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/evanofslack/cf-zone-sync/internal/desired"
	"github.com/evanofslack/cf-zone-sync/internal/provider"
	"github.com/evanofslack/cf-zone-sync/internal/reconcile"
	"github.com/evanofslack/cf-zone-sync/internal/state"
)

func (a *app) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check [domain]",
		Short: "Check a domain's settings against the .settings.yaml baseline",
		Long: `Check compares the zone settings of [domain] with the .settings.yaml
baseline in the config directory. Without a domain every zone of the account
is checked, one at a time.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client()
			if err != nil {
				return err
			}

			var zones []provider.Zone
			if len(args) == 1 {
				zone, err := a.resolveZone(ctx, client, args[0])
				if err != nil {
					return err
				}
				zones = []provider.Zone{zone}
			} else {
				zones, err = client.ListZones(ctx, a.cfg.Cloudflare.AccountID)
				if err != nil {
					return fmt.Errorf("gather zones: %w", err)
				}
			}

			r := reconcile.NewSettingsReconciler(a.deps(client))
			return summarize(reconcile.NewRunner(r).Each(ctx, zones))
		},
	}
}

func (a *app) compareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <domain>",
		Short: "Compare a domain's redirect descriptions with its page rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client()
			if err != nil {
				return err
			}
			zone, err := a.resolveZone(ctx, client, args[0])
			if err != nil {
				return err
			}

			r := reconcile.NewRedirectReconciler(a.deps(client))
			return summarize(reconcile.NewRunner(r).Each(ctx, []provider.Zone{zone}))
		},
	}
}

func (a *app) zonesCommand() *cobra.Command {
	zones := &cobra.Command{
		Use:   "zones",
		Short: "Manage the local zone cache",
	}

	zones.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Store the account's zone names and ids in the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client()
			if err != nil {
				return err
			}
			list, err := client.ListZones(ctx, a.cfg.Cloudflare.AccountID)
			if err != nil {
				return fmt.Errorf("gather zones: %w", err)
			}

			mapping := make(map[string]string, len(list))
			for _, z := range list {
				mapping[z.Name] = z.ID
			}
			err = a.withCache(func(cache state.Resolver) error {
				return cache.StoreZones(ctx, mapping)
			})
			if err != nil {
				return fmt.Errorf("store zones: %w", err)
			}
			slog.Info("Zone cache updated", "count", len(mapping))
			a.presenter().Zones(mapping)
			return nil
		},
	})

	zones.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the zones held in the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(func(cache state.Resolver) error {
				mapping, err := cache.Zones(cmd.Context())
				if err != nil {
					return fmt.Errorf("read zones: %w", err)
				}
				a.presenter().Zones(mapping)
				return nil
			})
		},
	})
	return zones
}

func (a *app) deps(client provider.Client) reconcile.Deps {
	return reconcile.Deps{
		Client:      client,
		Store:       desired.New(a.cfg.ConfigDir),
		Gate:        a.confirmationGate(),
		Presenter:   a.presenter(),
		Metrics:     a.metrics,
		Concurrency: a.cfg.Reconcile.Concurrency,
	}
}

// resolveZone maps a domain to its zone through the cache, then fetches the
// zone details.
func (a *app) resolveZone(ctx context.Context, client provider.Client, domain string) (provider.Zone, error) {
	var zoneID string
	err := a.withCache(func(cache state.Resolver) error {
		id, err := cache.ZoneID(ctx, domain)
		zoneID = id
		return err
	})
	if err != nil {
		return provider.Zone{}, fmt.Errorf("%w (run `zones sync` to refresh the cache)", reconcile.Classify(err, domain, "zone", ""))
	}

	zone, err := client.Zone(ctx, zoneID)
	if err != nil {
		return provider.Zone{}, reconcile.Classify(err, domain, "zone", reconcile.CapabilityPageRulesRead)
	}
	return zone, nil
}

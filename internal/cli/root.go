// Package cli wires configuration, the Cloudflare client, the zone cache and
// the reconcilers into cobra commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/evanofslack/cf-zone-sync/internal/config"
	"github.com/evanofslack/cf-zone-sync/internal/confirm"
	"github.com/evanofslack/cf-zone-sync/internal/logger"
	"github.com/evanofslack/cf-zone-sync/internal/metrics"
	"github.com/evanofslack/cf-zone-sync/internal/provider"
	"github.com/evanofslack/cf-zone-sync/internal/provider/cloudflare"
	"github.com/evanofslack/cf-zone-sync/internal/reconcile"
	"github.com/evanofslack/cf-zone-sync/internal/report"
	"github.com/evanofslack/cf-zone-sync/internal/state"
)

const (
	envPrefix         = "CFZONESYNC"
	defaultConfigFile = "cf-zone-sync.yaml"
)

var errReconcileFailed = errors.New("one or more reconciliations failed")

type clientFactory func(cfg config.Cloudflare, m *metrics.Metrics) (provider.Client, error)

type cacheFactory func(path string, m *metrics.Metrics) (state.Resolver, error)

type app struct {
	v       *viper.Viper
	cfg     *config.Config
	metrics *metrics.Metrics
	out     io.Writer
	errOut  io.Writer
	start   time.Time

	newClient clientFactory
	openCache cacheFactory
	// gate overrides the gate picked from flags
	gate reconcile.Gate
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		v:       viper.New(),
		metrics: metrics.New(true),
		out:     out,
		errOut:  errOut,
		start:   time.Now(),
		newClient: func(cfg config.Cloudflare, m *metrics.Metrics) (provider.Client, error) {
			return cloudflare.New(cfg, m)
		},
		openCache: state.New,
	}
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	a := newApp(os.Stdout, os.Stderr)
	cmd := a.rootCommand()
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	a.flushMetrics()
	if err != nil {
		if !errors.Is(err, errReconcileFailed) {
			fmt.Fprintf(a.errOut, "ERROR: %v\n", err)
		}
		return 1
	}
	return 0
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "cf-zone-sync",
		Short: "Keep Cloudflare zone settings and redirects in line with local YAML.",
		Long: `cf-zone-sync compares a directory of declarative zone descriptions
(a shared .settings.yaml baseline and one redirect file per zone) with the
live state held by Cloudflare, shows the differences and applies them after
confirmation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.String("config", defaultConfigFile, "application config file")
	flags.String("token", "", "Cloudflare API token")
	flags.String("account-id", "", "Cloudflare account id used to list zones")
	flags.String("config-dir", "", "directory holding .settings.yaml and redirect files")
	flags.String("cache", "", "path of the local zone cache")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-env", "", "log format, dev for text or prod for JSON")
	flags.Bool("yes", false, "apply plans without asking")
	flags.Bool("dry-run", false, "show plans without applying them")
	flags.Bool("no-color", false, "disable colored output")
	flags.String("metrics-textfile", "", "write prometheus metrics to this file on exit")

	flags.VisitAll(func(f *pflag.Flag) {
		_ = a.v.BindPFlag(f.Name, f)
	})
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(a.checkCommand(), a.compareCommand(), a.zonesCommand())
	return root
}

// initialize layers flags and environment over the config file.
func (a *app) initialize() error {
	cfg, err := config.Load(a.v.GetString("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	overlay := func(key string, dst *string) {
		if a.v.IsSet(key) && a.v.GetString(key) != "" {
			*dst = a.v.GetString(key)
		}
	}
	overlay("token", &cfg.Cloudflare.Token)
	overlay("account-id", &cfg.Cloudflare.AccountID)
	overlay("config-dir", &cfg.ConfigDir)
	overlay("cache", &cfg.CachePath)
	overlay("log-level", &cfg.Log.Level)
	overlay("log-env", &cfg.Log.Env)
	overlay("metrics-textfile", &cfg.Metrics.Textfile)
	if a.v.GetBool("yes") {
		cfg.Reconcile.AssumeYes = true
	}
	if a.v.GetBool("dry-run") {
		cfg.Reconcile.DryRun = true
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger.Configure(a.errOut, cfg.Log.Level, cfg.Log.Env)
	slog.Debug("Configuration loaded", "configDir", cfg.ConfigDir, "cache", cfg.CachePath, "dryRun", cfg.Reconcile.DryRun)
	return nil
}

func (a *app) presenter() *report.Presenter {
	noColor := a.v.GetBool("no-color") || os.Getenv("NO_COLOR") != ""
	if f, ok := a.out.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		noColor = true
	}
	return report.New(a.out, noColor)
}

func (a *app) confirmationGate() reconcile.Gate {
	switch {
	case a.gate != nil:
		return a.gate
	case a.cfg.Reconcile.DryRun:
		return confirm.Never{Reason: reconcile.ReasonDryRun}
	case a.cfg.Reconcile.AssumeYes:
		return confirm.Always{}
	default:
		return confirm.New()
	}
}

func (a *app) client() (provider.Client, error) {
	client, err := a.newClient(a.cfg.Cloudflare, a.metrics)
	if err != nil {
		return nil, fmt.Errorf("create cloudflare client: %w", err)
	}
	return client, nil
}

// withCache opens the zone cache for the duration of fn.
func (a *app) withCache(fn func(state.Resolver) error) error {
	cache, err := a.openCache(a.cfg.CachePath, a.metrics)
	if err != nil {
		return fmt.Errorf("open zone cache: %w", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			slog.Warn("fail close zone cache", "path", a.cfg.CachePath, "error", err)
		}
	}()
	return fn(cache)
}

func (a *app) flushMetrics() {
	a.metrics.SetRunDuration(time.Since(a.start))
	if a.cfg == nil || a.cfg.Metrics.Textfile == "" {
		return
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		slog.Error("Failed to write metrics textfile", "path", a.cfg.Metrics.Textfile, "error", err)
		return
	}
	slog.Debug("Wrote metrics textfile", "path", a.cfg.Metrics.Textfile)
}

func summarize(outcomes []reconcile.Outcome) error {
	failed := 0
	for _, o := range outcomes {
		if o.Failed() {
			failed++
		}
	}
	if failed > 0 {
		slog.Warn("Reconciliation finished with failures", "zones", len(outcomes), "failed", failed)
		return errReconcileFailed
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jobtrace/internal/config"
	"github.com/fyrsmithlabs/jobtrace/internal/engine"
	"github.com/fyrsmithlabs/jobtrace/internal/hooks"
	httpserver "github.com/fyrsmithlabs/jobtrace/internal/http"
	"github.com/fyrsmithlabs/jobtrace/internal/logging"
	"github.com/fyrsmithlabs/jobtrace/internal/secrets"
	"github.com/fyrsmithlabs/jobtrace/internal/telemetry"
	"github.com/fyrsmithlabs/jobtrace/internal/tracing"
)

type runOptions struct {
	endpoint    string
	hooksConfig string
	project     string
	environment string
	metricsFile string
	statusPort  int
	noScrub     bool
	gitleaks    bool
}

func newRunCmd(g *globalOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <plan>",
		Short: "Run a job plan with tracing attached",
		Long: `Run a YAML or TOML job plan on the in-process engine. Every top-level
job becomes its own trace; data flows, steps and actions nest below the
unit that launched them.

Examples:
  # Run against the configured collector
  jobtrace run nightly.yaml

  # Override the collector for this run
  jobtrace run -e localhost:4317 nightly.yaml

  # Keep lifecycle statistics for node_exporter's textfile collector
  jobtrace run --metrics-file /var/lib/node_exporter/jobtrace.prom nightly.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, g, o, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.endpoint, "opentelemetry-endpoint", "e", "", "OTLP collector endpoint, overrides config and environment")
	f.StringVar(&o.hooksConfig, "hooks-config", "", "JSON file with project, environment and logging jobs")
	f.StringVar(&o.project, "project", "", "project attribute for units that carry none")
	f.StringVar(&o.environment, "environment", "", "environment attribute for units that carry none")
	f.StringVar(&o.metricsFile, "metrics-file", "", "write span lifecycle statistics here in Prometheus text format")
	f.BoolVar(&o.noScrub, "no-scrub", false, "send job log text without redacting credentials")
	f.BoolVar(&o.gitleaks, "scrub-gitleaks", false, "also redact everything the gitleaks default rules detect")
	f.IntVar(&o.statusPort, "status-port", 0, "serve health, progress and /metrics on localhost at this port (0 disables)")
	return cmd
}

func newLoggingConfig(cmd *cobra.Command, g *globalOptions) (*logging.Config, error) {
	cfg := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(g.logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", g.logLevel, err)
	}
	cfg.Level = level
	cfg.Format = g.logFormat
	cfg.Output.Writer = cmd.ErrOrStderr()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	return cfg, nil
}

// loadTelemetry resolves collector settings: the endpoint flag, then OTEL_*
// environment variables, then the config file.
func loadTelemetry(g *globalOptions, o *runOptions, log *zap.Logger) (config.Telemetry, error) {
	store, err := config.OpenFileStore(g.configPath)
	if err != nil {
		return config.Telemetry{}, err
	}
	env, err := config.NewEnvProperties()
	if err != nil {
		return config.Telemetry{}, err
	}

	loader := &config.Loader{
		Properties: config.Chain{
			config.MapProperties{config.KeyEndpoint: o.endpoint},
			env,
		},
		Store:  store,
		Logger: log,
	}
	return loader.Load(), nil
}

func loadHooksConfig(o *runOptions) (*hooks.Config, error) {
	cfg, err := hooks.LoadConfigWithEnvOverride(o.hooksConfig)
	if err != nil {
		return nil, err
	}
	if o.project != "" {
		cfg.Project = o.project
	}
	if o.environment != "" {
		cfg.Environment = o.environment
	}
	return cfg, cfg.Validate()
}

func runPlan(cmd *cobra.Command, g *globalOptions, o *runOptions, path string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plan, err := engine.LoadPlan(path)
	if err != nil {
		return err
	}
	hooksCfg, err := loadHooksConfig(o)
	if err != nil {
		return err
	}

	logCfg, err := newLoggingConfig(cmd, g)
	if err != nil {
		return err
	}
	// Console-only logger for telemetry bootstrap, before a log provider
	// exists.
	bootCfg := *logCfg
	bootCfg.Output.OTEL = false
	bootCfg.Output.Console = true
	bootLog, err := logging.NewLogger(&bootCfg, nil)
	if err != nil {
		return err
	}

	telCfg, err := loadTelemetry(g, o, bootLog.Underlying())
	if err != nil {
		return err
	}
	tel, err := telemetry.New(ctx, telCfg,
		telemetry.WithLogger(bootLog.Underlying()),
		telemetry.WithServiceVersion(version))
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			bootLog.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
		}
	}()

	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	ctx = logging.WithLogger(ctx, logger)

	reg := prometheus.NewRegistry()
	stats := tracing.NewStats(reg)
	manager := tracing.NewManager(tel.Tracer(instrumentationScope),
		tracing.WithStats(stats),
		tracing.WithLogger(logger.Named("tracing").Underlying()))
	var emitOpts []tracing.EmitterOption
	if !o.noScrub {
		scrubCfg := secrets.DefaultConfig()
		scrubCfg.Gitleaks = o.gitleaks
		scrubber, err := secrets.New(scrubCfg)
		if err != nil {
			return err
		}
		emitOpts = append(emitOpts, tracing.WithScrubber(scrubber))
	}
	emitter := tracing.NewEmitter(
		tel.Meter(instrumentationScope),
		tel.Logger(instrumentationScope),
		logger.Named("emitter").Underlying(),
		emitOpts...)

	hm := hooks.NewHookManager(hooksCfg)
	hooks.NewBindings(manager, emitter, hooksCfg, logger).Register(hm)

	logger.Info(ctx, "running plan",
		zap.String("plan", path),
		zap.Int("jobs", len(plan.Jobs)),
		zap.Bool("exporting", tel.IsEnabled()))

	runner := engine.NewRunner(hm, engine.WithLogger(logger))

	if o.statusPort > 0 {
		srv, err := httpserver.NewServer(httpserver.Sources{
			Progress: runner,
			Health:   tel,
			Metrics:  reg,
			Meter:    tel.Meter(instrumentationScope),
			Version:  version,
		}, logger.Named("http").Underlying(), &httpserver.Config{Host: "localhost", Port: o.statusPort})
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error(ctx, "status server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sum := runner.Run(ctx, plan)
	printSummary(cmd, sum)

	if o.metricsFile != "" {
		if err := prometheus.WriteToTextfile(o.metricsFile, reg); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}

	if sum.Stopped && ctx.Err() != nil {
		return fmt.Errorf("run interrupted: %w", context.Cause(ctx))
	}
	return nil
}

func printSummary(cmd *cobra.Command, sum engine.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "jobs:       %d\n", sum.Jobs)
	fmt.Fprintf(out, "data flows: %d\n", sum.DataFlows)
	fmt.Fprintf(out, "steps:      %d\n", sum.Steps)
	fmt.Fprintf(out, "actions:    %d\n", sum.Actions)
	fmt.Fprintf(out, "errors:     %d\n", sum.Errors)
	switch {
	case sum.Stopped:
		fmt.Fprintln(out, "status:     stopped")
	case sum.Errors > 0:
		fmt.Fprintln(out, "status:     failed")
	default:
		fmt.Fprintln(out, "status:     ok")
	}
}

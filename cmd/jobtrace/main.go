// Package main implements the jobtrace CLI: it runs job plans on the
// reference engine with OpenTelemetry tracing attached, and manages the
// persisted collector settings.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

// instrumentationScope names the tracer, meter and logger of the run command.
const instrumentationScope = "github.com/fyrsmithlabs/jobtrace"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "jobtrace",
		Short: "Trace job engine executions with OpenTelemetry",
		Long: `jobtrace runs job plans on an in-process job engine and exports one
trace per top-level job to an OpenTelemetry collector: spans for jobs,
data flows, steps and actions, completion counters, and outcome logs.

Collector settings are read from OTEL_* environment variables, then from
the config file (~/.config/jobtrace/config.yaml by default).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default ~/.config/jobtrace/config.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "console", "log format (console or json)")

	root.AddCommand(newRunCmd(g))
	root.AddCommand(newConfigCmd(g))
	return root
}

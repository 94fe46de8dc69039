package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/jobtrace/internal/config"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the collector settings",
	}
	cmd.AddCommand(newConfigShowCmd(g))
	cmd.AddCommand(newConfigSetCmd(g))
	return cmd
}

func newConfigShowCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved collector settings",
		Long: `Print the collector settings jobtrace would use, after applying
environment variables over the config file. Header values are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := config.OpenFileStore(g.configPath)
			if err != nil {
				return err
			}
			env, err := config.NewEnvProperties()
			if err != nil {
				return err
			}

			cfg := (&config.Loader{Properties: env, Store: store}).Load()
			printConfig(cmd, store.Path(), cfg)
			return nil
		},
	}
}

type setOptions struct {
	serviceName string
	endpoint    string
	protocol    string
	headers     string
	timeout     string
}

func newConfigSetCmd(g *globalOptions) *cobra.Command {
	o := &setOptions{}
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Persist new collector settings",
		Long: `Persist collector settings to the config file. Only the flags given
are changed; the others keep their stored values. Running processes keep
their settings; the new values apply on the next start.

Examples:
  # Export to a local collector over grpc
  jobtrace config set --endpoint localhost:4317

  # Export over http/protobuf with an auth header
  jobtrace config set --endpoint https://otel.example.com:4318 \
    --protocol http/protobuf --headers "Authorization=Bearer abc"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigSet(cmd, g, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.serviceName, "service-name", "", "service.name resource attribute")
	f.StringVar(&o.endpoint, "endpoint", "", "OTLP collector endpoint")
	f.StringVar(&o.protocol, "protocol", "", "OTLP protocol (grpc or http/protobuf)")
	f.StringVar(&o.headers, "headers", "", "exporter headers as key=value,key=value")
	f.StringVar(&o.timeout, "timeout", "", "export timeout, in seconds or as a duration")
	return cmd
}

func runConfigSet(cmd *cobra.Command, g *globalOptions, o *setOptions) error {
	store, err := config.OpenFileStore(g.configPath)
	if err != nil {
		return err
	}

	// Start from the stored settings only; environment overrides are not
	// persisted.
	cfg := (&config.Loader{Store: store}).Load()

	flags := cmd.Flags()
	if flags.Changed("service-name") {
		cfg = cfg.WithServiceName(o.serviceName)
	}
	if flags.Changed("endpoint") {
		cfg = cfg.WithEndpoint(o.endpoint)
	}
	if flags.Changed("protocol") {
		p, err := config.ParseProtocol(o.protocol)
		if err != nil {
			return err
		}
		cfg = cfg.WithProtocol(p)
	}
	if flags.Changed("headers") {
		cfg = cfg.WithHeaders(config.ParseHeaders(o.headers))
	}
	if flags.Changed("timeout") {
		d, err := config.ParseTimeout(o.timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", o.timeout, err)
		}
		cfg = cfg.WithTimeout(d)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := config.Save(store, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "saved to %s\n", store.Path())
	printConfig(cmd, store.Path(), cfg)
	return nil
}

func printConfig(cmd *cobra.Command, path string, cfg config.Telemetry) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "config file:  %s\n", path)
	fmt.Fprintf(out, "service name: %s\n", cfg.ServiceName)
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "(none, exporting disabled)"
	}
	fmt.Fprintf(out, "endpoint:     %s\n", endpoint)
	fmt.Fprintf(out, "protocol:     %s\n", cfg.Protocol)
	fmt.Fprintf(out, "timeout:      %s\n", config.FormatTimeout(cfg.Timeout))

	headers := cfg.Headers()
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)
	fmt.Fprintf(out, "headers:\n")
	for _, k := range names {
		fmt.Fprintf(out, "  %s=%s\n", k, config.Secret(headers[k]))
	}
}

package cmdutil

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sparklab/config"
	"sparklab/logging"
	"sparklab/metrics"
)

// Persistent flags owned by the root command.
const (
	FlagConfig      = "config"
	FlagLogLevel    = "log-level"
	FlagDevelopment = "development"
	FlagMetricsAddr = "metrics-addr"
)

var globalBindings = map[string]string{
	"log-level":    FlagLogLevel,
	"development":  FlagDevelopment,
	"metrics-addr": FlagMetricsAddr,
}

// AddGlobalFlags registers the flags every subcommand shares.
func AddGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String(FlagConfig, "", "Path to a config file (yaml, json or toml).")
	flags.String(FlagLogLevel, "info", "Log level: debug, info, warn or error.")
	flags.Bool(FlagDevelopment, false, "Human readable console logs.")
	flags.String(FlagMetricsAddr, "", "Serve Prometheus metrics on this address, e.g. :9102.")
}

// Setup loads the config for cmd and builds its logger. bindings maps config
// keys to the subcommand's own flags.
func Setup(cmd *cobra.Command, bindings map[string]string) (*config.Config, *zap.Logger, error) {
	all := make(map[string]string, len(globalBindings)+len(bindings))
	for k, v := range globalBindings {
		all[k] = v
	}
	for k, v := range bindings {
		all[k] = v
	}

	path, _ := cmd.Flags().GetString(FlagConfig)
	cfg, err := config.Load(path, cmd.Flags(), all)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// ServeMetrics exposes reg on cfg.MetricsAddr until ctx ends. It is a no-op
// when no address is configured.
func ServeMetrics(ctx context.Context, cfg *config.Config, reg *prometheus.Registry, log *zap.SugaredLogger) {
	if cfg.MetricsAddr == "" {
		return
	}
	go func() {
		log.Infow("serving metrics", "addr", cfg.MetricsAddr)
		if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
			log.Errorw("metrics server stopped", "error", err)
		}
	}()
}

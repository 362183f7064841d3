package check

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	connectivity "sparklab/check"
	"sparklab/cmd/cmdutil"
	"sparklab/config"
	"sparklab/metrics"
)

var (
	only  []string
	watch time.Duration
)

var bindings = map[string]string{
	"check.timeout":   "timeout",
	"kafka.bootstrap": "bootstrap-servers",
}

func NewCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "check",
		Short: "Verify that the lab services answer",
		Long: `Probe Spark, Kafka, PostgreSQL, Redis and Jupyter one after another and
print a status table. Exits non-zero when any endpoint is unreachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := cmdutil.Setup(cmd, bindings)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			log := logger.Sugar()

			if err := cfg.ValidateCheck(); err != nil {
				return err
			}
			endpoints, err := endpoints(cfg, only)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			m := metrics.NewCheck()
			if err := m.Register(reg); err != nil {
				return err
			}
			ctx := cmd.Context()
			cmdutil.ServeMetrics(ctx, cfg, reg, log)

			checker := connectivity.NewChecker(cfg.Check.Timeout,
				connectivity.WithLogger(log),
				connectivity.WithMetrics(m),
			)
			return rounds(ctx, checker, endpoints, watch, cmd.OutOrStdout())
		},
	}

	flags := command.Flags()
	flags.String("bootstrap-servers", "localhost:9092", "Comma separated Kafka brokers.")
	flags.Duration("timeout", 5*time.Second, "Per-endpoint timeout.")
	flags.StringSliceVar(&only, "only", nil, "Check only the named endpoints, e.g. --only kafka,redis.")
	flags.DurationVar(&watch, "watch", 0, "Repeat the check at this interval until interrupted.")
	return command
}

// endpoints maps the configured endpoints, keeping only the named ones when
// names is not empty.
func endpoints(cfg *config.Config, names []string) ([]connectivity.Endpoint, error) {
	configured, err := cfg.Endpoints()
	if err != nil {
		return nil, err
	}

	wanted := map[string]bool{}
	for _, n := range names {
		wanted[n] = true
	}

	seen := map[string]bool{}
	var out []connectivity.Endpoint
	for _, e := range configured {
		if len(wanted) > 0 && !wanted[e.Name] {
			continue
		}
		seen[e.Name] = true
		out = append(out, connectivity.Endpoint{
			Name:     e.Name,
			Protocol: e.Protocol,
			Host:     e.Host,
			Port:     e.Port,
			URL:      e.URL,
		})
	}
	var unknown []string
	for n := range wanted {
		if !seen[n] {
			unknown = append(unknown, strconv.Quote(n))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, errors.Errorf("unknown endpoint %s", strings.Join(unknown, ", "))
	}
	if len(out) == 0 {
		return nil, errors.New("no endpoints to check")
	}
	return out, nil
}

// rounds runs the check once, or every interval until ctx ends when interval
// is positive. The result of the last completed round decides the error.
func rounds(ctx context.Context, checker *connectivity.Checker, endpoints []connectivity.Endpoint, interval time.Duration, w io.Writer) error {
	report := checker.Run(ctx, endpoints)
	report.Render(w)
	for interval > 0 && !wait(ctx, interval) {
		report = checker.Run(ctx, endpoints)
		fmt.Fprintln(w)
		report.Render(w)
	}
	return report.Err()
}

// wait reports whether ctx ended before d elapsed.
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}

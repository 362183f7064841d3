package generate

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"sparklab/batch"
	"sparklab/cmd/cmdutil"
	"sparklab/config"
)

var (
	randomSeed bool
	toPostgres bool
	toRedis    bool
)

var bindings = map[string]string{
	"generate.customers":  "customers",
	"generate.products":   "products",
	"generate.sales":      "sales",
	"generate.seed":       "seed",
	"generate.start":      "start",
	"generate.span":       "span",
	"generate.output-dir": "output-dir",
	"generate.format":     "format",
}

func NewCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "generate",
		Short: "Generate the batch sales dataset",
		Long: `Generate customers, products and sales with a fixed seed and write them as
CSV or JSON lines files. The same seed always produces the same files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := cmdutil.Setup(cmd, bindings)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			log := logger.Sugar()

			if err := cfg.ValidateGenerate(); err != nil {
				return err
			}
			opts, err := options(cfg)
			if err != nil {
				return err
			}
			if randomSeed {
				opts.Seed = time.Now().UnixNano()
			}

			start := time.Now()
			ds, err := batch.Generate(opts)
			if err != nil {
				return err
			}
			if err := ds.Validate(); err != nil {
				return err
			}

			fileSink := &batch.FileSink{Dir: cfg.Generate.OutputDir, Format: cfg.Generate.Format}
			sinks := []batch.Sink{fileSink}
			if toPostgres {
				sinks = append(sinks, &batch.PostgresSink{DSN: cfg.PostgresDSN()})
			}
			if toRedis {
				client := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr(),
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				defer client.Close()
				sinks = append(sinks, &batch.RedisSink{Client: client, Prefix: cfg.Redis.Prefix})
			}

			for _, s := range sinks {
				if err := s.Write(cmd.Context(), ds); err != nil {
					return errors.Wrapf(err, "write %s", s.Name())
				}
				log.Infow("dataset written", "sink", s.Name())
			}

			log.Infow("done",
				"seed", opts.Seed,
				"customers", len(ds.Customers),
				"products", len(ds.Products),
				"sales", len(ds.Sales),
				"elapsed", time.Since(start),
			)
			out := cmd.OutOrStdout()
			paths := fileSink.Paths()
			fmt.Fprintf(out, "%s\t%d\n", paths["customers"], len(ds.Customers))
			fmt.Fprintf(out, "%s\t%d\n", paths["products"], len(ds.Products))
			fmt.Fprintf(out, "%s\t%d\n", paths["sales"], len(ds.Sales))
			return nil
		},
	}

	flags := command.Flags()
	flags.Int("customers", 8, "Number of customers in the pool.")
	flags.Int("products", 8, "Number of products in the pool.")
	flags.Int("sales", 1000, "Number of sale transactions.")
	flags.Int64("seed", 42, "Random seed; equal seeds give identical files.")
	flags.BoolVar(&randomSeed, "random-seed", false, "Seed from the clock instead of --seed.")
	flags.String("start", "2024-01-01T00:00:00Z", "First possible sale timestamp (RFC3339).")
	flags.Duration("span", 90*24*time.Hour, "Sale timestamps fall within start+span.")
	flags.String("output-dir", "data", "Directory for the output files.")
	flags.String("format", batch.FormatCSV, "Output format: csv or json.")
	flags.BoolVar(&toPostgres, "postgres", false, "Also load the dataset into PostgreSQL.")
	flags.BoolVar(&toRedis, "redis", false, "Also cache the customer and product pools in Redis.")
	return command
}

func options(cfg *config.Config) (batch.Options, error) {
	start, err := cfg.Generate.StartTime()
	if err != nil {
		return batch.Options{}, err
	}
	return batch.Options{
		Customers: cfg.Generate.Customers,
		Products:  cfg.Generate.Products,
		Sales:     cfg.Generate.Sales,
		Seed:      cfg.Generate.Seed,
		Start:     start,
		Span:      cfg.Generate.Span,
	}, nil
}

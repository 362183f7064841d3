package simulate

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sparklab/cmd/cmdutil"
	"sparklab/config"
	"sparklab/metrics"
	"sparklab/source"
)

var (
	seed          int64
	progressEvery int64
)

// newPublisher is replaced in tests.
var newPublisher = func(brokers []string, topic string) source.Publisher {
	return source.NewKafkaPublisher(brokers, topic)
}

var bindings = map[string]string{
	"simulate.topic":         "topic",
	"simulate.kind":          "kind",
	"simulate.interval":      "interval",
	"simulate.jitter":        "jitter",
	"simulate.cap":           "cap",
	"simulate.codec":         "codec",
	"simulate.policy":        "policy",
	"simulate.retry-backoff": "retry-backoff",
	"simulate.sensors":       "sensors",
	"simulate.users":         "users",
	"simulate.late-fraction": "late-fraction",
	"simulate.max-lateness":  "max-lateness",
	"simulate.create-topic":  "create-topic",
	"simulate.partitions":    "partitions",
	"simulate.replication":   "replication",
	"kafka.bootstrap":        "bootstrap-servers",
}

func NewCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "simulate",
		Short: "Publish synthetic events to Kafka",
		Long: `Publish IoT sensor readings or click events to a Kafka topic at a steady
pace until --cap events were generated or the process is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := cmdutil.Setup(cmd, bindings)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			log := logger.Sugar()

			if err := cfg.ValidateSimulate(); err != nil {
				return err
			}
			stats, err := run(cmd, cfg, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"generated=%d published=%d failed=%d retries=%d skipped=%d\n",
				stats.Generated, stats.Published, stats.Failed, stats.Retries, stats.Skipped)
			return nil
		},
	}

	flags := command.Flags()
	flags.String("bootstrap-servers", "localhost:9092", "Comma separated Kafka brokers.")
	flags.String("topic", "iot-events", "Destination topic.")
	flags.String("kind", string(source.KindIoT), "Event kind: iot or click.")
	flags.Duration("interval", time.Second, "Pause between events; 0 publishes as fast as possible.")
	flags.Float64("jitter", 0, "Extra random delay per event as a fraction of --interval.")
	flags.Int64("cap", 0, "Stop after this many events; 0 runs until interrupted.")
	flags.String("codec", "json", "Payload encoding: json or avro.")
	flags.String("policy", string(source.PolicySkip), "On publish failure: skip or retry (once).")
	flags.Duration("retry-backoff", 200*time.Millisecond, "Wait before the retry of a failed publish.")
	flags.Int("sensors", 10, "Number of simulated IoT sensors.")
	flags.Int("users", 500, "Number of simulated users for click events.")
	flags.Float64("late-fraction", 0, "Share of events stamped in the past.")
	flags.Duration("max-lateness", 2*time.Minute, "Upper bound for how late a late event is.")
	flags.Bool("create-topic", false, "Create the topic before publishing.")
	flags.Int("partitions", 3, "Partitions for --create-topic.")
	flags.Int("replication", 1, "Replication factor for --create-topic.")
	flags.Int64Var(&seed, "seed", 0, "Generator seed; 0 seeds from the clock.")
	flags.Int64Var(&progressEvery, "progress-every", 100, "Log progress every N events; 0 disables it.")
	return command
}

func run(cmd *cobra.Command, cfg *config.Config, log *zap.SugaredLogger) (source.Stats, error) {
	ctx := cmd.Context()
	sc := cfg.Simulate
	brokers := cfg.Kafka.Brokers()

	if sc.CreateTopic {
		created, err := source.EnsureTopic(brokers, sc.Topic, int32(sc.Partitions), int16(sc.Replication))
		if err != nil {
			return source.Stats{}, err
		}
		log.Infow("topic ready", "topic", sc.Topic, "created", created)
	}

	kind, err := source.ParseKind(sc.Kind)
	if err != nil {
		return source.Stats{}, err
	}
	policy, err := source.ParsePolicy(sc.Policy)
	if err != nil {
		return source.Stats{}, err
	}
	codec, err := source.NewCodec(sc.Codec)
	if err != nil {
		return source.Stats{}, err
	}
	genSeed := seed
	if genSeed == 0 {
		genSeed = time.Now().UnixNano()
	}
	gen, err := source.NewGenerator(source.GeneratorConfig{
		Kind:         kind,
		Sensors:      sc.Sensors,
		Users:        sc.Users,
		Seed:         genSeed,
		LateFraction: sc.LateFraction,
		MaxLateness:  sc.MaxLateness,
	})
	if err != nil {
		return source.Stats{}, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewSimulator()
	if err := m.Register(reg); err != nil {
		return source.Stats{}, err
	}
	cmdutil.ServeMetrics(ctx, cfg, reg, log)

	pub := newPublisher(brokers, sc.Topic)
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warnw("closing publisher", "error", err)
		}
	}()

	sim, err := source.NewSimulator(source.Config{
		Topic:         sc.Topic,
		Interval:      sc.Interval,
		Jitter:        sc.Jitter,
		Cap:           sc.Cap,
		Policy:        policy,
		RetryBackoff:  sc.RetryBackoff,
		ProgressEvery: progressEvery,
	}, gen, codec, pub, source.WithLogger(log), source.WithMetrics(m))
	if err != nil {
		return source.Stats{}, err
	}
	return sim.Run(ctx)
}

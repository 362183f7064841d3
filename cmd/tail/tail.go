package tail

import (
	"time"

	"github.com/spf13/cobra"

	"sparklab/cmd/cmdutil"
	"sparklab/consumer"
	"sparklab/source"
)

var (
	maxMessages int
	idle        time.Duration
	group       string
	events      bool
)

var bindings = map[string]string{
	"simulate.topic":  "topic",
	"simulate.codec":  "codec",
	"kafka.bootstrap": "bootstrap-servers",
}

func NewCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "tail",
		Short: "Read a topic from the beginning and summarize it",
		Long: `Read the simulator's topic from the earliest offset until --max messages
arrived or the topic stays idle, then print what was seen: counts per kind,
late events, duplicate and missing sequence numbers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := cmdutil.Setup(cmd, bindings)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			codec, err := source.NewCodec(cfg.Simulate.Codec)
			if err != nil {
				return err
			}
			msgs, err := consumer.Tail(cmd.Context(), consumer.TailConfig{
				Brokers:     cfg.Kafka.Brokers(),
				Topic:       cfg.Simulate.Topic,
				Max:         maxMessages,
				IdleTimeout: idle,
				GroupID:     group,
			}, logger.Sugar())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if events {
				consumer.RenderRecords(out, consumer.MergeByEventTime(msgs, codec))
			}
			consumer.Summarize(msgs, codec).Render(out)
			return nil
		},
	}

	flags := command.Flags()
	flags.String("bootstrap-servers", "localhost:9092", "Comma separated Kafka brokers.")
	flags.String("topic", "iot-events", "Topic to read.")
	flags.String("codec", "json", "Payload encoding: json or avro.")
	flags.IntVar(&maxMessages, "max", 0, "Stop after this many messages; 0 reads until idle.")
	flags.DurationVar(&idle, "idle", 5*time.Second, "Stop when no message arrives for this long.")
	flags.StringVar(&group, "group", "", "Consumer group; a fresh one by default.")
	flags.BoolVar(&events, "events", false, "Also print every event, partitions merged by event time.")
	return command
}

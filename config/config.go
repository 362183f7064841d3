package config

import (
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "SPARKLAB"

// Config is the merged view of defaults, config file, environment and flags.
type Config struct {
	LogLevel    string `mapstructure:"log-level"`
	Development bool   `mapstructure:"development"`
	MetricsAddr string `mapstructure:"metrics-addr"`

	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Spark    SparkConfig    `mapstructure:"spark"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Jupyter  JupyterConfig  `mapstructure:"jupyter"`

	Generate GenerateConfig `mapstructure:"generate"`
	Simulate SimulateConfig `mapstructure:"simulate"`
	Check    CheckConfig    `mapstructure:"check"`
}

type KafkaConfig struct {
	Bootstrap string `mapstructure:"bootstrap"`
}

// Brokers splits the bootstrap list, dropping empty entries.
func (k KafkaConfig) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(k.Bootstrap, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

type SparkConfig struct {
	MasterURL string `mapstructure:"master-url"`
	UIURL     string `mapstructure:"ui-url"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

type JupyterConfig struct {
	URL string `mapstructure:"url"`
}

type GenerateConfig struct {
	Customers int           `mapstructure:"customers"`
	Products  int           `mapstructure:"products"`
	Sales     int           `mapstructure:"sales"`
	Seed      int64         `mapstructure:"seed"`
	Start     string        `mapstructure:"start"`
	Span      time.Duration `mapstructure:"span"`
	OutputDir string        `mapstructure:"output-dir"`
	Format    string        `mapstructure:"format"`
}

// StartTime parses Start as RFC3339.
func (g GenerateConfig) StartTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, g.Start)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid generate.start %q", g.Start)
	}
	return t.UTC(), nil
}

type SimulateConfig struct {
	Topic        string        `mapstructure:"topic"`
	Kind         string        `mapstructure:"kind"`
	Interval     time.Duration `mapstructure:"interval"`
	Jitter       float64       `mapstructure:"jitter"`
	Cap          int64         `mapstructure:"cap"`
	Codec        string        `mapstructure:"codec"`
	Policy       string        `mapstructure:"policy"`
	RetryBackoff time.Duration `mapstructure:"retry-backoff"`
	Sensors      int           `mapstructure:"sensors"`
	Users        int           `mapstructure:"users"`
	LateFraction float64       `mapstructure:"late-fraction"`
	MaxLateness  time.Duration `mapstructure:"max-lateness"`
	CreateTopic  bool          `mapstructure:"create-topic"`
	Partitions   int           `mapstructure:"partitions"`
	Replication  int           `mapstructure:"replication"`
}

type CheckConfig struct {
	Timeout   time.Duration    `mapstructure:"timeout"`
	Endpoints []EndpointConfig `mapstructure:"endpoints"`
}

type EndpointConfig struct {
	Name     string `mapstructure:"name"`
	Protocol string `mapstructure:"protocol"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	URL      string `mapstructure:"url"`
}

// lab docker-compose variable names, bound ahead of the prefixed form
var envBindings = map[string]string{
	"log-level":         "LOG_LEVEL",
	"kafka.bootstrap":   "KAFKA_BOOTSTRAP_SERVERS",
	"spark.master-url":  "SPARK_MASTER_URL",
	"spark.ui-url":      "SPARK_UI_URL",
	"postgres.host":     "POSTGRES_HOST",
	"postgres.port":     "POSTGRES_PORT",
	"postgres.user":     "POSTGRES_USER",
	"postgres.password": "POSTGRES_PASSWORD",
	"postgres.database": "POSTGRES_DB",
	"redis.host":        "REDIS_HOST",
	"redis.port":        "REDIS_PORT",
	"redis.password":    "REDIS_PASSWORD",
	"jupyter.url":       "JUPYTER_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log-level", "info")
	v.SetDefault("development", false)
	v.SetDefault("metrics-addr", "")

	v.SetDefault("kafka.bootstrap", "localhost:9092")
	v.SetDefault("spark.master-url", "spark://localhost:7077")
	v.SetDefault("spark.ui-url", "http://localhost:8080")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.database", "sparklab")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "lab")
	v.SetDefault("jupyter.url", "http://localhost:8888")

	v.SetDefault("generate.customers", 8)
	v.SetDefault("generate.products", 8)
	v.SetDefault("generate.sales", 1000)
	v.SetDefault("generate.seed", 42)
	v.SetDefault("generate.start", "2024-01-01T00:00:00Z")
	v.SetDefault("generate.span", 90*24*time.Hour)
	v.SetDefault("generate.output-dir", "data")
	v.SetDefault("generate.format", "csv")

	v.SetDefault("simulate.topic", "iot-events")
	v.SetDefault("simulate.kind", "iot")
	v.SetDefault("simulate.interval", time.Second)
	v.SetDefault("simulate.jitter", 0.0)
	v.SetDefault("simulate.cap", 0)
	v.SetDefault("simulate.codec", "json")
	v.SetDefault("simulate.policy", "skip")
	v.SetDefault("simulate.retry-backoff", 200*time.Millisecond)
	v.SetDefault("simulate.sensors", 10)
	v.SetDefault("simulate.users", 500)
	v.SetDefault("simulate.late-fraction", 0.0)
	v.SetDefault("simulate.max-lateness", 2*time.Minute)
	v.SetDefault("simulate.create-topic", false)
	v.SetDefault("simulate.partitions", 3)
	v.SetDefault("simulate.replication", 1)

	v.SetDefault("check.timeout", 5*time.Second)
}

// Load reads configuration. path may be empty. bindings maps config keys to
// flag names in flags; a flag only wins when it was set on the command line.
func Load(path string, flags *pflag.FlagSet, bindings map[string]string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "could not read config %s", path)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, prefixedEnv(key), env); err != nil {
			return nil, errors.Wrapf(err, "bind env %s", env)
		}
	}

	if flags != nil {
		for key, name := range bindings {
			f := flags.Lookup(name)
			if f == nil {
				return nil, errors.Errorf("unknown flag %q for key %s", name, key)
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errors.Wrapf(err, "bind flag %s", name)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "could not unmarshal config")
	}
	return &cfg, nil
}

func prefixedEnv(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_")
	return envPrefix + "_" + strings.ToUpper(r.Replace(key))
}

// Validate runs every command's checks.
func (c *Config) Validate() error {
	if err := c.ValidateGenerate(); err != nil {
		return err
	}
	if err := c.ValidateSimulate(); err != nil {
		return err
	}
	return c.ValidateCheck()
}

// ValidateGenerate checks the settings the batch generator reads.
func (c *Config) ValidateGenerate() error {
	g := c.Generate
	if g.Customers < 1 || g.Products < 1 {
		return errors.Errorf("generate needs at least one customer and one product, got %d/%d", g.Customers, g.Products)
	}
	if g.Sales < 0 {
		return errors.Errorf("generate.sales must not be negative, got %d", g.Sales)
	}
	if g.Span <= 0 {
		return errors.Errorf("generate.span must be positive, got %s", g.Span)
	}
	if _, err := g.StartTime(); err != nil {
		return err
	}
	switch g.Format {
	case "csv", "json":
	default:
		return errors.Errorf("unknown generate.format %q", g.Format)
	}
	return nil
}

// ValidateSimulate checks the broker list and the simulator settings.
func (c *Config) ValidateSimulate() error {
	if len(c.Kafka.Brokers()) == 0 {
		return errors.New("kafka.bootstrap must list at least one broker")
	}

	s := c.Simulate
	if s.Topic == "" {
		return errors.New("simulate.topic is empty")
	}
	switch s.Kind {
	case "iot", "click":
	default:
		return errors.Errorf("unknown simulate.kind %q", s.Kind)
	}
	switch s.Codec {
	case "json", "avro":
	default:
		return errors.Errorf("unknown simulate.codec %q", s.Codec)
	}
	switch s.Policy {
	case "skip", "retry":
	default:
		return errors.Errorf("unknown simulate.policy %q", s.Policy)
	}
	if s.Interval < 0 || s.Cap < 0 {
		return errors.New("simulate.interval and simulate.cap must not be negative")
	}
	if s.Jitter < 0 || s.Jitter > 1 {
		return errors.Errorf("simulate.jitter must be within [0,1], got %v", s.Jitter)
	}
	if s.LateFraction < 0 || s.LateFraction > 1 {
		return errors.Errorf("simulate.late-fraction must be within [0,1], got %v", s.LateFraction)
	}
	if s.Partitions < 1 || s.Partitions > math.MaxInt32 {
		return errors.Errorf("simulate.partitions must be within [1,%d], got %d", math.MaxInt32, s.Partitions)
	}
	if s.Replication < 1 || s.Replication > math.MaxInt16 {
		return errors.Errorf("simulate.replication must be within [1,%d], got %d", math.MaxInt16, s.Replication)
	}
	return nil
}

// ValidateCheck checks the connectivity check settings.
func (c *Config) ValidateCheck() error {
	if c.Check.Timeout <= 0 {
		return errors.Errorf("check.timeout must be positive, got %s", c.Check.Timeout)
	}
	return nil
}

// Endpoints returns check.endpoints when configured, otherwise the lab
// services derived from the connection settings.
func (c *Config) Endpoints() ([]EndpointConfig, error) {
	if len(c.Check.Endpoints) > 0 {
		return c.Check.Endpoints, nil
	}

	master, err := url.Parse(c.Spark.MasterURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid spark master url %q", c.Spark.MasterURL)
	}
	masterPort, err := strconv.Atoi(master.Port())
	if err != nil {
		return nil, errors.Errorf("spark master url %q has no port", c.Spark.MasterURL)
	}

	endpoints := []EndpointConfig{
		{Name: "spark-master", Protocol: "spark", Host: master.Hostname(), Port: masterPort},
		{Name: "spark-ui", Protocol: "http", URL: c.Spark.UIURL},
	}
	for i, b := range c.Kafka.Brokers() {
		host, port, err := splitHostPort(b)
		if err != nil {
			return nil, err
		}
		name := "kafka"
		if i > 0 {
			name = "kafka-" + strconv.Itoa(i)
		}
		endpoints = append(endpoints, EndpointConfig{Name: name, Protocol: "kafka", Host: host, Port: port})
	}
	endpoints = append(endpoints,
		EndpointConfig{Name: "postgres", Protocol: "postgres", Host: c.Postgres.Host, Port: c.Postgres.Port, URL: c.PostgresDSN()},
		EndpointConfig{Name: "redis", Protocol: "redis", Host: c.Redis.Host, Port: c.Redis.Port, URL: c.RedisURL()},
		EndpointConfig{Name: "jupyter", Protocol: "http", URL: c.Jupyter.URL},
	)
	return endpoints, nil
}

func splitHostPort(addr string) (string, int, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, errors.Wrapf(err, "invalid address %q", addr)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, errors.Wrapf(err, "invalid port in %q", addr)
	}
	return host, port, nil
}

// PostgresDSN renders a pgx-compatible connection URL.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:     net.JoinHostPort(c.Postgres.Host, strconv.Itoa(c.Postgres.Port)),
		Path:     "/" + c.Postgres.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// RedisURL is empty unless a password is configured.
func (c *Config) RedisURL() string {
	if c.Redis.Password == "" {
		return ""
	}
	u := url.URL{
		Scheme: "redis",
		User:   url.UserPassword("", c.Redis.Password),
		Host:   c.Redis.Addr(),
	}
	return u.String()
}

package check

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

var ErrUnknownProtocol = errors.New("unknown protocol")

const (
	ProtocolTCP      = "tcp"
	ProtocolHTTP     = "http"
	ProtocolSpark    = "spark"
	ProtocolKafka    = "kafka"
	ProtocolPostgres = "postgres"
	ProtocolRedis    = "redis"
)

// Endpoint is one service to reach. URL is used by http and postgres;
// the other protocols use Host and Port.
type Endpoint struct {
	Name     string
	Protocol string
	Host     string
	Port     int
	URL      string
}

func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Target is what gets printed for the endpoint.
func (e Endpoint) Target() string {
	if e.Protocol == ProtocolHTTP && e.URL != "" {
		return e.URL
	}
	return e.Addr()
}

// Prober verifies that one endpoint answers. ctx carries the per-endpoint
// deadline.
type Prober interface {
	Probe(ctx context.Context, e Endpoint) error
}

type ProberFunc func(ctx context.Context, e Endpoint) error

func (f ProberFunc) Probe(ctx context.Context, e Endpoint) error { return f(ctx, e) }

// DefaultProbers returns a prober per supported protocol.
func DefaultProbers() map[string]Prober {
	return map[string]Prober{
		ProtocolTCP:      ProberFunc(probeTCP),
		ProtocolSpark:    ProberFunc(probeTCP),
		ProtocolHTTP:     ProberFunc(probeHTTP),
		ProtocolKafka:    ProberFunc(probeKafka),
		ProtocolPostgres: ProberFunc(probePostgres),
		ProtocolRedis:    ProberFunc(probeRedis),
	}
}

func probeTCP(ctx context.Context, e Endpoint) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", e.Addr())
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	return conn.Close()
}

func probeHTTP(ctx context.Context, e Endpoint) error {
	target := e.URL
	if target == "" {
		target = "http://" + e.Addr()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrapf(err, "build request for %s", target)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "get")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return errors.Errorf("unhealthy status %s", resp.Status)
	}
	return nil
}

func probeKafka(ctx context.Context, e Endpoint) error {
	conn, err := kafka.DialContext(ctx, "tcp", e.Addr())
	if err != nil {
		return errors.Wrap(err, "dial broker")
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return errors.Wrap(err, "set deadline")
		}
	}
	brokers, err := conn.Brokers()
	if err != nil {
		return errors.Wrap(err, "list brokers")
	}
	if len(brokers) == 0 {
		return errors.New("cluster reports no brokers")
	}
	return nil
}

func probePostgres(ctx context.Context, e Endpoint) error {
	dsn := e.URL
	if dsn == "" {
		dsn = "postgres://" + e.Addr() + "/postgres?sslmode=disable"
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return errors.Wrap(err, "connect")
	}
	defer conn.Close(context.Background())
	return errors.Wrap(conn.Ping(ctx), "ping")
}

func probeRedis(ctx context.Context, e Endpoint) error {
	client := redis.NewClient(&redis.Options{
		Addr:       e.Addr(),
		Password:   e.passwordFromURL(),
		MaxRetries: -1,
	})
	defer client.Close()
	return errors.Wrap(client.Ping(ctx).Err(), "ping")
}

// passwordFromURL reads a password from redis://:secret@host URLs.
func (e Endpoint) passwordFromURL() string {
	if e.URL == "" {
		return ""
	}
	u, err := url.Parse(e.URL)
	if err != nil || u.User == nil {
		return ""
	}
	p, _ := u.User.Password()
	return p
}

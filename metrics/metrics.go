package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sparklab"

// Simulator tracks the stream simulator loop, labelled by topic.
type Simulator struct {
	generated *prometheus.CounterVec
	published *prometheus.CounterVec
	failures  *prometheus.CounterVec
	retries   *prometheus.CounterVec
	skipped   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

func NewSimulator() *Simulator {
	labels := []string{"topic"}
	return &Simulator{
		generated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_generated_total",
				Help:      "Total number of synthetic events generated",
			},
			labels,
		),
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of events acknowledged by the broker",
			},
			labels,
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_failures_total",
				Help:      "Total number of failed publish attempts",
			},
			labels,
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_retries_total",
				Help:      "Total number of publish retries",
			},
			labels,
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_skipped_total",
				Help:      "Total number of events dropped after exhausting the failure policy",
			},
			labels,
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "publish_duration_seconds",
				Help:      "Latency of a single publish attempt",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			labels,
		),
	}
}

func (m *Simulator) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.generated, m.published, m.failures, m.retries, m.skipped, m.duration} {
		if err := r.Register(c); err != nil {
			return errors.Wrap(err, "register simulator metrics")
		}
	}
	return nil
}

func (m *Simulator) Generated(topic string) { m.generated.WithLabelValues(topic).Inc() }
func (m *Simulator) Published(topic string) { m.published.WithLabelValues(topic).Inc() }
func (m *Simulator) Failed(topic string)    { m.failures.WithLabelValues(topic).Inc() }
func (m *Simulator) Retried(topic string)   { m.retries.WithLabelValues(topic).Inc() }
func (m *Simulator) Skipped(topic string)   { m.skipped.WithLabelValues(topic).Inc() }

func (m *Simulator) ObservePublish(topic string, d time.Duration) {
	m.duration.WithLabelValues(topic).Observe(d.Seconds())
}

// Check records the outcome of connectivity probes.
type Check struct {
	up       *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

func NewCheck() *Check {
	labels := []string{"endpoint", "protocol"}
	return &Check{
		up: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "endpoint_up",
				Help:      "1 if the last probe of the endpoint succeeded, 0 otherwise",
			},
			labels,
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Duration of a connectivity probe",
				Buckets:   prometheus.DefBuckets,
			},
			labels,
		),
	}
}

func (m *Check) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.up, m.duration} {
		if err := r.Register(c); err != nil {
			return errors.Wrap(err, "register check metrics")
		}
	}
	return nil
}

func (m *Check) Observe(endpoint, protocol string, ok bool, d time.Duration) {
	v := 0.0
	if ok {
		v = 1
	}
	m.up.WithLabelValues(endpoint, protocol).Set(v)
	m.duration.WithLabelValues(endpoint, protocol).Observe(d.Seconds())
}

// Serve exposes /metrics for g until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "metrics server on %s", addr)
	}
}

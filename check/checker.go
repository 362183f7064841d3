package check

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sparklab/metrics"
)

var ErrEndpointsUnreachable = errors.New("endpoints unreachable")

type Result struct {
	Endpoint Endpoint
	Err      error
	Duration time.Duration
}

func (r Result) OK() bool { return r.Err == nil }

type Report struct {
	Results []Result
}

func (r Report) OK() bool {
	return len(r.Failed()) == 0
}

func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err is nil when every endpoint answered.
func (r Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(failed))
	for _, res := range failed {
		names = append(names, res.Endpoint.Name)
	}
	return errors.Wrapf(ErrEndpointsUnreachable, "%d of %d: %s", len(failed), len(r.Results), strings.Join(names, ", "))
}

func (r Report) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Endpoint", "Protocol", "Target", "Status", "Latency", "Error"})
	table.SetAutoWrapText(false)
	for _, res := range r.Results {
		status, msg := "OK", ""
		if !res.OK() {
			status, msg = "FAIL", res.Err.Error()
		}
		table.Append([]string{
			res.Endpoint.Name,
			res.Endpoint.Protocol,
			res.Endpoint.Target(),
			status,
			res.Duration.Round(time.Millisecond).String(),
			msg,
		})
	}
	table.Render()
}

type Option func(*Checker)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Checker) { c.log = l }
}

func WithMetrics(m *metrics.Check) Option {
	return func(c *Checker) { c.metrics = m }
}

// WithProber overrides or adds the prober for protocol.
func WithProber(protocol string, p Prober) Option {
	return func(c *Checker) { c.probers[protocol] = p }
}

// Checker probes endpoints one after another, each under its own timeout.
type Checker struct {
	timeout time.Duration
	probers map[string]Prober
	log     *zap.SugaredLogger
	metrics *metrics.Check
}

func NewChecker(timeout time.Duration, opts ...Option) *Checker {
	c := &Checker{
		timeout: timeout,
		probers: DefaultProbers(),
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run never stops early: a failing endpoint is recorded and the next one is
// checked.
func (c *Checker) Run(ctx context.Context, endpoints []Endpoint) Report {
	report := Report{Results: make([]Result, 0, len(endpoints))}
	for _, e := range endpoints {
		res := c.probe(ctx, e)
		if res.OK() {
			c.log.Infow("endpoint reachable", "endpoint", e.Name, "target", e.Target(), "latency", res.Duration)
		} else {
			c.log.Warnw("endpoint unreachable", "endpoint", e.Name, "target", e.Target(), "error", res.Err)
		}
		if c.metrics != nil {
			c.metrics.Observe(e.Name, e.Protocol, res.OK(), res.Duration)
		}
		report.Results = append(report.Results, res)
	}
	return report
}

func (c *Checker) probe(ctx context.Context, e Endpoint) Result {
	prober, ok := c.probers[e.Protocol]
	if !ok {
		return Result{Endpoint: e, Err: errors.Wrapf(ErrUnknownProtocol, "%q", e.Protocol)}
	}

	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := prober.Probe(pctx, e)
	elapsed := time.Since(start)
	if err != nil && pctx.Err() == context.DeadlineExceeded {
		err = errors.Wrapf(err, "no answer within %s", c.timeout)
	}
	return Result{Endpoint: e, Err: err, Duration: elapsed}
}

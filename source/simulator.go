package source

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"sparklab/metrics"
)

var ErrUnknownPolicy = errors.New("unknown failure policy")

// Policy decides what happens to an event whose publish failed.
type Policy string

const (
	// PolicySkip logs the failure and moves on to the next event.
	PolicySkip Policy = "skip"
	// PolicyRetry retries the event once after a backoff, then skips it.
	PolicyRetry Policy = "retry"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicySkip, PolicyRetry:
		return Policy(s), nil
	case "":
		return PolicySkip, nil
	}
	return "", errors.Wrapf(ErrUnknownPolicy, "%q", s)
}

type Config struct {
	Topic    string
	Interval time.Duration
	// Jitter adds a uniform extra delay in [0, Jitter*Interval) per event.
	Jitter float64
	// Cap stops the run after Cap events; 0 runs until cancelled.
	Cap          int64
	Policy       Policy
	RetryBackoff time.Duration
	// ProgressEvery logs a progress line every N events; 0 disables it.
	ProgressEvery int64
}

type Option func(*Simulator)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Simulator) { s.log = l }
}

func WithMetrics(m *metrics.Simulator) Option {
	return func(s *Simulator) { s.metrics = m }
}

// Simulator runs the publish loop: build, encode, publish, wait.
type Simulator struct {
	cfg     Config
	gen     *Generator
	codec   Codec
	pub     Publisher
	log     *zap.SugaredLogger
	metrics *metrics.Simulator
	stats   ProducerStats
	jitter  *rand.Rand
}

func NewSimulator(cfg Config, gen *Generator, codec Codec, pub Publisher, opts ...Option) (*Simulator, error) {
	if _, err := ParsePolicy(string(cfg.Policy)); err != nil {
		return nil, err
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicySkip
	}
	if cfg.Interval < 0 || cfg.Cap < 0 {
		return nil, errors.New("interval and cap must not be negative")
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		return nil, errors.Errorf("jitter must be within [0,1], got %v", cfg.Jitter)
	}

	s := &Simulator{
		cfg:    cfg,
		gen:    gen,
		codec:  codec,
		pub:    pub,
		log:    zap.NewNop().Sugar(),
		jitter: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Stats may be called while Run is in progress.
func (s *Simulator) Stats() Stats {
	return s.stats.snapshot()
}

// Run publishes until the cap is reached or ctx is cancelled. Cancellation is
// a clean stop and returns a nil error; only encoding failures abort the run.
// Run does not close the publisher.
func (s *Simulator) Run(ctx context.Context) (Stats, error) {
	var limiter *rate.Limiter
	if s.cfg.Interval > 0 {
		limiter = rate.NewLimiter(rate.Every(s.cfg.Interval), 1)
	}

	start := time.Now()
	s.log.Infow("simulator started",
		"topic", s.cfg.Topic,
		"codec", s.codec.Name(),
		"interval", s.cfg.Interval,
		"cap", s.cfg.Cap,
		"policy", s.cfg.Policy,
	)

	for s.cfg.Cap == 0 || s.stats.generated.Load() < s.cfg.Cap {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
			if err := sleepCtx(ctx, s.jitterDelay()); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		ev := s.gen.Next()
		payload, err := s.codec.Encode(ev)
		if err != nil {
			return s.stats.snapshot(), errors.Wrapf(err, "encode event %d", ev.Seq)
		}
		s.stats.recordGenerated()
		if s.metrics != nil {
			s.metrics.Generated(s.cfg.Topic)
		}

		s.publish(ctx, ev, payload)

		if n := s.stats.generated.Load(); s.cfg.ProgressEvery > 0 && n%s.cfg.ProgressEvery == 0 {
			st := s.stats.snapshot()
			s.log.Infow("progress", "generated", st.Generated, "published", st.Published, "skipped", st.Skipped)
		}
	}

	st := s.stats.snapshot()
	elapsed := time.Since(start)
	s.log.Infow("simulator stopped",
		"generated", st.Generated,
		"published", st.Published,
		"failed", st.Failed,
		"retries", st.Retries,
		"skipped", st.Skipped,
		"elapsed", elapsed,
		"cancelled", ctx.Err() != nil,
	)
	return st, nil
}

func (s *Simulator) jitterDelay() time.Duration {
	if s.cfg.Jitter == 0 {
		return 0
	}
	return time.Duration(s.jitter.Float64() * s.cfg.Jitter * float64(s.cfg.Interval))
}

func (s *Simulator) retryConfig() RetryConfig {
	attempts := 1
	if s.cfg.Policy == PolicyRetry {
		attempts = 2
	}
	return RetryConfig{MaxAttempts: attempts, Backoff: s.cfg.RetryBackoff}
}

func (s *Simulator) publish(ctx context.Context, ev Event, payload []byte) {
	onRetry := func(attempt int, backoff time.Duration) {
		s.stats.recordRetry()
		if s.metrics != nil {
			s.metrics.Retried(s.cfg.Topic)
		}
		s.log.Debugw("retrying event", "seq", ev.Seq, "attempt", attempt, "backoff", backoff)
	}

	err := retryWithBackoff(ctx, s.retryConfig(), onRetry, func() error {
		begin := time.Now()
		err := s.pub.Publish(ctx, []byte(ev.ID), payload)
		if s.metrics != nil {
			s.metrics.ObservePublish(s.cfg.Topic, time.Since(begin))
		}
		if err != nil {
			s.stats.recordFailure()
			if s.metrics != nil {
				s.metrics.Failed(s.cfg.Topic)
			}
			s.log.Warnw("publish failed", "seq", ev.Seq, "key", ev.ID, "error", err)
		}
		return err
	})
	if err == nil {
		s.stats.recordPublished()
		if s.metrics != nil {
			s.metrics.Published(s.cfg.Topic)
		}
		return
	}

	s.stats.recordSkipped()
	if s.metrics != nil {
		s.metrics.Skipped(s.cfg.Topic)
	}
	s.log.Warnw("skipping event", "seq", ev.Seq, "key", ev.ID, "error", err)
}

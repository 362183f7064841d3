package source

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparklab/metrics"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages [][]byte
	keys     []string
	calls    int
	// failFor returns the error for the n-th call (1-based); nil publishes.
	failFor func(n int) error
	closed  bool
}

func (p *fakePublisher) Publish(_ context.Context, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failFor != nil {
		if err := p.failFor(p.calls); err != nil {
			return err
		}
	}
	p.messages = append(p.messages, value)
	p.keys = append(p.keys, string(key))
	return nil
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func newTestSimulator(t *testing.T, cfg Config, pub Publisher, opts ...Option) *Simulator {
	t.Helper()
	if cfg.Topic == "" {
		cfg.Topic = "iot-events"
	}
	gen, err := NewGenerator(GeneratorConfig{Kind: KindIoT, Sensors: 5, Seed: 1})
	require.NoError(t, err)
	sim, err := NewSimulator(cfg, gen, JSONCodec{}, pub, opts...)
	require.NoError(t, err)
	return sim
}

func TestSimulator_CapPublishesExactly(t *testing.T) {
	pub := &fakePublisher{}
	sim := newTestSimulator(t, Config{Cap: 25}, pub)

	stats, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 25, pub.count())
	assert.Equal(t, Stats{Generated: 25, Published: 25}, stats)
	assert.False(t, pub.closed, "Run leaves the publisher to the caller")

	codec := JSONCodec{}
	for i, msg := range pub.messages {
		ev, err := codec.Decode(msg)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, ev.ID, pub.keys[i])
	}
}

func TestSimulator_IntervalAndCap(t *testing.T) {
	pub := &fakePublisher{}
	sim := newTestSimulator(t, Config{Interval: 100 * time.Millisecond, Cap: 10}, pub)

	start := time.Now()
	stats, err := sim.Run(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 10, pub.count())
	assert.Equal(t, int64(10), stats.Published)
	assert.GreaterOrEqual(t, elapsed, 850*time.Millisecond)
	assert.Less(t, elapsed, 1500*time.Millisecond)
}

func TestSimulator_JitterStaysWithinBudget(t *testing.T) {
	pub := &fakePublisher{}
	sim := newTestSimulator(t, Config{Interval: 20 * time.Millisecond, Jitter: 1, Cap: 10}, pub)

	start := time.Now()
	_, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, pub.count())
	assert.Less(t, time.Since(start), 10*40*time.Millisecond+200*time.Millisecond)
}

func TestSimulator_StopsOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	sim := newTestSimulator(t, Config{Interval: 10 * time.Millisecond}, pub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Stats, 1)
	go func() {
		stats, err := sim.Run(ctx)
		assert.NoError(t, err)
		done <- stats
	}()

	require.Eventually(t, func() bool { return pub.count() >= 5 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case stats := <-done:
		assert.Equal(t, int64(pub.count()), stats.Published)
		assert.Equal(t, stats.Generated, stats.Published+stats.Skipped)
	case <-time.After(time.Second):
		t.Fatal("simulator did not stop after cancellation")
	}
}

func TestSimulator_SkipPolicy(t *testing.T) {
	pub := &fakePublisher{failFor: func(n int) error {
		if n%2 == 0 {
			return errors.New("broker unavailable")
		}
		return nil
	}}
	sim := newTestSimulator(t, Config{Cap: 10, Policy: PolicySkip}, pub)

	stats, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, pub.calls, "each event is attempted once")
	assert.Equal(t, Stats{Generated: 10, Published: 5, Failed: 5, Skipped: 5}, stats)
}

func TestSimulator_RetryPolicy(t *testing.T) {
	// every first attempt fails, every retry succeeds
	pub := &fakePublisher{failFor: func(n int) error {
		if n%2 == 1 {
			return errors.New("leader not available")
		}
		return nil
	}}
	sim := newTestSimulator(t, Config{Cap: 4, Policy: PolicyRetry, RetryBackoff: time.Millisecond}, pub)

	stats, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, pub.calls)
	assert.Equal(t, Stats{Generated: 4, Published: 4, Failed: 4, Retries: 4}, stats)
}

func TestSimulator_RetryPolicyThenSkip(t *testing.T) {
	pub := &fakePublisher{failFor: func(int) error { return errors.New("down") }}
	reg := prometheus.NewRegistry()
	m := metrics.NewSimulator()
	require.NoError(t, m.Register(reg))

	sim := newTestSimulator(t, Config{Cap: 3, Policy: PolicyRetry, RetryBackoff: time.Millisecond}, pub, WithMetrics(m))

	stats, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, pub.calls, "one retry per event, never more")
	assert.Equal(t, Stats{Generated: 3, Failed: 6, Retries: 3, Skipped: 3}, stats)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[f.GetName()] = c.GetValue()
			}
		}
	}
	assert.Equal(t, 3.0, values["sparklab_events_generated_total"])
	assert.Equal(t, 6.0, values["sparklab_publish_failures_total"])
	assert.Equal(t, 3.0, values["sparklab_events_skipped_total"])
	assert.Equal(t, 3.0, values["sparklab_publish_retries_total"])
}

type failingCodec struct{ JSONCodec }

func (failingCodec) Encode(Event) ([]byte, error) { return nil, errors.New("unsupported value") }

func TestSimulator_EncodeErrorAborts(t *testing.T) {
	gen, err := NewGenerator(GeneratorConfig{Kind: KindIoT, Sensors: 1})
	require.NoError(t, err)
	pub := &fakePublisher{}
	sim, err := NewSimulator(Config{Topic: "t", Cap: 5}, gen, failingCodec{}, pub)
	require.NoError(t, err)

	_, err = sim.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode event 1")
	assert.Zero(t, pub.calls)
}

func TestNewSimulator_Invalid(t *testing.T) {
	gen, err := NewGenerator(GeneratorConfig{Kind: KindIoT, Sensors: 1})
	require.NoError(t, err)

	_, err = NewSimulator(Config{Policy: "block"}, gen, JSONCodec{}, &fakePublisher{})
	assert.True(t, errors.Is(err, ErrUnknownPolicy))

	_, err = NewSimulator(Config{Jitter: 2}, gen, JSONCodec{}, &fakePublisher{})
	assert.Error(t, err)

	_, err = NewSimulator(Config{Cap: -1}, gen, JSONCodec{}, &fakePublisher{})
	assert.Error(t, err)
}

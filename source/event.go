package source

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindIoT   Kind = "iot"
	KindClick Kind = "click"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindIoT, KindClick:
		return Kind(s), nil
	}
	return "", errors.Errorf("unknown event kind %q", s)
}

// Event is one synthetic stream message. ID is the sensor or user the event
// belongs to and doubles as the partition key.
type Event struct {
	Seq       int64     `json:"seq"`
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Label     string    `json:"label"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

var pages = []string{
	"/", "/search", "/products", "/products/detail", "/cart", "/checkout", "/account", "/help",
}

const (
	baseTemperature = 20.0
	temperatureStep = 0.3
	minDwell        = 0.5
	maxDwell        = 120.0
)

type GeneratorConfig struct {
	Kind    Kind
	Sensors int
	Users   int
	Seed    int64
	// A LateFraction share of events is stamped up to MaxLateness in the past.
	LateFraction float64
	MaxLateness  time.Duration
	Now          func() time.Time
}

// Generator builds events for one kind. Not safe for concurrent use.
type Generator struct {
	cfg   GeneratorConfig
	r     *rand.Rand
	seq   int64
	temps []float64
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if _, err := ParseKind(string(cfg.Kind)); err != nil {
		return nil, err
	}
	if cfg.Kind == KindIoT && cfg.Sensors < 1 {
		return nil, errors.Errorf("sensors must be at least 1, got %d", cfg.Sensors)
	}
	if cfg.Kind == KindClick && cfg.Users < 1 {
		return nil, errors.Errorf("users must be at least 1, got %d", cfg.Users)
	}
	if cfg.LateFraction < 0 || cfg.LateFraction > 1 {
		return nil, errors.Errorf("late fraction must be within [0,1], got %v", cfg.LateFraction)
	}
	if cfg.LateFraction > 0 && cfg.MaxLateness <= 0 {
		return nil, errors.New("max lateness must be positive when late events are enabled")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	g := &Generator{cfg: cfg, r: rand.New(rand.NewSource(cfg.Seed))}
	if cfg.Kind == KindIoT {
		g.temps = make([]float64, cfg.Sensors)
		for i := range g.temps {
			g.temps[i] = baseTemperature + g.r.Float64()*5
		}
	}
	return g, nil
}

func (g *Generator) Next() Event {
	g.seq++
	ev := Event{
		Seq:       g.seq,
		Kind:      g.cfg.Kind,
		Timestamp: g.cfg.Now().UTC().Truncate(time.Millisecond),
	}

	switch g.cfg.Kind {
	case KindIoT:
		i := g.r.Intn(len(g.temps))
		g.temps[i] += g.r.NormFloat64() * temperatureStep
		ev.ID = fmt.Sprintf("sensor-%02d", i+1)
		ev.Label = "temperature_c"
		ev.Value = round2(g.temps[i])
	case KindClick:
		ev.ID = fmt.Sprintf("user-%04d", 1+g.r.Intn(g.cfg.Users))
		ev.Label = pages[g.r.Intn(len(pages))]
		ev.Value = round2(minDwell + g.r.Float64()*(maxDwell-minDwell))
	}

	if g.cfg.LateFraction > 0 && g.r.Float64() < g.cfg.LateFraction {
		delay := time.Duration(1 + g.r.Int63n(int64(g.cfg.MaxLateness)))
		ev.Timestamp = ev.Timestamp.Add(-delay).Truncate(time.Millisecond)
	}
	return ev
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

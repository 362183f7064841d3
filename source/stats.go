package source

import "sync/atomic"

// Stats is a point-in-time copy of the simulator counters. Generated counts
// every event built; each one ends up either Published or Skipped.
type Stats struct {
	Generated int64
	Published int64
	Failed    int64
	Retries   int64
	Skipped   int64
}

type ProducerStats struct {
	generated atomic.Int64
	published atomic.Int64
	failed    atomic.Int64
	retries   atomic.Int64
	skipped   atomic.Int64
}

func (p *ProducerStats) recordGenerated() { p.generated.Add(1) }
func (p *ProducerStats) recordPublished() { p.published.Add(1) }
func (p *ProducerStats) recordFailure()   { p.failed.Add(1) }
func (p *ProducerStats) recordRetry()     { p.retries.Add(1) }
func (p *ProducerStats) recordSkipped()   { p.skipped.Add(1) }

func (p *ProducerStats) snapshot() Stats {
	return Stats{
		Generated: p.generated.Load(),
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
		Retries:   p.retries.Load(),
		Skipped:   p.skipped.Load(),
	}
}

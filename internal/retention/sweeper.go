// Package retention bounds storage by evicting artifacts older than a
// fixed age.
package retention

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/radar-composite/internal/metrics"
	"github.com/i474232898/radar-composite/internal/radar"
	"github.com/i474232898/radar-composite/internal/store"
)

// DefaultThreshold is the retention window used when none is configured.
const DefaultThreshold = 2 * time.Hour

// Sweeper evicts expired artifacts from one or more store roots.
type Sweeper struct {
	roots     []*store.Artifacts
	threshold time.Duration
	metrics   metrics.Metrics
	log       *zap.SugaredLogger
}

// New creates a Sweeper applying threshold to every root.
func New(threshold time.Duration, roots []*store.Artifacts, m metrics.Metrics, log *zap.SugaredLogger) *Sweeper {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Sweeper{roots: roots, threshold: threshold, metrics: m, log: log}
}

// Threshold is the maximum age an artifact may reach.
func (s *Sweeper) Threshold() time.Duration { return s.threshold }

// Sweep evicts every artifact whose age at now exceeds the threshold. Roots
// are swept independently; a failure in one is reported and does not stop
// the others. Entries whose names are not timestamps are reported and kept.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) radar.SweepReport {
	report := radar.SweepReport{Now: now}
	for _, root := range s.roots {
		if ctx.Err() != nil {
			report.Roots = append(report.Roots, radar.RootReport{Root: root.Root(), Error: ctx.Err().Error()})
			continue
		}
		report.Roots = append(report.Roots, s.sweepRoot(ctx, root, now))
	}
	return report
}

func (s *Sweeper) sweepRoot(ctx context.Context, root *store.Artifacts, now time.Time) radar.RootReport {
	rr := radar.RootReport{Root: root.Root(), Evicted: []time.Time{}}

	listing, err := root.List()
	if err != nil {
		s.metrics.IncSweepError(root.Root())
		rr.Error = err.Error()
		return rr
	}

	for _, name := range listing.Anomalies {
		s.log.Warnw("skipping malformed store entry", "root", root.Root(), "entry", name)
		s.metrics.IncAnomaly(root.Root())
	}
	rr.Anomalies = listing.Anomalies

	for _, e := range listing.Entries {
		if ctx.Err() != nil {
			rr.Error = ctx.Err().Error()
			break
		}
		if now.Sub(e.Timestamp) <= s.threshold {
			continue
		}
		if err := root.Evict(e.Timestamp); err != nil {
			s.log.Errorw("failed to evict artifact", "root", root.Root(), "entry", e.Name, "error", err)
			s.metrics.IncSweepError(root.Root())
			continue
		}
		s.log.Debugw("evicted artifact", "root", root.Root(), "entry", e.Name, "age", now.Sub(e.Timestamp))
		s.metrics.IncEvicted(root.Root())
		rr.Evicted = append(rr.Evicted, e.Timestamp)
	}
	return rr
}

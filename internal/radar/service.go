package radar

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Service orchestrates ingestion, retention and point queries over one store.
type Service struct {
	ingester Ingester
	sweeper  Sweeper
	sampler  Sampler
	catalog  Catalog
	log      *zap.SugaredLogger
	now      func() time.Time
}

// NewService creates a new Service.
func NewService(ingester Ingester, sweeper Sweeper, sampler Sampler, catalog Catalog, log *zap.SugaredLogger) *Service {
	return &Service{
		ingester: ingester,
		sweeper:  sweeper,
		sampler:  sampler,
		catalog:  catalog,
		log:      log,
		now:      time.Now,
	}
}

// IngestLatest materializes the newest remote snapshot if it is not already
// present. Failures are logged and returned; the store keeps its prior state.
func (s *Service) IngestLatest(ctx context.Context) (IngestResult, error) {
	if s.ingester == nil {
		return IngestResult{Outcome: OutcomeFailed}, fmt.Errorf("no ingester configured")
	}

	start := s.now()
	res, err := s.ingester.Ingest(ctx)
	if err != nil {
		s.log.Errorw("ingest failed", "error", err, "remote", res.RemoteName)
		return res, err
	}

	switch res.Outcome {
	case OutcomeDownloaded:
		s.log.Infow("ingested snapshot",
			"timestamp", FormatDir(res.Timestamp),
			"remote", res.RemoteName,
			"bytes", res.RemoteSize,
			"elapsed", s.now().Sub(start))
	case OutcomeSkipped:
		s.log.Infow("snapshot already current", "timestamp", FormatDir(res.Timestamp), "remote", res.RemoteName)
	case OutcomeNoData:
		s.log.Infow("no remote snapshots available")
	}
	return res, nil
}

// SweepExpired evicts artifacts older than the retention window as of now.
func (s *Service) SweepExpired(ctx context.Context) SweepReport {
	if s.sweeper == nil {
		return SweepReport{Now: s.now().UTC()}
	}

	report := s.sweeper.Sweep(ctx, s.now().UTC())
	for _, root := range report.Roots {
		if root.Error != "" {
			s.log.Errorw("sweep failed", "root", root.Root, "error", root.Error)
			continue
		}
		s.log.Infow("sweep complete", "root", root.Root, "evicted", len(root.Evicted), "anomalies", len(root.Anomalies))
	}
	return report
}

// SamplePoint returns one sample per retained artifact, oldest first.
func (s *Service) SamplePoint(ctx context.Context, lat, lon float64) ([]PointSample, error) {
	if s.sampler == nil {
		return nil, fmt.Errorf("no sampler configured")
	}
	return s.sampler.SamplePoint(ctx, lat, lon)
}

// SummarizePoint samples a point and aggregates the series.
func (s *Service) SummarizePoint(ctx context.Context, lat, lon float64) (Summary, error) {
	samples, err := s.SamplePoint(ctx, lat, lon)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(samples), nil
}

// Artifacts lists the retained artifact directory names, oldest first.
func (s *Service) Artifacts() ([]string, error) {
	if s.catalog == nil {
		return nil, ErrNotFound
	}
	stamps, err := s.catalog.Timestamps()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(stamps))
	for _, ts := range stamps {
		names = append(names, FormatDir(ts))
	}
	return names, nil
}

package radar

import (
	"context"
	"time"
)

// Ingester materializes the newest remote snapshot.
type Ingester interface {
	Ingest(ctx context.Context) (IngestResult, error)
}

// Sweeper evicts artifacts older than the retention window.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) SweepReport
}

// Sampler reads the value at a point from every retained artifact.
type Sampler interface {
	SamplePoint(ctx context.Context, lat, lon float64) ([]PointSample, error)
}

// Catalog lists retained artifact timestamps, oldest first.
type Catalog interface {
	Timestamps() ([]time.Time, error)
}

// Package sample answers point queries against every retained artifact.
package sample

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/radar-composite/internal/metrics"
	"github.com/i474232898/radar-composite/internal/radar"
	"github.com/i474232898/radar-composite/internal/raster"
	"github.com/i474232898/radar-composite/internal/store"
)

// DefaultWorkers bounds concurrent artifact reads when none is configured.
const DefaultWorkers = 4

// Sampler reads the pixel under a geographic point from each artifact.
type Sampler struct {
	grids   *store.Artifacts
	codec   raster.Codec
	workers int
	metrics metrics.Metrics
	log     *zap.SugaredLogger
}

// New creates a Sampler over grids, whose canonical files use codec.
func New(grids *store.Artifacts, codec raster.Codec, workers int, m metrics.Metrics, log *zap.SugaredLogger) *Sampler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Sampler{grids: grids, codec: codec, workers: workers, metrics: m, log: log}
}

// SamplePoint returns exactly one sample per artifact, oldest first. A
// failure reading one artifact yields an absent value for that timestamp;
// only a failure to list the store is returned as an error.
func (s *Sampler) SamplePoint(ctx context.Context, lat, lon float64) ([]radar.PointSample, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("invalid coordinate (%v, %v)", lat, lon)
	}
	lon = raster.NormalizeLon(lon)

	listing, err := s.grids.List()
	if err != nil {
		return nil, err
	}

	out := make([]radar.PointSample, len(listing.Entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, e := range listing.Entries {
		i, e := i, e
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = s.sampleOne(e, lat, lon)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Sampler) sampleOne(e store.Entry, lat, lon float64) radar.PointSample {
	ps := radar.PointSample{Date: e.Name, Timestamp: e.Timestamp}

	v, status, err := s.read(e.Timestamp, lat, lon)
	ps.Status = status
	switch {
	case errors.Is(err, radar.ErrOutOfBounds):
		s.log.Debugw("point outside artifact", "entry", e.Name, "lat", lat, "lon", lon, "error", err)
	case err != nil:
		s.log.Warnw("failed to sample artifact", "entry", e.Name, "lat", lat, "lon", lon, "error", err)
	case status == radar.SampleOK:
		ps.Value = &v
	default:
		s.log.Debugw("point not sampled", "entry", e.Name, "lat", lat, "lon", lon, "status", status)
	}
	s.metrics.IncSample(string(status))
	return ps
}

func (s *Sampler) read(ts time.Time, lat, lon float64) (float64, radar.SampleStatus, error) {
	grid, err := s.load(ts)
	if err != nil {
		return 0, radar.SampleError, err
	}

	bounds, err := grid.GeoBounds()
	if err != nil {
		return 0, radar.SampleError, err
	}
	if !bounds.Contains(lon, lat) {
		return 0, radar.SampleOutOfBounds, fmt.Errorf("%w: extent %+v", radar.ErrOutOfBounds, bounds)
	}

	x, y, err := raster.Reproject(lon, lat, grid.CRS)
	if err != nil {
		return 0, radar.SampleError, err
	}
	row, col, err := grid.Index(x, y)
	if err != nil {
		return 0, radar.SampleError, err
	}
	v, ok := grid.At(row, col)
	if !ok {
		return 0, radar.SampleOffGrid, fmt.Errorf("%w: pixel (%d, %d) of %dx%d", radar.ErrOutOfBounds, row, col, grid.Width, grid.Height)
	}
	if math.IsNaN(v) {
		return 0, radar.SampleNoData, nil
	}
	return v, radar.SampleOK, nil
}

func (s *Sampler) load(ts time.Time) (*raster.Grid, error) {
	rc, err := s.grids.Open(ts)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	grid, err := s.codec.Decode(rc)
	if err != nil {
		return nil, errors.Join(radar.ErrDecode, err)
	}
	return grid, nil
}

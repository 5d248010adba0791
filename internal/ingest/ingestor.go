// Package ingest materializes the newest remote radar snapshot as a local
// artifact, downloading each snapshot at most once.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/i474232898/radar-composite/internal/metrics"
	"github.com/i474232898/radar-composite/internal/radar"
	"github.com/i474232898/radar-composite/internal/raster"
	"github.com/i474232898/radar-composite/internal/remote"
	"github.com/i474232898/radar-composite/internal/store"
)

const (
	compressedName = "payload.gz"
	decodedName    = "payload.raw"
)

// Options tunes an Ingestor. Zero values are usable.
type Options struct {
	// Suffix is stripped from remote names before the timestamp token is parsed.
	Suffix string
	// Decoder turns the decompressed payload into a grid. Defaults to the
	// store codec, i.e. the remote publishes native grid files.
	Decoder raster.Decoder
	// Raw, when set, also keeps the decompressed payload under its own root.
	Raw *store.Artifacts
	// Sidecars are glob patterns of index files deleted after each ingestion.
	Sidecars []string
}

// Ingestor pulls the newest remote snapshot into the grid store.
type Ingestor struct {
	source   remote.Source
	grids    *store.Artifacts
	codec    raster.Codec
	decoder  raster.Decoder
	raw      *store.Artifacts
	suffix   string
	sidecars []string
	metrics  metrics.Metrics
	log      *zap.SugaredLogger
	now      func() time.Time
}

// New creates an Ingestor writing canonical grids encoded with codec.
func New(source remote.Source, grids *store.Artifacts, codec raster.Codec, opts Options, m metrics.Metrics, log *zap.SugaredLogger) *Ingestor {
	decoder := opts.Decoder
	if decoder == nil {
		decoder = codec
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Ingestor{
		source:   source,
		grids:    grids,
		codec:    codec,
		decoder:  decoder,
		raw:      opts.Raw,
		suffix:   opts.Suffix,
		sidecars: opts.Sidecars,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// Ingest materializes the newest remote snapshot. It reports OutcomeNoData
// when the remote lists nothing and OutcomeSkipped when the local artifact
// already matches the remote size. On error the store is left untouched.
func (in *Ingestor) Ingest(ctx context.Context) (radar.IngestResult, error) {
	start := in.now()
	res, err := in.ingest(ctx)
	if err != nil {
		res.Outcome = radar.OutcomeFailed
	}
	in.metrics.IncIngest(string(res.Outcome))
	in.metrics.ObserveIngestDuration(in.now().Sub(start).Seconds())
	return res, err
}

func (in *Ingestor) ingest(ctx context.Context) (radar.IngestResult, error) {
	names, err := in.source.List(ctx)
	if err != nil {
		return radar.IngestResult{}, err
	}
	if len(names) == 0 {
		return radar.IngestResult{Outcome: radar.OutcomeNoData}, nil
	}

	name, ts, ok := in.latest(names)
	if !ok {
		in.log.Warnw("no remote file carries a parseable timestamp", "files", len(names))
		return radar.IngestResult{Outcome: radar.OutcomeNoData}, nil
	}
	res := radar.IngestResult{RemoteName: name, Timestamp: ts}

	size, err := in.source.Size(ctx, name)
	if err != nil {
		return res, err
	}
	res.RemoteSize = size

	if size >= 0 {
		m, err := in.grids.Manifest(ts)
		switch {
		case err == nil && m.RemoteSize == size:
			res.Outcome = radar.OutcomeSkipped
			return res, nil
		case err != nil && !errors.Is(err, radar.ErrNotFound):
			in.log.Warnw("unreadable manifest, re-ingesting", "timestamp", radar.FormatDir(ts), "error", err)
		}
	} else {
		in.log.Warnw("remote size unknown, dedup disabled for this attempt", "remote", name)
	}

	n, err := in.materialize(ctx, name, ts, size)
	if err != nil {
		return res, err
	}
	res.RemoteSize = n
	res.Outcome = radar.OutcomeDownloaded
	return res, nil
}

// latest picks the name with the greatest parsed timestamp; equal
// timestamps fall back to lexicographic order.
func (in *Ingestor) latest(names []string) (string, time.Time, bool) {
	var (
		best   string
		bestTS time.Time
		found  bool
	)
	for _, name := range names {
		ts, err := radar.ParseRemoteName(name, in.suffix)
		if err != nil {
			in.log.Debugw("ignoring remote file", "remote", name, "error", err)
			continue
		}
		if !found || ts.After(bestTS) || (ts.Equal(bestTS) && name > best) {
			best, bestTS, found = name, ts, true
		}
	}
	return best, bestTS, found
}

// materialize downloads, decompresses, decodes and publishes one snapshot.
// It returns the number of compressed bytes transferred.
func (in *Ingestor) materialize(ctx context.Context, name string, ts time.Time, size int64) (int64, error) {
	st, err := in.grids.Stage()
	if err != nil {
		return 0, err
	}
	defer st.Discard()

	n, err := in.download(ctx, name, st.Path(compressedName))
	if err != nil {
		return n, err
	}
	if size >= 0 && n != size {
		return n, fmt.Errorf("%w: %s: got %d bytes, expected %d", radar.ErrTransfer, name, n, size)
	}

	rawPath := st.Path(decodedName)
	var rawSt *store.Staging
	if in.raw != nil {
		rawSt, err = in.raw.Stage()
		if err != nil {
			return n, err
		}
		defer rawSt.Discard()
		rawPath = rawSt.Path(in.raw.Filename())
	}

	if err := gunzip(st.Path(compressedName), rawPath); err != nil {
		return n, fmt.Errorf("%w: decompress %s: %w", radar.ErrDecode, name, err)
	}
	if err := st.Remove(compressedName); err != nil {
		return n, err
	}

	grid, err := decodeFile(in.decoder, rawPath)
	if err != nil {
		return n, fmt.Errorf("%w: %s: %w", radar.ErrDecode, name, err)
	}
	if err := encodeFile(in.codec, grid, st.Path(in.grids.Filename())); err != nil {
		return n, err
	}

	manifest := store.Manifest{
		Timestamp:  ts,
		RemoteName: name,
		RemoteSize: n,
		IngestedAt: in.now().UTC(),
	}

	if rawSt != nil {
		manifest.File = in.raw.Filename()
		if err := rawSt.WriteManifest(manifest); err != nil {
			return n, err
		}
		if err := in.raw.Publish(ts, rawSt); err != nil {
			return n, err
		}
		in.removeSidecars(in.raw, ts)
	} else if err := st.Remove(decodedName); err != nil {
		return n, err
	}

	manifest.File = in.grids.Filename()
	manifest.Codec = in.codec.Name()
	if err := st.WriteManifest(manifest); err != nil {
		return n, err
	}
	if err := in.grids.Publish(ts, st); err != nil {
		return n, err
	}
	in.removeSidecars(in.grids, ts)
	return n, nil
}

func (in *Ingestor) download(ctx context.Context, name, dst string) (int64, error) {
	body, err := in.source.Fetch(ctx, name)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	f, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("%w: download %s: %w", radar.ErrTransfer, name, err)
	}
	return n, nil
}

func (in *Ingestor) removeSidecars(s *store.Artifacts, ts time.Time) {
	if len(in.sidecars) == 0 {
		return
	}
	removed, err := s.RemoveSidecars(ts, in.sidecars)
	for _, path := range removed {
		in.log.Debugw("deleted sidecar", "path", path)
	}
	if err != nil {
		in.log.Warnw("failed to delete sidecars", "root", s.Root(), "error", err)
	}
}

func gunzip(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer gz.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, gz); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func decodeFile(d raster.Decoder, path string) (*raster.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return d.Decode(f)
}

func encodeFile(c raster.Codec, g *raster.Grid, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.Encode(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

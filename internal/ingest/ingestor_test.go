package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/i474232898/radar-composite/internal/radar"
	"github.com/i474232898/radar-composite/internal/raster"
	"github.com/i474232898/radar-composite/internal/remote"
	"github.com/i474232898/radar-composite/internal/store"
)

// fakeSource serves files from memory and counts downloads.
type fakeSource struct {
	files   map[string][]byte
	fetches int
	listErr error
}

func (f *fakeSource) List(context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var names []string
	for name := range f.files {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeSource) Size(_ context.Context, name string) (int64, error) {
	data, ok := f.files[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s missing", radar.ErrTransfer, name)
	}
	return int64(len(data)), nil
}

func (f *fakeSource) Fetch(_ context.Context, name string) (io.ReadCloser, error) {
	f.fetches++
	data, ok := f.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s missing", radar.ErrTransfer, name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func gzippedGrid(t *testing.T, value float64) []byte {
	t.Helper()
	codec, _ := raster.CodecByName(raster.CodecCBOR)
	g := raster.NewGrid(4, 4, raster.EPSG4326, raster.Affine{-100, 1, 0, 40, 0, -1})
	g.Set(1, 1, value)

	var plain bytes.Buffer
	if err := codec.Encode(&plain, g); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write(plain.Bytes())
	zw.Close()
	return buf.Bytes()
}

func newIngestor(t *testing.T, src remote.Source, opts Options) (*Ingestor, *store.Artifacts) {
	t.Helper()
	log := zap.NewNop().Sugar()
	codec, _ := raster.CodecByName(raster.CodecCBOR)
	grids, err := store.New(t.TempDir(), "output"+codec.Ext(), log)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if opts.Suffix == "" {
		opts.Suffix = ".grib2.gz"
	}
	return New(src, grids, codec, opts, nil, log), grids
}

func readValue(t *testing.T, s *store.Artifacts, ts time.Time) float64 {
	t.Helper()
	rc, err := s.Open(ts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	codec, _ := raster.CodecByName(raster.CodecCBOR)
	g, err := codec.Decode(rc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	v, _ := g.At(1, 1)
	return v
}

func TestIngestSelectsLatestAndIsIdempotent(t *testing.T) {
	src := &fakeSource{files: map[string][]byte{
		"COMP_20240101-000000.grib2.gz": gzippedGrid(t, 10),
		"COMP_20240101-000200.grib2.gz": gzippedGrid(t, 35),
	}}
	in, grids := newIngestor(t, src, Options{})

	res, err := in.Ingest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 1, 1, 0, 2, 0, 0, time.UTC)
	if res.Outcome != radar.OutcomeDownloaded || !res.Timestamp.Equal(want) {
		t.Fatalf("unexpected result %+v", res)
	}
	if name, _ := res.Artifact(); name != "2024-01-01_00-02" {
		t.Fatalf("expected artifact 2024-01-01_00-02, got %q", name)
	}
	if v := readValue(t, grids, want); v != 35 {
		t.Fatalf("expected 35, got %v", v)
	}

	res, err = in.Ingest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != radar.OutcomeSkipped {
		t.Fatalf("expected second ingest to be skipped, got %s", res.Outcome)
	}
	if src.fetches != 1 {
		t.Fatalf("expected one download, got %d", src.fetches)
	}

	stamps, _ := grids.Timestamps()
	if len(stamps) != 1 {
		t.Fatalf("expected one artifact, got %d", len(stamps))
	}
	m, err := grids.Manifest(want)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if m.RemoteName != "COMP_20240101-000200.grib2.gz" || m.Codec != raster.CodecCBOR {
		t.Fatalf("unexpected manifest %+v", m)
	}
}

func TestIngestRedownloadsWhenSizeChanges(t *testing.T) {
	name := "COMP_20240101-000200.grib2.gz"
	src := &fakeSource{files: map[string][]byte{name: gzippedGrid(t, 35)}}
	in, grids := newIngestor(t, src, Options{})

	if _, err := in.Ingest(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// An empty trailing gzip member changes the size without changing the grid.
	var pad bytes.Buffer
	zw := gzip.NewWriter(&pad)
	zw.Close()
	src.files[name] = append(gzippedGrid(t, 50), pad.Bytes()...)

	res, err := in.Ingest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != radar.OutcomeDownloaded {
		t.Fatalf("expected re-download, got %s", res.Outcome)
	}
	if v := readValue(t, grids, res.Timestamp); v != 50 {
		t.Fatalf("expected replaced value 50, got %v", v)
	}
}

func TestIngestSelectsByParsedTimestamp(t *testing.T) {
	src := &fakeSource{files: map[string][]byte{
		"ZZZ_20240101-000000.grib2.gz": gzippedGrid(t, 1),
		"AAA_20240101-000400.grib2.gz": gzippedGrid(t, 2),
		"garbage.grib2.gz":             gzippedGrid(t, 3),
	}}
	in, _ := newIngestor(t, src, Options{})

	res, err := in.Ingest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RemoteName != "AAA_20240101-000400.grib2.gz" {
		t.Fatalf("expected newest parsed timestamp to win, got %s", res.RemoteName)
	}
}

func TestIngestEmptyListingIsNoData(t *testing.T) {
	in, grids := newIngestor(t, &fakeSource{files: map[string][]byte{}}, Options{})

	res, err := in.Ingest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != radar.OutcomeNoData {
		t.Fatalf("expected no_data, got %s", res.Outcome)
	}
	if _, ok := res.Artifact(); ok {
		t.Fatalf("expected no artifact")
	}
	stamps, _ := grids.Timestamps()
	if len(stamps) != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestIngestListingFailure(t *testing.T) {
	src := &fakeSource{listErr: fmt.Errorf("%w: status 503", radar.ErrTransfer)}
	in, _ := newIngestor(t, src, Options{})

	res, err := in.Ingest(context.Background())
	if !errors.Is(err, radar.ErrTransfer) {
		t.Fatalf("expected ErrTransfer, got %v", err)
	}
	if res.Outcome != radar.OutcomeFailed {
		t.Fatalf("expected failed outcome, got %s", res.Outcome)
	}
}

func TestIngestTruncatedPayloadLeavesNoArtifact(t *testing.T) {
	full := gzippedGrid(t, 35)
	name := "COMP_20240101-000200.grib2.gz"
	src := &fakeSource{files: map[string][]byte{name: full[:len(full)/2]}}
	in, grids := newIngestor(t, src, Options{})

	_, err := in.Ingest(context.Background())
	if !errors.Is(err, radar.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}

	stamps, _ := grids.Timestamps()
	if len(stamps) != 0 {
		t.Fatalf("expected no visible artifact, got %v", stamps)
	}
	staging, _ := os.ReadDir(filepath.Join(grids.Root(), ".staging"))
	if len(staging) != 0 {
		t.Fatalf("expected staging area cleaned, found %d entries", len(staging))
	}

	// A later good ingest still succeeds.
	src.files[name] = full
	res, err := in.Ingest(context.Background())
	if err != nil || res.Outcome != radar.OutcomeDownloaded {
		t.Fatalf("expected recovery, got %+v, %v", res, err)
	}
}

func TestIngestUndecodablePayloadLeavesNoArtifact(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte("GRIB....not a native grid"))
	zw.Close()

	src := &fakeSource{files: map[string][]byte{"COMP_20240101-000200.grib2.gz": buf.Bytes()}}
	in, grids := newIngestor(t, src, Options{})

	if _, err := in.Ingest(context.Background()); !errors.Is(err, radar.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	stamps, _ := grids.Timestamps()
	if len(stamps) != 0 {
		t.Fatalf("expected no visible artifact, got %v", stamps)
	}
}

func TestIngestKeepsRawPayloadAndDropsSidecars(t *testing.T) {
	log := zap.NewNop().Sugar()
	raw, err := store.New(t.TempDir(), "output.grib2", log)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	stale := filepath.Join(raw.Root(), "20240101-000000.grib2.923a8.idx")
	if err := os.WriteFile(stale, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src := &fakeSource{files: map[string][]byte{"COMP_20240101-000200.grib2.gz": gzippedGrid(t, 35)}}
	in, _ := newIngestor(t, src, Options{Raw: raw, Sidecars: []string{"*.grib2.*.idx"}})

	res, err := in.Ingest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(raw.Path(res.Timestamp)); err != nil {
		t.Fatalf("expected raw payload kept: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected sidecar removed, got %v", err)
	}
}

func TestIngestOverHTTP(t *testing.T) {
	files := map[string][]byte{
		"COMP_20240101-000000.grib2.gz": gzippedGrid(t, 10),
		"COMP_20240101-000200.grib2.gz": gzippedGrid(t, 35),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/radar/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/radar/")
		if name == "" {
			for n := range files {
				fmt.Fprintf(w, "<a href=\"%s\">%s</a>\n", n, n)
			}
			return
		}
		data, ok := files[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		if r.Method == http.MethodHead {
			return
		}
		w.Write(data)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src, err := remote.NewHTTPSource(srv.Client(), srv.URL+"/radar/", ".grib2.gz", remote.BackoffConfig{})
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	in, grids := newIngestor(t, src, Options{})

	res, err := in.Ingest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name, _ := res.Artifact(); name != "2024-01-01_00-02" {
		t.Fatalf("expected 2024-01-01_00-02, got %q", name)
	}
	if res.RemoteSize != int64(len(files["COMP_20240101-000200.grib2.gz"])) {
		t.Fatalf("unexpected size %d", res.RemoteSize)
	}

	res, err = in.Ingest(context.Background())
	if err != nil || res.Outcome != radar.OutcomeSkipped {
		t.Fatalf("expected skip, got %+v, %v", res, err)
	}
	if v := readValue(t, grids, res.Timestamp); v != 35 {
		t.Fatalf("expected 35, got %v", v)
	}
}

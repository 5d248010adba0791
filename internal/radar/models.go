package radar

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	// DirLayout is the layout of an artifact directory name.
	DirLayout = "2006-01-02_15-04"

	// RemoteLayout is the layout of the timestamp token at the end of a
	// remote file name, e.g. MRMS_MergedReflectivityComposite_00.50_20240101-000200.grib2.gz.
	RemoteLayout = "20060102-150405"
)

// FormatDir returns the artifact directory name for ts.
func FormatDir(ts time.Time) string {
	return ts.UTC().Format(DirLayout)
}

// ParseDir parses an artifact directory name. Names are always UTC.
func ParseDir(name string) (time.Time, error) {
	if len(name) != len(DirLayout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedEntry, name)
	}
	ts, err := time.ParseInLocation(DirLayout, name, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedEntry, name)
	}
	return ts, nil
}

// ParseRemoteName extracts the timestamp token that follows the last
// underscore of a remote file name, with suffix stripped.
func ParseRemoteName(name, suffix string) (time.Time, error) {
	base := strings.TrimSuffix(path.Base(name), suffix)
	i := strings.LastIndex(base, "_")
	if i < 0 || i == len(base)-1 {
		return time.Time{}, fmt.Errorf("no timestamp token in %q", name)
	}
	ts, err := time.ParseInLocation(RemoteLayout, base[i+1:], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp token in %q: %w", name, err)
	}
	return ts, nil
}

// PointSample is the value observed at a point for one artifact.
// Value is nil when the point is outside the artifact or the artifact
// could not be read.
type PointSample struct {
	Date  string   `json:"date" msgpack:"date"`
	Value *float64 `json:"value" msgpack:"value"`

	Timestamp time.Time    `json:"-" msgpack:"-"`
	Status    SampleStatus `json:"-" msgpack:"-"`
}

// SampleStatus explains how a PointSample was produced.
type SampleStatus string

const (
	SampleOK          SampleStatus = "ok"
	SampleOutOfBounds SampleStatus = "out_of_bounds"
	SampleOffGrid     SampleStatus = "off_grid"
	SampleNoData      SampleStatus = "no_data"
	SampleError       SampleStatus = "error"
)

// IngestOutcome is what an ingestion attempt did.
type IngestOutcome string

const (
	OutcomeDownloaded IngestOutcome = "downloaded"
	OutcomeSkipped    IngestOutcome = "skipped"
	OutcomeNoData     IngestOutcome = "no_data"
	OutcomeFailed     IngestOutcome = "failed"
)

// IngestResult reports a single ingestion attempt.
type IngestResult struct {
	Outcome    IngestOutcome `json:"outcome"`
	Timestamp  time.Time     `json:"timestamp,omitzero"`
	RemoteName string        `json:"remoteName,omitempty"`
	RemoteSize int64         `json:"remoteSize,omitempty"`
}

// Artifact is the timestamp present in the store.
func (r IngestResult) Artifact() (string, bool) {
	if r.Outcome != OutcomeDownloaded {
		return "", false
	}
	return FormatDir(r.Timestamp), true
}

// RootReport is the result of sweeping one store root.
type RootReport struct {
	Root      string      `json:"root"`
	Evicted   []time.Time `json:"evicted"`
	Anomalies []string    `json:"anomalies,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// SweepReport is the result of sweeping every configured root.
type SweepReport struct {
	Now   time.Time    `json:"now"`
	Roots []RootReport `json:"roots"`
}

// Evicted returns the union of evicted timestamps across roots.
func (r SweepReport) Evicted() []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, root := range r.Roots {
		for _, ts := range root.Evicted {
			if _, ok := seen[ts]; ok {
				continue
			}
			seen[ts] = struct{}{}
			out = append(out, ts)
		}
	}
	return out
}

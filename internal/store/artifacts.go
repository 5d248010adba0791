package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i474232898/radar-composite/internal/radar"
)

const (
	stagingDir   = ".staging"
	locksDir     = ".locks"
	manifestName = "manifest.json"
)

// reserved entries live under every root and are never artifacts.
var reserved = map[string]bool{stagingDir: true, locksDir: true}

// Manifest records where an artifact came from. RemoteSize is what the
// remote advertised when the artifact was ingested and is the value dedup
// compares against.
type Manifest struct {
	Timestamp  time.Time `json:"timestamp"`
	RemoteName string    `json:"remoteName"`
	RemoteSize int64     `json:"remoteSize"`
	File       string    `json:"file"`
	Codec      string    `json:"codec,omitempty"`
	IngestedAt time.Time `json:"ingestedAt"`
}

// Entry is one artifact directory.
type Entry struct {
	Name      string
	Timestamp time.Time
	Dir       string
}

// Listing is the content of a store root. Anomalies are entry names that
// are not timestamp directories.
type Listing struct {
	Entries   []Entry
	Anomalies []string
}

// Artifacts is a filesystem-backed store with one directory per timestamp,
// each holding a single canonical file.
type Artifacts struct {
	root     string
	filename string
	log      *zap.SugaredLogger
}

// New opens (creating if needed) a store rooted at root whose artifacts
// hold a canonical file named filename.
func New(root, filename string, log *zap.SugaredLogger) (*Artifacts, error) {
	if root == "" {
		return nil, errors.New("store: empty root")
	}
	if filename == "" || filepath.Base(filename) != filename {
		return nil, fmt.Errorf("store: invalid artifact file name %q", filename)
	}
	for _, dir := range []string{root, filepath.Join(root, stagingDir), filepath.Join(root, locksDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
	}
	return &Artifacts{root: root, filename: filename, log: log}, nil
}

// Root is the directory holding the artifacts.
func (s *Artifacts) Root() string { return s.root }

// Filename is the canonical file name inside each artifact directory.
func (s *Artifacts) Filename() string { return s.filename }

// Dir is the directory of the artifact for ts.
func (s *Artifacts) Dir(ts time.Time) string {
	return filepath.Join(s.root, radar.FormatDir(ts))
}

// Path is the canonical file of the artifact for ts.
func (s *Artifacts) Path(ts time.Time) string {
	return filepath.Join(s.Dir(ts), s.filename)
}

// List returns the artifacts under the root, oldest first.
func (s *Artifacts) List() (Listing, error) {
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		return Listing{}, fmt.Errorf("store: list %s: %w", s.root, err)
	}

	var l Listing
	for _, d := range dirents {
		name := d.Name()
		if reserved[name] {
			continue
		}
		if !d.IsDir() {
			l.Anomalies = append(l.Anomalies, name)
			continue
		}
		ts, err := radar.ParseDir(name)
		if err != nil {
			l.Anomalies = append(l.Anomalies, name)
			continue
		}
		l.Entries = append(l.Entries, Entry{Name: name, Timestamp: ts, Dir: filepath.Join(s.root, name)})
	}

	sort.Slice(l.Entries, func(i, j int) bool {
		return l.Entries[i].Timestamp.Before(l.Entries[j].Timestamp)
	})
	return l, nil
}

// Timestamps lists artifact timestamps, oldest first.
func (s *Artifacts) Timestamps() ([]time.Time, error) {
	l, err := s.List()
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(l.Entries))
	for _, e := range l.Entries {
		out = append(out, e.Timestamp)
	}
	return out, nil
}

// Manifest reads the manifest of the artifact for ts.
func (s *Artifacts) Manifest(ts time.Time) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(s.Dir(ts), manifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return m, radar.ErrNotFound
	}
	if err != nil {
		return m, fmt.Errorf("store: read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("store: parse manifest: %w", err)
	}
	return m, nil
}

// Open returns the canonical file of the artifact for ts. A shared lock is
// held until the reader is closed.
func (s *Artifacts) Open(ts time.Time) (io.ReadCloser, error) {
	unlock, err := s.lock(ts, false)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path(ts))
	if err != nil {
		unlock()
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", radar.ErrNotFound, radar.FormatDir(ts))
		}
		return nil, err
	}
	return &lockedFile{File: f, unlock: unlock}, nil
}

// Stage creates a private working directory inside the root. Nothing in
// it is visible to List until Publish renames it into place.
func (s *Artifacts) Stage() (*Staging, error) {
	dir := filepath.Join(s.root, stagingDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: stage: %w", err)
	}
	return &Staging{dir: dir, store: s}, nil
}

// Publish atomically installs a staged directory as the artifact for ts,
// replacing any existing artifact. The staging directory must contain the
// canonical file.
func (s *Artifacts) Publish(ts time.Time, st *Staging) error {
	if _, err := os.Stat(st.Path(s.filename)); err != nil {
		return fmt.Errorf("store: publish %s: %w", radar.FormatDir(ts), err)
	}

	unlock, err := s.lock(ts, true)
	if err != nil {
		return err
	}
	defer unlock()

	dest := s.Dir(ts)
	var old string
	if _, err := os.Stat(dest); err == nil {
		old = filepath.Join(s.root, stagingDir, uuid.NewString()+"-old")
		if err := os.Rename(dest, old); err != nil {
			return fmt.Errorf("store: retire %s: %w", dest, err)
		}
	}

	if err := os.Rename(st.dir, dest); err != nil {
		if old != "" {
			_ = os.Rename(old, dest)
		}
		return fmt.Errorf("store: publish %s: %w", dest, err)
	}
	st.published = true

	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			s.log.Warnw("failed to remove replaced artifact", "path", old, "error", err)
		}
	}
	return nil
}

// Evict removes the artifact for ts and everything under it.
func (s *Artifacts) Evict(ts time.Time) error {
	unlock, err := s.lock(ts, true)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.RemoveAll(s.Dir(ts)); err != nil {
		return fmt.Errorf("store: evict %s: %w", radar.FormatDir(ts), err)
	}
	if err := os.Remove(s.lockPath(ts)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warnw("failed to remove lock file", "path", s.lockPath(ts), "error", err)
	}
	return nil
}

// RemoveSidecars deletes files matching any of patterns in the artifact
// directory for ts and in the root itself.
func (s *Artifacts) RemoveSidecars(ts time.Time, patterns []string) ([]string, error) {
	var removed []string
	var errs []error
	for _, dir := range []string{s.Dir(ts), s.root} {
		for _, pattern := range patterns {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				return removed, fmt.Errorf("store: sidecar pattern %q: %w", pattern, err)
			}
			for _, path := range matches {
				if filepath.Base(path) == s.filename {
					continue
				}
				if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
					errs = append(errs, err)
					continue
				}
				removed = append(removed, path)
			}
		}
	}
	return removed, errors.Join(errs...)
}

func (s *Artifacts) lockPath(ts time.Time) string {
	return filepath.Join(s.root, locksDir, radar.FormatDir(ts)+".lock")
}

func (s *Artifacts) lock(ts time.Time, exclusive bool) (func(), error) {
	unlock, err := lockFile(s.lockPath(ts), exclusive)
	if err != nil {
		return nil, fmt.Errorf("store: lock %s: %w", radar.FormatDir(ts), err)
	}
	return func() {
		if err := unlock(); err != nil {
			s.log.Warnw("failed to release lock", "timestamp", radar.FormatDir(ts), "error", err)
		}
	}, nil
}

type lockedFile struct {
	*os.File
	unlock func()
}

func (f *lockedFile) Close() error {
	err := f.File.Close()
	f.unlock()
	return err
}

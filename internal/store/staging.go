package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Staging is a working directory for an artifact that is not yet published.
type Staging struct {
	dir       string
	store     *Artifacts
	published bool
}

// Dir is the staging directory.
func (st *Staging) Dir() string { return st.dir }

// Path returns the path of name inside the staging directory.
func (st *Staging) Path(name string) string {
	return filepath.Join(st.dir, name)
}

// Remove deletes name from the staging directory.
func (st *Staging) Remove(name string) error {
	return os.Remove(st.Path(name))
}

// WriteManifest stores m alongside the staged artifact.
func (st *Staging) WriteManifest(m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode manifest: %w", err)
	}
	return os.WriteFile(st.Path(manifestName), data, 0o644)
}

// Discard removes the staging directory unless it was published. Safe to
// call more than once.
func (st *Staging) Discard() {
	if st.published {
		return
	}
	if err := os.RemoveAll(st.dir); err != nil {
		st.store.log.Warnw("failed to discard staging directory", "path", st.dir, "error", err)
	}
}

//go:build !unix

package store

// Without flock, publish-by-rename is the only protection readers get.
func lockFile(string, bool) (func() error, error) {
	return func() error { return nil }, nil
}

package radar

import "errors"

var (
	// ErrTransfer is returned when the remote listing or a download fails.
	ErrTransfer = errors.New("remote transfer failed")

	// ErrDecode is returned when a fetched or stored artifact cannot be decoded.
	ErrDecode = errors.New("artifact decode failed")

	// ErrMalformedEntry marks a store entry whose name is not a timestamp.
	ErrMalformedEntry = errors.New("malformed store entry")

	// ErrOutOfBounds marks a coordinate outside an artifact's extent.
	ErrOutOfBounds = errors.New("coordinate out of bounds")

	// ErrNotFound is returned when no artifact exists for a timestamp.
	ErrNotFound = errors.New("artifact not found")
)

package store

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a concurrent writer advanced the
	// version counter since the caller's last read.
	ErrVersionConflict = errors.New("version conflict")
)

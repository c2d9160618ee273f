package store

import "errors"

var (
	// ErrCorrupt is returned by Load when the backing file is not a JSON object.
	ErrCorrupt = errors.New("backing file is not a JSON object")
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("key not found")

	errInvalidJSON = errors.New("invalid JSON")
	errNotObject   = errors.New("top-level value is not an object")
)

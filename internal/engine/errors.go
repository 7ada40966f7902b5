package engine

import "errors"

var (
	// ErrClosed is returned for any operation on a closed engine.
	ErrClosed = errors.New("engine is closed")

	// ErrEmptyID is returned when a document carries an empty identifier.
	ErrEmptyID = errors.New("document identifier is empty")

	// ErrInvalidTopK is returned when a search requests a non-positive
	// result count.
	ErrInvalidTopK = errors.New("topK must be positive")
)

package lexgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lexgo/internal/engine"
	"github.com/hupe1980/lexgo/lexical"
	"github.com/hupe1980/lexgo/schema"
)

var (
	// ErrNotInitialized is returned for any operation on a closed or
	// never-opened index handle.
	ErrNotInitialized = errors.New("index is not initialized")

	// ErrStorage indicates an I/O failure while opening, creating, or
	// reading the index. The underlying cause is available via errors.Is /
	// errors.Unwrap.
	ErrStorage = errors.New("storage failure")

	// ErrCommit indicates a commit-time persistence failure. Staged
	// operations are preserved so the caller may retry or abort.
	ErrCommit = errors.New("commit failed")

	// ErrSchemaMismatch is returned when a reopened index's persisted
	// schema does not carry the expected field set. The detailed cause is
	// a *schema.MismatchError.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrQueryParse is returned for malformed search query syntax. The
	// detailed cause is a *lexical.ParseError.
	ErrQueryParse = errors.New("invalid query")

	// ErrEmptyID is returned when a document identifier is empty.
	ErrEmptyID = errors.New("document identifier is empty")

	// ErrInvalidTopK is returned when a search requests a non-positive
	// result count.
	ErrInvalidTopK = errors.New("topK must be positive")
)

// translateError maps internal errors onto the public error contract.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, engine.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}
	if errors.Is(err, engine.ErrEmptyID) {
		return ErrEmptyID
	}
	if errors.Is(err, engine.ErrInvalidTopK) {
		return ErrInvalidTopK
	}

	var sm *schema.MismatchError
	if errors.As(err, &sm) {
		return fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	}

	var pe *lexical.ParseError
	if errors.As(err, &pe) {
		return fmt.Errorf("%w: %w", ErrQueryParse, err)
	}

	return err
}

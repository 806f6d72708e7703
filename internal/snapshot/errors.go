package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Resolve once the resolver is closed.
	ErrClosed = errors.New("snapshot: resolver closed")

	// ErrEmptyDocument means conversion produced no Markdown at all.
	ErrEmptyDocument = errors.New("conversion produced an empty document")

	errEmptyKey          = errors.New("snapshot: empty url")
	errNilDocument       = errors.New("fetcher returned no document")
	errNotModifiedNoBase = errors.New("origin answered not modified but no snapshot is cached")
	errFetcherPanic      = errors.New("fetcher panicked")
)

// FetchError means the page could not be retrieved: network failure,
// non-success status or timeout. StatusCode is 0 when no response arrived.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ConversionError means the page was retrieved but could not be turned into Markdown.
type ConversionError struct {
	URL string
	Err error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %v", e.URL, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// IsFetchError reports whether err is (or wraps) a *FetchError.
func IsFetchError(err error) bool {
	var target *FetchError
	return errors.As(err, &target)
}

// IsConversionError reports whether err is (or wraps) a *ConversionError.
func IsConversionError(err error) bool {
	var target *ConversionError
	return errors.As(err, &target)
}

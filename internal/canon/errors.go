package canon

import (
	"errors"
	"fmt"
)

var errInvalidHostChars = errors.New("host contains invalid characters")

// InvalidURLError reports input that cannot be canonicalized.
// Input that fails this way never reaches the network.
type InvalidURLError struct {
	Input  string
	Reason string
	Err    error
}

func (e *InvalidURLError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid url %q: %s: %v", e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid url %q: %s", e.Input, e.Reason)
}

func (e *InvalidURLError) Unwrap() error { return e.Err }

// IsInvalidURL reports whether err is (or wraps) an *InvalidURLError.
func IsInvalidURL(err error) bool {
	var target *InvalidURLError
	return errors.As(err, &target)
}

func invalid(input, reason string, err error) error {
	return &InvalidURLError{Input: input, Reason: reason, Err: err}
}

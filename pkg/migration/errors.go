package migration

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed input such as a bad identifier in a
// directory name. It is never retried.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransientError wraps a repository failure that may succeed on retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ExhaustedError is returned once every attempt at an upload has failed.
type ExhaustedError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up on %s after %d attempts: %v", e.Path, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// CollectionError reports a collection whose module fan-out had failures.
// Modules that did migrate stay at the repository.
type CollectionError struct {
	Path   string
	Failed []Result
	Err    error
}

func (e *CollectionError) Error() string {
	paths := make([]string, 0, len(e.Failed))
	for _, r := range e.Failed {
		paths = append(paths, r.Path)
	}
	return fmt.Sprintf("collection %s aborted, %d module(s) failed [%s]: %v",
		e.Path, len(e.Failed), strings.Join(paths, ", "), e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

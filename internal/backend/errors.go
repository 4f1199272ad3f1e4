package backend

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is checks.
var (
	ErrUnknownFramework = errors.New("unknown framework")
	ErrBackendUnusable  = errors.New("backend unusable")
	// ErrNotInstalled is returned by probes of backends that are simply absent.
	ErrNotInstalled = errors.New("backend not installed")
)

// UnknownFrameworkError reports a tag that matches no registered adapter,
// or a resolution where no adapter is available.
type UnknownFrameworkError struct {
	Tag   string
	Known []string
}

func (e *UnknownFrameworkError) Error() string {
	known := strings.Join(e.Known, ", ")
	if e.Tag == "" {
		return fmt.Sprintf("%s: no backend available (registered: %s)", ErrUnknownFramework, known)
	}
	return fmt.Sprintf("%s: %q (registered: %s)", ErrUnknownFramework, e.Tag, known)
}

func (e *UnknownFrameworkError) Unwrap() error { return ErrUnknownFramework }

// BackendUnusableError reports a backend that is installed but failed its probe.
type BackendUnusableError struct {
	Tag string
	Err error
}

func (e *BackendUnusableError) Error() string {
	return fmt.Sprintf("%s: %q: %v", ErrBackendUnusable, e.Tag, e.Err)
}

func (e *BackendUnusableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrBackendUnusable}
	}
	return []error{ErrBackendUnusable, e.Err}
}

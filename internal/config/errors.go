package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks.
var (
	ErrConfigNotFound   = errors.New("config not found")
	ErrConfigParse      = errors.New("config parse error")
	ErrConfigValidation = errors.New("config validation error")
)

// NotFoundError is returned when no configuration source could be located.
type NotFoundError struct {
	Path string
	Msg  string
}

func (e *NotFoundError) Error() string {
	if e.Path == "" {
		if e.Msg == "" {
			return ErrConfigNotFound.Error()
		}
		return fmt.Sprintf("%s: %s", ErrConfigNotFound, e.Msg)
	}
	return fmt.Sprintf("%s: %s", ErrConfigNotFound, e.Path)
}

func (e *NotFoundError) Unwrap() error { return ErrConfigNotFound }

// ParseError is returned when the document cannot be read as a mapping of roles.
type ParseError struct {
	Source string
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Source != "" {
		return fmt.Sprintf("%s: %s: %s", ErrConfigParse, e.Source, msg)
	}
	return fmt.Sprintf("%s: %s", ErrConfigParse, msg)
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConfigParse}
	}
	return []error{ErrConfigParse, e.Err}
}

// ValidationError is returned for missing or malformed fields.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrConfigValidation, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", ErrConfigValidation, e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrConfigValidation }

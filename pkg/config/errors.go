// Package config parses the feeder's INI configuration file and validates it
// into typed component configs. Any validation failure is fatal at startup.
package config

import "fmt"

// Error is a configuration error with section/option context.
type Error struct {
	Section string
	Option  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Option != "" {
		return fmt.Sprintf("option '%s' in section '%s': %s", e.Option, e.Section, e.Message)
	}
	if e.Section != "" {
		return fmt.Sprintf("section '%s': %s", e.Section, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(section, option, message string) *Error {
	return &Error{Section: section, Option: option, Message: message}
}

func errMissingOption(section, option string) *Error {
	return newError(section, option, "must be specified")
}

func errMissingSection(section string) *Error {
	return &Error{Section: section, Message: "section not found"}
}

func errInvalidValue(section, option, value, expected string) *Error {
	return newError(section, option, fmt.Sprintf("invalid value '%s', expected %s", value, expected))
}

func errOutOfRange(section, option string, value float64, constraint string) *Error {
	return newError(section, option, fmt.Sprintf("value %v %s", value, constraint))
}

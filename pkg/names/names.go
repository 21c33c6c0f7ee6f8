// Package names checks test, test run and property names before they are
// submitted.
package names

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/mslinn/bm-console/pkg/apierr"
)

var (
	testNamePattern     = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
	runNamePattern      = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_]*$`)
	propertyNamePattern = regexp.MustCompile(`^[a-zA-Z]+[-.a-zA-Z0-9]*$`)
)

// Error is a rejected name; its text is the message shown to the user
type Error struct {
	Name    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// ErrInvalidName matches every *Error via errors.Is
var ErrInvalidName = errors.New("invalid name")

func (e *Error) Is(target error) bool { return target == ErrInvalidName }

// Unwrap classifies every rejected name as invalid input
func (e *Error) Unwrap() error { return apierr.ErrInvalid }

// ValidateTestName returns nil for a legal test name
func ValidateTestName(name string) error {
	if name == "" {
		return &Error{Name: name, Message: "Please enter a test name!"}
	}
	if !testNamePattern.MatchString(name) {
		return &Error{Name: name, Message: "Test names must start with a letter and contain only letters, numbers or underscores!"}
	}
	return nil
}

// ValidateTestRunName returns nil for a legal test run name. Unlike test
// names, run names may start with a digit.
func ValidateTestRunName(name string) error {
	if name == "" {
		return &Error{Name: name, Message: "Please enter a test run name!"}
	}
	if !runNamePattern.MatchString(name) {
		return &Error{Name: name, Message: "Test run names must contain only letters, numbers or underscores and start with a number or letter!"}
	}
	return nil
}

// ValidatePropertyName returns nil for a legal property name
func ValidatePropertyName(name string) error {
	if !propertyNamePattern.MatchString(name) {
		return &Error{
			Name:    name,
			Message: fmt.Sprintf("Illegal property name '%s': property names start with a letter and contain only letters, numbers, dots or dashes", name),
		}
	}
	return nil
}

// Message returns the user message for err, or "" for nil
func Message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

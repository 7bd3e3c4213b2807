package groups

import (
	"errors"
	"fmt"
)

var (
	// ErrNotObject indicates a document, plugin entry or group entry that is not
	// a JSON object.
	ErrNotObject = errors.New("groups: value is not a JSON object")
	// ErrEmptyPrefixes indicates an idPrefixes list with no usable entries.
	ErrEmptyPrefixes = errors.New("groups: id prefix list is empty")
)

// ValidationError reports a value that cannot be normalized. Authoring call
// sites treat it as fatal; merge call sites log it and fall back.
type ValidationError struct {
	Kind    string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Kind == "" {
		return fmt.Sprintf("groups: invalid value: %s", e.Message)
	}
	return fmt.Sprintf("groups: invalid %s: %s", e.Kind, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func invalidf(kind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// MergeFieldError describes a field that was skipped while merging. It is
// logged, never returned to callers of Merge.
type MergeFieldError struct {
	Layer  Layer
	Plugin string
	Group  string
	Field  string
	Err    error
}

func (e *MergeFieldError) Error() string {
	if e == nil {
		return "<nil>"
	}
	target := e.Plugin
	if e.Group != "" {
		target = fmt.Sprintf("%s/%s", e.Plugin, e.Group)
	}
	if e.Field != "" {
		target = fmt.Sprintf("%s.%s", target, e.Field)
	}
	return fmt.Sprintf("groups: %s layer %s: %v", e.Layer, target, e.Err)
}

func (e *MergeFieldError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DocumentError reports a whole document that could not be used: malformed
// JSON or a root that is not an object.
type DocumentError struct {
	Layer Layer
	Path  string
	Err   error
}

func (e *DocumentError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path == "" {
		return fmt.Sprintf("groups: %s document: %v", e.Layer, e.Err)
	}
	return fmt.Sprintf("groups: %s document %s: %v", e.Layer, e.Path, e.Err)
}

func (e *DocumentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsDocumentError reports whether err carries a *DocumentError.
func IsDocumentError(err error) bool {
	var target *DocumentError
	return errors.As(err, &target)
}

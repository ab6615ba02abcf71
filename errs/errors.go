// Package errs defines the error taxonomy shared by the model definition,
// dataset and training packages.
package errs

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// ErrTrainerBusy is returned when Train is called on a trainer that already
// has a run in flight.
var ErrTrainerBusy = errors.New("trainer is busy with another training run")

// ConfigValidationError reports an invalid layer, model or training field.
// It is raised before any backend call and is never retried.
type ConfigValidationError struct {
	Field  string
	Index  int // position of the offending layer, -1 when not layer related
	Reason string
}

func (e *ConfigValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid config at layer %d (%s): %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid config field %s: %s", e.Field, e.Reason)
}

// NewConfigValidation creates a ConfigValidationError not tied to a layer.
func NewConfigValidation(field, format string, args ...interface{}) error {
	return &ConfigValidationError{Field: field, Index: -1, Reason: fmt.Sprintf(format, args...)}
}

// NewLayerValidation creates a ConfigValidationError for the layer at index.
func NewLayerValidation(index int, field, format string, args ...interface{}) error {
	return &ConfigValidationError{Field: field, Index: index, Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedKindError reports an unknown layer or optimizer kind.
type UnsupportedKindError struct {
	Category string // "layer" or "optimizer"
	Kind     string
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("unsupported %s kind %q", e.Category, e.Kind)
}

// DisposedResourceError reports an operation on a released tensor or dataset.
type DisposedResourceError struct {
	Resource string
}

func (e *DisposedResourceError) Error() string {
	return fmt.Sprintf("%s has been disposed", e.Resource)
}

// NewDisposed creates a DisposedResourceError for the named resource.
func NewDisposed(resource string) error {
	return &DisposedResourceError{Resource: resource}
}

// BackendTrainingError wraps any failure raised inside compile, fit or
// evaluate. History holds the metrics of every epoch that completed before
// the failure.
type BackendTrainingError struct {
	Op      string
	Epoch   int // last completed epoch, -1 if none
	History map[string][]float64
	cause   error
}

// NewBackendTraining wraps cause with a stack trace and the failing operation.
func NewBackendTraining(op string, epoch int, history map[string][]float64, cause error) *BackendTrainingError {
	return &BackendTrainingError{
		Op:      op,
		Epoch:   epoch,
		History: history,
		cause:   errors.Wrapf(cause, "backend %s failed", op),
	}
}

func (e *BackendTrainingError) Error() string {
	return e.cause.Error()
}

// Unwrap exposes the wrapped cause to errors.Is and errors.As.
func (e *BackendTrainingError) Unwrap() error {
	return e.cause
}

// Cause returns the root cause for github.com/pkg/errors.Cause.
func (e *BackendTrainingError) Cause() error {
	return errors.Cause(e.cause)
}

// IsConfigValidation reports whether err is or wraps a ConfigValidationError.
func IsConfigValidation(err error) bool {
	var target *ConfigValidationError
	return stderrors.As(err, &target)
}

// IsUnsupportedKind reports whether err is or wraps an UnsupportedKindError.
func IsUnsupportedKind(err error) bool {
	var target *UnsupportedKindError
	return stderrors.As(err, &target)
}

// IsDisposed reports whether err is or wraps a DisposedResourceError.
func IsDisposed(err error) bool {
	var target *DisposedResourceError
	return stderrors.As(err, &target)
}

// IsBackendTraining reports whether err is or wraps a BackendTrainingError.
func IsBackendTraining(err error) bool {
	var target *BackendTrainingError
	return stderrors.As(err, &target)
}

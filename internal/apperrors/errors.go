// Package apperrors provides the classified error taxonomy for ingestion runs.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names a class of failure. The string value is what callers see in result envelopes.
type Kind string

const (
	KindRuntimeUnavailable  Kind = "RuntimeUnavailable"
	KindCredentialsNotFound Kind = "CredentialsNotFound"
	KindImageNotFound       Kind = "ImageNotFound"
	KindContainerExecution  Kind = "ContainerExecutionError"
	KindRuntimeAPI          Kind = "RuntimeAPIError"
	KindNonZeroExit         Kind = "NonZeroExit"
	KindUnclassified        Kind = "UnclassifiedError"
	KindValidation          Kind = "ValidationError"
	KindConfiguration       Kind = "ConfigurationError"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrRuntimeUnavailable  = errors.New("container runtime unavailable")
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrImageNotFound       = errors.New("image not found")
	ErrContainerExecution  = errors.New("container execution error")
	ErrRuntimeAPI          = errors.New("runtime api error")
	ErrNonZeroExit         = errors.New("non-zero exit")
	ErrUnclassified        = errors.New("unclassified error")
	ErrValidation          = errors.New("validation error")
	ErrConfiguration       = errors.New("configuration error")
)

var sentinels = map[Kind]error{
	KindRuntimeUnavailable:  ErrRuntimeUnavailable,
	KindCredentialsNotFound: ErrCredentialsNotFound,
	KindImageNotFound:       ErrImageNotFound,
	KindContainerExecution:  ErrContainerExecution,
	KindRuntimeAPI:          ErrRuntimeAPI,
	KindNonZeroExit:         ErrNonZeroExit,
	KindUnclassified:        ErrUnclassified,
	KindValidation:          ErrValidation,
	KindConfiguration:       ErrConfiguration,
}

// Error provides structured error with context.
type Error struct {
	Kind     Kind   // Taxonomy kind
	Message  string // Human-readable message
	Op       string // Operation that failed (e.g., "docker.containerCreate")
	Field    string // For validation and configuration errors
	Image    string // For image errors
	Logs     string // Captured container output, if any
	ExitCode *int   // Container exit code, if the container ran to completion
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	var errs []error
	if sentinel, ok := sentinels[e.Kind]; ok {
		errs = append(errs, sentinel)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// RuntimeUnavailable reports that the container runtime could not be reached.
func RuntimeUnavailable(cause error) error {
	return &Error{
		Kind:    KindRuntimeUnavailable,
		Message: fmt.Sprintf("container runtime unavailable: %v", cause),
		Op:      "runtime.connect",
		Cause:   cause,
	}
}

// CredentialsNotFound reports that none of the probed locations holds a usable credential bundle.
func CredentialsNotFound(tried []string) error {
	msg := "credentials not found"
	if len(tried) > 0 {
		msg = fmt.Sprintf("credentials not found (tried: %s)", strings.Join(tried, ", "))
	}
	return &Error{
		Kind:    KindCredentialsNotFound,
		Message: msg,
		Op:      "credentials.resolve",
	}
}

// ImageNotFound reports a missing image. hint is the command that builds it.
func ImageNotFound(image, hint string) error {
	msg := fmt.Sprintf("image %s not found", image)
	if hint != "" {
		msg += ". Build it with: " + hint
	}
	return &Error{
		Kind:    KindImageNotFound,
		Message: msg,
		Op:      "runtime.run",
		Image:   image,
	}
}

// ContainerExecution reports a runtime fault while the container was running.
func ContainerExecution(cause error, logs string) error {
	return &Error{
		Kind:    KindContainerExecution,
		Message: fmt.Sprintf("container execution failed: %v", cause),
		Op:      "runtime.wait",
		Logs:    logs,
		Cause:   cause,
	}
}

// RuntimeAPI reports a request rejected by the runtime control API.
func RuntimeAPI(op string, cause error) error {
	return &Error{
		Kind:    KindRuntimeAPI,
		Message: fmt.Sprintf("runtime API error: %s: %v", op, cause),
		Op:      op,
		Cause:   cause,
	}
}

// NonZeroExit reports a container that completed with a failing exit code.
func NonZeroExit(code int, logs string) error {
	return &Error{
		Kind:     KindNonZeroExit,
		Message:  fmt.Sprintf("container exited with code %d", code),
		Op:       "runtime.wait",
		Logs:     logs,
		ExitCode: &code,
	}
}

// Unclassified wraps any other failure.
func Unclassified(op string, cause error) error {
	return &Error{
		Kind:    KindUnclassified,
		Message: fmt.Sprintf("unexpected error: %s: %v", op, cause),
		Op:      op,
		Cause:   cause,
	}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Kind:    KindValidation,
		Message: message,
		Field:   field,
	}
}

// Configuration reports a required setting that is missing or malformed.
func Configuration(setting, message string) error {
	return &Error{
		Kind:    KindConfiguration,
		Message: fmt.Sprintf("%s: %s", setting, message),
		Field:   setting,
	}
}

// KindOf returns the taxonomy kind of err. Foreign errors are unclassified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnclassified
}

// Classify returns err unchanged when it already carries a kind, otherwise wraps it with fallback.
func Classify(err error, fallback func(error) error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return fallback(err)
}

// Package errors provides standardized error handling for the natswire client.
// It includes error classification, standard error variables, and helper
// functions for consistent error wrapping across the transport, dispatch and
// consumption layers.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	// (mid-session I/O failures, keepalive timeouts, request timeouts)
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration,
	// surfaced directly to the caller and never retried by the engine
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors for the current connection
	// generation (protocol violations, authorization rejections)
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Connection lifecycle errors
	ErrConnectionClosed  = errors.New("connection closed")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionDrain   = errors.New("connection draining")
	ErrNoServers         = errors.New("no servers available for connection")
	ErrAuthorization     = errors.New("authorization violation")
	ErrAuthExpired       = errors.New("user authorization expired")
	ErrStaleConnection   = errors.New("stale connection")
	ErrConnectionTimeout = errors.New("connection timeout")

	// Protocol errors
	ErrProtocol         = errors.New("protocol violation")
	ErrHeaderMismatch   = errors.New("declared header length mismatch")
	ErrMaxPayload       = errors.New("maximum payload size exceeded")
	ErrBadSubject       = errors.New("invalid subject")
	ErrTemplateMismatch = errors.New("subject does not match template")

	// Subscription and dispatch errors
	ErrSlowConsumer       = errors.New("slow consumer, messages dropped")
	ErrSubscriptionClosed = errors.New("subscription closed")
	ErrMaxMessages        = errors.New("maximum messages delivered")

	// Request/reply errors
	ErrRequestTimeout = errors.New("request timed out")
	ErrNoResponders   = errors.New("no responders available for request")

	// Consumer engine errors
	ErrConsumerNotFound    = errors.New("consumer not found")
	ErrConsumerDeleted     = errors.New("consumer deleted")
	ErrNoAckPolicy         = errors.New("consumer configured with no ack policy")
	ErrMsgAlreadyAcked     = errors.New("message already acknowledged")
	ErrMsgNotBound         = errors.New("message not bound to a consumer")
	ErrNoMessages          = errors.New("no messages available")
	ErrOrderedRecoveryGave = errors.New("ordered consumer recovery attempts exhausted")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and may be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	return errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrStaleConnection) ||
		errors.Is(err, ErrRequestTimeout) ||
		errors.Is(err, ErrNoMessages) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsFatal checks if an error is fatal for the current connection generation
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrProtocol) ||
		errors.Is(err, ErrHeaderMismatch) ||
		errors.Is(err, ErrAuthorization) ||
		errors.Is(err, ErrAuthExpired)
}

// IsInvalid checks if an error is due to invalid input or configuration
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrBadSubject) ||
		errors.Is(err, ErrTemplateMismatch) ||
		errors.Is(err, ErrNoAckPolicy) ||
		errors.Is(err, ErrMaxPayload)
}

// Classify returns the error class for an error. Unknown errors default to
// transient so callers lean toward retrying rather than giving up.
func Classify(err error) ErrorClass {
	switch {
	case IsFatal(err):
		return ErrorFatal
	case IsInvalid(err):
		return ErrorInvalid
	default:
		return ErrorTransient
	}
}

// newClassified creates a new classified error.
// Internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

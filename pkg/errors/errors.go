package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeGraph represents graph store errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeTransport represents event log transport errors
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeCheckpoint represents checkpoint store errors
	ErrorTypeCheckpoint ErrorType = "checkpoint"
	// ErrorTypeEvent represents event decoding/validation errors
	ErrorTypeEvent ErrorType = "event"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Graph Errors

// ErrGraphConnectionFailed is returned when the graph store connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to graph store: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphQueryFailed is returned when a graph mutation fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, "query failed", err),
		Query:     query,
	}
}

// ErrGraphRetriesExhausted is returned when the retry budget for a mutation
// is spent without success
type ErrGraphRetriesExhausted struct {
	*BaseError
	Attempts int
}

func NewGraphRetriesExhausted(attempts int, err error) *ErrGraphRetriesExhausted {
	return &ErrGraphRetriesExhausted{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("retries exhausted after %d attempts", attempts), err),
		Attempts:  attempts,
	}
}

// Transport Errors

// ErrTransportSendFailed is returned when appending a batch to the log fails
type ErrTransportSendFailed struct {
	*BaseError
	Topic string
}

func NewTransportSendFailed(topic string, err error) *ErrTransportSendFailed {
	return &ErrTransportSendFailed{
		BaseError: NewBaseError(ErrorTypeTransport, fmt.Sprintf("failed to append batch to %s", topic), err),
		Topic:     topic,
	}
}

// ErrTransportFetchFailed is returned when a partition fetch fails
type ErrTransportFetchFailed struct {
	*BaseError
	Partition int
}

func NewTransportFetchFailed(partition int, err error) *ErrTransportFetchFailed {
	return &ErrTransportFetchFailed{
		BaseError: NewBaseError(ErrorTypeTransport, fmt.Sprintf("fetch failed for partition %d", partition), err),
		Partition: partition,
	}
}

// Checkpoint Errors

// ErrCheckpointSaveFailed is returned when persisting a checkpoint fails
type ErrCheckpointSaveFailed struct {
	*BaseError
	Partition int
}

func NewCheckpointSaveFailed(partition int, err error) *ErrCheckpointSaveFailed {
	return &ErrCheckpointSaveFailed{
		BaseError: NewBaseError(ErrorTypeCheckpoint, fmt.Sprintf("failed to save checkpoint for partition %d", partition), err),
		Partition: partition,
	}
}

// Event Errors

// ErrUnknownEvent is returned when a payload carries neither a node_type nor
// an edge_type discriminator
var ErrUnknownEvent = NewBaseError(ErrorTypeEvent, "unknown event type", nil)

// ErrEventDecodeFailed is returned when an event payload cannot be parsed
type ErrEventDecodeFailed struct {
	*BaseError
}

func NewEventDecodeFailed(err error) *ErrEventDecodeFailed {
	return &ErrEventDecodeFailed{
		BaseError: NewBaseError(ErrorTypeEvent, "failed to decode event payload", err),
	}
}

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// typed is satisfied by *BaseError and, through embedding, by every derived
// error struct in this package
type typed interface {
	errorType() ErrorType
}

func (e *BaseError) errorType() ErrorType {
	return e.Type
}

// IsErrorType checks if an error (or any error it wraps) is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if t, ok := err.(typed); ok {
			return t.errorType() == errType
		}
		err = unwrap(err)
	}
	return false
}

func unwrap(err error) error {
	if wrapped, ok := err.(interface{ Unwrap() error }); ok {
		return wrapped.Unwrap()
	}
	return nil
}

// IsRetryable checks if an error is worth retrying at a higher level
func IsRetryable(err error) bool {
	// Malformed events never become valid on retry
	if IsErrorType(err, ErrorTypeEvent) {
		return false
	}
	// Config errors require operator intervention
	if IsErrorType(err, ErrorTypeConfig) {
		return false
	}
	// Graph and transport failures are typically transient
	if IsErrorType(err, ErrorTypeGraph) || IsErrorType(err, ErrorTypeTransport) {
		return true
	}
	return false
}

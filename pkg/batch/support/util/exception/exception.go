// Package exception provides the error types shared by the iconium import pipeline.
// Every failure raised by the reader, transformer, resolver or writer is a BatchError
// that records the module it came from and whether the skip policy may discard the
// offending record. Error kinds are exposed as sentinels so callers can classify
// failures with errors.Is.
package exception

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// Names of the error kinds raised by the pipeline.
// They double as registry keys for IsErrorOfType.
const (
	FormatErrorName            = "FormatError"
	ValidationErrorName        = "ValidationError"
	NotOpenErrorName           = "NotOpenError"
	ResolutionErrorName        = "ResolutionError"
	DuplicateKeyErrorName      = "DuplicateKeyError"
	SkipLimitExceededErrorName = "SkipLimitExceededError"
)

var (
	// ErrFormat marks input that is not valid JSON or is not an object where one is expected.
	ErrFormat = errors.New(FormatErrorName)
	// ErrValidation marks a record whose field value cannot be parsed as the required type.
	ErrValidation = errors.New(ValidationErrorName)
	// ErrNotOpen marks a read attempted before the reader was opened.
	ErrNotOpen = errors.New(NotOpenErrorName)
	// ErrResolution marks a failed lookup or insert against a reference store.
	ErrResolution = errors.New(ResolutionErrorName)
	// ErrDuplicateKey marks an insert that collided with a uniqueness constraint.
	ErrDuplicateKey = errors.New(DuplicateKeyErrorName)
	// ErrSkipLimitExceeded marks a step aborted because it ran out of skips.
	ErrSkipLimitExceeded = errors.New(SkipLimitExceededErrorName)
)

// errorRegistry maps error kind names to the sentinel they are compared with.
var errorRegistry = make(map[string]error)

// registryMutex protects access to errorRegistry.
var registryMutex sync.RWMutex

// RegisterErrorType registers an error kind under name so that IsErrorOfType can match it.
//
// Parameters:
//
//	name: A unique identifier for the error kind.
//	prototype: The sentinel compared with errors.Is.
//
// It panics if name is empty or prototype is nil.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("cannot register nil prototype for name: %s", name))
	}
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether name has been registered.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// BatchError is the error type raised by pipeline components.
// It holds the module where the error occurred, a message, the wrapped cause,
// and flags describing how the step should react to it.
type BatchError struct {
	// Module indicates where the error occurred (e.g. "reader", "transformer", "resolver", "writer").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped cause.
	OriginalErr error
	// isRetryable indicates whether this error is retryable.
	isRetryable bool
	// isSkippable indicates whether the record that caused this error may be skipped.
	isSkippable bool
	// StackTrace is the stack trace at the time of the error.
	StackTrace string
}

// NewBatchError creates a new BatchError.
//
// Parameters:
//
//	module: The module where the error occurred.
//	message: The error message.
//	originalErr: The cause to wrap.
//	isSkippable: Whether the record may be skipped.
//	isRetryable: Whether the operation may be retried.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  string(buf[:n]),
	}
}

// NewBatchErrorf creates a new BatchError using a format string.
// Trailing arguments are inspected from the end in the order
// [originalErr error], [isRetryable bool], [isSkippable bool];
// whatever remains is passed to fmt.Sprintf.
//
// Example:
//
//	NewBatchErrorf("writer", "insert into %s failed", "schools", true, false, err)
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	isRetryable := false
	isSkippable := false
	args := a

	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		if b, ok := args[len(args)-1].(bool); ok {
			isRetryable = b
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		if b, ok := args[len(args)-1].(bool); ok {
			isSkippable = b
			args = args[:len(args)-1]
		}
	}

	return NewBatchError(module, fmt.Sprintf(format, args...), originalErr, isSkippable, isRetryable)
}

// join attaches a sentinel to an optional cause.
func join(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return errors.Join(sentinel, cause)
}

// NewFormatError reports malformed input. A malformed element inside an otherwise
// readable stream is skippable; a stream that cannot be read any further is not.
func NewFormatError(message string, cause error, skippable bool) *BatchError {
	return NewBatchError("reader", message, join(ErrFormat, cause), skippable, false)
}

// NewValidationError reports a field whose value cannot be parsed.
// Field is the source field name and value the offending text.
func NewValidationError(field, value string, cause error) *BatchError {
	msg := fmt.Sprintf("invalid value %q for field %s", value, field)
	return NewBatchError("transformer", msg, join(ErrValidation, cause), true, false)
}

// NewNotOpenError reports a read against a reader that has not been opened.
func NewNotOpenError() *BatchError {
	return NewBatchError("reader", "reader must be opened before it is read from", ErrNotOpen, false, false)
}

// NewResolutionError reports a failed lookup or insert against a reference store.
func NewResolutionError(message string, cause error) *BatchError {
	return NewBatchError("resolver", message, join(ErrResolution, cause), true, false)
}

// NewDuplicateKeyError reports an insert that collided with a uniqueness constraint.
func NewDuplicateKeyError(table string, cause error) *BatchError {
	msg := fmt.Sprintf("duplicate key on %s", table)
	return NewBatchError("writer", msg, join(ErrDuplicateKey, cause), true, false)
}

// NewSkipLimitExceededError reports that the step ran out of skips.
// cause is the error of the record that could not be skipped.
func NewSkipLimitExceededError(limit int, cause error) *BatchError {
	msg := fmt.Sprintf("skip limit of %d exceeded", limit)
	return NewBatchError("step", msg, join(ErrSkipLimitExceeded, cause), false, false)
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the wrapped cause for errors.Is and errors.As.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error is skippable.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// IsBatchError reports whether err, or an error it wraps, is a *BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// IsSkippable reports whether err may be absorbed by the skip policy.
// The outermost BatchError in the chain decides. Errors that are not
// BatchErrors are treated as skippable, matching a policy that skips any exception.
func IsSkippable(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsSkippable()
	}
	return true
}

// IsFatal determines if an error can be neither retried nor skipped.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return !be.IsRetryable() && !be.IsSkippable()
	}
	return false
}

// IsErrorOfType checks if err matches the named error kind.
// It checks, in order, the registered sentinel via errors.Is, a substring of each
// message in the chain, and the dynamic type name of each error in the chain.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	target, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, target) {
		return true
	}

	for current := err; current != nil; current = errors.Unwrap(current) {
		if strings.Contains(current.Error(), errorTypeName) {
			return true
		}
		if t := reflect.TypeOf(current); t != nil {
			if t.String() == errorTypeName || (t.Kind() == reflect.Ptr && t.Elem().String() == errorTypeName) {
				return true
			}
		}
	}
	return false
}

// Kind returns the registered name of the first error kind err belongs to,
// or "" when err matches none of them.
func Kind(err error) string {
	for _, name := range []string{
		SkipLimitExceededErrorName,
		NotOpenErrorName,
		FormatErrorName,
		ValidationErrorName,
		DuplicateKeyErrorName,
		ResolutionErrorName,
	} {
		registryMutex.RLock()
		target := errorRegistry[name]
		registryMutex.RUnlock()
		if target != nil && errors.Is(err, target) {
			return name
		}
	}
	return ""
}

// ExtractErrorMessage returns the message of err. For a BatchError this is the
// Message field followed by the cause, without the module prefix.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		if be.OriginalErr != nil {
			return fmt.Sprintf("%s: %v", be.Message, be.OriginalErr)
		}
		return be.Message
	}
	return err.Error()
}

func init() {
	RegisterErrorType(FormatErrorName, ErrFormat)
	RegisterErrorType(ValidationErrorName, ErrValidation)
	RegisterErrorType(NotOpenErrorName, ErrNotOpen)
	RegisterErrorType(ResolutionErrorName, ErrResolution)
	RegisterErrorType(DuplicateKeyErrorName, ErrDuplicateKey)
	RegisterErrorType(SkipLimitExceededErrorName, ErrSkipLimitExceeded)
}

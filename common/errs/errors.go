package errs

import (
	"errors"
	"fmt"
	"time"
)

// Type represents the category of a failure in the tracing pipeline
type Type string

const (
	// RPC and transport failures
	TypeNetwork Type = "network"

	// Trace data that cannot be walked
	TypeMalformedTrace Type = "malformed_trace"

	// External stores
	TypeWarehouse Type = "warehouse"
	TypeArchive   Type = "archive"
	TypeDatabase  Type = "database"

	// Caller input and session problems
	TypeValidation      Type = "validation"
	TypeUnauthenticated Type = "unauthenticated"
	TypeNotFound        Type = "not_found"

	TypeConfig Type = "config"
)

// Error is a failure tagged with a Type and optional context
type Error struct {
	Type        Type
	Message     string
	OriginalErr error
	Context     map[string]interface{}
	Timestamp   time.Time
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.OriginalErr
}

// Is matches any *Error of the same Type
func (e *Error) Is(target error) bool {
	var targetErr *Error
	if errors.As(target, &targetErr) {
		return e.Type == targetErr.Type
	}
	return false
}

// AddContext adds contextual information to the error
func (e *Error) AddContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates an Error without a cause
func New(errType Type, message string) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]interface{}),
	}
}

// Wrap tags an existing error with a Type
func Wrap(errType Type, message string, originalErr error) *Error {
	return &Error{
		Type:        errType,
		Message:     message,
		OriginalErr: originalErr,
		Timestamp:   time.Now(),
		Context:     make(map[string]interface{}),
	}
}

// Sentinels for errors.Is checks against a category.
var (
	ErrNetwork         = New(TypeNetwork, "network")
	ErrMalformedTrace  = New(TypeMalformedTrace, "malformed trace")
	ErrWarehouse       = New(TypeWarehouse, "warehouse")
	ErrArchive         = New(TypeArchive, "archive")
	ErrDatabase        = New(TypeDatabase, "database")
	ErrValidation      = New(TypeValidation, "validation")
	ErrUnauthenticated = New(TypeUnauthenticated, "unauthenticated")
	ErrNotFound        = New(TypeNotFound, "not found")
)

// TypeOf returns the Type of the outermost *Error in the chain, or "" if there is none.
func TypeOf(err error) Type {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// NewMalformedTrace reports a trace node that failed validation at the given trace path.
func NewMalformedTrace(path string, message string) *Error {
	return New(TypeMalformedTrace, message).AddContext("path", path)
}

// NewValidation reports a bad caller-supplied field.
func NewValidation(field string, message string) *Error {
	return New(TypeValidation, message).AddContext("field", field)
}

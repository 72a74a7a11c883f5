package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so sentinels work through wrapping.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrValidation
	ErrStorage
	ErrMigration
	ErrConflict
)

// Sentinels for errors.Is checks.
var (
	NotFoundErr   = &AppError{Code: ErrNotFound}
	ValidationErr = &AppError{Code: ErrValidation}
	StorageErr    = &AppError{Code: ErrStorage}
	MigrationErr  = &AppError{Code: ErrMigration}
	ConflictErr   = &AppError{Code: ErrConflict}
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal error",
		Err:     err,
	}
}

func NewStorage(op string, err error) *AppError {
	return &AppError{
		Code:    ErrStorage,
		Message: fmt.Sprintf("storage %s failed", op),
		Err:     err,
	}
}

func NewConflict(message string) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

// FieldError describes one failing field of a validated input.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError lists every failing field, not just the first.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func NewValidation(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == ErrValidation
}

// FieldNames returns the failing field names in report order.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}

// MigrationError is returned when a schema upgrade transform fails. It is fatal at startup.
type MigrationError struct {
	From int
	To   int
	Err  error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("schema upgrade from version %d to %d failed: %v", e.From, e.To, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

func (e *MigrationError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == ErrMigration
}

// UserMessage renders err as a short, category-appropriate message for display.
// Raw engine text never reaches the caller.
func UserMessage(action string, err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case stderrors.As(err, &verr):
		return fmt.Sprintf("Could not %s: please check %s", action, strings.Join(verr.FieldNames(), ", "))
	case stderrors.Is(err, NotFoundErr):
		return fmt.Sprintf("Could not %s: record not found", action)
	case stderrors.Is(err, ConflictErr):
		var app *AppError
		if stderrors.As(err, &app) && app.Message != "" {
			return fmt.Sprintf("Could not %s: %s", action, app.Message)
		}
		return fmt.Sprintf("Could not %s: conflicting change", action)
	default:
		return fmt.Sprintf("Failed to %s", action)
	}
}

// Is, As and New re-export the standard helpers so callers need one import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }

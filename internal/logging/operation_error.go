package logging

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// OperationError annotates an infrastructure failure with the operation that
// produced it and the submission it belongs to.
type OperationError struct {
	Operation string
	RequestID string
	Err       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s (request_id=%s): %v", e.Operation, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Fields renders the error as zap fields so callers log it consistently.
func (e *OperationError) Fields() []zap.Field {
	if e == nil {
		return nil
	}
	fields := []zap.Field{zap.String("failed_operation", e.Operation), zap.Error(e.Err)}
	if e.RequestID != "" {
		fields = append(fields, zap.String("request_id", e.RequestID))
	}
	return fields
}

// NewOperationError wraps err with the operation and request it occurred in.
// A nil err stays nil.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Err: err}
}

// ErrorFields returns the fields of the outermost OperationError in err's
// chain, or a plain error field when there is none.
func ErrorFields(err error) []zap.Field {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Fields()
	}
	return []zap.Field{zap.Error(err)}
}

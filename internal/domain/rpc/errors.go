package rpc

import "errors"

// Coder is implemented by errors that carry a stable, client-visible code.
type Coder interface {
	Code() string
}

// CodeInternal is reported for errors without a code of their own.
const CodeInternal = "INTERNAL_ERROR"

// CodeMethodNotFound is reported when no handler is registered for a method.
const CodeMethodNotFound = "METHOD_NOT_FOUND"

// ErrMethodNotFound is returned by routers for unknown methods.
var ErrMethodNotFound = NewCodedError(CodeMethodNotFound, "method not found")

// ErrorCode returns the code of the first error in err's tree that
// implements Coder, or CodeInternal.
func ErrorCode(err error) string {
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeInternal
}

// NewCodedError returns an error with a fixed code and message. The result
// compares equal only to itself, so it can be used as a sentinel.
func NewCodedError(code, msg string) error {
	return &codedError{code: code, msg: msg}
}

type codedError struct {
	code string
	msg  string
}

func (e *codedError) Error() string { return e.code + ": " + e.msg }

func (e *codedError) Code() string { return e.code }

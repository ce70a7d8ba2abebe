// Package httperr marks errors caused by the caller's input. Handlers answer them with 400.
package httperr

import (
	"errors"
	"fmt"
)

type BadRequestError struct {
	msg string
}

func (e *BadRequestError) Error() string { return e.msg }

func NewBadRequest(msg string) error { return &BadRequestError{msg: msg} }

func BadRequestf(format string, args ...any) error {
	return &BadRequestError{msg: fmt.Sprintf(format, args...)}
}

func IsBadRequest(err error) bool {
	_, ok := errors.AsType[*BadRequestError](err)
	return ok
}

// Message returns the caller-facing message of the first bad request in err's tree.
func Message(err error) (string, bool) {
	bad, ok := errors.AsType[*BadRequestError](err)
	if !ok {
		return "", false
	}
	return bad.msg, true
}

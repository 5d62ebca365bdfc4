package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the entry workflow.
type ErrorKind string

const (
	KindInput       ErrorKind = "input"
	KindRecognition ErrorKind = "recognition"
	KindNoMatch     ErrorKind = "no-match"
	KindStorage     ErrorKind = "storage"
	KindDownstream  ErrorKind = "downstream"
	KindInternal    ErrorKind = "internal"
)

// IsClientError reports whether the kind is answered with a 4xx status.
func (k ErrorKind) IsClientError() bool {
	switch k {
	case KindInput, KindNoMatch, KindRecognition:
		return true
	}
	return false
}

type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

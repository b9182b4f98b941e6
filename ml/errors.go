package ml

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures of the encode/train/predict pipeline.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInput
	KindUnknownCategory
	KindMissingField
)

func (k ErrorKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindUnknownCategory:
		return "unknown_category"
	case KindMissingField:
		return "missing_field"
	default:
		return "internal"
	}
}

// InputError reports empty fit data, a malformed artifact or an encoder/model mismatch.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

func inputErrorf(format string, args ...interface{}) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// UnknownCategoryError reports a value outside the vocabulary fixed at training time.
type UnknownCategoryError struct {
	Field string
	Value string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("Unknown %s: %s", e.Field, e.Value)
}

// MissingFieldError reports required request fields that were absent or empty.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return "Missing input fields: " + strings.Join(e.Fields, ", ")
}

// InternalError wraps any other failure on the prediction path.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return "internal error"
	}
	return e.Err.Error()
}

func (e *InternalError) Unwrap() error { return e.Err }

// KindOf maps err onto the error taxonomy. Unclassified errors are internal.
func KindOf(err error) ErrorKind {
	var (
		internal *InternalError
		missing  *MissingFieldError
		unknown  *UnknownCategoryError
		input    *InputError
	)
	switch {
	case errors.As(err, &internal):
		return KindInternal
	case errors.As(err, &missing):
		return KindMissingField
	case errors.As(err, &unknown):
		return KindUnknownCategory
	case errors.As(err, &input):
		return KindInput
	default:
		return KindInternal
	}
}

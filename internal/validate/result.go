// Package validate checks post and tag input before anything reaches the
// store. Checks return a Result instead of failing with a bare error so
// callers can branch on the outcome.
package validate

import (
	"errors"
	"strings"
)

// ErrValidation matches every *ValidationError.
var ErrValidation = errors.New("validation failed")

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Result is either a validated value or the reasons it was rejected.
type Result[T any] struct {
	value T
	err   *ValidationError
}

func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

func Fail[T any](err *ValidationError) Result[T] {
	return Result[T]{err: err}
}

func (r Result[T]) IsOk() bool {
	return r.err == nil
}

// Value is the validated value; the zero value when the result failed.
func (r Result[T]) Value() T {
	return r.value
}

// Err returns the *ValidationError, or nil when the result is ok.
func (r Result[T]) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

func (r Result[T]) Unwrap() (T, error) {
	return r.value, r.Err()
}

// collector accumulates field errors for one input.
type collector struct {
	fields []FieldError
}

func (c *collector) add(field, rule, message string) {
	c.fields = append(c.fields, FieldError{Field: field, Rule: rule, Message: message})
}

func finish[T any](c *collector, value T) Result[T] {
	if len(c.fields) > 0 {
		return Fail[T](&ValidationError{Fields: c.fields})
	}
	return Ok(value)
}

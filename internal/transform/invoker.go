// Package transform wraps the external image transformation behind a single
// call with its own failure type. Invokers never retry.
package transform

import (
	"context"
	"errors"
	"fmt"

	"stager/internal/domain"
)

// Request is one transformation call.
type Request struct {
	JobID       string
	Image       []byte
	ContentType string
	// Mask marks editable regions. Invokers may generate one when empty.
	Mask []byte
	// Prompt renders the instruction. Nil uses the default staging prompt.
	Prompt *Prompt
}

// Invoker turns source image bytes into result image bytes.
type Invoker interface {
	Transform(ctx context.Context, req Request) ([]byte, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, req Request) ([]byte, error)

func (f InvokerFunc) Transform(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}

// Error is a failed transformation. Status carries the upstream HTTP status
// when there was one.
type Error struct {
	Reason string
	Status int
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d)", e.Reason, e.Status)
	}
	return e.Reason
}

// Is lets errors.Is(err, domain.ErrTransformFailed) match.
func (e *Error) Is(target error) bool {
	return target == domain.ErrTransformFailed
}

// Failf builds an Error with a formatted reason.
func Failf(format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// asError normalizes any failure into an *Error.
func asError(err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Reason: "timed out waiting for transform"}
	case errors.Is(err, context.Canceled):
		return &Error{Reason: "transform cancelled"}
	}
	return &Error{Reason: err.Error()}
}

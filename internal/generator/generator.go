package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// Request is opaque to the draft engine; only the generator reads it.
type Request struct {
	DraftID string
	Tool    string
	Inputs  map[string]any
	// Fields names the content fields the caller expects back. Empty means
	// the generator decides.
	Fields []string
}

// Generator produces a new baseline. The result replaces the previous one
// wholesale.
type Generator interface {
	Generate(ctx context.Context, req Request) (map[string]any, error)
}

type Func func(ctx context.Context, req Request) (map[string]any, error)

func (f Func) Generate(ctx context.Context, req Request) (map[string]any, error) {
	return f(ctx, req)
}

// GenerationError is the only error type a Generator returns.
type GenerationError struct {
	Retryable bool
	Err       error
}

func (e *GenerationError) Error() string {
	if e == nil || e.Err == nil {
		return "generation failed"
	}
	return e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

func Fail(err error, retryable bool) error {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return &GenerationError{Retryable: retryable, Err: err}
}

func Failf(format string, args ...any) error {
	return &GenerationError{Err: fmt.Errorf(format, args...)}
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ge *GenerationError
	if errors.As(err, &ge) && ge.Retryable {
		return true
	}
	return isTransient(err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

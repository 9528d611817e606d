// Package provider calls the external text-generation service.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/ent0n29/anuva/internal/prompt"
)

// ErrUnavailable wraps every failure to obtain a reply: transport errors,
// non-success statuses and malformed payloads alike.
var ErrUnavailable = errors.New("provider unavailable")

// Reply is the provider's answer. Text may be empty when the payload carried
// no message content.
type Reply struct {
	Text  string
	Model string
}

// Provider generates a reply for an assembled request.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req prompt.Request) (Reply, error)
}

// StatusError carries the upstream HTTP status of a failed call.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

// ErrorCode condenses err into a short metrics label.
func ErrorCode(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &statusErr):
		return fmt.Sprintf("http_%d", statusErr.Code)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, errMalformed):
		return "malformed"
	default:
		return "transport"
	}
}

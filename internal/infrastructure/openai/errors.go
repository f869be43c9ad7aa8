package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// ErrMissingArgument marks a request rejected before any network call
// because a required identifier was absent.
var ErrMissingArgument = errors.New("missing required argument")

func missingArg(name string) error {
	return fmt.Errorf("%w: '%s'", ErrMissingArgument, name)
}

// wrapErr logs an upstream failure with its category and returns the error
// unchanged. Callers decide what reaches the client; nothing is swallowed.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	log.Error().
		Str("operation", op).
		Str("category", errCategory(err)).
		Err(err).
		Msg("OpenAI request failed")
	return err
}

func errCategory(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized ||
			apiErr.HTTPStatusCode == http.StatusForbidden:
			return "authentication"
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return "rate_limit"
		case apiErr.HTTPStatusCode == http.StatusBadRequest:
			return "bad_request"
		case apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return "server"
		default:
			return "api"
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return "request"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	return "connection"
}

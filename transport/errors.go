package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Error kinds mapped from HTTP status codes. Callers match with errors.Is.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("unprocessable request")
	ErrRateLimited  = errors.New("rate limited")
	ErrServer       = errors.New("server error")
	ErrUnavailable  = errors.New("service unavailable")
)

// StatusError is a non-2xx HTTP response translated into a typed error.
// Unwrap yields the kind sentinel for the status class.
type StatusError struct {
	URL        string
	StatusCode int
	Message    string        // platform-sourced when the body carried one
	RetryAfter time.Duration // populated for 429 responses
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.URL, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusBadRequest:
		return ErrBadRequest
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return ErrConflict
	case e.StatusCode == http.StatusUnprocessableEntity:
		return ErrValidation
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode == http.StatusServiceUnavailable:
		return ErrUnavailable
	case e.StatusCode >= 500:
		return ErrServer
	default:
		return nil
	}
}

func statusError(resp *Response, url string) *StatusError {
	e := &StatusError{
		URL:        url,
		StatusCode: resp.StatusCode,
		Message:    extractErrorMessage(resp),
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return e
}

// extractErrorMessage pulls a human-readable reason out of a JSON error
// body, falling back to the standard status text.
func extractErrorMessage(resp *Response) string {
	var body struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Error   string `json:"error"`
	}
	if err := resp.JSON(&body); err == nil {
		for _, s := range []string{body.Message, body.Detail, body.Error} {
			if s != "" {
				return s
			}
		}
	}
	return http.StatusText(resp.StatusCode)
}

package veo

import (
	"fmt"
	"net/http"
	"strings"

	"clipforge/internal/generation"
)

// APIError is a non-2xx answer from the Gemini API.
type APIError struct {
	HTTPStatus int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("veo: status %d", e.HTTPStatus)
	}
	return fmt.Sprintf("veo: status %d: %s", e.HTTPStatus, e.Message)
}

// Reason maps the HTTP status onto the generation taxonomy. A 404 for an
// entity the key cannot see is reported as an auth problem: that is what
// the API answers when the key's project has no Veo access.
func (e *APIError) Reason() generation.Reason {
	switch {
	case e.HTTPStatus == http.StatusUnauthorized, e.HTTPStatus == http.StatusForbidden:
		return generation.ReasonAuth
	case e.HTTPStatus == http.StatusNotFound && strings.Contains(strings.ToLower(e.Message), "requested entity was not found"):
		return generation.ReasonAuth
	case e.HTTPStatus == http.StatusTooManyRequests, e.Status == "RESOURCE_EXHAUSTED":
		return generation.ReasonQuota
	case e.HTTPStatus == http.StatusRequestTimeout, e.HTTPStatus >= http.StatusInternalServerError:
		return generation.ReasonTransient
	case e.Status == "UNAUTHENTICATED", e.Status == "PERMISSION_DENIED":
		return generation.ReasonAuth
	default:
		return generation.ReasonUnknown
	}
}

// transportError marks failures that never produced an HTTP response.
type transportError struct {
	op  string
	err error
}

func (e *transportError) Error() string { return fmt.Sprintf("veo: %s: %v", e.op, e.err) }

func (e *transportError) Unwrap() error { return e.err }

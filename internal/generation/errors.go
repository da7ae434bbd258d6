package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Error kinds. Every error returned by Client.Generate matches exactly one of
// these through errors.Is.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrCredentialMissing   = errors.New("credential missing")
	ErrGenerationFailed    = errors.New("generation failed")
	ErrArtifactFetchFailed = errors.New("artifact fetch failed")
)

// Reason refines a failure beyond its kind so callers can decide what to show
// the user (for example a credential prompt on ReasonAuth).
type Reason string

const (
	ReasonAuth      Reason = "auth"
	ReasonQuota     Reason = "quota"
	ReasonTransient Reason = "transient"
	ReasonCanceled  Reason = "canceled"
	ReasonDeadline  Reason = "deadline"
	ReasonUnknown   Reason = "unknown"
)

// Reasoner is implemented by backend errors that carry structured status
// information. Classify prefers it over message inspection.
type Reasoner interface {
	Reason() Reason
}

// Error is the typed failure returned by the generation client.
type Error struct {
	Kind      error
	Reason    Reason
	Op        string
	Operation string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("generation: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches the error against its kind sentinel.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func (e *Error) Unwrap() error { return e.Err }

// NeedsCredential reports whether the caller should offer the credential
// flow before retrying.
func (e *Error) NeedsCredential() bool {
	return errors.Is(e.Kind, ErrCredentialMissing) || e.Reason == ReasonAuth
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// NeedsCredential is a convenience wrapper for errors that may or may not be
// *Error values.
func NeedsCredential(err error) bool {
	if ge, ok := AsError(err); ok {
		return ge.NeedsCredential()
	}
	return false
}

// Classify derives a Reason from err. Structured information wins: a
// Reasoner in the chain, then context and network errors. Message inspection
// is the last resort for backends that only surface text.
func Classify(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}
	var r Reasoner
	if errors.As(err, &r) {
		if reason := r.Reason(); reason != "" && reason != ReasonUnknown {
			return reason
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonDeadline
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ReasonTransient
	}
	return classifyMessage(err.Error())
}

func classifyMessage(msg string) Reason {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "requested entity was not found"),
		strings.Contains(msg, "api key not valid"),
		strings.Contains(msg, "api_key_invalid"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "unauthenticated"):
		return ReasonAuth
	case strings.Contains(msg, "quota"),
		strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "rate limit"):
		return ReasonQuota
	case strings.Contains(msg, "unavailable"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "timeout"):
		return ReasonTransient
	default:
		return ReasonUnknown
	}
}

func invalidf(format string, args ...any) error {
	return &Error{Kind: ErrInvalidRequest, Op: "validate", Message: fmt.Sprintf(format, args...)}
}

func wrap(kind error, op, operation string, err error) *Error {
	return &Error{
		Kind:      kind,
		Reason:    Classify(err),
		Op:        op,
		Operation: operation,
		Err:       err,
	}
}

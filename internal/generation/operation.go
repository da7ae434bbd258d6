package generation

import (
	"context"
	"fmt"
	"time"
)

// Operation is the remote handle of an asynchronous generation job. Done
// moves from false to true once and never back; Result and Error are only
// meaningful after that.
type Operation struct {
	Name   string
	Done   bool
	Result *Result
	Error  *OperationError
}

// Result points at the produced artifact. Some backends return the bytes
// inline, in which case Data is populated and no fetch is needed.
type Result struct {
	URI      string
	MIMEType string
	Data     []byte
}

// OperationError is the failure reported by a finished operation.
type OperationError struct {
	Code    int
	Status  string
	Message string
}

func (e *OperationError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("operation failed (%d %s): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("operation failed (%d): %s", e.Code, e.Message)
}

// Reason classifies the operation error from its gRPC-style status.
func (e *OperationError) Reason() Reason {
	switch e.Status {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return ReasonAuth
	case "RESOURCE_EXHAUSTED":
		return ReasonQuota
	case "UNAVAILABLE", "ABORTED", "INTERNAL":
		return ReasonTransient
	case "DEADLINE_EXCEEDED":
		return ReasonDeadline
	}
	switch e.Code {
	case 7, 16:
		return ReasonAuth
	case 8:
		return ReasonQuota
	case 10, 13, 14:
		return ReasonTransient
	}
	return classifyMessage(e.Message)
}

// Blob holds fetched artifact bytes.
type Blob struct {
	Data     []byte
	MIMEType string
}

// Artifact is the materialized output handed back to the caller. The caller
// owns LocalReference and releases it through the store that produced it.
type Artifact struct {
	LocalReference string    `json:"local_reference"`
	SourcePrompt   string    `json:"source_prompt"`
	MIMEType       string    `json:"mime_type"`
	Size           int64     `json:"size"`
	OperationName  string    `json:"operation_name,omitempty"`
	AspectRatio    string    `json:"aspect_ratio"`
	Mode           string    `json:"mode"`
	CreatedAt      time.Time `json:"created_at"`
}

// Submitter starts a remote generation.
type Submitter interface {
	Submit(ctx context.Context, cred Credential, req Request) (*Operation, error)
}

// Poller refreshes the status of a previously submitted operation.
type Poller interface {
	Poll(ctx context.Context, cred Credential, op *Operation) (*Operation, error)
}

// Fetcher downloads the artifact bytes behind a result URI.
type Fetcher interface {
	Fetch(ctx context.Context, cred Credential, uri string) (*Blob, error)
}

// Backend is the remote service contract used by Client.
type Backend interface {
	Submitter
	Poller
	Fetcher
}

// Materializer turns fetched bytes into a locally addressable reference.
type Materializer interface {
	Materialize(ctx context.Context, blob Blob) (string, error)
}

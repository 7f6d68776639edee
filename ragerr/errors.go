// Package ragerr defines the error taxonomy shared by the chat engine and the
// evaluation pipelines.
package ragerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies an error.
type Kind string

const (
	// KindUpstream is any failure reported by the RAG service or the LLM runtime.
	KindUpstream Kind = "upstream"
	// KindNotFound is a missing conversation, prompt, index, document or chunk.
	KindNotFound Kind = "not_found"
	// KindValidation is malformed configuration, prompt files or inconsistent inputs.
	KindValidation Kind = "validation"
	// KindParseFailure is a judge response that is not valid JSON or fails its schema.
	KindParseFailure Kind = "parse_failure"
	// KindTimeout is a network operation that exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindFileExists is an ingestion target already present under the same name.
	KindFileExists Kind = "file_exists"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrUpstream     = &Error{Kind: KindUpstream}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrParseFailure = &Error{Kind: KindParseFailure}
	ErrTimeout      = &Error{Kind: KindTimeout}
	ErrFileExists   = &Error{Kind: KindFileExists}
)

// Error is a classified error.
type Error struct {
	// Kind is the error class.
	Kind Kind
	// Op is the operation that failed, e.g. "conversations.retrieve".
	Op string
	// Status is the HTTP status code for upstream errors, 0 otherwise.
	Status int
	// Message is a human readable description.
	Message string
	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an error of the given kind wrapping err.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Upstream creates an upstream error carrying an HTTP status.
func Upstream(op string, status int, message string) *Error {
	return &Error{Kind: KindUpstream, Op: op, Status: status, Message: message}
}

// NotFound creates a not-found error for the named resource.
func NotFound(op, resource string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: resource + " not found"}
}

// Validation creates a validation error.
func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// ParseFailure creates a parse failure wrapping the parser error.
func ParseFailure(op string, err error) *Error {
	return &Error{Kind: KindParseFailure, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FromHTTP maps a non-2xx response to a classified error.
func FromHTTP(op string, status int, body string) *Error {
	body = strings.TrimSpace(body)
	switch status {
	case http.StatusNotFound:
		return &Error{Kind: KindNotFound, Op: op, Status: status, Message: body}
	case http.StatusConflict:
		return &Error{Kind: KindFileExists, Op: op, Status: status, Message: body}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return &Error{Kind: KindTimeout, Op: op, Status: status, Message: body}
	default:
		return &Error{Kind: KindUpstream, Op: op, Status: status, Message: body}
	}
}

// FromTransport classifies an error returned by an HTTP round trip.
// Deadline and network timeouts become KindTimeout, everything else KindUpstream.
func FromTransport(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if IsTimeout(err) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindUpstream, Op: op, Err: err}
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	openai "github.com/sashabaranov/go-openai"
)

// Kind classifies a completion failure. Callers only branch on "is there an
// error"; the kind feeds logs and metrics.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindTimeout    Kind = "timeout"
	KindHTTPStatus Kind = "http_status"
	KindEmpty      Kind = "empty"
	KindMalformed  Kind = "malformed"
	KindConfig     Kind = "config"
	KindUnknown    Kind = "unknown"
)

// ErrEmptyCompletion is wrapped when the service answered with no content.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Error is the failed side of a completion result.
type Error struct {
	Kind   Kind
	Status int // HTTP status for KindHTTPStatus
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm %s (%d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("llm %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify returns the failure kind of err ("" for nil). Errors that were
// not produced by this package are classified by inspection.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return classify(err).Kind
}

// classify maps a transport or client error to an *Error.
func classify(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: KindHTTPStatus, Status: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &Error{Kind: KindHTTPStatus, Status: reqErr.HTTPStatusCode, Err: err}
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &Error{Kind: KindMalformed, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindNetwork, Err: err}
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return &Error{Kind: KindNetwork, Err: err}
	}
	return &Error{Kind: KindUnknown, Err: err}
}
